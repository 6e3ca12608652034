package commands

import "errors"

var (
	ErrNotFound      = errors.New("command not found")
	ErrAlreadyExists = errors.New("command already registered")
	ErrEmptyName     = errors.New("command name is empty")
	ErrUsage         = errors.New("usage")
)
