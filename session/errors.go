package session

import "errors"

var (
	ErrUnknownCommand = errors.New("session: unknown command")
	ErrPanic          = errors.New("session: panic while serving")
)
