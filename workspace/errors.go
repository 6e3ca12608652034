package workspace

import "errors"

var (
	ErrNotFound    = errors.New("workspace: file not found")
	ErrExists      = errors.New("workspace: file exists")
	ErrInvalidName = errors.New("workspace: invalid file name")
	ErrLoadFailed  = errors.New("workspace: load failed")
	ErrSaveFailed  = errors.New("workspace: save failed")
)
