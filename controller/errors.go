package controller

import "errors"

var (
	ErrClosed     = errors.New("controller: closed")
	ErrWorkerLost = errors.New("controller: worker lost")
)
