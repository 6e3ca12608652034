package worker

import "errors"

var (
	ErrInvalidConfig = errors.New("worker: invalid config")
	ErrNoWorker      = errors.New("worker: no such worker")
	ErrTerminated    = errors.New("worker: terminated")
)
