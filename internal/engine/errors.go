package engine

import "errors"

var (
	ErrStopped   = errors.New("engine stopped")
	ErrQueueFull = errors.New("engine fire queue full")
	ErrNoHandler = errors.New("engine fire handler not set")
)
