package dispatch

import "errors"

var (
	ErrStopped     = errors.New("dispatch stopped")
	ErrQueueFull   = errors.New("dispatch queue full")
	ErrBreakerOpen = errors.New("send skipped: chat breaker open")
)
