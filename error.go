package webserver

import (
	"errors"
)

var (
	ErrorGetPoolBuffer = errors.New("get pool buffer error")
	ErrorQueueFull     = errors.New("work queue is full")
	ErrorStaleResult   = errors.New("result for a recycled connection")
	ErrorJobPanicked   = errors.New("request processing panicked")
)
