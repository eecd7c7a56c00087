package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrNotFound   = errors.New("batch not found")
	ErrNotReady   = errors.New("batch not complete")
	ErrQueueFull  = errors.New("batch queue is full")
)
