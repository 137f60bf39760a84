package queue

import "errors"

// ErrClosed is returned by Submit once the queue is closed.
var ErrClosed = errors.New("queue closed")

// ErrFull is returned by Submit when the queue is at capacity.
var ErrFull = errors.New("queue full")
