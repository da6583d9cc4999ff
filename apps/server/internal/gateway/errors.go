package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned when a command is submitted after the owner began
	// shutting down.
	ErrQueueClosed = errors.New("gateway: command queue closed")

	// ErrUnavailable means the owner stopped before it replied.
	ErrUnavailable = errors.New("gateway: core unavailable")

	// ErrShuttingDown is the reply given to queued commands dropped by an immediate
	// shutdown.
	ErrShuttingDown = fmt.Errorf("%w: shutting down", ErrUnavailable)

	ErrUnhandledCommand = errors.New("gateway: unhandled command")
)
