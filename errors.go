package ptyx

import "errors"

// Package-level errors
var (
	// ErrClosed indicates an operation on a Pty whose master end is gone.
	// Once the master is closed a pty is not usable anymore.
	ErrClosed = errors.New("ptyx: pty is closed")

	// ErrBadWinsize indicates a window size with zero columns or rows.
	ErrBadWinsize = errors.New("ptyx: cols and rows must be greater than zero")
)
