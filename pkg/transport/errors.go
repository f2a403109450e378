package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed link.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidAddress is returned when no usable peer address is known.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrNoConn is returned when a link is created without a connection.
	ErrNoConn = errors.New("transport: no connection configured")

	// ErrSendFailed is returned when writing a frame fails.
	ErrSendFailed = errors.New("transport: send failed")

	// ErrReceiveFailed is returned when the read loop stopped on an error.
	ErrReceiveFailed = errors.New("transport: receive failed")

	// ErrFrameTooLarge is returned when a frame exceeds the maximum size.
	ErrFrameTooLarge = errors.New("transport: frame too large")
)
