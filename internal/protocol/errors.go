// Package protocol error taxonomy: every decode failure maps onto one of
// these sentinels so callers can separate framing faults from I/O faults.
package protocol

import "errors"

var (
	// ErrFrameTooLarge is returned when a frame's length prefix exceeds the
	// configured maximum. The frame is rejected before any payload is read.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

	// ErrMalformedMessage is returned when a frame's payload cannot be
	// decoded or fails validation.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrUnknownKind is returned when a decoded message declares a kind
	// outside the closed set.
	ErrUnknownKind = errors.New("protocol: unknown message kind")

	// ErrEmptyFrame is returned for a zero-length frame, which can never
	// hold a valid message.
	ErrEmptyFrame = errors.New("protocol: empty frame")
)

// IsProtocolError reports whether err is a wire protocol violation rather
// than an I/O failure. Protocol violations close the offending connection;
// they must never affect any other connection.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrFrameTooLarge) ||
		errors.Is(err, ErrMalformedMessage) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrEmptyFrame)
}
