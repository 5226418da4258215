package canard

import "errors"

var (
	// ErrQueueFull indicates the outbound frame queue has no room for the
	// whole transfer. Nothing is enqueued in that case.
	ErrQueueFull = errors.New("canard: tx queue full")
	// ErrPayloadTooLong indicates the payload exceeds what the transfer
	// form allows (anonymous transfers are single-frame).
	ErrPayloadTooLong = errors.New("canard: payload too long")
	// ErrInvalidNodeID indicates a node id outside 1..127 where an
	// allocated id is required.
	ErrInvalidNodeID = errors.New("canard: invalid node id")
	// ErrShortFrame indicates a frame without room for the tail byte.
	ErrShortFrame = errors.New("canard: frame too short")
	// ErrBadToggle indicates a frame violating the toggle-bit sequence.
	ErrBadToggle = errors.New("canard: toggle out of sequence")
	// ErrBadCRC indicates a multi-frame transfer failing its CRC.
	ErrBadCRC = errors.New("canard: transfer crc mismatch")
	// ErrUnexpectedFrame indicates a continuation frame with no transfer
	// in progress.
	ErrUnexpectedFrame = errors.New("canard: unexpected continuation frame")
)
