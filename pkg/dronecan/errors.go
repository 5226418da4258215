package dronecan

import "errors"

var (
	// ErrShortPayload indicates a payload too short to decode.
	ErrShortPayload = errors.New("dronecan: short payload")
	// ErrShortBuffer indicates an encode buffer too small for the message.
	ErrShortBuffer = errors.New("dronecan: buffer too small")
	// ErrFieldTooLong indicates a variable-length field over its DSDL bound.
	ErrFieldTooLong = errors.New("dronecan: field too long")
	// ErrUnknownParameter indicates a parameter name not in the static list.
	ErrUnknownParameter = errors.New("dronecan: unknown parameter")
	// ErrUpdateInProgress indicates a firmware session is already active.
	ErrUpdateInProgress = errors.New("dronecan: firmware update in progress")
)
