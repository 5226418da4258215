package canard

import "fmt"

// FrameDataLen is the payload capacity of a classic CAN frame.
const FrameDataLen = 8

// Frame is a single CAN 2.0B frame with a 29-bit extended identifier.
type Frame struct {
	ID   uint32
	Data [FrameDataLen]byte
	Len  uint8
}

// String formats the frame for diagnostics.
func (f Frame) String() string {
	return fmt.Sprintf("%08X#% X", f.ID, f.Data[:f.Len])
}

// Tail byte layout (last payload byte of every frame).
const (
	tailStartOfTransfer = 0x80
	tailEndOfTransfer   = 0x40
	tailToggle          = 0x20
	tailTransferIDMask  = 0x1F
)

func tailByte(start, end, toggle bool, transferID uint8) byte {
	b := transferID & tailTransferIDMask
	if start {
		b |= tailStartOfTransfer
	}
	if end {
		b |= tailEndOfTransfer
	}
	if toggle {
		b |= tailToggle
	}
	return b
}

// TransferKind classifies a transfer on the bus.
type TransferKind uint8

// Transfer kinds.
const (
	TransferBroadcast TransferKind = iota
	TransferRequest
	TransferResponse
)

func (k TransferKind) String() string {
	switch k {
	case TransferBroadcast:
		return "broadcast"
	case TransferRequest:
		return "request"
	case TransferResponse:
		return "response"
	}
	return "unknown"
}

// Priority is the 5-bit transfer priority. Lower values win arbitration.
type Priority uint8

// Standard priorities, matching the libcanard constants.
const (
	PriorityHighest Priority = 0
	PriorityHigh    Priority = 16
	PriorityMedium  Priority = 20
	PriorityLow     Priority = 24
	PriorityLowest  Priority = 31
)

// Transfer is one reassembled application-level message.
type Transfer struct {
	Kind         TransferKind
	DataTypeID   uint16
	SourceNodeID uint8
	TransferID   uint8
	Priority     Priority
	Payload      []byte
}
