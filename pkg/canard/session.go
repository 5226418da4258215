package canard

import (
	"math/rand"
	"time"
)

const (
	// TxQueueDepth bounds the outbound frame queue, standing in for the
	// fixed memory pool of an embedded deployment.
	TxQueueDepth = 64

	// maxTransferPayload bounds reassembly buffers. The largest transfer
	// this node exchanges is a GetNodeInfo response.
	maxTransferPayload = 512

	// staleTimeout is how long a partially received transfer may sit
	// without progress before PurgeStale drops it.
	staleTimeout = 2 * time.Second

	singleFramePayload = FrameDataLen - 1
)

// AcceptFunc is consulted before reassembly of an inbound transfer begins.
// It returns the 64-bit data type signature used to verify the transfer
// CRC, and whether the transfer is wanted at all.
type AcceptFunc func(kind TransferKind, dataTypeID uint16, sourceNodeID uint8) (signature uint64, accept bool)

// TransferFunc receives each completed inbound transfer.
type TransferFunc func(*Transfer)

// Session owns the node's view of the bus: local node id, outbound frame
// queue, and inbound reassembly state.
type Session struct {
	accept     AcceptFunc
	onTransfer TransferFunc
	localID    uint8
	discr      func() uint16

	tx []Frame
	rx map[rxKey]*rxState
}

type rxKey struct {
	kind TransferKind
	dtid uint16
	src  uint8
}

type rxState struct {
	transferID uint8
	toggle     bool
	crc        uint16
	buf        []byte
	updatedAt  time.Time
}

// NewSession creates a session with no node id allocated yet.
func NewSession(accept AcceptFunc, onTransfer TransferFunc) *Session {
	return &Session{
		accept:     accept,
		onTransfer: onTransfer,
		discr:      func() uint16 { return uint16(rand.Uint32()) & discriminatorM },
		rx:         make(map[rxKey]*rxState),
	}
}

// LocalNodeID returns the current node id, 0 while unallocated.
func (s *Session) LocalNodeID() uint8 {
	return s.localID
}

// SetLocalNodeID adopts an allocated node id. Out-of-range values are
// rejected; the id never reverts to 0 while the session lives.
func (s *Session) SetLocalNodeID(id uint8) error {
	if id < 1 || id > MaxNodeID {
		return ErrInvalidNodeID
	}
	s.localID = id
	return nil
}

// Broadcast queues a broadcast transfer. While unallocated the transfer is
// sent in anonymous form, which limits it to a single frame.
// inoutTransferID is incremented on success.
func (s *Session) Broadcast(signature uint64, dataTypeID uint16, inoutTransferID *uint8, prio Priority, payload []byte) error {
	tid := *inoutTransferID & tailTransferIDMask
	if s.localID == BroadcastNodeID {
		if len(payload) > singleFramePayload {
			return ErrPayloadTooLong
		}
		var f Frame
		f.ID = anonymousID(prio, dataTypeID, s.discr())
		f.Len = uint8(copy(f.Data[:], payload)) + 1
		f.Data[f.Len-1] = tailByte(true, true, false, tid)
		if err := s.push(f); err != nil {
			return err
		}
	} else {
		id := messageID(prio, dataTypeID, s.localID)
		if err := s.pushTransfer(id, signature, tid, payload); err != nil {
			return err
		}
	}
	*inoutTransferID = (tid + 1) & tailTransferIDMask
	return nil
}

// RequestOrRespond queues a service transfer to destNodeID. kind must be
// TransferRequest or TransferResponse. inoutTransferID is incremented on
// success (for responses the caller usually discards the increment).
func (s *Session) RequestOrRespond(destNodeID uint8, signature uint64, dataTypeID uint16, inoutTransferID *uint8, prio Priority, kind TransferKind, payload []byte) error {
	if s.localID == BroadcastNodeID || destNodeID < 1 || destNodeID > MaxNodeID {
		return ErrInvalidNodeID
	}
	id := serviceID(prio, dataTypeID, kind == TransferRequest, destNodeID, s.localID)
	tid := *inoutTransferID & tailTransferIDMask
	if err := s.pushTransfer(id, signature, tid, payload); err != nil {
		return err
	}
	*inoutTransferID = (tid + 1) & tailTransferIDMask
	return nil
}

// PeekTx returns the next outbound frame without removing it, or nil.
func (s *Session) PeekTx() *Frame {
	if len(s.tx) == 0 {
		return nil
	}
	return &s.tx[0]
}

// PopTx removes the frame returned by PeekTx.
func (s *Session) PopTx() {
	if len(s.tx) > 0 {
		s.tx = s.tx[1:]
	}
}

// TxLen reports the number of queued outbound frames.
func (s *Session) TxLen() int {
	return len(s.tx)
}

func (s *Session) push(f Frame) error {
	if len(s.tx) >= TxQueueDepth {
		return ErrQueueFull
	}
	s.tx = append(s.tx, f)
	return nil
}

// pushTransfer splits payload into frames under id. Multi-frame transfers
// carry the transfer CRC in the first two payload bytes of the first frame.
// Either every frame is enqueued or none is.
func (s *Session) pushTransfer(id uint32, signature uint64, tid uint8, payload []byte) error {
	if len(payload) <= singleFramePayload {
		var f Frame
		f.ID = id
		f.Len = uint8(copy(f.Data[:], payload)) + 1
		f.Data[f.Len-1] = tailByte(true, true, false, tid)
		return s.push(f)
	}
	if len(payload) > maxTransferPayload {
		return ErrPayloadTooLong
	}
	// 5 payload bytes fit in the first frame next to the CRC, 7 in the rest.
	frames := 1 + (len(payload)-5+singleFramePayload-1)/singleFramePayload
	if len(s.tx)+frames > TxQueueDepth {
		return ErrQueueFull
	}

	crc := transferCRC(signature, payload)
	var f Frame
	f.ID = id
	f.Data[0] = byte(crc)
	f.Data[1] = byte(crc >> 8)
	n := copy(f.Data[2:singleFramePayload], payload)
	f.Len = uint8(n) + 3
	f.Data[f.Len-1] = tailByte(true, false, false, tid)
	s.tx = append(s.tx, f)
	payload = payload[n:]

	toggle := true
	for len(payload) > 0 {
		var c Frame
		c.ID = id
		n = copy(c.Data[:singleFramePayload], payload)
		payload = payload[n:]
		c.Len = uint8(n) + 1
		c.Data[c.Len-1] = tailByte(false, len(payload) == 0, toggle, tid)
		s.tx = append(s.tx, c)
		toggle = !toggle
	}
	return nil
}

// HandleRxFrame feeds one received frame into the reassembly machinery.
// Completed transfers are delivered synchronously via the TransferFunc.
func (s *Session) HandleRxFrame(f Frame, now time.Time) error {
	if f.Len < 1 {
		return ErrShortFrame
	}
	fi := parseID(f.ID)
	if fi.kind != TransferBroadcast {
		// Service frames are point to point.
		if s.localID == BroadcastNodeID || fi.dst != s.localID {
			return nil
		}
	}
	if fi.src != BroadcastNodeID && fi.src == s.localID {
		// Own frame echoed back.
		return nil
	}
	sig, ok := s.accept(fi.kind, fi.dataTypeID, fi.src)
	if !ok {
		return nil
	}

	tail := f.Data[f.Len-1]
	payload := f.Data[:f.Len-1]
	tid := tail & tailTransferIDMask
	sot := tail&tailStartOfTransfer != 0
	eot := tail&tailEndOfTransfer != 0
	toggle := tail&tailToggle != 0

	if sot && eot {
		if toggle {
			return ErrBadToggle
		}
		s.deliver(fi, tid, append([]byte(nil), payload...))
		return nil
	}
	if fi.src == BroadcastNodeID {
		// Anonymous transfers never span frames.
		return ErrPayloadTooLong
	}

	key := rxKey{fi.kind, fi.dataTypeID, fi.src}
	if sot {
		if len(payload) < 3 {
			return ErrShortFrame
		}
		if toggle {
			return ErrBadToggle
		}
		s.rx[key] = &rxState{
			transferID: tid,
			toggle:     true,
			crc:        uint16(payload[0]) | uint16(payload[1])<<8,
			buf:        append([]byte(nil), payload[2:]...),
			updatedAt:  now,
		}
		return nil
	}

	st := s.rx[key]
	if st == nil {
		return ErrUnexpectedFrame
	}
	if tid != st.transferID || toggle != st.toggle {
		delete(s.rx, key)
		return ErrBadToggle
	}
	st.buf = append(st.buf, payload...)
	if len(st.buf) > maxTransferPayload {
		delete(s.rx, key)
		return ErrPayloadTooLong
	}
	st.toggle = !st.toggle
	st.updatedAt = now
	if !eot {
		return nil
	}
	delete(s.rx, key)
	if transferCRC(sig, st.buf) != st.crc {
		return ErrBadCRC
	}
	s.deliver(fi, tid, st.buf)
	return nil
}

// PurgeStale drops partially received transfers that made no progress
// within the stale timeout. Called from the engine's 1 Hz housekeeping.
func (s *Session) PurgeStale(now time.Time) {
	for key, st := range s.rx {
		if now.Sub(st.updatedAt) > staleTimeout {
			delete(s.rx, key)
		}
	}
}

func (s *Session) deliver(fi frameInfo, tid uint8, payload []byte) {
	s.onTransfer(&Transfer{
		Kind:         fi.kind,
		DataTypeID:   fi.dataTypeID,
		SourceNodeID: fi.src,
		TransferID:   tid,
		Priority:     fi.priority,
		Payload:      payload,
	})
}
