package sim

import (
	"time"

	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
	"github.com/imperator-maximus/Quassel-UGV/pkg/dronecan"
)

// allocRoundTimeout resets a half-collected unique id when the allocatee
// goes quiet mid-handshake.
const allocRoundTimeout = 500 * time.Millisecond

// Allocator is a minimal dynamic node-id allocation server: it collects
// the 16-byte unique id over up to three request stages, confirms each
// stage, and assigns an id on the full-length match.
type Allocator struct {
	tp   *canard.Session
	port *Port
	now  func() time.Time

	assigned  map[[16]byte]uint8
	inUse     map[uint8]bool
	pending   []byte
	pendingAt time.Time
	prefID    uint8
	tid       uint8
}

// NewAllocator attaches an allocator with the given (static) node id.
func NewAllocator(port *Port, nodeID uint8, now func() time.Time) *Allocator {
	a := &Allocator{
		port:     port,
		now:      now,
		assigned: make(map[[16]byte]uint8),
		inUse:    make(map[uint8]bool),
	}
	a.tp = canard.NewSession(a.accept, a.onTransfer)
	if err := a.tp.SetLocalNodeID(nodeID); err != nil {
		panic(err)
	}
	a.inUse[nodeID] = true
	return a
}

// Tick pumps the allocator's port. Unlike the engine it may process
// several frames per tick; the allocator is not the timing-constrained
// side of the handshake.
func (a *Allocator) Tick() {
	now := a.now()
	for {
		f, ok := a.port.Receive()
		if !ok {
			break
		}
		if err := a.tp.HandleRxFrame(f, now); err != nil {
			glog.V(2).Infof("allocator rx: %v", err)
		}
	}
	for txf := a.tp.PeekTx(); txf != nil; txf = a.tp.PeekTx() {
		if err := a.port.Send(*txf); err != nil {
			glog.Errorf("allocator tx: %v", err)
		}
		a.tp.PopTx()
	}
	a.tp.PurgeStale(now)
	if a.pending != nil && now.Sub(a.pendingAt) > allocRoundTimeout {
		a.pending = nil
	}
}

func (a *Allocator) accept(kind canard.TransferKind, dataTypeID uint16, src uint8) (uint64, bool) {
	if kind == canard.TransferBroadcast && dataTypeID == dronecan.DTIDAllocation {
		return dronecan.SigAllocation, true
	}
	return 0, false
}

func (a *Allocator) onTransfer(t *canard.Transfer) {
	if t.SourceNodeID != canard.BroadcastNodeID {
		return // another allocator's response, not a request
	}
	var msg dronecan.Allocation
	if err := msg.Unmarshal(t.Payload); err != nil {
		return
	}
	if msg.FirstPart {
		a.pending = nil
		a.prefID = msg.NodeID
	} else if a.pending == nil {
		// Followup without a first stage; ignore.
		return
	}
	a.pending = append(a.pending, msg.UniqueID...)
	a.pendingAt = a.now()
	if len(a.pending) > dronecan.UniqueIDLen {
		a.pending = nil
		return
	}

	if len(a.pending) < dronecan.UniqueIDLen {
		a.respond(0, a.pending)
		return
	}

	var uid [16]byte
	copy(uid[:], a.pending)
	a.pending = nil
	id, ok := a.assigned[uid]
	if !ok {
		id = a.pickID(a.prefID)
		if id == 0 {
			glog.Error("allocator: no free node ids")
			return
		}
		a.assigned[uid] = id
		a.inUse[id] = true
	}
	glog.V(1).Infof("allocator: assigning node id %d", id)
	a.respond(id, uid[:])
}

func (a *Allocator) respond(nodeID uint8, uid []byte) {
	msg := dronecan.Allocation{NodeID: nodeID, UniqueID: uid}
	var buf [dronecan.AllocationMaxSize]byte
	sz, err := msg.Marshal(buf[:])
	if err != nil {
		glog.Errorf("allocator: encode: %v", err)
		return
	}
	if err := a.tp.Broadcast(dronecan.SigAllocation, dronecan.DTIDAllocation, &a.tid, canard.PriorityLow, buf[:sz]); err != nil {
		glog.Errorf("allocator: broadcast: %v", err)
	}
}

func (a *Allocator) pickID(pref uint8) uint8 {
	if pref >= 1 && pref <= canard.MaxNodeID && !a.inUse[pref] {
		return pref
	}
	for id := canard.MaxNodeID - 2; id >= 1; id-- {
		if !a.inUse[id] {
			return id
		}
	}
	return 0
}
