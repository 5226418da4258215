package dronecan

import (
	"bytes"
	"time"

	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
)

// dnaSession is the allocation client state. It only matters while the
// node id is unallocated; allocation is terminal for the process lifetime.
type dnaSession struct {
	nextRequestAt time.Time
	uidOffset     int
	transferID    uint8
}

func (n *Node) allocationDelay() time.Duration {
	followup := time.Duration(n.pf.Rand()%uint32(AllocationMaxFollowupDelay/time.Millisecond)) * time.Millisecond
	return AllocationMinRequestPeriod + followup
}

// dnaTick broadcasts the next allocation request when due.
func (n *Node) dnaTick(now time.Time) {
	if n.Allocated() {
		return
	}
	if n.dna.nextRequestAt.After(now) {
		return
	}
	n.dna.nextRequestAt = now.Add(n.allocationDelay())

	pref := n.preferredNodeID()
	var req [1 + AllocationUniqueIDChunk]byte
	req[0] = pref << 1
	if n.dna.uidOffset == 0 {
		req[0] |= 1 // first part of unique id
	}
	uid := n.pf.UniqueID()
	size := UniqueIDLen - n.dna.uidOffset
	if size > AllocationUniqueIDChunk {
		size = AllocationUniqueIDChunk
	}
	copy(req[1:], uid[n.dna.uidOffset:n.dna.uidOffset+size])

	glog.V(1).Infof("requesting node id %d (uid offset %d)", pref, n.dna.uidOffset)
	if err := n.tp.Broadcast(SigAllocation, DTIDAllocation, &n.dna.transferID, canard.PriorityLow, req[:1+size]); err != nil {
		glog.Errorf("allocation request: %v", err)
	}

	// If a stage confirmation arrives it moves the offset forward again
	// before the next request goes out.
	n.dna.uidOffset = 0
}

// handleAllocation processes an allocation broadcast: contention from
// other anonymous nodes, stage confirmations, and the terminal full-length
// match that assigns our id.
func (n *Node) handleAllocation(t *canard.Transfer) {
	if n.Allocated() {
		return
	}

	// Rule C: any allocation traffic restarts the randomized window.
	now := n.pf.Now()
	n.dna.nextRequestAt = now.Add(n.allocationDelay())

	if t.SourceNodeID == canard.BroadcastNodeID {
		glog.V(1).Info("allocation request from another allocatee")
		n.dna.uidOffset = 0
		return
	}

	var msg Allocation
	if err := msg.Unmarshal(t.Payload); err != nil {
		return
	}

	uid := n.pf.UniqueID()
	if len(msg.UniqueID) > UniqueIDLen || !bytes.Equal(msg.UniqueID, uid[:len(msg.UniqueID)]) {
		glog.V(1).Info("allocation round lost: unique id mismatch")
		n.dna.uidOffset = 0
		return
	}

	if len(msg.UniqueID) < UniqueIDLen {
		// Stage confirmed; answer with the next chunk sooner.
		n.dna.uidOffset = len(msg.UniqueID)
		n.dna.nextRequestAt = n.dna.nextRequestAt.Add(-AllocationMinRequestPeriod)
		return
	}

	if err := n.tp.SetLocalNodeID(msg.NodeID); err != nil {
		glog.Errorf("allocator offered invalid node id %d: %v", msg.NodeID, err)
		n.dna.uidOffset = 0
		return
	}
	glog.Infof("node id allocated: %d", msg.NodeID)
}

// preferredNodeID reads the NODEID parameter. The configured default is
// stored back on first use so the allocator sees a stable preference.
func (n *Node) preferredNodeID() uint8 {
	v, ok := n.GetParameter("NODEID")
	if ok && v >= 1 && v <= float32(canard.MaxNodeID) {
		return uint8(v)
	}
	if n.paramIndex("NODEID") >= 0 {
		glog.Info("no NODEID in storage, persisting default")
		if err := n.SetParameter("NODEID", float32(n.cfg.PreferredNodeID)); err != nil {
			glog.Errorf("persisting NODEID: %v", err)
		}
	}
	return n.cfg.PreferredNodeID
}
