package dronecan

import (
	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
)

// sendNodeStatus broadcasts the 1 Hz heartbeat. This is what makes the
// node show up in a GUI tool and in flight controller logs. While the
// node id is unallocated the broadcast is suppressed; only DNA traffic
// may leave an anonymous node.
func (n *Node) sendNodeStatus() {
	if !n.Allocated() {
		return
	}

	n.status.UptimeSec = n.uptime
	n.uptime++
	n.status.Health = HealthOK
	n.status.Mode = ModeOperational
	n.status.SubMode = 0
	n.status.VendorStatusCode = 0

	// During a firmware pull, report progress in KiB so the user can
	// watch it climb.
	if n.fw.active() {
		n.status.Mode = ModeSoftwareUpdate
		n.status.VendorStatusCode = uint16(n.fw.offset / 1024)
	}

	var buf [NodeStatusMaxSize]byte
	sz, _ := n.status.Marshal(buf[:])
	if err := n.tp.Broadcast(SigNodeStatus, DTIDNodeStatus, &n.statusTID, canard.PriorityLow, buf[:sz]); err != nil {
		glog.Errorf("node status broadcast: %v", err)
	}
	if n.cfg.OnStatus != nil {
		n.cfg.OnStatus(n.status)
	}
}
