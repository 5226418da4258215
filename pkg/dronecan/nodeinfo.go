package dronecan

import (
	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
)

// handleGetNodeInfo answers identification requests. The status block is
// refreshed from the live uptime counter; nothing is mutated.
func (n *Node) handleGetNodeInfo(t *canard.Transfer) {
	glog.V(1).Infof("GetNodeInfo request from %d", t.SourceNodeID)

	rsp := GetNodeInfoResponse{
		Status:        n.status,
		SoftwareMajor: n.cfg.SoftwareMajor,
		SoftwareMinor: n.cfg.SoftwareMinor,
		HardwareMajor: n.cfg.HardwareMajor,
		HardwareMinor: n.cfg.HardwareMinor,
		UniqueID:      n.pf.UniqueID(),
		Name:          n.cfg.Name,
	}
	rsp.Status.UptimeSec = n.uptime

	var buf [GetNodeInfoResponseMaxSize]byte
	sz, err := rsp.Marshal(buf[:])
	if err != nil {
		glog.Errorf("node info encode: %v", err)
		return
	}
	tid := t.TransferID
	if err := n.tp.RequestOrRespond(t.SourceNodeID, SigGetNodeInfo, DTIDGetNodeInfo, &tid, t.Priority, canard.TransferResponse, buf[:sz]); err != nil {
		glog.Errorf("node info response: %v", err)
	}
}
