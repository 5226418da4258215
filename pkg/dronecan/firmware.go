package dronecan

import (
	"time"

	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
)

// fwSession is the firmware read client state. nodeID 0 is the "no
// session" sentinel; at most one session is active at a time.
type fwSession struct {
	nodeID     uint8
	path       string
	transferID uint8
	lastRead   time.Time
	readArmed  bool
	offset     uint32
}

func (s *fwSession) active() bool {
	return s.nodeID != canard.BroadcastNodeID
}

// StartFirmwarePull begins the client role: fetch the image at path from
// serverNodeID in chunked reads.
func (n *Node) StartFirmwarePull(serverNodeID uint8, path string) error {
	if serverNodeID == canard.BroadcastNodeID || serverNodeID > canard.MaxNodeID {
		return canard.ErrInvalidNodeID
	}
	if n.fw.active() {
		return ErrUpdateInProgress
	}
	if len(path) > FilePathMaxLen {
		return ErrFieldTooLong
	}
	n.fw = fwSession{nodeID: serverNodeID, path: path}
	return nil
}

// handleBeginFirmwareUpdate serves the update request. With a boot
// handoff region configured the node persists the server details, flushes
// the OK response, and restarts into the bootloader. Otherwise it pulls
// the image itself via file reads.
func (n *Node) handleBeginFirmwareUpdate(t *canard.Transfer) {
	var req BeginFirmwareUpdateRequest
	if err := req.Unmarshal(t.Payload); err != nil {
		return
	}
	glog.Infof("firmware update request from node %d, path %q", t.SourceNodeID, req.Path)

	server := req.SourceNodeID
	if server == canard.BroadcastNodeID {
		server = t.SourceNodeID
	}

	if n.cfg.Handoff != nil {
		rec := BootRecord{
			ServerNodeID: server,
			LocalNodeID:  n.tp.LocalNodeID(),
			Path:         req.Path,
		}
		if err := n.cfg.Handoff.Store(rec); err != nil {
			glog.Errorf("boot handoff store: %v", err)
			n.respondBeginUpdate(t, FirmwareUpdateErrorUnknown)
			return
		}
		n.respondBeginUpdate(t, FirmwareUpdateErrorOK)
		n.drainTx(beginUpdateDrainIters)
		glog.Warning("restarting into bootloader for firmware update")
		n.pf.Restart()
		return
	}

	if n.fw.active() {
		n.respondBeginUpdate(t, FirmwareUpdateErrorInProgress)
		return
	}
	n.fw = fwSession{nodeID: server, path: req.Path}
	n.respondBeginUpdate(t, FirmwareUpdateErrorOK)
}

func (n *Node) respondBeginUpdate(t *canard.Transfer, code uint8) {
	rsp := BeginFirmwareUpdateResponse{Error: code}
	var buf [BeginFirmwareUpdateRespSize]byte
	sz, _ := rsp.Marshal(buf[:])
	tid := t.TransferID
	if err := n.tp.RequestOrRespond(t.SourceNodeID, SigBeginFirmwareUpdate, DTIDBeginFirmwareUpdate, &tid, t.Priority, canard.TransferResponse, buf[:sz]); err != nil {
		glog.Errorf("begin update response: %v", err)
	}
}

// firmwareTick issues the next chunked read once the quiet period has
// passed. One read is outstanding at most.
func (n *Node) firmwareTick(now time.Time) {
	if !n.fw.active() {
		return
	}
	if n.fw.readArmed && now.Sub(n.fw.lastRead) < firmwareReadQuietPeriod {
		// the server may still be responding
		return
	}
	n.fw.lastRead = now
	n.fw.readArmed = true

	req := FileReadRequest{Offset: n.fw.offset, Path: n.fw.path}
	var buf [FileReadRequestMaxSize]byte
	sz, err := req.Marshal(buf[:])
	if err != nil {
		glog.Errorf("file read encode: %v", err)
		return
	}
	// Elevated priority so update traffic outruns the heartbeat chatter.
	if err := n.tp.RequestOrRespond(n.fw.nodeID, SigFileRead, DTIDFileRead, &n.fw.transferID, canard.PriorityHigh, canard.TransferRequest, buf[:sz]); err != nil {
		glog.Errorf("file read request: %v", err)
	}
}

// handleFileReadResponse advances the pull session. Responses that do not
// match the outstanding request's transfer id and server node are someone
// else's business.
func (n *Node) handleFileReadResponse(t *canard.Transfer) {
	if (t.TransferID+1)&0x1F != n.fw.transferID || t.SourceNodeID != n.fw.nodeID {
		glog.V(1).Info("file read response: not for us")
		return
	}
	var rsp FileReadResponse
	if err := rsp.Unmarshal(t.Payload); err != nil {
		glog.Warningf("file read response: bad packet: %v", err)
		return
	}
	if rsp.Error != FileErrorOK {
		glog.Warningf("firmware read failed with error %d, aborting", rsp.Error)
		n.fw = fwSession{}
		return
	}

	if n.cfg.Sink != nil {
		if err := n.cfg.Sink.WriteChunk(n.fw.offset, rsp.Data); err != nil {
			glog.Errorf("firmware sink: %v", err)
			n.fw = fwSession{}
			return
		}
	}
	n.fw.offset += uint32(len(rsp.Data))

	if len(rsp.Data) < FileReadChunkSize {
		glog.Infof("firmware transfer complete, %d bytes", n.fw.offset)
		n.fw = fwSession{}
		return
	}

	// Trigger the next read on the very next tick.
	n.fw.readArmed = false
}
