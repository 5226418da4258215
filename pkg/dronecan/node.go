package dronecan

import (
	"time"

	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
)

// DefaultPreferredNodeID is requested from the allocator when no NODEID
// parameter is stored and the config names no preference.
const DefaultPreferredNodeID uint8 = 73

// Bus is the physical CAN controller: single-frame, polling, non-blocking.
type Bus interface {
	Send(canard.Frame) error
	Receive() (canard.Frame, bool)
}

// Transport is the transfer session collaborator. *canard.Session
// implements it.
type Transport interface {
	LocalNodeID() uint8
	SetLocalNodeID(uint8) error
	Broadcast(signature uint64, dataTypeID uint16, inoutTransferID *uint8, prio canard.Priority, payload []byte) error
	RequestOrRespond(destNodeID uint8, signature uint64, dataTypeID uint16, inoutTransferID *uint8, prio canard.Priority, kind canard.TransferKind, payload []byte) error
	PeekTx() *canard.Frame
	PopTx()
	TxLen() int
	HandleRxFrame(canard.Frame, time.Time) error
	PurgeStale(time.Time)
}

// Config describes one node.
type Config struct {
	// Name is reported in GetNodeInfo responses.
	Name string

	// NodeID pins a static node id. 0 means negotiate one via dynamic
	// allocation.
	NodeID uint8

	// PreferredNodeID is requested from the allocator. 0 selects
	// DefaultPreferredNodeID.
	PreferredNodeID uint8

	SoftwareMajor uint8
	SoftwareMinor uint8
	HardwareMajor uint8
	HardwareMinor uint8

	// Params is the static parameter list. Order is the storage index
	// contract; it must not change between firmware revisions that share
	// a store.
	Params []Param

	// Store persists parameter slots. nil disables persistence.
	Store Store

	// Handoff, when set, selects the reboot-into-bootloader path for
	// BeginFirmwareUpdate. When nil the node pulls the image itself via
	// file reads.
	Handoff Handoff

	// Sink receives pulled firmware chunks.
	Sink FirmwareSink

	Platform Platform

	// OnStatus and OnLog observe outbound status and log broadcasts
	// (telemetry bridges). Both may be nil.
	OnStatus func(NodeStatus)
	OnLog    func(LogMessage)
}

// Node is the protocol engine. Not safe for concurrent use: all methods
// must be called from the same goroutine that runs Cycle.
type Node struct {
	cfg    Config
	tp     Transport
	bus    Bus
	pf     Platform
	params []Param

	uptime uint32
	status NodeStatus
	lastHz time.Time
	haveHz bool

	dna dnaSession
	fw  fwSession

	statusTID  uint8
	logTID     uint8
	restartTID uint8
}

// NewNode creates the engine on top of a physical bus. The parameter list
// is loaded from the store before the first tick.
func NewNode(cfg Config, bus Bus) *Node {
	if cfg.Platform == nil {
		panic("dronecan: Config.Platform is required")
	}
	if cfg.PreferredNodeID == 0 {
		cfg.PreferredNodeID = DefaultPreferredNodeID
	}
	n := &Node{
		cfg:    cfg,
		bus:    bus,
		pf:     cfg.Platform,
		params: append([]Param(nil), cfg.Params...),
	}
	n.tp = canard.NewSession(n.shouldAccept, n.handleTransfer)
	if cfg.NodeID > 0 {
		if err := n.tp.SetLocalNodeID(cfg.NodeID); err != nil {
			glog.Errorf("static node id %d rejected: %v", cfg.NodeID, err)
		}
	} else {
		glog.Info("waiting for DNA node allocation")
	}
	n.loadParams()
	return n
}

// Cycle runs one engine tick: frame pump (RX then TX), DNA tick, 1 Hz
// tasks, pending firmware read. Call as quickly as practical.
func (n *Node) Cycle() {
	now := n.pf.Now()
	n.processRx(now)
	n.processTx()
	n.dnaTick(now)
	if !n.haveHz {
		n.haveHz = true
		n.lastHz = now
	}
	if now.Sub(n.lastHz) >= time.Second {
		n.lastHz = now
		n.process1Hz(now)
	}
	n.firmwareTick(now)
}

// NodeID returns the current node id, 0 while unallocated.
func (n *Node) NodeID() uint8 {
	return n.tp.LocalNodeID()
}

// Allocated reports whether a node id is held.
func (n *Node) Allocated() bool {
	return n.tp.LocalNodeID() != canard.BroadcastNodeID
}

// Status returns the last broadcast node status snapshot.
func (n *Node) Status() NodeStatus {
	return n.status
}

// Uptime returns the live uptime counter.
func (n *Node) Uptime() uint32 {
	return n.uptime
}

func (n *Node) processRx(now time.Time) {
	f, ok := n.bus.Receive()
	if !ok {
		return
	}
	if err := n.tp.HandleRxFrame(f, now); err != nil {
		glog.V(2).Infof("rx frame dropped: %v", err)
	}
}

func (n *Node) processTx() {
	for txf := n.tp.PeekTx(); txf != nil; txf = n.tp.PeekTx() {
		if err := n.bus.Send(*txf); err != nil {
			glog.Errorf("can tx: %v", err)
		}
		n.tp.PopTx()
	}
}

// drainTx busy-waits to flush queued frames, bounded by iters. Only used
// on the restart paths, where losing the queued response would strand the
// peer.
func (n *Node) drainTx(iters int) {
	for i := 0; i < iters && n.tp.TxLen() > 0; i++ {
		n.processTx()
		time.Sleep(time.Millisecond)
	}
}

func (n *Node) process1Hz(now time.Time) {
	n.tp.PurgeStale(now)
	n.sendNodeStatus()
}

// LogBroadcast emits a debug.LogMessage broadcast. A no-op while the node
// id is unallocated.
func (n *Node) LogBroadcast(level uint8, source, text string) error {
	if !n.Allocated() {
		return nil
	}
	lm := LogMessage{Level: level, Source: source, Text: text}
	var buf [LogMessageMaxSize]byte
	sz, err := lm.Marshal(buf[:])
	if err != nil {
		return err
	}
	if err := n.tp.Broadcast(SigLogMessage, DTIDLogMessage, &n.logTID, canard.PriorityLowest, buf[:sz]); err != nil {
		return err
	}
	if n.cfg.OnLog != nil {
		n.cfg.OnLog(lm)
	}
	return nil
}

func (n *Node) handleRestartNode(t *canard.Transfer) {
	var req RestartNodeRequest
	if err := req.Unmarshal(t.Payload); err != nil {
		return
	}
	rsp := RestartNodeResponse{OK: req.Magic == RestartNodeMagic}
	var buf [RestartNodeResponseSize]byte
	sz, _ := rsp.Marshal(buf[:])
	tid := t.TransferID
	if err := n.tp.RequestOrRespond(t.SourceNodeID, SigRestartNode, DTIDRestartNode, &tid, t.Priority, canard.TransferResponse, buf[:sz]); err != nil {
		glog.Errorf("restart response: %v", err)
	}
	if !rsp.OK {
		glog.Warningf("restart request from %d with bad magic", t.SourceNodeID)
		return
	}
	glog.Warningf("restart requested by node %d", t.SourceNodeID)
	n.drainTx(beginUpdateDrainIters)
	n.pf.Restart()
}
