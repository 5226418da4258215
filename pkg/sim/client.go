package sim

import (
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
	"github.com/imperator-maximus/Quassel-UGV/pkg/dronecan"
)

// ErrTimeout indicates no matching response arrived in time.
var ErrTimeout = errors.New("sim: request timed out")

// Client is a ground-station style session: it sends service requests to
// nodes on the bus and collects their responses and broadcasts.
type Client struct {
	tp   *canard.Session
	port *Port
	now  func() time.Time

	tids  map[uint16]uint8
	inbox []*canard.Transfer
}

// NewClient attaches a client with the given (static) node id.
func NewClient(port *Port, nodeID uint8, now func() time.Time) *Client {
	c := &Client{
		port: port,
		now:  now,
		tids: make(map[uint16]uint8),
	}
	c.tp = canard.NewSession(c.accept, c.onTransfer)
	if err := c.tp.SetLocalNodeID(nodeID); err != nil {
		panic(err)
	}
	return c
}

// NodeID returns the client's node id.
func (c *Client) NodeID() uint8 {
	return c.tp.LocalNodeID()
}

// Tick pumps the client's port.
func (c *Client) Tick() {
	now := c.now()
	for {
		f, ok := c.port.Receive()
		if !ok {
			break
		}
		if err := c.tp.HandleRxFrame(f, now); err != nil {
			glog.V(2).Infof("client rx: %v", err)
		}
	}
	for txf := c.tp.PeekTx(); txf != nil; txf = c.tp.PeekTx() {
		if err := c.port.Send(*txf); err != nil {
			glog.Errorf("client tx: %v", err)
		}
		c.tp.PopTx()
	}
	c.tp.PurgeStale(now)
}

// Request sends one service request and waits for the matching response,
// pumping the bus meanwhile. pump, when non-nil, is called each poll so
// the caller can drive the other bus participants in lockstep.
func (c *Client) Request(dest uint8, dataTypeID uint16, signature uint64, payload []byte, timeout time.Duration, pump func()) (*canard.Transfer, error) {
	tid := c.tids[dataTypeID]
	err := c.tp.RequestOrRespond(dest, signature, dataTypeID, &tid, canard.PriorityMedium, canard.TransferRequest, payload)
	c.tids[dataTypeID] = tid
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.Tick()
		if pump != nil {
			pump()
		}
		for i, t := range c.inbox {
			if t.Kind == canard.TransferResponse && t.DataTypeID == dataTypeID && t.SourceNodeID == dest {
				c.inbox = append(c.inbox[:i], c.inbox[i+1:]...)
				return t, nil
			}
		}
		time.Sleep(200 * time.Microsecond)
	}
	return nil, ErrTimeout
}

// TakeBroadcasts drains collected broadcasts of the given type.
func (c *Client) TakeBroadcasts(dataTypeID uint16) []*canard.Transfer {
	var out, keep []*canard.Transfer
	for _, t := range c.inbox {
		if t.Kind == canard.TransferBroadcast && t.DataTypeID == dataTypeID {
			out = append(out, t)
		} else {
			keep = append(keep, t)
		}
	}
	c.inbox = keep
	return out
}

func (c *Client) accept(kind canard.TransferKind, dataTypeID uint16, src uint8) (uint64, bool) {
	switch kind {
	case canard.TransferResponse:
		switch dataTypeID {
		case dronecan.DTIDGetNodeInfo:
			return dronecan.SigGetNodeInfo, true
		case dronecan.DTIDParamGetSet:
			return dronecan.SigParamGetSet, true
		case dronecan.DTIDParamExecuteOpcode:
			return dronecan.SigParamExecuteOpcode, true
		case dronecan.DTIDRestartNode:
			return dronecan.SigRestartNode, true
		case dronecan.DTIDBeginFirmwareUpdate:
			return dronecan.SigBeginFirmwareUpdate, true
		case dronecan.DTIDFileRead:
			return dronecan.SigFileRead, true
		}
	case canard.TransferBroadcast:
		switch dataTypeID {
		case dronecan.DTIDNodeStatus:
			return dronecan.SigNodeStatus, true
		case dronecan.DTIDLogMessage:
			return dronecan.SigLogMessage, true
		}
	}
	return 0, false
}

func (c *Client) onTransfer(t *canard.Transfer) {
	if len(c.inbox) >= 64 {
		c.inbox = c.inbox[1:]
	}
	c.inbox = append(c.inbox, t)
}
