package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/dronecan"
)

// Bridge publishes a node's status and log broadcasts as JSON. Wire it
// through Config.OnStatus / Config.OnLog.
type Bridge struct {
	queue *Queue
	name  string
}

// statusMsg is the JSON shape of a published node status.
type statusMsg struct {
	Node             string `json:"node"`
	NodeID           uint8  `json:"node_id"`
	UptimeSec        uint32 `json:"uptime_sec"`
	Health           string `json:"health"`
	Mode             string `json:"mode"`
	VendorStatusCode uint16 `json:"vendor_status_code,omitempty"`
}

// logMsg is the JSON shape of a published log message.
type logMsg struct {
	Node   string `json:"node"`
	NodeID uint8  `json:"node_id"`
	Level  uint8  `json:"level"`
	Source string `json:"source,omitempty"`
	Text   string `json:"text"`
}

// New connects a bridge for the named node to brokerURL
// (mqtt://host:port/topic-prefix).
func New(brokerURL, nodeName string) (*Bridge, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if err := q.Connect(); err != nil {
		return nil, err
	}
	return &Bridge{queue: q, name: nodeName}, nil
}

// Close disconnects the broker session.
func (b *Bridge) Close() error {
	return b.queue.Close()
}

// PublishStatus mirrors one NodeStatus broadcast.
func (b *Bridge) PublishStatus(nodeID uint8, st dronecan.NodeStatus) {
	payload, err := json.Marshal(statusMsg{
		Node:             b.name,
		NodeID:           nodeID,
		UptimeSec:        st.UptimeSec,
		Health:           st.Health.String(),
		Mode:             st.Mode.String(),
		VendorStatusCode: st.VendorStatusCode,
	})
	if err != nil {
		glog.Errorf("status encode: %v", err)
		return
	}
	b.queue.Pub(fmt.Sprintf("node/%d/status", nodeID), payload)
}

// PublishLog mirrors one debug.LogMessage broadcast.
func (b *Bridge) PublishLog(nodeID uint8, lm dronecan.LogMessage) {
	payload, err := json.Marshal(logMsg{
		Node:   b.name,
		NodeID: nodeID,
		Level:  lm.Level,
		Source: lm.Source,
		Text:   lm.Text,
	})
	if err != nil {
		glog.Errorf("log encode: %v", err)
		return
	}
	b.queue.Pub(fmt.Sprintf("node/%d/log", nodeID), payload)
}
