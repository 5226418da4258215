package dronecan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
)

// fakePlatform gives the tests a hand-cranked clock and a deterministic
// random source.
type fakePlatform struct {
	now       time.Time
	rand      uint32
	uid       [UniqueIDLen]byte
	restarted int
}

func newFakePlatform() *fakePlatform {
	p := &fakePlatform{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	for i := range p.uid {
		p.uid[i] = byte(i + 1)
	}
	return p
}

func (p *fakePlatform) Now() time.Time              { return p.now }
func (p *fakePlatform) Rand() uint32                { return p.rand }
func (p *fakePlatform) UniqueID() [UniqueIDLen]byte { return p.uid }
func (p *fakePlatform) Restart()                    { p.restarted++ }
func (p *fakePlatform) advance(d time.Duration)     { p.now = p.now.Add(d) }

// txRecord is one transfer captured by the fake transport.
type txRecord struct {
	kind       canard.TransferKind
	dataTypeID uint16
	dest       uint8
	transferID uint8
	priority   canard.Priority
	payload    []byte
}

// fakeTransport records outbound transfers instead of framing them.
type fakeTransport struct {
	localID uint8
	sent    []txRecord
}

func (f *fakeTransport) LocalNodeID() uint8 { return f.localID }

func (f *fakeTransport) SetLocalNodeID(id uint8) error {
	if id < 1 || id > canard.MaxNodeID {
		return canard.ErrInvalidNodeID
	}
	f.localID = id
	return nil
}

func (f *fakeTransport) Broadcast(signature uint64, dataTypeID uint16, inoutTransferID *uint8, prio canard.Priority, payload []byte) error {
	f.sent = append(f.sent, txRecord{
		kind:       canard.TransferBroadcast,
		dataTypeID: dataTypeID,
		transferID: *inoutTransferID,
		priority:   prio,
		payload:    append([]byte(nil), payload...),
	})
	*inoutTransferID = (*inoutTransferID + 1) & 0x1F
	return nil
}

func (f *fakeTransport) RequestOrRespond(destNodeID uint8, signature uint64, dataTypeID uint16, inoutTransferID *uint8, prio canard.Priority, kind canard.TransferKind, payload []byte) error {
	f.sent = append(f.sent, txRecord{
		kind:       kind,
		dataTypeID: dataTypeID,
		dest:       destNodeID,
		transferID: *inoutTransferID,
		priority:   prio,
		payload:    append([]byte(nil), payload...),
	})
	*inoutTransferID = (*inoutTransferID + 1) & 0x1F
	return nil
}

func (f *fakeTransport) PeekTx() *canard.Frame                       { return nil }
func (f *fakeTransport) PopTx()                                      {}
func (f *fakeTransport) TxLen() int                                  { return 0 }
func (f *fakeTransport) HandleRxFrame(canard.Frame, time.Time) error { return nil }
func (f *fakeTransport) PurgeStale(time.Time)                        {}

// take removes and returns the captured transfers matching kind and data
// type id.
func (f *fakeTransport) take(kind canard.TransferKind, dataTypeID uint16) []txRecord {
	var out, keep []txRecord
	for _, r := range f.sent {
		if r.kind == kind && r.dataTypeID == dataTypeID {
			out = append(out, r)
		} else {
			keep = append(keep, r)
		}
	}
	f.sent = keep
	return out
}

type nopBus struct{}

func (nopBus) Send(canard.Frame) error       { return nil }
func (nopBus) Receive() (canard.Frame, bool) { return canard.Frame{}, false }

// newTestNode builds a node on a silent bus and swaps the transport for
// the recording fake.
func newTestNode(cfg Config) (*Node, *fakeTransport, *fakePlatform) {
	pf, ok := cfg.Platform.(*fakePlatform)
	if !ok {
		pf = newFakePlatform()
		cfg.Platform = pf
	}
	n := NewNode(cfg, nopBus{})
	ft := &fakeTransport{localID: cfg.NodeID}
	n.tp = ft
	return n, ft, pf
}

func request(src uint8, dataTypeID uint16, tid uint8, payload []byte) *canard.Transfer {
	return &canard.Transfer{
		Kind:         canard.TransferRequest,
		DataTypeID:   dataTypeID,
		SourceNodeID: src,
		TransferID:   tid,
		Priority:     canard.PriorityMedium,
		Payload:      payload,
	}
}

func TestStatusBroadcastCadence(t *testing.T) {
	n, ft, pf := newTestNode(Config{Name: "test", NodeID: 10})

	n.Cycle()
	require.Empty(t, ft.take(canard.TransferBroadcast, DTIDNodeStatus), "no status before the first full second")

	pf.advance(time.Second)
	n.Cycle()
	pf.advance(500 * time.Millisecond)
	n.Cycle()
	pf.advance(500 * time.Millisecond)
	n.Cycle()

	recs := ft.take(canard.TransferBroadcast, DTIDNodeStatus)
	require.Len(t, recs, 2)

	var st NodeStatus
	require.NoError(t, st.Unmarshal(recs[0].payload))
	require.Equal(t, uint32(0), st.UptimeSec)
	require.Equal(t, HealthOK, st.Health)
	require.Equal(t, ModeOperational, st.Mode)

	require.NoError(t, st.Unmarshal(recs[1].payload))
	require.Equal(t, uint32(1), st.UptimeSec)
}

func TestStatusSuppressedWhileUnallocated(t *testing.T) {
	n, ft, pf := newTestNode(Config{Name: "test"})
	for i := 0; i < 5; i++ {
		pf.advance(time.Second)
		n.Cycle()
	}
	require.Empty(t, ft.take(canard.TransferBroadcast, DTIDNodeStatus))
	require.NotEmpty(t, ft.take(canard.TransferBroadcast, DTIDAllocation), "only allocation traffic may leave an anonymous node")
}

func TestStatusDuringFirmwarePull(t *testing.T) {
	n, ft, pf := newTestNode(Config{Name: "test", NodeID: 10})
	require.NoError(t, n.StartFirmwarePull(30, "fw/img.bin"))
	n.fw.offset = 4096

	pf.advance(time.Second)
	n.Cycle()

	recs := ft.take(canard.TransferBroadcast, DTIDNodeStatus)
	require.Len(t, recs, 1)
	var st NodeStatus
	require.NoError(t, st.Unmarshal(recs[0].payload))
	require.Equal(t, ModeSoftwareUpdate, st.Mode)
	require.Equal(t, uint16(4), st.VendorStatusCode, "vendor code reports progress in KiB")
}

func TestStatusHook(t *testing.T) {
	var seen []NodeStatus
	n, _, pf := newTestNode(Config{
		Name:     "test",
		NodeID:   10,
		OnStatus: func(st NodeStatus) { seen = append(seen, st) },
	})
	pf.advance(time.Second)
	n.Cycle()
	require.Len(t, seen, 1)
}

func TestGetNodeInfo(t *testing.T) {
	n, ft, pf := newTestNode(Config{
		Name:          "org.quassel.ugv.test",
		NodeID:        10,
		SoftwareMajor: 2,
		SoftwareMinor: 3,
		HardwareMajor: 1,
		HardwareMinor: 4,
	})
	n.uptime = 99

	n.handleTransfer(request(70, DTIDGetNodeInfo, 5, nil))

	recs := ft.take(canard.TransferResponse, DTIDGetNodeInfo)
	require.Len(t, recs, 1)
	require.Equal(t, uint8(70), recs[0].dest)
	require.Equal(t, uint8(5), recs[0].transferID, "response reuses the request transfer id")

	var info GetNodeInfoResponse
	require.NoError(t, info.Unmarshal(recs[0].payload))
	require.Equal(t, "org.quassel.ugv.test", info.Name)
	require.Equal(t, uint8(2), info.SoftwareMajor)
	require.Equal(t, uint8(3), info.SoftwareMinor)
	require.Equal(t, uint8(1), info.HardwareMajor)
	require.Equal(t, uint8(4), info.HardwareMinor)
	require.Equal(t, pf.uid, info.UniqueID)
	require.Equal(t, uint32(99), info.Status.UptimeSec, "status block reflects the live uptime")
}

func TestRestartNode(t *testing.T) {
	n, ft, pf := newTestNode(Config{Name: "test", NodeID: 10})

	var bad [RestartNodeRequestSize]byte
	req := RestartNodeRequest{Magic: 0xDEADBEEF}
	sz, err := req.Marshal(bad[:])
	require.NoError(t, err)
	n.handleTransfer(request(70, DTIDRestartNode, 0, bad[:sz]))

	recs := ft.take(canard.TransferResponse, DTIDRestartNode)
	require.Len(t, recs, 1)
	var rsp RestartNodeResponse
	require.NoError(t, rsp.Unmarshal(recs[0].payload))
	require.False(t, rsp.OK)
	require.Equal(t, 0, pf.restarted)

	var good [RestartNodeRequestSize]byte
	req.Magic = RestartNodeMagic
	sz, err = req.Marshal(good[:])
	require.NoError(t, err)
	n.handleTransfer(request(70, DTIDRestartNode, 1, good[:sz]))

	recs = ft.take(canard.TransferResponse, DTIDRestartNode)
	require.Len(t, recs, 1)
	require.NoError(t, rsp.Unmarshal(recs[0].payload))
	require.True(t, rsp.OK)
	require.Equal(t, 1, pf.restarted)
}

func TestLogBroadcast(t *testing.T) {
	n, ft, _ := newTestNode(Config{Name: "test", NodeID: 10})
	require.NoError(t, n.LogBroadcast(LogLevelWarning, "nav", "gps lost"))

	recs := ft.take(canard.TransferBroadcast, DTIDLogMessage)
	require.Len(t, recs, 1)
	var lm LogMessage
	require.NoError(t, lm.Unmarshal(recs[0].payload))
	require.Equal(t, LogLevelWarning, lm.Level)
	require.Equal(t, "nav", lm.Source)
	require.Equal(t, "gps lost", lm.Text)
}

func TestLogBroadcastSuppressedWhileUnallocated(t *testing.T) {
	n, ft, _ := newTestNode(Config{Name: "test"})
	require.NoError(t, n.LogBroadcast(LogLevelInfo, "nav", "hi"))
	require.Empty(t, ft.take(canard.TransferBroadcast, DTIDLogMessage))
}
