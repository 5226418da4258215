package dronecan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
)

// chunkSink collects pulled chunks, recording the offsets they arrived at.
type chunkSink struct {
	data    []byte
	offsets []uint32
	err     error
}

func (s *chunkSink) WriteChunk(offset uint32, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.offsets = append(s.offsets, offset)
	if end := int(offset) + len(data); end > len(s.data) {
		s.data = append(s.data, make([]byte, end-len(s.data))...)
	}
	copy(s.data[offset:], data)
	return nil
}

func fileReadResponse(src uint8, tid uint8, rsp FileReadResponse) *canard.Transfer {
	var buf [FileReadResponseMaxSize]byte
	sz, _ := rsp.Marshal(buf[:])
	return &canard.Transfer{
		Kind:         canard.TransferResponse,
		DataTypeID:   DTIDFileRead,
		SourceNodeID: src,
		TransferID:   tid,
		Priority:     canard.PriorityHigh,
		Payload:      buf[:sz],
	}
}

// takeFileReadRequest runs the firmware tick and returns the read request
// it issued.
func takeFileReadRequest(t *testing.T, n *Node, ft *fakeTransport, pf *fakePlatform) (txRecord, FileReadRequest) {
	t.Helper()
	n.firmwareTick(pf.now)
	recs := ft.take(canard.TransferRequest, DTIDFileRead)
	require.Len(t, recs, 1)
	var req FileReadRequest
	require.NoError(t, req.Unmarshal(recs[0].payload))
	return recs[0], req
}

func TestFirmwarePullFlow(t *testing.T) {
	sink := &chunkSink{}
	n, ft, pf := newTestNode(Config{Name: "test", NodeID: 10, Sink: sink})
	require.NoError(t, n.StartFirmwarePull(30, "fw/img.bin"))

	rec, req := takeFileReadRequest(t, n, ft, pf)
	require.Equal(t, uint8(30), rec.dest)
	require.Equal(t, canard.PriorityHigh, rec.priority, "update traffic runs at elevated priority")
	require.Equal(t, uint32(0), req.Offset)
	require.Equal(t, "fw/img.bin", req.Path)

	// Full chunk: the session advances and the next read is armed for the
	// following tick, quiet period skipped.
	full := make([]byte, FileReadChunkSize)
	for i := range full {
		full[i] = byte(i)
	}
	n.handleTransfer(fileReadResponse(30, rec.transferID, FileReadResponse{Data: full}))
	pf.advance(time.Millisecond)
	rec, req = takeFileReadRequest(t, n, ft, pf)
	require.Equal(t, uint32(FileReadChunkSize), req.Offset)

	// Short chunk ends the transfer.
	n.handleTransfer(fileReadResponse(30, rec.transferID, FileReadResponse{Data: full[:10]}))
	require.False(t, n.fw.active())
	require.Equal(t, []uint32{0, FileReadChunkSize}, sink.offsets)
	require.Len(t, sink.data, FileReadChunkSize+10)

	// No further reads once the session is closed.
	pf.advance(time.Hour)
	n.firmwareTick(pf.now)
	require.Empty(t, ft.take(canard.TransferRequest, DTIDFileRead))
}

func TestFirmwareQuietPeriod(t *testing.T) {
	n, ft, pf := newTestNode(Config{Name: "test", NodeID: 10, Sink: &chunkSink{}})
	require.NoError(t, n.StartFirmwarePull(30, "fw/img.bin"))
	takeFileReadRequest(t, n, ft, pf)

	// While a read is outstanding nothing is retried before the quiet
	// period elapses.
	pf.advance(firmwareReadQuietPeriod - time.Millisecond)
	n.firmwareTick(pf.now)
	require.Empty(t, ft.take(canard.TransferRequest, DTIDFileRead))

	pf.advance(time.Millisecond)
	_, req := takeFileReadRequest(t, n, ft, pf)
	require.Equal(t, uint32(0), req.Offset, "the retry re-reads the same offset")
}

func TestFileReadResponseCorrelation(t *testing.T) {
	sink := &chunkSink{}
	n, ft, pf := newTestNode(Config{Name: "test", NodeID: 10, Sink: sink})
	require.NoError(t, n.StartFirmwarePull(30, "fw/img.bin"))
	rec, _ := takeFileReadRequest(t, n, ft, pf)

	full := make([]byte, FileReadChunkSize)

	// Off-by-one transfer id: stale response, ignored.
	n.handleTransfer(fileReadResponse(30, (rec.transferID+1)&0x1F, FileReadResponse{Data: full}))
	require.Empty(t, sink.offsets)
	require.Equal(t, uint32(0), n.fw.offset)

	// Right transfer id but wrong server node: ignored.
	n.handleTransfer(fileReadResponse(31, rec.transferID, FileReadResponse{Data: full}))
	require.Empty(t, sink.offsets)

	// The matching response lands.
	n.handleTransfer(fileReadResponse(30, rec.transferID, FileReadResponse{Data: full}))
	require.Equal(t, []uint32{0}, sink.offsets)
	require.Equal(t, uint32(FileReadChunkSize), n.fw.offset)
}

func TestFileReadErrorAbortsSession(t *testing.T) {
	sink := &chunkSink{}
	n, ft, pf := newTestNode(Config{Name: "test", NodeID: 10, Sink: sink})
	require.NoError(t, n.StartFirmwarePull(30, "fw/img.bin"))
	rec, _ := takeFileReadRequest(t, n, ft, pf)

	n.handleTransfer(fileReadResponse(30, rec.transferID, FileReadResponse{Error: 2}))
	require.False(t, n.fw.active())
	require.Empty(t, sink.offsets)
}

func TestStartFirmwarePullValidation(t *testing.T) {
	n, _, _ := newTestNode(Config{Name: "test", NodeID: 10})
	require.Equal(t, canard.ErrInvalidNodeID, n.StartFirmwarePull(0, "p"))
	require.NoError(t, n.StartFirmwarePull(30, "p"))
	require.Equal(t, ErrUpdateInProgress, n.StartFirmwarePull(30, "p"))
}

func TestBeginFirmwareUpdateSelfPull(t *testing.T) {
	n, ft, _ := newTestNode(Config{Name: "test", NodeID: 10, Sink: &chunkSink{}})

	breq := BeginFirmwareUpdateRequest{SourceNodeID: 30, Path: "fw/img.bin"}
	var buf [BeginFirmwareUpdateReqMaxSize]byte
	sz, err := breq.Marshal(buf[:])
	require.NoError(t, err)
	n.handleTransfer(request(70, DTIDBeginFirmwareUpdate, 0, buf[:sz]))

	recs := ft.take(canard.TransferResponse, DTIDBeginFirmwareUpdate)
	require.Len(t, recs, 1)
	var rsp BeginFirmwareUpdateResponse
	require.NoError(t, rsp.Unmarshal(recs[0].payload))
	require.Equal(t, FirmwareUpdateErrorOK, rsp.Error)
	require.True(t, n.fw.active())
	require.Equal(t, uint8(30), n.fw.nodeID)

	// A second request while the session runs is refused.
	n.handleTransfer(request(70, DTIDBeginFirmwareUpdate, 1, buf[:sz]))
	recs = ft.take(canard.TransferResponse, DTIDBeginFirmwareUpdate)
	require.Len(t, recs, 1)
	require.NoError(t, rsp.Unmarshal(recs[0].payload))
	require.Equal(t, FirmwareUpdateErrorInProgress, rsp.Error)
}

func TestBeginFirmwareUpdateRequestorServes(t *testing.T) {
	// Source node id 0 means the requestor itself serves the image.
	n, ft, _ := newTestNode(Config{Name: "test", NodeID: 10, Sink: &chunkSink{}})
	breq := BeginFirmwareUpdateRequest{Path: "fw/img.bin"}
	var buf [BeginFirmwareUpdateReqMaxSize]byte
	sz, err := breq.Marshal(buf[:])
	require.NoError(t, err)
	n.handleTransfer(request(70, DTIDBeginFirmwareUpdate, 0, buf[:sz]))
	ft.take(canard.TransferResponse, DTIDBeginFirmwareUpdate)
	require.Equal(t, uint8(70), n.fw.nodeID)
}

func TestBeginFirmwareUpdateHandoff(t *testing.T) {
	region := make([]byte, 64)
	n, ft, pf := newTestNode(Config{
		Name:    "test",
		NodeID:  10,
		Handoff: NewRegionHandoff(region),
	})

	breq := BeginFirmwareUpdateRequest{SourceNodeID: 30, Path: "fw/img.bin"}
	var buf [BeginFirmwareUpdateReqMaxSize]byte
	sz, err := breq.Marshal(buf[:])
	require.NoError(t, err)
	n.handleTransfer(request(70, DTIDBeginFirmwareUpdate, 0, buf[:sz]))

	recs := ft.take(canard.TransferResponse, DTIDBeginFirmwareUpdate)
	require.Len(t, recs, 1)
	var rsp BeginFirmwareUpdateResponse
	require.NoError(t, rsp.Unmarshal(recs[0].payload))
	require.Equal(t, FirmwareUpdateErrorOK, rsp.Error)
	require.Equal(t, 1, pf.restarted, "the node restarts into the bootloader")

	rec, ok := NewRegionHandoff(region).Load()
	require.True(t, ok)
	require.Equal(t, BootRecord{ServerNodeID: 30, LocalNodeID: 10, Path: "fw/img.bin"}, rec)
}
