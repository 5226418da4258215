package sim

import (
	"time"

	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
	"github.com/imperator-maximus/Quassel-UGV/pkg/dronecan"
)

// fileErrNotFound mirrors uavcan.protocol.file.Error for a missing path.
const fileErrNotFound int16 = 2

// FileServer serves firmware images out of memory: it answers file read
// requests chunk by chunk and can kick a node into update mode.
type FileServer struct {
	tp    *canard.Session
	port  *Port
	now   func() time.Time
	files map[string][]byte

	readTID  uint8
	beginTID uint8
}

// NewFileServer attaches a file server with the given (static) node id.
func NewFileServer(port *Port, nodeID uint8, now func() time.Time) *FileServer {
	s := &FileServer{
		port:  port,
		now:   now,
		files: make(map[string][]byte),
	}
	s.tp = canard.NewSession(s.accept, s.onTransfer)
	if err := s.tp.SetLocalNodeID(nodeID); err != nil {
		panic(err)
	}
	return s
}

// Add registers an image under path.
func (s *FileServer) Add(path string, data []byte) {
	s.files[path] = data
}

// BeginUpdate asks target to start a firmware update served by this node.
func (s *FileServer) BeginUpdate(target uint8, path string) error {
	req := dronecan.BeginFirmwareUpdateRequest{
		SourceNodeID: s.tp.LocalNodeID(),
		Path:         path,
	}
	var buf [dronecan.BeginFirmwareUpdateReqMaxSize]byte
	sz, err := req.Marshal(buf[:])
	if err != nil {
		return err
	}
	return s.tp.RequestOrRespond(target, dronecan.SigBeginFirmwareUpdate, dronecan.DTIDBeginFirmwareUpdate, &s.beginTID, canard.PriorityMedium, canard.TransferRequest, buf[:sz])
}

// Tick pumps the server's port.
func (s *FileServer) Tick() {
	now := s.now()
	for {
		f, ok := s.port.Receive()
		if !ok {
			break
		}
		if err := s.tp.HandleRxFrame(f, now); err != nil {
			glog.V(2).Infof("file server rx: %v", err)
		}
	}
	for txf := s.tp.PeekTx(); txf != nil; txf = s.tp.PeekTx() {
		if err := s.port.Send(*txf); err != nil {
			glog.Errorf("file server tx: %v", err)
		}
		s.tp.PopTx()
	}
	s.tp.PurgeStale(now)
}

func (s *FileServer) accept(kind canard.TransferKind, dataTypeID uint16, src uint8) (uint64, bool) {
	switch {
	case kind == canard.TransferRequest && dataTypeID == dronecan.DTIDFileRead:
		return dronecan.SigFileRead, true
	case kind == canard.TransferResponse && dataTypeID == dronecan.DTIDBeginFirmwareUpdate:
		return dronecan.SigBeginFirmwareUpdate, true
	}
	return 0, false
}

func (s *FileServer) onTransfer(t *canard.Transfer) {
	if t.Kind != canard.TransferRequest || t.DataTypeID != dronecan.DTIDFileRead {
		return
	}
	var req dronecan.FileReadRequest
	if err := req.Unmarshal(t.Payload); err != nil {
		return
	}

	var rsp dronecan.FileReadResponse
	data, ok := s.files[req.Path]
	switch {
	case !ok:
		rsp.Error = fileErrNotFound
	case int64(req.Offset) >= int64(len(data)):
		// past EOF: empty chunk
	default:
		end := int(req.Offset) + dronecan.FileReadChunkSize
		if end > len(data) {
			end = len(data)
		}
		rsp.Data = data[req.Offset:end]
	}

	var buf [dronecan.FileReadResponseMaxSize]byte
	sz, err := rsp.Marshal(buf[:])
	if err != nil {
		glog.Errorf("file server: encode: %v", err)
		return
	}
	tid := t.TransferID
	if err := s.tp.RequestOrRespond(t.SourceNodeID, dronecan.SigFileRead, dronecan.DTIDFileRead, &tid, t.Priority, canard.TransferResponse, buf[:sz]); err != nil {
		glog.Errorf("file server: respond: %v", err)
	}
}
