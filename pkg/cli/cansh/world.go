package cansh

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imperator-maximus/Quassel-UGV/pkg/dronecan"
	"github.com/imperator-maximus/Quassel-UGV/pkg/eeprom"
	"github.com/imperator-maximus/Quassel-UGV/pkg/hwid"
	"github.com/imperator-maximus/Quassel-UGV/pkg/sim"
)

// Bus participants. The node itself gets its id from the allocator.
const (
	nodePreferredID  = 24
	fileServerNodeID = 125
	clientNodeID     = 126
	allocatorNodeID  = 127

	// FirmwarePath is the demo image served by the in-process file server.
	FirmwarePath = "fw/quassel-ugv.bin"

	tickInterval = time.Millisecond
)

// World hosts a complete in-process bus: one node under test, an
// allocator, a firmware file server, and the client the shell talks
// through. The node side ticks on a background goroutine; the client is
// driven from shell commands.
type World struct {
	Bus    *sim.Bus
	Client *sim.Client

	node  *dronecan.Node
	alloc *sim.Allocator
	files *sim.FileServer
	sink  *imageSink

	imageLen int
	nodeID   uint32
	stop     chan struct{}
	done     chan struct{}
}

// NewWorld wires up the bus and its participants.
func NewWorld() *World {
	w := &World{
		Bus:  sim.NewBus(),
		sink: &imageSink{},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	w.alloc = sim.NewAllocator(w.Bus.Port("allocator"), allocatorNodeID, time.Now)
	w.files = sim.NewFileServer(w.Bus.Port("file-server"), fileServerNodeID, time.Now)

	image := make([]byte, 700)
	for i := range image {
		image[i] = byte(i)
	}
	w.imageLen = len(image)
	w.files.Add(FirmwarePath, image)

	w.node = dronecan.NewNode(dronecan.Config{
		Name:            "org.quassel.ugv.node",
		PreferredNodeID: nodePreferredID,
		SoftwareMajor:   1,
		HardwareMajor:   1,
		Params: []dronecan.Param{
			{Name: "NODEID", Kind: dronecan.ParamInteger, Min: 0, Max: 127},
			{Name: "MOTOR_MAX", Kind: dronecan.ParamReal, Min: 0.5, Max: 1.0},
			{Name: "TELEM_RATE", Kind: dronecan.ParamInteger, Min: 1, Max: 50},
		},
		Store:    eeprom.NewMem(256),
		Sink:     w.sink,
		Platform: dronecan.NewSystemPlatform(hwid.AppUniqueID("cansh"), nil),
	}, w.Bus.Port("node"))

	w.Client = sim.NewClient(w.Bus.Port("client"), clientNodeID, time.Now)
	return w
}

// Start runs the node-side tick loop until Stop.
func (w *World) Start() {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-w.stop:
				return
			default:
			}
			w.node.Cycle()
			w.alloc.Tick()
			w.files.Tick()
			atomic.StoreUint32(&w.nodeID, uint32(w.node.NodeID()))
			time.Sleep(tickInterval)
		}
	}()
}

// Stop shuts down the tick loop.
func (w *World) Stop() {
	close(w.stop)
	<-w.done
}

// NodeID returns the node's current id, 0 while unallocated.
func (w *World) NodeID() uint8 {
	return uint8(atomic.LoadUint32(&w.nodeID))
}

// WaitAllocated blocks until the node holds an id.
func (w *World) WaitAllocated(timeout time.Duration) (uint8, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if id := w.NodeID(); id != 0 {
			return id, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return 0, fmt.Errorf("node not allocated within %s", timeout)
}

// ImageLen returns the size of the demo firmware image.
func (w *World) ImageLen() int {
	return w.imageLen
}

// Received returns the byte count the node has pulled so far.
func (w *World) Received() int {
	return w.sink.Size()
}

// imageSink collects pulled firmware chunks in memory.
type imageSink struct {
	lock sync.Mutex
	data []byte
}

func (s *imageSink) WriteChunk(offset uint32, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if end := int(offset) + len(data); end > len(s.data) {
		s.data = append(s.data, make([]byte, end-len(s.data))...)
	}
	copy(s.data[offset:], data)
	return nil
}

func (s *imageSink) Size() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.data)
}
