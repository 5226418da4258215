// Package sim provides an in-process CAN bus plus the bus-side peers a
// node needs around it: a dynamic node-id allocator, a firmware file
// server, and a ground-station style client. It exists so the binaries
// and tests can run a whole bus without hardware.
package sim

import (
	"sync"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
)

// portQueueDepth bounds each port's receive queue. CAN is lossy; frames
// beyond the bound are dropped, as a saturated controller would.
const portQueueDepth = 256

// Bus is an in-process CAN segment: every frame sent by one port is
// delivered to every other port.
type Bus struct {
	lock  sync.Mutex
	ports []*Port
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Port attaches a new node port to the bus.
func (b *Bus) Port(name string) *Port {
	b.lock.Lock()
	defer b.lock.Unlock()
	p := &Port{bus: b, name: name}
	b.ports = append(b.ports, p)
	return p
}

// Port is one attachment point. It implements the engine's Bus interface:
// single-frame, polling, non-blocking.
type Port struct {
	bus     *Bus
	name    string
	queue   []canard.Frame
	dropped int
}

// Name returns the port label.
func (p *Port) Name() string { return p.name }

// Send delivers f to every other port on the bus.
func (p *Port) Send(f canard.Frame) error {
	p.bus.lock.Lock()
	defer p.bus.lock.Unlock()
	for _, other := range p.bus.ports {
		if other == p {
			continue
		}
		if len(other.queue) >= portQueueDepth {
			other.dropped++
			continue
		}
		other.queue = append(other.queue, f)
	}
	return nil
}

// Receive pops the next pending frame, if any.
func (p *Port) Receive() (canard.Frame, bool) {
	p.bus.lock.Lock()
	defer p.bus.lock.Unlock()
	if len(p.queue) == 0 {
		return canard.Frame{}, false
	}
	f := p.queue[0]
	p.queue = p.queue[1:]
	return f, true
}

// Dropped reports frames lost to queue overflow on this port.
func (p *Port) Dropped() int {
	p.bus.lock.Lock()
	defer p.bus.lock.Unlock()
	return p.dropped
}
