package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
)

func TestBusDeliversToOtherPorts(t *testing.T) {
	bus := NewBus()
	a := bus.Port("a")
	b := bus.Port("b")
	c := bus.Port("c")

	f := canard.Frame{ID: 0x1234, Len: 2}
	f.Data[0] = 0xAB
	require.NoError(t, a.Send(f))

	got, ok := b.Receive()
	require.True(t, ok)
	require.Equal(t, f, got)

	got, ok = c.Receive()
	require.True(t, ok)
	require.Equal(t, f, got)

	// No self loopback.
	_, ok = a.Receive()
	require.False(t, ok)
}

func TestBusDropsOnOverflow(t *testing.T) {
	bus := NewBus()
	a := bus.Port("a")
	b := bus.Port("b")

	for i := 0; i < portQueueDepth+3; i++ {
		require.NoError(t, a.Send(canard.Frame{ID: uint32(i), Len: 1}))
	}
	require.Equal(t, 3, b.Dropped())

	for i := 0; i < portQueueDepth; i++ {
		_, ok := b.Receive()
		require.True(t, ok)
	}
	_, ok := b.Receive()
	require.False(t, ok)
}
