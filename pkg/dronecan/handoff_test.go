package dronecan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegionHandoffRoundTrip(t *testing.T) {
	region := make([]byte, 64)
	h := NewRegionHandoff(region)

	_, ok := h.Load()
	require.False(t, ok, "an untagged region holds no record")

	rec := BootRecord{ServerNodeID: 30, LocalNodeID: 10, Path: "fw/img.bin"}
	require.NoError(t, h.Store(rec))

	// The record survives a "reboot": a fresh handoff over the same bytes.
	back, ok := NewRegionHandoff(region).Load()
	require.True(t, ok)
	require.Equal(t, rec, back)
}

func TestRegionHandoffStaleRegionCleared(t *testing.T) {
	region := make([]byte, 32)
	for i := range region {
		region[i] = 0xFF
	}
	h := NewRegionHandoff(region)
	require.NoError(t, h.Store(BootRecord{ServerNodeID: 1, LocalNodeID: 2, Path: "p"}))

	back, ok := h.Load()
	require.True(t, ok)
	require.Equal(t, "p", back.Path)
	// Junk past the record was wiped, not left to confuse the bootloader.
	require.Equal(t, byte(0), region[8])
}

func TestRegionHandoffTooSmall(t *testing.T) {
	require.Panics(t, func() { NewRegionHandoff(make([]byte, 6)) })

	h := NewRegionHandoff(make([]byte, 8))
	err := h.Store(BootRecord{Path: "a-path-longer-than-the-region"})
	require.Equal(t, ErrShortBuffer, err)
}

func TestRegionHandoffCorruptLength(t *testing.T) {
	region := make([]byte, 16)
	h := NewRegionHandoff(region)
	require.NoError(t, h.Store(BootRecord{Path: "abc"}))
	region[6] = 200 // path length beyond the region
	_, ok := h.Load()
	require.False(t, ok)
}
