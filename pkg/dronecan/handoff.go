package dronecan

import "encoding/binary"

// handoffMagic tags a valid boot-handoff region. The bootloader only
// trusts the record when the magic matches.
const handoffMagic uint32 = 0xB0071EC5

// RegionHandoff implements Handoff over a caller-provided byte slice,
// modeling the fixed-address memory block shared with the bootloader
// context. Layout: magic u32, server node id, local node id, path length,
// path bytes.
type RegionHandoff struct {
	region []byte
}

// NewRegionHandoff wraps an existing region. The region must hold at
// least the fixed header.
func NewRegionHandoff(region []byte) *RegionHandoff {
	if len(region) < 7 {
		panic("dronecan: handoff region too small")
	}
	return &RegionHandoff{region: region}
}

// Store writes the record, re-tagging the region if its magic is stale.
func (h *RegionHandoff) Store(rec BootRecord) error {
	if len(h.region) < 7+len(rec.Path) {
		return ErrShortBuffer
	}
	if binary.LittleEndian.Uint32(h.region[0:4]) != handoffMagic {
		for i := range h.region {
			h.region[i] = 0
		}
	}
	binary.LittleEndian.PutUint32(h.region[0:4], handoffMagic)
	h.region[4] = rec.ServerNodeID
	h.region[5] = rec.LocalNodeID
	h.region[6] = uint8(len(rec.Path))
	copy(h.region[7:], rec.Path)
	return nil
}

// Load reads the record back; ok is false when the magic does not match.
func (h *RegionHandoff) Load() (BootRecord, bool) {
	if binary.LittleEndian.Uint32(h.region[0:4]) != handoffMagic {
		return BootRecord{}, false
	}
	pathLen := int(h.region[6])
	if 7+pathLen > len(h.region) {
		return BootRecord{}, false
	}
	return BootRecord{
		ServerNodeID: h.region[4],
		LocalNodeID:  h.region[5],
		Path:         string(h.region[7 : 7+pathLen]),
	}, true
}
