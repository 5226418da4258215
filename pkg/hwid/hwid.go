// Package hwid derives the node's 16-byte unique hardware id.
package hwid

import (
	"crypto/sha256"

	"github.com/denisbrodbeck/machineid"
)

// idLen matches the unique_id field of uavcan.protocol.HardwareVersion.
const idLen = 16

// UniqueID derives a stable 16-byte id from the machine identity. The
// first 12 bytes come from a hash of the machine id, the last 4 are zero
// padding, mirroring how the firmware packs the 96-bit CPU serial. Panics
// when no machine identity is available.
func UniqueID() [idLen]byte {
	id, err := machineid.ID()
	if err != nil {
		panic(err)
	}
	return fold(id)
}

// AppUniqueID is like UniqueID but scoped to appID, so several simulated
// nodes on one host can hold distinct hardware ids.
func AppUniqueID(appID string) [idLen]byte {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		panic(err)
	}
	return fold(id)
}

func fold(id string) [idLen]byte {
	sum := sha256.Sum256([]byte(id))
	var uid [idLen]byte
	copy(uid[:12], sum[:12])
	return uid
}
