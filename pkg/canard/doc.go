// Package canard implements the DroneCAN (UAVCAN v0) transport session:
// 29-bit CAN identifier packing, tail-byte framing, multi-frame transfer
// reassembly with transfer CRC, and a bounded outbound frame queue.
//
// The session is not safe for concurrent use; it is designed to be driven
// from a single cooperative tick loop.
package canard
