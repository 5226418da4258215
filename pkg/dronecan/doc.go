// Package dronecan implements the application-layer protocol engine of a
// DroneCAN (UAVCAN v0) field-bus node: dynamic node-id allocation, the
// parameter server, node status heartbeat, node info responses, and the
// firmware update exchange.
//
// The engine is single-threaded and cooperative. All work happens inside
// Node.Cycle, which is meant to be called from a tight outer loop; nothing
// in the engine blocks except the bounded drain before a restart.
package dronecan
