package dronecan

import "time"

// DSDL data type ids and signatures for the uavcan.protocol types this
// node exchanges. Service ids live in the 8-bit service space, message ids
// in the 16-bit message space, so equal values across the two never clash.
const (
	DTIDNodeStatus  uint16 = 341
	SigNodeStatus   uint64 = 0x0f0868d0c1a7c6f1
	DTIDGetNodeInfo uint16 = 1
	SigGetNodeInfo  uint64 = 0xee468a8121c46a9e
	DTIDRestartNode uint16 = 5
	SigRestartNode  uint64 = 0x569e05394a3017f0

	DTIDParamGetSet        uint16 = 11
	SigParamGetSet         uint64 = 0xa7b622f939d1a4d5
	DTIDParamExecuteOpcode uint16 = 10
	SigParamExecuteOpcode  uint64 = 0x3b131ac5eb69d2cd

	DTIDAllocation uint16 = 1
	SigAllocation  uint64 = 0x0b2a812620a11d40

	DTIDBeginFirmwareUpdate uint16 = 40
	SigBeginFirmwareUpdate  uint64 = 0xb7d725df72724126
	DTIDFileRead            uint16 = 48
	SigFileRead             uint64 = 0x8dcdca939f33f678

	DTIDLogMessage uint16 = 16383
	SigLogMessage  uint64 = 0xd654a48e0c90d449
	DTIDKeyValue   uint16 = 16370
	SigKeyValue    uint64 = 0xe02f25d6e0c98ae0
)

// Dynamic node-id allocation timing, per the UAVCAN specification. The
// randomized followup delay is the anti-collision mechanism between
// contending anonymous nodes.
const (
	AllocationMinRequestPeriod = 600 * time.Millisecond
	AllocationMaxFollowupDelay = 400 * time.Millisecond

	// AllocationUniqueIDChunk is the most unique-id bytes one allocation
	// request may carry.
	AllocationUniqueIDChunk = 6
)

// RestartNodeMagic must accompany a RestartNode request (40-bit value).
const RestartNodeMagic uint64 = 0xACCE551B1E

const (
	// firmwareReadQuietPeriod is how long the engine stays quiet after a
	// file read request before retrying.
	firmwareReadQuietPeriod = 750 * time.Millisecond

	// FileReadChunkSize is the full chunk length; a shorter chunk marks
	// the end of the image.
	FileReadChunkSize = 256

	// beginUpdateDrainIters bounds the busy-wait that flushes the
	// BeginFirmwareUpdate response before the restart.
	beginUpdateDrainIters = 50
)
