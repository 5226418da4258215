package dronecan

// Health is the node health reported in NodeStatus.
type Health uint8

// NodeStatus health values.
const (
	HealthOK Health = iota
	HealthWarning
	HealthError
	HealthCritical
)

func (h Health) String() string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthWarning:
		return "warning"
	case HealthError:
		return "error"
	case HealthCritical:
		return "critical"
	}
	return "unknown"
}

// Mode is the operating mode reported in NodeStatus.
type Mode uint8

// NodeStatus mode values.
const (
	ModeOperational    Mode = 0
	ModeInitialization Mode = 1
	ModeMaintenance    Mode = 2
	ModeSoftwareUpdate Mode = 3
	ModeOffline        Mode = 7
)

func (m Mode) String() string {
	switch m {
	case ModeOperational:
		return "operational"
	case ModeInitialization:
		return "initialization"
	case ModeMaintenance:
		return "maintenance"
	case ModeSoftwareUpdate:
		return "software-update"
	case ModeOffline:
		return "offline"
	}
	return "unknown"
}

// ParamKind is the value kind of a parameter.
type ParamKind uint8

// Parameter kinds. Only integer and real values are served; other DSDL
// value kinds are ignored on set.
const (
	ParamInteger ParamKind = iota
	ParamReal
)

// Param is one entry of the node's static parameter list. The list is
// fixed at startup; a parameter's position in it is its storage index.
//
// Min doubles as the factory default: the ERASE opcode resets Value to it.
type Param struct {
	Name  string
	Kind  ParamKind
	Value float32
	Min   float32
	Max   float32
}

// Store is the persistent parameter store collaborator: raw bytes at fixed
// offsets, no transactional guarantees. Each parameter owns the slot at
// index*ParamSlotSize.
type Store interface {
	Read(offset int64, buf []byte) error
	Write(offset int64, data []byte) error
}

// ParamSlotSize is the persistent slot size per parameter: one
// little-endian IEEE-754 float32.
const ParamSlotSize = 4

// FirmwareSink receives image chunks pulled by the firmware read client.
// End-of-file handling and durability are its concern, not the engine's.
type FirmwareSink interface {
	WriteChunk(offset uint32, data []byte) error
}

// BootRecord is handed across a restart to the bootloader context when a
// firmware update begins.
type BootRecord struct {
	ServerNodeID uint8
	LocalNodeID  uint8
	Path         string
}

// Handoff persists a BootRecord across a restart. Implementations tag the
// region with a magic constant and report ok=false when it is absent.
type Handoff interface {
	Store(BootRecord) error
	Load() (BootRecord, bool)
}
