package dronecan

import (
	"encoding/binary"
	"math"
)

// Wire codecs for the uavcan.protocol payloads the engine reads and
// writes. Fields are packed little-endian in declaration order;
// variable-length tail fields run to the end of the payload.

// Field bounds from the DSDL definitions.
const (
	ParamNameMaxLen  = 92
	NodeNameMaxLen   = 80
	FilePathMaxLen   = 200
	LogSourceMaxLen  = 31
	LogTextMaxLen    = 90
	UniqueIDLen     = 16
)

// Payload buffer sizes for stack allocation in the handlers.
const (
	NodeStatusMaxSize              = 7
	GetNodeInfoResponseMaxSize     = 41 + NodeNameMaxLen
	ParamGetSetRequestMaxSize      = 2 + 9 + 1 + ParamNameMaxLen
	ParamGetSetResponseMaxSize     = 9 + 1 + ParamNameMaxLen
	ParamExecuteOpcodeRequestSize  = 7
	ParamExecuteOpcodeResponseSize = 1
	AllocationMaxSize              = 1 + UniqueIDLen
	BeginFirmwareUpdateReqMaxSize  = 1 + FilePathMaxLen
	BeginFirmwareUpdateRespSize    = 1
	FileReadRequestMaxSize         = 4 + FilePathMaxLen
	FileReadResponseMaxSize        = 2 + FileReadChunkSize
	LogMessageMaxSize              = 2 + LogSourceMaxLen + LogTextMaxLen
	RestartNodeRequestSize         = 5
	RestartNodeResponseSize        = 1
)

// NodeStatus is the periodic heartbeat payload.
type NodeStatus struct {
	UptimeSec        uint32
	Health           Health
	Mode             Mode
	SubMode          uint8
	VendorStatusCode uint16
}

// Marshal encodes into b and returns the byte count.
func (m *NodeStatus) Marshal(b []byte) (int, error) {
	if len(b) < NodeStatusMaxSize {
		return 0, ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(b[0:4], m.UptimeSec)
	b[4] = uint8(m.Health)<<6 | (uint8(m.Mode)&0x7)<<3 | m.SubMode&0x7
	binary.LittleEndian.PutUint16(b[5:7], m.VendorStatusCode)
	return NodeStatusMaxSize, nil
}

// Unmarshal decodes from b.
func (m *NodeStatus) Unmarshal(b []byte) error {
	if len(b) < NodeStatusMaxSize {
		return ErrShortPayload
	}
	m.UptimeSec = binary.LittleEndian.Uint32(b[0:4])
	m.Health = Health(b[4] >> 6)
	m.Mode = Mode(b[4] >> 3 & 0x7)
	m.SubMode = b[4] & 0x7
	m.VendorStatusCode = binary.LittleEndian.Uint16(b[5:7])
	return nil
}

// GetNodeInfoResponse identifies the node.
type GetNodeInfoResponse struct {
	Status             NodeStatus
	SoftwareMajor      uint8
	SoftwareMinor      uint8
	OptionalFieldFlags uint8
	VCSCommit          uint32
	ImageCRC           uint64
	HardwareMajor      uint8
	HardwareMinor      uint8
	UniqueID           [UniqueIDLen]byte
	Name               string
}

// Marshal encodes into b and returns the byte count. The name is
// truncated to its DSDL bound.
func (m *GetNodeInfoResponse) Marshal(b []byte) (int, error) {
	name := m.Name
	if len(name) > NodeNameMaxLen {
		name = name[:NodeNameMaxLen]
	}
	if len(b) < 41+len(name) {
		return 0, ErrShortBuffer
	}
	if _, err := m.Status.Marshal(b[0:]); err != nil {
		return 0, err
	}
	b[7] = m.SoftwareMajor
	b[8] = m.SoftwareMinor
	b[9] = m.OptionalFieldFlags
	binary.LittleEndian.PutUint32(b[10:14], m.VCSCommit)
	binary.LittleEndian.PutUint64(b[14:22], m.ImageCRC)
	b[22] = m.HardwareMajor
	b[23] = m.HardwareMinor
	copy(b[24:40], m.UniqueID[:])
	b[40] = 0 // certificate_of_authenticity length
	copy(b[41:], name)
	return 41 + len(name), nil
}

// Unmarshal decodes from b.
func (m *GetNodeInfoResponse) Unmarshal(b []byte) error {
	if len(b) < 41 {
		return ErrShortPayload
	}
	if err := m.Status.Unmarshal(b[0:7]); err != nil {
		return err
	}
	m.SoftwareMajor = b[7]
	m.SoftwareMinor = b[8]
	m.OptionalFieldFlags = b[9]
	m.VCSCommit = binary.LittleEndian.Uint32(b[10:14])
	m.ImageCRC = binary.LittleEndian.Uint64(b[14:22])
	m.HardwareMajor = b[22]
	m.HardwareMinor = b[23]
	copy(m.UniqueID[:], b[24:40])
	certLen := int(b[40])
	if len(b) < 41+certLen {
		return ErrShortPayload
	}
	m.Name = string(b[41+certLen:])
	return nil
}

// ValueTag discriminates the param value union.
type ValueTag uint8

// Param value union tags.
const (
	ValueEmpty ValueTag = iota
	ValueInteger
	ValueReal
)

// ParamValue is the tagged value union of the param services.
type ParamValue struct {
	Tag     ValueTag
	Integer int64
	Real    float32
}

func (v *ParamValue) marshal(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, ErrShortBuffer
	}
	b[0] = uint8(v.Tag)
	switch v.Tag {
	case ValueEmpty:
		return 1, nil
	case ValueInteger:
		if len(b) < 9 {
			return 0, ErrShortBuffer
		}
		binary.LittleEndian.PutUint64(b[1:9], uint64(v.Integer))
		return 9, nil
	case ValueReal:
		if len(b) < 5 {
			return 0, ErrShortBuffer
		}
		binary.LittleEndian.PutUint32(b[1:5], math.Float32bits(v.Real))
		return 5, nil
	}
	return 0, ErrShortBuffer
}

func (v *ParamValue) unmarshal(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, ErrShortPayload
	}
	v.Tag = ValueTag(b[0])
	switch v.Tag {
	case ValueEmpty:
		return 1, nil
	case ValueInteger:
		if len(b) < 9 {
			return 0, ErrShortPayload
		}
		v.Integer = int64(binary.LittleEndian.Uint64(b[1:9]))
		return 9, nil
	case ValueReal:
		if len(b) < 5 {
			return 0, ErrShortPayload
		}
		v.Real = math.Float32frombits(binary.LittleEndian.Uint32(b[1:5]))
		return 5, nil
	}
	// Unsupported kinds pass through as empty; set requests ignore them.
	v.Tag = ValueEmpty
	return 1, nil
}

// ParamGetSetRequest reads or writes one parameter. A non-empty name takes
// priority over the index.
type ParamGetSetRequest struct {
	Index uint16
	Value ParamValue
	Name  string
}

// Marshal encodes into b and returns the byte count.
func (m *ParamGetSetRequest) Marshal(b []byte) (int, error) {
	if len(m.Name) > ParamNameMaxLen {
		return 0, ErrFieldTooLong
	}
	if len(b) < ParamGetSetRequestMaxSize {
		return 0, ErrShortBuffer
	}
	binary.LittleEndian.PutUint16(b[0:2], m.Index)
	n, err := m.Value.marshal(b[2:])
	if err != nil {
		return 0, err
	}
	n += 2
	b[n] = uint8(len(m.Name))
	n++
	n += copy(b[n:], m.Name)
	return n, nil
}

// Unmarshal decodes from b.
func (m *ParamGetSetRequest) Unmarshal(b []byte) error {
	if len(b) < 4 {
		return ErrShortPayload
	}
	m.Index = binary.LittleEndian.Uint16(b[0:2])
	n, err := m.Value.unmarshal(b[2:])
	if err != nil {
		return err
	}
	n += 2
	if len(b) < n+1 {
		return ErrShortPayload
	}
	nameLen := int(b[n])
	n++
	if nameLen > ParamNameMaxLen || len(b) < n+nameLen {
		return ErrShortPayload
	}
	m.Name = string(b[n : n+nameLen])
	return nil
}

// ParamGetSetResponse echoes the (possibly found) parameter. An empty name
// with an empty value means "not found".
type ParamGetSetResponse struct {
	Value ParamValue
	Name  string
}

// Marshal encodes into b and returns the byte count.
func (m *ParamGetSetResponse) Marshal(b []byte) (int, error) {
	if len(m.Name) > ParamNameMaxLen {
		return 0, ErrFieldTooLong
	}
	if len(b) < ParamGetSetResponseMaxSize {
		return 0, ErrShortBuffer
	}
	n, err := m.Value.marshal(b)
	if err != nil {
		return 0, err
	}
	b[n] = uint8(len(m.Name))
	n++
	n += copy(b[n:], m.Name)
	return n, nil
}

// Unmarshal decodes from b.
func (m *ParamGetSetResponse) Unmarshal(b []byte) error {
	n, err := m.Value.unmarshal(b)
	if err != nil {
		return err
	}
	if len(b) < n+1 {
		return ErrShortPayload
	}
	nameLen := int(b[n])
	n++
	if nameLen > ParamNameMaxLen || len(b) < n+nameLen {
		return ErrShortPayload
	}
	m.Name = string(b[n : n+nameLen])
	return nil
}

// ExecuteOpcode opcodes.
const (
	OpcodeSave  uint8 = 0
	OpcodeErase uint8 = 1
)

// ParamExecuteOpcodeRequest triggers a bulk parameter operation.
type ParamExecuteOpcodeRequest struct {
	Opcode   uint8
	Argument int64 // 48-bit on the wire, reserved
}

// Marshal encodes into b and returns the byte count.
func (m *ParamExecuteOpcodeRequest) Marshal(b []byte) (int, error) {
	if len(b) < ParamExecuteOpcodeRequestSize {
		return 0, ErrShortBuffer
	}
	b[0] = m.Opcode
	for i := 0; i < 6; i++ {
		b[1+i] = byte(m.Argument >> uint(8*i))
	}
	return ParamExecuteOpcodeRequestSize, nil
}

// Unmarshal decodes from b.
func (m *ParamExecuteOpcodeRequest) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return ErrShortPayload
	}
	m.Opcode = b[0]
	m.Argument = 0
	for i := 0; i < 6 && 1+i < len(b); i++ {
		m.Argument |= int64(b[1+i]) << uint(8*i)
	}
	return nil
}

// ParamExecuteOpcodeResponse acknowledges a bulk operation.
type ParamExecuteOpcodeResponse struct {
	OK bool
}

// Marshal encodes into b and returns the byte count.
func (m *ParamExecuteOpcodeResponse) Marshal(b []byte) (int, error) {
	if len(b) < ParamExecuteOpcodeResponseSize {
		return 0, ErrShortBuffer
	}
	b[0] = 0
	if m.OK {
		b[0] = 1
	}
	return ParamExecuteOpcodeResponseSize, nil
}

// Unmarshal decodes from b.
func (m *ParamExecuteOpcodeResponse) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return ErrShortPayload
	}
	m.OK = b[0] != 0
	return nil
}

// Allocation is the dynamic node-id allocation broadcast, sent by both
// allocatees (requests) and the allocator (responses).
type Allocation struct {
	NodeID    uint8
	FirstPart bool
	UniqueID  []byte
}

// Marshal encodes into b and returns the byte count.
func (m *Allocation) Marshal(b []byte) (int, error) {
	if len(m.UniqueID) > UniqueIDLen {
		return 0, ErrFieldTooLong
	}
	if len(b) < 1+len(m.UniqueID) {
		return 0, ErrShortBuffer
	}
	b[0] = m.NodeID << 1
	if m.FirstPart {
		b[0] |= 1
	}
	copy(b[1:], m.UniqueID)
	return 1 + len(m.UniqueID), nil
}

// Unmarshal decodes from b. The unique id aliases b.
func (m *Allocation) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return ErrShortPayload
	}
	if len(b) > AllocationMaxSize {
		return ErrFieldTooLong
	}
	m.NodeID = b[0] >> 1
	m.FirstPart = b[0]&1 != 0
	m.UniqueID = b[1:]
	return nil
}

// Firmware update error codes.
const (
	FirmwareUpdateErrorOK         uint8 = 0
	FirmwareUpdateErrorInvalid    uint8 = 1
	FirmwareUpdateErrorInProgress uint8 = 2
	FirmwareUpdateErrorUnknown    uint8 = 255
)

// BeginFirmwareUpdateRequest asks this node to start a firmware update.
// SourceNodeID names the file server; 0 means the requestor serves the
// image itself.
type BeginFirmwareUpdateRequest struct {
	SourceNodeID uint8
	Path         string
}

// Marshal encodes into b and returns the byte count.
func (m *BeginFirmwareUpdateRequest) Marshal(b []byte) (int, error) {
	if len(m.Path) > FilePathMaxLen {
		return 0, ErrFieldTooLong
	}
	if len(b) < 1+len(m.Path) {
		return 0, ErrShortBuffer
	}
	b[0] = m.SourceNodeID
	copy(b[1:], m.Path)
	return 1 + len(m.Path), nil
}

// Unmarshal decodes from b.
func (m *BeginFirmwareUpdateRequest) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return ErrShortPayload
	}
	if len(b) > BeginFirmwareUpdateReqMaxSize {
		return ErrFieldTooLong
	}
	m.SourceNodeID = b[0]
	m.Path = string(b[1:])
	return nil
}

// BeginFirmwareUpdateResponse acknowledges (or refuses) an update request.
type BeginFirmwareUpdateResponse struct {
	Error uint8
}

// Marshal encodes into b and returns the byte count.
func (m *BeginFirmwareUpdateResponse) Marshal(b []byte) (int, error) {
	if len(b) < BeginFirmwareUpdateRespSize {
		return 0, ErrShortBuffer
	}
	b[0] = m.Error
	return BeginFirmwareUpdateRespSize, nil
}

// Unmarshal decodes from b.
func (m *BeginFirmwareUpdateResponse) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return ErrShortPayload
	}
	m.Error = b[0]
	return nil
}

// File service error codes.
const FileErrorOK int16 = 0

// FileReadRequest asks the file server for a chunk at Offset.
type FileReadRequest struct {
	Offset uint32
	Path   string
}

// Marshal encodes into b and returns the byte count.
func (m *FileReadRequest) Marshal(b []byte) (int, error) {
	if len(m.Path) > FilePathMaxLen {
		return 0, ErrFieldTooLong
	}
	if len(b) < 4+len(m.Path) {
		return 0, ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(b[0:4], m.Offset)
	copy(b[4:], m.Path)
	return 4 + len(m.Path), nil
}

// Unmarshal decodes from b.
func (m *FileReadRequest) Unmarshal(b []byte) error {
	if len(b) < 4 {
		return ErrShortPayload
	}
	if len(b) > FileReadRequestMaxSize {
		return ErrFieldTooLong
	}
	m.Offset = binary.LittleEndian.Uint32(b[0:4])
	m.Path = string(b[4:])
	return nil
}

// FileReadResponse carries one chunk, or an error code.
type FileReadResponse struct {
	Error int16
	Data  []byte
}

// Marshal encodes into b and returns the byte count.
func (m *FileReadResponse) Marshal(b []byte) (int, error) {
	if len(m.Data) > FileReadChunkSize {
		return 0, ErrFieldTooLong
	}
	if len(b) < 2+len(m.Data) {
		return 0, ErrShortBuffer
	}
	binary.LittleEndian.PutUint16(b[0:2], uint16(m.Error))
	copy(b[2:], m.Data)
	return 2 + len(m.Data), nil
}

// Unmarshal decodes from b. Data aliases b.
func (m *FileReadResponse) Unmarshal(b []byte) error {
	if len(b) < 2 {
		return ErrShortPayload
	}
	if len(b) > FileReadResponseMaxSize {
		return ErrFieldTooLong
	}
	m.Error = int16(binary.LittleEndian.Uint16(b[0:2]))
	m.Data = b[2:]
	return nil
}

// Log levels for debug.LogMessage.
const (
	LogLevelDebug   uint8 = 0
	LogLevelInfo    uint8 = 1
	LogLevelWarning uint8 = 2
	LogLevelError   uint8 = 3
)

// LogMessage is the debug log broadcast.
type LogMessage struct {
	Level  uint8
	Source string
	Text   string
}

// Marshal encodes into b and returns the byte count.
func (m *LogMessage) Marshal(b []byte) (int, error) {
	if len(m.Source) > LogSourceMaxLen || len(m.Text) > LogTextMaxLen {
		return 0, ErrFieldTooLong
	}
	if len(b) < 2+len(m.Source)+len(m.Text) {
		return 0, ErrShortBuffer
	}
	b[0] = m.Level
	b[1] = uint8(len(m.Source))
	n := 2 + copy(b[2:], m.Source)
	n += copy(b[n:], m.Text)
	return n, nil
}

// Unmarshal decodes from b.
func (m *LogMessage) Unmarshal(b []byte) error {
	if len(b) < 2 {
		return ErrShortPayload
	}
	srcLen := int(b[1])
	if srcLen > LogSourceMaxLen || len(b) < 2+srcLen {
		return ErrShortPayload
	}
	m.Level = b[0]
	m.Source = string(b[2 : 2+srcLen])
	m.Text = string(b[2+srcLen:])
	return nil
}

// RestartNodeRequest asks the node to restart; Magic guards against
// accidental triggers.
type RestartNodeRequest struct {
	Magic uint64 // 40-bit
}

// Marshal encodes into b and returns the byte count.
func (m *RestartNodeRequest) Marshal(b []byte) (int, error) {
	if len(b) < RestartNodeRequestSize {
		return 0, ErrShortBuffer
	}
	for i := 0; i < 5; i++ {
		b[i] = byte(m.Magic >> uint(8*i))
	}
	return RestartNodeRequestSize, nil
}

// Unmarshal decodes from b.
func (m *RestartNodeRequest) Unmarshal(b []byte) error {
	if len(b) < RestartNodeRequestSize {
		return ErrShortPayload
	}
	m.Magic = 0
	for i := 0; i < 5; i++ {
		m.Magic |= uint64(b[i]) << uint(8*i)
	}
	return nil
}

// RestartNodeResponse acknowledges a restart request.
type RestartNodeResponse struct {
	OK bool
}

// Marshal encodes into b and returns the byte count.
func (m *RestartNodeResponse) Marshal(b []byte) (int, error) {
	if len(b) < RestartNodeResponseSize {
		return 0, ErrShortBuffer
	}
	b[0] = 0
	if m.OK {
		b[0] = 1
	}
	return RestartNodeResponseSize, nil
}

// Unmarshal decodes from b.
func (m *RestartNodeResponse) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return ErrShortPayload
	}
	m.OK = b[0] != 0
	return nil
}
