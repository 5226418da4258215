package dronecan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeStatusPacking(t *testing.T) {
	st := NodeStatus{
		UptimeSec:        0x01020304,
		Health:           HealthError,
		Mode:             ModeSoftwareUpdate,
		SubMode:          5,
		VendorStatusCode: 0xBEEF,
	}
	var buf [NodeStatusMaxSize]byte
	sz, err := st.Marshal(buf[:])
	require.NoError(t, err)
	require.Equal(t, NodeStatusMaxSize, sz)
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf[0:4])
	// health[7:6] mode[5:3] submode[2:0]
	require.Equal(t, byte(2<<6|3<<3|5), buf[4])
	require.Equal(t, []byte{0xEF, 0xBE}, buf[5:7])

	var back NodeStatus
	require.NoError(t, back.Unmarshal(buf[:sz]))
	require.Equal(t, st, back)
}

func TestParamValueUnknownTagDecodesEmpty(t *testing.T) {
	// index 0, value union with an unsupported tag, empty name
	var req ParamGetSetRequest
	require.NoError(t, req.Unmarshal([]byte{0, 0, 9, 0}))
	require.Equal(t, ValueEmpty, req.Value.Tag)
}

func TestGetNodeInfoNameTruncated(t *testing.T) {
	rsp := GetNodeInfoResponse{Name: strings.Repeat("x", 100)}
	var buf [GetNodeInfoResponseMaxSize]byte
	sz, err := rsp.Marshal(buf[:])
	require.NoError(t, err)
	require.Equal(t, 41+NodeNameMaxLen, sz)

	var back GetNodeInfoResponse
	require.NoError(t, back.Unmarshal(buf[:sz]))
	require.Equal(t, strings.Repeat("x", NodeNameMaxLen), back.Name)
}

func TestGetNodeInfoCertificateSkipped(t *testing.T) {
	rsp := GetNodeInfoResponse{Name: "abc"}
	var buf [GetNodeInfoResponseMaxSize]byte
	sz, err := rsp.Marshal(buf[:])
	require.NoError(t, err)

	// Splice a 2-byte certificate of authenticity in front of the name.
	raw := append([]byte(nil), buf[:41]...)
	raw[40] = 2
	raw = append(raw, 0xAA, 0xBB)
	raw = append(raw, buf[41:sz]...)

	var back GetNodeInfoResponse
	require.NoError(t, back.Unmarshal(raw))
	require.Equal(t, "abc", back.Name)
}

func TestAllocationFirstByte(t *testing.T) {
	msg := Allocation{NodeID: 7, FirstPart: true, UniqueID: []byte{9, 8, 7}}
	var buf [AllocationMaxSize]byte
	sz, err := msg.Marshal(buf[:])
	require.NoError(t, err)
	require.Equal(t, 4, sz)
	require.Equal(t, byte(7<<1|1), buf[0])

	var back Allocation
	require.NoError(t, back.Unmarshal(buf[:sz]))
	require.Equal(t, uint8(7), back.NodeID)
	require.True(t, back.FirstPart)
	require.Equal(t, []byte{9, 8, 7}, back.UniqueID)
}

func TestRestartNodeMagicEncoding(t *testing.T) {
	req := RestartNodeRequest{Magic: RestartNodeMagic}
	var buf [RestartNodeRequestSize]byte
	sz, err := req.Marshal(buf[:])
	require.NoError(t, err)
	require.Equal(t, RestartNodeRequestSize, sz)
	// 0xACCE551B1E little-endian over 5 bytes
	require.Equal(t, []byte{0x1E, 0x1B, 0x55, 0xCE, 0xAC}, buf[:sz])

	var back RestartNodeRequest
	require.NoError(t, back.Unmarshal(buf[:sz]))
	require.Equal(t, RestartNodeMagic, back.Magic)
}

func TestLogMessageBounds(t *testing.T) {
	lm := LogMessage{Source: strings.Repeat("s", LogSourceMaxLen+1)}
	var buf [LogMessageMaxSize]byte
	_, err := lm.Marshal(buf[:])
	require.Equal(t, ErrFieldTooLong, err)

	lm = LogMessage{Level: LogLevelError, Source: "nav", Text: "imu timeout"}
	sz, err := lm.Marshal(buf[:])
	require.NoError(t, err)
	var back LogMessage
	require.NoError(t, back.Unmarshal(buf[:sz]))
	require.Equal(t, lm, back)
}

func TestFileReadResponseShortPayload(t *testing.T) {
	var rsp FileReadResponse
	require.Equal(t, ErrShortPayload, rsp.Unmarshal([]byte{0}))
}

func TestParamGetSetRequestRoundTrip(t *testing.T) {
	req := ParamGetSetRequest{
		Index: 3,
		Value: ParamValue{Tag: ValueInteger, Integer: -5},
		Name:  "NODEID",
	}
	var buf [ParamGetSetRequestMaxSize]byte
	sz, err := req.Marshal(buf[:])
	require.NoError(t, err)

	var back ParamGetSetRequest
	require.NoError(t, back.Unmarshal(buf[:sz]))
	require.Equal(t, req, back)
}

func TestBeginFirmwareUpdateRequestRoundTrip(t *testing.T) {
	req := BeginFirmwareUpdateRequest{SourceNodeID: 30, Path: "fw/img.bin"}
	var buf [BeginFirmwareUpdateReqMaxSize]byte
	sz, err := req.Marshal(buf[:])
	require.NoError(t, err)

	var back BeginFirmwareUpdateRequest
	require.NoError(t, back.Unmarshal(buf[:sz]))
	require.Equal(t, req, back)

	req.Path = strings.Repeat("p", FilePathMaxLen+1)
	_, err = req.Marshal(buf[:])
	require.Equal(t, ErrFieldTooLong, err)
}
