package dronecan

import (
	"encoding/binary"
	"math"

	"github.com/golang/glog"

	"github.com/imperator-maximus/Quassel-UGV/pkg/canard"
)

// Parameter server. The list is fixed and insertion-ordered; a
// parameter's index is its persistent slot number. Values are stored
// canonically as float32, matching the 4-byte slots.
//
// Set requests are deliberately not clamped to [Min,Max]; the limits are
// advisory for configuration tools.

// Params returns a copy of the current parameter list.
func (n *Node) Params() []Param {
	return append([]Param(nil), n.params...)
}

// ParamByIndex returns the parameter at the storage index.
func (n *Node) ParamByIndex(i int) (Param, bool) {
	if i < 0 || i >= len(n.params) {
		return Param{}, false
	}
	return n.params[i], true
}

// GetParameter returns the value of the named parameter.
func (n *Node) GetParameter(name string) (float32, bool) {
	i := n.paramIndex(name)
	if i < 0 {
		return 0, false
	}
	return n.params[i].Value, true
}

// SetParameter sets the named parameter and writes its slot back to the
// persistent store. The value is not clamped.
func (n *Node) SetParameter(name string, value float32) error {
	i := n.paramIndex(name)
	if i < 0 {
		return ErrUnknownParameter
	}
	n.params[i].Value = value
	n.persistSlot(i)
	return nil
}

func (n *Node) paramIndex(name string) int {
	for i := range n.params {
		if n.params[i].Name == name {
			return i
		}
	}
	return -1
}

// loadParams overwrites the in-memory values from the persistent store.
// Runs once at startup.
func (n *Node) loadParams() {
	if n.cfg.Store == nil {
		return
	}
	var slot [ParamSlotSize]byte
	for i := range n.params {
		if err := n.cfg.Store.Read(int64(i)*ParamSlotSize, slot[:]); err != nil {
			glog.Errorf("param store read slot %d: %v", i, err)
			continue
		}
		n.params[i].Value = math.Float32frombits(binary.LittleEndian.Uint32(slot[:]))
	}
}

func (n *Node) persistSlot(i int) {
	if n.cfg.Store == nil {
		return
	}
	var slot [ParamSlotSize]byte
	binary.LittleEndian.PutUint32(slot[:], math.Float32bits(n.params[i].Value))
	if err := n.cfg.Store.Write(int64(i)*ParamSlotSize, slot[:]); err != nil {
		glog.Errorf("param store write slot %d: %v", i, err)
	}
}

// handleParamGetSet serves uavcan.protocol.param.GetSet. Name lookup wins
// over index lookup; a miss still gets a response, with an empty name and
// value.
func (n *Node) handleParamGetSet(t *canard.Transfer) {
	var req ParamGetSetRequest
	if err := req.Unmarshal(t.Payload); err != nil {
		return // malformed, no response
	}

	idx := -1
	if req.Name != "" {
		idx = n.paramIndex(req.Name)
	}
	if idx < 0 && req.Name == "" && int(req.Index) < len(n.params) {
		idx = int(req.Index)
	}

	if idx >= 0 && req.Value.Tag != ValueEmpty {
		p := &n.params[idx]
		switch req.Value.Tag {
		case ValueInteger:
			p.Value = float32(req.Value.Integer)
			n.persistSlot(idx)
		case ValueReal:
			p.Value = req.Value.Real
			n.persistSlot(idx)
		default:
			// unsupported kind, ignore
		}
	}

	var rsp ParamGetSetResponse
	if idx >= 0 {
		p := n.params[idx]
		rsp.Name = p.Name
		switch p.Kind {
		case ParamInteger:
			rsp.Value = ParamValue{Tag: ValueInteger, Integer: int64(p.Value)}
		default:
			rsp.Value = ParamValue{Tag: ValueReal, Real: p.Value}
		}
	}

	var buf [ParamGetSetResponseMaxSize]byte
	sz, err := rsp.Marshal(buf[:])
	if err != nil {
		glog.Errorf("param getset response encode: %v", err)
		return
	}
	tid := t.TransferID
	if err := n.tp.RequestOrRespond(t.SourceNodeID, SigParamGetSet, DTIDParamGetSet, &tid, t.Priority, canard.TransferResponse, buf[:sz]); err != nil {
		glog.Errorf("param getset response: %v", err)
	}
}

// handleParamExecuteOpcode serves ERASE (reset every value to its Min,
// the factory default) and SAVE (write every slot). Always answers ok.
func (n *Node) handleParamExecuteOpcode(t *canard.Transfer) {
	var req ParamExecuteOpcodeRequest
	if err := req.Unmarshal(t.Payload); err != nil {
		return
	}
	switch req.Opcode {
	case OpcodeErase:
		for i := range n.params {
			n.params[i].Value = n.params[i].Min
		}
	case OpcodeSave:
		for i := range n.params {
			n.persistSlot(i)
		}
	}

	rsp := ParamExecuteOpcodeResponse{OK: true}
	var buf [ParamExecuteOpcodeResponseSize]byte
	sz, _ := rsp.Marshal(buf[:])
	tid := t.TransferID
	if err := n.tp.RequestOrRespond(t.SourceNodeID, SigParamExecuteOpcode, DTIDParamExecuteOpcode, &tid, t.Priority, canard.TransferResponse, buf[:sz]); err != nil {
		glog.Errorf("param opcode response: %v", err)
	}
}
