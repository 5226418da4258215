package dronecan

import "github.com/imperator-maximus/Quassel-UGV/pkg/canard"

// shouldAccept is the transport acceptance predicate: it names, per
// (kind, data type id), the signature of every transfer this node cares
// about. Anything else is rejected before reassembly starts.
func (n *Node) shouldAccept(kind canard.TransferKind, dataTypeID uint16, sourceNodeID uint8) (uint64, bool) {
	switch kind {
	case canard.TransferRequest:
		switch dataTypeID {
		case DTIDGetNodeInfo:
			return SigGetNodeInfo, true
		case DTIDParamGetSet:
			return SigParamGetSet, true
		case DTIDParamExecuteOpcode:
			return SigParamExecuteOpcode, true
		case DTIDBeginFirmwareUpdate:
			return SigBeginFirmwareUpdate, true
		case DTIDFileRead:
			return SigFileRead, true
		case DTIDRestartNode:
			return SigRestartNode, true
		}
	case canard.TransferResponse:
		switch dataTypeID {
		case DTIDFileRead:
			return SigFileRead, true
		case DTIDParamGetSet:
			return SigParamGetSet, true
		}
	case canard.TransferBroadcast:
		switch dataTypeID {
		case DTIDAllocation:
			return SigAllocation, true
		case DTIDLogMessage:
			return SigLogMessage, true
		case DTIDKeyValue:
			return SigKeyValue, true
		}
	}
	return 0, false
}

// handleTransfer routes one completed inbound transfer. Unmatched
// transfers are dropped without comment.
func (n *Node) handleTransfer(t *canard.Transfer) {
	switch t.Kind {
	case canard.TransferBroadcast:
		switch t.DataTypeID {
		case DTIDAllocation:
			n.handleAllocation(t)
		}
	case canard.TransferRequest:
		switch t.DataTypeID {
		case DTIDGetNodeInfo:
			n.handleGetNodeInfo(t)
		case DTIDRestartNode:
			n.handleRestartNode(t)
		case DTIDParamGetSet:
			n.handleParamGetSet(t)
		case DTIDParamExecuteOpcode:
			n.handleParamExecuteOpcode(t)
		case DTIDBeginFirmwareUpdate:
			n.handleBeginFirmwareUpdate(t)
		}
	case canard.TransferResponse:
		switch t.DataTypeID {
		case DTIDFileRead:
			n.handleFileReadResponse(t)
		}
	}
}
