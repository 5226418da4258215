package canard

// 29-bit identifier layouts per the UAVCAN v0 transport specification.
//
// Message:   prio[28:24] dtid[23:8]                 service=0[7] src[6:0]
// Anonymous: prio[28:24] discr[23:10] dtid[9:8]     service=0[7] src=0[6:0]
// Service:   prio[28:24] dtid[23:16] req[15] dst[14:8] service=1[7] src[6:0]

const (
	// BroadcastNodeID is the anonymous (unallocated) node id.
	BroadcastNodeID uint8 = 0
	// MaxNodeID is the highest valid node id.
	MaxNodeID uint8 = 127

	nodeIDMask     = 0x7F
	serviceFlag    = 1 << 7
	requestFlag    = 1 << 15
	discriminatorM = 0x3FFF
)

func messageID(prio Priority, dataTypeID uint16, src uint8) uint32 {
	return uint32(prio&0x1F)<<24 | uint32(dataTypeID)<<8 | uint32(src&nodeIDMask)
}

func anonymousID(prio Priority, dataTypeID uint16, discriminator uint16) uint32 {
	return uint32(prio&0x1F)<<24 |
		uint32(discriminator&discriminatorM)<<10 |
		uint32(dataTypeID&0x3)<<8
}

func serviceID(prio Priority, dataTypeID uint16, request bool, dst, src uint8) uint32 {
	id := uint32(prio&0x1F)<<24 |
		uint32(dataTypeID&0xFF)<<16 |
		uint32(dst&nodeIDMask)<<8 |
		serviceFlag |
		uint32(src&nodeIDMask)
	if request {
		id |= requestFlag
	}
	return id
}

// frameInfo is the decoded identifier of a received frame.
type frameInfo struct {
	kind       TransferKind
	priority   Priority
	dataTypeID uint16
	src        uint8
	dst        uint8 // service frames only
}

func parseID(id uint32) frameInfo {
	fi := frameInfo{
		priority: Priority(id >> 24 & 0x1F),
		src:      uint8(id & nodeIDMask),
	}
	if id&serviceFlag != 0 {
		fi.dataTypeID = uint16(id >> 16 & 0xFF)
		fi.dst = uint8(id >> 8 & nodeIDMask)
		if id&requestFlag != 0 {
			fi.kind = TransferRequest
		} else {
			fi.kind = TransferResponse
		}
		return fi
	}
	fi.kind = TransferBroadcast
	if fi.src == BroadcastNodeID {
		// Anonymous frame: only the two low bits of the type id survive.
		fi.dataTypeID = uint16(id >> 8 & 0x3)
	} else {
		fi.dataTypeID = uint16(id >> 8 & 0xFFFF)
	}
	return fi
}
