package canard

// Transfer CRC: CRC-16-CCITT-FALSE seeded with the 64-bit data type
// signature (big-endian byte order, per the UAVCAN v0 specification).

const crcInitial uint16 = 0xFFFF

func crcAddByte(crc uint16, b byte) uint16 {
	crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = crc<<1 ^ 0x1021
		} else {
			crc <<= 1
		}
	}
	return crc
}

func crcAdd(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crcAddByte(crc, b)
	}
	return crc
}

func crcAddSignature(crc uint16, signature uint64) uint16 {
	for shift := 56; shift >= 0; shift -= 8 {
		crc = crcAddByte(crc, byte(signature>>uint(shift)))
	}
	return crc
}

func transferCRC(signature uint64, payload []byte) uint16 {
	return crcAdd(crcAddSignature(crcInitial, signature), payload)
}
