package frame

// CRC-16/KERMIT: poly 0x1021 reflected (0x8408), init 0x0000, no final xor.
const crcPolyReflected uint16 = 0x8408

var crcTable = func() [256]uint16 {
	var t [256]uint16
	for i := range t {
		crc := uint16(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crcPolyReflected
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}()

func crcUpdate(crc uint16, b byte) uint16 {
	return (crc >> 8) ^ crcTable[byte(crc)^b]
}

// Checksum returns the frame check sequence for payload.
func Checksum(payload []byte) uint16 {
	var crc uint16
	for _, b := range payload {
		crc = crcUpdate(crc, b)
	}
	return crc
}
