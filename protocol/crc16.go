package protocol

// CRC16 is the CCITT checksum used to guard persisted settings blocks.
// The zero value is not a valid seed; start from NewCRC16.
type CRC16 uint16

// NewCRC16 returns the initial checksum state
func NewCRC16() CRC16 {
	return 0xFFFF
}

// Update folds data into the checksum
func (c CRC16) Update(data []byte) CRC16 {
	crc := uint16(c)
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		w := uint16(b)
		crc = (w<<8 | crc>>8) ^ (w >> 4) ^ (w << 3)
	}
	return CRC16(crc)
}

// Checksum returns the CRC16 of data
func Checksum(data []byte) uint16 {
	return uint16(NewCRC16().Update(data))
}
