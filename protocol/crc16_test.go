package protocol

import "testing"

func TestChecksumEmpty(t *testing.T) {
	if got := Checksum(nil); got != 0xFFFF {
		t.Errorf("Checksum of empty input should be the seed, got 0x%04X", got)
	}
}

func TestChecksumIncremental(t *testing.T) {
	data := []byte("$100=250.000\r\n$101=250.000\r\n")

	whole := Checksum(data)
	split := uint16(NewCRC16().Update(data[:7]).Update(data[7:]))

	if whole != split {
		t.Errorf("Incremental checksum differs: whole=0x%04X split=0x%04X", whole, split)
	}
}

func TestChecksumDetectsChange(t *testing.T) {
	a := Checksum([]byte{0x01, 0x02, 0x03})
	b := Checksum([]byte{0x01, 0x02, 0x04})
	if a == b {
		t.Errorf("Checksum collision: both inputs produced 0x%04X", a)
	}
}
