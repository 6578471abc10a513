package tmc2130

import (
	"errors"
	"sync"
)

var errDatagram = errors.New("tmc2130: datagram must be 5 bytes")

// SimBus emulates one TMC2130 on an SPI bus: writes land in a register
// file and each datagram returns the register addressed by the previous
// one. It satisfies drivers.SPI.
type SimBus struct {
	mu     sync.Mutex
	regs   map[uint8]uint32
	last   uint8
	writes map[uint8]int
}

// NewSimBus returns a powered up driver with IOIN reporting version 0x11
func NewSimBus() *SimBus {
	return &SimBus{
		regs:   map[uint8]uint32{IOIN: 0x11 << 24},
		writes: make(map[uint8]int),
	}
}

// Register returns the current value of reg
func (b *SimBus) Register(reg uint8) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[reg]
}

// WriteCount returns how many times reg has been written
func (b *SimBus) WriteCount(reg uint8) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes[reg]
}

func (b *SimBus) Tx(w, r []byte) error {
	if len(w) != 5 || (r != nil && len(r) != 5) {
		return errDatagram
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	reply := b.regs[b.last]
	if r != nil {
		r[0] = StatusStandstill
		r[1], r[2], r[3], r[4] = byte(reply>>24), byte(reply>>16), byte(reply>>8), byte(reply)
	}

	addr := w[0] &^ writeFlag
	if w[0]&writeFlag != 0 {
		b.regs[addr] = uint32(w[1])<<24 | uint32(w[2])<<16 | uint32(w[3])<<8 | uint32(w[4])
		b.writes[addr]++
	}
	b.last = addr
	return nil
}

// Transfer is not used by the datagram protocol
func (b *SimBus) Transfer(byte) (byte, error) {
	return 0, errDatagram
}
