package serial

import (
	"errors"
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// Open opens a device with tarm/serial. A zero ReadTimeout blocks until
// at least one byte arrives.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("serial: nil config")
	}
	if cfg.Device == "" {
		return nil, errors.New("serial: no device")
	}

	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return &native{Port: p}, nil
}

type native struct {
	*serial.Port
}

// Flush is a no-op: writes are synchronous, and tarm's Flush discards
// pending data instead of sending it
func (n *native) Flush() error { return nil }
