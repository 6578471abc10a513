// Package mirror publishes a compact machine status to holding
// registers on a Modbus TCP endpoint.
package mirror

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Writer writes holding registers
type Writer interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// Config places the register block
type Config struct {
	UnitID       uint8
	BaseRegister uint16
	Interval     time.Duration
}

// Mirror samples the machine and writes the register block whenever it
// changed
type Mirror struct {
	log    logrus.FieldLogger
	w      Writer
	sample Sampler
	cfg    Config

	last   []uint16
	failed bool
}

// New creates a mirror
func New(log logrus.FieldLogger, w Writer, sample Sampler, cfg Config) *Mirror {
	if cfg.Interval <= 0 {
		cfg.Interval = 200 * time.Millisecond
	}
	return &Mirror{log: log, w: w, sample: sample, cfg: cfg}
}

// Publish writes the current sample. An unchanged block is not written
// again. It reports whether a write happened.
func (m *Mirror) Publish() (bool, error) {
	regs := Encode(m.sample())
	if equal(regs, m.last) {
		return false, nil
	}
	if err := m.w.WriteRegisters(m.cfg.UnitID, m.cfg.BaseRegister, regs); err != nil {
		return false, err
	}
	m.last = regs
	return true, nil
}

// Run publishes every interval until ctx is done. A failing endpoint is
// logged once until it recovers.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_, err := m.Publish()
		switch {
		case err != nil && !m.failed:
			m.failed = true
			m.log.WithError(err).Warn("modbus mirror write failed")
		case err == nil && m.failed:
			m.failed = false
			m.log.Info("modbus mirror recovered")
		}
	}
}

func equal(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
