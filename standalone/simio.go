package standalone

import (
	"sync"

	"gorbl/core"
	"gorbl/report"
	"gorbl/standalone/kinematics"
)

// SimIO stands in for the input pins and accessory outputs. Outputs
// follow the interpreter's modal state.
type SimIO struct {
	sys   *core.System
	kin   kinematics.Kinematics
	modal report.ModalSource

	mu      sync.Mutex
	probe   bool
	surface *float64
	limits  core.AxisMask
	control core.ControlSignals
}

// NewSimIO creates simulated I/O with every input released
func NewSimIO(sys *core.System, kin kinematics.Kinematics) *SimIO {
	return &SimIO{sys: sys, kin: kin}
}

// SetProbe forces the probe input
func (s *SimIO) SetProbe(on bool) {
	s.mu.Lock()
	s.probe = on
	s.mu.Unlock()
}

// SetProbeSurface places a virtual touch plate at machine Z. The probe
// reads triggered at or below it.
func (s *SimIO) SetProbeSurface(z float64) {
	s.mu.Lock()
	s.surface = &z
	s.mu.Unlock()
}

// SetLimits sets the asserted limit switches
func (s *SimIO) SetLimits(m core.AxisMask) {
	s.mu.Lock()
	s.limits = m
	s.mu.Unlock()
}

// SetControl sets the asserted control inputs
func (s *SimIO) SetControl(c core.ControlSignals) {
	s.mu.Lock()
	s.control = c
	s.mu.Unlock()
}

func (s *SimIO) Limits() core.AxisMask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

func (s *SimIO) Control() core.ControlSignals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control
}

func (s *SimIO) Probe() bool {
	s.mu.Lock()
	probe, surface := s.probe, s.surface
	s.mu.Unlock()
	if probe {
		return true
	}
	if surface == nil {
		return false
	}
	return s.kin.StepsToMPos(s.sys.Position())[core.AxisZ] <= *surface
}

func (s *SimIO) Spindle() core.SpindleState {
	if s.modal == nil {
		return core.SpindleState{}
	}
	return s.modal.ModalState().Spindle
}

func (s *SimIO) Coolant() core.CoolantState {
	if s.modal == nil {
		return core.CoolantState{}
	}
	return s.modal.ModalState().Coolant
}

// MeasuredRPM simulates an encoder that tracks the commanded speed
func (s *SimIO) MeasuredRPM() float64 {
	snap := s.sys.Snapshot()
	return snap.SpindleRPM * float64(snap.Overrides.Spindle) / 100
}
