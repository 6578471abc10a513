package mirror

import (
	"math"

	"gorbl/core"
	"gorbl/standalone"
)

// Holding register layout, relative to the base register. Positions are
// signed micrometres split high word first.
const (
	RegState      = 0  // core.MachineState bits
	RegSubState   = 1  // hold or door sub-state
	RegMPos       = 2  // X, Y, Z: two registers each
	RegWPos       = 8  // X, Y, Z: two registers each
	RegOverrides  = 14 // feed, rapid, spindle percent
	RegRate       = 17 // mm/min
	RegSpindleRPM = 18
	RegLine       = 19 // two registers
	RegFlags      = 21

	RegisterCount = 22
)

// Flag bits in RegFlags
const (
	FlagProbeSucceeded = 1 << iota
	FlagBlockDelete
	FlagMPG
)

// Sample is the state published on each cycle
type Sample struct {
	State       core.MachineState
	SubState    uint8
	MPos        core.Vector
	WPos        core.Vector
	Overrides   core.Overrides
	Rate        float64
	SpindleRPM  float64
	Line        int32
	ProbeOK     bool
	BlockDelete bool
	MPG         bool
}

// Sampler returns the current sample
type Sampler func() Sample

// MachineSampler samples a simulated machine
func MachineSampler(m *standalone.Machine) Sampler {
	return func() Sample {
		snap := m.System.Snapshot()
		mpos := m.Kinematics.StepsToMPos(snap.Position)
		line, _ := m.Planner.CurrentLine()
		modal := m.Interpreter.ModalState()

		s := Sample{
			State:       snap.State,
			MPos:        mpos,
			WPos:        mpos.Sub(modal.WCO()),
			Overrides:   snap.Overrides,
			Rate:        snap.RealtimeRate,
			SpindleRPM:  snap.SpindleRPM,
			Line:        line,
			ProbeOK:     snap.ProbeSucceeded,
			BlockDelete: snap.BlockDelete,
			MPG:         snap.MPGMode,
		}
		switch snap.State {
		case core.StateHold:
			s.SubState = uint8(snap.Holding)
		case core.StateSafetyDoor:
			s.SubState = uint8(snap.Parking)
		}
		return s
	}
}

// Encode lays a sample out as holding registers
func Encode(s Sample) []uint16 {
	regs := make([]uint16, RegisterCount)
	regs[RegState] = uint16(s.State)
	regs[RegSubState] = uint16(s.SubState)
	for axis := 0; axis < core.NumAxes; axis++ {
		putInt32(regs[RegMPos+2*axis:], micrometres(s.MPos[axis]))
		putInt32(regs[RegWPos+2*axis:], micrometres(s.WPos[axis]))
	}
	regs[RegOverrides] = uint16(s.Overrides.Feed)
	regs[RegOverrides+1] = uint16(s.Overrides.Rapid)
	regs[RegOverrides+2] = uint16(s.Overrides.Spindle)
	regs[RegRate] = clampUint16(s.Rate)
	regs[RegSpindleRPM] = clampUint16(s.SpindleRPM)
	putInt32(regs[RegLine:], s.Line)

	var flags uint16
	if s.ProbeOK {
		flags |= FlagProbeSucceeded
	}
	if s.BlockDelete {
		flags |= FlagBlockDelete
	}
	if s.MPG {
		flags |= FlagMPG
	}
	regs[RegFlags] = flags
	return regs
}

// Int32At decodes a two-register value
func Int32At(regs []uint16, at int) int32 {
	return int32(uint32(regs[at])<<16 | uint32(regs[at+1]))
}

func putInt32(dst []uint16, v int32) {
	dst[0] = uint16(uint32(v) >> 16)
	dst[1] = uint16(uint32(v))
}

func micrometres(mm float64) int32 {
	um := math.Round(mm * 1000)
	switch {
	case um > math.MaxInt32:
		return math.MaxInt32
	case um < math.MinInt32:
		return math.MinInt32
	}
	return int32(um)
}

func clampUint16(v float64) uint16 {
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(math.Round(v))
}
