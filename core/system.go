package core

// ReportFlags request one-shot fields on the next status frame
type ReportFlags uint8

const (
	ReportScaling     ReportFlags = 1 << iota // Emit Sc: once
	ReportMPGMode                             // Emit MPG: once
	ReportWCO                                 // Emit WCO: on the next frame
	ReportOverrides                           // Emit Ov: on the next frame
	ReportAccessories                         // Emit A: on the next frame even if empty
)

// Snapshot is a torn-free copy of the motion-owned machine state
type Snapshot struct {
	Position       StepVector
	State          MachineState
	Holding        HoldState
	Parking        ParkingState
	RealtimeRate   float64 // mm/min
	SpindleRPM     float64 // programmed, before override
	Overrides      Overrides
	BlockDelete    bool
	MPGMode        bool
	ProbePosition  StepVector
	ProbeSucceeded bool
}

// System is the machine state shared between the motion engine, the line
// session and the reporter. Every access goes through the critical section
// and copies at most a few words.
type System struct {
	position       StepVector
	state          MachineState
	holding        HoldState
	parking        ParkingState
	realtimeRate   float64
	spindleRPM     float64
	overrides      Overrides
	blockDelete    bool
	mpgMode        bool
	probePosition  StepVector
	probeSucceeded bool
	report         ReportFlags
}

// NewSystem creates a System in the Idle state with default overrides
func NewSystem() *System {
	return &System{
		state:     StateIdle,
		overrides: DefaultOverrides(),
	}
}

// Snapshot copies the current machine state
func (s *System) Snapshot() Snapshot {
	state := disableInterrupts()
	snap := Snapshot{
		Position:       s.position,
		State:          s.state,
		Holding:        s.holding,
		Parking:        s.parking,
		RealtimeRate:   s.realtimeRate,
		SpindleRPM:     s.spindleRPM,
		Overrides:      s.overrides,
		BlockDelete:    s.blockDelete,
		MPGMode:        s.mpgMode,
		ProbePosition:  s.probePosition,
		ProbeSucceeded: s.probeSucceeded,
	}
	restoreInterrupts(state)
	return snap
}

// Position returns the current step position
func (s *System) Position() StepVector {
	state := disableInterrupts()
	pos := s.position
	restoreInterrupts(state)
	return pos
}

// SetPosition replaces the step position
func (s *System) SetPosition(pos StepVector) {
	state := disableInterrupts()
	s.position = pos
	restoreInterrupts(state)
}

// Step moves every axis by delta steps in one update
func (s *System) Step(delta StepVector) {
	state := disableInterrupts()
	for i := range s.position {
		s.position[i] += delta[i]
	}
	restoreInterrupts(state)
}

// State returns the machine-state tag
func (s *System) State() MachineState {
	state := disableInterrupts()
	st := s.state
	restoreInterrupts(state)
	return st
}

// SetState changes the machine-state tag. Undefined states are rejected.
func (s *System) SetState(st MachineState) bool {
	if !st.Valid() {
		return false
	}
	state := disableInterrupts()
	s.state = st
	if st != StateHold {
		s.holding = HoldNotHolding
	}
	restoreInterrupts(state)
	return true
}

// SetHold enters the Hold state with the given sub-state
func (s *System) SetHold(h HoldState) {
	state := disableInterrupts()
	s.state = StateHold
	s.holding = h
	restoreInterrupts(state)
}

// SetDoor enters the SafetyDoor state with the given parking sub-state
func (s *System) SetDoor(p ParkingState) {
	state := disableInterrupts()
	s.state = StateSafetyDoor
	s.parking = p
	restoreInterrupts(state)
}

// SetRealtimeRate records the feed rate currently executed by the steppers
func (s *System) SetRealtimeRate(mmPerMin float64) {
	state := disableInterrupts()
	s.realtimeRate = mmPerMin
	restoreInterrupts(state)
}

// SetSpindleRPM records the programmed spindle speed
func (s *System) SetSpindleRPM(rpm float64) {
	state := disableInterrupts()
	s.spindleRPM = rpm
	restoreInterrupts(state)
}

// Overrides returns the current override percentages
func (s *System) Overrides() Overrides {
	state := disableInterrupts()
	o := s.overrides
	restoreInterrupts(state)
	return o
}

// AdjustFeedOverride changes the feed override by delta percent, or resets
// it when delta is zero. The next status frame reports the change.
func (s *System) AdjustFeedOverride(delta int) {
	state := disableInterrupts()
	if delta == 0 {
		s.overrides.Feed = OverrideDefault
	} else {
		s.overrides.Feed = clampOverride(int(s.overrides.Feed)+delta, FeedOverrideMin, FeedOverrideMax)
	}
	s.report |= ReportOverrides
	restoreInterrupts(state)
}

// SetRapidOverride selects one of the fixed rapid override levels
func (s *System) SetRapidOverride(pct uint8) {
	state := disableInterrupts()
	switch pct {
	case OverrideDefault, RapidOverrideMedium, RapidOverrideLow:
		s.overrides.Rapid = pct
		s.report |= ReportOverrides
	}
	restoreInterrupts(state)
}

// AdjustSpindleOverride changes the spindle override by delta percent, or
// resets it when delta is zero
func (s *System) AdjustSpindleOverride(delta int) {
	state := disableInterrupts()
	if delta == 0 {
		s.overrides.Spindle = OverrideDefault
	} else {
		s.overrides.Spindle = clampOverride(int(s.overrides.Spindle)+delta, SpindleOverrideMin, SpindleOverrideMax)
	}
	s.report |= ReportOverrides
	restoreInterrupts(state)
}

// SetBlockDelete enables or disables block delete
func (s *System) SetBlockDelete(on bool) {
	state := disableInterrupts()
	s.blockDelete = on
	restoreInterrupts(state)
}

// SetMPGMode switches MPG mode and flags the change for the next report
func (s *System) SetMPGMode(on bool) {
	state := disableInterrupts()
	if s.mpgMode != on {
		s.mpgMode = on
		s.report |= ReportMPGMode
	}
	restoreInterrupts(state)
}

// SetProbe records a probe result in step units
func (s *System) SetProbe(pos StepVector, succeeded bool) {
	state := disableInterrupts()
	s.probePosition = pos
	s.probeSucceeded = succeeded
	restoreInterrupts(state)
}

// RequestReport sets one-shot report flags
func (s *System) RequestReport(f ReportFlags) {
	state := disableInterrupts()
	s.report |= f
	restoreInterrupts(state)
}

// TakeReport returns the pending report flags and clears them
func (s *System) TakeReport() ReportFlags {
	state := disableInterrupts()
	f := s.report
	s.report = 0
	restoreInterrupts(state)
	return f
}
