package core

// MotionMode is the active motion mode, numbered by its G code. The probe
// modes use private values above every real G number.
type MotionMode uint8

const (
	MotionSeek          MotionMode = 0
	MotionLinear        MotionMode = 1
	MotionCWArc         MotionMode = 2
	MotionCCWArc        MotionMode = 3
	MotionSpindleSynced MotionMode = 33
	MotionDrillChipBrk  MotionMode = 73
	MotionThreading     MotionMode = 76
	MotionNone          MotionMode = 80
	MotionDrill         MotionMode = 81
	MotionDrillDwell    MotionMode = 82
	MotionDrillPeck     MotionMode = 83

	MotionProbeToward        MotionMode = 140 // G38.2
	MotionProbeTowardNoError MotionMode = 141 // G38.3
	MotionProbeAway          MotionMode = 142 // G38.4
	MotionProbeAwayNoError   MotionMode = 143 // G38.5
)

// IsProbe reports whether m is one of the G38.x modes
func (m MotionMode) IsProbe() bool {
	return m >= MotionProbeToward
}

// ProbeSuffix returns the x in G38.x
func (m MotionMode) ProbeSuffix() uint32 {
	return uint32(m-MotionProbeToward) + 2
}

// Plane is the arc plane selection
type Plane uint8

const (
	PlaneXY Plane = iota // G17
	PlaneZX              // G18
	PlaneYZ              // G19
)

// ProgramFlow is the pending program stop or end
type ProgramFlow uint8

const (
	ProgramRunning      ProgramFlow = 0
	ProgramOptionalStop ProgramFlow = 1  // M1
	ProgramCompletedM2  ProgramFlow = 2  // M2
	ProgramPaused       ProgramFlow = 3  // M0
	ProgramCompletedM30 ProgramFlow = 30 // M30
)

// OverrideDisable is the set of overrides locked out by M50/M51/M53/M56
type OverrideDisable uint8

const (
	DisableFeedOverride    OverrideDisable = 1 << iota // M50
	DisableSpindleOverride                             // M51
	DisableFeedHold                                    // M53
	DisableParking                                     // M56
)

// ModalState is the interpreter state the reporter reads. It is always
// handed over by value.
type ModalState struct {
	Motion          MotionMode
	CoordSystem     int // slot index, 0 is G54
	DiameterMode    bool
	Plane           Plane
	Inches          bool
	Incremental     bool
	InverseTime     bool
	ScalingActive   bool
	ScaledAxes      AxisMask
	ProgramFlow     ProgramFlow
	Spindle         SpindleState
	Coolant         CoolantState
	ToolChange      bool
	OverrideDisable OverrideDisable
	Tool            uint32
	FeedRate        float64 // mm/min
	SpindleRPM      float64

	// Offsets making up the work coordinate offset
	CoordOffset Vector
	G92         Vector
	TLO         Vector
}

// WCO returns the work coordinate offset: coordinate system + G92 + tool
// length offset
func (m *ModalState) WCO() Vector {
	return m.CoordOffset.Add(m.G92).Add(m.TLO)
}
