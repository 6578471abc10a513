// Package settings holds the persisted firmware settings ($ numbers), the
// coordinate offset table, the tool table and the startup lines.
package settings

import (
	"gorbl/core"
	"gorbl/protocol"
)

// ID is a protocol setting number
type ID uint16

// Global settings. The numbering is part of the wire protocol.
const (
	PulseMicroseconds        ID = 0
	StepperIdleLockTime      ID = 1
	StepInvertMask           ID = 2
	DirInvertMask            ID = 3
	InvertStepperEnable      ID = 4
	LimitPinsInvertMask      ID = 5
	InvertProbePin           ID = 6
	StatusReportMask         ID = 10
	JunctionDeviation        ID = 11
	ArcTolerance             ID = 12
	ReportInches             ID = 13
	ControlInvertMask        ID = 14
	CoolantInvertMask        ID = 15
	SpindleInvertMask        ID = 16
	ControlPullUpDisableMask ID = 17
	LimitPullUpDisableMask   ID = 18
	ProbePullUpDisable       ID = 19
	SoftLimitsEnable         ID = 20
	HardLimitsEnable         ID = 21
	HomingEnable             ID = 22
	HomingDirMask            ID = 23
	HomingFeedRate           ID = 24
	HomingSeekRate           ID = 25
	HomingDebounceDelay      ID = 26
	HomingPulloff            ID = 27
	G73Retract               ID = 28
	PulseDelayMicroseconds   ID = 29
	RpmMax                   ID = 30
	RpmMin                   ID = 31
	LaserMode                ID = 32
	PWMFreq                  ID = 33
	PWMOffValue              ID = 34
	PWMMinValue              ID = 35
	PWMMaxValue              ID = 36
	StepperDeenergizeMask    ID = 37
	SpindlePPR               ID = 38
	SpindlePGain             ID = 39
	SpindleIGain             ID = 40
	SpindleDGain             ID = 41
	HomingLocateCycles       ID = 43
	HomingCycle1             ID = 44

	AxisSettingsBase      ID = 100
	AxisSettingsIncrement ID = 10
)

// AxisSetting is a per-axis setting group
type AxisSetting uint8

const (
	AxisStepsPerMM AxisSetting = iota
	AxisMaxRate
	AxisAcceleration
	AxisMaxTravel
	AxisStepperCurrent

	axisSettingCount
)

// AxisID returns the setting number of group g for axis
func AxisID(g AxisSetting, axis int) ID {
	return AxisSettingsBase + ID(g)*AxisSettingsIncrement + ID(axis)
}

// StatusReport is the $10 bitmask selecting optional status frame fields
type StatusReport uint16

const (
	ReportMachinePosition StatusReport = 1 << iota
	ReportBufferState
	ReportLineNumbers
	ReportFeedSpeed
	ReportPinState
	ReportWorkCoordOffset
	ReportOverrides
)

// Has reports whether bit f is set
func (m StatusReport) Has(f StatusReport) bool {
	return m&f != 0
}

// Kind is how a setting value is parsed and formatted
type Kind uint8

const (
	KindUint Kind = iota
	KindFloat
)

// Requirement gates a setting on a driver capability
type Requirement uint8

const (
	RequiresNone Requirement = iota
	RequiresSpindleSync
	RequiresVariableSpindle
	RequiresStepperCurrent
)

// Descriptor describes one setting
type Descriptor struct {
	ID       ID
	Kind     Kind
	Decimals int
	Default  float64
	// Scale divides the stored value for display; zero means 1
	Scale float64
	// Negate flips the sign between stored and displayed values
	Negate   bool
	Requires Requirement
	// Min is the smallest accepted displayed value, checked when HasMin is set
	Min    float64
	HasMin bool
}

func (d Descriptor) toDisplay(stored float64) float64 {
	if d.Negate {
		stored = -stored
	}
	if d.Scale != 0 {
		stored /= d.Scale
	}
	return stored
}

func (d Descriptor) fromDisplay(v float64) float64 {
	if d.Scale != 0 {
		v *= d.Scale
	}
	if d.Negate {
		v = -v
	}
	return v
}

func uintSetting(id ID, def float64) Descriptor {
	return Descriptor{ID: id, Kind: KindUint, Default: def}
}

func floatSetting(id ID, def float64) Descriptor {
	return Descriptor{ID: id, Kind: KindFloat, Decimals: protocol.DecimalSetting, Default: def}
}

// globalSettings lists the global settings in dump order
var globalSettings = []Descriptor{
	{ID: PulseMicroseconds, Kind: KindUint, Default: 10, Min: 3, HasMin: true},
	uintSetting(StepperIdleLockTime, 25),
	uintSetting(StepInvertMask, 0),
	uintSetting(DirInvertMask, 0),
	uintSetting(InvertStepperEnable, 0),
	uintSetting(LimitPinsInvertMask, 0),
	uintSetting(InvertProbePin, 0),
	uintSetting(StatusReportMask, float64(ReportMachinePosition|ReportBufferState|ReportLineNumbers|
		ReportFeedSpeed|ReportPinState|ReportWorkCoordOffset|ReportOverrides)),
	floatSetting(JunctionDeviation, 0.01),
	floatSetting(ArcTolerance, 0.002),
	uintSetting(ReportInches, 0),
	uintSetting(ControlInvertMask, 0),
	uintSetting(CoolantInvertMask, 0),
	uintSetting(SpindleInvertMask, 0),
	uintSetting(ControlPullUpDisableMask, 0),
	uintSetting(LimitPullUpDisableMask, 0),
	uintSetting(ProbePullUpDisable, 0),
	uintSetting(SoftLimitsEnable, 0),
	uintSetting(HardLimitsEnable, 0),
	uintSetting(HomingEnable, 0),
	uintSetting(HomingDirMask, 0),
	floatSetting(HomingFeedRate, 25),
	floatSetting(HomingSeekRate, 500),
	uintSetting(HomingDebounceDelay, 250),
	floatSetting(HomingPulloff, 1),
	floatSetting(G73Retract, 0.1),
	uintSetting(PulseDelayMicroseconds, 0),
	{ID: RpmMax, Kind: KindFloat, Decimals: protocol.DecimalRPM, Default: 1000},
	{ID: RpmMin, Kind: KindFloat, Decimals: protocol.DecimalRPM, Default: 0},
	{ID: LaserMode, Kind: KindUint, Requires: RequiresVariableSpindle},
	floatSetting(PWMFreq, 5000),
	floatSetting(PWMOffValue, 0),
	floatSetting(PWMMinValue, 0),
	floatSetting(PWMMaxValue, 100),
	uintSetting(StepperDeenergizeMask, 0),
	{ID: SpindlePPR, Kind: KindUint, Default: 0, Requires: RequiresSpindleSync},
	{ID: SpindlePGain, Kind: KindFloat, Decimals: protocol.DecimalSetting, Default: 1, Requires: RequiresSpindleSync},
	{ID: SpindleIGain, Kind: KindFloat, Decimals: protocol.DecimalSetting, Default: 0.01, Requires: RequiresSpindleSync},
	{ID: SpindleDGain, Kind: KindFloat, Decimals: protocol.DecimalSetting, Default: 0, Requires: RequiresSpindleSync},
	uintSetting(HomingLocateCycles, 1),
}

// homingCycleDefaults is the axis mask homed by each cycle
var homingCycleDefaults = [core.NumAxes]float64{4, 3, 0}

// axisDescriptor returns the descriptor for group g
func axisDescriptor(g AxisSetting, axis int) Descriptor {
	d := Descriptor{ID: AxisID(g, axis), Kind: KindFloat, Decimals: protocol.DecimalSetting}
	switch g {
	case AxisStepsPerMM:
		d.Default = 250
		d.Min, d.HasMin = 0.001, true
	case AxisMaxRate:
		d.Default = 500
		d.Min, d.HasMin = 0.001, true
	case AxisAcceleration:
		d.Default = 10 * 60 * 60
		d.Scale = 60 * 60
	case AxisMaxTravel:
		d.Default = -200
		d.Negate = true
	case AxisStepperCurrent:
		d.Default = 500
		d.Requires = RequiresStepperCurrent
	}
	return d
}

// Entry is one setting value ready for display
type Entry struct {
	ID       ID
	Kind     Kind
	Decimals int
	Value    float64
}
