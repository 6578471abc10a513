package core

// Capabilities describes what the attached driver can do. It gates optional
// settings, status fields and build option letters.
type Capabilities struct {
	VariableSpindle  bool
	SpindleEncoder   bool // measured RPM is available
	SpindleSync      bool
	MistControl      bool
	SafetyDoor       bool
	SoftwareDebounce bool
	ParkingOverride  bool
	ManualToolChange bool
	StepperCurrent   bool // per-axis current is a setting
	Tools            int  // tool table size, 0 when there is no tool table
}

// Inputs reads the live input pins
type Inputs interface {
	Limits() AxisMask
	Control() ControlSignals
	Probe() bool
}

// Outputs reads the live accessory outputs
type Outputs interface {
	Spindle() SpindleState
	Coolant() CoolantState
	// MeasuredRPM returns the encoder spindle speed when one is fitted
	MeasuredRPM() float64
}
