package core

// ControlSignals is the set of asserted control inputs
type ControlSignals uint8

const (
	SignalSafetyDoorAjar ControlSignals = 1 << iota
	SignalReset
	SignalFeedHold
	SignalCycleStart
	SignalEStop
	SignalBlockDelete
	SignalStopDisable
)

// controlLetters is the pin report letter for each signal, in report order
var controlLetters = []struct {
	signal ControlSignals
	letter byte
}{
	{SignalSafetyDoorAjar, 'D'},
	{SignalReset, 'R'},
	{SignalFeedHold, 'H'},
	{SignalCycleStart, 'S'},
	{SignalEStop, 'E'},
	{SignalBlockDelete, 'B'},
	{SignalStopDisable, 'T'},
}

// Letters renders the asserted signals in report order
func (c ControlSignals) Letters() string {
	var out []byte
	for _, cl := range controlLetters {
		if c&cl.signal != 0 {
			out = append(out, cl.letter)
		}
	}
	return string(out)
}

// SpindleState is the spindle output state
type SpindleState struct {
	On  bool
	CCW bool
}

// CoolantState is the coolant output state
type CoolantState struct {
	Flood bool
	Mist  bool
}

// Active reports whether any coolant output is on
func (c CoolantState) Active() bool {
	return c.Flood || c.Mist
}

// Override limits and steps, in percent
const (
	OverrideDefault     = 100
	FeedOverrideMin     = 10
	FeedOverrideMax     = 200
	SpindleOverrideMin  = 10
	SpindleOverrideMax  = 200
	OverrideCoarseStep  = 10
	OverrideFineStep    = 1
	RapidOverrideMedium = 50
	RapidOverrideLow    = 25
)

// Overrides holds the runtime multipliers in percent
type Overrides struct {
	Feed    uint8
	Rapid   uint8
	Spindle uint8
}

// DefaultOverrides returns all overrides at 100%
func DefaultOverrides() Overrides {
	return Overrides{Feed: OverrideDefault, Rapid: OverrideDefault, Spindle: OverrideDefault}
}

func clampOverride(v, lo, hi int) uint8 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint8(v)
}
