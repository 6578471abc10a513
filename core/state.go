package core

// MachineState is the machine-state tag. Exactly one bit (or none, for
// Idle) is set at a time.
type MachineState uint16

const (
	StateIdle       MachineState = 0
	StateAlarm      MachineState = 1 << 0
	StateCheckMode  MachineState = 1 << 1
	StateHoming     MachineState = 1 << 2
	StateCycle      MachineState = 1 << 3
	StateHold       MachineState = 1 << 4
	StateJog        MachineState = 1 << 5
	StateSafetyDoor MachineState = 1 << 6
	StateSleep      MachineState = 1 << 7
	StateEStop      MachineState = 1 << 8
	StateToolChange MachineState = 1 << 9
)

// BusyStates selects the short report refresh interval
const BusyStates = StateHoming | StateCycle | StateHold | StateJog | StateSafetyDoor

// stateTags is the wire tag for each state. States with a sub-state
// carry the trailing ':' and the ordinal is appended by the reporter.
var stateTags = map[MachineState]string{
	StateIdle:       "Idle",
	StateAlarm:      "Alarm",
	StateCheckMode:  "Check",
	StateHoming:     "Home",
	StateCycle:      "Run",
	StateHold:       "Hold:",
	StateJog:        "Jog",
	StateSafetyDoor: "Door:",
	StateSleep:      "Sleep",
	StateEStop:      "Alarm",
	StateToolChange: "Tool",
}

// AllStates lists every defined state
var AllStates = []MachineState{
	StateIdle, StateAlarm, StateCheckMode, StateHoming, StateCycle, StateHold,
	StateJog, StateSafetyDoor, StateSleep, StateEStop, StateToolChange,
}

// Valid reports whether s is one of the defined states
func (s MachineState) Valid() bool {
	_, ok := stateTags[s]
	return ok
}

// Tag returns the status frame tag for s
func (s MachineState) Tag() string {
	return stateTags[s]
}

// HasSubstate reports whether the status tag carries a sub-state ordinal
func (s MachineState) HasSubstate() bool {
	return s == StateHold || s == StateSafetyDoor
}

// Busy reports whether s uses the short report refresh interval
func (s MachineState) Busy() bool {
	return s&BusyStates != 0
}

func (s MachineState) String() string {
	switch s {
	case StateEStop:
		return "EStop"
	case StateHold:
		return "Hold"
	case StateSafetyDoor:
		return "Door"
	}
	if tag, ok := stateTags[s]; ok {
		return tag
	}
	return "Invalid"
}

// HoldState is the feed hold sub-state. Values are one-based; the status
// frame reports them zero-based.
type HoldState uint8

const (
	HoldNotHolding HoldState = iota
	HoldComplete
	HoldPending
)

// ParkingState is the safety door sub-state, reported as-is
type ParkingState uint8

const (
	ParkingDoorClosed ParkingState = iota
	ParkingDoorAjar
	ParkingRetracting
	ParkingResuming
)
