package client

import (
	"errors"
	"strconv"
	"strings"

	"gorbl/core"
)

// ErrNotStatus is returned by ParseStatus for a line that is not a
// status frame
var ErrNotStatus = errors.New("client: not a status frame")

// Status is a parsed status frame. Fields absent from the frame keep
// their zero value and their Has flag is false.
type Status struct {
	State    string
	SubState int // -1 when the state carries none

	// Position is MPos when Machine is true, WPos otherwise
	Position core.Vector
	Machine  bool

	HasBuffer   bool
	PlannerFree int
	RxFree      int

	Line int32

	Feed        float64
	Spindle     float64
	MeasuredRPM float64

	Pins string

	HasWCO bool
	WCO    core.Vector

	HasOverrides bool
	Overrides    [3]int // feed, rapid, spindle

	Accessories string
	Scaled      string
}

// MachinePosition returns the machine position, applying wco to a WPos
// frame
func (s Status) MachinePosition(wco core.Vector) core.Vector {
	if s.Machine {
		return s.Position
	}
	return s.Position.Add(wco)
}

// ParseStatus parses "<State|Field:value|...>"
func ParseStatus(line string) (Status, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 2 || line[0] != '<' || line[len(line)-1] != '>' {
		return Status{}, ErrNotStatus
	}
	fields := strings.Split(line[1:len(line)-1], "|")

	st := Status{SubState: -1}
	state, sub, hasSub := strings.Cut(fields[0], ":")
	st.State = state
	if hasSub {
		n, err := strconv.Atoi(sub)
		if err != nil {
			return Status{}, errors.New("client: bad sub-state " + sub)
		}
		st.SubState = n
	}

	for _, f := range fields[1:] {
		name, value, ok := strings.Cut(f, ":")
		if !ok {
			return Status{}, errors.New("client: bad field " + f)
		}
		var err error
		switch name {
		case "MPos", "WPos":
			st.Machine = name == "MPos"
			st.Position, err = parseVector(value)
		case "Bf":
			var v []float64
			if v, err = parseFloats(value, 2); err == nil {
				st.HasBuffer = true
				st.PlannerFree, st.RxFree = int(v[0]), int(v[1])
			}
		case "Ln":
			var n int64
			n, err = strconv.ParseInt(value, 10, 32)
			st.Line = int32(n)
		case "F":
			st.Feed, err = strconv.ParseFloat(value, 64)
		case "FS":
			var v []float64
			if v, err = parseFloats(value, -1); err == nil && len(v) >= 2 {
				st.Feed, st.Spindle = v[0], v[1]
				if len(v) > 2 {
					st.MeasuredRPM = v[2]
				}
			} else if err == nil {
				err = errors.New("client: short FS field")
			}
		case "Pn":
			st.Pins = value
		case "WCO":
			st.HasWCO = true
			st.WCO, err = parseVector(value)
		case "Ov":
			var v []float64
			if v, err = parseFloats(value, 3); err == nil {
				st.HasOverrides = true
				st.Overrides = [3]int{int(v[0]), int(v[1]), int(v[2])}
			}
		case "A":
			st.Accessories = value
		case "Sc":
			st.Scaled = value
		}
		if err != nil {
			return Status{}, err
		}
	}
	return st, nil
}

func parseVector(s string) (core.Vector, error) {
	var v core.Vector
	vals, err := parseFloats(s, -1)
	if err != nil {
		return v, err
	}
	copy(v[:], vals)
	return v, nil
}

// parseFloats parses a comma separated list; n < 0 accepts any length
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if n >= 0 && len(parts) != n {
		return nil, errors.New("client: expected " + strconv.Itoa(n) + " values in " + s)
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
