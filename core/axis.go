package core

// NumAxes is the number of controlled axes
const NumAxes = 3

// AxisLetters names the axes in report order
const AxisLetters = "XYZABC"

// Axis indices
const (
	AxisX = iota
	AxisY
	AxisZ
)

// Vector is one value per axis in physical units (mm)
type Vector [NumAxes]float64

// Add returns v + o
func (v Vector) Add(o Vector) Vector {
	for i := range v {
		v[i] += o[i]
	}
	return v
}

// Sub returns v - o
func (v Vector) Sub(o Vector) Vector {
	for i := range v {
		v[i] -= o[i]
	}
	return v
}

// StepVector is one step count per axis
type StepVector [NumAxes]int32

// AxisMask has bit n set for axis n
type AxisMask uint8

// Has reports whether axis is set
func (m AxisMask) Has(axis int) bool {
	return m&(1<<uint(axis)) != 0
}

// Letters renders the set axes using AxisLetters
func (m AxisMask) Letters() string {
	var out []byte
	for i := 0; i < NumAxes; i++ {
		if m.Has(i) {
			out = append(out, AxisLetters[i])
		}
	}
	return string(out)
}
