package protocol

import (
	"math"
	"strconv"
)

// EncodeString writes s verbatim
func EncodeString(output OutputBuffer, s string) {
	for i := 0; i < len(s); i++ {
		output.OutputByte(s[i])
	}
}

// EncodeUint writes v in base 10
func EncodeUint(output OutputBuffer, v uint32) {
	var tmp [10]byte
	output.Output(strconv.AppendUint(tmp[:0], uint64(v), 10))
}

// EncodeInt writes v in base 10 with a leading '-' when negative
func EncodeInt(output OutputBuffer, v int32) {
	var tmp [11]byte
	output.Output(strconv.AppendInt(tmp[:0], int64(v), 10))
}

// EncodeFloat writes v rounded to a fixed number of decimal places.
// Negative zero is written as zero.
func EncodeFloat(output OutputBuffer, v float64, decimals int) {
	if v == 0 || math.IsNaN(v) {
		v = 0
	}
	var tmp [32]byte
	b := strconv.AppendFloat(tmp[:0], v, 'f', decimals, 64)
	if isNegativeZero(b) {
		b = b[1:]
	}
	output.Output(b)
}

// isNegativeZero matches strings such as "-0.000" produced by rounding a
// tiny negative value.
func isNegativeZero(b []byte) bool {
	if len(b) < 2 || b[0] != '-' {
		return false
	}
	for _, c := range b[1:] {
		if c != '0' && c != '.' {
			return false
		}
	}
	return true
}

// EncodeLineEnd terminates a line
func EncodeLineEnd(output OutputBuffer) {
	output.OutputByte('\r')
	output.OutputByte('\n')
}

// EncodeFeedbackEnd closes a bracketed envelope and terminates the line
func EncodeFeedbackEnd(output OutputBuffer) {
	output.OutputByte(']')
	EncodeLineEnd(output)
}

// Units selects how coordinate and rate values are scaled on output
type Units struct {
	Inches bool
}

// EncodeCoord writes a coordinate value given in millimetres
func (u Units) EncodeCoord(output OutputBuffer, mm float64) {
	if u.Inches {
		EncodeFloat(output, mm*InchPerMM, DecimalCoordInch)
		return
	}
	EncodeFloat(output, mm, DecimalCoordMM)
}

// EncodeRate writes a feed rate given in millimetres per minute
func (u Units) EncodeRate(output OutputBuffer, mmPerMin float64) {
	if u.Inches {
		EncodeFloat(output, mmPerMin*InchPerMM, DecimalRateInch)
		return
	}
	EncodeFloat(output, mmPerMin, DecimalRateMM)
}

// EncodeAxisValues writes a comma separated coordinate vector
func (u Units) EncodeAxisValues(output OutputBuffer, values []float64) {
	for i, v := range values {
		if i > 0 {
			output.OutputByte(',')
		}
		u.EncodeCoord(output, v)
	}
}
