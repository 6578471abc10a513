package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func encoded(fn func(f *Frame)) string {
	f := NewFrame()
	fn(f)
	return string(f.Result())
}

func TestEncodeUint(t *testing.T) {
	assert.Equal(t, "0", encoded(func(f *Frame) { EncodeUint(f, 0) }))
	assert.Equal(t, "4294967295", encoded(func(f *Frame) { EncodeUint(f, math.MaxUint32) }))
	assert.Equal(t, "-42", encoded(func(f *Frame) { EncodeInt(f, -42) }))
}

func TestEncodeFloat(t *testing.T) {
	cases := []struct {
		v        float64
		decimals int
		want     string
	}{
		{10, 3, "10.000"},
		{-5, 3, "-5.000"},
		{0.0004, 3, "0.000"},
		{-0.0004, 3, "0.000"},
		{math.Copysign(0, -1), 3, "0.000"},
		{1234.5678, 0, "1235"},
		{0.1, 1, "0.1"},
		{-12.3456, 4, "-12.3456"},
	}
	for _, c := range cases {
		got := encoded(func(f *Frame) { EncodeFloat(f, c.v, c.decimals) })
		assert.Equal(t, c.want, got, "EncodeFloat(%v, %d)", c.v, c.decimals)
	}
}

func TestUnitsAxisValues(t *testing.T) {
	mm := Units{}
	got := encoded(func(f *Frame) { mm.EncodeAxisValues(f, []float64{10, 0, -5}) })
	assert.Equal(t, "10.000,0.000,-5.000", got)

	in := Units{Inches: true}
	got = encoded(func(f *Frame) { in.EncodeAxisValues(f, []float64{25.4, 2.54, 0}) })
	assert.Equal(t, "1.0000,0.1000,0.0000", got)
}

func TestUnitsRate(t *testing.T) {
	assert.Equal(t, "1500", encoded(func(f *Frame) { Units{}.EncodeRate(f, 1500) }))
	assert.Equal(t, "59.1", encoded(func(f *Frame) { Units{Inches: true}.EncodeRate(f, 1500) }))
}

func TestEnvelopeTerminators(t *testing.T) {
	got := encoded(func(f *Frame) {
		EncodeString(f, "[MSG:")
		EncodeFeedbackEnd(f)
	})
	assert.Equal(t, "[MSG:]\r\n", got)
}
