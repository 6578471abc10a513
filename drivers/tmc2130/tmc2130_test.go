package tmc2130

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
)

func TestCurrentScale(t *testing.T) {
	tests := []struct {
		mA     float64
		cs     uint8
		vsense bool
	}{
		{500, 15, true},
		{1500, 26, false},
		{0, 0, true},
		{5000, 31, false},
	}
	for _, tt := range tests {
		cs, vsense := currentScale(tt.mA, DefaultRSense)
		assert.Equal(t, tt.cs, cs, "cs for %v mA", tt.mA)
		assert.Equal(t, tt.vsense, vsense, "vsense for %v mA", tt.mA)
	}
	assert.InDelta(t, 500, currentRMS(15, true, DefaultRSense), 25)
}

func TestDeviceRegisters(t *testing.T) {
	bus := NewSimBus()
	dev := New(bus, nil, 0)
	require.NoError(t, dev.Configure())

	v, err := dev.ReadRegister(IOIN)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x11<<24), v)
	assert.Equal(t, uint8(StatusStandstill), dev.Status())
	assert.Equal(t, uint32(GCONF_EN_PWM_MODE), bus.Register(GCONF))

	require.NoError(t, dev.SetMicrosteps(16))
	assert.Equal(t, 16, dev.Microsteps())
	assert.Equal(t, uint32(4), bus.Register(CHOPCONF)&CHOPCONF_MRES_MASK>>CHOPCONF_MRES_SHIFT)
	assert.ErrorIs(t, dev.SetMicrosteps(3), ErrMicrosteps)

	require.NoError(t, dev.SetCurrent(1500, 50))
	ihr := bus.Register(IHOLD_IRUN)
	assert.Equal(t, uint32(26), ihr>>IRUN_SHIFT&currentMask)
	assert.Equal(t, uint32(13), ihr>>IHOLD_SHIFT&currentMask)
	assert.Zero(t, bus.Register(CHOPCONF)&CHOPCONF_VSENSE)

	mA, err := dev.Current()
	require.NoError(t, err)
	assert.InDelta(t, 1500, mA, 60)
}

func TestChipSelect(t *testing.T) {
	var edges []bool
	dev := New(NewSimBus(), func(active bool) { edges = append(edges, active) }, 0)
	require.NoError(t, dev.WriteRegister(TPOWERDOWN, 10))
	assert.Equal(t, []bool{true, false}, edges)
}

func TestConfigureWithoutDriver(t *testing.T) {
	dead := &SimBus{regs: map[uint8]uint32{}, writes: map[uint8]int{}}
	assert.ErrorIs(t, New(dead, nil, 0).Configure(), ErrNoResponse)
}

func newDrivers(t *testing.T) (*Drivers, *settings.Store, [core.NumAxes]*SimBus) {
	t.Helper()
	store := settings.NewStore(settings.NewMemoryBackend(), core.Capabilities{StepperCurrent: true})
	_, err := store.Load()
	require.NoError(t, err)

	var buses [core.NumAxes]*SimBus
	var devs [core.NumAxes]*Device
	for axis := core.AxisX; axis <= core.AxisY; axis++ {
		buses[axis] = NewSimBus()
		devs[axis] = New(buses[axis], nil, 0)
	}
	d := NewDrivers(store, devs)
	require.NoError(t, d.Init())
	return d, store, buses
}

func TestDriversSettings(t *testing.T) {
	d, store, buses := newDrivers(t)

	global := d.Settings(false)
	require.Len(t, global, 1)
	assert.Equal(t, SettingEnable, global[0].ID)
	assert.Equal(t, 3.0, global[0].Value)

	axis := d.Settings(true)
	require.Len(t, axis, core.NumAxes)
	assert.Equal(t, settings.ID(152), axis[2].ID)
	assert.Equal(t, float64(DefaultMicrosteps), axis[0].Value)

	assert.Equal(t, protocol.StatusOK, store.Set(151, "32"))
	assert.Equal(t, uint32(3), buses[core.AxisY].Register(CHOPCONF)&CHOPCONF_MRES_MASK>>CHOPCONF_MRES_SHIFT)
	assert.Equal(t, protocol.StatusInvalidStatement, store.Set(150, "3"))
	assert.Equal(t, protocol.StatusNegativeValue, store.Set(150, "-2"))
	assert.Equal(t, protocol.StatusInvalidStatement, store.Set(SettingEnable, "8"))

	// a Z setting is stored even without a driver fitted
	assert.Equal(t, protocol.StatusOK, store.Set(152, "8"))
	assert.Equal(t, 8.0, d.Settings(true)[2].Value)
}

func TestDriversFollowCurrentSetting(t *testing.T) {
	_, store, buses := newDrivers(t)
	before := buses[core.AxisX].WriteCount(IHOLD_IRUN)

	id := settings.AxisID(settings.AxisStepperCurrent, core.AxisX)
	require.Equal(t, protocol.StatusOK, store.Set(id, "1500"))
	assert.Equal(t, before+1, buses[core.AxisX].WriteCount(IHOLD_IRUN))
	assert.Equal(t, uint32(26), buses[core.AxisX].Register(IHOLD_IRUN)>>IRUN_SHIFT&currentMask)
	assert.Equal(t, 1, buses[core.AxisY].WriteCount(IHOLD_IRUN))
}

func TestDriversPersist(t *testing.T) {
	d, store, _ := newDrivers(t)
	require.Equal(t, protocol.StatusOK, store.Set(150, "64"))

	var devs [core.NumAxes]*Device
	devs[core.AxisX] = New(NewSimBus(), nil, 0)
	again := NewDrivers(store, devs)
	require.NoError(t, again.Init())
	assert.Equal(t, 64.0, again.Settings(true)[0].Value)
	assert.Equal(t, d.Settings(false)[0].Value, again.Settings(false)[0].Value)
}
