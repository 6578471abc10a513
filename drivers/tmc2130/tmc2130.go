// Package tmc2130 drives Trinamic TMC2130 stepper drivers over SPI and
// exposes their current and microstep configuration as controller
// settings.
package tmc2130

import (
	"errors"
	"math"

	"tinygo.org/x/drivers"
)

// Sense resistor and full scale voltages for current calculation
const (
	DefaultRSense   = 0.11 // ohm
	vfsHigh         = 0.325
	vfsLow          = 0.180
	defaultHoldPct  = 50
	defaultChopconf = 3<<CHOPCONF_TOFF_SHIFT | 4<<CHOPCONF_HSTRT_SHIFT | 1<<CHOPCONF_HEND_SHIFT | 2<<CHOPCONF_TBL_SHIFT | CHOPCONF_INTPOL
)

var (
	// ErrNoResponse is returned when a driver answers with all ones or all
	// zeros, which means nothing is on the bus
	ErrNoResponse = errors.New("tmc2130: no response")

	// ErrMicrosteps is returned for a microstep count that is not a power
	// of two between 1 and 256
	ErrMicrosteps = errors.New("tmc2130: invalid microsteps")
)

// Device is one TMC2130 on a shared SPI bus. cs asserts the chip select
// around each datagram and may be nil when the bus handles it.
type Device struct {
	bus    drivers.SPI
	cs     func(active bool)
	rsense float64

	tx, rx   [5]byte
	chopconf uint32
	status   uint8
}

// New creates a device. rsense is the sense resistor in ohm; zero selects
// DefaultRSense.
func New(bus drivers.SPI, cs func(active bool), rsense float64) *Device {
	if rsense <= 0 {
		rsense = DefaultRSense
	}
	return &Device{bus: bus, cs: cs, rsense: rsense, chopconf: defaultChopconf}
}

// transfer sends one 40-bit datagram and returns the 32-bit payload of the
// reply, which belongs to the previously addressed register
func (d *Device) transfer(addr uint8, value uint32) (uint32, error) {
	d.tx[0] = addr
	d.tx[1] = byte(value >> 24)
	d.tx[2] = byte(value >> 16)
	d.tx[3] = byte(value >> 8)
	d.tx[4] = byte(value)

	if d.cs != nil {
		d.cs(true)
	}
	err := d.bus.Tx(d.tx[:], d.rx[:])
	if d.cs != nil {
		d.cs(false)
	}
	if err != nil {
		return 0, err
	}
	d.status = d.rx[0]
	return uint32(d.rx[1])<<24 | uint32(d.rx[2])<<16 | uint32(d.rx[3])<<8 | uint32(d.rx[4]), nil
}

// WriteRegister writes a register
func (d *Device) WriteRegister(reg uint8, value uint32) error {
	_, err := d.transfer(reg|writeFlag, value)
	return err
}

// ReadRegister reads a register. The TMC2130 answers a read on the next
// datagram, so two are sent.
func (d *Device) ReadRegister(reg uint8) (uint32, error) {
	if _, err := d.transfer(reg, 0); err != nil {
		return 0, err
	}
	return d.transfer(reg, 0)
}

// Status returns the SPI status byte of the last datagram
func (d *Device) Status() uint8 {
	return d.status
}

// Configure writes the power up configuration and checks that the driver
// responds
func (d *Device) Configure() error {
	v, err := d.ReadRegister(IOIN)
	if err != nil {
		return err
	}
	if v == 0 || v == 0xFFFFFFFF {
		return ErrNoResponse
	}
	if err := d.WriteRegister(GCONF, GCONF_EN_PWM_MODE); err != nil {
		return err
	}
	if err := d.WriteRegister(TPOWERDOWN, 128); err != nil {
		return err
	}
	return d.WriteRegister(CHOPCONF, d.chopconf)
}

// SetCurrent sets the run current in mA RMS and the hold current as a
// percentage of it. vsense is selected for the best resolution.
func (d *Device) SetCurrent(mA float64, holdPct int) error {
	cs, vsense := currentScale(mA, d.rsense)
	hold := uint32(cs) * uint32(holdPct) / 100

	chop := d.chopconf &^ CHOPCONF_VSENSE
	if vsense {
		chop |= CHOPCONF_VSENSE
	}
	if chop != d.chopconf {
		if err := d.WriteRegister(CHOPCONF, chop); err != nil {
			return err
		}
		d.chopconf = chop
	}
	return d.WriteRegister(IHOLD_IRUN, hold<<IHOLD_SHIFT|uint32(cs)<<IRUN_SHIFT|6<<IHOLDDELAY_SHIFT)
}

// Current returns the configured run current in mA RMS
func (d *Device) Current() (float64, error) {
	v, err := d.ReadRegister(IHOLD_IRUN)
	if err != nil {
		return 0, err
	}
	cs := (v >> IRUN_SHIFT) & currentMask
	return currentRMS(uint8(cs), d.chopconf&CHOPCONF_VSENSE != 0, d.rsense), nil
}

// SetMicrosteps sets the microstep resolution
func (d *Device) SetMicrosteps(n int) error {
	mres, ok := microstepCode(n)
	if !ok {
		return ErrMicrosteps
	}
	chop := d.chopconf&^CHOPCONF_MRES_MASK | uint32(mres)<<CHOPCONF_MRES_SHIFT
	if err := d.WriteRegister(CHOPCONF, chop); err != nil {
		return err
	}
	d.chopconf = chop
	return nil
}

// Microsteps returns the configured microstep resolution
func (d *Device) Microsteps() int {
	return 256 >> ((d.chopconf & CHOPCONF_MRES_MASK) >> CHOPCONF_MRES_SHIFT)
}

// currentScale converts a RMS current to the 5-bit current scale CS,
// preferring the low sense voltage range when it gives enough resolution
func currentScale(mA, rsense float64) (cs uint8, vsense bool) {
	scale := func(vfs float64) float64 {
		return 32*math.Sqrt2*(mA/1000)*(rsense+0.02)/vfs - 1
	}
	v := scale(vfsHigh)
	if v < 16 {
		v, vsense = scale(vfsLow), true
	}
	v = math.Round(v)
	switch {
	case v < 0:
		v = 0
	case v > 31:
		v = 31
	}
	return uint8(v), vsense
}

func currentRMS(cs uint8, vsense bool, rsense float64) float64 {
	vfs := vfsHigh
	if vsense {
		vfs = vfsLow
	}
	return (float64(cs) + 1) / 32 * vfs / (rsense + 0.02) / math.Sqrt2 * 1000
}

func microstepCode(n int) (uint8, bool) {
	for code := uint8(0); code <= 8; code++ {
		if 256>>code == n {
			return code, true
		}
	}
	return 0, false
}
