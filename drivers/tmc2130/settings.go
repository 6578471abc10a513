package tmc2130

import (
	"errors"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
)

// Setting numbers owned by the driver
const (
	SettingMicrosteps settings.ID = 150 // + axis
	SettingEnable     settings.ID = 338 // axis mask of drivers in use

	DefaultMicrosteps = 16
	blockName         = "tmc2130"
)

type persisted struct {
	Microsteps [core.NumAxes]int `msgpack:"ms"`
	Enable     uint8             `msgpack:"en"`
}

// Drivers is the set of per-axis drivers. It adds the driver settings to
// the store and follows changes to the axis stepper current.
type Drivers struct {
	store *settings.Store
	devs  [core.NumAxes]*Device
	cfg   persisted
	// HoldPct is the standstill current as a percentage of the run current
	HoldPct int
}

// NewDrivers creates the driver set. A nil device leaves that axis
// without a driver.
func NewDrivers(store *settings.Store, devs [core.NumAxes]*Device) *Drivers {
	d := &Drivers{store: store, devs: devs, HoldPct: defaultHoldPct}
	d.defaults()
	return d
}

func (d *Drivers) defaults() {
	d.cfg = persisted{}
	for axis := range d.cfg.Microsteps {
		d.cfg.Microsteps[axis] = DefaultMicrosteps
		if d.devs[axis] != nil {
			d.cfg.Enable |= 1 << axis
		}
	}
}

// Init loads the driver settings, configures every enabled driver and
// installs the settings hook. A driver that fails to respond is reported
// and left disabled.
func (d *Drivers) Init() error {
	if err := d.store.LoadBlock(blockName, &d.cfg); err != nil {
		if !errors.Is(err, settings.ErrNotFound) {
			core.DebugPrintln("tmc2130: " + err.Error() + ", using defaults")
		}
		d.defaults()
		if err := d.save(); err != nil {
			return err
		}
	}

	var failed error
	for axis := range d.devs {
		if err := d.setup(axis); err != nil {
			core.DebugPrintln("tmc2130: axis " + string(core.AxisLetters[axis]) + ": " + err.Error())
			d.cfg.Enable &^= 1 << axis
			failed = err
		}
	}
	d.store.SetExtension(d)
	d.store.Watch(d.settingChanged)
	return failed
}

func (d *Drivers) enabled(axis int) bool {
	return d.devs[axis] != nil && d.cfg.Enable&(1<<axis) != 0
}

func (d *Drivers) setup(axis int) error {
	if !d.enabled(axis) {
		return nil
	}
	dev := d.devs[axis]
	if err := dev.Configure(); err != nil {
		return err
	}
	if err := dev.SetMicrosteps(d.cfg.Microsteps[axis]); err != nil {
		return err
	}
	return d.applyCurrent(axis)
}

func (d *Drivers) applyCurrent(axis int) error {
	mA := d.store.AxisValues(settings.AxisStepperCurrent)[axis]
	return d.devs[axis].SetCurrent(mA, d.HoldPct)
}

func (d *Drivers) settingChanged(id settings.ID) {
	for axis := 0; axis < core.NumAxes; axis++ {
		if id != settings.AxisID(settings.AxisStepperCurrent, axis) || !d.enabled(axis) {
			continue
		}
		if err := d.applyCurrent(axis); err != nil {
			core.DebugPrintln("tmc2130: set current: " + err.Error())
		}
	}
}

func (d *Drivers) save() error {
	return d.store.SaveBlock(blockName, d.cfg)
}

// Settings returns $338 with the global group and $150+ with the axis
// group
func (d *Drivers) Settings(axis bool) []settings.Entry {
	if !axis {
		return []settings.Entry{{ID: SettingEnable, Kind: settings.KindUint, Value: float64(d.cfg.Enable)}}
	}
	out := make([]settings.Entry, 0, core.NumAxes)
	for a, ms := range d.cfg.Microsteps {
		out = append(out, settings.Entry{ID: SettingMicrosteps + settings.ID(a), Kind: settings.KindUint, Value: float64(ms)})
	}
	return out
}

// Set applies a driver setting
func (d *Drivers) Set(id settings.ID, v float64) (protocol.StatusCode, bool) {
	switch {
	case id == SettingEnable:
		if v < 0 {
			return protocol.StatusNegativeValue, true
		}
		if v >= 1<<core.NumAxes {
			return protocol.StatusInvalidStatement, true
		}
		prev := d.cfg.Enable
		d.cfg.Enable = uint8(v)
		for axis := range d.devs {
			if prev&(1<<axis) == 0 && d.enabled(axis) {
				if err := d.setup(axis); err != nil {
					core.DebugPrintln("tmc2130: " + err.Error())
				}
			}
		}
	case id >= SettingMicrosteps && id < SettingMicrosteps+core.NumAxes:
		axis := int(id - SettingMicrosteps)
		if v < 0 {
			return protocol.StatusNegativeValue, true
		}
		if _, ok := microstepCode(int(v)); !ok || v != float64(int(v)) {
			return protocol.StatusInvalidStatement, true
		}
		if d.enabled(axis) {
			if err := d.devs[axis].SetMicrosteps(int(v)); err != nil {
				core.DebugPrintln("tmc2130: " + err.Error())
				return protocol.StatusSettingReadFail, true
			}
		}
		d.cfg.Microsteps[axis] = int(v)
	default:
		return 0, false
	}

	if err := d.save(); err != nil {
		core.DebugPrintln("tmc2130: save failed: " + err.Error())
		return protocol.StatusSettingReadFail, true
	}
	return protocol.StatusOK, true
}
