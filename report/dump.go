package report

import (
	"errors"
	"strconv"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
)

// Settings emits one "$<id>=<value>" line per setting: the global
// settings, the driver's global group, the axis settings and finally the
// driver's axis group
func (r *Reporter) Settings() error {
	store := r.deps.Settings
	ext := store.Extension()

	groups := [][]settings.Entry{store.GlobalEntries()}
	if ext != nil {
		groups = append(groups, ext.Settings(false))
	}
	groups = append(groups, store.AxisEntries())
	if ext != nil {
		groups = append(groups, ext.Settings(true))
	}

	for _, g := range groups {
		for _, e := range g {
			if err := r.setting(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reporter) setting(e settings.Entry) error {
	return r.emit(func(f *protocol.Frame) {
		f.OutputByte('$')
		protocol.EncodeUint(f, uint32(e.ID))
		f.OutputByte('=')
		if e.Kind == settings.KindUint {
			protocol.EncodeUint(f, uint32(e.Value))
		} else {
			protocol.EncodeFloat(f, e.Value, e.Decimals)
		}
		protocol.EncodeLineEnd(f)
	})
}

// ErrParametersUnavailable is returned by Parameters after it has emitted
// error:7 in place of the dump. The line is already confirmed.
var ErrParametersUnavailable = errors.New("parameters unavailable")

type paramLine struct {
	name  string
	value core.Vector
}

// Parameters emits the coordinate system offsets, G28/G30, G92, the tool
// table, the tool length offset and the last probe result. Every stored
// slot is read before anything is written; a read failure emits only
// error:7 and returns ErrParametersUnavailable.
func (r *Reporter) Parameters() error {
	store := r.deps.Settings

	lines := make([]paramLine, 0, settings.NumCoordSlots+3+r.cfg.Caps.Tools)
	for slot := 0; slot < settings.NumCoordSlots; slot++ {
		v, err := store.ReadCoordData(slot)
		if err != nil {
			core.DebugPrintln("report: coord read failed: " + err.Error())
			return r.paramsUnavailable()
		}
		lines = append(lines, paramLine{"G" + settings.CoordName(slot), v})
	}

	modal := r.modal()
	lines = append(lines, paramLine{"G92", modal.G92})

	if r.cfg.Caps.Tools > 0 {
		tools, err := store.ToolOffsets()
		if err != nil {
			core.DebugPrintln("report: tool table read failed: " + err.Error())
			return r.paramsUnavailable()
		}
		for i, t := range tools {
			lines = append(lines, paramLine{"T" + strconv.Itoa(i+1), t})
		}
	}
	lines = append(lines, paramLine{"TLO", modal.TLO})

	units := r.units()
	for _, l := range lines {
		err := r.emit(func(f *protocol.Frame) {
			f.OutputByte('[')
			protocol.EncodeString(f, l.name)
			f.OutputByte(':')
			units.EncodeAxisValues(f, l.value[:])
			protocol.EncodeFeedbackEnd(f)
		})
		if err != nil {
			return err
		}
	}
	return r.Probe()
}

func (r *Reporter) paramsUnavailable() error {
	if err := r.StatusMessage(protocol.StatusSettingReadFail); err != nil {
		return err
	}
	return ErrParametersUnavailable
}

// Probe emits the last probe position in machine coordinates and whether
// it succeeded
func (r *Reporter) Probe() error {
	snap := r.deps.System.Snapshot()
	pos := r.deps.Kinematics.StepsToMPos(snap.ProbePosition)
	units := r.units()

	return r.emit(func(f *protocol.Frame) {
		protocol.EncodeString(f, "[PRB:")
		units.EncodeAxisValues(f, pos[:])
		f.OutputByte(':')
		if snap.ProbeSucceeded {
			f.OutputByte('1')
		} else {
			f.OutputByte('0')
		}
		protocol.EncodeFeedbackEnd(f)
	})
}
