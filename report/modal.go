package report

import (
	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
)

// Modal emits the "[GC:...]" line summarising the interpreter's modal state
func (r *Reporter) Modal() error {
	m := r.modal()
	units := r.units()
	variableSpindle := r.cfg.Caps.VariableSpindle

	return r.emit(func(f *protocol.Frame) {
		protocol.EncodeString(f, "[GC:G")
		if m.Motion.IsProbe() {
			protocol.EncodeString(f, "38.")
			protocol.EncodeUint(f, m.Motion.ProbeSuffix())
		} else {
			protocol.EncodeUint(f, uint32(m.Motion))
		}

		gcode(f)
		protocol.EncodeString(f, settings.CoordName(m.CoordSystem))

		gcode(f)
		if m.DiameterMode {
			f.OutputByte('7')
		} else {
			f.OutputByte('8')
		}

		gcode(f)
		protocol.EncodeUint(f, uint32(m.Plane)+17)

		gcode(f)
		if m.Inches {
			protocol.EncodeString(f, "20")
		} else {
			protocol.EncodeString(f, "21")
		}

		gcode(f)
		if m.Incremental {
			protocol.EncodeString(f, "91")
		} else {
			protocol.EncodeString(f, "90")
		}

		gcode(f)
		if m.InverseTime {
			protocol.EncodeString(f, "93")
		} else {
			protocol.EncodeString(f, "94")
		}

		gcode(f)
		if m.ScalingActive {
			protocol.EncodeString(f, "51:")
			protocol.EncodeUint(f, uint32(m.ScaledAxes))
		} else {
			protocol.EncodeString(f, "50")
		}

		switch m.ProgramFlow {
		case core.ProgramPaused:
			mcode(f, "0")
		case core.ProgramOptionalStop:
			mcode(f, "1")
		case core.ProgramCompletedM2, core.ProgramCompletedM30:
			mcode(f, "")
			protocol.EncodeUint(f, uint32(m.ProgramFlow))
		}

		switch {
		case !m.Spindle.On:
			mcode(f, "5")
		case m.Spindle.CCW:
			mcode(f, "4")
		default:
			mcode(f, "3")
		}

		if m.ToolChange {
			mcode(f, "6")
		}

		if m.Coolant.Active() {
			if m.Coolant.Mist {
				mcode(f, "7")
			}
			if m.Coolant.Flood {
				mcode(f, "8")
			}
		} else {
			mcode(f, "9")
		}

		if m.OverrideDisable&core.DisableFeedOverride != 0 {
			mcode(f, "50")
		}
		if m.OverrideDisable&core.DisableSpindleOverride != 0 {
			mcode(f, "51")
		}
		if m.OverrideDisable&core.DisableFeedHold != 0 {
			mcode(f, "53")
		}
		if r.cfg.Caps.ParkingOverride && m.OverrideDisable&core.DisableParking != 0 {
			mcode(f, "56")
		}

		protocol.EncodeString(f, " T")
		protocol.EncodeUint(f, m.Tool)

		protocol.EncodeString(f, " F")
		units.EncodeRate(f, m.FeedRate)

		if variableSpindle {
			protocol.EncodeString(f, " S")
			protocol.EncodeFloat(f, m.SpindleRPM, protocol.DecimalRPM)
		}
		protocol.EncodeFeedbackEnd(f)
	})
}

func gcode(f *protocol.Frame) {
	protocol.EncodeString(f, " G")
}

func mcode(f *protocol.Frame, n string) {
	protocol.EncodeString(f, " M")
	protocol.EncodeString(f, n)
}
