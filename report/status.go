package report

import (
	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
)

// Status emits the realtime status frame
//
//	<State|MPos:|WPos:...|Bf:|Ln:|FS:|Pn:|WCO:|Ov:|A:|Sc:|MPG:>
//
// Everything is read before the frame is assembled: the machine state in
// one critical-section copy, then modal state, settings and pins.
func (r *Reporter) Status() error {
	snap := r.deps.System.Snapshot()
	flags := r.deps.System.TakeReport()
	mpos := r.deps.Kinematics.StepsToMPos(snap.Position)
	modal := r.modal()
	wco := modal.WCO()

	mask := settings.StatusReport(0xFFFF)
	units := protocol.Units{}
	if r.deps.Settings != nil {
		mask = r.deps.Settings.StatusReport()
		units = r.deps.Settings.Units()
	}
	caps := r.cfg.Caps

	var (
		plannerAvail, rxFree int
		line                 int32
		lineOK               bool
	)
	if b := r.deps.Buffers; b != nil {
		plannerAvail, rxFree = b.PlannerAvailable(), b.RxFree()
		line, lineOK = b.CurrentLine()
	}

	limits := r.deps.Inputs.Limits()
	control := r.deps.Inputs.Control()
	probe := r.deps.Inputs.Probe()
	spindle := r.deps.Outputs.Spindle()
	coolant := r.deps.Outputs.Coolant()
	var measured float64
	if caps.SpindleEncoder {
		measured = r.deps.Outputs.MeasuredRPM()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if flags&core.ReportWCO != 0 {
		r.wco.Force()
	}
	if flags&core.ReportAccessories != 0 {
		r.ovr.ForceAll()
	} else if flags&core.ReportOverrides != 0 {
		r.ovr.Force()
	}

	return r.emit(func(f *protocol.Frame) {
		f.OutputByte('<')
		encodeState(f, snap)

		if mask.Has(settings.ReportMachinePosition) {
			protocol.EncodeString(f, "|MPos:")
		} else {
			protocol.EncodeString(f, "|WPos:")
			mpos = mpos.Sub(wco)
		}
		units.EncodeAxisValues(f, mpos[:])

		if mask.Has(settings.ReportBufferState) {
			protocol.EncodeString(f, "|Bf:")
			protocol.EncodeUint(f, uint32(plannerAvail))
			f.OutputByte(',')
			protocol.EncodeUint(f, uint32(rxFree))
		}

		if mask.Has(settings.ReportLineNumbers) && lineOK && line > 0 {
			protocol.EncodeString(f, "|Ln:")
			protocol.EncodeUint(f, uint32(line))
		}

		if mask.Has(settings.ReportFeedSpeed) {
			if caps.VariableSpindle {
				protocol.EncodeString(f, "|FS:")
				units.EncodeRate(f, snap.RealtimeRate)
				f.OutputByte(',')
				protocol.EncodeFloat(f, snap.SpindleRPM, protocol.DecimalRPM)
				if caps.SpindleEncoder {
					f.OutputByte(',')
					protocol.EncodeFloat(f, measured, protocol.DecimalRPM)
				}
			} else {
				protocol.EncodeString(f, "|F:")
				units.EncodeRate(f, snap.RealtimeRate)
			}
		}

		if mask.Has(settings.ReportPinState) && (limits != 0 || control != 0 || probe || snap.BlockDelete) {
			protocol.EncodeString(f, "|Pn:")
			if probe {
				f.OutputByte('P')
			}
			protocol.EncodeString(f, limits.Letters())
			protocol.EncodeString(f, control.Letters())
			if snap.BlockDelete {
				f.OutputByte('B')
			}
		}

		reportOverrides := r.ovr.Due()

		if mask.Has(settings.ReportWorkCoordOffset) && r.wco.Tick() {
			r.wco.Reseed(snap.State)
			if r.cfg.SuppressOverridesWithWCO {
				reportOverrides = false
			}
			protocol.EncodeString(f, "|WCO:")
			units.EncodeAxisValues(f, wco[:])
		}

		if mask.Has(settings.ReportOverrides) {
			if r.ovr.Tick() && reportOverrides {
				protocol.EncodeString(f, "|Ov:")
				protocol.EncodeUint(f, uint32(snap.Overrides.Feed))
				f.OutputByte(',')
				protocol.EncodeUint(f, uint32(snap.Overrides.Rapid))
				f.OutputByte(',')
				protocol.EncodeUint(f, uint32(snap.Overrides.Spindle))

				if spindle.On || coolant.Active() || modal.ToolChange || r.ovr.Forced() {
					protocol.EncodeString(f, "|A:")
					encodeAccessories(f, spindle, coolant, modal.ToolChange)
				}
				r.ovr.Reseed(snap.State)
			}
		} else if modal.ToolChange {
			protocol.EncodeString(f, "|A:T")
		}

		if flags&core.ReportScaling != 0 {
			protocol.EncodeString(f, "|Sc:")
			protocol.EncodeUint(f, uint32(modal.ScaledAxes))
		}

		if flags&core.ReportMPGMode != 0 {
			protocol.EncodeString(f, "|MPG:")
			if snap.MPGMode {
				f.OutputByte('1')
			} else {
				f.OutputByte('0')
			}
		}

		f.OutputByte('>')
		protocol.EncodeLineEnd(f)
	})
}

// encodeState writes the state tag. Hold reports its one-based sub-state
// zero-based; the door reports its parking state as-is.
func encodeState(f *protocol.Frame, snap core.Snapshot) {
	protocol.EncodeString(f, snap.State.Tag())
	switch snap.State {
	case core.StateHold:
		h := uint32(snap.Holding)
		if h > 0 {
			h--
		}
		protocol.EncodeUint(f, h)
	case core.StateSafetyDoor:
		protocol.EncodeUint(f, uint32(snap.Parking))
	}
}

func encodeAccessories(f *protocol.Frame, spindle core.SpindleState, coolant core.CoolantState, toolChange bool) {
	if spindle.On {
		if spindle.CCW {
			f.OutputByte('C')
		} else {
			f.OutputByte('S')
		}
	}
	if coolant.Flood {
		f.OutputByte('F')
	}
	if coolant.Mist {
		f.OutputByte('M')
	}
	if toolChange {
		f.OutputByte('T')
	}
}
