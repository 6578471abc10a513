package report

import (
	"gorbl/core"
	"gorbl/protocol"
)

// BuildInfo emits "[VER:...]" with the stored user line followed by the
// "[OPT:...]" capability line
func (r *Reporter) BuildInfo(userLine string) error {
	err := r.emit(func(f *protocol.Frame) {
		protocol.EncodeString(f, "[VER:"+protocol.Version+"(")
		protocol.EncodeString(f, r.cfg.Info)
		protocol.EncodeString(f, ")."+protocol.VersionBuild+":")
		protocol.EncodeString(f, userLine)
		protocol.EncodeFeedbackEnd(f)
	})
	if err != nil {
		return err
	}

	return r.emit(func(f *protocol.Frame) {
		protocol.EncodeString(f, "[OPT:")
		protocol.EncodeString(f, r.OptionLetters())
		f.OutputByte(',')
		protocol.EncodeUint(f, uint32(r.cfg.BlockBufferSize-1))
		f.OutputByte(',')
		protocol.EncodeUint(f, uint32(r.cfg.RxBufferSize))
		f.OutputByte(',')
		protocol.EncodeUint(f, uint32(core.NumAxes))
		if r.cfg.Caps.Tools > 0 {
			f.OutputByte(',')
			protocol.EncodeUint(f, uint32(r.cfg.Caps.Tools))
		}
		protocol.EncodeFeedbackEnd(f)
	})
}

// OptionLetters returns the [OPT:] letter set
func (r *Reporter) OptionLetters() string {
	caps, opt := r.cfg.Caps, r.cfg.Options
	letters := []struct {
		on bool
		c  byte
	}{
		{caps.VariableSpindle, 'V'},
		{true, 'N'},
		{caps.MistControl, 'M'},
		{opt.CoreXY, 'C'},
		{opt.Parking, 'P'},
		{opt.HomingForceOrigin, 'Z'},
		{opt.HomingSingleAxis, 'H'},
		{opt.DualLimitSwitches, 'T'},
		{opt.FeedOverrideDuringProbe, 'A'},
		{opt.SpindleOffWithZeroSpeed, '0'},
		{caps.SoftwareDebounce, 'S'},
		{caps.ParkingOverride, 'R'},
		{!opt.HomingInitLock, 'L'},
		{caps.SafetyDoor, '+'},
		{!opt.RestoreWipeAll, '*'},
		{!opt.RestoreDefaults, '$'},
		{!opt.RestoreParameters, '#'},
		{!opt.BuildInfoWrite, 'I'},
		{!opt.SyncOnWCOChange, 'W'},
		{caps.Tools > 0, 'V'},
		{caps.Tools == 0 && caps.ManualToolChange, 'U'},
	}

	out := make([]byte, 0, len(letters))
	for _, l := range letters {
		if l.on {
			out = append(out, l.c)
		}
	}
	return string(out)
}
