package standalone

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/report"
	"gorbl/settings"
)

// system runs a '$' command. cmd is the text after the '$'.
func (s *Session) system(ctx context.Context, cmd string) (protocol.StatusCode, bool) {
	name, arg, assign := strings.Cut(cmd, "=")
	name = strings.ToUpper(name)
	opts := s.rep.Config().Options

	if !assign {
		switch name {
		case "":
			return s.status(s.rep.Help())
		case "$":
			return s.status(s.rep.Settings())
		case "#":
			err := s.rep.Parameters()
			if errors.Is(err, report.ErrParametersUnavailable) {
				return protocol.StatusSettingReadFail, true
			}
			return s.status(err)
		case "G":
			return s.status(s.rep.Modal())
		case "I":
			info, err := s.store.BuildInfo()
			if err != nil {
				return protocol.StatusSettingReadFail, false
			}
			return s.status(s.rep.BuildInfo(info))
		case "N":
			return s.listStartup()
		case "X":
			if s.sys.State() == core.StateAlarm {
				s.sys.SetState(core.StateIdle)
				s.writeErr(s.rep.Feedback(protocol.MessageAlarmUnlock))
			}
			return protocol.StatusOK, false
		case "H":
			return s.home(ctx), false
		case "C":
			return s.toggleCheckMode(), false
		case "B":
			on := !s.sys.Snapshot().BlockDelete
			s.sys.SetBlockDelete(on)
			return s.status(s.rep.Feedback(enabledMessage(on)))
		case "SLP":
			s.motion.Stop()
			s.sys.SetState(core.StateSleep)
			return s.status(s.rep.Feedback(protocol.MessageSleepMode))
		}
		return protocol.StatusInvalidStatement, false
	}

	switch {
	case name == "J":
		switch s.sys.State() {
		case core.StateIdle, core.StateJog:
			return s.exec.Jog(ctx, arg), false
		case core.StateAlarm, core.StateEStop:
			return protocol.StatusSystemGClock, false
		}
		return protocol.StatusIdleError, false
	case name == "I":
		if !opts.BuildInfoWrite {
			return protocol.StatusInvalidStatement, false
		}
		if err := s.store.SetBuildInfo(arg); err != nil {
			return protocol.StatusSettingReadFail, false
		}
		return protocol.StatusOK, false
	case name == "RST":
		return s.restore(arg), false
	case strings.HasPrefix(name, "N"):
		return s.storeStartup(name[1:], arg), false
	}

	if !s.idle() {
		return protocol.StatusIdleError, false
	}
	return s.store.ParseLine(name + "=" + arg), false
}

// status maps a report write error onto the line's confirmation. A report
// cut short is never confirmed as ok.
func (s *Session) status(err error) (protocol.StatusCode, bool) {
	if err != nil {
		s.log.WithError(err).Error("write report")
		return protocol.StatusSettingReadFail, false
	}
	return protocol.StatusOK, false
}

func (s *Session) idle() bool {
	switch s.sys.State() {
	case core.StateIdle, core.StateAlarm, core.StateCheckMode:
		return true
	}
	return false
}

func enabledMessage(on bool) protocol.MessageCode {
	if on {
		return protocol.MessageEnabled
	}
	return protocol.MessageDisabled
}

func (s *Session) listStartup() (protocol.StatusCode, bool) {
	for n := 0; n < settings.NumStartupLines; n++ {
		line, err := s.store.StartupLine(n)
		if err != nil {
			return protocol.StatusSettingReadFail, false
		}
		if err := s.rep.StartupLine(n, line); err != nil {
			return s.status(err)
		}
	}
	return protocol.StatusOK, false
}

func (s *Session) storeStartup(num, line string) protocol.StatusCode {
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 || n >= settings.NumStartupLines {
		return protocol.StatusInvalidStatement
	}
	if strings.HasPrefix(line, "$") {
		return protocol.StatusInvalidStatement
	}
	if err := s.store.SetStartupLine(n, line); err != nil {
		return protocol.StatusSettingReadFail
	}
	return protocol.StatusOK
}

func (s *Session) restore(what string) protocol.StatusCode {
	opts := s.rep.Config().Options
	var r settings.Restore
	switch what {
	case "$":
		if !opts.RestoreDefaults {
			return protocol.StatusInvalidStatement
		}
		r = settings.RestoreDefaults
	case "#":
		if !opts.RestoreParameters {
			return protocol.StatusInvalidStatement
		}
		r = settings.RestoreParameters
	case "*":
		if !opts.RestoreWipeAll {
			return protocol.StatusInvalidStatement
		}
		r = settings.RestoreAll
	default:
		return protocol.StatusInvalidStatement
	}
	if !s.idle() {
		return protocol.StatusIdleError
	}
	if err := s.store.Restore(r); err != nil {
		s.log.WithError(err).Error("restore settings")
		return protocol.StatusSettingReadFail
	}
	s.writeErr(s.rep.Feedback(protocol.MessageRestoreDefaults))
	if err := s.exec.Reset(); err != nil {
		s.log.WithError(err).Warn("modal reset failed")
	}
	return protocol.StatusOK
}

func (s *Session) home(ctx context.Context) protocol.StatusCode {
	if s.store.Value(settings.HomingEnable) == 0 {
		return protocol.StatusSettingDisabled
	}
	if !s.idle() || s.sys.State() == core.StateCheckMode {
		return protocol.StatusIdleError
	}
	if err := s.motion.Home(ctx); err != nil {
		s.log.WithError(err).Warn("homing aborted")
		return protocol.StatusReset
	}
	s.exec.SyncPosition()
	return protocol.StatusOK
}

// toggleCheckMode enters check mode from idle. Leaving it resets the
// modal state.
func (s *Session) toggleCheckMode() protocol.StatusCode {
	switch s.sys.State() {
	case core.StateCheckMode:
		s.sys.SetState(core.StateIdle)
		if err := s.exec.Reset(); err != nil {
			s.log.WithError(err).Warn("modal reset failed")
		}
		s.writeErr(s.rep.Feedback(protocol.MessageDisabled))
	case core.StateIdle:
		s.sys.SetState(core.StateCheckMode)
		s.writeErr(s.rep.Feedback(protocol.MessageEnabled))
	default:
		return protocol.StatusIdleError
	}
	return protocol.StatusOK
}
