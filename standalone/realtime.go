package standalone

import (
	"gorbl/core"
	"gorbl/protocol"
)

func (s *Session) realtime(b byte) {
	switch b {
	case protocol.CmdStatusReport:
		s.writeErr(s.rep.Status())
	case protocol.CmdReset:
		s.Reset()
	case protocol.CmdFeedHold:
		if s.exec.ModalState().OverrideDisable&core.DisableFeedHold == 0 {
			s.motion.FeedHold()
		}
	case protocol.CmdCycleStart:
		s.cycleStart()
	case protocol.CmdSafetyDoor:
		if s.rep.Config().Caps.SafetyDoor {
			s.sys.SetDoor(core.ParkingDoorAjar)
			s.writeErr(s.rep.Feedback(protocol.MessageSafetyDoorAjar))
		}
	case protocol.CmdJogCancel:
		if s.sys.State() == core.StateJog {
			s.motion.Stop()
			s.sys.SetState(core.StateIdle)
			s.exec.SyncPosition()
		}
	default:
		s.override(b)
	}
}

func (s *Session) cycleStart() {
	switch s.sys.State() {
	case core.StateSafetyDoor:
		s.sys.SetHold(core.HoldComplete)
	case core.StateToolChange:
		s.sys.SetState(core.StateIdle)
	}
	s.exec.AckToolChange()
	s.motion.CycleStart()
}

func (s *Session) override(b byte) {
	disabled := s.exec.ModalState().OverrideDisable
	feed := disabled&core.DisableFeedOverride == 0
	spindle := disabled&core.DisableSpindleOverride == 0

	switch b {
	case protocol.CmdFeedOverrideReset:
		if feed {
			s.sys.AdjustFeedOverride(0)
		}
	case protocol.CmdFeedOverrideCoarseP:
		if feed {
			s.sys.AdjustFeedOverride(core.OverrideCoarseStep)
		}
	case protocol.CmdFeedOverrideCoarseM:
		if feed {
			s.sys.AdjustFeedOverride(-core.OverrideCoarseStep)
		}
	case protocol.CmdFeedOverrideFineP:
		if feed {
			s.sys.AdjustFeedOverride(core.OverrideFineStep)
		}
	case protocol.CmdFeedOverrideFineM:
		if feed {
			s.sys.AdjustFeedOverride(-core.OverrideFineStep)
		}
	case protocol.CmdRapidOverrideReset:
		s.sys.SetRapidOverride(core.OverrideDefault)
	case protocol.CmdRapidOverrideMedium:
		s.sys.SetRapidOverride(core.RapidOverrideMedium)
	case protocol.CmdRapidOverrideLow:
		s.sys.SetRapidOverride(core.RapidOverrideLow)
	case protocol.CmdSpindleOverrideRst:
		if spindle {
			s.sys.AdjustSpindleOverride(0)
		}
	case protocol.CmdSpindleOverrideCP:
		if spindle {
			s.sys.AdjustSpindleOverride(core.OverrideCoarseStep)
		}
	case protocol.CmdSpindleOverrideCM:
		if spindle {
			s.sys.AdjustSpindleOverride(-core.OverrideCoarseStep)
		}
	case protocol.CmdSpindleOverrideFP:
		if spindle {
			s.sys.AdjustSpindleOverride(core.OverrideFineStep)
		}
	case protocol.CmdSpindleOverrideFM:
		if spindle {
			s.sys.AdjustSpindleOverride(-core.OverrideFineStep)
		}
	default:
		s.log.WithField("byte", b).Debug("ignored realtime command")
	}
}
