package protocol

import "strconv"

// StatusCode is the outcome of one input line. StatusOK is the only success value.
type StatusCode uint8

const (
	StatusOK StatusCode = iota
	StatusExpectedCommandLetter
	StatusBadNumberFormat
	StatusInvalidStatement
	StatusNegativeValue
	StatusSettingDisabled
	StatusSettingStepPulseMin
	StatusSettingReadFail
	StatusIdleError
	StatusSystemGClock
	StatusSoftLimitError
	StatusOverflow
	StatusMaxStepRateExceeded
	StatusCheckDoor
	StatusLineLengthExceeded
	StatusTravelExceeded
	StatusInvalidJogCommand
	StatusSettingDisabledLaser
	StatusReset
	StatusNonPositiveValue
	StatusGcodeUnsupportedCommand
	StatusGcodeModalGroupViolation
	StatusGcodeUndefinedFeedRate
	StatusGcodeCommandValueNotInteger
	StatusGcodeAxisCommandConflict
	StatusGcodeWordRepeated
	StatusGcodeNoAxisWords
	StatusGcodeInvalidLineNumber
	StatusGcodeValueWordMissing
	StatusGcodeUnsupportedCoordSys
	StatusGcodeG53InvalidMotionMode
	StatusGcodeAxisWordsExist
	StatusGcodeNoAxisWordsInPlane
	StatusGcodeInvalidTarget
	StatusGcodeArcRadiusError
	StatusGcodeNoOffsetsInPlane
	StatusGcodeUnusedWords
	StatusGcodeG43DynamicAxisError
	StatusGcodeIllegalToolTableEntry
	StatusGcodeValueOutOfRange
	StatusGcodeToolChangePending
	StatusGcodeSpindleNotRunning
	StatusGcodeIllegalPlane
	StatusGcodeMaxFeedRateExceeded
	StatusGcodeRPMOutOfRange
	StatusLimitsEngaged
	StatusHomingRequired
	StatusGcodeToolError
	StatusValueWordConflict
	StatusSelfTestFailed
	StatusEStop

	statusCodeCount
)

var statusNames = [statusCodeCount]string{
	StatusOK:                          "OK",
	StatusExpectedCommandLetter:       "ExpectedCommandLetter",
	StatusBadNumberFormat:             "BadNumberFormat",
	StatusInvalidStatement:            "InvalidStatement",
	StatusNegativeValue:               "NegativeValue",
	StatusSettingDisabled:             "SettingDisabled",
	StatusSettingStepPulseMin:         "SettingStepPulseMin",
	StatusSettingReadFail:             "SettingReadFail",
	StatusIdleError:                   "IdleError",
	StatusSystemGClock:                "SystemGClock",
	StatusSoftLimitError:              "SoftLimitError",
	StatusOverflow:                    "Overflow",
	StatusMaxStepRateExceeded:         "MaxStepRateExceeded",
	StatusCheckDoor:                   "CheckDoor",
	StatusLineLengthExceeded:          "LineLengthExceeded",
	StatusTravelExceeded:              "TravelExceeded",
	StatusInvalidJogCommand:           "InvalidJogCommand",
	StatusSettingDisabledLaser:        "SettingDisabledLaser",
	StatusReset:                       "Reset",
	StatusNonPositiveValue:            "NonPositiveValue",
	StatusGcodeUnsupportedCommand:     "GcodeUnsupportedCommand",
	StatusGcodeModalGroupViolation:    "GcodeModalGroupViolation",
	StatusGcodeUndefinedFeedRate:      "GcodeUndefinedFeedRate",
	StatusGcodeCommandValueNotInteger: "GcodeCommandValueNotInteger",
	StatusGcodeAxisCommandConflict:    "GcodeAxisCommandConflict",
	StatusGcodeWordRepeated:           "GcodeWordRepeated",
	StatusGcodeNoAxisWords:            "GcodeNoAxisWords",
	StatusGcodeInvalidLineNumber:      "GcodeInvalidLineNumber",
	StatusGcodeValueWordMissing:       "GcodeValueWordMissing",
	StatusGcodeUnsupportedCoordSys:    "GcodeUnsupportedCoordSys",
	StatusGcodeG53InvalidMotionMode:   "GcodeG53InvalidMotionMode",
	StatusGcodeAxisWordsExist:         "GcodeAxisWordsExist",
	StatusGcodeNoAxisWordsInPlane:     "GcodeNoAxisWordsInPlane",
	StatusGcodeInvalidTarget:          "GcodeInvalidTarget",
	StatusGcodeArcRadiusError:         "GcodeArcRadiusError",
	StatusGcodeNoOffsetsInPlane:       "GcodeNoOffsetsInPlane",
	StatusGcodeUnusedWords:            "GcodeUnusedWords",
	StatusGcodeG43DynamicAxisError:    "GcodeG43DynamicAxisError",
	StatusGcodeIllegalToolTableEntry:  "GcodeIllegalToolTableEntry",
	StatusGcodeValueOutOfRange:        "GcodeValueOutOfRange",
	StatusGcodeToolChangePending:      "GcodeToolChangePending",
	StatusGcodeSpindleNotRunning:      "GcodeSpindleNotRunning",
	StatusGcodeIllegalPlane:           "GcodeIllegalPlane",
	StatusGcodeMaxFeedRateExceeded:    "GcodeMaxFeedRateExceeded",
	StatusGcodeRPMOutOfRange:          "GcodeRPMOutOfRange",
	StatusLimitsEngaged:               "LimitsEngaged",
	StatusHomingRequired:              "HomingRequired",
	StatusGcodeToolError:              "GcodeToolError",
	StatusValueWordConflict:           "ValueWordConflict",
	StatusSelfTestFailed:              "SelfTestFailed",
	StatusEStop:                       "EStop",
}

func (c StatusCode) String() string {
	if c < statusCodeCount {
		return statusNames[c]
	}
	return "Status(" + strconv.Itoa(int(c)) + ")"
}

// AlarmCode identifies a critical fault that halts the machine
type AlarmCode uint8

const (
	AlarmNone AlarmCode = iota
	AlarmHardLimit
	AlarmSoftLimit
	AlarmAbortCycle
	AlarmProbeFailInitial
	AlarmProbeFailContact
	AlarmHomingFailReset
	AlarmHomingFailDoor
	AlarmFailPulloff
	AlarmHomingFailApproach
	AlarmEStop
	AlarmHomingRequired
	AlarmLimitsEngaged
	AlarmProbeProtect
	AlarmSpindle

	alarmCodeCount
)

var alarmNames = [alarmCodeCount]string{
	AlarmNone:               "None",
	AlarmHardLimit:          "HardLimit",
	AlarmSoftLimit:          "SoftLimit",
	AlarmAbortCycle:         "AbortCycle",
	AlarmProbeFailInitial:   "ProbeFailInitial",
	AlarmProbeFailContact:   "ProbeFailContact",
	AlarmHomingFailReset:    "HomingFailReset",
	AlarmHomingFailDoor:     "HomingFailDoor",
	AlarmFailPulloff:        "FailPulloff",
	AlarmHomingFailApproach: "HomingFailApproach",
	AlarmEStop:              "EStop",
	AlarmHomingRequired:     "HomingRequired",
	AlarmLimitsEngaged:      "LimitsEngaged",
	AlarmProbeProtect:       "ProbeProtect",
	AlarmSpindle:            "Spindle",
}

func (c AlarmCode) String() string {
	if c < alarmCodeCount {
		return alarmNames[c]
	}
	return "Alarm(" + strconv.Itoa(int(c)) + ")"
}

// MessageCode selects a fixed advisory text for a [MSG:] envelope
type MessageCode uint8

const (
	MessageNone MessageCode = iota
	MessageCriticalEvent
	MessageAlarmLock
	MessageAlarmUnlock
	MessageEnabled
	MessageDisabled
	MessageSafetyDoorAjar
	MessageCheckLimits
	MessageProgramEnd
	MessageRestoreDefaults
	MessageSpindleRestore
	MessageSleepMode
	MessageEStop

	messageCodeCount
)

var messageText = [messageCodeCount]string{
	MessageNone:            "",
	MessageCriticalEvent:   "Reset to continue",
	MessageAlarmLock:       "'$H'|'$X' to unlock",
	MessageAlarmUnlock:     "Caution: Unlocked",
	MessageEnabled:         "Enabled",
	MessageDisabled:        "Disabled",
	MessageSafetyDoorAjar:  "Check Door",
	MessageCheckLimits:     "Check Limits",
	MessageProgramEnd:      "Pgm End",
	MessageRestoreDefaults: "Restoring defaults",
	MessageSpindleRestore:  "Restoring spindle",
	MessageSleepMode:       "Sleeping",
	MessageEStop:           "Emergency stop",
}

// Text returns the advisory string for c. Unknown codes map to an empty body.
func (c MessageCode) Text() string {
	if c < messageCodeCount {
		return messageText[c]
	}
	return ""
}
