package gcode

import (
	"math"

	"gorbl/core"
	"gorbl/protocol"
)

// Modal groups. Two words from one group on a line is an error.
const (
	groupMotion = iota
	groupNonModal
	groupPlane
	groupDistance
	groupFeedMode
	groupUnits
	groupTLO
	groupCoord
	groupDiameter
	groupScaling
	groupStop
	groupSpindle
	groupCoolant
	groupToolChange
	groupOverride

	groupCount
)

// Non-modal commands, numbered G code times ten
const (
	nonModalDwell       = 40
	nonModalSetData     = 100
	nonModalGoHome0     = 280
	nonModalSetHome0    = 281
	nonModalGoHome1     = 300
	nonModalSetHome1    = 301
	nonModalAbsolute    = 530
	nonModalSetOffset   = 920
	nonModalResetOffset = 921
)

// Tool length offset commands
const (
	tloTable   = 430
	tloDynamic = 431
	tloCancel  = 490
)

// command collects the words of one block before anything is executed
type command struct {
	seen [groupCount]bool

	motion      core.MotionMode
	nonModal    int
	plane       core.Plane
	incremental bool
	inverseTime bool
	inches      bool
	tlo         int
	coord       int
	diameter    bool
	scaling     bool
	stop        core.ProgramFlow
	spindle     core.SpindleState
	coolant     int // M code
	override    int // M code

	has    [26]bool
	values [26]float64

	axes     core.Vector
	axisMask core.AxisMask
}

func (c *command) hasWord(letter byte) bool {
	return c.has[letter-'A']
}

func (c *command) value(letter byte) float64 {
	return c.values[letter-'A']
}

func (c *command) claim(group int) protocol.StatusCode {
	if c.seen[group] {
		return protocol.StatusGcodeModalGroupViolation
	}
	c.seen[group] = true
	return protocol.StatusOK
}

// collect sorts words into a command, checking groups and values
func collect(words []Word, caps core.Capabilities) (command, protocol.StatusCode) {
	var c command
	for _, w := range words {
		var status protocol.StatusCode
		switch w.Letter {
		case 'G':
			status = c.gword(w.Value)
		case 'M':
			status = c.mword(w.Value, caps)
		default:
			status = c.valueWord(w)
		}
		if status != protocol.StatusOK {
			return c, status
		}
	}
	return c, protocol.StatusOK
}

func (c *command) gword(v float64) protocol.StatusCode {
	code := int(math.Round(v * 10))
	group := -1

	switch code {
	case 0, 10, 20, 30:
		group, c.motion = groupMotion, core.MotionMode(code/10)
	case 382, 383, 384, 385:
		group, c.motion = groupMotion, core.MotionProbeToward+core.MotionMode(code-382)
	case 800:
		group, c.motion = groupMotion, core.MotionNone
	case nonModalDwell, nonModalSetData, nonModalGoHome0, nonModalSetHome0, nonModalGoHome1,
		nonModalSetHome1, nonModalAbsolute, nonModalSetOffset, nonModalResetOffset:
		group, c.nonModal = groupNonModal, code
	case 170, 180, 190:
		group, c.plane = groupPlane, core.Plane(code/10-17)
	case 200, 210:
		group, c.inches = groupUnits, code == 200
	case 900, 910:
		group, c.incremental = groupDistance, code == 910
	case 930, 940:
		group, c.inverseTime = groupFeedMode, code == 930
	case tloTable, tloDynamic, tloCancel:
		group, c.tlo = groupTLO, code
	case 540, 550, 560, 570, 580, 590:
		group, c.coord = groupCoord, code/10-54
	case 591, 592, 593:
		group, c.coord = groupCoord, code-591+6
	case 70, 80:
		group, c.diameter = groupDiameter, code == 70
	case 500, 510:
		group, c.scaling = groupScaling, code == 510
	}

	if group < 0 {
		if code%10 != 0 {
			return protocol.StatusGcodeCommandValueNotInteger
		}
		return protocol.StatusGcodeUnsupportedCommand
	}
	return c.claim(group)
}

func (c *command) mword(v float64, caps core.Capabilities) protocol.StatusCode {
	if v != math.Trunc(v) {
		return protocol.StatusGcodeCommandValueNotInteger
	}
	var group int
	switch code := int(v); code {
	case 0:
		group, c.stop = groupStop, core.ProgramPaused
	case 1:
		group, c.stop = groupStop, core.ProgramOptionalStop
	case 2:
		group, c.stop = groupStop, core.ProgramCompletedM2
	case 30:
		group, c.stop = groupStop, core.ProgramCompletedM30
	case 3, 4:
		group, c.spindle = groupSpindle, core.SpindleState{On: true, CCW: code == 4}
	case 5:
		group, c.spindle = groupSpindle, core.SpindleState{}
	case 6:
		group = groupToolChange
	case 7:
		if !caps.MistControl {
			return protocol.StatusGcodeUnsupportedCommand
		}
		group, c.coolant = groupCoolant, code
	case 8, 9:
		group, c.coolant = groupCoolant, code
	case 56:
		if !caps.ParkingOverride {
			return protocol.StatusGcodeUnsupportedCommand
		}
		group, c.override = groupOverride, code
	case 50, 51, 53:
		group, c.override = groupOverride, code
	default:
		return protocol.StatusGcodeUnsupportedCommand
	}
	return c.claim(group)
}

func (c *command) valueWord(w Word) protocol.StatusCode {
	switch w.Letter {
	case 'F', 'I', 'J', 'K', 'L', 'N', 'P', 'R', 'S', 'T', 'X', 'Y', 'Z':
	default:
		return protocol.StatusGcodeUnsupportedCommand
	}

	idx := w.Letter - 'A'
	if c.has[idx] {
		return protocol.StatusGcodeWordRepeated
	}
	c.has[idx] = true
	c.values[idx] = w.Value

	switch w.Letter {
	case 'F', 'S', 'N':
		if w.Value < 0 {
			return protocol.StatusNegativeValue
		}
	case 'T', 'L':
		if w.Value < 0 {
			return protocol.StatusNegativeValue
		}
		if w.Value != math.Trunc(w.Value) {
			return protocol.StatusGcodeCommandValueNotInteger
		}
	case 'X', 'Y', 'Z':
		axis := int(w.Letter - 'X')
		c.axes[axis] = w.Value
		c.axisMask |= 1 << uint(axis)
	}
	if w.Letter == 'N' && w.Value > maxLineNumber {
		return protocol.StatusGcodeInvalidLineNumber
	}
	return protocol.StatusOK
}

// maxLineNumber is the largest N word accepted
const maxLineNumber = 10000000
