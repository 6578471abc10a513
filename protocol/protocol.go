// Package protocol implements the GRBL line protocol: envelope framing,
// numeric field encoders and the shared output transport.
package protocol

// Version is the firmware version advertised in the welcome and build info lines
const (
	Version      = "1.1f"
	VersionBuild = "20181017"
)

// Protocol constants
const (
	MessageMax   = 512  // Largest single frame handed to the transport
	LineMax      = 256  // Longest accepted input line, terminator excluded
	RxBufferSize = 1024 // Default serial receive ring size

	LineTerminator = "\r\n"
)

// Decimal places used when formatting values on the wire
const (
	DecimalCoordMM   = 3
	DecimalCoordInch = 4
	DecimalRateMM    = 0
	DecimalRateInch  = 1
	DecimalSetting   = 3
	DecimalRPM       = 0
)

// InchPerMM converts millimetres to inches
const InchPerMM = 1.0 / 25.4

// Realtime command bytes. These are acted on as soon as they are received
// and never enter the line buffer.
const (
	CmdStatusReport = '?'
	CmdCycleStart   = '~'
	CmdFeedHold     = '!'
	CmdReset        = 0x18

	CmdSafetyDoor          = 0x84
	CmdJogCancel           = 0x85
	CmdFeedOverrideReset   = 0x90
	CmdFeedOverrideCoarseP = 0x91
	CmdFeedOverrideCoarseM = 0x92
	CmdFeedOverrideFineP   = 0x93
	CmdFeedOverrideFineM   = 0x94
	CmdRapidOverrideReset  = 0x95
	CmdRapidOverrideMedium = 0x96
	CmdRapidOverrideLow    = 0x97
	CmdSpindleOverrideRst  = 0x99
	CmdSpindleOverrideCP   = 0x9A
	CmdSpindleOverrideCM   = 0x9B
	CmdSpindleOverrideFP   = 0x9C
	CmdSpindleOverrideFM   = 0x9D
	CmdSpindleStop         = 0x9E
	CmdCoolantFloodToggle  = 0xA0
	CmdCoolantMistToggle   = 0xA1
)

// IsRealtime reports whether b is handled out-of-band from line intake
func IsRealtime(b byte) bool {
	switch b {
	case CmdStatusReport, CmdCycleStart, CmdFeedHold, CmdReset:
		return true
	}
	return b >= 0x80
}
