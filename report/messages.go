package report

import (
	"gorbl/core"
	"gorbl/protocol"
)

// Alarm emits "ALARM:<code>" and then drains the transport and waits
// Config.AlarmDelay before returning, on every path, so the envelope is
// out before the caller halts the machine.
func (r *Reporter) Alarm(code protocol.AlarmCode) (err error) {
	defer func() {
		if derr := r.out.Drain(); derr != nil && err == nil {
			err = derr
		}
		r.cfg.Sleep(r.cfg.AlarmDelay)
	}()

	core.DebugPrintln("report: alarm " + code.String())
	return r.emit(func(f *protocol.Frame) {
		protocol.EncodeString(f, "ALARM:")
		protocol.EncodeUint(f, uint32(code))
		protocol.EncodeLineEnd(f)
	})
}

// Feedback emits "[MSG:<text>]". Unknown codes produce an empty body.
func (r *Reporter) Feedback(code protocol.MessageCode) error {
	return r.emit(func(f *protocol.Frame) {
		protocol.EncodeString(f, "[MSG:")
		protocol.EncodeString(f, code.Text())
		protocol.EncodeFeedbackEnd(f)
	})
}

// Echo emits the received line as "[echo: <line>]"
func (r *Reporter) Echo(line string) error {
	return r.emit(func(f *protocol.Frame) {
		protocol.EncodeString(f, "[echo: ")
		protocol.EncodeString(f, line)
		protocol.EncodeFeedbackEnd(f)
	})
}

// Init emits the welcome line sent after power up and reset
func (r *Reporter) Init() error {
	return r.emit(func(f *protocol.Frame) {
		protocol.EncodeString(f, "\r\nGrblHAL "+protocol.Version+" ['$' for help]")
		protocol.EncodeLineEnd(f)
	})
}

const helpText = "[HLP:$$ $# $G $I $N $x=val $Nx=line $J=line $SLP $C $X $H $B ~ ! ? ctrl-x"

// Help emits the command summary
func (r *Reporter) Help() error {
	return r.emit(func(f *protocol.Frame) {
		protocol.EncodeString(f, helpText)
		protocol.EncodeFeedbackEnd(f)
	})
}

// StartupLine emits stored startup line n as "$N<n>=<line>"
func (r *Reporter) StartupLine(n int, line string) error {
	return r.emit(func(f *protocol.Frame) {
		protocol.EncodeString(f, "$N")
		protocol.EncodeUint(f, uint32(n))
		f.OutputByte('=')
		protocol.EncodeString(f, line)
		protocol.EncodeLineEnd(f)
	})
}

// ExecuteStartup emits the outcome of running a startup line as
// "><line>:" followed by its confirmation
func (r *Reporter) ExecuteStartup(line string, code protocol.StatusCode) error {
	return r.emit(func(f *protocol.Frame) {
		f.OutputByte('>')
		protocol.EncodeString(f, line)
		f.OutputByte(':')
		encodeStatus(f, code)
	})
}
