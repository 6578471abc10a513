package report

import "gorbl/protocol"

// StatusMessage emits the confirmation for one input line: "ok" for
// StatusOK, "error:<code>" otherwise
func (r *Reporter) StatusMessage(code protocol.StatusCode) error {
	return r.emit(func(f *protocol.Frame) {
		encodeStatus(f, code)
	})
}

func encodeStatus(f *protocol.Frame, code protocol.StatusCode) {
	if code == protocol.StatusOK {
		protocol.EncodeString(f, "ok")
	} else {
		protocol.EncodeString(f, "error:")
		protocol.EncodeUint(f, uint32(code))
	}
	protocol.EncodeLineEnd(f)
}
