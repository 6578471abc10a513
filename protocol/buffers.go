package protocol

// OutputBuffer is the sink the encoders append to
type OutputBuffer interface {
	Output(data []byte)
	OutputByte(b byte)
	CurPosition() int
}

// Frame collects one envelope in a fixed scratch area so that it can be
// handed to the Transport as a single write.
type Frame struct {
	buf      [MessageMax]byte
	pos      int
	overflow bool
}

// NewFrame creates an empty Frame
func NewFrame() *Frame {
	return &Frame{}
}

func (f *Frame) Output(data []byte) {
	n := copy(f.buf[f.pos:], data)
	f.pos += n
	if n < len(data) {
		f.overflow = true
	}
}

func (f *Frame) OutputByte(b byte) {
	if f.pos >= len(f.buf) {
		f.overflow = true
		return
	}
	f.buf[f.pos] = b
	f.pos++
}

func (f *Frame) CurPosition() int {
	return f.pos
}

// Overflowed reports whether any output was dropped because the frame was full
func (f *Frame) Overflowed() bool {
	return f.overflow
}

// Result returns the accumulated frame bytes
func (f *Frame) Result() []byte {
	return f.buf[:f.pos]
}

// Reset clears the frame for reuse
func (f *Frame) Reset() {
	f.pos = 0
	f.overflow = false
}

// RxBuffer is the receive ring between the link and the line executor.
// Like the serial ring buffer of a controller, one slot always stays free,
// so a buffer of size n holds n-1 bytes. It is not safe for concurrent use.
type RxBuffer struct {
	buf  []byte
	head int
	tail int
}

// NewRxBuffer creates a ring of the given size
func NewRxBuffer(size int) *RxBuffer {
	if size < 2 {
		size = 2
	}
	return &RxBuffer{buf: make([]byte, size)}
}

// PutByte queues b; it reports false when the ring is full
func (r *RxBuffer) PutByte(b byte) bool {
	next := r.head + 1
	if next == len(r.buf) {
		next = 0
	}
	if next == r.tail {
		return false
	}
	r.buf[r.head] = b
	r.head = next
	return true
}

// ReadByte removes and returns the oldest byte
func (r *RxBuffer) ReadByte() (byte, bool) {
	if r.tail == r.head {
		return 0, false
	}
	b := r.buf[r.tail]
	r.tail++
	if r.tail == len(r.buf) {
		r.tail = 0
	}
	return b, true
}

// Len returns the number of queued bytes
func (r *RxBuffer) Len() int {
	n := r.head - r.tail
	if n < 0 {
		n += len(r.buf)
	}
	return n
}

// Free returns the room left, as reported in Bf:
func (r *RxBuffer) Free() int {
	return len(r.buf) - 1 - r.Len()
}

// Reset drops everything queued
func (r *RxBuffer) Reset() {
	r.head, r.tail = 0, 0
}
