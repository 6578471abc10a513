package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

var (
	ErrFrameTooLong = errors.New("frame exceeds MessageMax")
	ErrClosed       = errors.New("transport closed")
)

// TapFunc receives a copy of every frame written to the transport
type TapFunc func(frame []byte)

type tap struct {
	id uint32
	fn TapFunc
}

// Transport is the single output channel shared by every emitter. Each
// WriteFrame call reaches the sink as one uninterrupted write, and frames
// leave in the order their writers acquired the channel.
type Transport struct {
	mu     sync.Mutex
	sink   io.Writer
	taps   []tap
	nextID uint32
	closed bool

	frames uint32 // atomic
	bytes  uint64 // atomic

	flushCallback func() // Called after Drain flushes the sink
}

// NewTransport creates a Transport writing to sink
func NewTransport(sink io.Writer) *Transport {
	return &Transport{sink: sink}
}

// WriteFrame writes one complete envelope
func (t *Transport) WriteFrame(f *Frame) error {
	if f.Overflowed() {
		return ErrFrameTooLong
	}
	return t.write(f.Result())
}

// Write implements io.Writer; p is treated as one frame
func (t *Transport) Write(p []byte) (int, error) {
	if len(p) > MessageMax {
		return 0, ErrFrameTooLong
	}
	if err := t.write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteString writes s as one frame
func (t *Transport) WriteString(s string) error {
	f := NewFrame()
	EncodeString(f, s)
	return t.WriteFrame(f)
}

func (t *Transport) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	if err := writeAll(t.sink, p); err != nil {
		return fmt.Errorf("transport write: %w", err)
	}

	atomic.AddUint32(&t.frames, 1)
	atomic.AddUint64(&t.bytes, uint64(len(p)))

	if len(t.taps) > 0 {
		cp := make([]byte, len(p))
		copy(cp, p)
		for _, tp := range t.taps {
			tp.fn(cp)
		}
	}
	return nil
}

// writeAll loops until p is fully written. The sink may block to apply
// backpressure.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Drain pushes anything buffered by the sink out to the link
func (t *Transport) Drain() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fl, ok := t.sink.(interface{ Flush() error }); ok {
		if err := fl.Flush(); err != nil {
			return fmt.Errorf("transport flush: %w", err)
		}
	}
	if t.flushCallback != nil {
		t.flushCallback()
	}
	return nil
}

// SetFlushCallback registers fn to run after every Drain
func (t *Transport) SetFlushCallback(fn func()) {
	t.mu.Lock()
	t.flushCallback = fn
	t.mu.Unlock()
}

// Tap registers fn to observe every frame. Taps run on the writer's
// goroutine while the channel is held and must not block.
func (t *Transport) Tap(fn TapFunc) (cancel func()) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.taps = append(t.taps, tap{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, tp := range t.taps {
			if tp.id == id {
				t.taps = append(t.taps[:i], t.taps[i+1:]...)
				return
			}
		}
	}
}

// Frames returns the number of frames written
func (t *Transport) Frames() uint32 {
	return atomic.LoadUint32(&t.frames)
}

// BytesWritten returns the number of bytes written
func (t *Transport) BytesWritten() uint64 {
	return atomic.LoadUint64(&t.bytes)
}

// Close stops further writes. The sink is closed if it implements io.Closer.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if c, ok := t.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
