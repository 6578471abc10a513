// Package standalone runs the controller side of the line protocol: byte
// intake, realtime commands, $ system commands and G-code execution, with
// every outbound envelope rendered by the reporter.
package standalone

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/report"
	"gorbl/settings"
)

// Executor runs G-code lines and owns the modal state
type Executor interface {
	Execute(ctx context.Context, line string) protocol.StatusCode
	Jog(ctx context.Context, line string) protocol.StatusCode
	ModalState() core.ModalState
	Reset() error
	SyncPosition()
	AckToolChange()
}

// Motion is the realtime control surface of the motion engine
type Motion interface {
	FeedHold()
	CycleStart()
	Stop()
	Idle() bool
	Home(ctx context.Context) error
}

// Options tune the session
type Options struct {
	Echo bool // echo each received line before executing it
	// HomingLock starts in alarm when homing is enabled ($22)
	HomingLock bool
}

// Session reads protocol input and answers each line with exactly one
// confirmation. Realtime bytes are acted on as they arrive. Lines run one
// at a time on the Run goroutine.
type Session struct {
	log    logrus.FieldLogger
	sys    *core.System
	store  *settings.Store
	rep    *report.Reporter
	exec   Executor
	motion Motion
	opts   Options

	mu       sync.Mutex
	rx       *protocol.RxBuffer
	asm      lineAssembler
	injected []queuedLine
	gen      uint64 // bumped by every reset
	dropped  int
	startup  bool
	cancel   context.CancelFunc
	lineDone chan struct{}
	wake     chan struct{}
}

type queuedLine struct {
	text     string
	overflow bool
}

// maxInjected bounds the lines queued by secondary inputs
const maxInjected = 16

// resetWait bounds how long a reset waits for the running line to be
// confirmed
const resetWait = time.Second

// ErrInputFull is returned by Input.Write when a complete line had to be
// dropped
var ErrInputFull = errors.New("session: input queue full")

// NewSession creates a session. Call Start before feeding input.
func NewSession(log logrus.FieldLogger, sys *core.System, store *settings.Store, rep *report.Reporter,
	exec Executor, motion Motion, opts Options) *Session {
	return &Session{
		log:    log,
		sys:    sys,
		store:  store,
		rep:    rep,
		exec:   exec,
		motion: motion,
		opts:   opts,
		rx:     protocol.NewRxBuffer(rep.Config().RxBufferSize),
		asm:    lineAssembler{buf: make([]byte, 0, protocol.LineMax)},
		wake:   make(chan struct{}, 1),
	}
}

// RxFree returns the free space of the receive buffer
func (s *Session) RxFree() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rx.Free()
}

// Write feeds bytes from the primary link. Realtime commands are executed
// immediately; everything else is queued for Run. Bytes that do not fit
// the receive buffer are dropped. Other sources must use NewInput so that
// their lines never mix with a partial line from the link.
func (s *Session) Write(p []byte) (int, error) {
	n := len(p)
	queued := false
	for len(p) > 0 {
		i := 0
		s.mu.Lock()
		for ; i < len(p) && !protocol.IsRealtime(p[i]); i++ {
			if !s.rx.PutByte(p[i]) {
				s.dropped++
			}
			queued = true
		}
		s.mu.Unlock()
		if i < len(p) {
			s.realtime(p[i])
			i++
		}
		p = p[i:]
	}
	if queued {
		s.signal()
	}
	return n, nil
}

// Input is a secondary line source such as a network client. It
// assembles its own lines and queues them whole.
type Input struct {
	s   *Session
	mu  sync.Mutex
	asm lineAssembler
	gen uint64
}

// NewInput creates a secondary line source
func (s *Session) NewInput() *Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Input{s: s, asm: lineAssembler{buf: make([]byte, 0, protocol.LineMax)}, gen: s.gen}
}

// Write handles realtime bytes immediately and queues each completed
// line. A partial line is kept until its terminator arrives; a reset
// discards it.
func (in *Input) Write(p []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	var err error
	for _, b := range p {
		if protocol.IsRealtime(b) {
			in.s.realtime(b)
			continue
		}
		if gen := in.s.generation(); gen != in.gen {
			in.asm.reset()
			in.gen = gen
		}
		line, overflow, done := in.asm.feed(b)
		if done && !in.s.enqueue(queuedLine{line, overflow}) {
			err = ErrInputFull
		}
	}
	return len(p), err
}

func (s *Session) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Session) enqueue(l queuedLine) bool {
	s.mu.Lock()
	if len(s.injected) >= maxInjected {
		s.dropped++
		s.mu.Unlock()
		return false
	}
	s.injected = append(s.injected, l)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start emits the welcome line and either locks the machine or runs the
// startup lines on the Run goroutine
func (s *Session) Start() error {
	if err := s.exec.Reset(); err != nil {
		s.log.WithError(err).Warn("modal reset failed")
	}
	if s.opts.HomingLock && s.store.Value(settings.HomingEnable) != 0 {
		s.sys.SetState(core.StateAlarm)
	}
	return s.welcome()
}

func (s *Session) welcome() error {
	if err := s.rep.Init(); err != nil {
		return err
	}
	if s.sys.State() == core.StateAlarm {
		return s.rep.Feedback(protocol.MessageAlarmLock)
	}
	s.mu.Lock()
	s.startup = true
	s.mu.Unlock()
	s.signal()
	return nil
}

// Run executes received lines until ctx is done. Every line taken from
// the input is confirmed, including one cut short by a reset.
func (s *Session) Run(ctx context.Context) error {
	for {
		if s.takeStartup() {
			s.runStartup(ctx)
		}

		lineCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		line, overflow, ok := s.nextLine(cancel, done)
		if !ok {
			cancel()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
			}
			continue
		}

		var status protocol.StatusCode
		confirmed := false
		if overflow {
			status = protocol.StatusOverflow
		} else {
			status, confirmed = s.handleLine(lineCtx, line)
		}
		if !confirmed {
			if err := s.rep.StatusMessage(status); err != nil {
				s.log.WithError(err).Error("write confirmation")
			}
		}

		s.mu.Lock()
		s.cancel, s.lineDone = nil, nil
		s.mu.Unlock()
		cancel()
		close(done)
	}
}

func (s *Session) takeStartup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := s.startup
	s.startup = false
	return run
}

// nextLine pops one complete line, link input first. The line is marked
// running, with cancel and done, before the lock is released.
func (s *Session) nextLine(cancel context.CancelFunc, done chan struct{}) (line string, overflow bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !ok {
		b, more := s.rx.ReadByte()
		if !more {
			break
		}
		line, overflow, ok = s.asm.feed(b)
	}
	if !ok && len(s.injected) > 0 {
		q := s.injected[0]
		s.injected = s.injected[1:]
		line, overflow, ok = q.text, q.overflow, true
	}
	if ok {
		s.cancel, s.lineDone = cancel, done
	}
	return line, overflow, ok
}

// lineAssembler collects bytes into lines. CR, LF and CRLF each end a
// line; other control characters are dropped.
type lineAssembler struct {
	buf      []byte
	overflow bool
	lastCR   bool
}

func (a *lineAssembler) feed(b byte) (line string, overflow bool, done bool) {
	switch {
	case b == '\n' && a.lastCR:
		a.lastCR = false
		return "", false, false
	case b == '\n' || b == '\r':
		a.lastCR = b == '\r'
		line, overflow = string(a.buf), a.overflow
		a.buf, a.overflow = a.buf[:0], false
		return line, overflow, true
	}
	a.lastCR = false
	if b < ' ' || b == 0x7F {
		return "", false, false
	}
	if len(a.buf) >= protocol.LineMax {
		a.overflow = true
		return "", false, false
	}
	a.buf = append(a.buf, b)
	return "", false, false
}

func (a *lineAssembler) reset() {
	a.buf, a.overflow, a.lastCR = a.buf[:0], false, false
}

// handleLine runs one line. confirmed is true when the line's
// confirmation has already been written.
func (s *Session) handleLine(ctx context.Context, line string) (status protocol.StatusCode, confirmed bool) {
	if s.opts.Echo {
		if err := s.rep.Echo(line); err != nil {
			s.log.WithError(err).Error("write echo")
		}
	}
	if line == "" {
		return protocol.StatusOK, false
	}
	if line[0] == '$' {
		return s.system(ctx, line[1:])
	}

	switch s.sys.State() {
	case core.StateAlarm, core.StateEStop, core.StateSleep:
		return protocol.StatusSystemGClock, false
	}
	return s.exec.Execute(ctx, line), false
}

func (s *Session) runStartup(ctx context.Context) {
	for n := 0; n < settings.NumStartupLines; n++ {
		line, err := s.store.StartupLine(n)
		if err != nil {
			s.log.WithError(err).Warn("read startup line")
			s.writeErr(s.rep.ExecuteStartup("", protocol.StatusSettingReadFail))
			continue
		}
		if line == "" {
			continue
		}
		s.writeErr(s.rep.ExecuteStartup(line, s.exec.Execute(ctx, line)))
	}
}

func (s *Session) writeErr(err error) {
	if err != nil {
		s.log.WithError(err).Error("write report")
	}
}

// RaiseAlarm halts motion, enters the alarm state and reports code
func (s *Session) RaiseAlarm(code protocol.AlarmCode) {
	s.motion.Stop()
	s.sys.SetState(core.StateAlarm)
	s.log.WithField("alarm", code.String()).Warn("alarm raised")
	s.writeErr(s.rep.Alarm(code))
}

// Reset performs a soft reset. The running line is cancelled and its
// confirmation is written before anything else; unread input is
// discarded, motion in progress is aborted with an alarm and the welcome
// line is sent.
func (s *Session) Reset() {
	st := s.sys.State()
	moving := st == core.StateCycle || st == core.StateJog || st == core.StateHoming || !s.motion.Idle()

	s.mu.Lock()
	cancel, done := s.cancel, s.lineDone
	s.rx.Reset()
	s.asm.reset()
	s.injected = nil
	s.gen++
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.motion.Stop()
	if done != nil {
		t := time.NewTimer(resetWait)
		select {
		case <-done:
		case <-t.C:
			s.log.Warn("running line not confirmed before reset")
		}
		t.Stop()
	}

	if moving {
		code := protocol.AlarmAbortCycle
		if st == core.StateHoming {
			code = protocol.AlarmHomingFailReset
		}
		s.sys.SetState(core.StateAlarm)
		s.writeErr(s.rep.Alarm(code))
	} else if s.sys.State() != core.StateAlarm && s.sys.State() != core.StateEStop {
		s.sys.SetState(core.StateIdle)
	}
	if err := s.exec.Reset(); err != nil {
		s.log.WithError(err).Warn("modal reset failed")
	}
	s.writeErr(s.welcome())
}
