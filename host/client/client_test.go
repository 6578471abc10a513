package client

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorbl/protocol"
	"gorbl/settings"
	"gorbl/standalone"
	"gorbl/standalone/config"
)

// link connects a client to an in-process machine
type link struct {
	*io.PipeReader
	m  *standalone.Machine
	pw *io.PipeWriter
}

func (l *link) Write(p []byte) (int, error) { return l.m.Write(p) }
func (l *link) Close() error                { return l.pw.Close() }

type messages struct {
	mu    sync.Mutex
	lines []string
}

func (m *messages) add(line string) {
	m.mu.Lock()
	m.lines = append(m.lines, line)
	m.mu.Unlock()
}

func (m *messages) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

func newClient(t *testing.T) (*Client, *standalone.Machine, *messages) {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	cfg := config.Default()
	rcfg := cfg.ReportConfig()
	rcfg.Sleep = func(time.Duration) {}

	pr, pw := io.Pipe()
	m, err := standalone.NewMachine(log, cfg, pw, settings.NewMemoryBackend(), &rcfg)
	require.NoError(t, err)

	msgs := &messages{}
	c := New(&link{PipeReader: pr, m: m, pw: pw}, log, Options{Timeout: time.Second, OnMessage: msgs.add})
	require.NoError(t, m.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = c.Close()
	})
	return c, m, msgs
}

func TestClientExec(t *testing.T) {
	c, m, msgs := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, "G91"))
	assert.True(t, m.Interpreter.ModalState().Incremental)

	err := c.Exec(ctx, "G99")
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, protocol.StatusGcodeUnsupportedCommand, cmdErr.Code)
	assert.Contains(t, cmdErr.Error(), "error:20")

	assert.Contains(t, msgs.all(), "GrblHAL 1.1f ['$' for help]")
}

func TestClientStreamAndStatus(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	program := "G21 G90\n\n  G0 X-5 Y-2\nG1 Z-1 F6000\n"
	n, err := c.Stream(ctx, strings.NewReader(program))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Eventually(t, func() bool {
		st, err := c.Status(ctx)
		return err == nil && st.State == "Idle" && st.Position[2] == -1
	}, 3*time.Second, 20*time.Millisecond)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Machine)
	assert.InDelta(t, -5, st.Position[0], 1e-3)
	assert.InDelta(t, -2, st.Position[1], 1e-3)
}

func TestClientStreamStopsAtRejection(t *testing.T) {
	c, _, _ := newClient(t)
	n, err := c.Stream(context.Background(), strings.NewReader("G90\nG0 X\nG91\n"))
	assert.Equal(t, 1, n)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "G0 X", cmdErr.Line)
}

func TestClientMessages(t *testing.T) {
	c, _, msgs := newClient(t)
	require.NoError(t, c.Exec(context.Background(), "$C"))
	assert.Contains(t, msgs.all(), "[MSG:Enabled]")
	assert.Error(t, c.Realtime('x'))
}

type silentPort struct {
	io.Reader
	closed chan struct{}
}

func (s *silentPort) Write(p []byte) (int, error) { return len(p), nil }
func (s *silentPort) Close() error                { close(s.closed); return nil }

func TestClientTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	log, _ := logtest.NewNullLogger()
	c := New(&silentPort{Reader: pr, closed: make(chan struct{})}, log, Options{Timeout: 20 * time.Millisecond})
	defer func() {
		_ = pw.Close()
		<-c.done
	}()

	_, err := c.Send(context.Background(), "G0 X1")
	assert.ErrorIs(t, err, ErrTimeout)

	_, err = c.Status(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}
