package standalone

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
	"gorbl/standalone/config"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

type rig struct {
	t   *testing.T
	m   *Machine
	nvs *settings.MemoryBackend
	out *syncBuffer
}

func newRig(t *testing.T, mutate func(*config.Config)) *rig {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	rcfg := cfg.ReportConfig()
	rcfg.Sleep = func(time.Duration) {}

	log, _ := logtest.NewNullLogger()
	r := &rig{t: t, nvs: settings.NewMemoryBackend(), out: &syncBuffer{}}
	m, err := NewMachine(log, cfg, r.out, r.nvs, &rcfg)
	require.NoError(t, err)
	r.m = m
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
	})
	return r
}

func (r *rig) send(s string) {
	_, err := r.m.Write([]byte(s))
	require.NoError(r.t, err)
}

func (r *rig) waitFor(want string) {
	r.t.Helper()
	require.Eventually(r.t, func() bool {
		return strings.Contains(r.out.String(), want)
	}, 2*time.Second, 5*time.Millisecond, "waiting for %q in %q", want, r.out.String())
}

func (r *rig) waitCount(want string, n int) {
	r.t.Helper()
	require.Eventually(r.t, func() bool {
		return strings.Count(r.out.String(), want) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d x %q in %q", n, want, r.out.String())
}

// barrier sends $G and waits for its reply; every earlier line has been
// answered once it returns
func (r *rig) barrier() {
	r.t.Helper()
	n := strings.Count(r.out.String(), "[GC:")
	r.send("$G\n")
	r.waitCount("[GC:", n+1)
	r.waitFor("]\r\nok\r\n")
}

const welcome = "\r\nGrblHAL 1.1f ['$' for help]\r\n"

func TestSessionWelcome(t *testing.T) {
	r := newRig(t, nil)
	assert.True(t, strings.HasPrefix(r.out.String(), welcome))
}

func TestSessionConfirmsEachLine(t *testing.T) {
	r := newRig(t, nil)
	r.send("G21 G90\n")
	r.send("G99\n")
	r.send("G0 X-1\n")
	r.waitCount("ok\r\n", 2)
	r.waitFor("error:20\r\n")

	out := r.out.String()
	assert.Less(t, strings.Index(out, "ok\r\n"), strings.Index(out, "error:20\r\n"))
}

func TestSessionLineTerminators(t *testing.T) {
	r := newRig(t, nil)
	r.send("G90\r\nG91\rG90\n\n")
	r.barrier()
	// three lines, one empty line, one $G
	assert.Equal(t, 5, strings.Count(r.out.String(), "ok\r\n"))
}

func TestSessionSplitWrites(t *testing.T) {
	r := newRig(t, nil)
	r.send("G")
	r.send("9")
	r.send("1\r")
	r.send("\n")
	r.barrier()
	assert.Equal(t, 2, strings.Count(r.out.String(), "ok\r\n"))
	assert.True(t, r.m.Interpreter.ModalState().Incremental)
}

func TestSessionOverflow(t *testing.T) {
	r := newRig(t, nil)
	r.send("G0" + strings.Repeat(" ", protocol.LineMax) + "X-1\n")
	r.waitFor("error:11\r\n")
	r.barrier()
	assert.Equal(t, 1, strings.Count(r.out.String(), "ok\r\n"))
}

func TestSessionStatusRealtime(t *testing.T) {
	r := newRig(t, nil)
	r.send("?")
	r.waitFor("<Idle|")
	assert.Contains(t, r.out.String(), "MPos:0.000,0.000,0.000")
}

func TestSessionAlarmLock(t *testing.T) {
	r := newRig(t, nil)
	r.m.Session.RaiseAlarm(protocol.AlarmHardLimit)
	r.waitFor("ALARM:1\r\n")

	r.send("G0 X-1\n")
	r.waitFor("error:9\r\n")

	r.send("$X\n")
	r.waitFor("[MSG:Caution: Unlocked]\r\nok\r\n")
	assert.Equal(t, core.StateIdle, r.m.System.State())

	r.send("G0 X-1\n")
	r.waitCount("ok\r\n", 2)
}

func TestSessionHomingLockAtStart(t *testing.T) {
	nvs := settings.NewMemoryBackend()
	store := settings.NewStore(nvs, core.Capabilities{})
	_, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, store.ParseLine("22=1"))

	cfg := config.Default()
	cfg.Session.HomingLock = true
	rcfg := cfg.ReportConfig()
	rcfg.Sleep = func(time.Duration) {}
	log, _ := logtest.NewNullLogger()
	out := &syncBuffer{}
	m, err := NewMachine(log, cfg, out, nvs, &rcfg)
	require.NoError(t, err)
	require.NoError(t, m.Start())

	assert.Equal(t, welcome+"[MSG:'$H'|'$X' to unlock]\r\n", out.String())
	assert.Equal(t, core.StateAlarm, m.System.State())
}

func TestSessionResetWhileIdle(t *testing.T) {
	r := newRig(t, nil)
	r.send("G91\n")
	r.waitFor("ok\r\n")
	r.send(string([]byte{protocol.CmdReset}))
	r.waitCount(welcome, 2)

	assert.NotContains(t, r.out.String(), "ALARM")
	assert.Equal(t, core.StateIdle, r.m.System.State())
	assert.False(t, r.m.Interpreter.ModalState().Incremental)
}

func TestSessionResetDuringMotion(t *testing.T) {
	r := newRig(t, nil)
	r.send("G1 X-100 F10\n")
	r.waitFor("ok\r\n")
	require.Eventually(t, func() bool {
		return r.m.System.State() == core.StateCycle
	}, time.Second, 5*time.Millisecond)

	r.send(string([]byte{protocol.CmdReset}))
	r.waitFor("ALARM:3\r\n" + welcome + "[MSG:'$H'|'$X' to unlock]\r\n")
	assert.Equal(t, core.StateAlarm, r.m.System.State())
	assert.True(t, r.m.Planner.IsEmpty())
}

// lineTaken waits until the receive buffer has been drained by Run, so
// the last line sent is the running one
func (r *rig) lineTaken(full int) {
	r.t.Helper()
	require.Eventually(r.t, func() bool {
		return r.m.Session.RxFree() == full
	}, 2*time.Second, time.Millisecond)
}

func TestSessionResetConfirmsRunningDwell(t *testing.T) {
	r := newRig(t, nil)
	full := r.m.Session.RxFree()

	r.send("G4 P5\n")
	r.lineTaken(full)
	r.send(string([]byte{protocol.CmdReset}))
	r.waitCount(welcome, 2)

	assert.Equal(t, welcome+"error:18\r\n"+welcome, r.out.String())
	assert.Equal(t, core.StateIdle, r.m.System.State())
}

func TestSessionResetConfirmsRunningHoming(t *testing.T) {
	r := newRig(t, nil)
	r.send("$22=1\n")
	r.send("G0 X-10\n")
	r.waitCount("ok\r\n", 2)
	require.Eventually(t, func() bool {
		return r.m.Engine.Idle() && r.m.System.State() == core.StateIdle
	}, 5*time.Second, 5*time.Millisecond)

	r.send("$H\n")
	require.Eventually(t, func() bool {
		return r.m.System.State() == core.StateHoming
	}, time.Second, time.Millisecond)
	r.send(string([]byte{protocol.CmdReset}))
	r.waitFor("error:18\r\nALARM:6\r\n" + welcome + "[MSG:'$H'|'$X' to unlock]\r\n")

	out := r.out.String()
	assert.Equal(t, 2, strings.Count(out, "ok\r\n"))
	assert.Equal(t, 1, strings.Count(out, "error:"))
	assert.Equal(t, core.StateAlarm, r.m.System.State())
}

func TestSessionResetDropsUnreadLines(t *testing.T) {
	r := newRig(t, nil)
	full := r.m.Session.RxFree()

	r.send("G4 P5\n")
	r.lineTaken(full)
	r.send("G91\nG90\n")
	r.send(string([]byte{protocol.CmdReset}))
	r.waitCount(welcome, 2)
	r.barrier()

	// the dwell and $G are confirmed; the queued lines never ran
	out := r.out.String()
	assert.Equal(t, 1, strings.Count(out, "error:18\r\n"))
	assert.Equal(t, 1, strings.Count(out, "ok\r\n"))
}

func TestSessionInputsKeepLinesApart(t *testing.T) {
	r := newRig(t, nil)
	in := r.m.Session.NewInput()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			for _, b := range []byte("G91\n") {
				_, err := r.m.Write([]byte{b})
				assert.NoError(t, err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			for _, b := range []byte("G90\n") {
				_, err := in.Write([]byte{b})
				assert.NoError(t, err)
			}
		}
	}()
	wg.Wait()

	r.waitCount("ok\r\n", 30)
	assert.NotContains(t, r.out.String(), "error:")
}

func TestSessionInputDiscardsPartialLineOnReset(t *testing.T) {
	r := newRig(t, nil)
	in := r.m.Session.NewInput()

	_, err := in.Write([]byte("G9"))
	require.NoError(t, err)
	r.send(string([]byte{protocol.CmdReset}))
	r.waitCount(welcome, 2)

	_, err = in.Write([]byte("1\n"))
	require.NoError(t, err)
	r.waitFor("error:")
	assert.False(t, r.m.Interpreter.ModalState().Incremental)
}

func TestSessionStartupLines(t *testing.T) {
	r := newRig(t, nil)
	r.send("$N0=G91\n")
	r.waitFor("ok\r\n")
	r.send("$N\n")
	r.waitFor("$N0=G91\r\n$N1=\r\nok\r\n")

	r.send(string([]byte{protocol.CmdReset}))
	r.waitFor(welcome + ">G91:ok\r\n")
	assert.True(t, r.m.Interpreter.ModalState().Incremental)
}

func TestSessionParametersReadFailure(t *testing.T) {
	r := newRig(t, nil)
	r.send("G10 L2 P1 X1\n")
	r.waitFor("ok\r\n")
	r.nvs.Corrupt("coord.0")

	r.send("$#\n")
	r.waitFor("error:7\r\n")
	r.barrier()

	out := r.out.String()
	assert.Equal(t, 1, strings.Count(out, "error:7\r\n"))
	assert.NotContains(t, out, "[G54:")
	// G10 and $G only
	assert.Equal(t, 2, strings.Count(out, "ok\r\n"))
}

func TestSessionEcho(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.Session.Echo = true })
	r.send("G90\n")
	r.waitFor("[echo: G90]\r\nok\r\n")
}

func TestSessionSystemCommands(t *testing.T) {
	r := newRig(t, nil)

	r.send("$\n")
	r.waitFor("[HLP:")

	r.send("$I\n")
	r.waitFor("[OPT:")

	r.send("$C\n")
	r.waitFor("[MSG:Enabled]\r\nok\r\n")
	assert.Equal(t, core.StateCheckMode, r.m.System.State())

	r.send("$C\n")
	r.waitFor("[MSG:Disabled]\r\nok\r\n")
	assert.Equal(t, core.StateIdle, r.m.System.State())

	r.send("$110=900\n")
	r.barrier()
	assert.Equal(t, 900.0, r.m.Store.AxisValues(settings.AxisMaxRate)[core.AxisX])

	r.send("$H\n")
	r.waitFor("error:5\r\n")

	r.send("$Q\n")
	r.waitFor("error:3\r\n")
}

func TestSessionOverrides(t *testing.T) {
	r := newRig(t, nil)
	r.send(string([]byte{protocol.CmdFeedOverrideCoarseP, protocol.CmdRapidOverrideLow}))
	snap := r.m.System.Snapshot()
	assert.EqualValues(t, 110, snap.Overrides.Feed)
	assert.EqualValues(t, core.RapidOverrideLow, snap.Overrides.Rapid)

	r.send("M50 P0\n")
	r.waitFor("ok\r\n")
	r.send(string([]byte{protocol.CmdFeedOverrideReset}))
	assert.EqualValues(t, 110, r.m.System.Snapshot().Overrides.Feed)
}

func TestSessionFeedHoldAndResume(t *testing.T) {
	r := newRig(t, nil)
	r.send("G1 X-50 F60\n")
	require.Eventually(t, func() bool {
		return r.m.System.State() == core.StateCycle
	}, time.Second, 5*time.Millisecond)

	r.send("!")
	require.Eventually(t, func() bool {
		snap := r.m.System.Snapshot()
		return snap.State == core.StateHold && snap.Holding == core.HoldComplete
	}, time.Second, 5*time.Millisecond)

	r.send("~")
	require.Eventually(t, func() bool {
		return r.m.System.State() == core.StateCycle
	}, time.Second, 5*time.Millisecond)
}

func TestSessionProbeFailureRaisesAlarm(t *testing.T) {
	r := newRig(t, nil)
	r.send("G38.2 Z-1 F6000\n")
	r.waitFor("ALARM:5\r\n")
	assert.Equal(t, core.StateAlarm, r.m.System.State())
}

func TestSessionProbeContact(t *testing.T) {
	r := newRig(t, nil)
	r.m.IO.SetProbeSurface(-0.5)
	r.send("G38.2 Z-2 F6000\n")
	r.waitFor("[PRB:")
	r.waitFor(":1]\r\n")
	r.waitFor("ok\r\n")
	assert.NotContains(t, r.out.String(), "ALARM")
}

func TestSessionDriverSettings(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.TMC.Enabled = true })
	require.NotNil(t, r.m.Drivers)

	r.send("$150=32\n")
	r.send("$$\n")
	r.waitFor("$152=16\r\nok\r\n")

	out := r.out.String()
	assert.Contains(t, out, "$338=7\r\n")
	assert.Contains(t, out, "$150=32\r\n")
	assert.Less(t, strings.Index(out, "$338="), strings.Index(out, "$100="))
	assert.Less(t, strings.Index(out, "$100="), strings.Index(out, "$150="))
}

// failingSink rejects every frame starting with prefix
type failingSink struct {
	syncBuffer
	prefix string
}

func (f *failingSink) Write(p []byte) (int, error) {
	if strings.HasPrefix(string(p), f.prefix) {
		return 0, errors.New("link down")
	}
	return f.syncBuffer.Write(p)
}

func TestSessionReportWriteFailureIsNotConfirmedOK(t *testing.T) {
	cfg := config.Default()
	rcfg := cfg.ReportConfig()
	rcfg.Sleep = func(time.Duration) {}
	log, _ := logtest.NewNullLogger()
	out := &failingSink{prefix: "$1="}
	m, err := NewMachine(log, cfg, out, settings.NewMemoryBackend(), &rcfg)
	require.NoError(t, err)
	require.NoError(t, m.Start())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	_, err = m.Write([]byte("$$\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "error:7\r\n")
	}, 2*time.Second, 5*time.Millisecond)

	assert.Contains(t, out.String(), "$0=")
	assert.NotContains(t, out.String(), "ok\r\n")
}
