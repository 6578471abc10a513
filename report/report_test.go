package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
)

type fakeModal struct {
	m core.ModalState
}

func (f *fakeModal) ModalState() core.ModalState { return f.m }

type fakeBuffers struct {
	planner int
	rx      int
	line    int32
	active  bool
}

func (f *fakeBuffers) PlannerAvailable() int              { return f.planner }
func (f *fakeBuffers) RxFree() int                        { return f.rx }
func (f *fakeBuffers) CurrentLine() (line int32, ok bool) { return f.line, f.active }

type fakeInputs struct {
	limits  core.AxisMask
	control core.ControlSignals
	probe   bool
}

func (f *fakeInputs) Limits() core.AxisMask        { return f.limits }
func (f *fakeInputs) Control() core.ControlSignals { return f.control }
func (f *fakeInputs) Probe() bool                  { return f.probe }

type fakeOutputs struct {
	spindle  core.SpindleState
	coolant  core.CoolantState
	measured float64
}

func (f *fakeOutputs) Spindle() core.SpindleState { return f.spindle }
func (f *fakeOutputs) Coolant() core.CoolantState { return f.coolant }
func (f *fakeOutputs) MeasuredRPM() float64       { return f.measured }

type harness struct {
	r     *Reporter
	sys   *core.System
	store *settings.Store
	nvs   *settings.MemoryBackend
	modal *fakeModal
	bufs  *fakeBuffers
	in    *fakeInputs
	outs  *fakeOutputs
	sink  *bytes.Buffer
	slept []time.Duration
}

func newHarness(t *testing.T, caps core.Capabilities, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		sys:   core.NewSystem(),
		nvs:   settings.NewMemoryBackend(),
		modal: &fakeModal{},
		bufs:  &fakeBuffers{planner: 35, rx: 1023},
		in:    &fakeInputs{},
		outs:  &fakeOutputs{},
		sink:  &bytes.Buffer{},
	}
	h.store = settings.NewStore(h.nvs, caps)
	_, err := h.store.Load()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Caps = caps
	cfg.Sleep = func(d time.Duration) { h.slept = append(h.slept, d) }
	for _, m := range mutate {
		m(&cfg)
	}

	h.r = New(protocol.NewTransport(h.sink), Deps{
		System:   h.sys,
		Settings: h.store,
		Modal:    h.modal,
		Inputs:   h.in,
		Outputs:  h.outs,
		Buffers:  h.bufs,
	}, cfg)
	return h
}

// take returns and clears everything written so far
func (h *harness) take() string {
	s := h.sink.String()
	h.sink.Reset()
	return s
}

func (h *harness) setMask(t *testing.T, mask settings.StatusReport) {
	t.Helper()
	require.Equal(t, protocol.StatusOK, h.store.SetValue(settings.StatusReportMask, float64(mask)))
}

func TestStatusMessage(t *testing.T) {
	h := newHarness(t, core.Capabilities{})

	require.NoError(t, h.r.StatusMessage(protocol.StatusOK))
	assert.Equal(t, "ok\r\n", h.take())

	require.NoError(t, h.r.StatusMessage(protocol.StatusInvalidStatement))
	assert.Equal(t, "error:3\r\n", h.take())

	require.NoError(t, h.r.StatusMessage(protocol.StatusEStop))
	assert.Equal(t, "error:50\r\n", h.take())
}

type orderedSink struct {
	events []string
}

func (s *orderedSink) Write(p []byte) (int, error) {
	s.events = append(s.events, "write:"+string(p))
	return len(p), nil
}

func (s *orderedSink) Flush() error {
	s.events = append(s.events, "flush")
	return nil
}

func TestAlarmDrainsThenWaits(t *testing.T) {
	sink := &orderedSink{}
	var slept []time.Duration
	cfg := DefaultConfig()
	cfg.Sleep = func(d time.Duration) {
		sink.events = append(sink.events, "sleep")
		slept = append(slept, d)
	}
	r := New(protocol.NewTransport(sink), Deps{System: core.NewSystem()}, cfg)

	require.NoError(t, r.Alarm(protocol.AlarmHardLimit))
	assert.Equal(t, []string{"write:ALARM:1\r\n", "flush", "sleep"}, sink.events)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, slept)
}

func TestAlarmWaitsEvenWhenWriteFails(t *testing.T) {
	var slept int
	cfg := DefaultConfig()
	cfg.Sleep = func(time.Duration) { slept++ }
	tr := protocol.NewTransport(&bytes.Buffer{})
	require.NoError(t, tr.Close())

	r := New(tr, Deps{System: core.NewSystem()}, cfg)
	assert.Error(t, r.Alarm(protocol.AlarmEStop))
	assert.Equal(t, 1, slept)
}

func TestFeedbackMessages(t *testing.T) {
	h := newHarness(t, core.Capabilities{})

	require.NoError(t, h.r.Feedback(protocol.MessageAlarmUnlock))
	assert.Equal(t, "[MSG:Caution: Unlocked]\r\n", h.take())

	require.NoError(t, h.r.Feedback(protocol.MessageCode(200)))
	assert.Equal(t, "[MSG:]\r\n", h.take())
	assert.Empty(t, h.slept)
}

func TestFixedLines(t *testing.T) {
	h := newHarness(t, core.Capabilities{})

	require.NoError(t, h.r.Init())
	assert.Equal(t, "\r\nGrblHAL 1.1f ['$' for help]\r\n", h.take())

	require.NoError(t, h.r.Help())
	assert.Equal(t, "[HLP:$$ $# $G $I $N $x=val $Nx=line $J=line $SLP $C $X $H $B ~ ! ? ctrl-x]\r\n", h.take())

	require.NoError(t, h.r.Echo("G0 X1"))
	assert.Equal(t, "[echo: G0 X1]\r\n", h.take())

	require.NoError(t, h.r.StartupLine(1, "G21"))
	assert.Equal(t, "$N1=G21\r\n", h.take())

	require.NoError(t, h.r.ExecuteStartup("G21", protocol.StatusOK))
	assert.Equal(t, ">G21:ok\r\n", h.take())

	require.NoError(t, h.r.ExecuteStartup("G5", protocol.StatusGcodeUnsupportedCommand))
	assert.Equal(t, ">G5:error:20\r\n", h.take())
}

func TestBuildInfo(t *testing.T) {
	h := newHarness(t, core.Capabilities{VariableSpindle: true, MistControl: true, SafetyDoor: true, Tools: 8},
		func(c *Config) { c.Info = "Simulator" })

	require.NoError(t, h.r.BuildInfo("mill"))
	assert.Equal(t, "[VER:1.1f(Simulator).20181017:mill]\r\n[OPT:VNML+WV,35,1024,3,8]\r\n", h.take())

	h2 := newHarness(t, core.Capabilities{ManualToolChange: true}, func(c *Config) {
		c.Options = BuildOptions{HomingInitLock: true, SyncOnWCOChange: true}
	})
	require.NoError(t, h2.r.BuildInfo(""))
	assert.Equal(t, "[VER:1.1f(HAL).20181017:]\r\n[OPT:N*$#IU,35,1024,3]\r\n", h2.take())
}

func TestSettingsDumpRoundTrip(t *testing.T) {
	caps := core.Capabilities{VariableSpindle: true, SpindleSync: true}
	h := newHarness(t, caps)
	require.Equal(t, protocol.StatusOK, h.store.Set(settings.JunctionDeviation, "0.025"))
	require.Equal(t, protocol.StatusOK, h.store.Set(settings.AxisID(settings.AxisAcceleration, 1), "12.345"))
	require.Equal(t, protocol.StatusOK, h.store.Set(settings.AxisID(settings.AxisMaxTravel, 2), "321.5"))
	require.Equal(t, protocol.StatusOK, h.store.Set(settings.LaserMode, "1"))
	require.Equal(t, protocol.StatusOK, h.store.Set(settings.SpindleIGain, "0.125"))

	require.NoError(t, h.r.Settings())
	dump := h.take()
	assert.Contains(t, dump, "$0=10\r\n")
	assert.Contains(t, dump, "$11=0.025\r\n")
	assert.Contains(t, dump, "$121=12.345\r\n")
	assert.Contains(t, dump, "$132=321.500\r\n")
	assert.Contains(t, dump, "$30=1000\r\n")

	fresh := settings.NewStore(settings.NewMemoryBackend(), caps)
	lines := strings.Split(strings.TrimSuffix(dump, "\r\n"), "\r\n")
	for _, line := range lines {
		require.True(t, strings.HasPrefix(line, "$"), line)
		require.Equal(t, protocol.StatusOK, fresh.ParseLine(line[1:]), line)
	}

	for _, e := range append(h.store.GlobalEntries(), h.store.AxisEntries()...) {
		assert.Equal(t, h.store.Value(e.ID), fresh.Value(e.ID), "setting %d", e.ID)
	}
}

func TestSettingsDumpOrderAndGating(t *testing.T) {
	h := newHarness(t, core.Capabilities{})
	require.NoError(t, h.r.Settings())
	dump := h.take()

	assert.NotContains(t, dump, "$38=")
	assert.Contains(t, dump, "$32=0\r\n")
	assert.NotContains(t, dump, "$140=")
	assert.Less(t, strings.Index(dump, "$46="), strings.Index(dump, "$100="))
	assert.Less(t, strings.Index(dump, "$102="), strings.Index(dump, "$110="))
}

type driverSettings struct{}

func (driverSettings) Settings(axis bool) []settings.Entry {
	if axis {
		return []settings.Entry{{ID: 338, Kind: settings.KindUint, Value: 7}}
	}
	return []settings.Entry{{ID: 99, Kind: settings.KindFloat, Decimals: 1, Value: 2.5}}
}

func (driverSettings) Set(settings.ID, float64) (protocol.StatusCode, bool) {
	return protocol.StatusOK, true
}

func TestSettingsDumpDriverHook(t *testing.T) {
	h := newHarness(t, core.Capabilities{})
	h.store.SetExtension(driverSettings{})
	require.NoError(t, h.r.Settings())
	dump := h.take()

	require.Contains(t, dump, "$99=2.5\r\n")
	require.Contains(t, dump, "$338=7\r\n")
	assert.Less(t, strings.Index(dump, "$46="), strings.Index(dump, "$99="))
	assert.Less(t, strings.Index(dump, "$99="), strings.Index(dump, "$100="))
	assert.True(t, strings.HasSuffix(dump, "$338=7\r\n"))
}

func TestParameters(t *testing.T) {
	h := newHarness(t, core.Capabilities{Tools: 2})
	require.NoError(t, h.store.WriteCoordData(settings.CoordG55, core.Vector{1, 2, 3}))
	require.NoError(t, h.store.SetToolOffset(2, core.Vector{0, 0, -4.5}))
	h.modal.m.G92 = core.Vector{0.5, 0, 0}
	h.modal.m.TLO = core.Vector{0, 0, 1.25}
	h.sys.SetProbe(core.StepVector{2500, 0, -1250}, true)

	require.NoError(t, h.r.Parameters())
	lines := strings.Split(strings.TrimSuffix(h.take(), "\r\n"), "\r\n")

	require.Len(t, lines, settings.NumCoordSlots+5)
	assert.Equal(t, "[G54:0.000,0.000,0.000]", lines[0])
	assert.Equal(t, "[G55:1.000,2.000,3.000]", lines[1])
	assert.Equal(t, "[G59.1:0.000,0.000,0.000]", lines[6])
	assert.Equal(t, "[G28:0.000,0.000,0.000]", lines[9])
	assert.Equal(t, "[G30:0.000,0.000,0.000]", lines[10])
	assert.Equal(t, "[G92:0.500,0.000,0.000]", lines[11])
	assert.Equal(t, "[T1:0.000,0.000,0.000]", lines[12])
	assert.Equal(t, "[T2:0.000,0.000,-4.500]", lines[13])
	assert.Equal(t, "[TLO:0.000,0.000,1.250]", lines[14])
	assert.Equal(t, "[PRB:10.000,0.000,-5.000:1]", lines[15])
}

func TestParametersReadFailureEmitsOnlyError(t *testing.T) {
	h := newHarness(t, core.Capabilities{})
	require.NoError(t, h.store.WriteCoordData(settings.CoordG57, core.Vector{1, 1, 1}))
	h.nvs.Corrupt("coord.3")

	assert.ErrorIs(t, h.r.Parameters(), ErrParametersUnavailable)
	assert.Equal(t, "error:7\r\n", h.take())
}

func TestProbeFailure(t *testing.T) {
	h := newHarness(t, core.Capabilities{})
	h.sys.SetProbe(core.StepVector{-250, 0, 0}, false)

	require.NoError(t, h.r.Probe())
	assert.Equal(t, "[PRB:-1.000,0.000,0.000:0]\r\n", h.take())
}

func TestModalDefault(t *testing.T) {
	h := newHarness(t, core.Capabilities{VariableSpindle: true})

	require.NoError(t, h.r.Modal())
	assert.Equal(t, "[GC:G0 G54 G8 G17 G21 G90 G94 G50 M5 M9 T0 F0 S0]\r\n", h.take())
}

func TestModalActive(t *testing.T) {
	h := newHarness(t, core.Capabilities{ParkingOverride: true})
	h.modal.m = core.ModalState{
		Motion:          core.MotionProbeAway,
		CoordSystem:     settings.CoordG59_1,
		DiameterMode:    true,
		Plane:           core.PlaneYZ,
		Incremental:     true,
		InverseTime:     true,
		ScalingActive:   true,
		ScaledAxes:      0b011,
		ProgramFlow:     core.ProgramPaused,
		Spindle:         core.SpindleState{On: true, CCW: true},
		Coolant:         core.CoolantState{Flood: true, Mist: true},
		ToolChange:      true,
		OverrideDisable: core.DisableFeedOverride | core.DisableFeedHold | core.DisableParking,
		Tool:            2,
		FeedRate:        1500,
		SpindleRPM:      9000,
	}

	require.NoError(t, h.r.Modal())
	assert.Equal(t, "[GC:G38.4 G59.1 G7 G19 G21 G91 G93 G51:3 M0 M4 M6 M7 M8 M50 M53 M56 T2 F1500]\r\n", h.take())
}

func TestModalProgramFlow(t *testing.T) {
	h := newHarness(t, core.Capabilities{})
	for flow, want := range map[core.ProgramFlow]string{
		core.ProgramOptionalStop: " M1 M5",
		core.ProgramCompletedM2:  " M2 M5",
		core.ProgramCompletedM30: " M30 M5",
		core.ProgramRunning:      "G50 M5",
	} {
		h.modal.m = core.ModalState{ProgramFlow: flow}
		require.NoError(t, h.r.Modal())
		assert.Contains(t, h.take(), want, "flow %d", flow)
	}
}

func TestModalInchFeed(t *testing.T) {
	h := newHarness(t, core.Capabilities{})
	require.Equal(t, protocol.StatusOK, h.store.Set(settings.ReportInches, "1"))
	h.modal.m.FeedRate = 254
	h.modal.m.Inches = true

	require.NoError(t, h.r.Modal())
	assert.Equal(t, "[GC:G0 G54 G8 G17 G20 G90 G94 G50 M5 M9 T0 F10.0]\r\n", h.take())
}
