package standalone

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"gorbl/core"
	"gorbl/drivers/tmc2130"
	"gorbl/protocol"
	"gorbl/report"
	"gorbl/settings"
	"gorbl/standalone/config"
	"gorbl/standalone/gcode"
	"gorbl/standalone/kinematics"
	"gorbl/standalone/planner"
	"gorbl/standalone/stepgen"
)

// Machine is a complete simulated controller: settings, motion, G-code
// interpreter, reporter and protocol session
type Machine struct {
	Config      *config.Config
	System      *core.System
	Store       *settings.Store
	Kinematics  kinematics.Kinematics
	Transport   *protocol.Transport
	Reporter    *report.Reporter
	Planner     *planner.Planner
	Engine      *stepgen.Engine
	Interpreter *gcode.Interpreter
	Session     *Session
	IO          *SimIO
	Drivers     *tmc2130.Drivers // nil unless TMC drivers are enabled

	log    logrus.FieldLogger
	motion *motionControl
}

// NewMachine builds a machine writing protocol output to out. rcfg
// overrides the reporter configuration derived from cfg when not nil.
func NewMachine(log logrus.FieldLogger, cfg *config.Config, out io.Writer, nvs settings.Backend, rcfg *report.Config) (*Machine, error) {
	caps := cfg.Caps()
	store := settings.NewStore(nvs, caps)
	restored, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if restored {
		log.Warn("settings restored to defaults")
	}

	var drv *tmc2130.Drivers
	if cfg.TMC.Enabled {
		var devs [core.NumAxes]*tmc2130.Device
		for axis := range devs {
			devs[axis] = tmc2130.New(tmc2130.NewSimBus(), nil, 0)
		}
		drv = tmc2130.NewDrivers(store, devs)
		if err := drv.Init(); err != nil {
			log.WithError(err).Warn("stepper driver init")
		}
	}

	sys := core.NewSystem()
	kin := kinematics.NewCartesian(store)
	pl := planner.New(cfg.Motion.BlockBufferSize, kin, store)
	sim := NewSimIO(sys, kin)
	eng := stepgen.New(sys, pl, kin, sim)
	motion := &motionControl{sys: sys, planner: pl, engine: eng, store: store, tick: cfg.Motion.Tick}
	interp := gcode.NewInterpreter(sys, store, motion)
	sim.modal = interp

	reportCfg := cfg.ReportConfig()
	if rcfg != nil {
		reportCfg = *rcfg
	}
	transport := protocol.NewTransport(out)
	bufs := &buffers{planner: pl}
	rep := report.New(transport, report.Deps{
		System:     sys,
		Settings:   store,
		Modal:      interp,
		Kinematics: kin,
		Inputs:     sim,
		Outputs:    sim,
		Buffers:    bufs,
	}, reportCfg)

	sess := NewSession(log, sys, store, rep, interp, motion, Options{
		Echo:       cfg.Session.Echo,
		HomingLock: cfg.Session.HomingLock,
	})
	bufs.session = sess

	m := &Machine{
		Config:      cfg,
		System:      sys,
		Store:       store,
		Kinematics:  kin,
		Transport:   transport,
		Reporter:    rep,
		Planner:     pl,
		Engine:      eng,
		Interpreter: interp,
		Session:     sess,
		IO:          sim,
		Drivers:     drv,
		log:         log,
		motion:      motion,
	}
	eng.OnProbe(m.probeDone)
	return m, nil
}

// probeDone reports the probe result. A G38.2/G38.4 move that ends
// without contact raises an alarm.
func (m *Machine) probeDone(mode core.MotionMode, contact bool) {
	if !contact && (mode == core.MotionProbeToward || mode == core.MotionProbeAway) {
		m.Session.RaiseAlarm(protocol.AlarmProbeFailContact)
		return
	}
	if err := m.Reporter.Probe(); err != nil {
		m.log.WithError(err).Error("write probe report")
	}
}

// Start sends the welcome line
func (m *Machine) Start() error {
	return m.Session.Start()
}

// Run drives the motion engine and the session until ctx is done
func (m *Machine) Run(ctx context.Context) error {
	go m.Engine.Run(ctx, m.motion.tick)
	return m.Session.Run(ctx)
}

// Write feeds protocol input from the primary link to the session
func (m *Machine) Write(p []byte) (int, error) {
	return m.Session.Write(p)
}

// NewInput returns a secondary input whose lines are queued whole
func (m *Machine) NewInput() io.Writer {
	return m.Session.NewInput()
}

// motionControl adapts the planner and engine to the interpreter and the
// session
type motionControl struct {
	sys     *core.System
	planner *planner.Planner
	engine  *stepgen.Engine
	store   *settings.Store
	tick    time.Duration
}

func (mc *motionControl) Queue(ctx context.Context, b planner.Block) error {
	return mc.planner.Queue(ctx, b)
}

func (mc *motionControl) Position() core.Vector {
	return mc.planner.Position()
}

// Sync waits for the engine to run out of work
func (mc *motionControl) Sync(ctx context.Context) error {
	ticker := time.NewTicker(mc.tick)
	defer ticker.Stop()
	for {
		// cancellation wins over an engine a reset has just idled
		if err := ctx.Err(); err != nil {
			return err
		}
		if mc.engine.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

func (mc *motionControl) FeedHold()   { mc.engine.FeedHold() }
func (mc *motionControl) CycleStart() { mc.engine.CycleStart() }
func (mc *motionControl) Stop()       { mc.engine.Stop() }
func (mc *motionControl) Idle() bool  { return mc.engine.Idle() }

// Home runs the simulated homing cycle: every axis seeks its switch at
// machine zero at the homing seek rate ($25). A cancelled cycle leaves
// the machine in the homing state for the reset to alarm.
func (mc *motionControl) Home(ctx context.Context) error {
	if err := mc.Sync(ctx); err != nil {
		return err
	}
	var dist float64
	for _, v := range mc.planner.Position() {
		dist = math.Max(dist, math.Abs(v))
	}

	mc.sys.SetState(core.StateHoming)
	if seek := mc.store.Value(settings.HomingSeekRate); dist > 0 && seek > 0 {
		t := time.NewTimer(time.Duration(dist / seek * float64(time.Minute)))
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	mc.sys.SetPosition(core.StepVector{})
	mc.planner.SetPosition(core.Vector{})
	mc.sys.SetState(core.StateIdle)
	return nil
}

type buffers struct {
	planner *planner.Planner
	session *Session
}

func (b *buffers) PlannerAvailable() int              { return b.planner.Available() }
func (b *buffers) RxFree() int                        { return b.session.RxFree() }
func (b *buffers) CurrentLine() (line int32, ok bool) { return b.planner.CurrentLine() }
