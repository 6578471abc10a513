// Package report renders every outbound envelope of the line protocol:
// confirmations, alarms, feedback messages, the $ dumps, the modal state
// line, build info and the realtime status frame.
//
// Each envelope is assembled in a protocol.Frame and handed to the shared
// protocol.Transport in one write, so envelopes from concurrent emitters
// never interleave.
package report

import (
	"sync"
	"time"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
)

// ModalSource returns a copy of the interpreter's modal state
type ModalSource interface {
	ModalState() core.ModalState
}

// Kinematics converts a step position to machine coordinates in mm
type Kinematics interface {
	StepsToMPos(steps core.StepVector) core.Vector
}

// KinematicsFunc adapts a function to Kinematics
type KinematicsFunc func(core.StepVector) core.Vector

func (f KinematicsFunc) StepsToMPos(steps core.StepVector) core.Vector {
	return f(steps)
}

// Buffers reports planner and receive buffer occupancy
type Buffers interface {
	// PlannerAvailable returns the number of free planner blocks
	PlannerAvailable() int
	// RxFree returns the free space of the serial receive buffer
	RxFree() int
	// CurrentLine returns the line number of the executing block
	CurrentLine() (line int32, ok bool)
}

// Deps are the collaborators the reporter reads from. Inputs, Outputs
// and Buffers may be nil.
type Deps struct {
	System     *core.System
	Settings   *settings.Store
	Modal      ModalSource
	Kinematics Kinematics
	Inputs     core.Inputs
	Outputs    core.Outputs
	Buffers    Buffers
}

// BuildOptions are the fixed build features advertised in [OPT:]
type BuildOptions struct {
	CoreXY                  bool
	Parking                 bool
	HomingForceOrigin       bool
	HomingSingleAxis        bool
	DualLimitSwitches       bool
	FeedOverrideDuringProbe bool
	SpindleOffWithZeroSpeed bool
	HomingInitLock          bool

	// These are advertised when the feature is missing
	RestoreWipeAll    bool
	RestoreDefaults   bool
	RestoreParameters bool
	BuildInfoWrite    bool
	SyncOnWCOChange   bool
}

// Config holds the reporter settings
type Config struct {
	Caps            core.Capabilities
	Info            string // platform identity in [VER:]
	Options         BuildOptions
	BlockBufferSize int
	RxBufferSize    int

	// AlarmDelay is how long Alarm waits after draining the transport
	AlarmDelay time.Duration
	Sleep      func(time.Duration)

	// Status frame refresh intervals, in polls
	WCORefreshBusy int
	WCORefreshIdle int
	OvrRefreshBusy int
	OvrRefreshIdle int

	// SuppressOverridesWithWCO delays Ov: by one poll when WCO: is emitted
	SuppressOverridesWithWCO bool
}

// DefaultConfig returns the stock configuration
func DefaultConfig() Config {
	return Config{
		Info:            "HAL",
		BlockBufferSize: 36,
		RxBufferSize:    protocol.RxBufferSize,
		AlarmDelay:      500 * time.Millisecond,
		Sleep:           time.Sleep,
		WCORefreshBusy:  30,
		WCORefreshIdle:  10,
		OvrRefreshBusy:  20,
		OvrRefreshIdle:  10,
		Options: BuildOptions{
			RestoreWipeAll:    true,
			RestoreDefaults:   true,
			RestoreParameters: true,
			BuildInfoWrite:    true,
		},
		SuppressOverridesWithWCO: true,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Info == "" {
		c.Info = def.Info
	}
	if c.BlockBufferSize <= 0 {
		c.BlockBufferSize = def.BlockBufferSize
	}
	if c.RxBufferSize <= 0 {
		c.RxBufferSize = def.RxBufferSize
	}
	if c.AlarmDelay <= 0 {
		c.AlarmDelay = def.AlarmDelay
	}
	if c.Sleep == nil {
		c.Sleep = def.Sleep
	}
	if c.WCORefreshBusy <= 0 {
		c.WCORefreshBusy = def.WCORefreshBusy
	}
	if c.WCORefreshIdle <= 0 {
		c.WCORefreshIdle = def.WCORefreshIdle
	}
	if c.OvrRefreshBusy <= 0 {
		c.OvrRefreshBusy = def.OvrRefreshBusy
	}
	if c.OvrRefreshIdle <= 0 {
		c.OvrRefreshIdle = def.OvrRefreshIdle
	}
}

// Reporter renders envelopes onto a Transport. All methods are safe for
// concurrent use; an error is returned only when the transport fails.
type Reporter struct {
	out  *protocol.Transport
	deps Deps
	cfg  Config

	mu  sync.Mutex // guards the throttle counters
	wco ScheduledField
	ovr ScheduledField
}

// New creates a Reporter. Zero fields of cfg take their DefaultConfig value.
func New(out *protocol.Transport, deps Deps, cfg Config) *Reporter {
	cfg.applyDefaults()
	if deps.Inputs == nil {
		deps.Inputs = noInputs{}
	}
	if deps.Outputs == nil {
		deps.Outputs = noOutputs{}
	}
	if deps.Kinematics == nil {
		deps.Kinematics = storeKinematics{deps.Settings}
	}
	return &Reporter{
		out:  out,
		deps: deps,
		cfg:  cfg,
		wco:  NewScheduledField(cfg.WCORefreshBusy, cfg.WCORefreshIdle),
		ovr:  NewScheduledField(cfg.OvrRefreshBusy, cfg.OvrRefreshIdle),
	}
}

// Config returns the effective configuration
func (r *Reporter) Config() Config {
	return r.cfg
}

// emit assembles one envelope and writes it as a single frame
func (r *Reporter) emit(build func(f *protocol.Frame)) error {
	var f protocol.Frame
	build(&f)
	if err := r.out.WriteFrame(&f); err != nil {
		core.DebugPrintln("report: write failed: " + err.Error())
		return err
	}
	return nil
}

func (r *Reporter) units() protocol.Units {
	if r.deps.Settings == nil {
		return protocol.Units{}
	}
	return r.deps.Settings.Units()
}

func (r *Reporter) modal() core.ModalState {
	if r.deps.Modal == nil {
		return core.ModalState{}
	}
	return r.deps.Modal.ModalState()
}

type noInputs struct{}

func (noInputs) Limits() core.AxisMask        { return 0 }
func (noInputs) Control() core.ControlSignals { return 0 }
func (noInputs) Probe() bool                  { return false }

type noOutputs struct{}

func (noOutputs) Spindle() core.SpindleState { return core.SpindleState{} }
func (noOutputs) Coolant() core.CoolantState { return core.CoolantState{} }
func (noOutputs) MeasuredRPM() float64       { return 0 }

// storeKinematics divides by the steps/mm settings
type storeKinematics struct {
	store *settings.Store
}

func (k storeKinematics) StepsToMPos(steps core.StepVector) core.Vector {
	var v core.Vector
	if k.store == nil {
		return v
	}
	spm := k.store.StepsPerMM()
	for i := range v {
		if spm[i] != 0 {
			v[i] = float64(steps[i]) / spm[i]
		}
	}
	return v
}
