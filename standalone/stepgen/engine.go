// Package stepgen executes planner blocks by advancing the shared step
// position on a fixed tick.
package stepgen

import (
	"context"
	"math"
	"sync"
	"time"

	"gorbl/core"
	"gorbl/standalone/kinematics"
	"gorbl/standalone/planner"
)

// DefaultTick is the interpolation period
const DefaultTick = 5 * time.Millisecond

// ProbeResult is reported when a probing move ends
type ProbeResult func(mode core.MotionMode, contact bool)

// Engine interpolates the executing block. All motion-owned state lives in
// core.System; the engine only writes it through System's setters.
type Engine struct {
	sys     *core.System
	planner *planner.Planner
	kin     kinematics.Kinematics
	inputs  core.Inputs
	onProbe ProbeResult

	mu      sync.Mutex
	active  bool
	block   planner.Block
	start   core.StepVector
	elapsed time.Duration
}

// New creates an engine. inputs supplies the probe pin.
func New(sys *core.System, p *planner.Planner, kin kinematics.Kinematics, inputs core.Inputs) *Engine {
	return &Engine{sys: sys, planner: p, kin: kin, inputs: inputs}
}

// OnProbe installs the callback run when a G38.x move ends
func (e *Engine) OnProbe(fn ProbeResult) {
	e.mu.Lock()
	e.onProbe = fn
	e.mu.Unlock()
}

// Run ticks the engine until ctx is done
func (e *Engine) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = DefaultTick
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(period)
		}
	}
}

// Tick advances motion by dt of wall time
func (e *Engine) Tick(dt time.Duration) {
	e.mu.Lock()
	result, mode, contact := e.tick(dt)
	fn := e.onProbe
	e.mu.Unlock()

	if result && fn != nil {
		fn(mode, contact)
	}
}

func (e *Engine) tick(dt time.Duration) (probed bool, mode core.MotionMode, contact bool) {
	snap := e.sys.Snapshot()
	switch snap.State {
	case core.StateHold:
		if snap.Holding == core.HoldPending {
			e.sys.SetHold(core.HoldComplete)
		}
		e.sys.SetRealtimeRate(0)
		return
	case core.StateAlarm, core.StateEStop, core.StateSafetyDoor, core.StateSleep:
		e.sys.SetRealtimeRate(0)
		return
	}

	if !e.active {
		b, ok := e.planner.Current()
		if !ok {
			if snap.State == core.StateCycle || snap.State == core.StateJog {
				e.sys.SetState(core.StateIdle)
			}
			e.sys.SetRealtimeRate(0)
			return
		}
		e.block, e.start, e.elapsed, e.active = b, snap.Position, 0, true
		if snap.State == core.StateIdle {
			e.sys.SetState(core.StateCycle)
		}
	}

	pct := float64(snap.Overrides.Feed)
	if e.block.Rapid {
		pct = float64(snap.Overrides.Rapid)
	}
	e.elapsed += time.Duration(float64(dt) * pct / 100)

	frac := 1.0
	if e.block.Duration > 0 && e.elapsed < e.block.Duration {
		frac = float64(e.elapsed) / float64(e.block.Duration)
	}

	var delta core.StepVector
	for i := range delta {
		want := e.start[i] + int32(math.Round(float64(e.block.Steps[i]-e.start[i])*frac))
		delta[i] = want - snap.Position[i]
	}
	e.sys.Step(delta)
	e.sys.SetRealtimeRate(e.block.Rate * pct / 100)

	if e.block.Probe.IsProbe() {
		away := e.block.Probe == core.MotionProbeAway || e.block.Probe == core.MotionProbeAwayNoError
		if e.inputs.Probe() != away {
			pos := e.sys.Position()
			core.DebugAsync("stepgen: probe contact")
			e.sys.SetProbe(pos, true)
			e.finish(pos)
			e.planner.Clear()
			return true, e.block.Probe, true
		}
	}

	if frac >= 1 {
		pos := e.sys.Position()
		e.finish(pos)
		e.planner.Discard()
		if e.block.Probe.IsProbe() {
			e.sys.SetProbe(pos, false)
			return true, e.block.Probe, false
		}
	}
	return
}

// finish ends the executing block. A probe contact leaves the planned
// position behind, so it is resynchronised from the steps.
func (e *Engine) finish(pos core.StepVector) {
	e.active = false
	if e.block.Probe.IsProbe() {
		e.planner.SetPosition(e.kin.StepsToMPos(pos))
	}
}

// FeedHold starts a controlled stop of the running motion
func (e *Engine) FeedHold() {
	switch e.sys.State() {
	case core.StateCycle, core.StateJog:
		e.sys.SetHold(core.HoldPending)
	}
}

// CycleStart resumes from a completed hold
func (e *Engine) CycleStart() {
	snap := e.sys.Snapshot()
	if snap.State != core.StateHold || snap.Holding != core.HoldComplete {
		return
	}
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active || !e.planner.IsEmpty() {
		e.sys.SetState(core.StateCycle)
	} else {
		e.sys.SetState(core.StateIdle)
	}
}

// Stop aborts motion and drops every queued block. The planned position is
// set to wherever the steppers stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.active = false
	e.planner.Clear()
	e.planner.SetPosition(e.kin.StepsToMPos(e.sys.Position()))
	e.sys.SetRealtimeRate(0)
	e.mu.Unlock()
}

// Idle reports whether nothing is executing or queued
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.active && e.planner.IsEmpty()
}
