package gcode

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
	"gorbl/standalone/kinematics"
	"gorbl/standalone/planner"
)

// Motion is what the interpreter needs from the motion layer
type Motion interface {
	// Queue appends a block, waiting for buffer space
	Queue(ctx context.Context, b planner.Block) error
	// Sync waits until every queued block has executed
	Sync(ctx context.Context) error
	// Position returns the planned machine position
	Position() core.Vector
}

// Interpreter executes G-code lines against the machine. It owns the modal
// state; the reporter reads it through ModalState.
type Interpreter struct {
	sys    *core.System
	store  *settings.Store
	motion Motion
	caps   core.Capabilities

	mu       sync.Mutex
	modal    core.ModalState
	scale    core.Vector
	position core.Vector
}

// NewInterpreter creates an interpreter in the power-on modal state
func NewInterpreter(sys *core.System, store *settings.Store, motion Motion) *Interpreter {
	in := &Interpreter{
		sys:    sys,
		store:  store,
		motion: motion,
		caps:   store.Capabilities(),
	}
	in.modal, in.scale = defaultModal(), identityScale()
	in.position = motion.Position()
	return in
}

func defaultModal() core.ModalState {
	return core.ModalState{Motion: core.MotionSeek}
}

func identityScale() core.Vector {
	return core.Vector{1, 1, 1}
}

// ModalState returns a copy of the modal state
func (in *Interpreter) ModalState() core.ModalState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.modal
}

// Reset restores the power-on modal state and reloads the G54 offset
func (in *Interpreter) Reset() error {
	offset, err := in.store.ReadCoordData(settings.CoordG54)
	in.mu.Lock()
	in.modal, in.scale = defaultModal(), identityScale()
	in.modal.CoordOffset = offset
	in.position = in.motion.Position()
	in.mu.Unlock()
	return err
}

// AckToolChange clears a pending M6
func (in *Interpreter) AckToolChange() {
	in.mu.Lock()
	in.modal.ToolChange = false
	in.mu.Unlock()
}

// Execute parses and runs one line
func (in *Interpreter) Execute(ctx context.Context, line string) protocol.StatusCode {
	blk, status := Parse(line)
	if status != protocol.StatusOK {
		return status
	}
	if blk.Deleted && in.sys.Snapshot().BlockDelete {
		return protocol.StatusOK
	}
	if len(blk.Words) == 0 {
		return protocol.StatusOK
	}

	c, status := collect(blk.Words, in.caps)
	if status != protocol.StatusOK {
		return status
	}

	in.mu.Lock()
	ex := execution{
		in:       in,
		c:        &c,
		m:        in.modal,
		scale:    in.scale,
		position: in.position,
		check:    in.sys.State() == core.StateCheckMode,
	}
	in.mu.Unlock()

	if status = ex.validate(); status != protocol.StatusOK {
		return status
	}
	status = ex.run(ctx)

	in.mu.Lock()
	in.modal, in.scale, in.position = ex.m, ex.scale, ex.position
	in.mu.Unlock()
	return status
}

// execution carries one block through validation and execution. Changes
// are made to copies and committed by Execute.
type execution struct {
	in       *Interpreter
	c        *command
	m        core.ModalState
	scale    core.Vector
	position core.Vector
	check    bool
}

// axisCommand reports which command consumes the axis words
func (ex *execution) axisCommand() (nonModal bool, motion bool) {
	c := ex.c
	switch c.nonModal {
	case nonModalSetData, nonModalGoHome0, nonModalGoHome1, nonModalSetOffset:
		return true, false
	}
	if c.tlo == tloDynamic || c.scaling && c.seen[groupScaling] {
		return true, false
	}
	return false, c.axisMask != 0
}

func (ex *execution) motionMode() core.MotionMode {
	if ex.c.seen[groupMotion] {
		return ex.c.motion
	}
	return ex.m.Motion
}

func (ex *execution) inverseTime() bool {
	if ex.c.seen[groupFeedMode] {
		return ex.c.inverseTime
	}
	return ex.m.InverseTime
}

func (ex *execution) validate() protocol.StatusCode {
	c := ex.c
	nonModalAxes, motionAxes := ex.axisCommand()
	mode := ex.motionMode()

	if nonModalAxes && c.seen[groupMotion] && c.axisMask != 0 {
		return protocol.StatusGcodeAxisCommandConflict
	}
	if motionAxes && mode == core.MotionNone {
		return protocol.StatusGcodeAxisWordsExist
	}
	if c.nonModal == nonModalAbsolute && mode != core.MotionSeek && mode != core.MotionLinear {
		return protocol.StatusGcodeG53InvalidMotionMode
	}

	feedMove := mode == core.MotionLinear || mode == core.MotionCWArc || mode == core.MotionCCWArc || mode.IsProbe()
	if motionAxes && feedMove {
		feed := ex.m.FeedRate
		if c.hasWord('F') {
			feed = c.value('F')
		} else if ex.inverseTime() {
			feed = 0
		}
		if feed == 0 {
			return protocol.StatusGcodeUndefinedFeedRate
		}
	}
	if c.seen[groupMotion] && mode.IsProbe() && c.axisMask == 0 {
		return protocol.StatusGcodeNoAxisWords
	}
	if (mode == core.MotionCWArc || mode == core.MotionCCWArc) && c.seen[groupMotion] && c.axisMask == 0 {
		return protocol.StatusGcodeNoAxisWords
	}

	switch c.nonModal {
	case nonModalDwell:
		if !c.hasWord('P') {
			return protocol.StatusGcodeValueWordMissing
		}
		if c.value('P') < 0 {
			return protocol.StatusNegativeValue
		}
	case nonModalSetData:
		if status := ex.validateSetData(); status != protocol.StatusOK {
			return status
		}
	}

	if c.tlo == tloDynamic && c.axisMask&^(1<<core.AxisZ) != 0 {
		return protocol.StatusGcodeG43DynamicAxisError
	}
	if c.tlo == tloTable && ex.in.caps.Tools == 0 {
		return protocol.StatusGcodeUnsupportedCommand
	}
	if c.hasWord('T') && ex.in.caps.Tools > 0 && int(c.value('T')) > ex.in.caps.Tools {
		return protocol.StatusGcodeIllegalToolTableEntry
	}

	arc := motionAxes && (mode == core.MotionCWArc || mode == core.MotionCCWArc)
	if !arc && (c.hasWord('I') || c.hasWord('J') || c.hasWord('K') || c.hasWord('R')) {
		return protocol.StatusGcodeUnusedWords
	}
	if c.hasWord('L') && c.nonModal != nonModalSetData {
		return protocol.StatusGcodeUnusedWords
	}
	if c.hasWord('P') && c.nonModal != nonModalDwell && c.nonModal != nonModalSetData && !c.seen[groupOverride] {
		return protocol.StatusGcodeUnusedWords
	}
	return protocol.StatusOK
}

func (ex *execution) validateSetData() protocol.StatusCode {
	c := ex.c
	if !c.hasWord('L') || !c.hasWord('P') {
		return protocol.StatusGcodeValueWordMissing
	}
	p := c.value('P')
	if p != float64(int(p)) || p < 0 {
		return protocol.StatusGcodeCommandValueNotInteger
	}
	switch int(c.value('L')) {
	case 1:
		if ex.in.caps.Tools == 0 {
			return protocol.StatusGcodeUnsupportedCommand
		}
		if p < 1 || int(p) > ex.in.caps.Tools {
			return protocol.StatusGcodeIllegalToolTableEntry
		}
	case 2, 20:
		if int(p) > settings.NumCoordSystems {
			return protocol.StatusGcodeUnsupportedCoordSys
		}
	default:
		return protocol.StatusGcodeUnsupportedCommand
	}
	return protocol.StatusOK
}

// units converts a length word to mm
func (ex *execution) units(v float64) float64 {
	if ex.m.Inches {
		return v * protocol.InchPerMM
	}
	return v
}

// axisValues returns the axis words in mm
func (ex *execution) axisValues() core.Vector {
	var v core.Vector
	for axis := range v {
		if ex.c.axisMask.Has(axis) {
			v[axis] = ex.units(ex.c.axes[axis])
		}
	}
	return v
}

func (ex *execution) run(ctx context.Context) protocol.StatusCode {
	c, in := ex.c, ex.in
	m := &ex.m
	m.ProgramFlow = core.ProgramRunning

	if c.seen[groupFeedMode] {
		m.InverseTime = c.inverseTime
	}
	if c.seen[groupUnits] {
		m.Inches = c.inches
	}
	if c.hasWord('F') && !m.InverseTime {
		m.FeedRate = ex.units(c.value('F'))
	}
	if c.hasWord('S') {
		m.SpindleRPM = c.value('S')
	}
	if c.hasWord('T') {
		m.Tool = uint32(c.value('T'))
	}
	if c.seen[groupToolChange] {
		m.ToolChange = true
	}
	if c.seen[groupSpindle] {
		m.Spindle = c.spindle
	}
	if c.seen[groupSpindle] || c.hasWord('S') {
		ex.applySpindle()
	}
	if c.seen[groupCoolant] {
		switch c.coolant {
		case 7:
			m.Coolant.Mist = true
		case 8:
			m.Coolant.Flood = true
		default:
			m.Coolant = core.CoolantState{}
		}
	}
	if c.seen[groupOverride] {
		ex.applyOverrideDisable()
	}

	if c.nonModal == nonModalDwell && !ex.check {
		if status := ex.dwell(ctx, c.value('P')); status != protocol.StatusOK {
			return status
		}
	}

	if c.seen[groupPlane] {
		m.Plane = c.plane
	}
	if c.seen[groupDiameter] {
		m.DiameterMode = c.diameter
	}
	if c.seen[groupTLO] {
		if status := ex.applyTLO(); status != protocol.StatusOK {
			return status
		}
	}
	if c.seen[groupCoord] && c.coord != m.CoordSystem {
		offset, err := in.store.ReadCoordData(c.coord)
		if err != nil {
			return protocol.StatusSettingReadFail
		}
		m.CoordSystem, m.CoordOffset = c.coord, offset
		in.sys.RequestReport(core.ReportWCO)
	}
	if c.seen[groupDistance] {
		m.Incremental = c.incremental
	}
	if c.seen[groupScaling] {
		ex.applyScaling()
	}

	if status := ex.runNonModal(ctx); status != protocol.StatusOK {
		return status
	}
	if c.seen[groupMotion] {
		m.Motion = c.motion
	}
	if _, motionAxes := ex.axisCommand(); motionAxes {
		if status := ex.runMotion(ctx); status != protocol.StatusOK {
			return status
		}
	}

	if c.seen[groupStop] {
		return ex.programFlow(ctx)
	}
	return protocol.StatusOK
}

func (ex *execution) applySpindle() {
	if ex.check {
		return
	}
	rpm := 0.0
	if ex.m.Spindle.On {
		rpm = ex.m.SpindleRPM
	}
	ex.in.sys.SetSpindleRPM(rpm)
}

func (ex *execution) applyOverrideDisable() {
	var bit core.OverrideDisable
	switch ex.c.override {
	case 50:
		bit = core.DisableFeedOverride
	case 51:
		bit = core.DisableSpindleOverride
	case 53:
		bit = core.DisableFeedHold
	case 56:
		bit = core.DisableParking
	}
	if ex.c.hasWord('P') && ex.c.value('P') == 0 {
		ex.m.OverrideDisable |= bit
	} else {
		ex.m.OverrideDisable &^= bit
	}
}

func (ex *execution) applyTLO() protocol.StatusCode {
	prev := ex.m.TLO
	switch ex.c.tlo {
	case tloDynamic:
		ex.m.TLO = core.Vector{}
		ex.m.TLO[core.AxisZ] = ex.units(ex.c.axes[core.AxisZ])
	case tloTable:
		tools, err := ex.in.store.ToolOffsets()
		if err != nil {
			return protocol.StatusSettingReadFail
		}
		if ex.m.Tool == 0 || int(ex.m.Tool) > len(tools) {
			return protocol.StatusGcodeIllegalToolTableEntry
		}
		ex.m.TLO = tools[ex.m.Tool-1]
	case tloCancel:
		ex.m.TLO = core.Vector{}
	}
	if ex.m.TLO != prev {
		ex.in.sys.RequestReport(core.ReportWCO)
	}
	return protocol.StatusOK
}

// applyScaling handles G50/G51. G51 axis words are scale factors.
func (ex *execution) applyScaling() {
	prev := ex.m.ScaledAxes
	ex.scale = identityScale()
	ex.m.ScaledAxes = 0
	if ex.c.scaling {
		for axis := range ex.scale {
			if ex.c.axisMask.Has(axis) && ex.c.axes[axis] != 1 {
				ex.scale[axis] = ex.c.axes[axis]
				ex.m.ScaledAxes |= 1 << uint(axis)
			}
		}
	}
	ex.m.ScalingActive = ex.m.ScaledAxes != 0
	if ex.m.ScaledAxes != prev {
		ex.in.sys.RequestReport(core.ReportScaling)
	}
}

func (ex *execution) dwell(ctx context.Context, seconds float64) protocol.StatusCode {
	if err := ex.in.motion.Sync(ctx); err != nil {
		return motionStatus(err)
	}
	t := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return protocol.StatusReset
	case <-t.C:
	}
	return protocol.StatusOK
}

func (ex *execution) runNonModal(ctx context.Context) protocol.StatusCode {
	c, in := ex.c, ex.in
	switch c.nonModal {
	case nonModalSetData:
		return ex.setData()

	case nonModalGoHome0, nonModalGoHome1:
		slot := settings.CoordG28
		if c.nonModal == nonModalGoHome1 {
			slot = settings.CoordG30
		}
		home, err := in.store.ReadCoordData(slot)
		if err != nil {
			return protocol.StatusSettingReadFail
		}
		if c.axisMask != 0 {
			if status := ex.queue(ctx, ex.target(false), true, core.MotionNone, 0); status != protocol.StatusOK {
				return status
			}
		}
		return ex.queue(ctx, home, true, core.MotionNone, 0)

	case nonModalSetHome0, nonModalSetHome1:
		if ex.check {
			return protocol.StatusOK
		}
		slot := settings.CoordG28
		if c.nonModal == nonModalSetHome1 {
			slot = settings.CoordG30
		}
		if err := in.store.WriteCoordData(slot, ex.position); err != nil {
			return protocol.StatusSettingReadFail
		}

	case nonModalSetOffset:
		values := ex.axisValues()
		base := ex.m.CoordOffset.Add(ex.m.TLO)
		for axis := range ex.m.G92 {
			if c.axisMask.Has(axis) {
				ex.m.G92[axis] = ex.position[axis] - base[axis] - values[axis]
			}
		}
		in.sys.RequestReport(core.ReportWCO)

	case nonModalResetOffset:
		ex.m.G92 = core.Vector{}
		in.sys.RequestReport(core.ReportWCO)
	}
	return protocol.StatusOK
}

// setData handles G10 L1, L2 and L20
func (ex *execution) setData() protocol.StatusCode {
	c, in := ex.c, ex.in
	p := int(c.value('P'))
	values := ex.axisValues()

	if int(c.value('L')) == 1 {
		if ex.check {
			return protocol.StatusOK
		}
		tools, err := in.store.ToolOffsets()
		if err != nil {
			return protocol.StatusSettingReadFail
		}
		offset := tools[p-1]
		for axis := range offset {
			if c.axisMask.Has(axis) {
				offset[axis] = values[axis]
			}
		}
		if err := in.store.SetToolOffset(p, offset); err != nil {
			return protocol.StatusSettingReadFail
		}
		return protocol.StatusOK
	}

	slot := ex.m.CoordSystem
	if p > 0 {
		slot = p - 1
	}
	offset, err := in.store.ReadCoordData(slot)
	if err != nil {
		return protocol.StatusSettingReadFail
	}
	for axis := range offset {
		if !c.axisMask.Has(axis) {
			continue
		}
		if int(c.value('L')) == 20 {
			offset[axis] = ex.position[axis] - ex.m.G92[axis] - ex.m.TLO[axis] - values[axis]
		} else {
			offset[axis] = values[axis]
		}
	}
	if !ex.check {
		if err := in.store.WriteCoordData(slot, offset); err != nil {
			return protocol.StatusSettingReadFail
		}
	}
	if slot == ex.m.CoordSystem {
		ex.m.CoordOffset = offset
		in.sys.RequestReport(core.ReportWCO)
	}
	return protocol.StatusOK
}

// target resolves the axis words to a machine position
func (ex *execution) target(machine bool) core.Vector {
	values := ex.axisValues()
	wco := ex.m.WCO()
	tgt := ex.position
	for axis := range tgt {
		if !ex.c.axisMask.Has(axis) {
			continue
		}
		v := values[axis] * ex.scale[axis]
		if ex.m.DiameterMode && axis == core.AxisX {
			v /= 2
		}
		switch {
		case machine:
			tgt[axis] = v
		case ex.m.Incremental:
			tgt[axis] = ex.position[axis] + v
		default:
			tgt[axis] = v + wco[axis]
		}
	}
	return tgt
}

func (ex *execution) runMotion(ctx context.Context) protocol.StatusCode {
	mode := ex.m.Motion
	tgt := ex.target(ex.c.nonModal == nonModalAbsolute)

	switch {
	case mode == core.MotionSeek:
		return ex.queue(ctx, tgt, true, core.MotionNone, 0)
	case mode == core.MotionLinear:
		return ex.queue(ctx, tgt, false, core.MotionNone, ex.feedFor(distance(ex.position, tgt)))
	case mode == core.MotionCWArc || mode == core.MotionCCWArc:
		return ex.arc(ctx, tgt, mode == core.MotionCWArc)
	case mode.IsProbe():
		return ex.probe(ctx, tgt)
	}
	return protocol.StatusOK
}

// feedFor returns the feed rate for a move of length dist. In inverse time
// mode F is the reciprocal of the move time in minutes.
func (ex *execution) feedFor(dist float64) float64 {
	if ex.m.InverseTime {
		return dist * ex.c.value('F')
	}
	return ex.m.FeedRate
}

func (ex *execution) queue(ctx context.Context, tgt core.Vector, rapid bool, probe core.MotionMode, feed float64) protocol.StatusCode {
	if !ex.check {
		b := planner.Block{
			Target: tgt,
			Feed:   feed,
			Rapid:  rapid,
			Probe:  probe,
			Line:   int32(ex.c.value('N')),
		}
		if err := ex.in.motion.Queue(ctx, b); err != nil {
			return motionStatus(err)
		}
	}
	ex.position = tgt
	return protocol.StatusOK
}

func (ex *execution) probe(ctx context.Context, tgt core.Vector) protocol.StatusCode {
	if ex.check {
		return protocol.StatusOK
	}
	if status := ex.queue(ctx, tgt, false, ex.m.Motion, ex.feedFor(distance(ex.position, tgt))); status != protocol.StatusOK {
		return status
	}
	if err := ex.in.motion.Sync(ctx); err != nil {
		return motionStatus(err)
	}
	ex.position = ex.in.motion.Position()
	return protocol.StatusOK
}

func (ex *execution) programFlow(ctx context.Context) protocol.StatusCode {
	m := &ex.m
	m.ProgramFlow = ex.c.stop
	if ex.check {
		return protocol.StatusOK
	}
	if err := ex.in.motion.Sync(ctx); err != nil {
		return motionStatus(err)
	}

	switch m.ProgramFlow {
	case core.ProgramPaused:
		ex.in.sys.SetHold(core.HoldComplete)
	case core.ProgramCompletedM2, core.ProgramCompletedM30:
		offset, err := ex.in.store.ReadCoordData(settings.CoordG54)
		if err != nil {
			return protocol.StatusSettingReadFail
		}
		m.Motion = core.MotionLinear
		m.Plane = core.PlaneXY
		m.Incremental = false
		m.InverseTime = false
		m.CoordSystem, m.CoordOffset = settings.CoordG54, offset
		m.Spindle = core.SpindleState{}
		m.Coolant = core.CoolantState{}
		m.OverrideDisable = 0
		ex.scale, m.ScaledAxes, m.ScalingActive = identityScale(), 0, false
		ex.in.sys.SetSpindleRPM(0)
	}
	return protocol.StatusOK
}

func motionStatus(err error) protocol.StatusCode {
	switch {
	case errors.Is(err, kinematics.ErrTravelExceeded):
		return protocol.StatusTravelExceeded
	case errors.Is(err, planner.ErrCleared), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return protocol.StatusReset
	}
	return protocol.StatusIdleError
}

// SyncPosition reloads the position from the motion layer after homing or
// a jog cancel
func (in *Interpreter) SyncPosition() {
	pos := in.motion.Position()
	in.mu.Lock()
	in.position = pos
	in.mu.Unlock()
}

// Jog runs a $J= line. Only G20/G21, G90/G91, G53 and the X Y Z F N words
// are allowed, F is required, and the modal state is left untouched.
func (in *Interpreter) Jog(ctx context.Context, line string) protocol.StatusCode {
	blk, status := Parse(line)
	if status != protocol.StatusOK {
		return status
	}
	c, status := collect(blk.Words, in.caps)
	if status != protocol.StatusOK {
		return status
	}

	for g, seen := range c.seen {
		if seen && g != groupUnits && g != groupDistance && g != groupNonModal {
			return protocol.StatusInvalidJogCommand
		}
	}
	if c.seen[groupNonModal] && c.nonModal != nonModalAbsolute {
		return protocol.StatusInvalidJogCommand
	}
	for _, l := range []byte("IJKLPRST") {
		if c.hasWord(l) {
			return protocol.StatusInvalidJogCommand
		}
	}
	if !c.hasWord('F') || c.axisMask == 0 {
		return protocol.StatusInvalidJogCommand
	}

	in.mu.Lock()
	ex := execution{in: in, c: &c, m: in.modal, scale: identityScale(), position: in.position}
	in.mu.Unlock()

	if c.seen[groupUnits] {
		ex.m.Inches = c.inches
	}
	if c.seen[groupDistance] {
		ex.m.Incremental = c.incremental
	}
	ex.m.DiameterMode = false
	tgt := ex.target(c.nonModal == nonModalAbsolute)

	started := in.sys.State() == core.StateIdle
	if started {
		in.sys.SetState(core.StateJog)
	}
	b := planner.Block{Target: tgt, Feed: ex.units(c.value('F')), Probe: core.MotionNone, Line: int32(c.value('N'))}
	if err := in.motion.Queue(ctx, b); err != nil {
		if started {
			in.sys.SetState(core.StateIdle)
		}
		return motionStatus(err)
	}

	in.mu.Lock()
	in.position = tgt
	in.mu.Unlock()
	return protocol.StatusOK
}
