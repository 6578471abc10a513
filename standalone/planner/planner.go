// Package planner queues linear motion blocks for the step generator.
package planner

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"gorbl/core"
	"gorbl/settings"
	"gorbl/standalone/kinematics"
)

// ErrCleared is returned by Queue when the buffer is cleared while waiting
var ErrCleared = errors.New("planner cleared")

// Block is one straight-line move in machine coordinates
type Block struct {
	Target core.Vector // mm
	Feed   float64     // mm/min, ignored for rapids
	Rapid  bool
	Probe  core.MotionMode // MotionNone unless this is a G38.x move
	Line   int32

	// Filled in by the planner
	Steps      core.StepVector
	Distance   float64 // mm
	Rate       float64 // mm/min, after axis clamping
	Accel      float64 // mm/min²
	AccelTime  time.Duration
	CruiseTime time.Duration
	Duration   time.Duration
}

// Planner is a fixed-size ring of blocks. One slot is kept free, so a
// buffer of n blocks holds at most n-1.
type Planner struct {
	kin   kinematics.Kinematics
	store *settings.Store

	mu       sync.Mutex
	blocks   []Block
	head     int
	count    int
	position core.Vector // end of the last queued block
	freed    chan struct{}
	cleared  chan struct{}
}

// New creates a planner with size blocks
func New(size int, kin kinematics.Kinematics, store *settings.Store) *Planner {
	if size < 2 {
		size = 2
	}
	return &Planner{
		kin:     kin,
		store:   store,
		blocks:  make([]Block, size),
		freed:   make(chan struct{}),
		cleared: make(chan struct{}),
	}
}

func (p *Planner) capacity() int {
	return len(p.blocks) - 1
}

// Queue plans b from the current planned position and appends it, waiting
// for a free slot. Zero-length moves are dropped.
func (p *Planner) Queue(ctx context.Context, b Block) error {
	if err := p.kin.CheckLimits(b.Target); err != nil {
		return err
	}
	for {
		p.mu.Lock()
		if p.count < p.capacity() {
			if !p.plan(&b) {
				p.mu.Unlock()
				return nil
			}
			p.blocks[(p.head+p.count)%len(p.blocks)] = b
			p.count++
			p.position = b.Target
			p.mu.Unlock()
			return nil
		}
		freed, cleared := p.freed, p.cleared
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cleared:
			return ErrCleared
		case <-freed:
		}
	}
}

// plan fills in the derived fields of b. Called with mu held.
func (p *Planner) plan(b *Block) bool {
	delta := b.Target.Sub(p.position)
	var dist float64
	for _, d := range delta {
		dist += d * d
	}
	dist = math.Sqrt(dist)
	if dist == 0 {
		return false
	}

	b.Steps = p.kin.MPosToSteps(b.Target)
	b.Distance = dist
	p.calculateTrapezoid(b, delta)
	return true
}

// calculateTrapezoid limits the rate and acceleration to what every axis
// allows and works out a symmetric trapezoid (or triangle) profile.
func (p *Planner) calculateTrapezoid(b *Block, delta core.Vector) {
	maxRate := p.store.AxisValues(settings.AxisMaxRate)
	maxAccel := p.store.AxisValues(settings.AxisAcceleration)

	rate := b.Feed
	if b.Rapid || rate <= 0 {
		rate = math.Inf(1)
	}
	accel := math.Inf(1)
	for i, d := range delta {
		d = math.Abs(d)
		if d == 0 {
			continue
		}
		rate = math.Min(rate, maxRate[i]*b.Distance/d)
		accel = math.Min(accel, maxAccel[i]*b.Distance/d)
	}
	b.Rate = rate
	b.Accel = accel

	accelDist := rate * rate / (2 * accel)
	var accelMin, cruiseMin float64
	if 2*accelDist >= b.Distance {
		b.Rate = math.Sqrt(accel * b.Distance)
		accelMin = b.Rate / accel
	} else {
		accelMin = rate / accel
		cruiseMin = (b.Distance - 2*accelDist) / rate
	}
	b.AccelTime = minutes(accelMin)
	b.CruiseTime = minutes(cruiseMin)
	b.Duration = 2*b.AccelTime + b.CruiseTime
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// Current returns the executing block
func (p *Planner) Current() (Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		return Block{}, false
	}
	return p.blocks[p.head], true
}

// Discard drops the executing block once the steppers have finished it
func (p *Planner) Discard() {
	p.mu.Lock()
	if p.count > 0 {
		p.head = (p.head + 1) % len(p.blocks)
		p.count--
		close(p.freed)
		p.freed = make(chan struct{})
	}
	p.mu.Unlock()
}

// Clear empties the buffer and wakes any blocked Queue with ErrCleared
func (p *Planner) Clear() {
	p.mu.Lock()
	p.head, p.count = 0, 0
	close(p.cleared)
	p.cleared = make(chan struct{})
	p.mu.Unlock()
}

// Available returns the number of free blocks
func (p *Planner) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity() - p.count
}

// IsEmpty reports whether nothing is queued or executing
func (p *Planner) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count == 0
}

// CurrentLine returns the line number of the executing block
func (p *Planner) CurrentLine() (int32, bool) {
	b, ok := p.Current()
	if !ok || b.Line <= 0 {
		return 0, false
	}
	return b.Line, true
}

// Position returns the planned position, the end of the last queued move
func (p *Planner) Position() core.Vector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// SetPosition resynchronises the planned position after a reset or probe
func (p *Planner) SetPosition(pos core.Vector) {
	p.mu.Lock()
	p.position = pos
	p.mu.Unlock()
}
