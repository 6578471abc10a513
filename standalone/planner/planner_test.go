package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
	"gorbl/standalone/kinematics"
)

func newPlanner(t *testing.T, size int) (*Planner, *settings.Store) {
	t.Helper()
	s := settings.NewStore(settings.NewMemoryBackend(), core.Capabilities{})
	_, err := s.Load()
	require.NoError(t, err)
	return New(size, kinematics.NewCartesian(s), s), s
}

func TestQueueFillsDerivedFields(t *testing.T) {
	p, _ := newPlanner(t, 4)
	require.NoError(t, p.Queue(context.Background(), Block{Target: core.Vector{100, 0, 0}, Feed: 300, Line: 7}))

	b, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, core.StepVector{25000, 0, 0}, b.Steps)
	assert.InDelta(t, 100, b.Distance, 1e-9)
	assert.InDelta(t, 300, b.Rate, 1e-9)
	assert.Greater(t, b.CruiseTime, time.Duration(0))
	assert.Equal(t, 2*b.AccelTime+b.CruiseTime, b.Duration)

	line, ok := p.CurrentLine()
	assert.True(t, ok)
	assert.Equal(t, int32(7), line)
	assert.Equal(t, core.Vector{100, 0, 0}, p.Position())
}

func TestRapidClampedToAxisMaxRate(t *testing.T) {
	p, s := newPlanner(t, 4)
	require.Equal(t, protocol.StatusOK, s.Set(settings.AxisID(settings.AxisMaxRate, core.AxisY), "100"))

	require.NoError(t, p.Queue(context.Background(), Block{Target: core.Vector{0, 50, 0}, Rapid: true}))
	b, _ := p.Current()
	assert.InDelta(t, 100, b.Rate, 1e-9)
}

func TestShortMoveUsesTriangleProfile(t *testing.T) {
	p, _ := newPlanner(t, 4)
	require.NoError(t, p.Queue(context.Background(), Block{Target: core.Vector{0.01, 0, 0}, Feed: 500}))
	b, _ := p.Current()
	assert.Less(t, b.Rate, 500.0)
	assert.Zero(t, b.CruiseTime)
}

func TestZeroLengthDropped(t *testing.T) {
	p, _ := newPlanner(t, 4)
	require.NoError(t, p.Queue(context.Background(), Block{Feed: 100}))
	assert.True(t, p.IsEmpty())
	_, ok := p.CurrentLine()
	assert.False(t, ok)
}

func TestAvailableKeepsOneSlotFree(t *testing.T) {
	p, _ := newPlanner(t, 3)
	assert.Equal(t, 2, p.Available())

	ctx := context.Background()
	require.NoError(t, p.Queue(ctx, Block{Target: core.Vector{1, 0, 0}, Feed: 100}))
	require.NoError(t, p.Queue(ctx, Block{Target: core.Vector{2, 0, 0}, Feed: 100}))
	assert.Zero(t, p.Available())

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Queue(short, Block{Target: core.Vector{3, 0, 0}, Feed: 100}), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- p.Queue(ctx, Block{Target: core.Vector{3, 0, 0}, Feed: 100}) }()
	p.Discard()
	require.NoError(t, <-done)

	b, _ := p.Current()
	assert.Equal(t, core.Vector{2, 0, 0}, b.Target)
}

func TestClearWakesBlockedQueue(t *testing.T) {
	p, _ := newPlanner(t, 2)
	ctx := context.Background()
	require.NoError(t, p.Queue(ctx, Block{Target: core.Vector{1, 0, 0}, Feed: 100}))

	done := make(chan error, 1)
	go func() { done <- p.Queue(ctx, Block{Target: core.Vector{2, 0, 0}, Feed: 100}) }()
	time.Sleep(20 * time.Millisecond)
	p.Clear()
	assert.ErrorIs(t, <-done, ErrCleared)
	assert.True(t, p.IsEmpty())
}

func TestSoftLimitRejectsTarget(t *testing.T) {
	p, s := newPlanner(t, 4)
	require.Equal(t, protocol.StatusOK, s.Set(settings.SoftLimitsEnable, "1"))
	err := p.Queue(context.Background(), Block{Target: core.Vector{5, 0, 0}, Feed: 100})
	assert.ErrorIs(t, err, kinematics.ErrTravelExceeded)
	assert.True(t, p.IsEmpty())
}
