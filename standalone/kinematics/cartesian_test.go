package kinematics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
)

func newStore(t *testing.T) *settings.Store {
	t.Helper()
	s := settings.NewStore(settings.NewMemoryBackend(), core.Capabilities{})
	_, err := s.Load()
	require.NoError(t, err)
	return s
}

func TestCartesianRoundTrip(t *testing.T) {
	s := newStore(t)
	require.Equal(t, protocol.StatusOK, s.Set(settings.AxisID(settings.AxisStepsPerMM, core.AxisZ), "400"))
	k := NewCartesian(s)

	steps := k.MPosToSteps(core.Vector{10, -2.5, 1})
	assert.Equal(t, core.StepVector{2500, -625, 400}, steps)
	assert.Equal(t, core.Vector{10, -2.5, 1}, k.StepsToMPos(steps))
}

func TestCartesianSoftLimits(t *testing.T) {
	s := newStore(t)
	k := NewCartesian(s)

	assert.NoError(t, k.CheckLimits(core.Vector{10, 0, 0}), "soft limits disabled")

	require.Equal(t, protocol.StatusOK, s.Set(settings.SoftLimitsEnable, "1"))
	assert.NoError(t, k.CheckLimits(core.Vector{-10, -200, 0}))
	assert.ErrorIs(t, k.CheckLimits(core.Vector{10, 0, 0}), ErrTravelExceeded)
	assert.ErrorIs(t, k.CheckLimits(core.Vector{0, -200.5, 0}), ErrTravelExceeded)
}
