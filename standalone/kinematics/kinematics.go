// Package kinematics converts between machine coordinates and motor steps.
package kinematics

import (
	"errors"

	"gorbl/core"
)

// ErrTravelExceeded is returned when a target lies outside the soft limits
var ErrTravelExceeded = errors.New("target exceeds machine travel")

// Kinematics defines the coordinate transformations used by the planner,
// the step generator and the status reporter
type Kinematics interface {
	// MPosToSteps converts machine coordinates (mm) to motor steps
	MPosToSteps(pos core.Vector) core.StepVector

	// StepsToMPos converts motor steps to machine coordinates (mm)
	StepsToMPos(steps core.StepVector) core.Vector

	// CheckLimits validates a machine position against the soft limits
	CheckLimits(pos core.Vector) error
}
