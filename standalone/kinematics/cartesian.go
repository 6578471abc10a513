package kinematics

import (
	"math"

	"gorbl/core"
	"gorbl/settings"
)

// Cartesian maps each axis to one motor. Steps/mm and travel are read from
// the settings store on every call so $ changes apply immediately.
type Cartesian struct {
	store *settings.Store
}

// NewCartesian creates Cartesian kinematics backed by store
func NewCartesian(store *settings.Store) *Cartesian {
	return &Cartesian{store: store}
}

func (k *Cartesian) MPosToSteps(pos core.Vector) core.StepVector {
	spm := k.store.StepsPerMM()
	var steps core.StepVector
	for i := range steps {
		steps[i] = int32(math.Round(pos[i] * spm[i]))
	}
	return steps
}

func (k *Cartesian) StepsToMPos(steps core.StepVector) core.Vector {
	spm := k.store.StepsPerMM()
	var pos core.Vector
	for i := range pos {
		if spm[i] != 0 {
			pos[i] = float64(steps[i]) / spm[i]
		}
	}
	return pos
}

// CheckLimits applies when soft limits ($20) are enabled. Machine space
// runs from the stored (negative) max travel up to zero.
func (k *Cartesian) CheckLimits(pos core.Vector) error {
	if k.store.Value(settings.SoftLimitsEnable) == 0 {
		return nil
	}
	travel := k.store.AxisValues(settings.AxisMaxTravel)
	for i := range pos {
		if pos[i] > 0 || pos[i] < travel[i] {
			return ErrTravelExceeded
		}
	}
	return nil
}
