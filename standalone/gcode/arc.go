package gcode

import (
	"context"
	"math"

	"gorbl/core"
	"gorbl/protocol"
	"gorbl/settings"
)

// arcEpsilon is the angular travel below which a full circle is assumed
const arcEpsilon = 5e-7

func distance(a, b core.Vector) float64 {
	var sum float64
	for i := range a {
		d := b[i] - a[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// planeAxes returns the two arc axes and the linear axis of p
func planeAxes(p core.Plane) (a0, a1, linear int) {
	switch p {
	case core.PlaneZX:
		return core.AxisZ, core.AxisX, core.AxisY
	case core.PlaneYZ:
		return core.AxisY, core.AxisZ, core.AxisX
	}
	return core.AxisX, core.AxisY, core.AxisZ
}

// arcOffsetLetters maps axes to their center offset words
var arcOffsetLetters = [core.NumAxes]byte{'I', 'J', 'K'}

// arc queues G2/G3 as chords within the $12 arc tolerance
func (ex *execution) arc(ctx context.Context, tgt core.Vector, clockwise bool) protocol.StatusCode {
	a0, a1, linear := planeAxes(ex.m.Plane)
	pos := ex.position
	c := ex.c

	var offset core.Vector
	var radius float64
	if c.hasWord('R') {
		radius = ex.units(c.value('R'))
		x, y := tgt[a0]-pos[a0], tgt[a1]-pos[a1]
		if x == 0 && y == 0 {
			return protocol.StatusGcodeInvalidTarget
		}
		h2 := 4*radius*radius - x*x - y*y
		if h2 < 0 {
			return protocol.StatusGcodeArcRadiusError
		}
		h := -math.Sqrt(h2) / math.Hypot(x, y)
		if !clockwise {
			h = -h
		}
		if radius < 0 {
			h, radius = -h, -radius
		}
		offset[a0] = 0.5 * (x - y*h)
		offset[a1] = 0.5 * (y + x*h)
	} else {
		if !c.hasWord(arcOffsetLetters[a0]) && !c.hasWord(arcOffsetLetters[a1]) {
			return protocol.StatusGcodeNoOffsetsInPlane
		}
		for _, axis := range []int{a0, a1} {
			if l := arcOffsetLetters[axis]; c.hasWord(l) {
				offset[axis] = ex.units(c.value(l))
			}
		}
		radius = math.Hypot(offset[a0], offset[a1])
		end := math.Hypot(tgt[a0]-pos[a0]-offset[a0], tgt[a1]-pos[a1]-offset[a1])
		if diff := math.Abs(end - radius); diff > 0.005 && diff > 0.001*radius {
			return protocol.StatusGcodeInvalidTarget
		}
	}

	center0, center1 := pos[a0]+offset[a0], pos[a1]+offset[a1]
	r0, r1 := -offset[a0], -offset[a1]
	rt0, rt1 := tgt[a0]-center0, tgt[a1]-center1

	travel := math.Atan2(r0*rt1-r1*rt0, r0*rt0+r1*rt1)
	if clockwise {
		if travel >= -arcEpsilon {
			travel -= 2 * math.Pi
		}
	} else if travel <= arcEpsilon {
		travel += 2 * math.Pi
	}

	tolerance := ex.in.store.Value(settings.ArcTolerance)
	segments := 1
	if tolerance > 0 && radius > tolerance {
		segments = int(math.Floor(math.Abs(0.5*travel*radius) / math.Sqrt(tolerance*(2*radius-tolerance))))
	}

	linearTravel := tgt[linear] - pos[linear]
	length := math.Hypot(travel*radius, linearTravel)
	feed := ex.feedFor(length)

	for i := 1; i < segments; i++ {
		angle := travel * float64(i) / float64(segments)
		sin, cos := math.Sincos(angle)
		point := pos
		point[a0] = center0 + r0*cos - r1*sin
		point[a1] = center1 + r0*sin + r1*cos
		point[linear] = pos[linear] + linearTravel*float64(i)/float64(segments)
		if status := ex.queue(ctx, point, false, core.MotionNone, feed); status != protocol.StatusOK {
			return status
		}
	}
	return ex.queue(ctx, tgt, false, core.MotionNone, feed)
}
