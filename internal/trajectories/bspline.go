package trajectories

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/dual"

	"github.com/guochaodlnu/kontiki/internal/entity"
	"github.com/guochaodlnu/kontiki/internal/num"
)

// UniformBSplineTrajectory is a cubic B-spline in R3 with uniformly spaced
// knots. Each control point is one 3-element parameter block; a time window
// activates only the control points whose basis support overlaps it, so the
// optimizer touches a small, window-dependent slice of the spline state.
//
// With knot spacing dt and n control points, segment i covers
// [t0 + i*dt, t0 + (i+1)*dt) and blends control points i..i+3, giving a
// supported span of [t0, t0 + (n-3)*dt].
type UniformBSplineTrajectory struct {
	t0     float64
	dt     float64
	points [][]float64 // each len 3, live parameter blocks

	locked bool
}

// NewUniformBSplineTrajectory returns a cubic spline with the given time
// origin, knot spacing and control points. At least four control points are
// required; dt must be positive.
func NewUniformBSplineTrajectory(t0, dt float64, points [][3]float64) (*UniformBSplineTrajectory, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("knot spacing must be positive, got %g", dt)
	}
	if len(points) < 4 {
		return nil, fmt.Errorf("cubic spline needs at least 4 control points, got %d", len(points))
	}
	m := &UniformBSplineTrajectory{t0: t0, dt: dt}
	for _, p := range points {
		m.points = append(m.points, []float64{p[0], p[1], p[2]})
	}
	return m, nil
}

// NumKnots returns the control point count.
func (m *UniformBSplineTrajectory) NumKnots() int { return len(m.points) }

// ControlPoint returns control point i.
func (m *UniformBSplineTrajectory) ControlPoint(i int) [3]float64 {
	return [3]float64{m.points[i][0], m.points[i][1], m.points[i][2]}
}

// Lock marks all control points as not optimizable.
func (m *UniformBSplineTrajectory) Lock() { m.locked = true }

func (m *UniformBSplineTrajectory) MinTime() float64 { return m.t0 }
func (m *UniformBSplineTrajectory) MaxTime() float64 {
	return m.t0 + float64(len(m.points)-3)*m.dt
}

// segment returns the spline segment index active at t, clamped so the exact
// upper bound of the span evaluates on the final segment.
func (m *UniformBSplineTrajectory) segment(t float64) int {
	i := int(math.Floor((t - m.t0) / m.dt))
	if max := len(m.points) - 4; i > max {
		i = max
	}
	if i < 0 {
		i = 0
	}
	return i
}

// splineMeta extends the standard layout with the index of the first active
// control point, which the mapped view needs to translate an evaluation time
// into block positions.
type splineMeta struct {
	entity.Layout
	firstKnot int
}

// RequestParameters reports the contiguous run of control-point blocks whose
// basis support covers window, in knot-index order.
func (m *UniformBSplineTrajectory) RequestParameters(window entity.Window) (entity.Meta, []entity.ParameterInfo, error) {
	if window.From > window.To || window.From < m.MinTime() || window.To > m.MaxTime() {
		return nil, nil, &entity.RangeError{Time: window.From, Min: m.MinTime(), Max: m.MaxTime()}
	}
	first := m.segment(window.From)
	last := m.segment(window.To) + 3

	meta := &splineMeta{firstKnot: first}
	var infos []entity.ParameterInfo
	for i := first; i <= last; i++ {
		meta.Append(3)
		infos = append(infos, entity.ParameterInfo{Data: m.points[i], Size: 3, Constant: m.locked})
	}
	return meta, infos, nil
}

func (m *UniformBSplineTrajectory) MapReal(params [][]float64, meta entity.Meta) (Trajectory[float64], error) {
	return mapSpline[float64](m, params, meta)
}

func (m *UniformBSplineTrajectory) MapDual(params [][]dual.Number, meta entity.Meta) (Trajectory[dual.Number], error) {
	return mapSpline[dual.Number](m, params, meta)
}

func mapSpline[T num.Scalar](m *UniformBSplineTrajectory, params [][]T, meta entity.Meta) (*splineView[T], error) {
	sm, ok := meta.(*splineMeta)
	if !ok {
		return nil, &entity.SizeMismatchError{What: "spline meta type", Want: meta.NumParameters(), Got: 0}
	}
	own, _, err := entity.Split[T](sm, params)
	if err != nil {
		return nil, err
	}
	pts := make([]num.Vec3[T], len(own))
	for i, b := range own {
		pts[i] = num.Vec3[T]{b[0], b[1], b[2]}
	}
	return &splineView[T]{model: m, firstKnot: sm.firstKnot, points: pts}, nil
}

type splineView[T num.Scalar] struct {
	model     *UniformBSplineTrajectory
	firstKnot int
	points    []num.Vec3[T]
}

// blend evaluates the four active basis weights (or their time derivatives)
// and combines the mapped control points.
func (v *splineView[T]) blend(t float64, derivative bool) (num.Vec3[T], error) {
	m := v.model
	if t < m.MinTime() || t > m.MaxTime() {
		return num.Vec3[T]{}, &entity.RangeError{Time: t, Min: m.MinTime(), Max: m.MaxTime()}
	}
	seg := m.segment(t)
	local := seg - v.firstKnot
	if local < 0 || local+3 >= len(v.points) {
		// t is inside the model's span but outside the window this view
		// was mapped for.
		return num.Vec3[T]{}, &entity.RangeError{Time: t, Min: m.MinTime(), Max: m.MaxTime()}
	}
	u := (t - m.t0 - float64(seg)*m.dt) / m.dt

	var b [4]float64
	if derivative {
		// d/dt of the uniform cubic basis; the chain rule contributes 1/dt.
		b[0] = -(1 - u) * (1 - u) / 2 / m.dt
		b[1] = (9*u*u - 12*u) / 6 / m.dt
		b[2] = (-9*u*u + 6*u + 3) / 6 / m.dt
		b[3] = u * u / 2 / m.dt
	} else {
		b[0] = (1 - u) * (1 - u) * (1 - u) / 6
		b[1] = (3*u*u*u - 6*u*u + 4) / 6
		b[2] = (-3*u*u*u + 3*u*u + 3*u + 1) / 6
		b[3] = u * u * u / 6
	}

	out := num.Vec3FromFloats[T](0, 0, 0)
	for k := 0; k < 4; k++ {
		out = num.AddVec(out, num.ScaleVecFloat(b[k], v.points[local+k]))
	}
	return out, nil
}

func (v *splineView[T]) Position(t float64) (num.Vec3[T], error) {
	return v.blend(t, false)
}

func (v *splineView[T]) Velocity(t float64) (num.Vec3[T], error) {
	return v.blend(t, true)
}

// AngularVelocity is zero: an R3 spline carries no orientation.
func (v *splineView[T]) AngularVelocity(t float64) (num.Vec3[T], error) {
	if t < v.model.MinTime() || t > v.model.MaxTime() {
		return num.Vec3[T]{}, &entity.RangeError{Time: t, Min: v.model.MinTime(), Max: v.model.MaxTime()}
	}
	return num.Vec3FromFloats[T](0, 0, 0), nil
}
