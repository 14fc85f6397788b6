package trajectories

import (
	"math"

	"gonum.org/v1/gonum/num/dual"

	"github.com/guochaodlnu/kontiki/internal/entity"
	"github.com/guochaodlnu/kontiki/internal/num"
)

// LinearTrajectory is the simplest trajectory: position grows linearly from
// the time origin and the defining constant doubles as velocity and angular
// velocity. Its single parameter block is the constant. Mostly useful for
// tests and as the minimal Model reference.
type LinearTrajectory struct {
	t0       float64
	constant []float64 // len 3, live parameter block

	// supported span; defaults to (-inf, +inf)
	minTime, maxTime float64

	locked bool
}

// NewLinearTrajectory returns a linear trajectory with the given time origin
// and defining constant, supported on all of time.
func NewLinearTrajectory(t0 float64, constant [3]float64) *LinearTrajectory {
	return &LinearTrajectory{
		t0:       t0,
		constant: []float64{constant[0], constant[1], constant[2]},
		minTime:  math.Inf(-1),
		maxTime:  math.Inf(1),
	}
}

// T0 returns the time origin.
func (m *LinearTrajectory) T0() float64 { return m.t0 }

// Constant returns the current defining constant.
func (m *LinearTrajectory) Constant() [3]float64 {
	return [3]float64{m.constant[0], m.constant[1], m.constant[2]}
}

// SetConstant replaces the defining constant.
func (m *LinearTrajectory) SetConstant(c [3]float64) {
	copy(m.constant, c[:])
}

// SetSpan restricts the supported time span to [min, max].
func (m *LinearTrajectory) SetSpan(min, max float64) {
	m.minTime, m.maxTime = min, max
}

// Lock marks the constant as not optimizable; the solver will hold it fixed.
func (m *LinearTrajectory) Lock() { m.locked = true }

func (m *LinearTrajectory) MinTime() float64 { return m.minTime }
func (m *LinearTrajectory) MaxTime() float64 { return m.maxTime }

// RequestParameters reports the single constant block for any supported
// window.
func (m *LinearTrajectory) RequestParameters(window entity.Window) (entity.Meta, []entity.ParameterInfo, error) {
	if window.From < m.minTime || window.To > m.maxTime || window.From > window.To {
		return nil, nil, &entity.RangeError{Time: window.From, Min: m.minTime, Max: m.maxTime}
	}
	meta := &entity.Layout{}
	meta.Append(3)
	info := entity.ParameterInfo{Data: m.constant, Size: 3, Constant: m.locked}
	return meta, []entity.ParameterInfo{info}, nil
}

func (m *LinearTrajectory) MapReal(params [][]float64, meta entity.Meta) (Trajectory[float64], error) {
	return mapLinear[float64](m, params, meta)
}

func (m *LinearTrajectory) MapDual(params [][]dual.Number, meta entity.Meta) (Trajectory[dual.Number], error) {
	return mapLinear[dual.Number](m, params, meta)
}

func mapLinear[T num.Scalar](m *LinearTrajectory, params [][]T, meta entity.Meta) (*linearView[T], error) {
	own, _, err := entity.Split[T](meta, params)
	if err != nil {
		return nil, err
	}
	if len(own) != 1 || len(own[0]) != 3 {
		return nil, &entity.SizeMismatchError{What: "linear trajectory blocks", Want: 1, Got: len(own)}
	}
	return &linearView[T]{
		t0:       m.t0,
		minTime:  m.minTime,
		maxTime:  m.maxTime,
		constant: num.Vec3[T]{own[0][0], own[0][1], own[0][2]},
	}, nil
}

type linearView[T num.Scalar] struct {
	t0               float64
	minTime, maxTime float64
	constant         num.Vec3[T]
}

func (v *linearView[T]) check(t float64) error {
	if t < v.minTime || t > v.maxTime {
		return &entity.RangeError{Time: t, Min: v.minTime, Max: v.maxTime}
	}
	return nil
}

func (v *linearView[T]) Position(t float64) (num.Vec3[T], error) {
	if err := v.check(t); err != nil {
		return num.Vec3[T]{}, err
	}
	return num.ScaleVecFloat(t-v.t0, v.constant), nil
}

func (v *linearView[T]) Velocity(t float64) (num.Vec3[T], error) {
	if err := v.check(t); err != nil {
		return num.Vec3[T]{}, err
	}
	return v.constant, nil
}

func (v *linearView[T]) AngularVelocity(t float64) (num.Vec3[T], error) {
	if err := v.check(t); err != nil {
		return num.Vec3[T]{}, err
	}
	return v.constant, nil
}
