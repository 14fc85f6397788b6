// Package trajectories provides continuous-time trajectory representations:
// functions from time to kinematic quantities, parameterized by a finite set
// of control parameters exposed to the optimizer as parameter blocks.
package trajectories

import (
	"gonum.org/v1/gonum/num/dual"

	"github.com/guochaodlnu/kontiki/internal/entity"
	"github.com/guochaodlnu/kontiki/internal/num"
)

// Trajectory is an evaluable view of a trajectory model at scalar type T.
// Views are reconstructed per evaluation from solver-owned parameter buffers
// and hold no shared mutable state, so concurrent evaluation of distinct
// views is safe.
type Trajectory[T num.Scalar] interface {
	// Position is the trajectory position at time t.
	Position(t float64) (num.Vec3[T], error)
	// Velocity is the first time derivative of position at time t.
	Velocity(t float64) (num.Vec3[T], error)
	// AngularVelocity is the body angular velocity at time t.
	AngularVelocity(t float64) (num.Vec3[T], error)
}

// Model is a trajectory representation with live parameter blocks. Go
// interfaces cannot carry type-parameterized methods, so the generic
// evaluation capability is expressed as the MapReal/MapDual pair; concrete
// models implement both through one shared generic mapping routine and
// callers go through Map, so the two instantiations cannot diverge.
type Model interface {
	// RequestParameters reports the ordered parameter blocks needed to
	// evaluate the model anywhere inside window. For the same window on an
	// unmodified model it returns an identically ordered, identically
	// sized block list; the returned Meta records that layout for later
	// mapping. A window outside the model's supported span fails with a
	// RangeError and no other effect.
	RequestParameters(window entity.Window) (entity.Meta, []entity.ParameterInfo, error)

	// MapReal and MapDual reconstruct an evaluable view from raw
	// parameter blocks laid out per meta.
	MapReal(params [][]float64, meta entity.Meta) (Trajectory[float64], error)
	MapDual(params [][]dual.Number, meta entity.Meta) (Trajectory[dual.Number], error)

	// MinTime and MaxTime bound the supported time span.
	MinTime() float64
	MaxTime() float64
}

// Map reconstructs a view of m at scalar type T from raw parameter blocks
// laid out per meta.
func Map[T num.Scalar](m Model, params [][]T, meta entity.Meta) (Trajectory[T], error) {
	switch p := any(params).(type) {
	case [][]float64:
		v, err := m.MapReal(p, meta)
		if err != nil {
			return nil, err
		}
		return any(v).(Trajectory[T]), nil
	case [][]dual.Number:
		v, err := m.MapDual(p, meta)
		if err != nil {
			return nil, err
		}
		return any(v).(Trajectory[T]), nil
	}
	panic("trajectories: unsupported scalar type")
}
