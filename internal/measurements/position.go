package measurements

import (
	"fmt"

	"gonum.org/v1/gonum/num/dual"

	"github.com/guochaodlnu/kontiki/internal/entity"
	"github.com/guochaodlnu/kontiki/internal/estimator"
	"github.com/guochaodlnu/kontiki/internal/num"
	"github.com/guochaodlnu/kontiki/internal/solver"
	"github.com/guochaodlnu/kontiki/internal/trajectories"
)

// PositionMeasurement is a direct observation of the trajectory position at
// one time. It involves no sensor entity, so only trajectory parameter
// blocks contribute to its residual.
type PositionMeasurement struct {
	t      float64
	p      [3]float64
	weight float64
}

// NewPositionMeasurement returns a unit-weight position measurement.
func NewPositionMeasurement(t float64, p [3]float64) *PositionMeasurement {
	m, _ := NewWeightedPositionMeasurement(t, p, 1)
	return m
}

// NewWeightedPositionMeasurement returns a position measurement with an
// explicit, strictly positive weight.
func NewWeightedPositionMeasurement(t float64, p [3]float64, weight float64) (*PositionMeasurement, error) {
	if weight <= 0 {
		return nil, fmt.Errorf("measurement weight must be strictly positive, got %g", weight)
	}
	return &PositionMeasurement{t: t, p: p, weight: weight}, nil
}

// Time returns the measurement time.
func (m *PositionMeasurement) Time() float64 { return m.t }

// Observed returns the observed position.
func (m *PositionMeasurement) Observed() [3]float64 { return m.p }

// Weight returns the measurement weight.
func (m *PositionMeasurement) Weight() float64 { return m.weight }

// PositionError returns observed minus the trajectory position, unweighted.
func PositionError[T num.Scalar](m *PositionMeasurement, traj trajectories.Trajectory[T]) (num.Vec3[T], error) {
	pred, err := traj.Position(m.t)
	if err != nil {
		return num.Vec3[T]{}, err
	}
	obs := num.Vec3FromFloats[T](m.p[0], m.p[1], m.p[2])
	return num.SubVec(obs, pred), nil
}

// Register binds the measurement into the estimator. Called by
// Estimator.AddMeasurement.
func (m *PositionMeasurement) Register(e *estimator.Estimator) error {
	window := entity.Window{From: m.t, To: m.t}
	trajMeta, trajInfos, err := e.Trajectory().RequestParameters(window)
	if err != nil {
		return err
	}
	r := &positionResidual{
		m:        m,
		traj:     e.Trajectory(),
		trajMeta: trajMeta,
		sizes:    blockSizes(trajInfos),
	}
	var loss solver.LossFunction
	if m.weight != 1 {
		loss = solver.ScaledLoss{Factor: m.weight}
	}
	return e.BindResidual(r, loss, trajInfos)
}

type positionResidual struct {
	m        *PositionMeasurement
	traj     trajectories.Model
	trajMeta entity.Meta
	sizes    []int
}

func (r *positionResidual) NumResiduals() int { return 3 }
func (r *positionResidual) BlockSizes() []int { return r.sizes }

func (r *positionResidual) Evaluate(params [][]float64, residuals []float64) bool {
	return evalPosition[float64](r, params, residuals)
}

func (r *positionResidual) EvaluateDual(params [][]dual.Number, residuals []dual.Number) bool {
	return evalPosition[dual.Number](r, params, residuals)
}

func evalPosition[T num.Scalar](r *positionResidual, params [][]T, out []T) bool {
	trajBlocks, _, err := entity.Split[T](r.trajMeta, params)
	if err != nil {
		return false
	}
	trajView, err := trajectories.Map[T](r.traj, trajBlocks, r.trajMeta)
	if err != nil {
		return false
	}
	e, err := PositionError(r.m, trajView)
	if err != nil {
		return false
	}
	out[0], out[1], out[2] = e[0], e[1], e[2]
	return true
}
