// Package measurements defines time-stamped sensor observations and binds
// them into the estimator: each measurement can predict its value from
// mapped entity views at either scalar type, and registers exactly one
// residual block per measurement.
package measurements

import (
	"fmt"

	"gonum.org/v1/gonum/num/dual"

	"github.com/guochaodlnu/kontiki/internal/entity"
	"github.com/guochaodlnu/kontiki/internal/estimator"
	"github.com/guochaodlnu/kontiki/internal/num"
	"github.com/guochaodlnu/kontiki/internal/sensors"
	"github.com/guochaodlnu/kontiki/internal/solver"
	"github.com/guochaodlnu/kontiki/internal/trajectories"
)

// GyroscopeMeasurement is one time-stamped angular velocity observation from
// an IMU. The sensor model is shared with every other measurement of the
// same sensor; the measurement itself is immutable after construction.
type GyroscopeMeasurement struct {
	imu    sensors.Model
	t      float64
	w      [3]float64 // observed angular velocity (rad/s)
	weight float64
}

// NewGyroscopeMeasurement returns a unit-weight gyroscope measurement.
func NewGyroscopeMeasurement(imu sensors.Model, t float64, w [3]float64) *GyroscopeMeasurement {
	m, _ := NewWeightedGyroscopeMeasurement(imu, t, w, 1)
	return m
}

// NewWeightedGyroscopeMeasurement returns a gyroscope measurement with an
// explicit weight. The weight must be strictly positive.
func NewWeightedGyroscopeMeasurement(imu sensors.Model, t float64, w [3]float64, weight float64) (*GyroscopeMeasurement, error) {
	if weight <= 0 {
		return nil, fmt.Errorf("measurement weight must be strictly positive, got %g", weight)
	}
	return &GyroscopeMeasurement{imu: imu, t: t, w: w, weight: weight}, nil
}

// Imu returns the sensor model this measurement observes through.
func (m *GyroscopeMeasurement) Imu() sensors.Model { return m.imu }

// Time returns the measurement time.
func (m *GyroscopeMeasurement) Time() float64 { return m.t }

// Observed returns the observed angular velocity.
func (m *GyroscopeMeasurement) Observed() [3]float64 { return m.w }

// Weight returns the measurement weight.
func (m *GyroscopeMeasurement) Weight() float64 { return m.weight }

// MeasureGyroscope predicts the gyroscope reading at the measurement time
// from mapped views of the sensor and trajectory. A RangeError from either
// entity propagates unchanged.
func MeasureGyroscope[T num.Scalar](m *GyroscopeMeasurement, imu sensors.Imu[T], traj trajectories.Trajectory[T]) (num.Vec3[T], error) {
	return imu.Gyroscope(traj, m.t)
}

// GyroscopeError returns observed minus predicted. The weight is not
// applied here; the estimator attaches it to the residual block as a scaled
// loss at registration.
func GyroscopeError[T num.Scalar](m *GyroscopeMeasurement, imu sensors.Imu[T], traj trajectories.Trajectory[T]) (num.Vec3[T], error) {
	pred, err := MeasureGyroscope(m, imu, traj)
	if err != nil {
		return num.Vec3[T]{}, err
	}
	obs := num.Vec3FromFloats[T](m.w[0], m.w[1], m.w[2])
	return num.SubVec(obs, pred), nil
}

// Register binds the measurement into the estimator: trajectory parameters
// are requested first, then the sensor's, and only after both succeed is a
// residual block committed. Called by Estimator.AddMeasurement.
func (m *GyroscopeMeasurement) Register(e *estimator.Estimator) error {
	window := entity.Window{From: m.t, To: m.t}

	trajMeta, trajInfos, err := e.Trajectory().RequestParameters(window)
	if err != nil {
		return err
	}
	imuMeta, imuInfos, err := m.imu.RequestParameters(window)
	if err != nil {
		return err
	}

	infos := append(append([]entity.ParameterInfo(nil), trajInfos...), imuInfos...)
	r := &gyroResidual{
		m:        m,
		traj:     e.Trajectory(),
		trajMeta: trajMeta,
		imuMeta:  imuMeta,
		sizes:    blockSizes(infos),
	}
	var loss solver.LossFunction
	if m.weight != 1 {
		loss = solver.ScaledLoss{Factor: m.weight}
	}
	return e.BindResidual(r, loss, infos)
}

func blockSizes(infos []entity.ParameterInfo) []int {
	sizes := make([]int, len(infos))
	for i, pi := range infos {
		sizes[i] = pi.Size
	}
	return sizes
}

// gyroResidual is the per-measurement residual functor. It owns the metas
// recorded at registration and rebuilds mapped views from whatever raw
// buffers the solver supplies, at either scalar type.
type gyroResidual struct {
	m        *GyroscopeMeasurement
	traj     trajectories.Model
	trajMeta entity.Meta
	imuMeta  entity.Meta
	sizes    []int
}

func (r *gyroResidual) NumResiduals() int { return 3 }
func (r *gyroResidual) BlockSizes() []int { return r.sizes }

func (r *gyroResidual) Evaluate(params [][]float64, residuals []float64) bool {
	return evalGyro[float64](r, params, residuals)
}

func (r *gyroResidual) EvaluateDual(params [][]dual.Number, residuals []dual.Number) bool {
	return evalGyro[dual.Number](r, params, residuals)
}

func evalGyro[T num.Scalar](r *gyroResidual, params [][]T, out []T) bool {
	trajBlocks, rest, err := entity.Split[T](r.trajMeta, params)
	if err != nil {
		return false
	}
	trajView, err := trajectories.Map[T](r.traj, trajBlocks, r.trajMeta)
	if err != nil {
		return false
	}
	imuView, err := sensors.Map[T](r.m.imu, rest, r.imuMeta)
	if err != nil {
		return false
	}
	e, err := GyroscopeError(r.m, imuView, trajView)
	if err != nil {
		return false
	}
	out[0], out[1], out[2] = e[0], e[1], e[2]
	return true
}
