package sensors

import (
	"gonum.org/v1/gonum/num/dual"

	"github.com/guochaodlnu/kontiki/internal/entity"
	"github.com/guochaodlnu/kontiki/internal/num"
	"github.com/guochaodlnu/kontiki/internal/trajectories"
)

// ConstantBiasImu is a gyroscope with a constant additive bias. The bias is
// one 3-element parameter block; locking it turns the model into a fixed
// calibration instead of an estimated one.
type ConstantBiasImu struct {
	bias   []float64 // len 3, live parameter block
	locked bool
}

// NewConstantBiasImu returns a biased gyroscope model with the given initial
// bias estimate.
func NewConstantBiasImu(bias [3]float64) *ConstantBiasImu {
	return &ConstantBiasImu{bias: []float64{bias[0], bias[1], bias[2]}}
}

// Bias returns the current bias estimate.
func (m *ConstantBiasImu) Bias() [3]float64 {
	return [3]float64{m.bias[0], m.bias[1], m.bias[2]}
}

// SetBias replaces the bias estimate.
func (m *ConstantBiasImu) SetBias(b [3]float64) {
	copy(m.bias, b[:])
}

// Lock marks the bias as not optimizable.
func (m *ConstantBiasImu) Lock() { m.locked = true }

// RequestParameters reports the single bias block. The bias is constant in
// time, so any well-formed window yields the same layout.
func (m *ConstantBiasImu) RequestParameters(window entity.Window) (entity.Meta, []entity.ParameterInfo, error) {
	if window.From > window.To {
		return nil, nil, &entity.RangeError{Time: window.From, Min: window.From, Max: window.To}
	}
	meta := &entity.Layout{}
	meta.Append(3)
	info := entity.ParameterInfo{Data: m.bias, Size: 3, Constant: m.locked}
	return meta, []entity.ParameterInfo{info}, nil
}

func (m *ConstantBiasImu) MapReal(params [][]float64, meta entity.Meta) (Imu[float64], error) {
	return mapBias[float64](params, meta)
}

func (m *ConstantBiasImu) MapDual(params [][]dual.Number, meta entity.Meta) (Imu[dual.Number], error) {
	return mapBias[dual.Number](params, meta)
}

func mapBias[T num.Scalar](params [][]T, meta entity.Meta) (*biasView[T], error) {
	own, _, err := entity.Split[T](meta, params)
	if err != nil {
		return nil, err
	}
	if len(own) != 1 || len(own[0]) != 3 {
		return nil, &entity.SizeMismatchError{What: "bias imu blocks", Want: 1, Got: len(own)}
	}
	return &biasView[T]{bias: num.Vec3[T]{own[0][0], own[0][1], own[0][2]}}, nil
}

type biasView[T num.Scalar] struct {
	bias num.Vec3[T]
}

func (v *biasView[T]) Gyroscope(traj trajectories.Trajectory[T], t float64) (num.Vec3[T], error) {
	w, err := traj.AngularVelocity(t)
	if err != nil {
		return num.Vec3[T]{}, err
	}
	return num.AddVec(w, v.bias), nil
}
