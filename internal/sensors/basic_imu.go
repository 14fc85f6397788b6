package sensors

import (
	"gonum.org/v1/gonum/num/dual"

	"github.com/guochaodlnu/kontiki/internal/entity"
	"github.com/guochaodlnu/kontiki/internal/num"
	"github.com/guochaodlnu/kontiki/internal/trajectories"
)

// BasicImu is an ideal gyroscope: it reads back the trajectory's angular
// velocity unchanged and carries no calibration parameters, so its metas are
// empty.
type BasicImu struct{}

// NewBasicImu returns an ideal IMU model.
func NewBasicImu() *BasicImu { return &BasicImu{} }

// RequestParameters reports an empty block list: the model has no state.
func (m *BasicImu) RequestParameters(window entity.Window) (entity.Meta, []entity.ParameterInfo, error) {
	if window.From > window.To {
		return nil, nil, &entity.RangeError{Time: window.From, Min: window.From, Max: window.To}
	}
	return &entity.Layout{}, nil, nil
}

func (m *BasicImu) MapReal(params [][]float64, meta entity.Meta) (Imu[float64], error) {
	return mapBasic[float64](params, meta)
}

func (m *BasicImu) MapDual(params [][]dual.Number, meta entity.Meta) (Imu[dual.Number], error) {
	return mapBasic[dual.Number](params, meta)
}

func mapBasic[T num.Scalar](params [][]T, meta entity.Meta) (*basicView[T], error) {
	if _, _, err := entity.Split[T](meta, params); err != nil {
		return nil, err
	}
	return &basicView[T]{}, nil
}

type basicView[T num.Scalar] struct{}

func (v *basicView[T]) Gyroscope(traj trajectories.Trajectory[T], t float64) (num.Vec3[T], error) {
	return traj.AngularVelocity(t)
}
