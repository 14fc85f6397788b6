// Package sensors provides inertial sensor models: functions describing a
// physical sensor's response to the trajectory it rides on, with their own
// calibration parameters exposed to the optimizer as parameter blocks.
package sensors

import (
	"gonum.org/v1/gonum/num/dual"

	"github.com/guochaodlnu/kontiki/internal/entity"
	"github.com/guochaodlnu/kontiki/internal/num"
	"github.com/guochaodlnu/kontiki/internal/trajectories"
)

// Imu is an evaluable view of an IMU model at scalar type T. Views are
// reconstructed per evaluation from solver-owned parameter buffers and hold
// no shared mutable state.
type Imu[T num.Scalar] interface {
	// Gyroscope predicts the gyroscope reading at time t given the
	// trajectory the sensor rides on.
	Gyroscope(traj trajectories.Trajectory[T], t float64) (num.Vec3[T], error)
}

// Model is an IMU representation with live parameter blocks. The shape
// mirrors trajectories.Model: RequestParameters plus the MapReal/MapDual
// pair bridged by Map.
type Model interface {
	RequestParameters(window entity.Window) (entity.Meta, []entity.ParameterInfo, error)
	MapReal(params [][]float64, meta entity.Meta) (Imu[float64], error)
	MapDual(params [][]dual.Number, meta entity.Meta) (Imu[dual.Number], error)
}

// Map reconstructs a view of m at scalar type T from raw parameter blocks
// laid out per meta.
func Map[T num.Scalar](m Model, params [][]T, meta entity.Meta) (Imu[T], error) {
	switch p := any(params).(type) {
	case [][]float64:
		v, err := m.MapReal(p, meta)
		if err != nil {
			return nil, err
		}
		return any(v).(Imu[T]), nil
	case [][]dual.Number:
		v, err := m.MapDual(p, meta)
		if err != nil {
			return nil, err
		}
		return any(v).(Imu[T]), nil
	}
	panic("sensors: unsupported scalar type")
}
