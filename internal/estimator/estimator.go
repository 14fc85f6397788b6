// Package estimator turns time-stamped sensor measurements into a nonlinear
// least-squares problem over a continuous-time trajectory and the sensors
// observing it, and solves it.
package estimator

import (
	"fmt"

	"github.com/guochaodlnu/kontiki/internal/entity"
	"github.com/guochaodlnu/kontiki/internal/solver"
	"github.com/guochaodlnu/kontiki/internal/trajectories"
)

// InvalidStateError reports a structural mutation attempted after Solve
// started.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %q", e.Op, e.State)
}

type state int

const (
	stateBuilding state = iota
	stateSolving
	stateSolved
)

func (s state) String() string {
	switch s {
	case stateBuilding:
		return "building"
	case stateSolving:
		return "solving"
	case stateSolved:
		return "solved"
	}
	return "unknown"
}

// Measurement is the registration contract between measurement types and the
// estimator. It is plumbing for AddMeasurement, not part of the public
// surface a caller uses directly: Register requests parameter blocks from
// the contributing entities and commits exactly one residual block through
// Estimator.BindResidual, or leaves the estimator untouched on failure.
type Measurement interface {
	Register(e *Estimator) error
}

// Estimator owns a solver problem and the trajectory whose parameter blocks
// it exposes. AddMeasurement calls are caller-serialized; the estimator does
// no internal locking during building.
type Estimator struct {
	trajectory trajectories.Model
	problem    *solver.Problem
	options    solver.Options
	state      state
	count      int
}

// New returns an estimator over the given trajectory model using the given
// solver options.
func New(trajectory trajectories.Model, options solver.Options) *Estimator {
	return &Estimator{
		trajectory: trajectory,
		problem:    solver.NewProblem(),
		options:    options,
	}
}

// Trajectory returns the trajectory model under estimation.
func (e *Estimator) Trajectory() trajectories.Model { return e.trajectory }

// NumMeasurements is the number of registered measurements.
func (e *Estimator) NumMeasurements() int { return e.count }

// NumParameterBlocks is the number of distinct parameter blocks registered
// so far.
func (e *Estimator) NumParameterBlocks() int { return e.problem.NumParameterBlocks() }

// AddMeasurement registers one measurement: it requests the parameter blocks
// the contributing entities need around the measurement time, builds the
// residual functor, and adds one residual block to the problem. On any
// failure the estimator is left exactly as it was: parameter and residual
// sets are only updated after every request for the measurement succeeded.
func (e *Estimator) AddMeasurement(m Measurement) error {
	if e.state != stateBuilding {
		return &InvalidStateError{Op: "AddMeasurement", State: e.state.String()}
	}
	if err := m.Register(e); err != nil {
		return err
	}
	e.count++
	return nil
}

// BindResidual commits a fully prepared residual functor plus the parameter
// blocks it consumes, in registration order. It validates everything before
// mutating the problem so a failure leaves no partial registration. Called
// by Measurement.Register implementations only.
func (e *Estimator) BindResidual(cost solver.CostFunction, loss solver.LossFunction, infos []entity.ParameterInfo) error {
	if e.state != stateBuilding {
		return &InvalidStateError{Op: "BindResidual", State: e.state.String()}
	}
	// Conflicts must surface before any mutation, including between two
	// infos of this same call that share backing storage.
	seen := make(map[*float64]int, len(infos))
	for _, pi := range infos {
		if err := e.problem.CheckParameterBlock(pi.Data, pi.Size); err != nil {
			return err
		}
		key := &pi.Data[0]
		if size, ok := seen[key]; ok && size != pi.Size {
			return fmt.Errorf("parameter block registered twice with sizes %d and %d", size, pi.Size)
		}
		seen[key] = pi.Size
	}
	for _, pi := range infos {
		if err := e.problem.AddParameterBlock(pi.Data, pi.Size, pi.Constant); err != nil {
			return err
		}
	}
	params := make([][]float64, len(infos))
	for i, pi := range infos {
		params[i] = pi.Data
	}
	return e.problem.AddResidualBlock(cost, loss, params)
}

// Solve freezes the problem structure and runs the solver to convergence or
// budget exhaustion. Optimized values land in the models' own parameter
// storage. Further AddMeasurement calls fail with InvalidStateError.
func (e *Estimator) Solve() (*solver.Summary, error) {
	if e.state != stateBuilding {
		return nil, &InvalidStateError{Op: "Solve", State: e.state.String()}
	}
	e.state = stateSolving
	summary, err := e.problem.Solve(e.options)
	e.state = stateSolved
	if err != nil {
		return nil, err
	}
	return summary, nil
}
