// Package solver implements a dense nonlinear least-squares engine: a
// Problem collects parameter blocks and dynamically sized residual blocks,
// and Solve minimizes the summed squared residual with Levenberg-Marquardt.
// Jacobians come from forward-mode automatic differentiation: every cost
// function is evaluable both at float64 and at dual.Number.
package solver

import (
	"fmt"

	"gonum.org/v1/gonum/num/dual"
)

// CostFunction is a dynamically sized residual evaluator. Block count and
// sizes are fixed at construction time but not known statically. Evaluate
// and EvaluateDual must compute the same function; they return false to
// report a domain fault, which the solver treats as a rejected evaluation
// rather than a fatal error.
//
// Evaluations must be safe to run concurrently with other cost functions:
// implementations build fresh views from the supplied buffers and keep no
// mutable scratch state.
type CostFunction interface {
	// NumResiduals is the residual dimension.
	NumResiduals() int
	// BlockSizes lists the expected parameter block sizes in order.
	BlockSizes() []int
	// Evaluate computes residuals from plain-valued parameter blocks.
	Evaluate(params [][]float64, residuals []float64) bool
	// EvaluateDual computes residuals from dual-valued parameter blocks,
	// propagating derivative parts for Jacobian assembly.
	EvaluateDual(params [][]dual.Number, residuals []dual.Number) bool
}

// LossFunction scales a residual block's contribution to the objective.
type LossFunction interface {
	// Scale is the factor applied to the block's residuals (and hence its
	// Jacobian rows).
	Scale() float64
}

// ScaledLoss is a constant residual scaling, used to apply measurement
// weights at registration time.
type ScaledLoss struct {
	Factor float64
}

func (l ScaledLoss) Scale() float64 { return l.Factor }

// paramBlock is one registered block of optimizable scalars. data is the
// live storage shared with the owning model; the solver writes accepted
// steps back into it.
type paramBlock struct {
	data     []float64
	size     int
	constant bool
	offset   int // element offset into the free-parameter vector; -1 if constant
}

type residualBlock struct {
	cost   CostFunction
	loss   LossFunction
	blocks []*paramBlock
	dim    int
	row    int // row offset into the stacked residual vector
}

// Problem is a nonlinear least-squares problem under construction. It is not
// safe for concurrent mutation; callers serialize Add* calls.
type Problem struct {
	blocks    []*paramBlock
	byKey     map[*float64]*paramBlock
	residuals []*residualBlock
	totalDim  int
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{byKey: make(map[*float64]*paramBlock)}
}

// NumParameterBlocks is the number of registered parameter blocks.
func (p *Problem) NumParameterBlocks() int { return len(p.blocks) }

// NumResidualBlocks is the number of registered residual blocks.
func (p *Problem) NumResidualBlocks() int { return len(p.residuals) }

// NumResiduals is the stacked residual dimension.
func (p *Problem) NumResiduals() int { return p.totalDim }

// blockKey identifies a block by the address of its first element, so the
// same model storage registered through many measurements maps to one block.
func blockKey(data []float64) *float64 { return &data[0] }

// CheckParameterBlock verifies that data can be registered with the given
// size: either it is new, or it was already registered with the same size.
func (p *Problem) CheckParameterBlock(data []float64, size int) error {
	if size <= 0 || len(data) != size {
		return fmt.Errorf("parameter block storage has %d elements, declared size %d", len(data), size)
	}
	if b, ok := p.byKey[blockKey(data)]; ok && b.size != size {
		return fmt.Errorf("parameter block already registered with size %d, re-registered with %d", b.size, size)
	}
	return nil
}

// AddParameterBlock registers data as an optimizable block, or marks it
// constant. Re-registering the same storage is idempotent; a constant
// registration on an existing block pins it.
func (p *Problem) AddParameterBlock(data []float64, size int, constant bool) error {
	if err := p.CheckParameterBlock(data, size); err != nil {
		return err
	}
	key := blockKey(data)
	if b, ok := p.byKey[key]; ok {
		if constant {
			b.constant = true
		}
		return nil
	}
	b := &paramBlock{data: data, size: size, constant: constant, offset: -1}
	p.blocks = append(p.blocks, b)
	p.byKey[key] = b
	return nil
}

// AddResidualBlock registers cost over the given parameter blocks, all of
// which must already be registered. loss may be nil for unit weighting.
func (p *Problem) AddResidualBlock(cost CostFunction, loss LossFunction, params [][]float64) error {
	sizes := cost.BlockSizes()
	if len(sizes) != len(params) {
		return fmt.Errorf("cost function declares %d blocks, got %d", len(sizes), len(params))
	}
	dim := cost.NumResiduals()
	if dim <= 0 {
		return fmt.Errorf("cost function declares non-positive residual dimension %d", dim)
	}
	rb := &residualBlock{cost: cost, loss: loss, dim: dim}
	for i, data := range params {
		b, ok := p.byKey[blockKey(data)]
		if !ok {
			return fmt.Errorf("residual block references unregistered parameter block %d", i)
		}
		if b.size != sizes[i] {
			return fmt.Errorf("cost function block %d declares size %d, registered size %d", i, sizes[i], b.size)
		}
		rb.blocks = append(rb.blocks, b)
	}
	rb.row = p.totalDim
	p.totalDim += dim
	p.residuals = append(p.residuals, rb)
	return nil
}
