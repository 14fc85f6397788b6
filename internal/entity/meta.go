// Package entity defines the contract between trajectory/sensor models and
// the optimizer: models publish their internal state as parameter blocks via
// RequestParameters, and evaluations later reconstruct zero-copy views of the
// same state from solver-owned buffers using the Meta recorded at request
// time.
package entity

import "github.com/guochaodlnu/kontiki/internal/num"

// Window is a closed time interval. A point query uses From == To.
type Window struct {
	From, To float64
}

// ParameterInfo describes one live parameter block of a model: the backing
// scalar storage, its size, and whether the solver may change it. Size is
// fixed once the info is produced.
type ParameterInfo struct {
	// Data is the block's backing store. len(Data) == Size. The solver
	// optimizes this storage in place.
	Data []float64

	// Size is the number of scalars in the block.
	Size int

	// Constant marks blocks the solver must hold fixed (for example a
	// locked sensor bias).
	Constant bool
}

// Block records where one parameter block lives inside the flat per-functor
// buffer: the element offset of its first scalar and its size.
type Block struct {
	Offset int
	Size   int
}

// Meta is the per-evaluation record of the ordered parameter blocks one
// RequestParameters call produced. It is owned by the residual functor that
// requested it and stays valid for the life of the optimization problem: the
// solver re-invokes the functor with different raw buffers but an identical
// logical layout, and Meta is the layout.
//
// Concrete models may carry extra indexing state (a spline's first active
// knot, say) by embedding Layout in their own meta type; the optimizer only
// ever sees this interface.
type Meta interface {
	// NumParameters is the number of parameter blocks recorded.
	NumParameters() int
	// NumElements is the total scalar count across all recorded blocks.
	NumElements() int
	// Blocks returns the recorded layout in registration order.
	Blocks() []Block
}

// Layout is the standard Meta implementation. Blocks carry explicit offsets,
// not just sizes, so a mapping that consumed blocks in a different order than
// they were registered cannot produce a well-formed view.
type Layout struct {
	blocks []Block
	total  int
}

var _ Meta = (*Layout)(nil)

// Append records the next block in registration order and returns its
// element offset within the flat buffer.
func (l *Layout) Append(size int) int {
	off := l.total
	l.blocks = append(l.blocks, Block{Offset: off, Size: size})
	l.total += size
	return off
}

func (l *Layout) NumParameters() int { return len(l.blocks) }
func (l *Layout) NumElements() int   { return l.total }
func (l *Layout) Blocks() []Block    { return l.blocks }

// Split validates the leading blocks of params against m and divides them
// into the blocks owned by m and the remainder for the next entity. Residual
// functors evaluating several entities from one flat parameter list consume
// it left to right with successive Split calls, which keeps mapping order
// identical to registration order.
func Split[T num.Scalar](m Meta, params [][]T) (own, rest [][]T, err error) {
	blocks := m.Blocks()
	if len(params) < len(blocks) {
		return nil, nil, &SizeMismatchError{What: "parameter block count", Want: len(blocks), Got: len(params)}
	}
	elems := 0
	for i, b := range blocks {
		if b.Offset != elems {
			return nil, nil, &SizeMismatchError{What: "parameter block offset", Want: elems, Got: b.Offset}
		}
		if len(params[i]) != b.Size {
			return nil, nil, &SizeMismatchError{What: "parameter block size", Want: b.Size, Got: len(params[i])}
		}
		elems += b.Size
	}
	if elems != m.NumElements() {
		return nil, nil, &SizeMismatchError{What: "total element count", Want: m.NumElements(), Got: elems}
	}
	return params[:len(blocks)], params[len(blocks):], nil
}
