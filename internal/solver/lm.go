package solver

import (
	"errors"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/dual"

	"github.com/guochaodlnu/kontiki/internal/monitoring"
)

// Termination reasons reported in Summary.
const (
	TerminationConverged     = "converged"
	TerminationMaxIterations = "max_iterations"
	TerminationTimeLimit     = "time_limit"
	TerminationNoStep        = "no_valid_step"
)

// Default damping schedule.
const (
	defaultLambda = 1e-4
	lambdaGrow    = 10.0
	lambdaShrink  = 3.0
	lambdaMin     = 1e-12
	lambdaMax     = 1e16
)

// Options bound a Solve run.
type Options struct {
	MaxIterations      int
	InitialLambda      float64
	FunctionTolerance  float64
	GradientTolerance  float64
	ParameterTolerance float64
	MaxTime            time.Duration // zero means unbounded
	NumThreads         int           // residual/Jacobian evaluation workers
	Verbose            bool
}

// DefaultOptions returns the solver defaults.
func DefaultOptions() Options {
	return Options{
		MaxIterations:      50,
		InitialLambda:      defaultLambda,
		FunctionTolerance:  1e-12,
		GradientTolerance:  1e-12,
		ParameterTolerance: 1e-14,
		NumThreads:         runtime.NumCPU(),
	}
}

// Summary reports the outcome of a Solve run.
type Summary struct {
	InitialCost float64
	FinalCost   float64
	Iterations  int
	Termination string
	CostHistory []float64 // cost after each accepted step, starting with the initial cost
	Duration    time.Duration
}

// ErrInitialEvaluation reports that the problem could not be evaluated at
// its starting point, so no optimization was attempted.
var ErrInitialEvaluation = errors.New("initial residual evaluation failed")

// Solve runs Levenberg-Marquardt until convergence or budget exhaustion and
// writes the optimized values back into the registered parameter storage.
// Residual and Jacobian evaluations run concurrently across residual blocks.
func (p *Problem) Solve(opts Options) (*Summary, error) {
	start := time.Now()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	if opts.InitialLambda <= 0 {
		opts.InitialLambda = defaultLambda
	}
	if opts.NumThreads <= 0 {
		opts.NumThreads = runtime.NumCPU()
	}
	if p.totalDim == 0 {
		return nil, errors.New("problem has no residual blocks")
	}

	// Assign free-vector offsets.
	n := 0
	for _, b := range p.blocks {
		if b.constant {
			b.offset = -1
			continue
		}
		b.offset = n
		n += b.size
	}
	if n == 0 {
		return nil, errors.New("problem has no free parameter blocks")
	}

	x := make([]float64, n)
	for _, b := range p.blocks {
		if b.offset >= 0 {
			copy(x[b.offset:b.offset+b.size], b.data)
		}
	}

	r := make([]float64, p.totalDim)
	if !p.evalResiduals(x, r, opts.NumThreads) {
		return nil, ErrInitialEvaluation
	}
	cost := 0.5 * dot(r, r)

	summary := &Summary{
		InitialCost: cost,
		CostHistory: []float64{cost},
		Termination: TerminationMaxIterations,
	}
	lambda := opts.InitialLambda

	J := mat.NewDense(p.totalDim, n, nil)
	rnew := make([]float64, p.totalDim)
	xnew := make([]float64, n)

iterations:
	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if opts.MaxTime > 0 && time.Since(start) > opts.MaxTime {
			summary.Termination = TerminationTimeLimit
			break
		}
		summary.Iterations = iter

		if !p.evalJacobian(x, J, opts.NumThreads) {
			// A domain fault at the current (already accepted) point: no
			// usable descent direction from here, and damping cannot change
			// the evaluation point. Stop with the best parameters so far.
			monitoring.Debugf("lm: iter %d jacobian fault at current point", iter)
			summary.Termination = TerminationNoStep
			break
		}

		// g = Jᵀ r
		g := make([]float64, n)
		gv := mat.NewVecDense(n, g)
		gv.MulVec(J.T(), mat.NewVecDense(p.totalDim, r))
		if normInf(g) <= opts.GradientTolerance {
			summary.Termination = TerminationConverged
			break
		}

		// A = Jᵀ J
		var a mat.Dense
		a.Mul(J.T(), J)

		for {
			if opts.MaxTime > 0 && time.Since(start) > opts.MaxTime {
				summary.Termination = TerminationTimeLimit
				break iterations
			}

			delta, ok := solveDamped(&a, g, lambda)
			if !ok {
				lambda *= lambdaGrow
				if lambda > lambdaMax {
					summary.Termination = TerminationNoStep
					break iterations
				}
				continue
			}

			for i := range x {
				xnew[i] = x[i] + delta[i]
			}
			if !p.evalResiduals(xnew, rnew, opts.NumThreads) {
				// Domain fault: the step left some model's supported
				// region. Shrink the trust region and retry.
				monitoring.Debugf("lm: iter %d step outside model domain, lambda %.1e", iter, lambda)
				lambda *= lambdaGrow
				if lambda > lambdaMax {
					summary.Termination = TerminationNoStep
					break iterations
				}
				continue
			}
			costNew := 0.5 * dot(rnew, rnew)
			if costNew >= cost {
				monitoring.Debugf("lm: iter %d rejected step (cost %.6e >= %.6e), lambda %.1e", iter, costNew, cost, lambda)
				lambda *= lambdaGrow
				if lambda > lambdaMax {
					summary.Termination = TerminationNoStep
					break iterations
				}
				continue
			}

			// Accept.
			drop := cost - costNew
			copy(x, xnew)
			copy(r, rnew)
			cost = costNew
			p.scatter(x)
			summary.CostHistory = append(summary.CostHistory, cost)
			lambda = math.Max(lambda/lambdaShrink, lambdaMin)

			if opts.Verbose {
				monitoring.Logf("lm: iter %d cost %.6e lambda %.1e", iter, cost, lambda)
			}

			if drop <= opts.FunctionTolerance*cost {
				summary.Termination = TerminationConverged
				break iterations
			}
			if norm2(delta) <= opts.ParameterTolerance*(norm2(x)+opts.ParameterTolerance) {
				summary.Termination = TerminationConverged
				break iterations
			}
			break
		}
	}

	p.scatter(x)
	summary.FinalCost = cost
	summary.Duration = time.Since(start)
	return summary, nil
}

// scatter writes the free vector back into the live parameter storage.
func (p *Problem) scatter(x []float64) {
	for _, b := range p.blocks {
		if b.offset >= 0 {
			copy(b.data, x[b.offset:b.offset+b.size])
		}
	}
}

// solveDamped solves (A + lambda*diag(A)) delta = -g by Cholesky.
func solveDamped(a *mat.Dense, g []float64, lambda float64) ([]float64, bool) {
	n := len(g)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		d := a.At(i, i)
		if d == 0 {
			d = 1
		}
		sym.SetSym(i, i, a.At(i, i)+lambda*d)
		for j := i + 1; j < n; j++ {
			sym.SetSym(i, j, a.At(i, j))
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return nil, false
	}
	delta := make([]float64, n)
	dv := mat.NewVecDense(n, delta)
	if err := chol.SolveVecTo(dv, mat.NewVecDense(n, neg(g))); err != nil {
		return nil, false
	}
	return delta, true
}

// evalResiduals evaluates all residual blocks at x into r, concurrently
// across blocks. It returns false if any cost function reports a domain
// fault.
func (p *Problem) evalResiduals(x []float64, r []float64, workers int) bool {
	var failed atomic.Bool
	p.parallel(workers, func(rb *residualBlock) {
		params := rb.gatherFloat(x)
		out := r[rb.row : rb.row+rb.dim]
		if !rb.cost.Evaluate(params, out) {
			failed.Store(true)
			return
		}
		if rb.loss != nil {
			s := rb.loss.Scale()
			for i := range out {
				out[i] *= s
			}
		}
	})
	return !failed.Load()
}

// evalJacobian fills J = dr/dx at x by one forward-mode dual pass per free
// parameter element of each residual block. Rows outside a block's parameter
// support remain zero.
func (p *Problem) evalJacobian(x []float64, J *mat.Dense, workers int) bool {
	J.Zero()
	var failed atomic.Bool
	p.parallel(workers, func(rb *residualBlock) {
		params := make([][]dual.Number, len(rb.blocks))
		for i, b := range rb.blocks {
			block := make([]dual.Number, b.size)
			for k := 0; k < b.size; k++ {
				if b.offset >= 0 {
					block[k] = dual.Number{Real: x[b.offset+k]}
				} else {
					block[k] = dual.Number{Real: b.data[k]}
				}
			}
			params[i] = block
		}
		out := make([]dual.Number, rb.dim)
		scale := 1.0
		if rb.loss != nil {
			scale = rb.loss.Scale()
		}
		for i, b := range rb.blocks {
			if b.offset < 0 {
				continue
			}
			for k := 0; k < b.size; k++ {
				params[i][k].Emag = 1
				if !rb.cost.EvaluateDual(params, out) {
					failed.Store(true)
					return
				}
				params[i][k].Emag = 0
				col := b.offset + k
				for row := 0; row < rb.dim; row++ {
					J.Set(rb.row+row, col, scale*out[row].Emag)
				}
			}
		}
	})
	return !failed.Load()
}

// parallel runs fn over every residual block with the given worker count.
func (p *Problem) parallel(workers int, fn func(*residualBlock)) {
	if workers <= 1 || len(p.residuals) == 1 {
		for _, rb := range p.residuals {
			fn(rb)
		}
		return
	}
	var (
		wg   sync.WaitGroup
		next int64 = -1
	)
	if workers > len(p.residuals) {
		workers = len(p.residuals)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= len(p.residuals) {
					return
				}
				fn(p.residuals[i])
			}
		}()
	}
	wg.Wait()
}

// gatherFloat assembles the block's parameter slices for a plain evaluation:
// free blocks view the candidate vector, constant blocks view their live
// storage.
func (rb *residualBlock) gatherFloat(x []float64) [][]float64 {
	params := make([][]float64, len(rb.blocks))
	for i, b := range rb.blocks {
		if b.offset >= 0 {
			params[i] = x[b.offset : b.offset+b.size]
		} else {
			params[i] = b.data
		}
	}
	return params
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm2(a []float64) float64 { return math.Sqrt(dot(a, a)) }

func normInf(a []float64) float64 {
	m := 0.0
	for _, v := range a {
		if av := math.Abs(v); av > m {
			m = av
		}
	}
	return m
}

func neg(a []float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = -v
	}
	return out
}
