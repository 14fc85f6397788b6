package solver

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/dual"
)

// lineFit is a test cost function: residual = y - (a*x + b) for one sample,
// over two 1-element blocks a and b.
type lineFit struct {
	x, y float64
}

func (f *lineFit) NumResiduals() int { return 1 }
func (f *lineFit) BlockSizes() []int { return []int{1, 1} }

func (f *lineFit) Evaluate(params [][]float64, residuals []float64) bool {
	residuals[0] = f.y - (params[0][0]*f.x + params[1][0])
	return true
}

func (f *lineFit) EvaluateDual(params [][]dual.Number, residuals []dual.Number) bool {
	ax := dual.Mul(params[0][0], dual.Number{Real: f.x})
	residuals[0] = dual.Sub(dual.Number{Real: f.y}, dual.Add(ax, params[1][0]))
	return true
}

// pull is the trivial residual target - p over one scalar block.
type pull struct {
	target float64
}

func (f *pull) NumResiduals() int { return 1 }
func (f *pull) BlockSizes() []int { return []int{1} }

func (f *pull) Evaluate(params [][]float64, residuals []float64) bool {
	residuals[0] = f.target - params[0][0]
	return true
}

func (f *pull) EvaluateDual(params [][]dual.Number, residuals []dual.Number) bool {
	residuals[0] = dual.Sub(dual.Number{Real: f.target}, params[0][0])
	return true
}

// reciprocal is the residual target - 1/p, defined only for p > 0. A
// Gauss-Newton step from p well above the minimizer overshoots into the
// negative half-line, so solving it exercises the domain-fault rejection.
type reciprocal struct {
	target float64
}

func (f *reciprocal) NumResiduals() int { return 1 }
func (f *reciprocal) BlockSizes() []int { return []int{1} }

func (f *reciprocal) Evaluate(params [][]float64, residuals []float64) bool {
	p := params[0][0]
	if p <= 0 {
		return false
	}
	residuals[0] = f.target - 1/p
	return true
}

func (f *reciprocal) EvaluateDual(params [][]dual.Number, residuals []dual.Number) bool {
	p := params[0][0]
	if p.Real <= 0 {
		return false
	}
	inv := dual.Number{Real: 1 / p.Real, Emag: -p.Emag / (p.Real * p.Real)}
	residuals[0] = dual.Sub(dual.Number{Real: f.target}, inv)
	return true
}

// dualFault evaluates cleanly at plain scalars but reports a domain fault on
// every dual pass, so the fault can only surface during Jacobian assembly.
type dualFault struct{}

func (dualFault) NumResiduals() int { return 1 }
func (dualFault) BlockSizes() []int { return []int{1} }

func (dualFault) Evaluate(params [][]float64, residuals []float64) bool {
	residuals[0] = 1 - params[0][0]
	return true
}

func (dualFault) EvaluateDual(params [][]dual.Number, residuals []dual.Number) bool {
	return false
}

func buildLineProblem(t *testing.T, a, b []float64, samples [][2]float64) *Problem {
	t.Helper()
	p := NewProblem()
	if err := p.AddParameterBlock(a, 1, false); err != nil {
		t.Fatalf("AddParameterBlock failed: %v", err)
	}
	if err := p.AddParameterBlock(b, 1, false); err != nil {
		t.Fatalf("AddParameterBlock failed: %v", err)
	}
	for _, s := range samples {
		if err := p.AddResidualBlock(&lineFit{x: s[0], y: s[1]}, nil, [][]float64{a, b}); err != nil {
			t.Fatalf("AddResidualBlock failed: %v", err)
		}
	}
	return p
}

func TestSolveRecoversLine(t *testing.T) {
	// Samples of y = 2x - 1, exact.
	samples := [][2]float64{{0, -1}, {1, 1}, {2, 3}, {3, 5}}
	a := []float64{0}
	b := []float64{0}
	p := buildLineProblem(t, a, b, samples)

	summary, err := p.Solve(DefaultOptions())
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if math.Abs(a[0]-2) > 1e-6 || math.Abs(b[0]+1) > 1e-6 {
		t.Errorf("recovered a=%v b=%v, want a=2 b=-1", a[0], b[0])
	}
	if summary.FinalCost > 1e-12 {
		t.Errorf("final cost %v, want ~0", summary.FinalCost)
	}
	if summary.FinalCost > summary.InitialCost {
		t.Errorf("cost increased: %v -> %v", summary.InitialCost, summary.FinalCost)
	}
}

func TestSolveHoldsConstantBlocks(t *testing.T) {
	samples := [][2]float64{{0, -1}, {1, 1}, {2, 3}}
	a := []float64{0}
	b := []float64{-1} // correct, and pinned
	p := NewProblem()
	if err := p.AddParameterBlock(a, 1, false); err != nil {
		t.Fatalf("AddParameterBlock failed: %v", err)
	}
	if err := p.AddParameterBlock(b, 1, true); err != nil {
		t.Fatalf("AddParameterBlock failed: %v", err)
	}
	for _, s := range samples {
		if err := p.AddResidualBlock(&lineFit{x: s[0], y: s[1]}, nil, [][]float64{a, b}); err != nil {
			t.Fatalf("AddResidualBlock failed: %v", err)
		}
	}

	if _, err := p.Solve(DefaultOptions()); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if b[0] != -1 {
		t.Errorf("constant block changed to %v", b[0])
	}
	if math.Abs(a[0]-2) > 1e-6 {
		t.Errorf("free block a=%v, want 2", a[0])
	}
}

func TestSolveDomainFaultShrinksStep(t *testing.T) {
	// Minimizing (2 - 1/p)² from p=2 with near-zero damping: the first
	// Gauss-Newton step lands at p < 0, outside the model's domain. The
	// solver must reject it, grow lambda, and still reach p=1/2.
	param := []float64{2}
	p := NewProblem()
	if err := p.AddParameterBlock(param, 1, false); err != nil {
		t.Fatalf("AddParameterBlock failed: %v", err)
	}
	if err := p.AddResidualBlock(&reciprocal{target: 2}, nil, [][]float64{param}); err != nil {
		t.Fatalf("AddResidualBlock failed: %v", err)
	}

	opts := DefaultOptions()
	opts.InitialLambda = 1e-12
	summary, err := p.Solve(opts)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if math.Abs(param[0]-0.5) > 1e-6 {
		t.Errorf("recovered %v, want 0.5 (termination %s)", param[0], summary.Termination)
	}
}

func TestSolveJacobianFaultTerminatesGracefully(t *testing.T) {
	param := []float64{0.25}
	p := NewProblem()
	if err := p.AddParameterBlock(param, 1, false); err != nil {
		t.Fatalf("AddParameterBlock failed: %v", err)
	}
	if err := p.AddResidualBlock(dualFault{}, nil, [][]float64{param}); err != nil {
		t.Fatalf("AddResidualBlock failed: %v", err)
	}

	summary, err := p.Solve(DefaultOptions())
	if err != nil {
		t.Fatalf("Solve returned error: %v", err)
	}
	if summary.Termination != TerminationNoStep {
		t.Errorf("termination %q, want %q", summary.Termination, TerminationNoStep)
	}
	if param[0] != 0.25 {
		t.Errorf("parameter moved to %v without a usable jacobian", param[0])
	}
	if summary.FinalCost != summary.InitialCost {
		t.Errorf("cost changed %v -> %v without an accepted step", summary.InitialCost, summary.FinalCost)
	}
}

func TestSolveScaledLoss(t *testing.T) {
	// One residual with scale w: cost = 0.5 * (w*r)².
	param := []float64{0}
	p := NewProblem()
	if err := p.AddParameterBlock(param, 1, false); err != nil {
		t.Fatalf("AddParameterBlock failed: %v", err)
	}
	if err := p.AddResidualBlock(&pull{target: 2}, ScaledLoss{Factor: 3}, [][]float64{param}); err != nil {
		t.Fatalf("AddResidualBlock failed: %v", err)
	}

	summary, err := p.Solve(DefaultOptions())
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	// residual at start: 3 * (2 - 0) = 6; cost = 18.
	if math.Abs(summary.InitialCost-18) > 1e-12 {
		t.Errorf("initial cost %v, want 18", summary.InitialCost)
	}
	if math.Abs(param[0]-2) > 1e-6 {
		t.Errorf("recovered %v, want 2", param[0])
	}
}

func TestSolveParallelMatchesSerial(t *testing.T) {
	samples := [][2]float64{}
	for i := 0; i < 40; i++ {
		x := float64(i) * 0.1
		samples = append(samples, [2]float64{x, 2*x - 1})
	}

	run := func(threads int) (float64, float64) {
		a := []float64{0.5}
		b := []float64{0.5}
		p := buildLineProblem(t, a, b, samples)
		opts := DefaultOptions()
		opts.NumThreads = threads
		if _, err := p.Solve(opts); err != nil {
			t.Fatalf("Solve with %d threads failed: %v", threads, err)
		}
		return a[0], b[0]
	}

	a1, b1 := run(1)
	a4, b4 := run(4)
	if math.Abs(a1-a4) > 1e-9 || math.Abs(b1-b4) > 1e-9 {
		t.Errorf("parallel solve diverged: serial (%v,%v) parallel (%v,%v)", a1, b1, a4, b4)
	}
}

func TestProblemValidation(t *testing.T) {
	p := NewProblem()
	a := []float64{1, 2}

	if err := p.AddParameterBlock(a, 3, false); err == nil {
		t.Error("size/storage mismatch accepted")
	}
	if err := p.AddParameterBlock(a, 2, false); err != nil {
		t.Fatalf("AddParameterBlock failed: %v", err)
	}
	if err := p.CheckParameterBlock(a, 1); err == nil {
		t.Error("conflicting re-registration accepted")
	}
	if err := p.AddResidualBlock(&lineFit{}, nil, [][]float64{a, {9}}); err == nil {
		t.Error("residual over unregistered block accepted")
	}
	if p.NumParameterBlocks() != 1 {
		t.Errorf("NumParameterBlocks = %d, want 1", p.NumParameterBlocks())
	}
}

func TestSolveRequiresResidualsAndFreeBlocks(t *testing.T) {
	p := NewProblem()
	if _, err := p.Solve(DefaultOptions()); err == nil {
		t.Error("empty problem solved")
	}

	a := []float64{1}
	p2 := NewProblem()
	if err := p2.AddParameterBlock(a, 1, true); err != nil {
		t.Fatalf("AddParameterBlock failed: %v", err)
	}
	if err := p2.AddResidualBlock(&pull{target: 0}, nil, [][]float64{a}); err != nil {
		t.Fatalf("AddResidualBlock failed: %v", err)
	}
	if _, err := p2.Solve(DefaultOptions()); err == nil {
		t.Error("problem with only constant blocks solved")
	}
}
