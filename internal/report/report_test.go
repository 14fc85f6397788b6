package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guochaodlnu/kontiki/internal/calibdb"
	"github.com/guochaodlnu/kontiki/internal/solver"
)

func testSummary() *solver.Summary {
	return &solver.Summary{
		InitialCost: 10,
		FinalCost:   1e-9,
		Iterations:  4,
		Termination: solver.TerminationConverged,
		CostHistory: []float64{10, 1, 0.01, 1e-6, 1e-9},
		Duration:    20 * time.Millisecond,
	}
}

func TestSaveConvergencePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convergence.png")
	if err := SaveConvergencePlot(testSummary(), path); err != nil {
		t.Fatalf("SaveConvergencePlot failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("plot file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}

func TestSaveConvergencePlotZeroCost(t *testing.T) {
	// An exactly-zero final cost must not break the log-scale axis.
	s := testSummary()
	s.CostHistory = append(s.CostHistory, 0)
	path := filepath.Join(t.TempDir(), "convergence.png")
	if err := SaveConvergencePlot(s, path); err != nil {
		t.Fatalf("SaveConvergencePlot failed: %v", err)
	}
}

func TestWriteHTMLReport(t *testing.T) {
	run := calibdb.Run{
		RunID:       "run-123",
		SensorID:    "imu0",
		StartedAt:   time.Now(),
		Termination: solver.TerminationConverged,
		Bias:        [3]float64{0.02, -0.015, 0.03},
	}
	path := filepath.Join(t.TempDir(), "report.html")
	if err := WriteHTMLReport(run, testSummary(), path); err != nil {
		t.Fatalf("WriteHTMLReport failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report file missing: %v", err)
	}
	html := string(data)
	for _, want := range []string{"run-123", "imu0", "converged"} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
