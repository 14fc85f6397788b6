package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guochaodlnu/kontiki/internal/solver"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadSolverConfig(t *testing.T) {
	path := writeConfig(t, "solver.json", `{
		"max_iterations": 120,
		"initial_lambda": 0.01,
		"max_solve_time": "30s",
		"num_threads": 2,
		"verbose": true
	}`)

	cfg, err := LoadSolverConfig(path)
	if err != nil {
		t.Fatalf("LoadSolverConfig failed: %v", err)
	}

	opts := cfg.Options()
	if opts.MaxIterations != 120 {
		t.Errorf("MaxIterations = %d, want 120", opts.MaxIterations)
	}
	if opts.InitialLambda != 0.01 {
		t.Errorf("InitialLambda = %v, want 0.01", opts.InitialLambda)
	}
	if opts.MaxTime != 30*time.Second {
		t.Errorf("MaxTime = %v, want 30s", opts.MaxTime)
	}
	if opts.NumThreads != 2 {
		t.Errorf("NumThreads = %d, want 2", opts.NumThreads)
	}
	if !opts.Verbose {
		t.Error("Verbose = false, want true")
	}
	// Unset fields keep solver defaults.
	def := solver.DefaultOptions()
	if opts.FunctionTolerance != def.FunctionTolerance {
		t.Errorf("FunctionTolerance = %v, want default %v", opts.FunctionTolerance, def.FunctionTolerance)
	}
}

func TestLoadSolverConfigPartial(t *testing.T) {
	path := writeConfig(t, "solver.json", `{"max_iterations": 5}`)
	cfg, err := LoadSolverConfig(path)
	if err != nil {
		t.Fatalf("LoadSolverConfig failed: %v", err)
	}
	opts := cfg.Options()
	def := solver.DefaultOptions()
	if opts.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", opts.MaxIterations)
	}
	if opts.InitialLambda != def.InitialLambda {
		t.Errorf("InitialLambda = %v, want default %v", opts.InitialLambda, def.InitialLambda)
	}
	if opts.MaxTime != 0 {
		t.Errorf("MaxTime = %v, want 0", opts.MaxTime)
	}
}

func TestLoadSolverConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "wrong extension",
			file:    "solver.yaml",
			content: `{}`,
			wantErr: ".json extension",
		},
		{
			name:    "malformed json",
			file:    "solver.json",
			content: `{"max_iterations": `,
			wantErr: "parse config JSON",
		},
		{
			name:    "non-positive iterations",
			file:    "solver.json",
			content: `{"max_iterations": 0}`,
			wantErr: "max_iterations must be positive",
		},
		{
			name:    "negative lambda",
			file:    "solver.json",
			content: `{"initial_lambda": -1}`,
			wantErr: "initial_lambda must be positive",
		},
		{
			name:    "negative tolerance",
			file:    "solver.json",
			content: `{"gradient_tolerance": -1e-9}`,
			wantErr: "gradient_tolerance must be non-negative",
		},
		{
			name:    "bad duration",
			file:    "solver.json",
			content: `{"max_solve_time": "fast"}`,
			wantErr: "max_solve_time",
		},
		{
			name:    "non-positive threads",
			file:    "solver.json",
			content: `{"num_threads": -2}`,
			wantErr: "num_threads must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := LoadSolverConfig(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSolverConfigMissingFile(t *testing.T) {
	_, err := LoadSolverConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEmptySolverConfigDefaults(t *testing.T) {
	opts := EmptySolverConfig().Options()
	def := solver.DefaultOptions()
	if opts.MaxIterations != def.MaxIterations || opts.InitialLambda != def.InitialLambda {
		t.Errorf("empty config options %+v differ from defaults %+v", opts, def)
	}
	if opts.NumThreads <= 0 {
		t.Errorf("NumThreads = %d, want positive", opts.NumThreads)
	}
}
