// Package config loads solver tuning parameters from JSON. Fields omitted
// from the file keep their defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/guochaodlnu/kontiki/internal/solver"
)

// SolverConfig mirrors solver.Options with optional fields.
type SolverConfig struct {
	MaxIterations      *int     `json:"max_iterations,omitempty"`
	InitialLambda      *float64 `json:"initial_lambda,omitempty"`
	FunctionTolerance  *float64 `json:"function_tolerance,omitempty"`
	GradientTolerance  *float64 `json:"gradient_tolerance,omitempty"`
	ParameterTolerance *float64 `json:"parameter_tolerance,omitempty"`
	MaxSolveTime       *string  `json:"max_solve_time,omitempty"` // duration string like "30s"
	NumThreads         *int     `json:"num_threads,omitempty"`
	Verbose            *bool    `json:"verbose,omitempty"`
}

// EmptySolverConfig returns a SolverConfig with all fields unset.
func EmptySolverConfig() *SolverConfig {
	return &SolverConfig{}
}

// LoadSolverConfig loads a SolverConfig from a JSON file. The path must have
// a .json extension and the file must stay under 1MB.
func LoadSolverConfig(path string) (*SolverConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySolverConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges on all set fields.
func (c *SolverConfig) Validate() error {
	if c.MaxIterations != nil && *c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
	}
	if c.InitialLambda != nil && *c.InitialLambda <= 0 {
		return fmt.Errorf("initial_lambda must be positive, got %g", *c.InitialLambda)
	}
	for name, v := range map[string]*float64{
		"function_tolerance":  c.FunctionTolerance,
		"gradient_tolerance":  c.GradientTolerance,
		"parameter_tolerance": c.ParameterTolerance,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %g", name, *v)
		}
	}
	if c.MaxSolveTime != nil {
		if _, err := time.ParseDuration(*c.MaxSolveTime); err != nil {
			return fmt.Errorf("max_solve_time: %w", err)
		}
	}
	if c.NumThreads != nil && *c.NumThreads <= 0 {
		return fmt.Errorf("num_threads must be positive, got %d", *c.NumThreads)
	}
	return nil
}

// Options materializes solver options, falling back to solver defaults for
// unset fields.
func (c *SolverConfig) Options() solver.Options {
	opts := solver.DefaultOptions()
	if c.MaxIterations != nil {
		opts.MaxIterations = *c.MaxIterations
	}
	if c.InitialLambda != nil {
		opts.InitialLambda = *c.InitialLambda
	}
	if c.FunctionTolerance != nil {
		opts.FunctionTolerance = *c.FunctionTolerance
	}
	if c.GradientTolerance != nil {
		opts.GradientTolerance = *c.GradientTolerance
	}
	if c.ParameterTolerance != nil {
		opts.ParameterTolerance = *c.ParameterTolerance
	}
	if c.MaxSolveTime != nil {
		// Validate() already vetted the duration string.
		d, _ := time.ParseDuration(*c.MaxSolveTime)
		opts.MaxTime = d
	}
	if c.NumThreads != nil {
		opts.NumThreads = *c.NumThreads
	} else if opts.NumThreads <= 0 {
		opts.NumThreads = runtime.NumCPU()
	}
	if c.Verbose != nil {
		opts.Verbose = *c.Verbose
	}
	return opts
}
