// Package main provides the gyroscope calibration tool. It can seed a
// measurement database with synthetic data, run a bias calibration against
// the stored measurements, persist the run, and render reports.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/guochaodlnu/kontiki/internal/calibdb"
	"github.com/guochaodlnu/kontiki/internal/config"
	"github.com/guochaodlnu/kontiki/internal/estimator"
	"github.com/guochaodlnu/kontiki/internal/measurements"
	"github.com/guochaodlnu/kontiki/internal/monitoring"
	"github.com/guochaodlnu/kontiki/internal/report"
	"github.com/guochaodlnu/kontiki/internal/sensors"
	"github.com/guochaodlnu/kontiki/internal/solver"
	"github.com/guochaodlnu/kontiki/internal/trajectories"
)

func main() {
	var (
		dbPath     = flag.String("db", "calibration.db", "path to the calibration database")
		sensorID   = flag.String("sensor", "imu-0", "sensor identifier")
		configPath = flag.String("config", "", "optional solver config JSON")
		synth      = flag.Int("synth", 0, "generate N synthetic measurements instead of calibrating")
		plotPath   = flag.String("plot", "", "write a convergence plot PNG to this path")
		reportPath = flag.String("report", "", "write an HTML report to this path")
		verbose    = flag.Bool("v", false, "verbose solver output")
	)
	flag.Parse()

	monitoring.SetDebug(*verbose)

	db, err := calibdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if *synth > 0 {
		if err := generateSynthetic(db, *sensorID, *synth); err != nil {
			log.Fatalf("failed to generate synthetic data: %v", err)
		}
		log.Printf("stored %d synthetic measurements for %s", *synth, *sensorID)
		return
	}

	opts := solver.DefaultOptions()
	if *configPath != "" {
		cfg, err := config.LoadSolverConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		opts = cfg.Options()
	}
	opts.Verbose = opts.Verbose || *verbose

	if err := calibrate(db, *sensorID, opts, *plotPath, *reportPath); err != nil {
		log.Fatalf("calibration failed: %v", err)
	}
}

// turntableRate is the reference motion for synthetic data: a turntable
// spinning at a constant rate about z.
var turntableRate = [3]float64{0, 0, 0.8}

var syntheticBias = [3]float64{0.02, -0.015, 0.03}

// generateSynthetic seeds the database with gyroscope readings of a known
// trajectory through a biased sensor.
func generateSynthetic(db *calibdb.DB, sensorID string, n int) error {
	for i := 0; i < n; i++ {
		t := float64(i) * 0.01
		w := turntableRate
		sample := calibdb.GyroSample{
			SensorID: sensorID,
			T:        t,
			W:        [3]float64{w[0] + syntheticBias[0], w[1] + syntheticBias[1], w[2] + syntheticBias[2]},
			Weight:   1,
		}
		if err := db.RecordGyro(sample); err != nil {
			return err
		}
	}
	return nil
}

// calibrate estimates a constant gyroscope bias from the stored measurements
// of sensorID. The trajectory is treated as known (locked), which is the
// turntable calibration setup: only the bias block is free.
func calibrate(db *calibdb.DB, sensorID string, opts solver.Options, plotPath, reportPath string) error {
	samples, err := db.GyroSamples(sensorID)
	if err != nil {
		return fmt.Errorf("failed to load measurements: %w", err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("no measurements stored for sensor %q", sensorID)
	}

	// Known reference motion: the turntable rate, locked so only the bias
	// block is optimized.
	traj := trajectories.NewLinearTrajectory(0, turntableRate)
	traj.Lock()

	imu := sensors.NewConstantBiasImu([3]float64{0, 0, 0})
	est := estimator.New(traj, opts)

	for _, s := range samples {
		m, err := measurements.NewWeightedGyroscopeMeasurement(imu, s.T, s.W, s.Weight)
		if err != nil {
			return err
		}
		if err := est.AddMeasurement(m); err != nil {
			return fmt.Errorf("failed to add measurement at t=%g: %w", s.T, err)
		}
	}

	started := time.Now()
	summary, err := est.Solve()
	if err != nil {
		return fmt.Errorf("solve failed: %w", err)
	}

	bias := imu.Bias()
	log.Printf("calibrated bias for %s: [%.6f %.6f %.6f] (%s after %d iterations, cost %.3e -> %.3e)",
		sensorID, bias[0], bias[1], bias[2], summary.Termination, summary.Iterations,
		summary.InitialCost, summary.FinalCost)

	run := calibdb.Run{
		RunID:       calibdb.NewRunID(),
		SensorID:    sensorID,
		StartedAt:   started,
		Duration:    summary.Duration,
		Iterations:  summary.Iterations,
		InitialCost: summary.InitialCost,
		FinalCost:   summary.FinalCost,
		Termination: summary.Termination,
		Bias:        bias,
	}
	if err := db.RecordRun(run); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}

	if plotPath != "" {
		if err := report.SaveConvergencePlot(summary, plotPath); err != nil {
			return err
		}
	}
	if reportPath != "" {
		if err := report.WriteHTMLReport(run, summary, reportPath); err != nil {
			return err
		}
	}
	return nil
}
