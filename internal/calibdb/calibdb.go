// Package calibdb persists gyroscope measurements and calibration runs in
// sqlite, so calibrations are repeatable and their results auditable.
package calibdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) a calibration database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS gyro_measurements (
			sensor_id TEXT NOT NULL,
			t DOUBLE NOT NULL,
			wx DOUBLE NOT NULL,
			wy DOUBLE NOT NULL,
			wz DOUBLE NOT NULL,
			weight DOUBLE NOT NULL DEFAULT 1.0
		);
		CREATE INDEX IF NOT EXISTS idx_gyro_sensor_t ON gyro_measurements(sensor_id, t);
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			sensor_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			duration_ms BIGINT NOT NULL,
			iterations INTEGER NOT NULL,
			initial_cost DOUBLE NOT NULL,
			final_cost DOUBLE NOT NULL,
			termination TEXT NOT NULL,
			bias_x DOUBLE,
			bias_y DOUBLE,
			bias_z DOUBLE
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

// GyroSample is one stored gyroscope measurement.
type GyroSample struct {
	SensorID string
	T        float64
	W        [3]float64
	Weight   float64
}

// RecordGyro stores one gyroscope measurement.
func (db *DB) RecordGyro(s GyroSample) error {
	_, err := db.Exec(
		"INSERT INTO gyro_measurements (sensor_id, t, wx, wy, wz, weight) VALUES (?, ?, ?, ?, ?, ?)",
		s.SensorID, s.T, s.W[0], s.W[1], s.W[2], s.Weight,
	)
	return err
}

// GyroSamples returns all measurements for a sensor ordered by time.
func (db *DB) GyroSamples(sensorID string) ([]GyroSample, error) {
	rows, err := db.Query(
		"SELECT sensor_id, t, wx, wy, wz, weight FROM gyro_measurements WHERE sensor_id = ? ORDER BY t",
		sensorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []GyroSample
	for rows.Next() {
		var s GyroSample
		if err := rows.Scan(&s.SensorID, &s.T, &s.W[0], &s.W[1], &s.W[2], &s.Weight); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// Run is one persisted calibration run.
type Run struct {
	RunID       string
	SensorID    string
	StartedAt   time.Time
	Duration    time.Duration
	Iterations  int
	InitialCost float64
	FinalCost   float64
	Termination string
	Bias        [3]float64
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.New().String() }

// RecordRun stores one calibration run.
func (db *DB) RecordRun(r Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (run_id, sensor_id, started_at, duration_ms, iterations,
			initial_cost, final_cost, termination, bias_x, bias_y, bias_z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.SensorID, r.StartedAt, r.Duration.Milliseconds(), r.Iterations,
		r.InitialCost, r.FinalCost, r.Termination, r.Bias[0], r.Bias[1], r.Bias[2],
	)
	return err
}

// Runs returns stored runs for a sensor, most recent first.
func (db *DB) Runs(sensorID string) ([]Run, error) {
	rows, err := db.Query(`
		SELECT run_id, sensor_id, started_at, duration_ms, iterations,
			initial_cost, final_cost, termination, bias_x, bias_y, bias_z
		FROM runs WHERE sensor_id = ? ORDER BY started_at DESC`,
		sensorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ms int64
		if err := rows.Scan(&r.RunID, &r.SensorID, &r.StartedAt, &ms, &r.Iterations,
			&r.InitialCost, &r.FinalCost, &r.Termination, &r.Bias[0], &r.Bias[1], &r.Bias[2]); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}
