package calibdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "calib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGyroSampleRoundTrip(t *testing.T) {
	db := openTestDB(t)

	samples := []GyroSample{
		{SensorID: "imu0", T: 0.5, W: [3]float64{0.01, -0.02, 0.83}, Weight: 1},
		{SensorID: "imu0", T: 0.1, W: [3]float64{0.02, -0.01, 0.81}, Weight: 2},
		{SensorID: "imu1", T: 0.2, W: [3]float64{0, 0, 0}, Weight: 1},
	}
	for _, s := range samples {
		require.NoError(t, db.RecordGyro(s))
	}

	got, err := db.GyroSamples("imu0")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by time, not insertion.
	assert.Equal(t, samples[1], got[0])
	assert.Equal(t, samples[0], got[1])

	other, err := db.GyroSamples("imu1")
	require.NoError(t, err)
	require.Len(t, other, 1)

	none, err := db.GyroSamples("absent")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRunRoundTrip(t *testing.T) {
	db := openTestDB(t)

	started := time.Now().UTC().Truncate(time.Millisecond)
	run := Run{
		RunID:       NewRunID(),
		SensorID:    "imu0",
		StartedAt:   started,
		Duration:    1500 * time.Millisecond,
		Iterations:  7,
		InitialCost: 12.5,
		FinalCost:   3.2e-9,
		Termination: "converged",
		Bias:        [3]float64{0.02, -0.015, 0.03},
	}
	require.NoError(t, db.RecordRun(run))

	older := run
	older.RunID = NewRunID()
	older.StartedAt = started.Add(-time.Hour)
	require.NoError(t, db.RecordRun(older))

	runs, err := db.Runs("imu0")
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Most recent first.
	got := runs[0]
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, run.Iterations, got.Iterations)
	assert.Equal(t, run.InitialCost, got.InitialCost)
	assert.Equal(t, run.FinalCost, got.FinalCost)
	assert.Equal(t, run.Termination, got.Termination)
	assert.Equal(t, run.Bias, got.Bias)
	assert.Equal(t, run.Duration, got.Duration)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Second)
	assert.Equal(t, older.RunID, runs[1].RunID)
}

func TestRunIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewRunID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
}

func TestDuplicateRunIDRejected(t *testing.T) {
	db := openTestDB(t)
	run := Run{RunID: "fixed", SensorID: "imu0", StartedAt: time.Now(), Termination: "converged"}
	require.NoError(t, db.RecordRun(run))
	assert.Error(t, db.RecordRun(run))
}
