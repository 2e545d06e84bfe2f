package db_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-replay/internal/aggregate"
	"transit-replay/internal/db"
	"transit-replay/internal/reduce"
	"transit-replay/internal/trip"
)

// openTestDB connects to TEST_DATABASE_URL and migrates it. Tests are
// skipped when the variable is not set.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	conn, err := db.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Ping(context.Background(), conn))
	require.NoError(t, db.Migrate(context.Background(), conn))
	return conn
}

func TestNewRun(t *testing.T) {
	stats := aggregate.Stats{
		Trips:       10,
		Enriched:    6,
		Missing:     1,
		Malformed:   1,
		Unreducible: map[reduce.Reason]int{reduce.ReasonZeroResults: 1, reduce.ReasonDriving: 1},
	}
	week := time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)

	r := db.NewRun("2023_archive", week, stats, aggregate.Summary{MeanDuration: 42.5})

	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.Equal(t, "2023_archive", r.ArchiveTag)
	assert.Equal(t, 2, r.Unreducible)
	assert.Equal(t, 6, r.Enriched)
	assert.Equal(t, 42.5, r.MeanDuration)
}

func TestSaveRunAndLatest(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	tag := "test_" + uuid.NewString()
	week := time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC)

	older := db.NewRun(tag, week, aggregate.Stats{Trips: 1}, aggregate.Summary{})
	older.StartedAt = time.Now().Add(-time.Hour).UTC()
	newer := db.NewRun(tag, week, aggregate.Stats{Trips: 2, Enriched: 2}, aggregate.Summary{MeanDuration: 30})
	require.NoError(t, db.SaveRun(ctx, conn, older, nil))
	require.NoError(t, db.SaveRun(ctx, conn, newer, nil))

	got, err := db.LatestRun(ctx, conn, tag)

	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, 2, got.Enriched)
	assert.Equal(t, 30.0, got.MeanDuration)
	assert.Equal(t, "2024-11-20", got.TargetWeek.Format("2006-01-02"))
}

func TestLatestRun_none(t *testing.T) {
	conn := openTestDB(t)

	_, err := db.LatestRun(context.Background(), conn, "missing_"+uuid.NewString())

	assert.ErrorIs(t, err, db.ErrNoRun)
}

func enrichedTrip(id int, rideshare, ratio *float64) aggregate.EnrichedTrip {
	return aggregate.EnrichedTrip{
		NormalizedTrip: trip.NormalizedTrip{RawTrip: trip.RawTrip{ID: id, RideshareMinutes: rideshare}, AlignedEpoch: 1732114800},
		Reduced:        reduce.Reduced{DurationMinutes: 40, DurationSource: reduce.FromArrival},
		Splits:         aggregate.Splits{Walking: 10, Bus: 20, Waiting: 10},
		Hour:           9,
		Ratio:          ratio,
	}
}

func TestSaveRun_trips(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	run := db.NewRun("test_"+uuid.NewString(), time.Now(), aggregate.Stats{Trips: 2}, aggregate.Summary{})

	rideshare, ratio := 20.0, 2.0
	trips := []aggregate.EnrichedTrip{enrichedTrip(1, &rideshare, &ratio), enrichedTrip(2, nil, nil)}

	require.NoError(t, db.SaveRun(ctx, conn, run, trips))

	var n int
	var withRatio int
	err := conn.QueryRowContext(ctx,
		`SELECT count(*), count(ratio) FROM trip_results WHERE run_id = $1`, run.ID).Scan(&n, &withRatio)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, withRatio)
}

func TestSaveRun_failedTripLeavesNoRun(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	tag := "test_" + uuid.NewString()
	run := db.NewRun(tag, time.Now(), aggregate.Stats{Trips: 2}, aggregate.Summary{})

	// Duplicate (run_id, trip_id) fails the second insert.
	err := db.SaveRun(ctx, conn, run, []aggregate.EnrichedTrip{enrichedTrip(1, nil, nil), enrichedTrip(1, nil, nil)})
	require.Error(t, err)

	_, err = db.LatestRun(ctx, conn, tag)
	assert.ErrorIs(t, err, db.ErrNoRun)
}
