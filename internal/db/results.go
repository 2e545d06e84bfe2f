package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"transit-replay/internal/aggregate"
)

var ErrNoRun = errors.New("no stored run")

// Run is one stored reduction pass over an archive.
type Run struct {
	ID           uuid.UUID
	ArchiveTag   string
	TargetWeek   time.Time
	StartedAt    time.Time
	Trips        int
	Enriched     int
	Missing      int
	Unreducible  int
	Malformed    int
	MeanDuration float64
}

// NewRun summarizes an aggregation pass under a fresh run ID.
func NewRun(archiveTag string, targetWeek time.Time, stats aggregate.Stats, summary aggregate.Summary) Run {
	unreducible := 0
	for _, n := range stats.Unreducible {
		unreducible += n
	}
	return Run{
		ID:           uuid.New(),
		ArchiveTag:   archiveTag,
		TargetWeek:   targetWeek,
		StartedAt:    time.Now().UTC(),
		Trips:        stats.Trips,
		Enriched:     stats.Enriched,
		Missing:      stats.Missing,
		Unreducible:  unreducible,
		Malformed:    stats.Malformed,
		MeanDuration: summary.MeanDuration,
	}
}

// SaveRun stores r and its enriched trips in one transaction, so a run row
// never exists without its trips.
func SaveRun(ctx context.Context, db *sql.DB, r Run, trips []aggregate.EnrichedTrip) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db.SaveRun: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO replay_runs (id, archive_tag, target_week, started_at, trips, enriched, missing, unreducible, malformed, mean_duration)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.ArchiveTag, r.TargetWeek.Format("2006-01-02"), r.StartedAt,
		r.Trips, r.Enriched, r.Missing, r.Unreducible, r.Malformed, r.MeanDuration)
	if err != nil {
		return fmt.Errorf("db.SaveRun: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO trip_results (run_id, trip_id, departure, hour, transit_minutes, duration_source,
    walking_minutes, bus_minutes, waiting_minutes, travel_modes, rideshare_minutes, ratio, straight_line_miles)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return fmt.Errorf("db.SaveRun: %w", err)
	}
	defer stmt.Close()

	for _, t := range trips {
		modes := make([]string, len(t.Reduced.Modes))
		for i, m := range t.Reduced.Modes {
			modes[i] = string(m)
		}
		_, err := stmt.ExecContext(ctx,
			r.ID, t.ID, time.Unix(t.AlignedEpoch, 0).UTC(), t.Hour,
			t.Reduced.DurationMinutes, t.Reduced.DurationSource.String(),
			t.Splits.Walking, t.Splits.Bus, t.Splits.Waiting,
			strings.Join(modes, ";"), nullFloat(t.RideshareMinutes), nullFloat(t.Ratio), t.StraightLineMiles)
		if err != nil {
			return fmt.Errorf("db.SaveRun: trip %d: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db.SaveRun: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run for archiveTag.
func LatestRun(ctx context.Context, db *sql.DB, archiveTag string) (Run, error) {
	archiveTag = strings.TrimSpace(archiveTag)
	if archiveTag == "" {
		return Run{}, fmt.Errorf("archive tag is required")
	}
	const q = `
SELECT id, archive_tag, target_week, started_at, trips, enriched, missing, unreducible, malformed, mean_duration
FROM replay_runs
WHERE archive_tag = $1
ORDER BY started_at DESC
LIMIT 1`
	var r Run
	err := db.QueryRowContext(ctx, q, archiveTag).Scan(
		&r.ID, &r.ArchiveTag, &r.TargetWeek, &r.StartedAt,
		&r.Trips, &r.Enriched, &r.Missing, &r.Unreducible, &r.Malformed, &r.MeanDuration)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("db.LatestRun: %q: %w", archiveTag, ErrNoRun)
	} else if err != nil {
		return Run{}, fmt.Errorf("db.LatestRun: %w", err)
	}
	return r, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
