// Package aggregate joins archived directions responses back onto their trips
// and derives the per-trip time splits and rideshare comparison.
package aggregate

import (
	"errors"
	"log/slog"

	"transit-replay/internal/archive"
	"transit-replay/internal/directions"
	"transit-replay/internal/reduce"
	"transit-replay/internal/timenorm"
	"transit-replay/internal/trip"
)

type Loader interface {
	Load(id int) ([]byte, error)
}

type Metrics interface {
	ReduceOutcome(kind string)
}

// Splits is where the door-to-door transit time goes, in minutes. Waiting is
// what is left of the total after walking and in-vehicle time.
type Splits struct {
	Walking int
	Bus     int
	Waiting int
}

type EnrichedTrip struct {
	trip.NormalizedTrip
	Reduced reduce.Reduced
	Splits  Splits
	Hour    int // request hour in source wall-clock time

	Ratio             *float64 // transit / rideshare, nil without a rideshare duration
	StraightLineMiles float64
}

type Stats struct {
	Trips       int
	Missing     int // not fetched yet
	Enriched    int
	Unreducible map[reduce.Reason]int
	Malformed   int
	Trimmed     int // over MaxDurationMinutes
}

type Aggregator struct {
	Archive    Loader
	Normalizer *timenorm.Normalizer

	// MaxDurationMinutes drops trips whose transit duration exceeds it. 0 keeps all.
	MaxDurationMinutes int

	Metrics Metrics      // optional
	Logger  *slog.Logger // optional
}

// Aggregate reduces the archived response of every trip. Trips without an
// archived response, or whose response is not usable, are counted and left
// out of the result.
func (a *Aggregator) Aggregate(trips []trip.NormalizedTrip) ([]EnrichedTrip, Stats) {
	stats := Stats{Trips: len(trips), Unreducible: make(map[reduce.Reason]int)}
	out := make([]EnrichedTrip, 0, len(trips))

	for _, t := range trips {
		log := a.logger().With("id", t.ID)

		raw, err := a.Archive.Load(t.ID)
		if errors.Is(err, archive.ErrNotFound) {
			log.Debug("not archived")
			stats.Missing++
			a.observe("missing")
			continue
		} else if err != nil {
			log.Error("archive load failed", "error", err)
			stats.Malformed++
			a.observe(reduce.Malformed.String())
			continue
		}

		res := reduce.Reduce(t.ID, raw, t.AlignedEpoch)
		a.observe(res.Kind.String())
		switch res.Kind {
		case reduce.Unreducible:
			log.Debug("skipping response", "result", res.String())
			stats.Unreducible[res.Reason]++
			continue
		case reduce.Malformed:
			log.Warn("malformed response", "detail", res.Detail)
			stats.Malformed++
			continue
		}

		if a.MaxDurationMinutes > 0 && res.Trip.DurationMinutes > a.MaxDurationMinutes {
			stats.Trimmed++
			continue
		}

		out = append(out, a.enrich(t, res.Trip))
		stats.Enriched++
	}
	return out, stats
}

func (a *Aggregator) enrich(t trip.NormalizedTrip, r reduce.Reduced) EnrichedTrip {
	e := EnrichedTrip{
		NormalizedTrip:    t,
		Reduced:           r,
		Hour:              a.Normalizer.Hour(t.AlignedEpoch),
		StraightLineMiles: t.StraightLineMiles(),
	}

	e.Splits.Walking = r.Minutes(directions.ModeWalking)
	e.Splits.Bus = r.Minutes(directions.ModeTransit)
	e.Splits.Waiting = r.DurationMinutes - (e.Splits.Bus + e.Splits.Walking)

	if t.RideshareMinutes != nil && *t.RideshareMinutes > 0 {
		ratio := float64(r.DurationMinutes) / *t.RideshareMinutes
		e.Ratio = &ratio
	}
	return e
}

func (a *Aggregator) observe(kind string) {
	if a.Metrics != nil {
		a.Metrics.ReduceOutcome(kind)
	}
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
