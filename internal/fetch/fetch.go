// Package fetch replays normalized trips against the directions API under a
// fixed call-rate ceiling, archiving every response body it receives.
//
// A trip already present in the archive is never requested again, so an
// interrupted batch resumes where it stopped.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"transit-replay/internal/directions"
	"transit-replay/internal/reduce"
	"transit-replay/internal/timenorm"
	"transit-replay/internal/trip"
)

type Archive interface {
	Exists(id int) bool
	Store(id int, raw []byte) error
}

type Metrics interface {
	FetchOutcome(outcome string)
	ObserveLookup(d time.Duration, err error)
}

type Outcome string

const (
	OutcomeSkipped        Outcome = "skipped"
	OutcomeBadCoordinates Outcome = "bad_coordinates"
	OutcomeArchived       Outcome = "archived"
	OutcomeDriving        Outcome = "driving"
	OutcomeNoRoute        Outcome = "no_route"
	OutcomeFailed         Outcome = "failed"
)

// Stats counts trips by outcome. Requested is the number of API calls
// issued, retries included. Archived, Driving and NoRoute responses are all
// written to the archive.
type Stats struct {
	Requested      int
	Skipped        int
	Archived       int
	BadCoordinates int
	Driving        int
	NoRoute        int
	Failed         int
}

// Stored is the number of responses written during the run.
func (s Stats) Stored() int { return s.Archived + s.Driving + s.NoRoute }

func (s *Stats) add(o Outcome) {
	switch o {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeBadCoordinates:
		s.BadCoordinates++
	case OutcomeArchived:
		s.Archived++
	case OutcomeDriving:
		s.Driving++
	case OutcomeNoRoute:
		s.NoRoute++
	case OutcomeFailed:
		s.Failed++
	}
}

const defaultBackoff = time.Second

type Fetcher struct {
	Archive  Archive
	Lookup   directions.Lookup
	Builder  *directions.Builder
	Limiter  *rate.Limiter
	Workers  int
	Retries  int           // extra attempts on 429/500/503
	Backoff  time.Duration // first retry delay, doubled each attempt
	ErrorLog LineWriter
	Progress LineWriter

	Normalizer *timenorm.Normalizer // optional, used for log output only
	Metrics    Metrics              // optional
	Logger     *slog.Logger         // optional

	mu    sync.Mutex
	stats Stats
}

// NewLimiter returns a limiter admitting callsPerSecond calls with no burst.
func NewLimiter(callsPerSecond float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(callsPerSecond), 1)
}

// Run processes trips in order, or through a pool of Workers when Workers > 1.
// Per-trip failures are logged and counted, never returned. Cancelling ctx
// stops dispatch; trips not yet started are left for the next run.
func (f *Fetcher) Run(ctx context.Context, trips []trip.NormalizedTrip) Stats {
	f.mu.Lock()
	f.stats = Stats{}
	f.mu.Unlock()

	workers := max(f.Workers, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range trips {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			f.record(f.process(gctx, t))
			return nil
		})
	}
	_ = g.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *Fetcher) process(ctx context.Context, t trip.NormalizedTrip) Outcome {
	log := f.logger().With("id", t.ID)

	if f.Archive.Exists(t.ID) {
		log.Debug("already archived")
		return OutcomeSkipped
	}

	req := f.Builder.Build(t.Start, t.End, t.AlignedEpoch)
	if t.Degenerate() {
		log.Warn("bad coordinates", "url", req.Redacted())
		f.errorLog("Bad coordinates at ID: "+strconv.Itoa(t.ID), req.Redacted())
		return OutcomeBadCoordinates
	}

	if f.Normalizer != nil {
		log.Debug("requesting", "departure", f.Normalizer.EpochToLocalClock(t.AlignedEpoch))
	}
	raw, err := f.lookup(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("interrupted")
			return ""
		}
		log.Error("request failed", "error", err)
		f.errorLog(fmt.Sprintf("Request failed at ID: %d: %v", t.ID, err))
		return OutcomeFailed
	}

	if err := f.Archive.Store(t.ID, raw); err != nil {
		log.Error("archive failed", "error", err)
		f.errorLog(fmt.Sprintf("Request failed at ID: %d: %v", t.ID, err))
		return OutcomeFailed
	}

	return f.classify(log, t.ID, req, raw)
}

// classify inspects an archived response for immediate feedback. Zero
// results and other unusable statuses are left to the reducer.
func (f *Fetcher) classify(log *slog.Logger, id int, req directions.Request, raw []byte) Outcome {
	resp, err := reduce.Parse(raw)
	if err != nil || resp.FirstLeg() == nil {
		log.Warn("no route", "status", statusOf(resp), "url", req.Redacted())
		f.errorLog("No route at ID: "+strconv.Itoa(id), req.Redacted())
		return OutcomeNoRoute
	}

	for _, m := range reduce.TravelModes(resp) {
		if m == directions.ModeDriving {
			log.Warn("driving directions", "url", req.Redacted())
			f.errorLog(fmt.Sprintf("Route: %d was provided driving directions.", id), req.Redacted())
			return OutcomeDriving
		}
	}

	text := ""
	if d := resp.FirstLeg().Duration; d != nil {
		text = d.Text
	}
	if mins, err := timenorm.ParseDurationText(text); err == nil {
		log.Info("transit duration", "duration", text, "minutes", mins)
	} else {
		log.Info("transit duration", "duration", text)
	}
	if f.Progress != nil {
		if err := f.Progress.WriteLines(strconv.Itoa(id) + "," + text); err != nil {
			log.Error("progress write failed", "error", err)
		}
	}
	return OutcomeArchived
}

func (f *Fetcher) lookup(ctx context.Context, req directions.Request) ([]byte, error) {
	backoff := f.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	for attempt := 0; ; attempt++ {
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		raw, err := f.Lookup.Lookup(ctx, req)
		f.mu.Lock()
		f.stats.Requested++
		f.mu.Unlock()
		if f.Metrics != nil {
			f.Metrics.ObserveLookup(time.Since(start), err)
		}

		if err == nil || attempt >= f.Retries || !canBackoff(err) {
			return raw, err
		}

		f.logger().Debug("retrying", "error", err, "in", backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (f *Fetcher) record(o Outcome) {
	if o == "" {
		return
	}
	f.mu.Lock()
	f.stats.add(o)
	f.mu.Unlock()
	if f.Metrics != nil {
		f.Metrics.FetchOutcome(string(o))
	}
}

func (f *Fetcher) errorLog(lines ...string) {
	w := f.ErrorLog
	if w == nil {
		w = discard{}
	}
	if err := w.WriteLines(lines...); err != nil {
		f.logger().Error("error log write failed", "error", err)
	}
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Only back off on 429, 500 and 503 responses.
func canBackoff(err error) bool {
	var httpErr *directions.HTTPError
	return errors.As(err, &httpErr) && httpErr.Temporary()
}

func statusOf(resp *directions.Response) string {
	if resp == nil {
		return ""
	}
	return resp.Status
}
