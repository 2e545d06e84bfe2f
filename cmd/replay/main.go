package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"transit-replay/internal/aggregate"
	"transit-replay/internal/archive"
	"transit-replay/internal/config"
	"transit-replay/internal/db"
	"transit-replay/internal/directions"
	"transit-replay/internal/fetch"
	"transit-replay/internal/metrics"
	"transit-replay/internal/publisher"
	"transit-replay/internal/timenorm"
	"transit-replay/internal/trip"
)

var (
	flagVerbose = flag.Bool("verbose", false, "show DEBUG logging")
	flagEnv     = flag.String("env", ".env", "path to .env file")
)

const histogramBins = 16

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] fetch|reduce|run\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "run"
	}
	switch command {
	case "fetch", "reduce", "run":
	default:
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration from .env and environment
	cfg, err := config.Load(*flagEnv)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	if err := run(command, cfg); err != nil {
		slog.Error("replay failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	if *flagVerbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func run(command string, cfg *config.Config) error {
	// The key is checked before anything touches the network.
	var apiKey string
	if command != "reduce" {
		var err error
		if apiKey, err = config.LoadAPIKey(cfg.APIKeyFile); err != nil {
			return err
		}
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.APICallRate, cfg.FetchWorkers)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := pinTargetWeek(cfg, archive.New(cfg.ArchiveDir()), command != "reduce"); err != nil {
		return err
	}

	n := timenorm.New(cfg.SourceUTCOffset, cfg.LocalUTCOffset)
	trips, err := loadTrips(cfg, n, mcol)
	if err != nil {
		return err
	}
	slog.Info("trips loaded",
		"file", cfg.RidesFile,
		"trips", len(trips),
		"target_week", cfg.TargetWeek.Format(config.DateLayout),
		"archive", cfg.ArchiveDir())

	if command == "fetch" || command == "run" {
		if err := runFetch(ctx, cfg, apiKey, n, trips, mcol); err != nil {
			return err
		}
		if ctx.Err() != nil {
			slog.Warn("interrupted, archive is ready to resume")
			return nil
		}
	}
	if command == "reduce" || command == "run" {
		return runReduce(ctx, cfg, n, trips, mcol)
	}
	return nil
}

var errWeekConflict = errors.New("TARGET_WEEK conflicts with archive")

// pinTargetWeek makes every run over an archive use the week its responses
// were fetched for. The first fetch records cfg.TargetWeek; later runs adopt
// the recorded week and fail when TARGET_WEEK names a different one.
func pinTargetWeek(cfg *config.Config, a *archive.Archive, record bool) error {
	want := cfg.TargetWeek.Format(config.DateLayout)
	pinned, err := a.TargetWeek()
	if err != nil {
		return err
	}

	switch {
	case pinned == "":
		if record {
			return a.SetTargetWeek(want)
		}
		if !cfg.TargetWeekSet {
			slog.Warn("archive has no target week and TARGET_WEEK is not set, departures may not match the fetch run", "archive", a.Dir())
		}
		return nil
	case pinned == want:
		return nil
	case cfg.TargetWeekSet:
		return fmt.Errorf("%w: TARGET_WEEK is %s, %s was fetched for %s", errWeekConflict, want, a.Dir(), pinned)
	}

	t, err := config.ParseTargetWeek(pinned, cfg.LocalZone())
	if err != nil {
		return fmt.Errorf("target week of %s: %w", a.Dir(), err)
	}
	slog.Debug("using archive target week", "target_week", pinned)
	cfg.TargetWeek = t
	return nil
}

func loadTrips(cfg *config.Config, n *timenorm.Normalizer, mcol *metrics.Collector) ([]trip.NormalizedTrip, error) {
	raw, err := trip.ReadFile(cfg.RidesFile)
	if err != nil {
		return nil, fmt.Errorf("read rides: %w", err)
	}
	trips, errs := trip.Normalize(raw, n, cfg.TargetWeek.Unix())
	for _, err := range errs {
		slog.Warn("skipping trip", "error", err)
	}
	if mcol != nil {
		mcol.TripsLoaded.Set(float64(len(raw)))
		mcol.TripsNormalized.Set(float64(len(trips)))
	}
	return trips, nil
}

func runFetch(ctx context.Context, cfg *config.Config, apiKey string, n *timenorm.Normalizer, trips []trip.NormalizedTrip, mcol *metrics.Collector) error {
	errLog, err := fetch.NewFileLog(cfg.ErrorLog)
	if err != nil {
		return err
	}
	defer errLog.Close()
	progress, err := fetch.NewCSVLog(cfg.ProgressFile, "ID,Time")
	if err != nil {
		return err
	}
	defer progress.Close()

	f := &fetch.Fetcher{
		Archive:    archive.New(cfg.ArchiveDir()),
		Lookup:     directions.NewClient(nil, cfg.RequestTimeout),
		Builder:    directions.NewBuilder(cfg.DirectionsURL, apiKey),
		Limiter:    fetch.NewLimiter(cfg.APICallRate),
		Workers:    cfg.FetchWorkers,
		Retries:    cfg.FetchRetries,
		ErrorLog:   errLog,
		Progress:   progress,
		Normalizer: n,
	}
	if mcol != nil {
		f.Metrics = mcol
	}

	start := time.Now()
	stats := f.Run(ctx, trips)
	slog.Info("fetch finished",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"requested", stats.Requested,
		"stored", stats.Stored(),
		"skipped", stats.Skipped,
		"archived", stats.Archived,
		"bad_coordinates", stats.BadCoordinates,
		"driving", stats.Driving,
		"no_route", stats.NoRoute,
		"failed", stats.Failed)
	return nil
}

func runReduce(ctx context.Context, cfg *config.Config, n *timenorm.Normalizer, trips []trip.NormalizedTrip, mcol *metrics.Collector) error {
	cached := archive.NewCached(archive.New(cfg.ArchiveDir()), max(len(trips), 1))
	agg := &aggregate.Aggregator{
		Archive:            cached,
		Normalizer:         n,
		MaxDurationMinutes: cfg.MaxDurationMinutes,
	}
	if mcol != nil {
		agg.Metrics = mcol
	}

	enriched, stats := agg.Aggregate(trips)
	summary := aggregate.Summarize(enriched)
	slog.Info("reduce finished",
		"trips", stats.Trips,
		"enriched", stats.Enriched,
		"missing", stats.Missing,
		"unreducible", stats.Unreducible,
		"malformed", stats.Malformed,
		"trimmed", stats.Trimmed)
	slog.Info("summary",
		"mean_transit_min", summary.MeanDuration,
		"mean_walking_min", summary.MeanWalking,
		"mean_bus_min", summary.MeanBus,
		"mean_waiting_min", summary.MeanWaiting,
		"with_rideshare", summary.WithRideshare,
		"mean_rideshare_min", summary.MeanRideshare,
		"mean_ratio", summary.MeanRatio)
	for _, b := range aggregate.Histogram(enriched, histogramBins) {
		slog.Debug("duration histogram", "low", b.Low, "high", b.High, "trips", b.Trips)
	}
	hits, misses := cached.Stats()
	slog.Debug("archive cache", "hits", hits, "misses", misses)

	if err := writeFileAtomic(cfg.OutputFile, func(w io.Writer) error {
		return aggregate.WriteCSV(w, enriched)
	}); err != nil {
		return err
	}
	if err := writeFileAtomic(cfg.HourlyFile, func(w io.Writer) error {
		return aggregate.WriteHourlyCSV(w, aggregate.HourlySplits(enriched))
	}); err != nil {
		return err
	}
	slog.Info("results written", "trips", cfg.OutputFile, "hourly", cfg.HourlyFile)

	record := db.NewRun(cfg.ArchiveTag, cfg.TargetWeek, stats, summary)
	if cfg.DatabaseURL != "" {
		if err := storeResults(ctx, cfg, record, enriched); err != nil {
			return err
		}
	}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, *flagVerbose, wrapPublisherMetrics(mcol))
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer pub.Close()
		if err := pub.PublishAll(record.ID.String(), enriched); err != nil {
			return err
		}
		slog.Info("trips published", "prefix", cfg.NATSSubjectPrefix, "trips", len(enriched))
	}
	return nil
}

func storeResults(ctx context.Context, cfg *config.Config, record db.Run, enriched []aggregate.EnrichedTrip) error {
	dsn := cfg.DatabaseURL
	if cfg.ResultsDBName != "" {
		var err error
		if dsn, err = db.WithDBName(dsn, cfg.ResultsDBName); err != nil {
			return fmt.Errorf("compose DSN: %w", err)
		}
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	if err := db.Migrate(ctx, sqlDB); err != nil {
		return err
	}

	if prev, err := db.LatestRun(ctx, sqlDB, cfg.ArchiveTag); err == nil {
		slog.Info("previous run", "id", prev.ID, "started_at", prev.StartedAt, "enriched", prev.Enriched, "mean_transit_min", prev.MeanDuration)
	} else if !errors.Is(err, db.ErrNoRun) {
		return err
	}

	if err := db.SaveRun(ctx, sqlDB, record, enriched); err != nil {
		return err
	}
	slog.Info("results stored", "run_id", record.ID, "trips", len(enriched))
	return nil
}

// writeFileAtomic writes path through a temporary file in the same
// directory, so readers never see a partial file.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()  { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc() { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
