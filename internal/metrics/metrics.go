package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	TripsLoaded     prometheus.Gauge
	TripsNormalized prometheus.Gauge

	FetchOutcomes  *prometheus.CounterVec // outcome label: archived|skipped|bad_coordinates|driving|no_route|failed
	LookupDuration prometheus.Histogram
	LookupErrors   prometheus.Counter

	ReduceOutcomes *prometheus.CounterVec // kind label: ok|unreducible|malformed|missing

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	CallRate prometheus.Gauge // calls per second ceiling
	Workers  prometheus.Gauge
}

func NewCollector(callRate float64, workers int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TripsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_trips_loaded",
			Help: "Number of trip rows read from the input table.",
		}),
		TripsNormalized: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_trips_normalized",
			Help: "Number of trips with a valid request time.",
		}),
		FetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_fetch_outcomes_total",
			Help: "Trips processed by the fetcher, by outcome.",
		}, []string{"outcome"}),
		LookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_lookup_duration_seconds",
			Help:    "Duration of directions API calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		LookupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_lookup_errors_total",
			Help: "Directions API calls that failed at the transport or HTTP level.",
		}),
		ReduceOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_reduce_outcomes_total",
			Help: "Archived responses reduced, by result kind.",
		}, []string{"kind"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		CallRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_call_rate_per_second",
			Help: "Configured directions API call ceiling.",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_fetch_workers",
			Help: "Configured fetch worker count.",
		}),
	}

	// Register
	reg.MustRegister(
		c.TripsLoaded, c.TripsNormalized,
		c.FetchOutcomes, c.LookupDuration, c.LookupErrors,
		c.ReduceOutcomes,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.CallRate, c.Workers,
	)

	c.CallRate.Set(callRate)
	c.Workers.Set(float64(workers))

	return c
}

// FetchOutcome counts one fetcher outcome.
func (c *Collector) FetchOutcome(outcome string) { c.FetchOutcomes.WithLabelValues(outcome).Inc() }

// ObserveLookup records one directions API call.
func (c *Collector) ObserveLookup(d time.Duration, err error) {
	c.LookupDuration.Observe(d.Seconds())
	if err != nil {
		c.LookupErrors.Inc()
	}
}

// ReduceOutcome counts one reduction result.
func (c *Collector) ReduceOutcome(kind string) { c.ReduceOutcomes.WithLabelValues(kind).Inc() }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Router exposes /metrics and /healthz.
func (c *Collector) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", c.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	return r
}

// Serve starts an HTTP server exposing Router on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	slog.Info("metrics listening", "addr", addr)
	return srv
}
