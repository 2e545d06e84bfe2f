package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-replay/internal/metrics"
)

func TestCollector_counters(t *testing.T) {
	c := metrics.NewCollector(25, 2)

	c.FetchOutcome("archived")
	c.FetchOutcome("archived")
	c.FetchOutcome("skipped")
	c.ObserveLookup(20*time.Millisecond, nil)
	c.ObserveLookup(30*time.Millisecond, errors.New("boom"))
	c.ReduceOutcome("ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.FetchOutcomes.WithLabelValues("archived")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FetchOutcomes.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LookupErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ReduceOutcomes.WithLabelValues("ok")))
	assert.Equal(t, 25.0, testutil.ToFloat64(c.CallRate))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Workers))
}

func TestCollector_Router(t *testing.T) {
	c := metrics.NewCollector(10, 1)
	c.FetchOutcome("driving")
	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `replay_fetch_outcomes_total{outcome="driving"} 1`)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
