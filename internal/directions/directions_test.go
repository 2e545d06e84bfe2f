package directions_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-replay/internal/directions"
	"transit-replay/internal/trip"
)

var (
	home   = trip.Coord{Lat: 41.525, Lon: -87.507}
	school = trip.Coord{Lat: 41.555, Lon: -87.335}
)

func TestBuilder_Build(t *testing.T) {
	b := directions.NewBuilder("https://maps.example.com/api/directions/", "s3cr3t")

	req := b.Build(home, school, 1732000000)

	u, err := url.Parse(req.URL())
	require.NoError(t, err)
	assert.Equal(t, "maps.example.com", u.Host)
	assert.Equal(t, "/api/directions/json", u.Path)
	q := u.Query()
	assert.Equal(t, "41.525,-87.507", q.Get("origin"))
	assert.Equal(t, "41.555,-87.335", q.Get("destination"))
	assert.Equal(t, "transit", q.Get("mode"))
	assert.Equal(t, "1732000000", q.Get("departure_time"))
	assert.Equal(t, "s3cr3t", q.Get("key"))
	assert.Equal(t, int64(1732000000), req.Departure)
}

func TestRequest_Redacted(t *testing.T) {
	req := directions.NewBuilder("https://maps.example.com", "s3cr3t").Build(home, school, 1)

	assert.NotContains(t, req.Redacted(), "s3cr3t")
	assert.Contains(t, req.Redacted(), "key=REDACTED")
	assert.Contains(t, req.URL(), "s3cr3t")
}

func TestClient_Lookup(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","routes":[]}`))
	}))
	defer srv.Close()

	c := directions.NewClient(srv.Client(), time.Second)
	req := directions.NewBuilder(srv.URL, "k").Build(home, school, 42)

	body, err := c.Lookup(context.Background(), req)

	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"OK","routes":[]}`, string(body))
	assert.Equal(t, "42", gotQuery.Get("departure_time"))
}

func TestClient_Lookup_httpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := directions.NewClient(srv.Client(), time.Second)
	req := directions.NewBuilder(srv.URL, "s3cr3t").Build(home, school, 42)

	_, err := c.Lookup(context.Background(), req)

	var httpErr *directions.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.True(t, httpErr.Temporary())
	assert.NotContains(t, err.Error(), "s3cr3t")
}

func TestClient_Lookup_transportErrorRedactsKey(t *testing.T) {
	c := directions.NewClient(nil, 200*time.Millisecond)
	req := directions.NewBuilder("http://127.0.0.1:1", "s3cr3t").Build(home, school, 42)

	_, err := c.Lookup(context.Background(), req)

	require.Error(t, err)
	assert.NotContains(t, err.Error(), "s3cr3t")
}

func TestResponse_FirstLeg(t *testing.T) {
	assert.Nil(t, (&directions.Response{}).FirstLeg())

	r := &directions.Response{Routes: []directions.Route{{Legs: []directions.Leg{{StartAddress: "a"}}}}}
	require.NotNil(t, r.FirstLeg())
	assert.Equal(t, "a", r.FirstLeg().StartAddress)
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, directions.ModeWalking, directions.ParseMode("WALKING"))
	assert.Equal(t, directions.ModeDriving, directions.ParseMode(" Driving "))
}
