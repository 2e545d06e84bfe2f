package directions

import (
	"net/url"
	"strconv"
	"strings"

	"transit-replay/internal/trip"
)

const redacted = "REDACTED"

// Request is a fully-qualified transit directions request.
type Request struct {
	Origin      trip.Coord
	Destination trip.Coord
	Departure   int64 // epoch seconds

	url string
	key string
}

func (r Request) URL() string { return r.url }

// Redacted is the request URL with the API key masked, safe to log.
func (r Request) Redacted() string {
	if r.key == "" {
		return r.url
	}
	return strings.Replace(r.url, "key="+url.QueryEscape(r.key), "key="+redacted, 1)
}

type Builder struct {
	BaseURL string // e.g. https://maps.googleapis.com/maps/api/directions
	APIKey  string
}

func NewBuilder(baseURL, apiKey string) *Builder {
	return &Builder{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey}
}

// Build encodes origin, destination, transit mode and departure time into a
// JSON directions request.
func (b *Builder) Build(origin, destination trip.Coord, departure int64) Request {
	q := url.Values{
		"origin":         {origin.String()},
		"destination":    {destination.String()},
		"mode":           {string(ModeTransit)},
		"departure_time": {strconv.FormatInt(departure, 10)},
	}
	if b.APIKey != "" {
		q.Set("key", b.APIKey)
	}
	return Request{
		Origin:      origin,
		Destination: destination,
		Departure:   departure,
		url:         b.BaseURL + "/json?" + q.Encode(),
		key:         b.APIKey,
	}
}
