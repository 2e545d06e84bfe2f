package directions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Lookup issues a directions request and returns the raw response body.
type Lookup interface {
	Lookup(ctx context.Context, req Request) ([]byte, error)
}

// HTTPError is returned for 4xx/5xx responses; nothing is archived for them.
type HTTPError struct {
	URL, Status string
	StatusCode  int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: %s", e.URL, e.Status)
}

// Temporary reports whether retrying later may succeed.
func (e *HTTPError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

const maxResponseBytes = 16 << 20

type Client struct {
	http *http.Client
}

func NewClient(client *http.Client, timeout time.Duration) *Client {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Client{http: client}
}

func (c *Client) Lookup(ctx context.Context, req Request) ([]byte, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL(), nil)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(r)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = req.Redacted()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 600 {
		io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{URL: req.Redacted(), Status: resp.Status, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}
