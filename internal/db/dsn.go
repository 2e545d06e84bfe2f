package db

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrEmptyDSN = errors.New("empty DSN")

// WithDBName points a postgres URL DSN at another database, keeping host,
// credentials and query parameters. Used to write results into
// RESULTS_DB_NAME on the same cluster as DATABASE_URL.
func WithDBName(dsn, database string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", ErrEmptyDSN
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("db.WithDBName: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("db.WithDBName: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}
