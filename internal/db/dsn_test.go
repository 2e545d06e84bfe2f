package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDBName(t *testing.T) {
	tests := []struct {
		dsn, name, want string
	}{
		{"postgres://u:p@localhost:5432/postgres?sslmode=disable", "replay_results", "postgres://u:p@localhost:5432/replay_results?sslmode=disable"},
		{"postgresql://localhost/old", "/new", "postgresql://localhost/new"},
		{"u@localhost:5432", "results", "postgres://u@localhost:5432/results"},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := WithDBName(tt.dsn, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := WithDBName("  ", "x")
	assert.ErrorIs(t, err, ErrEmptyDSN)

	_, err = WithDBName("mysql://localhost/db", "x")
	assert.ErrorContains(t, err, "unsupported scheme")
}
