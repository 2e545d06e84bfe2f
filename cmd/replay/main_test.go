package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-replay/internal/archive"
	"transit-replay/internal/config"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transit_durations.csv")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	err := writeFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "new\n")
		return err
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomic_failureKeepsOld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "time_splits_by_hour.csv")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	err := writeFileAtomic(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return errors.New("boom")
	})
	require.Error(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(got))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func weekConfig(t *testing.T, date string, explicit bool) *config.Config {
	t.Helper()
	cfg := &config.Config{LocalUTCOffset: -5}
	week, err := config.ParseTargetWeek(date, cfg.LocalZone())
	require.NoError(t, err)
	cfg.TargetWeek = week
	cfg.TargetWeekSet = explicit
	return cfg
}

func TestPinTargetWeek(t *testing.T) {
	a := archive.New(filepath.Join(t.TempDir(), "2023_archive"))

	// A reduce over an empty archive records nothing.
	require.NoError(t, pinTargetWeek(weekConfig(t, "2024-11-27", false), a, false))
	pinned, err := a.TargetWeek()
	require.NoError(t, err)
	assert.Empty(t, pinned)

	// The first fetch records its week.
	require.NoError(t, pinTargetWeek(weekConfig(t, "2024-11-20", true), a, true))
	pinned, err = a.TargetWeek()
	require.NoError(t, err)
	assert.Equal(t, "2024-11-20", pinned)

	// A later reduce with the defaulted week adopts the fetched one.
	cfg := weekConfig(t, "2024-11-27", false)
	require.NoError(t, pinTargetWeek(cfg, a, false))
	assert.Equal(t, "2024-11-20", cfg.TargetWeek.Format(config.DateLayout))
	assert.Equal(t, 12, cfg.TargetWeek.Hour())

	// A resumed fetch does too, without rewriting the record.
	cfg = weekConfig(t, "2024-12-04", false)
	require.NoError(t, pinTargetWeek(cfg, a, true))
	assert.Equal(t, time.Wednesday, cfg.TargetWeek.Weekday())
	assert.Equal(t, 20, cfg.TargetWeek.Day())
	pinned, err = a.TargetWeek()
	require.NoError(t, err)
	assert.Equal(t, "2024-11-20", pinned)

	// An explicit different week is refused.
	err = pinTargetWeek(weekConfig(t, "2024-11-27", true), a, false)
	assert.ErrorIs(t, err, errWeekConflict)

	// The same explicit week is accepted.
	assert.NoError(t, pinTargetWeek(weekConfig(t, "2024-11-20", true), a, true))
}
