// Package archive stores raw directions responses on disk, one pretty-printed
// <id>.json per trip under a tagged directory. Presence of the file is the
// only record that a trip has been fetched.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// ErrNotFound is returned by Load when no response is archived for the ID.
var ErrNotFound = errors.New("archive: not found")

const (
	ext      = ".json"
	weekFile = "target_week"
)

type Archive struct {
	dir string
}

// New returns an archive rooted at dir. The directory is created on first Store.
func New(dir string) *Archive {
	return &Archive{dir: dir}
}

func (a *Archive) Dir() string { return a.dir }

func (a *Archive) path(id int) string {
	return filepath.Join(a.dir, strconv.Itoa(id)+ext)
}

func (a *Archive) Exists(id int) bool {
	info, err := os.Stat(a.path(id))
	return err == nil && info.Mode().IsRegular()
}

// Store writes raw under id, replacing any previous file. Valid JSON is
// re-indented; anything else is written verbatim.
func (a *Archive) Store(id int, raw []byte) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("archive.Store: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "    "); err != nil {
		buf.Reset()
		buf.Write(raw)
	} else {
		buf.WriteByte('\n')
	}

	if err := a.writeFile(strconv.Itoa(id)+ext, buf.Bytes()); err != nil {
		return fmt.Errorf("archive.Store: %w", err)
	}
	return nil
}

// TargetWeek returns the YYYY-MM-DD target week recorded by SetTargetWeek,
// or "" when the archive has none.
func (a *Archive) TargetWeek() (string, error) {
	b, err := os.ReadFile(filepath.Join(a.dir, weekFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("archive.TargetWeek: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// SetTargetWeek records the week every archived departure was aligned to.
func (a *Archive) SetTargetWeek(date string) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("archive.SetTargetWeek: %w", err)
	}
	if err := a.writeFile(weekFile, []byte(date+"\n")); err != nil {
		return fmt.Errorf("archive.SetTargetWeek: %w", err)
	}
	return nil
}

// writeFile replaces name in the archive directory through a temp file, so
// readers see either the old content or the complete new one.
func (a *Archive) writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(a.dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(a.dir, name)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (a *Archive) Load(id int) ([]byte, error) {
	b, err := os.ReadFile(a.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("archive.Load %d: %w", id, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("archive.Load %d: %w", id, err)
	}
	return b, nil
}

// IDs lists every archived trip ID in ascending order. A missing archive
// directory is an empty archive.
func (a *Archive) IDs() ([]int, error) {
	entries, err := os.ReadDir(a.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("archive.IDs: %w", err)
	}

	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, ext) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
