package fetch

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// LineWriter appends groups of lines as one entry.
type LineWriter interface {
	WriteLines(lines ...string) error
}

// FileLog is an append-only text file safe for concurrent writers.
type FileLog struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileLog(path string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fetch.NewFileLog: %w", err)
	}
	return &FileLog{f: f}, nil
}

// NewCSVLog is NewFileLog for a CSV file, writing header first when the file
// is empty.
func NewCSVLog(path, header string) (*FileLog, error) {
	l, err := NewFileLog(path)
	if err != nil {
		return nil, err
	}
	info, err := l.f.Stat()
	if err != nil {
		l.f.Close()
		return nil, fmt.Errorf("fetch.NewCSVLog: %w", err)
	}
	if info.Size() == 0 {
		if err := l.WriteLines(header); err != nil {
			l.f.Close()
			return nil, fmt.Errorf("fetch.NewCSVLog: %w", err)
		}
	}
	return l, nil
}

func (l *FileLog) WriteLines(lines ...string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.f.WriteString(b.String())
	return err
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

type discard struct{}

func (discard) WriteLines(...string) error { return nil }
