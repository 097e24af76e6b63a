// Package txlog implements an ambient, append-only audit trail of
// transaction begin/commit/abort events. It is a log-tailing convenience
// for diagnostics, never replayed to reconstruct tree state - crash
// recovery stays a non-goal.
package txlog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/icza/backscanner"
)

// Log is an append-only file of "<rfc3339> <txnID> <op>" lines.
type Log struct {
	path string
	file *os.File
}

// Open opens (creating if necessary) the diagnostics log at path.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Log{path: path, file: f}, nil
}

// Append records a single txn lifecycle event.
func (l *Log) Append(txnID uuid.UUID, op string) error {
	line := fmt.Sprintf("%s %s %s\n", time.Now().UTC().Format(time.RFC3339Nano), txnID, op)
	_, err := l.file.WriteString(line)
	return err
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.file.Close()
}

// TailEvents reverse-scans the log at path and returns the most recent n
// entries, most-recent first.
func TailEvents(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	scanner := backscanner.New(f, int(info.Size()))
	lines := make([]string, 0, n)
	for len(lines) < n {
		line, _, err := scanner.Line()
		if err != nil {
			break
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines, nil
}
