// Package audit provides the append-only record of every policy evaluation.
// The log is process-wide state with no deletion path: it is the single
// source of truth for what was attempted during a session.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GenesisHash is the prev_hash for the first entry in a new audit log file.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Record is one audit entry. All fields are flat primitives so json.Marshal
// field order is deterministic and line hashes are reproducible.
type Record struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Operation string `json:"operation"`
	Verdict   string `json:"verdict"`
	Rule      string `json:"rule"`
	Risk      int    `json:"risk"`
	Reason    string `json:"reason"`
	Domain    string `json:"domain,omitempty"`
	PrevHash  string `json:"prev_hash,omitempty"`
}

// Log is an append-only audit log. Records are always kept in memory for the
// life of the process; when opened with a path they are additionally written
// as hash-chained JSONL lines, synced to disk before Record returns.
type Log struct {
	mu       sync.Mutex
	records  []Record
	file     *os.File
	prevHash string
}

// NewLog creates an in-memory audit log.
func NewLog() *Log {
	return &Log{}
}

// Open creates an audit log mirrored to the JSONL file at path.
// An existing file is appended to, recovering the chain tail from its last line.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	if last, err := lastLine(path); err != nil {
		return nil, err
	} else if len(last) > 0 {
		prevHash = HashLine(last)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	return &Log{file: file, prevHash: prevHash}, nil
}

// Record appends rec to the log. It fills in the timestamp when empty and,
// for file-backed logs, chains and syncs the line before returning so the
// entry is durable by the time the caller sees the decision.
func (l *Log) Record(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}

	if l.file == nil {
		l.records = append(l.records, rec)
		return nil
	}

	rec.PrevHash = l.prevHash
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	l.prevHash = HashLine(line)
	l.records = append(l.records, rec)
	return nil
}

// Records returns a snapshot copy of all recorded entries.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Size returns the number of recorded entries.
func (l *Log) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Close flushes and closes the underlying file, if any.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
