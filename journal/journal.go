// Package journal appends an auditable trail of every run to local
// JSONL files. One file per process open; every entry is fsynced so
// the trail survives a crash mid-run.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCorruptEntry marks a journal line that does not parse. The reader
// has already advanced past it, so callers may skip and keep reading.
var ErrCorruptEntry = errors.New("corrupt journal entry")

// Entries hold full audit results; the bufio default token limit is
// too small for large fleets.
const maxEntryBytes = 1 << 20

// Kind classifies a journal entry.
type Kind string

const (
	KindRunStarted      Kind = "run_started"
	KindResourceAudited Kind = "resource_audited"
	KindResourceFailed  Kind = "resource_failed"
	KindRunCompleted    Kind = "run_completed"
)

// Entry is a single journal line.
type Entry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
	Kind       Kind            `json:"kind"`
	ResourceID string          `json:"resource_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error,omitempty"`
}

// Journal writes audit trail entries to an append-only file.
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
}

// Open creates or opens a journal file in dir. The sequence continues
// from whatever earlier journal files in dir reached.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	// Timestamp in the filename rotates the journal per process.
	filename := fmt.Sprintf("vaaka-%s.journal", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	j := &Journal{
		file:   file,
		writer: bufio.NewWriter(file),
		dir:    dir,
	}

	j.sequence = lastSequence(dir)

	return j, nil
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// Append adds an entry to the journal.
func (j *Journal) Append(kind Kind, resourceID string, payload interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.sequence++

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return j.writeEntry(Entry{
		Timestamp:  time.Now(),
		Sequence:   j.sequence,
		Kind:       kind,
		ResourceID: resourceID,
		Payload:    data,
	})
}

// AppendError adds an entry recording a failure.
func (j *Journal) AppendError(kind Kind, resourceID string, payload interface{}, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.sequence++

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return j.writeEntry(Entry{
		Timestamp:  time.Now(),
		Sequence:   j.sequence,
		Kind:       kind,
		ResourceID: resourceID,
		Payload:    data,
		Error:      cause.Error(),
	})
}

func (j *Journal) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := j.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := j.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return j.file.Sync()
}

// lastSequence scans existing journal files for the highest sequence
// number, so a new journal continues where the previous one stopped.
func lastSequence(dir string) int64 {
	files := listFiles(dir)

	var max int64
	for _, file := range files {
		if seq := maxSequenceInFile(file); seq > max {
			max = seq
		}
	}
	return max
}

func maxSequenceInFile(path string) int64 {
	reader, err := NewReader(path)
	if err != nil {
		return 0
	}
	defer func() { _ = reader.Close() }()

	var max int64
	for {
		entry, err := reader.Next()
		if errors.Is(err, ErrCorruptEntry) {
			// Crash-truncated tail lines do not parse; skip them.
			continue
		}
		if err != nil {
			break
		}
		if entry.Sequence > max {
			max = entry.Sequence
		}
	}
	return max
}

// listFiles returns the journal files in dir, oldest first. The
// timestamped names make lexical order chronological.
func listFiles(dir string) []string {
	files, err := filepath.Glob(filepath.Join(dir, "vaaka-*.journal"))
	if err != nil {
		return nil
	}
	return files
}

// Reader replays one journal file.
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader opens a journal file for reading.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntryBytes)

	return &Reader{
		scanner: scanner,
		file:    file,
	}, nil
}

// Next reads the next entry, returning io.EOF at the end of the file.
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}

	return &entry, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay calls handler for every entry in dir newer than since, in
// file order.
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	for _, file := range listFiles(dir) {
		if err := replayFile(file, since, handler); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string, since time.Time, handler func(*Entry) error) error {
	reader, err := NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		entry, err := reader.Next()
		if errors.Is(err, ErrCorruptEntry) {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if entry.Timestamp.After(since) {
			if err := handler(entry); err != nil {
				return err
			}
		}
	}
}
