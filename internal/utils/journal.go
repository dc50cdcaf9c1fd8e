package utils

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// JournalEntry is one create-order submission
type JournalEntry struct {
	Time            time.Time `json:"time"`
	IdempotencyKey  string    `json:"idempotencyKey,omitempty"`
	Outcome         string    `json:"outcome"`
	SagaExecutionID string    `json:"sagaExecutionId,omitempty"`
	OrderID         string    `json:"orderId,omitempty"`
	OrderNumber     string    `json:"orderNumber,omitempty"`
	Message         string    `json:"message,omitempty"`
}

// Journal appends submissions to a timestamped JSON-lines file so that
// outstanding orders can be reconciled later
type Journal struct {
	file      *os.File
	mu        sync.Mutex
	timestamp string
	path      string
}

// NewJournal creates <dir>/<date>/submissions_<time>.jsonl
func NewJournal(dir string) (*Journal, error) {
	now := time.Now()

	dateDir := filepath.Join(dir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	timestamp := now.Format("15-04-05")
	filePath := filepath.Join(dateDir, fmt.Sprintf("submissions_%s.jsonl", timestamp))

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	return &Journal{
		file:      file,
		timestamp: timestamp,
		path:      filePath,
	}, nil
}

// Record writes one entry and flushes it to disk
func (j *Journal) Record(entry JournalEntry) error {
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return j.file.Sync()
}

// Timestamp returns the timestamp used in the file name
func (j *Journal) Timestamp() string {
	return j.timestamp
}

// Path returns the journal file path
func (j *Journal) Path() string {
	return j.path
}

// Close closes the journal file
func (j *Journal) Close() error {
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

// ReadJournal loads every entry of a journal file, skipping blank lines
func ReadJournal(path string) ([]JournalEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e JournalEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

// JournalOrderIDs returns the distinct order IDs recorded in entries, in first-seen order
func JournalOrderIDs(entries []JournalEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.OrderID == "" {
			continue
		}
		if _, ok := seen[e.OrderID]; ok {
			continue
		}
		seen[e.OrderID] = struct{}{}
		ids = append(ids, e.OrderID)
	}
	return ids
}

// LatestJournal finds the most recent journal file under dir
func LatestJournal(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*", "submissions_*.jsonl"))
	if err != nil {
		return "", fmt.Errorf("failed to search journals: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no journal found under %s", dir)
	}
	// date directory and HH-MM-SS name both sort lexically
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
