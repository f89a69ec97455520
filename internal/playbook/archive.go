package playbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one archived observation line.
type Record struct {
	Timestamp string      `json:"timestamp"`
	LogType   string      `json:"log_type"`
	Regime    string      `json:"regime"`
	Payload   interface{} `json:"payload"`
}

// Archive appends JSONL records under UTC date directories with hourly
// file rotation: <root>/2026-08-24/playbook_14.jsonl.
type Archive struct {
	root string

	mu      sync.Mutex
	file    *os.File
	current string
	now     func() time.Time
}

// NewArchive creates an archive rooted at dir.
func NewArchive(dir string) *Archive {
	return &Archive{root: dir, now: time.Now}
}

// Write appends one record to the current hourly file, rotating when
// the UTC hour rolls over.
func (a *Archive) Write(logType, regime string, payload interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UTC()
	path := filepath.Join(a.root, now.Format("2006-01-02"), fmt.Sprintf("playbook_%02d.jsonl", now.Hour()))
	if path != a.current {
		if a.file != nil {
			a.file.Close()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create archive dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open archive file: %w", err)
		}
		a.file = f
		a.current = path
	}

	line, err := json.Marshal(Record{
		Timestamp: now.Format(time.RFC3339),
		LogType:   logType,
		Regime:    regime,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal archive record: %w", err)
	}

	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append archive record: %w", err)
	}
	return nil
}

// Close closes the current archive file.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	a.current = ""
	return err
}
