// Package progress persists cumulative run counters to a JSON sidecar so an
// interrupted run can resume its tally.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the on-disk shape of the progress sidecar.
type Snapshot struct {
	RunID      string `json:"run_id"`
	Downloaded int    `json:"downloaded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	LastUpdate string `json:"last_update"`
}

// Tracker holds durable download counters. Only the orchestrating goroutine
// mutates it; the mutex covers concurrent snapshot reads from the status
// listener.
type Tracker struct {
	mu         sync.Mutex
	path       string
	runID      string
	downloaded int
	failed     int
	skipped    int
}

// Load reads previous counters if present and stamps a fresh run id.
func Load(path string) (*Tracker, error) {
	t := &Tracker{path: path, runID: uuid.NewString()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read progress file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode progress file: %w", err)
	}
	t.downloaded = snap.Downloaded
	t.failed = snap.Failed
	t.skipped = snap.Skipped
	return t, nil
}

// AddDownloaded advances the downloaded counter.
func (t *Tracker) AddDownloaded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloaded++
}

// AddFailed advances the failed counter.
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
}

// AddSkipped advances the skipped counter.
func (t *Tracker) AddSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped++
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		RunID:      t.runID,
		Downloaded: t.downloaded,
		Failed:     t.failed,
		Skipped:    t.skipped,
		LastUpdate: time.Now().Format(time.RFC3339),
	}
}

// Flush writes the sidecar to disk.
func (t *Tracker) Flush() error {
	data, err := json.MarshalIndent(t.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("write progress file: %w", err)
	}
	return nil
}
