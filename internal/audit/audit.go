// Package audit provides the append-only, queryable audit trail for the
// trading decision core: state transitions, risk vetoes, and
// witness-lifecycle changes. Persistence uses plain encoding/json plus
// os.WriteFile, writing the full trail out on every append.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Record is one append-only audit entry.
type Record struct {
	ID            string    `json:"id"`
	Component     string    `json:"component"`
	From          string    `json:"from,omitempty"`
	To            string    `json:"to,omitempty"`
	Reason        string    `json:"reason"`
	Actor         string    `json:"actor"`
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
}

// Trail is a bounded, in-memory ring buffer of audit records with optional
// disk persistence, safe for concurrent writers.
type Trail struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	records []Record
	cap     int
	next    int
	filled  bool
	dataDir string
}

// NewTrail constructs a Trail holding at most capacity records in memory.
// If dataDir is non-empty, Append also persists the full trail to
// audit.json on every write.
func NewTrail(logger *zap.Logger, capacity int, dataDir string) *Trail {
	if capacity <= 0 {
		capacity = 10000
	}
	t := &Trail{
		logger:  logger,
		records: make([]Record, capacity),
		cap:     capacity,
		dataDir: dataDir,
	}
	t.load()
	return t
}

// Append records one audit entry, assigning an ID and timestamp if unset.
func (t *Trail) Append(r Record) Record {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	t.mu.Lock()
	t.records[t.next] = r
	t.next = (t.next + 1) % t.cap
	if t.next == 0 {
		t.filled = true
	}
	t.mu.Unlock()
	t.save()
	return r
}

// Recent returns up to limit records, most recent first.
func (t *Trail) Recent(limit int) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := t.snapshotLocked()
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]Record, limit)
	for i := 0; i < limit; i++ {
		out[i] = all[len(all)-1-i]
	}
	return out
}

// snapshotLocked returns all valid records in chronological order. Caller
// must hold at least a read lock.
func (t *Trail) snapshotLocked() []Record {
	if !t.filled {
		out := make([]Record, t.next)
		copy(out, t.records[:t.next])
		return out
	}
	out := make([]Record, 0, t.cap)
	out = append(out, t.records[t.next:]...)
	out = append(out, t.records[:t.next]...)
	return out
}

func (t *Trail) save() {
	if t.dataDir == "" {
		return
	}
	t.mu.RLock()
	snap := t.snapshotLocked()
	t.mu.RUnlock()

	bytes, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		t.logger.Error("audit: marshal failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(t.dataDir, 0755); err != nil {
		t.logger.Error("audit: mkdir failed", zap.Error(err))
		return
	}
	path := filepath.Join(t.dataDir, "audit.json")
	if err := os.WriteFile(path, bytes, 0644); err != nil {
		t.logger.Error("audit: write failed", zap.Error(err))
	}
}

func (t *Trail) load() {
	if t.dataDir == "" {
		return
	}
	path := filepath.Join(t.dataDir, "audit.json")
	bytes, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var recs []Record
	if err := json.Unmarshal(bytes, &recs); err != nil {
		t.logger.Error("audit: unmarshal failed", zap.Error(err))
		return
	}
	for _, r := range recs {
		t.records[t.next] = r
		t.next = (t.next + 1) % t.cap
		if t.next == 0 {
			t.filled = true
		}
	}
}
