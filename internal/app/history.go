package app

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// HistoryLog is the append-only record of completed quiz and mock-exam
// attempts. Entries are never mutated or deleted once appended; the only
// wholesale replacement is the login-time cloud restore.
type HistoryLog struct {
	store KeyValueStore
	log   logrus.FieldLogger
	clock func() time.Time

	mu      sync.RWMutex
	entries []domain.HistoryEntry
}

func NewHistoryLog(store KeyValueStore, log logrus.FieldLogger) *HistoryLog {
	h := &HistoryLog{
		store: store,
		log:   log,
		clock: time.Now,
	}
	loadJSON(store, log, keyHistory, &h.entries)
	return h
}

// NewHistoryLogWithClock is test-only for deterministic timestamps.
func NewHistoryLogWithClock(store KeyValueStore, log logrus.FieldLogger, now func() time.Time) *HistoryLog {
	h := NewHistoryLog(store, log)
	h.clock = now
	return h
}

// Append validates and appends one attempt. A zero timestamp is filled
// with the current time. Score > total is a caller bug and fails loudly.
func (h *HistoryLog) Append(entry domain.HistoryEntry) error {
	if entry.Score > entry.Total {
		return domain.ErrScoreExceedsTotal
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = h.clock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	storeJSON(h.store, h.log, keyHistory, h.entries)
	return nil
}

// Recent returns up to n entries, newest first. The returned slice is a
// copy; calling Recent repeatedly is safe and non-destructive.
func (h *HistoryLog) Recent(n int) []domain.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || len(h.entries) == 0 {
		return nil
	}
	if n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]domain.HistoryEntry, 0, n)
	for i := len(h.entries) - 1; i >= len(h.entries)-n; i-- {
		out = append(out, h.entries[i])
	}
	return out
}

// All returns a copy of the full log in append order.
func (h *HistoryLog) All() []domain.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len reports the number of recorded attempts.
func (h *HistoryLog) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Replace swaps the whole log. It exists solely for the login-time cloud
// restore; nothing else may rewrite history.
func (h *HistoryLog) Replace(entries []domain.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make([]domain.HistoryEntry, len(entries))
	copy(h.entries, entries)
	storeJSON(h.store, h.log, keyHistory, h.entries)
}
