package repository

import (
	"context"
	"sync"

	"roadassist/internal/models"
)

// MemoryActivityStream keeps the most recent entries in a bounded ring.
type MemoryActivityStream struct {
	mu      sync.RWMutex
	entries []*models.ActivityLog
	next    int
	full    bool
}

func NewMemoryActivityStream(capacity int) *MemoryActivityStream {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryActivityStream{entries: make([]*models.ActivityLog, capacity)}
}

func (r *MemoryActivityStream) Append(_ context.Context, entry *models.ActivityLog) error {
	cp := *entry
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = &cp
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *MemoryActivityStream) Recent(_ context.Context, limit int64) ([]*models.ActivityLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = len(r.entries)
	}
	if limit <= 0 || limit > int64(size) {
		limit = int64(size)
	}

	out := make([]*models.ActivityLog, 0, limit)
	idx := r.next
	for i := int64(0); i < limit; i++ {
		idx = (idx - 1 + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out, nil
}
