package engine

import (
	"sync/atomic"
	"time"

	"sda-calculator/core/pricing"
)

// SnapshotHolder serves the current snapshot and lets a refresher swap in
// a new one. Readers always see a fully built snapshot.
type SnapshotHolder struct {
	current  atomic.Pointer[pricing.Snapshot]
	loadedAt atomic.Int64
}

// NewSnapshotHolder creates a holder, optionally seeded with a snapshot
func NewSnapshotHolder(initial *pricing.Snapshot) *SnapshotHolder {
	h := &SnapshotHolder{}
	if initial != nil {
		h.Store(initial)
	}
	return h
}

// Snapshot returns the current snapshot, nil before the first load
func (h *SnapshotHolder) Snapshot() *pricing.Snapshot {
	return h.current.Load()
}

// Store replaces the current snapshot and reports whether its content changed
func (h *SnapshotHolder) Store(snap *pricing.Snapshot) bool {
	if snap == nil {
		return false
	}
	prev := h.current.Swap(snap)
	h.loadedAt.Store(time.Now().UnixNano())
	return prev == nil || prev.ContentHash != snap.ContentHash
}

// LoadedAt returns when the current snapshot was stored
func (h *SnapshotHolder) LoadedAt() time.Time {
	ns := h.loadedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
