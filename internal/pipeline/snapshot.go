package pipeline

import (
	"sync"

	"github.com/fenceline/catsentry/internal/vision"
)

// SnapshotHolder keeps the most recent raw frame captured in drawing mode,
// which the region editor fetches as its still background. Frames are
// replaced wholesale and never drawn on after they are stored, so readers
// may use the returned frame without copying.
type SnapshotHolder struct {
	mu    sync.RWMutex
	frame *vision.Frame
}

// NewSnapshotHolder creates an empty holder.
func NewSnapshotHolder() *SnapshotHolder {
	return &SnapshotHolder{}
}

// SetSnapshot stores f as the current snapshot.
func (h *SnapshotHolder) SetSnapshot(f *vision.Frame) {
	h.mu.Lock()
	h.frame = f
	h.mu.Unlock()
}

// Snapshot returns the current snapshot, or nil when none has been
// captured yet. The returned frame must be treated as read-only.
func (h *SnapshotHolder) Snapshot() *vision.Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frame
}
