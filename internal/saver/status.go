package saver

import (
	"sync"

	"github.com/nit-coder/leaflet.offline/internal/enumerate"
)

// Status is a point-in-time snapshot of a save run. Snapshots are taken
// under the run-state lock, so Saved <= Loaded <= Total in every snapshot.
type Status struct {
	// StorageSize is the number of tiles currently persisted. It is
	// refreshed after a completed save, after a removal, and on demand;
	// between refreshes it may be stale.
	StorageSize int

	// Remaining is the number of tiles not yet claimed by a worker.
	Remaining int

	// Total is the number of tiles targeted by the current run.
	Total int

	// Loaded is the number of tiles downloaded so far this run.
	Loaded int

	// Saved is the number of tiles persisted so far this run.
	Saved int
}

// runState is the single mutable record shared by all workers of a run.
// Every mutation happens under mu.
type runState struct {
	mu          sync.Mutex
	storageSize int
	remaining   []enumerate.Tile
	total       int
	loaded      int
	saved       int
}

// reset replaces the run counters for a new save. The storage size carries
// over; it describes the store, not the run.
func (st *runState) reset(tiles []enumerate.Tile) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.remaining = append([]enumerate.Tile(nil), tiles...)
	st.total = len(tiles)
	st.loaded = 0
	st.saved = 0
}

// claim removes and returns the next tile from the work list. The claim is
// exclusive: no two workers can receive the same tile.
func (st *runState) claim() (enumerate.Tile, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.remaining) == 0 {
		return enumerate.Tile{}, false
	}
	tile := st.remaining[0]
	st.remaining = st.remaining[1:]
	return tile, true
}

// tileLoaded counts a successful download. The second return value is true
// exactly once per run, on the transition to loaded == total.
func (st *runState) tileLoaded() (Status, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.loaded++
	return st.snapshotLocked(), st.loaded == st.total
}

// tileSaved counts a successful persist. The second return value is true
// exactly once per run, on the transition to saved == total.
func (st *runState) tileSaved() (Status, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.saved++
	return st.snapshotLocked(), st.saved == st.total
}

func (st *runState) setStorageSize(n int) Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.storageSize = n
	return st.snapshotLocked()
}

// cachedStorageSize returns the last known size and whether it can be
// served without a recount (only a known non-zero size can).
func (st *runState) cachedStorageSize() (int, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.storageSize, st.storageSize > 0
}

func (st *runState) snapshot() Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked()
}

func (st *runState) snapshotLocked() Status {
	return Status{
		StorageSize: st.storageSize,
		Remaining:   len(st.remaining),
		Total:       st.total,
		Loaded:      st.loaded,
		Saved:       st.saved,
	}
}
