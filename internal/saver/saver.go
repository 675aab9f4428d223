package saver

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nit-coder/leaflet.offline/internal/enumerate"
	"github.com/nit-coder/leaflet.offline/pkg/tilestore"
)

// Defaults for Options zero values.
const (
	DefaultMaxParallel = 50
	DefaultMinZoom     = 5
)

// Fetcher downloads the bytes of a single tile. *fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Options configures a Saver.
type Options struct {
	// MaxParallel caps the number of downloads in flight.
	// Default: 50
	MaxParallel int

	// MinZoom is the lowest starting zoom accepted in save-what-you-see
	// mode. It blocks accidental whole-world saves.
	// Default: 5
	MinZoom int

	// ConfirmSave, when set, gates every save run.
	ConfirmSave Confirmer

	// ConfirmRemoval, when set, gates every removal.
	ConfirmRemoval Confirmer
}

// Request describes one save run.
type Request struct {
	Bounds enumerate.Bounds

	// ZoomLevels are the explicit levels to save. Used when
	// SaveWhatYouSee is false.
	ZoomLevels []int

	// SaveWhatYouSee saves from CurrentZoom up to MaxZoom instead of
	// using ZoomLevels.
	SaveWhatYouSee bool
	CurrentZoom    int
	MaxZoom        int
}

// Saver owns the bounded-parallel fetch/persist loop, the run status record
// and the event emission points.
type Saver struct {
	layer enumerate.Layer
	store tilestore.Store
	fetch Fetcher
	opts  Options

	obsMu     sync.Mutex
	observers []Observer

	state runState
}

// New creates a Saver. Zero option fields take defaults.
func New(layer enumerate.Layer, store tilestore.Store, fetcher Fetcher, opts Options) *Saver {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.MinZoom <= 0 {
		opts.MinZoom = DefaultMinZoom
	}
	return &Saver{
		layer: layer,
		store: store,
		fetch: fetcher,
		opts:  opts,
	}
}

// Subscribe registers an observer for all subsequent runs.
func (s *Saver) Subscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Status returns a snapshot of the current run status.
func (s *Saver) Status() Status {
	return s.state.snapshot()
}

// Save runs one save: enumerate, confirm, then download and persist every
// tile with at most MaxParallel downloads in flight. It blocks until the
// run completes or fails; progress is reported through subscribed
// observers. The first download or persist failure cancels the run and is
// returned after the remaining workers drain.
func (s *Saver) Save(ctx context.Context, req Request) error {
	zooms, err := zoomLevels(req, s.opts.MinZoom)
	if err != nil {
		return err
	}
	if !req.Bounds.Valid() {
		return &ValidationError{Reason: "bounds out of range"}
	}

	tiles := s.layer.Tiles(req.Bounds, zooms)
	s.state.reset(tiles)

	if ok, err := s.confirm(ctx, s.opts.ConfirmSave); err != nil {
		return err
	} else if !ok {
		return ErrNotConfirmed
	}

	started := s.state.snapshot()
	s.emit(func(o Observer) { o.RunStarted(started) })

	workers := min(len(tiles), s.opts.MaxParallel)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error { return s.worker(gctx) })
	}
	return g.Wait()
}

// worker claims, downloads and persists tiles until the work list is empty
// or the run context is cancelled.
func (s *Saver) worker(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tile, ok := s.state.claim()
		if !ok {
			return nil
		}

		data, err := s.fetch.Get(ctx, tile.URL)
		if err != nil {
			return fmt.Errorf("download tile %s: %w", tile.Key, err)
		}

		snap, all := s.state.tileLoaded()
		s.emit(func(o Observer) { o.TileLoaded(snap) })
		if all {
			s.emit(func(o Observer) { o.AllLoaded(snap) })
		}

		if err := s.store.Put(ctx, tile.Key, data); err != nil {
			return &StorageError{Key: tile.Key, Err: err}
		}

		snap, all = s.state.tileSaved()
		s.emit(func(o Observer) { o.TileSaved(snap) })
		if all {
			s.emit(func(o Observer) { o.AllSaved(snap) })
			s.recountStorage(ctx)
		}
	}
}

// Remove clears the whole tile store after passing the removal gate.
//
// Only the storage size is reset. The run counters keep their last observed
// values until the next save replaces them; Status can report a fully-saved
// run over an empty store.
func (s *Saver) Remove(ctx context.Context) error {
	if ok, err := s.confirm(ctx, s.opts.ConfirmRemoval); err != nil {
		return err
	} else if !ok {
		return ErrNotConfirmed
	}

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}

	snap := s.state.setStorageSize(0)
	s.emit(func(o Observer) { o.TilesRemoved() })
	s.emit(func(o Observer) { o.StorageSizeChanged(snap) })
	return nil
}

// StorageSize returns the number of persisted tiles. A known non-zero size
// is served from the status record without touching the store; the cache is
// replaced by the recount after a completed save and zeroed by removal.
// Counting failures are treated as an empty store, never surfaced.
func (s *Saver) StorageSize(ctx context.Context) int {
	if n, ok := s.state.cachedStorageSize(); ok {
		return n
	}
	return s.recountStorage(ctx)
}

// recountStorage recounts persisted tiles, records the result and emits
// storage-size-changed. Count failures read as zero.
func (s *Saver) recountStorage(ctx context.Context) int {
	n, err := s.store.Count(ctx)
	if err != nil {
		n = 0
	}
	snap := s.state.setStorageSize(n)
	s.emit(func(o Observer) { o.StorageSizeChanged(snap) })
	return n
}

// confirm runs a confirmation gate. A nil confirmer proceeds immediately.
func (s *Saver) confirm(ctx context.Context, c Confirmer) (bool, error) {
	if c == nil {
		return true, nil
	}
	return c.Confirm(ctx, s.state.snapshot())
}

// emit delivers an event to every subscribed observer.
func (s *Saver) emit(fire func(Observer)) {
	s.obsMu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.Unlock()
	for _, o := range observers {
		fire(o)
	}
}

// zoomLevels resolves the levels for a request. Save-what-you-see expands
// from the current zoom up to the request's max zoom and enforces the
// starting-zoom floor before any I/O happens.
func zoomLevels(req Request, minZoom int) ([]int, error) {
	if req.SaveWhatYouSee {
		if req.CurrentZoom < minZoom {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("zoom level %d is below the minimum of %d", req.CurrentZoom, minZoom),
			}
		}
		if req.MaxZoom < req.CurrentZoom {
			return nil, &ValidationError{Reason: "max zoom below current zoom"}
		}
		zooms := make([]int, 0, req.MaxZoom-req.CurrentZoom+1)
		for z := req.CurrentZoom; z <= req.MaxZoom; z++ {
			zooms = append(zooms, z)
		}
		return zooms, nil
	}

	if len(req.ZoomLevels) == 0 {
		return nil, &ValidationError{Reason: "no zoom levels requested"}
	}
	return req.ZoomLevels, nil
}
