package saver

import "context"

// Observer receives run lifecycle events. Events are emitted synchronously
// from worker goroutines, so implementations must be fast and safe for
// concurrent use.
type Observer interface {
	// RunStarted fires after the confirmation gate passes, before the
	// first download.
	RunStarted(Status)

	// TileLoaded fires after each successful tile download.
	TileLoaded(Status)

	// AllLoaded fires exactly once per run, when the downloaded count
	// reaches the target.
	AllLoaded(Status)

	// TileSaved fires after each successful tile persist.
	TileSaved(Status)

	// AllSaved fires exactly once per run, when the persisted count
	// reaches the target. A storage recount follows.
	AllSaved(Status)

	// TilesRemoved fires after the store has been cleared.
	TilesRemoved()

	// StorageSizeChanged fires after any storage recount or clear.
	StorageSizeChanged(Status)
}

// NopObserver implements Observer with no-ops. Embed it to implement a
// subset of the interface.
type NopObserver struct{}

func (NopObserver) RunStarted(Status)         {}
func (NopObserver) TileLoaded(Status)         {}
func (NopObserver) AllLoaded(Status)          {}
func (NopObserver) TileSaved(Status)          {}
func (NopObserver) AllSaved(Status)           {}
func (NopObserver) TilesRemoved()             {}
func (NopObserver) StorageSizeChanged(Status) {}

// Confirmer gates a save or removal run. Returning false declines the run;
// the orchestrator imposes no timeout, so a confirmer that never returns
// holds the run open indefinitely (honor ctx to avoid that).
type Confirmer interface {
	Confirm(ctx context.Context, status Status) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, status Status) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, status Status) (bool, error) {
	return f(ctx, status)
}
