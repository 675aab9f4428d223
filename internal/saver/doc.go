// Package saver orchestrates bounded-parallel tile save runs.
//
// A [Saver] ties together a tile enumerator, a download client and a tile
// store. [Saver.Save] enumerates the tiles covering a bounding box at the
// requested zoom levels, then runs a pool of workers that each repeatedly
// claim the next tile from the shared work list, download it and persist it,
// keeping up to MaxParallel downloads in flight until the list drains.
//
// # Status
//
// One mutable status record tracks the run: tiles remaining, tiles targeted,
// tiles downloaded and tiles persisted, plus the persisted-store size. All
// mutations are serialized under a mutex; observers receive value snapshots,
// so Saved <= Loaded <= Total holds in every snapshot ever observed.
//
// # Events
//
// Progress is reported through the [Observer] interface registered with
// [Saver.Subscribe]: run-started, per-tile loaded/saved, the all-loaded and
// all-saved thresholds (each fired exactly once per run), tiles-removed and
// storage-size-changed. Events are emitted synchronously from worker
// goroutines; observers must be fast and safe for concurrent use.
//
// # Failure policy
//
// A failed download or persist cancels the run: the remaining workers finish
// their current tile and exit, and Save returns the error. Transient-network
// retry is the download client's concern, not the orchestrator's. Storage
// recount failures are recovered locally by treating the store as empty.
package saver
