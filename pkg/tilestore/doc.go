// Package tilestore persists raw tile bytes keyed by a stable tile
// identifier ("z/x/y").
//
// The [Store] interface is the persistence contract consumed by the save
// pipeline: count, get, put and clear-all over opaque tile blobs. Two
// implementations are provided:
//
//   - [BlobStore] keeps tiles in any bucket gocloud.dev/blob can open
//     (mem://, file://, and cloud providers when their drivers are linked in).
//   - [BadgerStore] keeps tiles in a local embedded BadgerDB.
//
// [Open] selects the implementation from the URL scheme:
//
//	store, err := tilestore.Open(ctx, "badger:///var/lib/tiles")
//	store, err := tilestore.Open(ctx, "file:///var/lib/tiles")
//	store, err := tilestore.Open(ctx, "mem://")
//
// All implementations are safe for concurrent use; concurrent Puts to
// distinct keys never corrupt the store.
package tilestore
