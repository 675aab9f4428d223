package tilestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned by Get when no tile is stored under the key.
var ErrNotFound = errors.New("tilestore: tile not found")

// Store is the persistence contract for tile blobs.
//
// Implementations must be safe for concurrent use. Each Put targets a
// distinct key per tile; the store, not its callers, is responsible for
// concurrent-write safety.
type Store interface {
	// Count returns the number of persisted tiles.
	Count(ctx context.Context) (int, error)

	// Get returns the bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Clear removes every persisted tile.
	Clear(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}

// Open opens a store from a URL. URLs with the badger scheme open a local
// BadgerDB at the URL path; anything else is passed to gocloud.dev/blob.
func Open(ctx context.Context, rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse store URL: %w", err)
	}

	if u.Scheme == "badger" {
		path := u.Path
		if u.Host != "" {
			// Support badger://relative/path as well as badger:///abs/path.
			path = u.Host + u.Path
		}
		if strings.TrimSpace(path) == "" {
			return nil, errors.New("tilestore: badger URL requires a path")
		}
		return OpenBadger(path)
	}

	return OpenBlob(ctx, rawURL)
}
