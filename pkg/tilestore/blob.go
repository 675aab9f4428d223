package tilestore

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// BlobStore persists tiles in a gocloud.dev bucket, one object per tile.
type BlobStore struct {
	bucket *blob.Bucket
}

// OpenBlob opens a bucket-backed store from a gocloud.dev bucket URL.
// The caller must link in the driver for the URL scheme (memblob, fileblob,
// s3blob, ...).
func OpenBlob(ctx context.Context, bucketURL string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	return NewBlobStore(bucket), nil
}

// NewBlobStore wraps an already-open bucket. Close closes the bucket.
func NewBlobStore(bucket *blob.Bucket) *BlobStore {
	return &BlobStore{bucket: bucket}
}

// Count returns the number of stored tiles by listing the bucket.
func (s *BlobStore) Count(ctx context.Context) (int, error) {
	iter := s.bucket.List(nil)
	n := 0
	for {
		_, err := iter.Next(ctx)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("list tiles: %w", err)
		}
		n++
	}
}

// Get returns the tile bytes stored under key.
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read tile %s: %w", key, err)
	}
	return data, nil
}

// Put stores data under key.
func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return fmt.Errorf("write tile %s: %w", key, err)
	}
	return nil
}

// Clear deletes every object in the bucket.
func (s *BlobStore) Clear(ctx context.Context) error {
	iter := s.bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list tiles: %w", err)
		}
		if err := s.bucket.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("delete tile %s: %w", obj.Key, err)
		}
	}
}

// Close closes the underlying bucket.
func (s *BlobStore) Close() error {
	return s.bucket.Close()
}
