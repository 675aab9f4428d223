package saver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "gocloud.dev/blob/memblob"

	"github.com/nit-coder/leaflet.offline/internal/enumerate"
	"github.com/nit-coder/leaflet.offline/pkg/tilestore"
)

// testLayer produces predictable URLs without touching the network.
var testLayer = enumerate.Layer{URLTemplate: "https://tiles.test/{z}/{x}/{y}.png"}

// A box spanning tiles x 511-512, y 340-341 at zoom 10 (4 tiles).
var testBounds = enumerate.Bounds{North: 51.5074, West: -0.1278, South: 51.3, East: 0.05}

// pointBounds covers exactly one tile per zoom level.
var pointBounds = enumerate.Bounds{North: 51.5074, West: -0.1278, South: 51.5074, East: -0.1278}

// fakeFetcher serves tile bytes from memory and records concurrency.
type fakeFetcher struct {
	mu          sync.Mutex
	delay       time.Duration
	calls       map[string]int
	inFlight    int
	maxInFlight int
	failURL     string
	failErr     error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int)}
}

func (f *fakeFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	fail := f.failURL == url
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			f.done()
			return nil, ctx.Err()
		}
	}
	f.done()

	if fail {
		return nil, f.failErr
	}
	return []byte("tile " + url), nil
}

func (f *fakeFetcher) done() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// recorder captures every event and checks the counter invariant on each
// observed snapshot.
type recorder struct {
	t  *testing.T
	mu sync.Mutex

	events []string
	last   Status
}

func newRecorder(t *testing.T) *recorder {
	return &recorder{t: t}
}

func (r *recorder) record(name string, s Status) {
	if s.Saved > s.Loaded || s.Loaded > s.Total {
		r.t.Errorf("%s: invariant violated: saved=%d loaded=%d total=%d", name, s.Saved, s.Loaded, s.Total)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
	r.last = s
}

func (r *recorder) RunStarted(s Status)         { r.record("run-started", s) }
func (r *recorder) TileLoaded(s Status)         { r.record("tile-loaded", s) }
func (r *recorder) AllLoaded(s Status)          { r.record("all-loaded", s) }
func (r *recorder) TileSaved(s Status)          { r.record("tile-saved", s) }
func (r *recorder) AllSaved(s Status)           { r.record("all-saved", s) }
func (r *recorder) TilesRemoved()               { r.record("tiles-removed", r.snapshot()) }
func (r *recorder) StorageSizeChanged(s Status) { r.record("storage-size-changed", s) }

func (r *recorder) snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == name {
			n++
		}
	}
	return n
}

func (r *recorder) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func memStore(t *testing.T) tilestore.Store {
	t.Helper()
	store, err := tilestore.OpenBlob(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)
	fetcher := newFakeFetcher()
	rec := newRecorder(t)

	s := New(testLayer, store, fetcher, Options{MaxParallel: 2})
	s.Subscribe(rec)

	err := s.Save(ctx, Request{Bounds: testBounds, ZoomLevels: []int{10}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	status := s.Status()
	if status.Total != 4 || status.Loaded != 4 || status.Saved != 4 || status.Remaining != 0 {
		t.Fatalf("final status: %+v", status)
	}
	if status.StorageSize != 4 {
		t.Fatalf("storage size after save = %d, want 4", status.StorageSize)
	}

	for name, want := range map[string]int{
		"run-started":          1,
		"tile-loaded":          4,
		"all-loaded":           1,
		"tile-saved":           4,
		"all-saved":            1,
		"storage-size-changed": 1,
	} {
		if got := rec.count(name); got != want {
			t.Errorf("%s fired %d times, want %d", name, got, want)
		}
	}

	// Persisted bytes are retrievable under the z/x/y key.
	data, err := store.Get(ctx, "10/511/340")
	if err != nil {
		t.Fatalf("Get persisted tile: %v", err)
	}
	if string(data) != "tile https://tiles.test/10/511/340.png" {
		t.Fatalf("persisted bytes: %q", data)
	}
}

func TestSaveBoundsParallelism(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)
	fetcher := newFakeFetcher()
	fetcher.delay = 5 * time.Millisecond

	s := New(testLayer, store, fetcher, Options{MaxParallel: 2})

	if err := s.Save(ctx, Request{Bounds: testBounds, ZoomLevels: []int{10}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	if fetcher.maxInFlight > 2 {
		t.Fatalf("max in-flight downloads = %d, want <= 2", fetcher.maxInFlight)
	}
	if fetcher.maxInFlight < 2 {
		t.Logf("max in-flight downloads = %d (scheduling-dependent)", fetcher.maxInFlight)
	}
}

func TestSaveFreedWorkerClaimsNextTile(t *testing.T) {
	// 3 tiles, 2 workers: the run only completes if a freed worker claims
	// the third tile after finishing its first.
	ctx := context.Background()
	store := memStore(t)
	fetcher := newFakeFetcher()
	fetcher.delay = time.Millisecond
	rec := newRecorder(t)

	// Point box at three zoom levels -> exactly 3 tiles.
	s := New(testLayer, store, fetcher, Options{MaxParallel: 2})
	s.Subscribe(rec)

	err := s.Save(ctx, Request{Bounds: pointBounds, ZoomLevels: []int{10, 11, 12}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	status := s.Status()
	if status.Loaded != 3 || status.Saved != 3 || status.Total != 3 {
		t.Fatalf("final status: %+v", status)
	}
	if got := rec.count("all-saved"); got != 1 {
		t.Fatalf("all-saved fired %d times, want 1", got)
	}
}

func TestSaveClaimsEachTileOnce(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)
	fetcher := newFakeFetcher()

	// Zooms 10-13 over the test box gives a few dozen tiles.
	s := New(testLayer, store, fetcher, Options{MaxParallel: 8})
	if err := s.Save(ctx, Request{Bounds: testBounds, ZoomLevels: []int{10, 11, 12, 13}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	for url, n := range fetcher.calls {
		if n != 1 {
			t.Errorf("tile %s fetched %d times, want 1", url, n)
		}
	}
	if len(fetcher.calls) != s.Status().Total {
		t.Fatalf("fetched %d distinct tiles, want %d", len(fetcher.calls), s.Status().Total)
	}
}

func TestSaveWhatYouSeeZoomFloor(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)
	fetcher := newFakeFetcher()

	s := New(testLayer, store, fetcher, Options{})

	err := s.Save(ctx, Request{
		Bounds:         testBounds,
		SaveWhatYouSee: true,
		CurrentZoom:    4,
		MaxZoom:        7,
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Save: got %v, want *ValidationError", err)
	}
	if fetcher.totalCalls() != 0 {
		t.Fatalf("validation failure performed %d downloads, want 0", fetcher.totalCalls())
	}
}

func TestSaveWhatYouSeeExpandsZoomRange(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)
	fetcher := newFakeFetcher()

	s := New(testLayer, store, fetcher, Options{})

	// Point box from zoom 10 through 12 -> one tile per level.
	err := s.Save(ctx, Request{
		Bounds:         pointBounds,
		SaveWhatYouSee: true,
		CurrentZoom:    10,
		MaxZoom:        12,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := s.Status().Total; got != 3 {
		t.Fatalf("total tiles = %d, want 3", got)
	}
}

func TestSaveRequiresZoomLevels(t *testing.T) {
	s := New(testLayer, memStore(t), newFakeFetcher(), Options{})

	err := s.Save(context.Background(), Request{Bounds: testBounds})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Save: got %v, want *ValidationError", err)
	}
}

func TestSaveConfirmDeclined(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)
	fetcher := newFakeFetcher()

	declined := ConfirmerFunc(func(ctx context.Context, status Status) (bool, error) {
		// The gate sees the freshly reset status.
		if status.Total != 4 || status.Loaded != 0 || status.Saved != 0 {
			t.Errorf("gate status: %+v", status)
		}
		return false, nil
	})

	s := New(testLayer, store, fetcher, Options{ConfirmSave: declined})
	err := s.Save(ctx, Request{Bounds: testBounds, ZoomLevels: []int{10}})
	if !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("Save: got %v, want ErrNotConfirmed", err)
	}

	if fetcher.totalCalls() != 0 {
		t.Fatalf("declined run performed %d downloads, want 0", fetcher.totalCalls())
	}

	// Status keeps its reset values.
	status := s.Status()
	if status.Loaded != 0 || status.Saved != 0 || status.Total != 4 || status.Remaining != 4 {
		t.Fatalf("status after declined run: %+v", status)
	}
}

func TestSaveConfirmError(t *testing.T) {
	gateErr := errors.New("gate broken")
	s := New(testLayer, memStore(t), newFakeFetcher(), Options{
		ConfirmSave: ConfirmerFunc(func(context.Context, Status) (bool, error) {
			return false, gateErr
		}),
	})

	err := s.Save(context.Background(), Request{Bounds: testBounds, ZoomLevels: []int{10}})
	if !errors.Is(err, gateErr) {
		t.Fatalf("Save: got %v, want gate error", err)
	}
}

func TestSaveDownloadFailureAbortsRun(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)
	fetcher := newFakeFetcher()
	fetcher.failURL = "https://tiles.test/10/512/340.png"
	fetcher.failErr = errors.New("connection reset")

	s := New(testLayer, store, fetcher, Options{MaxParallel: 2})
	err := s.Save(ctx, Request{Bounds: testBounds, ZoomLevels: []int{10}})
	if err == nil {
		t.Fatal("Save succeeded despite download failure")
	}
	if !errors.Is(err, fetcher.failErr) {
		t.Fatalf("Save: got %v, want wrapped fetch error", err)
	}
}

// failingStore fails Put for one key.
type failingStore struct {
	tilestore.Store
	failKey string
	err     error
}

func (f *failingStore) Put(ctx context.Context, key string, data []byte) error {
	if key == f.failKey {
		return f.err
	}
	return f.Store.Put(ctx, key, data)
}

func TestSavePersistFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{
		Store:   memStore(t),
		failKey: "10/511/341",
		err:     errors.New("disk full"),
	}

	s := New(testLayer, store, newFakeFetcher(), Options{MaxParallel: 2})
	err := s.Save(ctx, Request{Bounds: testBounds, ZoomLevels: []int{10}})

	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("Save: got %v, want *StorageError", err)
	}
	if serr.Key != "10/511/341" {
		t.Fatalf("StorageError key = %s", serr.Key)
	}
	if !errors.Is(err, store.err) {
		t.Fatalf("StorageError does not wrap the cause: %v", err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)
	for i := 0; i < 10; i++ {
		if err := store.Put(ctx, fmt.Sprintf("12/%d/0", i), []byte{1}); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}

	fetcher := newFakeFetcher()
	rec := newRecorder(t)
	s := New(testLayer, store, fetcher, Options{})
	s.Subscribe(rec)

	if got := s.StorageSize(ctx); got != 10 {
		t.Fatalf("StorageSize = %d, want 10", got)
	}

	if err := s.Remove(ctx); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if got := s.Status().StorageSize; got != 0 {
		t.Fatalf("storage size after removal = %d, want 0", got)
	}
	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("store count after removal = %d, want 0", n)
	}

	// tiles-removed fires before the size change.
	var removal []string
	for _, e := range rec.sequence() {
		if e == "tiles-removed" || e == "storage-size-changed" {
			removal = append(removal, e)
		}
	}
	// First storage-size-changed comes from the StorageSize recount above.
	want := []string{"storage-size-changed", "tiles-removed", "storage-size-changed"}
	if len(removal) != len(want) {
		t.Fatalf("removal events: %v", removal)
	}
	for i := range want {
		if removal[i] != want[i] {
			t.Fatalf("removal events: %v, want %v", removal, want)
		}
	}
}

func TestRemoveKeepsRunCounters(t *testing.T) {
	// Removal resets only the storage size; the last run's counters stay
	// visible until the next save replaces them.
	ctx := context.Background()
	store := memStore(t)
	s := New(testLayer, store, newFakeFetcher(), Options{})

	if err := s.Save(ctx, Request{Bounds: testBounds, ZoomLevels: []int{10}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Remove(ctx); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	status := s.Status()
	if status.StorageSize != 0 {
		t.Fatalf("storage size = %d, want 0", status.StorageSize)
	}
	if status.Loaded != 4 || status.Saved != 4 || status.Total != 4 {
		t.Fatalf("run counters reset by removal: %+v", status)
	}
}

func TestRemoveConfirmDeclined(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)
	if err := store.Put(ctx, "0/0/0", []byte{1}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	s := New(testLayer, store, newFakeFetcher(), Options{
		ConfirmRemoval: ConfirmerFunc(func(context.Context, Status) (bool, error) {
			return false, nil
		}),
	})

	if err := s.Remove(ctx); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("Remove: got %v, want ErrNotConfirmed", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("declined removal cleared the store: count = %d", n)
	}
}

// countingStore counts Count calls.
type countingStore struct {
	tilestore.Store
	counts int
}

func (c *countingStore) Count(ctx context.Context) (int, error) {
	c.counts++
	return c.Store.Count(ctx)
}

func TestStorageSizeCaching(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memStore(t)}
	if err := store.Put(ctx, "0/0/0", []byte{1}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	s := New(testLayer, store, newFakeFetcher(), Options{})

	if got := s.StorageSize(ctx); got != 1 {
		t.Fatalf("StorageSize = %d, want 1", got)
	}
	if got := s.StorageSize(ctx); got != 1 {
		t.Fatalf("StorageSize = %d, want 1", got)
	}
	if store.counts != 1 {
		t.Fatalf("store recounted %d times, want 1 (second call cached)", store.counts)
	}
}

// brokenCountStore fails Count.
type brokenCountStore struct {
	tilestore.Store
}

func (b *brokenCountStore) Count(ctx context.Context) (int, error) {
	return 0, errors.New("count broken")
}

func TestStorageSizeCountFailureReadsAsZero(t *testing.T) {
	s := New(testLayer, &brokenCountStore{Store: memStore(t)}, newFakeFetcher(), Options{})
	if got := s.StorageSize(context.Background()); got != 0 {
		t.Fatalf("StorageSize = %d, want 0 on count failure", got)
	}
}

func TestSaveSingleTile(t *testing.T) {
	// A one-tile run still fires both thresholds exactly once.
	rec := newRecorder(t)
	s := New(testLayer, memStore(t), newFakeFetcher(), Options{})
	s.Subscribe(rec)

	if err := s.Save(context.Background(), Request{Bounds: pointBounds, ZoomLevels: []int{10}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := rec.count("all-saved"); got != 1 {
		t.Fatalf("all-saved fired %d times, want 1", got)
	}
}
