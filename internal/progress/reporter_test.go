package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nit-coder/leaflet.offline/internal/saver"
)

// syncBuffer guards a bytes.Buffer against concurrent writes from the
// redraw goroutine and event callbacks.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReporterLifecycle(t *testing.T) {
	out := &syncBuffer{}
	r := NewReporter(Options{Output: out, UpdateInterval: 5 * time.Millisecond})

	r.Start()
	r.RunStarted(saver.Status{Total: 3})
	r.TileLoaded(saver.Status{Total: 3, Loaded: 1})
	r.TileSaved(saver.Status{Total: 3, Loaded: 1, Saved: 1})
	r.TileLoaded(saver.Status{Total: 3, Loaded: 2})
	r.TileSaved(saver.Status{Total: 3, Loaded: 2, Saved: 2})
	r.TileLoaded(saver.Status{Total: 3, Loaded: 3})
	r.TileSaved(saver.Status{Total: 3, Loaded: 3, Saved: 3})
	time.Sleep(20 * time.Millisecond)
	r.Stop()

	got := out.String()
	if !strings.Contains(got, "Saving 3 tiles") {
		t.Errorf("missing header in output: %q", got)
	}
	if !strings.Contains(got, "Saved 3/3 tiles") {
		t.Errorf("missing final line in output: %q", got)
	}
}

func TestReporterStorageSizeChanged(t *testing.T) {
	out := &syncBuffer{}
	r := NewReporter(Options{Output: out, UpdateInterval: time.Hour})

	r.StorageSizeChanged(saver.Status{StorageSize: 42})

	if !strings.Contains(out.String(), "42 tiles") {
		t.Errorf("missing store size in output: %q", out.String())
	}
}

func TestReporterStopTwice(t *testing.T) {
	r := NewReporter(Options{Output: &syncBuffer{}, UpdateInterval: time.Hour})
	r.Start()
	r.Stop()
	r.Stop() // must not panic
}
