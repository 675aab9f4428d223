package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nit-coder/leaflet.offline/internal/saver"
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to redraw the progress line.
	// Default: 500ms
	UpdateInterval time.Duration
}

// Reporter outputs human-readable save progress. It implements
// saver.Observer; all event methods are safe to call from worker
// goroutines.
type Reporter struct {
	saver.NopObserver

	opts Options

	total  atomic.Int64
	loaded atomic.Int64
	saved  atomic.Int64

	mu        sync.Mutex
	startTime time.Time
	stopCh    chan struct{}
	stopped   bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
	}
}

// Start begins the redraw loop. Call before the save run.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.startTime = time.Now()
	r.mu.Unlock()

	go r.updateLoop()
}

// Stop stops the redraw loop and prints the final line. Safe to call more
// than once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
}

// RunStarted records the run target and prints the header.
func (r *Reporter) RunStarted(s saver.Status) {
	r.total.Store(int64(s.Total))
	r.loaded.Store(0)
	r.saved.Store(0)
	fmt.Fprintf(r.opts.Output, "[tilesave] Saving %d tiles\n", s.Total)
}

func (r *Reporter) TileLoaded(s saver.Status) {
	r.loaded.Store(int64(s.Loaded))
}

func (r *Reporter) TileSaved(s saver.Status) {
	r.saved.Store(int64(s.Saved))
}

func (r *Reporter) StorageSizeChanged(s saver.Status) {
	fmt.Fprintf(r.opts.Output, "\n[tilesave] Store now holds %d tiles\n", s.StorageSize)
}

func (r *Reporter) updateLoop() {
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinal()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	total := r.total.Load()
	if total == 0 {
		return
	}
	loaded := r.loaded.Load()
	saved := r.saved.Load()
	percent := float64(saved) / float64(total) * 100

	fmt.Fprintf(r.opts.Output, "\r[tilesave] Progress: %.1f%% | %d/%d downloaded | %d/%d saved    ",
		percent, loaded, total, saved, total)
}

func (r *Reporter) printFinal() {
	total := r.total.Load()
	saved := r.saved.Load()

	r.mu.Lock()
	duration := time.Since(r.startTime)
	r.mu.Unlock()

	rate := float64(saved) / duration.Seconds()
	fmt.Fprintf(r.opts.Output, "\r[tilesave] Saved %d/%d tiles in %s (%.0f tiles/s)    \n",
		saved, total, formatDuration(duration), rate)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}
