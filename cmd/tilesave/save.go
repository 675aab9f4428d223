package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/nit-coder/leaflet.offline/internal/config"
	"github.com/nit-coder/leaflet.offline/internal/enumerate"
	"github.com/nit-coder/leaflet.offline/internal/fetch"
	"github.com/nit-coder/leaflet.offline/internal/progress"
	"github.com/nit-coder/leaflet.offline/internal/saver"
	"github.com/nit-coder/leaflet.offline/pkg/tilestore"
)

func runSave(args []string) int {
	fs := flag.NewFlagSet("save", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	urlTemplate := fs.String("url", "", "Tile URL template with {z}/{x}/{y} (and optional {s})")
	subdomains := fs.String("subdomains", "", "Comma-separated subdomains for {s}")
	store := fs.String("store", "", "Store URL (badger:///path, file:///path, mem://)")
	bounds := fs.String("bounds", "", "Bounding box as north,west,south,east")
	zooms := fs.String("zooms", "", "Comma-separated zoom levels to save")
	whatYouSee := fs.Bool("what-you-see", false, "Save from -zoom up to -max-zoom instead of -zooms")
	currentZoom := fs.Int("zoom", 0, "Current zoom level for -what-you-see")
	maxZoom := fs.Int("max-zoom", 0, "Upper zoom bound for -what-you-see")
	parallel := fs.Int("parallel", 0, "Maximum parallel downloads")
	showProgress := fs.Bool("progress", false, "Show progress output")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: tilesave save [options]

Enumerate the tiles covering a bounding box at the requested zoom levels,
download them with bounded parallelism and persist them to the store.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	override := config.Config{
		URLTemplate:    *urlTemplate,
		Store:          *store,
		SaveWhatYouSee: *whatYouSee,
		CurrentZoom:    *currentZoom,
		MaxZoom:        *maxZoom,
		MaxParallel:    *parallel,
		Progress:       *showProgress,
	}
	if *subdomains != "" {
		override.Subdomains = splitCSV(*subdomains)
	}
	if *bounds != "" {
		b, err := config.ParseBounds(*bounds)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -bounds: %v\n", err)
			return ExitInvalidArgs
		}
		override.Bounds = b
	}
	if *zooms != "" {
		z, err := config.ParseZoomLevels(*zooms)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -zooms: %v\n", err)
			return ExitInvalidArgs
		}
		override.ZoomLevels = z
	}
	cfg = cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	ts, err := tilestore.Open(ctx, cfg.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer ts.Close()

	client := fetch.NewClient(fetch.Options{
		Timeout:         cfg.Fetch.Timeout,
		RetryAttempts:   cfg.Fetch.RetryAttempts,
		RetryBackoff:    cfg.Fetch.RetryBackoff,
		RetryMaxBackoff: cfg.Fetch.RetryMaxBackoff,
		UserAgent:       cfg.Fetch.UserAgent,
	})

	layer := enumerate.Layer{
		URLTemplate: cfg.URLTemplate,
		Subdomains:  cfg.Subdomains,
	}
	s := saver.New(layer, ts, client, saver.Options{
		MaxParallel: cfg.MaxParallel,
		MinZoom:     cfg.MinZoom,
	})

	if cfg.Progress {
		reporter := progress.NewReporter(progress.Options{})
		s.Subscribe(reporter)
		reporter.Start()
		defer reporter.Stop()
	}

	err = s.Save(ctx, saver.Request{
		Bounds:         cfg.Bounds,
		ZoomLevels:     cfg.ZoomLevels,
		SaveWhatYouSee: cfg.SaveWhatYouSee,
		CurrentZoom:    cfg.CurrentZoom,
		MaxZoom:        cfg.MaxZoom,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	status := s.Status()
	fmt.Fprintf(os.Stderr, "[tilesave] Saved %d tiles, store holds %d\n", status.Saved, status.StorageSize)
	return ExitSuccess
}

// loadConfig resolves the config layers below the command line: defaults,
// then the optional file, then the environment.
func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[tilesave] Received interrupt, shutting down...")
		cancel()
	}()

	return ctx, cancel
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
