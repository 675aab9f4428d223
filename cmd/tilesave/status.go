package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nit-coder/leaflet.offline/pkg/tilestore"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	store := fs.String("store", "", "Store URL (badger:///path, file:///path, mem://)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: tilesave status [options]

Print the number of tiles currently persisted in the store.

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
	if *store != "" {
		cfg.Store = *store
	}
	if cfg.Store == "" {
		fmt.Fprintln(os.Stderr, "Error: -store is required")
		fs.Usage()
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

	n, err := ts.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Printf("%d tiles\n", n)
	return ExitSuccess
}
