package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"

	"github.com/nit-coder/leaflet.offline/internal/enumerate"
	"github.com/nit-coder/leaflet.offline/internal/saver"
	"github.com/nit-coder/leaflet.offline/pkg/tilestore"
)

func runRemove(args []string) int {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	store := fs.String("store", "", "Store URL (badger:///path, file:///path, mem://)")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: tilesave remove [options]

Delete every persisted tile from the store. Prompts for confirmation
unless -yes is given.

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

	opts := saver.Options{}
	if !*yes {
		opts.ConfirmRemoval = saver.ConfirmerFunc(promptRemoval)
	}

	s := saver.New(enumerate.Layer{}, ts, nil, opts)

	// Count up front so the prompt can show what is about to go.
	n := s.StorageSize(ctx)

	if err := s.Remove(ctx); err != nil {
		if errors.Is(err, saver.ErrNotConfirmed) {
			fmt.Fprintln(os.Stderr, "[tilesave] Removal cancelled")
			return ExitNotConfirmed
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	fmt.Fprintf(os.Stderr, "[tilesave] Removed %d tiles\n", n)
	return ExitSuccess
}

// promptRemoval asks for confirmation on the terminal. Declining is not an
// error; the removal is simply not confirmed.
func promptRemoval(ctx context.Context, status saver.Status) (bool, error) {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Remove all %d saved tiles", status.StorageSize),
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		return false, nil
	}
	return true, nil
}
