package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/nit-coder/leaflet.offline/internal/saver"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitValidationFailed = 3
	ExitNotConfirmed     = 4
	ExitStorageError     = 5
	ExitDownloadError    = 6
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "save":
		return runSave(cmdArgs)
	case "remove":
		return runRemove(cmdArgs)
	case "status":
		return runStatus(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: tilesave <command> [options]

Commands:
  save    Download the tiles covering a bounding box and persist them locally
  remove  Delete every persisted tile from the store
  status  Print the number of persisted tiles

Run 'tilesave <command> -h' for command-specific help.`)
}

// exitCode maps a run error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var verr *saver.ValidationError
	if errors.As(err, &verr) {
		return ExitValidationFailed
	}
	if errors.Is(err, saver.ErrNotConfirmed) {
		return ExitNotConfirmed
	}
	var serr *saver.StorageError
	if errors.As(err, &serr) {
		return ExitStorageError
	}
	return ExitDownloadError
}
