package saver

import (
	"errors"
	"fmt"
)

// ErrNotConfirmed is returned when a configured confirmer declines a run.
var ErrNotConfirmed = errors.New("saver: not confirmed")

// ValidationError reports a save request rejected before any network or
// storage activity.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "saver: invalid request: " + e.Reason
}

// StorageError reports a failed tile persist. It aborts the run: with a tile
// never persisted the saved count could not reach the target and the run
// would otherwise stall silently.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("saver: store tile %s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
