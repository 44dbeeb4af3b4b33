package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrShutdown indicates the transport or worker has been shut down.
	ErrShutdown = errors.New("worker shut down")

	// ErrSpawnFailed indicates the worker could not be started.
	ErrSpawnFailed = errors.New("worker spawn failed")
)

// SpawnError describes a failure to start a worker.
type SpawnError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("spawn worker: %v", e.Err)
	}
	return fmt.Sprintf("spawn worker %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Is makes every SpawnError match ErrSpawnFailed.
func (e *SpawnError) Is(target error) bool {
	return target == ErrSpawnFailed
}
