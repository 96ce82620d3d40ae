package monitor

import (
	"errors"
	"fmt"
)

// Validation failures returned by Start and item construction.
var (
	ErrEmptyWatchList    = errors.New("watch list is empty")
	ErrInvalidDelayRange = errors.New("min delay exceeds max delay")
	ErrAlreadyRunning    = errors.New("monitor already running")
	ErrUnknownStore      = errors.New("unknown store")
	ErrInvalidURL        = errors.New("invalid item url")
	ErrNoExtractor       = errors.New("no extractor registered for store")
)

// SessionInitError wraps a failure to bring up the rendering backend.
type SessionInitError struct {
	Err error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("rendering session init: %v", e.Err)
}

func (e *SessionInitError) Unwrap() error {
	return e.Err
}
