package common

import "errors"

var (
	// ErrTimedOut is returned when a wait for a frame exceeds the
	// configured default timeout.
	ErrTimedOut = errors.New("timed out")

	// ErrRegistryDisposed is returned to pending waiters when the
	// registry is disposed before a matching frame appears.
	ErrRegistryDisposed = errors.New("frame registry disposed")
)
