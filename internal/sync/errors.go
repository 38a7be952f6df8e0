package sync

import "errors"

// Sentinel errors for the engine's failure taxonomy. Lower layers wrap
// these with fmt.Errorf("context: %w", err) so callers can classify
// failures with errors.Is while logs keep the full chain.
var (
	// ErrIO marks a file that is missing or unreadable.
	ErrIO = errors.New("io error")

	// ErrHash marks a read failure or timeout while hashing content.
	ErrHash = errors.New("hash error")

	// ErrRemote marks a remote listing, upload, or download failure.
	ErrRemote = errors.New("remote error")

	// ErrClassificationTimeout marks a hash that never resolved within the
	// detection window.
	ErrClassificationTimeout = errors.New("classification timeout")

	// ErrPersistence marks a database failure.
	ErrPersistence = errors.New("persistence error")
)
