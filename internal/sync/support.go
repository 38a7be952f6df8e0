package sync

import (
	"time"

	"github.com/google/uuid"
)

// Logger provides structured logging for the engine.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so engine logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// Tunables collects the engine's timing windows and size limits.
// Production uses DefaultTunables; tests shrink the windows to
// milliseconds so timing-sensitive paths run fast.
type Tunables struct {
	// DebounceWindow is how long a path must stay quiet before its last
	// raw event proceeds into the pipeline.
	DebounceWindow time.Duration

	// DetectionWindow is how long a delete waits for a matching add before
	// it confirms as a genuine delete.
	DetectionWindow time.Duration

	// HashWait caps how long an add classification waits for a pending
	// delete's in-flight hash computation.
	HashWait time.Duration

	// HashRetryDelay is the pause before re-hashing a candidate whose size
	// matched but whose hash did not (slow or partial writes).
	HashRetryDelay time.Duration

	// BatchWindow groups near-simultaneous events per directory for
	// diagnostic bookkeeping of bulk file-manager operations.
	BatchWindow time.Duration

	// SweepInterval is how often the classifier confirms stale pending
	// deletes and trims its hash cache.
	SweepInterval time.Duration

	// EchoTTL is how long a just-downloaded path suppresses watcher events.
	EchoTTL time.Duration

	// MaxUploadBytes is the global upload size ceiling.
	MaxUploadBytes int64
}

// DefaultTunables returns the production timing windows and limits.
func DefaultTunables() Tunables {
	return Tunables{
		DebounceWindow:  500 * time.Millisecond,
		DetectionWindow: 3 * time.Second,
		HashWait:        time.Second,
		HashRetryDelay:  200 * time.Millisecond,
		BatchWindow:     500 * time.Millisecond,
		SweepInterval:   60 * time.Second,
		EchoTTL:         30 * time.Second,
		MaxUploadBytes:  100 * 1024 * 1024,
	}
}
