package sync

import (
	gosync "sync"
	"time"
)

// echoEntry marks a path whose next watcher events are a download echo,
// not a local edit.
type echoEntry struct {
	hash     string
	deadline time.Time
	inFlight bool
}

// EchoGuard suppresses watcher events for paths the reconciler is writing
// or has just written. It consolidates the in-flight download marker and
// the recently-downloaded TTL into one table; the durable ProcessedFile
// ledger remains the second, cross-restart guard.
type EchoGuard struct {
	mu      gosync.Mutex
	clock   Clock
	entries map[string]echoEntry
}

// NewEchoGuard creates an empty guard.
func NewEchoGuard(clock Clock) *EchoGuard {
	return &EchoGuard{clock: clock, entries: make(map[string]echoEntry)}
}

// MarkInFlight flags a path as being written by a download right now.
// The flag holds until MarkDownloaded or Clear replaces it.
func (g *EchoGuard) MarkInFlight(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[path] = echoEntry{inFlight: true}
}

// MarkDownloaded flags a path as freshly downloaded with the given content
// hash; events for it are suppressed until the TTL expires.
func (g *EchoGuard) MarkDownloaded(path, hash string, ttl time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[path] = echoEntry{hash: hash, deadline: g.clock.Now().Add(ttl)}
}

// Clear drops any marker for the path (failed downloads).
func (g *EchoGuard) Clear(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, path)
}

// Suppressed reports whether watcher events for the path should be dropped.
// Expired entries are pruned as a side effect.
func (g *EchoGuard) Suppressed(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[path]
	if !ok {
		return false
	}
	if e.inFlight {
		return true
	}
	if g.clock.Now().Before(e.deadline) {
		return true
	}
	delete(g.entries, path)
	return false
}
