package sync

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	gosync "sync"
	"time"

	"drivesync/internal/model"
)

// ClassKind is the classifier's verdict for an add event.
type ClassKind int

const (
	// ClassNew means the add has no relationship to any recent delete.
	ClassNew ClassKind = iota
	// ClassRename means the add matches a pending delete in the same directory.
	ClassRename
	// ClassMove means the add matches a pending delete in a different
	// directory under the same name.
	ClassMove
	// ClassMoveRename means the add matches a pending delete in a different
	// directory under a different name.
	ClassMoveRename
	// ClassCopy means the add's content already exists at another active
	// path for this mapping.
	ClassCopy
)

// String returns a human-readable representation of the verdict.
func (k ClassKind) String() string {
	switch k {
	case ClassNew:
		return "new"
	case ClassRename:
		return "rename"
	case ClassMove:
		return "move"
	case ClassMoveRename:
		return "move+rename"
	case ClassCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// Classification is the outcome of classifying an add event.
type Classification struct {
	Kind ClassKind
	// FromPath is the matched delete's path for rename/move verdicts, or
	// the existing twin's path for copy.
	FromPath string
	// Hash is the new file's content hash, computed during classification.
	Hash string
	// ByMetadata marks a rename/move verdict reached through the name+size
	// fallback rather than a hash match.
	ByMetadata bool
}

// pendingDelete is the snapshot captured when a path disappears, held open
// for the detection window in case a matching add turns it into a move.
type pendingDelete struct {
	path      string
	name      string
	size      int64 // -1 when unknown
	remoteID  string
	deletedAt time.Time
	batchID   string

	// hashReady closes once the snapshot hash resolution finishes.
	// hash is only valid after that; empty means the hash never resolved.
	hashReady chan struct{}
	hash      string

	timer *time.Timer
}

// hashCacheEntry is one remembered (path, hash) pair, oldest first.
type hashCacheEntry struct {
	path string
	hash string
}

const (
	hashCacheTrimAt = 1000
	hashCacheKeep   = 500
)

// dirBatch groups near-simultaneous events in one directory. Diagnostic
// bookkeeping only; it does not influence classification.
type dirBatch struct {
	id    string
	last  time.Time
	count int
}

// OperationClassifier disambiguates move/rename/copy/delete/new for one
// mapping. A delete opens a detection window; an add arriving inside the
// window is matched against the pending delete snapshots by hash first,
// then by name+size as a deliberate heuristic fallback.
type OperationClassifier struct {
	mapping *model.DriveMapping
	db      Database
	fsmgr   FilesystemManager
	logger  Logger
	clock   Clock
	idgen   IDGenerator
	tun     Tunables

	mu      gosync.Mutex
	pending map[string]*pendingDelete
	batches map[string]*dirBatch

	cacheMu   gosync.Mutex
	hashCache []hashCacheEntry
	hashIndex map[string]string

	sweepDone chan struct{}
	wg        gosync.WaitGroup
}

// NewOperationClassifier creates a classifier for a single mapping.
func NewOperationClassifier(mapping *model.DriveMapping, db Database, fsmgr FilesystemManager, logger Logger, clock Clock, idgen IDGenerator, tun Tunables) *OperationClassifier {
	return &OperationClassifier{
		mapping:   mapping,
		db:        db,
		fsmgr:     fsmgr,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		tun:       tun,
		pending:   make(map[string]*pendingDelete),
		batches:   make(map[string]*dirBatch),
		hashIndex: make(map[string]string),
	}
}

// Start launches the housekeeping sweep. The classifier restarts cleanly:
// each Start runs a fresh sweep goroutine after a prior Stop.
func (c *OperationClassifier) Start() {
	done := make(chan struct{})
	c.mu.Lock()
	c.sweepDone = done
	c.mu.Unlock()

	c.wg.Add(1)
	go c.sweepLoop(done)
}

// Stop cancels every pending-delete timer and the sweep. Pending deletes
// are discarded without confirmation; persisted state is untouched.
func (c *OperationClassifier) Stop() {
	c.mu.Lock()
	if c.sweepDone != nil {
		close(c.sweepDone)
		c.sweepDone = nil
	}
	c.mu.Unlock()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for path, pd := range c.pending {
		pd.timer.Stop()
		delete(c.pending, path)
	}
}

// RecordHash remembers a freshly computed (path, hash) pair so a later
// delete of the path can snapshot its content identity.
func (c *OperationClassifier) RecordHash(path, hash string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.hashCache = append(c.hashCache, hashCacheEntry{path: path, hash: hash})
	c.hashIndex[path] = hash
}

// cachedHash returns the last remembered hash for a path.
func (c *OperationClassifier) cachedHash(path string) (string, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	h, ok := c.hashIndex[path]
	return h, ok
}

// HandleDelete captures a snapshot for a disappeared path and starts the
// detection window. If no matching add claims the snapshot before the
// window expires, the delete confirms and a FileOperation is appended.
func (c *OperationClassifier) HandleDelete(path string) {
	now := c.clock.Now()

	c.mu.Lock()
	if prev, ok := c.pending[path]; ok {
		// Repeated remove events for the same path restart the window.
		prev.timer.Stop()
	}

	pd := &pendingDelete{
		path:      path,
		name:      filepath.Base(path),
		size:      -1,
		deletedAt: now,
		batchID:   c.touchBatchLocked(filepath.Dir(path), now),
		hashReady: make(chan struct{}),
	}
	pd.timer = time.AfterFunc(c.tun.DetectionWindow, func() {
		c.confirmDelete(path, false)
	})
	c.pending[path] = pd
	c.mu.Unlock()

	// The file is already gone, so the snapshot's content identity comes
	// from the hash cache or the version history, resolved off the event
	// path. ClassifyAdd waits on hashReady with a cap.
	go c.resolveSnapshot(pd)

	c.logger.Debug("delete pending", "path", path, "window", c.tun.DetectionWindow.String(), "batch", pd.batchID)
}

// resolveSnapshot fills the pending delete's hash, size, and remote ID from
// the hash cache or the latest recorded version, then signals readiness.
func (c *OperationClassifier) resolveSnapshot(pd *pendingDelete) {
	defer close(pd.hashReady)

	if hash, ok := c.cachedHash(pd.path); ok {
		pd.hash = hash
	}

	latest, err := c.db.LatestVersion(c.mapping.ID, pd.path)
	if err != nil {
		c.logger.Warn("snapshot resolution failed", "path", pd.path, "error", err)
		return
	}
	if latest != nil {
		if pd.hash == "" {
			pd.hash = latest.ContentHash
		}
		pd.size = latest.FileSize
		pd.remoteID = latest.RemoteDataID
	}
}

// confirmDelete finalizes a pending delete: it is removed from the window
// and an audit log entry is appended. forced marks sweep confirmations of
// stale entries.
func (c *OperationClassifier) confirmDelete(path string, forced bool) {
	c.mu.Lock()
	pd, ok := c.pending[path]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, path)
	c.mu.Unlock()

	// Use whatever hash resolution produced by now; a confirm must not
	// block on a resolution that may never finish.
	select {
	case <-pd.hashReady:
	default:
	}

	meta, _ := json.Marshal(map[string]any{"batch": pd.batchID, "forced": forced})
	op := &model.FileOperation{
		ID:          c.idgen.New(),
		MappingID:   c.mapping.ID,
		ContentHash: pd.hash,
		Operation:   model.OpDelete,
		FromPath:    path,
		Metadata:    string(meta),
		Timestamp:   c.clock.Now(),
	}
	if err := c.db.AppendFileOperation(op); err != nil {
		c.logger.Error("recording delete failed", "path", path, "error", err)
		return
	}
	c.logger.Info("delete confirmed", "path", path, "forced", forced)
}

// ClassifyAdd decides what an appearing path represents. Matching order:
// hash match against pending deletes, then name+size metadata fallback,
// then copy detection via the dedup ledger, otherwise new.
func (c *OperationClassifier) ClassifyAdd(path string) (*Classification, error) {
	info, err := c.fsmgr.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w: %w", path, ErrIO, err)
	}
	size := info.Size()

	hash, err := c.hashPath(path)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	c.mu.Lock()
	batchID := c.touchBatchLocked(filepath.Dir(path), now)
	candidates := make([]*pendingDelete, 0, len(c.pending))
	for _, pd := range c.pending {
		candidates = append(candidates, pd)
	}
	c.mu.Unlock()

	var hashMatch, metaMatch *pendingDelete

	for _, pd := range candidates {
		resolved := c.awaitHash(pd)

		if resolved && pd.hash != "" {
			if pd.hash == hash {
				hashMatch = pd
				break
			}
			if pd.size == size {
				// Sizes agree but hashes do not: the add may still be
				// mid-write. Re-hash once after a short delay before
				// giving up on this candidate.
				time.Sleep(c.tun.HashRetryDelay)
				rehash, err := c.hashPath(path)
				if err == nil && rehash == pd.hash {
					hash = rehash
					hashMatch = pd
					break
				}
			}
			continue
		}

		// Hashing inconclusive for this candidate: fall back to metadata.
		if pd.name == filepath.Base(path) && pd.size == size {
			if metaMatch == nil {
				metaMatch = pd
			}
		}
	}

	// Hash match always wins over metadata match.
	match := hashMatch
	if match == nil {
		match = metaMatch
	}

	if match != nil && c.claim(match.path) {
		cls := &Classification{
			Kind:       pairKind(match.path, path),
			FromPath:   match.path,
			Hash:       hash,
			ByMetadata: hashMatch == nil,
		}
		c.logger.Info("add classified", "path", path, "kind", cls.Kind.String(),
			"from", match.path, "byMetadata", cls.ByMetadata, "batch", batchID)
		return cls, nil
	}

	// Copy detection: identical content already live at another path.
	if twin := c.findActiveTwin(path, hash); twin != "" {
		c.logger.Info("add classified", "path", path, "kind", "copy", "twin", twin, "batch", batchID)
		return &Classification{Kind: ClassCopy, FromPath: twin, Hash: hash}, nil
	}

	c.logger.Debug("add classified", "path", path, "kind", "new", "batch", batchID)
	return &Classification{Kind: ClassNew, Hash: hash}, nil
}

// hashPath computes and caches a path's content hash.
func (c *OperationClassifier) hashPath(path string) (string, error) {
	f, err := c.fsmgr.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w: %w", path, ErrHash, err)
	}
	defer f.Close()

	hash, err := streamHash(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w: %w", path, ErrHash, err)
	}
	c.RecordHash(path, hash)
	return hash, nil
}

// awaitHash waits for a pending delete's snapshot resolution, capped at the
// configured wait. Returns false when the hash never resolved in time.
func (c *OperationClassifier) awaitHash(pd *pendingDelete) bool {
	select {
	case <-pd.hashReady:
		return true
	case <-time.After(c.tun.HashWait):
		c.logger.Warn("hash wait expired", "path", pd.path, "error", ErrClassificationTimeout)
		return false
	}
}

// claim removes a matched pending delete and cancels its timer. Returns
// false when the delete was confirmed in the meantime.
func (c *OperationClassifier) claim(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pd, ok := c.pending[path]
	if !ok {
		return false
	}
	pd.timer.Stop()
	delete(c.pending, path)
	return true
}

// findActiveTwin returns an active (still present, not pending delete) path
// in this mapping's dedup ledger holding the same content, or "".
func (c *OperationClassifier) findActiveTwin(path, hash string) string {
	entry, err := c.db.FindProcessedFile(c.mapping.ID, hash)
	if err != nil {
		c.logger.Warn("ledger lookup failed", "hash", hash, "error", err)
		return ""
	}
	if entry == nil || entry.LocalPath == "" || entry.LocalPath == path {
		return ""
	}

	c.mu.Lock()
	_, deleting := c.pending[entry.LocalPath]
	c.mu.Unlock()
	if deleting {
		return ""
	}

	if _, err := c.fsmgr.Stat(entry.LocalPath); err != nil {
		return ""
	}
	return entry.LocalPath
}

// pairKind derives the verdict from directory and name equality of a
// matched delete/add pair.
func pairKind(fromPath, toPath string) ClassKind {
	sameDir := filepath.Dir(fromPath) == filepath.Dir(toPath)
	sameName := filepath.Base(fromPath) == filepath.Base(toPath)
	switch {
	case sameDir:
		return ClassRename
	case sameName:
		return ClassMove
	default:
		return ClassMoveRename
	}
}

// touchBatchLocked updates the per-directory batch bookkeeping and returns
// the batch ID the event belongs to. Caller holds c.mu.
func (c *OperationClassifier) touchBatchLocked(dir string, now time.Time) string {
	b, ok := c.batches[dir]
	if !ok || now.Sub(b.last) > c.tun.BatchWindow {
		b = &dirBatch{id: c.idgen.New()}
		c.batches[dir] = b
	}
	b.last = now
	b.count++
	return b.id
}

// sweepLoop periodically force-confirms stale pending deletes and trims
// the hash cache.
func (c *OperationClassifier) sweepLoop(done <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.tun.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep confirms pending deletes older than twice the detection window and
// trims the hash cache to its most recent entries.
func (c *OperationClassifier) sweep() {
	cutoff := c.clock.Now().Add(-2 * c.tun.DetectionWindow)

	c.mu.Lock()
	var stale []string
	for path, pd := range c.pending {
		if pd.deletedAt.Before(cutoff) {
			pd.timer.Stop()
			stale = append(stale, path)
		}
	}
	for dir, b := range c.batches {
		if b.last.Before(cutoff) {
			delete(c.batches, dir)
		}
	}
	c.mu.Unlock()

	for _, path := range stale {
		c.confirmDelete(path, true)
	}

	c.cacheMu.Lock()
	if len(c.hashCache) > hashCacheTrimAt {
		drop := c.hashCache[:len(c.hashCache)-hashCacheKeep]
		c.hashCache = append([]hashCacheEntry(nil), c.hashCache[len(c.hashCache)-hashCacheKeep:]...)
		for _, e := range drop {
			if c.hashIndex[e.path] == e.hash {
				delete(c.hashIndex, e.path)
			}
		}
	}
	c.cacheMu.Unlock()

	if len(stale) > 0 {
		c.logger.Info("sweep confirmed stale deletes", "count", len(stale))
	}
}
