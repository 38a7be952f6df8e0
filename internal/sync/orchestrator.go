package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"drivesync/internal/model"
)

// State is the orchestrator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopping
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// pathPhase is the per-path event pipeline state.
type pathPhase int

const (
	phaseDebouncing pathPhase = iota
	phaseLocked
)

// pathState tracks one path through debounce and lock. A path has an entry
// only while an event is debouncing or an operation is mid-flight.
type pathState struct {
	phase  pathPhase
	timer  *time.Timer
	lastOp WatchOp
}

// ExcludeMatcher filters paths out of the sync pipeline.
type ExcludeMatcher interface {
	// Match reports whether the mapping-relative path should be skipped.
	Match(relativePath string) bool
}

// WatcherFactory creates a fresh watcher. The orchestrator consumes one
// watcher per attach: fsnotify watchers do not restart after Stop, so
// pause/resume and start each take a new instance.
type WatcherFactory func() (Watcher, error)

// Orchestrator drives the sync loop for one mapping: it owns the watcher,
// debounces and locks per-path events, classifies changes, gates uploads
// through the approval queue, and sequences reconcile-before-watch on
// startup. Independent mappings run independent orchestrators sharing
// only the database.
type Orchestrator struct {
	mapping    *model.DriveMapping
	db         Database
	remote     RemoteStore
	fsmgr      FilesystemManager
	newWatcher WatcherFactory
	exclude    ExcludeMatcher
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	tun        Tunables

	detector   *ChangeDetector
	classifier *OperationClassifier
	reconciler *Reconciler
	echo       *EchoGuard
	queue      *uploadQueue

	stateMu gosync.Mutex
	state   State
	watcher Watcher

	pathMu gosync.Mutex
	paths  map[string]*pathState

	// folderIDs caches remote folder IDs by drive-relative directory.
	folderMu  gosync.Mutex
	folderIDs map[string]string

	ctx     context.Context
	cancel  context.CancelFunc
	watchWG gosync.WaitGroup
	workWG  gosync.WaitGroup
}

// NewOrchestrator wires an orchestrator for a single mapping.
func NewOrchestrator(mapping *model.DriveMapping, db Database, remote RemoteStore, fsmgr FilesystemManager, newWatcher WatcherFactory, exclude ExcludeMatcher, logger Logger, clock Clock, idgen IDGenerator, tun Tunables) *Orchestrator {
	echo := NewEchoGuard(clock)
	return &Orchestrator{
		mapping:    mapping,
		db:         db,
		remote:     remote,
		fsmgr:      fsmgr,
		newWatcher: newWatcher,
		exclude:    exclude,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		tun:        tun,
		detector:   NewChangeDetector(mapping, db, fsmgr, logger, clock, idgen),
		classifier: NewOperationClassifier(mapping, db, fsmgr, logger, clock, idgen, tun),
		reconciler: NewReconciler(mapping, db, remote, fsmgr, echo, logger, clock, idgen, tun),
		echo:       echo,
		queue:      newUploadQueue(),
		paths:      make(map[string]*pathState),
		folderIDs:  map[string]string{".": mapping.RootFolderID, "": mapping.RootFolderID},
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.stateMu.Lock()
	o.state = s
	o.stateMu.Unlock()
}

// Start brings the mapping online: ensure the local folder exists, run one
// reconciliation pass before watching (so just-downloaded files are not
// misclassified as new local creates), then attach the watcher and the
// upload worker.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.stateMu.Lock()
	if o.state != StateIdle && o.state != StateStopped {
		state := o.state
		o.stateMu.Unlock()
		return fmt.Errorf("cannot start from state %s", state)
	}
	o.state = StateStarting
	o.stateMu.Unlock()

	if o.remote == nil {
		o.setState(StateIdle)
		return fmt.Errorf("no remote store configured for mapping %s", o.mapping.ID)
	}
	if o.mapping.LocalFolderPath == "" {
		o.setState(StateIdle)
		return fmt.Errorf("mapping %s has no local folder", o.mapping.ID)
	}

	if err := o.fsmgr.MkdirAll(o.mapping.LocalFolderPath); err != nil {
		o.setState(StateIdle)
		return fmt.Errorf("ensuring local folder: %w: %w", ErrIO, err)
	}

	o.ctx, o.cancel = context.WithCancel(ctx)

	// Reconcile before watching. A failed pass is logged and left for the
	// next run; it must not keep the engine offline.
	if o.mapping.SyncDirection != model.DirectionUploadOnly {
		if err := o.reconciler.Reconcile(o.ctx); err != nil {
			o.logger.Error("startup reconciliation failed", "mapping", o.mapping.ID, "error", err)
		}
	}

	o.classifier.Start()

	o.workWG.Add(1)
	go o.uploadWorker()

	// Uploads approved while the engine was offline sit in the uploads
	// table as pending rows; put them back in the queue.
	o.requeuePersisted()

	if o.mapping.SyncDirection != model.DirectionDownloadOnly {
		if err := o.attachWatcher(); err != nil {
			o.logger.Error("attaching watcher failed", "mapping", o.mapping.ID, "error", err)
			o.cancel()
			o.classifier.Stop()
			o.workWG.Wait()
			o.setState(StateIdle)
			return err
		}
	}

	o.setState(StateRunning)
	o.logger.Info("sync started", "mapping", o.mapping.ID, "root", o.mapping.LocalFolderPath,
		"direction", string(o.mapping.SyncDirection))
	return nil
}

// Stop shuts the mapping down: detach the watcher, cancel every debounce
// and pending-delete timer, release per-path locks, and clear the
// in-memory queue. Persisted records are untouched.
func (o *Orchestrator) Stop() error {
	o.stateMu.Lock()
	if o.state != StateRunning && o.state != StatePaused {
		state := o.state
		o.stateMu.Unlock()
		return fmt.Errorf("cannot stop from state %s", state)
	}
	o.state = StateStopping
	o.stateMu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.detachWatcher()
	o.classifier.Stop()

	o.pathMu.Lock()
	for path, ps := range o.paths {
		if ps.timer != nil {
			ps.timer.Stop()
		}
		delete(o.paths, path)
	}
	o.pathMu.Unlock()

	o.queue.clear()
	o.workWG.Wait()

	o.setState(StateStopped)
	o.logger.Info("sync stopped", "mapping", o.mapping.ID)
	return nil
}

// Pause detaches the watcher only; classifier, queue, and persisted state
// stay live. Events during the pause are lost; Resume rescans to recover
// them.
func (o *Orchestrator) Pause() error {
	o.stateMu.Lock()
	if o.state != StateRunning {
		state := o.state
		o.stateMu.Unlock()
		return fmt.Errorf("cannot pause from state %s", state)
	}
	o.state = StatePaused
	o.stateMu.Unlock()

	o.detachWatcher()
	o.logger.Info("sync paused", "mapping", o.mapping.ID)
	return nil
}

// Resume reattaches the watcher and rescans the tree: the watcher was
// blind while paused, so every file is pushed back through the pipeline
// as a synthetic create. Dedup makes the rescan idempotent.
func (o *Orchestrator) Resume() error {
	o.stateMu.Lock()
	if o.state != StatePaused {
		state := o.state
		o.stateMu.Unlock()
		return fmt.Errorf("cannot resume from state %s", state)
	}
	o.stateMu.Unlock()

	if o.mapping.SyncDirection != model.DirectionDownloadOnly {
		if err := o.attachWatcher(); err != nil {
			return fmt.Errorf("reattaching watcher: %w", err)
		}
		o.Rescan()
	}

	o.setState(StateRunning)
	o.logger.Info("sync resumed", "mapping", o.mapping.ID)
	return nil
}

// Reconcile runs one on-demand reconciliation pass.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	return o.reconciler.Reconcile(ctx)
}

// Rescan walks the local tree and feeds every file through the normal
// event pipeline as a synthetic create. Used after resume and available
// to callers that suspect missed events.
func (o *Orchestrator) Rescan() {
	if o.mapping.SyncDirection == model.DirectionDownloadOnly {
		return
	}
	files, err := o.fsmgr.FindFiles(o.mapping.LocalFolderPath, true)
	if err != nil {
		o.logger.Error("rescan failed", "mapping", o.mapping.ID, "error", err)
		return
	}
	for _, f := range files {
		o.handleRawEvent(WatchEvent{Path: f, Op: WatchCreate})
	}
	o.logger.Info("rescan queued", "mapping", o.mapping.ID, "files", len(files))
}

// attachWatcher creates a fresh watcher on the mapping root and starts
// its event loop.
func (o *Orchestrator) attachWatcher() error {
	w, err := o.newWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Start(o.mapping.LocalFolderPath); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	o.stateMu.Lock()
	o.watcher = w
	o.stateMu.Unlock()

	o.watchWG.Add(1)
	go o.eventLoop(w)
	return nil
}

// detachWatcher stops the current watcher, if any, and waits for its
// event loop to drain.
func (o *Orchestrator) detachWatcher() {
	o.stateMu.Lock()
	w := o.watcher
	o.watcher = nil
	o.stateMu.Unlock()

	if w == nil {
		return
	}
	if err := w.Stop(); err != nil {
		o.logger.Warn("stopping watcher", "error", err)
	}
	o.watchWG.Wait()
}

// eventLoop consumes raw watcher events until the watcher closes.
func (o *Orchestrator) eventLoop(w Watcher) {
	defer o.watchWG.Done()

	events, errs := w.Events(), w.Errors()
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			o.handleRawEvent(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			o.logger.Warn("watcher error", "mapping", o.mapping.ID, "error", err)
		}
	}
}

// handleRawEvent is step 1 of the pipeline: exclude filtering and
// per-path debounce. Only the last event inside the window proceeds.
func (o *Orchestrator) handleRawEvent(ev WatchEvent) {
	rel, err := filepath.Rel(o.mapping.LocalFolderPath, ev.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	if o.exclude != nil && o.exclude.Match(rel) {
		return
	}

	path := ev.Path
	o.pathMu.Lock()
	defer o.pathMu.Unlock()

	ps, ok := o.paths[path]
	if ok && ps.phase == phaseLocked {
		// An operation for this path is mid-flight: drop the event and
		// rely on the filesystem emitting a further one.
		o.logger.Debug("event dropped, path locked", "path", path)
		return
	}
	if ok && ps.timer != nil {
		ps.timer.Stop()
	} else {
		ps = &pathState{phase: phaseDebouncing}
		o.paths[path] = ps
	}
	ps.lastOp = ev.Op
	ps.timer = time.AfterFunc(o.tun.DebounceWindow, func() {
		o.debounceFired(path)
	})
}

// debounceFired is step 2: take the per-path lock, or drop if an earlier
// operation still holds it.
func (o *Orchestrator) debounceFired(path string) {
	o.pathMu.Lock()
	ps, ok := o.paths[path]
	if !ok || ps.phase == phaseLocked {
		o.pathMu.Unlock()
		return
	}
	ps.phase = phaseLocked
	op := ps.lastOp
	o.pathMu.Unlock()

	defer func() {
		o.pathMu.Lock()
		// Release the lock unless a new debounce cycle replaced the entry.
		if cur, ok := o.paths[path]; ok && cur == ps {
			delete(o.paths, path)
		}
		o.pathMu.Unlock()
	}()

	if o.ctx == nil || o.ctx.Err() != nil {
		return
	}

	if op == WatchRemove {
		o.classifier.HandleDelete(path)
		return
	}
	o.processAdd(path, op)
}

// processAdd is steps 3-5: classify, append version, dedup-check, and
// enqueue. Errors are logged at this boundary; nothing escapes into the
// event loop.
func (o *Orchestrator) processAdd(path string, op WatchOp) {
	if o.mapping.SyncDirection == model.DirectionDownloadOnly {
		return
	}
	if o.echo.Suppressed(path) {
		o.logger.Debug("event suppressed, download echo", "path", path)
		return
	}

	info, err := o.fsmgr.Stat(path)
	if err != nil {
		// The file vanished between the event and now; a remove event
		// will follow.
		return
	}

	if info.IsDir() {
		// A directory appeared whole (moved or copied in): walk it and
		// feed its files through the pipeline.
		files, err := o.fsmgr.FindFiles(path, true)
		if err != nil {
			o.logger.Warn("scanning new directory failed", "path", path, "error", err)
			return
		}
		for _, f := range files {
			o.handleRawEvent(WatchEvent{Path: f, Op: WatchCreate})
		}
		return
	}

	if o.overSizeLimit(info.Size()) {
		o.logger.Info("file exceeds size limit, skipped", "path", path, "size", info.Size())
		return
	}

	// Write events on known paths are plain updates; only appearing paths
	// go through delete/add disambiguation.
	var cls *Classification
	if op == WatchCreate {
		cls, err = o.classifier.ClassifyAdd(path)
	} else {
		var hash string
		hash, err = o.detector.Hash(path)
		if err == nil {
			o.classifier.RecordHash(path, hash)
			cls = &Classification{Kind: ClassNew, Hash: hash}
		}
	}
	if err != nil {
		o.logger.Warn("classification failed", "path", path, "error", err)
		return
	}

	switch cls.Kind {
	case ClassRename, ClassMove, ClassMoveRename:
		o.applyRelocation(path, cls)
	default:
		o.applyLocalChange(path, info.Size(), cls)
	}
}

// applyRelocation records a move/rename: a new version at the destination
// with the matching change type, and a ledger update so the dedup entry
// follows the content to its new path. Content already uploaded is not
// re-uploaded.
func (o *Orchestrator) applyRelocation(path string, cls *Classification) {
	changeType := model.ChangeMove
	if cls.Kind == ClassRename {
		changeType = model.ChangeRename
	}

	if _, err := o.detector.AppendVersion(path, cls.Hash, changeType, cls.FromPath, nil); err != nil {
		o.logger.Error("recording relocation failed", "path", path, "error", err)
		return
	}

	entry, err := o.db.FindProcessedFile(o.mapping.ID, cls.Hash)
	if err != nil {
		o.logger.Warn("ledger lookup failed", "hash", cls.Hash, "error", err)
		return
	}
	if entry != nil {
		entry.LocalPath = path
		entry.FileName = filepath.Base(path)
		entry.ProcessedAt = o.clock.Now()
		if err := o.db.RecordProcessedFile(entry); err != nil {
			o.logger.Warn("ledger update failed", "hash", cls.Hash, "error", err)
		}
		return
	}

	// Never uploaded: treat the relocated content as a fresh candidate.
	info, err := o.fsmgr.Stat(path)
	if err != nil {
		return
	}
	o.enqueueCandidate(path, info.Size(), cls.Hash)
}

// applyLocalChange handles new/copy verdicts: detect create vs update
// against the classification's hash, append the version, then consult the
// dedup ledger before enqueueing. The content was already hashed during
// classification; it is not read again.
func (o *Orchestrator) applyLocalChange(path string, size int64, cls *Classification) {
	change, err := o.detector.CompareHash(path, cls.Hash)
	if err != nil {
		o.logger.Warn("change detection failed", "path", path, "error", err)
		return
	}
	if change == ChangeUnchanged {
		return
	}

	changeType := model.ChangeCreate
	if change == ChangeUpdated {
		changeType = model.ChangeUpdate
	}
	if _, err := o.detector.AppendVersion(path, cls.Hash, changeType, "", nil); err != nil {
		o.logger.Error("appending version failed", "path", path, "error", err)
		return
	}

	// Dedup: content already synced for this mapping (uploaded before, or
	// just downloaded) must not be uploaded again.
	existing, err := o.db.FindProcessedFile(o.mapping.ID, cls.Hash)
	if err != nil {
		o.logger.Warn("ledger lookup failed", "hash", cls.Hash, "error", err)
		return
	}
	if existing != nil {
		o.logger.Debug("content already synced, upload skipped", "path", path,
			"hash", cls.Hash, "source", string(existing.Source), "kind", cls.Kind.String())
		return
	}

	o.enqueueCandidate(path, size, cls.Hash)
}

// overSizeLimit applies the global ceiling and the per-mapping limit.
func (o *Orchestrator) overSizeLimit(size int64) bool {
	if o.tun.MaxUploadBytes > 0 && size > o.tun.MaxUploadBytes {
		return true
	}
	if o.mapping.MaxFileSize > 0 && size > o.mapping.MaxFileSize {
		return true
	}
	return false
}

// recommendMethod picks the upload method hint surfaced on pending rows.
// Anything above 8MB goes multipart.
func recommendMethod(size int64) string {
	if size > 8*1024*1024 {
		return "multipart"
	}
	return "single"
}

// enqueueCandidate creates the PendingUpload approval row, or goes
// straight into the queue for auto-approving mappings.
func (o *Orchestrator) enqueueCandidate(path string, size int64, hash string) {
	now := o.clock.Now()
	pending := &model.PendingUpload{
		ID:                o.idgen.New(),
		MappingID:         o.mapping.ID,
		LocalPath:         path,
		FileName:          filepath.Base(path),
		FileSize:          size,
		ContentHash:       hash,
		EstimatedCost:     size,
		RecommendedMethod: recommendMethod(size),
		Status:            model.PendingAwaitingApproval,
		CreatedAt:         now,
	}

	if !o.mapping.AutoApprove {
		if err := o.db.CreatePendingUpload(pending); err != nil {
			o.logger.Error("creating pending upload failed", "path", path, "error", err)
		}
		return
	}

	pending.Status = model.PendingApproved
	if err := o.db.CreatePendingUpload(pending); err != nil {
		o.logger.Error("creating pending upload failed", "path", path, "error", err)
		return
	}
	if err := o.startUpload(pending, pending.RecommendedMethod); err != nil {
		o.logger.Error("enqueueing upload failed", "path", path, "error", err)
	}
}

// PendingUploads lists the mapping's candidates awaiting approval.
func (o *Orchestrator) PendingUploads() ([]*model.PendingUpload, error) {
	return o.db.ListPendingUploads(o.mapping.ID, model.PendingAwaitingApproval)
}

// Approve marks a pending upload approved with the chosen method and
// enqueues it.
func (o *Orchestrator) Approve(id, method string) error {
	pending, err := o.db.GetPendingUpload(id)
	if err != nil {
		return fmt.Errorf("loading pending upload: %w", err)
	}
	if pending == nil {
		return fmt.Errorf("pending upload not found: %s", id)
	}
	if pending.Status != model.PendingAwaitingApproval {
		return fmt.Errorf("pending upload %s is %s, not awaiting approval", id, pending.Status)
	}

	if err := o.db.UpdatePendingUploadStatus(id, model.PendingApproved); err != nil {
		return fmt.Errorf("approving pending upload: %w", err)
	}
	if method == "" {
		method = pending.RecommendedMethod
	}
	return o.startUpload(pending, method)
}

// RejectAll rejects every candidate currently awaiting approval.
func (o *Orchestrator) RejectAll() error {
	pendings, err := o.db.ListPendingUploads(o.mapping.ID, model.PendingAwaitingApproval)
	if err != nil {
		return fmt.Errorf("listing pending uploads: %w", err)
	}
	for _, p := range pendings {
		if err := o.db.UpdatePendingUploadStatus(p.ID, model.PendingRejected); err != nil {
			return fmt.Errorf("rejecting pending upload %s: %w", p.ID, err)
		}
	}
	return nil
}

// startUpload creates the Upload lifecycle row for an approved candidate
// and hands it to the queue.
func (o *Orchestrator) startUpload(pending *model.PendingUpload, method string) error {
	now := o.clock.Now()
	upload := &model.Upload{
		ID:              o.idgen.New(),
		MappingID:       o.mapping.ID,
		PendingUploadID: pending.ID,
		LocalPath:       pending.LocalPath,
		FileName:        pending.FileName,
		FileSize:        pending.FileSize,
		ContentHash:     pending.ContentHash,
		Status:          model.TransferPending,
		Priority:        o.mapping.UploadPriority,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_ = method // method is recorded on the version once the upload lands
	if err := o.db.CreateUpload(upload); err != nil {
		return fmt.Errorf("creating upload record: %w", err)
	}
	o.EnqueueApproved(upload)
	return nil
}

// EnqueueApproved pushes an already-persisted upload row into the
// in-memory queue.
func (o *Orchestrator) EnqueueApproved(u *model.Upload) {
	o.queue.push(queueItem{
		uploadID:    u.ID,
		localPath:   u.LocalPath,
		contentHash: u.ContentHash,
		fileSize:    u.FileSize,
		priority:    u.Priority,
		createdAt:   u.CreatedAt,
	})
}

// requeuePersisted pushes still-pending upload rows into the queue.
func (o *Orchestrator) requeuePersisted() {
	uploads, err := o.db.ListUploads(o.mapping.ID, 0)
	if err != nil {
		o.logger.Warn("loading persisted uploads failed", "mapping", o.mapping.ID, "error", err)
		return
	}
	for _, u := range uploads {
		if u.Status == model.TransferPending {
			o.EnqueueApproved(u)
		}
	}
}

// QueueDepth returns the number of uploads waiting in memory.
func (o *Orchestrator) QueueDepth() int {
	return o.queue.size()
}

// uploadWorker drains the queue one item at a time for this mapping.
func (o *Orchestrator) uploadWorker() {
	defer o.workWG.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.queue.wake:
		}

		for {
			item, ok := o.queue.pop()
			if !ok {
				break
			}
			if o.ctx.Err() != nil {
				return
			}
			o.processUpload(item)
		}
	}
}

// processUpload performs one upload: remote call, then on success the
// Upload row, the version's remote IDs, and the dedup ledger are updated.
// On failure the row is marked failed and the item is dropped from the
// queue; resubmission is an explicit caller action.
func (o *Orchestrator) processUpload(item queueItem) {
	if err := o.db.UpdateUploadStatus(item.uploadID, model.TransferUploading, ""); err != nil {
		o.logger.Error("updating upload status failed", "id", item.uploadID, "error", err)
		return
	}

	parentID, err := o.ensureRemoteDir(item.localPath)
	if err == nil {
		var res *UploadResult
		res, err = o.remote.UploadFile(o.ctx, item.localPath, parentID)
		if err == nil {
			o.finishUpload(item, res)
			return
		}
	}

	msg := fmt.Errorf("%w: %w", ErrRemote, err).Error()
	if dbErr := o.db.UpdateUploadStatus(item.uploadID, model.TransferFailed, msg); dbErr != nil {
		o.logger.Error("recording upload failure failed", "id", item.uploadID, "error", dbErr)
	}
	o.logger.Warn("upload failed", "path", item.localPath, "error", err)
}

// finishUpload records a successful upload across the lifecycle row, the
// version history, and the dedup ledger.
func (o *Orchestrator) finishUpload(item queueItem, res *UploadResult) {
	if err := o.db.SetUploadRemoteIDs(item.uploadID, res.DataID, res.MetadataID, res.FileID); err != nil {
		o.logger.Error("recording remote ids failed", "id", item.uploadID, "error", err)
		return
	}
	if err := o.db.UpdateUploadStatus(item.uploadID, model.TransferCompleted, ""); err != nil {
		o.logger.Error("completing upload failed", "id", item.uploadID, "error", err)
		return
	}

	latest, err := o.db.LatestVersion(o.mapping.ID, item.localPath)
	if err == nil && latest != nil && latest.RemoteDataID == "" {
		if err := o.db.SetVersionRemoteIDs(latest.ID, res.DataID, res.MetadataID); err != nil {
			o.logger.Warn("recording version remote ids failed", "version", latest.ID, "error", err)
		}
	}

	// Requeued uploads may predate any version row for the path; the
	// upload row's own hash still identifies the content.
	hash := item.contentHash
	size := item.fileSize
	if latest != nil {
		hash = latest.ContentHash
		size = latest.FileSize
	}
	if err := o.db.RecordProcessedFile(&model.ProcessedFile{
		ContentHash: hash,
		MappingID:   o.mapping.ID,
		FileName:    filepath.Base(item.localPath),
		FileSize:    size,
		LocalPath:   item.localPath,
		Source:      model.SourceUpload,
		RemoteID:    res.FileID,
		ProcessedAt: o.clock.Now(),
	}); err != nil {
		o.logger.Warn("recording processed file failed", "path", item.localPath, "error", err)
	}

	o.logger.Info("upload completed", "path", item.localPath, "fileId", res.FileID)
}

// ensureRemoteDir resolves (creating as needed) the remote folder that
// mirrors the file's local parent directory. Folder IDs are cached per
// drive-relative directory.
func (o *Orchestrator) ensureRemoteDir(localPath string) (string, error) {
	rel, err := filepath.Rel(o.mapping.LocalFolderPath, filepath.Dir(localPath))
	if err != nil {
		return "", fmt.Errorf("calculating relative directory: %w", err)
	}
	rel = filepath.ToSlash(rel)

	o.folderMu.Lock()
	defer o.folderMu.Unlock()

	if id, ok := o.folderIDs[rel]; ok {
		return id, nil
	}

	parentID := o.mapping.RootFolderID
	walked := ""
	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == "" {
			continue
		}
		if walked == "" {
			walked = seg
		} else {
			walked = walked + "/" + seg
		}
		if id, ok := o.folderIDs[walked]; ok {
			parentID = id
			continue
		}
		id, err := o.remote.CreateFolder(o.ctx, parentID, seg)
		if err != nil {
			return "", fmt.Errorf("creating remote folder %s: %w", walked, err)
		}
		o.folderIDs[walked] = id
		parentID = id
	}
	return parentID, nil
}
