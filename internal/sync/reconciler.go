package sync

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"drivesync/internal/model"
)

// Reconciler pulls the remote tree state for one mapping into the local
// metadata cache and downloads whatever is missing locally. It runs at
// engine start and on demand; each pass rebuilds the cache wholesale.
type Reconciler struct {
	mapping *model.DriveMapping
	db      Database
	remote  RemoteStore
	fsmgr   FilesystemManager
	logger  Logger
	clock   Clock
	idgen   IDGenerator
	tun     Tunables
	echo    *EchoGuard
}

// NewReconciler creates a reconciler for a single mapping. The echo guard
// is shared with the orchestrator so downloads do not bounce back as
// local creates.
func NewReconciler(mapping *model.DriveMapping, db Database, remote RemoteStore, fsmgr FilesystemManager, echo *EchoGuard, logger Logger, clock Clock, idgen IDGenerator, tun Tunables) *Reconciler {
	return &Reconciler{
		mapping: mapping,
		db:      db,
		remote:  remote,
		fsmgr:   fsmgr,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		tun:     tun,
		echo:    echo,
	}
}

// Reconcile runs one two-phase pass: snapshot the remote tree into the
// metadata cache, then create missing folders and download missing files.
// A listing failure aborts the pass; per-file download failures are
// recorded and left for the next pass.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	entries, err := r.snapshotTree(ctx)
	if err != nil {
		return fmt.Errorf("snapshotting remote tree: %w: %w", ErrRemote, err)
	}

	if err := r.db.ReplaceMetadata(r.mapping.ID, entries); err != nil {
		return fmt.Errorf("replacing metadata cache: %w", err)
	}

	if err := r.applyTree(ctx, entries); err != nil {
		return err
	}

	if err := r.db.UpdateMappingLastSync(r.mapping.ID, r.clock.Now()); err != nil {
		return fmt.Errorf("updating last sync time: %w", err)
	}

	r.logger.Info("reconciliation complete", "mapping", r.mapping.ID, "entries", len(entries))
	return nil
}

// snapshotTree recursively lists the remote tree from the mapping's root
// folder and builds the metadata entries, tagging each one synced or
// pending by local existence.
func (r *Reconciler) snapshotTree(ctx context.Context) ([]*model.MetadataEntry, error) {
	var entries []*model.MetadataEntry
	err := r.listInto(ctx, r.mapping.RootFolderID, "", &entries)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// listInto appends the children of folderID, rooted at treePath, walking
// folders depth-first so parents always precede their children.
func (r *Reconciler) listInto(ctx context.Context, folderID, treePath string, out *[]*model.MetadataEntry) error {
	children, err := r.remote.ListFolder(ctx, folderID)
	if err != nil {
		return fmt.Errorf("listing folder %s: %w", folderID, err)
	}

	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}

		childPath := normalizeTreePath(path.Join(treePath, child.Name), r.mapping.DriveName)
		localPath := filepath.Join(r.mapping.LocalFolderPath, filepath.FromSlash(childPath))
		if child.Type == model.EntryFolder && childPath == r.mapping.DriveName {
			// The drive's own folder stands for the mapping root; its
			// children collapse there, so no extra directory is created.
			localPath = r.mapping.LocalFolderPath
		}

		entry := &model.MetadataEntry{
			MappingID:      r.mapping.ID,
			RemoteID:       child.ID,
			ParentRemoteID: folderID,
			Name:           child.Name,
			Path:           childPath,
			Type:           child.Type,
			Size:           child.Size,
			ContentHash:    child.ContentHash,
			LocalPath:      localPath,
			SyncStatus:     model.StatusPending,
		}
		if _, err := r.fsmgr.Stat(localPath); err == nil {
			entry.LocalFileExists = true
			entry.SyncStatus = model.StatusSynced
		}
		*out = append(*out, entry)

		if child.Type == model.EntryFolder {
			if err := r.listInto(ctx, child.ID, childPath, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// normalizeTreePath collapses duplicated drive-name prefixes that some
// backends produce when the drive's own folder appears inside its listing:
// "Drive/Drive/docs" becomes "Drive/docs", and a single leading segment
// equal to the drive name is dropped entirely since the mapping root
// already stands for the drive.
func normalizeTreePath(p, driveName string) string {
	if driveName == "" {
		return p
	}
	segs := strings.Split(p, "/")
	for len(segs) >= 2 && segs[0] == driveName && segs[1] == driveName {
		segs = segs[1:]
	}
	if len(segs) >= 1 && segs[0] == driveName && len(segs) > 1 {
		segs = segs[1:]
	}
	return strings.Join(segs, "/")
}

// applyTree creates every remote folder locally first, then downloads each
// pending file.
func (r *Reconciler) applyTree(ctx context.Context, entries []*model.MetadataEntry) error {
	for _, e := range entries {
		if e.Type != model.EntryFolder {
			continue
		}
		if err := r.fsmgr.MkdirAll(e.LocalPath); err != nil {
			return fmt.Errorf("creating folder %s: %w: %w", e.LocalPath, ErrIO, err)
		}
		if !e.LocalFileExists {
			if err := r.db.UpdateMetadataStatus(r.mapping.ID, e.RemoteID, model.StatusSynced); err != nil {
				return fmt.Errorf("marking folder synced: %w", err)
			}
		}
	}

	for _, e := range entries {
		if e.Type != model.EntryFile || e.SyncStatus != model.StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.downloadFile(ctx, e)
	}
	return nil
}

// downloadFile fetches one pending file: Download record, remote fetch,
// stat verification, content hash, dedup ledger entry, version append,
// and metadata status flip. Failures mark the records and move on; the
// entry stays eligible for the next pass.
func (r *Reconciler) downloadFile(ctx context.Context, e *model.MetadataEntry) {
	now := r.clock.Now()
	dl := &model.Download{
		ID:           r.idgen.New(),
		MappingID:    r.mapping.ID,
		RemoteFileID: e.RemoteID,
		LocalPath:    e.LocalPath,
		FileName:     e.Name,
		FileSize:     e.Size,
		Status:       model.TransferPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.db.CreateDownload(dl); err != nil {
		r.logger.Error("creating download record failed", "path", e.LocalPath, "error", err)
		return
	}

	if err := r.db.UpdateDownloadStatus(dl.ID, model.TransferDownloading, ""); err != nil {
		r.logger.Error("updating download status failed", "id", dl.ID, "error", err)
		return
	}
	if err := r.db.UpdateMetadataStatus(r.mapping.ID, e.RemoteID, model.StatusDownloading); err != nil {
		r.logger.Error("updating metadata status failed", "remoteId", e.RemoteID, "error", err)
		return
	}

	// Suppress the watcher while the bytes land on disk.
	r.echo.MarkInFlight(e.LocalPath)

	if err := r.remote.DownloadFile(ctx, e.RemoteID, e.LocalPath); err != nil {
		r.echo.Clear(e.LocalPath)
		r.failDownload(dl.ID, e.RemoteID, fmt.Errorf("%w: %w", ErrRemote, err))
		return
	}

	info, err := r.fsmgr.Stat(e.LocalPath)
	if err != nil {
		r.echo.Clear(e.LocalPath)
		r.failDownload(dl.ID, e.RemoteID, fmt.Errorf("verifying download: %w: %w", ErrIO, err))
		return
	}

	hash, err := r.hashLocal(e.LocalPath)
	if err != nil {
		r.echo.Clear(e.LocalPath)
		r.failDownload(dl.ID, e.RemoteID, err)
		return
	}

	r.echo.MarkDownloaded(e.LocalPath, hash, r.tun.EchoTTL)

	if err := r.recordDownloaded(e, info.Size(), hash); err != nil {
		r.failDownload(dl.ID, e.RemoteID, err)
		return
	}

	if err := r.db.UpdateDownloadStatus(dl.ID, model.TransferCompleted, ""); err != nil {
		r.logger.Error("completing download failed", "id", dl.ID, "error", err)
		return
	}
	if err := r.db.UpdateMetadataStatus(r.mapping.ID, e.RemoteID, model.StatusSynced); err != nil {
		r.logger.Error("marking file synced failed", "remoteId", e.RemoteID, "error", err)
		return
	}

	r.logger.Info("file downloaded", "path", e.LocalPath, "size", info.Size())
}

// failDownload records a download failure on both lifecycle rows.
func (r *Reconciler) failDownload(downloadID, remoteID string, cause error) {
	r.logger.Warn("download failed", "id", downloadID, "error", cause)
	if err := r.db.UpdateDownloadStatus(downloadID, model.TransferFailed, cause.Error()); err != nil {
		r.logger.Error("recording download failure failed", "id", downloadID, "error", err)
	}
	if err := r.db.UpdateMetadataStatus(r.mapping.ID, remoteID, model.StatusError); err != nil {
		r.logger.Error("recording metadata error failed", "remoteId", remoteID, "error", err)
	}
}

// hashLocal computes the content hash of a just-downloaded file.
func (r *Reconciler) hashLocal(p string) (string, error) {
	f, err := r.fsmgr.Open(p)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w: %w", p, ErrHash, err)
	}
	defer f.Close()

	hash, err := streamHash(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w: %w", p, ErrHash, err)
	}
	return hash, nil
}

// recordDownloaded writes the dedup ledger entry, appends a version for
// the downloaded state, and logs the download in the audit trail.
func (r *Reconciler) recordDownloaded(e *model.MetadataEntry, size int64, hash string) error {
	now := r.clock.Now()

	if err := r.db.RecordProcessedFile(&model.ProcessedFile{
		ContentHash: hash,
		MappingID:   r.mapping.ID,
		FileName:    e.Name,
		FileSize:    size,
		LocalPath:   e.LocalPath,
		Source:      model.SourceDownload,
		RemoteID:    e.RemoteID,
		ProcessedAt: now,
	}); err != nil {
		return fmt.Errorf("recording processed file: %w", err)
	}

	last, err := r.db.LatestVersion(r.mapping.ID, e.LocalPath)
	if err != nil {
		return fmt.Errorf("loading latest version: %w", err)
	}
	changeType := model.ChangeCreate
	if last != nil {
		if last.ContentHash == hash {
			// Same content already recorded for this path; no new version.
			return r.appendDownloadOp(e, hash, now)
		}
		changeType = model.ChangeUpdate
	}

	relPath, err := filepath.Rel(r.mapping.LocalFolderPath, e.LocalPath)
	if err != nil {
		return fmt.Errorf("calculating relative path: %w", err)
	}

	v := &model.FileVersion{
		ID:           r.idgen.New(),
		MappingID:    r.mapping.ID,
		ContentHash:  hash,
		FileName:     e.Name,
		FilePath:     e.LocalPath,
		RelativePath: relPath,
		FileSize:     size,
		RemoteDataID: e.RemoteID,
		Version:      1,
		ChangeType:   changeType,
		CreatedAt:    now,
		IsLatest:     true,
	}
	if last != nil {
		v.Version = last.Version + 1
		v.ParentVersion = last.ID
	}
	if err := r.db.AppendFileVersion(v); err != nil {
		return fmt.Errorf("appending version: %w", err)
	}

	return r.appendDownloadOp(e, hash, now)
}

// appendDownloadOp logs the download in the append-only audit trail.
func (r *Reconciler) appendDownloadOp(e *model.MetadataEntry, hash string, now time.Time) error {
	op := &model.FileOperation{
		ID:          r.idgen.New(),
		MappingID:   r.mapping.ID,
		ContentHash: hash,
		Operation:   model.OpDownload,
		ToPath:      e.LocalPath,
		Timestamp:   now,
	}
	if err := r.db.AppendFileOperation(op); err != nil {
		return fmt.Errorf("appending download operation: %w", err)
	}
	return nil
}
