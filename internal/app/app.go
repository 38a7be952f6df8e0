package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"drivesync/internal/config"
	"drivesync/internal/database"
	"drivesync/internal/fs"
	"drivesync/internal/model"
	"drivesync/internal/remote"
	"drivesync/internal/sync"
	"drivesync/internal/watcher"
)

// App is the application layer between the CLI and the sync engines.
// It constructs all dependencies from config, registers the configured
// mappings in the database, and runs one orchestrator per mapping.
// The caller must call Close when done.
type App struct {
	cfg     *config.Config
	db      sync.Database
	remote  sync.RemoteStore
	fsmgr   sync.FilesystemManager
	engines map[string]*sync.Orchestrator
	logger  sync.Logger
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	runID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	rs, err := remote.NewRemoteFromConfig(ctx, cfg.Remote)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating remote store: %w", err)
	}

	fsmgr := fs.NewOSFilesystemManager()
	tun := tunablesFromConfig(cfg.Engine)

	a := &App{
		cfg:     cfg,
		db:      db,
		remote:  rs,
		fsmgr:   fsmgr,
		engines: make(map[string]*sync.Orchestrator),
		logger:  logger,
		logFile: logFile,
	}

	for _, mc := range cfg.Mappings {
		mapping, err := a.ensureMapping(mc)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("registering mapping for %s: %w", mc.LocalFolderPath, err)
		}

		exclude := fs.NewExcludeMatcher(mapping.ExcludePatterns)
		newWatcher := func() (sync.Watcher, error) { return watcher.New() }
		a.engines[mapping.ID] = sync.NewOrchestrator(mapping, db, rs, fsmgr,
			newWatcher, exclude, logger, sync.RealClock{}, sync.UUIDGenerator{}, tun)
	}

	return a, nil
}

// tunablesFromConfig overlays configured knobs onto the defaults.
func tunablesFromConfig(ec config.EngineConfig) sync.Tunables {
	tun := sync.DefaultTunables()
	if ec.DebounceWindowMS > 0 {
		tun.DebounceWindow = time.Duration(ec.DebounceWindowMS) * time.Millisecond
	}
	if ec.DetectionWindowS > 0 {
		tun.DetectionWindow = time.Duration(ec.DetectionWindowS) * time.Second
	}
	if ec.SweepIntervalS > 0 {
		tun.SweepInterval = time.Duration(ec.SweepIntervalS) * time.Second
	}
	if ec.EchoTTLS > 0 {
		tun.EchoTTL = time.Duration(ec.EchoTTLS) * time.Second
	}
	if ec.MaxUploadBytes > 0 {
		tun.MaxUploadBytes = ec.MaxUploadBytes
	}
	return tun
}

// ensureMapping finds the database row matching a configured mapping, or
// creates it. Matching is by remote drive and local folder; the config is
// authoritative for everything except identity, so settings are refreshed
// on the in-memory copy each run.
func (a *App) ensureMapping(mc config.MappingConfig) (*model.DriveMapping, error) {
	localPath, err := filepath.Abs(mc.LocalFolderPath)
	if err != nil {
		return nil, fmt.Errorf("resolving local folder: %w", err)
	}

	direction := model.SyncDirection(mc.SyncDirection)
	if mc.SyncDirection == "" {
		direction = model.DirectionBidirectional
	}

	existing, err := a.db.ListMappings()
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}
	for _, m := range existing {
		if m.RemoteDriveID == mc.RemoteDriveID && m.LocalFolderPath == localPath {
			m.ExcludePatterns = mc.ExcludePatterns
			m.MaxFileSize = mc.MaxFileSize
			m.SyncDirection = direction
			m.UploadPriority = mc.UploadPriority
			m.AutoApprove = mc.AutoApprove
			return m, nil
		}
	}

	mapping := &model.DriveMapping{
		ID:              sync.UUIDGenerator{}.New(),
		RemoteDriveID:   mc.RemoteDriveID,
		DriveName:       mc.DriveName,
		LocalFolderPath: localPath,
		RootFolderID:    mc.RootFolderID,
		ExcludePatterns: mc.ExcludePatterns,
		MaxFileSize:     mc.MaxFileSize,
		SyncDirection:   direction,
		UploadPriority:  mc.UploadPriority,
		AutoApprove:     mc.AutoApprove,
		CreatedAt:       time.Now().UTC(),
	}
	if err := a.db.CreateMapping(mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// Engines returns the orchestrators keyed by mapping ID.
func (a *App) Engines() map[string]*sync.Orchestrator {
	return a.engines
}

// Engine returns the orchestrator for a mapping ID, or an error naming it.
func (a *App) Engine(mappingID string) (*sync.Orchestrator, error) {
	e, ok := a.engines[mappingID]
	if !ok {
		return nil, fmt.Errorf("no engine for mapping: %s", mappingID)
	}
	return e, nil
}

// StartAll starts every engine. The first failure stops the already
// started engines and is returned.
func (a *App) StartAll(ctx context.Context) error {
	var started []*sync.Orchestrator
	for id, e := range a.engines {
		if err := e.Start(ctx); err != nil {
			for _, s := range started {
				s.Stop()
			}
			return fmt.Errorf("starting engine for mapping %s: %w", id, err)
		}
		started = append(started, e)
	}
	return nil
}

// StopAll stops every running engine, returning the first error.
func (a *App) StopAll() error {
	var firstErr error
	for _, e := range a.engines {
		if e.State() != sync.StateRunning && e.State() != sync.StatePaused {
			continue
		}
		if err := e.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ListMappings returns every registered mapping.
func (a *App) ListMappings() ([]*model.DriveMapping, error) {
	return a.db.ListMappings()
}

// ListUploads returns the most recent uploads for a mapping.
func (a *App) ListUploads(mappingID string, limit int) ([]*model.Upload, error) {
	return a.db.ListUploads(mappingID, limit)
}

// ListDownloads returns the most recent downloads for a mapping.
func (a *App) ListDownloads(mappingID string, limit int) ([]*model.Download, error) {
	return a.db.ListDownloads(mappingID, limit)
}

// FileHistory returns a path's versions, newest first.
func (a *App) FileHistory(mappingID, path string) ([]*model.FileVersion, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.db.VersionsForPath(mappingID, abs)
}

// FileLog returns a path's audit-trail entries, newest first.
func (a *App) FileLog(mappingID, path string, limit int) ([]*model.FileOperation, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.db.OperationsForPath(mappingID, abs, limit)
}

// Close stops the engines and releases all resources.
func (a *App) Close() error {
	firstErr := a.StopAll()

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
