package sync

import (
	"context"
	"io"
	"io/fs"
	"time"

	"drivesync/internal/model"
)

// RemoteEntry is one item returned by listing a remote folder.
type RemoteEntry struct {
	ID          string
	Name        string
	Type        model.EntryType
	ParentID    string
	Size        int64
	ContentHash string
}

// UploadResult carries the remote identifiers minted by an upload.
type UploadResult struct {
	DataID     string
	MetadataID string
	FileID     string
}

// RemoteStore is the interface to the remote, content-addressed drive
// backend. Implementations own their own timeout/retry policy; the engine
// does not add retries around these calls.
type RemoteStore interface {
	// ListFolder returns the immediate children of a remote folder.
	ListFolder(ctx context.Context, folderID string) ([]RemoteEntry, error)

	// CreateFolder creates a child folder and returns its remote ID.
	// Creating a folder that already exists returns the existing ID.
	CreateFolder(ctx context.Context, parentID, name string) (string, error)

	// UploadFile stores the file at localPath under the given parent folder.
	UploadFile(ctx context.Context, localPath, parentID string) (*UploadResult, error)

	// DownloadFile fetches a remote file's bytes and writes them to destPath.
	// The parent directory of destPath must already exist.
	DownloadFile(ctx context.Context, fileID, destPath string) error
}

// Database provides durable storage for every sync entity.
// Implementations must tolerate concurrent readers and writers across
// mappings; all mutations that span rows happen in a single transaction.
type Database interface {
	// Mapping operations

	CreateMapping(m *model.DriveMapping) error
	GetMapping(id string) (*model.DriveMapping, error)
	ListMappings() ([]*model.DriveMapping, error)
	UpdateMappingLastSync(id string, t time.Time) error

	// FileVersion operations

	// LatestVersion returns the IsLatest version for a path, or nil.
	LatestVersion(mappingID, filePath string) (*model.FileVersion, error)

	// AppendFileVersion flips the prior latest version to false and inserts
	// v as the new latest, in one transaction.
	AppendFileVersion(v *model.FileVersion) error

	// SetVersionRemoteIDs records the remote identifiers on a version after
	// a successful upload.
	SetVersionRemoteIDs(versionID, dataID, metadataID string) error

	// VersionsForPath returns all versions for a path, newest first.
	VersionsForPath(mappingID, filePath string) ([]*model.FileVersion, error)

	// FileOperation operations (append-only audit log)

	AppendFileOperation(op *model.FileOperation) error
	OperationsForPath(mappingID, path string, limit int) ([]*model.FileOperation, error)

	// ProcessedFile operations (dedup ledger)

	// RecordProcessedFile inserts or replaces the ledger entry for
	// (contentHash, mapping).
	RecordProcessedFile(p *model.ProcessedFile) error
	FindProcessedFile(mappingID, contentHash string) (*model.ProcessedFile, error)

	// PendingUpload operations

	CreatePendingUpload(p *model.PendingUpload) error
	GetPendingUpload(id string) (*model.PendingUpload, error)
	ListPendingUploads(mappingID string, status model.PendingStatus) ([]*model.PendingUpload, error)
	UpdatePendingUploadStatus(id string, status model.PendingStatus) error

	// Upload operations

	CreateUpload(u *model.Upload) error
	UpdateUploadStatus(id string, status model.TransferStatus, errorMessage string) error
	SetUploadRemoteIDs(id, dataID, metadataID, fileID string) error
	ListUploads(mappingID string, limit int) ([]*model.Upload, error)

	// Download operations

	CreateDownload(d *model.Download) error
	UpdateDownloadStatus(id string, status model.TransferStatus, errorMessage string) error
	ListDownloads(mappingID string, limit int) ([]*model.Download, error)

	// Metadata cache operations

	// ReplaceMetadata deletes the mapping's entire metadata cache and
	// inserts the given entries, in one transaction.
	ReplaceMetadata(mappingID string, entries []*model.MetadataEntry) error
	UpdateMetadataStatus(mappingID, remoteID string, status model.SyncStatus) error
	ListMetadata(mappingID string) ([]*model.MetadataEntry, error)
	ListMetadataByStatus(mappingID string, status model.SyncStatus) ([]*model.MetadataEntry, error)

	// Close closes the database connection.
	Close() error
}

// FilesystemManager abstracts file access so the engine can be tested
// without touching the real filesystem.
type FilesystemManager interface {
	// Stat returns fresh file info for a path.
	Stat(path string) (fs.FileInfo, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// MkdirAll creates a directory and any missing parents. Idempotent.
	MkdirAll(path string) error

	// FindFiles discovers regular files under root. When recursive is true,
	// files in subdirectories are included.
	FindFiles(root string, recursive bool) ([]string, error)
}

// WatchOp is the kind of raw filesystem event delivered by a Watcher.
type WatchOp int

const (
	// WatchCreate indicates a new file appeared.
	WatchCreate WatchOp = iota
	// WatchWrite indicates an existing file was written.
	WatchWrite
	// WatchRemove indicates a file disappeared (delete or rename-away).
	WatchRemove
)

// String returns a human-readable representation of the operation.
func (op WatchOp) String() string {
	switch op {
	case WatchCreate:
		return "create"
	case WatchWrite:
		return "write"
	case WatchRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// WatchEvent is a raw filesystem event for a path under a watched root.
type WatchEvent struct {
	Path string
	Op   WatchOp
}

// Watcher delivers raw filesystem events for a directory tree.
// The orchestrator owns the watcher lifecycle: attached on start and
// resume, detached on stop and pause.
type Watcher interface {
	// Start begins watching root and all of its subdirectories.
	Start(root string) error

	// Stop detaches the watcher and closes the event channels.
	Stop() error

	// Events returns the channel of raw filesystem events.
	Events() <-chan WatchEvent

	// Errors returns the channel of watcher errors.
	Errors() <-chan error
}
