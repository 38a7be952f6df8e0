package model

import "time"

// ChangeType describes how a file version came to exist.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeRename ChangeType = "rename"
	ChangeMove   ChangeType = "move"
)

// OperationType is the kind of entry in the file operation audit log.
type OperationType string

const (
	OpUpload   OperationType = "upload"
	OpDownload OperationType = "download"
	OpRename   OperationType = "rename"
	OpMove     OperationType = "move"
	OpDelete   OperationType = "delete"
)

// Source records which side of the sync produced a processed-file entry.
type Source string

const (
	SourceUpload   Source = "upload"
	SourceDownload Source = "download"
)

// SyncDirection controls which halves of the sync loop run for a mapping.
type SyncDirection string

const (
	DirectionBidirectional SyncDirection = "bidirectional"
	DirectionUploadOnly    SyncDirection = "upload-only"
	DirectionDownloadOnly  SyncDirection = "download-only"
)

// PendingStatus is the approval state of a candidate upload.
type PendingStatus string

const (
	PendingAwaitingApproval PendingStatus = "awaiting_approval"
	PendingApproved         PendingStatus = "approved"
	PendingRejected         PendingStatus = "rejected"
)

// TransferStatus is the lifecycle state of an upload or download record.
type TransferStatus string

const (
	TransferPending     TransferStatus = "pending"
	TransferUploading   TransferStatus = "uploading"
	TransferDownloading TransferStatus = "downloading"
	TransferCompleted   TransferStatus = "completed"
	TransferFailed      TransferStatus = "failed"
)

// EntryType distinguishes files from folders in the remote tree.
type EntryType string

const (
	EntryFile   EntryType = "file"
	EntryFolder EntryType = "folder"
)

// SyncStatus is the reconciliation state of a metadata cache entry.
type SyncStatus string

const (
	StatusSynced      SyncStatus = "synced"
	StatusPending     SyncStatus = "pending"
	StatusDownloading SyncStatus = "downloading"
	StatusError       SyncStatus = "error"
)

// FileVersion is one known state of a file's content and location.
// Versions are immutable once written; only IsLatest flips, and exactly one
// version per (mapping, file path) carries IsLatest=true at any time.
type FileVersion struct {
	ID               string // UUID
	MappingID        string // Foreign key to DriveMapping
	ContentHash      string // SHA-256 hex
	FileName         string
	FilePath         string // Absolute path on host
	RelativePath     string // Relative to the mapping's local folder
	FileSize         int64
	RemoteDataID     string // Empty until uploaded
	RemoteMetadataID string // Empty until uploaded
	Version          int64  // Monotonic per path, starting at 1
	ParentVersion    string // ID of prior version, empty for the first
	ChangeType       ChangeType
	UploadMethod     string
	CreatedAt        time.Time
	IsLatest         bool
}

// FileOperation is an append-only audit log entry. Never mutated or deleted.
type FileOperation struct {
	ID          string // UUID
	MappingID   string
	ContentHash string
	Operation   OperationType
	FromPath    string // For rename/move/delete
	ToPath      string // For rename/move/upload/download
	Metadata    string // Opaque JSON blob
	Timestamp   time.Time
}

// ProcessedFile is the dedup ledger entry: presence of a hash for a mapping
// means this exact content must not be re-uploaded or re-downloaded.
type ProcessedFile struct {
	ContentHash string
	MappingID   string
	FileName    string
	FileSize    int64
	LocalPath   string
	Source      Source
	RemoteID    string
	ProcessedAt time.Time
}

// PendingUpload is a candidate local change awaiting external approval.
type PendingUpload struct {
	ID                string // UUID
	MappingID         string
	LocalPath         string
	FileName          string
	FileSize          int64
	ContentHash       string
	EstimatedCost     int64
	RecommendedMethod string
	ConflictInfo      string
	Status            PendingStatus
	CreatedAt         time.Time
}

// Upload is the lifecycle record of a single upload attempt.
// Rows are created on enqueue and mutated through their status lifecycle;
// they are retained for audit, never deleted.
type Upload struct {
	ID               string // UUID
	MappingID        string
	PendingUploadID  string // Empty when enqueued without the approval gate
	LocalPath        string
	FileName         string
	FileSize         int64
	ContentHash      string
	Status           TransferStatus
	Progress         float64
	Priority         int
	RemoteDataID     string
	RemoteMetadataID string
	RemoteFileID     string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Download is the lifecycle record of a single download attempt.
type Download struct {
	ID           string // UUID
	MappingID    string
	RemoteFileID string
	LocalPath    string
	FileName     string
	FileSize     int64
	ContentHash  string
	Status       TransferStatus
	Progress     float64
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DriveMapping binds a local folder to a remote drive, with its own sync
// settings. Each mapping runs an independent engine instance.
type DriveMapping struct {
	ID              string // UUID
	RemoteDriveID   string
	DriveName       string
	LocalFolderPath string // Absolute path on host
	RootFolderID    string
	ExcludePatterns []string
	MaxFileSize     int64 // Bytes; 0 means no per-mapping limit
	SyncDirection   SyncDirection
	UploadPriority  int
	AutoApprove     bool
	LastSyncTime    *time.Time
	CreatedAt       time.Time
}

// MetadataEntry is one row of the per-mapping remote-tree snapshot.
// The whole set is destroyed and rebuilt at the start of each
// reconciliation pass.
type MetadataEntry struct {
	MappingID       string
	RemoteID        string
	ParentRemoteID  string
	Name            string
	Path            string // Drive-relative path, slash separated
	Type            EntryType
	Size            int64
	ContentHash     string
	LocalPath       string // Absolute path the entry maps to on host
	LocalFileExists bool
	SyncStatus      SyncStatus
}
