package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"drivesync/internal/model"
	"drivesync/internal/sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the sync Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

var _ sync.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs. Exported for tools and tests that need a properly
// configured connection. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// A single connection keeps :memory: databases coherent and avoids
	// SQLITE_BUSY between the per-mapping engines.
	db.SetMaxOpenConns(1)

	return db, nil
}

// DB exposes the underlying connection for migration checks.
func (s *SQLiteDatabase) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

// Mapping operations

func (s *SQLiteDatabase) CreateMapping(m *model.DriveMapping) error {
	var lastSync sql.NullTime
	if m.LastSyncTime != nil {
		lastSync = sql.NullTime{Time: *m.LastSyncTime, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO drive_mappings
			(id, remote_drive_id, drive_name, local_folder_path, root_folder_id,
			 exclude_patterns, max_file_size, sync_direction, upload_priority,
			 auto_approve, last_sync_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.RemoteDriveID, m.DriveName, m.LocalFolderPath, m.RootFolderID,
		joinPatterns(m.ExcludePatterns), m.MaxFileSize, string(m.SyncDirection),
		m.UploadPriority, m.AutoApprove, lastSync, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting mapping: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetMapping(id string) (*model.DriveMapping, error) {
	row := s.db.QueryRow(`
		SELECT id, remote_drive_id, drive_name, local_folder_path, root_folder_id,
		       exclude_patterns, max_file_size, sync_direction, upload_priority,
		       auto_approve, last_sync_time, created_at
		FROM drive_mappings WHERE id = ?`, id)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding mapping: %w", err)
	}
	return m, nil
}

func (s *SQLiteDatabase) ListMappings() ([]*model.DriveMapping, error) {
	rows, err := s.db.Query(`
		SELECT id, remote_drive_id, drive_name, local_folder_path, root_folder_id,
		       exclude_patterns, max_file_size, sync_direction, upload_priority,
		       auto_approve, last_sync_time, created_at
		FROM drive_mappings ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}
	defer rows.Close()

	var out []*model.DriveMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) UpdateMappingLastSync(id string, t time.Time) error {
	res, err := s.db.Exec(`UPDATE drive_mappings SET last_sync_time = ? WHERE id = ?`, t, id)
	if err != nil {
		return fmt.Errorf("updating last sync time: %w", err)
	}
	return requireRow(res, "mapping", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (*model.DriveMapping, error) {
	var m model.DriveMapping
	var patterns, direction string
	var lastSync sql.NullTime
	err := row.Scan(&m.ID, &m.RemoteDriveID, &m.DriveName, &m.LocalFolderPath,
		&m.RootFolderID, &patterns, &m.MaxFileSize, &direction, &m.UploadPriority,
		&m.AutoApprove, &lastSync, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.ExcludePatterns = splitPatterns(patterns)
	m.SyncDirection = model.SyncDirection(direction)
	if lastSync.Valid {
		t := lastSync.Time
		m.LastSyncTime = &t
	}
	return &m, nil
}

// Exclude patterns are stored newline-joined; patterns never contain
// newlines.
func joinPatterns(patterns []string) string {
	return strings.Join(patterns, "\n")
}

func splitPatterns(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// FileVersion operations

func (s *SQLiteDatabase) LatestVersion(mappingID, filePath string) (*model.FileVersion, error) {
	row := s.db.QueryRow(versionSelect+` WHERE mapping_id = ? AND file_path = ? AND is_latest = 1`,
		mappingID, filePath)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding latest version: %w", err)
	}
	return v, nil
}

func (s *SQLiteDatabase) AppendFileVersion(v *model.FileVersion) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Flip the prior latest before inserting so exactly one row per
	// (mapping, path) ever carries is_latest.
	if _, err := tx.Exec(`
		UPDATE file_versions SET is_latest = 0
		WHERE mapping_id = ? AND file_path = ? AND is_latest = 1`,
		v.MappingID, v.FilePath); err != nil {
		return fmt.Errorf("clearing latest flag: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO file_versions
			(id, mapping_id, content_hash, file_name, file_path, relative_path,
			 file_size, remote_data_id, remote_metadata_id, version, parent_version,
			 change_type, upload_method, created_at, is_latest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.MappingID, v.ContentHash, v.FileName, v.FilePath, v.RelativePath,
		v.FileSize, v.RemoteDataID, v.RemoteMetadataID, v.Version, v.ParentVersion,
		string(v.ChangeType), v.UploadMethod, v.CreatedAt, v.IsLatest); err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) SetVersionRemoteIDs(versionID, dataID, metadataID string) error {
	res, err := s.db.Exec(`
		UPDATE file_versions SET remote_data_id = ?, remote_metadata_id = ?
		WHERE id = ?`, dataID, metadataID, versionID)
	if err != nil {
		return fmt.Errorf("updating version remote ids: %w", err)
	}
	return requireRow(res, "version", versionID)
}

func (s *SQLiteDatabase) VersionsForPath(mappingID, filePath string) ([]*model.FileVersion, error) {
	rows, err := s.db.Query(versionSelect+`
		WHERE mapping_id = ? AND file_path = ? ORDER BY version DESC`,
		mappingID, filePath)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var out []*model.FileVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const versionSelect = `
	SELECT id, mapping_id, content_hash, file_name, file_path, relative_path,
	       file_size, remote_data_id, remote_metadata_id, version, parent_version,
	       change_type, upload_method, created_at, is_latest
	FROM file_versions`

func scanVersion(row rowScanner) (*model.FileVersion, error) {
	var v model.FileVersion
	var changeType string
	err := row.Scan(&v.ID, &v.MappingID, &v.ContentHash, &v.FileName, &v.FilePath,
		&v.RelativePath, &v.FileSize, &v.RemoteDataID, &v.RemoteMetadataID,
		&v.Version, &v.ParentVersion, &changeType, &v.UploadMethod, &v.CreatedAt,
		&v.IsLatest)
	if err != nil {
		return nil, err
	}
	v.ChangeType = model.ChangeType(changeType)
	return &v, nil
}

// FileOperation operations

func (s *SQLiteDatabase) AppendFileOperation(op *model.FileOperation) error {
	_, err := s.db.Exec(`
		INSERT INTO file_operations
			(id, mapping_id, content_hash, operation, from_path, to_path, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.MappingID, op.ContentHash, string(op.Operation),
		op.FromPath, op.ToPath, op.Metadata, op.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) OperationsForPath(mappingID, path string, limit int) ([]*model.FileOperation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, mapping_id, content_hash, operation, from_path, to_path, metadata, timestamp
		FROM file_operations
		WHERE mapping_id = ? AND (to_path = ? OR from_path = ?)
		ORDER BY timestamp DESC LIMIT ?`,
		mappingID, path, path, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var out []*model.FileOperation
	for rows.Next() {
		var op model.FileOperation
		var opType string
		if err := rows.Scan(&op.ID, &op.MappingID, &op.ContentHash, &opType,
			&op.FromPath, &op.ToPath, &op.Metadata, &op.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.Operation = model.OperationType(opType)
		out = append(out, &op)
	}
	return out, rows.Err()
}

// ProcessedFile operations

func (s *SQLiteDatabase) RecordProcessedFile(p *model.ProcessedFile) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO processed_files
			(content_hash, mapping_id, file_name, file_size, local_path, source,
			 remote_id, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ContentHash, p.MappingID, p.FileName, p.FileSize, p.LocalPath,
		string(p.Source), p.RemoteID, p.ProcessedAt)
	if err != nil {
		return fmt.Errorf("recording processed file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindProcessedFile(mappingID, contentHash string) (*model.ProcessedFile, error) {
	row := s.db.QueryRow(`
		SELECT content_hash, mapping_id, file_name, file_size, local_path, source,
		       remote_id, processed_at
		FROM processed_files WHERE mapping_id = ? AND content_hash = ?`,
		mappingID, contentHash)

	var p model.ProcessedFile
	var source string
	err := row.Scan(&p.ContentHash, &p.MappingID, &p.FileName, &p.FileSize,
		&p.LocalPath, &source, &p.RemoteID, &p.ProcessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding processed file: %w", err)
	}
	p.Source = model.Source(source)
	return &p, nil
}

// PendingUpload operations

func (s *SQLiteDatabase) CreatePendingUpload(p *model.PendingUpload) error {
	_, err := s.db.Exec(`
		INSERT INTO pending_uploads
			(id, mapping_id, local_path, file_name, file_size, content_hash,
			 estimated_cost, recommended_method, conflict_info, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MappingID, p.LocalPath, p.FileName, p.FileSize, p.ContentHash,
		p.EstimatedCost, p.RecommendedMethod, p.ConflictInfo, string(p.Status),
		p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting pending upload: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetPendingUpload(id string) (*model.PendingUpload, error) {
	row := s.db.QueryRow(pendingSelect+` WHERE id = ?`, id)
	p, err := scanPending(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding pending upload: %w", err)
	}
	return p, nil
}

func (s *SQLiteDatabase) ListPendingUploads(mappingID string, status model.PendingStatus) ([]*model.PendingUpload, error) {
	rows, err := s.db.Query(pendingSelect+`
		WHERE mapping_id = ? AND status = ? ORDER BY created_at`,
		mappingID, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing pending uploads: %w", err)
	}
	defer rows.Close()

	var out []*model.PendingUpload
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pending upload: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) UpdatePendingUploadStatus(id string, status model.PendingStatus) error {
	res, err := s.db.Exec(`UPDATE pending_uploads SET status = ? WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("updating pending upload status: %w", err)
	}
	return requireRow(res, "pending upload", id)
}

const pendingSelect = `
	SELECT id, mapping_id, local_path, file_name, file_size, content_hash,
	       estimated_cost, recommended_method, conflict_info, status, created_at
	FROM pending_uploads`

func scanPending(row rowScanner) (*model.PendingUpload, error) {
	var p model.PendingUpload
	var status string
	err := row.Scan(&p.ID, &p.MappingID, &p.LocalPath, &p.FileName, &p.FileSize,
		&p.ContentHash, &p.EstimatedCost, &p.RecommendedMethod, &p.ConflictInfo,
		&status, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.PendingStatus(status)
	return &p, nil
}

// Upload operations

func (s *SQLiteDatabase) CreateUpload(u *model.Upload) error {
	_, err := s.db.Exec(`
		INSERT INTO uploads
			(id, mapping_id, pending_upload_id, local_path, file_name, file_size,
			 content_hash, status, progress, priority, remote_data_id,
			 remote_metadata_id, remote_file_id, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.MappingID, u.PendingUploadID, u.LocalPath, u.FileName, u.FileSize,
		u.ContentHash, string(u.Status), u.Progress, u.Priority, u.RemoteDataID,
		u.RemoteMetadataID, u.RemoteFileID, u.ErrorMessage, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting upload: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateUploadStatus(id string, status model.TransferStatus, errorMessage string) error {
	res, err := s.db.Exec(`
		UPDATE uploads SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, string(status), errorMessage, id)
	if err != nil {
		return fmt.Errorf("updating upload status: %w", err)
	}
	return requireRow(res, "upload", id)
}

func (s *SQLiteDatabase) SetUploadRemoteIDs(id, dataID, metadataID, fileID string) error {
	res, err := s.db.Exec(`
		UPDATE uploads
		SET remote_data_id = ?, remote_metadata_id = ?, remote_file_id = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, dataID, metadataID, fileID, id)
	if err != nil {
		return fmt.Errorf("updating upload remote ids: %w", err)
	}
	return requireRow(res, "upload", id)
}

func (s *SQLiteDatabase) ListUploads(mappingID string, limit int) ([]*model.Upload, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, mapping_id, pending_upload_id, local_path, file_name, file_size,
		       content_hash, status, progress, priority, remote_data_id,
		       remote_metadata_id, remote_file_id, error_message, created_at, updated_at
		FROM uploads WHERE mapping_id = ? ORDER BY created_at DESC LIMIT ?`,
		mappingID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}
	defer rows.Close()

	var out []*model.Upload
	for rows.Next() {
		var u model.Upload
		var status string
		if err := rows.Scan(&u.ID, &u.MappingID, &u.PendingUploadID, &u.LocalPath,
			&u.FileName, &u.FileSize, &u.ContentHash, &status, &u.Progress,
			&u.Priority, &u.RemoteDataID, &u.RemoteMetadataID, &u.RemoteFileID,
			&u.ErrorMessage, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning upload: %w", err)
		}
		u.Status = model.TransferStatus(status)
		out = append(out, &u)
	}
	return out, rows.Err()
}

// Download operations

func (s *SQLiteDatabase) CreateDownload(d *model.Download) error {
	_, err := s.db.Exec(`
		INSERT INTO downloads
			(id, mapping_id, remote_file_id, local_path, file_name, file_size,
			 content_hash, status, progress, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.MappingID, d.RemoteFileID, d.LocalPath, d.FileName, d.FileSize,
		d.ContentHash, string(d.Status), d.Progress, d.ErrorMessage,
		d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting download: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateDownloadStatus(id string, status model.TransferStatus, errorMessage string) error {
	res, err := s.db.Exec(`
		UPDATE downloads SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, string(status), errorMessage, id)
	if err != nil {
		return fmt.Errorf("updating download status: %w", err)
	}
	return requireRow(res, "download", id)
}

func (s *SQLiteDatabase) ListDownloads(mappingID string, limit int) ([]*model.Download, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, mapping_id, remote_file_id, local_path, file_name, file_size,
		       content_hash, status, progress, error_message, created_at, updated_at
		FROM downloads WHERE mapping_id = ? ORDER BY created_at DESC LIMIT ?`,
		mappingID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing downloads: %w", err)
	}
	defer rows.Close()

	var out []*model.Download
	for rows.Next() {
		var d model.Download
		var status string
		if err := rows.Scan(&d.ID, &d.MappingID, &d.RemoteFileID, &d.LocalPath,
			&d.FileName, &d.FileSize, &d.ContentHash, &status, &d.Progress,
			&d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning download: %w", err)
		}
		d.Status = model.TransferStatus(status)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Metadata cache operations

func (s *SQLiteDatabase) ReplaceMetadata(mappingID string, entries []*model.MetadataEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM drive_metadata_cache WHERE mapping_id = ?`,
		mappingID); err != nil {
		return fmt.Errorf("clearing metadata cache: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO drive_metadata_cache
			(mapping_id, remote_id, parent_remote_id, name, path, type, size,
			 content_hash, local_path, local_file_exists, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing metadata insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(mappingID, e.RemoteID, e.ParentRemoteID, e.Name,
			e.Path, string(e.Type), e.Size, e.ContentHash, e.LocalPath,
			e.LocalFileExists, string(e.SyncStatus)); err != nil {
			return fmt.Errorf("inserting metadata entry %s: %w", e.RemoteID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateMetadataStatus(mappingID, remoteID string, status model.SyncStatus) error {
	synced := status == model.StatusSynced
	res, err := s.db.Exec(`
		UPDATE drive_metadata_cache
		SET sync_status = ?, local_file_exists = local_file_exists OR ?
		WHERE mapping_id = ? AND remote_id = ?`,
		string(status), synced, mappingID, remoteID)
	if err != nil {
		return fmt.Errorf("updating metadata status: %w", err)
	}
	return requireRow(res, "metadata entry", remoteID)
}

func (s *SQLiteDatabase) ListMetadata(mappingID string) ([]*model.MetadataEntry, error) {
	return s.queryMetadata(`
		SELECT mapping_id, remote_id, parent_remote_id, name, path, type, size,
		       content_hash, local_path, local_file_exists, sync_status
		FROM drive_metadata_cache WHERE mapping_id = ? ORDER BY path`, mappingID)
}

func (s *SQLiteDatabase) ListMetadataByStatus(mappingID string, status model.SyncStatus) ([]*model.MetadataEntry, error) {
	return s.queryMetadata(`
		SELECT mapping_id, remote_id, parent_remote_id, name, path, type, size,
		       content_hash, local_path, local_file_exists, sync_status
		FROM drive_metadata_cache
		WHERE mapping_id = ? AND sync_status = ? ORDER BY path`,
		mappingID, string(status))
}

func (s *SQLiteDatabase) queryMetadata(query string, args ...any) ([]*model.MetadataEntry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing metadata: %w", err)
	}
	defer rows.Close()

	var out []*model.MetadataEntry
	for rows.Next() {
		var e model.MetadataEntry
		var entryType, status string
		if err := rows.Scan(&e.MappingID, &e.RemoteID, &e.ParentRemoteID, &e.Name,
			&e.Path, &entryType, &e.Size, &e.ContentHash, &e.LocalPath,
			&e.LocalFileExists, &status); err != nil {
			return nil, fmt.Errorf("scanning metadata entry: %w", err)
		}
		e.Type = model.EntryType(entryType)
		e.SyncStatus = model.SyncStatus(status)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// requireRow converts a zero-rows-affected update into a not-found error.
func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
