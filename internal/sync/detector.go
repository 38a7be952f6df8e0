package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	"drivesync/internal/model"
)

// Change is the outcome of comparing a path against its last known version.
type Change int

const (
	ChangeUnchanged Change = iota
	ChangeCreated
	ChangeUpdated
)

// String returns a human-readable representation of the change.
func (c Change) String() string {
	switch c {
	case ChangeUnchanged:
		return "unchanged"
	case ChangeCreated:
		return "create"
	case ChangeUpdated:
		return "update"
	default:
		return "unknown"
	}
}

// ChangeDetector computes content hashes and tracks a path's state against
// its version history for one mapping.
type ChangeDetector struct {
	mapping *model.DriveMapping
	db      Database
	fsmgr   FilesystemManager
	logger  Logger
	clock   Clock
	idgen   IDGenerator
}

// NewChangeDetector creates a detector bound to a single mapping.
func NewChangeDetector(mapping *model.DriveMapping, db Database, fsmgr FilesystemManager, logger Logger, clock Clock, idgen IDGenerator) *ChangeDetector {
	return &ChangeDetector{
		mapping: mapping,
		db:      db,
		fsmgr:   fsmgr,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
	}
}

// streamHash computes the SHA-256 of r as lowercase hex without loading
// the content into memory.
func streamHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Hash computes the streaming SHA-256 of a file's content as lowercase hex.
func (d *ChangeDetector) Hash(path string) (string, error) {
	f, err := d.fsmgr.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w: %w", path, ErrHash, err)
	}
	defer f.Close()

	hash, err := streamHash(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w: %w", path, ErrHash, err)
	}
	return hash, nil
}

// DetectChange compares the path's current content hash against its latest
// recorded version. No existing version means create; a differing hash
// means update; otherwise unchanged.
func (d *ChangeDetector) DetectChange(path string) (Change, string, error) {
	hash, err := d.Hash(path)
	if err != nil {
		return ChangeUnchanged, "", err
	}
	change, err := d.CompareHash(path, hash)
	if err != nil {
		return ChangeUnchanged, "", err
	}
	return change, hash, nil
}

// CompareHash classifies a precomputed content hash against the path's
// latest recorded version without reading the file.
func (d *ChangeDetector) CompareHash(path, hash string) (Change, error) {
	latest, err := d.db.LatestVersion(d.mapping.ID, path)
	if err != nil {
		return ChangeUnchanged, fmt.Errorf("loading latest version: %w", err)
	}

	switch {
	case latest == nil:
		return ChangeCreated, nil
	case latest.ContentHash != hash:
		return ChangeUpdated, nil
	default:
		return ChangeUnchanged, nil
	}
}

// AppendVersion records a new version for the path under the caller's
// content hash: version = last+1 (or 1), parentVersion = last's id. The
// prior latest is flipped to false in the same transaction that inserts
// the new row. A matching FileOperation is appended to the audit log.
func (d *ChangeDetector) AppendVersion(path, hash string, changeType model.ChangeType, fromPath string, remote *UploadResult) (*model.FileVersion, error) {
	info, err := d.fsmgr.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w: %w", path, ErrIO, err)
	}

	last, err := d.db.LatestVersion(d.mapping.ID, path)
	if err != nil {
		return nil, fmt.Errorf("loading latest version: %w", err)
	}

	relPath, err := filepath.Rel(d.mapping.LocalFolderPath, path)
	if err != nil {
		return nil, fmt.Errorf("calculating relative path: %w", err)
	}

	v := &model.FileVersion{
		ID:           d.idgen.New(),
		MappingID:    d.mapping.ID,
		ContentHash:  hash,
		FileName:     filepath.Base(path),
		FilePath:     path,
		RelativePath: relPath,
		FileSize:     info.Size(),
		Version:      1,
		ChangeType:   changeType,
		CreatedAt:    d.clock.Now(),
		IsLatest:     true,
	}
	if last != nil {
		v.Version = last.Version + 1
		v.ParentVersion = last.ID
	}
	if remote != nil {
		v.RemoteDataID = remote.DataID
		v.RemoteMetadataID = remote.MetadataID
	}

	if err := d.db.AppendFileVersion(v); err != nil {
		return nil, fmt.Errorf("appending version: %w", err)
	}

	op := &model.FileOperation{
		ID:          d.idgen.New(),
		MappingID:   d.mapping.ID,
		ContentHash: hash,
		ToPath:      path,
		Timestamp:   d.clock.Now(),
	}
	switch changeType {
	case model.ChangeRename:
		op.Operation = model.OpRename
		op.FromPath = fromPath
	case model.ChangeMove:
		op.Operation = model.OpMove
		op.FromPath = fromPath
	default:
		op.Operation = model.OpUpload
	}
	if err := d.db.AppendFileOperation(op); err != nil {
		return nil, fmt.Errorf("appending operation: %w", err)
	}

	d.logger.Debug("version appended", "path", path, "version", v.Version, "change", string(changeType))
	return v, nil
}

// DetectMove reports whether two paths hold identical content. Any read
// error on either side yields false (fail closed).
func (d *ChangeDetector) DetectMove(pathA, pathB string) bool {
	hashA, err := d.Hash(pathA)
	if err != nil {
		return false
	}
	hashB, err := d.Hash(pathB)
	if err != nil {
		return false
	}
	return hashA == hashB
}
