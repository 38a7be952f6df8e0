package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"drivesync/internal/model"
	"drivesync/internal/sync"
)

// FileSystemRemote is a filesystem-based implementation of the RemoteStore
// interface. A directory tree under root stands in for the remote drive;
// remote IDs are slash-separated paths relative to root, with "." naming
// the root folder itself. Useful for local testing against a real disk.
type FileSystemRemote struct {
	name string
	root string
}

// NewFileSystemRemote creates a filesystem remote rooted at the given path.
func NewFileSystemRemote(name, root string) (*FileSystemRemote, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create remote root: %w", err)
	}
	return &FileSystemRemote{name: name, root: root}, nil
}

// ListFolder returns the immediate children of a remote folder.
func (v *FileSystemRemote) ListFolder(_ context.Context, folderID string) ([]sync.RemoteEntry, error) {
	dir, err := v.resolve(folderID)
	if err != nil {
		return nil, err
	}

	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
	}

	var entries []sync.RemoteEntry
	for _, de := range dirents {
		childID := path.Join(folderID, de.Name())
		entry := sync.RemoteEntry{
			ID:       childID,
			Name:     de.Name(),
			ParentID: folderID,
		}
		if de.IsDir() {
			entry.Type = model.EntryFolder
		} else {
			info, err := de.Info()
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", childID, err)
			}
			entry.Type = model.EntryFile
			entry.Size = info.Size()
			hash, err := hashFile(filepath.Join(dir, de.Name()))
			if err != nil {
				return nil, err
			}
			entry.ContentHash = hash
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CreateFolder creates a child folder, returning the existing ID if it is
// already present.
func (v *FileSystemRemote) CreateFolder(_ context.Context, parentID, name string) (string, error) {
	parentDir, err := v.resolve(parentID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(parentDir, name), 0755); err != nil {
		return "", fmt.Errorf("failed to create folder: %w", err)
	}
	return path.Join(parentID, name), nil
}

// UploadFile stores the file at localPath under the given parent folder.
func (v *FileSystemRemote) UploadFile(_ context.Context, localPath, parentID string) (*sync.UploadResult, error) {
	parentDir, err := v.resolve(parentID)
	if err != nil {
		return nil, err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	name := filepath.Base(localPath)
	destPath := filepath.Join(parentDir, name)

	hash, err := writeFileAtomic(destPath, src)
	if err != nil {
		return nil, err
	}

	fileID := path.Join(parentID, name)
	return &sync.UploadResult{
		DataID:     hash,
		MetadataID: fileID,
		FileID:     fileID,
	}, nil
}

// DownloadFile fetches a remote file's bytes and writes them to destPath.
func (v *FileSystemRemote) DownloadFile(_ context.Context, fileID, destPath string) error {
	srcPath, err := v.resolve(fileID)
	if err != nil {
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", fileID)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	if _, err := writeFileAtomic(destPath, src); err != nil {
		return err
	}
	return nil
}

// resolve maps a remote ID onto a local path under root, rejecting IDs
// that escape the tree.
func (v *FileSystemRemote) resolve(id string) (string, error) {
	if id == "" || id == "." {
		return v.root, nil
	}
	clean := path.Clean(id)
	if strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return "", fmt.Errorf("invalid remote id: %s", id)
	}
	return filepath.Join(v.root, filepath.FromSlash(clean)), nil
}

// writeFileAtomic writes data from r to destPath using a temp file and
// rename, returning the content's SHA-256.
func writeFileAtomic(destPath string, r io.Reader) (string, error) {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmpFile, h), r); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true

	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashFile computes the SHA-256 of a file's content.
func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Compile-time check that FileSystemRemote implements the RemoteStore interface
var _ sync.RemoteStore = (*FileSystemRemote)(nil)
