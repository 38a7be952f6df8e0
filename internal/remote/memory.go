package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/google/uuid"

	"drivesync/internal/model"
	"drivesync/internal/sync"
)

// MemoryRemote is an in-memory implementation of the RemoteStore interface.
// It holds the folder tree and file content in maps, making it useful for
// testing. This implementation is safe for concurrent use.
type MemoryRemote struct {
	name string
	mu   gosync.RWMutex

	// nodes holds every folder and file by remote ID. The root folder is
	// created up front with ID "root".
	nodes map[string]*memoryNode

	// content holds file bytes keyed by SHA-256 (the data ID).
	content map[string][]byte
}

type memoryNode struct {
	id       string
	name     string
	typ      model.EntryType
	parentID string
	size     int64
	hash     string // data ID for files
	children map[string]string // child name -> node ID, folders only
}

// RootID is the remote ID of a MemoryRemote's root folder.
const RootID = "root"

// NewMemoryRemote creates a new in-memory remote with the given name.
func NewMemoryRemote(name string) *MemoryRemote {
	root := &memoryNode{
		id:       RootID,
		name:     name,
		typ:      model.EntryFolder,
		children: make(map[string]string),
	}
	return &MemoryRemote{
		name:    name,
		nodes:   map[string]*memoryNode{RootID: root},
		content: make(map[string][]byte),
	}
}

// ListFolder returns the immediate children of a remote folder.
func (m *MemoryRemote) ListFolder(_ context.Context, folderID string) ([]sync.RemoteEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	folder, err := m.folder(folderID)
	if err != nil {
		return nil, err
	}

	entries := make([]sync.RemoteEntry, 0, len(folder.children))
	for _, childID := range folder.children {
		child := m.nodes[childID]
		entries = append(entries, sync.RemoteEntry{
			ID:          child.id,
			Name:        child.name,
			Type:        child.typ,
			ParentID:    folderID,
			Size:        child.size,
			ContentHash: child.hash,
		})
	}
	return entries, nil
}

// CreateFolder creates a child folder, returning the existing ID if a
// folder with that name is already present.
func (m *MemoryRemote) CreateFolder(_ context.Context, parentID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, err := m.folder(parentID)
	if err != nil {
		return "", err
	}

	if childID, ok := parent.children[name]; ok {
		child := m.nodes[childID]
		if child.typ != model.EntryFolder {
			return "", fmt.Errorf("file already exists with name: %s", name)
		}
		return childID, nil
	}

	node := &memoryNode{
		id:       uuid.New().String(),
		name:     name,
		typ:      model.EntryFolder,
		parentID: parentID,
		children: make(map[string]string),
	}
	m.nodes[node.id] = node
	parent.children[name] = node.id
	return node.id, nil
}

// UploadFile stores the file at localPath under the given parent folder.
// Content is stored once per SHA-256; uploading the same name again
// replaces the file node.
func (m *MemoryRemote) UploadFile(_ context.Context, localPath, parentID string) (*sync.UploadResult, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, err := m.folder(parentID)
	if err != nil {
		return nil, err
	}

	// Idempotent: storing the same checksum multiple times is safe
	m.content[hash] = data

	name := filepath.Base(localPath)
	node := &memoryNode{
		id:       uuid.New().String(),
		name:     name,
		typ:      model.EntryFile,
		parentID: parentID,
		size:     int64(len(data)),
		hash:     hash,
	}
	if oldID, ok := parent.children[name]; ok {
		delete(m.nodes, oldID)
	}
	m.nodes[node.id] = node
	parent.children[name] = node.id

	return &sync.UploadResult{
		DataID:     hash,
		MetadataID: node.id,
		FileID:     node.id,
	}, nil
}

// DownloadFile fetches a remote file's bytes and writes them to destPath.
func (m *MemoryRemote) DownloadFile(_ context.Context, fileID, destPath string) error {
	m.mu.RLock()
	node, ok := m.nodes[fileID]
	var data []byte
	if ok && node.typ == model.EntryFile {
		data = m.content[node.hash]
	}
	m.mu.RUnlock()

	if !ok || node.typ != model.EntryFile {
		return fmt.Errorf("file not found: %s", fileID)
	}
	if data == nil {
		return fmt.Errorf("content not found: %s", node.hash)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// folder returns the folder node for an ID. Callers hold the lock.
func (m *MemoryRemote) folder(id string) (*memoryNode, error) {
	node, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("folder not found: %s", id)
	}
	if node.typ != model.EntryFolder {
		return nil, fmt.Errorf("not a folder: %s", id)
	}
	return node, nil
}

// Compile-time check that MemoryRemote implements the RemoteStore interface
var _ sync.RemoteStore = (*MemoryRemote)(nil)
