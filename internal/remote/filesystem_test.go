package remote_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"drivesync/internal/model"
	"drivesync/internal/remote"
	"drivesync/internal/testutil"
)

func TestFileSystemRemote_Roundtrip(t *testing.T) {
	ctx := context.Background()
	store, err := remote.NewFileSystemRemote("Drive", filepath.Join(t.TempDir(), "vault"))
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error: %v", err)
	}

	folderID, err := store.CreateFolder(ctx, ".", "docs")
	if err != nil {
		t.Fatalf("CreateFolder() error: %v", err)
	}
	if folderID != "docs" {
		t.Errorf("folder id = %q, want docs", folderID)
	}

	content := []byte("on disk")
	src := writeTempFile(t, "a.txt", content)
	res, err := store.UploadFile(ctx, src, folderID)
	if err != nil {
		t.Fatalf("UploadFile() error: %v", err)
	}
	if res.FileID != "docs/a.txt" {
		t.Errorf("file id = %q, want docs/a.txt", res.FileID)
	}
	if res.DataID != testutil.SHA256Hex(content) {
		t.Errorf("data id = %q, want content hash", res.DataID)
	}

	entries, err := store.ListFolder(ctx, folderID)
	if err != nil {
		t.Fatalf("ListFolder() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Type != model.EntryFile || entries[0].ContentHash != res.DataID {
		t.Errorf("entry = %+v", entries[0])
	}

	dest := filepath.Join(t.TempDir(), "out.txt")
	if err := store.DownloadFile(ctx, res.FileID, dest); err != nil {
		t.Fatalf("DownloadFile() error: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("downloaded content = %q, want %q", got, content)
	}
}

func TestFileSystemRemote_RootListing(t *testing.T) {
	ctx := context.Background()
	store, err := remote.NewFileSystemRemote("Drive", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error: %v", err)
	}

	if _, err := store.CreateFolder(ctx, ".", "a"); err != nil {
		t.Fatalf("CreateFolder() error: %v", err)
	}
	src := writeTempFile(t, "top.txt", []byte("top"))
	if _, err := store.UploadFile(ctx, src, "."); err != nil {
		t.Fatalf("UploadFile() error: %v", err)
	}

	entries, err := store.ListFolder(ctx, ".")
	if err != nil {
		t.Fatalf("ListFolder() error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d root entries, want 2", len(entries))
	}
}

func TestFileSystemRemote_RejectsEscapingIDs(t *testing.T) {
	ctx := context.Background()
	store, err := remote.NewFileSystemRemote("Drive", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error: %v", err)
	}

	for _, id := range []string{"../outside", "/etc", "a/../../b"} {
		if _, err := store.ListFolder(ctx, id); err == nil {
			t.Errorf("ListFolder(%q) succeeded, want rejection", id)
		}
	}

	dest := filepath.Join(t.TempDir(), "out")
	if err := store.DownloadFile(ctx, "missing.txt", dest); err == nil {
		t.Error("DownloadFile() of missing file succeeded")
	}
}
