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

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestMemoryRemote_Roundtrip(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryRemote("Drive")

	content := []byte("hello remote")
	src := writeTempFile(t, "a.txt", content)

	res, err := store.UploadFile(ctx, src, remote.RootID)
	if err != nil {
		t.Fatalf("UploadFile() error: %v", err)
	}
	if res.DataID != testutil.SHA256Hex(content) {
		t.Errorf("DataID = %q, want content hash", res.DataID)
	}
	if res.FileID == "" || res.FileID != res.MetadataID {
		t.Errorf("ids = (%s, %s), want equal non-empty", res.FileID, res.MetadataID)
	}

	entries, err := store.ListFolder(ctx, remote.RootID)
	if err != nil {
		t.Fatalf("ListFolder() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Name != "a.txt" || e.Type != model.EntryFile {
		t.Errorf("entry = %+v", e)
	}
	if e.Size != int64(len(content)) || e.ContentHash != res.DataID {
		t.Errorf("entry size/hash = (%d, %s)", e.Size, e.ContentHash)
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

func TestMemoryRemote_UploadReplacesByName(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryRemote("Drive")

	first := writeTempFile(t, "a.txt", []byte("version one"))
	if _, err := store.UploadFile(ctx, first, remote.RootID); err != nil {
		t.Fatalf("UploadFile() error: %v", err)
	}
	second := writeTempFile(t, "a.txt", []byte("version two"))
	res, err := store.UploadFile(ctx, second, remote.RootID)
	if err != nil {
		t.Fatalf("UploadFile() error: %v", err)
	}

	entries, err := store.ListFolder(ctx, remote.RootID)
	if err != nil {
		t.Fatalf("ListFolder() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries after re-upload, want 1", len(entries))
	}
	if entries[0].ContentHash != res.DataID {
		t.Errorf("entry hash = %q, want the second upload's", entries[0].ContentHash)
	}
}

func TestMemoryRemote_CreateFolder(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryRemote("Drive")

	id, err := store.CreateFolder(ctx, remote.RootID, "docs")
	if err != nil {
		t.Fatalf("CreateFolder() error: %v", err)
	}

	t.Run("idempotent by name", func(t *testing.T) {
		again, err := store.CreateFolder(ctx, remote.RootID, "docs")
		if err != nil {
			t.Fatalf("CreateFolder() error: %v", err)
		}
		if again != id {
			t.Errorf("second CreateFolder() = %q, want %q", again, id)
		}
	})

	t.Run("nested folders", func(t *testing.T) {
		subID, err := store.CreateFolder(ctx, id, "2024")
		if err != nil {
			t.Fatalf("CreateFolder() error: %v", err)
		}
		entries, err := store.ListFolder(ctx, id)
		if err != nil {
			t.Fatalf("ListFolder() error: %v", err)
		}
		if len(entries) != 1 || entries[0].ID != subID || entries[0].Type != model.EntryFolder {
			t.Errorf("docs children = %+v", entries)
		}
	})

	t.Run("name clash with a file", func(t *testing.T) {
		src := writeTempFile(t, "report", []byte("x"))
		if _, err := store.UploadFile(ctx, src, remote.RootID); err != nil {
			t.Fatalf("UploadFile() error: %v", err)
		}
		if _, err := store.CreateFolder(ctx, remote.RootID, "report"); err == nil {
			t.Error("CreateFolder() over a file succeeded")
		}
	})
}

func TestMemoryRemote_NotFound(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryRemote("Drive")

	if _, err := store.ListFolder(ctx, "nope"); err == nil {
		t.Error("ListFolder() on unknown folder succeeded")
	}
	if _, err := store.CreateFolder(ctx, "nope", "x"); err == nil {
		t.Error("CreateFolder() under unknown folder succeeded")
	}
	dest := filepath.Join(t.TempDir(), "out")
	if err := store.DownloadFile(ctx, "nope", dest); err == nil {
		t.Error("DownloadFile() of unknown file succeeded")
	}
}
