package fs

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func populateTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{"a.txt", filepath.Join("sub", "b.txt"), filepath.Join("sub", "deep", "c.txt")} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("creating dirs: %v", err)
		}
		if err := os.WriteFile(full, []byte(p), 0o644); err != nil {
			t.Fatalf("writing file: %v", err)
		}
	}
	return root
}

func TestOSFilesystemManager_FindFiles(t *testing.T) {
	m := NewOSFilesystemManager()
	root := populateTree(t)

	t.Run("recursive", func(t *testing.T) {
		files, err := m.FindFiles(root, true)
		if err != nil {
			t.Fatalf("FindFiles() error: %v", err)
		}
		sort.Strings(files)
		want := []string{
			filepath.Join(root, "a.txt"),
			filepath.Join(root, "sub", "b.txt"),
			filepath.Join(root, "sub", "deep", "c.txt"),
		}
		sort.Strings(want)
		if len(files) != len(want) {
			t.Fatalf("got %d files, want %d", len(files), len(want))
		}
		for i := range want {
			if files[i] != want[i] {
				t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
			}
		}
	})

	t.Run("flat", func(t *testing.T) {
		files, err := m.FindFiles(root, false)
		if err != nil {
			t.Fatalf("FindFiles() error: %v", err)
		}
		if len(files) != 1 || files[0] != filepath.Join(root, "a.txt") {
			t.Errorf("files = %v, want only the top-level file", files)
		}
	})

	t.Run("not a directory", func(t *testing.T) {
		if _, err := m.FindFiles(filepath.Join(root, "a.txt"), true); err == nil {
			t.Error("FindFiles() on a file succeeded")
		}
	})
}

func TestOSFilesystemManager_StatAndOpen(t *testing.T) {
	m := NewOSFilesystemManager()
	root := populateTree(t)
	path := filepath.Join(root, "a.txt")

	info, err := m.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Size() != int64(len("a.txt")) {
		t.Errorf("size = %d", info.Size())
	}

	f, err := m.Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	f.Close()

	if _, err := m.Stat(filepath.Join(root, "missing")); err == nil {
		t.Error("Stat() on missing path succeeded")
	}
}

func TestOSFilesystemManager_MkdirAll(t *testing.T) {
	m := NewOSFilesystemManager()
	path := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := m.MkdirAll(path); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
	// Idempotent.
	if err := m.MkdirAll(path); err != nil {
		t.Errorf("second MkdirAll() error: %v", err)
	}
}
