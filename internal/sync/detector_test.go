package sync_test

import (
	"path/filepath"
	"testing"

	"drivesync/internal/model"
	"drivesync/internal/sync"
	"drivesync/internal/testutil"
)

func newTestMapping(t *testing.T, db sync.Database) *model.DriveMapping {
	t.Helper()
	mapping := &model.DriveMapping{
		ID:              "mapping-1",
		RemoteDriveID:   "drive-1",
		DriveName:       "Drive",
		LocalFolderPath: filepath.FromSlash("/local"),
		RootFolderID:    "root",
		SyncDirection:   model.DirectionBidirectional,
		CreatedAt:       testutil.FixedClock().Now(),
	}
	if err := db.CreateMapping(mapping); err != nil {
		t.Fatalf("creating mapping: %v", err)
	}
	return mapping
}

func TestChangeDetector_DetectChange(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	mapping := newTestMapping(t, db)
	fsmgr := testutil.NewMockFilesystemManager()
	clock := testutil.FixedClock()
	idgen := testutil.NewStubIDGenerator()
	d := sync.NewChangeDetector(mapping, db, fsmgr, sync.NewNopLogger(), clock, idgen)

	path := filepath.FromSlash("/local/a.txt")
	content := []byte("hello world")
	fsmgr.AddFile(path, content)

	t.Run("unknown path is a create", func(t *testing.T) {
		change, hash, err := d.DetectChange(path)
		if err != nil {
			t.Fatalf("DetectChange() error: %v", err)
		}
		if change != sync.ChangeCreated {
			t.Errorf("change = %s, want create", change)
		}
		if want := testutil.SHA256Hex(content); hash != want {
			t.Errorf("hash = %s, want %s", hash, want)
		}
	})

	t.Run("same content is unchanged after a version exists", func(t *testing.T) {
		if _, err := d.AppendVersion(path, testutil.SHA256Hex(content), model.ChangeCreate, "", nil); err != nil {
			t.Fatalf("AppendVersion() error: %v", err)
		}
		change, _, err := d.DetectChange(path)
		if err != nil {
			t.Fatalf("DetectChange() error: %v", err)
		}
		if change != sync.ChangeUnchanged {
			t.Errorf("change = %s, want unchanged", change)
		}
	})

	t.Run("different content is an update", func(t *testing.T) {
		fsmgr.AddFile(path, []byte("hello again"))
		change, _, err := d.DetectChange(path)
		if err != nil {
			t.Fatalf("DetectChange() error: %v", err)
		}
		if change != sync.ChangeUpdated {
			t.Errorf("change = %s, want update", change)
		}
	})
}

func TestChangeDetector_CompareHash(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	mapping := newTestMapping(t, db)
	fsmgr := testutil.NewMockFilesystemManager()
	d := sync.NewChangeDetector(mapping, db, fsmgr, sync.NewNopLogger(),
		testutil.FixedClock(), testutil.NewStubIDGenerator())

	path := filepath.FromSlash("/local/a.txt")
	content := []byte("hello world")
	hash := testutil.SHA256Hex(content)

	t.Run("unknown path is a create", func(t *testing.T) {
		change, err := d.CompareHash(path, hash)
		if err != nil {
			t.Fatalf("CompareHash() error: %v", err)
		}
		if change != sync.ChangeCreated {
			t.Errorf("change = %s, want create", change)
		}
	})

	fsmgr.AddFile(path, content)
	if _, err := d.AppendVersion(path, hash, model.ChangeCreate, "", nil); err != nil {
		t.Fatalf("AppendVersion() error: %v", err)
	}
	// Remove the file: CompareHash works from the precomputed hash and the
	// version history alone.
	fsmgr.Remove(path)

	t.Run("same hash is unchanged without reading the file", func(t *testing.T) {
		change, err := d.CompareHash(path, hash)
		if err != nil {
			t.Fatalf("CompareHash() error: %v", err)
		}
		if change != sync.ChangeUnchanged {
			t.Errorf("change = %s, want unchanged", change)
		}
	})

	t.Run("different hash is an update", func(t *testing.T) {
		change, err := d.CompareHash(path, testutil.SHA256Hex([]byte("other")))
		if err != nil {
			t.Fatalf("CompareHash() error: %v", err)
		}
		if change != sync.ChangeUpdated {
			t.Errorf("change = %s, want update", change)
		}
	})
}

func TestChangeDetector_AppendVersion(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	mapping := newTestMapping(t, db)
	fsmgr := testutil.NewMockFilesystemManager()
	clock := testutil.FixedClock()
	idgen := testutil.NewStubIDGenerator()
	d := sync.NewChangeDetector(mapping, db, fsmgr, sync.NewNopLogger(), clock, idgen)

	path := filepath.FromSlash("/local/docs/report.txt")
	fsmgr.AddFile(path, []byte("v1"))

	v1, err := d.AppendVersion(path, testutil.SHA256Hex([]byte("v1")), model.ChangeCreate, "", nil)
	if err != nil {
		t.Fatalf("AppendVersion() error: %v", err)
	}
	if v1.Version != 1 {
		t.Errorf("first version number = %d, want 1", v1.Version)
	}
	if v1.ParentVersion != "" {
		t.Errorf("first version parent = %q, want empty", v1.ParentVersion)
	}
	if v1.RelativePath != filepath.Join("docs", "report.txt") {
		t.Errorf("relative path = %q", v1.RelativePath)
	}

	fsmgr.AddFile(path, []byte("v2"))
	v2, err := d.AppendVersion(path, testutil.SHA256Hex([]byte("v2")), model.ChangeUpdate, "", nil)
	if err != nil {
		t.Fatalf("AppendVersion() error: %v", err)
	}
	if v2.Version != 2 {
		t.Errorf("second version number = %d, want 2", v2.Version)
	}
	if v2.ParentVersion != v1.ID {
		t.Errorf("second version parent = %q, want %q", v2.ParentVersion, v1.ID)
	}

	t.Run("exactly one latest version per path", func(t *testing.T) {
		versions, err := db.VersionsForPath(mapping.ID, path)
		if err != nil {
			t.Fatalf("VersionsForPath() error: %v", err)
		}
		if len(versions) != 2 {
			t.Fatalf("got %d versions, want 2", len(versions))
		}
		latestCount := 0
		for _, v := range versions {
			if v.IsLatest {
				latestCount++
				if v.ID != v2.ID {
					t.Errorf("latest version = %s, want %s", v.ID, v2.ID)
				}
			}
		}
		if latestCount != 1 {
			t.Errorf("latest count = %d, want 1", latestCount)
		}
	})

	t.Run("audit log entry per version", func(t *testing.T) {
		ops, err := db.OperationsForPath(mapping.ID, path, 10)
		if err != nil {
			t.Fatalf("OperationsForPath() error: %v", err)
		}
		if len(ops) != 2 {
			t.Fatalf("got %d operations, want 2", len(ops))
		}
		for _, op := range ops {
			if op.Operation != model.OpUpload {
				t.Errorf("operation = %s, want upload", op.Operation)
			}
		}
	})
}

func TestChangeDetector_AppendVersion_Rename(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	mapping := newTestMapping(t, db)
	fsmgr := testutil.NewMockFilesystemManager()
	d := sync.NewChangeDetector(mapping, db, fsmgr, sync.NewNopLogger(),
		testutil.FixedClock(), testutil.NewStubIDGenerator())

	oldPath := filepath.FromSlash("/local/old.txt")
	newPath := filepath.FromSlash("/local/new.txt")
	fsmgr.AddFile(newPath, []byte("content"))

	if _, err := d.AppendVersion(newPath, testutil.SHA256Hex([]byte("content")), model.ChangeRename, oldPath, nil); err != nil {
		t.Fatalf("AppendVersion() error: %v", err)
	}

	ops, err := db.OperationsForPath(mapping.ID, newPath, 10)
	if err != nil {
		t.Fatalf("OperationsForPath() error: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d operations, want 1", len(ops))
	}
	if ops[0].Operation != model.OpRename {
		t.Errorf("operation = %s, want rename", ops[0].Operation)
	}
	if ops[0].FromPath != oldPath {
		t.Errorf("from path = %q, want %q", ops[0].FromPath, oldPath)
	}
}

func TestChangeDetector_DetectMove(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	mapping := newTestMapping(t, db)
	fsmgr := testutil.NewMockFilesystemManager()
	d := sync.NewChangeDetector(mapping, db, fsmgr, sync.NewNopLogger(),
		testutil.FixedClock(), testutil.NewStubIDGenerator())

	fsmgr.AddFile("/local/a.txt", []byte("same"))
	fsmgr.AddFile("/local/b.txt", []byte("same"))
	fsmgr.AddFile("/local/c.txt", []byte("different"))

	if !d.DetectMove("/local/a.txt", "/local/b.txt") {
		t.Error("DetectMove() = false for identical content")
	}
	if d.DetectMove("/local/a.txt", "/local/c.txt") {
		t.Error("DetectMove() = true for different content")
	}
	if d.DetectMove("/local/a.txt", "/local/missing.txt") {
		t.Error("DetectMove() = true when one side is unreadable")
	}
}
