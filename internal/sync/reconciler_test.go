package sync_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"drivesync/internal/fs"
	"drivesync/internal/model"
	"drivesync/internal/remote"
	"drivesync/internal/sync"
	"drivesync/internal/testutil"
)

// seedRemoteFile uploads content under the given remote folder and returns
// the upload result.
func seedRemoteFile(t *testing.T, store *remote.MemoryRemote, parentID, name string, content []byte) *sync.UploadResult {
	t.Helper()
	src := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatalf("writing seed file: %v", err)
	}
	res, err := store.UploadFile(context.Background(), src, parentID)
	if err != nil {
		t.Fatalf("seeding remote file %s: %v", name, err)
	}
	return res
}

func newTestReconciler(t *testing.T) (*sync.Reconciler, sync.Database, *remote.MemoryRemote, *sync.EchoGuard, *model.DriveMapping) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	store := remote.NewMemoryRemote("Drive")
	root := t.TempDir()

	mapping := &model.DriveMapping{
		ID:              "mapping-1",
		RemoteDriveID:   "drive-1",
		DriveName:       "Drive",
		LocalFolderPath: root,
		RootFolderID:    remote.RootID,
		SyncDirection:   model.DirectionBidirectional,
		CreatedAt:       testutil.FixedClock().Now(),
	}
	if err := db.CreateMapping(mapping); err != nil {
		t.Fatalf("creating mapping: %v", err)
	}

	clock := testutil.FixedClock()
	echo := sync.NewEchoGuard(clock)
	r := sync.NewReconciler(mapping, db, store, fs.NewOSFilesystemManager(), echo,
		sync.NewNopLogger(), clock, testutil.NewStubIDGenerator(), sync.DefaultTunables())
	return r, db, store, echo, mapping
}

func TestReconciler_DownloadsMissingFiles(t *testing.T) {
	r, db, store, echo, mapping := newTestReconciler(t)
	ctx := context.Background()

	content := []byte("remote only content")
	docsID, err := store.CreateFolder(ctx, remote.RootID, "docs")
	if err != nil {
		t.Fatalf("creating remote folder: %v", err)
	}
	seedRemoteFile(t, store, docsID, "report.txt", content)
	seedRemoteFile(t, store, remote.RootID, "top.txt", []byte("top level"))

	if err := r.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}

	reportPath := filepath.Join(mapping.LocalFolderPath, "docs", "report.txt")
	topPath := filepath.Join(mapping.LocalFolderPath, "top.txt")

	t.Run("files land on disk", func(t *testing.T) {
		got, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("reading downloaded file: %v", err)
		}
		if string(got) != string(content) {
			t.Errorf("content = %q, want %q", got, content)
		}
		if _, err := os.Stat(topPath); err != nil {
			t.Errorf("top-level file missing: %v", err)
		}
	})

	t.Run("download records complete", func(t *testing.T) {
		downloads, err := db.ListDownloads(mapping.ID, 10)
		if err != nil {
			t.Fatalf("ListDownloads() error: %v", err)
		}
		if len(downloads) != 2 {
			t.Fatalf("got %d downloads, want 2", len(downloads))
		}
		for _, dl := range downloads {
			if dl.Status != model.TransferCompleted {
				t.Errorf("download %s status = %s, want completed", dl.ID, dl.Status)
			}
		}
	})

	t.Run("metadata cache fully synced", func(t *testing.T) {
		pending, err := db.ListMetadataByStatus(mapping.ID, model.StatusPending)
		if err != nil {
			t.Fatalf("ListMetadataByStatus() error: %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("%d entries still pending after reconcile", len(pending))
		}
		synced, err := db.ListMetadataByStatus(mapping.ID, model.StatusSynced)
		if err != nil {
			t.Fatalf("ListMetadataByStatus() error: %v", err)
		}
		// The docs folder plus both files.
		if len(synced) != 3 {
			t.Errorf("got %d synced entries, want 3", len(synced))
		}
	})

	t.Run("dedup ledger records the download", func(t *testing.T) {
		entry, err := db.FindProcessedFile(mapping.ID, testutil.SHA256Hex(content))
		if err != nil {
			t.Fatalf("FindProcessedFile() error: %v", err)
		}
		if entry == nil {
			t.Fatal("no ledger entry for downloaded content")
		}
		if entry.Source != model.SourceDownload {
			t.Errorf("source = %s, want download", entry.Source)
		}
		if entry.LocalPath != reportPath {
			t.Errorf("local path = %q, want %q", entry.LocalPath, reportPath)
		}
	})

	t.Run("version history records the create", func(t *testing.T) {
		latest, err := db.LatestVersion(mapping.ID, reportPath)
		if err != nil {
			t.Fatalf("LatestVersion() error: %v", err)
		}
		if latest == nil {
			t.Fatal("no version for downloaded file")
		}
		if latest.ChangeType != model.ChangeCreate {
			t.Errorf("change type = %s, want create", latest.ChangeType)
		}
		if latest.ContentHash != testutil.SHA256Hex(content) {
			t.Errorf("content hash = %q", latest.ContentHash)
		}
	})

	t.Run("downloads suppress watcher echo", func(t *testing.T) {
		if !echo.Suppressed(reportPath) {
			t.Error("Suppressed() = false for freshly downloaded path")
		}
	})

	t.Run("last sync time recorded", func(t *testing.T) {
		m, err := db.GetMapping(mapping.ID)
		if err != nil {
			t.Fatalf("GetMapping() error: %v", err)
		}
		if m.LastSyncTime == nil {
			t.Error("LastSyncTime still nil after reconcile")
		}
	})
}

func TestReconciler_SecondPassIsQuiet(t *testing.T) {
	r, db, store, _, mapping := newTestReconciler(t)
	ctx := context.Background()

	seedRemoteFile(t, store, remote.RootID, "a.txt", []byte("stable"))

	if err := r.Reconcile(ctx); err != nil {
		t.Fatalf("first Reconcile() error: %v", err)
	}
	if err := r.Reconcile(ctx); err != nil {
		t.Fatalf("second Reconcile() error: %v", err)
	}

	downloads, err := db.ListDownloads(mapping.ID, 10)
	if err != nil {
		t.Fatalf("ListDownloads() error: %v", err)
	}
	if len(downloads) != 1 {
		t.Errorf("got %d downloads after two passes, want 1", len(downloads))
	}
}

func TestReconciler_DriveNamePrefixCollapsed(t *testing.T) {
	r, _, store, _, mapping := newTestReconciler(t)
	ctx := context.Background()

	// Some backends list the drive's own folder inside the root. Its
	// contents belong at the mapping root, not under an extra directory.
	driveID, err := store.CreateFolder(ctx, remote.RootID, "Drive")
	if err != nil {
		t.Fatalf("creating drive folder: %v", err)
	}
	seedRemoteFile(t, store, driveID, "nested.txt", []byte("nested"))

	if err := r.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}

	want := filepath.Join(mapping.LocalFolderPath, "nested.txt")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("file not collapsed to mapping root: %v", err)
	}

	stray := filepath.Join(mapping.LocalFolderPath, "Drive")
	if _, err := os.Stat(stray); err == nil {
		t.Error("drive-name directory materialized under the mapping root")
	} else if !os.IsNotExist(err) {
		t.Errorf("checking for stray directory: %v", err)
	}
}
