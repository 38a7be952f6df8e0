package sync_test

import (
	"context"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"drivesync/internal/fs"
	"drivesync/internal/model"
	"drivesync/internal/remote"
	"drivesync/internal/sync"
	"drivesync/internal/testutil"
)

// fakeWatcher feeds hand-crafted events into the pipeline.
type fakeWatcher struct {
	events chan sync.WatchEvent
	errs   chan error
	once   gosync.Once
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		events: make(chan sync.WatchEvent, 16),
		errs:   make(chan error, 1),
	}
}

func (w *fakeWatcher) Start(string) error { return nil }

func (w *fakeWatcher) Stop() error {
	w.once.Do(func() {
		close(w.events)
		close(w.errs)
	})
	return nil
}

func (w *fakeWatcher) Events() <-chan sync.WatchEvent { return w.events }
func (w *fakeWatcher) Errors() <-chan error           { return w.errs }

var _ sync.Watcher = (*fakeWatcher)(nil)

// orchHarness assembles an orchestrator on a real temp directory with an
// in-memory remote and a fake watcher.
type orchHarness struct {
	orch    *sync.Orchestrator
	db      sync.Database
	store   *remote.MemoryRemote
	mapping *model.DriveMapping
	root    string

	mu      gosync.Mutex
	watcher *fakeWatcher
}

func engineTunables() sync.Tunables {
	tun := sync.DefaultTunables()
	tun.DebounceWindow = 10 * time.Millisecond
	tun.DetectionWindow = 50 * time.Millisecond
	tun.HashWait = 20 * time.Millisecond
	tun.HashRetryDelay = time.Millisecond
	tun.SweepInterval = time.Hour
	return tun
}

func newOrchHarness(t *testing.T, configure func(*model.DriveMapping)) *orchHarness {
	t.Helper()
	h := &orchHarness{
		db:    testutil.NewTestDatabase(t),
		store: remote.NewMemoryRemote("Drive"),
		root:  t.TempDir(),
	}

	h.mapping = &model.DriveMapping{
		ID:              "mapping-1",
		RemoteDriveID:   "drive-1",
		DriveName:       "Drive",
		LocalFolderPath: h.root,
		RootFolderID:    remote.RootID,
		SyncDirection:   model.DirectionBidirectional,
		AutoApprove:     true,
		CreatedAt:       testutil.FixedClock().Now(),
	}
	if configure != nil {
		configure(h.mapping)
	}
	if err := h.db.CreateMapping(h.mapping); err != nil {
		t.Fatalf("creating mapping: %v", err)
	}

	newWatcher := func() (sync.Watcher, error) {
		w := newFakeWatcher()
		h.mu.Lock()
		h.watcher = w
		h.mu.Unlock()
		return w, nil
	}

	h.orch = sync.NewOrchestrator(h.mapping, h.db, h.store, fs.NewOSFilesystemManager(),
		newWatcher, nil, sync.NewNopLogger(), testutil.FixedClock(),
		testutil.NewStubIDGenerator(), engineTunables())

	t.Cleanup(func() {
		if s := h.orch.State(); s == sync.StateRunning || s == sync.StatePaused {
			h.orch.Stop()
		}
	})
	return h
}

func (h *orchHarness) start(t *testing.T) {
	t.Helper()
	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
}

func (h *orchHarness) send(t *testing.T, ev sync.WatchEvent) {
	t.Helper()
	h.mu.Lock()
	w := h.watcher
	h.mu.Unlock()
	if w == nil {
		t.Fatal("no watcher attached")
	}
	w.events <- ev
}

func (h *orchHarness) writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(h.root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating parent: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	return path
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (h *orchHarness) completedUploads(t *testing.T) []*model.Upload {
	t.Helper()
	uploads, err := h.db.ListUploads(h.mapping.ID, 50)
	if err != nil {
		t.Fatalf("ListUploads() error: %v", err)
	}
	var done []*model.Upload
	for _, u := range uploads {
		if u.Status == model.TransferCompleted {
			done = append(done, u)
		}
	}
	return done
}

func TestOrchestrator_AutoApproveUpload(t *testing.T) {
	h := newOrchHarness(t, nil)
	h.start(t)

	content := []byte("upload me")
	path := h.writeFile(t, filepath.Join("docs", "note.txt"), content)
	h.send(t, sync.WatchEvent{Path: path, Op: sync.WatchCreate})

	waitFor(t, "upload never completed", func() bool {
		return len(h.completedUploads(t)) == 1
	})

	t.Run("file lands on the remote", func(t *testing.T) {
		ctx := context.Background()
		children, err := h.store.ListFolder(ctx, remote.RootID)
		if err != nil {
			t.Fatalf("ListFolder() error: %v", err)
		}
		if len(children) != 1 || children[0].Name != "docs" {
			t.Fatalf("root children = %+v, want [docs]", children)
		}
		files, err := h.store.ListFolder(ctx, children[0].ID)
		if err != nil {
			t.Fatalf("ListFolder(docs) error: %v", err)
		}
		if len(files) != 1 || files[0].Name != "note.txt" {
			t.Fatalf("docs children = %+v, want [note.txt]", files)
		}
		if files[0].ContentHash != testutil.SHA256Hex(content) {
			t.Errorf("remote hash = %q", files[0].ContentHash)
		}
	})

	t.Run("lifecycle rows recorded", func(t *testing.T) {
		upload := h.completedUploads(t)[0]
		if upload.RemoteFileID == "" {
			t.Error("upload has no remote file id")
		}
		entry, err := h.db.FindProcessedFile(h.mapping.ID, testutil.SHA256Hex(content))
		if err != nil {
			t.Fatalf("FindProcessedFile() error: %v", err)
		}
		if entry == nil || entry.Source != model.SourceUpload {
			t.Fatalf("ledger entry = %+v, want upload source", entry)
		}
		latest, err := h.db.LatestVersion(h.mapping.ID, path)
		if err != nil {
			t.Fatalf("LatestVersion() error: %v", err)
		}
		if latest == nil || latest.RemoteDataID == "" {
			t.Errorf("latest version missing remote ids: %+v", latest)
		}
	})

	t.Run("repeated event is deduplicated", func(t *testing.T) {
		h.send(t, sync.WatchEvent{Path: path, Op: sync.WatchCreate})
		time.Sleep(200 * time.Millisecond)

		uploads, err := h.db.ListUploads(h.mapping.ID, 50)
		if err != nil {
			t.Fatalf("ListUploads() error: %v", err)
		}
		if len(uploads) != 1 {
			t.Errorf("got %d uploads after duplicate event, want 1", len(uploads))
		}
	})
}

func TestOrchestrator_ApprovalGate(t *testing.T) {
	h := newOrchHarness(t, func(m *model.DriveMapping) {
		m.AutoApprove = false
	})
	h.start(t)

	path := h.writeFile(t, "hold.txt", []byte("needs approval"))
	h.send(t, sync.WatchEvent{Path: path, Op: sync.WatchCreate})

	var pendingID string
	waitFor(t, "candidate never surfaced", func() bool {
		pendings, err := h.orch.PendingUploads()
		if err != nil {
			t.Fatalf("PendingUploads() error: %v", err)
		}
		if len(pendings) == 1 {
			pendingID = pendings[0].ID
			return true
		}
		return false
	})

	uploads, err := h.db.ListUploads(h.mapping.ID, 50)
	if err != nil {
		t.Fatalf("ListUploads() error: %v", err)
	}
	if len(uploads) != 0 {
		t.Fatalf("upload started before approval")
	}

	if err := h.orch.Approve(pendingID, ""); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	waitFor(t, "approved upload never completed", func() bool {
		return len(h.completedUploads(t)) == 1
	})

	t.Run("double approval rejected", func(t *testing.T) {
		if err := h.orch.Approve(pendingID, ""); err == nil {
			t.Error("Approve() on already-approved candidate succeeded")
		}
	})
}

func TestOrchestrator_RejectAll(t *testing.T) {
	h := newOrchHarness(t, func(m *model.DriveMapping) {
		m.AutoApprove = false
	})
	h.start(t)

	path := h.writeFile(t, "reject.txt", []byte("rejected content"))
	h.send(t, sync.WatchEvent{Path: path, Op: sync.WatchCreate})

	waitFor(t, "candidate never surfaced", func() bool {
		pendings, _ := h.orch.PendingUploads()
		return len(pendings) == 1
	})

	if err := h.orch.RejectAll(); err != nil {
		t.Fatalf("RejectAll() error: %v", err)
	}
	pendings, err := h.orch.PendingUploads()
	if err != nil {
		t.Fatalf("PendingUploads() error: %v", err)
	}
	if len(pendings) != 0 {
		t.Errorf("%d candidates still awaiting approval after RejectAll", len(pendings))
	}
}

func TestOrchestrator_SizeCeiling(t *testing.T) {
	h := newOrchHarness(t, func(m *model.DriveMapping) {
		m.MaxFileSize = 8
	})
	h.start(t)

	path := h.writeFile(t, "big.txt", []byte("well over eight bytes"))
	h.send(t, sync.WatchEvent{Path: path, Op: sync.WatchCreate})
	time.Sleep(200 * time.Millisecond)

	uploads, err := h.db.ListUploads(h.mapping.ID, 50)
	if err != nil {
		t.Fatalf("ListUploads() error: %v", err)
	}
	if len(uploads) != 0 {
		t.Errorf("oversize file was queued for upload")
	}
}

func TestOrchestrator_DownloadEchoSuppressed(t *testing.T) {
	h := newOrchHarness(t, nil)

	// Content already on the remote is downloaded during the startup
	// reconcile; the resulting create event must not bounce back up.
	src := filepath.Join(t.TempDir(), "seed.txt")
	if err := os.WriteFile(src, []byte("remote first"), 0o644); err != nil {
		t.Fatalf("writing seed: %v", err)
	}
	if _, err := h.store.UploadFile(context.Background(), src, remote.RootID); err != nil {
		t.Fatalf("seeding remote: %v", err)
	}

	h.start(t)

	localPath := filepath.Join(h.root, "seed.txt")
	if _, err := os.Stat(localPath); err != nil {
		t.Fatalf("startup reconcile did not download: %v", err)
	}

	h.send(t, sync.WatchEvent{Path: localPath, Op: sync.WatchCreate})
	time.Sleep(200 * time.Millisecond)

	uploads, err := h.db.ListUploads(h.mapping.ID, 50)
	if err != nil {
		t.Fatalf("ListUploads() error: %v", err)
	}
	if len(uploads) != 0 {
		t.Errorf("downloaded file echoed back as an upload")
	}
}

func TestOrchestrator_Lifecycle(t *testing.T) {
	h := newOrchHarness(t, nil)

	if got := h.orch.State(); got != sync.StateIdle {
		t.Fatalf("initial state = %s, want idle", got)
	}
	if err := h.orch.Stop(); err == nil {
		t.Error("Stop() before Start succeeded")
	}

	h.start(t)
	if got := h.orch.State(); got != sync.StateRunning {
		t.Fatalf("state after Start = %s, want running", got)
	}
	if err := h.orch.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}

	if err := h.orch.Pause(); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}
	if got := h.orch.State(); got != sync.StatePaused {
		t.Fatalf("state after Pause = %s, want paused", got)
	}

	// A file created while paused is picked up by the resume rescan.
	path := h.writeFile(t, "while-paused.txt", []byte("created while paused"))
	if err := h.orch.Resume(); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	if got := h.orch.State(); got != sync.StateRunning {
		t.Fatalf("state after Resume = %s, want running", got)
	}
	waitFor(t, "rescan never uploaded the paused-era file", func() bool {
		for _, u := range h.completedUploads(t) {
			if u.LocalPath == path {
				return true
			}
		}
		return false
	})

	if err := h.orch.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if got := h.orch.State(); got != sync.StateStopped {
		t.Fatalf("state after Stop = %s, want stopped", got)
	}
}

func TestOrchestrator_RequeuesPersistedUploads(t *testing.T) {
	h := newOrchHarness(t, nil)

	// An upload approved in an earlier process sits in the table as a
	// pending row; Start must put it back on the queue.
	content := []byte("approved earlier")
	path := h.writeFile(t, "leftover.txt", content)
	now := testutil.FixedClock().Now()
	if err := h.db.CreateUpload(&model.Upload{
		ID:          "upload-leftover",
		MappingID:   h.mapping.ID,
		LocalPath:   path,
		FileName:    "leftover.txt",
		FileSize:    int64(len(content)),
		ContentHash: testutil.SHA256Hex(content),
		Status:      model.TransferPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("seeding upload row: %v", err)
	}

	h.start(t)

	waitFor(t, "persisted upload never completed", func() bool {
		return len(h.completedUploads(t)) == 1
	})

	t.Run("ledger keyed by the upload row hash", func(t *testing.T) {
		// No version row exists for the path; the ledger entry must still
		// carry the upload's content hash, not an empty key.
		entry, err := h.db.FindProcessedFile(h.mapping.ID, testutil.SHA256Hex(content))
		if err != nil {
			t.Fatalf("FindProcessedFile() error: %v", err)
		}
		if entry == nil {
			t.Fatal("no ledger entry under the upload's content hash")
		}
		if entry.FileSize != int64(len(content)) {
			t.Errorf("ledger size = %d, want %d", entry.FileSize, len(content))
		}
	})
}
