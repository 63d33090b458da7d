package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"pmt/internal/amqp"
	"pmt/internal/core"
	"pmt/internal/storage"
)

// fakeBlobStore keeps objects in memory.
type fakeBlobStore struct {
	objects map[string][]byte
	fail    bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, data []byte, _ string) error {
	if f.fail {
		return fmt.Errorf("blob store unavailable")
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func seedRecord(t *testing.T, repo *storage.SQLiteRepository) core.Record {
	t.Helper()
	ctx := context.Background()
	user, err := repo.CreateUser(ctx, "owner@example.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	loc, err := repo.CreateLocation(ctx, "Cash", "", user.ID)
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	sph, err := repo.CreateSphere(ctx, "Food", "", user.ID)
	if err != nil {
		t.Fatalf("create sphere: %v", err)
	}
	rec, err := repo.InsertRecord(ctx, core.Record{
		OwnerID:     user.ID,
		Operation:   core.Income,
		Sum:         core.Money{Cents: 70000},
		LocationID:  &loc.ID,
		SphereID:    &sph.ID,
		Description: "salary",
	})
	if err != nil {
		t.Fatalf("insert record: %v", err)
	}
	return rec
}

func TestArchiveRecordWritesSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewTestRepository(t)
	blobs := newFakeBlobStore()
	w := NewArchiveWorker(repo, blobs, 10)

	rec := seedRecord(t, repo)
	if err := w.HandleMessage(ctx, amqp.NewArchiveMessage(rec.ID, rec.Version)); err != nil {
		t.Fatalf("handle archive message: %v", err)
	}

	key := fmt.Sprintf("records/%d.json", rec.ID)
	data, err := blobs.Get(ctx, key)
	if err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}

	var snapshot map[string]any
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snapshot["sum"] != "700.00" {
		t.Errorf("snapshot sum = %v, want %q", snapshot["sum"], "700.00")
	}
	if snapshot["operation_type"] != "Income" {
		t.Errorf("snapshot operation = %v, want Income", snapshot["operation_type"])
	}

	pending, err := repo.ListUnarchived(ctx, 10)
	if err != nil {
		t.Fatalf("list unarchived: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after archive = %d, want 0", len(pending))
	}
}

func TestArchiveSkipsDeletedRecord(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewTestRepository(t)
	blobs := newFakeBlobStore()
	w := NewArchiveWorker(repo, blobs, 10)

	// A record removed between publish and consume must not requeue
	// forever.
	if err := w.HandleMessage(ctx, amqp.NewArchiveMessage(999, 1)); err != nil {
		t.Errorf("archive of missing record = %v, want nil", err)
	}
	if len(blobs.objects) != 0 {
		t.Errorf("objects written = %d, want 0", len(blobs.objects))
	}
}

func TestDeleteMessageRemovesObject(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewTestRepository(t)
	blobs := newFakeBlobStore()
	w := NewArchiveWorker(repo, blobs, 10)

	rec := seedRecord(t, repo)
	if err := w.ArchiveRecord(ctx, rec.ID); err != nil {
		t.Fatalf("archive record: %v", err)
	}

	if err := w.HandleMessage(ctx, amqp.NewDeleteMessage(rec.ID)); err != nil {
		t.Fatalf("handle delete message: %v", err)
	}
	if len(blobs.objects) != 0 {
		t.Errorf("objects after delete = %d, want 0", len(blobs.objects))
	}
}

func TestProcessPendingMarksErrors(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewTestRepository(t)
	blobs := newFakeBlobStore()
	blobs.fail = true
	w := NewArchiveWorker(repo, blobs, 10)

	seedRecord(t, repo)
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("process pending: %v", err)
	}

	// The failed record must be parked, not retried on every scan.
	pending, err := repo.ListUnarchived(ctx, 10)
	if err != nil {
		t.Fatalf("list unarchived: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after failure = %d, want 0 (parked with error flag)", len(pending))
	}
}

func TestStartupCheckDrainsBacklog(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewTestRepository(t)
	blobs := newFakeBlobStore()
	w := NewArchiveWorker(repo, blobs, 10)

	seedRecord(t, repo)
	if err := w.StartupCheck(ctx); err != nil {
		t.Fatalf("startup check: %v", err)
	}
	if len(blobs.objects) != 1 {
		t.Errorf("objects after startup check = %d, want 1", len(blobs.objects))
	}
}
