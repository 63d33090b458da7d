// Package worker copies ledger records into the blob archive, driven by
// AMQP messages with a periodic catch-up scan as backup.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pmt/internal/amqp"
	"pmt/internal/blob"
	"pmt/internal/core"
	"pmt/internal/metrics"
)

// ArchiveStore is the slice of the repository the worker needs.
type ArchiveStore interface {
	GetRecord(ctx context.Context, id int64) (core.Record, error)
	ListUnarchived(ctx context.Context, limit int) ([]core.Record, error)
	MarkArchived(ctx context.Context, id int64) error
	MarkArchiveError(ctx context.Context, id int64) error
}

// ArchiveWorker mirrors records into the blob store as JSON snapshots,
// one object per record under records/<id>.json.
type ArchiveWorker struct {
	store     ArchiveStore
	blobs     blob.Store
	batchSize int
}

func NewArchiveWorker(store ArchiveStore, blobs blob.Store, batchSize int) *ArchiveWorker {
	return &ArchiveWorker{
		store:     store,
		blobs:     blobs,
		batchSize: batchSize,
	}
}

// recordSnapshot is the archived shape of a record. Sums are rendered
// as two-place decimal strings.
type recordSnapshot struct {
	ID           int64     `json:"id"`
	AccountingID int64     `json:"accounting_id"`
	OwnerID      int64     `json:"owner_id"`
	Operation    string    `json:"operation_type"`
	IsTransfer   bool      `json:"is_transfer"`
	Sum          string    `json:"sum"`
	LocationID   *int64    `json:"location_id"`
	SphereID     *int64    `json:"sphere_id"`
	Description  string    `json:"description,omitempty"`
	Date         time.Time `json:"date"`
	Version      int64     `json:"version"`
	ArchivedAt   time.Time `json:"archived_at"`
}

func archiveKey(id int64) string {
	return fmt.Sprintf("records/%d.json", id)
}

// HandleMessage processes one archive queue message.
func (w *ArchiveWorker) HandleMessage(ctx context.Context, msg *amqp.RecordMessage) error {
	switch msg.Kind {
	case amqp.KindArchive:
		return w.ArchiveRecord(ctx, msg.ID)
	case amqp.KindDelete:
		return w.RemoveArchived(ctx, msg.ID)
	default:
		slog.WarnContext(ctx, "Unknown message kind", "kind", msg.Kind, "id", msg.ID)
		return nil
	}
}

// ArchiveRecord snapshots one record into the blob store and marks it
// archived. A record deleted between publish and consume is not an
// error; the delete message follows.
func (w *ArchiveWorker) ArchiveRecord(ctx context.Context, id int64) error {
	rec, err := w.store.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			slog.InfoContext(ctx, "Record gone before archiving, skipping", "id", id)
			return nil
		}
		return fmt.Errorf("get record for archive: %w", err)
	}

	snapshot := recordSnapshot{
		ID:           rec.ID,
		AccountingID: rec.AccountingID,
		OwnerID:      rec.OwnerID,
		Operation:    string(rec.Operation),
		IsTransfer:   rec.IsTransfer,
		Sum:          rec.Sum.String(),
		LocationID:   rec.LocationID,
		SphereID:     rec.SphereID,
		Description:  rec.Description,
		Date:         rec.Date,
		Version:      rec.Version,
		ArchivedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := archiveKey(rec.ID)
	if err := w.blobs.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	if err := w.store.MarkArchived(ctx, rec.ID); err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	metrics.RecordsArchived.Inc()

	slog.InfoContext(ctx, "Record archived",
		"id", rec.ID,
		"archive_key", key,
		"version", rec.Version)
	return nil
}

// RemoveArchived deletes the record's archive object.
func (w *ArchiveWorker) RemoveArchived(ctx context.Context, id int64) error {
	key := archiveKey(id)
	if err := w.blobs.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	slog.InfoContext(ctx, "Archived record removed", "id", id, "archive_key", key)
	return nil
}

// ProcessPending archives records the queue missed. This is the backup
// mechanism in case AMQP messages are lost.
func (w *ArchiveWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.ListUnarchived(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list unarchived: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending records", "count", len(pending))
	for _, rec := range pending {
		if err := w.ArchiveRecord(ctx, rec.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to archive record", "id", rec.ID, "error", err)
			metrics.ArchiveErrors.Inc()
			if err := w.store.MarkArchiveError(ctx, rec.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark archive error", "id", rec.ID, "error", err)
			}
		}
	}
	return nil
}

// StartupCheck drains the backlog once at worker startup to recover
// from downtime.
func (w *ArchiveWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.store.ListUnarchived(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list unarchived for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending records found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending records on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0
	for _, rec := range pending {
		if err := w.ArchiveRecord(ctx, rec.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to archive record on startup", "id", rec.ID, "error", err)
			metrics.ArchiveErrors.Inc()
			if err := w.store.MarkArchiveError(ctx, rec.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark archive error", "id", rec.ID, "error", err)
			}
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup archive check completed",
		"success", successCount,
		"errors", errorCount)
	return nil
}

// Run consumes the queue and runs the catch-up scan on a ticker until
// the context ends.
func (w *ArchiveWorker) Run(ctx context.Context, client *amqp.Client, interval time.Duration) error {
	if err := w.StartupCheck(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup check failed", "error", err)
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.ProcessPending(ctx); err != nil {
					slog.ErrorContext(ctx, "Pending scan failed", "error", err)
				}
			}
		}
	}()

	return client.ConsumeRecordMessages(ctx, func(msg *amqp.RecordMessage) error {
		return w.HandleMessage(ctx, msg)
	})
}
