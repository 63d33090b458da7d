// Package services orchestrates ledger operations across the store,
// the event queue and the dashboard cache.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"pmt/internal/cache"
	"pmt/internal/core"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	dashboardCacheSize = 256
	dashboardCacheTTL  = 30 * time.Second
)

// RecordService owns every write to the ledger and the access checks
// around it.
type RecordService struct {
	store      Store
	events     EventPublisher
	dashboards *cache.LRUCache[Dashboard]
}

func NewRecordService(store Store, events EventPublisher) *RecordService {
	return &RecordService{
		store:      store,
		events:     events,
		dashboards: cache.NewLRUCache[Dashboard](dashboardCacheSize, dashboardCacheTTL),
	}
}

// SimpleRecordInput carries the caller-supplied fields of an Income or
// Spend posting.
type SimpleRecordInput struct {
	Operation   core.OperationType
	Sum         core.Money
	LocationID  int64
	SphereID    int64
	Description string
	Date        time.Time
}

// Page is one slice of a reverse-chronological record listing.
type Page struct {
	Items []core.Record
	Total int64
	Page  int
	Size  int
	Pages int
}

// CreateSimple validates and stores one Income or Spend record. The
// caller needs write access to both referenced entities.
func (s *RecordService) CreateSimple(ctx context.Context, userID int64, in SimpleRecordInput) (core.Record, error) {
	rec := core.Record{
		OwnerID:     userID,
		Operation:   in.Operation,
		Sum:         in.Sum,
		LocationID:  &in.LocationID,
		SphereID:    &in.SphereID,
		Description: in.Description,
		Date:        in.Date,
	}
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}
	if err := s.checkLocationWrite(ctx, userID, in.LocationID); err != nil {
		return core.Record{}, err
	}
	if err := s.checkSphereWrite(ctx, userID, in.SphereID); err != nil {
		return core.Record{}, err
	}

	rec, err := s.store.InsertRecord(ctx, rec)
	if err != nil {
		return core.Record{}, err
	}
	s.invalidateDashboard(userID)
	s.publishArchive(ctx, rec)
	return rec, nil
}

// CreateTransfer stores both halves of a transfer atomically. The
// caller needs write access to both endpoints and the fixed entity.
func (s *RecordService) CreateTransfer(ctx context.Context, userID int64, spec core.TransferSpec) ([]core.Record, error) {
	spec.OwnerID = userID
	from, to, err := spec.Halves()
	if err != nil {
		return nil, err
	}
	if err := s.checkTransferRefs(ctx, userID, spec); err != nil {
		return nil, err
	}

	from, to, err = s.store.InsertPair(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard(userID)
	s.publishArchive(ctx, from)
	s.publishArchive(ctx, to)
	return []core.Record{from, to}, nil
}

// Get returns one record if the caller owns it or can read one of its
// referenced entities.
func (s *RecordService) Get(ctx context.Context, userID, id int64) (core.Record, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return core.Record{}, err
	}
	if err := s.checkRecordRead(ctx, userID, rec); err != nil {
		return core.Record{}, err
	}
	return rec, nil
}

// List pages through the caller's own records, newest first.
func (s *RecordService) List(ctx context.Context, userID int64, page, size int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	items, total, err := s.store.ListRecords(ctx, userID, size, (page-1)*size)
	if err != nil {
		return Page{}, err
	}
	pages := int((total + int64(size) - 1) / int64(size))
	return Page{Items: items, Total: total, Page: page, Size: size, Pages: pages}, nil
}

// UpdateSimple replaces the fields of a non-transfer record under
// optimistic concurrency: version must match the stored row.
func (s *RecordService) UpdateSimple(ctx context.Context, userID, id, version int64, in SimpleRecordInput) (core.Record, error) {
	current, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return core.Record{}, err
	}
	if current.IsTransfer {
		return core.Record{}, fmt.Errorf("%w: transfer halves cannot be edited individually", core.ErrInvalidOperation)
	}
	if err := s.checkRecordWrite(ctx, userID, current); err != nil {
		return core.Record{}, err
	}

	next := current
	next.Operation = in.Operation
	next.Sum = in.Sum
	next.LocationID = &in.LocationID
	next.SphereID = &in.SphereID
	next.Description = in.Description
	next.Date = in.Date
	next.Version = version
	if err := next.Validate(); err != nil {
		return core.Record{}, err
	}
	if err := s.checkLocationWrite(ctx, userID, in.LocationID); err != nil {
		return core.Record{}, err
	}
	if err := s.checkSphereWrite(ctx, userID, in.SphereID); err != nil {
		return core.Record{}, err
	}

	updated, err := s.store.UpdateRecord(ctx, next)
	if err != nil {
		return core.Record{}, err
	}
	s.invalidateDashboard(current.OwnerID)
	s.publishArchive(ctx, updated)
	return updated, nil
}

// UpdateTransfer replaces a whole transfer: the old accounting group is
// removed and a fresh pair is written under a new accounting id.
func (s *RecordService) UpdateTransfer(ctx context.Context, userID, id int64, spec core.TransferSpec) ([]core.Record, error) {
	current, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsTransfer {
		return nil, fmt.Errorf("%w: record %d is not a transfer", core.ErrInvalidOperation, id)
	}
	if err := s.checkRecordWrite(ctx, userID, current); err != nil {
		return nil, err
	}

	spec.OwnerID = current.OwnerID
	from, to, err := spec.Halves()
	if err != nil {
		return nil, err
	}
	if err := s.checkTransferRefs(ctx, userID, spec); err != nil {
		return nil, err
	}

	group, err := s.store.GroupRecords(ctx, current.AccountingID)
	if err != nil {
		return nil, err
	}

	// Removing the old pair and writing the new one happens in one
	// store transaction: a failed replace leaves the original intact.
	from, to, err = s.store.ReplaceGroup(ctx, current.AccountingID, from, to)
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard(current.OwnerID)
	for _, old := range group {
		s.publishDelete(ctx, old.ID)
	}
	s.publishArchive(ctx, from)
	s.publishArchive(ctx, to)
	return []core.Record{from, to}, nil
}

// Delete removes the record's whole accounting group, so deleting one
// half of a transfer always takes its sibling with it.
func (s *RecordService) Delete(ctx context.Context, userID, id int64) error {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkRecordWrite(ctx, userID, rec); err != nil {
		return err
	}

	group, err := s.store.GroupRecords(ctx, rec.AccountingID)
	if err != nil {
		return err
	}
	if _, err := s.store.DeleteGroup(ctx, rec.AccountingID); err != nil {
		return err
	}
	s.invalidateDashboard(rec.OwnerID)
	for _, old := range group {
		s.publishDelete(ctx, old.ID)
	}
	return nil
}

func (s *RecordService) checkLocationWrite(ctx context.Context, userID, id int64) error {
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: location %d", core.ErrReferentialIntegrity, id)
	}
	if !loc.CanWrite(userID) {
		return fmt.Errorf("%w: location %d", core.ErrForbidden, id)
	}
	return nil
}

func (s *RecordService) checkSphereWrite(ctx context.Context, userID, id int64) error {
	sph, err := s.store.GetSphere(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: sphere %d", core.ErrReferentialIntegrity, id)
	}
	if !sph.CanWrite(userID) {
		return fmt.Errorf("%w: sphere %d", core.ErrForbidden, id)
	}
	return nil
}

func (s *RecordService) checkTransferRefs(ctx context.Context, userID int64, spec core.TransferSpec) error {
	switch spec.Kind {
	case core.TransferLocation:
		for _, id := range []int64{spec.From, spec.To} {
			if err := s.checkLocationWrite(ctx, userID, id); err != nil {
				return err
			}
		}
		return s.checkSphereWrite(ctx, userID, spec.Fixed)
	case core.TransferSphere:
		for _, id := range []int64{spec.From, spec.To} {
			if err := s.checkSphereWrite(ctx, userID, id); err != nil {
				return err
			}
		}
		return s.checkLocationWrite(ctx, userID, spec.Fixed)
	}
	return fmt.Errorf("%w: %w", core.ErrValidation, core.ErrUnknownKind)
}

// checkRecordRead allows the owner plus anyone who can read one of the
// referenced entities. Dangling references after an entity delete fall
// back to owner-only.
func (s *RecordService) checkRecordRead(ctx context.Context, userID int64, rec core.Record) error {
	if rec.OwnerID == userID {
		return nil
	}
	if rec.LocationID != nil {
		if loc, err := s.store.GetLocation(ctx, *rec.LocationID); err == nil && loc.CanRead(userID) {
			return nil
		}
	}
	if rec.SphereID != nil {
		if sph, err := s.store.GetSphere(ctx, *rec.SphereID); err == nil && sph.CanRead(userID) {
			return nil
		}
	}
	return fmt.Errorf("%w: record %d", core.ErrForbidden, rec.ID)
}

func (s *RecordService) checkRecordWrite(ctx context.Context, userID int64, rec core.Record) error {
	if rec.OwnerID == userID {
		return nil
	}
	if rec.LocationID != nil {
		if loc, err := s.store.GetLocation(ctx, *rec.LocationID); err == nil && loc.CanWrite(userID) {
			return nil
		}
	}
	if rec.SphereID != nil {
		if sph, err := s.store.GetSphere(ctx, *rec.SphereID); err == nil && sph.CanWrite(userID) {
			return nil
		}
	}
	return fmt.Errorf("%w: record %d", core.ErrForbidden, rec.ID)
}

func (s *RecordService) publishArchive(ctx context.Context, rec core.Record) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRecordArchive(ctx, rec.ID, rec.Version); err != nil {
		// The write already landed; the archive worker catches up later.
		slog.ErrorContext(ctx, "Failed to publish archive message",
			"record_id", rec.ID, "error", err)
	}
}

func (s *RecordService) publishDelete(ctx context.Context, id int64) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRecordDelete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete message",
			"record_id", id, "error", err)
	}
}

func (s *RecordService) invalidateDashboard(userID int64) {
	s.dashboards.Delete(strconv.FormatInt(userID, 10))
}
