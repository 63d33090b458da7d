package api

import (
	"time"

	"pmt/internal/core"
	"pmt/internal/services"
)

// recordResponse is the wire shape of a ledger record. Sums travel as
// two-place decimal strings.
type recordResponse struct {
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
}

func toRecordResponse(rec core.Record) recordResponse {
	return recordResponse{
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
	}
}

func toRecordResponses(records []core.Record) []recordResponse {
	out := make([]recordResponse, len(records))
	for i, rec := range records {
		out[i] = toRecordResponse(rec)
	}
	return out
}

type pageResponse struct {
	Items []recordResponse `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
	Pages int              `json:"pages"`
}

func toPageResponse(page services.Page) pageResponse {
	return pageResponse{
		Items: toRecordResponses(page.Items),
		Total: page.Total,
		Page:  page.Page,
		Size:  page.Size,
		Pages: page.Pages,
	}
}

type entityResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	OwnerID     int64   `json:"owner_id"`
	ReaderIDs   []int64 `json:"reader_ids,omitempty"`
	EditorIDs   []int64 `json:"editor_ids,omitempty"`
}

func toLocationResponse(loc core.Location) entityResponse {
	return entityResponse{
		ID: loc.ID, Name: loc.Name, Description: loc.Description,
		OwnerID: loc.OwnerID, ReaderIDs: loc.ReaderIDs, EditorIDs: loc.EditorIDs,
	}
}

func toSphereResponse(sph core.Sphere) entityResponse {
	return entityResponse{
		ID: sph.ID, Name: sph.Name, Description: sph.Description,
		OwnerID: sph.OwnerID, ReaderIDs: sph.ReaderIDs, EditorIDs: sph.EditorIDs,
	}
}

type balanceResponse struct {
	ID      int64  `json:"id"`
	Balance string `json:"balance"`
}

type entityBalanceResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

type dashboardResponse struct {
	Locations []entityBalanceResponse `json:"locations"`
	Spheres   []entityBalanceResponse `json:"spheres"`
	Total     string                  `json:"total"`
}

func toDashboardResponse(d services.Dashboard) dashboardResponse {
	out := dashboardResponse{
		Locations: make([]entityBalanceResponse, len(d.Locations)),
		Spheres:   make([]entityBalanceResponse, len(d.Spheres)),
		Total:     d.Total.String(),
	}
	for i, eb := range d.Locations {
		out.Locations[i] = entityBalanceResponse{ID: eb.ID, Name: eb.Name, Balance: eb.Balance.String()}
	}
	for i, eb := range d.Spheres {
		out.Spheres[i] = entityBalanceResponse{ID: eb.ID, Name: eb.Name, Balance: eb.Balance.String()}
	}
	return out
}
