package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"pmt/internal/core"
	"pmt/internal/metrics"
	"pmt/internal/services"
)

// RecordsHandler serves the ledger: create, read, update, delete, list
// and the dashboard.
type RecordsHandler struct {
	Records *services.RecordService
}

// recordRequest is the discriminated create/update payload. Type picks
// between a simple posting ("income", "spend") and a "transfer".
type recordRequest struct {
	Type        string     `json:"type"`
	Sum         string     `json:"sum"`
	LocationID  int64      `json:"location_id,omitempty"`
	SphereID    int64      `json:"sphere_id,omitempty"`
	Kind        string     `json:"kind,omitempty"`
	FromID      int64      `json:"from_id,omitempty"`
	ToID        int64      `json:"to_id,omitempty"`
	FixedID     int64      `json:"fixed_id,omitempty"`
	Description string     `json:"description,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Version     int64      `json:"version,omitempty"`
}

func (req recordRequest) date() time.Time {
	if req.Date != nil {
		return *req.Date
	}
	return time.Now().UTC()
}

func (req recordRequest) operation() (core.OperationType, bool) {
	switch strings.ToLower(req.Type) {
	case "income":
		return core.Income, true
	case "spend":
		return core.Spend, true
	}
	return "", false
}

func (req recordRequest) simpleInput(sum core.Money) services.SimpleRecordInput {
	op, _ := req.operation()
	return services.SimpleRecordInput{
		Operation:   op,
		Sum:         sum,
		LocationID:  req.LocationID,
		SphereID:    req.SphereID,
		Description: req.Description,
		Date:        req.date(),
	}
}

func (req recordRequest) transferSpec(sum core.Money) core.TransferSpec {
	return core.TransferSpec{
		Kind:        core.TransferKind(strings.ToLower(req.Kind)),
		Sum:         sum,
		From:        req.FromID,
		To:          req.ToID,
		Fixed:       req.FixedID,
		Description: req.Description,
		Date:        req.date(),
	}
}

func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sum, err := core.ParseSum(req.Sum)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	switch strings.ToLower(req.Type) {
	case "income", "spend":
		rec, err := h.Records.CreateSimple(r.Context(), currentUserID(r), req.simpleInput(sum))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		metrics.RecordsWritten.WithLabelValues(string(rec.Operation)).Inc()
		jsonResponse(w, http.StatusCreated, toRecordResponse(rec))
	case "transfer":
		pair, err := h.Records.CreateTransfer(r.Context(), currentUserID(r), req.transferSpec(sum))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		for _, rec := range pair {
			metrics.RecordsWritten.WithLabelValues(string(rec.Operation)).Inc()
		}
		jsonResponse(w, http.StatusCreated, toRecordResponses(pair))
	default:
		jsonError(w, http.StatusBadRequest, "type must be income, spend or transfer")
	}
}

func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	rec, err := h.Records.Get(r.Context(), currentUserID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toRecordResponse(rec))
}

func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	result, err := h.Records.List(r.Context(), currentUserID(r), page, size)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toPageResponse(result))
}

func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sum, err := core.ParseSum(req.Sum)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	switch strings.ToLower(req.Type) {
	case "income", "spend":
		rec, err := h.Records.UpdateSimple(r.Context(), currentUserID(r), id, req.Version, req.simpleInput(sum))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, toRecordResponse(rec))
	case "transfer":
		pair, err := h.Records.UpdateTransfer(r.Context(), currentUserID(r), id, req.transferSpec(sum))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, toRecordResponses(pair))
	default:
		jsonError(w, http.StatusBadRequest, "type must be income, spend or transfer")
	}
}

func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.Records.Delete(r.Context(), currentUserID(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.RecordsDeleted.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Records.Dashboard(r.Context(), currentUserID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toDashboardResponse(d))
}
