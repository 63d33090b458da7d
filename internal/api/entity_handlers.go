package api

import (
	"net/http"
	"strconv"

	"pmt/internal/services"
)

type entityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type shareRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

func parseID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

// LocationsHandler serves CRUD, sharing and balance for money pools.
type LocationsHandler struct {
	Entities *services.EntityService
	Records  *services.RecordService
}

func (h *LocationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	loc, err := h.Entities.CreateLocation(r.Context(), currentUserID(r), req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, toLocationResponse(loc))
}

func (h *LocationsHandler) List(w http.ResponseWriter, r *http.Request) {
	locations, err := h.Entities.ListLocations(r.Context(), currentUserID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]entityResponse, len(locations))
	for i, loc := range locations {
		out[i] = toLocationResponse(loc)
	}
	jsonResponse(w, http.StatusOK, out)
}

func (h *LocationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	loc, err := h.Entities.GetLocation(r.Context(), currentUserID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toLocationResponse(loc))
}

func (h *LocationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req entityRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	loc, err := h.Entities.UpdateLocation(r.Context(), currentUserID(r), id, req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toLocationResponse(loc))
}

func (h *LocationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.Entities.DeleteLocation(r.Context(), currentUserID(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LocationsHandler) Share(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req shareRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Entities.ShareLocation(r.Context(), currentUserID(r), id, req.UserID, req.Role); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LocationsHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	userID, ok := parseID(r, "userID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.Entities.UnshareLocation(r.Context(), currentUserID(r), id, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LocationsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	balance, err := h.Records.LocationBalance(r.Context(), currentUserID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, balanceResponse{ID: id, Balance: balance.String()})
}

// SpheresHandler serves CRUD, sharing and balance for spending
// categories.
type SpheresHandler struct {
	Entities *services.EntityService
	Records  *services.RecordService
}

func (h *SpheresHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sph, err := h.Entities.CreateSphere(r.Context(), currentUserID(r), req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, toSphereResponse(sph))
}

func (h *SpheresHandler) List(w http.ResponseWriter, r *http.Request) {
	spheres, err := h.Entities.ListSpheres(r.Context(), currentUserID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]entityResponse, len(spheres))
	for i, sph := range spheres {
		out[i] = toSphereResponse(sph)
	}
	jsonResponse(w, http.StatusOK, out)
}

func (h *SpheresHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	sph, err := h.Entities.GetSphere(r.Context(), currentUserID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toSphereResponse(sph))
}

func (h *SpheresHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req entityRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sph, err := h.Entities.UpdateSphere(r.Context(), currentUserID(r), id, req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, toSphereResponse(sph))
}

func (h *SpheresHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.Entities.DeleteSphere(r.Context(), currentUserID(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SpheresHandler) Share(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req shareRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Entities.ShareSphere(r.Context(), currentUserID(r), id, req.UserID, req.Role); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SpheresHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	userID, ok := parseID(r, "userID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.Entities.UnshareSphere(r.Context(), currentUserID(r), id, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SpheresHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id")
		return
	}
	balance, err := h.Records.SphereBalance(r.Context(), currentUserID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, balanceResponse{ID: id, Balance: balance.String()})
}
