package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/auth"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

type GeofenceHandler interface {
	Validate(w http.ResponseWriter, r *http.Request)

	ListZones(w http.ResponseWriter, r *http.Request)
	CreateZone(w http.ResponseWriter, r *http.Request)
	UpdateZone(w http.ResponseWriter, r *http.Request)
	DeleteZone(w http.ResponseWriter, r *http.Request)
}

type GeofenceHandlerImpl struct {
	validator geofence.LocationValidator
	zones     geofence.ZoneService
	now       func() time.Time
}

func NewGeofenceHandler(validator geofence.LocationValidator, zones geofence.ZoneService) GeofenceHandler {
	return &GeofenceHandlerImpl{validator: validator, zones: zones, now: time.Now}
}

// Validate checks one location sample and reports violations.
func (h *GeofenceHandlerImpl) Validate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req geofence.ValidateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Validate location decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if req.EmployeeID == "" {
		req.EmployeeID = p.UserID
	}
	if req.EmployeeID != p.UserID && !p.Is(supervisors...) {
		response.HandleError(w, auth.ErrInsufficientRole)
		return
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.validator.ValidateAndReport(r.Context(), req.ToSample(h.now()))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *GeofenceHandlerImpl) ListZones(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if projectID == "" {
		response.BadRequest(w, "Project ID is required", nil)
		return
	}

	zones, err := h.zones.ListByProject(r.Context(), projectID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, zones)
}

func (h *GeofenceHandlerImpl) CreateZone(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if projectID == "" {
		response.BadRequest(w, "Project ID is required", nil)
		return
	}

	var req geofence.CreateZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("CreateZone decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	zone, err := h.zones.Create(r.Context(), projectID, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Zone created successfully", geofence.NewZoneResponse(zone))
}

func (h *GeofenceHandlerImpl) UpdateZone(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "zoneID")
	if zoneID == "" {
		response.BadRequest(w, "Zone ID is required", nil)
		return
	}

	var req geofence.UpdateZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("UpdateZone decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	zone, err := h.zones.Update(r.Context(), zoneID, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Zone updated successfully", geofence.NewZoneResponse(zone))
}

func (h *GeofenceHandlerImpl) DeleteZone(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "zoneID")
	if zoneID == "" {
		response.BadRequest(w, "Zone ID is required", nil)
		return
	}

	if err := h.zones.Delete(r.Context(), zoneID); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Zone deleted successfully", nil)
}
