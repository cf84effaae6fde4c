package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/auth"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/handler/http/response"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/validator"
	"github.com/go-chi/chi/v5"
)

type TimesheetHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)

	// Approval workflow
	Submit(w http.ResponseWriter, r *http.Request)
	Approve(w http.ResponseWriter, r *http.Request)
	Reject(w http.ResponseWriter, r *http.Request)
	Resubmit(w http.ResponseWriter, r *http.Request)
	GetApproval(w http.ResponseWriter, r *http.Request)
	History(w http.ResponseWriter, r *http.Request)

	// Geofence reporting
	Violations(w http.ResponseWriter, r *http.Request)
	GeofenceStatistics(w http.ResponseWriter, r *http.Request)
}

type TimesheetHandlerImpl struct {
	timesheets timesheet.TimesheetService
	workflow   timesheet.Workflow
}

func NewTimesheetHandler(timesheets timesheet.TimesheetService, workflow timesheet.Workflow) TimesheetHandler {
	return &TimesheetHandlerImpl{timesheets: timesheets, workflow: workflow}
}

func (h *TimesheetHandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req timesheet.CreateTimesheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("CreateTimesheet decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if req.EmployeeID == "" {
		req.EmployeeID = p.UserID
	}
	if req.EmployeeID != p.UserID && !p.Is(supervisors...) {
		response.HandleError(w, timesheet.ErrNotTimesheetOwner)
		return
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	ts, err := h.timesheets.Create(r.Context(), p.UserID, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Timesheet created successfully", timesheet.NewTimesheetResponse(ts))
}

func (h *TimesheetHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	ts, ok := h.load(w, r, p)
	if !ok {
		return
	}

	response.Success(w, timesheet.NewTimesheetResponse(ts))
}

func (h *TimesheetHandlerImpl) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Timesheet submitted", func(ctx context.Context, id, actorID string) (timesheet.ApprovalRecord, error) {
		return h.workflow.Submit(ctx, id, actorID)
	})
}

func (h *TimesheetHandlerImpl) Resubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Timesheet resubmitted", func(ctx context.Context, id, actorID string) (timesheet.ApprovalRecord, error) {
		return h.workflow.Resubmit(ctx, id, actorID)
	})
}

func (h *TimesheetHandlerImpl) Approve(w http.ResponseWriter, r *http.Request) {
	var req timesheet.ApproveStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("ApproveStage decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	h.transition(w, r, "Stage approved", func(ctx context.Context, id, actorID string) (timesheet.ApprovalRecord, error) {
		return h.workflow.ApproveStage(ctx, id, actorID, timesheet.Stage(req.Stage), req.Notes)
	})
}

func (h *TimesheetHandlerImpl) Reject(w http.ResponseWriter, r *http.Request) {
	var req timesheet.RejectStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("RejectStage decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	h.transition(w, r, "Timesheet rejected", func(ctx context.Context, id, actorID string) (timesheet.ApprovalRecord, error) {
		return h.workflow.RejectStage(ctx, id, actorID, timesheet.Stage(req.Stage), req.Reason)
	})
}

func (h *TimesheetHandlerImpl) GetApproval(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if _, ok := h.load(w, r, p); !ok {
		return
	}

	rec, err := h.workflow.GetApproval(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, timesheet.NewApprovalResponse(rec))
}

func (h *TimesheetHandlerImpl) History(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if _, ok := h.load(w, r, p); !ok {
		return
	}

	entries, err := h.workflow.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, timesheet.NewAuditEntryResponses(entries))
}

// Violations lists the most recent flagged entries of a project.
func (h *TimesheetHandlerImpl) Violations(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if projectID == "" {
		response.BadRequest(w, "Project ID is required", nil)
		return
	}

	limit := timesheet.DefaultViolationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > timesheet.MaxViolationLimit {
			var errs validator.ValidationErrors
			errs.Add("limit", "limit must be a number between 1 and 100")
			response.HandleError(w, errs)
			return
		}
		limit = n
	}

	records, err := h.timesheets.RecentViolations(r.Context(), projectID, limit)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, records)
}

// GeofenceStatistics reports compliance counts. Employees without a
// supervising role only see their own numbers.
func (h *TimesheetHandlerImpl) GeofenceStatistics(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	req := timesheet.StatisticsRequest{
		ProjectID:  q.Get("project_id"),
		EmployeeID: q.Get("employee_id"),
		DateFrom:   q.Get("date_from"),
		DateTo:     q.Get("date_to"),
	}
	if !p.Is(supervisors...) {
		if req.EmployeeID != "" && req.EmployeeID != p.UserID {
			response.HandleError(w, auth.ErrInsufficientRole)
			return
		}
		req.EmployeeID = p.UserID
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	stats, err := h.timesheets.GeofenceStatistics(r.Context(), req.ToFilter())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, stats)
}

// transition runs one workflow action as the authenticated user.
func (h *TimesheetHandlerImpl) transition(w http.ResponseWriter, r *http.Request, message string, fn func(ctx context.Context, id, actorID string) (timesheet.ApprovalRecord, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "Timesheet ID is required", nil)
		return
	}

	rec, err := fn(r.Context(), id, p.UserID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, message, timesheet.NewApprovalResponse(rec))
}

// load fetches the timesheet in the URL. Employees only see their own.
func (h *TimesheetHandlerImpl) load(w http.ResponseWriter, r *http.Request, p auth.Principal) (timesheet.Timesheet, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "Timesheet ID is required", nil)
		return timesheet.Timesheet{}, false
	}

	ts, err := h.timesheets.GetByID(r.Context(), id)
	if err != nil {
		response.HandleError(w, err)
		return timesheet.Timesheet{}, false
	}

	if ts.EmployeeID != p.UserID && ts.CreatedBy != p.UserID && !p.Is(supervisors...) {
		response.HandleError(w, timesheet.ErrNotTimesheetOwner)
		return timesheet.Timesheet{}, false
	}
	return ts, true
}
