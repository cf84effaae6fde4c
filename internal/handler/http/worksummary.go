package http

import (
	"net/http"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/auth"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/worksummary"
	"github.com/cmlabs-hris/fieldtime-backend/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

type WorkSummaryHandler interface {
	Get(w http.ResponseWriter, r *http.Request)
}

type WorkSummaryHandlerImpl struct {
	service worksummary.Service
}

func NewWorkSummaryHandler(service worksummary.Service) WorkSummaryHandler {
	return &WorkSummaryHandlerImpl{service: service}
}

// Get returns the monthly summary of an employee, e.g. /work-summaries/emp-1/2026-03.
func (h *WorkSummaryHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	employeeID := chi.URLParam(r, "employeeID")
	if employeeID == "" {
		response.BadRequest(w, "Employee ID is required", nil)
		return
	}
	if employeeID != p.UserID && !p.Is(supervisors...) {
		response.HandleError(w, auth.ErrInsufficientRole)
		return
	}

	ym, err := worksummary.ParseYearMonth(chi.URLParam(r, "yearMonth"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	summary, err := h.service.Get(r.Context(), employeeID, ym)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, summary)
}
