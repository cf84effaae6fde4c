package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/auth"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/notification"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/worksummary"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/geo"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Auth
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnknownRole):
		Unauthorized(w, "Invalid or expired token")
	case errors.Is(err, auth.ErrTokenExpired):
		Unauthorized(w, "Token expired")
	case errors.Is(err, auth.ErrInsufficientRole):
		Forbidden(w, err.Error())

	// Invalid input
	case errors.Is(err, geo.ErrInvalidCoordinate),
		errors.Is(err, geo.ErrInvalidPolygon),
		errors.Is(err, geofence.ErrInvalidSample),
		errors.Is(err, timesheet.ErrInvalidStage),
		errors.Is(err, timesheet.ErrRejectionReasonEmpty),
		errors.Is(err, worksummary.ErrInvalidYearMonth),
		errors.Is(err, notification.ErrInvalidNotificationType):
		BadRequest(w, err.Error(), nil)

	// Authorization
	case errors.Is(err, timesheet.ErrStageNotAuthorized),
		errors.Is(err, timesheet.ErrNotTimesheetOwner):
		Forbidden(w, err.Error())

	// Not found
	case errors.Is(err, geofence.ErrZoneNotFound),
		errors.Is(err, timesheet.ErrTimesheetNotFound),
		errors.Is(err, timesheet.ErrApprovalNotFound),
		errors.Is(err, worksummary.ErrSummaryNotFound),
		errors.Is(err, notification.ErrNotificationNotFound):
		NotFound(w, err.Error())

	// State conflicts
	case errors.Is(err, timesheet.ErrInvalidTransition),
		errors.Is(err, timesheet.ErrAlreadySubmitted),
		errors.Is(err, timesheet.ErrNotRejected),
		errors.Is(err, timesheet.ErrConcurrentModification),
		errors.Is(err, timesheet.ErrOverlappingEntry):
		Conflict(w, err.Error())

	// Business rules
	case errors.Is(err, timesheet.ErrWeeklyLimitExceeded),
		errors.Is(err, timesheet.ErrOvertimeLimitExceeded):
		ValidationError(w, map[string]string{"entries": err.Error()})

	// Timeouts
	case errors.Is(err, geofence.ErrLookupTimeout),
		errors.Is(err, timesheet.ErrLookupTimeout),
		errors.Is(err, context.DeadlineExceeded):
		GatewayTimeout(w, err.Error())

	// Zone data that can no longer be evaluated
	case errors.Is(err, geofence.ErrZoneDataCorrupt):
		InternalServerError(w, "Zone data is corrupt")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
