package timesheet

import "errors"

// Timesheet domain errors
var (
	ErrTimesheetNotFound      = errors.New("timesheet not found")
	ErrApprovalNotFound       = errors.New("approval record not found")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrAlreadySubmitted       = errors.New("timesheet already submitted")
	ErrNotRejected            = errors.New("timesheet is not rejected")
	ErrConcurrentModification = errors.New("timesheet was modified concurrently")
	ErrStageNotAuthorized     = errors.New("actor is not authorized for this approval stage")
	ErrNotTimesheetOwner      = errors.New("only the employee or creator may submit this timesheet")
	ErrInvalidStage           = errors.New("invalid approval stage")
	ErrRejectionReasonEmpty   = errors.New("rejection reason is required")
	ErrLookupTimeout          = errors.New("approval lookup timed out")

	ErrOverlappingEntry      = errors.New("employee already has a time entry on this date")
	ErrWeeklyLimitExceeded   = errors.New("weekly working hour limit exceeded")
	ErrOvertimeLimitExceeded = errors.New("monthly overtime limit exceeded")
)
