package worksummary

import (
	"context"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/event"
)

type Service interface {
	// OnTimesheetApproved recomputes every month the timesheet touches.
	OnTimesheetApproved(ctx context.Context, timesheetID string) ([]Summary, error)
	Recompute(ctx context.Context, employeeID string, ym YearMonth) (Summary, error)
	Get(ctx context.Context, employeeID string, ym YearMonth) (SummaryResponse, error)
	// Reconcile recomputes ym for every employee with approved work in it.
	Reconcile(ctx context.Context, ym YearMonth) (int, error)
}

// Worker consumes approval events in the background.
type Worker interface {
	event.Publisher
	Stop()
}
