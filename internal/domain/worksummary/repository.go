package worksummary

import "context"

type Repository interface {
	// ApprovedEntries returns every entry of the employee dated within ym
	// whose timesheet has reached final approval.
	ApprovedEntries(ctx context.Context, employeeID string, ym YearMonth) ([]EntryHours, error)
	// EmployeesWithApproved lists employees owning approved entries in ym.
	EmployeesWithApproved(ctx context.Context, ym YearMonth) ([]string, error)
	// Upsert replaces the (employee, month) row.
	Upsert(ctx context.Context, s Summary) error
	Get(ctx context.Context, employeeID string, ym YearMonth) (Summary, error)
}
