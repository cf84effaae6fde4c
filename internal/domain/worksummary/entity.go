package worksummary

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

func Of(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth accepts "2006-01".
func ParseYearMonth(v string) (YearMonth, error) {
	t, err := time.Parse("2006-01", v)
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, v)
	}
	return Of(t), nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Start is the first instant of the month in UTC.
func (ym YearMonth) Start() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the following month.
func (ym YearMonth) End() time.Time {
	return ym.Start().AddDate(0, 1, 0)
}

// MonthsBetween lists every month touched by the inclusive range [from, to].
func MonthsBetween(from, to time.Time) []YearMonth {
	if to.Before(from) {
		from, to = to, from
	}
	var out []YearMonth
	last := Of(to)
	for ym := Of(from); ; {
		out = append(out, ym)
		if ym == last {
			return out
		}
		next := ym.End()
		ym = Of(next)
	}
}

// Summary is the monthly rollup of one employee's approved hours.
type Summary struct {
	EmployeeID       string
	YearMonth        YearMonth
	RegularHours     decimal.Decimal
	OvertimeHours    decimal.Decimal
	BillableHours    decimal.Decimal
	NonBillableHours decimal.Decimal
	ProjectCount     int
	TimesheetCount   int
	UpdatedAt        time.Time
}

// TotalHours is regular plus overtime.
func (s Summary) TotalHours() decimal.Decimal {
	return s.RegularHours.Add(s.OvertimeHours)
}

// EntryHours is the slice of an approved time entry the rollup needs.
type EntryHours struct {
	TimesheetID   string
	ProjectID     string
	Date          time.Time
	HoursWorked   float64
	OvertimeHours float64
	Billable      bool
}

// Compute rebuilds a summary from the complete set of approved entries of
// the month. Entries outside the month are ignored.
func Compute(employeeID string, ym YearMonth, entries []EntryHours, now time.Time) Summary {
	s := Summary{
		EmployeeID:       employeeID,
		YearMonth:        ym,
		RegularHours:     decimal.Zero,
		OvertimeHours:    decimal.Zero,
		BillableHours:    decimal.Zero,
		NonBillableHours: decimal.Zero,
		UpdatedAt:        now,
	}

	projects := make(map[string]struct{})
	timesheets := make(map[string]struct{})
	for _, e := range entries {
		if Of(e.Date) != ym {
			continue
		}
		regular := decimal.NewFromFloat(e.HoursWorked)
		overtime := decimal.NewFromFloat(e.OvertimeHours)
		s.RegularHours = s.RegularHours.Add(regular)
		s.OvertimeHours = s.OvertimeHours.Add(overtime)
		if e.Billable {
			s.BillableHours = s.BillableHours.Add(regular).Add(overtime)
		} else {
			s.NonBillableHours = s.NonBillableHours.Add(regular).Add(overtime)
		}
		projects[e.ProjectID] = struct{}{}
		timesheets[e.TimesheetID] = struct{}{}
	}
	s.ProjectCount = len(projects)
	s.TimesheetCount = len(timesheets)
	return s
}
