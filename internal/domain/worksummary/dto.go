package worksummary

import "time"

type SummaryResponse struct {
	EmployeeID       string    `json:"employee_id"`
	YearMonth        string    `json:"year_month"`
	RegularHours     string    `json:"regular_hours"`
	OvertimeHours    string    `json:"overtime_hours"`
	TotalHours       string    `json:"total_hours"`
	BillableHours    string    `json:"billable_hours"`
	NonBillableHours string    `json:"non_billable_hours"`
	ProjectCount     int       `json:"project_count"`
	TimesheetCount   int       `json:"timesheet_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func NewSummaryResponse(s Summary) SummaryResponse {
	return SummaryResponse{
		EmployeeID:       s.EmployeeID,
		YearMonth:        s.YearMonth.String(),
		RegularHours:     s.RegularHours.StringFixed(2),
		OvertimeHours:    s.OvertimeHours.StringFixed(2),
		TotalHours:       s.TotalHours().StringFixed(2),
		BillableHours:    s.BillableHours.StringFixed(2),
		NonBillableHours: s.NonBillableHours.StringFixed(2),
		ProjectCount:     s.ProjectCount,
		TimesheetCount:   s.TimesheetCount,
		UpdatedAt:        s.UpdatedAt,
	}
}
