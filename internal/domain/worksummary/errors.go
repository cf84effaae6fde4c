package worksummary

import "errors"

var (
	ErrSummaryNotFound  = errors.New("work summary not found")
	ErrInvalidYearMonth = errors.New("invalid year-month, expected YYYY-MM")
)
