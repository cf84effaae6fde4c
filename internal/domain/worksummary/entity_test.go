package worksummary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseYearMonth(t *testing.T) {
	ym, err := ParseYearMonth("2025-03")
	require.NoError(t, err)
	assert.Equal(t, YearMonth{Year: 2025, Month: time.March}, ym)
	assert.Equal(t, "2025-03", ym.String())
	assert.Equal(t, date(2025, time.April, 1), ym.End())

	_, err = ParseYearMonth("2025-13")
	assert.ErrorIs(t, err, ErrInvalidYearMonth)
	_, err = ParseYearMonth("March")
	assert.ErrorIs(t, err, ErrInvalidYearMonth)
}

func TestMonthsBetween(t *testing.T) {
	assert.Equal(t,
		[]YearMonth{{2025, time.January}},
		MonthsBetween(date(2025, time.January, 3), date(2025, time.January, 20)),
	)
	assert.Equal(t,
		[]YearMonth{{2024, time.December}, {2025, time.January}, {2025, time.February}},
		MonthsBetween(date(2024, time.December, 28), date(2025, time.February, 2)),
	)
}

func TestCompute(t *testing.T) {
	ym := YearMonth{Year: 2025, Month: time.January}
	entries := []EntryHours{
		{TimesheetID: "ts-1", ProjectID: "p-1", Date: date(2024, time.December, 31), HoursWorked: 8, Billable: true},
		{TimesheetID: "ts-1", ProjectID: "p-1", Date: date(2025, time.January, 1), HoursWorked: 8, OvertimeHours: 1.5, Billable: true},
		{TimesheetID: "ts-2", ProjectID: "p-2", Date: date(2025, time.January, 2), HoursWorked: 7.25},
	}

	s := Compute("emp-1", ym, entries, date(2025, time.February, 1))

	assert.Equal(t, "15.25", s.RegularHours.String())
	assert.Equal(t, "1.5", s.OvertimeHours.String())
	assert.Equal(t, "9.5", s.BillableHours.String())
	assert.Equal(t, "7.25", s.NonBillableHours.String())
	assert.Equal(t, "16.75", s.TotalHours().String())
	assert.Equal(t, 2, s.ProjectCount)
	assert.Equal(t, 2, s.TimesheetCount)

	again := Compute("emp-1", ym, entries, date(2025, time.February, 1))
	assert.True(t, s.TotalHours().Equal(again.TotalHours()))
}
