package timesheet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(f *fixture, v geofence.LocationValidator) timesheet.TimesheetService {
	return NewTimesheetService(memTimesheets{f.store}, memApprovals{f.store}, f.store, v, Config{
		Now: func() time.Time { return f.now },
	})
}

func weekRequest(hours, overtime float64, lat float64) timesheet.CreateTimesheetRequest {
	req := timesheet.CreateTimesheetRequest{
		EmployeeID:  "emp-1",
		ProjectID:   "proj-1",
		PeriodStart: "2025-03-03",
		PeriodEnd:   "2025-03-07",
	}
	for _, d := range []string{"2025-03-03", "2025-03-04", "2025-03-05", "2025-03-06", "2025-03-07"} {
		req.Entries = append(req.Entries, timesheet.CreateEntryRequest{
			Date:          d,
			HoursWorked:   hours,
			OvertimeHours: overtime,
			Billable:      true,
			Start:         &timesheet.LocationFix{Latitude: lat, Longitude: -74.0060, AccuracyMeters: 12},
		})
	}
	return req
}

func TestTimesheetService_Create(t *testing.T) {
	f := newFixture()
	v := &stubValidator{maxLat: 40.713}
	svc := newTestService(f, v)

	req := weekRequest(8, 1, 40.7128)
	req.Entries[4].Start.Latitude = 40.7200

	ts, err := svc.Create(context.Background(), "emp-1", req)
	require.NoError(t, err)

	assert.NotEmpty(t, ts.ID)
	assert.Equal(t, timesheet.StatusDraft, ts.Status)
	assert.Equal(t, 40.0, ts.TotalHours)
	assert.Equal(t, 5.0, ts.OvertimeHours)
	assert.Equal(t, 5, v.calls)
	require.Len(t, v.reported, 1, "only the stored violation is reported")
	assert.Equal(t, 40.7200, v.reported[0].Latitude)

	require.Len(t, ts.Entries, 5)
	assert.True(t, *ts.Entries[0].IsWithinGeofence)
	assert.True(t, ts.Entries[0].LocationVerified)
	assert.False(t, *ts.Entries[4].IsWithinGeofence)
	require.Len(t, ts.Entries[4].Violations, 1)
	assert.Equal(t, 800.0, *ts.Entries[4].DistanceFromSite)

	rec := f.store.record(ts.ID)
	assert.Equal(t, timesheet.StatusDraft, rec.Status)
	assert.Equal(t, 0, rec.Level)
}

func TestTimesheetService_CreateRules(t *testing.T) {
	t.Run("invalid request", func(t *testing.T) {
		f := newFixture()
		req := weekRequest(8, 0, 40.7128)
		req.Entries[1].Date = "2025-03-03"

		_, err := newTestService(f, &stubValidator{maxLat: 90}).Create(context.Background(), "emp-1", req)

		var verrs validator.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Contains(t, verrs.ToMap(), "entries[1].date")
	})

	t.Run("overlapping entry", func(t *testing.T) {
		f := newFixture()
		svc := newTestService(f, &stubValidator{maxLat: 90})
		_, err := svc.Create(context.Background(), "emp-1", weekRequest(8, 0, 40.7128))
		require.NoError(t, err)

		_, err = svc.Create(context.Background(), "emp-1", weekRequest(8, 0, 40.7128))
		assert.ErrorIs(t, err, timesheet.ErrOverlappingEntry)
	})

	t.Run("weekly limit", func(t *testing.T) {
		f := newFixture()
		_, err := newTestService(f, &stubValidator{maxLat: 90}).Create(context.Background(), "emp-1", weekRequest(11, 2, 40.7128))
		assert.ErrorIs(t, err, timesheet.ErrWeeklyLimitExceeded)
	})

	t.Run("monthly overtime limit", func(t *testing.T) {
		f := newFixture()
		svc := NewTimesheetService(memTimesheets{f.store}, memApprovals{f.store}, f.store, &stubValidator{maxLat: 90}, Config{
			WeeklyHourLimit:      100,
			MonthlyOvertimeLimit: 20,
			Now:                  func() time.Time { return f.now },
		})
		_, err := svc.Create(context.Background(), "emp-1", weekRequest(8, 4.5, 40.7128))
		assert.ErrorIs(t, err, timesheet.ErrOvertimeLimitExceeded)
	})

	t.Run("bad sample", func(t *testing.T) {
		f := newFixture()
		v := &stubValidator{err: geofence.ErrInvalidSample}
		_, err := newTestService(f, v).Create(context.Background(), "emp-1", weekRequest(8, 0, 40.7128))
		assert.ErrorIs(t, err, geofence.ErrInvalidSample)
		assert.Empty(t, f.store.timesheets)
	})

	t.Run("later entry invalid reports nothing", func(t *testing.T) {
		f := newFixture()
		v := &stubValidator{maxLat: 40.713, err: geofence.ErrInvalidSample, failOn: 2}
		req := weekRequest(8, 0, 40.7128)
		req.Entries[0].Start.Latitude = 40.7200

		_, err := newTestService(f, v).Create(context.Background(), "emp-1", req)
		assert.ErrorIs(t, err, geofence.ErrInvalidSample)
		assert.Empty(t, f.store.timesheets)
		assert.Empty(t, v.reported)
	})

	t.Run("failed commit reports nothing", func(t *testing.T) {
		f := newFixture()
		f.store.failApproval = errors.New("approvals down")
		v := &stubValidator{maxLat: 40.713}

		_, err := newTestService(f, v).Create(context.Background(), "emp-1", weekRequest(8, 0, 40.7200))
		assert.Error(t, err)
		assert.Empty(t, f.store.timesheets, "rolled back")
		assert.Empty(t, v.reported)
	})
}

func TestTimesheetService_ProcessOfflineEntries(t *testing.T) {
	f := newFixture()
	v := &stubValidator{maxLat: 40.713}
	svc := newTestService(f, v)

	req := weekRequest(8, 0, 40.7128)
	for i := range req.Entries {
		req.Entries[i].IsOffline = true
	}
	req.Entries[2].Start.Latitude = 40.7200

	ts, err := svc.Create(context.Background(), "emp-1", req)
	require.NoError(t, err)
	assert.Zero(t, v.calls, "offline entries are deferred")

	n, err := svc.ProcessOfflineEntries(context.Background(), f.now.Add(-24*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	stored, err := svc.GetByID(context.Background(), ts.ID)
	require.NoError(t, err)
	flagged := 0
	for _, e := range stored.Entries {
		assert.True(t, e.LocationVerified)
		if !*e.IsWithinGeofence {
			flagged++
		}
	}
	assert.Equal(t, 1, flagged)
	assert.Len(t, v.reported, 1)

	n, err = svc.ProcessOfflineEntries(context.Background(), f.now.Add(-24*time.Hour), 100)
	require.NoError(t, err)
	assert.Zero(t, n, "verified entries are not processed twice")
}

func TestWeekStart(t *testing.T) {
	sunday := time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), weekStart(sunday))

	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, weekStart(monday))
}
