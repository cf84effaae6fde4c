package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/geofence"
	"github.com/cmlabs-hris/fieldtime-backend/internal/domain/timesheet"
	"github.com/cmlabs-hris/fieldtime-backend/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type timesheetRepository struct {
	db *database.DB
}

func NewTimesheetRepository(db *database.DB) timesheet.TimesheetRepository {
	return &timesheetRepository{db: db}
}

// Create inserts the timesheet header and all of its entries in one transaction
func (r *timesheetRepository) Create(ctx context.Context, ts *timesheet.Timesheet) error {
	if ts.ID == "" {
		ts.ID = uuid.New().String()
	}

	return WithTransaction(ctx, r.db, func(txCtx context.Context) error {
		q := GetQuerier(txCtx, r.db)

		query := `
			INSERT INTO timesheets (id, employee_id, project_id, assignment_id, period_start, period_end,
				total_hours, overtime_hours, status, notes, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`
		_, err := q.Exec(txCtx, query,
			ts.ID,
			ts.EmployeeID,
			ts.ProjectID,
			ts.AssignmentID,
			ts.PeriodStart,
			ts.PeriodEnd,
			ts.TotalHours,
			ts.OvertimeHours,
			string(ts.Status),
			ts.Notes,
			ts.CreatedBy,
			ts.CreatedAt,
			ts.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create timesheet: %w", err)
		}

		for i := range ts.Entries {
			e := &ts.Entries[i]
			if e.ID == "" {
				e.ID = uuid.New().String()
			}
			e.TimesheetID = ts.ID
			if err := r.insertEntry(txCtx, q, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *timesheetRepository) insertEntry(ctx context.Context, q database.Querier, e *timesheet.TimeEntry) error {
	startJSON, endJSON, violationsJSON, err := marshalEntryJSON(*e)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO time_entries (id, timesheet_id, employee_id, project_id, entry_date, start_time, end_time,
			hours_worked, overtime_hours, billable, start_location, end_location, is_within_geofence,
			geofence_violations, distance_from_site, device_id, is_offline, synced_at, location_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = q.Exec(ctx, query,
		e.ID,
		e.TimesheetID,
		e.EmployeeID,
		e.ProjectID,
		e.Date,
		e.StartTime,
		e.EndTime,
		e.HoursWorked,
		e.OvertimeHours,
		e.Billable,
		startJSON,
		endJSON,
		e.IsWithinGeofence,
		violationsJSON,
		e.DistanceFromSite,
		e.DeviceID,
		e.IsOffline,
		e.SyncedAt,
		e.LocationVerified,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create time entry: %w", err)
	}
	return nil
}

func marshalEntryJSON(e timesheet.TimeEntry) (start, end, violations []byte, err error) {
	if e.Start != nil {
		if start, err = json.Marshal(e.Start); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal start location: %w", err)
		}
	}
	if e.End != nil {
		if end, err = json.Marshal(e.End); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal end location: %w", err)
		}
	}
	if e.Violations != nil {
		if violations, err = json.Marshal(e.Violations); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal violations: %w", err)
		}
	}
	return start, end, violations, nil
}

const entryColumns = `id, timesheet_id, employee_id, project_id, entry_date, start_time, end_time,
	hours_worked, overtime_hours, billable, start_location, end_location, is_within_geofence,
	geofence_violations, distance_from_site, device_id, is_offline, synced_at, location_verified, created_at`

func scanEntry(row pgx.Row) (timesheet.TimeEntry, error) {
	var (
		e                                  timesheet.TimeEntry
		startJSON, endJSON, violationsJSON []byte
	)
	err := row.Scan(
		&e.ID,
		&e.TimesheetID,
		&e.EmployeeID,
		&e.ProjectID,
		&e.Date,
		&e.StartTime,
		&e.EndTime,
		&e.HoursWorked,
		&e.OvertimeHours,
		&e.Billable,
		&startJSON,
		&endJSON,
		&e.IsWithinGeofence,
		&violationsJSON,
		&e.DistanceFromSite,
		&e.DeviceID,
		&e.IsOffline,
		&e.SyncedAt,
		&e.LocationVerified,
		&e.CreatedAt,
	)
	if err != nil {
		return timesheet.TimeEntry{}, err
	}

	if len(startJSON) > 0 {
		e.Start = &timesheet.LocationFix{}
		if err := json.Unmarshal(startJSON, e.Start); err != nil {
			return timesheet.TimeEntry{}, fmt.Errorf("failed to unmarshal start location: %w", err)
		}
	}
	if len(endJSON) > 0 {
		e.End = &timesheet.LocationFix{}
		if err := json.Unmarshal(endJSON, e.End); err != nil {
			return timesheet.TimeEntry{}, fmt.Errorf("failed to unmarshal end location: %w", err)
		}
	}
	if len(violationsJSON) > 0 {
		var v []geofence.Violation
		if err := json.Unmarshal(violationsJSON, &v); err != nil {
			return timesheet.TimeEntry{}, fmt.Errorf("failed to unmarshal violations: %w", err)
		}
		e.Violations = v
	}
	return e, nil
}

func (r *timesheetRepository) GetByID(ctx context.Context, id string) (timesheet.Timesheet, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, employee_id, project_id, assignment_id, period_start, period_end,
			total_hours, overtime_hours, status, notes, created_by, created_at, updated_at
		FROM timesheets
		WHERE id = $1
	`
	var (
		ts     timesheet.Timesheet
		status string
	)
	err := q.QueryRow(ctx, query, id).Scan(
		&ts.ID,
		&ts.EmployeeID,
		&ts.ProjectID,
		&ts.AssignmentID,
		&ts.PeriodStart,
		&ts.PeriodEnd,
		&ts.TotalHours,
		&ts.OvertimeHours,
		&status,
		&ts.Notes,
		&ts.CreatedBy,
		&ts.CreatedAt,
		&ts.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return timesheet.Timesheet{}, timesheet.ErrTimesheetNotFound
		}
		return timesheet.Timesheet{}, fmt.Errorf("failed to get timesheet: %w", err)
	}
	ts.Status = timesheet.Status(status)

	rows, err := q.Query(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE timesheet_id = $1 ORDER BY entry_date`, id)
	if err != nil {
		return timesheet.Timesheet{}, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return timesheet.Timesheet{}, fmt.Errorf("failed to scan time entry: %w", err)
		}
		ts.Entries = append(ts.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return timesheet.Timesheet{}, fmt.Errorf("failed to iterate time entries: %w", err)
	}

	return ts, nil
}

func (r *timesheetRepository) UpdateStatus(ctx context.Context, id string, status timesheet.Status) error {
	q := GetQuerier(ctx, r.db)

	result, err := q.Exec(ctx, `UPDATE timesheets SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update timesheet status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return timesheet.ErrTimesheetNotFound
	}
	return nil
}

func (r *timesheetRepository) HasEntryOnDate(ctx context.Context, employeeID string, date time.Time) (bool, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT EXISTS (
			SELECT 1 FROM time_entries te
			JOIN timesheets t ON t.id = te.timesheet_id
			WHERE te.employee_id = $1 AND te.entry_date = $2 AND t.status <> $3
		)
	`
	var exists bool
	if err := q.QueryRow(ctx, query, employeeID, date, string(timesheet.StatusRejected)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existing entry: %w", err)
	}
	return exists, nil
}

// SumHours totals hours of entries in [from, to) whose timesheet is not rejected
func (r *timesheetRepository) SumHours(ctx context.Context, employeeID string, from, to time.Time) (float64, float64, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT COALESCE(SUM(te.hours_worked), 0), COALESCE(SUM(te.overtime_hours), 0)
		FROM time_entries te
		JOIN timesheets t ON t.id = te.timesheet_id
		WHERE te.employee_id = $1 AND te.entry_date >= $2 AND te.entry_date < $3 AND t.status <> $4
	`
	var worked, overtime float64
	if err := q.QueryRow(ctx, query, employeeID, from, to, string(timesheet.StatusRejected)).Scan(&worked, &overtime); err != nil {
		return 0, 0, fmt.Errorf("failed to sum hours: %w", err)
	}
	return worked, overtime, nil
}

func (r *timesheetRepository) ListUnverifiedOfflineEntries(ctx context.Context, since time.Time, limit int) ([]timesheet.TimeEntry, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + entryColumns + `
		FROM time_entries
		WHERE is_offline = true AND location_verified = false AND created_at >= $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := q.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query offline entries: %w", err)
	}
	defer rows.Close()

	entries := make([]timesheet.TimeEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate offline entries: %w", err)
	}
	return entries, nil
}

func (r *timesheetRepository) UpdateEntryCompliance(ctx context.Context, e timesheet.TimeEntry) error {
	q := GetQuerier(ctx, r.db)

	var violationsJSON []byte
	if e.Violations != nil {
		var err error
		if violationsJSON, err = json.Marshal(e.Violations); err != nil {
			return fmt.Errorf("failed to marshal violations: %w", err)
		}
	}

	query := `
		UPDATE time_entries
		SET is_within_geofence = $2, geofence_violations = $3, distance_from_site = $4, location_verified = $5
		WHERE id = $1
	`
	result, err := q.Exec(ctx, query, e.ID, e.IsWithinGeofence, violationsJSON, e.DistanceFromSite, e.LocationVerified)
	if err != nil {
		return fmt.Errorf("failed to update entry compliance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return timesheet.ErrTimesheetNotFound
	}
	return nil
}

func (r *timesheetRepository) ListViolations(ctx context.Context, projectID string, limit int) ([]timesheet.ViolationRecord, error) {
	q := GetQuerier(ctx, r.db)

	conditions := []string{"is_within_geofence = false"}
	args := []interface{}{}
	argIdx := 1

	if projectID != "" {
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", argIdx))
		args = append(args, projectID)
		argIdx++
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, timesheet_id, employee_id, project_id, entry_date, distance_from_site, geofence_violations, created_at
		FROM time_entries
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, strings.Join(conditions, " AND "), argIdx)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	records := make([]timesheet.ViolationRecord, 0)
	for rows.Next() {
		var (
			v              timesheet.ViolationRecord
			violationsJSON []byte
		)
		if err := rows.Scan(&v.EntryID, &v.TimesheetID, &v.EmployeeID, &v.ProjectID, &v.Date,
			&v.DistanceFromSite, &violationsJSON, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		v.Violations = []geofence.Violation{}
		if len(violationsJSON) > 0 {
			if err := json.Unmarshal(violationsJSON, &v.Violations); err != nil {
				return nil, fmt.Errorf("failed to unmarshal violations of entry %s: %w", v.EntryID, err)
			}
		}
		records = append(records, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate violations: %w", err)
	}
	return records, nil
}

func (r *timesheetRepository) GeofenceStatistics(ctx context.Context, filter timesheet.StatisticsFilter) (timesheet.GeofenceStatistics, error) {
	q := GetQuerier(ctx, r.db)

	var (
		conditions []string
		args       []interface{}
	)
	argIdx := 1
	if filter.ProjectID != nil {
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", argIdx))
		args = append(args, *filter.ProjectID)
		argIdx++
	}
	if filter.EmployeeID != nil {
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", argIdx))
		args = append(args, *filter.EmployeeID)
		argIdx++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("entry_date >= $%d", argIdx))
		args = append(args, *filter.From)
		argIdx++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("entry_date <= $%d", argIdx))
		args = append(args, *filter.To)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_within_geofence = true),
			COUNT(*) FILTER (WHERE is_within_geofence = false),
			COUNT(*) FILTER (WHERE is_within_geofence = false AND geofence_violations @> '[{"severity":"strict"}]'),
			COUNT(*) FILTER (WHERE is_within_geofence IS NULL),
			AVG(distance_from_site) FILTER (WHERE is_within_geofence = false)
		FROM time_entries
		` + where

	var stats timesheet.GeofenceStatistics
	err := q.QueryRow(ctx, query, args...).Scan(
		&stats.TotalEntries,
		&stats.CompliantEntries,
		&stats.ViolationEntries,
		&stats.StrictViolationEntries,
		&stats.UnverifiedEntries,
		&stats.AvgViolationDistance,
	)
	if err != nil {
		return timesheet.GeofenceStatistics{}, fmt.Errorf("failed to compute geofence statistics: %w", err)
	}
	stats.ComputeRate()
	return stats, nil
}

// Retention only touches verified entries so the offline job never loses
// the location it still has to check. Compliance flags and distances stay
// for statistics.
const (
	staleLocationsWhere  = `created_at < $1 AND location_verified = true AND (start_location IS NOT NULL OR end_location IS NOT NULL)`
	staleViolationsWhere = `created_at < $1 AND location_verified = true AND geofence_violations IS NOT NULL`
	staleGPSLogsWhere    = `updated_at < $1 AND status IN ('manager_approved', 'rejected') AND gps_logs IS NOT NULL`
)

func (r *timesheetRepository) CountGeofenceData(ctx context.Context, cutoff time.Time) (timesheet.CleanupResult, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT
			(SELECT COUNT(*) FROM time_entries WHERE ` + staleLocationsWhere + `),
			(SELECT COUNT(*) FROM time_entries WHERE ` + staleViolationsWhere + `),
			(SELECT COUNT(*) FROM timesheet_approvals WHERE ` + staleGPSLogsWhere + `)
	`
	res := timesheet.CleanupResult{DryRun: true}
	if err := q.QueryRow(ctx, query, cutoff).Scan(&res.Locations, &res.Violations, &res.GPSLogs); err != nil {
		return timesheet.CleanupResult{}, fmt.Errorf("failed to count geofence data: %w", err)
	}
	return res, nil
}

func (r *timesheetRepository) PurgeGeofenceData(ctx context.Context, cutoff time.Time) (timesheet.CleanupResult, error) {
	q := GetQuerier(ctx, r.db)

	var res timesheet.CleanupResult
	steps := []struct {
		name  string
		query string
		n     *int64
	}{
		{"locations", `UPDATE time_entries SET start_location = NULL, end_location = NULL WHERE ` + staleLocationsWhere, &res.Locations},
		{"violations", `UPDATE time_entries SET geofence_violations = NULL WHERE ` + staleViolationsWhere, &res.Violations},
		{"gps logs", `UPDATE timesheet_approvals SET gps_logs = NULL WHERE ` + staleGPSLogsWhere, &res.GPSLogs},
	}
	for _, s := range steps {
		tag, err := q.Exec(ctx, s.query, cutoff)
		if err != nil {
			return timesheet.CleanupResult{}, fmt.Errorf("failed to clear %s: %w", s.name, err)
		}
		*s.n = tag.RowsAffected()
	}
	return res, nil
}
