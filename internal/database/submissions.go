package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agendei/internal/models"
)

// Record appends a submission attempt and sets its ID.
func (db *DB) Record(ctx context.Context, s *models.Submission) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO submissions (session_id, company_id, service_id, client_id, employee_id, branch_id,
            start_time, status, error, appointment_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	result, err := db.db.ExecContext(ctx, query,
		s.SessionID,
		s.CompanyID,
		s.ServiceID,
		s.ClientID,
		s.EmployeeID,
		s.BranchID,
		s.StartTime,
		s.Status,
		nullString(s.Error),
		nullString(s.AppointmentID),
		s.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("submission id: %w", err)
	}
	s.ID = id
	return nil
}

// ListBySession returns the attempts of a session, oldest first.
func (db *DB) ListBySession(ctx context.Context, sessionID string) ([]*models.Submission, error) {
	query := `
        SELECT id, session_id, company_id, service_id, client_id, employee_id, branch_id,
            start_time, status, error, appointment_id, created_at
        FROM submissions
        WHERE session_id = ?
        ORDER BY id
    `
	rows, err := db.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []*models.Submission
	for rows.Next() {
		var (
			s             models.Submission
			errText       sql.NullString
			appointmentID sql.NullString
		)
		if err := rows.Scan(
			&s.ID, &s.SessionID, &s.CompanyID, &s.ServiceID, &s.ClientID, &s.EmployeeID, &s.BranchID,
			&s.StartTime, &s.Status, &errText, &appointmentID, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		s.Error = errText.String
		s.AppointmentID = appointmentID.String
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

// CountByStatus aggregates the journal for operators.
func (db *DB) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM submissions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
