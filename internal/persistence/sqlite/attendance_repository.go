package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/live-sessions/internal/persistence"
)

// AttendanceRepository implements persistence.AttendanceRepository using SQLite
type AttendanceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAttendanceRepository creates a new SQLite attendance repository
func NewAttendanceRepository(pool *ConnectionPool) *AttendanceRepository {
	return &AttendanceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// InsertAttendance stores the first join of a user. Later joins leave the row
// untouched and report false.
func (r *AttendanceRepository) InsertAttendance(ctx context.Context, a persistence.Attendance) (bool, error) {
	if a.SessionID == "" || a.UserID == "" {
		return false, persistence.ErrConstraintViolation
	}
	result, err := r.helper.Exec(ctx,
		`INSERT INTO attendance (session_id, user_id, joined_at, left_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, user_id) DO NOTHING`,
		a.SessionID, a.UserID, formatTime(a.JoinedAt), formatNullableTime(a.LeftAt),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// GetAttendance retrieves the attendance row of one user in one session
func (r *AttendanceRepository) GetAttendance(ctx context.Context, sessionID, userID string) (persistence.Attendance, error) {
	row := r.helper.QueryRow(ctx,
		`SELECT session_id, user_id, joined_at, left_at FROM attendance WHERE session_id = ? AND user_id = ?`,
		sessionID, userID,
	)
	return r.scanAttendance(row)
}

// UpdateAttendance records the leave time of an existing row
func (r *AttendanceRepository) UpdateAttendance(ctx context.Context, a persistence.Attendance) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE attendance SET left_at = ? WHERE session_id = ? AND user_id = ?`,
		formatNullableTime(a.LeftAt), a.SessionID, a.UserID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListAttendance returns the attendance of one session in join order
func (r *AttendanceRepository) ListAttendance(ctx context.Context, sessionID string) ([]persistence.Attendance, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT session_id, user_id, joined_at, left_at FROM attendance WHERE session_id = ? ORDER BY joined_at ASC, user_id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var records []persistence.Attendance
	for rows.Next() {
		a, err := r.scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return records, nil
}

func (r *AttendanceRepository) scanAttendance(row rowScanner) (persistence.Attendance, error) {
	var a persistence.Attendance
	var joinedAt string
	var leftAt sql.NullString

	if err := row.Scan(&a.SessionID, &a.UserID, &joinedAt, &leftAt); err != nil {
		return persistence.Attendance{}, r.mapper.MapError(err)
	}
	var err error
	if a.JoinedAt, err = parseTime("joined_at", joinedAt); err != nil {
		return persistence.Attendance{}, err
	}
	if a.LeftAt, err = parseNullableTime("left_at", leftAt); err != nil {
		return persistence.Attendance{}, err
	}
	return a, nil
}
