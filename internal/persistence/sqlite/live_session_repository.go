package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/example/live-sessions/internal/persistence"
)

// LiveSessionRepository implements persistence.LiveSessionRepository using SQLite
type LiveSessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewLiveSessionRepository creates a new SQLite live session repository
func NewLiveSessionRepository(pool *ConnectionPool) *LiveSessionRepository {
	return &LiveSessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const liveSessionColumns = `id, course_id, instructor_id, title, description, start_time, duration_minutes,
	session_type, status, timezone, meeting_id, join_url, meeting_password, max_participants,
	started_at, ended_at, created_at, updated_at`

// CreateLiveSession inserts a new session
func (r *LiveSessionRepository) CreateLiveSession(ctx context.Context, s persistence.LiveSession) error {
	if s.ID == "" {
		return persistence.ErrConstraintViolation
	}
	query := `INSERT INTO live_sessions (` + liveSessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		s.ID,
		s.CourseID,
		s.InstructorID,
		s.Title,
		s.Description,
		formatTime(s.StartTime),
		s.DurationMinutes,
		s.SessionType,
		s.Status,
		s.Timezone,
		s.MeetingID,
		s.JoinURL,
		s.MeetingPassword,
		s.MaxParticipants,
		formatNullableTime(s.StartedAt),
		formatNullableTime(s.EndedAt),
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	return err
}

// GetLiveSession retrieves a session by ID
func (r *LiveSessionRepository) GetLiveSession(ctx context.Context, id string) (persistence.LiveSession, error) {
	if id == "" {
		return persistence.LiveSession{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+liveSessionColumns+` FROM live_sessions WHERE id = ?`, id)
	return r.scanLiveSession(row)
}

// UpdateLiveSession writes the session only while its stored status equals expectedStatus.
// A missing row is ErrNotFound and a status mismatch is ErrConflict.
func (r *LiveSessionRepository) UpdateLiveSession(ctx context.Context, s persistence.LiveSession, expectedStatus string) error {
	query := `UPDATE live_sessions SET
		course_id = ?, instructor_id = ?, title = ?, description = ?, start_time = ?, duration_minutes = ?,
		session_type = ?, status = ?, timezone = ?, meeting_id = ?, join_url = ?, meeting_password = ?,
		max_participants = ?, started_at = ?, ended_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`
	result, err := r.helper.Exec(ctx, query,
		s.CourseID,
		s.InstructorID,
		s.Title,
		s.Description,
		formatTime(s.StartTime),
		s.DurationMinutes,
		s.SessionType,
		s.Status,
		s.Timezone,
		s.MeetingID,
		s.JoinURL,
		s.MeetingPassword,
		s.MaxParticipants,
		formatNullableTime(s.StartedAt),
		formatNullableTime(s.EndedAt),
		formatTime(s.UpdatedAt),
		s.ID,
		expectedStatus,
	)
	if err != nil {
		return err
	}

	if err := requireRow(result); !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	var exists int
	err = r.helper.QueryRow(ctx, `SELECT 1 FROM live_sessions WHERE id = ?`, s.ID).Scan(&exists)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return persistence.ErrConflict
}

// DeleteLiveSession removes a session. Sessions that still own recordings are refused
// with ErrHasRecordings; attendance rows cascade.
func (r *LiveSessionRepository) DeleteLiveSession(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var recordings int
		if err := r.helper.QueryRowTx(tx, `SELECT COUNT(*) FROM recordings WHERE session_id = ?`, id).Scan(&recordings); err != nil {
			return r.mapper.MapError(err)
		}
		if recordings > 0 {
			return persistence.ErrHasRecordings
		}

		result, err := r.helper.ExecTx(tx, `DELETE FROM live_sessions WHERE id = ?`, id)
		if err != nil {
			mapped := r.mapper.MapError(err)
			if errors.Is(mapped, persistence.ErrForeignKeyViolation) {
				return errors.Join(persistence.ErrHasRecordings, mapped)
			}
			return mapped
		}
		return requireRow(result)
	})
}

// ListLiveSessions returns sessions matching filter ordered by start time then ID
func (r *LiveSessionRepository) ListLiveSessions(ctx context.Context, filter persistence.LiveSessionFilter) ([]persistence.LiveSession, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.CourseID != "" {
		clauses = append(clauses, "course_id = ?")
		args = append(args, filter.CourseID)
	}
	if filter.InstructorID != "" {
		clauses = append(clauses, "instructor_id = ?")
		args = append(args, filter.InstructorID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.StartsAfter != nil {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, formatTime(*filter.StartsAfter))
	}
	if filter.StartsBefore != nil {
		clauses = append(clauses, "start_time < ?")
		args = append(args, formatTime(*filter.StartsBefore))
	}

	query := `SELECT ` + liveSessionColumns + ` FROM live_sessions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var sessions []persistence.LiveSession
	for rows.Next() {
		s, err := r.scanLiveSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return sessions, nil
}

func (r *LiveSessionRepository) scanLiveSession(row rowScanner) (persistence.LiveSession, error) {
	var s persistence.LiveSession
	var startTime, createdAt, updatedAt string
	var startedAt, endedAt sql.NullString

	err := row.Scan(
		&s.ID,
		&s.CourseID,
		&s.InstructorID,
		&s.Title,
		&s.Description,
		&startTime,
		&s.DurationMinutes,
		&s.SessionType,
		&s.Status,
		&s.Timezone,
		&s.MeetingID,
		&s.JoinURL,
		&s.MeetingPassword,
		&s.MaxParticipants,
		&startedAt,
		&endedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.LiveSession{}, r.mapper.MapError(err)
	}

	if s.StartTime, err = parseTime("start_time", startTime); err != nil {
		return persistence.LiveSession{}, err
	}
	if s.StartedAt, err = parseNullableTime("started_at", startedAt); err != nil {
		return persistence.LiveSession{}, err
	}
	if s.EndedAt, err = parseNullableTime("ended_at", endedAt); err != nil {
		return persistence.LiveSession{}, err
	}
	if s.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.LiveSession{}, err
	}
	if s.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.LiveSession{}, err
	}
	return s, nil
}
