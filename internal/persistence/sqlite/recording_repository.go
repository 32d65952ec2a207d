package sqlite

import (
	"context"

	"github.com/example/live-sessions/internal/persistence"
)

// RecordingRepository implements persistence.RecordingRepository using SQLite
type RecordingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewRecordingRepository creates a new SQLite recording repository
func NewRecordingRepository(pool *ConnectionPool) *RecordingRepository {
	return &RecordingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const recordingColumns = `id, session_id, provider_recording_id, title, file_name, content_type,
	storage_url, fallback_url, size_bytes, duration_seconds, recorded_at, view_count, visible,
	repair_status, repair_note, created_at, updated_at`

// CreateRecording inserts a recording. A repeated provider recording id for the
// same session is ErrDuplicate.
func (r *RecordingRepository) CreateRecording(ctx context.Context, rec persistence.Recording) error {
	if rec.ID == "" {
		return persistence.ErrConstraintViolation
	}
	query := `INSERT INTO recordings (` + recordingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		rec.ID,
		rec.SessionID,
		rec.ProviderRecordingID,
		rec.Title,
		rec.FileName,
		rec.ContentType,
		rec.StorageURL,
		rec.FallbackURL,
		rec.SizeBytes,
		rec.DurationSeconds,
		formatTime(rec.RecordedAt),
		rec.ViewCount,
		rec.Visible,
		rec.RepairStatus,
		rec.RepairNote,
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	return err
}

// GetRecording retrieves a recording by ID
func (r *RecordingRepository) GetRecording(ctx context.Context, id string) (persistence.Recording, error) {
	if id == "" {
		return persistence.Recording{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	return r.scanRecording(row)
}

// UpdateRecording rewrites the mutable recording fields. The view counter is left
// to IncrementViewCount.
func (r *RecordingRepository) UpdateRecording(ctx context.Context, rec persistence.Recording) error {
	query := `UPDATE recordings SET
		title = ?, file_name = ?, content_type = ?, storage_url = ?, fallback_url = ?, size_bytes = ?,
		duration_seconds = ?, recorded_at = ?, visible = ?, repair_status = ?, repair_note = ?, updated_at = ?
		WHERE id = ?`
	result, err := r.helper.Exec(ctx, query,
		rec.Title,
		rec.FileName,
		rec.ContentType,
		rec.StorageURL,
		rec.FallbackURL,
		rec.SizeBytes,
		rec.DurationSeconds,
		formatTime(rec.RecordedAt),
		rec.Visible,
		rec.RepairStatus,
		rec.RepairNote,
		formatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteRecording removes a recording by ID
func (r *RecordingRepository) DeleteRecording(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListRecordingsBySession returns the recordings of one session in recording order
func (r *RecordingRepository) ListRecordingsBySession(ctx context.Context, sessionID string) ([]persistence.Recording, error) {
	return r.list(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE session_id = ? ORDER BY recorded_at ASC, id ASC`,
		sessionID,
	)
}

// ListRecordingsByRepairStatus returns recordings in the given repair state, oldest first
func (r *RecordingRepository) ListRecordingsByRepairStatus(ctx context.Context, status string) ([]persistence.Recording, error) {
	return r.list(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE repair_status = ? ORDER BY created_at ASC, id ASC`,
		status,
	)
}

// IncrementViewCount adds one view to a recording
func (r *RecordingRepository) IncrementViewCount(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `UPDATE recordings SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *RecordingRepository) list(ctx context.Context, query string, args ...any) ([]persistence.Recording, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var recordings []persistence.Recording
	for rows.Next() {
		rec, err := r.scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return recordings, nil
}

func (r *RecordingRepository) scanRecording(row rowScanner) (persistence.Recording, error) {
	var rec persistence.Recording
	var recordedAt, createdAt, updatedAt string

	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.ProviderRecordingID,
		&rec.Title,
		&rec.FileName,
		&rec.ContentType,
		&rec.StorageURL,
		&rec.FallbackURL,
		&rec.SizeBytes,
		&rec.DurationSeconds,
		&recordedAt,
		&rec.ViewCount,
		&rec.Visible,
		&rec.RepairStatus,
		&rec.RepairNote,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Recording{}, r.mapper.MapError(err)
	}

	if rec.RecordedAt, err = parseTime("recorded_at", recordedAt); err != nil {
		return persistence.Recording{}, err
	}
	if rec.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Recording{}, err
	}
	if rec.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Recording{}, err
	}
	return rec, nil
}
