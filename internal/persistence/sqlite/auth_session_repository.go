package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/live-sessions/internal/persistence"
)

// AuthSessionRepository implements persistence.AuthSessionRepository using SQLite
type AuthSessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAuthSessionRepository creates a new SQLite refresh session repository
func NewAuthSessionRepository(pool *ConnectionPool) *AuthSessionRepository {
	return &AuthSessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const authSessionColumns = `id, user_id, refresh_token, previous_token, rotated_at, expires_at, created_at, updated_at, revoked_at`

// CreateAuthSession inserts a new refresh session
func (r *AuthSessionRepository) CreateAuthSession(ctx context.Context, session persistence.AuthSession) error {
	session.RefreshToken = strings.TrimSpace(session.RefreshToken)
	if session.ID == "" || session.RefreshToken == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO auth_sessions (` + authSessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.RefreshToken,
		nullableString(session.PreviousToken),
		formatNullableTime(session.RotatedAt),
		formatTime(session.ExpiresAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
		formatNullableTime(session.RevokedAt),
	)
	return err
}

// GetAuthSession retrieves a refresh session by ID
func (r *AuthSessionRepository) GetAuthSession(ctx context.Context, id string) (persistence.AuthSession, error) {
	if id == "" {
		return persistence.AuthSession{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+authSessionColumns+` FROM auth_sessions WHERE id = ?`, id)
	return r.scanAuthSession(row)
}

// GetAuthSessionByToken matches the current token first and the previous token second.
func (r *AuthSessionRepository) GetAuthSessionByToken(ctx context.Context, token string) (persistence.AuthSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.AuthSession{}, persistence.ErrNotFound
	}
	query := `SELECT ` + authSessionColumns + ` FROM auth_sessions
		WHERE refresh_token = ? OR previous_token = ?
		ORDER BY CASE WHEN refresh_token = ? THEN 0 ELSE 1 END
		LIMIT 1`
	row := r.helper.QueryRow(ctx, query, token, token, token)
	return r.scanAuthSession(row)
}

// UpdateAuthSession rewrites the tokens and timestamps of a refresh session
func (r *AuthSessionRepository) UpdateAuthSession(ctx context.Context, session persistence.AuthSession) error {
	if session.ID == "" || strings.TrimSpace(session.RefreshToken) == "" {
		return persistence.ErrConstraintViolation
	}
	query := `UPDATE auth_sessions
		SET refresh_token = ?, previous_token = ?, rotated_at = ?, expires_at = ?, updated_at = ?, revoked_at = ?
		WHERE id = ?`
	result, err := r.helper.Exec(ctx, query,
		strings.TrimSpace(session.RefreshToken),
		nullableString(session.PreviousToken),
		formatNullableTime(session.RotatedAt),
		formatTime(session.ExpiresAt),
		formatTime(session.UpdatedAt),
		formatNullableTime(session.RevokedAt),
		session.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// RevokeAuthSession marks a refresh session revoked. Revoking twice keeps the first timestamp.
func (r *AuthSessionRepository) RevokeAuthSession(ctx context.Context, id string, revokedAt time.Time) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE auth_sessions SET revoked_at = COALESCE(revoked_at, ?), updated_at = ? WHERE id = ?`,
		formatTime(revokedAt), formatTime(revokedAt), id,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteExpiredAuthSessions removes sessions that expired at or before reference
func (r *AuthSessionRepository) DeleteExpiredAuthSessions(ctx context.Context, reference time.Time) error {
	_, err := r.helper.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at <= ?`, formatTime(reference))
	return err
}

func (r *AuthSessionRepository) scanAuthSession(row rowScanner) (persistence.AuthSession, error) {
	var session persistence.AuthSession
	var previous, rotatedAt, revokedAt sql.NullString
	var expiresAt, createdAt, updatedAt string

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.RefreshToken,
		&previous,
		&rotatedAt,
		&expiresAt,
		&createdAt,
		&updatedAt,
		&revokedAt,
	)
	if err != nil {
		return persistence.AuthSession{}, r.mapper.MapError(err)
	}

	session.PreviousToken = previous.String
	if session.RotatedAt, err = parseNullableTime("rotated_at", rotatedAt); err != nil {
		return persistence.AuthSession{}, err
	}
	if session.RevokedAt, err = parseNullableTime("revoked_at", revokedAt); err != nil {
		return persistence.AuthSession{}, err
	}
	if session.ExpiresAt, err = parseTime("expires_at", expiresAt); err != nil {
		return persistence.AuthSession{}, err
	}
	if session.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.AuthSession{}, err
	}
	if session.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.AuthSession{}, err
	}
	return session, nil
}

func nullableString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}
