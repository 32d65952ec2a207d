package persistence

import (
	"context"
	"time"
)

// UserRepository stores accounts and their password hashes.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetUserDisabled(ctx context.Context, id string, disabled bool, at time.Time) error
}

// AuthSessionRepository stores refresh sessions.
// GetAuthSessionByToken matches the current or the previous refresh token.
type AuthSessionRepository interface {
	CreateAuthSession(ctx context.Context, session AuthSession) error
	GetAuthSession(ctx context.Context, id string) (AuthSession, error)
	GetAuthSessionByToken(ctx context.Context, token string) (AuthSession, error)
	UpdateAuthSession(ctx context.Context, session AuthSession) error
	RevokeAuthSession(ctx context.Context, id string, revokedAt time.Time) error
	DeleteExpiredAuthSessions(ctx context.Context, reference time.Time) error
}

// LiveSessionFilter narrows session queries. StartsAfter is inclusive and
// StartsBefore is exclusive.
type LiveSessionFilter struct {
	CourseID     string
	InstructorID string
	Statuses     []string
	StartsAfter  *time.Time
	StartsBefore *time.Time
}

// LiveSessionRepository stores sessions. UpdateLiveSession only succeeds while the
// stored status equals expectedStatus and returns ErrConflict otherwise.
type LiveSessionRepository interface {
	CreateLiveSession(ctx context.Context, session LiveSession) error
	GetLiveSession(ctx context.Context, id string) (LiveSession, error)
	UpdateLiveSession(ctx context.Context, session LiveSession, expectedStatus string) error
	DeleteLiveSession(ctx context.Context, id string) error
	ListLiveSessions(ctx context.Context, filter LiveSessionFilter) ([]LiveSession, error)
}

// RecordingRepository stores recordings. A provider recording id is unique per session.
type RecordingRepository interface {
	CreateRecording(ctx context.Context, recording Recording) error
	GetRecording(ctx context.Context, id string) (Recording, error)
	UpdateRecording(ctx context.Context, recording Recording) error
	DeleteRecording(ctx context.Context, id string) error
	ListRecordingsBySession(ctx context.Context, sessionID string) ([]Recording, error)
	ListRecordingsByRepairStatus(ctx context.Context, status string) ([]Recording, error)
	IncrementViewCount(ctx context.Context, id string) error
}

// AttendanceRepository stores join records. InsertAttendance keeps the first row
// for a session and user and reports whether a row was created.
type AttendanceRepository interface {
	InsertAttendance(ctx context.Context, attendance Attendance) (bool, error)
	GetAttendance(ctx context.Context, sessionID, userID string) (Attendance, error)
	UpdateAttendance(ctx context.Context, attendance Attendance) error
	ListAttendance(ctx context.Context, sessionID string) ([]Attendance, error)
}
