package application

import (
	"io"
	"time"
)

// Role identifies what an authenticated user may do.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
	RoleAdmin      Role = "admin"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleInstructor, RoleStudent, RoleAdmin:
		return true
	}
	return false
}

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanTeach reports whether the principal may schedule sessions.
func (p Principal) CanTeach() bool {
	return p.Role == RoleInstructor || p.Role == RoleAdmin
}

// SystemPrincipal is used by background reconciliation.
var SystemPrincipal = Principal{UserID: "system", Role: RoleAdmin}

// SessionType classifies a live session.
type SessionType string

const (
	SessionTypeLiveClass   SessionType = "live-class"
	SessionTypeOfficeHours SessionType = "office-hours"
	SessionTypeReview      SessionType = "review"
	SessionTypeQuiz        SessionType = "quiz"
	SessionTypeAssignment  SessionType = "assignment"
	SessionTypeDiscussion  SessionType = "discussion"
	SessionTypeResidency   SessionType = "residency"
)

// Valid reports whether the session type is known.
func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeLiveClass, SessionTypeOfficeHours, SessionTypeReview, SessionTypeQuiz,
		SessionTypeAssignment, SessionTypeDiscussion, SessionTypeResidency:
		return true
	}
	return false
}

// SessionStatus is the persisted lifecycle state.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionLive      SessionStatus = "live"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Valid reports whether the status is known.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionLive, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// DisplayStatus is the status computed on read from the persisted state and the clock.
type DisplayStatus string

const (
	DisplayUpcoming  DisplayStatus = "upcoming"
	DisplayLive      DisplayStatus = "live"
	DisplayEnded     DisplayStatus = "ended"
	DisplayCancelled DisplayStatus = "cancelled"
)

// Session is one scheduled, time-bounded meeting occurrence.
type Session struct {
	ID              string
	CourseID        string
	InstructorID    string
	Title           string
	Description     string
	StartTime       time.Time
	DurationMinutes int
	Type            SessionType
	Status          SessionStatus
	Timezone        string
	MeetingID       string
	JoinURL         string
	MeetingPassword string
	MaxParticipants int
	StartedAt       *time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SessionView pairs a session with its computed display status.
type SessionView struct {
	Session
	DisplayStatus DisplayStatus
}

// SessionInput captures caller provided session fields.
type SessionInput struct {
	CourseID        string
	InstructorID    string
	Title           string
	Description     string
	StartTime       time.Time
	DurationMinutes int
	Type            SessionType
	Timezone        string
	MaxParticipants int
}

// CreateSessionParams wraps the data required to schedule a session.
type CreateSessionParams struct {
	Principal Principal
	Input     SessionInput
}

// UpdateSessionParams wraps the data required to reschedule a session.
type UpdateSessionParams struct {
	Principal Principal
	SessionID string
	Input     SessionInput
}

// DeleteSessionParams wraps the data required to delete a session.
type DeleteSessionParams struct {
	Principal Principal
	SessionID string
	Cascade   bool
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	CourseID     string
	InstructorID string
	Statuses     []SessionStatus
	StartsAfter  *time.Time
	StartsBefore *time.Time
}

// ListSessionsParams wraps the data required to list sessions.
type ListSessionsParams struct {
	Principal Principal
	Filter    SessionFilter
}

// JoinResult is returned to a participant joining a live session.
type JoinResult struct {
	SessionID          string
	JoinURL            string
	Password           string
	AttendanceRecorded bool
}

// RepairStatus tracks the container repair state of a recording.
type RepairStatus string

const (
	RepairPending    RepairStatus = "pending"
	RepairNotNeeded  RepairStatus = "not_needed"
	RepairRepaired   RepairStatus = "repaired"
	RepairAcceptable RepairStatus = "acceptable"
	RepairFailed     RepairStatus = "failed"
	RepairSkipped    RepairStatus = "skipped"
)

// Recording is one media artifact tied to a completed session.
type Recording struct {
	ID                  string
	SessionID           string
	ProviderRecordingID string
	Title               string
	FileName            string
	ContentType         string
	StorageURL          string
	FallbackURL         string
	SizeBytes           int64
	DurationSeconds     int
	RecordedAt          time.Time
	ViewCount           int
	Visible             bool
	RepairStatus        RepairStatus
	RepairNote          string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UploadRecordingParams wraps a push-path upload.
type UploadRecordingParams struct {
	Principal       Principal
	SessionID       string
	Title           string
	FileName        string
	ContentType     string
	DurationSeconds int
	RecordedAt      time.Time
	Body            io.Reader
}

// UpdateRecordingParams wraps a recording metadata edit.
type UpdateRecordingParams struct {
	Principal   Principal
	RecordingID string
	Title       *string
	Visible     *bool
}

// SyncResult summarises one pull-path reconciliation for a session.
type SyncResult struct {
	SessionID string
	Inserted  []Recording
	Skipped   int
	Failed    int
}

// Attendance is the single join record of a user in a session.
type Attendance struct {
	SessionID string
	UserID    string
	JoinedAt  time.Time
	LeftAt    *time.Time
}

// MarkAttendanceParams wraps an explicit attendance mark.
type MarkAttendanceParams struct {
	Principal Principal
	SessionID string
	UserID    string
}

// UserInput captures caller provided user attributes.
type UserInput struct {
	Email       string
	DisplayName string
	Role        Role
	Password    string
}

// User represents an account exposed by the application services.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateUserParams wraps the data required to create a user.
type CreateUserParams struct {
	Principal Principal
	Input     UserInput
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
	Disabled     bool
}

// AuthSession is the server-side record behind a refresh token.
type AuthSession struct {
	ID           string
	UserID       string
	RefreshToken string

	// PreviousToken stays redeemable for a short window after rotation.
	PreviousToken string
	RotatedAt     *time.Time

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// LoginParams captures the data required to authenticate a user.
type LoginParams struct {
	Email    string
	Password string
}

// TokenPair is issued on login and on every refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Principal        Principal
}
