package persistence

import "time"

// User represents an account allowed to sign in.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	Role         string
	PasswordHash string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthSession represents a refresh session persisted for a user.
type AuthSession struct {
	ID            string
	UserID        string
	RefreshToken  string
	PreviousToken string
	RotatedAt     *time.Time
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	RevokedAt     *time.Time
}

// LiveSession represents a scheduled online session and its hosted meeting.
type LiveSession struct {
	ID              string
	CourseID        string
	InstructorID    string
	Title           string
	Description     string
	StartTime       time.Time
	DurationMinutes int
	SessionType     string
	Status          string
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

// Recording represents a stored media artifact of a session.
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
	RepairStatus        string
	RepairNote          string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Attendance represents the first join of a user to a session.
type Attendance struct {
	SessionID string
	UserID    string
	JoinedAt  time.Time
	LeftAt    *time.Time
}
