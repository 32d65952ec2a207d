package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/live-sessions/internal/application"
	"github.com/example/live-sessions/internal/persistence"
)

var (
	userCounter      uint64
	sessionCounter   uint64
	recordingCounter uint64
)

var referenceTime = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic user record that can be materialised
// for application or persistence tests.
type UserFixture struct {
	ID           string
	Email        string
	DisplayName  string
	Role         application.Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic student fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(-time.Duration(idx) * time.Hour)
	fixture := UserFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@example.com", id),
		DisplayName:  fmt.Sprintf("User %03d", idx),
		Role:         application.RoleStudent,
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserRole overrides the generated role.
func WithUserRole(role application.Role) UserOption {
	return func(f *UserFixture) {
		f.Role = role
	}
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) {
		f.PasswordHash = hash
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:          f.ID,
		Email:       f.Email,
		DisplayName: f.DisplayName,
		Role:        f.Role,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Credentials returns the fixture as application.UserCredentials.
func (f UserFixture) Credentials() application.UserCredentials {
	return application.UserCredentials{User: f.Application(), PasswordHash: f.PasswordHash}
}

// Principal returns an application.Principal derived from the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, Role: f.Role}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		Role:         string(f.Role),
		PasswordHash: f.PasswordHash,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// --------------------------- Session fixtures ----------------------------

// SessionFixture represents a deterministic live session.
type SessionFixture struct {
	ID              string
	CourseID        string
	InstructorID    string
	Title           string
	StartTime       time.Time
	DurationMinutes int
	Type            application.SessionType
	Status          application.SessionStatus
	Timezone        string
	MeetingID       string
	JoinURL         string
	CreatedAt       time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a scheduled 60 minute session starting at ReferenceTime.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	id := fmt.Sprintf("session-%03d", idx)
	fixture := SessionFixture{
		ID:              id,
		CourseID:        "course-001",
		InstructorID:    "instructor-001",
		Title:           fmt.Sprintf("Session %03d", idx),
		StartTime:       referenceTime,
		DurationMinutes: 60,
		Type:            application.SessionTypeLiveClass,
		Status:          application.SessionScheduled,
		Timezone:        "UTC",
		MeetingID:       fmt.Sprintf("meeting-%03d", idx),
		JoinURL:         fmt.Sprintf("https://meet.example.com/j/%03d", idx),
		CreatedAt:       referenceTime.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithInstructor overrides the owning instructor.
func WithInstructor(id string) SessionOption {
	return func(f *SessionFixture) {
		f.InstructorID = id
	}
}

// WithSchedule overrides the start time and duration.
func WithSchedule(start time.Time, minutes int) SessionOption {
	return func(f *SessionFixture) {
		f.StartTime = start
		f.DurationMinutes = minutes
	}
}

// WithStatus overrides the persisted status.
func WithStatus(status application.SessionStatus) SessionOption {
	return func(f *SessionFixture) {
		f.Status = status
	}
}

// WithoutMeeting clears the provider meeting handle.
func WithoutMeeting() SessionOption {
	return func(f *SessionFixture) {
		f.MeetingID = ""
		f.JoinURL = ""
	}
}

// Application returns the fixture as an application.Session value.
func (f SessionFixture) Application() application.Session {
	return application.Session{
		ID:              f.ID,
		CourseID:        f.CourseID,
		InstructorID:    f.InstructorID,
		Title:           f.Title,
		StartTime:       f.StartTime,
		DurationMinutes: f.DurationMinutes,
		Type:            f.Type,
		Status:          f.Status,
		Timezone:        f.Timezone,
		MeetingID:       f.MeetingID,
		JoinURL:         f.JoinURL,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// View returns the fixture paired with its display status at now.
func (f SessionFixture) View(now time.Time) application.SessionView {
	s := f.Application()
	return application.SessionView{Session: s, DisplayStatus: application.ComputeStatus(s, now)}
}

// Persistence returns the fixture as a persistence.LiveSession value.
func (f SessionFixture) Persistence() persistence.LiveSession {
	return persistence.LiveSession{
		ID:              f.ID,
		CourseID:        f.CourseID,
		InstructorID:    f.InstructorID,
		Title:           f.Title,
		StartTime:       f.StartTime,
		DurationMinutes: f.DurationMinutes,
		SessionType:     string(f.Type),
		Status:          string(f.Status),
		Timezone:        f.Timezone,
		MeetingID:       f.MeetingID,
		JoinURL:         f.JoinURL,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// -------------------------- Recording fixtures ---------------------------

// RecordingFixture represents a deterministic recording of a session.
type RecordingFixture struct {
	ID                  string
	SessionID           string
	ProviderRecordingID string
	Title               string
	FileName            string
	DurationSeconds     int
	Visible             bool
	RepairStatus        application.RepairStatus
	RecordedAt          time.Time
}

// RecordingOption configures the generated recording fixture.
type RecordingOption func(*RecordingFixture)

// NewRecordingFixture returns a visible, already fast-start recording of sessionID.
func NewRecordingFixture(sessionID string, opts ...RecordingOption) RecordingFixture {
	idx := atomic.AddUint64(&recordingCounter, 1)
	fixture := RecordingFixture{
		ID:                  fmt.Sprintf("recording-%03d", idx),
		SessionID:           sessionID,
		ProviderRecordingID: fmt.Sprintf("provider-%03d", idx),
		Title:               fmt.Sprintf("Recording %03d", idx),
		FileName:            fmt.Sprintf("recording-%03d.mp4", idx),
		DurationSeconds:     3600,
		Visible:             true,
		RepairStatus:        application.RepairNotNeeded,
		RecordedAt:          referenceTime.Add(time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithProviderRecordingID overrides the provider id; empty marks an upload.
func WithProviderRecordingID(id string) RecordingOption {
	return func(f *RecordingFixture) {
		f.ProviderRecordingID = id
	}
}

// WithRepairStatus overrides the repair status.
func WithRepairStatus(status application.RepairStatus) RecordingOption {
	return func(f *RecordingFixture) {
		f.RepairStatus = status
	}
}

// Hidden marks the recording invisible to participants.
func Hidden() RecordingOption {
	return func(f *RecordingFixture) {
		f.Visible = false
	}
}

// Application returns the fixture as an application.Recording value.
func (f RecordingFixture) Application() application.Recording {
	return application.Recording{
		ID:                  f.ID,
		SessionID:           f.SessionID,
		ProviderRecordingID: f.ProviderRecordingID,
		Title:               f.Title,
		FileName:            f.FileName,
		ContentType:         "video/mp4",
		StorageURL:          "/media/" + f.FileName,
		SizeBytes:           1 << 20,
		DurationSeconds:     f.DurationSeconds,
		RecordedAt:          f.RecordedAt,
		Visible:             f.Visible,
		RepairStatus:        f.RepairStatus,
		CreatedAt:           f.RecordedAt,
		UpdatedAt:           f.RecordedAt,
	}
}

// Persistence returns the fixture as a persistence.Recording value.
func (f RecordingFixture) Persistence() persistence.Recording {
	rec := f.Application()
	return persistence.Recording{
		ID:                  rec.ID,
		SessionID:           rec.SessionID,
		ProviderRecordingID: rec.ProviderRecordingID,
		Title:               rec.Title,
		FileName:            rec.FileName,
		ContentType:         rec.ContentType,
		StorageURL:          rec.StorageURL,
		SizeBytes:           rec.SizeBytes,
		DurationSeconds:     rec.DurationSeconds,
		RecordedAt:          rec.RecordedAt,
		Visible:             rec.Visible,
		RepairStatus:        string(rec.RepairStatus),
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}
}
