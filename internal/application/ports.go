package application

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/example/live-sessions/internal/mediarepair"
)

// ErrMeetingNotFound is returned by a MeetingProvider when the hosted meeting no longer exists.
var ErrMeetingNotFound = errors.New("application: meeting not found")

// MeetingSpec is the time window and labels sent to the meeting provider.
type MeetingSpec struct {
	Topic           string
	Agenda          string
	StartTime       time.Time
	DurationMinutes int
	Timezone        string
}

// Meeting is the provider's handle for a hosted session.
type Meeting struct {
	ID       string
	JoinURL  string
	Password string
}

// ProviderRecording is one recording file listed by the provider.
type ProviderRecording struct {
	ID            string
	FileType      string
	FileExtension string
	FileSize      int64
	DownloadURL   string
	Status        string
	Start         time.Time
	End           time.Time
}

// MeetingProvider is the external video-conferencing boundary.
type MeetingProvider interface {
	CreateMeeting(ctx context.Context, spec MeetingSpec) (Meeting, error)
	GetMeeting(ctx context.Context, meetingID string) (Meeting, error)
	UpdateMeeting(ctx context.Context, meetingID string, spec MeetingSpec) error
	DeleteMeeting(ctx context.Context, meetingID string) error
	EndMeeting(ctx context.Context, meetingID string) error
	ListRecordings(ctx context.Context, meetingID string) ([]ProviderRecording, error)
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// SessionRepository persists live sessions. UpdateSession only writes when the
// stored status still equals expected and reports a conflict otherwise.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	UpdateSession(ctx context.Context, session Session, expected SessionStatus) (Session, error)
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
}

// RecordingRepository persists recordings. CreateRecording reports a duplicate
// when the provider recording id is already stored for the session.
type RecordingRepository interface {
	CreateRecording(ctx context.Context, recording Recording) (Recording, error)
	GetRecording(ctx context.Context, id string) (Recording, error)
	UpdateRecording(ctx context.Context, recording Recording) (Recording, error)
	DeleteRecording(ctx context.Context, id string) error
	ListRecordingsBySession(ctx context.Context, sessionID string) ([]Recording, error)
	ListRecordingsByRepairStatus(ctx context.Context, status RepairStatus) ([]Recording, error)
	IncrementViewCount(ctx context.Context, id string) error
}

// AttendanceRepository persists attendance. RecordAttendance keeps the first
// row for a (session, user) pair and reports whether it inserted one.
type AttendanceRepository interface {
	RecordAttendance(ctx context.Context, attendance Attendance) (Attendance, bool, error)
	GetAttendance(ctx context.Context, sessionID, userID string) (Attendance, error)
	UpdateAttendance(ctx context.Context, attendance Attendance) (Attendance, error)
	ListAttendance(ctx context.Context, sessionID string) ([]Attendance, error)
}

// ArtifactStore keeps recording files under generated names.
type ArtifactStore interface {
	Save(ctx context.Context, ext string, r io.Reader) (name string, size int64, err error)
	Path(name string) string
	URL(name string) string
	BackupURL(name string) string
	Stat(name string) (int64, error)
	Remove(name string) error
}

// Publisher mirrors finished artifacts to external object storage.
type Publisher interface {
	Publish(ctx context.Context, localPath, name string) (string, error)
	Unpublish(ctx context.Context, name string) error
}

// ContainerRepairer detects and fixes non fast-start containers.
type ContainerRepairer interface {
	NeedsRepair(path string) (bool, error)
	Repair(ctx context.Context, path string) (mediarepair.Report, error)
}

// RepairScheduler accepts recording ids for background repair.
type RepairScheduler interface {
	Enqueue(recordingID string) bool
}

// SessionRecordings lets the session state machine guard and cascade deletes.
type SessionRecordings interface {
	CountRecordings(ctx context.Context, sessionID string) (int, error)
	PurgeRecordings(ctx context.Context, sessionID string) error
}

// SessionCompleter reconciles a session to completed before recordings are attached.
type SessionCompleter interface {
	EnsureCompleted(ctx context.Context, sessionID string) (Session, error)
}

// SessionLister enumerates sessions for reconciliation.
type SessionLister interface {
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
}

// JoinObserver is notified when a participant joins a live session.
type JoinObserver interface {
	RecordJoin(ctx context.Context, session Session, userID string) (Attendance, bool, error)
}

// TransitionMetrics counts lifecycle operations.
type TransitionMetrics interface {
	ObserveTransition(operation, result string)
}

// IngestionMetrics counts recording ingestion and repair outcomes.
type IngestionMetrics interface {
	ObserveIngestion(path, result string)
	ObserveRepair(outcome string)
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return ErrorKind(err)
}
