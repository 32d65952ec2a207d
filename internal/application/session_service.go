package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/live-sessions/internal/persistence"
	"github.com/example/live-sessions/internal/scheduler"
)

const (
	// DefaultGraceWindow is how early before its scheduled start a session may be started.
	DefaultGraceWindow = 15 * time.Minute

	maxSessionMinutes = 24 * 60
	maxTitleLength    = 200
)

// SessionOptions carries the optional collaborators of SessionService.
type SessionOptions struct {
	GraceWindow     time.Duration
	DefaultTimezone string
	Recordings      SessionRecordings
	Attendance      JoinObserver
	Metrics         TransitionMetrics
	Logger          *slog.Logger
}

// SessionService owns the lifecycle of live sessions.
type SessionService struct {
	sessions    SessionRepository
	meetings    MeetingProvider
	recordings  SessionRecordings
	attendance  JoinObserver
	metrics     TransitionMetrics
	idGenerator func() string
	now         func() time.Time
	grace       time.Duration
	timezone    string
	locks       *keyedMutex
	logger      *slog.Logger
}

// NewSessionService wires the session state machine with default options.
func NewSessionService(sessions SessionRepository, meetings MeetingProvider, idGenerator func() string, now func() time.Time) *SessionService {
	return NewSessionServiceWithOptions(sessions, meetings, idGenerator, now, SessionOptions{})
}

// NewSessionServiceWithOptions wires the session state machine.
func NewSessionServiceWithOptions(sessions SessionRepository, meetings MeetingProvider, idGenerator func() string, now func() time.Time, opts SessionOptions) *SessionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	grace := opts.GraceWindow
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	tz := strings.TrimSpace(opts.DefaultTimezone)
	if tz == "" {
		tz = "UTC"
	}
	return &SessionService{
		sessions:    sessions,
		meetings:    meetings,
		recordings:  opts.Recordings,
		attendance:  opts.Attendance,
		metrics:     opts.Metrics,
		idGenerator: idGenerator,
		now:         now,
		grace:       grace,
		timezone:    tz,
		locks:       newKeyedMutex(),
		logger:      defaultLogger(opts.Logger),
	}
}

// UseRecordings attaches the recording collaborator used for delete guards.
func (s *SessionService) UseRecordings(recordings SessionRecordings) {
	if s != nil {
		s.recordings = recordings
	}
}

// UseAttendance attaches the join observer.
func (s *SessionService) UseAttendance(attendance JoinObserver) {
	if s != nil {
		s.attendance = attendance
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

func (s *SessionService) ready() error {
	if s == nil {
		return fmt.Errorf("SessionService is nil")
	}
	if s.sessions == nil {
		return fmt.Errorf("session repository not configured")
	}
	if s.meetings == nil {
		return fmt.Errorf("meeting provider not configured")
	}
	return nil
}

func (s *SessionService) observe(operation string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(operation, resultLabel(err))
	}
}

// CreateSession validates the schedule, creates the provider meeting and persists a scheduled session.
func (s *SessionService) CreateSession(ctx context.Context, params CreateSessionParams) (view SessionView, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CreateSession", "principal_id", params.Principal.UserID)
	defer func() {
		s.observe("create", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("session_id", view.ID, "meeting_id", view.MeetingID).InfoContext(ctx, "session created")
	}()

	if !params.Principal.CanTeach() {
		err = ErrForbidden
		return
	}

	input := s.normalizeInput(params.Input)
	if input.InstructorID == "" || !params.Principal.IsAdmin() {
		input.InstructorID = params.Principal.UserID
	}

	now := s.now()
	if vErr := validateSessionInput(input, now); vErr.HasErrors() {
		err = vErr
		return
	}
	if err = s.checkOverlap(ctx, "", input); err != nil {
		return
	}

	var meeting Meeting
	meeting, err = s.meetings.CreateMeeting(ctx, meetingSpecFor(input))
	if err != nil {
		err = &ProviderError{Operation: "create meeting", Err: err}
		return
	}

	session := Session{
		ID:              s.idGenerator(),
		CourseID:        input.CourseID,
		InstructorID:    input.InstructorID,
		Title:           input.Title,
		Description:     input.Description,
		StartTime:       input.StartTime,
		DurationMinutes: input.DurationMinutes,
		Type:            input.Type,
		Status:          SessionScheduled,
		Timezone:        input.Timezone,
		MeetingID:       meeting.ID,
		JoinURL:         meeting.JoinURL,
		MeetingPassword: meeting.Password,
		MaxParticipants: input.MaxParticipants,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var persisted Session
	persisted, err = s.sessions.CreateSession(ctx, session)
	if err != nil {
		err = mapRepoError(err)
		if delErr := s.meetings.DeleteMeeting(ctx, meeting.ID); delErr != nil {
			logger.WarnContext(ctx, "failed to release provider meeting", "meeting_id", meeting.ID, "error", delErr)
		}
		return
	}

	view = viewOf(persisted, now)
	return
}

// GetSession returns a single session with its computed status.
func (s *SessionService) GetSession(ctx context.Context, principal Principal, sessionID string) (SessionView, error) {
	if err := s.ready(); err != nil {
		return SessionView{}, err
	}
	if principal.UserID == "" {
		return SessionView{}, ErrUnauthenticated
	}
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return viewOf(session, s.now()), nil
}

// ListSessions returns sessions matching the filter ordered by start time.
func (s *SessionService) ListSessions(ctx context.Context, params ListSessionsParams) ([]SessionView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if params.Principal.UserID == "" {
		return nil, ErrUnauthenticated
	}

	filter := params.Filter
	filter.CourseID = strings.TrimSpace(filter.CourseID)
	filter.InstructorID = strings.TrimSpace(filter.InstructorID)
	vErr := &ValidationError{}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			vErr.add("status", fmt.Sprintf("unknown status %q", st))
		}
	}
	if filter.StartsAfter != nil && filter.StartsBefore != nil && filter.StartsBefore.Before(*filter.StartsAfter) {
		vErr.add("to", "to must not precede from")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	sessions, err := s.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}

	now := s.now()
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, viewOf(session, now))
	}
	return views, nil
}

// UpdateSession reschedules a session that has not started yet.
func (s *SessionService) UpdateSession(ctx context.Context, params UpdateSessionParams) (view SessionView, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateSession", "principal_id", params.Principal.UserID, "session_id", params.SessionID)
	defer func() {
		s.observe("update", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to update session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session updated")
	}()

	unlock := s.locks.Lock(params.SessionID)
	defer unlock()

	var session Session
	session, err = s.load(ctx, params.SessionID)
	if err != nil {
		return
	}
	if !canManage(params.Principal, session) {
		err = ErrForbidden
		return
	}
	if session.Status != SessionScheduled {
		err = invalidTransition(session, "update", "only scheduled sessions can be rescheduled")
		return
	}

	input := s.normalizeInput(params.Input)
	if input.InstructorID == "" || !params.Principal.IsAdmin() {
		input.InstructorID = session.InstructorID
	}

	now := s.now()
	if vErr := validateSessionInput(input, now); vErr.HasErrors() {
		err = vErr
		return
	}
	if err = s.checkOverlap(ctx, session.ID, input); err != nil {
		return
	}

	if session.MeetingID != "" {
		if err = s.meetings.UpdateMeeting(ctx, session.MeetingID, meetingSpecFor(input)); err != nil {
			err = &ProviderError{SessionID: session.ID, Operation: "update meeting", Err: err}
			return
		}
	}

	updated := session
	updated.CourseID = input.CourseID
	updated.InstructorID = input.InstructorID
	updated.Title = input.Title
	updated.Description = input.Description
	updated.StartTime = input.StartTime
	updated.DurationMinutes = input.DurationMinutes
	updated.Type = input.Type
	updated.Timezone = input.Timezone
	updated.MaxParticipants = input.MaxParticipants
	updated.UpdatedAt = now

	var persisted Session
	persisted, err = s.write(ctx, updated, session, "update")
	if err != nil {
		return
	}
	view = viewOf(persisted, now)
	return
}

// StartSession moves a scheduled session to live and returns its join URL.
// Starting a live session returns the already assigned URL without contacting the provider.
func (s *SessionService) StartSession(ctx context.Context, principal Principal, sessionID string) (view SessionView, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "StartSession", "principal_id", principal.UserID, "session_id", sessionID)
	defer func() {
		s.observe("start", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to start session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session live")
	}()

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var session Session
	session, err = s.load(ctx, sessionID)
	if err != nil {
		return
	}
	if !canManage(principal, session) {
		err = ErrForbidden
		return
	}

	now := s.now()
	switch session.Status {
	case SessionLive:
		if Overdue(session, now) {
			err = invalidTransition(session, "start", "session has passed its scheduled end")
			return
		}
		view = viewOf(session, now)
		return
	case SessionScheduled:
	default:
		err = invalidTransition(session, "start", "")
		return
	}

	if opens := session.StartTime.Add(-s.grace); now.Before(opens) {
		err = invalidTransition(session, "start", fmt.Sprintf("start opens at %s", opens.UTC().Format(time.RFC3339)))
		return
	}
	if !now.Before(session.EndTime()) {
		err = invalidTransition(session, "start", "session has passed its scheduled end")
		return
	}

	var meeting Meeting
	meeting, err = s.confirmMeeting(ctx, session)
	if err != nil {
		err = &ProviderError{SessionID: session.ID, Operation: "start", Err: err}
		return
	}

	started := session
	started.Status = SessionLive
	started.MeetingID = meeting.ID
	started.JoinURL = meeting.JoinURL
	if meeting.Password != "" {
		started.MeetingPassword = meeting.Password
	}
	started.StartedAt = &now
	started.UpdatedAt = now

	var persisted Session
	persisted, err = s.write(ctx, started, session, "start")
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			if current, getErr := s.load(ctx, sessionID); getErr == nil && current.Status == SessionLive {
				view = viewOf(current, now)
				err = nil
			}
		}
		return
	}
	view = viewOf(persisted, now)
	return
}

// EndSession completes a live session and ends the hosted meeting.
func (s *SessionService) EndSession(ctx context.Context, principal Principal, sessionID string) (view SessionView, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "EndSession", "principal_id", principal.UserID, "session_id", sessionID)
	defer func() {
		s.observe("end", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to end session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session completed")
	}()

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var session Session
	session, err = s.load(ctx, sessionID)
	if err != nil {
		return
	}
	if !canManage(principal, session) {
		err = ErrForbidden
		return
	}

	now := s.now()
	switch session.Status {
	case SessionCompleted:
		view = viewOf(session, now)
		return
	case SessionLive:
	default:
		err = invalidTransition(session, "end", "only live sessions can be ended")
		return
	}

	if session.MeetingID != "" {
		if err = s.meetings.EndMeeting(ctx, session.MeetingID); err != nil {
			err = &ProviderError{SessionID: session.ID, Operation: "end", Err: err}
			return
		}
	}

	ended := session
	ended.Status = SessionCompleted
	ended.EndedAt = &now
	ended.UpdatedAt = now

	var persisted Session
	persisted, err = s.write(ctx, ended, session, "end")
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			if current, getErr := s.load(ctx, sessionID); getErr == nil && current.Status == SessionCompleted {
				view = viewOf(current, now)
				err = nil
			}
		}
		return
	}
	view = viewOf(persisted, now)
	return
}

// CancelSession cancels a scheduled or live session and releases its provider meeting.
func (s *SessionService) CancelSession(ctx context.Context, principal Principal, sessionID string) (view SessionView, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CancelSession", "principal_id", principal.UserID, "session_id", sessionID)
	defer func() {
		s.observe("cancel", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session cancelled")
	}()

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var session Session
	session, err = s.load(ctx, sessionID)
	if err != nil {
		return
	}
	if !canManage(principal, session) {
		err = ErrForbidden
		return
	}

	now := s.now()
	switch session.Status {
	case SessionCancelled:
		view = viewOf(session, now)
		return
	case SessionScheduled, SessionLive:
	default:
		err = invalidTransition(session, "cancel", "completed sessions cannot be cancelled")
		return
	}

	if session.MeetingID != "" {
		if err = s.meetings.DeleteMeeting(ctx, session.MeetingID); err != nil {
			err = &ProviderError{SessionID: session.ID, Operation: "cancel", Err: err}
			return
		}
	}

	cancelled := session
	cancelled.Status = SessionCancelled
	cancelled.UpdatedAt = now

	var persisted Session
	persisted, err = s.write(ctx, cancelled, session, "cancel")
	if err != nil {
		return
	}
	view = viewOf(persisted, now)
	return
}

// DeleteSession removes a session. Sessions owning recordings are only removed with Cascade.
func (s *SessionService) DeleteSession(ctx context.Context, params DeleteSessionParams) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "DeleteSession", "principal_id", params.Principal.UserID, "session_id", params.SessionID, "cascade", params.Cascade)
	defer func() {
		s.observe("delete", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session deleted")
	}()

	unlock := s.locks.Lock(params.SessionID)
	defer unlock()

	var session Session
	session, err = s.load(ctx, params.SessionID)
	if err != nil {
		return
	}
	if !canManage(params.Principal, session) {
		err = ErrForbidden
		return
	}

	recordings := 0
	if s.recordings != nil {
		recordings, err = s.recordings.CountRecordings(ctx, session.ID)
		if err != nil {
			return
		}
	}
	if recordings > 0 && !params.Cascade {
		err = fmt.Errorf("session %s owns %d recordings: %w", session.ID, recordings, ErrHasRecordings)
		return
	}

	if session.MeetingID != "" && (session.Status == SessionScheduled || session.Status == SessionLive) {
		if err = s.meetings.DeleteMeeting(ctx, session.MeetingID); err != nil {
			err = &ProviderError{SessionID: session.ID, Operation: "delete", Err: err}
			return
		}
	}

	if recordings > 0 {
		if err = s.recordings.PurgeRecordings(ctx, session.ID); err != nil {
			return
		}
	}

	if err = s.sessions.DeleteSession(ctx, session.ID); err != nil {
		err = mapRepoError(err)
	}
	return
}

// JoinSession returns the join URL of a live session. State is never mutated.
func (s *SessionService) JoinSession(ctx context.Context, principal Principal, sessionID string) (result JoinResult, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	logger := s.loggerWith(ctx, "JoinSession", "principal_id", principal.UserID, "session_id", sessionID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to join session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("attendance_recorded", result.AttendanceRecorded).InfoContext(ctx, "session joined")
	}()

	var session Session
	session, err = s.load(ctx, sessionID)
	if err != nil {
		return
	}
	if session.Status != SessionLive || Overdue(session, s.now()) {
		err = invalidTransition(session, "join", "session is not live")
		return
	}

	result = JoinResult{SessionID: session.ID, JoinURL: session.JoinURL, Password: session.MeetingPassword}
	if s.attendance != nil {
		if _, _, attErr := s.attendance.RecordJoin(ctx, session, principal.UserID); attErr != nil {
			logger.ErrorContext(ctx, "failed to record attendance", "error", attErr, "error_kind", ErrorKind(attErr))
		} else {
			result.AttendanceRecorded = true
		}
	}
	return
}

// EnsureCompleted returns a completed session, persisting the inferred completion of an overdue one.
func (s *SessionService) EnsureCompleted(ctx context.Context, sessionID string) (Session, error) {
	if err := s.ready(); err != nil {
		return Session{}, err
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if session.Status == SessionCompleted {
		return session, nil
	}
	if !Overdue(session, s.now()) {
		return Session{}, invalidTransition(session, "ingest recordings", "session is not completed")
	}
	return s.completeOverdue(ctx, session)
}

// CompleteOverdue persists completion for every scheduled or live session past its end.
func (s *SessionService) CompleteOverdue(ctx context.Context) (completed int, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CompleteOverdue")
	now := s.now()

	var candidates []Session
	candidates, err = s.sessions.ListSessions(ctx, SessionFilter{
		Statuses:     []SessionStatus{SessionScheduled, SessionLive},
		StartsBefore: &now,
	})
	if err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to list overdue sessions", "error", err, "error_kind", ErrorKind(err))
		return
	}

	var errs []error
	for _, candidate := range candidates {
		if !Overdue(candidate, now) {
			continue
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		unlock := s.locks.Lock(candidate.ID)
		current, loadErr := s.load(ctx, candidate.ID)
		if loadErr == nil && Overdue(current, now) {
			_, loadErr = s.completeOverdue(ctx, current)
			if loadErr == nil {
				completed++
			}
		}
		unlock()
		if loadErr != nil && !errors.Is(loadErr, ErrArtifactMissing) {
			errs = append(errs, loadErr)
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		logger.ErrorContext(ctx, "overdue reconciliation incomplete", "completed", completed, "error", err, "error_kind", ErrorKind(err))
		return
	}
	if completed > 0 {
		logger.InfoContext(ctx, "overdue sessions completed", "completed", completed)
	}
	return
}

func (s *SessionService) completeOverdue(ctx context.Context, session Session) (Session, error) {
	end := session.EndTime()
	completed := session
	completed.Status = SessionCompleted
	completed.EndedAt = &end
	completed.UpdatedAt = s.now()
	persisted, err := s.write(ctx, completed, session, "complete")
	s.observe("complete", err)
	return persisted, err
}

// confirmMeeting re-reads the hosted meeting so the join URL handed out at start is current.
func (s *SessionService) confirmMeeting(ctx context.Context, session Session) (Meeting, error) {
	if session.MeetingID != "" {
		meeting, err := s.meetings.GetMeeting(ctx, session.MeetingID)
		if err == nil {
			if meeting.ID == "" {
				meeting.ID = session.MeetingID
			}
			if meeting.JoinURL == "" {
				meeting.JoinURL = session.JoinURL
			}
			return meeting, nil
		}
		if !errors.Is(err, ErrMeetingNotFound) {
			return Meeting{}, err
		}
	}
	return s.meetings.CreateMeeting(ctx, MeetingSpec{
		Topic:           session.Title,
		Agenda:          session.Description,
		StartTime:       session.StartTime,
		DurationMinutes: session.DurationMinutes,
		Timezone:        session.Timezone,
	})
}

func (s *SessionService) load(ctx context.Context, sessionID string) (Session, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return Session{}, ErrArtifactMissing
	}
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	return session, nil
}

// write persists next only if the stored status still matches prior.
func (s *SessionService) write(ctx context.Context, next, prior Session, operation string) (Session, error) {
	persisted, err := s.sessions.UpdateSession(ctx, next, prior.Status)
	if err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrConcurrentModification) {
			return Session{}, concurrentModification(prior, operation)
		}
		return Session{}, err
	}
	return persisted, nil
}

func (s *SessionService) checkOverlap(ctx context.Context, selfID string, input SessionInput) error {
	start := input.StartTime
	end := start.Add(time.Duration(input.DurationMinutes) * time.Minute)
	from := start.Add(-maxSessionMinutes * time.Minute)

	candidates, err := s.sessions.ListSessions(ctx, SessionFilter{
		InstructorID: input.InstructorID,
		Statuses:     []SessionStatus{SessionScheduled, SessionLive},
		StartsAfter:  &from,
		StartsBefore: &end,
	})
	if err != nil {
		return mapRepoError(err)
	}

	slots := make([]scheduler.Slot, 0, len(candidates))
	for _, c := range candidates {
		slots = append(slots, scheduler.Slot{ID: c.ID, OwnerID: c.InstructorID, Start: c.StartTime, End: c.EndTime()})
	}
	conflicts := scheduler.DetectConflicts(slots, scheduler.Slot{ID: selfID, OwnerID: input.InstructorID, Start: start, End: end})
	if len(conflicts) == 0 {
		return nil
	}

	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.WithID)
	}
	vErr := &ValidationError{}
	vErr.add("schedule", "overlaps session "+strings.Join(ids, ", "))
	return vErr
}

func (s *SessionService) normalizeInput(input SessionInput) SessionInput {
	input.CourseID = strings.TrimSpace(input.CourseID)
	input.InstructorID = strings.TrimSpace(input.InstructorID)
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Timezone = strings.TrimSpace(input.Timezone)
	if input.Timezone == "" {
		input.Timezone = s.timezone
	}
	if input.Type == "" {
		input.Type = SessionTypeLiveClass
	}
	input.StartTime = input.StartTime.UTC()
	return input
}

func validateSessionInput(input SessionInput, now time.Time) *ValidationError {
	vErr := &ValidationError{}
	if input.CourseID == "" {
		vErr.add("course_id", "course is required")
	}
	if input.Title == "" {
		vErr.add("title", "title is required")
	} else if len(input.Title) > maxTitleLength {
		vErr.add("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if !input.Type.Valid() {
		vErr.add("session_type", fmt.Sprintf("unknown session type %q", input.Type))
	}
	if input.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration must be positive")
	} else if input.DurationMinutes > maxSessionMinutes {
		vErr.add("duration_minutes", fmt.Sprintf("duration must be at most %d minutes", maxSessionMinutes))
	}
	if input.MaxParticipants < 0 {
		vErr.add("max_participants", "max participants must not be negative")
	}
	if _, err := time.LoadLocation(input.Timezone); err != nil {
		vErr.add("timezone", fmt.Sprintf("unknown timezone %q", input.Timezone))
	}
	if input.StartTime.IsZero() {
		vErr.add("start_time", "start time is required")
	} else if input.DurationMinutes > 0 {
		end := input.StartTime.Add(time.Duration(input.DurationMinutes) * time.Minute)
		if !end.After(now) {
			vErr.add("start_time", "session must end in the future")
		}
	}
	return vErr
}

func meetingSpecFor(input SessionInput) MeetingSpec {
	return MeetingSpec{
		Topic:           input.Title,
		Agenda:          input.Description,
		StartTime:       input.StartTime,
		DurationMinutes: input.DurationMinutes,
		Timezone:        input.Timezone,
	}
}

func canManage(principal Principal, session Session) bool {
	if principal.IsAdmin() {
		return true
	}
	return principal.CanTeach() && principal.UserID != "" && principal.UserID == session.InstructorID
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrArtifactMissing), errors.Is(err, persistence.ErrNotFound):
		return ErrArtifactMissing
	case errors.Is(err, ErrConcurrentModification), errors.Is(err, persistence.ErrConflict):
		return ErrConcurrentModification
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, ErrHasRecordings), errors.Is(err, persistence.ErrHasRecordings):
		return ErrHasRecordings
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fmt.Errorf("%w: referenced record missing", ErrArtifactMissing)
	}
	return err
}
