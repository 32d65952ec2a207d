package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// AttendanceService records who joined which session.
type AttendanceService struct {
	sessions   SessionLister
	attendance AttendanceRepository
	now        func() time.Time
	logger     *slog.Logger
}

// NewAttendanceService wires the attendance tracker.
func NewAttendanceService(sessions SessionLister, attendance AttendanceRepository, now func() time.Time) *AttendanceService {
	return NewAttendanceServiceWithLogger(sessions, attendance, now, nil)
}

// NewAttendanceServiceWithLogger wires the attendance tracker with a specified logger.
func NewAttendanceServiceWithLogger(sessions SessionLister, attendance AttendanceRepository, now func() time.Time, logger *slog.Logger) *AttendanceService {
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{sessions: sessions, attendance: attendance, now: now, logger: defaultLogger(logger)}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

func (s *AttendanceService) ready() error {
	if s == nil {
		return fmt.Errorf("AttendanceService is nil")
	}
	if s.sessions == nil || s.attendance == nil {
		return fmt.Errorf("attendance repositories not configured")
	}
	return nil
}

// RecordJoin stores the first join of userID in session. Later joins leave the row untouched
// and report created as false.
func (s *AttendanceService) RecordJoin(ctx context.Context, session Session, userID string) (record Attendance, created bool, err error) {
	if err = s.ready(); err != nil {
		return
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		err = ErrUnauthenticated
		return
	}
	if session.Status != SessionLive && session.Status != SessionCompleted {
		err = invalidTransition(session, "record attendance", "session has not started")
		return
	}

	record, created, err = s.attendance.RecordAttendance(ctx, Attendance{
		SessionID: session.ID,
		UserID:    userID,
		JoinedAt:  s.now().UTC(),
	})
	err = mapRepoError(err)
	return
}

// Mark records attendance explicitly. Marking someone else requires managing the session.
func (s *AttendanceService) Mark(ctx context.Context, params MarkAttendanceParams) (record Attendance, created bool, err error) {
	if err = s.ready(); err != nil {
		return
	}

	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		userID = params.Principal.UserID
	}

	logger := s.loggerWith(ctx, "Mark", "principal_id", params.Principal.UserID, "session_id", params.SessionID, "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark attendance", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("created", created).InfoContext(ctx, "attendance marked")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	var session Session
	session, err = s.loadSession(ctx, params.SessionID)
	if err != nil {
		return
	}
	if userID != params.Principal.UserID && !canManage(params.Principal, session) {
		err = ErrForbidden
		return
	}
	return s.RecordJoin(ctx, session, userID)
}

// Leave stamps the departure time on the caller's attendance row.
func (s *AttendanceService) Leave(ctx context.Context, principal Principal, sessionID string) (record Attendance, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Leave", "principal_id", principal.UserID, "session_id", sessionID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record leave", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "leave recorded")
	}()

	if principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	var session Session
	if session, err = s.loadSession(ctx, sessionID); err != nil {
		return
	}

	record, err = s.attendance.GetAttendance(ctx, session.ID, principal.UserID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if record.LeftAt != nil {
		return
	}

	left := s.now().UTC()
	record.LeftAt = &left
	record, err = s.attendance.UpdateAttendance(ctx, record)
	err = mapRepoError(err)
	return
}

// List returns the attendance of one session to its managers.
func (s *AttendanceService) List(ctx context.Context, principal Principal, sessionID string) ([]Attendance, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if principal.UserID == "" {
		return nil, ErrUnauthenticated
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canManage(principal, session) {
		return nil, ErrForbidden
	}
	records, err := s.attendance.ListAttendance(ctx, session.ID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return records, nil
}

func (s *AttendanceService) loadSession(ctx context.Context, sessionID string) (Session, error) {
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
