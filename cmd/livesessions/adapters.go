package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/example/live-sessions/internal/application"
	"github.com/example/live-sessions/internal/persistence"
	"github.com/example/live-sessions/internal/provider"
)

var (
	_ application.UserRepository        = (*userRepositoryAdapter)(nil)
	_ application.CredentialStore       = (*userRepositoryAdapter)(nil)
	_ application.AuthSessionRepository = (*authSessionRepositoryAdapter)(nil)
	_ application.SessionRepository     = (*sessionRepositoryAdapter)(nil)
	_ application.SessionLister         = (*sessionRepositoryAdapter)(nil)
	_ application.RecordingRepository   = (*recordingRepositoryAdapter)(nil)
	_ application.AttendanceRepository  = (*attendanceRepositoryAdapter)(nil)
	_ application.MeetingProvider       = (*meetingProviderAdapter)(nil)
)

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(creds)); err != nil {
		return application.User{}, err
	}
	stored, err := a.repo.GetUser(ctx, creds.User.ID)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{
		User:         toApplicationUser(stored),
		PasswordHash: stored.PasswordHash,
		Disabled:     stored.Disabled,
	}, nil
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context) ([]application.User, error) {
	models, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

type authSessionRepositoryAdapter struct {
	repo persistence.AuthSessionRepository
}

func newAuthSessionRepositoryAdapter(repo persistence.AuthSessionRepository) *authSessionRepositoryAdapter {
	return &authSessionRepositoryAdapter{repo: repo}
}

func (a *authSessionRepositoryAdapter) CreateAuthSession(ctx context.Context, session application.AuthSession) (application.AuthSession, error) {
	if err := a.repo.CreateAuthSession(ctx, toPersistenceAuthSession(session)); err != nil {
		return application.AuthSession{}, err
	}
	return a.GetAuthSession(ctx, session.ID)
}

func (a *authSessionRepositoryAdapter) GetAuthSession(ctx context.Context, id string) (application.AuthSession, error) {
	stored, err := a.repo.GetAuthSession(ctx, id)
	if err != nil {
		return application.AuthSession{}, err
	}
	return toApplicationAuthSession(stored), nil
}

func (a *authSessionRepositoryAdapter) GetAuthSessionByToken(ctx context.Context, token string) (application.AuthSession, error) {
	stored, err := a.repo.GetAuthSessionByToken(ctx, token)
	if err != nil {
		return application.AuthSession{}, err
	}
	return toApplicationAuthSession(stored), nil
}

func (a *authSessionRepositoryAdapter) UpdateAuthSession(ctx context.Context, session application.AuthSession) (application.AuthSession, error) {
	if err := a.repo.UpdateAuthSession(ctx, toPersistenceAuthSession(session)); err != nil {
		return application.AuthSession{}, err
	}
	return a.GetAuthSession(ctx, session.ID)
}

func (a *authSessionRepositoryAdapter) RevokeAuthSession(ctx context.Context, id string, revokedAt time.Time) error {
	return a.repo.RevokeAuthSession(ctx, id, revokedAt)
}

func (a *authSessionRepositoryAdapter) DeleteExpiredAuthSessions(ctx context.Context, reference time.Time) error {
	return a.repo.DeleteExpiredAuthSessions(ctx, reference)
}

type sessionRepositoryAdapter struct {
	repo persistence.LiveSessionRepository
}

func newSessionRepositoryAdapter(repo persistence.LiveSessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	if err := a.repo.CreateLiveSession(ctx, toPersistenceSession(session)); err != nil {
		return application.Session{}, err
	}
	return a.GetSession(ctx, session.ID)
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, id string) (application.Session, error) {
	stored, err := a.repo.GetLiveSession(ctx, id)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

// UpdateSession writes only while the stored status still equals expected.
func (a *sessionRepositoryAdapter) UpdateSession(ctx context.Context, session application.Session, expected application.SessionStatus) (application.Session, error) {
	if err := a.repo.UpdateLiveSession(ctx, toPersistenceSession(session), string(expected)); err != nil {
		return application.Session{}, err
	}
	return a.GetSession(ctx, session.ID)
}

func (a *sessionRepositoryAdapter) DeleteSession(ctx context.Context, id string) error {
	return a.repo.DeleteLiveSession(ctx, id)
}

func (a *sessionRepositoryAdapter) ListSessions(ctx context.Context, filter application.SessionFilter) ([]application.Session, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}
	models, err := a.repo.ListLiveSessions(ctx, persistence.LiveSessionFilter{
		CourseID:     filter.CourseID,
		InstructorID: filter.InstructorID,
		Statuses:     statuses,
		StartsAfter:  cloneTime(filter.StartsAfter),
		StartsBefore: cloneTime(filter.StartsBefore),
	})
	if err != nil {
		return nil, err
	}
	sessions := make([]application.Session, 0, len(models))
	for _, model := range models {
		sessions = append(sessions, toApplicationSession(model))
	}
	return sessions, nil
}

type recordingRepositoryAdapter struct {
	repo persistence.RecordingRepository
}

func newRecordingRepositoryAdapter(repo persistence.RecordingRepository) *recordingRepositoryAdapter {
	return &recordingRepositoryAdapter{repo: repo}
}

func (a *recordingRepositoryAdapter) CreateRecording(ctx context.Context, recording application.Recording) (application.Recording, error) {
	if err := a.repo.CreateRecording(ctx, toPersistenceRecording(recording)); err != nil {
		return application.Recording{}, err
	}
	return a.GetRecording(ctx, recording.ID)
}

func (a *recordingRepositoryAdapter) GetRecording(ctx context.Context, id string) (application.Recording, error) {
	stored, err := a.repo.GetRecording(ctx, id)
	if err != nil {
		return application.Recording{}, err
	}
	return toApplicationRecording(stored), nil
}

func (a *recordingRepositoryAdapter) UpdateRecording(ctx context.Context, recording application.Recording) (application.Recording, error) {
	if err := a.repo.UpdateRecording(ctx, toPersistenceRecording(recording)); err != nil {
		return application.Recording{}, err
	}
	return a.GetRecording(ctx, recording.ID)
}

func (a *recordingRepositoryAdapter) DeleteRecording(ctx context.Context, id string) error {
	return a.repo.DeleteRecording(ctx, id)
}

func (a *recordingRepositoryAdapter) ListRecordingsBySession(ctx context.Context, sessionID string) ([]application.Recording, error) {
	models, err := a.repo.ListRecordingsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return toApplicationRecordings(models), nil
}

func (a *recordingRepositoryAdapter) ListRecordingsByRepairStatus(ctx context.Context, status application.RepairStatus) ([]application.Recording, error) {
	models, err := a.repo.ListRecordingsByRepairStatus(ctx, string(status))
	if err != nil {
		return nil, err
	}
	return toApplicationRecordings(models), nil
}

func (a *recordingRepositoryAdapter) IncrementViewCount(ctx context.Context, id string) error {
	return a.repo.IncrementViewCount(ctx, id)
}

type attendanceRepositoryAdapter struct {
	repo persistence.AttendanceRepository
}

func newAttendanceRepositoryAdapter(repo persistence.AttendanceRepository) *attendanceRepositoryAdapter {
	return &attendanceRepositoryAdapter{repo: repo}
}

// RecordAttendance inserts the first join and returns the stored row either way.
func (a *attendanceRepositoryAdapter) RecordAttendance(ctx context.Context, attendance application.Attendance) (application.Attendance, bool, error) {
	created, err := a.repo.InsertAttendance(ctx, toPersistenceAttendance(attendance))
	if err != nil {
		return application.Attendance{}, false, err
	}
	stored, err := a.GetAttendance(ctx, attendance.SessionID, attendance.UserID)
	if err != nil {
		return application.Attendance{}, false, err
	}
	return stored, created, nil
}

func (a *attendanceRepositoryAdapter) GetAttendance(ctx context.Context, sessionID, userID string) (application.Attendance, error) {
	stored, err := a.repo.GetAttendance(ctx, sessionID, userID)
	if err != nil {
		return application.Attendance{}, err
	}
	return toApplicationAttendance(stored), nil
}

func (a *attendanceRepositoryAdapter) UpdateAttendance(ctx context.Context, attendance application.Attendance) (application.Attendance, error) {
	if err := a.repo.UpdateAttendance(ctx, toPersistenceAttendance(attendance)); err != nil {
		return application.Attendance{}, err
	}
	return a.GetAttendance(ctx, attendance.SessionID, attendance.UserID)
}

func (a *attendanceRepositoryAdapter) ListAttendance(ctx context.Context, sessionID string) ([]application.Attendance, error) {
	models, err := a.repo.ListAttendance(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]application.Attendance, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationAttendance(model))
	}
	return out, nil
}

// meetingProviderAdapter exposes the REST client as the application's MeetingProvider.
type meetingProviderAdapter struct {
	client *provider.Client
}

func newMeetingProviderAdapter(client *provider.Client) *meetingProviderAdapter {
	return &meetingProviderAdapter{client: client}
}

func (a *meetingProviderAdapter) CreateMeeting(ctx context.Context, spec application.MeetingSpec) (application.Meeting, error) {
	meeting, err := a.client.CreateMeeting(ctx, toMeetingRequest(spec))
	if err != nil {
		return application.Meeting{}, mapProviderError(err)
	}
	return toApplicationMeeting(meeting), nil
}

func (a *meetingProviderAdapter) GetMeeting(ctx context.Context, meetingID string) (application.Meeting, error) {
	meeting, err := a.client.GetMeeting(ctx, meetingID)
	if err != nil {
		return application.Meeting{}, mapProviderError(err)
	}
	return toApplicationMeeting(meeting), nil
}

func (a *meetingProviderAdapter) UpdateMeeting(ctx context.Context, meetingID string, spec application.MeetingSpec) error {
	return mapProviderError(a.client.UpdateMeeting(ctx, meetingID, toMeetingRequest(spec)))
}

func (a *meetingProviderAdapter) DeleteMeeting(ctx context.Context, meetingID string) error {
	return mapProviderError(a.client.DeleteMeeting(ctx, meetingID))
}

func (a *meetingProviderAdapter) EndMeeting(ctx context.Context, meetingID string) error {
	return mapProviderError(a.client.EndMeeting(ctx, meetingID))
}

func (a *meetingProviderAdapter) ListRecordings(ctx context.Context, meetingID string) ([]application.ProviderRecording, error) {
	files, err := a.client.ListRecordings(ctx, meetingID)
	if err != nil {
		return nil, mapProviderError(err)
	}
	out := make([]application.ProviderRecording, 0, len(files))
	for _, f := range files {
		out = append(out, application.ProviderRecording{
			ID:            f.ID,
			FileType:      f.FileType,
			FileExtension: f.FileExtension,
			FileSize:      f.FileSize,
			DownloadURL:   f.DownloadURL,
			Status:        f.Status,
			Start:         f.RecordingStart,
			End:           f.RecordingEnd,
		})
	}
	return out, nil
}

func (a *meetingProviderAdapter) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	body, err := a.client.Download(ctx, url)
	if err != nil {
		return nil, mapProviderError(err)
	}
	return body, nil
}

func mapProviderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, provider.ErrNotFound) {
		return errors.Join(application.ErrMeetingNotFound, err)
	}
	return err
}

func toMeetingRequest(spec application.MeetingSpec) provider.MeetingRequest {
	return provider.MeetingRequest{
		Topic:           spec.Topic,
		Agenda:          spec.Agenda,
		StartTime:       spec.StartTime,
		DurationMinutes: spec.DurationMinutes,
		Timezone:        spec.Timezone,
	}
}

func toApplicationMeeting(meeting provider.Meeting) application.Meeting {
	return application.Meeting{ID: meeting.ID, JoinURL: meeting.JoinURL, Password: meeting.Password}
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:          model.ID,
		Email:       model.Email,
		DisplayName: model.DisplayName,
		Role:        application.Role(model.Role),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceUser(creds application.UserCredentials) persistence.User {
	return persistence.User{
		ID:           creds.User.ID,
		Email:        creds.User.Email,
		DisplayName:  creds.User.DisplayName,
		Role:         string(creds.User.Role),
		PasswordHash: creds.PasswordHash,
		Disabled:     creds.Disabled,
		CreatedAt:    creds.User.CreatedAt,
		UpdatedAt:    creds.User.UpdatedAt,
	}
}

func toApplicationAuthSession(model persistence.AuthSession) application.AuthSession {
	return application.AuthSession{
		ID:            model.ID,
		UserID:        model.UserID,
		RefreshToken:  model.RefreshToken,
		PreviousToken: model.PreviousToken,
		RotatedAt:     cloneTime(model.RotatedAt),
		ExpiresAt:     model.ExpiresAt,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
		RevokedAt:     cloneTime(model.RevokedAt),
	}
}

func toPersistenceAuthSession(session application.AuthSession) persistence.AuthSession {
	return persistence.AuthSession{
		ID:            session.ID,
		UserID:        session.UserID,
		RefreshToken:  session.RefreshToken,
		PreviousToken: session.PreviousToken,
		RotatedAt:     cloneTime(session.RotatedAt),
		ExpiresAt:     session.ExpiresAt,
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
		RevokedAt:     cloneTime(session.RevokedAt),
	}
}

func toApplicationSession(model persistence.LiveSession) application.Session {
	return application.Session{
		ID:              model.ID,
		CourseID:        model.CourseID,
		InstructorID:    model.InstructorID,
		Title:           model.Title,
		Description:     model.Description,
		StartTime:       model.StartTime,
		DurationMinutes: model.DurationMinutes,
		Type:            application.SessionType(model.SessionType),
		Status:          application.SessionStatus(model.Status),
		Timezone:        model.Timezone,
		MeetingID:       model.MeetingID,
		JoinURL:         model.JoinURL,
		MeetingPassword: model.MeetingPassword,
		MaxParticipants: model.MaxParticipants,
		StartedAt:       cloneTime(model.StartedAt),
		EndedAt:         cloneTime(model.EndedAt),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

func toPersistenceSession(session application.Session) persistence.LiveSession {
	return persistence.LiveSession{
		ID:              session.ID,
		CourseID:        session.CourseID,
		InstructorID:    session.InstructorID,
		Title:           session.Title,
		Description:     session.Description,
		StartTime:       session.StartTime,
		DurationMinutes: session.DurationMinutes,
		SessionType:     string(session.Type),
		Status:          string(session.Status),
		Timezone:        session.Timezone,
		MeetingID:       session.MeetingID,
		JoinURL:         session.JoinURL,
		MeetingPassword: session.MeetingPassword,
		MaxParticipants: session.MaxParticipants,
		StartedAt:       cloneTime(session.StartedAt),
		EndedAt:         cloneTime(session.EndedAt),
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
	}
}

func toApplicationRecording(model persistence.Recording) application.Recording {
	return application.Recording{
		ID:                  model.ID,
		SessionID:           model.SessionID,
		ProviderRecordingID: model.ProviderRecordingID,
		Title:               model.Title,
		FileName:            model.FileName,
		ContentType:         model.ContentType,
		StorageURL:          model.StorageURL,
		FallbackURL:         model.FallbackURL,
		SizeBytes:           model.SizeBytes,
		DurationSeconds:     model.DurationSeconds,
		RecordedAt:          model.RecordedAt,
		ViewCount:           model.ViewCount,
		Visible:             model.Visible,
		RepairStatus:        application.RepairStatus(model.RepairStatus),
		RepairNote:          model.RepairNote,
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
	}
}

func toApplicationRecordings(models []persistence.Recording) []application.Recording {
	out := make([]application.Recording, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationRecording(model))
	}
	return out
}

func toPersistenceRecording(recording application.Recording) persistence.Recording {
	return persistence.Recording{
		ID:                  recording.ID,
		SessionID:           recording.SessionID,
		ProviderRecordingID: recording.ProviderRecordingID,
		Title:               recording.Title,
		FileName:            recording.FileName,
		ContentType:         recording.ContentType,
		StorageURL:          recording.StorageURL,
		FallbackURL:         recording.FallbackURL,
		SizeBytes:           recording.SizeBytes,
		DurationSeconds:     recording.DurationSeconds,
		RecordedAt:          recording.RecordedAt,
		ViewCount:           recording.ViewCount,
		Visible:             recording.Visible,
		RepairStatus:        string(recording.RepairStatus),
		RepairNote:          recording.RepairNote,
		CreatedAt:           recording.CreatedAt,
		UpdatedAt:           recording.UpdatedAt,
	}
}

func toApplicationAttendance(model persistence.Attendance) application.Attendance {
	return application.Attendance{
		SessionID: model.SessionID,
		UserID:    model.UserID,
		JoinedAt:  model.JoinedAt,
		LeftAt:    cloneTime(model.LeftAt),
	}
}

func toPersistenceAttendance(attendance application.Attendance) persistence.Attendance {
	return persistence.Attendance{
		SessionID: attendance.SessionID,
		UserID:    attendance.UserID,
		JoinedAt:  attendance.JoinedAt,
		LeftAt:    cloneTime(attendance.LeftAt),
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
