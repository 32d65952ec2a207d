package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/live-sessions/internal/application"
	"github.com/example/live-sessions/internal/metrics"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type authServiceStub struct {
	loginPair   application.TokenPair
	loginErr    error
	refreshErr  error
	logoutToken string
}

func (s *authServiceStub) Login(ctx context.Context, params application.LoginParams) (application.TokenPair, error) {
	if s.loginErr != nil {
		return application.TokenPair{}, s.loginErr
	}
	return s.loginPair, nil
}

func (s *authServiceStub) Refresh(ctx context.Context, refreshToken string) (application.TokenPair, error) {
	if s.refreshErr != nil {
		return application.TokenPair{}, s.refreshErr
	}
	return s.loginPair, nil
}

func (s *authServiceStub) Logout(ctx context.Context, refreshToken string) error {
	s.logoutToken = refreshToken
	return nil
}

type tokenValidatorStub struct {
	principals map[string]application.Principal
	err        error
}

func (s tokenValidatorStub) ValidateAccessToken(ctx context.Context, token string) (application.Principal, error) {
	if s.err != nil {
		return application.Principal{}, s.err
	}
	p, ok := s.principals[token]
	if !ok {
		return application.Principal{}, application.ErrUnauthenticated
	}
	return p, nil
}

type sessionServiceStub struct {
	view       application.SessionView
	err        error
	lastCreate application.CreateSessionParams
	lastList   application.ListSessionsParams
	lastDelete application.DeleteSessionParams
	lastPrinc  application.Principal
	join       application.JoinResult
}

func (s *sessionServiceStub) CreateSession(ctx context.Context, params application.CreateSessionParams) (application.SessionView, error) {
	s.lastCreate = params
	return s.view, s.err
}

func (s *sessionServiceStub) GetSession(ctx context.Context, principal application.Principal, sessionID string) (application.SessionView, error) {
	s.lastPrinc = principal
	return s.view, s.err
}

func (s *sessionServiceStub) ListSessions(ctx context.Context, params application.ListSessionsParams) ([]application.SessionView, error) {
	s.lastList = params
	if s.err != nil {
		return nil, s.err
	}
	return []application.SessionView{s.view}, nil
}

func (s *sessionServiceStub) UpdateSession(ctx context.Context, params application.UpdateSessionParams) (application.SessionView, error) {
	return s.view, s.err
}

func (s *sessionServiceStub) StartSession(ctx context.Context, principal application.Principal, sessionID string) (application.SessionView, error) {
	return s.view, s.err
}

func (s *sessionServiceStub) EndSession(ctx context.Context, principal application.Principal, sessionID string) (application.SessionView, error) {
	return s.view, s.err
}

func (s *sessionServiceStub) CancelSession(ctx context.Context, principal application.Principal, sessionID string) (application.SessionView, error) {
	return s.view, s.err
}

func (s *sessionServiceStub) DeleteSession(ctx context.Context, params application.DeleteSessionParams) error {
	s.lastDelete = params
	return s.err
}

func (s *sessionServiceStub) JoinSession(ctx context.Context, principal application.Principal, sessionID string) (application.JoinResult, error) {
	return s.join, s.err
}

type recordingServiceStub struct {
	rec        application.Recording
	err        error
	// delay holds SyncSession back unless its context ends first.
	delay      time.Duration
	lastUpload application.UploadRecordingParams
	uploaded   []byte
	lastPatch  application.UpdateRecordingParams
}

func (s *recordingServiceStub) ListRecordings(ctx context.Context, principal application.Principal, sessionID string) ([]application.Recording, error) {
	return []application.Recording{s.rec}, s.err
}

func (s *recordingServiceStub) GetRecording(ctx context.Context, principal application.Principal, recordingID string) (application.Recording, error) {
	return s.rec, s.err
}

func (s *recordingServiceStub) UpdateRecording(ctx context.Context, params application.UpdateRecordingParams) (application.Recording, error) {
	s.lastPatch = params
	return s.rec, s.err
}

func (s *recordingServiceStub) DeleteRecording(ctx context.Context, principal application.Principal, recordingID string) error {
	return s.err
}

func (s *recordingServiceStub) UploadRecording(ctx context.Context, params application.UploadRecordingParams) (application.Recording, error) {
	s.lastUpload = params
	if params.Body != nil {
		s.uploaded, _ = io.ReadAll(params.Body)
	}
	return s.rec, s.err
}

func (s *recordingServiceStub) SyncSession(ctx context.Context, principal application.Principal, sessionID string) (application.SyncResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return application.SyncResult{}, ctx.Err()
		}
	}
	return application.SyncResult{SessionID: sessionID, Inserted: []application.Recording{s.rec}}, s.err
}

func (s *recordingServiceStub) SyncAll(ctx context.Context, principal application.Principal) ([]application.SyncResult, error) {
	return []application.SyncResult{{SessionID: s.rec.SessionID, Skipped: 2}}, s.err
}

func (s *recordingServiceStub) RepairRecording(ctx context.Context, principal application.Principal, recordingID string) (application.Recording, error) {
	return s.rec, s.err
}

type attendanceServiceStub struct {
	record   application.Attendance
	created  bool
	err      error
	lastMark application.MarkAttendanceParams
}

func (s *attendanceServiceStub) Mark(ctx context.Context, params application.MarkAttendanceParams) (application.Attendance, bool, error) {
	s.lastMark = params
	return s.record, s.created, s.err
}

func (s *attendanceServiceStub) Leave(ctx context.Context, principal application.Principal, sessionID string) (application.Attendance, error) {
	return s.record, s.err
}

func (s *attendanceServiceStub) List(ctx context.Context, principal application.Principal, sessionID string) ([]application.Attendance, error) {
	return []application.Attendance{s.record}, s.err
}

type testEnvelope struct {
	Success   bool              `json:"success"`
	Data      json.RawMessage   `json:"data"`
	Message   string            `json:"message"`
	ErrorCode string            `json:"error_code"`
	Errors    map[string]string `json:"errors"`
}

type routerDeps struct {
	auth       *authServiceStub
	sessions   *sessionServiceStub
	recordings *recordingServiceStub
	attendance *attendanceServiceStub
	tokens     tokenValidatorStub
}

var (
	instructor = application.Principal{UserID: "inst-1", Role: application.RoleInstructor}
	student    = application.Principal{UserID: "stud-1", Role: application.RoleStudent}
)

func newTestRouter(t *testing.T) (http.Handler, *routerDeps) {
	t.Helper()
	deps := &routerDeps{
		auth:       &authServiceStub{},
		sessions:   &sessionServiceStub{view: sampleView()},
		recordings: &recordingServiceStub{rec: sampleRecording()},
		attendance: &attendanceServiceStub{record: application.Attendance{SessionID: "sess-1", UserID: "stud-1", JoinedAt: testNow}},
		tokens: tokenValidatorStub{principals: map[string]application.Principal{
			"inst-token": instructor,
			"stud-token": student,
		}},
	}
	reg := prometheus.NewRegistry()
	router := NewRouter(RouterConfig{
		Auth:       NewAuthHandler(deps.auth, nil),
		Sessions:   NewSessionHandler(deps.sessions, nil),
		Recordings: NewRecordingHandler(deps.recordings, nil),
		Attendance: NewAttendanceHandler(deps.attendance, nil),
		Tokens:     deps.tokens,
		Metrics:    metrics.New("test", reg),
		Gatherer:   reg,
	})
	return router, deps
}

func sampleView() application.SessionView {
	return application.SessionView{
		Session: application.Session{
			ID:              "sess-1",
			CourseID:        "course-1",
			InstructorID:    "inst-1",
			Title:           "Week 1",
			StartTime:       testNow,
			DurationMinutes: 60,
			Type:            application.SessionTypeLiveClass,
			Status:          application.SessionScheduled,
			Timezone:        "UTC",
			CreatedAt:       testNow,
			UpdatedAt:       testNow,
		},
		DisplayStatus: application.DisplayUpcoming,
	}
}

func sampleRecording() application.Recording {
	return application.Recording{
		ID:           "rec-1",
		SessionID:    "sess-1",
		Title:        "Week 1",
		FileName:     "abc.mp4",
		StorageURL:   "/media/abc.mp4",
		RecordedAt:   testNow,
		Visible:      true,
		RepairStatus: application.RepairNotNeeded,
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body io.Reader, contentType string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env testEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func TestAuthHandlers(t *testing.T) {
	t.Parallel()

	t.Run("login returns a token pair", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)
		deps.auth.loginPair = application.TokenPair{
			AccessToken:      "access",
			AccessExpiresAt:  testNow.Add(15 * time.Minute),
			RefreshToken:     "refresh",
			RefreshExpiresAt: testNow.Add(24 * time.Hour),
			Principal:        instructor,
		}

		rec, env := doRequest(t, router, http.MethodPost, "/api/v1/auth/login", "",
			jsonBody(map[string]string{"email": "ada@example.com", "password": "secret"}), "application/json")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var token tokenDTO
		if err := json.Unmarshal(env.Data, &token); err != nil {
			t.Fatalf("decode token: %v", err)
		}
		if token.AccessToken != "access" || token.RefreshToken != "refresh" || token.TokenType != "Bearer" {
			t.Fatalf("unexpected token payload: %+v", token)
		}
		if token.Role != "instructor" {
			t.Fatalf("expected instructor role, got %q", token.Role)
		}
	})

	t.Run("login maps invalid credentials to 401", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)
		deps.auth.loginErr = application.ErrInvalidCredentials

		rec, env := doRequest(t, router, http.MethodPost, "/api/v1/auth/login", "",
			jsonBody(map[string]string{"email": "ada@example.com", "password": "wrong"}), "application/json")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if env.ErrorCode != "invalid_credentials" {
			t.Fatalf("expected invalid_credentials, got %q", env.ErrorCode)
		}
	})

	t.Run("login rejects malformed and invalid bodies", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter(t)

		rec, env := doRequest(t, router, http.MethodPost, "/api/v1/auth/login", "", strings.NewReader("{"), "application/json")
		if rec.Code != http.StatusBadRequest || env.ErrorCode != "bad_request" {
			t.Fatalf("expected 400 bad_request, got %d %q", rec.Code, env.ErrorCode)
		}

		rec, env = doRequest(t, router, http.MethodPost, "/api/v1/auth/login", "",
			jsonBody(map[string]string{"email": "not-an-email"}), "application/json")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		if env.Errors["email"] == "" || env.Errors["password"] == "" {
			t.Fatalf("expected email and password field errors, got %v", env.Errors)
		}
	})

	t.Run("refresh maps expiry to auth_expired", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)
		deps.auth.refreshErr = fmt.Errorf("refresh: %w", application.ErrAuthExpired)

		rec, env := doRequest(t, router, http.MethodPost, "/api/v1/auth/refresh", "",
			jsonBody(map[string]string{"refresh_token": "old"}), "application/json")
		if rec.Code != http.StatusUnauthorized || env.ErrorCode != "auth_expired" {
			t.Fatalf("expected 401 auth_expired, got %d %q", rec.Code, env.ErrorCode)
		}
	})

	t.Run("logout forwards the refresh token", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)

		rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/auth/logout", "",
			jsonBody(map[string]string{"refresh_token": "rt-1"}), "application/json")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if deps.auth.logoutToken != "rt-1" {
			t.Fatalf("expected token rt-1, got %q", deps.auth.logoutToken)
		}
	})
}

func TestSessionHandlers(t *testing.T) {
	t.Parallel()

	t.Run("create returns 201 with display status", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)

		body := jsonBody(map[string]any{
			"course_id":        "course-1",
			"title":            "Week 1",
			"start_time":       testNow.Add(time.Hour).Format(time.RFC3339),
			"duration_minutes": 60,
			"session_type":     "live-class",
			"timezone":         "Asia/Tokyo",
		})
		rec, env := doRequest(t, router, http.MethodPost, "/api/v1/sessions", "inst-token", body, "application/json")
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var dto sessionDTO
		if err := json.Unmarshal(env.Data, &dto); err != nil {
			t.Fatalf("decode session: %v", err)
		}
		if dto.Status != "scheduled" || dto.DisplayStatus != "upcoming" {
			t.Fatalf("unexpected statuses %q/%q", dto.Status, dto.DisplayStatus)
		}
		if dto.EndTime != testNow.Add(time.Hour).Format(time.RFC3339) {
			t.Fatalf("unexpected end time %q", dto.EndTime)
		}
		if deps.sessions.lastCreate.Principal != instructor {
			t.Fatalf("expected principal from token, got %+v", deps.sessions.lastCreate.Principal)
		}
		if deps.sessions.lastCreate.Input.Timezone != "Asia/Tokyo" {
			t.Fatalf("expected timezone to pass through, got %q", deps.sessions.lastCreate.Input.Timezone)
		}
	})

	t.Run("create validates the request body", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter(t)

		body := jsonBody(map[string]any{
			"course_id":        "course-1",
			"title":            "Week 1",
			"start_time":       testNow.Format(time.RFC3339),
			"duration_minutes": 0,
			"session_type":     "lecture",
		})
		rec, env := doRequest(t, router, http.MethodPost, "/api/v1/sessions", "inst-token", body, "application/json")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		for _, field := range []string{"duration_minutes", "session_type"} {
			if env.Errors[field] == "" {
				t.Fatalf("expected field error for %s, got %v", field, env.Errors)
			}
		}
	})

	t.Run("list parses filters", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)

		from := testNow.Format(time.RFC3339)
		rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/sessions?course_id=course-1&status=scheduled,live&from="+from, "stud-token", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		filter := deps.sessions.lastList.Filter
		if filter.CourseID != "course-1" || len(filter.Statuses) != 2 || filter.Statuses[1] != application.SessionLive {
			t.Fatalf("unexpected filter %+v", filter)
		}
		if filter.StartsAfter == nil || !filter.StartsAfter.Equal(testNow) || filter.StartsBefore != nil {
			t.Fatalf("unexpected window %+v", filter)
		}
	})

	t.Run("list rejects malformed timestamps", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter(t)

		rec, env := doRequest(t, router, http.MethodGet, "/api/v1/sessions?to=yesterday", "stud-token", nil, "")
		if rec.Code != http.StatusUnprocessableEntity || env.Errors["to"] == "" {
			t.Fatalf("expected 422 with to error, got %d %v", rec.Code, env.Errors)
		}
	})

	t.Run("transition errors map to status codes", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			path   string
			err    error
			status int
			code   string
		}{
			{"start after lost race", "/start", fmt.Errorf("start: %w", application.ErrConcurrentModification), http.StatusConflict, "concurrent_modification"},
			{"end from scheduled", "/end", fmt.Errorf("end: %w", application.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
			{"start while provider down", "/start", fmt.Errorf("start: %w", application.ErrProviderUnavailable), http.StatusBadGateway, "provider_unavailable"},
			{"cancel by stranger", "/cancel", application.ErrForbidden, http.StatusForbidden, "forbidden"},
			{"unknown session", "/end", application.ErrArtifactMissing, http.StatusNotFound, "artifact_missing"},
			{"unexpected failure", "/start", fmt.Errorf("disk full"), http.StatusInternalServerError, "unexpected"},
		}

		for _, tc := range tests {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()
				router, deps := newTestRouter(t)
				deps.sessions.err = tc.err

				rec, env := doRequest(t, router, http.MethodPost, "/api/v1/sessions/sess-1"+tc.path, "inst-token", nil, "")
				if rec.Code != tc.status {
					t.Fatalf("expected %d, got %d", tc.status, rec.Code)
				}
				if env.ErrorCode != tc.code || env.Success {
					t.Fatalf("expected error code %q, got %+v", tc.code, env)
				}
			})
		}
	})

	t.Run("delete passes the cascade flag", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)

		rec, _ := doRequest(t, router, http.MethodDelete, "/api/v1/sessions/sess-1?cascade=true", "inst-token", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !deps.sessions.lastDelete.Cascade || deps.sessions.lastDelete.SessionID != "sess-1" {
			t.Fatalf("unexpected delete params %+v", deps.sessions.lastDelete)
		}

		deps.sessions.err = fmt.Errorf("delete: %w", application.ErrHasRecordings)
		rec, env := doRequest(t, router, http.MethodDelete, "/api/v1/sessions/sess-1", "inst-token", nil, "")
		if rec.Code != http.StatusConflict || env.ErrorCode != "has_recordings" {
			t.Fatalf("expected 409 has_recordings, got %d %q", rec.Code, env.ErrorCode)
		}
	})

	t.Run("join returns the meeting link", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)
		deps.sessions.join = application.JoinResult{SessionID: "sess-1", JoinURL: "https://meet.example/j/1", AttendanceRecorded: true}

		rec, env := doRequest(t, router, http.MethodPost, "/api/v1/sessions/sess-1/join", "stud-token", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var dto joinDTO
		if err := json.Unmarshal(env.Data, &dto); err != nil {
			t.Fatalf("decode join: %v", err)
		}
		if dto.JoinURL != "https://meet.example/j/1" || !dto.AttendanceRecorded {
			t.Fatalf("unexpected join payload %+v", dto)
		}
	})
}

func TestRecordingHandlers(t *testing.T) {
	t.Parallel()

	t.Run("upload forwards the multipart file", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("title", "Lecture")
		_ = mw.WriteField("duration_seconds", "3600")
		_ = mw.WriteField("recorded_at", testNow.Format(time.RFC3339))
		part, _ := mw.CreateFormFile("file", "lecture.mp4")
		_, _ = part.Write([]byte("ftypisom"))
		_ = mw.Close()

		rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/sessions/sess-1/recordings", "inst-token", &buf, mw.FormDataContentType())
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		up := deps.recordings.lastUpload
		if up.SessionID != "sess-1" || up.FileName != "lecture.mp4" || up.DurationSeconds != 3600 || up.Title != "Lecture" {
			t.Fatalf("unexpected upload params %+v", up)
		}
		if !up.RecordedAt.Equal(testNow) {
			t.Fatalf("expected recorded_at %v, got %v", testNow, up.RecordedAt)
		}
		if string(deps.recordings.uploaded) != "ftypisom" {
			t.Fatalf("unexpected body %q", deps.recordings.uploaded)
		}
	})

	t.Run("upload without file is a validation error", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter(t)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("duration_seconds", "10")
		_ = mw.Close()

		rec, env := doRequest(t, router, http.MethodPost, "/api/v1/sessions/sess-1/recordings", "inst-token", &buf, mw.FormDataContentType())
		if rec.Code != http.StatusUnprocessableEntity || env.Errors["file"] == "" {
			t.Fatalf("expected 422 with file error, got %d %v", rec.Code, env.Errors)
		}
	})

	t.Run("failed repair answers 200 with a caveat", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)
		deps.recordings.rec.RepairStatus = application.RepairFailed
		deps.recordings.rec.FallbackURL = "/media/abc.mp4.backup"
		deps.recordings.err = fmt.Errorf("repair rec-1: %w", application.ErrRepairFailed)

		rec, env := doRequest(t, router, http.MethodPost, "/api/v1/recordings/rec-1/repair", "inst-token", nil, "")
		if rec.Code != http.StatusOK || !env.Success || env.Message == "" {
			t.Fatalf("expected 200 with message, got %d %+v", rec.Code, env)
		}
		var dto recordingDTO
		if err := json.Unmarshal(env.Data, &dto); err != nil {
			t.Fatalf("decode recording: %v", err)
		}
		if dto.FallbackURL != "/media/abc.mp4.backup" || dto.RepairStatus != "failed" {
			t.Fatalf("unexpected recording %+v", dto)
		}
	})

	t.Run("patch forwards optional fields", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)

		rec, _ := doRequest(t, router, http.MethodPatch, "/api/v1/recordings/rec-1", "inst-token",
			jsonBody(map[string]any{"visible": false}), "application/json")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		patch := deps.recordings.lastPatch
		if patch.Title != nil || patch.Visible == nil || *patch.Visible {
			t.Fatalf("unexpected patch %+v", patch)
		}
	})

	t.Run("download and sync report results", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter(t)

		rec, env := doRequest(t, router, http.MethodPost, "/api/v1/sessions/sess-1/recordings/download", "inst-token", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var one syncDTO
		if err := json.Unmarshal(env.Data, &one); err != nil {
			t.Fatalf("decode sync: %v", err)
		}
		if one.SessionID != "sess-1" || len(one.Inserted) != 1 {
			t.Fatalf("unexpected sync result %+v", one)
		}

		rec, env = doRequest(t, router, http.MethodPost, "/api/v1/recordings/sync", "inst-token", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var all []syncDTO
		if err := json.Unmarshal(env.Data, &all); err != nil {
			t.Fatalf("decode sync all: %v", err)
		}
		if len(all) != 1 || all[0].Skipped != 2 {
			t.Fatalf("unexpected sync results %+v", all)
		}
	})
}

func TestAttendanceHandlers(t *testing.T) {
	t.Parallel()

	t.Run("mark answers 201 for a new row and 200 otherwise", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)

		deps.attendance.created = true
		rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/sessions/sess-1/attendance", "stud-token", nil, "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		if deps.attendance.lastMark.UserID != "" || deps.attendance.lastMark.Principal != student {
			t.Fatalf("unexpected mark params %+v", deps.attendance.lastMark)
		}

		deps.attendance.created = false
		rec, _ = doRequest(t, router, http.MethodPost, "/api/v1/sessions/sess-1/attendance", "inst-token",
			jsonBody(map[string]string{"user_id": "stud-1"}), "application/json")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if deps.attendance.lastMark.UserID != "stud-1" {
			t.Fatalf("expected explicit user id, got %q", deps.attendance.lastMark.UserID)
		}
	})

	t.Run("leave without join is not found", func(t *testing.T) {
		t.Parallel()
		router, deps := newTestRouter(t)
		deps.attendance.err = application.ErrArtifactMissing

		rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/sessions/sess-1/leave", "stud-token", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestOperationalRoutes(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	rec, env := doRequest(t, router, http.MethodGet, "/healthz", "", nil, "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected healthy response, got %d", rec.Code)
	}

	_, _ = doRequest(t, router, http.MethodGet, "/api/v1/sessions/sess-1", "stud-token", nil, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	router.ServeHTTP(mrec, req)
	if mrec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", mrec.Code)
	}
	if !strings.Contains(mrec.Body.String(), `path="/api/v1/sessions/{sessionID}`) {
		t.Fatalf("expected route pattern label in metrics output:\n%s", mrec.Body.String())
	}
}

func TestIngestionRoutesOutliveRequestTimeout(t *testing.T) {
	t.Parallel()

	recordings := &recordingServiceStub{rec: sampleRecording(), delay: 100 * time.Millisecond}
	router := NewRouter(RouterConfig{
		Recordings:     NewRecordingHandler(recordings, nil),
		Tokens:         tokenValidatorStub{principals: map[string]application.Principal{"inst-token": instructor}},
		RequestTimeout: 20 * time.Millisecond,
	})

	rec, env := doRequest(t, router, http.MethodPost, "/api/v1/sessions/sess-1/recordings/download", "inst-token", nil, "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected download to finish past the request timeout, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMediaRequiresBearer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "abc.mp4"), []byte("media"), 0o600); err != nil {
		t.Fatalf("write media: %v", err)
	}
	router := NewRouter(RouterConfig{
		Tokens:   tokenValidatorStub{principals: map[string]application.Principal{"stud-token": student}},
		MediaDir: dir,
	})

	rec, _ := doRequest(t, router, http.MethodGet, "/media/abc.mp4", "", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	rec, _ = doRequest(t, router, http.MethodGet, "/media/abc.mp4", "stud-token", nil, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "media" {
		t.Fatalf("expected the artifact with a token, got %d %q", rec.Code, rec.Body.String())
	}
}
