package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/live-sessions/internal/application"
)

type sessionService interface {
	CreateSession(ctx context.Context, params application.CreateSessionParams) (application.SessionView, error)
	GetSession(ctx context.Context, principal application.Principal, sessionID string) (application.SessionView, error)
	ListSessions(ctx context.Context, params application.ListSessionsParams) ([]application.SessionView, error)
	UpdateSession(ctx context.Context, params application.UpdateSessionParams) (application.SessionView, error)
	StartSession(ctx context.Context, principal application.Principal, sessionID string) (application.SessionView, error)
	EndSession(ctx context.Context, principal application.Principal, sessionID string) (application.SessionView, error)
	CancelSession(ctx context.Context, principal application.Principal, sessionID string) (application.SessionView, error)
	DeleteSession(ctx context.Context, params application.DeleteSessionParams) error
	JoinSession(ctx context.Context, principal application.Principal, sessionID string) (application.JoinResult, error)
}

// SessionHandler exposes the session lifecycle.
type SessionHandler struct {
	service   sessionService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

func (h *SessionHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	filter, err := sessionFilterFromQuery(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	views, err := h.service.ListSessions(r.Context(), application.ListSessionsParams{Principal: principal, Filter: filter})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]sessionDTO, 0, len(views))
	for _, v := range views {
		out = append(out, toSessionDTO(v))
	}
	h.responder.ok(r.Context(), w, http.StatusOK, out)
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)
	view, err := h.service.CreateSession(r.Context(), application.CreateSessionParams{Principal: principal, Input: req.toInput()})
	if err != nil {
		logger.WarnContext(r.Context(), "session creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("session_id", view.ID).InfoContext(r.Context(), "session scheduled")
	h.responder.ok(r.Context(), w, http.StatusCreated, toSessionDTO(view))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	view, err := h.service.GetSession(r.Context(), principal, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, toSessionDTO(view))
}

func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}

	view, err := h.service.UpdateSession(r.Context(), application.UpdateSessionParams{
		Principal: principal,
		SessionID: sessionID,
		Input:     req.toInput(),
	})
	if err != nil {
		h.log(r.Context(), "Update", "session_id", sessionID).WarnContext(r.Context(), "session update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, toSessionDTO(view))
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	cascade, _ := strconv.ParseBool(r.URL.Query().Get("cascade"))
	err := h.service.DeleteSession(r.Context(), application.DeleteSessionParams{
		Principal: principal,
		SessionID: chi.URLParam(r, "sessionID"),
		Cascade:   cascade,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.okWithMessage(r.Context(), w, http.StatusOK, nil, "session deleted")
}

// transition serves start, end and cancel, which share a signature.
func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, operation string, fn func(sessionService, context.Context, application.Principal, string) (application.SessionView, error)) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	view, err := fn(h.service, r.Context(), principal, sessionID)
	if err != nil {
		h.log(r.Context(), operation, "session_id", sessionID).WarnContext(r.Context(), "session transition refused", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, toSessionDTO(view))
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Start", sessionService.StartSession)
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "End", sessionService.EndSession)
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Cancel", sessionService.CancelSession)
}

func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.service.JoinSession(r.Context(), principal, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, joinDTO{
		SessionID:          result.SessionID,
		JoinURL:            result.JoinURL,
		Password:           result.Password,
		AttendanceRecorded: result.AttendanceRecorded,
	})
}

type sessionRequest struct {
	CourseID        string    `json:"course_id" validate:"required"`
	InstructorID    string    `json:"instructor_id"`
	Title           string    `json:"title" validate:"required,max=200"`
	Description     string    `json:"description" validate:"max=5000"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
	SessionType     string    `json:"session_type" validate:"required,oneof=live-class office-hours review quiz assignment discussion residency"`
	Timezone        string    `json:"timezone"`
	MaxParticipants int       `json:"max_participants" validate:"min=0"`
}

func (req sessionRequest) toInput() application.SessionInput {
	return application.SessionInput{
		CourseID:        req.CourseID,
		InstructorID:    req.InstructorID,
		Title:           req.Title,
		Description:     req.Description,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Type:            application.SessionType(req.SessionType),
		Timezone:        req.Timezone,
		MaxParticipants: req.MaxParticipants,
	}
}

type sessionDTO struct {
	ID              string  `json:"id"`
	CourseID        string  `json:"course_id"`
	InstructorID    string  `json:"instructor_id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	DurationMinutes int     `json:"duration_minutes"`
	SessionType     string  `json:"session_type"`
	Status          string  `json:"status"`
	DisplayStatus   string  `json:"display_status"`
	Timezone        string  `json:"timezone"`
	MeetingID       string  `json:"meeting_id,omitempty"`
	JoinURL         string  `json:"join_url,omitempty"`
	MaxParticipants int     `json:"max_participants"`
	StartedAt       *string `json:"started_at,omitempty"`
	EndedAt         *string `json:"ended_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type joinDTO struct {
	SessionID          string `json:"session_id"`
	JoinURL            string `json:"join_url"`
	Password           string `json:"password,omitempty"`
	AttendanceRecorded bool   `json:"attendance_recorded"`
}

func toSessionDTO(view application.SessionView) sessionDTO {
	return sessionDTO{
		ID:              view.ID,
		CourseID:        view.CourseID,
		InstructorID:    view.InstructorID,
		Title:           view.Title,
		Description:     view.Description,
		StartTime:       formatTime(view.StartTime),
		EndTime:         formatTime(view.EndTime()),
		DurationMinutes: view.DurationMinutes,
		SessionType:     string(view.Type),
		Status:          string(view.Status),
		DisplayStatus:   string(view.DisplayStatus),
		Timezone:        view.Timezone,
		MeetingID:       view.MeetingID,
		JoinURL:         view.JoinURL,
		MaxParticipants: view.MaxParticipants,
		StartedAt:       formatOptionalTime(view.StartedAt),
		EndedAt:         formatOptionalTime(view.EndedAt),
		CreatedAt:       formatTime(view.CreatedAt),
		UpdatedAt:       formatTime(view.UpdatedAt),
	}
}

func sessionFilterFromQuery(r *http.Request) (application.SessionFilter, error) {
	q := r.URL.Query()
	filter := application.SessionFilter{
		CourseID:     strings.TrimSpace(q.Get("course_id")),
		InstructorID: strings.TrimSpace(q.Get("instructor_id")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Statuses = append(filter.Statuses, application.SessionStatus(part))
			}
		}
	}

	vErr := &application.ValidationError{}
	parse := func(key string) *time.Time {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			if vErr.FieldErrors == nil {
				vErr.FieldErrors = map[string]string{}
			}
			vErr.FieldErrors[key] = "must be an RFC 3339 timestamp"
			return nil
		}
		return &t
	}
	filter.StartsAfter = parse("from")
	filter.StartsBefore = parse("to")
	if vErr.HasErrors() {
		return application.SessionFilter{}, vErr
	}
	return filter, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
