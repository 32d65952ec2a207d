package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/live-sessions/internal/application"
)

type attendanceService interface {
	Mark(ctx context.Context, params application.MarkAttendanceParams) (application.Attendance, bool, error)
	Leave(ctx context.Context, principal application.Principal, sessionID string) (application.Attendance, error)
	List(ctx context.Context, principal application.Principal, sessionID string) ([]application.Attendance, error)
}

// AttendanceHandler serves session attendance.
type AttendanceHandler struct {
	service   attendanceService
	responder responder
	logger    *slog.Logger
}

func NewAttendanceHandler(service attendanceService, logger *slog.Logger) *AttendanceHandler {
	base := defaultLogger(logger)
	return &AttendanceHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AttendanceHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AttendanceHandler", operation, attrs...)
}

func (h *AttendanceHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	records, err := h.service.List(r.Context(), principal, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]attendanceDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, toAttendanceDTO(rec))
	}
	h.responder.ok(r.Context(), w, http.StatusOK, out)
}

// Mark records attendance for the caller, or for user_id when the caller manages
// the session. It answers 201 for a new row and 200 when one already existed.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req markRequest
	if r.ContentLength != 0 && r.Body != http.NoBody {
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.handleDecodeError(r.Context(), w, err)
			return
		}
	}

	record, created, err := h.service.Mark(r.Context(), application.MarkAttendanceParams{
		Principal: principal,
		SessionID: sessionID,
		UserID:    req.UserID,
	})
	if err != nil {
		h.log(r.Context(), "Mark", "session_id", sessionID).WarnContext(r.Context(), "attendance mark failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.responder.ok(r.Context(), w, status, toAttendanceDTO(record))
}

func (h *AttendanceHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	record, err := h.service.Leave(r.Context(), principal, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, toAttendanceDTO(record))
}

type markRequest struct {
	UserID string `json:"user_id"`
}

type attendanceDTO struct {
	SessionID string  `json:"session_id"`
	UserID    string  `json:"user_id"`
	JoinedAt  string  `json:"joined_at"`
	LeftAt    *string `json:"left_at,omitempty"`
}

func toAttendanceDTO(rec application.Attendance) attendanceDTO {
	return attendanceDTO{
		SessionID: rec.SessionID,
		UserID:    rec.UserID,
		JoinedAt:  formatTime(rec.JoinedAt),
		LeftAt:    formatOptionalTime(rec.LeftAt),
	}
}
