package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/live-sessions/internal/application"
)

var (
	errBadRequestBody = errors.New("request body is malformed")
	errMissingToken   = errors.New("a bearer token is required")
	errMissingFile    = errors.New("a recording file is required")
)

// envelope is the uniform response body of every endpoint.
type envelope struct {
	Success   bool              `json:"success"`
	Data      any               `json:"data,omitempty"`
	Message   string            `json:"message,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload envelope) {
	if w == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) ok(ctx context.Context, w http.ResponseWriter, status int, data any) {
	r.writeJSON(ctx, w, status, envelope{Success: true, Data: data})
}

func (r responder) okWithMessage(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	r.writeJSON(ctx, w, status, envelope{Success: true, Data: data, Message: message})
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}
	r.writeJSON(ctx, w, status, envelope{Success: false, Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	kind := application.ErrorKind(err)
	status := statusForKind(kind)
	body := envelope{Success: false, ErrorCode: kind, Message: messageForKind(kind, err)}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) && vErr.HasErrors() {
		body.Errors = vErr.FieldErrors
	}
	if status >= http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err, "error_kind", kind)
	}
	r.writeJSON(ctx, w, status, body)
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

// statusForKind maps application error kinds to HTTP status codes.
func statusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusUnprocessableEntity
	case "artifact_missing":
		return http.StatusNotFound
	case "concurrent_modification", "invalid_transition", "has_recordings", "already_exists":
		return http.StatusConflict
	case "provider_unavailable":
		return http.StatusBadGateway
	case "unauthenticated", "auth_expired", "invalid_credentials", "account_disabled":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func messageForKind(kind string, err error) string {
	switch kind {
	case "validation":
		return "the request contains invalid fields"
	case "artifact_missing":
		return "the requested resource was not found"
	case "concurrent_modification", "invalid_transition", "has_recordings":
		return err.Error()
	case "already_exists":
		return "the resource already exists"
	case "provider_unavailable":
		return "the meeting provider is unavailable, retry later"
	case "auth_expired":
		return "the access token has expired"
	case "unauthenticated":
		return "authentication required"
	case "invalid_credentials":
		return "email or password is incorrect"
	case "account_disabled":
		return "the account is disabled"
	case "forbidden":
		return "you are not allowed to perform this operation"
	default:
		return statusMessage(http.StatusInternalServerError)
	}
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request is malformed"
	case http.StatusUnauthorized:
		return "authentication required"
	case http.StatusNotFound:
		return "the requested resource was not found"
	default:
		return "internal server error"
	}
}
