package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/live-sessions/internal/application"
)

type authService interface {
	Login(ctx context.Context, params application.LoginParams) (application.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (application.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// AuthHandler serves login, refresh and logout.
type AuthHandler struct {
	service   authService
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(service authService, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Login", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode login request", "error", err)
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	logger := h.log(r.Context(), "Login", "email", email)

	pair, err := h.service.Login(r.Context(), application.LoginParams{Email: email, Password: req.Password})
	if err != nil {
		logger.WarnContext(r.Context(), "login rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("user_id", pair.Principal.UserID).InfoContext(r.Context(), "user authenticated")
	h.responder.ok(r.Context(), w, http.StatusOK, toTokenDTO(pair))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Refresh")
	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		logger.WarnContext(r.Context(), "refresh rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("user_id", pair.Principal.UserID).InfoContext(r.Context(), "tokens refreshed")
	h.responder.ok(r.Context(), w, http.StatusOK, toTokenDTO(pair))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.log(r.Context(), "Logout").WarnContext(r.Context(), "logout failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.okWithMessage(r.Context(), w, http.StatusOK, nil, "signed out")
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenDTO struct {
	AccessToken      string `json:"access_token"`
	AccessExpiresAt  string `json:"access_expires_at"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresAt string `json:"refresh_expires_at"`
	TokenType        string `json:"token_type"`
	UserID           string `json:"user_id"`
	Role             string `json:"role"`
}

func toTokenDTO(pair application.TokenPair) tokenDTO {
	return tokenDTO{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt.UTC().Format(time.RFC3339),
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt.UTC().Format(time.RFC3339),
		TokenType:        "Bearer",
		UserID:           pair.Principal.UserID,
		Role:             string(pair.Principal.Role),
	}
}

func (r responder) handleDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBadRequestBody) {
		r.writeJSON(ctx, w, http.StatusBadRequest, envelope{Success: false, ErrorCode: "bad_request", Message: errBadRequestBody.Error()})
		return
	}
	r.handleServiceError(ctx, w, err)
}
