package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/live-sessions/internal/application"
)

func TestRequireBearer(t *testing.T) {
	t.Parallel()

	validator := tokenValidatorStub{principals: map[string]application.Principal{"good": instructor}}

	tests := []struct {
		name           string
		header         string
		validator      tokenValidatorStub
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "missing credentials",
			validator:      validator,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "unauthenticated",
		},
		{
			name:           "non bearer scheme",
			header:         "Basic Zm9vOmJhcg==",
			validator:      validator,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "unauthenticated",
		},
		{
			name:           "unknown token",
			header:         "Bearer forged",
			validator:      validator,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "unauthenticated",
		},
		{
			name:           "expired token",
			header:         "Bearer good",
			validator:      tokenValidatorStub{err: application.ErrAuthExpired},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "auth_expired",
		},
		{
			name:           "valid token with lowercase scheme",
			header:         "bearer good",
			validator:      validator,
			expectedStatus: http.StatusNoContent,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var seen application.Principal
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})
			handler := RequireBearer(tc.validator, nil)(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.expectedStatus {
				t.Fatalf("expected %d, got %d", tc.expectedStatus, rec.Code)
			}
			if tc.expectedCode != "" {
				var env testEnvelope
				if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
					t.Fatalf("decode envelope: %v", err)
				}
				if env.ErrorCode != tc.expectedCode {
					t.Fatalf("expected code %q, got %q", tc.expectedCode, env.ErrorCode)
				}
				return
			}
			if seen != instructor {
				t.Fatalf("expected principal in context, got %+v", seen)
			}
		})
	}
}

func TestRequestLoggerCarriesRequestID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var fromCtx *slog.Logger
	handler := middleware.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = LoggerFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings/sync", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if fromCtx == nil {
		t.Fatal("expected logger in request context")
	}
	out := buf.String()
	for _, want := range []string{`"request_id":"req-42"`, `"status":202`, `"path":"/api/v1/recordings/sync"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in log output:\n%s", want, out)
		}
	}
}

func TestHandleServiceErrorAttachesFieldErrors(t *testing.T) {
	t.Parallel()

	err := &application.ValidationError{FieldErrors: map[string]string{"schedule": "overlaps another session"}}
	rec := httptest.NewRecorder()
	newResponder(nil).handleServiceError(context.Background(), rec, err)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Success || env.ErrorCode != "validation" || env.Errors["schedule"] == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
