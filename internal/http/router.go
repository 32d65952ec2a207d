package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/live-sessions/internal/metrics"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultAuthRateLimit  = 20
)

// HealthCheck reports whether a dependency of the server is usable.
type HealthCheck func(ctx context.Context) error

// RouterConfig carries the handlers and middleware settings of the API.
// Nil handlers leave their routes unmounted.
type RouterConfig struct {
	Auth       *AuthHandler
	Sessions   *SessionHandler
	Recordings *RecordingHandler
	Attendance *AttendanceHandler
	Users      *UserHandler

	Tokens   TokenValidator
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Health   HealthCheck
	Logger   *slog.Logger

	// MediaDir is served under /media when set.
	MediaDir string

	CORSOrigins []string
	// AuthRateLimit is the number of /auth requests allowed per client IP and minute.
	AuthRateLimit  int
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	authLimit := cfg.AuthRateLimit
	if authLimit <= 0 {
		authLimit = defaultAuthRateLimit
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.WithMetrics)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsOrAll(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	responder := newResponder(logger)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(req.Context()); err != nil {
				responder.writeJSON(req.Context(), w, http.StatusServiceUnavailable, envelope{Success: false, Message: "unhealthy"})
				return
			}
		}
		responder.ok(req.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.Auth != nil {
			api.Route("/auth", func(ar chi.Router) {
				ar.Use(middleware.Timeout(timeout))
				ar.Use(httprate.LimitByIP(authLimit, time.Minute))
				ar.Post("/login", cfg.Auth.Login)
				ar.Post("/refresh", cfg.Auth.Refresh)
				ar.Post("/logout", cfg.Auth.Logout)
			})
		}

		api.Group(func(pr chi.Router) {
			pr.Use(RequireBearer(cfg.Tokens, logger))

			pr.Group(func(tr chi.Router) {
				tr.Use(middleware.Timeout(timeout))
				mountTimed(tr, cfg)
			})

			// Ingestion routes download, store and repair artifacts. They are bounded
			// by the recording service's ingest timeout, not the request timeout.
			if cfg.Recordings != nil {
				pr.Post("/sessions/{sessionID}/recordings", cfg.Recordings.Upload)
				pr.Post("/sessions/{sessionID}/recordings/download", cfg.Recordings.Download)
				pr.Post("/recordings/sync", cfg.Recordings.Sync)
				pr.Post("/recordings/{recordingID}/repair", cfg.Recordings.Repair)
			}
		})
	})

	if cfg.MediaDir != "" {
		r.Group(func(mr chi.Router) {
			mr.Use(RequireBearer(cfg.Tokens, logger))
			mr.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.MediaDir))))
		})
	}

	return r
}

func mountTimed(r chi.Router, cfg RouterConfig) {
	if cfg.Sessions != nil {
		r.Get("/sessions", cfg.Sessions.List)
		r.Post("/sessions", cfg.Sessions.Create)
		r.Get("/sessions/{sessionID}", cfg.Sessions.Get)
		r.Put("/sessions/{sessionID}", cfg.Sessions.Update)
		r.Delete("/sessions/{sessionID}", cfg.Sessions.Delete)
		r.Post("/sessions/{sessionID}/start", cfg.Sessions.Start)
		r.Post("/sessions/{sessionID}/end", cfg.Sessions.End)
		r.Post("/sessions/{sessionID}/cancel", cfg.Sessions.Cancel)
		r.Post("/sessions/{sessionID}/join", cfg.Sessions.Join)
	}
	if cfg.Attendance != nil {
		r.Post("/sessions/{sessionID}/leave", cfg.Attendance.Leave)
		r.Get("/sessions/{sessionID}/attendance", cfg.Attendance.List)
		r.Post("/sessions/{sessionID}/attendance", cfg.Attendance.Mark)
	}
	if cfg.Recordings != nil {
		r.Get("/sessions/{sessionID}/recordings", cfg.Recordings.ListBySession)
		r.Get("/recordings/{recordingID}", cfg.Recordings.Get)
		r.Patch("/recordings/{recordingID}", cfg.Recordings.Patch)
		r.Delete("/recordings/{recordingID}", cfg.Recordings.Delete)
	}
	if cfg.Users != nil {
		r.Get("/users", cfg.Users.List)
		r.Post("/users", cfg.Users.Create)
	}
}

func originsOrAll(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
