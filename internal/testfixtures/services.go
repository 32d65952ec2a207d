package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/live-sessions/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// SessionServiceDeps captures dependencies for constructing a session service.
type SessionServiceDeps struct {
	Sessions application.SessionRepository
	Meetings application.MeetingProvider
	Options  application.SessionOptions
}

// NewSessionService builds the session state machine on the factory clock.
func (f *ServiceFactory) NewSessionService(deps SessionServiceDeps) *application.SessionService {
	opts := deps.Options
	if opts.Logger == nil {
		opts.Logger = f.Logger
	}
	return application.NewSessionServiceWithOptions(deps.Sessions, deps.Meetings, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), opts)
}

// NewRecordingService builds the ingestion pipeline, filling the id and clock
// dependencies the caller left empty.
func (f *ServiceFactory) NewRecordingService(deps application.RecordingDeps, opts application.RecordingOptions) *application.RecordingService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = f.IDGenerator.NextFunc()
	}
	if deps.Now == nil {
		deps.Now = f.Clock.NowFunc()
	}
	if opts.Logger == nil {
		opts.Logger = f.Logger
	}
	return application.NewRecordingServiceWithOptions(deps, opts)
}

// NewAttendanceService builds the attendance tracker.
func (f *ServiceFactory) NewAttendanceService(sessions application.SessionLister, attendance application.AttendanceRepository) *application.AttendanceService {
	return application.NewAttendanceServiceWithLogger(sessions, attendance, f.Clock.NowFunc(), f.Logger)
}

// NewUserService builds a user service.
func (f *ServiceFactory) NewUserService(users application.UserRepository) *application.UserService {
	return application.NewUserService(users, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// AuthServiceDeps captures dependencies for constructing an auth service.
type AuthServiceDeps struct {
	Credentials    application.CredentialStore
	Sessions       application.AuthSessionRepository
	PasswordVerify application.PasswordVerifier
	Tokens         application.TokenConfig
}

// NewAuthService builds an auth service. A zero token config gets a fixed test secret.
func (f *ServiceFactory) NewAuthService(deps AuthServiceDeps) *application.AuthService {
	tokens := deps.Tokens
	if len(tokens.Secret) == 0 {
		tokens.Secret = []byte("testfixtures-secret")
	}
	return application.NewAuthServiceWithLogger(
		deps.Credentials,
		deps.Sessions,
		deps.PasswordVerify,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		tokens,
		f.Logger,
	)
}
