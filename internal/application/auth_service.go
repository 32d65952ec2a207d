package application

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshReuseWindow keeps a just-rotated refresh token redeemable so that
// concurrent refreshes from one client all succeed.
const refreshReuseWindow = 30 * time.Second

// CredentialStore exposes user credential lookup operations required by the auth service.
type CredentialStore interface {
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// AuthSessionRepository captures the persistence interactions for refresh sessions.
// GetAuthSessionByToken matches either the current or the previous refresh token.
type AuthSessionRepository interface {
	CreateAuthSession(ctx context.Context, session AuthSession) (AuthSession, error)
	GetAuthSession(ctx context.Context, id string) (AuthSession, error)
	GetAuthSessionByToken(ctx context.Context, token string) (AuthSession, error)
	UpdateAuthSession(ctx context.Context, session AuthSession) (AuthSession, error)
	RevokeAuthSession(ctx context.Context, id string, revokedAt time.Time) error
	DeleteExpiredAuthSessions(ctx context.Context, reference time.Time) error
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// TokenConfig configures access token signing.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type accessClaims struct {
	Role string `json:"role"`
	SID  string `json:"sid"`
	jwt.RegisteredClaims
}

// AuthService issues and validates bearer credentials.
type AuthService struct {
	credentials    CredentialStore
	sessions       AuthSessionRepository
	verifyPassword PasswordVerifier
	tokenGenerator func() string
	idGenerator    func() string
	now            func() time.Time
	cfg            TokenConfig
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, sessions AuthSessionRepository, verify PasswordVerifier, idGenerator func() string, now func() time.Time, cfg TokenConfig) *AuthService {
	return NewAuthServiceWithLogger(credentials, sessions, verify, idGenerator, now, cfg, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, sessions AuthSessionRepository, verify PasswordVerifier, idGenerator func() string, now func() time.Time, cfg TokenConfig, logger *slog.Logger) *AuthService {
	if verify == nil {
		verify = VerifyPassword
	}
	if idGenerator == nil {
		idGenerator = RandomToken
	}
	if now == nil {
		now = time.Now
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "live-sessions"
	}
	return &AuthService{
		credentials:    credentials,
		sessions:       sessions,
		verifyPassword: verify,
		tokenGenerator: RandomToken,
		idGenerator:    idGenerator,
		now:            now,
		cfg:            cfg,
		logger:         defaultLogger(logger),
	}
}

// RandomToken returns 32 random bytes encoded for use in URLs and headers.
func RandomToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

func (s *AuthService) ready() error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.credentials == nil {
		return fmt.Errorf("credential store not configured")
	}
	if s.sessions == nil {
		return fmt.Errorf("auth session repository not configured")
	}
	if len(s.cfg.Secret) == 0 {
		return fmt.Errorf("token secret not configured")
	}
	return nil
}

// Login validates credentials and issues an access token with a fresh refresh token.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (pair TokenPair, err error) {
	if err = s.ready(); err != nil {
		return
	}

	email := strings.TrimSpace(strings.ToLower(params.Email))
	logger := s.loggerWith(ctx, "Login", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", pair.Principal.UserID).InfoContext(ctx, "authentication succeeded")
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrArtifactMissing) {
			err = ErrInvalidCredentials
		}
		return
	}
	if creds.Disabled {
		err = ErrAccountDisabled
		return
	}
	if verifyErr := s.verifyPassword(creds.PasswordHash, params.Password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}

	now := s.now()
	if err = s.sessions.DeleteExpiredAuthSessions(ctx, now); err != nil {
		return
	}

	var session AuthSession
	session, err = s.sessions.CreateAuthSession(ctx, AuthSession{
		ID:           s.idGenerator(),
		UserID:       creds.User.ID,
		RefreshToken: s.tokenGenerator(),
		ExpiresAt:    now.Add(s.cfg.RefreshTTL),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return
	}

	pair, err = s.issue(creds.User, session, session.RefreshToken, now)
	return
}

// Refresh exchanges a refresh token for a new pair, rotating the refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (pair TokenPair, err error) {
	if err = s.ready(); err != nil {
		return
	}

	token := strings.TrimSpace(refreshToken)
	logger := s.loggerWith(ctx, "Refresh", "token_provided", token != "")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "token refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", pair.Principal.UserID).InfoContext(ctx, "token refreshed")
	}()

	if token == "" {
		err = ErrUnauthenticated
		return
	}

	var session AuthSession
	session, err = s.sessions.GetAuthSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrArtifactMissing) {
			err = ErrUnauthenticated
		}
		return
	}

	now := s.now()
	if session.RevokedAt != nil {
		err = ErrUnauthenticated
		return
	}
	if !session.ExpiresAt.After(now) {
		err = ErrAuthExpired
		return
	}

	var user User
	user, err = s.credentials.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrArtifactMissing) {
			err = ErrUnauthenticated
		}
		return
	}

	if token != session.RefreshToken {
		if session.RotatedAt == nil || now.Sub(*session.RotatedAt) > refreshReuseWindow {
			if revokeErr := s.sessions.RevokeAuthSession(ctx, session.ID, now); revokeErr != nil {
				logger.WarnContext(ctx, "failed to revoke session after token reuse", "error", revokeErr)
			}
			err = ErrUnauthenticated
			return
		}
		pair, err = s.issue(user, session, session.RefreshToken, now)
		return
	}

	rotated := session
	rotated.PreviousToken = session.RefreshToken
	rotated.RefreshToken = s.tokenGenerator()
	rotated.RotatedAt = &now
	rotated.ExpiresAt = now.Add(s.cfg.RefreshTTL)
	rotated.UpdatedAt = now

	session, err = s.sessions.UpdateAuthSession(ctx, rotated)
	if err != nil {
		return
	}
	pair, err = s.issue(user, session, session.RefreshToken, now)
	return
}

// Logout revokes the session behind a refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.ready(); err != nil {
		return err
	}

	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return ErrUnauthenticated
	}
	logger := s.loggerWith(ctx, "Logout")

	session, err := s.sessions.GetAuthSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrArtifactMissing) {
			return nil
		}
		logger.ErrorContext(ctx, "failed to look up session", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if err := s.sessions.RevokeAuthSession(ctx, session.ID, s.now()); err != nil {
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "session revoked", "session_id", session.ID)
	return nil
}

// PruneExpiredSessions removes refresh sessions whose expiry has passed.
func (s *AuthService) PruneExpiredSessions(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.sessions.DeleteExpiredAuthSessions(ctx, s.now())
}

// ValidateAccessToken verifies a bearer token and returns its principal.
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (principal Principal, err error) {
	if err = s.ready(); err != nil {
		return
	}

	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		err = ErrUnauthenticated
		return
	}

	claims := &accessClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if _, parseErr := parser.ParseWithClaims(trimmed, claims, func(*jwt.Token) (interface{}, error) {
		return s.cfg.Secret, nil
	}); parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			err = ErrAuthExpired
			return
		}
		err = fmt.Errorf("%w: %v", ErrUnauthenticated, parseErr)
		return
	}

	role := Role(claims.Role)
	if claims.Subject == "" || !role.Valid() {
		err = ErrUnauthenticated
		return
	}

	var session AuthSession
	session, err = s.sessions.GetAuthSession(ctx, claims.SID)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrArtifactMissing) {
			err = ErrUnauthenticated
		}
		return
	}
	if session.RevokedAt != nil || session.UserID != claims.Subject {
		err = ErrUnauthenticated
		return
	}

	principal = Principal{UserID: claims.Subject, Role: role}
	return
}

func (s *AuthService) issue(user User, session AuthSession, refreshToken string, now time.Time) (TokenPair, error) {
	expires := now.Add(s.cfg.AccessTTL)
	claims := accessClaims{
		Role: string(user.Role),
		SID:  session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        RandomToken(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      signed,
		AccessExpiresAt:  expires,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: session.ExpiresAt,
		Principal:        Principal{UserID: user.ID, Role: user.Role},
	}, nil
}
