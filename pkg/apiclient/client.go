// Package apiclient is a Go client for the live-session API. It renews expired
// access tokens once per request and signs out when renewal is impossible.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	HTTPClient        *http.Client
	Store             CredentialStore
	OnUnauthenticated func()
	Logger            *slog.Logger
}

// Client calls the live-session API.
type Client struct {
	baseURL *url.URL
	plain   *http.Client
	authed  *http.Client
	store   CredentialStore
	logger  *slog.Logger
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base URL %q", cfg.BaseURL)
	}
	plain := cfg.HTTPClient
	if plain == nil {
		plain = &http.Client{Timeout: 30 * time.Second}
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore(Credentials{})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{baseURL: base, plain: plain, store: store, logger: logger}
	retry := &AuthRetry{
		Store:             store,
		Refresher:         c,
		OnUnauthenticated: cfg.OnUnauthenticated,
		Logger:            logger,
	}
	authed := *plain
	authed.Transport = retry.RoundTripper(plain.Transport)
	c.authed = &authed
	return c, nil
}

// Credentials returns the currently stored credentials.
func (c *Client) Credentials() (Credentials, error) {
	return c.store.Load()
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Success   bool              `json:"success"`
	Data      json.RawMessage   `json:"data"`
	Message   string            `json:"message"`
	ErrorCode string            `json:"error_code"`
	Errors    map[string]string `json:"errors"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
	Role             string    `json:"role"`
}

func (t tokenResponse) credentials() Credentials {
	return Credentials(t)
}

// Login authenticates and stores the issued credentials.
func (c *Client) Login(ctx context.Context, email, password string) (Credentials, error) {
	var tok tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, c.plain, http.MethodPost, "/api/v1/auth/login", body, &tok); err != nil {
		return Credentials{}, err
	}
	creds := tok.credentials()
	if err := c.store.Save(creds); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// Refresh exchanges a refresh token for a new pair. It does not touch the store.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	var tok tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.call(ctx, c.plain, http.MethodPost, "/api/v1/auth/refresh", body, &tok); err != nil {
		return Credentials{}, err
	}
	return tok.credentials(), nil
}

// Logout revokes the refresh token server side and clears local credentials.
func (c *Client) Logout(ctx context.Context) error {
	creds, err := c.store.Load()
	if err != nil {
		return err
	}
	var callErr error
	if creds.HasRefresh() {
		callErr = c.call(ctx, c.plain, http.MethodPost, "/api/v1/auth/logout", map[string]string{"refresh_token": creds.RefreshToken}, nil)
	}
	return errors.Join(callErr, c.store.Clear())
}

// Session mirrors the server's session representation.
type Session struct {
	ID              string     `json:"id"`
	CourseID        string     `json:"course_id"`
	InstructorID    string     `json:"instructor_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`
	SessionType     string     `json:"session_type"`
	Status          string     `json:"status"`
	DisplayStatus   string     `json:"display_status"`
	Timezone        string     `json:"timezone"`
	MeetingID       string     `json:"meeting_id"`
	JoinURL         string     `json:"join_url"`
	MaxParticipants int        `json:"max_participants"`
	StartedAt       *time.Time `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
}

// SessionInput is the body of create and update calls.
type SessionInput struct {
	CourseID        string    `json:"course_id"`
	InstructorID    string    `json:"instructor_id,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	SessionType     string    `json:"session_type"`
	Timezone        string    `json:"timezone,omitempty"`
	MaxParticipants int       `json:"max_participants,omitempty"`
}

// ListOptions filters ListSessions.
type ListOptions struct {
	CourseID     string
	InstructorID string
	Statuses     []string
	From         time.Time
	To           time.Time
}

// Join is the answer to a join call.
type Join struct {
	SessionID          string `json:"session_id"`
	JoinURL            string `json:"join_url"`
	Password           string `json:"password"`
	AttendanceRecorded bool   `json:"attendance_recorded"`
}

func (c *Client) ListSessions(ctx context.Context, opts ListOptions) ([]Session, error) {
	q := url.Values{}
	if opts.CourseID != "" {
		q.Set("course_id", opts.CourseID)
	}
	if opts.InstructorID != "" {
		q.Set("instructor_id", opts.InstructorID)
	}
	if len(opts.Statuses) > 0 {
		q.Set("status", strings.Join(opts.Statuses, ","))
	}
	if !opts.From.IsZero() {
		q.Set("from", opts.From.UTC().Format(time.RFC3339))
	}
	if !opts.To.IsZero() {
		q.Set("to", opts.To.UTC().Format(time.RFC3339))
	}
	path := "/api/v1/sessions"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out []Session
	err := c.call(ctx, c.authed, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	var out Session
	err := c.call(ctx, c.authed, http.MethodGet, sessionPath(id, ""), nil, &out)
	return out, err
}

func (c *Client) CreateSession(ctx context.Context, input SessionInput) (Session, error) {
	var out Session
	err := c.call(ctx, c.authed, http.MethodPost, "/api/v1/sessions", input, &out)
	return out, err
}

func (c *Client) StartSession(ctx context.Context, id string) (Session, error) {
	var out Session
	err := c.call(ctx, c.authed, http.MethodPost, sessionPath(id, "start"), nil, &out)
	return out, err
}

func (c *Client) EndSession(ctx context.Context, id string) (Session, error) {
	var out Session
	err := c.call(ctx, c.authed, http.MethodPost, sessionPath(id, "end"), nil, &out)
	return out, err
}

func (c *Client) CancelSession(ctx context.Context, id string) (Session, error) {
	var out Session
	err := c.call(ctx, c.authed, http.MethodPost, sessionPath(id, "cancel"), nil, &out)
	return out, err
}

func (c *Client) JoinSession(ctx context.Context, id string) (Join, error) {
	var out Join
	err := c.call(ctx, c.authed, http.MethodPost, sessionPath(id, "join"), nil, &out)
	return out, err
}

func sessionPath(id, action string) string {
	p := "/api/v1/sessions/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) call(ctx context.Context, hc *http.Client, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && errors.Is(urlErr.Err, ErrUnauthenticated) {
			return urlErr.Err
		}
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("undecodable response: %v", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Code: env.ErrorCode, Message: env.Message, Fields: env.Errors}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
