package provider

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

// Config configures the meeting provider client.
type Config struct {
	BaseURL     string
	AccessToken string
	UserID      string
	Timeout     time.Duration
	Retry       RetryConfig
	HTTPClient  *http.Client
	Logger      *slog.Logger
	// Observe receives one call per logical operation with its outcome.
	Observe func(operation, result string, elapsed time.Duration)
}

// Client talks to a Zoom-style meetings REST API.
type Client struct {
	baseURL *url.URL
	token   string
	userID  string
	timeout time.Duration
	retry   RetryConfig
	http    *http.Client
	logger  *slog.Logger
	observe func(operation, result string, elapsed time.Duration)
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("provider: invalid base URL %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	userID := cfg.UserID
	if userID == "" {
		userID = "me"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retry
	if retry.BackoffFactor == 0 {
		retry = DefaultRetryConfig()
	}

	return &Client{
		baseURL: base,
		token:   cfg.AccessToken,
		userID:  userID,
		timeout: timeout,
		retry:   retry,
		http:    httpClient,
		logger:  logger.With("component", "provider"),
		observe: cfg.Observe,
	}, nil
}

// CreateMeeting schedules a new meeting for the configured host.
func (c *Client) CreateMeeting(ctx context.Context, req MeetingRequest) (Meeting, error) {
	payload := toPayload(req)
	payload.Settings = &meetingSettings{HostVideo: true, WaitingRoom: true, AutoRecording: "cloud"}

	var resp meetingResponse
	err := c.call(ctx, "create_meeting", http.MethodPost, "/users/"+url.PathEscape(c.userID)+"/meetings", payload, &resp)
	if err != nil {
		return Meeting{}, err
	}
	if resp.ID == "" || resp.JoinURL == "" {
		return Meeting{}, fmt.Errorf("%w: create meeting response missing id or join url", ErrUnavailable)
	}
	return resp.meeting(), nil
}

// GetMeeting fetches a meeting, used to confirm its join URL.
func (c *Client) GetMeeting(ctx context.Context, meetingID string) (Meeting, error) {
	var resp meetingResponse
	if err := c.call(ctx, "get_meeting", http.MethodGet, meetingPath(meetingID), nil, &resp); err != nil {
		return Meeting{}, err
	}
	return resp.meeting(), nil
}

// UpdateMeeting propagates a new topic or time window.
func (c *Client) UpdateMeeting(ctx context.Context, meetingID string, req MeetingRequest) error {
	return c.call(ctx, "update_meeting", http.MethodPatch, meetingPath(meetingID), toPayload(req), nil)
}

// DeleteMeeting releases the meeting. A meeting already gone upstream counts as released.
func (c *Client) DeleteMeeting(ctx context.Context, meetingID string) error {
	err := c.call(ctx, "delete_meeting", http.MethodDelete, meetingPath(meetingID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// EndMeeting ends a meeting that is in progress.
func (c *Client) EndMeeting(ctx context.Context, meetingID string) error {
	body := map[string]string{"action": "end"}
	err := c.call(ctx, "end_meeting", http.MethodPut, meetingPath(meetingID)+"/status", body, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ListRecordings lists the recording files of a meeting. A meeting without
// recordings yields an empty slice.
func (c *Client) ListRecordings(ctx context.Context, meetingID string) ([]Recording, error) {
	var resp recordingsResponse
	err := c.call(ctx, "list_recordings", http.MethodGet, meetingPath(meetingID)+"/recordings", nil, &resp)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	recordings := make([]Recording, 0, len(resp.RecordingFiles))
	for _, f := range resp.RecordingFiles {
		recordings = append(recordings, f.recording())
	}
	return recordings, nil
}

// Download opens the recording at downloadURL. The caller closes the body.
// The body is streamed, so only connection setup is retried and the per-call
// timeout does not bound the transfer.
func (c *Client) Download(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	start := time.Now()
	var body io.ReadCloser
	err := withRetry(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
		c.authorize(req)
		resp, err := c.http.Do(req)
		if err != nil {
			return transportError(err)
		}
		if resp.StatusCode >= 300 {
			defer resp.Body.Close()
			return classifyStatus("download_recording", resp.StatusCode, readSnippet(resp.Body))
		}
		body = resp.Body
		return nil
	})
	c.record(ctx, "download_recording", err, time.Since(start))
	return body, err
}

func (c *Client) call(ctx context.Context, operation, method, path string, in, out any) error {
	start := time.Now()
	err := withRetry(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, operation, method, path, in, out)
	})
	c.record(ctx, operation, err, time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("provider %s: encode request: %w", operation, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	c.authorize(req)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return classifyStatus(operation, resp.StatusCode, readSnippet(resp.Body))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUnavailable, operation, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) record(ctx context.Context, operation string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
		c.logger.WarnContext(ctx, "provider call failed", "operation", operation, "error", err, "elapsed", elapsed)
	} else {
		c.logger.DebugContext(ctx, "provider call succeeded", "operation", operation, "elapsed", elapsed)
	}
	if c.observe != nil {
		c.observe(operation, result, elapsed)
	}
}

func meetingPath(id string) string {
	return "/meetings/" + url.PathEscape(id)
}

func transportError(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func readSnippet(r io.Reader) string {
	buf, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(buf))
}
