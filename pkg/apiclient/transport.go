package apiclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrUnauthenticated is returned when the server rejected the credentials and
// they could not be renewed. Local credentials have been cleared.
var ErrUnauthenticated = errors.New("apiclient: unauthenticated")

// SendFunc performs one HTTP exchange.
type SendFunc func(*http.Request) (*http.Response, error)

// AuthRetry attaches the bearer token to outgoing requests and renews it once
// when the server answers 401.
type AuthRetry struct {
	Store     CredentialStore
	Refresher Refresher

	// OnUnauthenticated is called after credentials are cleared.
	OnUnauthenticated func()
	Logger            *slog.Logger
}

// Do sends req through send. On a 401 it refreshes at most once and replays
// req once with the new access token. Without a refresh token, or when the
// refresh fails, credentials are cleared and ErrUnauthenticated is returned.
func (a *AuthRetry) Do(req *http.Request, send SendFunc) (*http.Response, error) {
	req, err := rewindable(req)
	if err != nil {
		return nil, err
	}

	creds, err := a.Store.Load()
	if err != nil {
		return nil, err
	}

	resp, err := send(withBearer(req, creds.AccessToken))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	discard(resp)

	logger := a.logger().With("method", req.Method, "path", req.URL.Path)
	if !creds.HasRefresh() {
		logger.InfoContext(req.Context(), "access rejected without refresh token")
		return nil, a.signOut(ErrNoRefreshToken)
	}

	renewed, err := creds.Refresh(req.Context(), a.Refresher)
	if err != nil {
		logger.WarnContext(req.Context(), "token refresh failed", "error", err)
		return nil, a.signOut(err)
	}
	if err := a.Store.Save(renewed); err != nil {
		return nil, fmt.Errorf("save refreshed credentials: %w", err)
	}
	logger.DebugContext(req.Context(), "token refreshed, replaying request")

	replay, err := rebuild(req)
	if err != nil {
		return nil, err
	}
	return send(withBearer(replay, renewed.AccessToken))
}

// RoundTripper wraps base so that every request goes through Do.
func (a *AuthRetry) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return a.Do(req, base.RoundTrip)
	})
}

func (a *AuthRetry) signOut(cause error) error {
	if err := a.Store.Clear(); err != nil {
		a.logger().Error("failed to clear credentials", "error", err)
	}
	if a.OnUnauthenticated != nil {
		a.OnUnauthenticated()
	}
	return fmt.Errorf("%w: %v", ErrUnauthenticated, cause)
}

func (a *AuthRetry) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func withBearer(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	return out
}

// rewindable returns req, or a copy with a buffered body when the body cannot
// be re-read for a replay. The caller's request is never modified.
func rewindable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	out.ContentLength = int64(len(data))
	return out, nil
}

func rebuild(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}
	return out, nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
