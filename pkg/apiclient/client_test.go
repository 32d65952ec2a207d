package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeServer issues tokens and guards /api/v1/sessions with the current access token.
type fakeServer struct {
	mu            sync.Mutex
	validAccess   string
	refreshToken  string
	refreshCalls  int
	sessionCalls  int
	refreshStatus int
	rejectAlways  bool
	lastBody      string
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.refreshCalls++

		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.refreshStatus != 0 || body.RefreshToken != f.refreshToken {
			writeEnvelope(w, http.StatusUnauthorized, map[string]any{"success": false, "error_code": "unauthenticated"})
			return
		}
		f.validAccess = "access-2"
		f.refreshToken = "refresh-2"
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"access_token":       "access-2",
			"access_expires_at":  time.Now().Add(15 * time.Minute).UTC().Format(time.RFC3339),
			"refresh_token":      "refresh-2",
			"refresh_expires_at": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
			"user_id":            "inst-1",
			"role":               "instructor",
		}})
	})
	mux.HandleFunc("/api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sessionCalls++

		data, _ := io.ReadAll(r.Body)
		f.lastBody = string(data)
		if f.rejectAlways || r.Header.Get("Authorization") != "Bearer "+f.validAccess {
			writeEnvelope(w, http.StatusUnauthorized, map[string]any{"success": false, "error_code": "auth_expired"})
			return
		}
		if r.Method == http.MethodPost {
			writeEnvelope(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"id": "sess-9", "status": "scheduled"}})
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": []map[string]any{{"id": "sess-1", "status": "live", "display_status": "live"}}})
	})
	return mux
}

func (f *fakeServer) counts() (refresh, sessions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.sessionCalls
}

func writeEnvelope(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, f *fakeServer, creds Credentials) (*Client, *MemoryStore, *int) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	store := NewMemoryStore(creds)
	signedOut := 0
	client, err := New(Config{
		BaseURL:           srv.URL,
		HTTPClient:        srv.Client(),
		Store:             store,
		OnUnauthenticated: func() { signedOut++ },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client, store, &signedOut
}

func TestClient_RefreshesOnceAndReplays(t *testing.T) {
	t.Parallel()

	f := &fakeServer{validAccess: "access-2-not-yet", refreshToken: "refresh-1"}
	client, store, signedOut := newTestClient(t, f, Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"})

	created, err := client.CreateSession(context.Background(), SessionInput{CourseID: "c-1", Title: "Week 2", DurationMinutes: 60, SessionType: "live-class"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if created.ID != "sess-9" {
		t.Fatalf("unexpected session %+v", created)
	}
	refreshCalls, sessionCalls := f.counts()
	if refreshCalls != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", refreshCalls)
	}
	if sessionCalls != 2 {
		t.Fatalf("expected original call plus one replay, got %d", sessionCalls)
	}
	f.mu.Lock()
	lastBody := f.lastBody
	f.mu.Unlock()
	if !strings.Contains(lastBody, `"title":"Week 2"`) {
		t.Fatalf("expected replayed body to be intact, got %q", lastBody)
	}
	stored, _ := store.Load()
	if stored.AccessToken != "access-2" || stored.RefreshToken != "refresh-2" {
		t.Fatalf("expected rotated credentials to be stored, got %+v", stored)
	}
	if *signedOut != 0 {
		t.Fatalf("did not expect sign out, got %d", *signedOut)
	}
}

func TestClient_NoRefreshTokenClearsCredentials(t *testing.T) {
	t.Parallel()

	f := &fakeServer{validAccess: "something-else"}
	client, store, signedOut := newTestClient(t, f, Credentials{AccessToken: "stale"})

	_, err := client.ListSessions(context.Background(), ListOptions{})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if refreshCalls, sessionCalls := f.counts(); sessionCalls != 1 || refreshCalls != 0 {
		t.Fatalf("expected a single request and no refresh, got %d/%d", sessionCalls, refreshCalls)
	}
	if stored, _ := store.Load(); !stored.Empty() {
		t.Fatalf("expected cleared credentials, got %+v", stored)
	}
	if *signedOut != 1 {
		t.Fatalf("expected one sign out callback, got %d", *signedOut)
	}
}

func TestClient_RefreshFailureClearsWithoutLooping(t *testing.T) {
	t.Parallel()

	f := &fakeServer{validAccess: "x", refreshToken: "refresh-1", refreshStatus: http.StatusUnauthorized}
	client, store, signedOut := newTestClient(t, f, Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"})

	_, err := client.ListSessions(context.Background(), ListOptions{Statuses: []string{"live"}})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if refreshCalls, sessionCalls := f.counts(); refreshCalls != 1 || sessionCalls != 1 {
		t.Fatalf("expected one refresh and no replay, got refresh=%d sessions=%d", refreshCalls, sessionCalls)
	}
	if stored, _ := store.Load(); !stored.Empty() {
		t.Fatalf("expected cleared credentials, got %+v", stored)
	}
	if *signedOut != 1 {
		t.Fatalf("expected sign out, got %d", *signedOut)
	}
}

func TestClient_ReplayRejectedIsNotRetriedAgain(t *testing.T) {
	t.Parallel()

	f := &fakeServer{refreshToken: "refresh-1", rejectAlways: true}
	client, _, _ := newTestClient(t, f, Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"})

	_, err := client.ListSessions(context.Background(), ListOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected the replay's 401 to surface, got %v", err)
	}
	if refreshCalls, sessionCalls := f.counts(); refreshCalls != 1 || sessionCalls != 2 {
		t.Fatalf("expected bounded retry, got refresh=%d sessions=%d", refreshCalls, sessionCalls)
	}
}

func TestAuthRetry_Do(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(Credentials{AccessToken: "a1", RefreshToken: "r1"})
	retry := &AuthRetry{
		Store: store,
		Refresher: refresherFunc(func(ctx context.Context, token string) (Credentials, error) {
			return Credentials{AccessToken: "a2", RefreshToken: "r2"}, nil
		}),
	}

	var seen []string
	send := func(req *http.Request) (*http.Response, error) {
		seen = append(seen, req.Header.Get("Authorization"))
		status := http.StatusUnauthorized
		if len(seen) > 1 {
			status = http.StatusOK
		}
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("{}")), Request: req}, nil
	}

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/api/v1/sessions", nil)
	resp, err := retry.Do(req, send)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected replay response, got %d", resp.StatusCode)
	}
	if len(seen) != 2 || seen[0] != "Bearer a1" || seen[1] != "Bearer a2" {
		t.Fatalf("unexpected authorization headers %v", seen)
	}
	if req.Header.Get("Authorization") != "" {
		t.Fatal("expected the caller's request to be left untouched")
	}
}

func TestAuthRetry_ReplaysStreamedBodyWithoutTouchingCaller(t *testing.T) {
	t.Parallel()

	retry := &AuthRetry{
		Store: NewMemoryStore(Credentials{AccessToken: "a1", RefreshToken: "r1"}),
		Refresher: refresherFunc(func(ctx context.Context, token string) (Credentials, error) {
			return Credentials{AccessToken: "a2", RefreshToken: "r2"}, nil
		}),
	}

	var bodies []string
	send := func(req *http.Request) (*http.Response, error) {
		data, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(data))
		status := http.StatusUnauthorized
		if len(bodies) > 1 {
			status = http.StatusOK
		}
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("{}")), Request: req}, nil
	}

	body := io.NopCloser(strings.NewReader(`{"title":"Week 1"}`))
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid/api/v1/sessions", body)
	req.GetBody = nil
	resp, err := retry.RoundTripper(roundTripFunc(send)).RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected replay response, got %d", resp.StatusCode)
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[1] != `{"title":"Week 1"}` {
		t.Fatalf("expected the body to be replayed verbatim, got %q", bodies)
	}
	if req.Body != body || req.GetBody != nil {
		t.Fatal("expected the caller's request body fields to be left untouched")
	}
}

type refresherFunc func(ctx context.Context, token string) (Credentials, error)

func (f refresherFunc) Refresh(ctx context.Context, token string) (Credentials, error) {
	return f(ctx, token)
}

func TestCredentials_RefreshRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := Credentials{AccessToken: "a"}.Refresh(context.Background(), nil)
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "credentials.json")
	store := NewFileStore(path)

	empty, err := store.Load()
	if err != nil || !empty.Empty() {
		t.Fatalf("expected empty credentials for a missing file, got %+v %v", empty, err)
	}

	want := Credentials{AccessToken: "a", RefreshToken: "r", UserID: "u", Role: "student", AccessExpiresAt: time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", perm)
	}

	got, err := NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.AccessExpiresAt.Equal(want.AccessExpiresAt) || got.RefreshToken != "r" || got.Role != "student" {
		t.Fatalf("unexpected credentials %+v", got)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, got %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("expected second Clear to succeed, got %v", err)
	}
}
