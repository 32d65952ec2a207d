package application

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/example/live-sessions/internal/mediarepair"
	"github.com/example/live-sessions/internal/persistence"
	"github.com/example/live-sessions/internal/storage"
)

var referenceTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func sequence(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func instructor(id string) Principal { return Principal{UserID: id, Role: RoleInstructor} }
func student(id string) Principal    { return Principal{UserID: id, Role: RoleStudent} }

func scheduledSession(id, instructorID string, start time.Time, minutes int) Session {
	return Session{
		ID:              id,
		CourseID:        "course-1",
		InstructorID:    instructorID,
		Title:           "Session " + id,
		StartTime:       start,
		DurationMinutes: minutes,
		Type:            SessionTypeLiveClass,
		Status:          SessionScheduled,
		Timezone:        "UTC",
		MeetingID:       "m-" + id,
		JoinURL:         "https://meet.example/j/m-" + id,
		CreatedAt:       start.Add(-24 * time.Hour),
		UpdatedAt:       start.Add(-24 * time.Hour),
	}
}

// sessionRepoStub honours the conditional write contract of SessionRepository.
type sessionRepoStub struct {
	mu        sync.Mutex
	sessions  map[string]Session
	createErr error
	deleteErr error
	updates   int

	// beforeUpdate runs inside UpdateSession before the status comparison.
	beforeUpdate func(stored map[string]Session)
}

func newSessionRepoStub(seed ...Session) *sessionRepoStub {
	repo := &sessionRepoStub{sessions: make(map[string]Session)}
	for _, s := range seed {
		repo.sessions[s.ID] = s
	}
	return repo
}

func (r *sessionRepoStub) CreateSession(ctx context.Context, session Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return Session{}, r.createErr
	}
	if _, ok := r.sessions[session.ID]; ok {
		return Session{}, persistence.ErrDuplicate
	}
	r.sessions[session.ID] = session
	return session, nil
}

func (r *sessionRepoStub) GetSession(ctx context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	return s, nil
}

func (r *sessionRepoStub) UpdateSession(ctx context.Context, session Session, expected SessionStatus) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beforeUpdate != nil {
		r.beforeUpdate(r.sessions)
	}
	current, ok := r.sessions[session.ID]
	if !ok {
		return Session{}, persistence.ErrNotFound
	}
	if current.Status != expected {
		return Session{}, persistence.ErrConflict
	}
	r.sessions[session.ID] = session
	r.updates++
	return session, nil
}

func (r *sessionRepoStub) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.sessions[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *sessionRepoStub) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, s := range r.sessions {
		if filter.CourseID != "" && s.CourseID != filter.CourseID {
			continue
		}
		if filter.InstructorID != "" && s.InstructorID != filter.InstructorID {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, st := range filter.Statuses {
				if s.Status == st {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		if filter.StartsAfter != nil && s.StartTime.Before(*filter.StartsAfter) {
			continue
		}
		if filter.StartsBefore != nil && !s.StartTime.Before(*filter.StartsBefore) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *sessionRepoStub) status(id string) SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id].Status
}

// providerStub is an in-memory meeting provider that counts calls.
type providerStub struct {
	mu sync.Mutex

	meetings   map[string]Meeting
	recordings map[string][]ProviderRecording
	files      map[string][]byte

	created, gets, updated, deleted, ended, downloads int

	createErr, getErr, updateErr, deleteErr, endErr, listErr, downloadErr error
	getDelay                                                             time.Duration
}

func newProviderStub() *providerStub {
	return &providerStub{
		meetings:   make(map[string]Meeting),
		recordings: make(map[string][]ProviderRecording),
		files:      make(map[string][]byte),
	}
}

func (p *providerStub) seedMeeting(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meetings[id] = Meeting{ID: id, JoinURL: "https://meet.example/j/" + id, Password: "pw"}
}

func (p *providerStub) CreateMeeting(ctx context.Context, spec MeetingSpec) (Meeting, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return Meeting{}, p.createErr
	}
	p.created++
	id := fmt.Sprintf("created-%d", p.created)
	m := Meeting{ID: id, JoinURL: "https://meet.example/j/" + id, Password: "pw"}
	p.meetings[id] = m
	return m, nil
}

func (p *providerStub) GetMeeting(ctx context.Context, meetingID string) (Meeting, error) {
	if p.getDelay > 0 {
		time.Sleep(p.getDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	if p.getErr != nil {
		return Meeting{}, p.getErr
	}
	m, ok := p.meetings[meetingID]
	if !ok {
		return Meeting{}, ErrMeetingNotFound
	}
	return m, nil
}

func (p *providerStub) UpdateMeeting(ctx context.Context, meetingID string, spec MeetingSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	p.updated++
	return nil
}

func (p *providerStub) DeleteMeeting(ctx context.Context, meetingID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deleted++
	delete(p.meetings, meetingID)
	return nil
}

func (p *providerStub) EndMeeting(ctx context.Context, meetingID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endErr != nil {
		return p.endErr
	}
	p.ended++
	return nil
}

func (p *providerStub) ListRecordings(ctx context.Context, meetingID string) ([]ProviderRecording, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]ProviderRecording(nil), p.recordings[meetingID]...), nil
}

func (p *providerStub) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.downloadErr != nil {
		return nil, p.downloadErr
	}
	p.downloads++
	data, ok := p.files[url]
	if !ok {
		return nil, fmt.Errorf("no file at %s", url)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *providerStub) counts() (created, gets, deleted, ended int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, p.gets, p.deleted, p.ended
}

// recordingRepoStub enforces the per-session provider recording id uniqueness.
type recordingRepoStub struct {
	mu        sync.Mutex
	records   map[string]Recording
	createErr error
}

func newRecordingRepoStub(seed ...Recording) *recordingRepoStub {
	repo := &recordingRepoStub{records: make(map[string]Recording)}
	for _, r := range seed {
		repo.records[r.ID] = r
	}
	return repo
}

func (r *recordingRepoStub) CreateRecording(ctx context.Context, rec Recording) (Recording, error) {
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return Recording{}, r.createErr
	}
	for _, existing := range r.records {
		if rec.ProviderRecordingID != "" && existing.SessionID == rec.SessionID && existing.ProviderRecordingID == rec.ProviderRecordingID {
			return Recording{}, persistence.ErrDuplicate
		}
	}
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *recordingRepoStub) GetRecording(ctx context.Context, id string) (Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return Recording{}, persistence.ErrNotFound
	}
	return rec, nil
}

func (r *recordingRepoStub) UpdateRecording(ctx context.Context, rec Recording) (Recording, error) {
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return Recording{}, persistence.ErrNotFound
	}
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *recordingRepoStub) DeleteRecording(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *recordingRepoStub) ListRecordingsBySession(ctx context.Context, sessionID string) ([]Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Recording
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *recordingRepoStub) ListRecordingsByRepairStatus(ctx context.Context, status RepairStatus) ([]Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Recording
	for _, rec := range r.records {
		if rec.RepairStatus == status {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *recordingRepoStub) IncrementViewCount(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return persistence.ErrNotFound
	}
	rec.ViewCount++
	r.records[id] = rec
	return nil
}

func (r *recordingRepoStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// repairerStub reports a fixed detection result and repair outcome.
// A non-zero delay makes Repair take that long unless ctx ends first.
type repairerStub struct {
	mu     sync.Mutex
	needs  bool
	report mediarepair.Report
	err    error
	delay  time.Duration
	calls  []string
}

func (r *repairerStub) NeedsRepair(path string) (bool, error) {
	return r.needs, nil
}

func (r *repairerStub) Repair(ctx context.Context, path string) (mediarepair.Report, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return mediarepair.Report{Path: path, Outcome: mediarepair.OutcomeFailed}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, path)
	report := r.report
	report.Path = path
	return report, r.err
}

func (r *repairerStub) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type queueStub struct {
	mu  sync.Mutex
	ids []string
	// full makes Enqueue refuse work.
	full bool
}

func (q *queueStub) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

type attendanceRepoStub struct {
	mu      sync.Mutex
	records map[string]Attendance
}

func newAttendanceRepoStub() *attendanceRepoStub {
	return &attendanceRepoStub{records: make(map[string]Attendance)}
}

func (a *attendanceRepoStub) RecordAttendance(ctx context.Context, rec Attendance) (Attendance, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := rec.SessionID + "/" + rec.UserID
	if existing, ok := a.records[key]; ok {
		return existing, false, nil
	}
	a.records[key] = rec
	return rec, true, nil
}

func (a *attendanceRepoStub) GetAttendance(ctx context.Context, sessionID, userID string) (Attendance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[sessionID+"/"+userID]
	if !ok {
		return Attendance{}, persistence.ErrNotFound
	}
	return rec, nil
}

func (a *attendanceRepoStub) UpdateAttendance(ctx context.Context, rec Attendance) (Attendance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := rec.SessionID + "/" + rec.UserID
	if _, ok := a.records[key]; !ok {
		return Attendance{}, persistence.ErrNotFound
	}
	a.records[key] = rec
	return rec, nil
}

func (a *attendanceRepoStub) ListAttendance(ctx context.Context, sessionID string) ([]Attendance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Attendance
	for _, rec := range a.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func newTestStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return store
}
