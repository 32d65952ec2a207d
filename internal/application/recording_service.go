package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/live-sessions/internal/mediarepair"
)

const (
	defaultSyncConcurrency = 4
	defaultSyncWindow      = 7 * 24 * time.Hour
	defaultContentType     = "video/mp4"
	defaultIngestTimeout   = 30 * time.Minute
)

// RecordingDeps are the required collaborators of RecordingService.
type RecordingDeps struct {
	Sessions    SessionLister
	Completer   SessionCompleter
	Recordings  RecordingRepository
	Meetings    MeetingProvider
	Store       ArtifactStore
	Repairer    ContainerRepairer
	IDGenerator func() string
	Now         func() time.Time
}

// RecordingOptions carries the optional collaborators of RecordingService.
type RecordingOptions struct {
	Queue           RepairScheduler
	Publisher       Publisher
	Metrics         IngestionMetrics
	SyncConcurrency int
	SyncWindow      time.Duration
	// IngestTimeout bounds storing, repairing and committing one artifact.
	// It applies even after the caller's context is done.
	IngestTimeout time.Duration
	Logger        *slog.Logger
}

// RecordingService ingests recordings through the pull and push paths and keeps their repair state.
type RecordingService struct {
	sessions    SessionLister
	completer   SessionCompleter
	recordings  RecordingRepository
	meetings    MeetingProvider
	store       ArtifactStore
	repairer    ContainerRepairer
	queue       RepairScheduler
	publisher   Publisher
	metrics     IngestionMetrics
	idGenerator func() string
	now         func() time.Time
	syncLimit   int
	syncWindow  time.Duration
	ingestLimit time.Duration
	logger      *slog.Logger
}

// NewRecordingService wires the ingestion pipeline with default options.
func NewRecordingService(deps RecordingDeps) *RecordingService {
	return NewRecordingServiceWithOptions(deps, RecordingOptions{})
}

// NewRecordingServiceWithOptions wires the ingestion pipeline.
func NewRecordingServiceWithOptions(deps RecordingDeps, opts RecordingOptions) *RecordingService {
	idGenerator := deps.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	limit := opts.SyncConcurrency
	if limit <= 0 {
		limit = defaultSyncConcurrency
	}
	window := opts.SyncWindow
	if window <= 0 {
		window = defaultSyncWindow
	}
	ingestLimit := opts.IngestTimeout
	if ingestLimit <= 0 {
		ingestLimit = defaultIngestTimeout
	}
	return &RecordingService{
		sessions:    deps.Sessions,
		completer:   deps.Completer,
		recordings:  deps.Recordings,
		meetings:    deps.Meetings,
		store:       deps.Store,
		repairer:    deps.Repairer,
		queue:       opts.Queue,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		idGenerator: idGenerator,
		now:         now,
		syncLimit:   limit,
		syncWindow:  window,
		ingestLimit: ingestLimit,
		logger:      defaultLogger(opts.Logger),
	}
}

// UseQueue attaches the background repair queue.
func (s *RecordingService) UseQueue(queue RepairScheduler) {
	if s != nil {
		s.queue = queue
	}
}

// detach returns a context that keeps the caller's values but not its
// cancellation, bounded by the ingest timeout instead.
func (s *RecordingService) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.ingestLimit)
}

func (s *RecordingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RecordingService", operation, attrs...)
}

func (s *RecordingService) ready() error {
	if s == nil {
		return fmt.Errorf("RecordingService is nil")
	}
	if s.sessions == nil || s.recordings == nil {
		return fmt.Errorf("recording repositories not configured")
	}
	if s.store == nil {
		return fmt.Errorf("artifact store not configured")
	}
	return nil
}

// ListRecordings returns the recordings of a session. Hidden recordings are only listed for managers.
func (s *RecordingService) ListRecordings(ctx context.Context, principal Principal, sessionID string) ([]Recording, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if principal.UserID == "" {
		return nil, ErrUnauthenticated
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	recordings, err := s.recordings.ListRecordingsBySession(ctx, session.ID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if canManage(principal, session) {
		return recordings, nil
	}

	visible := make([]Recording, 0, len(recordings))
	for _, rec := range recordings {
		if rec.Visible {
			visible = append(visible, rec)
		}
	}
	return visible, nil
}

// GetRecording returns one recording, counting the view for non-managers.
func (s *RecordingService) GetRecording(ctx context.Context, principal Principal, recordingID string) (Recording, error) {
	if err := s.ready(); err != nil {
		return Recording{}, err
	}
	if principal.UserID == "" {
		return Recording{}, ErrUnauthenticated
	}

	rec, session, err := s.loadRecording(ctx, recordingID)
	if err != nil {
		return Recording{}, err
	}
	if canManage(principal, session) {
		return rec, nil
	}
	if !rec.Visible {
		return Recording{}, ErrArtifactMissing
	}
	if err := s.recordings.IncrementViewCount(ctx, rec.ID); err != nil {
		s.loggerWith(ctx, "GetRecording", "recording_id", rec.ID).WarnContext(ctx, "failed to count view", "error", err)
	} else {
		rec.ViewCount++
	}
	return rec, nil
}

// UpdateRecording edits the title or visibility of a recording.
func (s *RecordingService) UpdateRecording(ctx context.Context, params UpdateRecordingParams) (rec Recording, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateRecording", "principal_id", params.Principal.UserID, "recording_id", params.RecordingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update recording", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "recording updated")
	}()

	var session Session
	rec, session, err = s.loadRecording(ctx, params.RecordingID)
	if err != nil {
		return
	}
	if !canManage(params.Principal, session) {
		err = ErrForbidden
		return
	}

	vErr := &ValidationError{}
	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		switch {
		case title == "":
			vErr.add("title", "title must not be empty")
		case len(title) > maxTitleLength:
			vErr.add("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
		default:
			rec.Title = title
		}
	}
	if vErr.HasErrors() {
		err = vErr
		rec = Recording{}
		return
	}
	if params.Visible != nil {
		rec.Visible = *params.Visible
	}
	rec.UpdatedAt = s.now()

	rec, err = s.recordings.UpdateRecording(ctx, rec)
	err = mapRepoError(err)
	return
}

// DeleteRecording removes a recording and its stored files.
func (s *RecordingService) DeleteRecording(ctx context.Context, principal Principal, recordingID string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "DeleteRecording", "principal_id", principal.UserID, "recording_id", recordingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete recording", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "recording deleted")
	}()

	rec, session, loadErr := s.loadRecording(ctx, recordingID)
	if loadErr != nil {
		err = loadErr
		return
	}
	if !canManage(principal, session) {
		err = ErrForbidden
		return
	}
	err = s.remove(ctx, rec)
	return
}

// CountRecordings reports how many recordings a session owns.
func (s *RecordingService) CountRecordings(ctx context.Context, sessionID string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	recordings, err := s.recordings.ListRecordingsBySession(ctx, sessionID)
	if err != nil {
		return 0, mapRepoError(err)
	}
	return len(recordings), nil
}

// PurgeRecordings removes every recording of a session together with its files.
func (s *RecordingService) PurgeRecordings(ctx context.Context, sessionID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	recordings, err := s.recordings.ListRecordingsBySession(ctx, sessionID)
	if err != nil {
		return mapRepoError(err)
	}
	var errs []error
	for _, rec := range recordings {
		if err := s.remove(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UploadRecording stores a pushed file verbatim and queues it for repair when it is not fast-start.
func (s *RecordingService) UploadRecording(ctx context.Context, params UploadRecordingParams) (rec Recording, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UploadRecording", "principal_id", params.Principal.UserID, "session_id", params.SessionID)
	defer func() {
		s.observeIngestion("push", err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to upload recording", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("recording_id", rec.ID, "repair_status", rec.RepairStatus).InfoContext(ctx, "recording uploaded")
	}()

	vErr := &ValidationError{}
	if params.Body == nil {
		vErr.add("file", "file is required")
	}
	if params.DurationSeconds <= 0 {
		vErr.add("duration_seconds", "duration must be positive")
	}
	if title := strings.TrimSpace(params.Title); len(title) > maxTitleLength {
		vErr.add("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var session Session
	session, err = s.loadSession(ctx, params.SessionID)
	if err != nil {
		return
	}
	if !canManage(params.Principal, session) {
		err = ErrForbidden
		return
	}
	if session, err = s.ensureCompleted(ctx, session); err != nil {
		return
	}

	ictx, cancel := s.detach(ctx)
	defer cancel()

	var (
		name string
		size int64
	)
	name, size, err = s.store.Save(ictx, filepath.Ext(params.FileName), params.Body)
	if err != nil {
		return
	}
	if size == 0 {
		s.discard(ictx, name)
		vErr.add("file", "file is empty")
		err = vErr
		return
	}

	status := RepairSkipped
	if s.repairer != nil {
		var needs bool
		needs, err = s.repairer.NeedsRepair(s.store.Path(name))
		if err != nil {
			s.discard(ictx, name)
			return
		}
		status = RepairNotNeeded
		if needs {
			status = RepairPending
		}
	}

	now := s.now()
	recordedAt := params.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = session.StartTime
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = session.Title
	}
	contentType := strings.TrimSpace(params.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(name)
	}

	rec = Recording{
		ID:              s.idGenerator(),
		SessionID:       session.ID,
		Title:           title,
		FileName:        name,
		ContentType:     contentType,
		StorageURL:      s.store.URL(name),
		SizeBytes:       size,
		DurationSeconds: params.DurationSeconds,
		RecordedAt:      recordedAt.UTC(),
		Visible:         true,
		RepairStatus:    status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if status != RepairPending {
		rec.StorageURL = s.publish(ictx, name, rec.StorageURL)
	}

	persisted, createErr := s.recordings.CreateRecording(ictx, rec)
	if createErr != nil {
		s.discard(ictx, name)
		err = mapRepoError(createErr)
		rec = Recording{}
		return
	}
	rec = persisted

	if status == RepairPending {
		if s.queue == nil || !s.queue.Enqueue(rec.ID) {
			logger.WarnContext(ctx, "repair queue unavailable; recording left pending", "recording_id", rec.ID)
		}
	}
	return
}

// SyncSession pulls provider recordings of one session that are not stored yet.
func (s *RecordingService) SyncSession(ctx context.Context, principal Principal, sessionID string) (result SyncResult, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if s.meetings == nil {
		err = fmt.Errorf("meeting provider not configured")
		return
	}

	logger := s.loggerWith(ctx, "SyncSession", "principal_id", principal.UserID, "session_id", sessionID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to sync recordings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("inserted", len(result.Inserted), "skipped", result.Skipped, "failed", result.Failed).InfoContext(ctx, "recordings synced")
	}()

	var session Session
	session, err = s.loadSession(ctx, sessionID)
	if err != nil {
		return
	}
	if !canManage(principal, session) {
		err = ErrForbidden
		return
	}
	if session, err = s.ensureCompleted(ctx, session); err != nil {
		return
	}
	result, err = s.syncSession(ctx, session)
	return
}

// SyncAll pulls recordings for every recently completed session the principal manages.
func (s *RecordingService) SyncAll(ctx context.Context, principal Principal) (results []SyncResult, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if s.meetings == nil {
		err = fmt.Errorf("meeting provider not configured")
		return
	}
	if !principal.CanTeach() {
		err = ErrForbidden
		return
	}

	logger := s.loggerWith(ctx, "SyncAll", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "recording sync incomplete", "sessions", len(results), "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "recording sync finished", "sessions", len(results))
	}()

	since := s.now().Add(-s.syncWindow)
	filter := SessionFilter{Statuses: []SessionStatus{SessionCompleted}, StartsAfter: &since}
	if !principal.IsAdmin() {
		filter.InstructorID = principal.UserID
	}

	var sessions []Session
	sessions, err = s.sessions.ListSessions(ctx, filter)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.syncLimit)
	for _, session := range sessions {
		if session.MeetingID == "" {
			continue
		}
		g.Go(func() error {
			res, syncErr := s.syncSession(gctx, session)
			mu.Lock()
			defer mu.Unlock()
			if syncErr != nil {
				errs = append(errs, syncErr)
				return nil
			}
			results = append(results, res)
			return nil
		})
	}
	_ = g.Wait()

	err = errors.Join(errs...)
	return
}

func (s *RecordingService) syncSession(ctx context.Context, session Session) (SyncResult, error) {
	result := SyncResult{SessionID: session.ID}
	if session.MeetingID == "" {
		return result, nil
	}

	listed, err := s.meetings.ListRecordings(ctx, session.MeetingID)
	if err != nil {
		return result, &ProviderError{SessionID: session.ID, Operation: "list recordings", Err: err}
	}

	stored, err := s.recordings.ListRecordingsBySession(ctx, session.ID)
	if err != nil {
		return result, mapRepoError(err)
	}
	known := make(map[string]struct{}, len(stored))
	for _, rec := range stored {
		if rec.ProviderRecordingID != "" {
			known[rec.ProviderRecordingID] = struct{}{}
		}
	}

	logger := s.loggerWith(ctx, "SyncSession", "session_id", session.ID, "meeting_id", session.MeetingID)
	for _, pr := range listed {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !ingestible(pr) {
			continue
		}
		if _, ok := known[pr.ID]; ok {
			result.Skipped++
			continue
		}

		rec, ingestErr := s.ingestProvider(ctx, session, pr)
		s.observeIngestion("pull", ingestErr)
		switch {
		case ingestErr == nil:
			known[pr.ID] = struct{}{}
			result.Inserted = append(result.Inserted, rec)
		case errors.Is(ingestErr, ErrAlreadyExists):
			result.Skipped++
		default:
			result.Failed++
			logger.ErrorContext(ctx, "failed to ingest provider recording", "provider_recording_id", pr.ID, "error", ingestErr, "error_kind", ErrorKind(ingestErr))
		}
	}
	return result, nil
}

func (s *RecordingService) ingestProvider(ctx context.Context, session Session, pr ProviderRecording) (Recording, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	body, err := s.meetings.Download(ctx, pr.DownloadURL)
	if err != nil {
		return Recording{}, &ProviderError{SessionID: session.ID, Operation: "download recording", Err: err}
	}
	defer body.Close()

	ext := pr.FileExtension
	if ext == "" {
		ext = pr.FileType
	}
	name, size, err := s.store.Save(ctx, ext, body)
	if err != nil {
		return Recording{}, err
	}
	if size == 0 {
		s.discard(ctx, name)
		return Recording{}, fmt.Errorf("provider recording %s downloaded empty", pr.ID)
	}

	status, note, fallback := s.repairNow(ctx, name)
	if repaired, statErr := s.store.Stat(name); statErr == nil {
		size = repaired
	}

	duration := int(pr.End.Sub(pr.Start).Seconds())
	if duration <= 0 {
		duration = session.DurationMinutes * 60
	}
	recordedAt := pr.Start
	if recordedAt.IsZero() {
		recordedAt = session.StartTime
	}

	now := s.now()
	storageURL := s.store.URL(name)
	if status != RepairFailed {
		storageURL = s.publish(ctx, name, storageURL)
	}
	rec := Recording{
		ID:                  s.idGenerator(),
		SessionID:           session.ID,
		ProviderRecordingID: pr.ID,
		Title:               session.Title,
		FileName:            name,
		ContentType:         contentTypeFor(name),
		StorageURL:          storageURL,
		FallbackURL:         fallback,
		SizeBytes:           size,
		DurationSeconds:     duration,
		RecordedAt:          recordedAt.UTC(),
		Visible:             true,
		RepairStatus:        status,
		RepairNote:          note,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	persisted, err := s.recordings.CreateRecording(ctx, rec)
	if err != nil {
		s.discard(ctx, name)
		return Recording{}, mapRepoError(err)
	}
	return persisted, nil
}

// ProcessRepair runs the repair chain for a stored recording. It is the RepairQueue worker body.
func (s *RecordingService) ProcessRepair(ctx context.Context, recordingID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	rec, err := s.recordings.GetRecording(ctx, recordingID)
	if err != nil {
		return mapRepoError(err)
	}
	_, err = s.repairStored(ctx, rec)
	return err
}

// RepairRecording re-runs repair on demand. A failed repair returns the updated
// recording together with an error wrapping ErrRepairFailed.
func (s *RecordingService) RepairRecording(ctx context.Context, principal Principal, recordingID string) (Recording, error) {
	if err := s.ready(); err != nil {
		return Recording{}, err
	}
	rec, session, err := s.loadRecording(ctx, recordingID)
	if err != nil {
		return Recording{}, err
	}
	if !canManage(principal, session) {
		return Recording{}, ErrForbidden
	}
	ctx, cancel := s.detach(ctx)
	defer cancel()
	return s.repairStored(ctx, rec)
}

// RequeuePending hands recordings still waiting for repair back to the queue.
func (s *RecordingService) RequeuePending(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if s.queue == nil {
		return 0, nil
	}
	pending, err := s.recordings.ListRecordingsByRepairStatus(ctx, RepairPending)
	if err != nil {
		return 0, mapRepoError(err)
	}
	queued := 0
	for _, rec := range pending {
		if !s.queue.Enqueue(rec.ID) {
			break
		}
		queued++
	}
	return queued, nil
}

func (s *RecordingService) repairStored(ctx context.Context, rec Recording) (Recording, error) {
	logger := s.loggerWith(ctx, "RepairRecording", "recording_id", rec.ID, "session_id", rec.SessionID)

	status, note, fallback := s.repairNow(ctx, rec.FileName)
	if size, statErr := s.store.Stat(rec.FileName); statErr == nil {
		rec.SizeBytes = size
	} else {
		status = RepairFailed
		note = "stored artifact is missing"
	}

	kept := status == RepairNotNeeded && (rec.RepairStatus == RepairRepaired || rec.RepairStatus == RepairAcceptable)
	if !kept {
		rec.RepairStatus = status
		rec.RepairNote = note
		rec.FallbackURL = fallback
	}
	rec.UpdatedAt = s.now()
	if status != RepairFailed {
		rec.StorageURL = s.publish(ctx, rec.FileName, rec.StorageURL)
	}

	updated, err := s.recordings.UpdateRecording(ctx, rec)
	if err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to store repair outcome", "error", err, "error_kind", ErrorKind(err))
		return Recording{}, err
	}

	if status == RepairFailed {
		err = fmt.Errorf("recording %s: %s: %w", rec.ID, note, ErrRepairFailed)
		logger.WarnContext(ctx, "recording left in original form", "fallback_url", fallback, "error", err, "error_kind", ErrorKind(err))
		return updated, err
	}
	logger.InfoContext(ctx, "recording repair finished", "repair_status", updated.RepairStatus)
	return updated, nil
}

// repairNow runs the chain synchronously. Failures are reported through the status and note, never returned.
func (s *RecordingService) repairNow(ctx context.Context, name string) (RepairStatus, string, string) {
	if s.repairer == nil {
		return RepairSkipped, "repair tooling not configured", ""
	}

	report, err := s.repairer.Repair(ctx, s.store.Path(name))
	status := repairStatusFor(report.Outcome)
	note := report.Note
	if err != nil {
		status = RepairFailed
		if note == "" {
			note = err.Error()
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveRepair(string(status))
	}

	fallback := ""
	if status == RepairFailed && report.BackupPath != "" {
		fallback = s.store.BackupURL(name)
	}
	return status, note, fallback
}

func (s *RecordingService) remove(ctx context.Context, rec Recording) error {
	if err := s.recordings.DeleteRecording(ctx, rec.ID); err != nil {
		return mapRepoError(err)
	}
	s.discard(ctx, rec.FileName)
	return nil
}

// discard removes a stored file, its backup and any mirror copy.
func (s *RecordingService) discard(ctx context.Context, name string) {
	logger := s.loggerWith(ctx, "Discard", "file_name", name)
	if err := s.store.Remove(name); err != nil {
		logger.WarnContext(ctx, "failed to remove stored artifact", "error", err)
	}
	if s.publisher != nil {
		if err := s.publisher.Unpublish(ctx, name); err != nil {
			logger.WarnContext(ctx, "failed to remove mirrored artifact", "error", err)
		}
	}
}

func (s *RecordingService) publish(ctx context.Context, name, fallback string) string {
	if s.publisher == nil {
		return fallback
	}
	url, err := s.publisher.Publish(ctx, s.store.Path(name), name)
	if err != nil {
		s.loggerWith(ctx, "Publish", "file_name", name).WarnContext(ctx, "failed to mirror artifact; serving local copy", "error", err)
		return fallback
	}
	return url
}

func (s *RecordingService) ensureCompleted(ctx context.Context, session Session) (Session, error) {
	if session.Status == SessionCompleted {
		return session, nil
	}
	if s.completer == nil {
		return Session{}, invalidTransition(session, "ingest recordings", "session is not completed")
	}
	return s.completer.EnsureCompleted(ctx, session.ID)
}

func (s *RecordingService) loadSession(ctx context.Context, sessionID string) (Session, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return Session{}, ErrArtifactMissing
	}
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return Session{}, mapRepoError(err)
	}
	return session, nil
}

func (s *RecordingService) loadRecording(ctx context.Context, recordingID string) (Recording, Session, error) {
	id := strings.TrimSpace(recordingID)
	if id == "" {
		return Recording{}, Session{}, ErrArtifactMissing
	}
	rec, err := s.recordings.GetRecording(ctx, id)
	if err != nil {
		return Recording{}, Session{}, mapRepoError(err)
	}
	session, err := s.loadSession(ctx, rec.SessionID)
	if err != nil {
		return Recording{}, Session{}, err
	}
	return rec, session, nil
}

func (s *RecordingService) observeIngestion(path string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveIngestion(path, resultLabel(err))
	}
}

// ingestible reports whether a provider file is a finished video container.
func ingestible(pr ProviderRecording) bool {
	if pr.ID == "" || pr.DownloadURL == "" {
		return false
	}
	if pr.Status != "" && !strings.EqualFold(pr.Status, "completed") {
		return false
	}
	return strings.EqualFold(pr.FileType, "mp4")
}

func repairStatusFor(outcome mediarepair.Outcome) RepairStatus {
	switch outcome {
	case mediarepair.OutcomeAlreadyFastStart:
		return RepairNotNeeded
	case mediarepair.OutcomeRepaired:
		return RepairRepaired
	case mediarepair.OutcomeAcceptable:
		return RepairAcceptable
	default:
		return RepairFailed
	}
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}
