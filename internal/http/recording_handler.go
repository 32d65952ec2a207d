package http

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/live-sessions/internal/application"
)

const maxUploadMemory = 32 << 20

type recordingService interface {
	ListRecordings(ctx context.Context, principal application.Principal, sessionID string) ([]application.Recording, error)
	GetRecording(ctx context.Context, principal application.Principal, recordingID string) (application.Recording, error)
	UpdateRecording(ctx context.Context, params application.UpdateRecordingParams) (application.Recording, error)
	DeleteRecording(ctx context.Context, principal application.Principal, recordingID string) error
	UploadRecording(ctx context.Context, params application.UploadRecordingParams) (application.Recording, error)
	SyncSession(ctx context.Context, principal application.Principal, sessionID string) (application.SyncResult, error)
	SyncAll(ctx context.Context, principal application.Principal) ([]application.SyncResult, error)
	RepairRecording(ctx context.Context, principal application.Principal, recordingID string) (application.Recording, error)
}

// RecordingHandler serves recording ingestion and metadata.
type RecordingHandler struct {
	service   recordingService
	responder responder
	logger    *slog.Logger
}

func NewRecordingHandler(service recordingService, logger *slog.Logger) *RecordingHandler {
	base := defaultLogger(logger)
	return &RecordingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RecordingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RecordingHandler", operation, attrs...)
}

func (h *RecordingHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *RecordingHandler) ListBySession(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	recs, err := h.service.ListRecordings(r.Context(), principal, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, toRecordingDTOs(recs))
}

// Upload accepts a multipart form with a "file" part and the title,
// duration_seconds and recorded_at fields.
func (h *RecordingHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	logger := h.log(r.Context(), "Upload", "session_id", sessionID)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.responder.writeJSON(r.Context(), w, http.StatusBadRequest, envelope{
			Success:   false,
			ErrorCode: "bad_request",
			Message:   "the upload must be a multipart form",
		})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	params, file, err := uploadParams(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	defer file.Close()
	params.Principal = principal
	params.SessionID = sessionID

	rec, err := h.service.UploadRecording(r.Context(), params)
	if err != nil {
		logger.WarnContext(r.Context(), "recording upload failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusCreated, toRecordingDTO(rec))
}

// Download pulls the provider's recordings for one session.
func (h *RecordingHandler) Download(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.service.SyncSession(r.Context(), principal, chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, toSyncDTO(result))
}

func (h *RecordingHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	results, err := h.service.SyncAll(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]syncDTO, 0, len(results))
	for _, res := range results {
		out = append(out, toSyncDTO(res))
	}
	h.responder.ok(r.Context(), w, http.StatusOK, out)
}

func (h *RecordingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	rec, err := h.service.GetRecording(r.Context(), principal, chi.URLParam(r, "recordingID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, toRecordingDTO(rec))
}

func (h *RecordingHandler) Patch(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req recordingPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}

	rec, err := h.service.UpdateRecording(r.Context(), application.UpdateRecordingParams{
		Principal:   principal,
		RecordingID: chi.URLParam(r, "recordingID"),
		Title:       req.Title,
		Visible:     req.Visible,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, toRecordingDTO(rec))
}

func (h *RecordingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.DeleteRecording(r.Context(), principal, chi.URLParam(r, "recordingID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.okWithMessage(r.Context(), w, http.StatusOK, nil, "recording deleted")
}

// Repair re-runs the container repair chain. A failed repair still answers 200
// with the fallback URL populated.
func (h *RecordingHandler) Repair(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	recordingID := chi.URLParam(r, "recordingID")

	rec, err := h.service.RepairRecording(r.Context(), principal, recordingID)
	switch {
	case errors.Is(err, application.ErrRepairFailed):
		h.log(r.Context(), "Repair", "recording_id", recordingID).WarnContext(r.Context(), "recording repair failed", "error", err)
		h.responder.okWithMessage(r.Context(), w, http.StatusOK, toRecordingDTO(rec),
			"repair failed, the recording may not stream in every browser; use the fallback download")
	case err != nil:
		h.responder.handleServiceError(r.Context(), w, err)
	default:
		h.responder.ok(r.Context(), w, http.StatusOK, toRecordingDTO(rec))
	}
}

func uploadParams(r *http.Request) (application.UploadRecordingParams, multipart.File, error) {
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}

	file, header, err := r.FormFile("file")
	if err != nil {
		vErr.FieldErrors["file"] = errMissingFile.Error()
		return application.UploadRecordingParams{}, nil, vErr
	}

	params := application.UploadRecordingParams{
		Title:       strings.TrimSpace(r.FormValue("title")),
		FileName:    filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		RecordedAt:  time.Now().UTC(),
	}
	if header.Size == 0 {
		params.Body = nil
	}
	if params.Title == "" {
		params.Title = strings.TrimSuffix(params.FileName, filepath.Ext(params.FileName))
	}

	if raw := strings.TrimSpace(r.FormValue("duration_seconds")); raw != "" {
		seconds, convErr := strconv.Atoi(raw)
		if convErr != nil {
			vErr.FieldErrors["duration_seconds"] = "must be an integer"
		}
		params.DurationSeconds = seconds
	}
	if raw := strings.TrimSpace(r.FormValue("recorded_at")); raw != "" {
		at, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			vErr.FieldErrors["recorded_at"] = "must be an RFC 3339 timestamp"
		}
		params.RecordedAt = at
	}

	if vErr.HasErrors() {
		_ = file.Close()
		return application.UploadRecordingParams{}, nil, vErr
	}
	return params, file, nil
}

type recordingPatchRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Visible *bool   `json:"visible"`
}

type recordingDTO struct {
	ID                  string `json:"id"`
	SessionID           string `json:"session_id"`
	ProviderRecordingID string `json:"provider_recording_id,omitempty"`
	Title               string `json:"title"`
	FileName            string `json:"file_name"`
	ContentType         string `json:"content_type"`
	StorageURL          string `json:"storage_url"`
	FallbackURL         string `json:"fallback_url,omitempty"`
	SizeBytes           int64  `json:"size_bytes"`
	DurationSeconds     int    `json:"duration_seconds"`
	RecordedAt          string `json:"recorded_at"`
	ViewCount           int    `json:"view_count"`
	Visible             bool   `json:"visible"`
	RepairStatus        string `json:"repair_status"`
	RepairNote          string `json:"repair_note,omitempty"`
	CreatedAt           string `json:"created_at"`
}

type syncDTO struct {
	SessionID string         `json:"session_id"`
	Inserted  []recordingDTO `json:"inserted"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
}

func toRecordingDTO(rec application.Recording) recordingDTO {
	return recordingDTO{
		ID:                  rec.ID,
		SessionID:           rec.SessionID,
		ProviderRecordingID: rec.ProviderRecordingID,
		Title:               rec.Title,
		FileName:            rec.FileName,
		ContentType:         rec.ContentType,
		StorageURL:          rec.StorageURL,
		FallbackURL:         rec.FallbackURL,
		SizeBytes:           rec.SizeBytes,
		DurationSeconds:     rec.DurationSeconds,
		RecordedAt:          formatTime(rec.RecordedAt),
		ViewCount:           rec.ViewCount,
		Visible:             rec.Visible,
		RepairStatus:        string(rec.RepairStatus),
		RepairNote:          rec.RepairNote,
		CreatedAt:           formatTime(rec.CreatedAt),
	}
}

func toRecordingDTOs(recs []application.Recording) []recordingDTO {
	out := make([]recordingDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordingDTO(rec))
	}
	return out
}

func toSyncDTO(result application.SyncResult) syncDTO {
	return syncDTO{
		SessionID: result.SessionID,
		Inserted:  toRecordingDTOs(result.Inserted),
		Skipped:   result.Skipped,
		Failed:    result.Failed,
	}
}
