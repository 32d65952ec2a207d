package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MeetingRequest describes the meeting window sent to the provider.
type MeetingRequest struct {
	Topic           string
	Agenda          string
	StartTime       time.Time
	DurationMinutes int
	Timezone        string
}

// Meeting is the provider's view of a scheduled meeting.
type Meeting struct {
	ID       string
	JoinURL  string
	StartURL string
	Password string
	Status   string
}

// Recording is one recording file listed by the provider.
type Recording struct {
	ID             string
	MeetingID      string
	RecordingType  string
	FileType       string
	FileExtension  string
	FileSize       int64
	DownloadURL    string
	Status         string
	RecordingStart time.Time
	RecordingEnd   time.Time
}

// meetingID decodes identifiers sent either as JSON numbers or strings.
type meetingID string

func (m *meetingID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = meetingID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("meeting id: %w", err)
	}
	*m = meetingID(n.String())
	return nil
}

type meetingSettings struct {
	HostVideo        bool   `json:"host_video"`
	ParticipantVideo bool   `json:"participant_video"`
	JoinBeforeHost   bool   `json:"join_before_host"`
	WaitingRoom      bool   `json:"waiting_room"`
	AutoRecording    string `json:"auto_recording"`
}

type meetingPayload struct {
	Topic     string           `json:"topic,omitempty"`
	Type      int              `json:"type,omitempty"`
	StartTime string           `json:"start_time,omitempty"`
	Duration  int              `json:"duration,omitempty"`
	Timezone  string           `json:"timezone,omitempty"`
	Agenda    string           `json:"agenda,omitempty"`
	Settings  *meetingSettings `json:"settings,omitempty"`
}

type meetingResponse struct {
	ID       meetingID `json:"id"`
	JoinURL  string    `json:"join_url"`
	StartURL string    `json:"start_url"`
	Password string    `json:"password"`
	Status   string    `json:"status"`
}

type recordingFile struct {
	ID             string    `json:"id"`
	MeetingID      meetingID `json:"meeting_id"`
	RecordingType  string    `json:"recording_type"`
	FileType       string    `json:"file_type"`
	FileExtension  string    `json:"file_extension"`
	FileSize       int64     `json:"file_size"`
	DownloadURL    string    `json:"download_url"`
	Status         string    `json:"status"`
	RecordingStart string    `json:"recording_start"`
	RecordingEnd   string    `json:"recording_end"`
}

type recordingsResponse struct {
	RecordingFiles []recordingFile `json:"recording_files"`
}

const scheduledMeeting = 2

func toPayload(req MeetingRequest) meetingPayload {
	payload := meetingPayload{
		Topic:    req.Topic,
		Type:     scheduledMeeting,
		Duration: req.DurationMinutes,
		Timezone: req.Timezone,
		Agenda:   req.Agenda,
	}
	if !req.StartTime.IsZero() {
		payload.StartTime = req.StartTime.UTC().Format("2006-01-02T15:04:05Z")
	}
	return payload
}

func (r meetingResponse) meeting() Meeting {
	return Meeting{
		ID:       string(r.ID),
		JoinURL:  r.JoinURL,
		StartURL: r.StartURL,
		Password: r.Password,
		Status:   r.Status,
	}
}

func (f recordingFile) recording() Recording {
	rec := Recording{
		ID:            f.ID,
		MeetingID:     string(f.MeetingID),
		RecordingType: f.RecordingType,
		FileType:      f.FileType,
		FileExtension: f.FileExtension,
		FileSize:      f.FileSize,
		DownloadURL:   f.DownloadURL,
		Status:        f.Status,
	}
	if t, err := time.Parse(time.RFC3339, f.RecordingStart); err == nil {
		rec.RecordingStart = t
	}
	if t, err := time.Parse(time.RFC3339, f.RecordingEnd); err == nil {
		rec.RecordingEnd = t
	}
	return rec
}
