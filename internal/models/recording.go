package models

import (
	"time"

	"github.com/google/uuid"
)

// RecorderState represents the capture lifecycle of one recording session.
type RecorderState string

const (
	RecorderStateIdle         RecorderState = "idle"
	RecorderStateCountingDown RecorderState = "counting-down"
	RecorderStateRecording    RecorderState = "recording"
	RecorderStateStopped      RecorderState = "stopped"
)

// RecordingMimeType is the container produced by the recorder.
const RecordingMimeType = "video/webm"

// Recording is a finished capture held in memory until it is published.
type Recording struct {
	SessionID  uuid.UUID     `json:"session_id"`
	TicketName string        `json:"ticket_name"`
	ClientName string        `json:"client_name,omitempty"`
	MimeType   string        `json:"mime_type"`
	Data       []byte        `json:"-"`
	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
}

// Size returns the byte size of the recorded blob.
func (r *Recording) Size() int64 {
	if r == nil {
		return 0
	}
	return int64(len(r.Data))
}
