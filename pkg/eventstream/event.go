package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeImageIndexed is emitted after an image point is written.
	EventTypeImageIndexed = "imagesearch.image.indexed"

	// EventTypeRunCompleted is emitted when a bulk index run ends, whether it
	// finished or failed.
	EventTypeRunCompleted = "imagesearch.run.completed"
)

// Envelope carries the fields shared by every event.
type Envelope struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
}

// NewEnvelope stamps a fresh envelope for eventType.
func NewEnvelope(eventType string) Envelope {
	return Envelope{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
}

// ImageIndexedEvent is a transport-neutral payload for a written image point.
type ImageIndexedEvent struct {
	Envelope

	// RunID is empty for single-image indexing.
	RunID    string `json:"run_id,omitempty"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	PointID  string `json:"point_id"`
	ImageURL string `json:"image_url"`
	Forced   bool   `json:"forced"`
}

// RunCompletedEvent summarizes a bulk index run.
type RunCompletedEvent struct {
	Envelope

	RunID       string    `json:"run_id"`
	Bucket      string    `json:"bucket"`
	Force       bool      `json:"force"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Processed   int       `json:"processed"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`

	// Error is set when the run aborted, e.g. on a listing failure.
	Error string `json:"error,omitempty"`
}
