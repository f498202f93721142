package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

type Job struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	PayloadKey  *string         `json:"payload_key,omitempty"`
	ResultKey   *string         `json:"result_key,omitempty"`
	ContentType *string         `json:"content_type,omitempty"`
	Filename    *string         `json:"filename,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Artifact is a stored blob: a job input spilled out of the ledger row,
// or the file a handler produced.
type Artifact struct {
	Key         string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// Blob keys are derived from the job id plus a purpose suffix, so a key is
// never reused across distinct jobs.
func InputBlobKey(id uuid.UUID) string  { return id.String() + "/input" }
func ResultBlobKey(id uuid.UUID) string { return id.String() + "/result" }
