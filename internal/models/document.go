package models

import "time"

// Status is the lifecycle state of a document-analysis job.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusError      Status = "ERROR"
)

// Terminal reports whether no further status mutation is expected for s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusError
}

// ErrorDetail is the user-visible failure attached to a FAILED/ERROR record.
type ErrorDetail struct {
	Message string `firestore:"message,omitempty" json:"message"`
	Kind    string `firestore:"kind,omitempty" json:"kind,omitempty"`
}

// StatusRecord is the per-job row in the status collection. It is created
// QUEUED at ingestion and mutated in place by the pipeline stages; the
// status API reads it back and reconciles it against the live workflow
// execution when one is referenced.
type StatusRecord struct {
	RequestID      string       `firestore:"requestId,omitempty" json:"requestId,omitempty"`
	DocumentID     string       `firestore:"documentId,omitempty" json:"documentId,omitempty"`
	UserID         string       `firestore:"userId,omitempty" json:"userId,omitempty"`
	SessionID      string       `firestore:"sessionId,omitempty" json:"sessionId,omitempty"`
	Status         Status       `firestore:"status,omitempty" json:"status"`
	Progress       int          `firestore:"progress" json:"progress"`
	Message        string       `firestore:"message,omitempty" json:"message,omitempty"`
	ResultLocation string       `firestore:"resultLocation,omitempty" json:"resultLocation,omitempty"`
	Error          *ErrorDetail `firestore:"error,omitempty" json:"error,omitempty"`
	ExecutionName  string       `firestore:"executionName,omitempty" json:"-"`
	CreatedAt      time.Time    `firestore:"createdAt,omitempty" json:"timestamp,omitzero"`
	UpdatedAt      time.Time    `firestore:"updatedAt,omitempty" json:"updatedAt,omitzero"`
}
