package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrUnknownQueue  = errors.New("jobs: unknown queue")
	ErrUnknownType   = errors.New("jobs: no handler for job type")
	ErrNotFound      = errors.New("jobs: job not found")
	ErrHandlerFailed = errors.New("jobs: handler failed")
)

// DefaultQueue serves recurring maintenance jobs.
const DefaultQueue = "default"

// Status is the lifecycle state of a job record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is a unit of work bound to one queue.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	RecurringID string          `json:"recurringId,omitempty"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"lastError,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	StartedAt   time.Time       `json:"startedAt,omitempty"`
	FinishedAt  time.Time       `json:"finishedAt,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool { return j.Status == StatusSucceeded || j.Status == StatusFailed }

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(j.Payload, v)
}

// Handler executes one job. A returned error marks the job failed; it is not retried.
type Handler func(ctx context.Context, job *Job) error
