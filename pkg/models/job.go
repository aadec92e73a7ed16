package models

import (
	"time"

	"github.com/google/uuid"
)

// JobType tags the kind of work a job performs.
type JobType string

// JobTypeIngest is the dataset ingestion/profiling job.
const JobTypeIngest JobType = "ingest"

// JobStatus is the lifecycle state of a job. Transitions are monotonic and
// one-directional: pending -> running -> {completed, failed, cancelled},
// plus pending -> cancelled for jobs cancelled before they start.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ValidJobStatuses contains all valid job status values.
var ValidJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

// IsValid checks if the status is one of the known values.
func (s JobStatus) IsValid() bool {
	for _, v := range ValidJobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status is final. A job never leaves a
// terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal step of
// the job state machine.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusCancelled
	case JobStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// ProgressIndeterminate is reported while a streamed source's total size is
// unknown; callers should render it as an indeterminate marker.
const ProgressIndeterminate float64 = -1

// JobResult is the summary attached to a completed ingestion job.
type JobResult struct {
	TableID           uuid.UUID `json:"table_id"`
	RowsProfiled      int64     `json:"rows_profiled"`
	ColumnsDiscovered int       `json:"columns_discovered"`
}

// Job is one ingestion request and its lifecycle. Once the status is
// terminal, the record is immutable.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	JobType     JobType    `json:"type"`
	SchemaName  string     `json:"schema_name"`
	TableName   string     `json:"table_name"`
	Status      JobStatus  `json:"status"`
	Progress    float64    `json:"progress"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// Key returns the "schema.table" key the job targets.
func (j *Job) Key() string {
	return TableKey(j.SchemaName, j.TableName)
}
