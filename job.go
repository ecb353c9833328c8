package ridinglookup

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a single job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobRetrying   JobStatus = "retrying"
)

// BatchStatus is the aggregate lifecycle state of a batch.
type BatchStatus string

const (
	BatchPending            BatchStatus = "pending"
	BatchProcessing         BatchStatus = "processing"
	BatchCompleted          BatchStatus = "completed"
	BatchFailed             BatchStatus = "failed"
	BatchPartiallyCompleted BatchStatus = "partially_completed"
)

// DefaultMaxAttempts is the per-job attempt budget when none is configured.
const DefaultMaxAttempts = 5

/*
Job is one unit of work inside a batch. Payload and Result are opaque to the queue;
they are kept as raw JSON so the whole state survives a round trip through a Store.
*/
type Job struct {
	ID               string          `json:"id"`
	BatchID          string          `json:"batchId"`
	Payload          json.RawMessage `json:"payload"`
	Status           JobStatus       `json:"status"`
	Attempts         int             `json:"attempts"`
	MaxAttempts      int             `json:"maxAttempts"`
	CreatedAt        time.Time       `json:"createdAt"`
	StartedAt        *time.Time      `json:"startedAt,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	NextRetryAt      *time.Time      `json:"nextRetryAt,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            string          `json:"error,omitempty"`
	ProcessingTimeMs *int64          `json:"processingTime,omitempty"`
}

func (j *Job) clone() *Job {
	cp := *j
	cp.Payload = append(json.RawMessage(nil), j.Payload...)
	if j.Result != nil {
		cp.Result = append(json.RawMessage(nil), j.Result...)
	}
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	cp.NextRetryAt = cloneTime(j.NextRetryAt)
	if j.ProcessingTimeMs != nil {
		ms := *j.ProcessingTimeMs
		cp.ProcessingTimeMs = &ms
	}
	return &cp
}

// JobResult is one entry of Batch.Results.
type JobResult struct {
	JobID            string          `json:"jobId"`
	Result           json.RawMessage `json:"result,omitempty"`
	ProcessingTimeMs int64           `json:"processingTime"`
	CompletedAt      time.Time       `json:"completedAt"`
}

/*
Batch groups the jobs of one submission. CompletedJobs + FailedJobs never exceeds
TotalJobs, and the batch becomes terminal exactly when the two add up to it.
*/
type Batch struct {
	ID            string      `json:"id"`
	Status        BatchStatus `json:"status"`
	TotalJobs     int         `json:"totalJobs"`
	CompletedJobs int         `json:"completedJobs"`
	FailedJobs    int         `json:"failedJobs"`
	JobIDs        []string    `json:"jobIds"`
	CreatedAt     time.Time   `json:"createdAt"`
	StartedAt     *time.Time  `json:"startedAt,omitempty"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
	Results       []JobResult `json:"results"`
	Errors        []string    `json:"errors"`
}

func (b *Batch) clone() *Batch {
	cp := *b
	cp.JobIDs = append([]string(nil), b.JobIDs...)
	cp.Results = append([]JobResult(nil), b.Results...)
	cp.Errors = append([]string(nil), b.Errors...)
	cp.StartedAt = cloneTime(b.StartedAt)
	cp.CompletedAt = cloneTime(b.CompletedAt)
	return &cp
}

// Terminal reports whether every job of the batch has reached a final outcome.
func (b *Batch) Terminal() bool {
	return b.CompletedJobs+b.FailedJobs >= b.TotalJobs
}

/*
recompute applies the terminal rule: completed when nothing failed, failed when
nothing completed, partially_completed otherwise.
*/
func (b *Batch) recompute(now time.Time) {
	if !b.Terminal() {
		if b.StartedAt != nil {
			b.Status = BatchProcessing
		}
		b.CompletedAt = nil
		return
	}

	switch {
	case b.FailedJobs == 0:
		b.Status = BatchCompleted
	case b.CompletedJobs == 0:
		b.Status = BatchFailed
	default:
		b.Status = BatchPartiallyCompleted
	}

	if b.CompletedAt == nil {
		b.CompletedAt = timePtr(now)
	}
}

// JobOutcome is what ProcessNext reports for each job it ran.
type JobOutcome struct {
	JobID            string          `json:"jobId"`
	BatchID          string          `json:"batchId"`
	Status           JobStatus       `json:"status"`
	Attempts         int             `json:"attempts"`
	Result           json.RawMessage `json:"result,omitempty"`
	Error            string          `json:"error,omitempty"`
	ProcessingTimeMs int64           `json:"processingTime"`
	NextRetryAt      *time.Time      `json:"nextRetryAt,omitempty"`
	DeadLettered     bool            `json:"deadLettered,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}
