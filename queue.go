package ridinglookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/theapemachine/errnie"
)

// QueueCoordinatorName is the fixed address of the job queue actor in a Store.
const QueueCoordinatorName = "job-queue-coordinator"

/*
Executor runs one job. It receives a copy of the job; the queue owns the real one.
Implementations are expected to reach their upstream dependencies through a Guard
(or RunWithRetry / RunWithTimeout / CircuitBreaker directly).
*/
type Executor func(ctx context.Context, job *Job) (any, error)

// QueueOption configures a JobQueueCoordinator.
type QueueOption func(*JobQueueCoordinator)

// WithStore sets where the queue persists its state.
func WithStore(store Store) QueueOption {
	return func(q *JobQueueCoordinator) {
		q.store = store
	}
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) QueueOption {
	return func(q *JobQueueCoordinator) {
		q.now = clock
	}
}

// WithMaxAttempts sets the attempt budget of newly submitted jobs.
func WithMaxAttempts(n int) QueueOption {
	return func(q *JobQueueCoordinator) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithJobTimeout bounds a single execution. Zero disables the deadline.
func WithJobTimeout(timeout time.Duration) QueueOption {
	return func(q *JobQueueCoordinator) {
		q.jobTimeout = timeout
	}
}

// WithRetryBackoff sets how far in the future a failed job is rescheduled.
func WithRetryBackoff(policy RetryPolicy) QueueOption {
	return func(q *JobQueueCoordinator) {
		q.backoff = policy
	}
}

// WithIDGenerator replaces uuid.NewString for batch and job IDs.
func WithIDGenerator(gen func() string) QueueOption {
	return func(q *JobQueueCoordinator) {
		q.newID = gen
	}
}

type queueBlob struct {
	Jobs       map[string]*Job   `json:"jobs"`
	Batches    map[string]*Batch `json:"batches"`
	Ready      []string          `json:"ready"`
	Retry      []string          `json:"retry"`
	DeadLetter []string          `json:"deadLetter"`
}

/*
JobQueueCoordinator owns the canonical job and batch state.

Every state read and write runs on the coordinator's actor goroutine; the maps below
are never touched from anywhere else. Job execution itself happens on the caller's
goroutine between two actor calls (claim, then apply), so a slow job does not hold
up status or stats requests, and concurrent ProcessNext callers work on disjoint
jobs because claiming pops IDs off the ready-queue atomically.
*/
type JobQueueCoordinator struct {
	actor   *actor
	store   Store
	exec    Executor
	metrics *Metrics

	now         func() time.Time
	newID       func() string
	maxAttempts int
	jobTimeout  time.Duration
	backoff     RetryPolicy

	// Owned by the actor goroutine.
	jobs       map[string]*Job
	batches    map[string]*Batch
	ready      []string
	retry      []string
	deadLetter []string
}

// NewJobQueueCoordinator loads persisted state and starts the actor.
func NewJobQueueCoordinator(ctx context.Context, exec Executor, opts ...QueueOption) (*JobQueueCoordinator, error) {
	if exec == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrInvalidInput)
	}

	q := &JobQueueCoordinator{
		exec:        exec,
		store:       NewMemoryStore(),
		metrics:     NewMetrics(),
		now:         time.Now,
		newID:       uuid.NewString,
		maxAttempts: DefaultMaxAttempts,
		jobTimeout:  30 * time.Second,
		backoff: RetryPolicy{
			BaseDelay:         time.Second,
			MaxDelay:          30 * time.Second,
			BackoffMultiplier: 2,
		},
		jobs:    make(map[string]*Job),
		batches: make(map[string]*Batch),
	}

	for _, opt := range opts {
		opt(q)
	}

	if err := q.load(ctx); err != nil {
		return nil, err
	}

	q.actor = newActor(256)
	return q, nil
}

func (q *JobQueueCoordinator) load(ctx context.Context) error {
	raw, err := q.store.Load(ctx, QueueCoordinatorName)
	if err != nil {
		return fmt.Errorf("loading %s: %w", QueueCoordinatorName, err)
	}
	if raw == nil {
		errnie.Info("JobQueueCoordinator - cold start with no persisted state")
		return nil
	}

	var blob queueBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return fmt.Errorf("decoding %s: %w", QueueCoordinatorName, err)
	}

	if blob.Jobs != nil {
		q.jobs = blob.Jobs
	}
	if blob.Batches != nil {
		q.batches = blob.Batches
	}
	q.ready = blob.Ready
	q.retry = blob.Retry
	q.deadLetter = blob.DeadLetter

	recovered := q.recoverInFlight()

	errnie.Info(
		"JobQueueCoordinator - restored %d batches, %d jobs, %d in flight requeued",
		len(q.batches), len(q.jobs), recovered,
	)

	if recovered > 0 {
		return q.persist(ctx)
	}
	return nil
}

/*
recoverInFlight puts jobs that were claimed but never finished (the process died
mid-execution) back on the ready-queue. The attempt they were on is not refunded.
*/
func (q *JobQueueCoordinator) recoverInFlight() int {
	var stuck []*Job
	for _, job := range q.jobs {
		if job.Status == JobProcessing {
			stuck = append(stuck, job)
		}
	}

	sort.Slice(stuck, func(i, j int) bool {
		if stuck[i].CreatedAt.Equal(stuck[j].CreatedAt) {
			return stuck[i].ID < stuck[j].ID
		}
		return stuck[i].CreatedAt.Before(stuck[j].CreatedAt)
	})

	for _, job := range stuck {
		job.Status = JobPending
		if !slices.Contains(q.ready, job.ID) {
			q.ready = append(q.ready, job.ID)
		}
	}

	return len(stuck)
}

// persist runs on the actor goroutine.
func (q *JobQueueCoordinator) persist(ctx context.Context) error {
	raw, err := json.Marshal(queueBlob{
		Jobs:       q.jobs,
		Batches:    q.batches,
		Ready:      q.ready,
		Retry:      q.retry,
		DeadLetter: q.deadLetter,
	})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", QueueCoordinatorName, err)
	}

	if err := q.store.Save(ctx, QueueCoordinatorName, raw); err != nil {
		return fmt.Errorf("persisting %s: %w", QueueCoordinatorName, err)
	}
	return nil
}

func (q *JobQueueCoordinator) persistOrLog(ctx context.Context) {
	if err := q.persist(ctx); err != nil {
		Logger().Error("queue state not persisted", "err", err)
	}
}

/*
DecodeItems checks that raw is a JSON array and splits it into one payload per item.
Anything else, including an empty array, is ErrInvalidInput.
*/
func DecodeItems(raw json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: items must be a list", ErrInvalidInput)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: items must not be empty", ErrInvalidInput)
	}
	return items, nil
}

/*
SubmitBatch creates one batch and one pending job per item and appends every job to
the ready-queue. Either all of it is created and persisted or none of it is.
*/
func (q *JobQueueCoordinator) SubmitBatch(ctx context.Context, items []json.RawMessage) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("%w: items must not be empty", ErrInvalidInput)
	}

	var (
		batchID string
		saveErr error
	)

	if err := q.actor.call(ctx, func() {
		now := q.now()

		batch := &Batch{
			ID:        q.newID(),
			Status:    BatchPending,
			TotalJobs: len(items),
			CreatedAt: now,
			JobIDs:    make([]string, 0, len(items)),
			Results:   []JobResult{},
			Errors:    []string{},
		}

		jobs := make([]*Job, 0, len(items))
		for _, item := range items {
			job := &Job{
				ID:          q.newID(),
				BatchID:     batch.ID,
				Payload:     append(json.RawMessage(nil), item...),
				Status:      JobPending,
				MaxAttempts: q.maxAttempts,
				CreatedAt:   now,
			}
			jobs = append(jobs, job)
			batch.JobIDs = append(batch.JobIDs, job.ID)
		}

		readyLen := len(q.ready)

		q.batches[batch.ID] = batch
		for _, job := range jobs {
			q.jobs[job.ID] = job
		}
		q.ready = append(q.ready, batch.JobIDs...)

		if saveErr = q.persist(ctx); saveErr != nil {
			delete(q.batches, batch.ID)
			for _, job := range jobs {
				delete(q.jobs, job.ID)
			}
			q.ready = q.ready[:readyLen]
			return
		}

		batchID = batch.ID
		Logger().Info("batch submitted", "batch", batch.ID, "jobs", batch.TotalJobs)
	}); err != nil {
		return "", err
	}

	return batchID, saveErr
}

// Status is the answer to GetStatus: exactly one of Batch and Job is set.
type Status struct {
	Type  string `json:"type"`
	Batch *Batch `json:"batch,omitempty"`
	Job   *Job   `json:"job,omitempty"`
}

// GetStatus looks id up as a batch, then as a job.
func (q *JobQueueCoordinator) GetStatus(ctx context.Context, id string) (*Status, error) {
	var status *Status

	if err := q.actor.call(ctx, func() {
		if batch, ok := q.batches[id]; ok {
			status = &Status{Type: "batch", Batch: batch.clone()}
			return
		}
		if job, ok := q.jobs[id]; ok {
			status = &Status{Type: "job", Job: job.clone()}
		}
	}); err != nil {
		return nil, err
	}

	if status == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return status, nil
}

// GetBatch returns a copy of the batch.
func (q *JobQueueCoordinator) GetBatch(ctx context.Context, id string) (*Batch, error) {
	status, err := q.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if status.Batch == nil {
		return nil, fmt.Errorf("%w: batch %s", ErrNotFound, id)
	}
	return status.Batch, nil
}

// GetJob returns a copy of the job.
func (q *JobQueueCoordinator) GetJob(ctx context.Context, id string) (*Job, error) {
	status, err := q.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if status.Job == nil {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return status.Job, nil
}

/*
ProcessNext pops up to maxJobs IDs off the ready-queue and runs each job in FIFO
order. A popped job is gone from the ready-queue before it runs, so no other caller
can pick it up. Outcomes are recorded even if ctx ends while a job is running;
claimed jobs that have not started yet when ctx ends go back to the head of the
ready-queue untouched.
*/
func (q *JobQueueCoordinator) ProcessNext(ctx context.Context, maxJobs int) ([]JobOutcome, error) {
	if maxJobs < 1 {
		return nil, fmt.Errorf("%w: maxJobs must be positive", ErrInvalidInput)
	}

	claimed, err := q.claim(ctx, maxJobs)
	if err != nil {
		return nil, err
	}

	// Bookkeeping must land even when the caller has gone away.
	bookCtx := context.WithoutCancel(ctx)
	outcomes := make([]JobOutcome, 0, len(claimed))

	for i, job := range claimed {
		if ctx.Err() != nil {
			if err := q.release(bookCtx, claimed[i:]); err != nil {
				return outcomes, err
			}
			return outcomes, ctx.Err()
		}

		start := time.Now()
		result, execErr := RunWithTimeout(ctx, q.jobTimeout, "job "+job.ID, func(ctx context.Context) (any, error) {
			return q.exec(ctx, job)
		})
		elapsed := time.Since(start)

		outcome, err := q.apply(bookCtx, job.ID, result, execErr, elapsed)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func (q *JobQueueCoordinator) claim(ctx context.Context, maxJobs int) ([]*Job, error) {
	var claimed []*Job

	err := q.actor.call(ctx, func() {
		now := q.now()

		for len(q.ready) > 0 && len(claimed) < maxJobs {
			id := q.ready[0]
			q.ready = q.ready[1:]

			job, ok := q.jobs[id]
			if !ok || job.Status != JobPending {
				continue
			}

			job.Status = JobProcessing
			job.Attempts++
			job.StartedAt = timePtr(now)
			job.NextRetryAt = nil

			if batch, ok := q.batches[job.BatchID]; ok && batch.StartedAt == nil {
				batch.StartedAt = timePtr(now)
				batch.Status = BatchProcessing
			}

			claimed = append(claimed, job.clone())
		}

		if len(claimed) > 0 {
			q.persistOrLog(ctx)
		}
	})

	return claimed, err
}

// release hands unstarted claimed jobs back, keeping their original order at the head.
func (q *JobQueueCoordinator) release(ctx context.Context, jobs []*Job) error {
	return q.actor.call(ctx, func() {
		ids := make([]string, 0, len(jobs))
		for _, claimed := range jobs {
			job, ok := q.jobs[claimed.ID]
			if !ok || job.Status != JobProcessing {
				continue
			}
			job.Status = JobPending
			job.Attempts--
			ids = append(ids, job.ID)
		}
		q.ready = append(ids, q.ready...)
		q.persistOrLog(ctx)
	})
}

func (q *JobQueueCoordinator) apply(
	ctx context.Context, jobID string, result any, execErr error, elapsed time.Duration,
) (JobOutcome, error) {
	var encoded json.RawMessage
	if execErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			execErr = fmt.Errorf("encoding result: %w", err)
		} else {
			encoded = raw
		}
	}

	var outcome JobOutcome

	err := q.actor.call(ctx, func() {
		job, ok := q.jobs[jobID]
		if !ok || job.Status != JobProcessing {
			// Reset or removed while running; the straggler's outcome is dropped.
			outcome = JobOutcome{JobID: jobID, Error: "job no longer in flight"}
			return
		}

		now := q.now()
		ms := elapsed.Milliseconds()
		job.ProcessingTimeMs = &ms
		batch := q.batches[job.BatchID]

		deadLettered := false
		if execErr == nil {
			q.complete(job, batch, encoded, now)
		} else {
			deadLettered = q.fail(job, batch, execErr, now)
		}

		if batch != nil {
			wasTerminal := batch.CompletedAt != nil
			batch.recompute(now)
			if !wasTerminal && batch.Terminal() {
				Logger().Info(
					"batch finished",
					"batch", batch.ID,
					"status", batch.Status,
					"completed", batch.CompletedJobs,
					"failed", batch.FailedJobs,
				)
			}
		}

		q.metrics.recordJobExecution(elapsed, execErr == nil, deadLettered)
		q.persistOrLog(ctx)

		outcome = JobOutcome{
			JobID:            job.ID,
			BatchID:          job.BatchID,
			Status:           job.Status,
			Attempts:         job.Attempts,
			Result:           job.Result,
			Error:            job.Error,
			ProcessingTimeMs: ms,
			NextRetryAt:      cloneTime(job.NextRetryAt),
			DeadLettered:     deadLettered,
		}
	})

	return outcome, err
}

func (q *JobQueueCoordinator) complete(job *Job, batch *Batch, result json.RawMessage, now time.Time) {
	job.Status = JobCompleted
	job.Result = result
	job.Error = ""
	job.CompletedAt = timePtr(now)

	if batch != nil {
		batch.CompletedJobs++
		batch.Results = append(batch.Results, JobResult{
			JobID:            job.ID,
			Result:           result,
			ProcessingTimeMs: *job.ProcessingTimeMs,
			CompletedAt:      now,
		})
	}

	Logger().Debug("job completed", "job", job.ID, "attempts", job.Attempts)
}

/*
fail records a failed attempt. Under the attempt limit the job is scheduled on the
retry-queue, no earlier than the breaker's next probe when the failure was a breaker
rejection. At the limit it becomes terminal, joins the dead-letter set and counts
against the batch. Reports whether the job was dead-lettered.
*/
func (q *JobQueueCoordinator) fail(job *Job, batch *Batch, execErr error, now time.Time) bool {
	job.Error = execErr.Error()

	if batch != nil {
		batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %s", job.ID, job.Error))
	}

	if job.Attempts < job.MaxAttempts {
		next := now.Add(q.backoff.NextDelay(job.Attempts))

		var open *BreakerOpenError
		if errors.As(execErr, &open) && open.NextAttemptTime.After(next) {
			next = open.NextAttemptTime
		}

		job.Status = JobRetrying
		job.NextRetryAt = timePtr(next)
		q.retry = append(q.retry, job.ID)

		Logger().Warn(
			"job failed, retry scheduled",
			"job", job.ID,
			"attempt", job.Attempts,
			"max", job.MaxAttempts,
			"next", next,
			"err", execErr,
		)
		return false
	}

	job.Status = JobFailed
	job.NextRetryAt = nil
	job.CompletedAt = timePtr(now)
	q.deadLetter = append(q.deadLetter, job.ID)

	if batch != nil {
		batch.FailedJobs++
	}

	Logger().Warn("job moved to dead letter", "job", job.ID, "attempts", job.Attempts, "err", execErr)
	return true
}

/*
RetryFailed resets every listed job that is failed or retrying: attempts back to
zero, error and schedule cleared, status pending, appended to the ready-queue. Other
IDs are skipped silently; the returned count tells the caller how many took effect.

Reviving a dead-lettered job takes it back out of its batch's failedJobs, so the
batch leaves its terminal status until the job finishes again. This is the one
exception to batch counts only ever growing; without it the job would be counted
twice when it finishes.
*/
func (q *JobQueueCoordinator) RetryFailed(ctx context.Context, jobIDs []string) (int, error) {
	retried := 0

	err := q.actor.call(ctx, func() {
		now := q.now()

		for _, id := range jobIDs {
			job, ok := q.jobs[id]
			if !ok || (job.Status != JobFailed && job.Status != JobRetrying) {
				continue
			}

			if job.Status == JobFailed {
				q.deadLetter = removeID(q.deadLetter, id)
				if batch, ok := q.batches[job.BatchID]; ok && batch.FailedJobs > 0 {
					batch.FailedJobs--
					batch.recompute(now)
				}
			} else {
				q.retry = removeID(q.retry, id)
			}

			job.Status = JobPending
			job.Attempts = 0
			job.Error = ""
			job.NextRetryAt = nil
			job.CompletedAt = nil
			q.ready = append(q.ready, id)
			retried++
		}

		if retried > 0 {
			q.persistOrLog(ctx)
			Logger().Info("jobs requeued", "count", retried, "requested", len(jobIDs))
		}
	})

	return retried, err
}

/*
PromoteDue moves every retry-queue entry whose nextRetryAt has passed to the back of
the ready-queue. Attempts are kept, so the job still dead-letters at its limit.
*/
func (q *JobQueueCoordinator) PromoteDue(ctx context.Context) (int, error) {
	promoted := 0

	err := q.actor.call(ctx, func() {
		now := q.now()
		remaining := q.retry[:0]

		for _, id := range q.retry {
			job, ok := q.jobs[id]
			if !ok || job.Status != JobRetrying {
				continue
			}
			if job.NextRetryAt != nil && job.NextRetryAt.After(now) {
				remaining = append(remaining, id)
				continue
			}

			job.Status = JobPending
			job.NextRetryAt = nil
			q.ready = append(q.ready, id)
			promoted++
		}

		q.retry = remaining

		if promoted > 0 {
			q.persistOrLog(ctx)
			Logger().Debug("retries promoted", "count", promoted)
		}
	})

	return promoted, err
}

// DeadLetters returns the IDs of jobs that exhausted their attempts.
func (q *JobQueueCoordinator) DeadLetters(ctx context.Context) ([]string, error) {
	var ids []string
	err := q.actor.call(ctx, func() {
		ids = append([]string{}, q.deadLetter...)
	})
	return ids, err
}

// Metrics returns the execution metrics of this coordinator.
func (q *JobQueueCoordinator) Metrics() *Metrics {
	return q.metrics
}

// Close stops the actor. Calls after Close return ErrClosed.
func (q *JobQueueCoordinator) Close() {
	q.actor.stop()
	errnie.Info("JobQueueCoordinator - closed")
}

func removeID(ids []string, id string) []string {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}
