// Package jobs tracks batch import jobs for the lifetime of the process.
package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

// DefaultMaxJobs is the registry capacity when none is configured.
const DefaultMaxJobs = 100

type entry struct {
	job   models.ImportJob
	token *CancelToken
}

// Registry holds import job state. Readers always receive snapshots; each job
// is written by a single worker plus Cancel.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*entry
	maxJobs int
	now     func() time.Time
	logger  *zap.Logger
}

// NewRegistry creates an empty registry holding at most maxJobs jobs.
func NewRegistry(maxJobs int, logger *zap.Logger) *Registry {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	return &Registry{
		jobs:    make(map[string]*entry),
		maxJobs: maxJobs,
		now:     time.Now,
		logger:  logger.Named("jobs"),
	}
}

// Create registers a pending job and returns its snapshot and cancel token.
func (r *Registry) Create(kind models.ImportKind, total int) (models.ImportJob, *CancelToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.jobs) >= r.maxJobs {
		r.evictLocked()
	}

	id := newJobID()
	for r.jobs[id] != nil {
		id = newJobID()
	}

	e := &entry{
		job: models.ImportJob{
			ID:     id,
			Kind:   kind,
			Status: models.JobStatusPending,
			Progress: models.ImportProgress{
				Total:   total,
				Message: "Queued",
			},
			CreatedAt: r.now().UTC(),
		},
		token: &CancelToken{},
	}
	r.jobs[id] = e

	r.logger.Debug("Created import job",
		zap.String("job_id", id),
		zap.String("kind", string(kind)),
		zap.Int("total", total))
	return snapshot(e.job), e.token
}

// evictLocked drops the oldest half of finished jobs. Running jobs are never evicted.
func (r *Registry) evictLocked() {
	var finished []*entry
	for _, e := range r.jobs {
		if e.job.Status.Terminal() {
			finished = append(finished, e)
		}
	}
	if len(finished) == 0 {
		r.logger.Warn("Job registry full with no finished jobs to evict",
			zap.Int("jobs", len(r.jobs)))
		return
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].job.CreatedAt.Before(finished[j].job.CreatedAt)
	})
	n := (len(finished) + 1) / 2
	for _, e := range finished[:n] {
		delete(r.jobs, e.job.ID)
	}
	r.logger.Debug("Evicted finished import jobs", zap.Int("evicted", n))
}

// Get returns a snapshot of job id.
func (r *Registry) Get(id string) (models.ImportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[id]
	if !ok {
		return models.ImportJob{}, fmt.Errorf("import job %s: %w", id, apperrors.ErrNotFound)
	}
	return snapshot(e.job), nil
}

// List returns snapshots of all jobs, newest first.
func (r *Registry) List() []models.ImportJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ImportJob, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, snapshot(e.job))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel requests cooperative cancellation of a pending or running job.
// The worker observes the token and records the cancelled state itself.
func (r *Registry) Cancel(id string) (models.ImportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return models.ImportJob{}, fmt.Errorf("import job %s: %w", id, apperrors.ErrNotFound)
	}
	if e.job.Status.Terminal() {
		return models.ImportJob{}, fmt.Errorf("import job %s is already %s: %w", id, e.job.Status, apperrors.ErrConflict)
	}

	e.token.Cancel()
	e.job.Progress.Message = "Cancellation requested"
	r.logger.Info("Cancellation requested", zap.String("job_id", id))
	return snapshot(e.job), nil
}

// Start marks a pending job running.
func (r *Registry) Start(id string) {
	r.update(id, func(job *models.ImportJob) {
		if job.Status != models.JobStatusPending {
			return
		}
		now := r.now().UTC()
		job.Status = models.JobStatusRunning
		job.StartedAt = &now
		job.Progress.Message = "Processing"
	})
}

// SetTotal records the row count once the upload has been parsed.
func (r *Registry) SetTotal(id string, total int) {
	r.update(id, func(job *models.ImportJob) {
		job.Progress.Total = total
		job.Progress.Percentage = models.ComputePercentage(job.Progress.Current, total)
	})
}

// Advance records progress. current never moves backwards.
func (r *Registry) Advance(id string, current, successful, errors int, message string) {
	r.update(id, func(job *models.ImportJob) {
		if job.Status.Terminal() {
			return
		}
		if current > job.Progress.Current {
			job.Progress.Current = current
		}
		job.Progress.Successful = successful
		job.Progress.Errors = errors
		job.Progress.Percentage = models.ComputePercentage(job.Progress.Current, job.Progress.Total)
		if message != "" {
			job.Progress.Message = message
		}
	})
}

// Complete marks the job completed with its result.
func (r *Registry) Complete(id string, result *models.ImportResult) {
	r.finish(id, models.JobStatusCompleted, result, "")
}

// Fail marks the job failed.
func (r *Registry) Fail(id string, err error) {
	msg := "import failed"
	if err != nil {
		msg = err.Error()
	}
	r.finish(id, models.JobStatusFailed, nil, msg)
}

// MarkCancelled records that the worker stopped on cancellation. Rows already
// processed are reported in result.
func (r *Registry) MarkCancelled(id string, result *models.ImportResult) {
	r.finish(id, models.JobStatusCancelled, result, "")
}

func (r *Registry) finish(id string, status models.JobStatus, result *models.ImportResult, errMsg string) {
	r.update(id, func(job *models.ImportJob) {
		if job.Status.Terminal() {
			return
		}
		now := r.now().UTC()
		job.Status = status
		job.CompletedAt = &now
		job.Result = result
		job.Error = errMsg
		switch status {
		case models.JobStatusCompleted:
			job.Progress.Message = "Completed"
		case models.JobStatusCancelled:
			job.Progress.Message = "Cancelled"
		case models.JobStatusFailed:
			job.Progress.Message = "Failed"
		}
	})
}

func (r *Registry) update(id string, fn func(job *models.ImportJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		r.logger.Warn("Update for unknown import job", zap.String("job_id", id))
		return
	}
	fn(&e.job)
}

func newJobID() string {
	return uuid.New().String()[:8]
}

// snapshot deep-copies a job so callers never share mutable state with the worker.
func snapshot(job models.ImportJob) models.ImportJob {
	if job.StartedAt != nil {
		t := *job.StartedAt
		job.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		job.CompletedAt = &t
	}
	if job.Result != nil {
		res := *job.Result
		res.ImportedIDs = append([]string(nil), res.ImportedIDs...)
		res.Errors = append([]models.RowError{}, res.Errors...)
		job.Result = &res
	}
	return job
}
