package jobs

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Option func(r *Registry)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry keeps poster jobs in memory for the lifetime of the process.
// It does not notify anyone: callers publish the snapshots returned by Update.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
	now   func() time.Time
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create registers a pending job for request and returns its id.
func (r *Registry) Create(request any) (string, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encoding job request: %w", err)
	}

	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Request:   payload,
		CreatedAt: r.now().UTC(),
		Progress:  0,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)

	return job.ID, nil
}

// Update merges u into the job and returns the new snapshot. It returns false when the id
// is unknown. A status change which would move the job backwards, or out of a terminal
// status, is dropped; so is a progress change once the job is terminal.
func (r *Registry) Update(id string, u Update) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, found := r.jobs[id]
	if !found {
		return Job{}, false
	}

	wasTerminal := job.Status.Terminal()

	if u.Status != nil && *u.Status != job.Status {
		if job.Status.CanTransitionTo(*u.Status) {
			job.Status = *u.Status
		} else {
			zap.S().Named("job_registry").Warnw("dropping invalid job transition",
				"job_id", id, "from", job.Status, "to", *u.Status)
		}
	}

	if u.Progress != nil && !wasTerminal {
		job.Progress = *u.Progress
	}
	if u.ResultFile != nil {
		f := *u.ResultFile
		job.ResultFile = &f
	}
	if u.Error != nil {
		e := *u.Error
		job.Error = &e
	}
	if u.CompletedAt != nil {
		t := u.CompletedAt.UTC()
		job.CompletedAt = &t
	}

	if job.Status.Terminal() && !wasTerminal {
		if job.CompletedAt == nil {
			t := r.now().UTC()
			job.CompletedAt = &t
		}
		if job.Status == StatusCompleted {
			job.Progress = 100
		}
	}

	return job.clone(), true
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, found := r.jobs[id]
	if !found {
		return Job{}, false
	}
	return job.clone(), true
}

// List returns snapshots of every job in creation order.
func (r *Registry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Job, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, r.jobs[id].clone())
	}
	return list
}

// CountByStatus returns the number of jobs in each status.
func (r *Registry) CountByStatus() map[Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[Status]int{
		StatusPending:    0,
		StatusProcessing: 0,
		StatusCompleted:  0,
		StatusFailed:     0,
	}
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts
}

// Prune removes terminal jobs completed before cutoff and returns the removed jobs.
// Pending and processing jobs are never pruned.
func (r *Registry) Prune(cutoff time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Job
	kept := r.order[:0]
	for _, id := range r.order {
		job := r.jobs[id]
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			removed = append(removed, job.clone())
			delete(r.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept

	return removed
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
