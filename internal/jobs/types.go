package jobs

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// rank orders statuses along the lifecycle. Completed and failed share a rank.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo allows pending -> processing -> {completed, failed}. Skipping processing is
// allowed so that a job rejected before it started can still fail.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() || s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Job is a tracked poster generation request.
type Job struct {
	ID          string          `json:"id"`
	Status      Status          `json:"status"`
	Request     json.RawMessage `json:"request"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	ResultFile  *string         `json:"result_file"`
	Error       *string         `json:"error"`
	Progress    int             `json:"progress"`
}

// Update is a partial job update. Nil fields are left untouched.
type Update struct {
	Status      *Status
	Progress    *int
	ResultFile  *string
	Error       *string
	CompletedAt *time.Time
}

func (u Update) WithStatus(s Status) Update {
	u.Status = &s
	return u
}

func (u Update) WithProgress(p int) Update {
	u.Progress = &p
	return u
}

func (u Update) WithResultFile(f string) Update {
	u.ResultFile = &f
	return u
}

func (u Update) WithError(msg string) Update {
	u.Error = &msg
	return u
}

func (u Update) WithCompletedAt(t time.Time) Update {
	u.CompletedAt = &t
	return u
}

func (j *Job) clone() Job {
	c := *j
	if j.Request != nil {
		c.Request = append(json.RawMessage(nil), j.Request...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.ResultFile != nil {
		f := *j.ResultFile
		c.ResultFile = &f
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return c
}
