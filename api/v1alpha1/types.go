package v1alpha1

import (
	"encoding/json"
	"time"
)

type SizePreset string

const (
	SizeNeighborhood SizePreset = "neighborhood"
	SizeSmall        SizePreset = "small"
	SizeCity         SizePreset = "city"
	SizeMetro        SizePreset = "metro"
	SizeRegion       SizePreset = "region"
	SizeAuto         SizePreset = "auto"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// PosterRequest is the body of POST /api/posters.
type PosterRequest struct {
	City     string     `json:"city" validate:"required,not_blank,max=100"`
	State    *string    `json:"state,omitempty" validate:"omitempty,max=100"`
	Country  string     `json:"country" validate:"required,not_blank,max=100"`
	Theme    string     `json:"theme" validate:"required,theme_id"`
	Size     SizePreset `json:"size,omitempty" validate:"omitempty,size_preset"`
	Distance *int       `json:"distance,omitempty" validate:"omitempty,min=1000,max=50000"`
}

type JobCreated struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

type Job struct {
	ID          string          `json:"id"`
	Status      JobStatus       `json:"status"`
	Request     json.RawMessage `json:"request"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	ResultFile  *string         `json:"result_file"`
	Error       *string         `json:"error"`
	Progress    int             `json:"progress"`
}

type JobList struct {
	Jobs []Job `json:"jobs"`
}

type ThemeInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Bg          string  `json:"bg"`
	Text        string  `json:"text"`
}

type ThemesResponse struct {
	Themes []ThemeInfo `json:"themes"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type RootResponse struct {
	Message string `json:"message"`
	Docs    string `json:"docs"`
}

// Error is the body of every error response.
type Error struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
