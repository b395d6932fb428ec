package mappers

import (
	api "github.com/maptoposter/poster-api/api/v1alpha1"
	"github.com/maptoposter/poster-api/internal/jobs"
	"github.com/maptoposter/poster-api/internal/themes"
)

func JobToApi(job jobs.Job) api.Job {
	return api.Job{
		ID:          job.ID,
		Status:      api.StringToJobStatus(string(job.Status)),
		Request:     job.Request,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		ResultFile:  job.ResultFile,
		Error:       job.Error,
		Progress:    job.Progress,
	}
}

// JobListToApi never returns a nil slice so an empty registry renders as [].
func JobListToApi(list []jobs.Job) api.JobList {
	out := api.JobList{Jobs: make([]api.Job, 0, len(list))}
	for _, job := range list {
		out.Jobs = append(out.Jobs, JobToApi(job))
	}
	return out
}

func JobCreatedToApi(job jobs.Job) api.JobCreated {
	return api.JobCreated{
		JobID:  job.ID,
		Status: api.StringToJobStatus(string(job.Status)),
	}
}

func ThemesToApi(list []themes.ThemeInfo) api.ThemesResponse {
	out := api.ThemesResponse{Themes: make([]api.ThemeInfo, 0, len(list))}
	for _, t := range list {
		out.Themes = append(out.Themes, api.ThemeInfo{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Bg:          t.Background,
			Text:        t.Text,
		})
	}
	return out
}
