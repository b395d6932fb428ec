package service

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

const DefaultCleanupInterval = time.Hour

// Cleanup forgets jobs finished more than age ago and deletes their posters, as well as
// any stored poster older than age.
func (s *PosterService) Cleanup(ctx context.Context, age time.Duration) {
	tracer := s.logger.WithContext(ctx).Operation("cleanup").WithParam("age", age).Build()
	cutoff := time.Now().Add(-age)

	pruned := s.registry.Prune(cutoff)
	for _, job := range pruned {
		if job.ResultFile == nil {
			continue
		}
		if err := s.storage.Delete(ctx, *job.ResultFile); err != nil {
			tracer.Step("delete_poster_failed").WithString("job_id", job.ID).WithParam("error", err).Log()
		}
	}

	files, err := s.storage.Prune(ctx, cutoff)
	if err != nil {
		tracer.Error(err).Log()
		return
	}

	if len(pruned) > 0 || files > 0 {
		zap.S().Named("poster_service").Infow("cleaned up old posters", "jobs", len(pruned), "files", files)
	}
	tracer.Success().WithInt("jobs", len(pruned)).WithInt("files", files).Log()
}

// RunCleanup calls Cleanup every interval, jittered, until ctx is done.
func (s *PosterService) RunCleanup(ctx context.Context, interval, age time.Duration) {
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 60, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.Cleanup(ctx, age)
	}
}
