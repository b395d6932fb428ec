package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	api "github.com/maptoposter/poster-api/api/v1alpha1"
	"github.com/maptoposter/poster-api/internal/handlers/validator"
	"github.com/maptoposter/poster-api/internal/jobs"
	"github.com/maptoposter/poster-api/internal/render"
	"github.com/maptoposter/poster-api/internal/storage"
	"github.com/maptoposter/poster-api/internal/themes"
	"github.com/maptoposter/poster-api/pkg/log"
	"github.com/maptoposter/poster-api/pkg/metrics"
)

const (
	defaultWorkers           = 2
	defaultQueueSize         = 64
	defaultGenerationTimeout = 10 * time.Minute

	posterExtension = ".png"
)

// progress reported while generating
const (
	progressStarted  = 10
	progressGeocoded = 40
	progressFetched  = 60
	progressRendered = 80
	progressStored   = 95
)

type Option func(s *PosterService)

func WithWorkers(workers int) Option {
	return func(s *PosterService) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

func WithQueueSize(size int) Option {
	return func(s *PosterService) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

func WithGenerationTimeout(timeout time.Duration) Option {
	return func(s *PosterService) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

type task struct {
	jobID   string
	request api.PosterRequest
}

// PosterService creates poster jobs and runs them on a bounded pool of workers.
type PosterService struct {
	registry  *jobs.Registry
	cache     MapCache
	source    MapSource
	themes    ThemeCatalog
	renderer  Renderer
	storage   storage.Storage
	notifier  Notifier
	validator *validator.Validator
	logger    *log.StructuredLogger

	workers   int
	queueSize int
	timeout   time.Duration
	queue     chan task
	wg        sync.WaitGroup
	startOnce sync.Once
}

func NewPosterService(
	registry *jobs.Registry,
	cache MapCache,
	source MapSource,
	catalog ThemeCatalog,
	renderer Renderer,
	store storage.Storage,
	notifier Notifier,
	opts ...Option,
) *PosterService {
	s := &PosterService{
		registry:  registry,
		cache:     cache,
		source:    source,
		themes:    catalog,
		renderer:  renderer,
		storage:   store,
		notifier:  notifier,
		validator: validator.NewValidator().Register(validator.NewPosterValidationRules()...),
		logger:    log.NewDebugLogger("poster_service"),
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		timeout:   defaultGenerationTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	s.queue = make(chan task, s.queueSize)
	return s
}

// Start launches the workers. They stop once ctx is done; Wait blocks until they have.
func (s *PosterService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.work(ctx)
		}
		zap.S().Named("poster_service").Infow("poster workers started", "workers", s.workers, "queue_size", s.queueSize)
	})
}

func (s *PosterService) Wait() {
	s.wg.Wait()
}

// Create validates the request, registers a pending job and queues its generation.
func (s *PosterService) Create(ctx context.Context, req api.PosterRequest) (jobs.Job, error) {
	tracer := s.logger.WithContext(ctx).Operation("create_poster").
		WithString("city", req.City).
		WithString("country", req.Country).
		WithString("theme", req.Theme).
		Build()

	req = normalize(req)
	if err := s.validator.Struct(req); err != nil {
		tracer.Error(err).Log()
		return jobs.Job{}, NewErrInvalidPosterRequest("%s", err)
	}

	if _, err := s.themes.Get(req.Theme); err != nil {
		tracer.Error(err).Log()
		if errors.Is(err, themes.ErrThemeNotFound) {
			return jobs.Job{}, NewErrThemeNotFound(req.Theme)
		}
		return jobs.Job{}, err
	}

	id, err := s.registry.Create(req)
	if err != nil {
		tracer.Error(err).Log()
		return jobs.Job{}, err
	}
	tracer.Step("job_registered").WithString("job_id", id).Log()

	job, _ := s.registry.Get(id)
	s.publish(ctx, job)

	select {
	case s.queue <- task{jobID: id, request: req}:
	default:
		// the job must not stay pending forever
		s.update(ctx, id, jobs.Update{}.WithStatus(jobs.StatusFailed).WithError("server busy"))
		metrics.IncreaseJobsTotalMetric(string(jobs.StatusFailed))
		err := NewErrServiceBusy(len(s.queue))
		tracer.Error(err).Log()
		return jobs.Job{}, err
	}

	tracer.Success().WithString("job_id", id).Log()
	return job, nil
}

func (s *PosterService) Job(id string) (jobs.Job, error) {
	job, ok := s.registry.Get(id)
	if !ok {
		return jobs.Job{}, NewErrJobNotFound(id)
	}
	return job, nil
}

func (s *PosterService) Jobs() []jobs.Job {
	return s.registry.List()
}

// Cancel fails an unfinished job with reason. A queued job is then skipped by the workers
// and an already running one can no longer complete.
func (s *PosterService) Cancel(ctx context.Context, id string, reason string) error {
	job, ok := s.registry.Get(id)
	if !ok {
		return NewErrJobNotFound(id)
	}
	if job.Status.Terminal() {
		return nil
	}
	s.update(ctx, id, jobs.Update{}.WithStatus(jobs.StatusFailed).WithError(reason))
	metrics.IncreaseJobsTotalMetric(string(jobs.StatusFailed))
	zap.S().Named("poster_service").Infow("job cancelled", "job_id", id, "reason", reason)
	return nil
}

// Poster opens the rendered poster of a completed job.
func (s *PosterService) Poster(ctx context.Context, id string) (io.ReadCloser, error) {
	job, ok := s.registry.Get(id)
	if !ok {
		return nil, NewErrJobNotFound(id)
	}
	if job.Status != jobs.StatusCompleted || job.ResultFile == nil {
		return nil, NewErrPosterNotReady(id, string(job.Status))
	}

	rc, err := s.storage.Open(ctx, *job.ResultFile)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewErrPosterNotFound(id)
		}
		return nil, err
	}
	return rc, nil
}

func (s *PosterService) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.queue:
			s.generate(ctx, t)
		}
	}
}

// generate runs one job to a terminal status. Failures are recorded on the job.
func (s *PosterService) generate(ctx context.Context, t task) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tracer := s.logger.WithContext(ctx).Operation("generate_poster").WithString("job_id", t.jobID).Build()
	start := time.Now()

	if job, ok := s.registry.Get(t.jobID); !ok || job.Status.Terminal() {
		tracer.Step("skipped").WithBool("known", ok).Log()
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, t.jobID, start, fmt.Errorf("poster generation panicked: %v", r))
		}
	}()

	s.update(ctx, t.jobID, jobs.Update{}.WithStatus(jobs.StatusProcessing).WithProgress(progressStarted))

	file, err := s.run(ctx, t)
	if err != nil {
		tracer.Error(err).Log()
		s.fail(ctx, t.jobID, start, err)
		return
	}

	s.update(ctx, t.jobID, jobs.Update{}.WithStatus(jobs.StatusCompleted).WithProgress(100).WithResultFile(file))
	metrics.IncreaseJobsTotalMetric(string(jobs.StatusCompleted))
	metrics.ObserveGenerationDuration(string(jobs.StatusCompleted), time.Since(start))
	tracer.Success().WithString("result_file", file).Log()
}

func (s *PosterService) run(ctx context.Context, t task) (string, error) {
	theme, err := s.themes.Get(t.request.Theme)
	if err != nil {
		return "", err
	}

	data, err := s.mapData(ctx, t.jobID, t.request)
	if err != nil {
		return "", err
	}

	img, err := s.renderer.Render(data, theme, render.Labels{
		City:    t.request.City,
		Country: t.request.Country,
		Center:  data.Center,
	})
	if err != nil {
		return "", fmt.Errorf("rendering poster: %w", err)
	}
	s.update(ctx, t.jobID, jobs.Update{}.WithProgress(progressRendered))

	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, img); err != nil {
		return "", fmt.Errorf("encoding poster: %w", err)
	}

	file := t.jobID + posterExtension
	if err := s.storage.Save(ctx, file, &buf, int64(buf.Len())); err != nil {
		return "", fmt.Errorf("storing poster: %w", err)
	}
	s.update(ctx, t.jobID, jobs.Update{}.WithProgress(progressStored))

	return file, nil
}

func (s *PosterService) fail(ctx context.Context, id string, start time.Time, err error) {
	s.update(ctx, id, jobs.Update{}.WithStatus(jobs.StatusFailed).WithError(err.Error()))
	metrics.IncreaseJobsTotalMetric(string(jobs.StatusFailed))
	metrics.ObserveGenerationDuration(string(jobs.StatusFailed), time.Since(start))
}

// update applies u and publishes the new snapshot.
func (s *PosterService) update(ctx context.Context, id string, u jobs.Update) {
	job, ok := s.registry.Update(id, u)
	if !ok {
		return
	}
	s.publish(ctx, job)
}

func (s *PosterService) publish(ctx context.Context, job jobs.Job) {
	if s.notifier == nil {
		return
	}
	// the job context may be done already, a terminal update must still go out
	if err := s.notifier.Publish(context.WithoutCancel(ctx), job); err != nil {
		zap.S().Named("poster_service").Warnw("failed to publish job update", "job_id", job.ID, "error", err)
	}
}

func normalize(req api.PosterRequest) api.PosterRequest {
	req.City = strings.TrimSpace(req.City)
	req.Country = strings.TrimSpace(req.Country)
	req.Theme = strings.TrimSpace(req.Theme)
	if req.State != nil {
		state := strings.TrimSpace(*req.State)
		if state == "" {
			req.State = nil
		} else {
			req.State = &state
		}
	}
	if req.Size == "" {
		req.Size = api.SizeAuto
	}
	return req
}
