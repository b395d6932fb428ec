package v1alpha1

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	api "github.com/maptoposter/poster-api/api/v1alpha1"
	"github.com/maptoposter/poster-api/internal/events"
	"github.com/maptoposter/poster-api/internal/jobs"
	"github.com/maptoposter/poster-api/internal/themes"
)

// PosterService is the part of the poster service the handlers need.
type PosterService interface {
	Create(ctx context.Context, req api.PosterRequest) (jobs.Job, error)
	Job(id string) (jobs.Job, error)
	Jobs() []jobs.Job
	Poster(ctx context.Context, id string) (io.ReadCloser, error)
	Cancel(ctx context.Context, id string, reason string) error
}

type ThemeLister interface {
	List() ([]themes.ThemeInfo, error)
}

// Subscriber streams the updates of a single job.
type Subscriber interface {
	Subscribe(subject string) *events.Subscription
}

type ServiceHandler struct {
	posterSrv  PosterService
	themes     ThemeLister
	subscriber Subscriber
	staticDir  string
}

func NewServiceHandler(posterService PosterService, themes ThemeLister, subscriber Subscriber, staticDir string) *ServiceHandler {
	return &ServiceHandler{
		posterSrv:  posterService,
		themes:     themes,
		subscriber: subscriber,
		staticDir:  staticDir,
	}
}

// HandlerFromMux mounts every route on router. paymentGate wraps poster creation only.
func HandlerFromMux(h *ServiceHandler, router chi.Router, paymentGate func(http.Handler) http.Handler) http.Handler {
	if paymentGate == nil {
		paymentGate = func(next http.Handler) http.Handler { return next }
	}

	router.Get("/", h.Root)
	router.Get("/health", h.Health)
	router.Handle("/static/*", h.Static())

	router.Route("/api", func(r chi.Router) {
		r.With(paymentGate).Post("/posters", h.CreatePoster)
		r.Get("/posters/{id}", h.GetPoster)
		r.Get("/posters/{id}/preview", h.GetPosterPreview)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{id}", h.GetJob)
		r.Get("/themes", h.ListThemes)
	})

	router.Get("/ws/jobs/{id}", h.WatchJob)

	return router
}
