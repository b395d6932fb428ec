package service_test

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/paulmach/orb"

	api "github.com/maptoposter/poster-api/api/v1alpha1"
	"github.com/maptoposter/poster-api/internal/geodata"
	"github.com/maptoposter/poster-api/internal/jobs"
	"github.com/maptoposter/poster-api/internal/mapcache"
	"github.com/maptoposter/poster-api/internal/render"
	"github.com/maptoposter/poster-api/internal/service"
	"github.com/maptoposter/poster-api/internal/storage"
	"github.com/maptoposter/poster-api/internal/themes"
)

type fakeSource struct {
	geocodeErr error
	fetches    atomic.Int32
	distances  []int
	mu         sync.Mutex
}

func (f *fakeSource) Geocode(_ context.Context, _ geodata.Location) (orb.Point, error) {
	if f.geocodeErr != nil {
		return orb.Point{}, f.geocodeErr
	}
	return orb.Point{2.3522, 48.8566}, nil
}

func (f *fakeSource) Fetch(_ context.Context, center orb.Point, distance int) (*geodata.MapData, error) {
	f.fetches.Add(1)
	f.mu.Lock()
	f.distances = append(f.distances, distance)
	f.mu.Unlock()

	return &geodata.MapData{
		Graph: &geodata.Graph{Edges: []geodata.Edge{
			{Highway: geodata.HighwayPrimary, Line: orb.LineString{{2.35, 48.85}, {2.36, 48.86}}},
		}},
		Center:   center,
		Distance: distance,
	}, nil
}

type fakeRenderer struct {
	distances []int
	mu        sync.Mutex
}

func (f *fakeRenderer) Render(data *geodata.MapData, _ *themes.Theme, _ render.Labels) (image.Image, error) {
	f.mu.Lock()
	f.distances = append(f.distances, data.Distance)
	f.mu.Unlock()
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (n *recordingNotifier) Publish(_ context.Context, job jobs.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return nil
}

func (n *recordingNotifier) For(id string) []jobs.Job {
	n.mu.Lock()
	defer n.mu.Unlock()

	var list []jobs.Job
	for _, j := range n.jobs {
		if j.ID == id {
			list = append(list, j)
		}
	}
	return list
}

var _ = Describe("poster service", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		registry *jobs.Registry
		cache    *mapcache.Store
		source   *fakeSource
		renderer *fakeRenderer
		local    *storage.Local
		notifier *recordingNotifier
		svc      *service.PosterService
		request  api.PosterRequest
	)

	newService := func(opts ...service.Option) *service.PosterService {
		return service.NewPosterService(registry, cache, source, themes.NewCatalog(filepath.Join("..", "..", "themes")), renderer, local, notifier, opts...)
	}

	waitFor := func(id string, status jobs.Status) jobs.Job {
		var job jobs.Job
		Eventually(func() jobs.Status {
			job, _ = registry.Get(id)
			return job.Status
		}).WithTimeout(5 * time.Second).Should(Equal(status))
		return job
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		dir := GinkgoT().TempDir()

		registry = jobs.NewRegistry()
		cache = mapcache.NewStore(filepath.Join(dir, "cache"))
		source = &fakeSource{}
		renderer = &fakeRenderer{}
		notifier = &recordingNotifier{}

		var err error
		local, err = storage.NewLocal(filepath.Join(dir, "posters"))
		Expect(err).To(BeNil())

		svc = newService(service.WithWorkers(2))
		request = api.PosterRequest{City: "Paris", Country: "France", Theme: "noir", Size: api.SizeSmall}
	})

	AfterEach(func() {
		cancel()
		svc.Wait()
	})

	Context("create", func() {
		It("rejects invalid requests", func() {
			request.City = " "
			_, err := svc.Create(ctx, request)

			var invalid *service.ErrInvalidPosterRequest
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(registry.Len()).To(BeZero())
		})

		It("rejects unknown themes", func() {
			request.Theme = "does_not_exist"
			_, err := svc.Create(ctx, request)

			var invalid *service.ErrInvalidPosterRequest
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("does_not_exist"))
		})

		It("registers a pending job and publishes it", func() {
			job, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(jobs.StatusPending))
			Expect(job.Progress).To(BeZero())
			Expect(string(job.Request)).To(ContainSubstring(`"city":"Paris"`))

			Expect(notifier.For(job.ID)).To(HaveLen(1))
		})

		It("fails the job when the queue is full", func() {
			svc = newService(service.WithQueueSize(1))

			_, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())

			_, err = svc.Create(ctx, request)
			var busy *service.ErrServiceBusy
			Expect(errors.As(err, &busy)).To(BeTrue())

			counts := registry.CountByStatus()
			Expect(counts[jobs.StatusPending]).To(Equal(1))
			Expect(counts[jobs.StatusFailed]).To(Equal(1))
		})
	})

	Context("cancel", func() {
		It("fails a queued job which the workers then skip", func() {
			job, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			Expect(svc.Cancel(ctx, job.ID, "insufficient_funds")).To(Succeed())

			svc.Start(ctx)
			Consistently(func() int32 { return source.fetches.Load() }).WithTimeout(300 * time.Millisecond).Should(BeZero())

			cancelled, _ := registry.Get(job.ID)
			Expect(cancelled.Status).To(Equal(jobs.StatusFailed))
			Expect(*cancelled.Error).To(Equal("insufficient_funds"))
			Expect(notifier.For(job.ID)).To(HaveLen(2))
		})

		It("leaves finished jobs alone", func() {
			svc.Start(ctx)
			job, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			waitFor(job.ID, jobs.StatusCompleted)

			Expect(svc.Cancel(ctx, job.ID, "too late")).To(Succeed())
			done, _ := registry.Get(job.ID)
			Expect(done.Status).To(Equal(jobs.StatusCompleted))
		})

		It("reports unknown jobs", func() {
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(svc.Cancel(ctx, "nope", "x"), &notFound)).To(BeTrue())
		})
	})

	Context("generation", func() {
		BeforeEach(func() {
			svc.Start(ctx)
		})

		It("completes a job and stores the poster", func() {
			job, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())

			done := waitFor(job.ID, jobs.StatusCompleted)
			Expect(done.Progress).To(Equal(100))
			Expect(done.CompletedAt).NotTo(BeNil())
			Expect(done.ResultFile).NotTo(BeNil())
			Expect(*done.ResultFile).To(Equal(job.ID + ".png"))
			Expect(done.Error).To(BeNil())

			_, err = os.Stat(filepath.Join(local.Dir(), *done.ResultFile))
			Expect(err).To(BeNil())
			Expect(cache.IsValid(mapcache.NewKey("Paris", "France", 4000))).To(BeTrue())

			Eventually(func() int { return len(notifier.For(job.ID)) }).Should(BeNumerically(">=", 7))
			updates := notifier.For(job.ID)
			last := -1
			for _, u := range updates {
				Expect(u.Progress).To(BeNumerically(">=", last))
				last = u.Progress
			}
			Expect(updates[len(updates)-1].Status).To(Equal(jobs.StatusCompleted))
		})

		It("serves the poster once completed", func() {
			job, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			waitFor(job.ID, jobs.StatusCompleted)

			rc, err := svc.Poster(ctx, job.ID)
			Expect(err).To(BeNil())
			defer rc.Close()
			data, err := io.ReadAll(rc)
			Expect(err).To(BeNil())
			Expect(data).NotTo(BeEmpty())
		})

		It("uses the cache for a repeated location", func() {
			first, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			waitFor(first.ID, jobs.StatusCompleted)

			request.Theme = "blueprint"
			second, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			waitFor(second.ID, jobs.StatusCompleted)

			Expect(source.fetches.Load()).To(BeEquivalentTo(1))
		})

		It("reuses any cached distance for auto sized requests", func() {
			first, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			waitFor(first.ID, jobs.StatusCompleted)

			request.Size = api.SizeAuto
			second, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			waitFor(second.ID, jobs.StatusCompleted)

			Expect(source.fetches.Load()).To(BeEquivalentTo(1))
			renderer.mu.Lock()
			defer renderer.mu.Unlock()
			Expect(renderer.distances).To(Equal([]int{4000, 4000}))
		})

		It("fetches again for another explicit size", func() {
			first, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			waitFor(first.ID, jobs.StatusCompleted)

			request.Size = api.SizeCity
			second, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			waitFor(second.ID, jobs.StatusCompleted)

			Expect(source.fetches.Load()).To(BeEquivalentTo(2))
			source.mu.Lock()
			defer source.mu.Unlock()
			Expect(source.distances).To(Equal([]int{4000, 8000}))
		})

		It("records failures on the job", func() {
			source.geocodeErr = geodata.ErrLocationNotFound

			job, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())

			failed := waitFor(job.ID, jobs.StatusFailed)
			Expect(failed.Error).NotTo(BeNil())
			Expect(*failed.Error).To(ContainSubstring("location not found"))
			Expect(failed.CompletedAt).NotTo(BeNil())
			Expect(failed.ResultFile).To(BeNil())

			_, err = svc.Poster(ctx, job.ID)
			var notReady *service.ErrPosterNotReady
			Expect(errors.As(err, &notReady)).To(BeTrue())
		})
	})

	Context("lookups", func() {
		It("reports unknown jobs", func() {
			_, err := svc.Job("missing")
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())

			_, err = svc.Poster(ctx, "missing")
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("reports posters which are not ready", func() {
			job, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())

			_, err = svc.Poster(ctx, job.ID)
			var notReady *service.ErrPosterNotReady
			Expect(errors.As(err, &notReady)).To(BeTrue())
			Expect(svc.Jobs()).To(HaveLen(1))
		})
	})

	Context("cleanup", func() {
		It("prunes old jobs and their posters", func() {
			past := time.Now().Add(-48 * time.Hour)
			registry = jobs.NewRegistry(jobs.WithClock(func() time.Time { return past }))
			svc = newService()
			svc.Start(ctx)

			job, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			done := waitFor(job.ID, jobs.StatusCompleted)

			fresh, err := svc.Create(ctx, request)
			Expect(err).To(BeNil())
			waitFor(fresh.ID, jobs.StatusCompleted)
			registry.Update(fresh.ID, jobs.Update{}.WithCompletedAt(time.Now()))

			svc.Cleanup(ctx, 24*time.Hour)

			_, err = svc.Job(job.ID)
			Expect(err).NotTo(BeNil())
			_, err = os.Stat(filepath.Join(local.Dir(), *done.ResultFile))
			Expect(os.IsNotExist(err)).To(BeTrue())

			_, err = svc.Job(fresh.ID)
			Expect(err).To(BeNil())
		})
	})
})
