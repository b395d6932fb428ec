package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/maptoposter/poster-api/internal/handlers/v1alpha1/mappers"
	"github.com/maptoposter/poster-api/pkg/log"
)

// (GET /api/jobs)
func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, mappers.JobListToApi(h.posterSrv.Jobs()))
}

// (GET /api/jobs/{id})
func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := log.NewDebugLogger("job_handler").WithContext(r.Context()).Operation("get_job").WithString("job_id", id).Build()

	job, err := h.posterSrv.Job(id)
	if err != nil {
		logger.Error(err).Log()
		renderError(w, r, statusFor(err), err.Error())
		return
	}

	logger.Success().Log()
	render.JSON(w, r, mappers.JobToApi(job))
}
