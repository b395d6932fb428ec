package v1alpha1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	api "github.com/maptoposter/poster-api/api/v1alpha1"
	"github.com/maptoposter/poster-api/internal/handlers/v1alpha1/mappers"
	rnd "github.com/maptoposter/poster-api/internal/render"
	"github.com/maptoposter/poster-api/pkg/log"
)

const (
	defaultPreviewWidth = 600
	maxPreviewWidth     = 2400
	// bodies are a handful of short strings
	maxRequestBytes = 64 << 10
)

// (POST /api/posters)
func (h *ServiceHandler) CreatePoster(w http.ResponseWriter, r *http.Request) {
	logger := log.NewDebugLogger("poster_handler").WithContext(r.Context()).Operation("create_poster").Build()

	var form api.PosterRequest
	if err := render.DecodeJSON(io.LimitReader(r.Body, maxRequestBytes), &form); err != nil {
		logger.Error(err).Log()
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	job, err := h.posterSrv.Create(r.Context(), form)
	if err != nil {
		logger.Error(err).Log()
		renderError(w, r, statusFor(err), err.Error())
		return
	}

	logger.Success().WithString("job_id", job.ID).Log()
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mappers.JobCreatedToApi(job))
}

// CancelUnsettled fails the job of a creation answer whose payment could not be settled.
// It is handed to the payment gate.
func (h *ServiceHandler) CancelUnsettled(ctx context.Context, body []byte, reason string) {
	logger := log.NewDebugLogger("poster_handler").WithContext(ctx).Operation("cancel_unsettled").WithString("reason", reason).Build()

	var created api.JobCreated
	if err := json.Unmarshal(body, &created); err != nil || created.JobID == "" {
		logger.Step("no_job_in_response").Log()
		return
	}
	if err := h.posterSrv.Cancel(ctx, created.JobID, "payment not settled: "+reason); err != nil {
		logger.Error(err).WithString("job_id", created.JobID).Log()
		return
	}
	logger.Success().WithString("job_id", created.JobID).Log()
}

// (GET /api/posters/{id})
func (h *ServiceHandler) GetPoster(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := log.NewDebugLogger("poster_handler").WithContext(r.Context()).Operation("get_poster").WithString("job_id", id).Build()

	rc, err := h.posterSrv.Poster(r.Context(), id)
	if err != nil {
		logger.Error(err).Log()
		renderError(w, r, statusFor(err), err.Error())
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "poster-"+id+".png"))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Error(err).Log()
		return
	}
	logger.Success().Log()
}

// (GET /api/posters/{id}/preview)
func (h *ServiceHandler) GetPosterPreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := log.NewDebugLogger("poster_handler").WithContext(r.Context()).Operation("get_poster_preview").WithString("job_id", id).Build()

	width := defaultPreviewWidth
	if raw := r.URL.Query().Get("width"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPreviewWidth {
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("width must be between 1 and %d", maxPreviewWidth))
			return
		}
		width = v
	}

	rc, err := h.posterSrv.Poster(r.Context(), id)
	if err != nil {
		logger.Error(err).Log()
		renderError(w, r, statusFor(err), err.Error())
		return
	}
	defer rc.Close()

	// the status line must not go out before the preview is known to be good
	var buf bytes.Buffer
	if err := rnd.Preview(rc, &buf, width); err != nil {
		logger.Error(err).Log()
		renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to build preview: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
	logger.Success().WithParam("width", width).Log()
}
