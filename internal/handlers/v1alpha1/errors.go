package v1alpha1

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	api "github.com/maptoposter/poster-api/api/v1alpha1"
	"github.com/maptoposter/poster-api/internal/service"
	"github.com/maptoposter/poster-api/pkg/middleware"
)

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, api.Error{
		Message:   message,
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

// statusFor maps service errors onto http status codes.
func statusFor(err error) int {
	var (
		notFound *service.ErrResourceNotFound
		notReady *service.ErrPosterNotReady
		invalid  *service.ErrInvalidPosterRequest
		busy     *service.ErrServiceBusy
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &notReady):
		return http.StatusConflict
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &busy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
