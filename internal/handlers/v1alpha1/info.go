package v1alpha1

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	api "github.com/maptoposter/poster-api/api/v1alpha1"
	"github.com/maptoposter/poster-api/internal/handlers/v1alpha1/mappers"
)

const indexFile = "index.html"

// (GET /api/themes)
func (h *ServiceHandler) ListThemes(w http.ResponseWriter, r *http.Request) {
	list, err := h.themes.List()
	if err != nil {
		zap.S().Named("theme_handler").Errorw("failed to list themes", "error", err)
		renderError(w, r, http.StatusInternalServerError, "failed to list themes")
		return
	}
	render.JSON(w, r, mappers.ThemesToApi(list))
}

// (GET /health)
func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, api.HealthResponse{Status: "ok"})
}

// (GET /) serves the frontend when one is deployed next to the service.
func (h *ServiceHandler) Root(w http.ResponseWriter, r *http.Request) {
	if h.staticDir != "" {
		index := filepath.Join(h.staticDir, indexFile)
		if info, err := os.Stat(index); err == nil && !info.IsDir() {
			http.ServeFile(w, r, index)
			return
		}
	}
	render.JSON(w, r, api.RootResponse{
		Message: "City Map Poster Service API",
		Docs:    "/docs",
	})
}

// Static serves /static/* from the static directory, or 404s when there is none.
func (h *ServiceHandler) Static() http.Handler {
	if h.staticDir == "" {
		return http.NotFoundHandler()
	}
	if info, err := os.Stat(h.staticDir); err != nil || !info.IsDir() {
		return http.NotFoundHandler()
	}
	return http.StripPrefix("/static/", http.FileServer(http.Dir(h.staticDir)))
}
