package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/maptoposter/poster-api/internal/config"
	handlers "github.com/maptoposter/poster-api/internal/handlers/v1alpha1"
	"github.com/maptoposter/poster-api/internal/payment"
	"github.com/maptoposter/poster-api/pkg/metrics"
	"github.com/maptoposter/poster-api/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	handler  *handlers.ServiceHandler
	gate     *payment.Gate
	listener net.Listener
	registry prometheus.Registerer
}

// New returns a new instance of the poster api server. A nil gate serves poster creation for free.
func New(
	cfg *config.Config,
	handler *handlers.ServiceHandler,
	gate *payment.Gate,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		handler:  handler,
		gate:     gate,
		listener: listener,
		registry: prometheus.DefaultRegisterer,
	}
}

// Router builds the http handler of the api.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	for _, c := range metricMiddleware.Collectors() {
		// a second router in the same process keeps the first one's collectors
		if err := s.registry.Register(c); err != nil {
			zap.S().Named("api_server").Warnw("http metrics not registered", "error", err)
		}
	}

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Service.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{payment.PaymentResponseHeader, middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	var gate func(http.Handler) http.Handler
	if s.gate != nil {
		gate = s.gate.Handler
	}

	return handlers.HandlerFromMux(s.handler, router, gate)
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	srv := http.Server{Handler: s.Router()}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
