package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apiserver "github.com/maptoposter/poster-api/internal/api_server"
	"github.com/maptoposter/poster-api/internal/config"
	"github.com/maptoposter/poster-api/internal/events"
	"github.com/maptoposter/poster-api/internal/geodata"
	handlers "github.com/maptoposter/poster-api/internal/handlers/v1alpha1"
	"github.com/maptoposter/poster-api/internal/jobs"
	"github.com/maptoposter/poster-api/internal/mapcache"
	"github.com/maptoposter/poster-api/internal/payment"
	"github.com/maptoposter/poster-api/internal/render"
	"github.com/maptoposter/poster-api/internal/service"
	"github.com/maptoposter/poster-api/internal/storage"
	"github.com/maptoposter/poster-api/internal/themes"
	"github.com/maptoposter/poster-api/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the poster api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel), cfg.Service.LogEncoding)
		defer func() { _ = logger.Sync() }()

		undo := log.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting API service...")
		zap.S().Infof("Using config: %s", cfg)
		defer zap.S().Info("API service stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		store, err := newStorage(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("initializing poster storage", "error", err)
		}
		zap.S().Infow("poster storage initialized", "type", store.Type())

		renderer, err := render.NewRenderer(render.WithSize(cfg.Render.Width, cfg.Render.Height))
		if err != nil {
			zap.S().Fatalw("initializing renderer", "error", err)
		}

		requirements, err := payment.NewRequirements(
			cfg.Payment.Network,
			cfg.Payment.PayToAddress,
			cfg.Payment.Price,
			payment.WithMaxTimeout(cfg.Payment.MaxTimeout),
		)
		if err != nil {
			zap.S().Fatalw("building payment requirements", "error", err)
		}

		catalog := themes.NewCatalog(cfg.Service.ThemesDir)
		source := geodata.NewClient(
			geodata.WithOverpassURL(cfg.Geodata.OverpassURL),
			geodata.WithNominatimURL(cfg.Geodata.NominatimURL),
			geodata.WithUserAgent(cfg.Geodata.UserAgent),
			geodata.WithTimeout(cfg.Geodata.Timeout),
			geodata.WithRetryMax(cfg.Geodata.RetryMax),
		)

		hub := events.NewHub()
		producer := events.NewEventProducer(events.MultiWriter(hub, &events.StdoutWriter{}))
		defer func() { _ = producer.Close() }()

		posterSrv := service.NewPosterService(
			jobs.NewRegistry(),
			mapcache.NewStore(cfg.Service.CacheDir),
			source,
			catalog,
			renderer,
			store,
			producer,
			service.WithWorkers(cfg.Service.Workers),
		)
		posterSrv.Start(ctx)
		go posterSrv.RunCleanup(ctx, service.DefaultCleanupInterval, cfg.Service.CleanupAge())

		h := handlers.NewServiceHandler(posterSrv, catalog, hub, cfg.Service.StaticDir)
		gate := payment.NewGate(requirements, payment.NewFacilitatorClient(
			payment.WithFacilitatorURL(cfg.Payment.FacilitatorURL),
			payment.WithFacilitatorTimeout(cfg.Payment.Timeout),
		), payment.WithUnsettled(h.CancelUnsettled))

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, h, gate, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("Error running server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalw("failed to run metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		posterSrv.Wait()
		return nil
	},
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "minio":
		return storage.NewMinio(ctx,
			storage.WithEndpoint(cfg.Storage.MinioEndpoint),
			storage.WithBucket(cfg.Storage.MinioBucket),
			storage.WithAccessKey(cfg.Storage.MinioAccessKey),
			storage.WithSecretKey(cfg.Storage.MinioSecretKey),
			storage.WithSSL(cfg.Storage.MinioUseSSL),
			storage.WithContentType("image/png"),
		)
	default:
		return storage.NewLocal(cfg.Service.DataDir)
	}
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
