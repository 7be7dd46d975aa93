package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nlcd-county/internal/boundary"
	"nlcd-county/internal/orchestrator"
	"nlcd-county/internal/platform/config"
	"nlcd-county/internal/platform/logger"
	"nlcd-county/internal/platform/metrics"
	"nlcd-county/internal/raster"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	client := raster.NewHTTPClient(cfg.HTTPTimeout)

	log.Info("loading boundaries", "path", cfg.BoundaryPath, "layer", cfg.BoundaryLayer)
	store, err := boundary.Open(context.Background(), client, boundary.Source{
		Path:   cfg.BoundaryPath,
		Layer:  cfg.BoundaryLayer,
		Fields: boundary.Fields{State: cfg.BoundaryStateField, County: cfg.BoundaryCountyField},
		DSN:    cfg.BoundaryDSN,
		Query:  cfg.BoundaryQuery,
	})
	if err != nil {
		log.Error("boundary load error", "error", err)
		os.Exit(1)
	}

	rasters := &raster.COGOpener{URLTemplate: cfg.RasterURLTemplate, Client: client, CRS: cfg.RasterCRS}
	met := metrics.New()
	svc := orchestrator.NewService(store, rasters, orchestrator.Options{
		FPS:        cfg.FramesPerSecond,
		LoopCount:  cfg.LoopCount,
		Labels:     cfg.LabelYears,
		OutputPath: cfg.OutputPath,
	}, log, met)
	h := orchestrator.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met, "/metrics"))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetBoundariesLoaded(store.Len()) }).ServeHTTP(w, r)
	})
	r.Get("/states", h.ListStates)
	r.Get("/states/{state}/counties", h.ListCounties)
	r.Post("/animations", h.CreateAnimation)
	r.Get("/animations/latest", h.LatestAnimation)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"boundaries", store.Len(),
		"raster_url_template", rasters.URLTemplate,
		"output_path", svc.ArtifactPath(""),
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
