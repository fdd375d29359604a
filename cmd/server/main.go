package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wristsight-viewer/internal/client"
	"wristsight-viewer/internal/config"
	"wristsight-viewer/internal/handler"
	"wristsight-viewer/internal/overlay"
	"wristsight-viewer/internal/workspace"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Unknown log level %q, keeping info", cfg.Logging.Level)
	}
	if !cfg.IsProduction() {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.Info("Starting WristSight viewer")

	// Overlay projector
	projectorOpts := []overlay.Option{overlay.WithLogger(logger)}
	if cfg.Overlay.Demo {
		demo := overlay.DefaultDemoSet()
		if cfg.Overlay.DemoFile != "" {
			if demo, err = overlay.LoadDemoSet(cfg.Overlay.DemoFile); err != nil {
				logger.Fatalf("Failed to load demo overlay: %v", err)
			}
		}
		projectorOpts = append(projectorOpts, overlay.WithDemoFallback(demo))
		logger.Warn("Demo overlay is enabled, analyses without geometry will show placeholder markers")
	}
	projector := overlay.NewProjector(projectorOpts...)

	// Backend API client shared by all workspaces
	api := client.NewAPIClient(cfg.Backend.BaseURL, cfg.APITimeout(), nil, logger)
	logger.Infof("Backend API: %s", api.BaseURL())

	registry := workspace.NewRegistry(api, workspace.Options{
		HistoryBatch: cfg.History.Limit,
		MaxImageSize: cfg.Upload.MaxImageMB << 20,
		IdleTTL:      time.Duration(cfg.Session.IdleTTL) * time.Minute,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go registry.Run(ctx, time.Minute)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	h := handler.NewHandler(registry, projector, handler.Options{
		AuthEnabled:   cfg.Auth.Enabled,
		CSRF:          true,
		SessionSecret: cfg.Session.Secret,
		SecureCookies: cfg.IsProduction(),
		CORSOrigins:   cfg.Server.CORSOrigins,
		AuthPerMinute: cfg.RateLimit.AuthPerMinute,
		MaxUploadMB:   cfg.Upload.MaxImageMB,
		Development:   !cfg.IsProduction(),
	}, logger)
	router, err := h.NewRouter()
	if err != nil {
		logger.Fatalf("Failed to build router: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Viewer listening on http://%s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down viewer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
}
