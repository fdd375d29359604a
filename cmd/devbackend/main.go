package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"wristsight-viewer/internal/backend"
	"wristsight-viewer/internal/config"
	"wristsight-viewer/internal/database"
	"wristsight-viewer/internal/healthcheck"
	"wristsight-viewer/internal/repository"
	"wristsight-viewer/internal/service"

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
	}

	logger.Info("Starting WristSight development backend")

	var (
		analysisRepo repository.AnalysisRepository
		userRepo     repository.UserRepository
		ping         func() error
	)
	if cfg.Database.DSN == "memory" {
		logger.Warn("DATABASE_DSN=memory, analyses and accounts are kept in memory only")
		analysisRepo = repository.NewMemoryAnalysisRepository()
		userRepo = repository.NewMemoryUserRepository()
		ping = func() error { return nil }
	} else {
		logger.Info("Connecting to database...")
		db, err := database.Connect(cfg.Database.DSN, logger)
		if err != nil {
			logger.Fatalf("Database connection failed: %v", err)
		}
		defer database.Close(db)

		if err := database.Migrate(db, logger); err != nil {
			logger.Fatalf("Migrations failed: %v", err)
		}
		if err := database.HealthCheck(db); err != nil {
			logger.Fatalf("Database is unavailable: %v", err)
		}
		analysisRepo = repository.NewAnalysisRepository(db)
		userRepo = repository.NewUserRepository(db)
		ping = func() error { return database.HealthCheck(db) }
	}

	staticDir := cfg.StaticDir
	if err := os.MkdirAll(filepath.Join(staticDir, "images"), 0755); err != nil {
		logger.Fatalf("Failed to create static directory: %v", err)
	}

	analysisService := service.NewAnalysisService(analysisRepo, service.MockAnalyzer{}, logger, staticDir)
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, time.Duration(cfg.JWT.TTLMinutes)*time.Minute, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Auth.AdminPassword != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			logger.Fatalf("Failed to seed admin account: %v", err)
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	h := backend.NewHandler(analysisService, authService, ping, backend.Options{
		RequireAuth: cfg.Auth.Enabled,
		StaticDir:   staticDir,
		MaxUploadMB: cfg.Upload.MaxImageMB,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, logger)

	health := healthcheck.NewServer(ping, logger)
	go health.Run(ctx, 15*time.Second)
	go func() {
		if err := health.Serve(fmt.Sprintf(":%d", cfg.GRPC.Port)); err != nil {
			logger.Errorf("gRPC health server stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.BackendAddr(),
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("API available at http://%s/api", cfg.BackendAddr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down backend")

	health.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
}
