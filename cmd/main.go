package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediabib-service/internal/handler"
	"mediabib-service/internal/middleware"
	"mediabib-service/internal/notify"
	"mediabib-service/internal/service"
	"mediabib-service/pkg/config"
	"mediabib-service/pkg/database"
	"mediabib-service/pkg/jwtutil"
	"mediabib-service/pkg/logger"
	"mediabib-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const serviceName = "mediabib-service"

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: serviceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("Starting MediaBib service...", cfg.LogConfig()...)

	db, err := database.InitDB(&cfg.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	svc := service.New(db, service.Options{
		Notifier: notify.New(cfg.Mail, log),
		JWT: jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
			SigningKey:      cfg.JWT.SigningKey,
			AccessLifetime:  cfg.JWT.AccessLifetime,
			RefreshLifetime: cfg.JWT.RefreshLifetime,
		}),
		Accounts: cfg.Accounts,
	})

	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestID)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	handler.New(svc, serviceName).Routes(e, middleware.Auth(svc))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
