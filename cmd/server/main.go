// Command server runs the potluck HTTP API and the account-deletion listener.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"potluck/config"
	_ "potluck/docs"
	"potluck/internal/adapters/auth"
	"potluck/internal/app"
	deliveryhttp "potluck/internal/delivery/http"
	"potluck/internal/delivery/http/controllers"
	"potluck/internal/delivery/http/middleware"
	"potluck/internal/delivery/listener"
	"potluck/internal/metrics"
	"potluck/internal/store"
)

// @title Potluck API
// @version 1.0
// @description Coordinates who brings what to shared-meal events: menu items, quantity claims and participants.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the identity token.
func main() {
	logger := config.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec := metrics.NewRecorder()
	backend, err := app.OpenBackend(ctx, cfg, rec, logger)
	if err != nil {
		logger.Error("open store", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer backend.Close()
	es := store.New(backend, logger)

	archiver, err := app.NewArchiver(ctx, cfg)
	if err != nil {
		logger.Error("build archiver", "err", err)
		os.Exit(1)
	}
	svc := app.NewServices(es, archiver, cfg, rec, logger)

	if cfg.AccountListenerEnabled() {
		client := app.NewRedisClient(cfg)
		defer client.Close()
		l := listener.NewAccountDeletedListener(client, cfg.AccountDeletedChannel, svc.Purge, logger)
		go func() {
			if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("account deletion listener stopped", "err", err)
			}
		}()
	} else {
		logger.Info("account deletion listener disabled", "reason", "REDIS_ADDR not set")
	}

	router := deliveryhttp.NewRouter(deliveryhttp.Controllers{
		Events:       controllers.NewEventController(logger, svc.Events, svc.Validator),
		Items:        controllers.NewItemController(logger, svc.Items),
		Assignments:  controllers.NewAssignmentController(logger, svc.Reservations),
		Participants: controllers.NewParticipantController(logger, svc.Participants),
		Account:      controllers.NewAccountController(logger, svc.Purge),
	}, auth.NewJWTAuthority(cfg.JWTSecret, cfg.JWTIssuer), rec.Handler(), logger)

	var handler http.Handler = router
	handler = middleware.LoggingMiddleware(logger, handler)
	handler = middleware.CORS(cfg.AllowedOrigins, handler)

	// No WriteTimeout: watch streams stay open. They end when shutdown starts.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.Environment, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	logger.Info("server stopped")
}
