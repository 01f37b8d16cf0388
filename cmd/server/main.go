package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"rideescrow/internal/api"
	"rideescrow/internal/api/handlers"
	"rideescrow/internal/api/ws"
	"rideescrow/internal/auth"
	"rideescrow/internal/config"
	"rideescrow/internal/logger"
	"rideescrow/internal/messaging"
	"rideescrow/internal/repository"
	"rideescrow/internal/repository/memory"
	"rideescrow/internal/repository/postgres"
	"rideescrow/internal/services"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log, "rideescrow", os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	rideRepo := memory.NewRideRepository()
	var eventStore repository.EventStore = memory.NewEventStore()
	if cfg.Database.Enabled() {
		pgStore, err := postgres.NewEventStore(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		eventStore = pgStore
		log.Info("event_store", "backend", "postgres")
	}

	// Initialize event sinks
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	sinks := []services.EventSink{services.NewNotificationService(log), hub}
	if cfg.AMQP.Enabled() {
		publisher, err := messaging.Dial(ctx, cfg.AMQP, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn("amqp_close_failed", "error", err)
			}
		}()
		sinks = append(sinks, publisher)
	}

	// Initialize services
	escrowService := services.NewEscrowService(cfg, rideRepo, eventStore, log, sinks...)
	tokens := auth.NewTokenService(cfg.Auth)

	// Setup router
	router := api.NewRouter(
		handlers.NewFactoryHandler(escrowService),
		handlers.NewRideHandler(escrowService),
		handlers.NewEventHandler(escrowService),
		hub,
		tokens,
		log,
	)
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	router.Setup(engine)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_starting",
			"addr", cfg.Server.Addr,
			"factory", escrowService.FactoryAddress(),
			"epoch", escrowService.Epoch(),
			"start_policy", cfg.Escrow.StartPolicy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-hub.Done()
	return nil
}
