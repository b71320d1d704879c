package driverlocationservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"ride-hail/internal/eventbus"
	"ride-hail/internal/general/config"
	"ride-hail/internal/general/jwt"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/general/rabbitmq"
	"ride-hail/internal/httpapi"
	"ride-hail/internal/kv"
	"ride-hail/internal/postgres"
	"ride-hail/internal/presence"
)

// Run wires the driver presence service (§4.1): online/offline, location
// pings and availability toggles, backed by the ephemeral store (C1) for
// liveness state and by Postgres (C2) for driver_sessions summaries, and
// bridged to the rest of the system over the shared event bus
// (C6) so a passenger connected to a different process still sees a
// driver's presence changes. prefetch is accepted for flag-surface parity
// with the other modes but unused — presence has no queue consumer to tune.
func Run(ctx context.Context, prefetch, maxConcurrent int) error {
	// set up a new logger for driver & location service with a static request ID for startup logs
	log := logger.New("driver-location-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	// load configuration
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool — needed for the driver_sessions
	// table backing GoOnline/GoOffline's online-period summary (§4.1, §4.7)
	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// set up the ephemeral key-value store (C1)
	kvClient, err := kv.NewClient(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "kv_connection_failed", "Failed to initialize key-value store client", err, nil)
		return err
	}
	defer kvClient.Close()

	// connect to RabbitMQ so presence transitions reach sessions connected
	// to the ride service process (C6)
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the socket gateway (C6) purely as an event publisher — this
	// process serves no WebSocket sessions of its own, but still needs to
	// push presence events onto the shared fanout exchange
	gw := eventbus.New(rmq, kvClient, log)
	go gw.Run(ctx)

	// set up presence (C3), with the unit of work and driver_sessions
	// repository (C2) backing its online-period summaries
	uow := postgres.NewUnitOfWork(pool)
	driverSessionRepo := postgres.NewDriverSessionRepo()
	presenceSvc := presence.New(kvClient, uow, driverSessionRepo, gw, log)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	api := httpapi.New(log, jwtManager)
	api.Presence = presenceSvc
	api.RegisterPresenceRoutes(mux)
	api.RegisterDevRoutes(mux)

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.PresenceServicePort), // listen on the specified port
		Handler:           limitedHandler,                                      // apply the concurrency limiter to HTTP handler
		ReadHeaderTimeout: 5 * time.Second,                                     // time to read headers
		ReadTimeout:       10 * time.Second,                                    // time to read full request body
		WriteTimeout:      15 * time.Second,                                    // full response write timeout
		IdleTimeout:       60 * time.Second,                                    // keep-alive window
		BaseContext:       func(net.Listener) context.Context { return ctx },   // pass base ctx to all handlers
	}

	// log service start
	log.Info(ctx, "service_started",
		fmt.Sprintf("Driver Location Service started on port %d", cfg.Services.PresenceServicePort),
		map[string]any{"port": cfg.Services.PresenceServicePort, "max_concurrent": maxConcurrent, "prefetch": prefetch},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		// graceful HTTP shutdown on context cancel
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		// server returned a terminal error at startup or during run
		if err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.PresenceServicePort})
			return err
		}
		return nil
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
