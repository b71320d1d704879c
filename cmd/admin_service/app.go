package admindashboard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"ride-hail/internal/admin"
	"ride-hail/internal/cleanup"
	"ride-hail/internal/dispatch"
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

const cleanupInterval = 5 * time.Minute

// Run wires the admin dashboard's read-only overview (supplemented) plus
// the periodic hygiene sweeps (§4.7) and blocks until ctx is cancelled.
func Run(ctx context.Context, maxConcurrent int) error {
	// set up a new logger for admin dashboard service with a static request ID for startup logs
	log := logger.New("admin-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// set up the ephemeral key-value store (C1), needed by presence and dispatch
	kvClient, err := kv.NewClient(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "kv_connection_failed", "Failed to initialize key-value store client", err, nil)
		return err
	}
	defer kvClient.Close()

	// connect to RabbitMQ so cleanup's delegated services can publish events
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the necessary repos
	uow := postgres.NewUnitOfWork(pool)
	accountRepo := postgres.NewAccountRepo()
	tripRepo := postgres.NewTripRepo()
	tripEventRepo := postgres.NewTripEventRepo()
	driverSessionRepo := postgres.NewDriverSessionRepo()

	gw := eventbus.New(rmq, kvClient, log)
	go gw.Run(ctx)

	// presence and dispatch are wired here only so cleanup can delegate its
	// sweeps to them (§4.7 "cleanup never touches storage directly") — this
	// process exposes neither their REST routes nor a WebSocket surface
	presenceSvc := presence.New(kvClient, uow, driverSessionRepo, gw, log)
	dispatchSvc := dispatch.New(kvClient, presenceSvc, uow, tripRepo, tripEventRepo, gw, log, cfg)

	adminSvc := admin.New(uow, tripRepo, presenceSvc)
	cleanupSvc := cleanup.New(uow, accountRepo, presenceSvc, dispatchSvc, log)

	if cfg.RunCleanupOnStartup {
		runCleanupSweeps(ctx, cleanupSvc, log)
	}
	go runCleanupLoop(ctx, cleanupSvc, log)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	api := httpapi.New(log, jwtManager)
	api.Admin = adminSvc
	api.RegisterAdminRoutes(mux)
	api.RegisterDevRoutes(mux)

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// log service start
	log.Info(ctx, "service_started",
		fmt.Sprintf("Admin dashboard started on port %d", cfg.Services.AdminServicePort),
		map[string]any{"port": cfg.Services.AdminServicePort, "max_concurrent": maxConcurrent},
	)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.AdminServicePort), // listen on the specified port
		Handler:           limitedHandler,                                   // apply the concurrency limiter to the HTTP handler
		ReadHeaderTimeout: 5 * time.Second,                                  // time to read headers
		ReadTimeout:       10 * time.Second,                                 // time to read full request body
		WriteTimeout:      15 * time.Second,                                 // full response write timeout
		IdleTimeout:       60 * time.Second,                                 // keep-alive window
		BaseContext:       func(net.Listener) context.Context { return ctx }, // pass base ctx to all handlers
	}

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
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.AdminServicePort})
			return err
		}
		return nil
	}

	return nil
}

// runCleanupLoop runs the three §4.7 sweeps on a fixed interval until ctx
// is cancelled, detached from any single HTTP request the way the
// dispatcher's offer loop is detached from the request that started it.
func runCleanupLoop(ctx context.Context, svc *cleanup.Service, log *logger.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCleanupSweeps(ctx, svc, log)
		}
	}
}

func runCleanupSweeps(ctx context.Context, svc *cleanup.Service, log *logger.Logger) {
	now := time.Now().UTC()
	if n, err := svc.RunPendingSignupSweep(ctx, now); err != nil {
		log.Error(ctx, "cleanup_pending_signup_sweep_failed", "Pending signup sweep failed", err, nil)
	} else if n > 0 {
		log.Info(ctx, "cleanup_pending_signup_sweep_done", "Pending signup sweep complete", map[string]any{"removed": n})
	}
	if n, err := svc.RunStalePresenceSweep(ctx, now); err != nil {
		log.Error(ctx, "cleanup_stale_presence_sweep_failed", "Stale presence sweep failed", err, nil)
	} else if n > 0 {
		log.Info(ctx, "cleanup_stale_presence_sweep_done", "Stale presence sweep complete", map[string]any{"offlined": n})
	}
	if n, err := svc.RunExpiredOfferSweep(ctx, now); err != nil {
		log.Error(ctx, "cleanup_expired_offer_sweep_failed", "Expired offer sweep failed", err, nil)
	} else if n > 0 {
		log.Info(ctx, "cleanup_expired_offer_sweep_done", "Expired offer sweep complete", map[string]any{"pruned": n})
	}
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
