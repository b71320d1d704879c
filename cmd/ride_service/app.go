package rideservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"ride-hail/internal/chat"
	"ride-hail/internal/dispatch"
	"ride-hail/internal/earning"
	"ride-hail/internal/eventbus"
	"ride-hail/internal/general/config"
	"ride-hail/internal/general/jwt"
	"ride-hail/internal/general/logger"
	"ride-hail/internal/general/rabbitmq"
	"ride-hail/internal/httpapi"
	"ride-hail/internal/kv"
	"ride-hail/internal/postgres"
	"ride-hail/internal/presence"
	"ride-hail/internal/rating"
	"ride-hail/internal/tripstate"
)

// Run wires the ride service — dispatch, trip lifecycle, chat, earnings
// settlement, and the WebSocket gateway — and blocks until ctx is
// cancelled.
func Run(ctx context.Context, maxConcurrent int) error {
	// set up a new logger and context for ride service with a static request ID for startup logs
	log := logger.New("ride-service")
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

	// set up the ephemeral key-value store (C1)
	kvClient, err := kv.NewClient(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "kv_connection_failed", "Failed to initialize key-value store client", err, nil)
		return err
	}
	defer kvClient.Close()

	// connect to RabbitMQ, which carries cross-process wire events (C6)
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the unit of work and durable repositories (C2)
	uow := postgres.NewUnitOfWork(pool)
	tripRepo := postgres.NewTripRepo()
	tripEventRepo := postgres.NewTripEventRepo()
	chatRepo := postgres.NewChatRepo()
	walletRepo := postgres.NewWalletRepo()
	receiptRepo := postgres.NewReceiptRepo()
	earningRuleRepo := postgres.NewEarningRuleRepo()
	bonusRepo := postgres.NewBonusRepo()
	driverProfileRepo := postgres.NewDriverProfileRepo()
	ratingRepo := postgres.NewRatingRepo()
	driverSessionRepo := postgres.NewDriverSessionRepo()

	// set up the socket gateway (C6), started in the background
	gw := eventbus.New(rmq, kvClient, log)
	go gw.Run(ctx)

	// set up presence (C3), dispatch (C4), earnings (C7), trip state (C5)
	// and chat (C8) — each published as the narrow EventPublisher interface
	// so domain services never depend on the gateway's transport details
	presenceSvc := presence.New(kvClient, uow, driverSessionRepo, gw, log)
	earningsSvc := earning.New(uow, receiptRepo, walletRepo, earningRuleRepo, bonusRepo, driverProfileRepo, tripRepo, log)
	tripStateSvc := tripstate.New(kvClient, uow, tripRepo, tripEventRepo, presenceSvc, earningsSvc, gw, log)
	dispatchSvc := dispatch.New(kvClient, presenceSvc, uow, tripRepo, tripEventRepo, gw, log, cfg)
	chatSvc := chat.New(chatRepo, tripRepo, gw, log)
	ratingSvc := rating.New(ratingRepo, tripRepo, gw, log)

	// set up the WebSocket server (C6) that serves driver/passenger sessions
	wsServer := eventbus.NewServer(log, jwtManager, gw, presenceSvc, dispatchSvc, tripStateSvc, chatSvc)

	// set up the REST handler and its routes
	mux := http.NewServeMux()
	api := httpapi.New(log, jwtManager)
	api.Dispatch = dispatchSvc
	api.Trips = tripStateSvc
	api.Chat = chatSvc
	api.Earnings = earningsSvc
	api.Rating = ratingSvc
	api.RegisterDispatchRoutes(mux)
	api.RegisterTripStateRoutes(mux)
	api.RegisterChatRoutes(mux)
	api.RegisterEarningsRoutes(mux)
	api.RegisterRatingRoutes(mux)
	api.RegisterDevRoutes(mux)

	mux.HandleFunc("GET /ws/driver/{driver_id}", wsServer.ConnectDriver)
	mux.HandleFunc("GET /ws/passenger/{passenger_id}", wsServer.ConnectPassenger)

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.DispatchServicePort), // listen on the specified port
		Handler:           limitedHandler,                                      // apply the concurrency limiter to the HTTP handler
		ReadHeaderTimeout: 5 * time.Second,                                     // time to read headers
		ReadTimeout:       10 * time.Second,                                    // time to read full request body
		WriteTimeout:      15 * time.Second,                                    // full response write timeout
		IdleTimeout:       60 * time.Second,                                    // keep-alive window
		BaseContext:       func(net.Listener) context.Context { return ctx },   // pass base ctx to all handlers
	}

	// log service start
	log.Info(ctx, "service_started",
		fmt.Sprintf("Ride Service started on port %d", cfg.Services.DispatchServicePort),
		map[string]any{"port": cfg.Services.DispatchServicePort, "max_concurrent": maxConcurrent},
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
		log.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		// server returned a terminal error at startup or during run
		if err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.DispatchServicePort})
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
