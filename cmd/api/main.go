package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/campscout/event-logistics-api/internal/adapters/httpapi"
	memeventrepo "github.com/campscout/event-logistics-api/internal/adapters/memory/eventrepo"
	memidempotency "github.com/campscout/event-logistics-api/internal/adapters/memory/idempotency"
	postgres "github.com/campscout/event-logistics-api/internal/adapters/postgres"
	pgeventrepo "github.com/campscout/event-logistics-api/internal/adapters/postgres/eventrepo"
	pgidempotency "github.com/campscout/event-logistics-api/internal/adapters/postgres/idempotency"
	"github.com/campscout/event-logistics-api/internal/app/events"
	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/campscout/event-logistics-api/internal/platform/clock"
	"github.com/campscout/event-logistics-api/internal/platform/config"
	"github.com/campscout/event-logistics-api/internal/platform/logging"
	"github.com/campscout/event-logistics-api/internal/platform/pubsub"
	eventrepoport "github.com/campscout/event-logistics-api/internal/ports/out/eventrepo"
	idempotencyport "github.com/campscout/event-logistics-api/internal/ports/out/idempotency"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// Auth configuration:
	// - Production: require JWT_* env vars and enforce bearer auth
	// - Local dev: set AUTH_MODE=dev to bypass JWT verification and use X-Debug-Subject
	var (
		authMW     func(http.Handler) http.Handler
		authIssuer string
	)
	switch cfg.Auth.Mode {
	case "dev":
		log.Warn("dev auth enabled; X-Debug-Subject is trusted", zap.String("default_subject", cfg.Auth.DevSubject))
		authMW = httpapi.NewDevAuthMiddleware(cfg.Auth.DevSubject)
		authIssuer = cfg.Auth.DevIssuer
	default:
		authMW = httpapi.NewAuthMiddleware(jwtverifier.New(cfg.Auth.JWT))
		authIssuer = cfg.Auth.JWT.Issuer
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := platformclock.NewSystemClock()

	var (
		eventRepo eventrepoport.Repository
		idemStore idempotencyport.Store
	)
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Storage.DatabaseURL, postgres.PoolOptions{
			MaxConns:        cfg.Storage.MaxConns,
			MinConns:        cfg.Storage.MinConns,
			ApplicationName: "event-logistics-api",
		})
		if err != nil {
			return fmt.Errorf("invalid postgres config: %w", err)
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		eventRepo = pgeventrepo.NewRepo(pool)
		idemStore = pgidempotency.NewStore(pool, authIssuer)
	default:
		eventRepo = memeventrepo.NewRepo()
		idemStore = memidempotency.NewStore()
	}
	log.Info("storage ready", zap.String("backend", cfg.Storage.Backend))

	changes := pubsub.NewBroker[domain.EventChanged](cfg.Live.Buffer)
	svc := events.NewService(eventRepo, clk, changes, log.Named("events"))
	api := httpapi.NewServer(svc, httpapi.ServerOptions{
		Idempotency:    idemStore,
		IdempotencyTTL: cfg.Storage.IdempotencyTTL,
		Changes:        changes,
		KeepAlive:      cfg.Live.KeepAlive,
		NewTicker:      clk.NewTicker,
		Clock:          clk,
		Logger:         log.Named("http"),
	})

	routerOpts := httpapi.RouterOptions{AuthMiddleware: authMW, Logger: log.Named("http")}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		routerOpts.CORS = httpapi.DefaultCORSOptions(cfg.CORS.AllowedOrigins, cfg.CORS.AllowCredentials)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           httpapi.NewRouterWithOptions(api, routerOpts),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go sweepIdempotency(ctx, idemStore, clk, cfg.Storage.IdempotencyTTL, cfg.Storage.IdempotencySweepEvery, log.Named("idempotency"))

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// Live streams only return once their subscription closes.
	changes.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	return nil
}

// sweepIdempotency deletes records older than ttl until ctx is done.
func sweepIdempotency(ctx context.Context, store idempotencyport.Store, clk platformclock.SystemClock, ttl, every time.Duration, log *zap.Logger) {
	if ttl <= 0 || every <= 0 {
		return
	}
	ticker := clk.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			n, err := store.DeleteCreatedBefore(ctx, clk.Now().Add(-ttl))
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("sweep failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				log.Debug("swept expired records", zap.Int("deleted", n))
			}
		}
	}
}
