package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-negotiation/internal/auth"
	"github.com/example/ride-negotiation/internal/config"
	"github.com/example/ride-negotiation/internal/events"
	"github.com/example/ride-negotiation/internal/geo"
	httpapi "github.com/example/ride-negotiation/internal/http"
	"github.com/example/ride-negotiation/internal/lifecycle"
	"github.com/example/ride-negotiation/internal/logging"
	"github.com/example/ride-negotiation/internal/matcher"
	"github.com/example/ride-negotiation/internal/notify"
	"github.com/example/ride-negotiation/internal/observability"
	"github.com/example/ride-negotiation/internal/payments"
	"github.com/example/ride-negotiation/internal/pricing"
	"github.com/example/ride-negotiation/internal/ratelimit"
	"github.com/example/ride-negotiation/internal/rating"
	"github.com/example/ride-negotiation/internal/referral"
	"github.com/example/ride-negotiation/internal/storage"
	"github.com/example/ride-negotiation/internal/wallet"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ride-negotiation: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig(args)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, checks, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		index   geo.Index         = geo.NewMemoryIndex()
		limiter ratelimit.Limiter = ratelimit.NewMemory()
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		index = geo.NewRedisGeo(rdb, cfg.RedisGeoKey)
		limiter = ratelimit.NewRedis(rdb, "ratelimit:")
		checks = append(checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info("redis enabled", "addr", cfg.RedisAddr)
	}

	router := newRouter(cfg)
	cache := pricing.NewCache(cfg.RouteCacheTTL)
	estimator := pricing.NewEstimator(router, cache, logger)
	estimator.BaseFare = cfg.BaseFare
	estimator.PerKmRate = cfg.PerKmRate
	estimator.AvgSpeedKmh = cfg.AvgSpeedKmh

	ws := notify.NewWSRegistry()
	pushers := []notify.Pusher{ws}
	if cfg.FCMEndpoint != "" {
		pushers = append(pushers, notify.NewFCMPusher(cfg.FCMEndpoint, cfg.FCMKey))
	}
	dispatcher := notify.NewDispatcher(store, logger, pushers...)

	ledger := wallet.NewLedger(store, logger)
	ledger.MaxAttempts = cfg.WalletMaxAttempts

	referrals := referral.NewService(store, ledger, logger)
	referrals.Bonus = cfg.ReferralBonus
	referrals.Notifier = dispatcher

	rides := lifecycle.NewManager(store, estimator, dispatcher, ledger, logger)
	rides.OfferTTL = cfg.OfferTTL
	rides.Referrals = referrals
	rides.Matcher = &matcher.Service{
		Geo:             index,
		Router:          router,
		Cache:           cache,
		DefaultSpeedMps: cfg.DefaultSpeedMps,
		TopN:            cfg.MatcherTopN,
	}

	// validated by LoadServerConfig
	proxies, _ := cfg.TrustedProxyPrefixes()

	deps := httpapi.Deps{
		Rides:         rides,
		Pricing:       estimator,
		Ledger:        ledger,
		Ratings:       rating.NewService(store, logger),
		Referrals:     referrals,
		Notifications: dispatcher,
		WS:            ws,
		Geo:           index,
		Procedures:    store,
		Users:         store,
		Auth:          auth.NewJWTAuthenticator(cfg.JWTSecret, store, logger),
		Limiter:       limiter,
		Limits: httpapi.Limits{
			Window: cfg.RateWindow,
			Write:  cfg.RateWrite,
			Read:   cfg.RateRead,
			Search: cfg.RateSearch,

			TrustedProxies: proxies,
		},
		Health: func(ctx context.Context) error {
			for _, check := range checks {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaRideTopic, cfg.KafkaLocationTopic)
		defer kp.Close()
		rides.Events = kp
		deps.Locations = kp
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers)
	}
	if cfg.StripeKey != "" {
		deps.Charger = payments.NewStripeClient(cfg.StripeKey, cfg.StripeCurrency)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(deps, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-negotiation listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	dispatcher.Wait()
	return nil
}

type healthCheck func(ctx context.Context) error

func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.Store, []healthCheck, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		return storage.NewMemoryStore(), nil, nil
	}
	ps, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.RunMigrations {
		if err := ps.Migrate(ctx); err != nil {
			_ = ps.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}
	return ps, []healthCheck{ps.Ping}, nil
}

// newRouter picks the road routing provider. OSRM wins when both are set.
func newRouter(cfg config.ServerConfig) pricing.Router {
	switch {
	case cfg.OSRMURL != "":
		return pricing.NewOSRMRouter(cfg.OSRMURL)
	case cfg.GoogleMapsKey != "":
		return pricing.NewGoogleRouter(cfg.GoogleMapsKey)
	}
	return nil
}
