package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/api"
	"github.com/ayo6706/exchange-ledger/internal/config"
	"github.com/ayo6706/exchange-ledger/internal/db"
	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/idempotency"
	"github.com/ayo6706/exchange-ledger/internal/observability"
	"github.com/ayo6706/exchange-ledger/internal/receipt"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/ayo6706/exchange-ledger/internal/service"
	"github.com/ayo6706/exchange-ledger/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Run bootstraps the HTTP server and background workers and blocks until ctx
// is cancelled or one of them fails.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	observability.Init()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var cache redis.Cmdable
	if cfg.RedisURL != "" {
		client, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		cache = client
	} else {
		logger.Warn("REDIS_URL not set, quote and idempotency caches disabled")
	}

	store := repository.NewStore(pool).WithLockTimeout(cfg.LockTimeout)
	services := NewServices(store, receipt.NewStore(store.Pg()), cache, cfg)
	idemStore := idempotency.NewStore(cache, store.Pg(), cfg.IdempotencyTTL)

	postingWorker := worker.NewPostingWorker(services.Accounting).
		WithPollInterval(cfg.PostingPollInterval).
		WithBatchSize(cfg.PostingBatchSize)
	reconciliationWorker := worker.NewReconciliationWorker(services.Reconciliation).
		WithInterval(cfg.ReconciliationInterval)

	router := api.NewRouter(cfg, logger, pool, cache, idemStore, services)
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		postingWorker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		reconciliationWorker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		postingWorker.Stop()
		reconciliationWorker.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// NewServices builds the service graph over any QueryStore. cache may be nil.
func NewServices(store service.QueryStore, receipts *receipt.Store, cache redis.Cmdable, cfg *config.Config) api.Services {
	scales := domain.Scales{Stablecoin: cfg.StablecoinScale}
	quotes := service.NewQuoteService(store, cache, cfg.QuoteCacheTTL)
	accounting := service.NewAccountingService(store, quotes, service.NewPostingRetrier())
	issuer := service.NewReceiptIssuer(receipts, cfg.ReceiptPrefix)

	return api.Services{
		Exchange: service.NewExchangeService(store, quotes, accounting, issuer, service.ExchangeConfig{
			Scales:   scales,
			SwapRate: cfg.SwapRate,
		}),
		Accounts:       service.NewAccountService(store, scales),
		Movements:      service.NewMovementLog(store),
		Funding:        service.NewFundingService(store, accounting, issuer, scales),
		Accounting:     accounting,
		Reconciliation: service.NewReconciliationService(store),
		Export:         service.NewExportService(store, scales),
		Quotes:         quotes,
		Receipts:       receipts,
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
