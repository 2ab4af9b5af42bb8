package api

import (
	"github.com/ayo6706/exchange-ledger/internal/api/handler"
	"github.com/ayo6706/exchange-ledger/internal/api/middleware"
	"github.com/ayo6706/exchange-ledger/internal/api/openapi"
	"github.com/ayo6706/exchange-ledger/internal/config"
	"github.com/ayo6706/exchange-ledger/internal/idempotency"
	"github.com/ayo6706/exchange-ledger/internal/receipt"
	"github.com/ayo6706/exchange-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services is everything the HTTP layer exposes.
type Services struct {
	Exchange       *service.ExchangeService
	Accounts       *service.AccountService
	Movements      *service.MovementLog
	Funding        *service.FundingService
	Accounting     *service.AccountingService
	Reconciliation *service.ReconciliationService
	Export         *service.ExportService
	Quotes         *service.QuoteService
	Receipts       *receipt.Store
}

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	db     handler.Pinger
	redis  redis.Cmdable
	idem   *idempotency.Store
	svc    Services
}

// NewRouter wires handlers over svc. db, redis and idem may be nil in tests.
func NewRouter(cfg *config.Config, logger *zap.Logger, db handler.Pinger, redisClient redis.Cmdable, idem *idempotency.Store, svc Services) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, logger: logger, db: db, redis: redisClient, idem: idem, svc: svc}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.OperatorMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	exchangeHandler := handler.NewExchangeHandler(api.svc.Exchange, api.cfg.SwapFeeBps)
	accountHandler := handler.NewAccountHandler(api.svc.Accounts)
	movementHandler := handler.NewMovementHandler(api.svc.Movements, api.svc.Export)
	fundingHandler := handler.NewFundingHandler(api.svc.Funding)
	accountingHandler := handler.NewAccountingHandler(api.svc.Accounting, api.svc.Reconciliation, api.svc.Export, api.cfg.PostingBatchSize)
	quoteHandler := handler.NewQuoteHandler(api.svc.Quotes)
	receiptHandler := handler.NewReceiptHandler(api.svc.Receipts)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", openapi.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(api.cfg.RateLimitRPS))
		r.Use(middleware.IdempotencyMiddleware(api.idem, api.logger))

		r.Get("/quotes/{currency}", quoteHandler.Latest)
		r.Get("/receipts/{number}", receiptHandler.Get)
		r.Get("/receipts/{number}/verify", receiptHandler.Verify)

		r.Post("/accounts", accountHandler.Open)
		r.Route("/accounts/{user_id}", func(r chi.Router) {
			r.Get("/", accountHandler.Balances)
			r.Post("/buy", exchangeHandler.Buy)
			r.Post("/sell", exchangeHandler.Sell)
			r.Post("/swap", exchangeHandler.Swap)
			r.Post("/deposits", fundingHandler.RequestDeposit)
			r.Post("/withdrawals", fundingHandler.RequestWithdrawal)
			r.Get("/movements", movementHandler.List)
			r.Get("/movements/totals", movementHandler.Totals)
			r.Get("/movements/export", movementHandler.Export)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireOperator)

			r.Post("/quotes", quoteHandler.Publish)
			r.Post("/accounts/{user_id}/adjustments", accountHandler.Adjust)
			r.Get("/movements", movementHandler.List)
			r.Get("/movements/totals", movementHandler.Totals)
			r.Get("/movements/export", movementHandler.Export)

			r.Get("/funding-requests", fundingHandler.List)
			r.Get("/funding-requests/{id}", fundingHandler.Get)
			r.Get("/funding-requests/{id}/history", fundingHandler.History)
			r.Post("/deposits/{id}/approve", fundingHandler.ApproveDeposit)
			r.Post("/deposits/{id}/reject", fundingHandler.RejectDeposit)
			r.Post("/withdrawals/{id}/approve", fundingHandler.ApproveWithdrawal)
			r.Post("/withdrawals/{id}/reject", fundingHandler.RejectWithdrawal)
			r.Post("/withdrawals/{id}/sent", fundingHandler.MarkWithdrawalSent)

			r.Get("/accounting/entries", accountingHandler.Entries)
			r.Get("/accounting/entries/export", accountingHandler.ExportEntries)
			r.Get("/accounting/summary", accountingHandler.Summary)
			r.Get("/accounting/house", accountingHandler.House)
			r.Post("/accounting/house/adjustments", accountingHandler.AdjustHouse)
			r.Post("/accounting/reconcile", accountingHandler.Reconcile)
			r.Post("/accounting/postings/process", accountingHandler.ProcessPostings)
		})
	})

	return r
}
