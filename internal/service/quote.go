package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const quoteCachePrefix = "quote:latest:"

// QuoteReader returns the most recent published quote for a currency.
type QuoteReader interface {
	LatestQuote(ctx context.Context, currency string) (models.Quote, error)
}

// QuoteService is the Quote Store: an append-only price history with a redis
// read-through cache of the latest row per currency.
type QuoteService struct {
	store QueryStore
	cache redis.Cmdable
	ttl   time.Duration
}

// NewQuoteService builds the quote store. cache may be nil.
func NewQuoteService(store QueryStore, cache redis.Cmdable, ttl time.Duration) *QuoteService {
	return &QuoteService{store: store, cache: cache, ttl: ttl}
}

// PublishQuoteInput is one price pair produced by the external price feed.
type PublishQuoteInput struct {
	Currency    string
	AppliedBuy  decimal.Decimal
	AppliedSell decimal.Decimal
	RefBuy      decimal.NullDecimal
	RefSell     decimal.NullDecimal
	MarginBps   *int32
}

// Validate enforces positive prices and a spread that never favors the client.
func (in PublishQuoteInput) Validate() error {
	if !domain.IsTradable(in.Currency) {
		return fmt.Errorf("%w: %q is not quoted", domain.ErrUnsupportedCurrency, in.Currency)
	}
	if !in.AppliedBuy.IsPositive() || !in.AppliedSell.IsPositive() {
		return fmt.Errorf("%w: applied prices must be positive", domain.ErrInvalidQuote)
	}
	if in.RefSell.Valid {
		if in.RefSell.Decimal.IsNegative() {
			return fmt.Errorf("%w: reference sell must not be negative", domain.ErrInvalidQuote)
		}
		if in.AppliedSell.LessThan(in.RefSell.Decimal) {
			return fmt.Errorf("%w: applied sell %s is below reference sell %s", domain.ErrInvalidQuote, in.AppliedSell, in.RefSell.Decimal)
		}
	}
	if in.RefBuy.Valid && in.AppliedBuy.GreaterThan(in.RefBuy.Decimal) {
		return fmt.Errorf("%w: applied buy %s is above reference buy %s", domain.ErrInvalidQuote, in.AppliedBuy, in.RefBuy.Decimal)
	}
	if in.MarginBps != nil && *in.MarginBps < 0 {
		return fmt.Errorf("%w: margin must not be negative", domain.ErrInvalidQuote)
	}
	return nil
}

// ApplySpread derives applied prices from a reference price and a margin.
// The sell side rounds up and the buy side rounds down so the house never
// gives away the fraction.
func ApplySpread(ref decimal.Decimal, marginBps int32) (buy, sell decimal.Decimal) {
	margin := domain.BpsFraction(int(marginBps))
	one := decimal.NewFromInt(1)
	buy = domain.Floor(ref.Mul(one.Sub(margin)), domain.FiatScale)
	sell = ref.Mul(one.Add(margin)).RoundCeil(domain.FiatScale)
	return buy, sell
}

// Publish appends an immutable quote and refreshes the cache.
func (s *QuoteService) Publish(ctx context.Context, in PublishQuoteInput) (models.Quote, error) {
	if err := in.Validate(); err != nil {
		return models.Quote{}, err
	}
	quote, err := s.store.Queries().InsertQuote(ctx, repository.InsertQuoteParams{
		Currency:    in.Currency,
		AppliedBuy:  in.AppliedBuy,
		AppliedSell: in.AppliedSell,
		RefBuy:      in.RefBuy,
		RefSell:     in.RefSell,
		MarginBps:   in.MarginBps,
	})
	if err != nil {
		return models.Quote{}, fmt.Errorf("%w: insert quote: %w", domain.ErrStorageFailure, err)
	}
	s.cacheQuote(ctx, quote)
	zap.L().Info("quote published",
		zap.String("currency", quote.Currency),
		zap.String("applied_buy", quote.AppliedBuy.String()),
		zap.String("applied_sell", quote.AppliedSell.String()),
	)
	return quote, nil
}

// LatestQuote fails with domain.ErrQuoteUnavailable when nothing was ever published.
func (s *QuoteService) LatestQuote(ctx context.Context, currency string) (models.Quote, error) {
	if !domain.IsTradable(currency) {
		return models.Quote{}, fmt.Errorf("%w: %q is not quoted", domain.ErrUnsupportedCurrency, currency)
	}
	if quote, ok := s.cachedQuote(ctx, currency); ok {
		return quote, nil
	}

	quote, err := s.store.Queries().GetLatestQuote(ctx, currency)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Quote{}, fmt.Errorf("%w: no quote for %s", domain.ErrQuoteUnavailable, currency)
		}
		return models.Quote{}, fmt.Errorf("%w: latest quote for %s: %v", domain.ErrQuoteUnavailable, currency, err)
	}
	s.cacheQuote(ctx, quote)
	return quote, nil
}

func (s *QuoteService) cachedQuote(ctx context.Context, currency string) (models.Quote, bool) {
	if s.cache == nil {
		return models.Quote{}, false
	}
	val, err := s.cache.Get(ctx, quoteCachePrefix+currency).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("redis quote lookup failed", zap.String("currency", currency), zap.Error(err))
		}
		return models.Quote{}, false
	}
	var quote models.Quote
	if err := json.Unmarshal(val, &quote); err != nil {
		zap.L().Warn("discarding undecodable cached quote", zap.String("currency", currency), zap.Error(err))
		return models.Quote{}, false
	}
	return quote, true
}

func (s *QuoteService) cacheQuote(ctx context.Context, quote models.Quote) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, quoteCachePrefix+quote.Currency, payload, s.ttl).Err(); err != nil {
		zap.L().Warn("redis quote write failed", zap.String("currency", quote.Currency), zap.Error(err))
	}
}
