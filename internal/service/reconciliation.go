package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconciliationService verifies that the house cash position equals the sum
// of the cash-affecting accounting entries.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run compares every currency of the house position with its entry total.
// Drift is reported, never corrected.
func (s *ReconciliationService) Run(ctx context.Context) (models.ReconciliationReport, error) {
	queries := s.store.Queries()
	position, err := queries.GetHousePosition(ctx)
	if err != nil {
		return models.ReconciliationReport{}, fmt.Errorf("get house position: %w", err)
	}
	totals, err := queries.SumCashAffectingEntries(ctx)
	if err != nil {
		return models.ReconciliationReport{}, fmt.Errorf("sum cash-affecting entries: %w", err)
	}
	pending, err := queries.CountPendingPostings(ctx)
	if err != nil {
		return models.ReconciliationReport{}, fmt.Errorf("count pending postings: %w", err)
	}
	observability.SetPendingPostings(pending)

	report := models.ReconciliationReport{
		Position:        position,
		EntryTotals:     map[string]decimal.Decimal{},
		Drift:           map[string]decimal.Decimal{},
		PendingPostings: pending,
	}
	for _, t := range totals {
		report.EntryTotals[t.Currency] = t.Total
	}

	for _, ccy := range domain.Currencies() {
		expected := report.EntryTotals[ccy]
		drift := position.Of(ccy).Sub(expected)
		if drift.IsZero() {
			continue
		}
		report.Drift[ccy] = drift
		observability.IncrementHouseDrift(ccy)
		zap.L().Error("CRITICAL: house position drift detected",
			zap.String("currency", ccy),
			zap.String("position", position.Of(ccy).String()),
			zap.String("entries", expected.String()),
			zap.String("drift", drift.String()),
		)
	}

	if report.Balanced() {
		zap.L().Info("house position reconciled", zap.Int64("pending_postings", pending))
	}
	return report, nil
}
