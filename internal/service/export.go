package service

import (
	"context"
	"fmt"
	"io"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/export"
	"github.com/ayo6706/exchange-ledger/internal/models"
)

const exportBatchSize = 500

// ExportService streams read-only CSV projections of the two ledgers.
type ExportService struct {
	store  QueryStore
	scales domain.Scales
}

func NewExportService(store QueryStore, scales domain.Scales) *ExportService {
	if scales.Stablecoin == 0 {
		scales = domain.DefaultScales()
	}
	return &ExportService{store: store, scales: scales}
}

// ExportMovements writes every movement matching filter, oldest first.
func (s *ExportService) ExportMovements(ctx context.Context, w io.Writer, filter models.MovementFilter) (int, error) {
	writer, err := export.NewMovementWriter(w, s.scales)
	if err != nil {
		return 0, err
	}
	filter.OrderBy = models.OrderCreatedAsc
	filter.Limit = exportBatchSize

	written := 0
	for filter.Offset = 0; ; filter.Offset += exportBatchSize {
		batch, err := s.store.Queries().ListMovements(ctx, filter)
		if err != nil {
			return written, fmt.Errorf("list movements: %w", err)
		}
		if err := writer.Write(batch...); err != nil {
			return written, err
		}
		written += len(batch)
		if len(batch) < exportBatchSize {
			break
		}
	}
	return written, writer.Flush()
}

// ExportEntries writes every accounting entry matching filter in posting order.
func (s *ExportService) ExportEntries(ctx context.Context, w io.Writer, filter models.EntryFilter) (int, error) {
	writer, err := export.NewEntryWriter(w)
	if err != nil {
		return 0, err
	}
	filter.Limit = exportBatchSize

	written := 0
	for filter.Offset = 0; ; filter.Offset += exportBatchSize {
		batch, err := s.store.Queries().ListAccountingEntries(ctx, filter)
		if err != nil {
			return written, fmt.Errorf("list accounting entries: %w", err)
		}
		if err := writer.Write(batch...); err != nil {
			return written, err
		}
		written += len(batch)
		if len(batch) < exportBatchSize {
			break
		}
	}
	return written, writer.Flush()
}
