package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/google/uuid"
)

// AuditEvent is one state change worth keeping forever.
type AuditEvent struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  string
	NextState  string
	// Metadata is marshalled to JSON when non-nil.
	Metadata any
}

// AuditService keeps the append-only audit trail of accounts and funding requests.
type AuditService struct {
	store QueryStore
}

func NewAuditService(store QueryStore) *AuditService {
	return &AuditService{store: store}
}

// Record appends ev inside the caller's transaction, so the audit row commits
// or rolls back with the change it describes.
func (s *AuditService) Record(ctx context.Context, qtx repository.Querier, ev AuditEvent) error {
	var metadata []byte
	if ev.Metadata != nil {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = raw
	}
	_, err := qtx.InsertAuditLog(ctx, repository.InsertAuditLogParams{
		EntityType: ev.EntityType,
		EntityID:   repository.ToPgUUID(ev.EntityID),
		ActorID:    repository.OptionalPgUUID(ev.ActorID),
		Action:     ev.Action,
		PrevState:  optionalText(ev.PrevState),
		NextState:  optionalText(ev.NextState),
		Metadata:   metadata,
	})
	if err != nil {
		return fmt.Errorf("insert audit log %s/%s: %w", ev.EntityType, ev.Action, err)
	}
	return nil
}

// History returns the audit trail of one entity, oldest first.
func (s *AuditService) History(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditEntry, error) {
	items, err := s.store.Queries().ListAuditLog(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return items, nil
}

func optionalText(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
