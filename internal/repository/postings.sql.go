package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/google/uuid"
)

const postingColumns = `id, doc_class, source_doc_type, source_doc_id, payload, status, attempts, last_error, created_at, updated_at`

func scanPosting(row interface{ Scan(...any) error }) (models.PendingPosting, error) {
	var (
		p       models.PendingPosting
		payload []byte
	)
	if err := row.Scan(&p.ID, &p.Key.DocClass, &p.Key.SourceDocType, &p.Key.SourceDocID, &payload, &p.Status, &p.Attempts, &p.LastError, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	if err := json.Unmarshal(payload, &p.Request); err != nil {
		return p, fmt.Errorf("decode posting payload %s: %w", p.ID, err)
	}
	return p, nil
}

type EnqueuePostingParams struct {
	ID      uuid.UUID
	Request models.PostingRequest
}

const enqueuePosting = `
INSERT INTO pending_postings (id, doc_class, source_doc_type, source_doc_id, payload, status)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (doc_class, source_doc_type, source_doc_id) DO NOTHING
RETURNING ` + postingColumns

// EnqueuePosting stores a posting in the outbox. It reports false when a
// posting with the same dedup key is already queued.
func (q *Queries) EnqueuePosting(ctx context.Context, arg EnqueuePostingParams) (models.PendingPosting, bool, error) {
	payload, err := json.Marshal(arg.Request)
	if err != nil {
		return models.PendingPosting{}, false, fmt.Errorf("encode posting payload: %w", err)
	}
	key := arg.Request.Key
	p, err := scanPosting(q.db.QueryRow(ctx, enqueuePosting, arg.ID, key.DocClass, key.SourceDocType, key.SourceDocID, payload, domain.PostingStatusPending))
	if err != nil {
		if IsNotFound(err) {
			return models.PendingPosting{}, false, nil
		}
		return models.PendingPosting{}, false, err
	}
	return p, true, nil
}

const listPendingPostings = `
SELECT ` + postingColumns + `
FROM pending_postings
WHERE status = $1
ORDER BY created_at, id
LIMIT $2`

func (q *Queries) ListPendingPostings(ctx context.Context, limit int32) ([]models.PendingPosting, error) {
	rows, err := q.db.Query(ctx, listPendingPostings, domain.PostingStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.PendingPosting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// SKIP LOCKED lets several workers drain the outbox without blocking each other.
const getPendingPostingForUpdate = `
SELECT ` + postingColumns + `
FROM pending_postings
WHERE id = $1 AND status = $2
FOR UPDATE SKIP LOCKED`

func (q *Queries) GetPendingPostingForUpdate(ctx context.Context, id uuid.UUID) (models.PendingPosting, error) {
	return scanPosting(q.db.QueryRow(ctx, getPendingPostingForUpdate, id, domain.PostingStatusPending))
}

const markPostingDone = `
UPDATE pending_postings
SET status = $1, attempts = attempts + 1, last_error = '', updated_at = NOW()
WHERE id = $2`

func (q *Queries) MarkPostingDone(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, markPostingDone, domain.PostingStatusDone, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const markPostingFailed = `
UPDATE pending_postings
SET attempts = attempts + 1, last_error = $1, updated_at = NOW()
WHERE id = $2 AND status = $3`

func (q *Queries) MarkPostingFailed(ctx context.Context, id uuid.UUID, lastError string) (int64, error) {
	tag, err := q.db.Exec(ctx, markPostingFailed, lastError, id, domain.PostingStatusPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) CountPendingPostings(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM pending_postings WHERE status = $1`, domain.PostingStatusPending).Scan(&n)
	return n, err
}
