package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/ayo6706/exchange-ledger/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrDuplicateNumber = errors.New("receipt number already issued")
	ErrNotFound        = errors.New("receipt not found")
)

// Request is everything the emitter needs to produce one receipt.
type Request struct {
	UserID         uuid.UUID
	OperationType  string
	DocumentNumber string
	Snapshot       models.OperationSnapshot
	MovementID     *uuid.UUID
	OnChain        *models.OnChainInfo
}

// Emitter turns a committed operation snapshot into a durable receipt and
// returns its identifier.
type Emitter interface {
	Emit(ctx context.Context, req Request) (uuid.UUID, error)
}

// NewDocumentNumber builds a PREFIX-YYYYMMDD-XXXXXXXX code with a random hex suffix.
func NewDocumentNumber(prefix string, at time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(id[:4]))
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), suffix)
}

// Fingerprint returns the canonical JSON of snapshot and its SHA-256 hex digest.
func Fingerprint(snapshot models.OperationSnapshot) ([]byte, string, error) {
	canonical, err := json.Marshal(snapshot)
	if err != nil {
		return nil, "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return canonical, hex.EncodeToString(sum[:]), nil
}

func verificationCode(number, digest string) string {
	sum := sha256.Sum256([]byte(number + "|" + digest))
	return strings.ToUpper(hex.EncodeToString(sum[:6]))
}

// Queries is the persistence the receipt store needs.
type Queries interface {
	InsertReceipt(ctx context.Context, arg repository.InsertReceiptParams) (models.Receipt, error)
	GetReceiptByNumber(ctx context.Context, number string) (models.Receipt, error)
}

// Store persists hash-stamped receipts in Postgres.
type Store struct {
	q Queries
}

func NewStore(q Queries) *Store {
	return &Store{q: q}
}

func (s *Store) Emit(ctx context.Context, req Request) (uuid.UUID, error) {
	if req.DocumentNumber == "" {
		return uuid.Nil, errors.New("document number is required")
	}
	canonical, digest, err := Fingerprint(req.Snapshot)
	if err != nil {
		return uuid.Nil, err
	}

	params := repository.InsertReceiptParams{
		ID:               uuid.New(),
		Number:           req.DocumentNumber,
		UserID:           req.UserID,
		OperationType:    req.OperationType,
		MovementID:       req.MovementID,
		Snapshot:         canonical,
		SHA256:           digest,
		VerificationCode: verificationCode(req.DocumentNumber, digest),
	}
	if req.OnChain != nil {
		params.OnChain = *req.OnChain
	}

	rec, err := s.q.InsertReceipt(ctx, params)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateNumber, req.DocumentNumber)
		}
		return uuid.Nil, fmt.Errorf("insert receipt: %w", err)
	}
	return rec.ID, nil
}

func (s *Store) Get(ctx context.Context, number string) (models.Receipt, error) {
	rec, err := s.q.GetReceiptByNumber(ctx, number)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Receipt{}, ErrNotFound
		}
		return models.Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	return rec, nil
}

// Verify checks a presented digest against the stored receipt.
func (s *Store) Verify(ctx context.Context, number, digest string) (bool, error) {
	rec, err := s.Get(ctx, number)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(rec.SHA256, digest), nil
}
