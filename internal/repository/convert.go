package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Postgres error codes the ledger reacts to.
const (
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
)

func ToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func FromPgUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

// OptionalPgUUID maps a nil pointer to SQL NULL.
func OptionalPgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return ToPgUUID(*id)
}

// OptionalUUID maps SQL NULL to a nil pointer.
func OptionalUUID(id pgtype.UUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := uuid.UUID(id.Bytes)
	return &v
}

// IsNotFound reports a lookup that matched no row.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports a duplicate key error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// IsLockTimeout reports errors raised because a lock or statement wait ran out.
func IsLockTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgLockNotAvailable, pgQueryCanceled, pgDeadlockDetected, pgSerializationFailure:
		return true
	default:
		return false
	}
}

// Classify maps a transaction failure onto the ledger error taxonomy.
// Errors that already carry a domain meaning pass through untouched.
func Classify(err error) error {
	if err == nil || domain.IsDomainError(err) {
		return err
	}
	if IsLockTimeout(err) {
		return fmt.Errorf("%w: %w", domain.ErrConcurrencyTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrStorageFailure, err)
}
