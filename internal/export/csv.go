package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/domain"
	"github.com/ayo6706/exchange-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const timeLayout = time.RFC3339Nano

var MovementHeader = []string{
	"created_at", "id", "user_id", "kind", "currency",
	"amount", "balance_before", "balance_after", "description", "operator_id",
}

var EntryHeader = []string{
	"created_at", "id", "category", "currency", "amount", "amount_local",
	"user_id", "detail", "ref_price", "applied_price", "movement_id",
	"source_doc_type", "source_doc_id",
}

var ErrHeaderMismatch = errors.New("unexpected csv header")

// MovementWriter streams movements as CSV with amounts fixed at the currency scale.
type MovementWriter struct {
	w      *csv.Writer
	scales domain.Scales
}

// NewMovementWriter writes the header row immediately.
func NewMovementWriter(w io.Writer, scales domain.Scales) (*MovementWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(MovementHeader); err != nil {
		return nil, fmt.Errorf("write movement header: %w", err)
	}
	return &MovementWriter{w: cw, scales: scales}, nil
}

func (mw *MovementWriter) Write(movements ...models.Movement) error {
	for _, m := range movements {
		record := []string{
			m.CreatedAt.UTC().Format(timeLayout),
			m.ID.String(),
			m.UserID.String(),
			m.Kind,
			m.Currency,
			mw.scales.FormatAmount(m.Currency, m.Amount),
			mw.scales.FormatAmount(m.Currency, m.BalanceBefore),
			mw.scales.FormatAmount(m.Currency, m.BalanceAfter),
			m.Description,
			optionalID(m.OperatorID),
		}
		if err := mw.w.Write(record); err != nil {
			return fmt.Errorf("write movement %s: %w", m.ID, err)
		}
	}
	return nil
}

// Flush pushes buffered rows to the underlying writer.
func (mw *MovementWriter) Flush() error {
	mw.w.Flush()
	return mw.w.Error()
}

// EntryWriter streams accounting entries as CSV.
type EntryWriter struct {
	w *csv.Writer
}

func NewEntryWriter(w io.Writer) (*EntryWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(EntryHeader); err != nil {
		return nil, fmt.Errorf("write entry header: %w", err)
	}
	return &EntryWriter{w: cw}, nil
}

func (ew *EntryWriter) Write(entries ...models.AccountingEntry) error {
	for _, e := range entries {
		record := []string{
			e.CreatedAt.UTC().Format(timeLayout),
			e.ID.String(),
			e.Category,
			e.Currency,
			e.Amount.StringFixed(domain.AccountingScale),
			e.AmountLocal.StringFixed(domain.FiatScale),
			optionalID(e.UserID),
			e.Detail,
			optionalDecimal(e.RefPrice),
			optionalDecimal(e.AppliedPrice),
			optionalID(e.MovementID),
			e.Key.SourceDocType,
			e.Key.SourceDocID,
		}
		if err := ew.w.Write(record); err != nil {
			return fmt.Errorf("write entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func (ew *EntryWriter) Flush() error {
	ew.w.Flush()
	return ew.w.Error()
}

// ReadMovements parses a movement export back into movements.
func ReadMovements(r io.Reader) ([]models.Movement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(MovementHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range MovementHeader {
		if header[i] != name {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrHeaderMismatch, i, header[i], name)
		}
	}

	var out []models.Movement
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		m, err := parseMovement(record)
		if err != nil {
			return nil, fmt.Errorf("parse line %d: %w", line, err)
		}
		out = append(out, m)
	}
}

func parseMovement(record []string) (models.Movement, error) {
	var (
		m   models.Movement
		err error
	)
	if m.CreatedAt, err = time.Parse(timeLayout, record[0]); err != nil {
		return m, fmt.Errorf("created_at: %w", err)
	}
	if m.ID, err = uuid.Parse(record[1]); err != nil {
		return m, fmt.Errorf("id: %w", err)
	}
	if m.UserID, err = uuid.Parse(record[2]); err != nil {
		return m, fmt.Errorf("user_id: %w", err)
	}
	m.Kind = record[3]
	m.Currency = record[4]
	if m.Amount, err = decimal.NewFromString(record[5]); err != nil {
		return m, fmt.Errorf("amount: %w", err)
	}
	if m.BalanceBefore, err = decimal.NewFromString(record[6]); err != nil {
		return m, fmt.Errorf("balance_before: %w", err)
	}
	if m.BalanceAfter, err = decimal.NewFromString(record[7]); err != nil {
		return m, fmt.Errorf("balance_after: %w", err)
	}
	m.Description = record[8]
	if record[9] != "" {
		operatorID, err := uuid.Parse(record[9])
		if err != nil {
			return m, fmt.Errorf("operator_id: %w", err)
		}
		m.OperatorID = &operatorID
	}
	return m, nil
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func optionalDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
