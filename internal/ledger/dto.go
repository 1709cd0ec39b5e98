package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntrySide says which side of the ledger a line hits.
type EntrySide string

const (
	SideDebit  EntrySide = "DEBIT"
	SideCredit EntrySide = "CREDIT"
)

// LineInput describes one posting line. Amount is strictly positive; the
// side decides whether it lands in the debit or credit column.
type LineInput struct {
	AccountCode string
	Side        EntrySide
	Amount      decimal.Decimal
	Currency    string
}

// AllocationInput describes a non-balancing allocation row.
type AllocationInput struct {
	PartyID   *int64
	ProjectID *int64
	Type      AllocationType
	Amount    decimal.Decimal
}

// PostingInput groups everything the posting engine needs. IdempotencyKey is
// a caller-supplied opaque token; the engine never regenerates it.
type PostingInput struct {
	TenantID       int64
	SourceType     SourceType
	SourceID       uuid.UUID
	PostingDate    time.Time
	IdempotencyKey string
	CropCycleID    *int64
	Lines          []LineInput
	Allocations    []AllocationInput
	ActorID        int64
}

// Validate rejects malformed input before any mutation. The balance check
// runs per currency; an imbalance is ErrUnbalanced, not a validation error,
// because balanced lines are the caller's contract.
func (in PostingInput) Validate() error {
	if in.TenantID == 0 {
		return fmt.Errorf("%w: tenant required", ErrInvalidLine)
	}
	if in.SourceType == "" || in.SourceID == uuid.Nil {
		return fmt.Errorf("%w: source document required", ErrInvalidLine)
	}
	if in.IdempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key required", ErrInvalidLine)
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	debits := map[string]decimal.Decimal{}
	credits := map[string]decimal.Decimal{}
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("%w: line %d missing account code", ErrInvalidLine, idx)
		}
		if line.Currency == "" {
			return fmt.Errorf("%w: line %d missing currency", ErrInvalidLine, idx)
		}
		if !line.Amount.IsPositive() {
			return fmt.Errorf("%w: line %d amount must be positive", ErrInvalidLine, idx)
		}
		switch line.Side {
		case SideDebit:
			debits[line.Currency] = debits[line.Currency].Add(line.Amount)
		case SideCredit:
			credits[line.Currency] = credits[line.Currency].Add(line.Amount)
		default:
			return fmt.Errorf("%w: line %d has unknown side %q", ErrInvalidLine, idx, line.Side)
		}
	}
	for currency, debit := range debits {
		if !debit.Equal(credits[currency]) {
			return fmt.Errorf("%w: %s debit %s vs credit %s", ErrUnbalanced, currency, debit, credits[currency])
		}
	}
	for currency, credit := range credits {
		if _, ok := debits[currency]; !ok && !credit.IsZero() {
			return fmt.Errorf("%w: %s debit 0 vs credit %s", ErrUnbalanced, currency, credit)
		}
	}
	return nil
}

// ReversalInput groups parameters for reversing a posting group.
type ReversalInput struct {
	TenantID       int64
	PostingGroupID int64
	ReversalDate   time.Time
	Reason         string
	ActorID        int64
}
