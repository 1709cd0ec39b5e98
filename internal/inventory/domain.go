package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agriledger/agriledger/internal/shared"
)

// MovementType enumerates stock movements.
type MovementType string

const (
	MovementReceipt     MovementType = "RECEIPT"
	MovementIssue       MovementType = "ISSUE"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementAdjustment  MovementType = "ADJUSTMENT"
)

// StockBalance is the running quantity and weighted-average unit cost for
// one (tenant, store, item). Mutated only by the valuation engine under a
// row lock.
type StockBalance struct {
	TenantID    int64
	StoreID     int64
	ItemID      int64
	QtyOnHand   decimal.Decimal
	WACUnitCost decimal.Decimal
	UpdatedAt   time.Time
}

// ValueOnHand is the derived stock value.
func (b StockBalance) ValueOnHand() decimal.Decimal {
	return b.QtyOnHand.Mul(b.WACUnitCost)
}

// StockMovement is the immutable audit row written for every quantity
// change: one per affected (store, item) per source event.
type StockMovement struct {
	ID         int64
	TenantID   int64
	StoreID    int64
	ItemID     int64
	Type       MovementType
	QtyDelta   decimal.Decimal
	ValueDelta decimal.Decimal
	UnitCost   decimal.Decimal
	SourceType string
	SourceID   uuid.UUID
	OccurredAt time.Time
}

// CostedMovement is what the valuation engine hands back to the posting
// caller: the quantity moved, the unit cost charged, and the extended value
// the ledger lines must carry.
type CostedMovement struct {
	Type     MovementType
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
	Value    decimal.Decimal
}

// MovementRef ties a valuation call to its source document.
type MovementRef struct {
	TenantID   int64
	StoreID    int64
	ItemID     int64
	SourceType string
	SourceID   uuid.UUID
	OccurredAt time.Time
}

var (
	// ErrInsufficientStock rejects an outbound movement beyond on-hand
	// quantity. Policy, not validation: the request was well-formed, the
	// stock just is not there.
	ErrInsufficientStock = fmt.Errorf("inventory: insufficient stock: %w", shared.ErrPolicy)
	// ErrInvalidQuantity rejects a non-positive (or zero-delta) quantity.
	ErrInvalidQuantity = fmt.Errorf("inventory: invalid quantity: %w", shared.ErrValidation)
	// ErrInvalidUnitCost rejects a negative unit cost.
	ErrInvalidUnitCost = fmt.Errorf("inventory: unit cost must be >= 0: %w", shared.ErrValidation)
	// ErrSameStore rejects a transfer within one store.
	ErrSameStore = fmt.Errorf("inventory: source and destination store must differ: %w", shared.ErrValidation)
	// ErrBalanceNotFound signals a missing stock row; callers treat it as a
	// zero balance on inbound and as insufficient stock on outbound.
	ErrBalanceNotFound = fmt.Errorf("inventory: stock balance: %w", shared.ErrNotFound)
)
