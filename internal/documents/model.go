package documents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agriledger/agriledger/internal/ledger"
	"github.com/agriledger/agriledger/internal/shared"
)

// Document is a source document header. Lines live in the typed payload;
// once posted the header and payload are immutable.
type Document struct {
	ID                     uuid.UUID
	TenantID               int64
	DocType                ledger.SourceType
	DocNo                  string
	DocDate                time.Time
	Status                 Status
	CropCycleID            *int64
	PostingGroupID         *int64
	ReversalPostingGroupID *int64
	Payload                Payload
	CreatedBy              int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Payload carries the document lines. Stock documents fill the store/item
// fields; financial documents fill Lines directly. Stored as JSONB.
type Payload struct {
	Currency  string `json:"currency,omitempty"`
	StoreID   int64  `json:"store_id,omitempty"`
	ToStoreID int64  `json:"to_store_id,omitempty"`

	// Account codes the posting phase books against. For a GRN the
	// inventory account is debited and the contra (payable accrual)
	// credited; an issue debits the contra (expense) and credits
	// inventory; a transfer moves value between the two inventory
	// accounts; an adjustment books against the gain/loss contra.
	InventoryAccount string `json:"inventory_account,omitempty"`
	ContraAccount    string `json:"contra_account,omitempty"`
	ToAccount        string `json:"to_account,omitempty"`

	Items       []ItemLine       `json:"items,omitempty"`
	Lines       []FinanceLine    `json:"lines,omitempty"`
	Allocations []AllocationLine `json:"allocations,omitempty"`
}

// ItemLine is one stock line on a GRN, issue, transfer or adjustment.
// UnitCost is meaningful on receipts and positive adjustments only.
type ItemLine struct {
	ItemID   int64           `json:"item_id"`
	Qty      decimal.Decimal `json:"qty"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// FinanceLine is one explicit ledger line on a financial document.
type FinanceLine struct {
	AccountCode string          `json:"account_code"`
	Side        string          `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

// AllocationLine is a party/project allocation attached at posting time.
type AllocationLine struct {
	PartyID   *int64          `json:"party_id,omitempty"`
	ProjectID *int64          `json:"project_id,omitempty"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
}

// ErrDocumentNotFound indicates a tenant-scoped lookup found nothing.
var ErrDocumentNotFound = fmt.Errorf("documents: document: %w", shared.ErrNotFound)

// ErrDuplicateDocNo indicates the document number is taken within the tenant.
var ErrDuplicateDocNo = fmt.Errorf("documents: document number already exists: %w", shared.ErrConflict)

// stockDocTypes are the document kinds whose posting runs a valuation phase.
var stockDocTypes = map[ledger.SourceType]bool{
	ledger.SourceGoodsReceipt: true,
	ledger.SourceIssue:        true,
	ledger.SourceTransfer:     true,
	ledger.SourceAdjustment:   true,
}

// HasStockEffect reports whether posting this document moves inventory.
func (d Document) HasStockEffect() bool {
	return stockDocTypes[d.DocType]
}
