package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agriledger/agriledger/internal/shared"
)

// SourceType names the document kind that produced a posting group.
type SourceType string

const (
	SourceGoodsReceipt SourceType = "GRN"
	SourceIssue        SourceType = "ISSUE"
	SourceTransfer     SourceType = "TRANSFER"
	SourceAdjustment   SourceType = "ADJUSTMENT"
	SourceSale         SourceType = "SALE"
	SourcePayment      SourceType = "PAYMENT"
	SourceAdvance      SourceType = "ADVANCE"
	SourceJournal      SourceType = "JOURNAL"
	SourceLabour       SourceType = "LABOUR"
	SourceCropActivity SourceType = "CROP_ACTIVITY"
	SourceSettlement   SourceType = "SETTLEMENT"
	SourceLeaseAccrual SourceType = "LEASE_ACCRUAL"
)

// AllocationType tags the reporting dimension an allocation row carries.
type AllocationType string

const (
	AllocationPoolShare AllocationType = "POOL_SHARE"
	AllocationKamdari   AllocationType = "KAMDARI"
	AllocationProject   AllocationType = "PROJECT"
	AllocationLease     AllocationType = "LEASE"
)

// PostingGroup is an atomic, balanced batch of ledger entries tied to one
// source document and one posting date. Immutable after creation except for
// the ReversedBy back-link stamped when the group is later reversed.
type PostingGroup struct {
	ID               int64
	TenantID         int64
	PostingDate      time.Time
	SourceType       SourceType
	SourceID         uuid.UUID
	CropCycleID      *int64
	IdempotencyKey   string
	ReversalOf       *int64
	ReversedBy       *int64
	CorrectionReason *string
	CreatedAt        time.Time
	Entries          []LedgerEntry
	Allocations      []AllocationRow
}

// LedgerEntry is a single debit-or-credit line against one account. Exactly
// one of Debit and Credit is strictly positive. Append-only.
type LedgerEntry struct {
	ID             int64
	TenantID       int64
	PostingGroupID int64
	AccountID      int64
	AccountCode    string
	Currency       string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	CreatedAt      time.Time
}

// AllocationRow is a non-balancing party/project dimension over a posting
// group. It does not participate in the balance invariant.
type AllocationRow struct {
	ID             int64
	TenantID       int64
	PostingGroupID int64
	PartyID        *int64
	ProjectID      *int64
	Type           AllocationType
	Amount         decimal.Decimal
	CreatedAt      time.Time
}

var (
	// ErrGroupNotFound indicates a tenant-scoped group lookup found nothing.
	ErrGroupNotFound = fmt.Errorf("ledger: posting group: %w", shared.ErrNotFound)
	// ErrNoLines rejects an empty posting.
	ErrNoLines = fmt.Errorf("ledger: posting requires at least one line: %w", shared.ErrValidation)
	// ErrInvalidLine rejects a line with a non-positive amount or missing account.
	ErrInvalidLine = fmt.Errorf("ledger: invalid posting line: %w", shared.ErrValidation)
	// ErrNoOpenPeriod rejects a posting date not covered by an open period.
	ErrNoOpenPeriod = fmt.Errorf("ledger: no open accounting period covers the posting date: %w", shared.ErrPolicy)
	// ErrPeriodClosed rejects a posting date inside a closed or locked period.
	ErrPeriodClosed = fmt.Errorf("ledger: accounting period is closed: %w", shared.ErrPolicy)
	// ErrCycleClosed rejects cycle-scoped postings into a closed crop cycle.
	ErrCycleClosed = fmt.Errorf("ledger: crop cycle is closed: %w", shared.ErrPolicy)
	// ErrDateOutOfCycle rejects a date outside the crop cycle window.
	ErrDateOutOfCycle = fmt.Errorf("ledger: date outside crop cycle window: %w", shared.ErrPolicy)
	// ErrAlreadyReversed rejects a second reversal of the same group.
	ErrAlreadyReversed = fmt.Errorf("ledger: posting group already reversed: %w", shared.ErrConflict)
	// ErrReverseOfReversal rejects reversing a reversal group.
	ErrReverseOfReversal = fmt.Errorf("ledger: cannot reverse a reversal: %w", shared.ErrConflict)
	// ErrDocumentNotPostable indicates the source document is not DRAFT.
	ErrDocumentNotPostable = fmt.Errorf("ledger: source document is not postable: %w", shared.ErrConflict)

	// ErrUnbalanced is a programming error inside a caller: debits and credits
	// do not balance. Deliberately outside the user-facing taxonomy; it must
	// abort the transaction and never reach storage.
	ErrUnbalanced = errors.New("ledger: debits and credits do not balance")
)
