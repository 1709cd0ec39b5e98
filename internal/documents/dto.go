package documents

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/agriledger/agriledger/internal/ledger"
	"github.com/agriledger/agriledger/internal/shared"
)

var validate = validator.New()

// CreateDocumentInput is the draft creation request body.
type CreateDocumentInput struct {
	DocType     string    `json:"doc_type" validate:"required,max=32"`
	DocNo       string    `json:"doc_no" validate:"required,max=64"`
	DocDate     time.Time `json:"doc_date" validate:"required"`
	CropCycleID *int64    `json:"crop_cycle_id,omitempty"`
	Payload     Payload   `json:"payload"`
}

// Validate runs the tag checks plus the per-doc-type shape rules the tags
// cannot express.
func (in CreateDocumentInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	docType := ledger.SourceType(in.DocType)
	if stockDocTypes[docType] {
		return in.validateStock(docType)
	}
	switch docType {
	case ledger.SourceSale, ledger.SourcePayment, ledger.SourceAdvance, ledger.SourceJournal,
		ledger.SourceLabour, ledger.SourceCropActivity, ledger.SourceSettlement, ledger.SourceLeaseAccrual:
	default:
		return fmt.Errorf("%w: unknown document type %q", shared.ErrValidation, in.DocType)
	}
	if len(in.Payload.Lines) == 0 {
		return fmt.Errorf("%w: financial document requires lines", shared.ErrValidation)
	}
	for idx, line := range in.Payload.Lines {
		if line.AccountCode == "" || line.Currency == "" || !line.Amount.IsPositive() {
			return fmt.Errorf("%w: line %d incomplete", shared.ErrValidation, idx)
		}
		if s := ledger.EntrySide(line.Side); s != ledger.SideDebit && s != ledger.SideCredit {
			return fmt.Errorf("%w: line %d has unknown side %q", shared.ErrValidation, idx, line.Side)
		}
	}
	return nil
}

func (in CreateDocumentInput) validateStock(docType ledger.SourceType) error {
	p := in.Payload
	if p.StoreID == 0 {
		return fmt.Errorf("%w: stock document requires a store", shared.ErrValidation)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: stock document requires items", shared.ErrValidation)
	}
	if p.Currency == "" {
		return fmt.Errorf("%w: stock document requires a currency", shared.ErrValidation)
	}
	if p.InventoryAccount == "" || p.ContraAccount == "" {
		return fmt.Errorf("%w: stock document requires inventory and contra accounts", shared.ErrValidation)
	}
	for idx, item := range p.Items {
		if item.ItemID == 0 {
			return fmt.Errorf("%w: item %d missing item id", shared.ErrValidation, idx)
		}
		switch docType {
		case ledger.SourceAdjustment:
			if item.Qty.IsZero() {
				return fmt.Errorf("%w: item %d adjustment delta is zero", shared.ErrValidation, idx)
			}
		default:
			if !item.Qty.IsPositive() {
				return fmt.Errorf("%w: item %d qty must be positive", shared.ErrValidation, idx)
			}
		}
		if docType == ledger.SourceGoodsReceipt && item.UnitCost.IsNegative() {
			return fmt.Errorf("%w: item %d unit cost must be >= 0", shared.ErrValidation, idx)
		}
	}
	switch docType {
	case ledger.SourceTransfer:
		if p.ToStoreID == 0 {
			return fmt.Errorf("%w: transfer requires a destination store", shared.ErrValidation)
		}
		if p.ToStoreID == p.StoreID {
			return fmt.Errorf("%w: transfer stores must differ", shared.ErrValidation)
		}
		if p.ToAccount == "" {
			return fmt.Errorf("%w: transfer requires a destination inventory account", shared.ErrValidation)
		}
	}
	return nil
}

// PostInput is the post request body. The idempotency key is an opaque
// caller token; retries with the same key converge on one posting group.
type PostInput struct {
	PostingDate    time.Time `json:"posting_date" validate:"required"`
	IdempotencyKey string    `json:"idempotency_key" validate:"required,max=100"`
}

func (in PostInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

// ReverseInput is the reversal request body. The posting date is the date
// the reversal group books under, checked against open periods like any
// other posting.
type ReverseInput struct {
	PostingDate time.Time `json:"posting_date" validate:"required"`
	Reason      string    `json:"reason" validate:"required,min=3,max=500"`
}

func (in ReverseInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

// PostResult is what a post (or replayed post) hands back.
type PostResult struct {
	Document Document
	Group    ledger.PostingGroup
	Replayed bool
}

// ReverseResult pairs the reversed document with its reversal group.
type ReverseResult struct {
	Document Document
	Group    ledger.PostingGroup
}
