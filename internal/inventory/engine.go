package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Engine computes weighted-average-cost effects of stock movements. All
// methods run inside a caller-owned transaction and lock the affected
// stock rows for its duration, so concurrent movements against the same
// (store, item) serialize instead of oversubscribing stock.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// ApplyReceipt blends an inbound quantity into the running average:
// newWac = (qtyOnHand*wac + qty*unitCost) / (qtyOnHand + qty).
func (e *Engine) ApplyReceipt(ctx context.Context, tx TxRepository, ref MovementRef, qty, unitCost decimal.Decimal) (CostedMovement, error) {
	if !qty.IsPositive() {
		return CostedMovement{}, fmt.Errorf("%w: receipt qty %s", ErrInvalidQuantity, qty)
	}
	if unitCost.IsNegative() {
		return CostedMovement{}, fmt.Errorf("%w: got %s", ErrInvalidUnitCost, unitCost)
	}
	return e.applyInbound(ctx, tx, ref, MovementReceipt, qty, unitCost)
}

// ApplyIssue deducts an outbound quantity at the current wac. The wac is
// unchanged by an outbound movement; the returned unit cost is the
// snapshot the caller charges to the ledger.
func (e *Engine) ApplyIssue(ctx context.Context, tx TxRepository, ref MovementRef, qty decimal.Decimal) (CostedMovement, error) {
	if !qty.IsPositive() {
		return CostedMovement{}, fmt.Errorf("%w: issue qty %s", ErrInvalidQuantity, qty)
	}
	return e.applyOutbound(ctx, tx, ref, MovementIssue, qty)
}

// ApplyTransfer decomposes a transfer into an outbound movement from the
// source store at its current wac followed by an inbound movement to the
// destination at that same unit cost. The destination wac may change; the
// source wac never does.
func (e *Engine) ApplyTransfer(ctx context.Context, tx TxRepository, ref MovementRef, toStoreID int64, qty decimal.Decimal) (CostedMovement, error) {
	if ref.StoreID == toStoreID {
		return CostedMovement{}, ErrSameStore
	}
	if !qty.IsPositive() {
		return CostedMovement{}, fmt.Errorf("%w: transfer qty %s", ErrInvalidQuantity, qty)
	}
	out, err := e.applyOutbound(ctx, tx, ref, MovementTransferOut, qty)
	if err != nil {
		return CostedMovement{}, err
	}
	inRef := ref
	inRef.StoreID = toStoreID
	if _, err := e.applyInbound(ctx, tx, inRef, MovementTransferIn, qty, out.UnitCost); err != nil {
		return CostedMovement{}, err
	}
	return out, nil
}

// ApplyAdjustment handles count corrections. A gain is a receipt at the
// supplied cost hint (zero when absent); a loss is an outbound movement at
// current wac. A zero delta is meaningless and rejected.
func (e *Engine) ApplyAdjustment(ctx context.Context, tx TxRepository, ref MovementRef, qtyDelta decimal.Decimal, costHint *decimal.Decimal) (CostedMovement, error) {
	if qtyDelta.IsZero() {
		return CostedMovement{}, fmt.Errorf("%w: adjustment delta is zero", ErrInvalidQuantity)
	}
	if qtyDelta.IsPositive() {
		cost := decimal.Zero
		if costHint != nil {
			if costHint.IsNegative() {
				return CostedMovement{}, fmt.Errorf("%w: got %s", ErrInvalidUnitCost, costHint)
			}
			cost = *costHint
		}
		return e.applyInbound(ctx, tx, ref, MovementAdjustment, qtyDelta, cost)
	}
	return e.applyOutbound(ctx, tx, ref, MovementAdjustment, qtyDelta.Neg())
}

// ApplyInverse undoes a committed movement bit-exactly: the balance takes
// back the original qty and value deltas, so a reversed receipt restores
// the prior wac even when later receipts moved it. Used by document
// reversal inside the same transaction as the ledger reversal.
func (e *Engine) ApplyInverse(ctx context.Context, tx TxRepository, ref MovementRef, original StockMovement) (CostedMovement, error) {
	balance, err := tx.GetBalanceForUpdate(ctx, ref.TenantID, original.StoreID, original.ItemID)
	if err != nil {
		if !errors.Is(err, ErrBalanceNotFound) {
			return CostedMovement{}, err
		}
		balance = StockBalance{TenantID: ref.TenantID, StoreID: original.StoreID, ItemID: original.ItemID}
	}
	newQty := balance.QtyOnHand.Sub(original.QtyDelta)
	if newQty.IsNegative() {
		return CostedMovement{}, fmt.Errorf("%w: reversal needs %s on hand at store %d, have %s",
			ErrInsufficientStock, original.QtyDelta, original.StoreID, balance.QtyOnHand)
	}
	newValue := balance.ValueOnHand().Sub(original.ValueDelta)
	balance.QtyOnHand = newQty
	if newQty.IsZero() {
		balance.WACUnitCost = decimal.Zero
	} else {
		balance.WACUnitCost = newValue.Div(newQty)
	}
	balance.UpdatedAt = ref.OccurredAt
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return CostedMovement{}, err
	}
	movement := StockMovement{
		TenantID:   ref.TenantID,
		StoreID:    original.StoreID,
		ItemID:     original.ItemID,
		Type:       inverseType(original.Type),
		QtyDelta:   original.QtyDelta.Neg(),
		ValueDelta: original.ValueDelta.Neg(),
		UnitCost:   original.UnitCost,
		SourceType: ref.SourceType,
		SourceID:   ref.SourceID,
		OccurredAt: ref.OccurredAt,
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return CostedMovement{}, err
	}
	return CostedMovement{Type: movement.Type, Qty: original.QtyDelta.Abs(), UnitCost: original.UnitCost, Value: original.ValueDelta.Abs()}, nil
}

func (e *Engine) applyInbound(ctx context.Context, tx TxRepository, ref MovementRef, movementType MovementType, qty, unitCost decimal.Decimal) (CostedMovement, error) {
	balance, err := tx.GetBalanceForUpdate(ctx, ref.TenantID, ref.StoreID, ref.ItemID)
	if err != nil {
		if !errors.Is(err, ErrBalanceNotFound) {
			return CostedMovement{}, err
		}
		balance = StockBalance{TenantID: ref.TenantID, StoreID: ref.StoreID, ItemID: ref.ItemID}
	}
	newQty := balance.QtyOnHand.Add(qty)
	totalValue := balance.QtyOnHand.Mul(balance.WACUnitCost).Add(qty.Mul(unitCost))
	balance.WACUnitCost = totalValue.Div(newQty)
	balance.QtyOnHand = newQty
	balance.UpdatedAt = ref.OccurredAt
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return CostedMovement{}, err
	}
	value := qty.Mul(unitCost)
	movement := StockMovement{
		TenantID:   ref.TenantID,
		StoreID:    ref.StoreID,
		ItemID:     ref.ItemID,
		Type:       movementType,
		QtyDelta:   qty,
		ValueDelta: value,
		UnitCost:   unitCost,
		SourceType: ref.SourceType,
		SourceID:   ref.SourceID,
		OccurredAt: ref.OccurredAt,
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return CostedMovement{}, err
	}
	return CostedMovement{Type: movementType, Qty: qty, UnitCost: unitCost, Value: value}, nil
}

func (e *Engine) applyOutbound(ctx context.Context, tx TxRepository, ref MovementRef, movementType MovementType, qty decimal.Decimal) (CostedMovement, error) {
	balance, err := tx.GetBalanceForUpdate(ctx, ref.TenantID, ref.StoreID, ref.ItemID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return CostedMovement{}, fmt.Errorf("%w: no stock of item %d at store %d", ErrInsufficientStock, ref.ItemID, ref.StoreID)
		}
		return CostedMovement{}, err
	}
	if qty.GreaterThan(balance.QtyOnHand) {
		return CostedMovement{}, fmt.Errorf("%w: requested %s, on hand %s", ErrInsufficientStock, qty, balance.QtyOnHand)
	}
	unitCost := balance.WACUnitCost
	balance.QtyOnHand = balance.QtyOnHand.Sub(qty)
	balance.UpdatedAt = ref.OccurredAt
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return CostedMovement{}, err
	}
	value := qty.Mul(unitCost)
	movement := StockMovement{
		TenantID:   ref.TenantID,
		StoreID:    ref.StoreID,
		ItemID:     ref.ItemID,
		Type:       movementType,
		QtyDelta:   qty.Neg(),
		ValueDelta: value.Neg(),
		UnitCost:   unitCost,
		SourceType: ref.SourceType,
		SourceID:   ref.SourceID,
		OccurredAt: ref.OccurredAt,
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return CostedMovement{}, err
	}
	return CostedMovement{Type: movementType, Qty: qty, UnitCost: unitCost, Value: value}, nil
}

func inverseType(t MovementType) MovementType {
	switch t {
	case MovementReceipt:
		return MovementIssue
	case MovementIssue:
		return MovementReceipt
	case MovementTransferOut:
		return MovementTransferIn
	case MovementTransferIn:
		return MovementTransferOut
	default:
		return MovementAdjustment
	}
}
