package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StockReconciler compares each stock balance row against the sum of its
// movement deltas. The two are written in the same transaction, so any
// drift means a bug or out-of-band write.
type StockReconciler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStockReconciler(pool *pgxpool.Pool, logger *slog.Logger) *StockReconciler {
	return &StockReconciler{pool: pool, logger: logger}
}

// HandleTask adapts the reconciler to an asynq handler.
func (r *StockReconciler) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return r.Run(ctx, payload.TenantID)
}

const stockReconcileQuery = `SELECT b.tenant_id, b.store_id, b.item_id,
b.qty_on_hand, b.qty_on_hand * b.wac_unit_cost,
COALESCE(SUM(m.qty_delta), 0), COALESCE(SUM(m.value_delta), 0)
FROM stock_balances b
LEFT JOIN stock_movements m
  ON m.tenant_id = b.tenant_id AND m.store_id = b.store_id AND m.item_id = b.item_id
WHERE ($1 = 0 OR b.tenant_id = $1)
GROUP BY b.tenant_id, b.store_id, b.item_id, b.qty_on_hand, b.wac_unit_cost
HAVING b.qty_on_hand <> COALESCE(SUM(m.qty_delta), 0)
    OR b.qty_on_hand * b.wac_unit_cost <> COALESCE(SUM(m.value_delta), 0)`

// valueTolerance absorbs average-cost rounding. The stored wac is the value
// divided by the quantity at decimal division precision, so qty*wac can sit
// a hair off the exact movement sum on healthy data.
var valueTolerance = decimal.New(1, -6)

func valueWithinTolerance(balanceValue, movedValue decimal.Decimal) bool {
	return balanceValue.Sub(movedValue).Abs().LessThanOrEqual(valueTolerance)
}

// Run reports every (store, item) whose balance disagrees with its movement
// history, both in quantity and in value. TenantID zero scans all tenants.
func (r *StockReconciler) Run(ctx context.Context, tenantID int64) error {
	rows, err := r.pool.Query(ctx, stockReconcileQuery, tenantID)
	if err != nil {
		return fmt.Errorf("jobs: stock reconcile query: %w", err)
	}
	defer rows.Close()

	drifts := 0
	for rows.Next() {
		var tenant, storeID, itemID int64
		var qty, value, movedQty, movedValue decimal.Decimal
		if err := rows.Scan(&tenant, &storeID, &itemID, &qty, &value, &movedQty, &movedValue); err != nil {
			return err
		}
		if qty.Equal(movedQty) && valueWithinTolerance(value, movedValue) {
			continue
		}
		drifts++
		r.logger.ErrorContext(ctx, "stock balance drift",
			slog.Int64("tenant_id", tenant),
			slog.Int64("store_id", storeID),
			slog.Int64("item_id", itemID),
			slog.String("balance_qty", qty.String()),
			slog.String("movement_qty", movedQty.String()),
			slog.String("balance_value", value.String()),
			slog.String("movement_value", movedValue.String()))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if drifts > 0 {
		return fmt.Errorf("jobs: stock reconcile found %d drifted balances", drifts)
	}
	r.logger.InfoContext(ctx, "stock reconcile passed", slog.Int64("tenant_id", tenantID))
	return nil
}
