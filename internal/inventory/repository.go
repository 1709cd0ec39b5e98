package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRepository exposes stock mutations inside one posting transaction.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, tenantID, storeID, itemID int64) (StockBalance, error)
	UpsertBalance(ctx context.Context, balance StockBalance) error
	InsertMovement(ctx context.Context, movement StockMovement) error
	ListMovementsBySource(ctx context.Context, tenantID int64, sourceType string, sourceID uuid.UUID) ([]StockMovement, error)
}

// Repository reads stock state outside a posting transaction.
type Repository interface {
	GetBalance(ctx context.Context, tenantID, storeID, itemID int64) (StockBalance, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)
}

// MovementFilter narrows stock card queries.
type MovementFilter struct {
	TenantID int64
	StoreID  int64
	ItemID   int64
	From     time.Time
	To       time.Time
	Limit    int
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) GetBalance(ctx context.Context, tenantID, storeID, itemID int64) (StockBalance, error) {
	var b StockBalance
	err := r.db.QueryRow(ctx, `SELECT tenant_id, store_id, item_id, qty_on_hand, wac_unit_cost, updated_at
FROM stock_balances WHERE tenant_id=$1 AND store_id=$2 AND item_id=$3`, tenantID, storeID, itemID).
		Scan(&b.TenantID, &b.StoreID, &b.ItemID, &b.QtyOnHand, &b.WACUnitCost, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockBalance{}, ErrBalanceNotFound
		}
		return StockBalance{}, err
	}
	return b, nil
}

func (r *repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, tenant_id, store_id, item_id, movement_type, qty_delta, value_delta, unit_cost, source_type, source_id, occurred_at
FROM stock_movements
WHERE tenant_id=$1 AND store_id=$2 AND item_id=$3
  AND ($4::timestamptz IS NULL OR occurred_at >= $4)
  AND ($5::timestamptz IS NULL OR occurred_at <= $5)
ORDER BY occurred_at, id
LIMIT $6`, filter.TenantID, filter.StoreID, filter.ItemID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps a pgx transaction for the valuation engine.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// GetBalanceForUpdate locks the stock row until the posting transaction
// commits or aborts. This is the serialization boundary of §concurrency:
// two issues against the same (store, item) cannot both read a stale
// qty_on_hand.
func (r *txRepository) GetBalanceForUpdate(ctx context.Context, tenantID, storeID, itemID int64) (StockBalance, error) {
	var b StockBalance
	err := r.tx.QueryRow(ctx, `SELECT tenant_id, store_id, item_id, qty_on_hand, wac_unit_cost, updated_at
FROM stock_balances WHERE tenant_id=$1 AND store_id=$2 AND item_id=$3 FOR UPDATE`, tenantID, storeID, itemID).
		Scan(&b.TenantID, &b.StoreID, &b.ItemID, &b.QtyOnHand, &b.WACUnitCost, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockBalance{}, ErrBalanceNotFound
		}
		return StockBalance{}, err
	}
	return b, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance StockBalance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (tenant_id, store_id, item_id, qty_on_hand, wac_unit_cost, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (tenant_id, store_id, item_id)
DO UPDATE SET qty_on_hand=EXCLUDED.qty_on_hand, wac_unit_cost=EXCLUDED.wac_unit_cost, updated_at=NOW()`,
		balance.TenantID, balance.StoreID, balance.ItemID, balance.QtyOnHand, balance.WACUnitCost)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m StockMovement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements
(tenant_id, store_id, item_id, movement_type, qty_delta, value_delta, unit_cost, source_type, source_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.TenantID, m.StoreID, m.ItemID, m.Type, m.QtyDelta, m.ValueDelta, m.UnitCost, m.SourceType, m.SourceID, m.OccurredAt)
	return err
}

func (r *txRepository) ListMovementsBySource(ctx context.Context, tenantID int64, sourceType string, sourceID uuid.UUID) ([]StockMovement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, store_id, item_id, movement_type, qty_delta, value_delta, unit_cost, source_type, source_id, occurred_at
FROM stock_movements WHERE tenant_id=$1 AND source_type=$2 AND source_id=$3 ORDER BY id`, tenantID, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func scanMovements(rows pgx.Rows) ([]StockMovement, error) {
	var out []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.TenantID, &m.StoreID, &m.ItemID, &m.Type, &m.QtyDelta, &m.ValueDelta, &m.UnitCost, &m.SourceType, &m.SourceID, &m.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
