package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agriledger/agriledger/internal/shared"
)

// Repository reads period and cycle windows outside a posting transaction.
// The engines use the tx-scoped guards in internal/ledger instead so the
// period row stays locked until commit.
type Repository interface {
	FindPeriodByDate(ctx context.Context, tenantID int64, date time.Time) (Period, error)
	GetCycle(ctx context.Context, tenantID, cycleID int64) (CropCycle, error)
	ListCycles(ctx context.Context, tenantID int64) ([]CropCycle, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) FindPeriodByDate(ctx context.Context, tenantID int64, date time.Time) (Period, error) {
	var p Period
	err := r.db.QueryRow(ctx, `SELECT id, tenant_id, code, start_date, end_date, status, closed_at, created_at, updated_at
FROM accounting_periods WHERE tenant_id=$1 AND start_date <= $2 AND end_date >= $2`, tenantID, date).
		Scan(&p.ID, &p.TenantID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, fmt.Errorf("periods: no period covers %s: %w", date.Format("2006-01-02"), shared.ErrNotFound)
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) GetCycle(ctx context.Context, tenantID, cycleID int64) (CropCycle, error) {
	var c CropCycle
	err := r.db.QueryRow(ctx, `SELECT id, tenant_id, name, crop_name, start_date, end_date, status, closed_at, created_at, updated_at
FROM crop_cycles WHERE tenant_id=$1 AND id=$2`, tenantID, cycleID).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.CropName, &c.StartDate, &c.EndDate, &c.Status, &c.ClosedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CropCycle{}, fmt.Errorf("periods: crop cycle %d: %w", cycleID, shared.ErrNotFound)
		}
		return CropCycle{}, err
	}
	return c, nil
}

func (r *repository) ListCycles(ctx context.Context, tenantID int64) ([]CropCycle, error) {
	rows, err := r.db.Query(ctx, `SELECT id, tenant_id, name, crop_name, start_date, end_date, status, closed_at, created_at, updated_at
FROM crop_cycles WHERE tenant_id=$1 ORDER BY start_date DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CropCycle
	for rows.Next() {
		var c CropCycle
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.CropName, &c.StartDate, &c.EndDate, &c.Status, &c.ClosedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
