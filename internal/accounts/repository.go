package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agriledger/agriledger/internal/shared"
)

// Repository encapsulates DB operations for the chart of accounts. Every
// query carries the tenant predicate.
type Repository interface {
	List(ctx context.Context, tenantID int64) ([]Account, error)
	GetByCode(ctx context.Context, tenantID int64, code string) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, tenantID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, tenant_id, code, name, type, is_system, is_active, created_at, updated_at
FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.IsSystem, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) GetByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT id, tenant_id, code, name, type, is_system, is_active, created_at, updated_at
FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code).
		Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.IsSystem, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("accounts: %s: %w", code, shared.ErrNotFound)
		}
		return Account{}, err
	}
	return a, nil
}
