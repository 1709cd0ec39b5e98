package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agriledger/agriledger/internal/periods"
	"github.com/agriledger/agriledger/internal/platform/db"
	"github.com/agriledger/agriledger/internal/shared"
)

// Repository encapsulates DB operations for posting groups.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetGroup(ctx context.Context, tenantID, groupID int64) (PostingGroup, error)
	GetGroupWithLines(ctx context.Context, tenantID, groupID int64) (PostingGroup, error)
	FindGroupBySlot(ctx context.Context, tenantID int64, sourceType SourceType, sourceID uuid.UUID, key string) (PostingGroup, error)
	ListEntries(ctx context.Context, tenantID, groupID int64) ([]LedgerEntry, error)
	ListAllocations(ctx context.Context, tenantID, groupID int64) ([]AllocationRow, error)
	ListReversals(ctx context.Context, tenantID, groupID int64) ([]PostingGroup, error)
}

// TxRepository exposes engine operations inside one posting transaction.
type TxRepository interface {
	FindGroupBySlot(ctx context.Context, tenantID int64, sourceType SourceType, sourceID uuid.UUID, key string) (PostingGroup, error)
	InsertGroup(ctx context.Context, group PostingGroup) (int64, bool, error)
	InsertEntries(ctx context.Context, groupID int64, entries []LedgerEntry) error
	InsertAllocations(ctx context.Context, groupID int64, rows []AllocationRow) error
	GetGroupWithLinesForUpdate(ctx context.Context, tenantID, groupID int64) (PostingGroup, error)
	ClaimReversal(ctx context.Context, tenantID, originalID, reversalID int64) error

	// Period and cycle guards are duplicated here from internal/periods so the
	// rows stay locked for the duration of the posting transaction.
	GetPeriodForUpdate(ctx context.Context, tenantID int64, date time.Time) (periods.Period, error)
	GetCycleForUpdate(ctx context.Context, tenantID, cycleID int64) (periods.CropCycle, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *repository) GetGroup(ctx context.Context, tenantID, groupID int64) (PostingGroup, error) {
	return scanGroup(ctx, r.db, tenantID, groupID, "")
}

func (r *repository) GetGroupWithLines(ctx context.Context, tenantID, groupID int64) (PostingGroup, error) {
	group, err := r.GetGroup(ctx, tenantID, groupID)
	if err != nil {
		return PostingGroup{}, err
	}
	group.Entries, err = listEntries(ctx, r.db, tenantID, groupID)
	if err != nil {
		return PostingGroup{}, err
	}
	group.Allocations, err = listAllocations(ctx, r.db, tenantID, groupID)
	if err != nil {
		return PostingGroup{}, err
	}
	return group, nil
}

func (r *repository) FindGroupBySlot(ctx context.Context, tenantID int64, sourceType SourceType, sourceID uuid.UUID, key string) (PostingGroup, error) {
	return findGroupBySlot(ctx, r.db, tenantID, sourceType, sourceID, key)
}

func (r *repository) ListEntries(ctx context.Context, tenantID, groupID int64) ([]LedgerEntry, error) {
	if _, err := r.GetGroup(ctx, tenantID, groupID); err != nil {
		return nil, err
	}
	return listEntries(ctx, r.db, tenantID, groupID)
}

func (r *repository) ListAllocations(ctx context.Context, tenantID, groupID int64) ([]AllocationRow, error) {
	if _, err := r.GetGroup(ctx, tenantID, groupID); err != nil {
		return nil, err
	}
	return listAllocations(ctx, r.db, tenantID, groupID)
}

func (r *repository) ListReversals(ctx context.Context, tenantID, groupID int64) ([]PostingGroup, error) {
	if _, err := r.GetGroup(ctx, tenantID, groupID); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, groupSelect+` WHERE tenant_id=$1 AND reversal_of_posting_group_id=$2 ORDER BY id`, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PostingGroup
	for rows.Next() {
		g, err := scanGroupRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

const groupSelect = `SELECT id, tenant_id, posting_date, source_type, source_id, crop_cycle_id, idempotency_key,
reversal_of_posting_group_id, reversed_by_posting_group_id, correction_reason, created_at
FROM posting_groups`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroupRow(row rowScanner) (PostingGroup, error) {
	var g PostingGroup
	err := row.Scan(&g.ID, &g.TenantID, &g.PostingDate, &g.SourceType, &g.SourceID, &g.CropCycleID, &g.IdempotencyKey,
		&g.ReversalOf, &g.ReversedBy, &g.CorrectionReason, &g.CreatedAt)
	if err != nil {
		return PostingGroup{}, err
	}
	return g, nil
}

func scanGroup(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, tenantID, groupID int64, lock string) (PostingGroup, error) {
	g, err := scanGroupRow(q.QueryRow(ctx, groupSelect+` WHERE tenant_id=$1 AND id=$2`+lock, tenantID, groupID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PostingGroup{}, ErrGroupNotFound
		}
		return PostingGroup{}, err
	}
	return g, nil
}

func findGroupBySlot(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, tenantID int64, sourceType SourceType, sourceID uuid.UUID, key string) (PostingGroup, error) {
	g, err := scanGroupRow(q.QueryRow(ctx, groupSelect+` WHERE tenant_id=$1 AND source_type=$2 AND source_id=$3 AND idempotency_key=$4`,
		tenantID, sourceType, sourceID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PostingGroup{}, ErrGroupNotFound
		}
		return PostingGroup{}, err
	}
	g.Entries, err = listEntries(ctx, q, tenantID, g.ID)
	if err != nil {
		return PostingGroup{}, err
	}
	g.Allocations, err = listAllocations(ctx, q, tenantID, g.ID)
	if err != nil {
		return PostingGroup{}, err
	}
	return g, nil
}

func listEntries(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, tenantID, groupID int64) ([]LedgerEntry, error) {
	rows, err := q.Query(ctx, `SELECT e.id, e.tenant_id, e.posting_group_id, e.account_id, a.code, e.currency_code, e.debit_amount, e.credit_amount, e.created_at
FROM ledger_entries e JOIN accounts a ON a.id=e.account_id
WHERE e.tenant_id=$1 AND e.posting_group_id=$2 ORDER BY e.id`, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.PostingGroupID, &e.AccountID, &e.AccountCode, &e.Currency, &e.Debit, &e.Credit, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func listAllocations(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, tenantID, groupID int64) ([]AllocationRow, error) {
	rows, err := q.Query(ctx, `SELECT id, tenant_id, posting_group_id, party_id, project_id, allocation_type, amount, created_at
FROM allocation_rows WHERE tenant_id=$1 AND posting_group_id=$2 ORDER BY id`, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AllocationRow
	for rows.Next() {
		var a AllocationRow
		if err := rows.Scan(&a.ID, &a.TenantID, &a.PostingGroupID, &a.PartyID, &a.ProjectID, &a.Type, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps a pgx transaction so document coordinators can run
// valuation and posting inside the same atomic unit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) FindGroupBySlot(ctx context.Context, tenantID int64, sourceType SourceType, sourceID uuid.UUID, key string) (PostingGroup, error) {
	return findGroupBySlot(ctx, r.tx, tenantID, sourceType, sourceID, key)
}

// InsertGroup inserts the group header, relying on the unique slot index
// (tenant, source_type, source_id, idempotency_key) as the idempotency
// primitive. A concurrent duplicate blocks on the index until the winner
// commits, then observes the conflict; inserted=false reports that case.
func (r *txRepository) InsertGroup(ctx context.Context, group PostingGroup) (int64, bool, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO posting_groups
(tenant_id, posting_date, source_type, source_id, crop_cycle_id, idempotency_key, reversal_of_posting_group_id, correction_reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (tenant_id, source_type, source_id, idempotency_key) DO NOTHING
RETURNING id`,
		group.TenantID, group.PostingDate, group.SourceType, group.SourceID, group.CropCycleID,
		group.IdempotencyKey, group.ReversalOf, group.CorrectionReason).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func (r *txRepository) InsertEntries(ctx context.Context, groupID int64, entries []LedgerEntry) error {
	for _, e := range entries {
		if _, err := r.tx.Exec(ctx, `INSERT INTO ledger_entries
(tenant_id, posting_group_id, account_id, currency_code, debit_amount, credit_amount)
VALUES ($1,$2,$3,$4,$5,$6)`,
			e.TenantID, groupID, e.AccountID, e.Currency, e.Debit, e.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertAllocations(ctx context.Context, groupID int64, rows []AllocationRow) error {
	for _, a := range rows {
		if _, err := r.tx.Exec(ctx, `INSERT INTO allocation_rows
(tenant_id, posting_group_id, party_id, project_id, allocation_type, amount)
VALUES ($1,$2,$3,$4,$5,$6)`,
			a.TenantID, groupID, a.PartyID, a.ProjectID, a.Type, a.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetGroupWithLinesForUpdate(ctx context.Context, tenantID, groupID int64) (PostingGroup, error) {
	group, err := scanGroup(ctx, r.tx, tenantID, groupID, " FOR UPDATE")
	if err != nil {
		return PostingGroup{}, err
	}
	group.Entries, err = listEntries(ctx, r.tx, tenantID, groupID)
	if err != nil {
		return PostingGroup{}, err
	}
	group.Allocations, err = listAllocations(ctx, r.tx, tenantID, groupID)
	if err != nil {
		return PostingGroup{}, err
	}
	return group, nil
}

// ClaimReversal stamps the back-link on the original group. The WHERE clause
// is the at-most-once check: zero rows affected means another reversal got
// there first.
func (r *txRepository) ClaimReversal(ctx context.Context, tenantID, originalID, reversalID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE posting_groups SET reversed_by_posting_group_id=$3
WHERE tenant_id=$1 AND id=$2 AND reversed_by_posting_group_id IS NULL`, tenantID, originalID, reversalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, tenantID int64, date time.Time) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, code, start_date, end_date, status, closed_at, created_at, updated_at
FROM accounting_periods WHERE tenant_id=$1 AND start_date <= $2 AND end_date >= $2 FOR UPDATE`, tenantID, date).
		Scan(&p.ID, &p.TenantID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, ErrNoOpenPeriod
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) GetCycleForUpdate(ctx context.Context, tenantID, cycleID int64) (periods.CropCycle, error) {
	var c periods.CropCycle
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, name, crop_name, start_date, end_date, status, closed_at, created_at, updated_at
FROM crop_cycles WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, cycleID).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.CropName, &c.StartDate, &c.EndDate, &c.Status, &c.ClosedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.CropCycle{}, fmt.Errorf("ledger: crop cycle %d: %w", cycleID, shared.ErrNotFound)
		}
		return periods.CropCycle{}, err
	}
	return c, nil
}
