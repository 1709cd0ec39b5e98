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

// LedgerIntegrityChecker re-verifies the balance invariant over committed
// posting groups. The engine enforces it on the write path; this scan
// exists to catch out-of-band mutations and storage corruption.
type LedgerIntegrityChecker struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewLedgerIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger) *LedgerIntegrityChecker {
	return &LedgerIntegrityChecker{pool: pool, logger: logger}
}

// HandleTask adapts the checker to an asynq handler.
func (c *LedgerIntegrityChecker) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return c.Run(ctx, payload.TenantID)
}

const ledgerIntegrityQuery = `SELECT le.posting_group_id, le.currency_code, SUM(le.debit_amount), SUM(le.credit_amount)
FROM ledger_entries le
JOIN posting_groups pg ON pg.id = le.posting_group_id
WHERE ($1 = 0 OR pg.tenant_id = $1)
GROUP BY le.posting_group_id, le.currency_code
HAVING SUM(le.debit_amount) <> SUM(le.credit_amount)`

// Run scans every posting group and reports any (group, currency) whose
// debits and credits diverge. TenantID zero scans all tenants.
func (c *LedgerIntegrityChecker) Run(ctx context.Context, tenantID int64) error {
	rows, err := c.pool.Query(ctx, ledgerIntegrityQuery, tenantID)
	if err != nil {
		return fmt.Errorf("jobs: ledger integrity query: %w", err)
	}
	defer rows.Close()

	violations := 0
	for rows.Next() {
		var groupID int64
		var currency string
		var debit, credit decimal.Decimal
		if err := rows.Scan(&groupID, &currency, &debit, &credit); err != nil {
			return err
		}
		violations++
		c.logger.ErrorContext(ctx, "unbalanced posting group",
			slog.Int64("posting_group_id", groupID),
			slog.String("currency", currency),
			slog.String("debit", debit.String()),
			slog.String("credit", credit.String()))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if violations > 0 {
		return fmt.Errorf("jobs: ledger integrity found %d unbalanced group-currency pairs", violations)
	}
	c.logger.InfoContext(ctx, "ledger integrity check passed", slog.Int64("tenant_id", tenantID))
	return nil
}
