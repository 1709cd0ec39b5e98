package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agriledger/agriledger/internal/accounts"
	"github.com/agriledger/agriledger/internal/periods"
)

// AccountResolver maps account codes to registry accounts for one tenant.
type AccountResolver interface {
	Resolve(ctx context.Context, tenantID int64, codes []string) (map[string]accounts.Account, error)
}

// DocumentTx flips the source document's state inside the posting
// transaction. Implemented by the documents package so the status change
// commits or rolls back with the ledger writes.
type DocumentTx interface {
	MarkPosted(ctx context.Context, tenantID int64, sourceID uuid.UUID, groupID int64) error
	MarkReversed(ctx context.Context, tenantID int64, sourceID uuid.UUID, reversalGroupID int64) error
}

// ErrReplayRace reports that a concurrent posting with the same idempotency
// key won the slot but its row is not visible in this transaction's
// snapshot. The caller retries outside the transaction and observes the
// winner's group.
var ErrReplayRace = errors.New("ledger: idempotency slot taken concurrently")

// Engine creates balanced posting groups. All methods operate inside a
// caller-owned transaction so valuation and posting form one atomic unit.
type Engine struct {
	resolver AccountResolver
	now      func() time.Time
}

func NewEngine(resolver AccountResolver) *Engine {
	return &Engine{resolver: resolver, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Post atomically creates a balanced PostingGroup with its LedgerEntries and
// AllocationRows and flips the source document to POSTED. If a group already
// exists for (tenant, sourceType, sourceID, idempotencyKey) it is returned
// unchanged with replayed=true and no side effects.
func (e *Engine) Post(ctx context.Context, tx TxRepository, docs DocumentTx, in PostingInput) (PostingGroup, bool, error) {
	if err := in.Validate(); err != nil {
		return PostingGroup{}, false, err
	}

	existing, err := tx.FindGroupBySlot(ctx, in.TenantID, in.SourceType, in.SourceID, in.IdempotencyKey)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, ErrGroupNotFound) {
		return PostingGroup{}, false, err
	}

	if err := e.EnsurePostable(ctx, tx, in.TenantID, in.PostingDate, in.CropCycleID); err != nil {
		return PostingGroup{}, false, err
	}

	codes := make([]string, 0, len(in.Lines))
	for _, line := range in.Lines {
		codes = append(codes, line.AccountCode)
	}
	resolved, err := e.resolver.Resolve(ctx, in.TenantID, codes)
	if err != nil {
		return PostingGroup{}, false, err
	}

	group := PostingGroup{
		TenantID:       in.TenantID,
		PostingDate:    in.PostingDate,
		SourceType:     in.SourceType,
		SourceID:       in.SourceID,
		CropCycleID:    in.CropCycleID,
		IdempotencyKey: in.IdempotencyKey,
	}
	groupID, inserted, err := tx.InsertGroup(ctx, group)
	if err != nil {
		return PostingGroup{}, false, err
	}
	if !inserted {
		// Lost the slot to a concurrent poster. The whole transaction must
		// roll back (any valuation already applied in it included); the
		// caller converges on the winner's group from a fresh snapshot.
		return PostingGroup{}, false, ErrReplayRace
	}
	group.ID = groupID
	group.CreatedAt = e.now()

	entries := make([]LedgerEntry, 0, len(in.Lines))
	for _, line := range in.Lines {
		account := resolved[line.AccountCode]
		entry := LedgerEntry{
			TenantID:       in.TenantID,
			PostingGroupID: groupID,
			AccountID:      account.ID,
			AccountCode:    account.Code,
			Currency:       line.Currency,
			CreatedAt:      group.CreatedAt,
		}
		if line.Side == SideDebit {
			entry.Debit = line.Amount
		} else {
			entry.Credit = line.Amount
		}
		entries = append(entries, entry)
	}
	if err := tx.InsertEntries(ctx, groupID, entries); err != nil {
		return PostingGroup{}, false, err
	}
	group.Entries = entries

	if len(in.Allocations) > 0 {
		rows := make([]AllocationRow, 0, len(in.Allocations))
		for _, a := range in.Allocations {
			rows = append(rows, AllocationRow{
				TenantID:       in.TenantID,
				PostingGroupID: groupID,
				PartyID:        a.PartyID,
				ProjectID:      a.ProjectID,
				Type:           a.Type,
				Amount:         a.Amount,
				CreatedAt:      group.CreatedAt,
			})
		}
		if err := tx.InsertAllocations(ctx, groupID, rows); err != nil {
			return PostingGroup{}, false, err
		}
		group.Allocations = rows
	}

	if err := docs.MarkPosted(ctx, in.TenantID, in.SourceID, groupID); err != nil {
		return PostingGroup{}, false, err
	}
	return group, false, nil
}

// EnsurePostable locks the covering period (and crop cycle, when given) and
// verifies both are open and contain the date. Coordinators call it before
// the valuation phase so the lock order is always period, then stock rows.
func (e *Engine) EnsurePostable(ctx context.Context, tx TxRepository, tenantID int64, date time.Time, cycleID *int64) error {
	period, err := tx.GetPeriodForUpdate(ctx, tenantID, date)
	if err != nil {
		return err
	}
	if period.Status != periods.PeriodStatusOpen {
		return fmt.Errorf("%w: period %s", ErrPeriodClosed, period.Code)
	}
	if cycleID != nil {
		cycle, err := tx.GetCycleForUpdate(ctx, tenantID, *cycleID)
		if err != nil {
			return err
		}
		if cycle.Status != periods.CycleStatusOpen {
			return fmt.Errorf("%w: cycle %s", ErrCycleClosed, cycle.Name)
		}
		if !cycle.Contains(date) {
			return fmt.Errorf("%w: cycle %s runs %s to %s", ErrDateOutOfCycle, cycle.Name,
				cycle.StartDate.Format("2006-01-02"), cycle.EndDate.Format("2006-01-02"))
		}
	}
	return nil
}
