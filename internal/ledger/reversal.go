package ledger

import (
	"context"
	"fmt"
)

// Reverse creates the exact-inverse posting group for an existing one:
// every entry with debit and credit swapped, every allocation row with its
// amount negated. The original group is never mutated beyond the
// reversed_by back-link, and the source document flips POSTED -> REVERSED.
func (e *Engine) Reverse(ctx context.Context, tx TxRepository, docs DocumentTx, in ReversalInput) (PostingGroup, error) {
	if in.TenantID == 0 || in.PostingGroupID == 0 {
		return PostingGroup{}, fmt.Errorf("%w: tenant and posting group required", ErrInvalidLine)
	}
	if in.ReversalDate.IsZero() {
		return PostingGroup{}, fmt.Errorf("%w: reversal date required", ErrInvalidLine)
	}

	original, err := tx.GetGroupWithLinesForUpdate(ctx, in.TenantID, in.PostingGroupID)
	if err != nil {
		return PostingGroup{}, err
	}
	if original.ReversalOf != nil {
		return PostingGroup{}, ErrReverseOfReversal
	}
	if original.ReversedBy != nil {
		return PostingGroup{}, ErrAlreadyReversed
	}

	if err := e.EnsurePostable(ctx, tx, in.TenantID, in.ReversalDate, original.CropCycleID); err != nil {
		return PostingGroup{}, err
	}

	reason := in.Reason
	reversal := PostingGroup{
		TenantID:    in.TenantID,
		PostingDate: in.ReversalDate,
		SourceType:  original.SourceType,
		SourceID:    original.SourceID,
		CropCycleID: original.CropCycleID,
		// Deterministic slot key: a retried reversal lands on the same slot
		// and resolves through the already-reversed conflict instead of
		// double-posting.
		IdempotencyKey:   fmt.Sprintf("reversal:%d", original.ID),
		ReversalOf:       &original.ID,
		CorrectionReason: &reason,
	}
	reversalID, inserted, err := tx.InsertGroup(ctx, reversal)
	if err != nil {
		return PostingGroup{}, err
	}
	if !inserted {
		return PostingGroup{}, ErrAlreadyReversed
	}
	reversal.ID = reversalID
	reversal.CreatedAt = e.now()

	mirrored := make([]LedgerEntry, 0, len(original.Entries))
	for _, entry := range original.Entries {
		mirrored = append(mirrored, LedgerEntry{
			TenantID:       entry.TenantID,
			PostingGroupID: reversalID,
			AccountID:      entry.AccountID,
			AccountCode:    entry.AccountCode,
			Currency:       entry.Currency,
			Debit:          entry.Credit,
			Credit:         entry.Debit,
			CreatedAt:      reversal.CreatedAt,
		})
	}
	if err := tx.InsertEntries(ctx, reversalID, mirrored); err != nil {
		return PostingGroup{}, err
	}
	reversal.Entries = mirrored

	if len(original.Allocations) > 0 {
		negated := make([]AllocationRow, 0, len(original.Allocations))
		for _, row := range original.Allocations {
			negated = append(negated, AllocationRow{
				TenantID:       row.TenantID,
				PostingGroupID: reversalID,
				PartyID:        row.PartyID,
				ProjectID:      row.ProjectID,
				Type:           row.Type,
				Amount:         row.Amount.Neg(),
				CreatedAt:      reversal.CreatedAt,
			})
		}
		if err := tx.InsertAllocations(ctx, reversalID, negated); err != nil {
			return PostingGroup{}, err
		}
		reversal.Allocations = negated
	}

	if err := tx.ClaimReversal(ctx, in.TenantID, original.ID, reversalID); err != nil {
		return PostingGroup{}, err
	}
	if err := docs.MarkReversed(ctx, in.TenantID, original.SourceID, reversalID); err != nil {
		return PostingGroup{}, err
	}
	return reversal, nil
}
