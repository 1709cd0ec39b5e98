package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/agriledger/agriledger/internal/accounts"
	"github.com/agriledger/agriledger/internal/periods"
)

type stubTx struct {
	periodStatus periods.PeriodStatus
	cycle        *periods.CropCycle

	groups    map[int64]PostingGroup
	slots     map[string]int64
	nextID    int64
	claimFail error
}

func newStubTx() *stubTx {
	return &stubTx{
		periodStatus: periods.PeriodStatusOpen,
		groups:       map[int64]PostingGroup{},
		slots:        map[string]int64{},
	}
}

func (s *stubTx) key(tenantID int64, sourceType SourceType, sourceID uuid.UUID, key string) string {
	return fmt.Sprintf("%d|%s|%s|%s", tenantID, sourceType, sourceID, key)
}

func (s *stubTx) FindGroupBySlot(ctx context.Context, tenantID int64, sourceType SourceType, sourceID uuid.UUID, key string) (PostingGroup, error) {
	if id, ok := s.slots[s.key(tenantID, sourceType, sourceID, key)]; ok {
		if group, visible := s.groups[id]; visible {
			return group, nil
		}
	}
	return PostingGroup{}, ErrGroupNotFound
}

func (s *stubTx) InsertGroup(ctx context.Context, group PostingGroup) (int64, bool, error) {
	k := s.key(group.TenantID, group.SourceType, group.SourceID, group.IdempotencyKey)
	if id, ok := s.slots[k]; ok {
		return id, false, nil
	}
	s.nextID++
	group.ID = s.nextID
	s.groups[group.ID] = group
	s.slots[k] = group.ID
	return group.ID, true, nil
}

func (s *stubTx) InsertEntries(ctx context.Context, groupID int64, entries []LedgerEntry) error {
	group := s.groups[groupID]
	group.Entries = append(group.Entries, entries...)
	s.groups[groupID] = group
	return nil
}

func (s *stubTx) InsertAllocations(ctx context.Context, groupID int64, rows []AllocationRow) error {
	group := s.groups[groupID]
	group.Allocations = append(group.Allocations, rows...)
	s.groups[groupID] = group
	return nil
}

func (s *stubTx) GetGroupWithLinesForUpdate(ctx context.Context, tenantID, groupID int64) (PostingGroup, error) {
	group, ok := s.groups[groupID]
	if !ok || group.TenantID != tenantID {
		return PostingGroup{}, ErrGroupNotFound
	}
	return group, nil
}

func (s *stubTx) ClaimReversal(ctx context.Context, tenantID, originalID, reversalID int64) error {
	if s.claimFail != nil {
		return s.claimFail
	}
	group := s.groups[originalID]
	if group.ReversedBy != nil {
		return ErrAlreadyReversed
	}
	group.ReversedBy = &reversalID
	s.groups[originalID] = group
	return nil
}

func (s *stubTx) GetPeriodForUpdate(ctx context.Context, tenantID int64, date time.Time) (periods.Period, error) {
	return periods.Period{
		ID: 1, TenantID: tenantID, Code: "2025-07",
		StartDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		Status:    s.periodStatus,
	}, nil
}

func (s *stubTx) GetCycleForUpdate(ctx context.Context, tenantID, cycleID int64) (periods.CropCycle, error) {
	if s.cycle == nil {
		return periods.CropCycle{}, ErrGroupNotFound
	}
	return *s.cycle, nil
}

type stubDocs struct {
	posted   []int64
	reversed []int64
	fail     error
}

func (d *stubDocs) MarkPosted(ctx context.Context, tenantID int64, sourceID uuid.UUID, groupID int64) error {
	if d.fail != nil {
		return d.fail
	}
	d.posted = append(d.posted, groupID)
	return nil
}

func (d *stubDocs) MarkReversed(ctx context.Context, tenantID int64, sourceID uuid.UUID, reversalGroupID int64) error {
	if d.fail != nil {
		return d.fail
	}
	d.reversed = append(d.reversed, reversalGroupID)
	return nil
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, tenantID int64, codes []string) (map[string]accounts.Account, error) {
	out := map[string]accounts.Account{}
	for i, code := range codes {
		out[code] = accounts.Account{ID: int64(100 + i), TenantID: tenantID, Code: code, IsActive: true}
	}
	return out, nil
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func validInput(t *testing.T) PostingInput {
	return PostingInput{
		TenantID:       1,
		SourceType:     SourceGoodsReceipt,
		SourceID:       uuid.New(),
		PostingDate:    time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		IdempotencyKey: "post:abc",
		Lines: []LineInput{
			{AccountCode: "1400", Side: SideDebit, Amount: mustDec(t, "1000.00"), Currency: "PKR"},
			{AccountCode: "2100", Side: SideCredit, Amount: mustDec(t, "1000.00"), Currency: "PKR"},
		},
		ActorID: 9,
	}
}

func TestPostCreatesBalancedGroup(t *testing.T) {
	tx := newStubTx()
	docs := &stubDocs{}
	engine := NewEngine(stubResolver{})
	createdAt := time.Date(2025, 7, 15, 8, 0, 0, 0, time.UTC)
	engine.WithNow(func() time.Time { return createdAt })

	group, replayed, err := engine.Post(context.Background(), tx, docs, validInput(t))
	require.NoError(t, err)
	require.False(t, replayed)
	require.Equal(t, createdAt, group.CreatedAt)
	require.Len(t, group.Entries, 2)
	require.True(t, group.Entries[0].Debit.Equal(mustDec(t, "1000.00")))
	require.True(t, group.Entries[1].Credit.Equal(mustDec(t, "1000.00")))
	require.Equal(t, []int64{group.ID}, docs.posted)
}

func TestPostRejectsUnbalancedLines(t *testing.T) {
	tx := newStubTx()
	engine := NewEngine(stubResolver{})

	in := validInput(t)
	in.Lines[1].Amount = mustDec(t, "999.00")
	_, _, err := engine.Post(context.Background(), tx, &stubDocs{}, in)
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, tx.groups)
}

func TestPostRejectsMixedCurrencyImbalance(t *testing.T) {
	tx := newStubTx()
	engine := NewEngine(stubResolver{})

	in := validInput(t)
	in.Lines[1].Currency = "USD"
	_, _, err := engine.Post(context.Background(), tx, &stubDocs{}, in)
	require.ErrorIs(t, err, ErrUnbalanced)
}

func TestPostReplaysExistingSlot(t *testing.T) {
	tx := newStubTx()
	docs := &stubDocs{}
	engine := NewEngine(stubResolver{})
	in := validInput(t)

	first, _, err := engine.Post(context.Background(), tx, docs, in)
	require.NoError(t, err)

	second, replayed, err := engine.Post(context.Background(), tx, docs, in)
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, docs.posted, 1, "replay must not flip the document again")
}

func TestPostRejectsClosedPeriod(t *testing.T) {
	tx := newStubTx()
	tx.periodStatus = periods.PeriodStatusClosed
	engine := NewEngine(stubResolver{})

	_, _, err := engine.Post(context.Background(), tx, &stubDocs{}, validInput(t))
	require.ErrorIs(t, err, ErrPeriodClosed)
}

func TestPostRejectsClosedCycle(t *testing.T) {
	tx := newStubTx()
	tx.cycle = &periods.CropCycle{
		ID: 10, TenantID: 1, Name: "Kharif 2025",
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC),
		Status:    periods.CycleStatusClosed,
	}
	engine := NewEngine(stubResolver{})

	cycleID := int64(10)
	in := validInput(t)
	in.CropCycleID = &cycleID
	_, _, err := engine.Post(context.Background(), tx, &stubDocs{}, in)
	require.ErrorIs(t, err, ErrCycleClosed)
}

func TestPostRejectsDateOutsideCycle(t *testing.T) {
	tx := newStubTx()
	tx.cycle = &periods.CropCycle{
		ID: 10, TenantID: 1, Name: "Rabi 2024",
		StartDate: time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC),
		Status:    periods.CycleStatusOpen,
	}
	engine := NewEngine(stubResolver{})

	cycleID := int64(10)
	in := validInput(t)
	in.CropCycleID = &cycleID
	_, _, err := engine.Post(context.Background(), tx, &stubDocs{}, in)
	require.ErrorIs(t, err, ErrDateOutOfCycle)
}

func TestPostSignalsReplayRaceOnSlotLoss(t *testing.T) {
	tx := newStubTx()
	engine := NewEngine(stubResolver{})
	in := validInput(t)

	// Pre-claim the slot without making the group visible via
	// FindGroupBySlot, mimicking a concurrent committer the snapshot
	// cannot see.
	tx.slots[tx.key(in.TenantID, in.SourceType, in.SourceID, in.IdempotencyKey)] = 99

	_, _, err := engine.Post(context.Background(), tx, &stubDocs{}, in)
	require.ErrorIs(t, err, ErrReplayRace)
}

func TestReverseMirrorsEntriesAndAllocations(t *testing.T) {
	tx := newStubTx()
	docs := &stubDocs{}
	engine := NewEngine(stubResolver{})

	partyID := int64(7)
	in := validInput(t)
	in.Allocations = []AllocationInput{{PartyID: &partyID, Type: AllocationPoolShare, Amount: mustDec(t, "400.00")}}
	original, _, err := engine.Post(context.Background(), tx, docs, in)
	require.NoError(t, err)

	reversal, err := engine.Reverse(context.Background(), tx, docs, ReversalInput{
		TenantID:       1,
		PostingGroupID: original.ID,
		ReversalDate:   time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC),
		Reason:         "posted against wrong store",
		ActorID:        9,
	})
	require.NoError(t, err)

	require.Equal(t, &original.ID, reversal.ReversalOf)
	require.Len(t, reversal.Entries, 2)
	require.True(t, reversal.Entries[0].Credit.Equal(mustDec(t, "1000.00")), "debit becomes credit")
	require.True(t, reversal.Entries[1].Debit.Equal(mustDec(t, "1000.00")), "credit becomes debit")
	require.Len(t, reversal.Allocations, 1)
	require.True(t, reversal.Allocations[0].Amount.Equal(mustDec(t, "-400.00")))
	require.Equal(t, []int64{reversal.ID}, docs.reversed)

	stored := tx.groups[original.ID]
	require.NotNil(t, stored.ReversedBy)
	require.Equal(t, reversal.ID, *stored.ReversedBy)
}

func TestReverseTwiceRejected(t *testing.T) {
	tx := newStubTx()
	docs := &stubDocs{}
	engine := NewEngine(stubResolver{})

	original, _, err := engine.Post(context.Background(), tx, docs, validInput(t))
	require.NoError(t, err)

	in := ReversalInput{TenantID: 1, PostingGroupID: original.ID,
		ReversalDate: time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC), Reason: "dup"}
	_, err = engine.Reverse(context.Background(), tx, docs, in)
	require.NoError(t, err)

	_, err = engine.Reverse(context.Background(), tx, docs, in)
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestReverseOfReversalRejected(t *testing.T) {
	tx := newStubTx()
	docs := &stubDocs{}
	engine := NewEngine(stubResolver{})

	original, _, err := engine.Post(context.Background(), tx, docs, validInput(t))
	require.NoError(t, err)

	reversal, err := engine.Reverse(context.Background(), tx, docs, ReversalInput{
		TenantID: 1, PostingGroupID: original.ID,
		ReversalDate: time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC), Reason: "entered twice"})
	require.NoError(t, err)

	_, err = engine.Reverse(context.Background(), tx, docs, ReversalInput{
		TenantID: 1, PostingGroupID: reversal.ID,
		ReversalDate: time.Date(2025, 7, 21, 0, 0, 0, 0, time.UTC), Reason: "undo"})
	require.ErrorIs(t, err, ErrReverseOfReversal)
}
