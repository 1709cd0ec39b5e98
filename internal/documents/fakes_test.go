package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agriledger/agriledger/internal/accounts"
	"github.com/agriledger/agriledger/internal/inventory"
	"github.com/agriledger/agriledger/internal/ledger"
	"github.com/agriledger/agriledger/internal/periods"
	"github.com/agriledger/agriledger/internal/shared"
)

// memState is the in-memory database shared by the fake repositories.
type memState struct {
	periods   []periods.Period
	cycles    map[int64]periods.CropCycle
	docs      map[uuid.UUID]Document
	groups    map[int64]ledger.PostingGroup
	slots     map[string]int64
	balances  map[string]inventory.StockBalance
	movements []inventory.StockMovement

	nextGroupID    int64
	nextMovementID int64
}

func newMemState() *memState {
	return &memState{
		cycles:   map[int64]periods.CropCycle{},
		docs:     map[uuid.UUID]Document{},
		groups:   map[int64]ledger.PostingGroup{},
		slots:    map[string]int64{},
		balances: map[string]inventory.StockBalance{},
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	out.periods = append([]periods.Period(nil), s.periods...)
	for k, v := range s.cycles {
		out.cycles[k] = v
	}
	for k, v := range s.docs {
		out.docs[k] = v
	}
	for k, v := range s.groups {
		v.Entries = append([]ledger.LedgerEntry(nil), v.Entries...)
		v.Allocations = append([]ledger.AllocationRow(nil), v.Allocations...)
		out.groups[k] = v
	}
	for k, v := range s.slots {
		out.slots[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	out.movements = append([]inventory.StockMovement(nil), s.movements...)
	out.nextGroupID = s.nextGroupID
	out.nextMovementID = s.nextMovementID
	return out
}

func slotKey(tenantID int64, sourceType ledger.SourceType, sourceID uuid.UUID, key string) string {
	return fmt.Sprintf("%d|%s|%s|%s", tenantID, sourceType, sourceID, key)
}

func balanceKey(tenantID, storeID, itemID int64) string {
	return fmt.Sprintf("%d|%d|%d", tenantID, storeID, itemID)
}

// fakeRepo implements Repository with transaction rollback semantics: the
// unit of work mutates a clone of the state and the clone replaces the
// original only when fn returns nil.
type fakeRepo struct {
	state *memState
}

func (r *fakeRepo) Create(ctx context.Context, doc Document) (Document, error) {
	for _, existing := range r.state.docs {
		if existing.TenantID == doc.TenantID && existing.DocNo == doc.DocNo {
			return Document{}, ErrDuplicateDocNo
		}
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.Status = StatusDraft
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	r.state.docs[doc.ID] = doc
	return doc, nil
}

func (r *fakeRepo) Get(ctx context.Context, tenantID int64, id uuid.UUID) (Document, error) {
	doc, ok := r.state.docs[id]
	if !ok || doc.TenantID != tenantID {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, UnitOfWork) error) error {
	work := r.state.clone()
	err := fn(ctx, UnitOfWork{
		Docs:   &fakeDocsTx{state: work},
		Ledger: &fakeLedgerTx{state: work},
		Stock:  &fakeStockTx{state: work},
	})
	if err != nil {
		return err
	}
	*r.state = *work
	return nil
}

type fakeDocsTx struct {
	state *memState
}

func (r *fakeDocsTx) GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Document, error) {
	doc, ok := r.state.docs[id]
	if !ok || doc.TenantID != tenantID {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func (r *fakeDocsTx) MarkPosted(ctx context.Context, tenantID int64, sourceID uuid.UUID, groupID int64) error {
	doc, err := r.GetForUpdate(ctx, tenantID, sourceID)
	if err != nil {
		return err
	}
	next, err := doc.Status.Post()
	if err != nil {
		return err
	}
	doc.Status = next
	doc.PostingGroupID = &groupID
	r.state.docs[sourceID] = doc
	return nil
}

func (r *fakeDocsTx) MarkReversed(ctx context.Context, tenantID int64, sourceID uuid.UUID, reversalGroupID int64) error {
	doc, err := r.GetForUpdate(ctx, tenantID, sourceID)
	if err != nil {
		return err
	}
	next, err := doc.Status.Reverse()
	if err != nil {
		return err
	}
	doc.Status = next
	doc.ReversalPostingGroupID = &reversalGroupID
	r.state.docs[sourceID] = doc
	return nil
}

type fakeLedgerTx struct {
	state *memState
}

func (r *fakeLedgerTx) FindGroupBySlot(ctx context.Context, tenantID int64, sourceType ledger.SourceType, sourceID uuid.UUID, key string) (ledger.PostingGroup, error) {
	id, ok := r.state.slots[slotKey(tenantID, sourceType, sourceID, key)]
	if !ok {
		return ledger.PostingGroup{}, ledger.ErrGroupNotFound
	}
	return r.state.groups[id], nil
}

func (r *fakeLedgerTx) InsertGroup(ctx context.Context, group ledger.PostingGroup) (int64, bool, error) {
	key := slotKey(group.TenantID, group.SourceType, group.SourceID, group.IdempotencyKey)
	if id, ok := r.state.slots[key]; ok {
		return id, false, nil
	}
	r.state.nextGroupID++
	group.ID = r.state.nextGroupID
	group.CreatedAt = time.Now()
	r.state.groups[group.ID] = group
	r.state.slots[key] = group.ID
	return group.ID, true, nil
}

func (r *fakeLedgerTx) InsertEntries(ctx context.Context, groupID int64, entries []ledger.LedgerEntry) error {
	group := r.state.groups[groupID]
	group.Entries = append(group.Entries, entries...)
	r.state.groups[groupID] = group
	return nil
}

func (r *fakeLedgerTx) InsertAllocations(ctx context.Context, groupID int64, rows []ledger.AllocationRow) error {
	group := r.state.groups[groupID]
	group.Allocations = append(group.Allocations, rows...)
	r.state.groups[groupID] = group
	return nil
}

func (r *fakeLedgerTx) GetGroupWithLinesForUpdate(ctx context.Context, tenantID, groupID int64) (ledger.PostingGroup, error) {
	group, ok := r.state.groups[groupID]
	if !ok || group.TenantID != tenantID {
		return ledger.PostingGroup{}, ledger.ErrGroupNotFound
	}
	return group, nil
}

func (r *fakeLedgerTx) ClaimReversal(ctx context.Context, tenantID, originalID, reversalID int64) error {
	group, ok := r.state.groups[originalID]
	if !ok || group.TenantID != tenantID {
		return ledger.ErrGroupNotFound
	}
	if group.ReversedBy != nil {
		return ledger.ErrAlreadyReversed
	}
	group.ReversedBy = &reversalID
	r.state.groups[originalID] = group
	return nil
}

func (r *fakeLedgerTx) GetPeriodForUpdate(ctx context.Context, tenantID int64, date time.Time) (periods.Period, error) {
	for _, period := range r.state.periods {
		if period.TenantID == tenantID && period.Contains(date) {
			return period, nil
		}
	}
	return periods.Period{}, ledger.ErrNoOpenPeriod
}

func (r *fakeLedgerTx) GetCycleForUpdate(ctx context.Context, tenantID, cycleID int64) (periods.CropCycle, error) {
	cycle, ok := r.state.cycles[cycleID]
	if !ok || cycle.TenantID != tenantID {
		return periods.CropCycle{}, fmt.Errorf("crop cycle %d: %w", cycleID, shared.ErrNotFound)
	}
	return cycle, nil
}

type fakeStockTx struct {
	state *memState
}

func (r *fakeStockTx) GetBalanceForUpdate(ctx context.Context, tenantID, storeID, itemID int64) (inventory.StockBalance, error) {
	balance, ok := r.state.balances[balanceKey(tenantID, storeID, itemID)]
	if !ok {
		return inventory.StockBalance{}, inventory.ErrBalanceNotFound
	}
	return balance, nil
}

func (r *fakeStockTx) UpsertBalance(ctx context.Context, balance inventory.StockBalance) error {
	r.state.balances[balanceKey(balance.TenantID, balance.StoreID, balance.ItemID)] = balance
	return nil
}

func (r *fakeStockTx) InsertMovement(ctx context.Context, movement inventory.StockMovement) error {
	r.state.nextMovementID++
	movement.ID = r.state.nextMovementID
	r.state.movements = append(r.state.movements, movement)
	return nil
}

func (r *fakeStockTx) ListMovementsBySource(ctx context.Context, tenantID int64, sourceType string, sourceID uuid.UUID) ([]inventory.StockMovement, error) {
	var out []inventory.StockMovement
	for _, m := range r.state.movements {
		if m.TenantID == tenantID && m.SourceType == sourceType && m.SourceID == sourceID {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeLedgerRepo serves the pool-side reads the coordinator does outside the
// posting transaction.
type fakeLedgerRepo struct {
	state *memState
}

func (r *fakeLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return fn(ctx, &fakeLedgerTx{state: r.state})
}

func (r *fakeLedgerRepo) GetGroup(ctx context.Context, tenantID, groupID int64) (ledger.PostingGroup, error) {
	group, ok := r.state.groups[groupID]
	if !ok || group.TenantID != tenantID {
		return ledger.PostingGroup{}, ledger.ErrGroupNotFound
	}
	group.Entries = nil
	group.Allocations = nil
	return group, nil
}

func (r *fakeLedgerRepo) GetGroupWithLines(ctx context.Context, tenantID, groupID int64) (ledger.PostingGroup, error) {
	group, ok := r.state.groups[groupID]
	if !ok || group.TenantID != tenantID {
		return ledger.PostingGroup{}, ledger.ErrGroupNotFound
	}
	return group, nil
}

func (r *fakeLedgerRepo) FindGroupBySlot(ctx context.Context, tenantID int64, sourceType ledger.SourceType, sourceID uuid.UUID, key string) (ledger.PostingGroup, error) {
	return (&fakeLedgerTx{state: r.state}).FindGroupBySlot(ctx, tenantID, sourceType, sourceID, key)
}

func (r *fakeLedgerRepo) ListEntries(ctx context.Context, tenantID, groupID int64) ([]ledger.LedgerEntry, error) {
	group, err := r.GetGroupWithLines(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	return group.Entries, nil
}

func (r *fakeLedgerRepo) ListAllocations(ctx context.Context, tenantID, groupID int64) ([]ledger.AllocationRow, error) {
	group, err := r.GetGroupWithLines(ctx, tenantID, groupID)
	if err != nil {
		return nil, err
	}
	return group.Allocations, nil
}

func (r *fakeLedgerRepo) ListReversals(ctx context.Context, tenantID, groupID int64) ([]ledger.PostingGroup, error) {
	var out []ledger.PostingGroup
	for _, group := range r.state.groups {
		if group.TenantID == tenantID && group.ReversalOf != nil && *group.ReversalOf == groupID {
			out = append(out, group)
		}
	}
	return out, nil
}

// fakeResolver resolves every code to a synthetic account.
type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, tenantID int64, codes []string) (map[string]accounts.Account, error) {
	out := make(map[string]accounts.Account, len(codes))
	for i, code := range codes {
		out[code] = accounts.Account{ID: int64(i + 1), TenantID: tenantID, Code: code, IsActive: true}
	}
	return out, nil
}
