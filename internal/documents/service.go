package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/agriledger/agriledger/internal/inventory"
	"github.com/agriledger/agriledger/internal/ledger"
	"github.com/agriledger/agriledger/internal/observability"
	"github.com/agriledger/agriledger/internal/shared"
)

// errPostedConcurrently aborts the posting transaction when the locked row
// turns out to be POSTED already. The valuation work done so far rolls back
// and the caller re-reads the winner's group outside the transaction.
var errPostedConcurrently = errors.New("documents: posted concurrently")

// isSerializationFailure reports SQLSTATE 40001. Under repeatable read the
// loser of a concurrent post raises it when the winner's commit updates the
// document row the loser was blocked on.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

// Service coordinates the document lifecycle. Posting runs valuation, the
// ledger write and the status flip in one database transaction; either all
// of it commits or none of it does.
type Service struct {
	repo       Repository
	ledgerRepo ledger.Repository
	posting    *ledger.Engine
	valuation  *inventory.Engine
	audit      *shared.AuditLogger
	logger     *slog.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewService(repo Repository, ledgerRepo ledger.Repository, posting *ledger.Engine, valuation *inventory.Engine, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		ledgerRepo: ledgerRepo,
		posting:    posting,
		valuation:  valuation,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches posting and reversal counters.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

// CreateDraft stores a new DRAFT document.
func (s *Service) CreateDraft(ctx context.Context, p shared.Principal, in CreateDocumentInput) (Document, error) {
	if err := in.Validate(); err != nil {
		return Document{}, err
	}
	doc, err := s.repo.Create(ctx, Document{
		TenantID:    p.TenantID,
		DocType:     ledger.SourceType(in.DocType),
		DocNo:       in.DocNo,
		DocDate:     in.DocDate,
		CropCycleID: in.CropCycleID,
		Payload:     in.Payload,
		CreatedBy:   p.ActorID,
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, p, "document.created", doc.ID, map[string]any{"doc_type": doc.DocType, "doc_no": doc.DocNo})
	return doc, nil
}

// Get returns one tenant-scoped document.
func (s *Service) Get(ctx context.Context, p shared.Principal, id uuid.UUID) (Document, error) {
	return s.repo.Get(ctx, p.TenantID, id)
}

// Post posts a DRAFT document: stock documents run the weighted-average
// valuation first and the costed amounts become the ledger lines; financial
// documents post their explicit lines. Re-posting an already posted document
// replays the original group with no new side effects.
func (s *Service) Post(ctx context.Context, p shared.Principal, docID uuid.UUID, in PostInput) (PostResult, error) {
	if err := in.Validate(); err != nil {
		return PostResult{}, err
	}
	doc, err := s.repo.Get(ctx, p.TenantID, docID)
	if err != nil {
		return PostResult{}, err
	}
	if doc.Status == StatusPosted && doc.PostingGroupID != nil {
		return s.replay(ctx, doc)
	}
	if doc.Status != StatusDraft {
		return PostResult{}, fmt.Errorf("%w: status %s", ErrNotPostable, doc.Status)
	}

	var group ledger.PostingGroup
	var moved []inventory.MovementType
	err = s.repo.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		locked, err := uow.Docs.GetForUpdate(ctx, p.TenantID, docID)
		if err != nil {
			return err
		}
		if locked.Status == StatusPosted {
			return errPostedConcurrently
		}
		if locked.Status != StatusDraft {
			return fmt.Errorf("%w: status %s", ErrNotPostable, locked.Status)
		}

		// Period and cycle rows lock before any stock row, always in this
		// order, so concurrent postings cannot deadlock each other.
		if err := s.posting.EnsurePostable(ctx, uow.Ledger, p.TenantID, in.PostingDate, locked.CropCycleID); err != nil {
			return err
		}

		lines, movedTypes, err := s.buildLines(ctx, uow.Stock, locked, in.PostingDate)
		if err != nil {
			return err
		}
		moved = movedTypes

		posted, replayed, err := s.posting.Post(ctx, uow.Ledger, uow.Docs, ledger.PostingInput{
			TenantID:       p.TenantID,
			SourceType:     locked.DocType,
			SourceID:       locked.ID,
			PostingDate:    in.PostingDate,
			IdempotencyKey: in.IdempotencyKey,
			CropCycleID:    locked.CropCycleID,
			Lines:          lines,
			Allocations:    allocationInputs(locked.Payload.Allocations),
			ActorID:        p.ActorID,
		})
		if err != nil {
			return err
		}
		if replayed {
			// The slot was filled by an earlier commit this snapshot can
			// see but the document read missed. Roll this attempt back so
			// the valuation above leaves no trace.
			return errPostedConcurrently
		}
		group = posted
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, errPostedConcurrently), errors.Is(err, ledger.ErrReplayRace), isSerializationFailure(err):
		return s.replaySlot(ctx, doc, in.IdempotencyKey)
	default:
		return PostResult{}, err
	}

	doc.Status = StatusPosted
	doc.PostingGroupID = &group.ID
	s.metrics.RecordPosting(string(doc.DocType), false)
	for _, mt := range moved {
		s.metrics.RecordStockMovement(string(mt))
	}
	s.recordAudit(ctx, p, "document.posted", doc.ID, map[string]any{"posting_group_id": group.ID})
	s.logger.InfoContext(ctx, "document posted",
		slog.Int64("tenant_id", p.TenantID),
		slog.String("doc_id", doc.ID.String()),
		slog.String("doc_type", string(doc.DocType)),
		slog.Int64("posting_group_id", group.ID))
	return PostResult{Document: doc, Group: group}, nil
}

// Reverse reverses a POSTED document: the ledger gets the exact-inverse
// posting group and every stock movement the original posting wrote is
// undone bit-exactly, all in one transaction.
func (s *Service) Reverse(ctx context.Context, p shared.Principal, docID uuid.UUID, in ReverseInput) (ReverseResult, error) {
	if err := in.Validate(); err != nil {
		return ReverseResult{}, err
	}
	doc, err := s.repo.Get(ctx, p.TenantID, docID)
	if err != nil {
		return ReverseResult{}, err
	}
	if doc.Status != StatusPosted || doc.PostingGroupID == nil {
		return ReverseResult{}, fmt.Errorf("%w: status %s", ErrNotReversible, doc.Status)
	}

	reversalDate := in.PostingDate
	var reversal ledger.PostingGroup
	var undone []inventory.MovementType
	err = s.repo.WithTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		locked, err := uow.Docs.GetForUpdate(ctx, p.TenantID, docID)
		if err != nil {
			return err
		}
		if locked.Status != StatusPosted || locked.PostingGroupID == nil {
			return fmt.Errorf("%w: status %s", ErrNotReversible, locked.Status)
		}

		reversal, err = s.posting.Reverse(ctx, uow.Ledger, uow.Docs, ledger.ReversalInput{
			TenantID:       p.TenantID,
			PostingGroupID: *locked.PostingGroupID,
			ReversalDate:   reversalDate,
			Reason:         in.Reason,
			ActorID:        p.ActorID,
		})
		if err != nil {
			return err
		}

		if !locked.HasStockEffect() {
			return nil
		}
		movements, err := uow.Stock.ListMovementsBySource(ctx, p.TenantID, string(locked.DocType), locked.ID)
		if err != nil {
			return err
		}
		ref := inventory.MovementRef{
			TenantID:   p.TenantID,
			SourceType: string(locked.DocType) + ":REVERSAL",
			SourceID:   locked.ID,
			OccurredAt: reversalDate,
		}
		// Undo newest first so a transfer's inbound leg releases before its
		// outbound leg restores.
		for i := len(movements) - 1; i >= 0; i-- {
			costed, err := s.valuation.ApplyInverse(ctx, uow.Stock, ref, movements[i])
			if err != nil {
				return err
			}
			undone = append(undone, costed.Type)
		}
		return nil
	})
	if err != nil {
		return ReverseResult{}, err
	}

	doc.Status = StatusReversed
	doc.ReversalPostingGroupID = &reversal.ID
	s.metrics.RecordReversal(string(doc.DocType))
	for _, mt := range undone {
		s.metrics.RecordStockMovement(string(mt))
	}
	s.recordAudit(ctx, p, "document.reversed", doc.ID, map[string]any{
		"posting_group_id":  *doc.PostingGroupID,
		"reversal_group_id": reversal.ID,
		"reason":            in.Reason,
	})
	s.logger.InfoContext(ctx, "document reversed",
		slog.Int64("tenant_id", p.TenantID),
		slog.String("doc_id", doc.ID.String()),
		slog.Int64("reversal_group_id", reversal.ID))
	return ReverseResult{Document: doc, Group: reversal}, nil
}

// ReverseGroup reverses by posting group id instead of document id. The
// group resolves to its source document and the full document reversal runs,
// so stock effects never detach from their ledger reversal.
func (s *Service) ReverseGroup(ctx context.Context, p shared.Principal, groupID int64, in ReverseInput) (ReverseResult, error) {
	group, err := s.ledgerRepo.GetGroup(ctx, p.TenantID, groupID)
	if err != nil {
		return ReverseResult{}, err
	}
	if group.ReversalOf != nil {
		return ReverseResult{}, ledger.ErrReverseOfReversal
	}
	if group.ReversedBy != nil {
		return ReverseResult{}, ledger.ErrAlreadyReversed
	}
	return s.Reverse(ctx, p, group.SourceID, in)
}

// ReverseGroupByID adapts ReverseGroup to the ledger handler's reversal
// port.
func (s *Service) ReverseGroupByID(ctx context.Context, p shared.Principal, groupID int64, reversalDate time.Time, reason string) (ledger.PostingGroup, error) {
	result, err := s.ReverseGroup(ctx, p, groupID, ReverseInput{PostingDate: reversalDate, Reason: reason})
	if err != nil {
		return ledger.PostingGroup{}, err
	}
	return result.Group, nil
}

func (s *Service) replay(ctx context.Context, doc Document) (PostResult, error) {
	group, err := s.ledgerRepo.GetGroupWithLines(ctx, doc.TenantID, *doc.PostingGroupID)
	if err != nil {
		return PostResult{}, err
	}
	s.metrics.RecordPosting(string(doc.DocType), true)
	return PostResult{Document: doc, Group: group, Replayed: true}, nil
}

// replaySlot resolves a concurrent-post race from a fresh snapshot: the
// winner's commit is visible outside the rolled-back transaction.
func (s *Service) replaySlot(ctx context.Context, doc Document, idempotencyKey string) (PostResult, error) {
	fresh, err := s.repo.Get(ctx, doc.TenantID, doc.ID)
	if err != nil {
		return PostResult{}, err
	}
	if fresh.PostingGroupID == nil {
		group, err := s.ledgerRepo.FindGroupBySlot(ctx, doc.TenantID, doc.DocType, doc.ID, idempotencyKey)
		if err != nil {
			return PostResult{}, err
		}
		s.metrics.RecordPosting(string(doc.DocType), true)
		return PostResult{Document: fresh, Group: group, Replayed: true}, nil
	}
	return s.replay(ctx, fresh)
}

// buildLines produces the ledger lines for one document. Stock documents
// derive amounts from the valuation engine inside the same transaction;
// financial documents carry their lines verbatim.
func (s *Service) buildLines(ctx context.Context, invTx inventory.TxRepository, doc Document, postingDate time.Time) ([]ledger.LineInput, []inventory.MovementType, error) {
	if !doc.HasStockEffect() {
		lines := make([]ledger.LineInput, 0, len(doc.Payload.Lines))
		for _, line := range doc.Payload.Lines {
			lines = append(lines, ledger.LineInput{
				AccountCode: line.AccountCode,
				Side:        ledger.EntrySide(line.Side),
				Amount:      line.Amount,
				Currency:    line.Currency,
			})
		}
		return lines, nil, nil
	}

	payload := doc.Payload
	ref := inventory.MovementRef{
		TenantID:   doc.TenantID,
		StoreID:    payload.StoreID,
		SourceType: string(doc.DocType),
		SourceID:   doc.ID,
		OccurredAt: postingDate,
	}

	total := decimal.Zero
	gain := decimal.Zero
	loss := decimal.Zero
	var moved []inventory.MovementType
	for _, item := range payload.Items {
		ref.ItemID = item.ItemID
		switch doc.DocType {
		case ledger.SourceGoodsReceipt:
			costed, err := s.valuation.ApplyReceipt(ctx, invTx, ref, item.Qty, item.UnitCost)
			if err != nil {
				return nil, nil, err
			}
			total = total.Add(costed.Value)
			moved = append(moved, costed.Type)
		case ledger.SourceIssue:
			costed, err := s.valuation.ApplyIssue(ctx, invTx, ref, item.Qty)
			if err != nil {
				return nil, nil, err
			}
			total = total.Add(costed.Value)
			moved = append(moved, costed.Type)
		case ledger.SourceTransfer:
			costed, err := s.valuation.ApplyTransfer(ctx, invTx, ref, payload.ToStoreID, item.Qty)
			if err != nil {
				return nil, nil, err
			}
			total = total.Add(costed.Value)
			// The outbound leg comes back costed; the inbound leg is the
			// second movement the transfer writes.
			moved = append(moved, costed.Type, inventory.MovementTransferIn)
		case ledger.SourceAdjustment:
			var costHint *decimal.Decimal
			if item.Qty.IsPositive() && !item.UnitCost.IsZero() {
				hint := item.UnitCost
				costHint = &hint
			}
			costed, err := s.valuation.ApplyAdjustment(ctx, invTx, ref, item.Qty, costHint)
			if err != nil {
				return nil, nil, err
			}
			if item.Qty.IsPositive() {
				if costed.Value.IsZero() {
					// A zero-value gain has no ledger line to book.
					return nil, nil, fmt.Errorf("%w: adjustment gain for item %d needs a unit cost", shared.ErrValidation, item.ItemID)
				}
				gain = gain.Add(costed.Value)
			} else {
				loss = loss.Add(costed.Value)
			}
			moved = append(moved, costed.Type)
		}
	}

	currency := payload.Currency
	var lines []ledger.LineInput
	appendPair := func(debitAccount, creditAccount string, amount decimal.Decimal) {
		if !amount.IsPositive() {
			return
		}
		lines = append(lines,
			ledger.LineInput{AccountCode: debitAccount, Side: ledger.SideDebit, Amount: amount, Currency: currency},
			ledger.LineInput{AccountCode: creditAccount, Side: ledger.SideCredit, Amount: amount, Currency: currency},
		)
	}
	switch doc.DocType {
	case ledger.SourceGoodsReceipt:
		appendPair(payload.InventoryAccount, payload.ContraAccount, total)
	case ledger.SourceIssue:
		appendPair(payload.ContraAccount, payload.InventoryAccount, total)
	case ledger.SourceTransfer:
		appendPair(payload.ToAccount, payload.InventoryAccount, total)
	case ledger.SourceAdjustment:
		appendPair(payload.InventoryAccount, payload.ContraAccount, gain)
		appendPair(payload.ContraAccount, payload.InventoryAccount, loss)
	}
	return lines, moved, nil
}

func allocationInputs(rows []AllocationLine) []ledger.AllocationInput {
	if len(rows) == 0 {
		return nil
	}
	out := make([]ledger.AllocationInput, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledger.AllocationInput{
			PartyID:   row.PartyID,
			ProjectID: row.ProjectID,
			Type:      ledger.AllocationType(row.Type),
			Amount:    row.Amount,
		})
	}
	return out
}

func (s *Service) recordAudit(ctx context.Context, p shared.Principal, action string, docID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: p.TenantID,
		ActorID:  p.ActorID,
		Action:   action,
		Entity:   "source_document",
		EntityID: docID.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", slog.String("action", action), slog.Any("error", err))
	}
}
