package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agriledger/agriledger/internal/inventory"
	"github.com/agriledger/agriledger/internal/ledger"
	"github.com/agriledger/agriledger/internal/platform/db"
)

// Repository persists source documents.
type Repository interface {
	Create(ctx context.Context, doc Document) (Document, error)
	Get(ctx context.Context, tenantID int64, id uuid.UUID) (Document, error)
	WithTx(ctx context.Context, fn func(context.Context, UnitOfWork) error) error
}

// TxRepository exposes document operations inside the posting transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Document, error)
	MarkPosted(ctx context.Context, tenantID int64, sourceID uuid.UUID, groupID int64) error
	MarkReversed(ctx context.Context, tenantID int64, sourceID uuid.UUID, reversalGroupID int64) error
}

// UnitOfWork bundles the tx-scoped repositories built over one database
// transaction. Valuation, ledger writes and the document status flip all go
// through the same unit, so they commit or roll back together.
type UnitOfWork struct {
	Docs   TxRepository
	Ledger ledger.TxRepository
	Stock  inventory.TxRepository
}

const docSelect = `SELECT id, tenant_id, doc_type, doc_no, doc_date, status, crop_cycle_id,
posting_group_id, reversal_posting_group_id, payload, created_by, created_at, updated_at
FROM source_documents`

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) Create(ctx context.Context, doc Document) (Document, error) {
	payload, err := json.Marshal(doc.Payload)
	if err != nil {
		return Document{}, fmt.Errorf("documents: encode payload: %w", err)
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.Status = StatusDraft
	err = r.db.QueryRow(ctx, `INSERT INTO source_documents
(id, tenant_id, doc_type, doc_no, doc_date, status, crop_cycle_id, payload, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING created_at, updated_at`,
		doc.ID, doc.TenantID, doc.DocType, doc.DocNo, doc.DocDate, doc.Status, doc.CropCycleID, payload, doc.CreatedBy).
		Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Document{}, ErrDuplicateDocNo
		}
		return Document{}, err
	}
	return doc, nil
}

func (r *repository) Get(ctx context.Context, tenantID int64, id uuid.UUID) (Document, error) {
	return scanDocument(r.db.QueryRow(ctx, docSelect+` WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, UnitOfWork) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, UnitOfWork{
			Docs:   &txRepository{tx: tx},
			Ledger: ledger.NewTxRepository(tx),
			Stock:  inventory.NewTxRepository(tx),
		})
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var payload []byte
	err := row.Scan(&doc.ID, &doc.TenantID, &doc.DocType, &doc.DocNo, &doc.DocDate, &doc.Status, &doc.CropCycleID,
		&doc.PostingGroupID, &doc.ReversalPostingGroupID, &payload, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &doc.Payload); err != nil {
			return Document{}, fmt.Errorf("documents: decode payload: %w", err)
		}
	}
	return doc, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, tenantID int64, id uuid.UUID) (Document, error) {
	return scanDocument(r.tx.QueryRow(ctx, docSelect+` WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

// MarkPosted flips DRAFT -> POSTED through the status FSM and stamps the
// posting group, all under the row lock taken here.
func (r *txRepository) MarkPosted(ctx context.Context, tenantID int64, sourceID uuid.UUID, groupID int64) error {
	doc, err := r.GetForUpdate(ctx, tenantID, sourceID)
	if err != nil {
		return err
	}
	next, err := doc.Status.Post()
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE source_documents SET status=$3, posting_group_id=$4, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, tenantID, sourceID, next, groupID)
	return err
}

// MarkReversed flips POSTED -> REVERSED and stamps the reversal group. The
// original posting_group_id is untouched; history stays on record.
func (r *txRepository) MarkReversed(ctx context.Context, tenantID int64, sourceID uuid.UUID, reversalGroupID int64) error {
	doc, err := r.GetForUpdate(ctx, tenantID, sourceID)
	if err != nil {
		return err
	}
	next, err := doc.Status.Reverse()
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE source_documents SET status=$3, reversal_posting_group_id=$4, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, tenantID, sourceID, next, reversalGroupID)
	return err
}
