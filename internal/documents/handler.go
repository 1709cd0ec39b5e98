package documents

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agriledger/agriledger/internal/ledger"
	"github.com/agriledger/agriledger/internal/platform/httpx"
	"github.com/agriledger/agriledger/internal/shared"
)

// Handler wires HTTP endpoints for the document lifecycle.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs documents handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{documentID}", h.handleGet)
	r.Post("/{documentID}/post", h.handlePost)
	r.Post("/{documentID}/reverse", h.handleReverse)
}

type documentResponse struct {
	ID                     uuid.UUID `json:"id"`
	DocType                string    `json:"doc_type"`
	DocNo                  string    `json:"doc_no"`
	DocDate                string    `json:"doc_date"`
	Status                 Status    `json:"status"`
	CropCycleID            *int64    `json:"crop_cycle_id,omitempty"`
	PostingGroupID         *int64    `json:"posting_group_id,omitempty"`
	ReversalPostingGroupID *int64    `json:"reversal_posting_group_id,omitempty"`
	Payload                Payload   `json:"payload"`
	CreatedAt              time.Time `json:"created_at"`
}

type entryResponse struct {
	AccountCode string          `json:"account_code"`
	Currency    string          `json:"currency"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type groupResponse struct {
	ID               int64           `json:"id"`
	PostingDate      string          `json:"posting_date"`
	SourceType       string          `json:"source_type"`
	SourceID         uuid.UUID       `json:"source_id"`
	ReversalOf       *int64          `json:"reversal_of,omitempty"`
	ReversedBy       *int64          `json:"reversed_by,omitempty"`
	CorrectionReason *string         `json:"correction_reason,omitempty"`
	Entries          []entryResponse `json:"entries,omitempty"`
}

type postResponse struct {
	Document documentResponse `json:"document"`
	Group    groupResponse    `json:"posting_group"`
	Replayed bool             `json:"replayed"`
}

func toDocumentResponse(doc Document) documentResponse {
	return documentResponse{
		ID:                     doc.ID,
		DocType:                string(doc.DocType),
		DocNo:                  doc.DocNo,
		DocDate:                doc.DocDate.Format("2006-01-02"),
		Status:                 doc.Status,
		CropCycleID:            doc.CropCycleID,
		PostingGroupID:         doc.PostingGroupID,
		ReversalPostingGroupID: doc.ReversalPostingGroupID,
		Payload:                doc.Payload,
		CreatedAt:              doc.CreatedAt,
	}
}

func toGroupResponse(group ledger.PostingGroup) groupResponse {
	out := groupResponse{
		ID:               group.ID,
		PostingDate:      group.PostingDate.Format("2006-01-02"),
		SourceType:       string(group.SourceType),
		SourceID:         group.SourceID,
		ReversalOf:       group.ReversalOf,
		ReversedBy:       group.ReversedBy,
		CorrectionReason: group.CorrectionReason,
	}
	for _, entry := range group.Entries {
		out.Entries = append(out.Entries, entryResponse{
			AccountCode: entry.AccountCode,
			Currency:    entry.Currency,
			Debit:       entry.Debit,
			Credit:      entry.Credit,
		})
	}
	return out
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	var in CreateDocumentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	doc, err := h.service.CreateDraft(r.Context(), p, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "document id must be a UUID")
		return
	}
	doc, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "document id must be a UUID")
		return
	}
	var in PostInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	result, err := h.service.Post(r.Context(), p, id, in)
	if err != nil {
		h.logger.WarnContext(r.Context(), "post rejected",
			slog.String("doc_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, postResponse{
		Document: toDocumentResponse(result.Document),
		Group:    toGroupResponse(result.Group),
		Replayed: result.Replayed,
	})
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "document id must be a UUID")
		return
	}
	var in ReverseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	result, err := h.service.Reverse(r.Context(), p, id, in)
	if err != nil {
		h.logger.WarnContext(r.Context(), "reversal rejected",
			slog.String("doc_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, postResponse{
		Document: toDocumentResponse(result.Document),
		Group:    toGroupResponse(result.Group),
	})
}
