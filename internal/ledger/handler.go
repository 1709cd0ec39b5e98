package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agriledger/agriledger/internal/platform/httpx"
	"github.com/agriledger/agriledger/internal/shared"
)

// GroupReverser reverses a posting group together with its document and
// stock effects. Implemented by the documents coordinator; the indirection
// keeps this package free of document concerns.
type GroupReverser interface {
	ReverseGroupByID(ctx context.Context, p shared.Principal, groupID int64, reversalDate time.Time, reason string) (PostingGroup, error)
}

// Handler wires HTTP endpoints for posting group projections.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	reverser GroupReverser
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service, reverser GroupReverser) *Handler {
	return &Handler{logger: logger, service: service, reverser: reverser}
}

// MountRoutes registers posting group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{groupID}", h.handleGetGroup)
	r.Get("/{groupID}/ledger-entries", h.handleListEntries)
	r.Get("/{groupID}/allocation-rows", h.handleListAllocations)
	r.Get("/{groupID}/reversals", h.handleListReversals)
	r.Get("/{groupID}/export.csv", h.handleExportCSV)
	r.Post("/{groupID}/reverse", h.handleReverse)
}

func groupID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
}

type groupView struct {
	ID               int64            `json:"id"`
	PostingDate      string           `json:"posting_date"`
	SourceType       SourceType       `json:"source_type"`
	SourceID         uuid.UUID        `json:"source_id"`
	CropCycleID      *int64           `json:"crop_cycle_id,omitempty"`
	IdempotencyKey   string           `json:"idempotency_key"`
	ReversalOf       *int64           `json:"reversal_of,omitempty"`
	ReversedBy       *int64           `json:"reversed_by,omitempty"`
	CorrectionReason *string          `json:"correction_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	Entries          []entryView      `json:"entries,omitempty"`
	Debits           *decimal.Decimal `json:"debit_total,omitempty"`
	Credits          *decimal.Decimal `json:"credit_total,omitempty"`
}

type entryView struct {
	AccountCode string          `json:"account_code"`
	Currency    string          `json:"currency"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

func toGroupView(group PostingGroup) groupView {
	view := groupView{
		ID:               group.ID,
		PostingDate:      group.PostingDate.Format("2006-01-02"),
		SourceType:       group.SourceType,
		SourceID:         group.SourceID,
		CropCycleID:      group.CropCycleID,
		IdempotencyKey:   group.IdempotencyKey,
		ReversalOf:       group.ReversalOf,
		ReversedBy:       group.ReversedBy,
		CorrectionReason: group.CorrectionReason,
		CreatedAt:        group.CreatedAt,
	}
	if len(group.Entries) > 0 {
		debits := decimal.Zero
		credits := decimal.Zero
		for _, entry := range group.Entries {
			view.Entries = append(view.Entries, entryView{
				AccountCode: entry.AccountCode,
				Currency:    entry.Currency,
				Debit:       entry.Debit,
				Credit:      entry.Credit,
			})
			debits = debits.Add(entry.Debit)
			credits = credits.Add(entry.Credit)
		}
		view.Debits = &debits
		view.Credits = &credits
	}
	return view
}

func (h *Handler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	id, err := groupID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "group id must be an integer")
		return
	}
	group, err := h.service.GetGroup(r.Context(), p.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGroupView(group))
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	id, err := groupID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "group id must be an integer")
		return
	}
	entries, err := h.service.ListEntries(r.Context(), p.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryView{
			AccountCode: entry.AccountCode,
			Currency:    entry.Currency,
			Debit:       entry.Debit,
			Credit:      entry.Credit,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type allocationView struct {
	PartyID   *int64          `json:"party_id,omitempty"`
	ProjectID *int64          `json:"project_id,omitempty"`
	Type      AllocationType  `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
}

func (h *Handler) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	id, err := groupID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "group id must be an integer")
		return
	}
	rows, err := h.service.ListAllocations(r.Context(), p.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]allocationView, 0, len(rows))
	for _, row := range rows {
		out = append(out, allocationView{PartyID: row.PartyID, ProjectID: row.ProjectID, Type: row.Type, Amount: row.Amount})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleListReversals(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	id, err := groupID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "group id must be an integer")
		return
	}
	groups, err := h.service.ListReversals(r.Context(), p.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]groupView, 0, len(groups))
	for _, group := range groups {
		out = append(out, toGroupView(group))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	id, err := groupID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "group id must be an integer")
		return
	}
	group, err := h.service.GetGroup(r.Context(), p.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	locale := r.URL.Query().Get("locale")
	if locale == "" {
		locale = "en"
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="posting-group-%d.csv"`, id))
	if err := WriteGroupCSV(w, group, locale); err != nil {
		h.logger.ErrorContext(r.Context(), "csv export failed",
			slog.Int64("group_id", id), slog.Any("error", err))
	}
}

type reverseRequest struct {
	PostingDate string `json:"posting_date"`
	Reason      string `json:"reason"`
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	id, err := groupID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "group id must be an integer")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	reversalDate, err := time.Parse("2006-01-02", req.PostingDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "posting_date must be YYYY-MM-DD")
		return
	}
	group, err := h.reverser.ReverseGroupByID(r.Context(), p, id, reversalDate, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toGroupView(group))
}
