package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/agriledger/agriledger/internal/platform/httpx"
	"github.com/agriledger/agriledger/internal/shared"
)

// Handler wires HTTP endpoints for stock projections.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balance", h.handleBalance)
	r.Get("/card", h.handleStockCard)
}

type balanceResponse struct {
	StoreID     int64           `json:"store_id"`
	ItemID      int64           `json:"item_id"`
	QtyOnHand   decimal.Decimal `json:"qty_on_hand"`
	WACUnitCost decimal.Decimal `json:"wac_unit_cost"`
	ValueOnHand decimal.Decimal `json:"value_on_hand"`
}

type movementResponse struct {
	Type       MovementType    `json:"type"`
	QtyDelta   decimal.Decimal `json:"qty_delta"`
	ValueDelta decimal.Decimal `json:"value_delta"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	SourceType string          `json:"source_type"`
	SourceID   string          `json:"source_id"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func queryInt64(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v, err == nil && v > 0
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	storeID, okStore := queryInt64(r, "store_id")
	itemID, okItem := queryInt64(r, "item_id")
	if !okStore || !okItem {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "store_id and item_id are required")
		return
	}
	balance, err := h.service.GetBalance(r.Context(), p.TenantID, storeID, itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{
		StoreID:     balance.StoreID,
		ItemID:      balance.ItemID,
		QtyOnHand:   balance.QtyOnHand,
		WACUnitCost: balance.WACUnitCost,
		ValueOnHand: balance.ValueOnHand(),
	})
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	storeID, okStore := queryInt64(r, "store_id")
	itemID, okItem := queryInt64(r, "item_id")
	if !okStore || !okItem {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "store_id and item_id are required")
		return
	}
	filter := MovementFilter{TenantID: p.TenantID, StoreID: storeID, ItemID: itemID, Limit: 500}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "from must be YYYY-MM-DD")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "to must be YYYY-MM-DD")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	movements, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse{
			Type:       m.Type,
			QtyDelta:   m.QtyDelta,
			ValueDelta: m.ValueDelta,
			UnitCost:   m.UnitCost,
			SourceType: m.SourceType,
			SourceID:   m.SourceID.String(),
			OccurredAt: m.OccurredAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
