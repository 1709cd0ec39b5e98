package periods

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agriledger/agriledger/internal/platform/httpx"
	"github.com/agriledger/agriledger/internal/shared"
)

// Handler exposes period and crop cycle windows.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/current", h.handleCurrentPeriod)
	r.Get("/crop-cycles", h.handleListCycles)
	r.Get("/crop-cycles/{cycleID}", h.handleGetCycle)
}

type periodView struct {
	ID        int64        `json:"id"`
	Code      string       `json:"code"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	Status    PeriodStatus `json:"status"`
}

type cycleView struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	CropName  string      `json:"crop_name"`
	StartDate string      `json:"start_date"`
	EndDate   string      `json:"end_date"`
	Status    CycleStatus `json:"status"`
}

func (h *Handler) handleCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	date := time.Now()
	if on := r.URL.Query().Get("on"); on != "" {
		parsed, err := time.Parse("2006-01-02", on)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "on must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	period, err := h.repo.FindPeriodByDate(r.Context(), p.TenantID, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, periodView{
		ID:        period.ID,
		Code:      period.Code,
		StartDate: period.StartDate.Format("2006-01-02"),
		EndDate:   period.EndDate.Format("2006-01-02"),
		Status:    period.Status,
	})
}

func (h *Handler) handleListCycles(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	cycles, err := h.repo.ListCycles(r.Context(), p.TenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]cycleView, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, toCycleView(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "cycleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "cycle id must be an integer")
		return
	}
	cycle, err := h.repo.GetCycle(r.Context(), p.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCycleView(cycle))
}

func toCycleView(c CropCycle) cycleView {
	return cycleView{
		ID:        c.ID,
		Name:      c.Name,
		CropName:  c.CropName,
		StartDate: c.StartDate.Format("2006-01-02"),
		EndDate:   c.EndDate.Format("2006-01-02"),
		Status:    c.Status,
	}
}
