package accounts

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agriledger/agriledger/internal/platform/httpx"
	"github.com/agriledger/agriledger/internal/shared"
)

// Handler exposes the account registry.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{code}", h.handleGetByCode)
}

type accountView struct {
	ID       int64       `json:"id"`
	Code     string      `json:"code"`
	Name     string      `json:"name"`
	Type     AccountType `json:"type"`
	IsActive bool        `json:"is_active"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	list, err := h.service.List(r.Context(), p.TenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]accountView, 0, len(list))
	for _, a := range list {
		out = append(out, accountView{ID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type, IsActive: a.IsActive})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetByCode(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	a, err := h.service.GetByCode(r.Context(), p.TenantID, chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accountView{ID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type, IsActive: a.IsActive})
}
