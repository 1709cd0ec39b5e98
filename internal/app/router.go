package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agriledger/agriledger/internal/accounts"
	"github.com/agriledger/agriledger/internal/auth"
	"github.com/agriledger/agriledger/internal/documents"
	"github.com/agriledger/agriledger/internal/inventory"
	"github.com/agriledger/agriledger/internal/ledger"
	"github.com/agriledger/agriledger/internal/observability"
	"github.com/agriledger/agriledger/internal/periods"
	"github.com/agriledger/agriledger/internal/shared"
	"github.com/agriledger/agriledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Authenticator    *auth.Authenticator
	DocumentsHandler *documents.Handler
	LedgerHandler    *ledger.Handler
	InventoryHandler *inventory.Handler
	AccountsHandler  *accounts.Handler
	PeriodsHandler   *periods.Handler
	JobsHandler      *jobs.Handler
	Pool             *pgxpool.Pool
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(params.Authenticator, params.Logger))

		r.Group(func(r chi.Router) {
			// Posting and reversal mutate the books; workers only read.
			r.Use(auth.RequireRole(shared.RoleAccountant, shared.RoleManager))
			r.Route("/documents", params.DocumentsHandler.MountRoutes)
			r.Route("/posting-groups", params.LedgerHandler.MountRoutes)
		})

		r.Route("/stock", params.InventoryHandler.MountRoutes)
		r.Route("/accounts", params.AccountsHandler.MountRoutes)
		r.Route("/periods", params.PeriodsHandler.MountRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
