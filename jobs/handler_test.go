package jobs

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *Handler {
	return NewHandler(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScanTriggersUnavailableWithoutClient(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", newTestHandler().MountRoutes)

	for _, path := range []string{"/jobs/ledger-integrity", "/jobs/stock-reconcile"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", newTestHandler().MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
