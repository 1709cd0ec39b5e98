package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/agriledger/agriledger/internal/shared"
)

type stubKeyRepo struct {
	keys map[int64]APIKey
}

func (r *stubKeyRepo) GetByID(ctx context.Context, id int64) (APIKey, error) {
	key, ok := r.keys[id]
	if !ok {
		return APIKey{}, ErrInvalidKey
	}
	return key, nil
}

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthenticator(&stubKeyRepo{keys: map[int64]APIKey{
		1: {ID: 1, TenantID: 7, ActorID: 42, Role: shared.RoleAccountant, SecretHash: string(hash), IsActive: true},
		2: {ID: 2, TenantID: 7, ActorID: 43, Role: shared.RoleWorker, SecretHash: string(hash), IsActive: false},
	}})
}

func TestVerify(t *testing.T) {
	authn := newTestAuthenticator(t)
	ctx := context.Background()

	p, err := authn.Verify(ctx, FormatKey(1, "s3cret"))
	require.NoError(t, err)
	require.Equal(t, shared.Principal{TenantID: 7, ActorID: 42, Role: shared.RoleAccountant}, p)

	_, err = authn.Verify(ctx, FormatKey(1, "wrong"))
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = authn.Verify(ctx, FormatKey(2, "s3cret"))
	require.ErrorIs(t, err, ErrInvalidKey, "disabled keys fail closed")

	_, err = authn.Verify(ctx, "not-a-key")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = authn.Verify(ctx, FormatKey(99, "s3cret"))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestMiddlewareSetsPrincipal(t *testing.T) {
	authn := newTestAuthenticator(t)
	var got shared.Principal
	handler := Middleware(authn, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set(headerAPIKey, FormatKey(1, "s3cret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(7), got.TenantID)
}

func TestMiddlewareRejectsMissingKey(t *testing.T) {
	authn := newTestAuthenticator(t)
	handler := Middleware(authn, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := RequireRole(shared.RoleAccountant)(next)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(),
		shared.Principal{TenantID: 7, ActorID: 1, Role: shared.RoleWorker}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/documents", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(),
		shared.Principal{TenantID: 7, ActorID: 1, Role: shared.RoleAccountant}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
