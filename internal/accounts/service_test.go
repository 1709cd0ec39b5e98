package accounts

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	accounts map[string]Account
	hits     int
}

func (r *stubRepo) List(ctx context.Context, tenantID int64) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *stubRepo) GetByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	r.hits++
	a, ok := r.accounts[code]
	if !ok || a.TenantID != tenantID {
		return Account{}, errNotFound(code)
	}
	return a, nil
}

func errNotFound(code string) error {
	return &notFoundErr{code: code}
}

type notFoundErr struct{ code string }

func (e *notFoundErr) Error() string { return "accounts: " + e.code + ": not found" }

func TestGetByCodeCachesLookups(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &stubRepo{accounts: map[string]Account{
		"1400": {ID: 1, TenantID: 7, Code: "1400", Name: "Inventory", Type: AccountTypeAsset},
	}}
	svc := NewService(repo, client, nil)
	ctx := context.Background()

	first, err := svc.GetByCode(ctx, 7, "1400")
	require.NoError(t, err)
	require.Equal(t, int64(1), first.ID)

	second, err := svc.GetByCode(ctx, 7, "1400")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.hits)
}

func TestResolveMissingCode(t *testing.T) {
	repo := &stubRepo{accounts: map[string]Account{
		"5100": {ID: 2, TenantID: 7, Code: "5100", Type: AccountTypeExpense},
	}}
	svc := NewService(repo, nil, nil)

	_, err := svc.Resolve(context.Background(), 7, []string{"5100", "9999"})
	require.Error(t, err)
}

func TestResolveIsTenantScoped(t *testing.T) {
	repo := &stubRepo{accounts: map[string]Account{
		"1400": {ID: 1, TenantID: 7, Code: "1400", Type: AccountTypeAsset},
	}}
	svc := NewService(repo, nil, nil)

	_, err := svc.GetByCode(context.Background(), 8, "1400")
	require.Error(t, err)
}
