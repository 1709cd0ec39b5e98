// Package auth resolves API keys to tenant principals.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/agriledger/agriledger/internal/shared"
)

// Keys look like agl_<id>_<secret>. The id selects the row, the secret is
// checked against the stored bcrypt hash.
const keyPrefix = "agl_"

// APIKey is one issued credential. Only the hash is stored.
type APIKey struct {
	ID         int64
	TenantID   int64
	ActorID    int64
	Role       shared.Role
	SecretHash string
	Label      string
	IsActive   bool
	CreatedAt  time.Time
}

var ErrInvalidKey = errors.New("auth: invalid API key")

// Repository loads API keys for verification.
type Repository interface {
	GetByID(ctx context.Context, id int64) (APIKey, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) GetByID(ctx context.Context, id int64) (APIKey, error) {
	var key APIKey
	err := r.db.QueryRow(ctx, `SELECT id, tenant_id, actor_id, role, secret_hash, label, is_active, created_at
FROM api_keys WHERE id=$1`, id).
		Scan(&key.ID, &key.TenantID, &key.ActorID, &key.Role, &key.SecretHash, &key.Label, &key.IsActive, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APIKey{}, ErrInvalidKey
		}
		return APIKey{}, err
	}
	return key, nil
}

// Authenticator verifies presented keys.
type Authenticator struct {
	repo Repository
}

func NewAuthenticator(repo Repository) *Authenticator {
	return &Authenticator{repo: repo}
}

// Verify parses and checks a presented key and returns the principal it
// grants. A disabled key fails the same way as a wrong secret.
func (a *Authenticator) Verify(ctx context.Context, presented string) (shared.Principal, error) {
	id, secret, err := splitKey(presented)
	if err != nil {
		return shared.Principal{}, err
	}
	key, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return shared.Principal{}, err
	}
	if !key.IsActive {
		return shared.Principal{}, ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return shared.Principal{}, ErrInvalidKey
	}
	return shared.Principal{TenantID: key.TenantID, ActorID: key.ActorID, Role: key.Role}, nil
}

func splitKey(presented string) (int64, string, error) {
	rest, ok := strings.CutPrefix(presented, keyPrefix)
	if !ok {
		return 0, "", ErrInvalidKey
	}
	idStr, secret, ok := strings.Cut(rest, "_")
	if !ok || secret == "" {
		return 0, "", ErrInvalidKey
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", ErrInvalidKey
	}
	return id, secret, nil
}

// FormatKey renders the presentable key for a freshly issued secret.
func FormatKey(id int64, secret string) string {
	return fmt.Sprintf("%s%d_%s", keyPrefix, id, secret)
}
