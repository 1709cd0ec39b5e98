package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheTTL = 10 * time.Minute

// Service exposes the account registry with a read-through cache. The
// registry is hot on every posting (account code resolution), so lookups
// are cached per (tenant, code).
type Service struct {
	repo   Repository
	cache  *redis.Client
	logger *slog.Logger
	group  singleflight.Group
}

func NewService(repo Repository, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

func (s *Service) List(ctx context.Context, tenantID int64) ([]Account, error) {
	return s.repo.List(ctx, tenantID)
}

// GetByCode resolves one account code within a tenant.
func (s *Service) GetByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey(tenantID, code)).Bytes(); err == nil {
			var a Account
			if err := json.Unmarshal(cached, &a); err == nil {
				return a, nil
			}
		}
	}
	// Collapse concurrent misses for the same code into one query.
	v, err, _ := s.group.Do(cacheKey(tenantID, code), func() (any, error) {
		a, err := s.repo.GetByCode(ctx, tenantID, code)
		if err != nil {
			return Account{}, err
		}
		if s.cache != nil {
			payload, err := json.Marshal(a)
			if err == nil {
				if err := s.cache.Set(ctx, cacheKey(tenantID, code), payload, cacheTTL).Err(); err != nil && s.logger != nil {
					s.logger.Warn("account cache set failed", slog.Any("error", err))
				}
			}
		}
		return a, nil
	})
	if err != nil {
		return Account{}, err
	}
	return v.(Account), nil
}

// Resolve maps a set of account codes to accounts for one tenant. Missing
// codes surface as not-found errors from GetByCode.
func (s *Service) Resolve(ctx context.Context, tenantID int64, codes []string) (map[string]Account, error) {
	out := make(map[string]Account, len(codes))
	for _, code := range codes {
		if _, ok := out[code]; ok {
			continue
		}
		a, err := s.GetByCode(ctx, tenantID, code)
		if err != nil {
			return nil, err
		}
		out[code] = a
	}
	return out, nil
}

func cacheKey(tenantID int64, code string) string {
	return fmt.Sprintf("agriledger:accounts:%d:%s", tenantID, code)
}
