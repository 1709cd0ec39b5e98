package inventory

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Service exposes read-only stock projections. Mutations go through the
// Engine inside a document coordinator transaction.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetBalance returns the current balance, treating a missing row as empty.
func (s *Service) GetBalance(ctx context.Context, tenantID, storeID, itemID int64) (StockBalance, error) {
	balance, err := s.repo.GetBalance(ctx, tenantID, storeID, itemID)
	if err == nil {
		return balance, nil
	}
	if errors.Is(err, ErrBalanceNotFound) {
		return StockBalance{TenantID: tenantID, StoreID: storeID, ItemID: itemID,
			QtyOnHand: decimal.Zero, WACUnitCost: decimal.Zero}, nil
	}
	return StockBalance{}, err
}

// StockCard lists movements for one (store, item) in occurrence order.
func (s *Service) StockCard(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	return s.repo.ListMovements(ctx, filter)
}
