package ledger

import (
	"context"
	"log/slog"
)

// Service exposes tenant-scoped read projections over posting groups.
// Writing goes through the Engine inside a document coordinator
// transaction; these reads observe only committed groups.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) GetGroup(ctx context.Context, tenantID, groupID int64) (PostingGroup, error) {
	return s.repo.GetGroupWithLines(ctx, tenantID, groupID)
}

func (s *Service) ListEntries(ctx context.Context, tenantID, groupID int64) ([]LedgerEntry, error) {
	return s.repo.ListEntries(ctx, tenantID, groupID)
}

func (s *Service) ListAllocations(ctx context.Context, tenantID, groupID int64) ([]AllocationRow, error) {
	return s.repo.ListAllocations(ctx, tenantID, groupID)
}

func (s *Service) ListReversals(ctx context.Context, tenantID, groupID int64) ([]PostingGroup, error) {
	return s.repo.ListReversals(ctx, tenantID, groupID)
}
