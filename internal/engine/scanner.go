package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/indexr-labs/indexr-go/internal/domain"
	"github.com/indexr-labs/indexr-go/internal/repo"
)

// Scanner finds plans due at or before a reference time. Ordering
// within the returned set is irrelevant; plans are mutually
// independent.
type Scanner struct {
	plans  repo.PlanRepository
	logger *slog.Logger
}

func NewScanner(plans repo.PlanRepository, logger *slog.Logger) (*Scanner, error) {
	if plans == nil {
		return nil, errors.New("plan repository is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Scanner{plans: plans, logger: logger}, nil
}

// Due returns active, unclaimed plans with next_run_at <= now. A
// query failure here aborts the whole tick before any plan is
// touched.
func (s *Scanner) Due(ctx context.Context, now time.Time) ([]domain.Plan, error) {
	plans, err := s.plans.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("scan due plans: %w", err)
	}
	s.logger.Info("scanned due plans", "count", len(plans), "as_of", now)
	return plans, nil
}
