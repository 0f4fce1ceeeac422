package engine

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/indexr-labs/indexr-go/internal/domain"
)

// DryRunLedger and DryRunSettlement are the explicit dry-run strategy
// selected at startup when no chain access is configured. They are
// never a silent fallback: the keeper main picks them once, and every
// submission is clearly logged as simulated.

type DryRunLedger struct{}

func (DryRunLedger) BalanceOf(ctx context.Context, wallet string) (*big.Int, error) {
	return maxUint256(), nil
}

func (DryRunLedger) AuthorizationOf(ctx context.Context, wallet, spender string) (*big.Int, error) {
	return maxUint256(), nil
}

func maxUint256() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return max.Sub(max, big.NewInt(1))
}

type DryRunSettlement struct {
	Logger *slog.Logger
}

func (s DryRunSettlement) Submit(ctx context.Context, externalPlanRef string, amount domain.Amount) (string, error) {
	ref := "dryrun-" + uuid.NewString()
	if s.Logger != nil {
		s.Logger.Info("dry-run submission",
			"external_plan_ref", externalPlanRef,
			"amount", amount.String(),
			"operation_ref", ref)
	}
	return ref, nil
}

func (s DryRunSettlement) AwaitFinality(ctx context.Context, operationRef string, timeout time.Duration) (FinalityResult, error) {
	return FinalityConfirmed, nil
}
