package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/indexr-labs/indexr-go/internal/domain"
)

// Ledger reads live funding state from the settlement asset's ledger.
// Any error is treated as a transient outage: the plan is skipped,
// never failed.
type Ledger interface {
	BalanceOf(ctx context.Context, wallet string) (*big.Int, error)
	AuthorizationOf(ctx context.Context, wallet, spender string) (*big.Int, error)
}

// Readiness classifies a plan immediately before execution.
type Readiness string

const (
	Ready                     Readiness = "ready"
	NotExecutable             Readiness = "not_executable"
	InsufficientBalance       Readiness = "insufficient_balance"
	InsufficientAuthorization Readiness = "insufficient_authorization"
	LedgerUnavailable         Readiness = "ledger_unavailable"
)

// Validator re-checks funding and authorization against the live
// ledger at execution time, never at scan time, so a stale balance
// read cannot trigger a transfer.
type Validator struct {
	ledger  Ledger
	spender string
}

func NewValidator(ledger Ledger, spender string) (*Validator, error) {
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if strings.TrimSpace(spender) == "" {
		return nil, errors.New("spender address is required")
	}
	return &Validator{ledger: ledger, spender: spender}, nil
}

// Classify returns the plan's execution readiness. The error is
// diagnostic only; it is non-nil only alongside LedgerUnavailable.
func (v *Validator) Classify(ctx context.Context, plan domain.Plan) (Readiness, error) {
	if !plan.Executable() {
		return NotExecutable, nil
	}

	balance, err := v.ledger.BalanceOf(ctx, plan.WalletAddress)
	if err != nil {
		return LedgerUnavailable, fmt.Errorf("balance of %s: %w", plan.WalletAddress, err)
	}
	if !plan.AmountPerRun.Covers(balance) {
		return InsufficientBalance, nil
	}

	authorization, err := v.ledger.AuthorizationOf(ctx, plan.WalletAddress, v.spender)
	if err != nil {
		return LedgerUnavailable, fmt.Errorf("authorization of %s: %w", plan.WalletAddress, err)
	}
	if !plan.AmountPerRun.Covers(authorization) {
		return InsufficientAuthorization, nil
	}

	return Ready, nil
}
