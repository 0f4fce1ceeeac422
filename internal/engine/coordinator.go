package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/indexr-labs/indexr-go/internal/domain"
	"github.com/indexr-labs/indexr-go/internal/repo"
)

// FinalityResult is the observed terminal state of a settlement
// operation.
type FinalityResult string

const (
	FinalityConfirmed FinalityResult = "confirmed"
	FinalityReverted  FinalityResult = "reverted"
	FinalityTimedOut  FinalityResult = "timed_out"
)

// Settlement submits irreversible transfer operations and awaits
// their finality. Submit returns an operation reference; a
// synchronous error means the operation was never accepted.
type Settlement interface {
	Submit(ctx context.Context, externalPlanRef string, amount domain.Amount) (string, error)
	AwaitFinality(ctx context.Context, operationRef string, timeout time.Duration) (FinalityResult, error)
}

// Notifier appends user-facing notification records. Its failures are
// logged and never abort reconciliation.
type Notifier interface {
	Append(ctx context.Context, n domain.Notification) error
}

// AuditAppender records plan state transitions for operators. May be
// nil; failures are logged and ignored.
type AuditAppender interface {
	AppendPlanEvent(ctx context.Context, action, planID string, payload map[string]any) error
}

// Coordinator drives one plan through validate, claim, submit, await
// and reconcile. Every failure is converted to an Outcome at this
// boundary; nothing escapes to abort the batch.
type Coordinator struct {
	plans        repo.PlanRepository
	validator    *Validator
	settlement   Settlement
	notifier     Notifier
	audit        AuditAppender
	logger       *slog.Logger
	awaitTimeout time.Duration
	claimLease   time.Duration
}

type CoordinatorConfig struct {
	AwaitTimeout time.Duration
	ClaimLease   time.Duration
}

func NewCoordinator(
	plans repo.PlanRepository,
	validator *Validator,
	settlement Settlement,
	notifier Notifier,
	audit AuditAppender,
	logger *slog.Logger,
	cfg CoordinatorConfig,
) (*Coordinator, error) {
	if plans == nil {
		return nil, errors.New("plan repository is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if settlement == nil {
		return nil, errors.New("settlement client is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = 2 * time.Minute
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	return &Coordinator{
		plans:        plans,
		validator:    validator,
		settlement:   settlement,
		notifier:     notifier,
		audit:        audit,
		logger:       logger,
		awaitTimeout: cfg.AwaitTimeout,
		claimLease:   cfg.ClaimLease,
	}, nil
}

// Execute runs one plan's tick. now is the batch reference time.
func (c *Coordinator) Execute(ctx context.Context, plan domain.Plan, now time.Time) Outcome {
	readiness, classifyErr := c.validator.Classify(ctx, plan)
	switch readiness {
	case NotExecutable:
		// Still being created on the settlement side. Not an error.
		return Skipped(plan.ID, ReasonNoExternalRef)
	case LedgerUnavailable:
		c.logger.Warn("ledger unavailable, skipping plan",
			"plan_id", plan.ID, "error", classifyErr)
		return Skipped(plan.ID, ReasonLedgerUnavailable)
	case InsufficientBalance:
		c.notify(ctx, plan, domain.NotificationLowBalance,
			"Low Balance",
			fmt.Sprintf("Your %s auto-invest couldn't execute. Please top up your USDC.", plan.BasketID))
		return Skipped(plan.ID, ReasonInsufficientBalance)
	case InsufficientAuthorization:
		// Authorization is a user self-service action; no notification.
		return Skipped(plan.ID, ReasonInsufficientAuth)
	case Ready:
	default:
		return Skipped(plan.ID, string(readiness))
	}

	claimed, err := c.plans.TryClaim(ctx, plan.ID, now, c.claimLease)
	if err != nil {
		c.logger.Warn("claim failed, skipping plan", "plan_id", plan.ID, "error", err)
		return Skipped(plan.ID, ReasonClaimedElsewhere)
	}
	if !claimed {
		return Skipped(plan.ID, ReasonClaimedElsewhere)
	}

	operationRef, err := c.settlement.Submit(ctx, plan.ExternalPlanRef, plan.AmountPerRun)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Shutdown before the operation was accepted. Nothing moved;
			// release the claim so the next tick picks the plan up again.
			releaseCtx := context.WithoutCancel(ctx)
			if relErr := c.plans.ReleaseClaim(releaseCtx, plan.ID); relErr != nil {
				c.logger.Warn("claim release failed", "plan_id", plan.ID, "error", relErr)
			}
			return Skipped(plan.ID, ReasonInterrupted)
		}
		c.logger.Error("submission rejected", "plan_id", plan.ID, "error", err)
		return c.reconcileFailure(ctx, plan, ReasonSubmissionRejected)
	}

	result, err := c.settlement.AwaitFinality(ctx, operationRef, c.awaitTimeout)
	if err != nil {
		c.logger.Error("finality check failed",
			"plan_id", plan.ID, "operation_ref", operationRef, "error", err)
		return c.reconcileFailure(ctx, plan, ReasonConfirmationFailed)
	}
	switch result {
	case FinalityConfirmed:
		return c.reconcileSuccess(ctx, plan, now, operationRef)
	case FinalityReverted:
		return c.reconcileFailure(ctx, plan, ReasonSettlementReverted)
	default:
		// The operation's true outcome is unknown. Fail closed: a
		// later tick must not re-submit an ambiguous transfer.
		c.logger.Error("confirmation timed out",
			"plan_id", plan.ID, "operation_ref", operationRef)
		return c.reconcileFailure(ctx, plan, ReasonConfirmationTimeout)
	}
}

func (c *Coordinator) reconcileSuccess(ctx context.Context, plan domain.Plan, now time.Time, operationRef string) Outcome {
	update := repo.SuccessUpdate{
		NextRunAt:      plan.Frequency.NextAfter(plan.NextRunAt),
		LastExecutedAt: now,
		TotalInvested:  plan.TotalInvested.Add(plan.AmountPerRun),
		ExecutionCount: plan.ExecutionCount + 1,
	}
	applied, err := c.plans.ReconcileSuccess(ctx, plan.ID, plan.NextRunAt, update)
	if err != nil {
		// The transfer is final; losing the bookkeeping update must be
		// loud but cannot undo the execution.
		c.logger.Error("success reconciliation failed",
			"plan_id", plan.ID, "operation_ref", operationRef, "error", err)
		return Success(plan.ID, operationRef)
	}
	if !applied {
		// Another run advanced the schedule first; its reconciliation
		// owns the notification.
		c.logger.Warn("success reconciliation conflicted",
			"plan_id", plan.ID, "operation_ref", operationRef)
		return Skipped(plan.ID, ReasonAlreadyHandled)
	}

	c.notify(ctx, plan, domain.NotificationExecuted,
		"Auto-Invest Executed",
		fmt.Sprintf("$%s was invested into %s", plan.AmountPerRun, plan.BasketID))
	c.auditEvent(ctx, "plan.executed", plan.ID, map[string]any{
		"operation_ref":   operationRef,
		"amount":          plan.AmountPerRun.String(),
		"basket_id":       plan.BasketID,
		"execution_count": update.ExecutionCount,
		"next_run_at":     update.NextRunAt,
	})
	c.logger.Info("plan executed",
		"plan_id", plan.ID,
		"operation_ref", operationRef,
		"amount", plan.AmountPerRun.String(),
		"next_run_at", update.NextRunAt)
	return Success(plan.ID, operationRef)
}

func (c *Coordinator) reconcileFailure(ctx context.Context, plan domain.Plan, reason string) Outcome {
	applied, err := c.plans.ReconcileFailure(ctx, plan.ID)
	if err != nil {
		c.logger.Error("failure reconciliation failed", "plan_id", plan.ID, "error", err)
		return Failed(plan.ID, reason)
	}
	if !applied {
		return Skipped(plan.ID, ReasonAlreadyHandled)
	}

	c.notify(ctx, plan, domain.NotificationFailed,
		"Auto-Invest Failed",
		fmt.Sprintf("Your %s auto-invest failed. Please check your plan settings.", plan.BasketID))
	c.auditEvent(ctx, "plan.failed", plan.ID, map[string]any{
		"reason":    reason,
		"basket_id": plan.BasketID,
	})
	return Failed(plan.ID, reason)
}

func (c *Coordinator) notify(ctx context.Context, plan domain.Plan, kind domain.NotificationKind, title, message string) {
	n := domain.Notification{
		ID:            uuid.NewString(),
		WalletAddress: plan.WalletAddress,
		PlanID:        plan.ID,
		Kind:          kind,
		Title:         title,
		Message:       message,
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.notifier.Append(ctx, n); err != nil {
		c.logger.Error("notification append failed",
			"plan_id", plan.ID, "kind", string(kind), "error", err)
	}
}

func (c *Coordinator) auditEvent(ctx context.Context, action, planID string, payload map[string]any) {
	if c.audit == nil {
		return
	}
	if err := c.audit.AppendPlanEvent(ctx, action, planID, payload); err != nil {
		c.logger.Error("audit append failed", "plan_id", planID, "action", action, "error", err)
	}
}
