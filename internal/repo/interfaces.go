package repo

import (
	"context"
	"errors"
	"time"

	"github.com/indexr-labs/indexr-go/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type PlanFilter struct {
	WalletAddress string
	Status        domain.PlanStatus
	Limit         int
}

type NotificationFilter struct {
	WalletAddress string
	UnreadOnly    bool
	Limit         int
}

// SuccessUpdate carries the reconciliation written after a confirmed
// settlement. TotalInvested and ExecutionCount are the post-execution
// values; NextRunAt is computed from the plan's prior due time.
type SuccessUpdate struct {
	NextRunAt      time.Time
	LastExecutedAt time.Time
	TotalInvested  domain.Amount
	ExecutionCount int64
}

// PlanRepository manages plan persistence. All mutations are single
// conditional updates keyed by plan id; a false return means zero rows
// matched and the caller must treat the plan as concurrently handled.
type PlanRepository interface {
	Create(ctx context.Context, plan domain.Plan) error
	Get(ctx context.Context, id string) (domain.Plan, error)
	List(ctx context.Context, filter PlanFilter) ([]domain.Plan, error)

	// ListDue returns active plans with next_run_at <= now whose
	// execution claim, if any, has expired.
	ListDue(ctx context.Context, now time.Time) ([]domain.Plan, error)

	// TryClaim acquires a short-lived execution lease on the plan.
	TryClaim(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error)

	// ReleaseClaim drops the lease without reconciling, used when
	// execution is interrupted after claiming but before submission.
	ReleaseClaim(ctx context.Context, id string) error

	// ReconcileSuccess applies a success update only if next_run_at
	// still equals expectedNextRunAt.
	ReconcileSuccess(ctx context.Context, id string, expectedNextRunAt time.Time, update SuccessUpdate) (bool, error)

	// ReconcileFailure marks the plan failed; schedule and accumulator
	// fields are left untouched.
	ReconcileFailure(ctx context.Context, id string) (bool, error)

	UpdateStatus(ctx context.Context, id string, from, to domain.PlanStatus) (bool, error)
	SetExternalPlanRef(ctx context.Context, id, ref string) error
}

// NotificationRepository appends and reads user notifications.
type NotificationRepository interface {
	Append(ctx context.Context, n domain.Notification) error
	List(ctx context.Context, filter NotificationFilter) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, walletAddress string) (bool, error)
}

// BasketRepository reads the basket catalog.
type BasketRepository interface {
	List(ctx context.Context) ([]domain.Basket, error)
	Get(ctx context.Context, id string) (domain.Basket, error)
}
