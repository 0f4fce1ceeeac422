package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/indexr-labs/indexr-go/internal/domain"
	"github.com/indexr-labs/indexr-go/internal/repo"
)

// Shared test doubles for the engine packages.

type fakeLedger struct {
	balance       *big.Int
	authorization *big.Int
	err           error
}

func (f *fakeLedger) BalanceOf(ctx context.Context, wallet string) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.balance, nil
}

func (f *fakeLedger) AuthorizationOf(ctx context.Context, wallet, spender string) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.authorization, nil
}

type fakeSettlement struct {
	mu          sync.Mutex
	submits     int
	submitErr   error
	finality    FinalityResult
	finalityErr error
}

func (f *fakeSettlement) Submit(ctx context.Context, ref string, amount domain.Amount) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submits++
	return "0xop-" + ref, nil
}

func (f *fakeSettlement) AwaitFinality(ctx context.Context, ref string, timeout time.Duration) (FinalityResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalityErr != nil {
		return "", f.finalityErr
	}
	if f.finality == "" {
		return FinalityConfirmed, nil
	}
	return f.finality, nil
}

func (f *fakeSettlement) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []domain.Notification
	err           error
}

func (f *fakeNotifier) Append(ctx context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeNotifier) byKind(kind domain.NotificationKind) []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notification
	for _, n := range f.notifications {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type fakeAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAuditor) AppendPlanEvent(ctx context.Context, action, planID string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

// fakePlanRepo implements repo.PlanRepository with in-memory claim and
// compare-and-swap semantics matching the Postgres store.
type fakePlanRepo struct {
	mu      sync.Mutex
	plans   map[string]*domain.Plan
	claims  map[string]time.Time
	listErr error
}

func newFakePlanRepo(plans ...domain.Plan) *fakePlanRepo {
	f := &fakePlanRepo{
		plans:  make(map[string]*domain.Plan),
		claims: make(map[string]time.Time),
	}
	for _, p := range plans {
		plan := p
		f.plans[p.ID] = &plan
	}
	return f
}

func (f *fakePlanRepo) get(id string) domain.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.plans[id]
}

func (f *fakePlanRepo) Create(ctx context.Context, plan domain.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := plan
	f.plans[plan.ID] = &copied
	return nil
}

func (f *fakePlanRepo) Get(ctx context.Context, id string) (domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return domain.Plan{}, repo.ErrNotFound
	}
	return *p, nil
}

func (f *fakePlanRepo) List(ctx context.Context, filter repo.PlanFilter) ([]domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Plan
	for _, p := range f.plans {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePlanRepo) ListDue(ctx context.Context, now time.Time) ([]domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Plan
	for _, p := range f.plans {
		claimedUntil, claimed := f.claims[p.ID]
		if claimed && claimedUntil.After(now) {
			continue
		}
		if p.Status == domain.PlanStatusActive && !p.NextRunAt.After(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePlanRepo) TryClaim(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok || p.Status != domain.PlanStatusActive || p.NextRunAt.After(now) {
		return false, nil
	}
	claimedUntil, claimed := f.claims[id]
	if claimed && claimedUntil.After(now) {
		return false, nil
	}
	f.claims[id] = now.Add(lease)
	return true, nil
}

func (f *fakePlanRepo) ReleaseClaim(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, id)
	return nil
}

func (f *fakePlanRepo) ReconcileSuccess(ctx context.Context, id string, expectedNextRunAt time.Time, update repo.SuccessUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok || p.Status != domain.PlanStatusActive || !p.NextRunAt.Equal(expectedNextRunAt) {
		return false, nil
	}
	p.NextRunAt = update.NextRunAt
	executed := update.LastExecutedAt
	p.LastExecutedAt = &executed
	p.TotalInvested = update.TotalInvested
	p.ExecutionCount = update.ExecutionCount
	delete(f.claims, id)
	return true, nil
}

func (f *fakePlanRepo) ReconcileFailure(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok || p.Status != domain.PlanStatusActive {
		return false, nil
	}
	p.Status = domain.PlanStatusFailed
	delete(f.claims, id)
	return true, nil
}

func (f *fakePlanRepo) UpdateStatus(ctx context.Context, id string, from, to domain.PlanStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (f *fakePlanRepo) SetExternalPlanRef(ctx context.Context, id, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.ExternalPlanRef = ref
	return nil
}

var errLedgerDown = errors.New("rpc connection refused")
