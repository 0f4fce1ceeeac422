package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/indexr-labs/indexr-go/internal/domain"
)

// Executor runs one plan's tick; the Coordinator is the production
// implementation.
type Executor interface {
	Execute(ctx context.Context, plan domain.Plan, now time.Time) Outcome
}

// Runner performs one tick: scan the due set, fan it out to the
// executor under a bounded-concurrency pool, fold the outcomes.
// Invoking it twice for overlapping windows is safe: executed plans
// have moved past now and are not re-selected, and the claim lease
// plus the reconcile CAS keep concurrent runs from double-submitting
// any single plan.
type Runner struct {
	scanner  *Scanner
	executor Executor
	logger   *slog.Logger
	limit    int
}

func NewRunner(scanner *Scanner, executor Executor, logger *slog.Logger, limit int) (*Runner, error) {
	if scanner == nil {
		return nil, errors.New("scanner is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if limit <= 0 {
		limit = 4
	}
	return &Runner{scanner: scanner, executor: executor, logger: logger, limit: limit}, nil
}

// Run executes one tick. The returned error is non-nil only when the
// scanner itself fails; per-plan problems are reported as outcomes.
func (r *Runner) Run(ctx context.Context, now time.Time) (Summary, error) {
	plans, err := r.scanner.Due(ctx, now)
	if err != nil {
		return Summary{}, err
	}
	if len(plans) == 0 {
		return Summary{Results: []Outcome{}}, nil
	}

	outcomes := make([]Outcome, len(plans))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.limit)
	for i, plan := range plans {
		group.Go(func() error {
			outcomes[i] = r.executeOne(groupCtx, plan, now)
			return nil
		})
	}
	// Workers never return errors; outcomes carry all failures.
	_ = group.Wait()

	summary := Summarize(outcomes)
	r.logger.Info("tick complete",
		"processed", summary.Processed,
		"executed", summary.Executed,
		"failed", summary.Failed,
		"skipped", summary.Skipped)
	return summary, nil
}

func (r *Runner) executeOne(ctx context.Context, plan domain.Plan, now time.Time) (outcome Outcome) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("panic during plan execution", "plan_id", plan.ID, "panic", v)
			outcome = Failed(plan.ID, "internal error")
		}
	}()
	return r.executor.Execute(ctx, plan, now)
}
