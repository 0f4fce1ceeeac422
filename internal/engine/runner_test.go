package engine

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/indexr-labs/indexr-go/internal/domain"
)

type countingExecutor struct {
	mu       sync.Mutex
	executed map[string]int
	outcome  func(plan domain.Plan) Outcome
}

func (e *countingExecutor) Execute(ctx context.Context, plan domain.Plan, now time.Time) Outcome {
	e.mu.Lock()
	if e.executed == nil {
		e.executed = make(map[string]int)
	}
	e.executed[plan.ID]++
	e.mu.Unlock()
	if e.outcome != nil {
		return e.outcome(plan)
	}
	return Success(plan.ID, "0xop-"+plan.ID)
}

func newTestRunner(t *testing.T, plans *fakePlanRepo, executor Executor, limit int) *Runner {
	t.Helper()
	scanner, err := NewScanner(plans, testLogger())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	runner, err := NewRunner(scanner, executor, testLogger(), limit)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner
}

func TestRunExecutesEachDuePlanOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := testPlan("a")
	b := testPlan("b")
	future := testPlan("future")
	future.NextRunAt = now.Add(time.Hour)
	paused := testPlan("paused")
	paused.Status = domain.PlanStatusPaused

	plans := newFakePlanRepo(a, b, future, paused)
	executor := &countingExecutor{}
	runner := newTestRunner(t, plans, executor, 2)

	summary, err := runner.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 2 || summary.Executed != 2 {
		t.Fatalf("summary = %+v, want 2 processed, 2 executed", summary)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(summary.Results))
	}
	for _, id := range []string{"a", "b"} {
		if executor.executed[id] != 1 {
			t.Fatalf("plan %s executed %d times, want 1", id, executor.executed[id])
		}
	}
	if executor.executed["future"] != 0 || executor.executed["paused"] != 0 {
		t.Fatalf("non-due plans must not execute: %+v", executor.executed)
	}
}

func TestRunFoldsMixedOutcomes(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ok := testPlan("ok")
	broke := testPlan("broke")
	noRef := testPlan("noref")

	plans := newFakePlanRepo(ok, broke, noRef)
	executor := &countingExecutor{outcome: func(plan domain.Plan) Outcome {
		switch plan.ID {
		case "broke":
			return Failed(plan.ID, ReasonConfirmationTimeout)
		case "noref":
			return Skipped(plan.ID, ReasonNoExternalRef)
		default:
			return Success(plan.ID, "0xop")
		}
	}}
	runner := newTestRunner(t, plans, executor, 4)

	summary, err := runner.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 3 || summary.Executed != 1 || summary.Failed != 1 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunAbortsWhenScanFails(t *testing.T) {
	plans := newFakePlanRepo(testPlan("a"))
	plans.listErr = errLedgerDown
	executor := &countingExecutor{}
	runner := newTestRunner(t, plans, executor, 4)

	_, err := runner.Run(context.Background(), time.Now())
	if err == nil {
		t.Fatalf("expected scan error")
	}
	if len(executor.executed) != 0 {
		t.Fatalf("no plan may execute after a scan failure")
	}
}

func TestRunEmptyDueSet(t *testing.T) {
	plans := newFakePlanRepo()
	runner := newTestRunner(t, plans, &countingExecutor{}, 4)

	summary, err := runner.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 0 || summary.Results == nil {
		t.Fatalf("empty tick must report zero processed with non-nil results: %+v", summary)
	}
}

func TestRunRecoversExecutorPanic(t *testing.T) {
	plans := newFakePlanRepo(testPlan("a"), testPlan("b"))
	executor := &countingExecutor{outcome: func(plan domain.Plan) Outcome {
		if plan.ID == "a" {
			panic("boom")
		}
		return Success(plan.ID, "0xop")
	}}
	runner := newTestRunner(t, plans, executor, 4)

	summary, err := runner.Run(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 2 || summary.Executed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestConcurrentTicksSubmitOnce(t *testing.T) {
	plan := testPlan("p1")
	plans := newFakePlanRepo(plan)
	ledger := &fakeLedger{balance: big.NewInt(1e12), authorization: big.NewInt(1e12)}
	settlement := &fakeSettlement{}
	coordinator := newTestCoordinator(t, plans, ledger, settlement, &fakeNotifier{})

	now := plan.NextRunAt
	runnerA := newTestRunner(t, plans, coordinator, 4)
	runnerB := newTestRunner(t, plans, coordinator, 4)

	var wg sync.WaitGroup
	wg.Add(2)
	for _, r := range []*Runner{runnerA, runnerB} {
		go func() {
			defer wg.Done()
			if _, err := r.Run(context.Background(), now); err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	if settlement.submitCount() != 1 {
		t.Fatalf("overlapping ticks submitted %d times, want 1", settlement.submitCount())
	}
	if plans.get("p1").ExecutionCount != 1 {
		t.Fatalf("execution count = %d, want 1", plans.get("p1").ExecutionCount)
	}
}
