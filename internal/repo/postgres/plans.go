package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/indexr-labs/indexr-go/internal/domain"
	"github.com/indexr-labs/indexr-go/internal/repo"
)

const planColumns = `id, wallet_address, basket_id, amount_units, frequency,
	monthly_cap_units, next_run_at, last_executed_at, status,
	total_invested_units, execution_count, external_plan_ref,
	created_at, updated_at`

const selectDuePlansQuery = `SELECT ` + planColumns + `
	FROM plans
	WHERE status = 'active'
	  AND next_run_at <= $1
	  AND (claimed_until IS NULL OR claimed_until < $1)`

// The next_run_at guard rejects claims from runs holding a stale due
// list after a concurrent run already advanced the schedule.
const claimPlanQuery = `UPDATE plans
	SET claimed_until = $2, updated_at = $3
	WHERE id = $1
	  AND status = 'active'
	  AND next_run_at <= $3
	  AND (claimed_until IS NULL OR claimed_until < $3)`

const releaseClaimQuery = `UPDATE plans
	SET claimed_until = NULL, updated_at = $2
	WHERE id = $1`

const reconcileSuccessQuery = `UPDATE plans
	SET next_run_at = $3,
	    last_executed_at = $4,
	    total_invested_units = $5,
	    execution_count = $6,
	    claimed_until = NULL,
	    updated_at = $7
	WHERE id = $1
	  AND status = 'active'
	  AND next_run_at = $2`

const reconcileFailureQuery = `UPDATE plans
	SET status = 'failed', claimed_until = NULL, updated_at = $2
	WHERE id = $1
	  AND status = 'active'`

const updateStatusQuery = `UPDATE plans
	SET status = $3, updated_at = $4
	WHERE id = $1
	  AND status = $2`

type PlanStore struct {
	db DB
}

func NewPlanStore(db DB) *PlanStore {
	if db == nil {
		return nil
	}
	return &PlanStore{db: db}
}

func (s *PlanStore) Create(ctx context.Context, plan domain.Plan) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("plan store not initialized")
	}
	if err := plan.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO plans (
			id, wallet_address, basket_id, amount_units, frequency,
			monthly_cap_units, next_run_at, status,
			total_invested_units, execution_count, external_plan_ref,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)`,
		plan.ID,
		plan.WalletAddress,
		plan.BasketID,
		plan.AmountPerRun.Units(),
		string(plan.Frequency),
		plan.MonthlyCap.Units(),
		normalizeTime(plan.NextRunAt),
		string(plan.Status),
		plan.TotalInvested.Units(),
		plan.ExecutionCount,
		nullString(plan.ExternalPlanRef),
		now,
	)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (s *PlanStore) Get(ctx context.Context, id string) (domain.Plan, error) {
	if s == nil || s.db == nil {
		return domain.Plan{}, fmt.Errorf("plan store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Plan{}, fmt.Errorf("plan id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`,
		id,
	)
	plan, err := scanPlan(row)
	if err != nil {
		return domain.Plan{}, handleNotFound(err)
	}
	return plan, nil
}

func (s *PlanStore) List(ctx context.Context, filter repo.PlanFilter) ([]domain.Plan, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("plan store not initialized")
	}
	query := `SELECT ` + planColumns + ` FROM plans`
	var (
		conds []string
		args  []any
	)
	if wallet := domain.NormalizeWallet(filter.WalletAddress); wallet != "" {
		args = append(args, wallet)
		conds = append(conds, fmt.Sprintf("wallet_address = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, plan)
	}
	return out, rows.Err()
}

func (s *PlanStore) ListDue(ctx context.Context, now time.Time) ([]domain.Plan, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("plan store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, selectDuePlansQuery, normalizeTime(now))
	if err != nil {
		return nil, fmt.Errorf("list due plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, plan)
	}
	return out, rows.Err()
}

func (s *PlanStore) TryClaim(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("plan store not initialized")
	}
	if lease <= 0 {
		return false, fmt.Errorf("claim lease must be positive")
	}
	now = normalizeTime(now)
	res, err := s.db.ExecContext(ctx, claimPlanQuery, id, now.Add(lease), now)
	if err != nil {
		return false, fmt.Errorf("claim plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim plan: %w", err)
	}
	return affected == 1, nil
}

func (s *PlanStore) ReleaseClaim(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("plan store not initialized")
	}
	if _, err := s.db.ExecContext(ctx, releaseClaimQuery, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (s *PlanStore) ReconcileSuccess(ctx context.Context, id string, expectedNextRunAt time.Time, update repo.SuccessUpdate) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("plan store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		reconcileSuccessQuery,
		id,
		normalizeTime(expectedNextRunAt),
		normalizeTime(update.NextRunAt),
		normalizeTime(update.LastExecutedAt),
		update.TotalInvested.Units(),
		update.ExecutionCount,
		time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("reconcile success: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reconcile success: %w", err)
	}
	return affected == 1, nil
}

func (s *PlanStore) ReconcileFailure(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("plan store not initialized")
	}
	res, err := s.db.ExecContext(ctx, reconcileFailureQuery, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("reconcile failure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reconcile failure: %w", err)
	}
	return affected == 1, nil
}

func (s *PlanStore) UpdateStatus(ctx context.Context, id string, from, to domain.PlanStatus) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("plan store not initialized")
	}
	if !from.CanTransition(to) {
		return false, fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx, updateStatusQuery, id, string(from), string(to), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return affected == 1, nil
}

func (s *PlanStore) SetExternalPlanRef(ctx context.Context, id, ref string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("plan store not initialized")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("external plan ref is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE plans SET external_plan_ref = $2, updated_at = $3 WHERE id = $1`,
		id, ref, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set external plan ref: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set external plan ref: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (domain.Plan, error) {
	var (
		plan           domain.Plan
		amountUnits    int64
		capUnits       int64
		investedUnits  int64
		frequency      string
		status         string
		lastExecutedAt sql.NullTime
		externalRef    sql.NullString
	)
	err := row.Scan(
		&plan.ID,
		&plan.WalletAddress,
		&plan.BasketID,
		&amountUnits,
		&frequency,
		&capUnits,
		&plan.NextRunAt,
		&lastExecutedAt,
		&status,
		&investedUnits,
		&plan.ExecutionCount,
		&externalRef,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return domain.Plan{}, err
	}
	plan.AmountPerRun = domain.AmountFromUnits(amountUnits)
	plan.MonthlyCap = domain.AmountFromUnits(capUnits)
	plan.TotalInvested = domain.AmountFromUnits(investedUnits)
	plan.Frequency = domain.Frequency(frequency)
	plan.Status = domain.PlanStatus(status)
	if lastExecutedAt.Valid {
		t := lastExecutedAt.Time
		plan.LastExecutedAt = &t
	}
	if externalRef.Valid {
		plan.ExternalPlanRef = externalRef.String
	}
	return plan, nil
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
