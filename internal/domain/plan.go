package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frequency is the recurrence interval of a plan.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case FrequencyWeekly:
		return FrequencyWeekly, nil
	case FrequencyBiweekly:
		return FrequencyBiweekly, nil
	case FrequencyMonthly:
		return FrequencyMonthly, nil
	default:
		return "", fmt.Errorf("frequency must be one of: weekly, biweekly, monthly (got %q)", s)
	}
}

// NextAfter returns the next scheduled run after t. Anchoring at the
// plan's prior due time rather than the wall clock keeps execution
// delay from drifting the schedule.
func (f Frequency) NextAfter(t time.Time) time.Time {
	switch f {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return t.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 30)
	}
}

// RunsPerMonth is the ceiling of executions in any calendar month,
// used to derive the informational monthly cap.
func (f Frequency) RunsPerMonth() int64 {
	switch f {
	case FrequencyWeekly:
		return 5
	case FrequencyBiweekly:
		return 3
	default:
		return 1
	}
}

// PlanStatus is the lifecycle state of a plan.
type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusPaused    PlanStatus = "paused"
	PlanStatusCancelled PlanStatus = "cancelled"
	PlanStatusFailed    PlanStatus = "failed"
)

func ParsePlanStatus(s string) (PlanStatus, error) {
	switch PlanStatus(strings.ToLower(strings.TrimSpace(s))) {
	case PlanStatusActive:
		return PlanStatusActive, nil
	case PlanStatusPaused:
		return PlanStatusPaused, nil
	case PlanStatusCancelled:
		return PlanStatusCancelled, nil
	case PlanStatusFailed:
		return PlanStatusFailed, nil
	default:
		return "", fmt.Errorf("status must be one of: active, paused, cancelled, failed (got %q)", s)
	}
}

// CanTransition reports whether a status change is allowed.
// active and paused are mutually reversible; cancelled is terminal;
// failed can only be reset to active by deliberate reactivation.
func (s PlanStatus) CanTransition(to PlanStatus) bool {
	if s == to {
		return false
	}
	switch s {
	case PlanStatusActive:
		return to == PlanStatusPaused || to == PlanStatusCancelled || to == PlanStatusFailed
	case PlanStatusPaused:
		return to == PlanStatusActive || to == PlanStatusCancelled
	case PlanStatusFailed:
		return to == PlanStatusActive || to == PlanStatusCancelled
	default:
		return false
	}
}

// Plan is a stored recurring-transfer instruction.
type Plan struct {
	ID            string
	WalletAddress string
	BasketID      string

	AmountPerRun Amount
	Frequency    Frequency
	MonthlyCap   Amount

	NextRunAt      time.Time
	LastExecutedAt *time.Time

	Status PlanStatus

	TotalInvested  Amount
	ExecutionCount int64

	// ExternalPlanRef links to the settlement-side authorization. A
	// plan without one can exist while onboarding is in flight but is
	// never submitted.
	ExternalPlanRef string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeWallet lower-cases a wallet address; wallet identity is
// case-insensitive everywhere in the system.
func NormalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func (p Plan) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("plan id is required")
	}
	if strings.TrimSpace(p.WalletAddress) == "" {
		return errors.New("wallet address is required")
	}
	if p.WalletAddress != NormalizeWallet(p.WalletAddress) {
		return errors.New("wallet address must be normalized lower-case")
	}
	if strings.TrimSpace(p.BasketID) == "" {
		return errors.New("basket id is required")
	}
	if !p.AmountPerRun.IsPositive() {
		return errors.New("amount per run must be positive")
	}
	if _, err := ParseFrequency(string(p.Frequency)); err != nil {
		return err
	}
	if _, err := ParsePlanStatus(string(p.Status)); err != nil {
		return err
	}
	if p.NextRunAt.IsZero() {
		return errors.New("next run time is required")
	}
	return nil
}

// Executable reports whether the engine may submit this plan.
func (p Plan) Executable() bool {
	return strings.TrimSpace(p.ExternalPlanRef) != ""
}

// DeriveMonthlyCap computes the informational spend ceiling for one
// calendar month at the plan's frequency.
func (p Plan) DeriveMonthlyCap() Amount {
	return p.AmountPerRun.Mul(p.Frequency.RunsPerMonth())
}
