package domain

import (
	"testing"
	"time"
)

func TestFrequencyNextAfter(t *testing.T) {
	anchor := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		freq Frequency
		want time.Time
	}{
		{FrequencyWeekly, time.Date(2026, 2, 7, 9, 0, 0, 0, time.UTC)},
		{FrequencyBiweekly, time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)},
		// AddDate normalizes Jan 31 + 1 month to Mar 3.
		{FrequencyMonthly, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := tc.freq.NextAfter(anchor); !got.Equal(tc.want) {
			t.Fatalf("%s.NextAfter = %v, want %v", tc.freq, got, tc.want)
		}
	}
}

func TestParseFrequency(t *testing.T) {
	if f, err := ParseFrequency(" Weekly "); err != nil || f != FrequencyWeekly {
		t.Fatalf("ParseFrequency: %v %v", f, err)
	}
	if _, err := ParseFrequency("daily"); err == nil {
		t.Fatalf("expected error for unsupported frequency")
	}
}

func TestPlanStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to PlanStatus
		want     bool
	}{
		{PlanStatusActive, PlanStatusPaused, true},
		{PlanStatusActive, PlanStatusCancelled, true},
		{PlanStatusActive, PlanStatusFailed, true},
		{PlanStatusPaused, PlanStatusActive, true},
		{PlanStatusPaused, PlanStatusFailed, false},
		{PlanStatusFailed, PlanStatusActive, true},
		{PlanStatusFailed, PlanStatusPaused, false},
		{PlanStatusCancelled, PlanStatusActive, false},
		{PlanStatusActive, PlanStatusActive, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func validPlan() Plan {
	amount, _ := ParseAmount("50")
	return Plan{
		ID:            "plan-1",
		WalletAddress: "0xabc0000000000000000000000000000000000001",
		BasketID:      "defi-blue-chips",
		AmountPerRun:  amount,
		Frequency:     FrequencyWeekly,
		NextRunAt:     time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Status:        PlanStatusActive,
	}
}

func TestPlanValidate(t *testing.T) {
	if err := validPlan().Validate(); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}

	mutations := []struct {
		name   string
		mutate func(*Plan)
	}{
		{"blank id", func(p *Plan) { p.ID = " " }},
		{"blank wallet", func(p *Plan) { p.WalletAddress = "" }},
		{"mixed-case wallet", func(p *Plan) { p.WalletAddress = "0xABC0000000000000000000000000000000000001" }},
		{"blank basket", func(p *Plan) { p.BasketID = "" }},
		{"zero amount", func(p *Plan) { p.AmountPerRun = Amount{} }},
		{"bad frequency", func(p *Plan) { p.Frequency = "daily" }},
		{"bad status", func(p *Plan) { p.Status = "archived" }},
		{"zero next run", func(p *Plan) { p.NextRunAt = time.Time{} }},
	}
	for _, tc := range mutations {
		p := validPlan()
		tc.mutate(&p)
		if err := p.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestPlanExecutable(t *testing.T) {
	p := validPlan()
	if p.Executable() {
		t.Fatalf("plan without external ref must not be executable")
	}
	p.ExternalPlanRef = "sub-1"
	if !p.Executable() {
		t.Fatalf("plan with external ref must be executable")
	}
}

func TestDeriveMonthlyCap(t *testing.T) {
	p := validPlan()
	cases := []struct {
		freq Frequency
		want int64
	}{
		{FrequencyWeekly, 250_000_000},
		{FrequencyBiweekly, 150_000_000},
		{FrequencyMonthly, 50_000_000},
	}
	for _, tc := range cases {
		p.Frequency = tc.freq
		if got := p.DeriveMonthlyCap().Units(); got != tc.want {
			t.Fatalf("%s cap = %d, want %d", tc.freq, got, tc.want)
		}
	}
}

func TestNormalizeWallet(t *testing.T) {
	if got := NormalizeWallet("  0xABCdef  "); got != "0xabcdef" {
		t.Fatalf("NormalizeWallet = %q", got)
	}
}
