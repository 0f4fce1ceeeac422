package auditlog

import (
	"context"
	"testing"
	"time"
)

func TestComputeIntegritySHA256_Deterministic(t *testing.T) {
	event := Event{
		OccurredAt:   time.Unix(1700000000, 0).UTC(),
		Actor:        "keeper",
		Action:       "plan.executed",
		ResourceType: "plan",
		ResourceID:   "plan-123",
		RequestID:    "req-123",
	}
	payloadJSON := []byte(`{"operation_ref":"0xop","amount":"25.5"}`)

	a := computeIntegritySHA256(event, payloadJSON)
	b := computeIntegritySHA256(event, payloadJSON)
	if a != b {
		t.Fatalf("integrity mismatch: %q vs %q", a, b)
	}
}

func TestComputeIntegritySHA256_ChangesOnPayload(t *testing.T) {
	event := Event{
		OccurredAt:   time.Unix(1700000000, 0).UTC(),
		Actor:        "keeper",
		Action:       "plan.failed",
		ResourceType: "plan",
		ResourceID:   "plan-123",
	}

	a := computeIntegritySHA256(event, []byte(`{"reason":"confirmation timeout"}`))
	b := computeIntegritySHA256(event, []byte(`{"reason":"settlement reverted"}`))
	if a == b {
		t.Fatalf("expected integrity to differ")
	}
}

func TestInsertValidatesEvent(t *testing.T) {
	if _, err := Insert(context.Background(), nil, Event{}); err == nil {
		t.Fatalf("expected error for nil queryer")
	}
}

func TestEventValidate(t *testing.T) {
	valid := Event{
		OccurredAt:   time.Now(),
		Actor:        "keeper",
		Action:       "plan.executed",
		ResourceType: "plan",
		ResourceID:   "plan-123",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	mutations := []func(*Event){
		func(e *Event) { e.OccurredAt = time.Time{} },
		func(e *Event) { e.Actor = " " },
		func(e *Event) { e.Action = "" },
		func(e *Event) { e.ResourceType = "" },
		func(e *Event) { e.ResourceID = "" },
	}
	for i, mutate := range mutations {
		e := valid
		mutate(&e)
		if err := e.Validate(); err == nil {
			t.Fatalf("mutation %d: expected validation error", i)
		}
	}
}
