package env

import (
	"strings"
	"testing"
	"time"
)

func TestStringDefaultsWhenUnset(t *testing.T) {
	if got := String("KEEPER_HTTP_ADDR_UNSET", ":8084"); got != ":8084" {
		t.Fatalf("String() = %q, want default", got)
	}
}

func TestStringEmptyValueCountsAsSet(t *testing.T) {
	t.Setenv("RELAYER_API_KEY", "")
	if got := String("RELAYER_API_KEY", "fallback"); got != "" {
		t.Fatalf("String() = %q, want empty (set beats default)", got)
	}
}

func TestStringOverride(t *testing.T) {
	t.Setenv("KEEPER_HTTP_ADDR", ":9000")
	if got := String("KEEPER_HTTP_ADDR", ":8084"); got != ":9000" {
		t.Fatalf("String() = %q, want :9000", got)
	}
}

func TestDuration(t *testing.T) {
	got, err := Duration("KEEPER_CLAIM_LEASE_UNSET", 5*time.Minute)
	if err != nil || got != 5*time.Minute {
		t.Fatalf("Duration() = %v, %v, want default 5m", got, err)
	}

	t.Setenv("KEEPER_CLAIM_LEASE", "10m")
	got, err = Duration("KEEPER_CLAIM_LEASE", 5*time.Minute)
	if err != nil || got != 10*time.Minute {
		t.Fatalf("Duration() = %v, %v, want 10m", got, err)
	}
}

func TestDurationInvalidNamesTheKey(t *testing.T) {
	t.Setenv("KEEPER_AWAIT_TIMEOUT", "soon")
	_, err := Duration("KEEPER_AWAIT_TIMEOUT", time.Minute)
	if err == nil {
		t.Fatalf("Duration() expected error")
	}
	if !strings.Contains(err.Error(), "KEEPER_AWAIT_TIMEOUT") {
		t.Fatalf("error %q must name the offending key", err)
	}
}

func TestInt(t *testing.T) {
	got, err := Int("KEEPER_CONCURRENCY_UNSET", 4)
	if err != nil || got != 4 {
		t.Fatalf("Int() = %d, %v, want default 4", got, err)
	}

	t.Setenv("KEEPER_CONCURRENCY", "8")
	got, err = Int("KEEPER_CONCURRENCY", 4)
	if err != nil || got != 8 {
		t.Fatalf("Int() = %d, %v, want 8", got, err)
	}

	t.Setenv("KEEPER_CONCURRENCY", "many")
	if _, err := Int("KEEPER_CONCURRENCY", 4); err == nil {
		t.Fatalf("Int() expected error")
	}
}

func TestBool(t *testing.T) {
	got, err := Bool("OBJECTSTORE_USE_SSL_UNSET", false)
	if err != nil || got {
		t.Fatalf("Bool() = %v, %v, want default false", got, err)
	}

	t.Setenv("OBJECTSTORE_USE_SSL", "true")
	got, err = Bool("OBJECTSTORE_USE_SSL", false)
	if err != nil || !got {
		t.Fatalf("Bool() = %v, %v, want true", got, err)
	}

	t.Setenv("OBJECTSTORE_USE_SSL", "yep")
	if _, err := Bool("OBJECTSTORE_USE_SSL", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}
