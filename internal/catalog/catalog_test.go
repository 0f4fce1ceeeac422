package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/indexr-labs/indexr-go/internal/repo"
)

const validCatalog = `
schema: indexr.baskets.v1
baskets:
  - id: defi-blue-chips
    name: DeFi Blue Chips
    vault_address: "0x1111111111111111111111111111111111111111"
    category: defi
    risk_level: medium
    tokens:
      - symbol: UNI
        weight: 5000
      - symbol: AAVE
        weight: 5000
  - id: stable-yield
    name: Stable Yield
    vault_address: "0x2222222222222222222222222222222222222222"
    active: false
    tokens:
      - symbol: USDC
        weight: 10000
`

func TestParseValidCatalog(t *testing.T) {
	cat, err := Parse([]byte(validCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	active, err := cat.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 1 || active[0].ID != "defi-blue-chips" {
		t.Fatalf("List must return only active baskets, got %+v", active)
	}

	// Inactive baskets are still resolvable by id.
	b, err := cat.Get(context.Background(), "stable-yield")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b.Active {
		t.Fatalf("stable-yield should be inactive")
	}

	if _, err := cat.Get(context.Background(), "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestParseRejectsUnknownSchema(t *testing.T) {
	raw := strings.Replace(validCatalog, "indexr.baskets.v1", "indexr.baskets.v2", 1)
	if _, err := Parse([]byte(raw)); err == nil {
		t.Fatalf("expected schema error")
	}
}

func TestParseRejectsBadWeights(t *testing.T) {
	raw := strings.Replace(validCatalog, "weight: 5000", "weight: 4000", 1)
	if _, err := Parse([]byte(raw)); err == nil {
		t.Fatalf("expected weight-sum error")
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	raw := strings.Replace(validCatalog, "id: stable-yield", "id: defi-blue-chips", 1)
	_, err := Parse([]byte(raw))
	if err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestParseRejectsEmptyCatalog(t *testing.T) {
	if _, err := Parse([]byte("schema: indexr.baskets.v1\nbaskets: []\n")); err == nil {
		t.Fatalf("expected empty-catalog error")
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("schema: [unterminated")); err == nil {
		t.Fatalf("expected decode error")
	}
}
