// Package catalog loads the basket catalog from a YAML file. It is
// the explicit, startup-selected alternative to the database-backed
// catalog; there is no silent fallback at call sites.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/indexr-labs/indexr-go/internal/domain"
	"github.com/indexr-labs/indexr-go/internal/repo"
)

const SchemaV1 = "indexr.baskets.v1"

type spec struct {
	Schema  string       `yaml:"schema"`
	Baskets []basketSpec `yaml:"baskets"`
}

type basketSpec struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	Description  string      `yaml:"description,omitempty"`
	VaultAddress string      `yaml:"vault_address"`
	Category     string      `yaml:"category,omitempty"`
	RiskLevel    string      `yaml:"risk_level,omitempty"`
	Tokens       []tokenSpec `yaml:"tokens"`
	Active       *bool       `yaml:"active,omitempty"`
}

type tokenSpec struct {
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name,omitempty"`
	Weight int    `yaml:"weight"`
}

// Catalog is a read-only basket source satisfying the same contract
// as the database-backed store.
type Catalog struct {
	baskets []domain.Basket
	byID    map[string]domain.Basket
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read basket catalog: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var s spec
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode basket catalog: %w", err)
	}
	if strings.TrimSpace(s.Schema) != SchemaV1 {
		return nil, fmt.Errorf("catalog schema must be %q", SchemaV1)
	}
	if len(s.Baskets) == 0 {
		return nil, errors.New("catalog baskets must be non-empty")
	}

	now := time.Now().UTC()
	cat := &Catalog{byID: make(map[string]domain.Basket, len(s.Baskets))}
	for i, b := range s.Baskets {
		basket := domain.Basket{
			ID:           strings.TrimSpace(b.ID),
			Name:         strings.TrimSpace(b.Name),
			Description:  strings.TrimSpace(b.Description),
			VaultAddress: strings.TrimSpace(b.VaultAddress),
			Category:     strings.TrimSpace(b.Category),
			RiskLevel:    strings.TrimSpace(b.RiskLevel),
			Active:       b.Active == nil || *b.Active,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		for _, tok := range b.Tokens {
			basket.Tokens = append(basket.Tokens, domain.BasketToken{
				Symbol: strings.TrimSpace(tok.Symbol),
				Name:   strings.TrimSpace(tok.Name),
				Weight: tok.Weight,
			})
		}
		if err := basket.Validate(); err != nil {
			return nil, fmt.Errorf("catalog baskets[%d]: %w", i, err)
		}
		if _, ok := cat.byID[basket.ID]; ok {
			return nil, fmt.Errorf("catalog baskets[%d]: duplicate id %q", i, basket.ID)
		}
		cat.byID[basket.ID] = basket
		cat.baskets = append(cat.baskets, basket)
	}
	return cat, nil
}

func (c *Catalog) List(ctx context.Context) ([]domain.Basket, error) {
	var out []domain.Basket
	for _, b := range c.baskets {
		if b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (domain.Basket, error) {
	b, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return domain.Basket{}, repo.ErrNotFound
	}
	return b, nil
}
