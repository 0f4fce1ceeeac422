package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/indexr-labs/indexr-go/internal/domain"
)

type BasketStore struct {
	db DB
}

func NewBasketStore(db DB) *BasketStore {
	if db == nil {
		return nil
	}
	return &BasketStore{db: db}
}

func (s *BasketStore) List(ctx context.Context) ([]domain.Basket, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("basket store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, description, vault_address, category, risk_level, tokens, active, created_at, updated_at
		 FROM baskets
		 WHERE active = TRUE
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list baskets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Basket
	for rows.Next() {
		var (
			b      domain.Basket
			tokens []byte
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.VaultAddress, &b.Category, &b.RiskLevel, &tokens, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		decoded, err := decodeTokens(tokens)
		if err != nil {
			return nil, fmt.Errorf("decode basket tokens: %w", err)
		}
		b.Tokens = decoded
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *BasketStore) Get(ctx context.Context, id string) (domain.Basket, error) {
	if s == nil || s.db == nil {
		return domain.Basket{}, fmt.Errorf("basket store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Basket{}, fmt.Errorf("basket id is required")
	}
	var (
		b      domain.Basket
		tokens []byte
	)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, description, vault_address, category, risk_level, tokens, active, created_at, updated_at
		 FROM baskets
		 WHERE id = $1`,
		id,
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.VaultAddress, &b.Category, &b.RiskLevel, &tokens, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return domain.Basket{}, handleNotFound(err)
	}
	decoded, err := decodeTokens(tokens)
	if err != nil {
		return domain.Basket{}, fmt.Errorf("decode basket tokens: %w", err)
	}
	b.Tokens = decoded
	return b, nil
}
