package domain

import (
	"errors"
	"strings"
	"time"
)

// Basket is a destination vault users invest into.
type Basket struct {
	ID           string
	Name         string
	Description  string
	VaultAddress string
	Category     string
	RiskLevel    string
	Tokens       []BasketToken
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BasketToken is one constituent of a basket; weight is in basis
// points and a basket's weights sum to 10000.
type BasketToken struct {
	Symbol string
	Name   string
	Weight int
}

func (b Basket) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return errors.New("basket id is required")
	}
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("basket name is required")
	}
	if strings.TrimSpace(b.VaultAddress) == "" {
		return errors.New("vault address is required")
	}
	if len(b.Tokens) == 0 {
		return errors.New("basket tokens are required")
	}
	total := 0
	for _, tok := range b.Tokens {
		if strings.TrimSpace(tok.Symbol) == "" {
			return errors.New("basket token symbol is required")
		}
		if tok.Weight <= 0 {
			return errors.New("basket token weight must be positive")
		}
		total += tok.Weight
	}
	if total != 10000 {
		return errors.New("basket token weights must sum to 10000")
	}
	return nil
}
