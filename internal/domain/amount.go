package domain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// USDCDecimals is the fixed decimal exponent of the settlement asset.
const USDCDecimals = 6

// Amount is a settlement-asset amount in the asset's smallest unit.
// All comparisons against on-chain values are integer comparisons.
type Amount struct {
	units int64
}

func AmountFromUnits(units int64) Amount {
	return Amount{units: units}
}

// ParseAmount converts a decimal string (e.g. "25.50") into smallest
// units. Excess fractional digits are truncated, never rounded up, so
// the engine never requests more than the user configured.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, errors.New("amount is required")
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, errors.New("amount must be positive")
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > USDCDecimals {
		frac = frac[:USDCDecimals]
	}
	frac += strings.Repeat("0", USDCDecimals-len(frac))

	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	f, ok := new(big.Int).SetString(frac, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}

	units := new(big.Int).Mul(w, big.NewInt(1_000_000))
	units.Add(units, f)
	if !units.IsInt64() {
		return Amount{}, fmt.Errorf("amount %q out of range", s)
	}
	return Amount{units: units.Int64()}, nil
}

func (a Amount) Units() int64 { return a.units }

func (a Amount) BigUnits() *big.Int { return big.NewInt(a.units) }

func (a Amount) IsPositive() bool { return a.units > 0 }

func (a Amount) Add(b Amount) Amount { return Amount{units: a.units + b.units} }

func (a Amount) Mul(n int64) Amount { return Amount{units: a.units * n} }

// Covers reports whether an external balance or authorization is large
// enough to settle this amount.
func (a Amount) Covers(available *big.Int) bool {
	if available == nil {
		return false
	}
	return available.Cmp(a.BigUnits()) >= 0
}

// String renders the amount as a decimal in whole asset units.
func (a Amount) String() string {
	whole := a.units / 1_000_000
	frac := a.units % 1_000_000
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	s := fmt.Sprintf("%d.%06d", whole, frac)
	return strings.TrimRight(s, "0")
}
