package service

import (
	"errors"
	"fmt"

	"nano-pos/internal/domain"

	"github.com/shopspring/decimal"
)

// VAT modes
const (
	// VATInclusive treats line prices as gross: the total is the sum of the
	// lines and the VAT is the share of it attributable to tax.
	VATInclusive = "inclusive"
	// VATExclusive treats line prices as net: VAT is added on top of the sum.
	VATExclusive = "exclusive"
)

var ErrInvalidVATPolicy = errors.New("invalid VAT policy")

// Totals are the amounts a sale is recorded with
type Totals struct {
	Subtotal decimal.Decimal
	VAT      decimal.Decimal
	Total    decimal.Decimal
}

// TotalsPolicy recomputes sale totals from cart lines at a fixed VAT rate
type TotalsPolicy struct {
	rate decimal.Decimal
	mode string
}

// NewTotalsPolicy parses rate (e.g. "0.15") and validates mode
func NewTotalsPolicy(rate, mode string) (TotalsPolicy, error) {
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return TotalsPolicy{}, fmt.Errorf("%w: rate %q: %v", ErrInvalidVATPolicy, rate, err)
	}
	if r.IsNegative() || r.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return TotalsPolicy{}, fmt.Errorf("%w: rate %s out of range [0, 1)", ErrInvalidVATPolicy, r)
	}
	if mode == "" {
		mode = VATInclusive
	}
	if mode != VATInclusive && mode != VATExclusive {
		return TotalsPolicy{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidVATPolicy, mode)
	}
	return TotalsPolicy{rate: r, mode: mode}, nil
}

// Rate returns the VAT rate
func (p TotalsPolicy) Rate() decimal.Decimal { return p.rate }

// Mode returns the VAT mode
func (p TotalsPolicy) Mode() string { return p.mode }

// Compute derives the expected totals for the given lines
func (p TotalsPolicy) Compute(items []domain.LineItem) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount())
	}

	if p.mode == VATExclusive {
		vat := domain.RoundMoney(subtotal.Mul(p.rate))
		return Totals{Subtotal: subtotal, VAT: vat, Total: subtotal.Add(vat)}
	}

	gross := decimal.NewFromInt(1).Add(p.rate)
	vat := domain.RoundMoney(subtotal.Mul(p.rate).Div(gross))
	return Totals{Subtotal: subtotal, VAT: vat, Total: subtotal}
}

// Verify checks caller-supplied totals against the recomputed ones. The total
// is compared first so a wrong cart sum is reported as such.
func (p TotalsPolicy) Verify(items []domain.LineItem, total, vat decimal.Decimal) error {
	expected := p.Compute(items)
	if !expected.Total.Equal(total) {
		return &domain.TotalsMismatchError{Field: "total_amount", Expected: expected.Total, Supplied: total}
	}
	if !expected.VAT.Equal(vat) {
		return &domain.TotalsMismatchError{Field: "vat_amount", Expected: expected.VAT, Supplied: vat}
	}
	return nil
}
