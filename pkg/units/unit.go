package units

import (
	"context"
	"fmt"
)

// RateSource prices currencies against BaseCurrency: BaseRate returns how many
// units of c buy one unit of the base currency.
type RateSource interface {
	BaseRate(ctx context.Context, c Currency) (float64, error)
}

// Unit is a (family, member) pair.
//
// The == operator compares the exact member. Compatible compares families
// only, which is what routing checks use: a value in meters is compatible
// with a kilometer target before the arithmetic runs.
type Unit struct {
	family Family
	member int
}

// Parse matches s exactly against the long and short names of every family,
// in family declaration order.
func Parse(s string) (Unit, error) {
	for _, f := range Families() {
		for i, m := range tables[f] {
			if s == m.long || s == m.short {
				return Unit{family: f, member: i}, nil
			}
		}
	}
	return Unit{}, &ParseError{Input: s}
}

// MustParse is like Parse but panics on an unknown name. Intended for tests
// and package-level tables.
func MustParse(s string) Unit {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// AllUnits lists every member of every family, grouped by family in
// declaration order.
func AllUnits() []Unit {
	var out []Unit
	for _, f := range Families() {
		out = append(out, f.Units()...)
	}
	return out
}

// Family returns the unit's family.
func (u Unit) Family() Family { return u.family }

// Valid reports whether u names a defined member.
func (u Unit) Valid() bool {
	return u.family.valid() && u.member >= 0 && u.member < len(tables[u.family])
}

// Compatible reports whether u and other belong to the same family.
func (u Unit) Compatible(other Unit) bool {
	return u.family == other.family
}

// IsBase reports whether u is its family's base member.
func (u Unit) IsBase() bool {
	return u.member == 0
}

// LongName returns the long name, e.g. "kilometer".
func (u Unit) LongName() string {
	if !u.Valid() {
		return ""
	}
	return tables[u.family][u.member].long
}

// ShortName returns the short name, e.g. "km".
func (u Unit) ShortName() string {
	if !u.Valid() {
		return ""
	}
	return tables[u.family][u.member].short
}

// Currency returns the currency member when u is a currency.
func (u Unit) Currency() (Currency, bool) {
	if u.family != FamilyCurrency || !u.Valid() {
		return 0, false
	}
	return Currency(u.member), true
}

// String renders "<long> (<short>)"; currencies render as the bare code.
func (u Unit) String() string {
	if !u.Valid() {
		return "unknown"
	}
	m := tables[u.family][u.member]
	if u.family == FamilyCurrency {
		return m.long
	}
	return fmt.Sprintf("%s (%s)", m.long, m.short)
}

// toBase expresses v (in u) in the family base.
func (u Unit) toBase(ctx context.Context, v float64, rates RateSource) (float64, error) {
	switch u.family {
	case FamilyLength, FamilyMass:
		m := tables[u.family][u.member]
		if m.inverse {
			return v / m.factor, nil
		}
		return v * m.factor, nil
	case FamilyCurrency:
		rate, err := currencyRate(ctx, Currency(u.member), rates)
		if err != nil {
			return 0, err
		}
		return v / rate, nil
	default:
		return 0, ErrIncompatibleUnits
	}
}

// fromBase expresses v (in the family base) in u.
func (u Unit) fromBase(ctx context.Context, v float64, rates RateSource) (float64, error) {
	switch u.family {
	case FamilyLength, FamilyMass:
		m := tables[u.family][u.member]
		if m.inverse {
			return v * m.factor, nil
		}
		return v / m.factor, nil
	case FamilyCurrency:
		rate, err := currencyRate(ctx, Currency(u.member), rates)
		if err != nil {
			return 0, err
		}
		return v * rate, nil
	default:
		return 0, ErrIncompatibleUnits
	}
}

func currencyRate(ctx context.Context, c Currency, rates RateSource) (float64, error) {
	if c == BaseCurrency {
		return 1, nil
	}
	if rates == nil {
		return 0, ErrNoRateSource
	}
	return rates.BaseRate(ctx, c)
}
