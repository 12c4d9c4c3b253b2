// Package units implements the unit families, the Unit tagged variant and the
// Value type that users convert.
package units

// Family is a closed set of mutually convertible units.
type Family int

const (
	// FamilyLength groups length units; the base unit is the meter.
	FamilyLength Family = iota
	// FamilyMass groups mass units; the base unit is the kilogram.
	FamilyMass
	// FamilyCurrency groups currencies; the base unit is BaseCurrency.
	FamilyCurrency
)

// member is one row of a family's conversion table.
type member struct {
	long   string
	short  string
	factor float64 // size of one unit expressed in the family base; 1 for the base
	// inverse marks units smaller than the base: one unit is 1/factor base
	// units, so conversions divide where they would multiply.
	inverse bool
}

// Length members, in declaration order.
type Length int

const (
	Meter Length = iota
	Centimeter
	Kilometer
	Yard
	Foot
	Inch
)

// Mass members, in declaration order.
type Mass int

const (
	Kilogram Mass = iota
	Gram
	Ton
	Pound
	Ounce
)

// Currency members, in declaration order. Rates are looked up at conversion
// time, so the table carries no factors.
type Currency int

const (
	USD Currency = iota
	EUR
	JPY
	KRW
	GBP
	AUD
	CAD
	CHF
	CNY
	INR
	KWD
	EGP
)

// BaseCurrency is the currency every exchange rate is priced against.
const BaseCurrency = USD

var familyNames = [...]string{
	FamilyLength:   "length",
	FamilyMass:     "mass",
	FamilyCurrency: "currency",
}

var tables = [...][]member{
	FamilyLength: {
		Meter:      {long: "meter", short: "m", factor: 1},
		Centimeter: {long: "centimeter", short: "cm", factor: 100, inverse: true},
		Kilometer:  {long: "kilometer", short: "km", factor: 1000},
		Yard:       {long: "yard", short: "yd", factor: 0.9144},
		Foot:       {long: "foot", short: "ft", factor: 0.3048},
		Inch:       {long: "inch", short: "in", factor: 0.0254},
	},
	FamilyMass: {
		Kilogram: {long: "kilogram", short: "kg", factor: 1},
		Gram:     {long: "gram", short: "g", factor: 1000, inverse: true},
		Ton:      {long: "ton", short: "t", factor: 1000},
		Pound:    {long: "pound", short: "lb", factor: 0.453592},
		Ounce:    {long: "ounce", short: "oz", factor: 0.0283495},
	},
	FamilyCurrency: {
		USD: {long: "USD", short: "USD", factor: 1},
		EUR: {long: "EUR", short: "EUR"},
		JPY: {long: "JPY", short: "JPY"},
		KRW: {long: "KRW", short: "KRW"},
		GBP: {long: "GBP", short: "GBP"},
		AUD: {long: "AUD", short: "AUD"},
		CAD: {long: "CAD", short: "CAD"},
		CHF: {long: "CHF", short: "CHF"},
		CNY: {long: "CNY", short: "CNY"},
		INR: {long: "INR", short: "INR"},
		KWD: {long: "KWD", short: "KWD"},
		EGP: {long: "EGP", short: "EGP"},
	},
}

// Families returns every family in declaration order.
func Families() []Family {
	return []Family{FamilyLength, FamilyMass, FamilyCurrency}
}

// String returns the lowercase family name.
func (f Family) String() string {
	if !f.valid() {
		return "unknown"
	}
	return familyNames[f]
}

// Units returns the family's members in declaration order.
func (f Family) Units() []Unit {
	if !f.valid() {
		return nil
	}
	out := make([]Unit, len(tables[f]))
	for i := range tables[f] {
		out[i] = Unit{family: f, member: i}
	}
	return out
}

// Base returns the member whose factor is 1.
func (f Family) Base() Unit {
	return Unit{family: f, member: 0}
}

func (f Family) valid() bool {
	return f >= FamilyLength && f <= FamilyCurrency
}

// Unit returns the length member as a Unit.
func (l Length) Unit() Unit { return Unit{family: FamilyLength, member: int(l)} }

// String renders the member as "<long> (<short>)".
func (l Length) String() string { return l.Unit().String() }

// Unit returns the mass member as a Unit.
func (m Mass) Unit() Unit { return Unit{family: FamilyMass, member: int(m)} }

// String renders the member as "<long> (<short>)".
func (m Mass) String() string { return m.Unit().String() }

// Unit returns the currency as a Unit.
func (c Currency) Unit() Unit { return Unit{family: FamilyCurrency, member: int(c)} }

// Code returns the ISO 4217 code, or "" for an unknown currency.
func (c Currency) Code() string {
	if c < 0 || int(c) >= len(tables[FamilyCurrency]) {
		return ""
	}
	return tables[FamilyCurrency][c].short
}

// String returns the ISO 4217 code.
func (c Currency) String() string { return c.Code() }

// Currencies returns every supported currency in declaration order.
func Currencies() []Currency {
	out := make([]Currency, len(tables[FamilyCurrency]))
	for i := range out {
		out[i] = Currency(i)
	}
	return out
}

// ParseCurrency looks up a currency by its exact code.
func ParseCurrency(code string) (Currency, bool) {
	for i, m := range tables[FamilyCurrency] {
		if m.short == code {
			return Currency(i), true
		}
	}
	return 0, false
}
