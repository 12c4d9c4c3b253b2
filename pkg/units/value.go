package units

import (
	"context"
	"strconv"
)

// Value is a magnitude tagged with its Unit. The zero Value has no magnitude.
// Values are immutable; ConvertTo returns a new one.
type Value struct {
	magnitude float64
	unit      Unit
	set       bool
}

// NewValue returns a Value holding magnitude in unit.
func NewValue(magnitude float64, unit Unit) Value {
	return Value{magnitude: magnitude, unit: unit, set: true}
}

// Magnitude returns the numeric part and whether it is present.
func (v Value) Magnitude() (float64, bool) {
	return v.magnitude, v.set
}

// Unit returns the unit the magnitude is expressed in.
func (v Value) Unit() Unit {
	return v.unit
}

// IsEmpty reports whether v carries no magnitude.
func (v Value) IsEmpty() bool {
	return !v.set
}

// ConvertTo expresses v in target. Arithmetic is float64 with no rounding.
// rates is consulted only for currency conversions and may be nil otherwise.
func (v Value) ConvertTo(ctx context.Context, target Unit, rates RateSource) (Value, error) {
	if !v.set {
		return Value{}, &ConversionError{From: v.unit, To: target, Err: ErrEmptyValue}
	}
	if !v.unit.Compatible(target) || !v.unit.Valid() || !target.Valid() {
		return Value{}, &ConversionError{From: v.unit, To: target, Err: ErrIncompatibleUnits}
	}
	if v.unit == target {
		return v, nil
	}

	base, err := v.unit.toBase(ctx, v.magnitude, rates)
	if err != nil {
		return Value{}, &ConversionError{From: v.unit, To: target, Err: err}
	}
	out, err := target.fromBase(ctx, base, rates)
	if err != nil {
		return Value{}, &ConversionError{From: v.unit, To: target, Err: err}
	}
	return NewValue(out, target), nil
}

// String renders "<magnitude> <unit>", e.g. "0.1 kilometer (km)".
func (v Value) String() string {
	if !v.set {
		return "None " + v.unit.String()
	}
	return FormatMagnitude(v.magnitude) + " " + v.unit.String()
}

// FormatMagnitude renders f in the shortest decimal form that round-trips,
// never using an exponent.
func FormatMagnitude(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
