package units

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUnit is returned when a name matches no member of any family.
	ErrUnknownUnit = errors.New("unknown unit")

	// ErrEmptyValue is returned when converting a Value that has no magnitude.
	ErrEmptyValue = errors.New("value is empty")

	// ErrIncompatibleUnits is returned when converting across families.
	ErrIncompatibleUnits = errors.New("incompatible units")

	// ErrNoRateSource is returned when a currency conversion has nothing to
	// price it with.
	ErrNoRateSource = errors.New("no exchange rate source configured")
)

// ParseError reports a unit name that matches no member.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return "Invalid unit: " + e.Input
}

func (e *ParseError) Unwrap() error {
	return ErrUnknownUnit
}

// ConversionError reports a failed Value.ConvertTo. Err is one of the
// package sentinels or the error returned by the RateSource.
type ConversionError struct {
	From Unit
	To   Unit
	Err  error
}

func (e *ConversionError) Error() string {
	if errors.Is(e.Err, ErrIncompatibleUnits) {
		return fmt.Sprintf("Conversion error: cannot convert from %s to %s", e.From, e.To)
	}
	return "Conversion error: " + e.Err.Error()
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
