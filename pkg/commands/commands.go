// Package commands parses one line of user input into a command and renders
// its result as plain text.
package commands

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/amirasaad/unitconv/pkg/units"
)

// Kind identifies a command.
type Kind int

const (
	KindConvert Kind = iota
	KindUnits
	KindHelp
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindConvert:
		return "convert"
	case KindUnits:
		return "units"
	case KindHelp:
		return "help"
	case KindExit:
		return "exit"
	}
	return "unknown"
}

// Command is a parsed line. Value and Target are set only for KindConvert.
type Command struct {
	Kind   Kind
	Value  units.Value
	Target units.Unit
}

// InvalidExpressionMessage is shown for input that is neither a keyword nor
// a conversion expression.
const InvalidExpressionMessage = "Invalid input. Expression should be in the form <value> <unit> -> <unit>."

// ErrInvalidExpression is wrapped by every *SyntaxError.
var ErrInvalidExpression = errors.New("invalid expression")

// SyntaxError reports a line that does not match the conversion grammar.
type SyntaxError struct {
	Input string
}

func (e *SyntaxError) Error() string { return InvalidExpressionMessage }

func (e *SyntaxError) Unwrap() error { return ErrInvalidExpression }

// <value> <unit> -> <unit>; units may contain spaces, the value may not be
// negative or use an exponent.
var expression = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s(.+)\s->\s(.+)$`)

// Parse reads one line. Keywords must match exactly; anything else is tried
// as a conversion expression. Unknown unit names yield a *units.ParseError.
func Parse(line string) (Command, error) {
	switch line {
	case "units":
		return Command{Kind: KindUnits}, nil
	case "help":
		return Command{Kind: KindHelp}, nil
	case "exit":
		return Command{Kind: KindExit}, nil
	}

	m := expression.FindStringSubmatch(line)
	if m == nil {
		return Command{}, &SyntaxError{Input: line}
	}
	magnitude, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Command{}, &SyntaxError{Input: line}
	}
	from, err := units.Parse(m[2])
	if err != nil {
		return Command{}, err
	}
	to, err := units.Parse(m[3])
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: KindConvert, Value: units.NewValue(magnitude, from), Target: to}, nil
}
