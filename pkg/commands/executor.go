package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/amirasaad/unitconv/pkg/units"
)

// Banner greets interactive sessions.
const Banner = "Enter a conversion expression (e.g. 100 m -> km) or 'exit' to exit."

// HelpText is the output of the help command.
const HelpText = `Usage:
  <value> <unit> -> <unit>   convert a value, e.g. 100 m -> km or 20 USD -> EUR
  units                      list every available unit
  help                       show this help
  exit                       leave the program

Units are matched by long or short name and are case-sensitive.`

// Result is the rendered outcome of one line.
type Result struct {
	Output string
	// Exit is set by the exit command; Output is empty then.
	Exit bool
	// Failed marks Output as an error message.
	Failed bool
}

// Executor runs commands against a rate source. It never returns an error:
// failures are rendered as text.
type Executor struct {
	rates  units.RateSource
	logger *slog.Logger
}

// NewExecutor creates an Executor. rates may be nil when currency
// conversion is not needed.
func NewExecutor(rates units.RateSource, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{rates: rates, logger: logger.With(slog.String("component", "executor"))}
}

// Eval parses and executes one line.
func (e *Executor) Eval(ctx context.Context, line string) Result {
	cmd, err := Parse(strings.TrimSpace(line))
	if err != nil {
		e.logger.Debug("Rejected input", "input", line, "error", err)
		return Result{Output: err.Error(), Failed: true}
	}
	return e.Execute(ctx, cmd)
}

// Execute renders the result of cmd.
func (e *Executor) Execute(ctx context.Context, cmd Command) Result {
	switch cmd.Kind {
	case KindConvert:
		return e.convert(ctx, cmd)
	case KindUnits:
		return Result{Output: UnitsListing()}
	case KindHelp:
		return Result{Output: HelpText}
	case KindExit:
		return Result{Exit: true}
	}
	return Result{}
}

func (e *Executor) convert(ctx context.Context, cmd Command) Result {
	converted, err := cmd.Value.ConvertTo(ctx, cmd.Target, e.rates)
	if err != nil {
		e.logger.Debug("Conversion failed", "from", cmd.Value.Unit().String(), "to", cmd.Target.String(), "error", err)
		return Result{Output: err.Error(), Failed: true}
	}
	return Result{Output: converted.String()}
}

// UnitsListing renders every unit, one per line, grouped by family.
func UnitsListing() string {
	var b strings.Builder
	b.WriteString("Available units:\n")
	for _, u := range units.AllUnits() {
		b.WriteString(u.String())
		b.WriteByte('\n')
	}
	return b.String()
}
