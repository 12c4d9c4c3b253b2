// Package repl runs the interactive read-eval-print loop on top of a
// commands.Executor.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/amirasaad/unitconv/pkg/commands"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// DefaultPrompt is shown before each line on a terminal.
const DefaultPrompt = "> "

// Evaluator executes one line of input.
type Evaluator interface {
	Eval(ctx context.Context, line string) commands.Result
}

// Options tune a session.
type Options struct {
	// Prompt overrides DefaultPrompt. It is only shown on a terminal.
	Prompt string
	// Color highlights error output.
	Color  bool
	Logger *slog.Logger
}

type lineReader interface {
	ReadLine() (string, error)
}

type scannerReader struct {
	scanner *bufio.Scanner
}

func (s scannerReader) ReadLine() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Session is a single REPL run.
type Session struct {
	eval   Evaluator
	in     io.Reader
	out    io.Writer
	opts   Options
	errFmt *color.Color
	logger *slog.Logger
}

// New builds a session reading from in and writing to out.
func New(eval Evaluator, in io.Reader, out io.Writer, opts Options) *Session {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errFmt := color.New(color.FgRed)
	if opts.Color {
		errFmt.EnableColor()
	} else {
		errFmt.DisableColor()
	}
	return &Session{
		eval:   eval,
		in:     in,
		out:    out,
		opts:   opts,
		errFmt: errFmt,
		logger: logger.With(slog.String("component", "repl")),
	}
}

// Run prints the banner and processes lines until exit, end of input or ctx
// cancellation. Reaching end of input is not an error.
func (s *Session) Run(ctx context.Context) error {
	reader, out, restore, err := s.open()
	if err != nil {
		return err
	}
	defer restore()

	if _, err := fmt.Fprintln(out, commands.Banner); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadLine()
		if errors.Is(err, io.EOF) {
			s.logger.Debug("Input closed")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		res := s.eval.Eval(ctx, line)
		if res.Exit {
			return nil
		}
		if err := s.print(out, res); err != nil {
			return err
		}
	}
}

func (s *Session) print(out io.Writer, res commands.Result) error {
	text := strings.TrimSuffix(res.Output, "\n")
	if res.Failed {
		text = s.errFmt.Sprint(text)
	}
	_, err := io.WriteString(out, text+"\n")
	return err
}

// open picks a line editor for terminals and a plain scanner otherwise.
func (s *Session) open() (lineReader, io.Writer, func(), error) {
	if f, ok := s.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("enabling raw mode: %w", err)
		}
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{f, s.out}, s.opts.Prompt)
		restore := func() {
			if err := term.Restore(int(f.Fd()), state); err != nil {
				s.logger.Warn("Failed to restore terminal", "error", err)
			}
		}
		return t, t, restore, nil
	}
	return scannerReader{scanner: bufio.NewScanner(s.in)}, s.out, func() {}, nil
}
