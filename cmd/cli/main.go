// Command cli is the interactive unit converter. With arguments it evaluates
// them once as a single line, e.g. `cli 100 m -> km`.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/amirasaad/unitconv/infra/initializer"
	"github.com/amirasaad/unitconv/pkg/app"
	"github.com/amirasaad/unitconv/pkg/config"
	"github.com/amirasaad/unitconv/pkg/repl"
	"github.com/charmbracelet/log"
	"github.com/fatih/color"
)

// errEvalFailed makes a failed one-shot evaluation exit non-zero. The
// message has already been printed.
var errEvalFailed = errors.New("evaluation failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if errors.Is(err, errEvalFailed) {
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	// stdout carries conversion results only
	deps, err := initializer.InitializeDependencies(cfg, stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	a := app.New(deps, cfg)
	defer func() {
		if err := a.Close(); err != nil {
			deps.Logger.Warn("Failed to release dependencies", "error", err)
		}
	}()
	a.Start(ctx)

	if len(args) > 0 {
		res := a.Executor.Eval(ctx, strings.Join(args, " "))
		if res.Exit {
			return nil
		}
		if _, err := fmt.Fprintln(stdout, strings.TrimSuffix(res.Output, "\n")); err != nil {
			return err
		}
		if res.Failed {
			return errEvalFailed
		}
		return nil
	}

	return repl.New(a.Executor, stdin, stdout, repl.Options{
		Color:  !color.NoColor,
		Logger: deps.Logger,
	}).Run(ctx)
}
