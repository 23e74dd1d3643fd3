package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/hitoshi/pelotonexport/internal/app"
	"github.com/hitoshi/pelotonexport/internal/prompt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stdinTTY := isTerminal(os.Stdin)
	env := &app.Env{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Interactive: isTerminal(os.Stdout),
	}
	if stdinTTY {
		env.Prompter = prompt.NewCredentialPrompter(os.Stdin, os.Stderr, !env.Interactive)
	}

	code := app.Main(ctx, env, os.Args[1:])
	stop()
	os.Exit(code)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
