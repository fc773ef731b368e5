package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/sokinpui/stagedit/internal/ui"
	"github.com/sokinpui/stagedit/stagedit"
)

const (
	exitError   = 1
	exitBlocked = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var shown reportedError
		if !errors.As(err, &shown) {
			ui.Error("Error: %v", err)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var verr *stagedit.ValidationError
	if errors.As(err, &verr) {
		return exitBlocked
	}
	var derr *stagedit.DetailedError
	if errors.As(err, &derr) && flags.Debug {
		fmt.Fprintf(os.Stderr, "%s\n", derr.Stack)
	}
	return exitError
}
