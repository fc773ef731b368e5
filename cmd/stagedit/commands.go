package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sokinpui/stagedit/cli"
	"github.com/sokinpui/stagedit/internal/config"
	"github.com/sokinpui/stagedit/internal/finder"
	"github.com/sokinpui/stagedit/internal/logger"
	"github.com/sokinpui/stagedit/internal/nvim"
	"github.com/sokinpui/stagedit/internal/source"
	"github.com/sokinpui/stagedit/internal/tui"
	"github.com/sokinpui/stagedit/internal/ui"
	"github.com/sokinpui/stagedit/model"
	"github.com/sokinpui/stagedit/stagedit"
)

var (
	flags cli.Flags

	rootCmd = &cobra.Command{
		Use:   "stagedit",
		Short: "Apply model edit instructions to a project through a validated preview",
		Long: `stagedit reads edit instructions written by a language model, applies them
to a preview copy of the project, checks syntax and runs the tests there, and
only then copies the touched files back after taking a backup.

Without a subcommand it behaves like 'stagedit apply'.`,
		Example:       "  pbpaste | stagedit -e py\n  stagedit request -c main.go \"add a --version flag\"",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runApply,
	}

	applyCmd = &cobra.Command{
		Use:   "apply",
		Short: "Apply a response from a file, piped stdin or the clipboard",
		Args:  cobra.NoArgs,
		RunE:  runApply,
	}

	requestCmd = &cobra.Command{
		Use:   "request <instruction...>",
		Short: "Ask the model for changes and apply its answer",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRequest,
	}

	replayCmd = &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Process the last (or a recorded) response again",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReplay,
	}

	restoreCmd = &cobra.Command{
		Use:   "restore [backup]",
		Short: "Copy the newest (or the named) backup over the project",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRestore,
	}

	findCmd = &cobra.Command{
		Use:   "find <debug-file>",
		Short: "Run the block locator again against a saved failure",
		Args:  cobra.ExactArgs(1),
		RunE:  runFind,
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
)

func init() {
	cli.BindGlobal(rootCmd.PersistentFlags(), &flags)
	cli.BindApply(rootCmd.Flags(), &flags)
	cli.BindApply(applyCmd.Flags(), &flags)
	cli.BindRequest(requestCmd.Flags(), &flags)
	cli.BindApply(replayCmd.Flags(), &flags)

	rootCmd.AddCommand(applyCmd, requestCmd, replayCmd, restoreCmd, findCmd, historyCmd)
}

// newApp builds the App for cmd. The confirmer presents every run, so
// auto-apply is decided there instead of in the App.
func newApp(cmd *cobra.Command) (*stagedit.App, config.Config, func(), error) {
	cfg, err := flags.Config(cmd.Flags())
	if err != nil {
		return nil, cfg, nil, err
	}
	log := logger.New(os.Stderr, logger.Level(cfg.Debug, cfg.Verbose))

	c := confirmer{
		auto:    cfg.AutoApply,
		dryRun:  flags.DryRun,
		patch:   flags.Patch,
		animate: !cfg.NoAnimation,
	}
	appCfg := cfg
	appCfg.AutoApply = false

	opts := []stagedit.Option{stagedit.WithLogger(log), stagedit.WithConfirmer(c)}
	closeFn := func() {}
	if m, err := nvim.Connect(log); err == nil {
		opts = append(opts, stagedit.WithReloader(m))
		closeFn = func() { m.Close() }
	} else if !errors.Is(err, nvim.ErrNoInstance) {
		log.Warn("editor buffers will not be reloaded", "error", err)
	}

	app, err := stagedit.New(appCfg, opts...)
	if err != nil {
		closeFn()
		return nil, cfg, nil, err
	}
	return app, cfg, closeFn, nil
}

func runApply(cmd *cobra.Command, _ []string) error {
	response, origin, err := source.New().Content(flags.File)
	if errors.Is(err, source.ErrEmpty) {
		ui.Info("Source (%s) is empty. Nothing to process.", origin)
		return nil
	}
	if err != nil {
		return report(err)
	}

	app, cfg, closeFn, err := newApp(cmd)
	if err != nil {
		return report(err)
	}
	defer closeFn()
	return process(cmd.Context(), cfg, func(ctx context.Context) (model.Summary, error) {
		return app.Process(ctx, response)
	})
}

func runRequest(cmd *cobra.Command, args []string) error {
	app, cfg, closeFn, err := newApp(cmd)
	if err != nil {
		return report(err)
	}
	defer closeFn()

	instruction := strings.Join(args, " ")
	response, err := tui.Run("Waiting for "+cfg.Model, !cfg.NoAnimation, func() (string, error) {
		return app.Ask(cmd.Context(), instruction, flags.Context)
	})
	if err != nil {
		return report(err)
	}
	return process(cmd.Context(), cfg, func(ctx context.Context) (model.Summary, error) {
		return app.Process(ctx, response)
	})
}

func runReplay(cmd *cobra.Command, args []string) error {
	app, cfg, closeFn, err := newApp(cmd)
	if err != nil {
		return report(err)
	}
	defer closeFn()
	return process(cmd.Context(), cfg, func(ctx context.Context) (model.Summary, error) {
		if len(args) == 1 {
			return app.ReplayRun(ctx, args[0])
		}
		return app.Replay(ctx)
	})
}

func runRestore(cmd *cobra.Command, args []string) error {
	app, _, closeFn, err := newApp(cmd)
	if err != nil {
		return report(err)
	}
	defer closeFn()

	var backup string
	if len(args) == 1 {
		backup = args[0]
	}
	backup, err = app.Restore(backup)
	ui.PrintRestoreSummary(backup, err)
	if err != nil {
		return reportedError{err}
	}
	return nil
}

func runFind(_ *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return report(err)
	}
	defer f.Close()

	r, err := finder.ParseDebugReport(f)
	if err != nil {
		return report(err)
	}
	if r.Err != "" {
		ui.Info("Recorded error: %s", r.Err)
	}
	m, err := finder.Replay(r)
	if err != nil {
		return report(err)
	}
	ui.Success("Found at lines %d-%d using the %s strategy.", m.Start+1, m.End, m.Strategy)
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	app, _, closeFn, err := newApp(cmd)
	if err != nil {
		return report(err)
	}
	defer closeFn()

	runs := app.History()
	if len(runs) == 0 {
		ui.Info("No runs recorded.")
		return nil
	}
	for _, r := range runs {
		when := time.Unix(r.Timestamp, 0).Format(time.DateTime)
		fmt.Fprintf(ui.Out, "%s  %s  %-8s %d file(s)\n", r.ID, when, r.Status, len(r.Operations))
		if flags.Verbose {
			for _, op := range r.Operations {
				path := op.Path
				if op.NewPath != "" {
					path += " -> " + op.NewPath
				}
				ui.Path("%-6s %s", op.Action, path)
			}
		}
	}
	return nil
}

// process runs one staged response and prints its outcome.
func process(ctx context.Context, cfg config.Config, fn func(context.Context) (model.Summary, error)) error {
	summary, err := fn(ctx)

	var verr *stagedit.ValidationError
	switch {
	case errors.Is(err, stagedit.ErrDeclined):
		if flags.DryRun {
			ui.Info("Dry run: no files were changed.")
		} else {
			ui.Info("Changes discarded.")
		}
		return nil
	case errors.As(err, &verr):
		printValidation(verr)
		return reportedError{err}
	case err != nil:
		return report(err)
	}

	if cfg.NoAnimation {
		ui.PrintSummary(summary)
	} else {
		fmt.Fprintln(ui.Out, tui.RenderSummary(summary))
	}
	return nil
}

func printValidation(verr *stagedit.ValidationError) {
	ui.Error("%v", verr)
	for _, se := range verr.Syntax {
		fmt.Fprintln(ui.Out, se.Error())
	}
	if t := verr.Tests; t != nil && !t.Passed() {
		ui.Header("\n--- Test output (%s) ---", t.Command)
		if t.Stdout != "" {
			fmt.Fprint(ui.Out, t.Stdout)
		}
		if t.Stderr != "" {
			ui.Warning("%s", strings.TrimRight(t.Stderr, "\n"))
		}
	}
	ui.Info("The preview is kept at %s", verr.PreviewDir)
}

// reportedError marks an error that was already shown to the user.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

func report(err error) error {
	ui.Error("Error: %v", err)
	return reportedError{err}
}
