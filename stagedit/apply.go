package stagedit

import (
	"context"
	"log/slog"
	"time"

	"github.com/sokinpui/stagedit/internal/config"
	"github.com/sokinpui/stagedit/model"
)

// Options for using stagedit as a library.
type Options struct {
	// Filter by extension (e.g. 'py', '.go').
	Extensions []string
	// Ignore holds glob patterns excluded from preview and backup.
	Ignore []string
	// TestCmd runs in the preview before commit. Empty skips tests.
	TestCmd     string
	TestTimeout time.Duration
	// DryRun stages and validates without touching the tree.
	DryRun bool
	Logger *slog.Logger
}

// Result reports what Apply did.
type Result struct {
	Blocks  model.AppliedBlocks
	Summary model.Summary
	Patch   []byte
}

// Apply parses response and applies its instructions to the tree at dir
// without asking for confirmation. Validation failures are returned as
// *ValidationError and leave the tree untouched.
func Apply(ctx context.Context, dir, response string, opts Options) (Result, error) {
	cfg := config.Default(dir)
	cfg.AutoApply = true
	cfg.TestCmd = opts.TestCmd
	if opts.TestTimeout > 0 {
		cfg.TestTimeout = opts.TestTimeout
	}
	if len(opts.Ignore) > 0 {
		cfg.Ignore = opts.Ignore
	}
	cfg.Extensions = config.NormalizeExtensions(opts.Extensions)

	app, err := New(cfg, WithLogger(opts.Logger))
	if err != nil {
		return Result{}, err
	}

	run, err := app.Prepare(ctx, response)
	if err != nil {
		return Result{}, err
	}

	var res Result
	res.Blocks = run.Blocks
	if res.Patch, err = run.Patch(); err != nil {
		app.logger.Warn("could not render patch", "error", err)
	}

	if opts.DryRun {
		res.Summary = summarize(run.ChangeSet())
		res.Summary.Message = "Dry run: no files were changed."
		return res, app.Decline(run)
	}

	res.Summary, err = app.Commit(ctx, run)
	return res, err
}
