package stagedit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sokinpui/stagedit/internal/applier"
	"github.com/sokinpui/stagedit/internal/fs"
	"github.com/sokinpui/stagedit/internal/parser"
	"github.com/sokinpui/stagedit/internal/patcher"
	"github.com/sokinpui/stagedit/internal/state"
	"github.com/sokinpui/stagedit/internal/validator"
	"github.com/sokinpui/stagedit/internal/workspace"
	"github.com/sokinpui/stagedit/model"
)

const debugDir = "debug"

// Run is one staged response: the parsed instructions, their outcome in the
// preview tree and the validation results. Nothing in the live tree has
// changed until Commit.
type Run struct {
	ID           string
	Response     string
	Info         string
	Segments     model.Segments
	Blocks       model.AppliedBlocks
	PreviewDir   string
	DebugFiles   []string
	SyntaxErrors []validator.SyntaxError
	Tests        *validator.TestResult

	ws    *workspace.Workspace
	guard *workspace.Guard
	done  bool
}

// ValidationError blocks a commit. The preview stays on disk for inspection.
type ValidationError struct {
	Syntax     []validator.SyntaxError
	Tests      *validator.TestResult
	PreviewDir string
}

func (e *ValidationError) Error() string {
	var parts []string
	if n := len(e.Syntax); n > 0 {
		parts = append(parts, fmt.Sprintf("%d syntax error(s)", n))
	}
	switch {
	case e.Tests == nil || e.Tests.Passed():
	case e.Tests.TimedOut:
		parts = append(parts, fmt.Sprintf("tests timed out after %s", e.Tests.Duration.Round(time.Millisecond)))
	default:
		parts = append(parts, fmt.Sprintf("tests failed with exit code %d", e.Tests.ExitCode))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Blocked returns the validation failure that prevents a commit, or nil.
func (r *Run) Blocked() *ValidationError {
	testsFailed := r.Tests != nil && !r.Tests.Passed()
	if len(r.SyntaxErrors) == 0 && !testsFailed {
		return nil
	}
	return &ValidationError{Syntax: r.SyntaxErrors, Tests: r.Tests, PreviewDir: r.PreviewDir}
}

// ChangeSet reports what a commit would do to the live tree.
func (r *Run) ChangeSet() model.ChangeSet { return r.Blocks.ChangeSet() }

// Patch renders the successful blocks as a unified diff.
func (r *Run) Patch() ([]byte, error) { return patcher.Export(r.Blocks) }

// Close stops watching the live tree. The preview directory is kept.
func (r *Run) Close() error {
	if r.guard == nil {
		return nil
	}
	err := r.guard.Close()
	r.guard = nil
	return err
}

// Prepare stages response: the instructions are applied to a fresh preview
// copy of the tree, the touched files are syntax checked and the test command
// runs in the preview.
func (a *App) Prepare(ctx context.Context, response string) (*Run, error) {
	run := &Run{
		ID:       uuid.NewString()[:8],
		Response: response,
		Info:     parser.ExtractResponseInfo(response),
	}
	if err := a.history.SaveResponse(run.ID, response); err != nil {
		return nil, err
	}

	run.Segments = parser.FilterByExtension(a.parser.Parse(response), a.cfg.Extensions)

	ws, err := workspace.New(workspace.Config{
		Root:       a.cfg.Root,
		MetaDir:    a.cfg.MetaDir,
		PreviewDir: a.cfg.PreviewDir,
		Ignore:     a.cfg.Ignore,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}
	run.ws = ws

	run.PreviewDir, err = ws.SetupPreview()
	if err != nil {
		a.abandon(run)
		return nil, err
	}
	if run.guard, err = ws.Watch(); err != nil {
		a.logger.Warn("not watching the tree for concurrent changes", "error", err)
	}

	rec := &applier.Recorder{}
	ap := applier.New(run.PreviewDir, applier.WithEvents(applier.MultiSink{
		applier.LogSink{Logger: a.logger.With("component", "applier", "run", run.ID)},
		rec,
	}))
	for _, change := range run.Segments.Changes() {
		ap.AddEdit(change)
	}
	if run.Blocks, err = ap.Apply(); err != nil {
		a.abandon(run)
		return nil, err
	}
	run.DebugFiles = a.keepDebugFiles(run, rec.Of(applier.DebugWritten))

	if err := a.validate(ctx, run); err != nil {
		a.abandon(run)
		return nil, err
	}
	return run, nil
}

// keepDebugFiles copies the debug artifacts out of the preview so they
// survive its cleanup.
func (a *App) keepDebugFiles(run *Run, events []applier.Event) []string {
	var kept []string
	for _, e := range events {
		src := filepath.Join(run.PreviewDir, e.File)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(a.cfg.MetaPath(), debugDir, run.ID, e.File)
		if err := fs.CopyFile(src, dst); err != nil {
			a.logger.Warn("could not keep debug file", "file", e.File, "error", err)
			continue
		}
		kept = append(kept, dst)
	}
	return kept
}

func (a *App) validate(ctx context.Context, run *Run) error {
	touched := run.ChangeSet().Touched()
	if len(touched) == 0 {
		return nil
	}

	v := validator.New(validator.Config{
		Dir:         run.PreviewDir,
		TestCommand: a.cfg.TestCmd,
		TestTimeout: a.cfg.TestTimeout,
		Logger:      a.logger,
	})

	var err error
	if run.SyntaxErrors, err = v.ValidateFiles(ctx, touched); err != nil {
		return fmt.Errorf("syntax check failed: %w", err)
	}
	if len(run.SyntaxErrors) > 0 {
		return nil
	}
	if run.Tests, err = v.RunTests(ctx); err != nil {
		return err
	}
	return nil
}

// Commit copies the touched files of a validated run back into the live tree
// after taking a backup, records the run and refreshes editor buffers.
func (a *App) Commit(ctx context.Context, run *Run) (model.Summary, error) {
	if run.done {
		return model.Summary{}, errors.New("run already finished")
	}
	if verr := run.Blocked(); verr != nil {
		run.Close()
		a.record(run, state.StatusBlocked, nil)
		return model.Summary{}, verr
	}

	if err := ctx.Err(); err != nil {
		return model.Summary{}, err
	}

	cs := run.ChangeSet()
	touched := cs.Touched()

	if run.guard != nil {
		changed := run.guard.Modified(touched)
		run.Close()
		if len(changed) > 0 {
			return model.Summary{}, fmt.Errorf("%w: %s", ErrConflict, strings.Join(changed, ", "))
		}
	}

	summary := summarize(cs)
	if len(touched) == 0 {
		run.done = true
		return summary, a.cleanup(run)
	}

	backup, err := run.ws.CreateBackup()
	if err != nil {
		return model.Summary{}, err
	}
	result, err := run.ws.Commit(touched)
	if err != nil {
		return model.Summary{}, fmt.Errorf("commit incomplete, restore with %s %s: %w", run.ws.RestoreScript(), backup, err)
	}
	run.done = true

	a.record(run, state.StatusApplied, state.CreateOperations(a.cfg.Root, cs))
	a.reload(run.ws.Root(), result.Written)
	summary.Message = fmt.Sprintf("Backup saved to %s", backup)
	return summary, a.cleanup(run)
}

// Decline drops a run without touching the live tree. The response stays in
// the history.
func (a *App) Decline(run *Run) error {
	if run.done {
		return nil
	}
	run.done = true
	run.Close()
	a.record(run, state.StatusDeclined, nil)
	return a.cleanup(run)
}

// Process stages response, asks for confirmation unless auto-apply is set and
// commits. A declined run returns ErrDeclined.
func (a *App) Process(ctx context.Context, response string) (summary model.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	run, err := a.Prepare(ctx, response)
	if err != nil {
		return model.Summary{}, err
	}
	if verr := run.Blocked(); verr != nil {
		run.Close()
		a.record(run, state.StatusBlocked, nil)
		return summarize(run.ChangeSet()), verr
	}

	ok := a.cfg.AutoApply
	if !ok {
		if a.confirmer == nil {
			a.abandon(run)
			return model.Summary{}, errors.New("no confirmer configured and auto-apply is off")
		}
		if ok, err = a.confirmer.Confirm(run); err != nil {
			a.abandon(run)
			return model.Summary{}, err
		}
	}
	if !ok {
		if err := a.Decline(run); err != nil {
			return model.Summary{}, err
		}
		return model.Summary{Message: "Changes discarded."}, ErrDeclined
	}
	return a.Commit(ctx, run)
}

func (a *App) record(run *Run, status state.Status, ops []state.Operation) {
	err := a.history.Record(state.Run{ID: run.ID, Status: status, Operations: ops})
	if err != nil {
		a.logger.Warn("could not record run", "run", run.ID, "error", err)
	}
}

func (a *App) reload(root string, written []string) {
	if a.reloader == nil || len(written) == 0 {
		return
	}
	paths := make([]string, len(written))
	for i, rel := range written {
		paths[i] = filepath.Join(root, filepath.FromSlash(rel))
	}
	reloaded, err := a.reloader.Reload(paths)
	if err != nil {
		a.logger.Warn("editor reload failed", "error", err)
	}
	a.logger.Debug("editor buffers reloaded", "count", len(reloaded))
}

// abandon releases a run that could not be prepared.
func (a *App) abandon(run *Run) {
	run.Close()
	if err := run.ws.Cleanup(); err != nil {
		a.logger.Warn("could not remove preview", "dir", run.PreviewDir, "error", err)
	}
}

func (a *App) cleanup(run *Run) error {
	if err := run.ws.Cleanup(); err != nil {
		return fmt.Errorf("removing preview: %w", err)
	}
	return nil
}

func summarize(cs model.ChangeSet) model.Summary {
	s := model.Summary{
		Created:  cs.Created,
		Modified: cs.Modified,
		Deleted:  cs.Deleted,
		Failed:   cs.Failed,
	}
	for _, mv := range cs.Moved {
		s.Renamed = append(s.Renamed, mv.From+" -> "+mv.To)
	}
	return s
}
