package stagedit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/stagedit/internal/config"
	"github.com/sokinpui/stagedit/internal/llm"
	"github.com/sokinpui/stagedit/internal/logger"
	"github.com/sokinpui/stagedit/internal/state"
	"github.com/sokinpui/stagedit/internal/validator"
)

const fixResponse = "Fixing the return value.\n" +
	"#### Edit `app.py` \"Return 2\"\n" +
	"<<<< original\n" +
	"    return 1\n" +
	">>>> modified\n" +
	"    return 2\n" +
	"====\n" +
	"END_INSTRUCTIONS\n" +
	"Changed one line.\n"

const appPy = "def f():\n    return 1\n"

func newTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func newApp(t *testing.T, root string, mutate func(*config.Config), opts ...Option) *App {
	t.Helper()
	cfg := config.Default(root)
	if mutate != nil {
		mutate(&cfg)
	}
	app, err := New(cfg, append([]Option{WithLogger(logger.Discard())}, opts...)...)
	require.NoError(t, err)
	return app
}

func autoApply(cfg *config.Config) { cfg.AutoApply = true }

func confirmWith(ok bool) Option {
	return WithConfirmer(ConfirmFunc(func(*Run) (bool, error) { return ok, nil }))
}

func readFile(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func lastStatus(t *testing.T, app *App) state.Status {
	t.Helper()
	runs := app.History()
	require.NotEmpty(t, runs)
	return runs[len(runs)-1].Status
}

func TestApply_CommitsEditWithBackup(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy, "other.txt": "untouched\n"})

	res, err := Apply(context.Background(), root, fixResponse, Options{Logger: logger.Discard()})
	require.NoError(t, err)

	assert.Equal(t, "def f():\n    return 2\n", readFile(t, root, "app.py"))
	assert.Equal(t, []string{"app.py"}, res.Summary.Modified)
	require.Len(t, res.Blocks, 1)
	assert.False(t, res.Blocks[0].HasError)
	assert.Contains(t, string(res.Patch), "-    return 1\n+    return 2\n")

	backups, err := os.ReadDir(filepath.Join(root, ".stagedit", "backups"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	backup := filepath.Join(root, ".stagedit", "backups", backups[0].Name())
	assert.Equal(t, appPy, readFile(t, backup, "app.py"))

	info, err := os.Stat(filepath.Join(root, ".stagedit", "restore.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100)
}

func TestApply_InvalidSyntaxLeavesTreeUntouched(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy})
	broken := "#### Edit `app.py` \"Break it\"\n" +
		"<<<< original\n" +
		"def f():\n" +
		">>>> modified\n" +
		"def f(:\n" +
		"====\n"

	_, err := Apply(context.Background(), root, broken, Options{Logger: logger.Discard()})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Syntax)
	assert.Equal(t, "app.py", verr.Syntax[0].File)
	assert.Equal(t, appPy, readFile(t, root, "app.py"))

	// The preview is kept for inspection.
	assert.Equal(t, "def f(:\n    return 1\n", readFile(t, verr.PreviewDir, "app.py"))
	require.NoError(t, os.RemoveAll(verr.PreviewDir))

	_, err = os.Stat(filepath.Join(root, ".stagedit", "backups"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "no backup is taken for a blocked run")
}

func TestApply_FailingTestsBlockCommit(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy})

	_, err := Apply(context.Background(), root, fixResponse, Options{
		TestCmd: "grep -q 'return 3' app.py",
		Logger:  logger.Discard(),
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotNil(t, verr.Tests)
	assert.Equal(t, 1, verr.Tests.ExitCode)
	assert.Contains(t, verr.Error(), "tests failed with exit code 1")
	assert.Equal(t, appPy, readFile(t, root, "app.py"))
	require.NoError(t, os.RemoveAll(verr.PreviewDir))
}

func TestApply_TestsRunInPreview(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy})

	_, err := Apply(context.Background(), root, fixResponse, Options{
		TestCmd: "grep -q 'return 2' app.py",
		Logger:  logger.Discard(),
	})
	require.NoError(t, err)
	assert.Contains(t, readFile(t, root, "app.py"), "return 2")
}

func TestApply_DryRun(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy})

	res, err := Apply(context.Background(), root, fixResponse, Options{DryRun: true, Logger: logger.Discard()})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py"}, res.Summary.Modified)
	assert.Equal(t, appPy, readFile(t, root, "app.py"))
}

func TestProcess_FailedBlockKeepsFileAndDebugArtifact(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy, "notes.txt": "a\nb\n"})
	response := "#### Edit `notes.txt` \"Missing anchor\"\n" +
		"<<<< original\n" +
		"zzz\n" +
		">>>> modified\n" +
		"yyy\n" +
		"====\n" +
		"#### Create `docs/new.md` \"Add docs\"\n" +
		"<<<< original\n" +
		">>>> modified\n" +
		"# New\n" +
		"====\n"

	app := newApp(t, root, autoApply)
	summary, err := app.Process(context.Background(), response)
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/new.md"}, summary.Created)
	assert.Equal(t, []string{"notes.txt"}, summary.Failed)
	assert.Equal(t, "a\nb\n", readFile(t, root, "notes.txt"))
	assert.Equal(t, "# New\n", readFile(t, root, "docs/new.md"))

	_, err = os.Stat(filepath.Join(root, "failed_debug_notes.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "debug artifacts are never committed")

	matches, err := filepath.Glob(filepath.Join(root, ".stagedit", "debug", "*", "failed_debug_notes.txt"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestProcess_DeclineKeepsResponseForReplay(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy})

	declining := newApp(t, root, nil, confirmWith(false))
	_, err := declining.Process(context.Background(), fixResponse)
	require.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, appPy, readFile(t, root, "app.py"))
	assert.Equal(t, state.StatusDeclined, lastStatus(t, declining))

	var shown *Run
	approving := newApp(t, root, nil, WithConfirmer(ConfirmFunc(func(r *Run) (bool, error) {
		shown = r
		return true, nil
	})))
	summary, err := approving.Replay(context.Background())
	require.NoError(t, err)

	require.NotNil(t, shown)
	assert.Equal(t, "Changed one line.", shown.Info)
	assert.Len(t, shown.Segments.Changes(), 1)
	assert.Equal(t, []string{"app.py"}, summary.Modified)
	assert.Contains(t, readFile(t, root, "app.py"), "return 2")
	assert.Equal(t, state.StatusApplied, lastStatus(t, approving))
}

func TestProcess_RequiresConfirmerWithoutAutoApply(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy})
	_, err := newApp(t, root, nil).Process(context.Background(), fixResponse)
	assert.ErrorContains(t, err, "no confirmer")
	assert.Equal(t, appPy, readFile(t, root, "app.py"))
}

func TestProcess_PanicBecomesDetailedError(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy})
	app := newApp(t, root, nil, WithConfirmer(ConfirmFunc(func(*Run) (bool, error) {
		panic("boom")
	})))

	_, err := app.Process(context.Background(), fixResponse)
	var derr *DetailedError
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, derr.Error(), "boom")
	assert.NotEmpty(t, derr.Stack)
}

func TestCommit_RefusesFilesChangedDuringRun(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy})
	app := newApp(t, root, autoApply)

	run, err := app.Prepare(context.Background(), fixResponse)
	require.NoError(t, err)
	require.NotNil(t, run.guard)

	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte("edited elsewhere\n"), 0o644))
	require.Eventually(t, func() bool {
		return len(run.guard.Modified([]string{"app.py"})) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = app.Commit(context.Background(), run)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "edited elsewhere\n", readFile(t, root, "app.py"))
	require.NoError(t, app.Decline(run))
}

func TestRequest_SendsPromptAndApplies(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy})

	var prompt string
	m := llm.ModelFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return fixResponse, nil
	})
	app := newApp(t, root, autoApply, WithModel(m))

	summary, err := app.Request(context.Background(), "make f return 2", []string{"app.py"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt, "make f return 2"))
	assert.Contains(t, prompt, "```app.py\n"+strings.TrimSuffix(appPy, "\n")+"\n```")
	assert.Equal(t, []string{"app.py"}, summary.Modified)

	_, err = app.Request(context.Background(), "x", []string{"missing.py"})
	assert.ErrorContains(t, err, "missing.py")
}

func TestRestore_PutsBackupBack(t *testing.T) {
	root := newTree(t, map[string]string{"app.py": appPy})
	app := newApp(t, root, autoApply)

	_, err := app.Process(context.Background(), fixResponse)
	require.NoError(t, err)
	require.Contains(t, readFile(t, root, "app.py"), "return 2")

	backup, err := app.Restore("")
	require.NoError(t, err)
	assert.Equal(t, ".stagedit", filepath.Base(filepath.Dir(filepath.Dir(backup))))
	assert.Equal(t, appPy, readFile(t, root, "app.py"))

	_, err = app.Restore("19700101_000000")
	assert.Error(t, err)
}

func TestRun_Blocked(t *testing.T) {
	assert.Nil(t, (&Run{}).Blocked())
	assert.Nil(t, (&Run{Tests: &validator.TestResult{}}).Blocked())

	run := &Run{
		SyntaxErrors: []validator.SyntaxError{{File: "a.go", Line: 1, Column: 1}},
		Tests:        &validator.TestResult{TimedOut: true, ExitCode: -1, Duration: 1500 * time.Millisecond},
		PreviewDir:   "/tmp/preview",
	}
	verr := run.Blocked()
	require.NotNil(t, verr)
	assert.Equal(t, "/tmp/preview", verr.PreviewDir)
	assert.Equal(t, "validation failed: 1 syntax error(s), tests timed out after 1.5s", verr.Error())
}

func TestApply_PathsOutsideTheTreeNeverLeaveThePreview(t *testing.T) {
	for _, dryRun := range []bool{true, false} {
		root := newTree(t, map[string]string{"app.py": appPy})
		// The preview is created directly under the temp dir, so this climbs
		// from the preview back into the live tree.
		rel, err := filepath.Rel(os.TempDir(), root)
		require.NoError(t, err)
		up := "../" + filepath.ToSlash(rel)

		response := "#### Create `" + up + "/pwned.txt` \"Escape\"\n" +
			"<<<< original\n" +
			">>>> modified\n" +
			"hello\n" +
			"====\n" +
			"#### Delete `" + up + "/app.py` \"Escape\"\n" +
			"#### Move `" + up + "/app.py` to `moved.py` \"Escape\"\n" +
			"#### Move `app.py` to `../outside.py` \"Escape\"\n"

		res, err := Apply(context.Background(), root, response, Options{DryRun: dryRun, Logger: logger.Discard()})
		require.NoError(t, err)

		require.Len(t, res.Blocks, 4)
		for _, b := range res.Blocks {
			assert.True(t, b.HasError, "block %d", b.BlockID)
		}
		assert.NoFileExists(t, filepath.Join(root, "pwned.txt"))
		assert.NoFileExists(t, filepath.Join(root, "moved.py"))
		assert.NoFileExists(t, filepath.Join(filepath.Dir(root), "outside.py"))
		assert.Equal(t, appPy, readFile(t, root, "app.py"))
	}
}

func TestProcess_MoveWithFailedEditCommitsNeitherPath(t *testing.T) {
	root := newTree(t, map[string]string{"a.txt": "one\n"})
	response := "#### Move `a.txt` to `b.txt` \"Rename\"\n" +
		"#### Edit `b.txt` \"Missing anchor\"\n" +
		"<<<< original\n" +
		"zzz\n" +
		">>>> modified\n" +
		"yyy\n" +
		"====\n"

	app := newApp(t, root, autoApply)
	summary, err := app.Process(context.Background(), response)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt"}, summary.Failed)
	assert.Empty(t, summary.Renamed)
	assert.Equal(t, "one\n", readFile(t, root, "a.txt"))
	assert.NoFileExists(t, filepath.Join(root, "b.txt"))
}
