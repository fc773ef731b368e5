package validator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestValidateFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"ok.go":       "package main\n\nfunc main() {}\n",
		"ok.py":       "def f():\n    return 1\n",
		"bad.py":      "def f(:\n    return 1\n",
		"notes.txt":   "def f(:",
		"src/ok.ts":   "export const x: number = 1;\n",
		"src/view.js": "function f() { return 1; }\n",
	})

	v := New(Config{Dir: dir})
	errs, err := v.ValidateFiles(context.Background(),
		[]string{"ok.go", "ok.py", "bad.py", "notes.txt", "src/ok.ts", "src/view.js", "deleted.go"})
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.Equal(t, "bad.py", e.File)
	}
	assert.Equal(t, 1, errs[0].Line)
	assert.Equal(t, "def f(:", errs[0].Source)
}

func TestSyntaxError_Render(t *testing.T) {
	e := SyntaxError{
		File:    "pkg/a.py",
		Line:    3,
		Column:  9,
		Source:  "\tif x ==:",
		Message: `unexpected ":"`,
	}
	want := "Syntax error at pkg/a.py:3:9\n" +
		"\tif x ==:\n" +
		"\t       ^\n" +
		`Error: unexpected ":"`
	assert.Equal(t, want, e.Error())
}

func TestCheckSource_ReportsMissingToken(t *testing.T) {
	src := []byte("package main\n\nfunc main() {\n\tx := []int{1, 2\n}\n")
	errs, err := CheckSource(context.Background(), "main.go", Language("main.go"), src)
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.GreaterOrEqual(t, errs[0].Line, 4)
	assert.Positive(t, errs[0].Column)
}

func TestLanguage(t *testing.T) {
	for _, name := range []string{"a.go", "a.py", "a.jsx", "a.mjs", "a.ts", "a.tsx", "a.rs", "a.sh", "A.PY"} {
		assert.NotNil(t, Language(name), name)
	}
	for _, name := range []string{"a.txt", "Makefile", "a.md"} {
		assert.Nil(t, Language(name), name)
	}
}

func TestRunTests(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"marker": "here\n"})

	tests := []struct {
		name     string
		command  string
		timeout  time.Duration
		passed   bool
		exitCode int
		timedOut bool
		stdout   string
	}{
		{name: "passes in the directory", command: "cat marker", passed: true, stdout: "here\n"},
		{name: "non-zero exit", command: "echo boom >&2; exit 3", exitCode: 3},
		{name: "timeout", command: "sleep 5", timeout: 100 * time.Millisecond, exitCode: -1, timedOut: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(Config{Dir: dir, TestCommand: tt.command, TestTimeout: tt.timeout})
			result, err := v.RunTests(context.Background())
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, tt.passed, result.Passed())
			assert.Equal(t, tt.exitCode, result.ExitCode)
			assert.Equal(t, tt.timedOut, result.TimedOut)
			if tt.stdout != "" {
				assert.Equal(t, tt.stdout, result.Stdout)
			}
		})
	}
}

func TestRunTests_NoCommand(t *testing.T) {
	result, err := New(Config{Dir: t.TempDir()}).RunTests(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.False(t, result.Passed())
}

func TestLimitedWriter(t *testing.T) {
	var buf []byte
	w := &limitedWriter{w: writerFunc(func(p []byte) (int, error) {
		buf = append(buf, p...)
		return len(p), nil
	}), limit: 4}

	n, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = w.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(buf))
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
