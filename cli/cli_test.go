package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*Flags, *pflag.FlagSet) {
	t.Helper()
	f := &Flags{}
	fs := pflag.NewFlagSet("stagedit", pflag.ContinueOnError)
	BindGlobal(fs, f)
	BindRequest(fs, f)
	require.NoError(t, fs.Parse(args))
	return f, fs
}

func TestConfig_FlagsOverrideFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".stagedit"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".stagedit", "config.yaml"),
		[]byte("test_cmd: make test\nauto_apply: true\nextensions: [go]\n"), 0o644))

	f, fs := parse(t, "-C", root, "-e", "py,js", "--test-timeout", "30s", "-c", "a.py")
	cfg, err := f.Config(fs)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "make test", cfg.TestCmd)
	assert.True(t, cfg.AutoApply)
	assert.Equal(t, []string{".py", ".js"}, cfg.Extensions)
	assert.Equal(t, 30*time.Second, cfg.TestTimeout)
	assert.Equal(t, []string{"a.py"}, f.Context)
}

func TestConfig_UnsetFlagsKeepFileValues(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".stagedit"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".stagedit", "config.yaml"),
		[]byte("auto_apply: true\nno_animation: true\n"), 0o644))

	f, fs := parse(t, "--root", root)
	cfg, err := f.Config(fs)
	require.NoError(t, err)
	assert.True(t, cfg.AutoApply)
	assert.True(t, cfg.NoAnimation)

	f, fs = parse(t, "--root", root, "--yes=false")
	cfg, err = f.Config(fs)
	require.NoError(t, err)
	assert.False(t, cfg.AutoApply)
}

func TestConfig_RootMustExist(t *testing.T) {
	f, fs := parse(t, "--root", filepath.Join(t.TempDir(), "missing"))
	_, err := f.Config(fs)
	assert.ErrorContains(t, err, "not a directory")
}
