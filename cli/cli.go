package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/sokinpui/stagedit/internal/config"
)

// Flags holds all the command-line flag values.
type Flags struct {
	Root        string
	ConfigFile  string
	Debug       bool
	Verbose     bool
	NoAnimation bool

	File        string
	AutoApply   bool
	Patch       bool
	DryRun      bool
	TestCmd     string
	TestTimeout time.Duration
	PreviewDir  string
	Extensions  []string

	Context []string
}

// BindGlobal defines the flags every command accepts.
func BindGlobal(fs *pflag.FlagSet, f *Flags) {
	fs.StringVarP(&f.Root, "root", "C", ".", "Project root the instructions apply to.")
	fs.StringVar(&f.ConfigFile, "config", "", "Config file (default <root>/.stagedit/config.yaml).")
	fs.BoolVar(&f.Debug, "debug", false, "Log every parsed block and file operation.")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Log progress information.")
	fs.BoolVar(&f.NoAnimation, "no-animation", false, "Disable loading spinner.")
}

// BindApply defines the flags of commands that stage and commit a response.
func BindApply(fs *pflag.FlagSet, f *Flags) {
	fs.StringVarP(&f.File, "file", "f", "", "Read the response from a file ('-' for stdin). Defaults to piped stdin, then the clipboard.")
	fs.BoolVarP(&f.AutoApply, "yes", "y", false, "Commit without asking when validation passes.")
	fs.BoolVarP(&f.Patch, "patch", "p", false, "Print the staged changes as a unified diff on stdout.")
	fs.BoolVar(&f.DryRun, "dry-run", false, "Stage and validate only, never commit.")
	fs.StringVarP(&f.TestCmd, "test-cmd", "t", "", "Command run in the preview before commit.")
	fs.DurationVar(&f.TestTimeout, "test-timeout", 0, "Timeout for the test command.")
	fs.StringVar(&f.PreviewDir, "preview-dir", "", "Stage into this directory instead of a temp dir.")
	fs.StringSliceVarP(&f.Extensions, "extension", "e", []string{}, "Only apply instructions for these extensions (e.g., 'py', 'js').")
}

// BindRequest defines the flags of the request command.
func BindRequest(fs *pflag.FlagSet, f *Flags) {
	BindApply(fs, f)
	fs.StringSliceVarP(&f.Context, "context", "c", []string{}, "Files sent to the model with the request.")
}

// Config loads the configuration for the selected root and lays the flags
// that were set on fs over it.
func (f *Flags) Config(fs *pflag.FlagSet) (config.Config, error) {
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid root %q: %w", f.Root, err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return config.Config{}, fmt.Errorf("root %s is not a directory", root)
	}

	cfg, err := config.Load(f.ConfigFile, root)
	if err != nil {
		return cfg, err
	}

	changed := func(name string) bool {
		flag := fs.Lookup(name)
		return flag != nil && flag.Changed
	}
	if changed("debug") {
		cfg.Debug = f.Debug
	}
	if changed("verbose") {
		cfg.Verbose = f.Verbose
	}
	if changed("no-animation") {
		cfg.NoAnimation = f.NoAnimation
	}
	if changed("yes") {
		cfg.AutoApply = f.AutoApply
	}
	if changed("test-cmd") {
		cfg.TestCmd = f.TestCmd
	}
	if changed("test-timeout") {
		cfg.TestTimeout = f.TestTimeout
	}
	if changed("preview-dir") {
		cfg.PreviewDir = f.PreviewDir
	}
	if changed("extension") {
		cfg.Extensions = config.NormalizeExtensions(f.Extensions)
	}
	return cfg, cfg.Validate()
}
