// Package config loads the per-project settings from
// <root>/.stagedit/config.yaml, applies environment overrides and validates
// the result. The resulting value is passed explicitly into every component.
package config

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMetaDir     = ".stagedit"
	DefaultTestTimeout = 5 * time.Minute
	DefaultModel       = "gpt-4o"
	fileName           = "config.yaml"
)

// Environment variables that override the file.
const (
	EnvTestCmd = "STAGEDIT_TEST_CMD"
	EnvModel   = "STAGEDIT_MODEL"
	EnvBaseURL = "STAGEDIT_BASE_URL"
	EnvAPIKey  = "OPENAI_API_KEY"
)

// Config is the complete configuration of one run.
type Config struct {
	Root        string        `yaml:"-" validate:"required"`
	MetaDir     string        `yaml:"meta_dir" validate:"required"`
	PreviewDir  string        `yaml:"preview_dir"`
	TestCmd     string        `yaml:"test_cmd"`
	TestTimeout time.Duration `yaml:"test_timeout" validate:"gt=0"`
	AutoApply   bool          `yaml:"auto_apply"`
	Debug       bool          `yaml:"debug"`
	Verbose     bool          `yaml:"verbose"`
	NoAnimation bool          `yaml:"no_animation"`
	Ignore      []string      `yaml:"ignore" validate:"dive,required"`
	Extensions  []string      `yaml:"extensions" validate:"dive,required"`
	Model       string        `yaml:"model" validate:"required"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey      string        `yaml:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when no file exists.
func Default(root string) Config {
	return Config{
		Root:        root,
		MetaDir:     DefaultMetaDir,
		TestTimeout: DefaultTestTimeout,
		Ignore:      []string{".git"},
		Model:       DefaultModel,
	}
}

// Path returns the config file location for root.
func Path(root string) string {
	return filepath.Join(root, DefaultMetaDir, fileName)
}

// Load reads path (or the default location under root when empty) over the
// defaults and applies environment overrides. A missing file is not an error.
func Load(path, root string) (Config, error) {
	return load(path, root, os.Getenv)
}

func load(path, root string, getenv func(string) string) (Config, error) {
	cfg := Default(root)
	if path == "" {
		path = Path(root)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, iofs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg.applyEnv(getenv)
	cfg.Extensions = NormalizeExtensions(cfg.Extensions)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvTestCmd); v != "" {
		c.TestCmd = v
	}
	if v := getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v := getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
}

// Validate checks the struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MetaPath returns the absolute metadata directory.
func (c Config) MetaPath() string {
	if filepath.IsAbs(c.MetaDir) {
		return c.MetaDir
	}
	return filepath.Join(c.Root, c.MetaDir)
}

// NormalizeExtensions trims entries and gives each a leading dot.
func NormalizeExtensions(exts []string) []string {
	var out []string
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
