package stagedit

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sokinpui/stagedit/internal/config"
	"github.com/sokinpui/stagedit/internal/llm"
	"github.com/sokinpui/stagedit/internal/nvim"
	"github.com/sokinpui/stagedit/internal/parser"
	"github.com/sokinpui/stagedit/internal/state"
)

var (
	// ErrDeclined is returned when the staged changes were not confirmed. It
	// is not a failure: the response stays in the history for replay.
	ErrDeclined = errors.New("changes declined")
	// ErrConflict is returned when files about to be committed changed on
	// disk while the run was pending.
	ErrConflict = errors.New("files changed on disk during the run")
)

// Confirmer decides whether a prepared run is committed.
type Confirmer interface {
	Confirm(run *Run) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(run *Run) (bool, error)

func (f ConfirmFunc) Confirm(run *Run) (bool, error) { return f(run) }

// App orchestrates parsing, staging, validation and commit for one tree.
type App struct {
	cfg       config.Config
	logger    *slog.Logger
	parser    *parser.Parser
	history   *state.Manager
	confirmer Confirmer
	model     llm.Model
	reloader  nvim.Reloader
}

// Option configures an App.
type Option func(*App)

// WithConfirmer sets who approves runs when auto-apply is off.
func WithConfirmer(c Confirmer) Option {
	return func(a *App) { a.confirmer = c }
}

// WithModel sets the language model used by Request. Without it an OpenAI
// client is built from the configuration on first use.
func WithModel(m llm.Model) Option {
	return func(a *App) { a.model = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithReloader sets the editor whose buffers are refreshed after commit.
func WithReloader(r nvim.Reloader) Option {
	return func(a *App) { a.reloader = r }
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error { return e.Err }

// New creates an App for cfg.Root. The configuration is validated and the
// history in the metadata directory is opened.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.parser = parser.New(a.logger)

	history, err := state.New(cfg.MetaPath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	a.history = history
	return a, nil
}

// Config returns the configuration the App was built with.
func (a *App) Config() config.Config { return a.cfg }

// History returns the recorded runs, oldest first.
func (a *App) History() []state.Run { return a.history.Runs() }
