package stagedit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sokinpui/stagedit/internal/fs"
	"github.com/sokinpui/stagedit/internal/llm"
	"github.com/sokinpui/stagedit/internal/workspace"
	"github.com/sokinpui/stagedit/model"
)

// Request asks the language model for changes to files and processes its
// answer. Files are resolved against the tree root.
func (a *App) Request(ctx context.Context, request string, files []string) (model.Summary, error) {
	response, err := a.Ask(ctx, request, files)
	if err != nil {
		return model.Summary{}, err
	}
	return a.Process(ctx, response)
}

// Ask sends the change prompt for request and files to the model and returns
// the raw response without staging it.
func (a *App) Ask(ctx context.Context, request string, files []string) (string, error) {
	resolver, err := fs.NewPathResolver([]string{a.cfg.Root})
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs(a.cfg.Root)
	if err != nil {
		return "", err
	}

	sources := make([]llm.File, 0, len(files))
	for _, f := range files {
		path := resolver.ResolveExisting(f)
		if path == "" {
			return "", fmt.Errorf("context file not found: %s", f)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", f, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = f
		}
		sources = append(sources, llm.File{Path: filepath.ToSlash(rel), Content: string(data)})
	}

	prompt, err := llm.BuildChangePrompt(request, sources)
	if err != nil {
		return "", err
	}

	m, err := a.languageModel()
	if err != nil {
		return "", err
	}
	a.logger.Info("requesting changes", "files", len(sources), "model", a.cfg.Model)
	return m.Send(ctx, prompt)
}

func (a *App) languageModel() (llm.Model, error) {
	if a.model != nil {
		return a.model, nil
	}
	m, err := llm.NewOpenAI(llm.Config{
		APIKey:  a.cfg.APIKey,
		Model:   a.cfg.Model,
		BaseURL: a.cfg.BaseURL,
		Logger:  a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.model = m
	return m, nil
}

// Replay processes the last saved response again.
func (a *App) Replay(ctx context.Context) (model.Summary, error) {
	response, err := a.history.LastResponse()
	if err != nil {
		return model.Summary{}, err
	}
	return a.Process(ctx, response)
}

// ReplayRun processes the response saved for run id again.
func (a *App) ReplayRun(ctx context.Context, id string) (model.Summary, error) {
	response, err := a.history.Response(id)
	if err != nil {
		return model.Summary{}, err
	}
	return a.Process(ctx, response)
}

// Restore copies a backup over the tree. An empty backup selects the newest
// one. It returns the backup used.
func (a *App) Restore(backup string) (string, error) {
	if backup == "" {
		latest, err := workspace.LatestBackup(a.cfg.MetaPath())
		if err != nil {
			return "", err
		}
		backup = latest
	} else if !filepath.IsAbs(backup) {
		if _, err := os.Stat(backup); errors.Is(err, os.ErrNotExist) {
			backup = filepath.Join(a.cfg.MetaPath(), "backups", backup)
		}
	}

	if err := workspace.Restore(a.cfg.Root, backup); err != nil {
		return backup, err
	}
	a.logger.Info("tree restored", "backup", backup)
	return backup, nil
}
