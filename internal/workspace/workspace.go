// Package workspace manages the copies of a target tree used by a run: the
// timestamped backup with its restore script, the scratch preview directory
// edits are applied to, and the selective copy-back on commit.
package workspace

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sokinpui/stagedit/internal/fs"
)

const (
	// DefaultMetaDir is the metadata directory kept inside the target tree.
	DefaultMetaDir = ".stagedit"
	backupsDir     = "backups"
	restoreScript  = "restore.sh"
	timeLayout     = "20060102_150405"
)

// Config describes one workspace.
type Config struct {
	Root string
	// MetaDir is relative to Root. Defaults to DefaultMetaDir.
	MetaDir string
	// PreviewDir is used instead of a temp dir when set.
	PreviewDir string
	// Ignore holds doublestar patterns, matched against slash separated paths
	// relative to Root, that are neither backed up nor previewed.
	Ignore []string
	Logger *slog.Logger
	Now    func() time.Time
}

// Workspace is the backup, preview and commit layer around one target tree.
type Workspace struct {
	root    string
	metaRel string
	meta    string
	ignore  []string
	preview string
	fixed   bool
	logger  *slog.Logger
	now     func() time.Time
}

// CommitResult lists the paths written to and removed from the live tree.
type CommitResult struct {
	Written []string
	Removed []string
}

// New validates cfg and returns a Workspace.
func New(cfg Config) (*Workspace, error) {
	if cfg.Root == "" {
		return nil, errors.New("workspace root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}

	metaRel := cfg.MetaDir
	if metaRel == "" {
		metaRel = DefaultMetaDir
	}
	for _, pattern := range cfg.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	w := &Workspace{
		root:    root,
		metaRel: filepath.ToSlash(filepath.Clean(metaRel)),
		meta:    filepath.Join(root, metaRel),
		ignore:  cfg.Ignore,
		logger:  logger.With("component", "workspace"),
		now:     now,
	}
	if cfg.PreviewDir != "" {
		w.preview, err = filepath.Abs(cfg.PreviewDir)
		if err != nil {
			return nil, fmt.Errorf("resolving preview directory: %w", err)
		}
		w.fixed = true
	}
	return w, nil
}

func (w *Workspace) Root() string       { return w.root }
func (w *Workspace) MetaDir() string    { return w.meta }
func (w *Workspace) BackupsDir() string { return filepath.Join(w.meta, backupsDir) }

// PreviewDir returns the preview directory, empty before SetupPreview.
func (w *Workspace) PreviewDir() string { return w.preview }

// RestoreScript returns the path of the generated restore script.
func (w *Workspace) RestoreScript() string { return filepath.Join(w.meta, restoreScript) }

func (w *Workspace) skip(rel string, _ iofs.DirEntry) bool {
	if rel == w.metaRel || strings.HasPrefix(rel, w.metaRel+"/") {
		return true
	}
	if w.preview != "" {
		if prel, err := filepath.Rel(w.root, w.preview); err == nil && filepath.ToSlash(prel) == rel {
			return true
		}
	}
	for _, pattern := range w.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// CreateBackup copies the tree into a new timestamped directory under the
// backups directory and rewrites the restore script. It returns the backup
// path.
func (w *Workspace) CreateBackup() (string, error) {
	base := filepath.Join(w.BackupsDir(), w.now().Format(timeLayout))
	dir := base
	for n := 1; ; n++ {
		if _, err := os.Lstat(dir); errors.Is(err, iofs.ErrNotExist) {
			break
		}
		dir = fmt.Sprintf("%s_%d", base, n)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	if err := fs.CopyTree(w.root, dir, w.skip); err != nil {
		return "", fmt.Errorf("copying tree to backup: %w", err)
	}
	if err := writeRestoreScript(w.RestoreScript(), w.root, w.BackupsDir(), dir); err != nil {
		return "", fmt.Errorf("writing restore script: %w", err)
	}

	w.logger.Info("backup created", "dir", dir)
	return dir, nil
}

// SetupPreview copies the tree into a fresh preview directory and returns it.
func (w *Workspace) SetupPreview() (string, error) {
	if w.fixed {
		if err := os.RemoveAll(w.preview); err != nil {
			return "", fmt.Errorf("clearing preview directory: %w", err)
		}
		if err := os.MkdirAll(w.preview, 0o755); err != nil {
			return "", fmt.Errorf("creating preview directory: %w", err)
		}
	} else {
		dir, err := os.MkdirTemp("", "stagedit-preview-")
		if err != nil {
			return "", fmt.Errorf("creating preview directory: %w", err)
		}
		w.preview = dir
	}

	if err := fs.CopyTree(w.root, w.preview, w.skip); err != nil {
		return "", fmt.Errorf("copying tree to preview: %w", err)
	}
	w.logger.Debug("preview ready", "dir", w.preview)
	return w.preview, nil
}

// Commit copies the given paths from the preview back into the live tree.
// Paths missing from the preview are removed from the live tree together with
// parent directories left empty.
func (w *Workspace) Commit(paths []string) (CommitResult, error) {
	var result CommitResult
	if w.preview == "" {
		return result, errors.New("no preview directory to commit from")
	}

	for _, rel := range paths {
		clean := filepath.Clean(filepath.FromSlash(rel))
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return result, fmt.Errorf("refusing to commit path outside the tree: %s", rel)
		}
		src := filepath.Join(w.preview, clean)
		dst := filepath.Join(w.root, clean)

		if _, err := os.Lstat(src); err == nil {
			if err := fs.CopyFile(src, dst); err != nil {
				return result, fmt.Errorf("committing %s: %w", rel, err)
			}
			result.Written = append(result.Written, rel)
			continue
		} else if !errors.Is(err, iofs.ErrNotExist) {
			return result, fmt.Errorf("committing %s: %w", rel, err)
		}

		if err := os.Remove(dst); err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				continue
			}
			return result, fmt.Errorf("removing %s: %w", rel, err)
		}
		fs.PruneEmptyParents(w.root, filepath.Dir(dst))
		result.Removed = append(result.Removed, rel)
	}

	w.logger.Info("changes committed", "written", len(result.Written), "removed", len(result.Removed))
	return result, nil
}

// Cleanup removes the preview directory.
func (w *Workspace) Cleanup() error {
	if w.preview == "" {
		return nil
	}
	err := os.RemoveAll(w.preview)
	if !w.fixed {
		w.preview = ""
	}
	return err
}

// LatestBackup returns the newest backup under metaDir.
func LatestBackup(metaDir string) (string, error) {
	dir := filepath.Join(metaDir, backupsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing backups: %w", err)
	}
	latest := ""
	for _, e := range entries {
		if e.IsDir() && e.Name() > latest {
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no backups in %s", dir)
	}
	return filepath.Join(dir, latest), nil
}

// Restore copies a backup over root. Files created after the backup are left
// in place, matching the restore script.
func Restore(root, backupDir string) error {
	info, err := os.Stat(backupDir)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup %s is not a directory", backupDir)
	}
	return fs.CopyTree(backupDir, root, nil)
}
