package workspace

import (
	"fmt"
	iofs "io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Guard watches the live tree while a run is pending so that commit does not
// overwrite files someone else changed in the meantime.
type Guard struct {
	root    string
	skip    func(string, iofs.DirEntry) bool
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu      sync.Mutex
	changed map[string]struct{}
	done    chan struct{}
}

// Watch starts a Guard over every directory of the live tree except the
// metadata directory and ignored paths.
func (w *Workspace) Watch() (*Guard, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	g := &Guard{
		root:    w.root,
		skip:    w.skip,
		watcher: watcher,
		logger:  w.logger.With("component", "guard"),
		changed: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	if err := g.addTree(w.root); err != nil {
		watcher.Close()
		return nil, err
	}
	go g.run()
	return g, nil
}

func (g *Guard) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(g.root, path); rel != "." && g.skip(filepath.ToSlash(rel), d) {
			return filepath.SkipDir
		}
		if err := g.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (g *Guard) run() {
	defer close(g.done)
	for {
		select {
		case event, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(g.root, event.Name)
			if err != nil {
				continue
			}
			g.mu.Lock()
			g.changed[filepath.ToSlash(rel)] = struct{}{}
			g.mu.Unlock()
			if event.Has(fsnotify.Create) {
				// New directories need their own watch.
				_ = g.addTree(event.Name)
			}
		case err, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			g.logger.Warn("watch error", "error", err)
		}
	}
}

// Modified returns the subset of paths changed on disk since Watch.
func (g *Guard) Modified(paths []string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, p := range paths {
		if _, ok := g.changed[p]; ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Close stops watching.
func (g *Guard) Close() error {
	err := g.watcher.Close()
	<-g.done
	return err
}
