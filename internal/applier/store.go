package applier

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store is the file tree the applier mutates. Names are slash separated and
// relative to the tree root.
type Store interface {
	ReadLines(name string) ([]string, error)
	WriteLines(name string, lines []string) error
	WriteFile(name string, data []byte) error
	Remove(name string) error
	Rename(from, to string) error
	Exists(name string) bool
}

// ErrUnsafePath is returned for names that are absolute or climb out of the
// tree root.
var ErrUnsafePath = errors.New("path escapes the tree root")

// CheckName rejects names that do not stay inside the tree root.
func CheckName(name string) error {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("%q: %w", name, ErrUnsafePath)
	}
	return nil
}

// SplitLines turns file content into a line buffer. CRLF is normalised to LF
// and a single trailing newline does not produce an empty last line.
func SplitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if content == "" {
		return []string{}
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// JoinLines is the inverse of SplitLines. An empty buffer is an empty file.
func JoinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// DirStore is a Store rooted at a directory on disk.
type DirStore struct {
	Root string
}

func (s DirStore) path(name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.Root, filepath.FromSlash(name)), nil
}

func (s DirStore) ReadLines(name string) ([]string, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return SplitLines(string(data)), nil
}

func (s DirStore) WriteLines(name string, lines []string) error {
	return s.WriteFile(name, []byte(JoinLines(lines)))
}

func (s DirStore) WriteFile(name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", name, err)
	}
	return os.WriteFile(p, data, 0o644)
}

func (s DirStore) Remove(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

func (s DirStore) Rename(from, to string) error {
	src, err := s.path(from)
	if err != nil {
		return err
	}
	dst, err := s.path(to)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", to, err)
	}
	return os.Rename(src, dst)
}

func (s DirStore) Exists(name string) bool {
	p, err := s.path(name)
	if err != nil {
		return false
	}
	_, err = os.Lstat(p)
	return err == nil
}

// MemStore keeps files in memory. The zero value is not usable, use
// NewMemStore.
type MemStore struct {
	mu    sync.Mutex
	files map[string]string
	reads map[string]int
}

// NewMemStore returns a store holding a copy of files.
func NewMemStore(files map[string]string) *MemStore {
	s := &MemStore{files: make(map[string]string), reads: make(map[string]int)}
	for name, content := range files {
		s.files[name] = content
	}
	return s
}

func (s *MemStore) ReadLines(name string) ([]string, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	s.reads[name]++
	return SplitLines(content), nil
}

func (s *MemStore) WriteLines(name string, lines []string) error {
	return s.WriteFile(name, []byte(JoinLines(lines)))
}

func (s *MemStore) WriteFile(name string, data []byte) error {
	if err := CheckName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = string(data)
	return nil
}

func (s *MemStore) Remove(name string) error {
	if err := CheckName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(s.files, name)
	return nil
}

func (s *MemStore) Rename(from, to string) error {
	if err := CheckName(from); err != nil {
		return err
	}
	if err := CheckName(to); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[from]
	if !ok {
		return &fs.PathError{Op: "rename", Path: from, Err: fs.ErrNotExist}
	}
	delete(s.files, from)
	s.files[to] = content
	return nil
}

func (s *MemStore) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[name]
	return ok
}

// Content returns the current content of name.
func (s *MemStore) Content(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[name]
	return content, ok
}

// Names returns the sorted file names in the store.
func (s *MemStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reads reports how many times name was read.
func (s *MemStore) Reads(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[name]
}
