package nvim

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/neovim/go-client/nvim"
)

// AddressEnv names the variable holding the socket of a running Neovim.
const AddressEnv = "NVIM_LISTEN_ADDRESS"

// ErrNoInstance is returned by Connect when no Neovim address is set.
var ErrNoInstance = errors.New("no running neovim instance")

// Reloader refreshes editor buffers after files changed on disk.
type Reloader interface {
	Reload(paths []string) ([]string, error)
	Close() error
}

// session is the part of the Neovim API the manager drives.
type session interface {
	Buffers() ([]nvim.Buffer, error)
	BufferName(buffer nvim.Buffer) (string, error)
	Command(cmd string) error
	Close() error
}

// Manager handles the connection to a running Neovim instance.
type Manager struct {
	nvim   session
	logger *slog.Logger
}

// Connect dials the instance named by NVIM_LISTEN_ADDRESS.
func Connect(logger *slog.Logger) (*Manager, error) {
	addr := os.Getenv(AddressEnv)
	if addr == "" {
		return nil, ErrNoInstance
	}
	return Dial(addr, logger)
}

// Dial connects to the Neovim listening on addr.
func Dial(addr string, logger *slog.Logger) (*Manager, error) {
	v, err := nvim.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nvim at %s: %w", addr, err)
	}
	return newManager(v, logger), nil
}

func newManager(s session, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{nvim: s, logger: logger.With("component", "nvim")}
}

// Reload runs checktime on every open buffer whose file is in paths. Paths must
// be absolute. It returns the paths that had a buffer, sorted.
func (m *Manager) Reload(paths []string) ([]string, error) {
	wanted := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		wanted[filepath.Clean(p)] = struct{}{}
	}

	buffers, err := m.nvim.Buffers()
	if err != nil {
		return nil, fmt.Errorf("failed to list buffers: %w", err)
	}

	var reloaded []string
	var errs []error
	for _, b := range buffers {
		name, err := m.nvim.BufferName(b)
		if err != nil || name == "" {
			continue
		}
		if _, ok := wanted[filepath.Clean(name)]; !ok {
			continue
		}
		if err := m.nvim.Command(fmt.Sprintf("checktime %d", int(b))); err != nil {
			errs = append(errs, fmt.Errorf("checktime %s: %w", name, err))
			continue
		}
		m.logger.Debug("buffer reloaded", "path", name)
		reloaded = append(reloaded, name)
	}
	sort.Strings(reloaded)
	return reloaded, errors.Join(errs...)
}

// Close disconnects from Neovim.
func (m *Manager) Close() error {
	if m.nvim == nil {
		return nil
	}
	return m.nvim.Close()
}
