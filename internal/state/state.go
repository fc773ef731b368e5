package state

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sokinpui/stagedit/internal/fs"
	"github.com/sokinpui/stagedit/model"
)

const (
	stateFileName    = "state.stagedit"
	historyDir       = "history"
	lastResponseFile = "last_response.txt"
	noHash           = "-"
)

// Status is the outcome of a run.
type Status string

const (
	StatusApplied  Status = "applied"
	StatusDeclined Status = "declined"
	StatusBlocked  Status = "blocked"
)

// Operation records what a committed run did to one path.
type Operation struct {
	Path        string
	Action      string
	ContentHash string // SHA256 of the file after the run, "-" when removed
	NewPath     string
}

// Run is one history entry.
type Run struct {
	ID         string
	Timestamp  int64
	Status     Status
	Operations []Operation
}

// Manager keeps the run history and saved responses in the metadata
// directory.
type Manager struct {
	dir       string
	statePath string
	runs      []Run
	now       func() time.Time
}

// New creates the metadata directory if needed and loads the history.
func New(metaDir string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Join(metaDir, historyDir), 0o755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	m := &Manager{
		dir:       metaDir,
		statePath: filepath.Join(metaDir, stateFileName),
		now:       time.Now,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil
		}
		return err
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")

		header := strings.Fields(lines[0])
		if len(header) != 3 {
			return fmt.Errorf("invalid state file: bad run header %q", lines[0])
		}
		ts, err := strconv.ParseInt(header[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid state file: could not parse timestamp from '%s': %w", header[1], err)
		}
		run := Run{ID: header[0], Timestamp: ts, Status: Status(header[2])}

		opLines := lines[1:]
		i := 0
		for i < len(opLines) {
			if i+3 > len(opLines) {
				return fmt.Errorf("invalid state file: incomplete operation record")
			}
			op := Operation{
				Action:      opLines[i],
				Path:        opLines[i+1],
				ContentHash: opLines[i+2],
			}
			i += 3
			if op.Action == model.Move.String() {
				if i >= len(opLines) {
					return fmt.Errorf("invalid state file: incomplete move operation record")
				}
				op.NewPath = opLines[i]
				i++
			}
			run.Operations = append(run.Operations, op)
		}
		m.runs = append(m.runs, run)
	}
	return nil
}

func (m *Manager) save() error {
	blocks := make([]string, 0, len(m.runs))
	for _, run := range m.runs {
		lines := []string{fmt.Sprintf("%s %d %s", run.ID, run.Timestamp, run.Status)}
		for _, op := range run.Operations {
			hash := op.ContentHash
			if hash == "" {
				hash = noHash
			}
			lines = append(lines, op.Action, op.Path, hash)
			if op.Action == model.Move.String() {
				lines = append(lines, op.NewPath)
			}
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	content := strings.Join(blocks, "\n\n") + "\n"
	if err := os.WriteFile(m.statePath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}

// Record appends a run to the history. A zero timestamp is set to now.
func (m *Manager) Record(run Run) error {
	if run.Timestamp == 0 {
		run.Timestamp = m.now().UTC().Unix()
	}
	m.runs = append(m.runs, run)
	return m.save()
}

// Runs returns the history, oldest first.
func (m *Manager) Runs() []Run {
	return append([]Run(nil), m.runs...)
}

// SaveResponse stores a raw model response under its run id and as the last
// response.
func (m *Manager) SaveResponse(id, response string) error {
	if err := os.WriteFile(filepath.Join(m.dir, historyDir, id+".txt"), []byte(response), 0o644); err != nil {
		return fmt.Errorf("saving response: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, lastResponseFile), []byte(response), 0o644); err != nil {
		return fmt.Errorf("saving last response: %w", err)
	}
	return nil
}

// LastResponse returns the most recently saved response.
func (m *Manager) LastResponse() (string, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, lastResponseFile))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return "", errors.New("no saved response to replay")
		}
		return "", err
	}
	return string(data), nil
}

// Response returns the response saved for run id.
func (m *Manager) Response(id string) (string, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, historyDir, id+".txt"))
	if err != nil {
		return "", fmt.Errorf("response for run %s: %w", id, err)
	}
	return string(data), nil
}

// CreateOperations turns the outcome of a committed run into history
// operations, hashing the files as they now are under root.
func CreateOperations(root string, cs model.ChangeSet) []Operation {
	var ops []Operation
	hash := func(rel string) string {
		h, err := fs.FileSHA256(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return noHash
		}
		return h
	}

	for _, p := range cs.Created {
		ops = append(ops, Operation{Path: p, Action: model.Create.String(), ContentHash: hash(p)})
	}
	for _, p := range cs.Modified {
		ops = append(ops, Operation{Path: p, Action: model.Edit.String(), ContentHash: hash(p)})
	}
	for _, p := range cs.Deleted {
		ops = append(ops, Operation{Path: p, Action: model.Delete.String(), ContentHash: noHash})
	}
	for _, mv := range cs.Moved {
		ops = append(ops, Operation{Path: mv.From, Action: model.Move.String(), ContentHash: hash(mv.To), NewPath: mv.To})
	}
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Path < ops[j].Path
	})
	return ops
}
