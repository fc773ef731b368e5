// Package applier executes parsed edit instructions against a file tree, one
// target file at a time, and records an AppliedBlock for every instruction.
package applier

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/sokinpui/stagedit/internal/finder"
	"github.com/sokinpui/stagedit/model"
)

var (
	// ErrAlreadyApplied is returned by a second Apply without Reset.
	ErrAlreadyApplied = errors.New("edits already applied, call Reset first")
	// ErrMissingFile is recorded on blocks that need an existing file.
	ErrMissingFile = errors.New("file does not exist")
)

// Option configures an Applier.
type Option func(*Applier)

// WithStore replaces the on-disk store rooted at the target directory.
func WithStore(s Store) Option {
	return func(a *Applier) { a.store = s }
}

// WithEvents sets the diagnostics sink.
func WithEvents(sink EventSink) Option {
	return func(a *Applier) { a.events = sink }
}

type cached struct {
	lines   []string
	removed bool
}

// Applier holds the per-run edit state. It is not safe for concurrent use.
type Applier struct {
	store   Store
	events  EventSink
	metrics *metrics

	edits   []model.CodeChange
	blocks  model.AppliedBlocks
	applied bool

	current     string
	open        bool
	buffer      []string
	dirty       bool
	deleted     bool
	cache       map[string]cached
	lastChanged int
}

// New creates an Applier that mutates the tree rooted at dir.
func New(dir string, opts ...Option) *Applier {
	a := &Applier{
		store:   DirStore{Root: dir},
		events:  NopSink{},
		metrics: newMetrics(),
		cache:   make(map[string]cached),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddEdit queues one instruction.
func (a *Applier) AddEdit(change model.CodeChange) {
	a.edits = append(a.edits, change)
}

// Reset drops queued instructions and all per-run state.
func (a *Applier) Reset() {
	a.edits = nil
	a.blocks = nil
	a.applied = false
	a.current = ""
	a.open = false
	a.buffer = nil
	a.dirty = false
	a.deleted = false
	a.cache = make(map[string]cached)
	a.lastChanged = 0
}

// Apply runs every queued instruction in order. Failures of single
// instructions, including a buffer that could not be written back, are
// recorded on their blocks and never stop the run.
func (a *Applier) Apply() (model.AppliedBlocks, error) {
	if a.applied {
		return nil, ErrAlreadyApplied
	}
	a.applied = true

	for _, change := range a.edits {
		block := a.applyOne(change)
		a.metrics.block(block.Type, !block.HasError)
		if block.HasError {
			a.events.Emit(Event{
				Kind:    BlockFailed,
				File:    block.Filename,
				NewFile: block.NewFilename,
				BlockID: block.BlockID,
				Type:    block.Type,
				Err:     errors.New(block.ErrorMessage),
			})
		} else {
			a.events.Emit(Event{
				Kind:    BlockApplied,
				File:    block.Filename,
				NewFile: block.NewFilename,
				BlockID: block.BlockID,
				Type:    block.Type,
				Lines:   block.LinesChanged,
			})
		}
		a.blocks = append(a.blocks, block)
	}

	a.release()
	return a.blocks, nil
}

func (a *Applier) applyOne(change model.CodeChange) model.AppliedBlock {
	block := model.AppliedBlock{
		Filename:        change.Filename,
		Type:            change.Type,
		Reason:          change.Reason,
		OriginalContent: change.Original,
		ModifiedContent: change.Modified,
		NewFilename:     change.NewFilename,
		BlockID:         change.BlockID,
	}

	err := checkNames(change)
	if err == nil {
		switch change.Type {
		case model.Move:
			err = a.move(change, &block)
		case model.Create:
			err = a.create(change, &block)
		case model.Delete:
			err = a.remove(change, &block)
		case model.Edit:
			err = a.edit(change, &block)
		case model.Clean:
			err = a.clean(change, &block)
		default:
			err = fmt.Errorf("unsupported edit type %s", change.Type)
		}
	}

	if err != nil {
		block.HasError = true
		block.ErrorMessage = err.Error()
		block.RangeStart = a.lastChanged
		block.RangeEnd = a.lastChanged
		block.LinesChanged = 0
	}
	return block
}

func checkNames(change model.CodeChange) error {
	if err := CheckName(change.Filename); err != nil {
		return err
	}
	if change.Type == model.Move && change.NewFilename != "" {
		return CheckName(change.NewFilename)
	}
	return nil
}

func (a *Applier) move(change model.CodeChange, block *model.AppliedBlock) error {
	block.OriginalContent = nil
	block.ModifiedContent = nil
	if change.NewFilename == "" {
		return errors.New("move without a destination")
	}
	a.release()

	src, dst := change.Filename, change.NewFilename
	if c, ok := a.cache[src]; (ok && c.removed) || !a.store.Exists(src) {
		return fmt.Errorf("cannot move %s: %w", src, ErrMissingFile)
	}
	if err := a.store.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to %s: %w", src, dst, err)
	}

	if c, ok := a.cache[src]; ok {
		a.cache[dst] = c
	} else {
		delete(a.cache, dst)
	}
	a.cache[src] = cached{removed: true}
	a.events.Emit(Event{Kind: FileMoved, File: src, NewFile: dst, BlockID: change.BlockID, Type: change.Type})
	return nil
}

func (a *Applier) create(change model.CodeChange, block *model.AppliedBlock) error {
	if err := a.switchTo(change.Filename, false); err != nil {
		return err
	}
	a.buffer = append([]string(nil), change.Modified...)
	a.deleted = false
	a.dirty = true

	block.OriginalContent = nil
	block.RangeStart = 1
	block.RangeEnd = max(len(change.Modified), 1)
	block.LinesChanged = len(change.Modified)
	a.lastChanged = len(change.Modified)
	return a.release()
}

func (a *Applier) remove(change model.CodeChange, block *model.AppliedBlock) error {
	if err := a.switchTo(change.Filename, true); err != nil {
		return err
	}
	prior := a.buffer
	a.buffer = nil
	a.deleted = true
	a.dirty = true

	block.OriginalContent = prior
	block.ModifiedContent = nil
	block.RangeStart = 1
	block.RangeEnd = max(len(prior), 1)
	block.LinesChanged = len(prior)
	a.lastChanged = 0
	return a.release()
}

func (a *Applier) edit(change model.CodeChange, block *model.AppliedBlock) error {
	if err := a.switchTo(change.Filename, true); err != nil {
		return err
	}

	if len(change.Original) == 0 {
		start := len(a.buffer) + 1
		a.buffer = append(a.buffer, change.Modified...)
		a.dirty = true
		block.RangeStart = start
		block.RangeEnd = max(start+len(change.Modified)-1, start)
		block.LinesChanged = len(change.Modified)
		a.lastChanged = len(a.buffer)
		return nil
	}

	m, err := a.locate(change, change.Original, 0)
	if err != nil {
		return err
	}

	modified := shiftIndent(change.Modified, a.buffer[m.Start:m.End], change.Original)
	a.buffer = splice(a.buffer, m.Start, m.End, modified)
	a.dirty = true

	block.ModifiedContent = modified
	block.RangeStart = m.Start + 1
	block.RangeEnd = m.End
	block.LinesChanged = max(len(change.Original), len(change.Modified))
	a.lastChanged = m.Start + len(modified)
	return nil
}

// clean removes the original block. When the modified snippet is found right
// after it, the removal extends through the end of that snippet; otherwise
// only the original block goes.
func (a *Applier) clean(change model.CodeChange, block *model.AppliedBlock) error {
	if err := a.switchTo(change.Filename, true); err != nil {
		return err
	}

	m, err := a.locate(change, change.Original, 0)
	if err != nil {
		return err
	}
	end := m.End
	if len(change.Modified) > 0 {
		if next, err := finder.Locate(a.buffer, change.Modified, m.End); err == nil {
			end = next.End
		}
	}

	removed := append([]string(nil), a.buffer[m.Start:end]...)
	a.buffer = splice(a.buffer, m.Start, end, nil)
	a.dirty = true

	block.OriginalContent = removed
	block.ModifiedContent = nil
	block.RangeStart = m.Start + 1
	block.RangeEnd = end
	block.LinesChanged = len(removed)
	a.lastChanged = m.Start
	return nil
}

// locate finds target in the current buffer. On failure the debug artifact is
// written next to the tree root.
func (a *Applier) locate(change model.CodeChange, target []string, start int) (finder.Match, error) {
	m, err := finder.Locate(a.buffer, target, start)
	if err == nil {
		a.metrics.located(m.Strategy.String())
		return m, nil
	}

	report := finder.DebugReport{Find: target, Original: a.buffer, Err: err.Error()}
	name := finder.DebugFileName(change.Filename)
	if werr := a.store.WriteFile(name, report.Encode()); werr != nil {
		a.events.Emit(Event{Kind: DebugWritten, File: name, BlockID: change.BlockID, Type: change.Type, Err: werr})
	} else {
		a.events.Emit(Event{Kind: DebugWritten, File: name, BlockID: change.BlockID, Type: change.Type, Err: err})
	}
	return finder.Match{}, fmt.Errorf("%s: %w", change.Filename, err)
}

// switchTo makes name the current buffer, flushing the previous one. With
// load set the content comes from the cache or, the first time, from the
// store.
func (a *Applier) switchTo(name string, load bool) error {
	if a.open && a.current == name {
		return nil
	}
	a.release()

	a.current = name
	a.buffer = nil
	a.dirty = false
	a.deleted = false
	a.lastChanged = 0

	if !load {
		a.open = true
		return nil
	}

	if c, ok := a.cache[name]; ok {
		if c.removed {
			a.current = ""
			return fmt.Errorf("%s: %w", name, ErrMissingFile)
		}
		a.buffer = append([]string(nil), c.lines...)
		a.open = true
		return nil
	}

	lines, err := a.store.ReadLines(name)
	if err != nil {
		a.current = ""
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", name, ErrMissingFile)
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}
	a.cache[name] = cached{lines: lines}
	a.buffer = append([]string(nil), lines...)
	a.open = true
	a.events.Emit(Event{Kind: FileLoaded, File: name, Lines: len(lines)})
	return nil
}

// release flushes the current buffer. When the write fails the edits made to
// the buffer never reach the store, so every successful block of that file is
// marked failed too and the file stays out of the commit.
func (a *Applier) release() error {
	name := a.current
	err := a.flush()
	if err != nil {
		a.failFile(name, err)
	}
	return err
}

func (a *Applier) failFile(name string, err error) {
	for i := range a.blocks {
		b := &a.blocks[i]
		if b.HasError || b.Filename != name || b.Type == model.Move {
			continue
		}
		b.HasError = true
		b.ErrorMessage = err.Error()
		b.LinesChanged = 0
		a.events.Emit(Event{Kind: BlockFailed, File: b.Filename, BlockID: b.BlockID, Type: b.Type, Err: err})
	}
}

// flush writes or removes the current buffer and closes it.
func (a *Applier) flush() error {
	if !a.open {
		return nil
	}
	name, lines, deleted, dirty := a.current, a.buffer, a.deleted, a.dirty
	a.open = false
	a.current = ""
	a.buffer = nil
	a.dirty = false
	a.deleted = false

	if !dirty {
		return nil
	}

	if deleted {
		if err := a.store.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", name, err)
		}
		a.cache[name] = cached{removed: true}
		a.events.Emit(Event{Kind: FileRemoved, File: name})
		return nil
	}

	if err := a.store.WriteLines(name, lines); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	a.cache[name] = cached{lines: lines}
	a.events.Emit(Event{Kind: FileFlushed, File: name, Lines: len(lines)})
	return nil
}

func splice(buffer []string, start, end int, insert []string) []string {
	out := make([]string, 0, len(buffer)-(end-start)+len(insert))
	out = append(out, buffer[:start]...)
	out = append(out, insert...)
	return append(out, buffer[end:]...)
}

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

func firstIndent(lines []string) (string, bool) {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return leadingWhitespace(l), true
		}
	}
	return "", false
}

// shiftIndent moves lines by the indentation difference between the block
// found in the file and the block the instruction quoted.
func shiftIndent(lines, matched, quoted []string) []string {
	have, ok := firstIndent(matched)
	if !ok {
		return lines
	}
	want, ok := firstIndent(quoted)
	if !ok {
		return lines
	}
	delta := len(have) - len(want)
	if delta == 0 {
		return lines
	}

	out := make([]string, len(lines))
	for i, l := range lines {
		switch {
		case strings.TrimSpace(l) == "":
			out[i] = l
		case delta > 0:
			out[i] = have[:delta] + l
		default:
			n := min(-delta, len(leadingWhitespace(l)))
			out[i] = l[n:]
		}
	}
	return out
}
