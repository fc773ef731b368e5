package applier

import (
	"log/slog"
	"sync"

	"github.com/sokinpui/stagedit/model"
)

// EventKind identifies what happened during an apply run.
type EventKind int

const (
	FileLoaded EventKind = iota
	FileFlushed
	FileRemoved
	FileMoved
	BlockApplied
	BlockFailed
	DebugWritten
)

func (k EventKind) String() string {
	switch k {
	case FileLoaded:
		return "file_loaded"
	case FileFlushed:
		return "file_flushed"
	case FileRemoved:
		return "file_removed"
	case FileMoved:
		return "file_moved"
	case BlockApplied:
		return "block_applied"
	case BlockFailed:
		return "block_failed"
	case DebugWritten:
		return "debug_written"
	default:
		return "unknown"
	}
}

// Event is a single diagnostic emitted by the applier.
type Event struct {
	Kind     EventKind
	File     string
	NewFile  string
	BlockID  int
	Type     model.EditType
	Strategy string
	Lines    int
	Err      error
}

// EventSink receives every diagnostic the applier produces. The applier never
// prints or logs on its own.
type EventSink interface {
	Emit(Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// MultiSink forwards every event to each sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// LogSink writes events to a structured logger. Failures are logged at warn
// level, everything else at debug.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"event", e.Kind.String(), "file", e.File}
	if e.NewFile != "" {
		attrs = append(attrs, "new_file", e.NewFile)
	}
	if e.BlockID != 0 {
		attrs = append(attrs, "block", e.BlockID, "type", e.Type.String())
	}
	if e.Strategy != "" {
		attrs = append(attrs, "strategy", e.Strategy)
	}
	if e.Lines != 0 {
		attrs = append(attrs, "lines", e.Lines)
	}

	switch e.Kind {
	case BlockFailed, DebugWritten:
		if e.Err != nil {
			attrs = append(attrs, "error", e.Err)
		}
		logger.Warn("apply", attrs...)
	default:
		logger.Debug("apply", attrs...)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Of returns the recorded events of one kind.
func (r *Recorder) Of(kind EventKind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
