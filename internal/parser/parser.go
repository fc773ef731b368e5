package parser

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sokinpui/stagedit/model"
)

const (
	markerOriginal = "<<<< original"
	markerModified = ">>>> modified"
	markerEnd      = "===="
	fence          = "```"

	responseInfoMarker = "END_INSTRUCTIONS"
	infoPlaceholder    = "<Extra info about what was implemented/changed goes here>"
)

var (
	// commandRegex matches the single-path commands, e.g.
	// #### Edit `path/to/file.py` "Add new feature"
	commandRegex = regexp.MustCompile("^#### (Edit|Create|Delete|Clean) `([^`]+)` \"(.*)\"$")
	// moveRegex matches #### Move `src` to `dst` "reason".
	moveRegex = regexp.MustCompile("^#### Move `([^`]+)` to `([^`]+)` \"(.*)\"$")
)

// Parser splits model output into prose and CodeChange segments.
//
// Lines that look like commands but do not match the grammar exactly are kept
// as prose. Models routinely write near-miss syntax inside their narrative, so
// this is not an error.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With("component", "parser")}
}

// Parse parses text with a default Parser.
func Parse(text string) model.Segments {
	return New(nil).Parse(text)
}

type pendingChange struct {
	change    model.CodeChange
	startLine int
	current   []string
	original  []string
	hasOrig   bool
}

// Parse returns the ordered segments of text. Block ids start at 1 and count
// only CodeChange segments.
func (p *Parser) Parse(text string) model.Segments {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var (
		segments    model.Segments
		prose       []string
		pending     *pendingChange
		expectFence bool
	)
	nextID := 1

	flushProse := func() {
		if strings.TrimSpace(strings.Join(prose, "")) != "" {
			segments = append(segments, model.Segment{Prose: strings.Join(prose, "\n")})
		}
		prose = nil
	}
	emit := func(change model.CodeChange, from, to int) {
		change.BlockID = nextID
		nextID++
		p.logger.Debug("parsed block",
			"lines", [2]int{from, to},
			"type", change.Type.String(),
			"id", change.BlockID,
			"original", len(change.Original),
			"modified", len(change.Modified))
		segments = append(segments, model.Segment{Change: &change})
	}

	for i, line := range lines {
		if change, ok := parseCommand(line); ok {
			if pending != nil {
				p.logger.Warn("discarding unterminated block",
					"file", pending.change.Filename, "line", pending.startLine)
			}
			flushProse()
			pending = nil
			expectFence = false
			if takesNoBlock(change.Type) && !opensBlock(lines, i+1) {
				emit(change, i+1, i+1)
				continue
			}
			pending = &pendingChange{change: change, startLine: i + 1}
			continue
		}

		if pending == nil {
			prose = append(prose, line)
			continue
		}

		marker := strings.TrimRight(line, " \t")
		switch {
		case marker == markerOriginal:
			pending.current = nil
			expectFence = true
			continue
		case marker == markerModified:
			pending.original = pending.current
			pending.hasOrig = true
			pending.current = nil
			expectFence = true
			continue
		case marker == markerEnd:
			change := pending.change
			if pending.hasOrig {
				change.Original = pending.original
			}
			change.Modified = pending.current
			if takesNoBlock(change.Type) {
				change.Original, change.Modified = nil, nil
			}
			emit(change, pending.startLine, i+1)
			pending = nil
			expectFence = false
			continue
		}

		if strings.HasPrefix(strings.TrimSpace(line), fence) {
			if expectFence || closesSnippet(lines, i) {
				expectFence = false
				continue
			}
		}
		expectFence = false
		pending.current = append(pending.current, line)
	}

	if pending != nil {
		p.logger.Warn("discarding unterminated block at end of input",
			"file", pending.change.Filename, "line", pending.startLine)
	}
	flushProse()
	return segments
}

// closesSnippet reports whether the fence at lines[i] is the closing fence of
// a snippet, i.e. the next line is a block marker.
func closesSnippet(lines []string, i int) bool {
	if i+1 >= len(lines) {
		return false
	}
	next := strings.TrimRight(lines[i+1], " \t")
	return next == markerModified || next == markerEnd
}

// takesNoBlock reports whether a command is complete on its own line.
func takesNoBlock(t model.EditType) bool {
	return t == model.Delete || t == model.Move
}

// opensBlock reports whether the first non-blank line from lines[i] on is a
// block marker.
func opensBlock(lines []string, i int) bool {
	for ; i < len(lines); i++ {
		next := strings.TrimRight(lines[i], " \t")
		if next == "" {
			continue
		}
		return next == markerOriginal || next == markerEnd
	}
	return false
}

func parseCommand(line string) (model.CodeChange, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#### ") {
		return model.CodeChange{}, false
	}

	if m := moveRegex.FindStringSubmatch(trimmed); m != nil {
		return model.CodeChange{
			Filename:    m[1],
			NewFilename: m[2],
			Reason:      m[3],
			Type:        model.Move,
		}, true
	}

	m := commandRegex.FindStringSubmatch(trimmed)
	if m == nil {
		return model.CodeChange{}, false
	}
	editType, err := model.ParseEditType(m[1])
	if err != nil {
		return model.CodeChange{}, false
	}
	return model.CodeChange{
		Filename: m[2],
		Reason:   m[3],
		Type:     editType,
	}, true
}

// ExtractResponseInfo returns the free text a model writes after the
// END_INSTRUCTIONS marker, or "" when there is none.
func ExtractResponseInfo(response string) string {
	pos := strings.Index(response, responseInfoMarker)
	if pos == -1 {
		return ""
	}
	info := response[pos+len(responseInfoMarker):]
	info = strings.ReplaceAll(info, infoPlaceholder, "")
	return strings.TrimSpace(info)
}

// FilterByExtension drops changes whose file does not have one of the allowed
// extensions. An empty list keeps everything. Block ids are left untouched.
func FilterByExtension(segments model.Segments, extensions []string) model.Segments {
	if len(extensions) == 0 {
		return segments
	}
	filtered := make(model.Segments, 0, len(segments))
	for _, seg := range segments {
		if seg.Change == nil || hasAllowedExtension(seg.Change.Filename, extensions) {
			filtered = append(filtered, seg)
		}
	}
	return filtered
}

func hasAllowedExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, allowedExt := range extensions {
		if ext == allowedExt {
			return true
		}
	}
	return false
}
