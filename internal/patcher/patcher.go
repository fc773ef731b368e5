package patcher

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/sokinpui/stagedit/model"
)

const devNull = "/dev/null"

// section is one file diff being built from consecutive edits on a file.
type section struct {
	fd *diff.FileDiff
	// offset is the net number of lines added by the hunks already in fd.
	offset int
	// next is the first line after the last hunk, in post-edit coordinates.
	next int
}

// Export renders the successful blocks as a unified diff.
//
// Block ranges refer to the buffer right before each edit. Edits on one file
// whose ranges ascend are folded into a single file diff, mapping each range
// back onto the original file with a running line offset. An edit that lands
// above an earlier one starts a new file diff, so the output must be applied
// in order.
func Export(blocks model.AppliedBlocks) ([]byte, error) {
	var diffs []*diff.FileDiff
	open := make(map[string]*section)

	for _, b := range blocks {
		if b.HasError {
			continue
		}
		switch b.Type {
		case model.Create:
			delete(open, b.Filename)
			diffs = append(diffs, created(b))
		case model.Delete:
			delete(open, b.Filename)
			diffs = append(diffs, deleted(b))
		case model.Move:
			delete(open, b.Filename)
			delete(open, b.NewFilename)
			diffs = append(diffs, moved(b))
		case model.Edit, model.Clean:
			s := open[b.Filename]
			if s == nil || b.RangeStart < s.next {
				s = &section{fd: fileDiff(b.Filename, b.Filename)}
				open[b.Filename] = s
				diffs = append(diffs, s.fd)
			}
			s.fd.Hunks = append(s.fd.Hunks, s.hunk(b))
		default:
			return nil, fmt.Errorf("block %d: unsupported edit type %s", b.BlockID, b.Type)
		}
	}

	if len(diffs) == 0 {
		return nil, nil
	}
	out, err := diff.PrintMultiFileDiff(diffs)
	if err != nil {
		return nil, fmt.Errorf("failed to render diff: %w", err)
	}
	return out, nil
}

func (s *section) hunk(b model.AppliedBlock) *diff.Hunk {
	removed, added := b.OriginalContent, b.ModifiedContent

	h := &diff.Hunk{
		OrigStartLine: int32(b.RangeStart - s.offset),
		OrigLines:     int32(len(removed)),
		NewStartLine:  int32(b.RangeStart),
		NewLines:      int32(len(added)),
		Section:       b.Reason,
		Body:          body(removed, added),
	}
	// A zero-length side names the line before the change.
	if len(removed) == 0 {
		h.OrigStartLine--
	}
	if len(added) == 0 {
		h.NewStartLine--
	}

	s.offset += len(added) - len(removed)
	s.next = b.RangeStart + len(added)
	return h
}

func created(b model.AppliedBlock) *diff.FileDiff {
	fd := fileDiff("", b.Filename)
	fd.Extended = append(fd.Extended, "new file mode 100644")
	if len(b.ModifiedContent) > 0 {
		fd.Hunks = []*diff.Hunk{{
			NewStartLine: 1,
			NewLines:     int32(len(b.ModifiedContent)),
			Body:         body(nil, b.ModifiedContent),
		}}
	}
	return fd
}

func deleted(b model.AppliedBlock) *diff.FileDiff {
	fd := fileDiff(b.Filename, "")
	fd.Extended = append(fd.Extended, "deleted file mode 100644")
	if len(b.OriginalContent) > 0 {
		fd.Hunks = []*diff.Hunk{{
			OrigStartLine: 1,
			OrigLines:     int32(len(b.OriginalContent)),
			Body:          body(b.OriginalContent, nil),
		}}
	}
	return fd
}

func moved(b model.AppliedBlock) *diff.FileDiff {
	fd := fileDiff(b.Filename, b.NewFilename)
	fd.Extended = append(fd.Extended,
		"similarity index 100%",
		"rename from "+b.Filename,
		"rename to "+b.NewFilename,
	)
	return fd
}

// fileDiff starts a file diff with a git header. Either name may be empty for
// a created or deleted file.
func fileDiff(orig, updated string) *diff.FileDiff {
	fd := &diff.FileDiff{OrigName: devNull, NewName: devNull}
	if orig != "" {
		fd.OrigName = "a/" + orig
	}
	if updated != "" {
		fd.NewName = "b/" + updated
	}
	from, to := orig, updated
	if from == "" {
		from = to
	}
	if to == "" {
		to = from
	}
	fd.Extended = []string{fmt.Sprintf("diff --git a/%s b/%s", from, to)}
	return fd
}

func body(removed, added []string) []byte {
	var b strings.Builder
	for _, l := range removed {
		b.WriteString("-" + l + "\n")
	}
	for _, l := range added {
		b.WriteString("+" + l + "\n")
	}
	return []byte(b.String())
}
