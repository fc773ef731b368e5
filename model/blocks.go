package model

import "sort"

// AppliedBlock is the audit record produced after attempting one CodeChange.
//
// RangeStart and RangeEnd are 1-based and inclusive, and refer to the buffer as it
// was right before this edit. For blocks with HasError set they only hold a
// best-effort position for diagnostics.
type AppliedBlock struct {
	Filename        string
	Type            EditType
	Reason          string
	OriginalContent []string
	ModifiedContent []string
	RangeStart      int
	RangeEnd        int
	HasError        bool
	ErrorMessage    string
	NewFilename     string
	BlockID         int
	LinesChanged    int
}

// LineDelta is the net number of lines the block added (negative when removed).
func (b AppliedBlock) LineDelta() int {
	return len(b.ModifiedContent) - len(b.OriginalContent)
}

// AppliedBlocks is the ordered collection returned by one apply run.
type AppliedBlocks []AppliedBlock

// SummaryRow is one line of the tabular changes summary.
type SummaryRow struct {
	BlockID   int
	File      string
	Operation string
	LineDelta int
	Reason    string
	OK        bool
	Error     string
}

// Summary derives the display table for all blocks.
func (bs AppliedBlocks) Summary() []SummaryRow {
	rows := make([]SummaryRow, 0, len(bs))
	for _, b := range bs {
		file := b.Filename
		if b.Type == Move && b.NewFilename != "" {
			file = b.Filename + " -> " + b.NewFilename
		}
		rows = append(rows, SummaryRow{
			BlockID:   b.BlockID,
			File:      file,
			Operation: b.Type.String(),
			LineDelta: b.LineDelta(),
			Reason:    b.Reason,
			OK:        !b.HasError,
			Error:     b.ErrorMessage,
		})
	}
	return rows
}

// HasErrors reports whether any block failed.
func (bs AppliedBlocks) HasErrors() bool {
	for _, b := range bs {
		if b.HasError {
			return true
		}
	}
	return false
}

// FileMove is a successful rename.
type FileMove struct {
	From string
	To   string
}

// ChangeSet groups the paths affected by a run by what happened to them.
type ChangeSet struct {
	Created  []string
	Modified []string
	Deleted  []string
	Moved    []FileMove
	Failed   []string

	touched map[string]struct{}
}

// Touched returns the sorted set of paths that must be copied back or removed
// when committing. Paths with a failed block are never part of it.
func (cs ChangeSet) Touched() []string {
	paths := make([]string, 0, len(cs.touched))
	for p := range cs.touched {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ChangeSet derives the per-path outcome of the run. Each path is reported
// under its net effect: a file created and then deleted in the same run is in
// neither list, though it stays in the touched set. A path with a failed
// block is only listed in Failed; when either end of a move fails, both the
// source and the destination do.
func (bs AppliedBlocks) ChangeSet() ChangeSet {
	failed := make(map[string]struct{})
	for _, b := range bs {
		if b.HasError {
			failed[b.Filename] = struct{}{}
		}
	}
	// Both ends of a move fail together, also along chains of moves.
	for grew := true; grew; {
		grew = false
		for _, b := range bs {
			if b.HasError || b.Type != Move {
				continue
			}
			_, from := failed[b.Filename]
			_, to := failed[b.NewFilename]
			if from != to {
				failed[b.Filename] = struct{}{}
				failed[b.NewFilename] = struct{}{}
				grew = true
			}
		}
	}

	cs := ChangeSet{touched: make(map[string]struct{})}
	var order []string
	status := make(map[string]EditType)
	mark := func(path string, t EditType) {
		if _, ok := status[path]; !ok {
			order = append(order, path)
		}
		status[path] = t
	}

	for _, b := range bs {
		if b.HasError {
			continue
		}
		if _, bad := failed[b.Filename]; bad {
			continue
		}
		if _, bad := failed[b.NewFilename]; bad && b.Type == Move {
			continue
		}
		prev, known := status[b.Filename]
		switch b.Type {
		case Create:
			if known && prev == Delete {
				mark(b.Filename, Edit)
			} else {
				mark(b.Filename, Create)
			}
		case Edit, Clean:
			if !known || prev == Delete || prev == Move {
				mark(b.Filename, Edit)
			}
		case Delete:
			if known && prev == Create {
				status[b.Filename] = 0
			} else {
				mark(b.Filename, Delete)
			}
		case Move:
			cs.Moved = append(cs.Moved, FileMove{From: b.Filename, To: b.NewFilename})
			if known && prev == Create {
				status[b.Filename] = 0
				mark(b.NewFilename, Create)
			} else {
				mark(b.Filename, Move)
			}
			cs.touched[b.NewFilename] = struct{}{}
		}
		cs.touched[b.Filename] = struct{}{}
	}

	for _, path := range order {
		switch status[path] {
		case Create:
			cs.Created = append(cs.Created, path)
		case Edit:
			cs.Modified = append(cs.Modified, path)
		case Delete:
			cs.Deleted = append(cs.Deleted, path)
		}
	}
	for p := range failed {
		cs.Failed = append(cs.Failed, p)
	}
	sort.Strings(cs.Failed)
	return cs
}
