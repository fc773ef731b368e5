package model

import (
	"fmt"
	"strings"
)

// EditType is the kind of file-level operation an instruction describes.
type EditType int

const (
	Create EditType = iota + 1
	Edit
	Delete
	Clean
	Move
)

var editTypeNames = map[EditType]string{
	Create: "CREATE",
	Edit:   "EDIT",
	Delete: "DELETE",
	Clean:  "CLEAN",
	Move:   "MOVE",
}

func (t EditType) String() string {
	if name, ok := editTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EditType(%d)", int(t))
}

// ParseEditType maps a command keyword ("Edit", "create", ...) to its EditType.
func ParseEditType(keyword string) (EditType, error) {
	upper := strings.ToUpper(strings.TrimSpace(keyword))
	for t, name := range editTypeNames {
		if name == upper {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown edit type %q", keyword)
}

// CodeChange is one parsed instruction describing a file-level edit.
type CodeChange struct {
	Filename    string
	Reason      string
	Original    []string
	Modified    []string
	Type        EditType
	NewFilename string // Move only
	BlockID     int
}

// Segment is one element of parsed model output: either prose or a change.
type Segment struct {
	Prose  string
	Change *CodeChange
}

// IsChange reports whether the segment carries a CodeChange.
func (s Segment) IsChange() bool {
	return s.Change != nil
}

// Segments is the ordered parser output.
type Segments []Segment

// Changes returns the CodeChange elements in input order.
func (s Segments) Changes() []CodeChange {
	var changes []CodeChange
	for _, seg := range s {
		if seg.Change != nil {
			changes = append(changes, *seg.Change)
		}
	}
	return changes
}

// Summary holds the results of an operation for display.
type Summary struct {
	Created  []string
	Modified []string
	Renamed  []string
	Deleted  []string
	Failed   []string
	Message  string
}
