// Package finder locates a block of lines inside a file buffer. Matching is
// tried with progressively looser strategies so that snippets with drifted
// whitespace still resolve to the right place, while the strictest strategy
// that succeeds always wins.
package finder

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no strategy matches the target block.
	ErrNotFound = errors.New("code block not found in the file")
	// ErrInvalidStart is returned for a start offset outside the buffer.
	ErrInvalidStart = errors.New("invalid start position")
	// ErrEmptyTarget is returned when there is nothing to look for.
	ErrEmptyTarget = errors.New("empty search block")
)

// Strategy names the comparison that produced a match.
type Strategy int

const (
	Exact Strategy = iota
	IndentNormalized
	Stripped
)

func (s Strategy) String() string {
	switch s {
	case Exact:
		return "exact"
	case IndentNormalized:
		return "indent"
	case Stripped:
		return "stripped"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Match is a half-open line interval [Start, End) found in a buffer.
type Match struct {
	Start    int
	End      int
	Strategy Strategy
}

type lineEqual func(have, want string) bool

var strategies = []struct {
	kind  Strategy
	equal lineEqual
}{
	{Exact, func(have, want string) bool { return have == want }},
	{IndentNormalized, func(have, want string) bool {
		h, w := strings.TrimLeft(have, " \t"), strings.TrimLeft(want, " \t")
		return len(have)-len(h) == len(want)-len(w) && h == w
	}},
	{Stripped, func(have, want string) bool {
		return strings.TrimSpace(have) == strings.TrimSpace(want)
	}},
}

// FindRange returns the half-open interval of the first occurrence of target in
// lines at or after start.
func FindRange(lines, target []string, start int) (int, int, error) {
	m, err := Locate(lines, target, start)
	if err != nil {
		return 0, 0, err
	}
	return m.Start, m.End, nil
}

// Locate is FindRange that also reports which strategy matched.
func Locate(lines, target []string, start int) (Match, error) {
	if len(target) == 0 {
		return Match{}, ErrEmptyTarget
	}
	if start < 0 || start > len(lines) {
		return Match{}, fmt.Errorf("%w: %d (buffer has %d lines)", ErrInvalidStart, start, len(lines))
	}

	for _, s := range strategies {
		if i := scan(lines, target, start, s.equal); i >= 0 {
			return Match{Start: i, End: i + len(target), Strategy: s.kind}, nil
		}
	}
	return Match{}, ErrNotFound
}

func scan(lines, target []string, start int, equal lineEqual) int {
	for i := start; i+len(target) <= len(lines); i++ {
		matched := true
		for j, want := range target {
			if !equal(lines[i+j], want) {
				matched = false
				break
			}
		}
		if matched {
			return i
		}
	}
	return -1
}
