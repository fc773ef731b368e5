package finder

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	sectionFind     = "FIND:"
	sectionOriginal = "ORIGINAL:"
	sectionError    = "ERROR:"
)

// DebugReport is the content of a failed_debug artifact: the block that could
// not be located, the buffer it was searched in and the error.
type DebugReport struct {
	Find     []string
	Original []string
	Err      string
}

// DebugFileName returns the artifact name used for a failed locate in filename.
func DebugFileName(filename string) string {
	if filename == "" {
		return "failed_debug.txt"
	}
	flat := strings.NewReplacer("/", "_", "\\", "_").Replace(filename)
	return "failed_debug_" + flat
}

// Encode renders the report in the FIND/ORIGINAL/ERROR section format.
func (r DebugReport) Encode() []byte {
	var b strings.Builder
	b.WriteString(sectionFind + "\n")
	b.WriteString(strings.Join(r.Find, "\n"))
	b.WriteString("\n\n" + sectionOriginal + "\n")
	b.WriteString(strings.Join(r.Original, "\n"))
	b.WriteString("\n\n" + sectionError + "\n")
	b.WriteString(r.Err)
	b.WriteString("\n")
	return []byte(b.String())
}

// ParseDebugReport reads a report written by Encode. Blank lines at the start
// and end of each section are dropped, blank lines inside are kept.
func ParseDebugReport(r io.Reader) (DebugReport, error) {
	sections := make(map[string][]string)
	current := ""

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		switch line {
		case sectionFind, sectionOriginal, sectionError:
			current = line
			sections[current] = []string{}
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], line)
		}
	}
	if err := scanner.Err(); err != nil {
		return DebugReport{}, fmt.Errorf("reading debug report: %w", err)
	}

	find, okFind := sections[sectionFind]
	original, okOrig := sections[sectionOriginal]
	if !okFind || !okOrig {
		return DebugReport{}, fmt.Errorf("debug report must contain both %s and %s sections", sectionFind, sectionOriginal)
	}

	return DebugReport{
		Find:     trimBlank(find),
		Original: trimBlank(original),
		Err:      strings.Join(trimBlank(sections[sectionError]), "\n"),
	}, nil
}

// Replay runs the locator again against a saved failure.
func Replay(r DebugReport) (Match, error) {
	return Locate(r.Original, r.Find, 0)
}

func trimBlank(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}
