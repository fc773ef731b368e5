package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"
)

// ErrEmpty is returned when the chosen source has no content.
var ErrEmpty = errors.New("no content to process")

// Origin says where the content came from.
type Origin string

const (
	FromFile      Origin = "file"
	FromStdin     Origin = "stdin"
	FromClipboard Origin = "clipboard"
)

// Provider determines and retrieves the model response to process.
type Provider struct {
	stdin     io.Reader
	piped     func() bool
	clipboard func() (string, error)
	readFile  func(string) ([]byte, error)
}

// New creates a Provider bound to the process stdin and system clipboard.
func New() *Provider {
	return &Provider{
		stdin:     os.Stdin,
		piped:     stdinPiped,
		clipboard: clipboard.ReadAll,
		readFile:  os.ReadFile,
	}
}

func stdinPiped() bool {
	fd := os.Stdin.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// Content reads file when given, otherwise stdin if it is piped, otherwise
// the clipboard.
func (p *Provider) Content(file string) (string, Origin, error) {
	var (
		content string
		origin  Origin
	)

	switch {
	case file != "" && file != "-":
		data, err := p.readFile(file)
		if err != nil {
			return "", FromFile, fmt.Errorf("failed to read %s: %w", file, err)
		}
		content, origin = string(data), FromFile
	case file == "-" || p.piped():
		data, err := io.ReadAll(p.stdin)
		if err != nil {
			return "", FromStdin, fmt.Errorf("failed to read from stdin: %w", err)
		}
		content, origin = string(data), FromStdin
	default:
		text, err := p.clipboard()
		if err != nil {
			return "", FromClipboard, fmt.Errorf("failed to read from clipboard: %w", err)
		}
		content, origin = text, FromClipboard
	}

	if strings.TrimSpace(content) == "" {
		return "", origin, ErrEmpty
	}
	return content, origin, nil
}
