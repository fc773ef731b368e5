package validator

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"golang.org/x/sync/errgroup"
)

// maxErrorsPerFile caps the report for heavily malformed input.
const maxErrorsPerFile = 10

// SyntaxError is one parse error found in a staged file.
type SyntaxError struct {
	File    string
	Line    int
	Column  int
	Source  string
	Message string
}

// Error renders the location, the offending line with a caret under the
// column and the parser message.
func (e SyntaxError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Syntax error at %s:%d:%d\n", e.File, e.Line, e.Column)
	b.WriteString(e.Source + "\n")
	b.WriteString(caretPrefix(e.Source, e.Column) + "^\n")
	b.WriteString("Error: " + e.Message)
	return b.String()
}

// caretPrefix keeps tabs from the source line so the caret lines up.
func caretPrefix(line string, column int) string {
	var b strings.Builder
	for i := 0; i < column-1 && i < len(line); i++ {
		if line[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	for i := len(line); i < column-1; i++ {
		b.WriteByte(' ')
	}
	return b.String()
}

// Language returns the tree-sitter grammar for a file, or nil when the
// extension is not checked.
func Language(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return golang.GetLanguage()
	case ".py", ".pyi":
		return python.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	case ".rs":
		return rust.GetLanguage()
	case ".sh", ".bash":
		return bash.GetLanguage()
	default:
		return nil
	}
}

// ValidateFiles parses every file in files (relative to the validator
// directory) that has a known language. Files that no longer exist are
// skipped. The result is ordered by file, then position.
func (v *Validator) ValidateFiles(ctx context.Context, files []string) ([]SyntaxError, error) {
	results := make([][]SyntaxError, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, file := range files {
		lang := Language(file)
		if lang == nil {
			continue
		}
		g.Go(func() error {
			content, err := os.ReadFile(filepath.Join(v.dir, filepath.FromSlash(file)))
			if err != nil {
				if errors.Is(err, iofs.ErrNotExist) {
					return nil
				}
				return fmt.Errorf("reading %s: %w", file, err)
			}
			errs, err := CheckSource(ctx, file, lang, content)
			if err != nil {
				return err
			}
			results[i] = errs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []SyntaxError
	for _, errs := range results {
		all = append(all, errs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].File != all[j].File {
			return all[i].File < all[j].File
		}
		if all[i].Line != all[j].Line {
			return all[i].Line < all[j].Line
		}
		return all[i].Column < all[j].Column
	})

	v.logger.Debug("syntax check finished", "files", len(files), "errors", len(all))
	return all, nil
}

// CheckSource parses content with lang and returns its syntax errors.
func CheckSource(ctx context.Context, file string, lang *sitter.Language, content []byte) ([]SyntaxError, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}

	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	var errs []SyntaxError
	collect(root, content, func(n *sitter.Node) bool {
		point := n.StartPoint()
		line := int(point.Row)
		source := ""
		if line < len(lines) {
			source = lines[line]
		}
		errs = append(errs, SyntaxError{
			File:    file,
			Line:    line + 1,
			Column:  int(point.Column) + 1,
			Source:  source,
			Message: describe(n, content),
		})
		return len(errs) < maxErrorsPerFile
	})
	return errs, nil
}

// collect walks the tree depth first and calls report for every ERROR or
// MISSING node, without descending into ERROR nodes. It stops when report
// returns false.
func collect(node *sitter.Node, content []byte, report func(*sitter.Node) bool) bool {
	if node.IsError() || node.IsMissing() {
		return report(node)
	}
	if !node.HasError() {
		return true
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if !collect(node.Child(i), content, report) {
			return false
		}
	}
	return true
}

func describe(n *sitter.Node, content []byte) string {
	if n.IsMissing() {
		return fmt.Sprintf("missing %q", n.Type())
	}
	start, end := n.StartByte(), n.EndByte()
	if end > uint32(len(content)) {
		end = uint32(len(content))
	}
	text := strings.TrimSpace(string(content[start:end]))
	if text == "" {
		return "invalid syntax"
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return fmt.Sprintf("unexpected %q", text)
}
