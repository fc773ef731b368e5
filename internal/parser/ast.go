package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PlainProse renders a markdown prose segment as plain terminal text. Headings
// and paragraphs keep their text, list items get a "- " bullet indented by
// nesting depth and code blocks are indented by four spaces.
func PlainProse(markdown string) string {
	source := []byte(markdown)
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var blocks []string
	bullet := ""

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.ListItem:
			bullet = strings.Repeat("  ", listDepth(n)-1) + "- "
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			blocks = append(blocks, bullet+inlineText(n, source))
			bullet = ""
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			blocks = append(blocks, indentCode(n, source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return markdown
	}
	return strings.Join(blocks, "\n")
}

func inlineText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				buf.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte('\n')
				}
			case *ast.String:
				buf.Write(t.Value)
			default:
				walk(c)
			}
		}
	}
	walk(node)
	return strings.TrimRight(buf.String(), "\n")
}

func indentCode(node ast.Node, source []byte) string {
	lines := node.Lines()
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		out = append(out, "    "+strings.TrimRight(string(line.Value(source)), "\n"))
	}
	return strings.Join(out, "\n")
}

func listDepth(node ast.Node) int {
	depth := 0
	for p := node.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.List); ok {
			depth++
		}
	}
	if depth == 0 {
		return 1
	}
	return depth
}
