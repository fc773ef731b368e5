package llm

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompt.tmpl
var promptText string

var promptTemplate = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"fence": fence,
	"chomp": func(s string) string { return strings.TrimRight(s, "\n") },
}).Parse(promptText))

// File is one source file handed to the model as context.
type File struct {
	Path    string
	Content string
}

// BuildChangePrompt renders the request together with the context files and
// the description of the edit instruction format.
func BuildChangePrompt(request string, files []File) (string, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return "", fmt.Errorf("empty request")
	}

	var b strings.Builder
	err := promptTemplate.Execute(&b, struct {
		Request string
		Files   []File
	}{request, files})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}

// fence picks a backtick run longer than any inside content.
func fence(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}
