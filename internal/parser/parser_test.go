package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/stagedit/model"
)

func TestParse_ProseAndChanges(t *testing.T) {
	input := "I will fix the bug.\n" +
		"\n" +
		"#### Edit `src/app.py` \"Fix return value\"\n" +
		"<<<< original\n" +
		"```python\n" +
		"    return 1\n" +
		"```\n" +
		">>>> modified\n" +
		"```python\n" +
		"    return 2\n" +
		"```\n" +
		"====\n" +
		"Then add a file.\n" +
		"#### Create `docs/notes.md` \"Add notes\"\n" +
		"<<<< original\n" +
		">>>> modified\n" +
		"# Notes\n" +
		"====\n"

	segs := Parse(input)
	require.Len(t, segs, 4)

	assert.Equal(t, "I will fix the bug.\n", segs[0].Prose)
	require.True(t, segs[1].IsChange())
	edit := segs[1].Change
	assert.Equal(t, "src/app.py", edit.Filename)
	assert.Equal(t, "Fix return value", edit.Reason)
	assert.Equal(t, model.Edit, edit.Type)
	assert.Equal(t, []string{"    return 1"}, edit.Original)
	assert.Equal(t, []string{"    return 2"}, edit.Modified)
	assert.Equal(t, 1, edit.BlockID)

	assert.Equal(t, "Then add a file.", segs[2].Prose)
	create := segs[3].Change
	assert.Equal(t, model.Create, create.Type)
	assert.Empty(t, create.Original)
	assert.Equal(t, []string{"# Notes"}, create.Modified)
	assert.Equal(t, 2, create.BlockID)
}

func TestParse_BlockIDsCountOnlyChanges(t *testing.T) {
	input := "intro\n" +
		"#### Delete `a.go` \"unused\"\n" +
		"middle\n" +
		"#### Move `b.go` to `pkg/b.go` \"relocate\"\n" +
		"#### Clean `c.go` \"drop helper\"\n" +
		"<<<< original\n" +
		"func helper() {\n" +
		">>>> modified\n" +
		"}\n" +
		"====\n" +
		"outro"

	segs := Parse(input)
	changes := segs.Changes()
	require.Len(t, changes, 3)
	for i, c := range changes {
		assert.Equal(t, i+1, c.BlockID)
	}

	assert.Equal(t, model.Delete, changes[0].Type)
	assert.Equal(t, model.Move, changes[1].Type)
	assert.Equal(t, "b.go", changes[1].Filename)
	assert.Equal(t, "pkg/b.go", changes[1].NewFilename)
	assert.Equal(t, []string{"func helper() {"}, changes[2].Original)
	assert.Equal(t, []string{"}"}, changes[2].Modified)

	var prose []string
	for _, s := range segs {
		if !s.IsChange() {
			prose = append(prose, s.Prose)
		}
	}
	assert.Equal(t, []string{"intro", "middle", "outro"}, prose)
}

func TestParse_DeleteWithTerminator(t *testing.T) {
	segs := Parse("#### Delete `old.txt` \"obsolete\"\n\n====\nafter\n")
	require.Len(t, segs, 2)
	assert.Equal(t, model.Delete, segs[0].Change.Type)
	assert.Empty(t, segs[0].Change.Modified)
	assert.Equal(t, "after\n", segs[1].Prose)
}

func TestParse_NearMissCommandsAreProse(t *testing.T) {
	tests := []string{
		"#### Edit src/app.py \"missing backticks\"",
		"### Edit `src/app.py` \"three hashes\"",
		"#### Rename `a` \"unknown command\"",
		"#### Edit `src/app.py` no quotes",
		"#### Move `a` `b` \"missing to\"",
	}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			segs := Parse(line)
			require.Len(t, segs, 1)
			assert.False(t, segs[0].IsChange())
			assert.Equal(t, line, segs[0].Prose)
		})
	}
}

func TestParse_CommandLineIsTrimmed(t *testing.T) {
	segs := Parse("   #### Delete `x.go` \"gone\"   \n")
	require.Len(t, segs, 1)
	assert.Equal(t, "x.go", segs[0].Change.Filename)
}

func TestParse_FenceInsideContentIsKept(t *testing.T) {
	input := "#### Edit `README.md` \"Document build\"\n" +
		"<<<< original\n" +
		"Build:\n" +
		">>>> modified\n" +
		"Build:\n" +
		"```sh\n" +
		"make\n" +
		"```\n" +
		"Done.\n" +
		"====\n"

	segs := Parse(input)
	require.Len(t, segs, 1)
	assert.Equal(t, []string{"Build:", "```sh", "make", "```", "Done."}, segs[0].Change.Modified)
}

func TestParse_FenceBeforeMarkerClosesSnippet(t *testing.T) {
	input := "#### Edit `README.md` \"Document build\"\n" +
		"<<<< original\n" +
		"```md\n" +
		"Build:\n" +
		"```\n" +
		">>>> modified\n" +
		"```md\n" +
		"Build:\n" +
		"```sh\n" +
		"make\n" +
		"```\n" +
		"====\n"

	segs := Parse(input)
	require.Len(t, segs, 1)
	assert.Equal(t, []string{"Build:"}, segs[0].Change.Original)
	// The last fence ends the snippet, not the sh sample.
	assert.Equal(t, []string{"Build:", "```sh", "make"}, segs[0].Change.Modified)
}

func TestParse_AbandonedAndUnterminatedBlocks(t *testing.T) {
	input := "#### Edit `a.go` \"first\"\n" +
		"<<<< original\n" +
		"x\n" +
		"#### Edit `b.go` \"second\"\n" +
		"<<<< original\n" +
		"y\n" +
		">>>> modified\n" +
		"z\n" +
		"====\n" +
		"#### Edit `c.go` \"never closed\"\n" +
		"<<<< original\n" +
		"w\n"

	segs := New(nil).Parse(input)
	require.Len(t, segs, 1)
	c := segs[0].Change
	assert.Equal(t, "b.go", c.Filename)
	assert.Equal(t, 1, c.BlockID)
	assert.Equal(t, []string{"y"}, c.Original)
	assert.Equal(t, []string{"z"}, c.Modified)
}

func TestParse_CRLFAndWhitespaceProse(t *testing.T) {
	input := "  \r\n#### Create `a.txt` \"new\"\r\n<<<< original\r\n>>>> modified\r\nhello\r\n====\r\n\r\n"
	segs := Parse(input)
	require.Len(t, segs, 1)
	assert.Equal(t, []string{"hello"}, segs[0].Change.Modified)
}

func TestExtractResponseInfo(t *testing.T) {
	assert.Equal(t, "", ExtractResponseInfo("no marker here"))
	assert.Equal(t, "Renamed the helper.",
		ExtractResponseInfo("#### Delete `a` \"x\"\nEND_INSTRUCTIONS\n<Extra info about what was implemented/changed goes here>\nRenamed the helper.\n"))
}

func TestFilterByExtension(t *testing.T) {
	segs := Parse("#### Delete `a.go` \"x\"\nnote\n#### Delete `b.md` \"y\"\n#### Delete `c.go` \"z\"\n")

	filtered := FilterByExtension(segs, []string{".go"})
	changes := filtered.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, "a.go", changes[0].Filename)
	assert.Equal(t, 1, changes[0].BlockID)
	assert.Equal(t, "c.go", changes[1].Filename)
	assert.Equal(t, 3, changes[1].BlockID)
	assert.Len(t, filtered, 3)

	assert.Equal(t, segs, FilterByExtension(segs, nil))
}

func TestPlainProse(t *testing.T) {
	md := "# Plan\n\nChange the **parser** to `trim` lines.\n\n- first\n  - nested\n- second\n\n```go\nx := 1\n```\n"
	out := PlainProse(md)

	assert.Equal(t, "Plan\n"+
		"Change the parser to trim lines.\n"+
		"- first\n"+
		"  - nested\n"+
		"- second\n"+
		"    x := 1", out)
}
