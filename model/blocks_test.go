package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeSet_FailedPathsAreNeverTouched(t *testing.T) {
	blocks := AppliedBlocks{
		{BlockID: 1, Filename: "new.go", Type: Create},
		{BlockID: 2, Filename: "main.go", Type: Edit},
		{BlockID: 3, Filename: "main.go", Type: Edit, HasError: true},
	}

	cs := blocks.ChangeSet()
	assert.Equal(t, []string{"new.go"}, cs.Created)
	assert.Empty(t, cs.Modified)
	assert.Equal(t, []string{"main.go"}, cs.Failed)
	assert.Equal(t, []string{"new.go"}, cs.Touched())
}

func TestChangeSet_MoveFailsWithEitherEnd(t *testing.T) {
	tests := map[string]struct {
		blocks AppliedBlocks
		failed []string
	}{
		"edit of destination fails": {
			blocks: AppliedBlocks{
				{BlockID: 1, Filename: "a.txt", NewFilename: "b.txt", Type: Move},
				{BlockID: 2, Filename: "b.txt", Type: Edit, HasError: true},
			},
			failed: []string{"a.txt", "b.txt"},
		},
		"earlier edit of source fails": {
			blocks: AppliedBlocks{
				{BlockID: 1, Filename: "a.txt", Type: Edit, HasError: true},
				{BlockID: 2, Filename: "a.txt", NewFilename: "b.txt", Type: Move},
			},
			failed: []string{"a.txt", "b.txt"},
		},
		"chain of moves": {
			blocks: AppliedBlocks{
				{BlockID: 1, Filename: "a.txt", NewFilename: "b.txt", Type: Move},
				{BlockID: 2, Filename: "b.txt", NewFilename: "c.txt", Type: Move},
				{BlockID: 3, Filename: "c.txt", Type: Clean, HasError: true},
			},
			failed: []string{"a.txt", "b.txt", "c.txt"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cs := append(tt.blocks, AppliedBlock{BlockID: 9, Filename: "ok.txt", Type: Create}).ChangeSet()

			assert.Equal(t, tt.failed, cs.Failed)
			assert.Empty(t, cs.Moved)
			assert.Equal(t, []string{"ok.txt"}, cs.Touched())
		})
	}
}

func TestChangeSet_SuccessfulMoveTouchesBothEnds(t *testing.T) {
	blocks := AppliedBlocks{
		{BlockID: 1, Filename: "a.txt", NewFilename: "b.txt", Type: Move},
		{BlockID: 2, Filename: "b.txt", Type: Edit},
	}

	cs := blocks.ChangeSet()
	assert.Equal(t, []FileMove{{From: "a.txt", To: "b.txt"}}, cs.Moved)
	assert.Empty(t, cs.Failed)
	assert.Equal(t, []string{"a.txt", "b.txt"}, cs.Touched())
}
