package main

import (
	"fmt"
	"os"

	"github.com/sokinpui/stagedit/internal/parser"
	"github.com/sokinpui/stagedit/internal/tui"
	"github.com/sokinpui/stagedit/internal/ui"
	"github.com/sokinpui/stagedit/stagedit"
)

// confirmer shows a prepared run and decides whether to commit it.
type confirmer struct {
	auto    bool
	dryRun  bool
	patch   bool
	animate bool
}

func (c confirmer) Confirm(run *stagedit.Run) (bool, error) {
	for _, seg := range run.Segments {
		if !seg.IsChange() {
			ui.Prose(parser.PlainProse(seg.Prose))
		}
	}

	rows := run.Blocks.Summary()
	if c.animate {
		fmt.Fprintln(ui.Out, tui.RenderBlocks(rows))
	} else {
		ui.PrintBlocks(rows)
	}
	if run.Info != "" {
		ui.Header("\n--- Notes ---")
		ui.Prose(parser.PlainProse(run.Info))
	}
	if len(run.DebugFiles) > 0 {
		ui.Warning("\nSome blocks could not be located. Debug reports:")
		for _, f := range run.DebugFiles {
			ui.Path("%s", f)
		}
	}

	if c.patch {
		patch, err := run.Patch()
		if err != nil {
			return false, err
		}
		os.Stdout.Write(patch)
	}

	touched := len(run.ChangeSet().Touched())
	switch {
	case c.dryRun:
		return false, nil
	case touched == 0:
		ui.Info("Nothing to apply.")
		return false, nil
	case c.auto:
		return true, nil
	}
	return tui.Confirm(ui.Prompt("Apply changes to %d path(s)?", touched))
}
