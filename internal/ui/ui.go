package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/stagedit/model"
)

// Out receives every message. It is stderr so stdout stays clean for patch
// output.
var Out io.Writer = os.Stderr

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
	FaintColor   = color.New(color.Faint)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Out, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Out, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Out, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Out, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Out, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Out, "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

// Prose prints narrative text from the model response.
func Prose(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintln(Out, text)
}

// --- Summaries ---

func PrintSummary(s model.Summary) {
	Header("\n--- Update Summary ---")
	if s.Message != "" {
		Info("%s", s.Message)
	}

	if len(s.Created) == 0 && len(s.Modified) == 0 && len(s.Renamed) == 0 &&
		len(s.Deleted) == 0 && len(s.Failed) == 0 {
		Info("No files were updated.")
		return
	}

	list := func(c *color.Color, title string, files []string) {
		if len(files) == 0 {
			return
		}
		c.Fprintf(Out, "%s %d file(s):\n", title, len(files))
		for _, f := range files {
			fmt.Fprintf(Out, "  - %s\n", f)
		}
	}
	list(SuccessColor, "Created", s.Created)
	list(SuccessColor, "Modified", s.Modified)
	list(SuccessColor, "Renamed", s.Renamed)
	list(WarningColor, "Deleted", s.Deleted)
	list(ErrorColor, "Failed to update", s.Failed)
}

// PrintBlocks prints one line per applied block.
func PrintBlocks(rows []model.SummaryRow) {
	Header("\n--- Changes ---")
	if len(rows) == 0 {
		Info("No edit instructions found.")
		return
	}
	for _, r := range rows {
		status := SuccessColor.Sprint("ok")
		if !r.OK {
			status = ErrorColor.Sprint("failed")
		}
		fmt.Fprintf(Out, "#%-3d %-7s %-40s %+5d  %s  %s\n",
			r.BlockID, r.Operation, r.File, r.LineDelta, status, FaintColor.Sprint(r.Reason))
		if !r.OK && r.Error != "" {
			ErrorColor.Fprintf(Out, "      %s\n", r.Error)
		}
	}
}

func PrintRestoreSummary(backup string, err error) {
	Header("\n--- Restore Summary ---")
	if err != nil {
		Error("Failed to restore from %s: %v", backup, err)
		return
	}
	Success("Restored working tree from %s", backup)
}
