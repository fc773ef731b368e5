package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sokinpui/stagedit/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// ErrInterrupted is returned when the user quits while a task is running.
var ErrInterrupted = errors.New("interrupted")

// --- Messages ---
type doneMsg struct{ value any }

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

// --- Model ---

// Model shows a spinner while a task runs, then quits.
type Model struct {
	title   string
	task    func() (any, error)
	spinner spinner.Model
	state   state
	value   any
	err     error
}

type state int

const (
	stateProcessing state = iota
	stateDone
	stateError
)

func New(title string, task func() (any, error)) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		title:   title,
		task:    task,
		spinner: s,
		state:   stateProcessing,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.state = stateError
			m.err = ErrInterrupted
			return m, tea.Quit
		}

	case doneMsg:
		m.state = stateDone
		m.value = msg.value
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg.err
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateProcessing:
		return fmt.Sprintf("%s %s...", m.spinner.View(), m.title)
	case stateError:
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	default:
		return ""
	}
}

func (m Model) run() tea.Msg {
	v, err := m.task()
	if err != nil {
		return errorMsg{err}
	}
	return doneMsg{value: v}
}

// Run executes task behind a spinner. With animate unset the task runs
// directly.
func Run[T any](title string, animate bool, task func() (T, error)) (T, error) {
	var zero T
	if !animate {
		return task()
	}

	final, err := tea.NewProgram(New(title, func() (any, error) { return task() })).Run()
	if err != nil {
		return zero, err
	}
	m := final.(Model)
	if m.err != nil {
		return zero, m.err
	}
	v, _ := m.value.(T)
	return v, nil
}

// Confirm asks a yes/no question.
func Confirm(question string) (bool, error) {
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(question).
			Affirmative("Apply").
			Negative("Discard").
			Value(&ok),
	)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

// RenderBlocks renders the per-block summary as a table.
func RenderBlocks(rows []model.SummaryRow) string {
	if len(rows) == 0 {
		return faintStyle.Render("No edit instructions found.")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(faintStyle).
		Headers("#", "File", "Op", "Lines", "Reason", "Status")
	for _, r := range rows {
		status := "ok"
		if !r.OK {
			status = "failed: " + r.Error
		}
		t.Row(strconv.Itoa(r.BlockID), r.File, r.Operation, fmt.Sprintf("%+d", r.LineDelta), r.Reason, status)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle.Padding(0, 1)
		}
		if col == 5 {
			if rows[row].OK {
				return successStyle.Padding(0, 1)
			}
			return errorStyle.Padding(0, 1)
		}
		return cellStyle
	})
	return t.Render()
}

// RenderSummary renders the result of a committed or declined run.
func RenderSummary(s model.Summary) string {
	var b strings.Builder

	if s.Message != "" {
		b.WriteString(headerStyle.Render(s.Message))
		b.WriteString("\n\n")
	}

	hasContent := false
	section := func(style lipgloss.Style, title string, files []string) {
		if len(files) == 0 {
			return
		}
		hasContent = true
		b.WriteString(style.Render(title))
		b.WriteString("\n")
		for _, f := range files {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	section(successStyle, "Created:", s.Created)
	section(successStyle, "Modified:", s.Modified)
	section(successStyle, "Renamed:", s.Renamed)
	section(warningStyle, "Deleted:", s.Deleted)
	section(errorStyle, "Failed:", s.Failed)

	if !hasContent && s.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
	}

	return b.String()
}
