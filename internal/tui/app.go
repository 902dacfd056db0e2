// internal/tui/app.go
//
// This is the status board TUI for specloom. It uses bubbletea, which
// follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/specloom/internal/document"
	"github.com/kingrea/specloom/internal/logbook"
	"github.com/kingrea/specloom/internal/runner"
)

var (
	labelStyleComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleBlocked  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleActive   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleGate     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleDefault  = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	headerStyle        = lipgloss.NewStyle().Bold(true)
)

// entryItem implements list.Item for one workflow-order entry.
type entryItem struct {
	entry string
	state runner.StepState
}

func (i entryItem) Title() string {
	return fmt.Sprintf("%s · %s", friendlyLabel(displayName(i.entry)), styleFor(i.state).Render(string(i.state)))
}

func (i entryItem) Description() string {
	if document.IsReviewGate(i.entry) {
		return "review gate over all prior sections"
	}
	switch i.state {
	case runner.StateAwaitingQuestions:
		return "open questions await human answers"
	case runner.StateIntegrating:
		return "answered questions ready to integrate"
	case runner.StateDrafting:
		return "section needs a first draft"
	case runner.StateComplete:
		return "nothing to do"
	default:
		return ""
	}
}

func (i entryItem) FilterValue() string { return i.entry }

// App is the status board model. It holds the loaded document, the derived
// per-entry states, and the result of the last step it ran.
type App struct {
	runner  *runner.Runner
	logbook *logbook.Logbook
	docPath string

	lines document.Lines
	board list.Model
	spin  spinner.Model

	statusMsg string
	err       error
	busy      bool
	last      *runner.ExecutionResult

	width  int
	height int
}

type stepFinishedMsg struct {
	lines  document.Lines
	result runner.ExecutionResult
	err    error
}

type runFinishedMsg struct {
	lines   document.Lines
	results []runner.ExecutionResult
	err     error
}

// NewApp builds the status board over an already-loaded document.
func NewApp(r *runner.Runner, lb *logbook.Logbook, docPath string, lines document.Lines) (*App, error) {
	board := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	board.Title = "⬡ SPECLOOM"
	board.SetShowStatusBar(false)
	board.SetFilteringEnabled(false)
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = labelStyleActive
	app := &App{
		runner:  r,
		logbook: lb,
		docPath: docPath,
		lines:   lines,
		board:   board,
		spin:    spin,
	}
	if err := app.refreshBoard(); err != nil {
		return nil, err
	}
	if lb != nil {
		lb.Info("status board opened for %s", docPath)
	}
	return app, nil
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		a.board.SetSize(m.Width, maxInt(4, m.Height-8))
		return a, nil
	case stepFinishedMsg:
		a.busy = false
		if m.err != nil {
			a.err = m.err
			a.statusMsg = fmt.Sprintf("Step failed: %v", m.err)
			return a, nil
		}
		a.err = nil
		a.applyResult(m.lines, m.result)
		return a, nil
	case runFinishedMsg:
		a.busy = false
		if m.err != nil {
			a.err = m.err
			a.statusMsg = fmt.Sprintf("Run failed: %v", m.err)
			return a, nil
		}
		a.err = nil
		a.lines = m.lines
		if len(m.results) > 0 {
			last := m.results[len(m.results)-1]
			a.last = &last
			a.statusMsg = fmt.Sprintf("Run processed %d entries, stopped at %s", len(m.results), displayName(last.SectionID))
		} else {
			a.statusMsg = "Workflow order is empty"
		}
		a.persist()
		if err := a.refreshBoard(); err != nil {
			a.err = err
		}
		return a, nil
	case spinner.TickMsg:
		if !a.busy {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(m)
		return a, cmd
	case tea.KeyMsg:
		return a.handleKey(m)
	}
	var cmd tea.Cmd
	a.board, cmd = a.board.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return a, tea.Quit
	case "enter":
		return a, a.runSelected()
	case "r":
		return a, a.runUntilBlocked()
	}
	var cmd tea.Cmd
	a.board, cmd = a.board.Update(msg)
	return a, cmd
}

func (a *App) runSelected() tea.Cmd {
	if a.busy {
		a.statusMsg = "A step is already running"
		return nil
	}
	item, ok := a.board.SelectedItem().(entryItem)
	if !ok {
		return nil
	}
	a.busy = true
	a.statusMsg = fmt.Sprintf("Running %s…", displayName(item.entry))
	lines, r := a.lines, a.runner
	return tea.Batch(a.spin.Tick, func() tea.Msg {
		out, res := r.RunOnce(context.Background(), lines, item.entry)
		return stepFinishedMsg{lines: out, result: res}
	})
}

func (a *App) runUntilBlocked() tea.Cmd {
	if a.busy {
		a.statusMsg = "A step is already running"
		return nil
	}
	a.busy = true
	a.statusMsg = "Running until something needs a human…"
	lines, r := a.lines, a.runner
	return tea.Batch(a.spin.Tick, func() tea.Msg {
		out, results, err := r.RunUntilBlocked(context.Background(), lines)
		return runFinishedMsg{lines: out, results: results, err: err}
	})
}

func (a *App) applyResult(lines document.Lines, res runner.ExecutionResult) {
	a.lines = lines
	a.last = &res
	switch {
	case res.Blocked:
		a.statusMsg = fmt.Sprintf("%s blocked (%s)", displayName(res.SectionID), res.Action)
	case res.Changed:
		a.statusMsg = fmt.Sprintf("%s %s", displayName(res.SectionID), res.Action)
	default:
		a.statusMsg = fmt.Sprintf("%s needed no changes", displayName(res.SectionID))
	}
	a.persist()
	if err := a.refreshBoard(); err != nil {
		a.err = err
	}
}

// persist writes the document back to disk after every applied step. Saving
// is atomic, so an interrupted session never truncates the document.
func (a *App) persist() {
	if a.docPath == "" {
		return
	}
	if err := document.Save(a.docPath, a.lines); err != nil {
		a.err = err
		a.statusMsg = fmt.Sprintf("Save failed: %v", err)
	}
}

// refreshBoard re-derives every entry's state from the current document.
func (a *App) refreshBoard() error {
	doc, err := document.Parse(a.lines)
	if err != nil {
		return err
	}
	selected := a.board.Index()
	items := make([]list.Item, 0, len(doc.Order))
	for _, entry := range doc.Order {
		st, err := a.runner.Status(a.lines, entry)
		if err != nil {
			st = runner.StateBlocked
		}
		items = append(items, entryItem{entry: entry, state: st})
	}
	a.board.SetItems(items)
	if selected < len(items) {
		a.board.Select(selected)
	}
	return nil
}

// View implements tea.Model.
func (a *App) View() string {
	header := headerStyle.Render(fmt.Sprintf("Document: %s", a.docPath))
	if doc, err := document.Parse(a.lines); err == nil && doc.Version != "" {
		header += detailTextStyle.Render(fmt.Sprintf("  v%s · %s", doc.Version, doc.DocType))
	}
	sections := []string{header, "", a.board.View()}
	if a.last != nil {
		sections = append(sections, "", a.renderLastResult())
	}
	if a.err != nil {
		sections = append(sections, "", labelStyleBlocked.Render(fmt.Sprintf("Error: %v", a.err)))
	}
	if a.statusMsg != "" {
		status := a.statusMsg
		if a.busy {
			status = a.spin.View() + " " + status
		}
		sections = append(sections, "", status)
	}
	if tail := a.renderLogTail(); tail != "" {
		sections = append(sections, "", tail)
	}
	sections = append(sections, "", detailTextStyle.Render("enter=step  r=run until blocked  q=quit"))
	return strings.Join(sections, "\n")
}

// renderLogTail shows the most recent logbook entries under the board.
func (a *App) renderLogTail() string {
	if a.logbook == nil {
		return ""
	}
	tail, total := a.logbook.Tail(3)
	if total == 0 {
		return ""
	}
	out := []string{fmt.Sprintf("Log (%d entries):", total)}
	out = append(out, tail...)
	return detailTextStyle.Render(strings.Join(out, "\n"))
}

func (a *App) renderLastResult() string {
	res := a.last
	line := fmt.Sprintf("Last step: %s · %s", displayName(res.SectionID), res.Action)
	if res.QuestionsGenerated > 0 {
		line += fmt.Sprintf(" · +%d question(s)", res.QuestionsGenerated)
	}
	if res.QuestionsResolved > 0 {
		line += fmt.Sprintf(" · %d resolved", res.QuestionsResolved)
	}
	out := []string{line}
	for _, summary := range res.Summaries {
		out = append(out, "  "+summary)
	}
	return detailTextStyle.Render(strings.Join(out, "\n"))
}

func styleFor(state runner.StepState) lipgloss.Style {
	switch state {
	case runner.StateComplete:
		return labelStyleComplete
	case runner.StateBlocked, runner.StateAwaitingQuestions:
		return labelStyleBlocked
	case runner.StateDrafting, runner.StateIntegrating:
		return labelStyleActive
	case runner.StateReviewGate:
		return labelStyleGate
	default:
		return labelStyleDefault
	}
}

func displayName(entry string) string {
	if document.IsReviewGate(entry) {
		return document.ReviewGateName(entry) + " gate"
	}
	return entry
}

func friendlyLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	replacer := strings.NewReplacer("_", " ", "-", " ")
	words := strings.Fields(replacer.Replace(strings.ToLower(value)))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
