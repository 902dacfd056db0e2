// cmd/specloom/main.go
//
// This is the entry point for the specloom CLI.
// One binary covers the whole loop: scaffold a project, validate the
// document, run workflow steps, and open the status board.
//
// Exit codes:
//   --validate            0 complete, 1 incomplete (or deferred with --strict)
//   --validate-structure  0 clean, 1 repaired, 2 unrepairable
//   everything else       0 success, 1 failure

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/specloom/internal/collab"
	"github.com/kingrea/specloom/internal/config"
	"github.com/kingrea/specloom/internal/document"
	"github.com/kingrea/specloom/internal/logbook"
	"github.com/kingrea/specloom/internal/qtable"
	"github.com/kingrea/specloom/internal/registry"
	"github.com/kingrea/specloom/internal/runner"
	"github.com/kingrea/specloom/internal/tui"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	headStyle = lipgloss.NewStyle().Bold(true)
)

func main() {
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	docPath := flag.String("doc", "", "document path override (defaults to the configured document)")
	initProject := flag.Bool("init", false, "scaffold .specloom/ and a starter document")
	validate := flag.Bool("validate", false, "check document completeness; exit 1 if incomplete")
	strict := flag.Bool("strict", false, "with --validate, also fail on deferred questions")
	validateStructure := flag.Bool("validate-structure", false, "check and repair document structure")
	step := flag.String("step", "", "run one workflow step for the named entry (empty = next pending)")
	run := flag.Bool("run", false, "run workflow steps until something needs a human")
	status := flag.Bool("status", false, "open the interactive status board")
	applyPatch := flag.String("apply-patch", "", "apply an external patch (read from stdin) to the named section")
	yes := flag.Bool("yes", false, "with --apply-patch, confirm application for handlers set to never auto-apply")
	flag.Parse()

	project := strings.TrimSpace(*projectDir)
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
	}
	project, err := filepath.Abs(project)
	if err != nil {
		die("resolve project dir: %v", err)
	}

	if *initProject {
		if err := config.InitDir(project); err != nil {
			die("init .specloom: %v", err)
		}
		fmt.Printf("Initialized %s\n", filepath.Join(project, config.SpecloomDir))
		return
	}

	cfg, err := config.New(project)
	if err != nil {
		die("load config: %v", err)
	}
	doc := strings.TrimSpace(*docPath)
	if doc == "" {
		doc = cfg.DocumentPath()
	}

	switch {
	case *validateStructure:
		os.Exit(runValidateStructure(doc))
	case *validate:
		os.Exit(runValidate(cfg, doc, *strict))
	case *run || *step != "" || flagPassed("step"):
		os.Exit(runSteps(cfg, doc, *step, *run))
	case *applyPatch != "":
		os.Exit(runApplyPatch(cfg, doc, *applyPatch, *yes))
	case *status:
		os.Exit(runStatusBoard(cfg, doc))
	default:
		flag.Usage()
		os.Exit(1)
	}
}

// runValidateStructure repairs what it unambiguously can and writes the
// repaired document back. Exit 0 clean, 1 repaired, 2 unrepairable.
func runValidateStructure(docPath string) int {
	lines, err := document.Load(docPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		return 2
	}
	fixed, report := document.Repair(lines)
	for _, msg := range report.Repaired {
		fmt.Println(okStyle.Render("repaired: ") + msg)
	}
	for _, msg := range report.Unrepairable {
		fmt.Println(badStyle.Render("unrepairable: ") + msg)
	}
	if len(report.Unrepairable) > 0 {
		return 2
	}
	if len(report.Repaired) > 0 {
		if err := document.Save(docPath, fixed); err != nil {
			fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
			return 2
		}
		return 1
	}
	fmt.Println(okStyle.Render("structure clean"))
	return 0
}

// runValidate reports per-entry completion state. Exit 1 when any section
// still needs work; --strict additionally fails on deferred questions.
func runValidate(cfg *config.Config, docPath string, strict bool) int {
	r, lines, err := buildRunner(cfg, docPath, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		return 1
	}
	doc, err := document.Parse(lines)
	if err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		return 1
	}
	incomplete := 0
	for _, entry := range doc.Order {
		st, err := r.Status(lines, entry)
		if err != nil {
			fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
			return 1
		}
		style := okStyle
		if st != runner.StateComplete && st != runner.StateReviewGate {
			style = badStyle
			incomplete++
		}
		fmt.Printf("%-40s %s\n", entry, style.Render(string(st)))
	}
	deferred := 0
	if strict {
		deferred = countDeferred(lines, doc)
		if deferred > 0 {
			fmt.Println(badStyle.Render(fmt.Sprintf("%d deferred question(s)", deferred)))
		}
	}
	if incomplete > 0 || deferred > 0 {
		return 1
	}
	fmt.Println(okStyle.Render("document complete"))
	return 0
}

func runSteps(cfg *config.Config, docPath, entry string, untilBlocked bool) int {
	lb, _ := logbook.New(cfg.LogbookPath())
	r, lines, err := buildRunner(cfg, docPath, lb)
	if err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		return 1
	}
	ctx := context.Background()
	var out document.Lines
	var results []runner.ExecutionResult
	if untilBlocked {
		out, results, err = r.RunUntilBlocked(ctx, lines)
		if err != nil {
			fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
			return 1
		}
	} else {
		target := strings.TrimSpace(entry)
		if target == "" {
			target, err = r.NextPending(lines)
			if err != nil {
				fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
				return 1
			}
			if target == "" {
				fmt.Println(okStyle.Render("nothing pending"))
				return 0
			}
		}
		var res runner.ExecutionResult
		out, res = r.RunOnce(ctx, lines, target)
		results = []runner.ExecutionResult{res}
	}
	if !out.Equal(lines) {
		if err := document.Save(docPath, out); err != nil {
			fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
			return 1
		}
	}
	blocked := false
	for _, res := range results {
		printResult(res)
		if res.Blocked {
			blocked = true
		}
	}
	if blocked {
		return 1
	}
	return 0
}

// runApplyPatch reads a replacement body from stdin and hands it to the
// runner's external-patch path. Exit 1 when the patch is refused, either by
// the handler's confirmation policy or by structural validation.
func runApplyPatch(cfg *config.Config, docPath, sectionID string, confirmed bool) int {
	lb, _ := logbook.New(cfg.LogbookPath())
	r, lines, err := buildRunner(cfg, docPath, lb)
	if err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		return 1
	}
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		return 1
	}
	out, res, err := r.ApplyPatch(lines, sectionID, strings.TrimSpace(string(body)), confirmed)
	if err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		return 1
	}
	if !out.Equal(lines) {
		if err := document.Save(docPath, out); err != nil {
			fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
			return 1
		}
	}
	printResult(res)
	return 0
}

func runStatusBoard(cfg *config.Config, docPath string) int {
	lb, _ := logbook.New(cfg.LogbookPath())
	r, lines, err := buildRunner(cfg, docPath, lb)
	if err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		return 1
	}
	app, err := tui.NewApp(r, lb, docPath, lines)
	if err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		return 1
	}
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		return 1
	}
	return 0
}

func buildRunner(cfg *config.Config, docPath string, lb *logbook.Logbook) (*runner.Runner, document.Lines, error) {
	lines, err := document.Load(docPath)
	if err != nil {
		return nil, nil, err
	}
	reg, err := registry.Load(cfg.RegistryPath())
	if err != nil {
		return nil, nil, err
	}
	backend, err := collab.Builtin().Resolve(cfg.Project.Backend, collab.Settings{})
	if err != nil {
		return nil, nil, err
	}
	opts := []runner.Option{runner.WithAuthor(cfg.Project.Author)}
	if lb != nil {
		opts = append(opts, runner.WithLogbook(lb))
	}
	r, err := runner.New(reg, backend, opts...)
	if err != nil {
		return nil, nil, err
	}
	return r, lines, nil
}

func printResult(res runner.ExecutionResult) {
	state := okStyle.Render(string(res.Action))
	if res.Blocked {
		state = badStyle.Render(string(res.Action) + " (blocked)")
	}
	fmt.Printf("%s %s\n", headStyle.Render(res.SectionID), state)
	for _, summary := range res.Summaries {
		fmt.Println(dimStyle.Render("  " + summary))
	}
}

// countDeferred scans every question table in the document for rows parked in
// the Deferred state.
func countDeferred(lines document.Lines, doc document.Doc) int {
	count := 0
	for _, tbl := range doc.Tables {
		table, err := qtable.Parse(lines, tbl.ID)
		if err != nil {
			continue // not a question table
		}
		for _, q := range table.Rows {
			if q.Status == qtable.StatusDeferred {
				count++
			}
		}
	}
	return count
}

func flagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
