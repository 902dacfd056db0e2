// Package runner drives the section-by-section completion workflow: it
// resolves each section's state, selects an action from the handler
// configuration, executes it through the editing engine, and gates every
// mutation behind the structural validator. One call processes exactly one
// workflow entry; run-until-blocked just chains calls until something needs
// a human.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/specloom/internal/collab"
	"github.com/kingrea/specloom/internal/document"
	"github.com/kingrea/specloom/internal/logbook"
	"github.com/kingrea/specloom/internal/registry"
	"github.com/kingrea/specloom/internal/state"
)

// StepState is the per-section position in the workflow state machine,
// derived fresh for each step (and for status displays) from the document.
type StepState string

const (
	StatePending           StepState = "pending"
	StateDrafting          StepState = "drafting"
	StateAwaitingQuestions StepState = "awaiting-questions"
	StateIntegrating       StepState = "integrating"
	StateReviewGate        StepState = "review-gate"
	StateBlocked           StepState = "blocked"
	StateComplete          StepState = "complete"
)

// Action names what a step actually did, for reporting.
type Action string

const (
	ActionNone       Action = "none"
	ActionSkipped    Action = "skipped"
	ActionDrafted    Action = "drafted"
	ActionQuestioned Action = "questions-generated"
	ActionIntegrated Action = "integrated"
	ActionReviewed   Action = "reviewed"
	ActionLockedOut  Action = "locked"
)

// ExecutionResult reports one workflow step. It is consumed by the CLI and
// status view and never persisted.
type ExecutionResult struct {
	RunID              string
	SectionID          string
	Action             Action
	Changed            bool
	Blocked            bool
	QuestionsGenerated int
	QuestionsResolved  int
	Summaries          []string
}

func (r *ExecutionResult) note(format string, args ...any) {
	r.Summaries = append(r.Summaries, fmt.Sprintf(format, args...))
}

// Runner executes workflow steps. Construct once with the loaded registry
// and a collaborator backend; the runner itself holds no document state.
type Runner struct {
	registry *registry.Registry
	collab   collab.Collaborator
	log      *logbook.Logbook
	clock    func() time.Time
	timeout  time.Duration
	author   string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogbook attaches a run log; steps append one line per outcome.
func WithLogbook(log *logbook.Logbook) Option {
	return func(r *Runner) { r.log = log }
}

// WithTimeout bounds each collaborator call. Expiry is handled like any
// other collaborator failure: the step blocks, the run survives.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithAuthor sets the author recorded in version-history rows.
func WithAuthor(author string) Option {
	return func(r *Runner) {
		if author != "" {
			r.author = author
		}
	}
}

// New wires a runner to its registry and collaborator backend.
func New(reg *registry.Registry, backend collab.Collaborator, opts ...Option) (*Runner, error) {
	if reg == nil {
		return nil, fmt.Errorf("runner: handler registry is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("runner: collaborator backend is required")
	}
	r := &Runner{
		registry: reg,
		collab:   backend,
		clock:    time.Now,
		timeout:  2 * time.Minute,
		author:   "specloom",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunOnce processes exactly one workflow entry (a section id or a
// review_gate:<name> pseudo-entry) and returns the updated line sequence plus
// a result. The input sequence is never mutated; on any blocked outcome the
// returned sequence is the input.
func (r *Runner) RunOnce(ctx context.Context, lines document.Lines, entry string) (document.Lines, ExecutionResult) {
	result := ExecutionResult{RunID: uuid.NewString(), SectionID: entry, Action: ActionNone}
	doc, err := document.Parse(lines)
	if err != nil {
		result.Blocked = true
		result.note("document failed to parse: %v", err)
		r.logResult(result)
		return lines, result
	}
	if document.IsReviewGate(entry) {
		out, res := r.runReviewGate(ctx, lines, doc, entry, result)
		r.logResult(res)
		return out, res
	}
	out, res := r.runSectionStep(ctx, lines, doc, entry, result)
	r.logResult(res)
	return out, res
}

// RunUntilBlocked walks the workflow order from the top, processing each
// entry in turn until a step blocks or the order is exhausted. Sections that
// are already complete are skipped without a collaborator call, so re-running
// on a finished document performs zero edits.
func (r *Runner) RunUntilBlocked(ctx context.Context, lines document.Lines) (document.Lines, []ExecutionResult, error) {
	doc, err := document.Parse(lines)
	if err != nil {
		return lines, nil, fmt.Errorf("runner: %w", err)
	}
	var results []ExecutionResult
	current := lines
	for _, entry := range doc.Order {
		var res ExecutionResult
		current, res = r.RunOnce(ctx, current, entry)
		results = append(results, res)
		if res.Blocked {
			break
		}
	}
	return current, results, nil
}

// NextPending returns the first workflow entry that still needs work, or ""
// when the whole order is complete.
func (r *Runner) NextPending(lines document.Lines) (string, error) {
	doc, err := document.Parse(lines)
	if err != nil {
		return "", fmt.Errorf("runner: %w", err)
	}
	for _, entry := range doc.Order {
		if document.IsReviewGate(entry) {
			continue
		}
		st, _, err := r.resolve(lines, doc, entry)
		if err != nil {
			return "", err
		}
		if sectionNeedsWork(st) {
			return entry, nil
		}
	}
	return "", nil
}

// Status derives the display state for one workflow entry without any
// collaborator call. Used by the status view and the validate command.
func (r *Runner) Status(lines document.Lines, entry string) (StepState, error) {
	doc, err := document.Parse(lines)
	if err != nil {
		return "", fmt.Errorf("runner: %w", err)
	}
	if document.IsReviewGate(entry) {
		return StateReviewGate, nil
	}
	if lock, ok := doc.LockFor(entry); ok && lock.Locked {
		return StateBlocked, nil
	}
	st, _, err := r.resolve(lines, doc, entry)
	if err != nil {
		return "", err
	}
	switch {
	case !st.Exists:
		return StatePending, nil
	case st.HasAnsweredQuestions:
		return StateIntegrating, nil
	case st.HasOpenQuestions:
		return StateAwaitingQuestions, nil
	case st.HasPlaceholder || st.IsBlank:
		return StateDrafting, nil
	default:
		return StateComplete, nil
	}
}

func (r *Runner) resolve(lines document.Lines, doc document.Doc, sectionID string) (state.SectionState, registry.HandlerConfig, error) {
	cfg, err := r.registry.HandlerFor(doc.DocType, sectionID)
	if err != nil {
		return state.SectionState{}, registry.HandlerConfig{}, err
	}
	st, err := state.Resolve(lines, doc, sectionID, cfg)
	if err != nil {
		return state.SectionState{}, registry.HandlerConfig{}, err
	}
	return st, cfg, nil
}

// sectionNeedsWork is the runner's work predicate. It widens the state
// resolver's completeness contract by one case: a blank section has nothing
// to integrate or answer, but it still wants a draft.
func sectionNeedsWork(st state.SectionState) bool {
	if !st.Exists {
		return false
	}
	return st.IsBlank || st.HasPlaceholder || st.HasOpenQuestions || st.HasAnsweredQuestions
}

func (r *Runner) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Runner) logResult(res ExecutionResult) {
	if r.log == nil {
		return
	}
	if res.Blocked {
		r.log.Warn("run %s: %s %s blocked (%d summaries)", res.RunID, res.SectionID, res.Action, len(res.Summaries))
		return
	}
	r.log.Info("run %s: %s %s changed=%t questions+%d resolved=%d",
		res.RunID, res.SectionID, res.Action, res.Changed, res.QuestionsGenerated, res.QuestionsResolved)
}
