package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/kingrea/specloom/internal/collab"
	"github.com/kingrea/specloom/internal/document"
	"github.com/kingrea/specloom/internal/qtable"
)

// runReviewGate executes a review_gate:<name> workflow entry: one
// collaborator review over the gate's scope, with each issue inserted into
// the affected section's own question table. A BLOCKER severity blocks the
// run; duplicate findings (by normalized description) insert nothing.
func (r *Runner) runReviewGate(ctx context.Context, lines document.Lines, doc document.Doc, entry string, result ExecutionResult) (document.Lines, ExecutionResult) {
	gateID := document.ReviewGateName(entry)
	cfg, err := r.registry.HandlerFor(doc.DocType, entry)
	if err != nil {
		result.Blocked = true
		result.note("review gate %s has no handler entry: %v", gateID, err)
		return lines, result
	}
	scope := gateScope(doc, entry)
	callCtx, cancel := r.callCtx(ctx)
	review, err := r.collab.Review(callCtx, collab.ReviewRequest{
		GateID:          gateID,
		ScopeSections:   scope,
		DocumentContext: scopeContext(lines, doc, scope),
		ValidationRules: cfg.ValidationRules,
		Profile:         cfg.LLMProfile,
	})
	cancel()
	if err != nil {
		result.Blocked = true
		result.note("review call failed: %v", err)
		return lines, result
	}

	result.Action = ActionReviewed
	updated := lines
	added := 0
	now := r.clock()
	for _, issue := range review.Issues {
		if issue.Section == "" {
			result.note("review issue without a section target dropped: %s", issue.Description)
			continue
		}
		sectionCfg, err := r.registry.HandlerFor(doc.DocType, issue.Section)
		if err != nil {
			result.note("issue for unknown section %s dropped: %v", issue.Section, err)
			continue
		}
		currentDoc, err := document.Parse(updated)
		if err != nil {
			result.Blocked = true
			result.note("document unparseable during review insertion: %v", err)
			return lines, result
		}
		tableID, err := questionTableFor(currentDoc, issue.Section, sectionCfg)
		if err != nil {
			result.note("issue for %s dropped: %v", issue.Section, err)
			continue
		}
		table, err := qtable.Parse(updated, tableID)
		if err != nil {
			result.Blocked = true
			result.note("question table %s unreadable: %v", tableID, err)
			return lines, result
		}
		if _, ok := table.Insert(issue.Section, issueText(issue), now); ok {
			updated = table.Apply(updated)
			added++
		}
		if issue.Severity == collab.SeverityBlocker {
			result.Blocked = true
		}
	}
	result.QuestionsGenerated = added
	if review.Summary != "" {
		result.note("%s", review.Summary)
	}
	if !review.Passed && !result.Blocked {
		result.note("review gate %s reported warnings only; run continues", gateID)
	}
	if result.Blocked {
		result.note("review gate %s raised a blocker", gateID)
	}
	if added == 0 {
		return lines, result
	}
	return r.commit(lines, updated, entry, cfg, result)
}

// issueText embeds the severity tag in the question text so it survives the
// table round trip without schema changes.
func issueText(issue collab.Issue) string {
	text := fmt.Sprintf("[%s] %s", issue.Severity, issue.Description)
	if issue.Suggestion != "" {
		text += " Suggestion: " + issue.Suggestion
	}
	return text
}

// gateScope is every non-gate section preceding the gate in workflow order.
func gateScope(doc document.Doc, entry string) []string {
	var scope []string
	for _, e := range doc.Order {
		if e == entry {
			break
		}
		if document.IsReviewGate(e) {
			continue
		}
		scope = append(scope, e)
	}
	return scope
}

func scopeContext(lines document.Lines, doc document.Doc, scope []string) string {
	var parts []string
	for _, id := range scope {
		if body, ok := doc.SectionBody(lines, id); ok && body != "" {
			parts = append(parts, fmt.Sprintf("## %s\n%s", id, body))
		}
	}
	return strings.Join(parts, "\n\n")
}
