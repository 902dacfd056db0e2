package runner

import (
	"context"
	"sort"
	"strings"

	"github.com/kingrea/specloom/internal/collab"
	"github.com/kingrea/specloom/internal/document"
	"github.com/kingrea/specloom/internal/edit"
	"github.com/kingrea/specloom/internal/qtable"
	"github.com/kingrea/specloom/internal/registry"
	"github.com/kingrea/specloom/internal/state"
	"github.com/kingrea/specloom/internal/version"
)

// runSectionStep executes one non-gate workflow entry. The transition is
// selected from the section's derived state and the handler mode; every
// mutation path ends in commit, which validates the whole document and rolls
// back on any structural error.
func (r *Runner) runSectionStep(ctx context.Context, lines document.Lines, doc document.Doc, sectionID string, result ExecutionResult) (document.Lines, ExecutionResult) {
	if lock, ok := doc.LockFor(sectionID); ok && lock.Locked {
		result.Action = ActionLockedOut
		result.Blocked = true
		result.note("section %s is locked for human review; skipping all edits", sectionID)
		return lines, result
	}
	st, cfg, err := r.resolve(lines, doc, sectionID)
	if err != nil {
		result.Blocked = true
		result.note("handler resolution failed: %v", err)
		return lines, result
	}
	if !st.Exists {
		result.Blocked = true
		result.note("workflow order names section %s but the document has no such marker", sectionID)
		return lines, result
	}
	if !sectionNeedsWork(st) {
		result.Action = ActionSkipped
		return lines, result
	}

	switch cfg.Mode {
	case registry.ModeIntegrateThenQuestions:
		if st.HasAnsweredQuestions {
			return r.integrate(ctx, lines, doc, sectionID, cfg, result)
		}
		if st.HasOpenQuestions {
			result.Blocked = true
			result.note("section %s has open questions awaiting human answers", sectionID)
			return lines, result
		}
		// bootstrap_questions seeds a fresh section with clarifying questions
		// before the first draft is ever attempted.
		if cfg.BootstrapQuestions {
			return r.askQuestions(ctx, lines, doc, sectionID, cfg, result)
		}
		return r.draft(ctx, lines, doc, sectionID, cfg, result)
	case registry.ModeQuestionsThenIntegrate:
		// Question-first sections never draft blind: a fresh section gets
		// clarifying questions before any content is attempted.
		if st.HasOpenQuestions {
			result.Blocked = true
			result.note("section %s has open questions awaiting human answers", sectionID)
			return lines, result
		}
		if st.HasAnsweredQuestions {
			return r.integrate(ctx, lines, doc, sectionID, cfg, result)
		}
		return r.askQuestions(ctx, lines, doc, sectionID, cfg, result)
	case registry.ModeReviewGate:
		return r.runReviewGate(ctx, lines, doc, document.ReviewGatePrefix+sectionID, result)
	default:
		result.Blocked = true
		result.note("unknown handler mode %q", cfg.Mode)
		return lines, result
	}
}

// draft asks the collaborator for section content. Empty or failed output
// falls back to question generation rather than leaving the section untouched.
func (r *Runner) draft(ctx context.Context, lines document.Lines, doc document.Doc, sectionID string, cfg registry.HandlerConfig, result ExecutionResult) (document.Lines, ExecutionResult) {
	prior, order := r.gatherPriorContext(lines, doc, sectionID, cfg)
	sectionCtx, _ := doc.SectionBody(lines, sectionID)
	var subIDs []string
	for _, sub := range doc.SubsectionsOf(sectionID) {
		subIDs = append(subIDs, sub.ID)
	}
	callCtx, cancel := r.callCtx(ctx)
	text, err := r.collab.DraftSection(callCtx, collab.DraftRequest{
		SectionID:      sectionID,
		SectionContext: sectionCtx,
		PriorSections:  prior,
		PriorOrder:     order,
		Profile:        cfg.LLMProfile,
		OutputFormat:   cfg.OutputFormat,
		SubsectionIDs:  subIDs,
	})
	cancel()
	if err != nil {
		result.Blocked = true
		result.note("draft call failed: %v", err)
		return lines, result
	}
	text = applySanitizeRemove(text, cfg.SanitizeRemove)
	if strings.TrimSpace(text) == "" {
		result.note("draft returned no content; falling back to question generation")
		return r.askQuestions(ctx, lines, doc, sectionID, cfg, result)
	}
	updated, err := r.applyBody(lines, doc, sectionID, cfg, text)
	if err != nil {
		result.Blocked = true
		result.note("applying draft failed: %v", err)
		return lines, result
	}
	result.Action = ActionDrafted
	return r.commit(lines, updated, sectionID, cfg, result)
}

// askQuestions generates clarifying questions and inserts them into the
// section's question table, deduplicated by normalized description.
func (r *Runner) askQuestions(ctx context.Context, lines document.Lines, doc document.Doc, sectionID string, cfg registry.HandlerConfig, result ExecutionResult) (document.Lines, ExecutionResult) {
	prior, _ := r.gatherPriorContext(lines, doc, sectionID, cfg)
	sectionCtx, _ := doc.SectionBody(lines, sectionID)
	callCtx, cancel := r.callCtx(ctx)
	proposed, err := r.collab.GenerateOpenQuestions(callCtx, collab.QuestionsRequest{
		SectionID:      sectionID,
		SectionContext: sectionCtx,
		PriorSections:  prior,
		Profile:        cfg.LLMProfile,
	})
	cancel()
	if err != nil {
		result.Blocked = true
		result.note("question generation failed: %v", err)
		return lines, result
	}
	if len(proposed) == 0 {
		result.Blocked = true
		result.note("collaborator produced neither content nor questions for %s", sectionID)
		return lines, result
	}
	updated, added, err := r.insertQuestions(lines, sectionID, cfg, proposed)
	if err != nil {
		result.Blocked = true
		result.note("inserting questions failed: %v", err)
		return lines, result
	}
	result.Action = ActionQuestioned
	result.QuestionsGenerated = added
	result.Blocked = true // the section now waits for human answers
	result.note("generated %d question(s) for %s", added, sectionID)
	if added == 0 {
		// Everything proposed was a duplicate; nothing changed on disk.
		return lines, result
	}
	return r.commit(lines, updated, sectionID, cfg, result)
}

// integrate folds answered questions into the section body and marks the
// consumed rows resolved.
func (r *Runner) integrate(ctx context.Context, lines document.Lines, doc document.Doc, sectionID string, cfg registry.HandlerConfig, result ExecutionResult) (document.Lines, ExecutionResult) {
	table, answered, err := r.answeredQuestions(lines, doc, sectionID, cfg)
	if err != nil {
		result.Blocked = true
		result.note("loading answered questions failed: %v", err)
		return lines, result
	}
	sectionCtx, _ := doc.SectionBody(lines, sectionID)
	callCtx, cancel := r.callCtx(ctx)
	text, err := r.collab.IntegrateAnswers(callCtx, collab.IntegrateRequest{
		SectionID:      sectionID,
		SectionContext: sectionCtx,
		Answered:       answered,
		Profile:        cfg.LLMProfile,
		OutputFormat:   cfg.OutputFormat,
	})
	cancel()
	if err != nil {
		result.Blocked = true
		result.note("integration call failed: %v", err)
		return lines, result
	}
	text = applySanitizeRemove(text, cfg.SanitizeRemove)
	if strings.TrimSpace(text) == "" {
		result.Blocked = true
		result.note("integration returned no content for %s", sectionID)
		return lines, result
	}
	updated, err := r.applyBody(lines, doc, sectionID, cfg, text)
	if err != nil {
		result.Blocked = true
		result.note("applying integration failed: %v", err)
		return lines, result
	}
	// Mark the consumed rows resolved in the updated sequence.
	for _, q := range answered {
		if err := table.SetStatus(q.ID, qtable.StatusResolved); err != nil {
			result.Blocked = true
			result.note("resolving question %s failed: %v", q.ID, err)
			return lines, result
		}
	}
	refreshed, err := qtable.Parse(updated, table.ID)
	if err != nil {
		result.Blocked = true
		result.note("question table lost during integration: %v", err)
		return lines, result
	}
	refreshed.Rows = table.Rows
	updated = refreshed.Apply(updated)
	result.Action = ActionIntegrated
	result.QuestionsResolved = len(answered)
	return r.commit(lines, updated, sectionID, cfg, result)
}

// applyBody routes collaborator output into the section: subsections format
// is split by heading, otherwise table rows are routed to table-typed
// subsections and the remaining prose becomes the preamble.
func (r *Runner) applyBody(lines document.Lines, doc document.Doc, sectionID string, cfg registry.HandlerConfig, text string) (document.Lines, error) {
	if cfg.OutputFormat == registry.FormatSubsections {
		return r.applySubsectionBlocks(lines, doc, sectionID, cfg, text)
	}
	updated, prose, err := edit.RouteTableContent(lines, doc, sectionID, text)
	if err != nil {
		return nil, err
	}
	doc2, err := document.Parse(updated)
	if err != nil {
		return nil, err
	}
	return edit.ReplacePreamble(updated, doc2, sectionID, prose, cfg.PreserveHeaders, edit.PolicyStrip)
}

func (r *Runner) applySubsectionBlocks(lines document.Lines, doc document.Doc, sectionID string, cfg registry.HandlerConfig, text string) (document.Lines, error) {
	blocks, preamble := edit.SplitSubsectionBlocks(text)
	updated := lines
	// Apply deepest-first so earlier spans keep their line numbers.
	subs := doc.SubsectionsOf(sectionID)
	for i := len(subs) - 1; i >= 0; i-- {
		sub := subs[i]
		body, ok := blocks[sub.ID]
		if !ok || strings.TrimSpace(body) == "" {
			continue
		}
		var err error
		if sub.TableTyped {
			var leftover string
			updated, leftover, err = edit.FillSubsectionTable(updated, doc, sub, body)
			if strings.TrimSpace(leftover) != "" {
				preamble = joinProse(preamble, leftover)
			}
		} else {
			updated, err = edit.ReplaceSpanBody(updated, sub.Span, subsectionHeading(updated, sub)+body, edit.PolicyStrip)
		}
		if err != nil {
			return nil, err
		}
	}
	doc2, err := document.Parse(updated)
	if err != nil {
		return nil, err
	}
	return edit.ReplacePreamble(updated, doc2, sectionID, preamble, cfg.PreserveHeaders, edit.PolicyStrip)
}

func joinProse(a, b string) string {
	a, b = strings.Trim(a, "\n"), strings.Trim(b, "\n")
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}

// subsectionHeading keeps the template heading line when rewriting a
// subsection body.
func subsectionHeading(lines document.Lines, sub document.SubsectionSpan) string {
	for i := sub.Start + 1; i < sub.End && i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			return trimmed + "\n"
		}
		break
	}
	return ""
}

// commit is the closing gate for every mutation: validate the updated
// sequence, stamp the version milestone when the section just completed, and
// roll back wholesale on any structural error.
func (r *Runner) commit(before, after document.Lines, sectionID string, cfg registry.HandlerConfig, result ExecutionResult) (document.Lines, ExecutionResult) {
	if errs := document.Validate(after); len(errs) > 0 {
		result.Blocked = true
		result.Changed = false
		for _, e := range errs {
			result.note("post-edit validation failed: %v", e)
		}
		return before, result
	}
	after, result = r.applyVersionMilestone(after, sectionID, cfg, result)
	if errs := document.Validate(after); len(errs) > 0 {
		result.Blocked = true
		result.Changed = false
		for _, e := range errs {
			result.note("post-version validation failed: %v", e)
		}
		return before, result
	}
	if missing := missingMarkers(before, after); len(missing) > 0 {
		result.Blocked = true
		result.Changed = false
		for _, key := range missing {
			result.note("edit removed structural marker %s; rolling back", key)
		}
		return before, result
	}
	result.Changed = !before.Equal(after)
	if result.Changed {
		stats := edit.DiffStats(before, after)
		result.note("%s: %s", sectionID, stats)
		result.Summaries = append(result.Summaries, edit.DiffPreview(before, after, 8)...)
	}
	return after, result
}

// missingMarkers lists markers present in before that the edit removed. Edits
// rewrite span interiors and never delete skeleton markers, so any loss means
// the edit escaped its span and must not land.
func missingMarkers(before, after document.Lines) []string {
	have := document.MarkerKeys(after)
	var missing []string
	for key := range document.MarkerKeys(before) {
		if _, ok := have[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// applyVersionMilestone bumps the document version when the handler declares
// a milestone and the section is now complete. Monotonic gating inside
// version.Update makes replays harmless.
func (r *Runner) applyVersionMilestone(lines document.Lines, sectionID string, cfg registry.HandlerConfig, result ExecutionResult) (document.Lines, ExecutionResult) {
	if cfg.VersionMilestone == "" {
		return lines, result
	}
	st, err := state.ForSection(lines, sectionID, cfg)
	if err != nil || !st.Complete() || st.IsBlank {
		return lines, result
	}
	milestone, err := version.Parse(cfg.VersionMilestone)
	if err != nil {
		result.note("invalid version milestone %q: %v", cfg.VersionMilestone, err)
		return lines, result
	}
	updated, changed, err := version.Update(lines, milestone, r.author,
		"Completed "+sectionID, r.clock())
	if err != nil {
		result.note("version update skipped: %v", err)
		return lines, result
	}
	if changed {
		result.note("document version advanced to %s", milestone)
	}
	return updated, result
}

func applySanitizeRemove(text string, tokens []string) string {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		text = strings.ReplaceAll(text, token, "")
	}
	return text
}
