package runner

import (
	"fmt"

	"github.com/kingrea/specloom/internal/document"
	"github.com/kingrea/specloom/internal/edit"
	"github.com/kingrea/specloom/internal/registry"
)

// ApplyPatch applies an externally supplied replacement body to a section's
// preamble. Nested subsection and table markers, and the content they hold,
// are never touched by a patch. Unlike engine-composed edits, patch text is
// sanitized under the Reject policy: an embedded structural marker fails the
// patch instead of being silently dropped. The handler's auto_apply_patches
// policy decides whether the patch may land without a confirmation step;
// callers signal an explicit human confirmation through confirmed.
func (r *Runner) ApplyPatch(lines document.Lines, sectionID, body string, confirmed bool) (document.Lines, ExecutionResult, error) {
	result := ExecutionResult{SectionID: sectionID, Action: ActionNone}
	doc, err := document.Parse(lines)
	if err != nil {
		return lines, result, fmt.Errorf("runner: %w", err)
	}
	if lock, ok := doc.LockFor(sectionID); ok && lock.Locked {
		return lines, result, fmt.Errorf("runner: section %s is locked for human review", sectionID)
	}
	cfg, err := r.registry.HandlerFor(doc.DocType, sectionID)
	if err != nil {
		return lines, result, err
	}
	if cfg.AutoApplyPatches == registry.AutoApplyNever && !confirmed {
		return lines, result, fmt.Errorf("runner: handler for %s requires confirmation before applying external patches", sectionID)
	}
	if _, ok := doc.SectionByID(sectionID); !ok {
		return lines, result, fmt.Errorf("runner: no section %q", sectionID)
	}
	updated, err := edit.ReplacePreamble(lines, doc, sectionID, body, nil, edit.PolicyReject)
	if err != nil {
		return lines, result, err
	}
	result.Action = ActionDrafted
	out, result := r.commit(lines, updated, sectionID, cfg, result)
	if result.Blocked {
		// on_success applies only patches that survive the validator; never
		// and always share the same rollback since structural damage is not
		// negotiable.
		return lines, result, fmt.Errorf("runner: patch for %s rejected by structural validation", sectionID)
	}
	r.logResult(result)
	return out, result, nil
}
