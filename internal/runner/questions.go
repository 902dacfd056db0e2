package runner

import (
	"fmt"

	"github.com/kingrea/specloom/internal/collab"
	"github.com/kingrea/specloom/internal/document"
	"github.com/kingrea/specloom/internal/qtable"
	"github.com/kingrea/specloom/internal/registry"
)

// questionTableFor picks the table that holds a section's questions: the
// handler-named table when the document has it, else the document-level
// open-questions table.
func questionTableFor(doc document.Doc, sectionID string, cfg registry.HandlerConfig) (string, error) {
	if cfg.QuestionsTable != "" {
		if _, ok := doc.TableByID(cfg.QuestionsTable); ok {
			return cfg.QuestionsTable, nil
		}
	}
	if _, ok := doc.TableByID(registry.DocumentQuestionsTable); ok {
		return registry.DocumentQuestionsTable, nil
	}
	return "", fmt.Errorf("runner: no question table for section %s (looked for %q and %q)",
		sectionID, cfg.QuestionsTable, registry.DocumentQuestionsTable)
}

// insertQuestions adds proposed questions to the section's table and returns
// the updated sequence plus how many rows were actually added after
// deduplication.
func (r *Runner) insertQuestions(lines document.Lines, sectionID string, cfg registry.HandlerConfig, proposed []collab.ProposedQuestion) (document.Lines, int, error) {
	doc, err := document.Parse(lines)
	if err != nil {
		return nil, 0, err
	}
	tableID, err := questionTableFor(doc, sectionID, cfg)
	if err != nil {
		return nil, 0, err
	}
	table, err := qtable.Parse(lines, tableID)
	if err != nil {
		return nil, 0, err
	}
	now := r.clock()
	added := 0
	for _, p := range proposed {
		target := p.SectionTarget
		if target == "" {
			target = sectionID
		}
		if !cfg.DedupeEnabled() {
			table.Append(target, p.Question, now)
			added++
			continue
		}
		if _, ok := table.Insert(target, p.Question, now); ok {
			added++
		}
	}
	if added == 0 {
		return lines, 0, nil
	}
	return table.Apply(lines), added, nil
}

// answeredQuestions loads the section's answered-but-unintegrated rows.
func (r *Runner) answeredQuestions(lines document.Lines, doc document.Doc, sectionID string, cfg registry.HandlerConfig) (qtable.Table, []qtable.Question, error) {
	tableID, err := questionTableFor(doc, sectionID, cfg)
	if err != nil {
		return qtable.Table{}, nil, err
	}
	table, err := qtable.Parse(lines, tableID)
	if err != nil {
		return qtable.Table{}, nil, err
	}
	var answered []qtable.Question
	for _, q := range table.ForSection(sectionID) {
		if q.Answered() {
			answered = append(answered, q)
		}
	}
	return table, answered, nil
}

// gatherPriorContext collects, in workflow order, the body of every complete
// section preceding the target. Review gates and incomplete sections are
// silently excluded, never substituted with placeholder text.
func (r *Runner) gatherPriorContext(lines document.Lines, doc document.Doc, sectionID string, cfg registry.HandlerConfig) (map[string]string, []string) {
	if cfg.Scope != registry.ScopeAllPriorSection {
		return nil, nil
	}
	prior := map[string]string{}
	var order []string
	for _, entry := range doc.Order {
		if entry == sectionID {
			break
		}
		if document.IsReviewGate(entry) {
			continue
		}
		st, _, err := r.resolve(lines, doc, entry)
		if err != nil || !st.Complete() || st.IsBlank {
			continue
		}
		body, ok := doc.SectionBody(lines, entry)
		if !ok || body == "" {
			continue
		}
		prior[entry] = body
		order = append(order, entry)
	}
	return prior, order
}
