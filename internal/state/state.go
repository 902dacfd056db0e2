// Package state derives per-section completion state from the document span
// model and the section's question table. State is computed fresh on every
// workflow step and never stored.
package state

import (
	"fmt"
	"strings"

	"github.com/kingrea/specloom/internal/document"
	"github.com/kingrea/specloom/internal/qtable"
	"github.com/kingrea/specloom/internal/registry"
)

// SectionState is the derived completion snapshot for one section.
type SectionState struct {
	Exists               bool
	IsBlank              bool
	HasPlaceholder       bool
	HasOpenQuestions     bool
	HasAnsweredQuestions bool
}

// Complete is the three-way completeness contract: no placeholder, no open
// questions, and no answered-but-unintegrated questions. A section whose
// questions are all answered is still incomplete until integration consumes
// them.
func (s SectionState) Complete() bool {
	return s.Exists && !s.HasPlaceholder && !s.HasOpenQuestions && !s.HasAnsweredQuestions
}

// ForSection computes the state of one section. Blank and placeholder checks
// cover only the preamble (content before the first subsection marker); a
// section with a filled preamble and empty subsections is not incomplete.
func ForSection(lines document.Lines, sectionID string, cfg registry.HandlerConfig) (SectionState, error) {
	doc, err := document.Parse(lines)
	if err != nil {
		return SectionState{}, fmt.Errorf("state: %w", err)
	}
	return Resolve(lines, doc, sectionID, cfg)
}

// Resolve is ForSection for callers that already hold a parsed span model.
func Resolve(lines document.Lines, doc document.Doc, sectionID string, cfg registry.HandlerConfig) (SectionState, error) {
	var st SectionState
	if _, ok := doc.SectionByID(sectionID); !ok {
		return st, nil
	}
	st.Exists = true

	pre, err := doc.Preamble(sectionID)
	if err != nil {
		return SectionState{}, err
	}
	preamble := lines[pre.Start:pre.End]
	st.HasPlaceholder = containsPlaceholder(preamble)
	if !st.HasPlaceholder {
		st.IsBlank = blankPreamble(preamble)
	}

	questions, err := sectionQuestions(lines, doc, sectionID, cfg)
	if err != nil {
		return SectionState{}, err
	}
	for _, q := range questions {
		if q.OpenUnanswered() {
			st.HasOpenQuestions = true
		}
		if q.Answered() {
			st.HasAnsweredQuestions = true
		}
	}
	return st, nil
}

// sectionQuestions loads the section's own question table when the handler
// names one, else falls back to the document-level table filtered by section
// target. A named table that does not exist yet simply yields no questions.
func sectionQuestions(lines document.Lines, doc document.Doc, sectionID string, cfg registry.HandlerConfig) ([]qtable.Question, error) {
	tableID := cfg.QuestionsTable
	if tableID == "" {
		tableID = registry.DocumentQuestionsTable
	}
	if _, ok := doc.TableByID(tableID); !ok {
		return nil, nil
	}
	table, err := qtable.Parse(lines, tableID)
	if err != nil {
		return nil, fmt.Errorf("state: section %s: %w", sectionID, err)
	}
	return table.ForSection(sectionID), nil
}

func containsPlaceholder(preamble document.Lines) bool {
	for _, line := range preamble {
		if strings.Contains(line, document.Placeholder) {
			return true
		}
	}
	return false
}

// blankPreamble ignores markdown headings: a preamble that is nothing but its
// template heading has no authored content.
func blankPreamble(preamble document.Lines) bool {
	for _, line := range preamble {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return false
	}
	return true
}
