// Package collab defines the collaborator boundary: the four operations the
// workflow runner needs from a language-model backend. Any backend satisfying
// the interface can substitute; failures and empty output are first-class
// outcomes the runner handles per step, never process-level faults.
package collab

import (
	"context"
	"fmt"

	"github.com/kingrea/specloom/internal/qtable"
	"github.com/kingrea/specloom/internal/registry"
)

// Error wraps any backend failure (transport, timeout, refusal) so the runner
// can downgrade the step to blocked without caring which backend misbehaved.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("collab: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DraftRequest asks the backend to write a section body from scratch.
type DraftRequest struct {
	SectionID      string
	SectionContext string
	// PriorSections maps completed upstream section ids to their body text,
	// and PriorOrder preserves workflow order for prompt assembly.
	PriorSections map[string]string
	PriorOrder    []string
	Profile       string
	OutputFormat  registry.OutputFormat
	// SubsectionIDs describes the declared subsection structure when the
	// output format is subsections.
	SubsectionIDs []string
}

// QuestionsRequest asks the backend for clarifying questions about a section.
type QuestionsRequest struct {
	SectionID      string
	SectionContext string
	PriorSections  map[string]string
	Profile        string
}

// ProposedQuestion is one clarifying question the backend wants answered.
type ProposedQuestion struct {
	Question      string
	SectionTarget string
	Rationale     string
}

// IntegrateRequest asks the backend to fold answered questions into a section.
type IntegrateRequest struct {
	SectionID      string
	SectionContext string
	Answered       []qtable.Question
	Profile        string
	OutputFormat   registry.OutputFormat
}

// ReviewRequest runs a review gate over a set of sections.
type ReviewRequest struct {
	GateID          string
	ScopeSections   []string
	DocumentContext string
	ValidationRules []string
	Profile         string
}

// Severity tags a review issue. Blockers stop the run.
type Severity string

const (
	SeverityWarning Severity = "WARNING"
	SeverityBlocker Severity = "BLOCKER"
)

// Issue is one finding from a review gate.
type Issue struct {
	Severity    Severity
	Section     string
	Description string
	Suggestion  string
}

// ReviewResult is the outcome of a review call.
type ReviewResult struct {
	Passed  bool
	Issues  []Issue
	Summary string
}

// Collaborator is the backend contract. Every call takes a context; the
// runner applies its timeout there and treats expiry like any other failure.
type Collaborator interface {
	DraftSection(ctx context.Context, req DraftRequest) (string, error)
	GenerateOpenQuestions(ctx context.Context, req QuestionsRequest) ([]ProposedQuestion, error)
	IntegrateAnswers(ctx context.Context, req IntegrateRequest) (string, error)
	Review(ctx context.Context, req ReviewRequest) (ReviewResult, error)
}
