package collab

import (
	"context"
	"fmt"
	"sync"
)

// Script is a deterministic in-memory collaborator. Tests and offline runs
// queue canned responses per section; unscripted calls return empty output,
// which exercises the runner's fallback paths instead of hiding them.
type Script struct {
	mu        sync.Mutex
	drafts    map[string][]string
	questions map[string][][]ProposedQuestion
	merges    map[string][]string
	reviews   map[string][]ReviewResult
	errs      map[string]error
	// Calls records every operation in order, for assertions.
	Calls []string
}

// NewScript returns an empty script.
func NewScript() *Script {
	return &Script{
		drafts:    map[string][]string{},
		questions: map[string][][]ProposedQuestion{},
		merges:    map[string][]string{},
		reviews:   map[string][]ReviewResult{},
		errs:      map[string]error{},
	}
}

// QueueDraft schedules draft output for a section; queued values are consumed
// in order, one per call.
func (s *Script) QueueDraft(sectionID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[sectionID] = append(s.drafts[sectionID], text)
}

// QueueQuestions schedules a question batch for a section.
func (s *Script) QueueQuestions(sectionID string, qs []ProposedQuestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[sectionID] = append(s.questions[sectionID], qs)
}

// QueueIntegration schedules integration output for a section.
func (s *Script) QueueIntegration(sectionID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merges[sectionID] = append(s.merges[sectionID], text)
}

// QueueReview schedules a review result for a gate.
func (s *Script) QueueReview(gateID string, result ReviewResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[gateID] = append(s.reviews[gateID], result)
}

// FailWith makes every call for the given section or gate id return err.
func (s *Script) FailWith(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[id] = err
}

func (s *Script) record(op, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, fmt.Sprintf("%s:%s", op, id))
	if err, ok := s.errs[id]; ok {
		return &Error{Op: op, Err: err}
	}
	return nil
}

// DraftSection implements Collaborator.
func (s *Script) DraftSection(ctx context.Context, req DraftRequest) (string, error) {
	if err := s.record("draft", req.SectionID); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", &Error{Op: "draft", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.drafts[req.SectionID]
	if len(queue) == 0 {
		return "", nil
	}
	s.drafts[req.SectionID] = queue[1:]
	return queue[0], nil
}

// GenerateOpenQuestions implements Collaborator.
func (s *Script) GenerateOpenQuestions(ctx context.Context, req QuestionsRequest) ([]ProposedQuestion, error) {
	if err := s.record("questions", req.SectionID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "questions", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.questions[req.SectionID]
	if len(queue) == 0 {
		return nil, nil
	}
	s.questions[req.SectionID] = queue[1:]
	return queue[0], nil
}

// IntegrateAnswers implements Collaborator.
func (s *Script) IntegrateAnswers(ctx context.Context, req IntegrateRequest) (string, error) {
	if err := s.record("integrate", req.SectionID); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", &Error{Op: "integrate", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.merges[req.SectionID]
	if len(queue) == 0 {
		return "", nil
	}
	s.merges[req.SectionID] = queue[1:]
	return queue[0], nil
}

// Review implements Collaborator.
func (s *Script) Review(ctx context.Context, req ReviewRequest) (ReviewResult, error) {
	if err := s.record("review", req.GateID); err != nil {
		return ReviewResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ReviewResult{}, &Error{Op: "review", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.reviews[req.GateID]
	if len(queue) == 0 {
		return ReviewResult{Passed: true}, nil
	}
	s.reviews[req.GateID] = queue[1:]
	return queue[0], nil
}
