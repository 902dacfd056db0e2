// Package registry loads and resolves the declarative per-section handler
// configuration. The registry is keyed doc type -> section id -> config, with
// a _default entry at both levels; it is loaded once at startup into an
// immutable value and passed explicitly to the workflow runner.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the fallback entry name at both registry levels.
const DefaultKey = "_default"

// DocumentQuestionsTable is the id of the document-level open-questions table
// used when a handler names no section table of its own.
const DocumentQuestionsTable = "open_questions"

// Mode selects the handler's action ordering. The set is closed; the runner
// dispatches over it exhaustively.
type Mode string

const (
	ModeIntegrateThenQuestions Mode = "integrate_then_questions"
	ModeQuestionsThenIntegrate Mode = "questions_then_integrate"
	ModeReviewGate             Mode = "review_gate"
)

// OutputFormat shapes what the collaborator is asked to produce.
type OutputFormat string

const (
	FormatProse       OutputFormat = "prose"
	FormatBullets     OutputFormat = "bullets"
	FormatSubsections OutputFormat = "subsections"
)

// Scope selects how much prior-document context a drafting call gathers.
type Scope string

const (
	ScopeCurrentSection  Scope = "current_section"
	ScopeAllPriorSection Scope = "all_prior_sections"
)

// AutoApply gates whether a collaborator-approved patch is applied without a
// human confirmation step. The zero/unspecified value resolves to Never, the
// most conservative policy.
type AutoApply string

const (
	AutoApplyNever     AutoApply = "never"
	AutoApplyAlways    AutoApply = "always"
	AutoApplyOnSuccess AutoApply = "on_success"
)

// HandlerConfig is the immutable per-(docType, section) handler declaration.
type HandlerConfig struct {
	Mode         Mode         `yaml:"mode"`
	OutputFormat OutputFormat `yaml:"output_format"`
	Subsections  bool         `yaml:"subsections"`
	// Dedupe gates duplicate suppression on question insertion; unset means
	// enabled.
	Dedupe             *bool     `yaml:"dedupe"`
	PreserveHeaders    []string  `yaml:"preserve_headers"`
	SanitizeRemove     []string  `yaml:"sanitize_remove"`
	LLMProfile         string    `yaml:"llm_profile"`
	AutoApplyPatches   AutoApply `yaml:"auto_apply_patches"`
	Scope              Scope     `yaml:"scope"`
	ValidationRules    []string  `yaml:"validation_rules"`
	QuestionsTable     string    `yaml:"questions_table"`
	BootstrapQuestions bool      `yaml:"bootstrap_questions"`
	// VersionMilestone, when set, is the document version written through the
	// version subsystem the first time this section completes.
	VersionMilestone string `yaml:"version_milestone"`
}

// DedupeEnabled resolves the tri-state dedupe flag; the default is on.
func (c HandlerConfig) DedupeEnabled() bool {
	return c.Dedupe == nil || *c.Dedupe
}

// Error is the handler-registry failure type: an unparseable source or the
// total absence of a usable entry. Per-section lookups never produce it as
// long as a _default exists.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("registry: %s", e.Reason)
	}
	return fmt.Sprintf("registry: %s: %s", e.Key, e.Reason)
}

// Registry resolves handler configs. Construct with Load or Parse; the inner
// maps are never mutated afterwards.
type Registry struct {
	docTypes map[string]map[string]HandlerConfig
}

// Load reads a registry YAML file. Load-time errors are fatal to
// construction, not deferred to lookup time.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Key: path, Reason: fmt.Sprintf("read registry source: %v", err)}
	}
	reg, err := Parse(data)
	if err != nil {
		if rerr, ok := err.(*Error); ok && rerr.Key == "" {
			rerr.Key = path
		}
		return nil, err
	}
	return reg, nil
}

// Parse decodes registry YAML. The document shape is
// docType -> sectionID -> HandlerConfig, with _default entries.
func Parse(data []byte) (*Registry, error) {
	var raw map[string]map[string]HandlerConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("decode registry source: %v", err)}
	}
	if len(raw) == 0 {
		return nil, &Error{Reason: "registry source defines no doc types"}
	}
	for docType, sections := range raw {
		for sectionID, cfg := range sections {
			normalized, err := cfg.normalized()
			if err != nil {
				return nil, &Error{Key: docType + "." + sectionID, Reason: err.Error()}
			}
			raw[docType][sectionID] = normalized
		}
	}
	return &Registry{docTypes: raw}, nil
}

func (c HandlerConfig) normalized() (HandlerConfig, error) {
	if c.Mode == "" {
		c.Mode = ModeIntegrateThenQuestions
	}
	switch c.Mode {
	case ModeIntegrateThenQuestions, ModeQuestionsThenIntegrate, ModeReviewGate:
	default:
		return HandlerConfig{}, fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.OutputFormat == "" {
		c.OutputFormat = FormatProse
	}
	switch c.OutputFormat {
	case FormatProse, FormatBullets, FormatSubsections:
	default:
		return HandlerConfig{}, fmt.Errorf("unknown output format %q", c.OutputFormat)
	}
	if c.Scope == "" {
		c.Scope = ScopeCurrentSection
	}
	switch c.Scope {
	case ScopeCurrentSection, ScopeAllPriorSection:
	default:
		return HandlerConfig{}, fmt.Errorf("unknown scope %q", c.Scope)
	}
	if c.AutoApplyPatches == "" {
		c.AutoApplyPatches = AutoApplyNever
	}
	switch c.AutoApplyPatches {
	case AutoApplyNever, AutoApplyAlways, AutoApplyOnSuccess:
	default:
		return HandlerConfig{}, fmt.Errorf("unknown auto_apply_patches %q", c.AutoApplyPatches)
	}
	return c, nil
}

// SupportsDocType reports whether the registry has entries for a doc type.
func (r *Registry) SupportsDocType(docType string) bool {
	_, ok := r.docTypes[docType]
	return ok
}

// HandlerFor resolves the handler config for a section. Lookup order: exact
// (docType, sectionID), then (docType, _default), then the top-level _default
// entry. It fails only when no usable entry exists anywhere.
func (r *Registry) HandlerFor(docType, sectionID string) (HandlerConfig, error) {
	if sections, ok := r.docTypes[docType]; ok {
		if cfg, ok := sections[sectionID]; ok {
			return cfg, nil
		}
		if cfg, ok := sections[DefaultKey]; ok {
			return cfg, nil
		}
	}
	if sections, ok := r.docTypes[DefaultKey]; ok {
		if cfg, ok := sections[sectionID]; ok {
			return cfg, nil
		}
		if cfg, ok := sections[DefaultKey]; ok {
			return cfg, nil
		}
	}
	return HandlerConfig{}, &Error{
		Key:    docType + "." + sectionID,
		Reason: "no handler entry and no _default fallback",
	}
}
