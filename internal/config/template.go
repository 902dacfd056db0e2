package config

// DefaultRegistryYAML seeds .specloom/handlers.yaml on init. It covers the
// standard prd sections and ends in a permissive _default so any marker id in
// the document resolves to something.
const DefaultRegistryYAML = `# specloom handler registry: doc type -> section id -> handler config
prd:
  problem_statement:
    mode: integrate_then_questions
    output_format: prose
    scope: current_section
    preserve_headers: ["## Problem Statement"]
    version_milestone: "0.2"
  goals_objectives:
    mode: integrate_then_questions
    output_format: bullets
    scope: all_prior_sections
    preserve_headers: ["## Goals and Objectives"]
    version_milestone: "0.3"
  requirements:
    mode: questions_then_integrate
    output_format: subsections
    scope: all_prior_sections
    questions_table: requirements_questions
    preserve_headers: ["## Requirements"]
    version_milestone: "0.5"
  review_gate:consistency:
    mode: review_gate
    validation_rules:
      - terminology is used consistently across sections
      - requirements do not contradict stated goals
  _default:
    mode: integrate_then_questions
    output_format: prose
    scope: current_section
_default:
  _default:
    mode: integrate_then_questions
    output_format: prose
    scope: current_section
`

// StarterDocument is the marker-annotated skeleton written by init when the
// project has no working document yet.
const StarterDocument = `<!-- loom:doc_type:prd -->
<!-- loom:version:0.1 -->

# Product Requirements

<!-- loom:workflow:order -->
problem_statement
goals_objectives
requirements
review_gate:consistency
<!-- /loom:workflow:order -->

<!-- loom:section:document_control -->
## Document Control

<!-- loom:table:document_control -->
| Field | Value |
|---|---|
| Version | 0.1 |
| Status | Draft |

<!-- loom:section:problem_statement -->
## Problem Statement

[PLACEHOLDER]

<!-- loom:section:goals_objectives -->
## Goals and Objectives

[PLACEHOLDER]

<!-- loom:section:requirements -->
## Requirements

[PLACEHOLDER]

<!-- loom:subsection:functional_requirements type=table -->
### Functional Requirements

<!-- loom:table:functional_requirements -->
| ID | Requirement | Priority |
|---|---|---|

<!-- loom:subsection:requirements_questions type=table -->
### Requirements Questions

<!-- loom:table:requirements_questions -->
| ID | Question | Date | Answer | Status |
|---|---|---|---|---|

<!-- loom:section:open_questions -->
## Open Questions

<!-- loom:table:open_questions -->
| ID | Question | Date | Section | Answer | Status |
|---|---|---|---|---|---|

<!-- loom:section:version_history -->
## Version History

<!-- loom:subsection:version_history -->
### History

<!-- loom:table:version_history -->
| Version | Date | Author | Note |
|---|---|---|---|
| 0.1 | 2026-01-01 | specloom | Initial skeleton |
`
