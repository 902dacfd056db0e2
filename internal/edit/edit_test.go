package edit

import (
	"strings"
	"testing"

	"github.com/kingrea/specloom/internal/document"
)

const editDoc = `<!-- loom:doc_type:prd -->
<!-- loom:section:overview -->
## Overview
Old overview text.

<!-- loom:section:requirements -->
## Requirements
Old intro.

<!-- loom:subsection:functional type=table -->
### Functional
<!-- loom:table:functional_reqs -->
| ID | Requirement | Priority |
|---|---|---|
| R1 | Old row | low |

<!-- loom:subsection:questions_issues -->
### Questions
<!-- loom:table:requirements_questions -->
| ID | Question | Date | Answer | Status |
|---|---|---|---|---|

<!-- loom:section_lock:requirements lock=false -->
`

func fixture(t *testing.T) (document.Lines, document.Doc) {
	t.Helper()
	lines := document.SplitLines(editDoc)
	doc, err := document.Parse(lines)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return lines, doc
}

// markerLines returns every structural marker with its text, in order.
func markerLines(lines document.Lines) []string {
	var out []string
	for _, line := range lines {
		if document.IsMarkerLine(line) {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

func TestReplaceSpanBodyEditLocality(t *testing.T) {
	lines, doc := fixture(t)
	span, _ := doc.SectionByID("overview")

	out, err := ReplaceSpanBody(lines, span, "New overview.\nSecond line.", PolicyStrip)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	// Everything before the span is byte-identical.
	for i := 0; i <= span.Start; i++ {
		if out[i] != lines[i] {
			t.Fatalf("line %d changed: %q -> %q", i, lines[i], out[i])
		}
	}
	// Everything after the span is byte-identical, shifted by the delta.
	delta := len(out) - len(lines)
	for i := span.End; i < len(lines); i++ {
		if out[i+delta] != lines[i] {
			t.Fatalf("trailing line %d changed: %q -> %q", i, lines[i], out[i+delta])
		}
	}
	// Every marker survives in the same relative order.
	before, after := markerLines(lines), markerLines(out)
	if len(before) != len(after) {
		t.Fatalf("marker count %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("marker %d changed: %q -> %q", i, before[i], after[i])
		}
	}
	if !strings.Contains(strings.Join(out, "\n"), "New overview.") {
		t.Fatal("new body missing")
	}
}

func TestReplaceSpanBodyGuards(t *testing.T) {
	lines, _ := fixture(t)
	cases := []document.Span{
		{ID: "inverted", Start: 5, End: 5},
		{ID: "negative", Start: -1, End: 3},
		{ID: "overflow", Start: 2, End: len(lines) + 1},
	}
	for _, span := range cases {
		if _, err := ReplaceSpanBody(lines, span, "x", PolicyStrip); err == nil {
			t.Fatalf("span %+v accepted", span)
		} else if _, ok := err.(document.InvalidSpanError); !ok {
			t.Fatalf("span %+v: error %T, want InvalidSpanError", span, err)
		}
	}
}

func TestSanitizeStripVsReject(t *testing.T) {
	payload := "Real content.\n<!-- loom:section:injected -->\nMore content."

	clean, stripped, err := Sanitize(payload, PolicyStrip)
	if err != nil {
		t.Fatalf("strip: %v", err)
	}
	if len(stripped) != 1 {
		t.Fatalf("stripped = %v", stripped)
	}
	if strings.Contains(clean, "loom:section") {
		t.Fatalf("marker survived strip: %q", clean)
	}

	if _, _, err := Sanitize(payload, PolicyReject); err == nil {
		t.Fatal("reject policy accepted a marker")
	} else if _, ok := err.(MarkerInBodyError); !ok {
		t.Fatalf("error %T, want MarkerInBodyError", err)
	}
}

func TestReplacePreambleKeepsHeaders(t *testing.T) {
	lines, doc := fixture(t)

	out, err := ReplacePreamble(lines, doc, "requirements", "Fresh intro prose.", []string{"## Requirements"}, PolicyStrip)
	if err != nil {
		t.Fatalf("replace preamble: %v", err)
	}
	joined := strings.Join(out, "\n")
	if !strings.Contains(joined, "## Requirements\nFresh intro prose.") {
		t.Fatalf("header not preserved above new prose:\n%s", joined)
	}
	if strings.Contains(joined, "Old intro.") {
		t.Fatal("old preamble text survived")
	}
	// Subsections are untouched.
	if !strings.Contains(joined, "| R1 | Old row | low |") {
		t.Fatal("subsection table was modified")
	}
	if errs := document.Validate(out); len(errs) != 0 {
		t.Fatalf("edited document invalid: %v", errs)
	}
}

func TestRouteTableContent(t *testing.T) {
	lines, doc := fixture(t)
	raw := "The system shall parse documents.\n\n" +
		"| ID | Requirement | Priority |\n" +
		"|---|---|---|\n" +
		"| R2 | Validate structure | high |\n" +
		"| R3 | Route tables | medium |\n\n" +
		"Closing prose."

	out, leftover, err := RouteTableContent(lines, doc, "requirements", raw)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	joined := strings.Join(out, "\n")
	if !strings.Contains(joined, "| R2 | Validate structure | high |") {
		t.Fatalf("row not routed into table:\n%s", joined)
	}
	if strings.Contains(leftover, "| R2 |") {
		t.Fatalf("routed rows leaked into prose: %q", leftover)
	}
	if !strings.Contains(leftover, "The system shall parse documents.") || !strings.Contains(leftover, "Closing prose.") {
		t.Fatalf("prose missing from leftover: %q", leftover)
	}
	// The questions_issues table keeps its own schema and rows.
	if !strings.Contains(joined, "| ID | Question | Date | Answer | Status |") {
		t.Fatal("questions table header disturbed")
	}
	if errs := document.Validate(out); len(errs) != 0 {
		t.Fatalf("routed document invalid: %v", errs)
	}
}

func TestRouteTableContentFallsBackToProse(t *testing.T) {
	lines, doc := fixture(t)
	// Two columns never match the three-column functional table.
	raw := "| A | B |\n| 1 | 2 |"

	out, leftover, err := RouteTableContent(lines, doc, "requirements", raw)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !out.Equal(lines) {
		t.Fatal("document changed despite no routable rows")
	}
	if !strings.Contains(leftover, "| A | B |") {
		t.Fatalf("unrouted rows missing from prose: %q", leftover)
	}
}

func TestSplitSubsectionBlocks(t *testing.T) {
	raw := "Lead-in prose.\n\n### Success Metrics\n- metric one\n\n### Risks\nSome risk."
	blocks, preamble := SplitSubsectionBlocks(raw)
	if preamble != "Lead-in prose." {
		t.Fatalf("preamble = %q", preamble)
	}
	if blocks["success_metrics"] != "- metric one" {
		t.Fatalf("success_metrics = %q", blocks["success_metrics"])
	}
	if blocks["risks"] != "Some risk." {
		t.Fatalf("risks = %q", blocks["risks"])
	}
}

func TestDiffStatsAndPreview(t *testing.T) {
	before := document.Lines{"a", "b", "c"}
	after := document.Lines{"a", "x", "c", "d"}

	stats := DiffStats(before, after)
	if stats.Added != 2 || stats.Removed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	preview := DiffPreview(before, after, 10)
	joined := strings.Join(preview, "\n")
	if !strings.Contains(joined, "- b") || !strings.Contains(joined, "+ x") {
		t.Fatalf("preview = %v", preview)
	}
	if limited := DiffPreview(before, after, 1); len(limited) != 1 {
		t.Fatalf("limited preview = %v", limited)
	}
}
