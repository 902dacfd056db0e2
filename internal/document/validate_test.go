package document

import (
	"strings"
	"testing"
)

func TestValidateCleanDocument(t *testing.T) {
	lines, _ := parseSample(t)
	if errs := Validate(lines); len(errs) != 0 {
		t.Fatalf("expected clean document, got %v", errs)
	}
}

func TestValidateDuplicateSection(t *testing.T) {
	lines := SplitLines(sampleDoc)
	dup := append(lines.Clone(), "", "<!-- loom:section:requirements -->", "again")
	errs := Validate(dup)
	var found *DuplicateSectionError
	for _, e := range errs {
		if d, ok := e.(DuplicateSectionError); ok && d.Kind == MarkerSection && d.ID == "requirements" {
			found = &d
			break
		}
	}
	if found == nil {
		t.Fatalf("no duplicate-section error in %v", errs)
	}
	if len(found.Lines) != 2 {
		t.Fatalf("duplicate lines = %v, want 2 entries", found.Lines)
	}
}

func TestValidateOrphanedLock(t *testing.T) {
	lines := Lines{
		"<!-- loom:section:alpha -->",
		"body",
		"<!-- loom:section_lock:beta lock=true -->",
	}
	errs := Validate(lines)
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}
	orphan, ok := errs[0].(OrphanedLockError)
	if !ok || orphan.LockID != "beta" {
		t.Fatalf("unexpected error %v", errs[0])
	}
}

func TestValidateTableSchema(t *testing.T) {
	cases := []struct {
		name   string
		rows   []string
		detail string
	}{
		{
			name:   "missing separator",
			rows:   []string{"| A | B |", "| 1 | 2 |"},
			detail: "missing separator row after header",
		},
		{
			name:   "column count mismatch",
			rows:   []string{"| A | B |", "|---|---|", "| 1 | 2 | 3 |"},
			detail: "columns",
		},
		{
			name:   "non pipe row",
			rows:   []string{"| A | B |", "|---|---|", "loose prose"},
			detail: "not a pipe-delimited row",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines := append(Lines{"<!-- loom:table:t1 -->"}, tc.rows...)
			errs := Validate(lines)
			if len(errs) == 0 {
				t.Fatal("expected a table schema error")
			}
			serr, ok := errs[0].(TableSchemaError)
			if !ok || serr.TableID != "t1" {
				t.Fatalf("unexpected error %v", errs[0])
			}
			if !strings.Contains(serr.Detail, tc.detail) {
				t.Fatalf("detail = %q, want substring %q", serr.Detail, tc.detail)
			}
		})
	}
}

func TestValidateMalformedMarkerBecomesInvalidSpan(t *testing.T) {
	lines := Lines{"<!-- loom:section_lock:x lock=banana -->"}
	errs := Validate(lines)
	if len(errs) != 1 {
		t.Fatalf("errors = %v", errs)
	}
	if _, ok := errs[0].(InvalidSpanError); !ok {
		t.Fatalf("expected InvalidSpanError, got %T", errs[0])
	}
}

func TestRepairRemovesOrphanedLock(t *testing.T) {
	lines := Lines{
		"<!-- loom:section:alpha -->",
		"body",
		"<!-- loom:section_lock:ghost lock=true -->",
	}
	fixed, report := Repair(lines)
	if len(report.Repaired) != 1 {
		t.Fatalf("repaired = %v", report.Repaired)
	}
	if len(report.Unrepairable) != 0 {
		t.Fatalf("unrepairable = %v", report.Unrepairable)
	}
	if errs := Validate(fixed); len(errs) != 0 {
		t.Fatalf("document still invalid: %v", errs)
	}
	if len(fixed) != 2 {
		t.Fatalf("lines = %v", fixed)
	}
}

func TestRepairRegeneratesSeparator(t *testing.T) {
	lines := Lines{
		"<!-- loom:table:t1 -->",
		"| A | B |",
		"| 1 | 2 |",
	}
	fixed, report := Repair(lines)
	if len(report.Repaired) != 1 {
		t.Fatalf("repaired = %v, unrepairable = %v", report.Repaired, report.Unrepairable)
	}
	if errs := Validate(fixed); len(errs) != 0 {
		t.Fatalf("document still invalid: %v", errs)
	}
	if !IsSeparatorRow(fixed[2]) {
		t.Fatalf("line 2 = %q, want separator", fixed[2])
	}
}

func TestRepairReportsUnrepairable(t *testing.T) {
	lines := Lines{
		"<!-- loom:section:dup -->",
		"one",
		"<!-- loom:section:dup -->",
		"two",
	}
	_, report := Repair(lines)
	if len(report.Unrepairable) == 0 {
		t.Fatal("expected unrepairable finding for duplicate sections")
	}
	if len(report.Repaired) != 0 {
		t.Fatalf("repaired = %v, want none", report.Repaired)
	}
}
