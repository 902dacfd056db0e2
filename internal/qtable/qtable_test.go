package qtable

import (
	"strings"
	"testing"
	"time"

	"github.com/kingrea/specloom/internal/document"
)

var testClock = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

const tableDoc = `<!-- loom:section:requirements -->
## Requirements

<!-- loom:table:requirements_questions -->
| ID | Question | Date | Answer | Status |
|---|---|---|---|---|
| requirements-Q1 | What platforms? | 2026-03-01 | Linux and macOS | Open |
| requirements-Q2 | Offline mode? | 2026-03-02 | [awaiting response] | Open |
| requirements-Q3 | Licensing? | 2026-03-02 |  | Deferred |

<!-- loom:table:open_questions -->
| ID | Question | Date | Section | Answer | Status |
|---|---|---|---|---|---|
| scope-Q1 | Who signs off? | 2026-02-20 | scope | | Open |
`

func parseFixture(t *testing.T, tableID string) (document.Lines, Table) {
	t.Helper()
	lines := document.SplitLines(tableDoc)
	table, err := Parse(lines, tableID)
	if err != nil {
		t.Fatalf("parse table %s: %v", tableID, err)
	}
	return lines, table
}

func TestParseSectionTable(t *testing.T) {
	_, table := parseFixture(t, "requirements_questions")

	if len(table.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(table.Rows))
	}
	q1 := table.Rows[0]
	if q1.ID != "requirements-Q1" || q1.Text != "What platforms?" || q1.Status != StatusOpen {
		t.Fatalf("q1 = %+v", q1)
	}
	if !q1.Answered() {
		t.Fatal("q1 should count as answered")
	}
	if q2 := table.Rows[1]; !q2.OpenUnanswered() {
		t.Fatalf("q2 should be open and unanswered: %+v", q2)
	}
	if q3 := table.Rows[2]; q3.Status != StatusDeferred {
		t.Fatalf("q3 status = %s", q3.Status)
	}
}

func TestParseRejectsWrongColumnCount(t *testing.T) {
	lines := document.Lines{
		"<!-- loom:table:bad -->",
		"| ID | Question | Date | Answer | Status |",
		"|---|---|---|---|---|",
		"| x-Q1 | too | few |",
	}
	_, err := Parse(lines, "bad")
	if err == nil {
		t.Fatal("expected TableSchemaError")
	}
	if _, ok := err.(document.TableSchemaError); !ok {
		t.Fatalf("error %T, want TableSchemaError", err)
	}
}

func TestSerializeRegeneratesSeparator(t *testing.T) {
	lines, table := parseFixture(t, "requirements_questions")
	updated := table.Apply(lines)
	if errs := document.Validate(updated); len(errs) != 0 {
		t.Fatalf("serialized table invalid: %v", errs)
	}
	reparsed, err := Parse(updated, "requirements_questions")
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(reparsed.Rows) != len(table.Rows) {
		t.Fatalf("rows = %d, want %d", len(reparsed.Rows), len(table.Rows))
	}
	for i := range table.Rows {
		if reparsed.Rows[i] != table.Rows[i] {
			t.Fatalf("row %d = %+v, want %+v", i, reparsed.Rows[i], table.Rows[i])
		}
	}
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	_, table := parseFixture(t, "requirements_questions")

	q, added := table.Insert("requirements", "What about accessibility?", testClock)
	if !added {
		t.Fatal("expected insertion")
	}
	if q.ID != "requirements-Q4" {
		t.Fatalf("id = %s, want requirements-Q4", q.ID)
	}
	if q.Status != StatusOpen || q.Answer != "" || q.Date != "2026-03-14" {
		t.Fatalf("new row = %+v", q)
	}

	// IDs keep climbing even if earlier rows changed; uniqueness holds.
	q2, _ := table.Insert("requirements", "Another question entirely", testClock)
	if q2.ID != "requirements-Q5" {
		t.Fatalf("second id = %s", q2.ID)
	}
	seen := map[string]bool{}
	for _, row := range table.Rows {
		if seen[row.ID] {
			t.Fatalf("duplicate id %s", row.ID)
		}
		seen[row.ID] = true
	}
}

func TestInsertDeduplicatesByNormalizedText(t *testing.T) {
	_, table := parseFixture(t, "requirements_questions")

	before := len(table.Rows)
	if _, added := table.Insert("requirements", "  what   PLATFORMS? ", testClock); added {
		t.Fatal("cosmetic whitespace variant should be a duplicate")
	}
	if len(table.Rows) != before {
		t.Fatalf("rows = %d, want %d", len(table.Rows), before)
	}
}

func TestDocumentTableReplaceIsLastWriteWins(t *testing.T) {
	lines, _ := parseFixture(t, "open_questions")

	replacement := []Question{
		{ID: "goals-Q1", Text: "New question", Date: "2026-03-14", SectionTarget: "goals", Status: StatusOpen},
	}
	updated, err := Replace(lines, "open_questions", replacement)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	table, err := Parse(updated, "open_questions")
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(table.Rows) != 1 || table.Rows[0].ID != "goals-Q1" {
		t.Fatalf("rows = %+v, want only the replacement", table.Rows)
	}
	// The neighboring section table is untouched.
	if _, err := Parse(updated, "requirements_questions"); err != nil {
		t.Fatalf("sibling table corrupted: %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	_, table := parseFixture(t, "requirements_questions")
	if err := table.SetStatus("requirements-Q1", StatusResolved); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if table.Rows[0].Status != StatusResolved {
		t.Fatalf("status = %s", table.Rows[0].Status)
	}
	if err := table.SetStatus("requirements-Q9", StatusResolved); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestSanitizeCellStripsPipesAndNewlines(t *testing.T) {
	_, table := parseFixture(t, "requirements_questions")
	if _, added := table.Insert("requirements", "Does a | pipe\nbreak rows?", testClock); !added {
		t.Fatal("expected insertion")
	}
	lines := Serialize(table.Header, table.Rows)
	for _, line := range lines {
		if strings.Contains(line, "\n") {
			t.Fatal("newline leaked into a row")
		}
	}
	reparsed := append(document.Lines{"<!-- loom:table:x -->"}, lines...)
	table2, err := Parse(reparsed, "x")
	if err != nil {
		t.Fatalf("sanitized table failed to reparse: %v", err)
	}
	last := table2.Rows[len(table2.Rows)-1]
	if strings.Contains(last.Text, "|") {
		t.Fatalf("pipe survived sanitization: %q", last.Text)
	}
}
