package version

import (
	"strings"
	"testing"
	"time"

	"github.com/kingrea/specloom/internal/document"
)

var testDate = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

const versionDoc = `<!-- loom:doc_type:prd -->
<!-- loom:version:0.2 -->

<!-- loom:section:document_control -->
## Document Control
<!-- loom:table:document_control -->
| Field | Version | Owner |
|---|---|---|
| PRD | 0.2 | core team |

<!-- loom:subsection:version_history -->
### Version History
<!-- loom:table:version_history -->
| Version | Date | Author | Change |
|---|---|---|---|
| 0.1 | 2026-03-01 | loom | Initial skeleton |
| 0.2 | 2026-03-10 | loom | Drafted overview |

<!-- loom:section:decoy -->
## Decoy
A second table whose first row also holds a placeholder, to catch routing by
"nearest placeholder" instead of by the subsection marker.

<!-- loom:table:decoy_table -->
| Version | Date | Author | Change |
|---|---|---|---|
| [PLACEHOLDER] | [PLACEHOLDER] | [PLACEHOLDER] | [PLACEHOLDER] |
`

func TestParseAndCompare(t *testing.T) {
	v10, err := Parse("0.10")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v9, _ := Parse("0.9")
	if v10.Less(v9) {
		t.Fatal("0.10 compared lexically, want numeric tuple comparison")
	}
	if _, err := Parse("1"); err == nil {
		t.Fatal("expected error for single component")
	}
	if _, err := Parse("a.b"); err == nil {
		t.Fatal("expected error for non-numeric components")
	}
}

func TestUpdateWritesAllThreeLocations(t *testing.T) {
	lines := document.SplitLines(versionDoc)

	out, changed, err := Update(lines, Version{0, 3}, "loom", "Drafted requirements", testDate)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !changed {
		t.Fatal("expected a change")
	}
	doc, err := document.Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if doc.Version != "0.3" {
		t.Fatalf("meta marker = %q, want 0.3", doc.Version)
	}
	joined := strings.Join(out, "\n")
	if !strings.Contains(joined, "| PRD | 0.3 | core team |") {
		t.Fatalf("document-control cell not updated:\n%s", joined)
	}
	history, err := History(out)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	last := history[len(history)-1]
	if last.Version != (Version{0, 3}) || last.Date != "2026-04-02" || last.Note != "Drafted requirements" {
		t.Fatalf("last history row = %+v", last)
	}
	if errs := document.Validate(out); len(errs) != 0 {
		t.Fatalf("document invalid after update: %v", errs)
	}
}

func TestUpdateRewritesKeyRowDocControl(t *testing.T) {
	keyRowDoc := `<!-- loom:doc_type:prd -->
<!-- loom:version:0.1 -->

<!-- loom:section:document_control -->
## Document Control
<!-- loom:table:document_control -->
| Field | Value |
|---|---|
| Version | 0.1 |
| Status | Draft |

<!-- loom:subsection:version_history -->
### Version History
<!-- loom:table:version_history -->
| Version | Date | Author | Change |
|---|---|---|---|
| 0.1 | 2026-03-01 | loom | Initial skeleton |
`
	lines := document.SplitLines(keyRowDoc)

	out, changed, err := Update(lines, Version{0, 2}, "loom", "Drafted overview", testDate)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !changed {
		t.Fatal("expected a change")
	}
	joined := strings.Join(out, "\n")
	if !strings.Contains(joined, "| Version | 0.2 |") {
		t.Fatalf("key row not updated:\n%s", joined)
	}
	if !strings.Contains(joined, "| Status | Draft |") {
		t.Fatalf("unrelated key row was rewritten:\n%s", joined)
	}
	doc, err := document.Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if doc.Version != "0.2" {
		t.Fatalf("meta marker = %q, want 0.2", doc.Version)
	}
}

func TestUpdateIsMonotonic(t *testing.T) {
	lines := document.SplitLines(versionDoc)

	// Equal version: no-op.
	out, changed, err := Update(lines, Version{0, 2}, "loom", "replay", testDate)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if changed || !out.Equal(lines) {
		t.Fatal("equal version should be a no-op")
	}

	// Lower version: no-op.
	out, changed, err = Update(lines, Version{0, 1}, "loom", "regress", testDate)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if changed || !out.Equal(lines) {
		t.Fatal("lower version should be a no-op")
	}
}

func TestUpdateNeverDuplicatesHistoryRows(t *testing.T) {
	lines := document.SplitLines(versionDoc)
	out, _, err := Update(lines, Version{0, 3}, "loom", "first", testDate)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	// Force the meta marker backwards to simulate a partially replayed
	// document, then update to 0.3 again.
	regressed := out.Replace(1, 2, document.Lines{document.VersionMarker("0.2")})
	again, _, err := Update(regressed, Version{0, 3}, "loom", "second", testDate)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	history, _ := History(again)
	count := 0
	for _, e := range history {
		if e.Version == (Version{0, 3}) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("0.3 appears %d times in history, want 1", count)
	}
}

func TestHistoryTargetsSubsectionMarkerNotPlaceholder(t *testing.T) {
	lines := document.SplitLines(versionDoc)
	out, _, err := Update(lines, Version{0, 3}, "loom", "marker routing", testDate)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	joined := strings.Join(out, "\n")
	// The decoy table keeps its placeholder row; the new row lands in the
	// real history table.
	if !strings.Contains(joined, "| [PLACEHOLDER] | [PLACEHOLDER] | [PLACEHOLDER] | [PLACEHOLDER] |") {
		t.Fatal("decoy table was rewritten")
	}
	doc, _ := document.Parse(out)
	decoy, _ := doc.TableByID("decoy_table")
	for row := decoy.Start + 1; row < decoy.End; row++ {
		if strings.Contains(out[row], "0.3") {
			t.Fatalf("version row landed in the decoy table: %q", out[row])
		}
	}
}
