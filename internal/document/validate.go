package document

import (
	"fmt"
	"sort"
	"strings"
)

// StructuralError is one invariant violation found by Validate. The concrete
// types below form a closed taxonomy; callers switch on them to decide between
// "needs more work" and "needs manual repair".
type StructuralError interface {
	error
	structural()
}

// DuplicateSectionError reports two markers of the same kind claiming one id.
type DuplicateSectionError struct {
	Kind  MarkerKind
	ID    string
	Lines []int
}

func (e DuplicateSectionError) Error() string {
	return fmt.Sprintf("document: duplicate %s marker %q at lines %v", e.Kind, e.ID, oneBased(e.Lines))
}
func (DuplicateSectionError) structural() {}

// OrphanedLockError reports a lock marker referencing no existing section.
type OrphanedLockError struct {
	LockID string
	Line   int
}

func (e OrphanedLockError) Error() string {
	return fmt.Sprintf("document: lock marker %q at line %d references no section", e.LockID, e.Line+1)
}
func (OrphanedLockError) structural() {}

// TableSchemaError reports a malformed table region: missing separator row or
// a row whose column count disagrees with the header.
type TableSchemaError struct {
	TableID string
	Detail  string
}

func (e TableSchemaError) Error() string {
	return fmt.Sprintf("document: table %q: %s", e.TableID, e.Detail)
}
func (TableSchemaError) structural() {}

// InvalidSpanError reports an out-of-bounds or inverted span. It is also
// raised by the editing engine before any mutation is attempted.
type InvalidSpanError struct {
	Detail string
}

func (e InvalidSpanError) Error() string {
	return fmt.Sprintf("document: invalid span: %s", e.Detail)
}
func (InvalidSpanError) structural() {}

// Validate runs the full invariant battery over a line sequence and returns
// every violation found. It is pure and total: it never raises, and an empty
// result means the document is structurally sound. Parse failures are folded
// into the result as InvalidSpanError entries so callers have one gate.
func Validate(lines Lines) []StructuralError {
	doc, err := Parse(lines)
	if err != nil {
		return []StructuralError{InvalidSpanError{Detail: err.Error()}}
	}
	var errs []StructuralError
	errs = append(errs, duplicateErrors(MarkerSection, sectionStarts(doc.Sections))...)
	errs = append(errs, duplicateErrors(MarkerTable, sectionStarts(doc.Tables))...)
	errs = append(errs, duplicateSubsectionErrors(doc)...)
	lockStarts := map[string][]int{}
	for _, lock := range doc.Locks {
		lockStarts[lock.ID] = append(lockStarts[lock.ID], lock.Line)
	}
	errs = append(errs, duplicateErrors(MarkerLock, lockStarts)...)
	for _, lock := range doc.Locks {
		if _, ok := doc.SectionByID(lock.ID); !ok {
			errs = append(errs, OrphanedLockError{LockID: lock.ID, Line: lock.Line})
		}
	}
	for _, span := range doc.Sections {
		if bad, detail := badSpan(span, len(lines)); bad {
			errs = append(errs, InvalidSpanError{Detail: detail})
		}
	}
	for _, tbl := range doc.Tables {
		errs = append(errs, tableErrors(lines, tbl)...)
	}
	return errs
}

func sectionStarts(spans []Span) map[string][]int {
	starts := map[string][]int{}
	for _, s := range spans {
		starts[s.ID] = append(starts[s.ID], s.Start)
	}
	return starts
}

func duplicateErrors(kind MarkerKind, starts map[string][]int) []StructuralError {
	var errs []StructuralError
	for id, lines := range starts {
		if len(lines) > 1 {
			errs = append(errs, DuplicateSectionError{Kind: kind, ID: id, Lines: lines})
		}
	}
	sortStructural(errs)
	return errs
}

// duplicateSubsectionErrors flags repeated subsection ids within one section.
// The same subsection id in different sections (questions_issues, say) is fine.
func duplicateSubsectionErrors(doc Doc) []StructuralError {
	starts := map[string][]int{}
	for _, sub := range doc.Subsections {
		key := sub.Section + "/" + sub.ID
		starts[key] = append(starts[key], sub.Start)
	}
	var errs []StructuralError
	for key, lines := range starts {
		if len(lines) > 1 {
			errs = append(errs, DuplicateSectionError{Kind: MarkerSubsection, ID: key, Lines: lines})
		}
	}
	sortStructural(errs)
	return errs
}

func badSpan(span Span, docLen int) (bool, string) {
	if span.Start < 0 || span.End > docLen || span.Start >= span.End {
		return true, fmt.Sprintf("%s spans [%d,%d) outside document of %d lines", span.ID, span.Start, span.End, docLen)
	}
	return false, ""
}

func tableErrors(lines Lines, tbl Span) []StructuralError {
	rows := lines[tbl.Start+1 : tbl.End]
	if len(rows) == 0 {
		return []StructuralError{TableSchemaError{TableID: tbl.ID, Detail: "missing header row"}}
	}
	header := rows[0]
	if !isPipeRow(header) {
		return []StructuralError{TableSchemaError{TableID: tbl.ID, Detail: "header row is not a pipe-delimited row"}}
	}
	if len(rows) < 2 || !isSeparatorRow(rows[1]) {
		return []StructuralError{TableSchemaError{TableID: tbl.ID, Detail: "missing separator row after header"}}
	}
	want := pipeColumnCount(header)
	var errs []StructuralError
	for i, row := range rows[2:] {
		if !isPipeRow(row) {
			errs = append(errs, TableSchemaError{TableID: tbl.ID, Detail: fmt.Sprintf("row %d is not a pipe-delimited row", i+1)})
			continue
		}
		if got := pipeColumnCount(row); got != want {
			errs = append(errs, TableSchemaError{TableID: tbl.ID, Detail: fmt.Sprintf("row %d has %d columns, header has %d", i+1, got, want)})
		}
	}
	return errs
}

func isPipeRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") && strings.Count(trimmed, "|") >= 2
}

func isSeparatorRow(line string) bool {
	if !isPipeRow(line) {
		return false
	}
	for _, cell := range splitPipeRow(line) {
		cell = strings.TrimSpace(cell)
		if cell == "" || strings.Trim(cell, "-:") != "" {
			return false
		}
	}
	return true
}

func pipeColumnCount(line string) int {
	return len(splitPipeRow(line))
}

// splitPipeRow splits a pipe row into raw cell contents, dropping the empty
// leading and trailing fields produced by the outer pipes.
func splitPipeRow(line string) []string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "|")
	trimmed = strings.TrimSuffix(trimmed, "|")
	return strings.Split(trimmed, "|")
}

// SplitPipeRow exposes cell splitting for the question-table model.
func SplitPipeRow(line string) []string { return splitPipeRow(line) }

// IsPipeRow exposes row detection for the editing heuristics.
func IsPipeRow(line string) bool { return isPipeRow(line) }

// IsSeparatorRow exposes separator detection for the question-table model.
func IsSeparatorRow(line string) bool { return isSeparatorRow(line) }

func sortStructural(errs []StructuralError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
}

func oneBased(lines []int) []int {
	out := make([]int, len(lines))
	for i, n := range lines {
		out[i] = n + 1
	}
	return out
}
