// Package qtable models the fixed-schema question tables embedded in loom
// documents: the document-level open_questions table and the per-section
// <section>_questions tables. Rows are pipe-delimited; the separator row is
// regenerated on every serialize and never hand-edited.
package qtable

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/specloom/internal/document"
)

// Status enumerates the question lifecycle. Questions are never deleted; they
// move Open -> Resolved or Open -> Deferred, or are replaced wholesale during
// a document-level table replacement.
type Status string

const (
	StatusOpen     Status = "Open"
	StatusResolved Status = "Resolved"
	StatusDeferred Status = "Deferred"
)

// ParseStatus normalizes a cell value into a Status.
func ParseStatus(cell string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "open", "":
		return StatusOpen, nil
	case "resolved":
		return StatusResolved, nil
	case "deferred":
		return StatusDeferred, nil
	default:
		return "", fmt.Errorf("qtable: unknown status %q", cell)
	}
}

// Question is one row of a question table.
type Question struct {
	ID            string
	Text          string
	Date          string
	Answer        string
	SectionTarget string
	Status        Status
}

// Column sets are fixed per table kind. The document-level table carries the
// extra Section column; per-section tables omit it because the owning section
// is implied by the table id.
var (
	DocumentHeader = []string{"ID", "Question", "Date", "Section", "Answer", "Status"}
	SectionHeader  = []string{"ID", "Question", "Date", "Answer", "Status"}
)

// placeholderAnswers are treated as "no answer yet" when classifying rows.
var placeholderAnswers = map[string]struct{}{
	"[awaiting response]": {},
	"[tbd]":               {},
	"[pending]":           {},
}

// IsPlaceholderAnswer reports whether an answer cell is one of the recognized
// awaiting-a-human sentinels (case-insensitive) or empty.
func IsPlaceholderAnswer(answer string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(answer))
	if trimmed == "" || trimmed == strings.ToLower(document.Placeholder) {
		return true
	}
	_, ok := placeholderAnswers[trimmed]
	return ok
}

// Answered reports whether the question carries a real answer that has not
// been integrated yet.
func (q Question) Answered() bool {
	return !IsPlaceholderAnswer(q.Answer) && q.Status != StatusResolved
}

// OpenUnanswered reports whether the question still waits for an answer.
func (q Question) OpenUnanswered() bool {
	return q.Status == StatusOpen && IsPlaceholderAnswer(q.Answer)
}

// Table is a parsed question table: its rows plus where it lives.
type Table struct {
	ID     string
	Span   document.Span
	Header []string
	Rows   []Question
}

// Parse locates table tableID in the line sequence and decodes its rows.
// Cell whitespace is tolerated; a wrong column count is a TableSchemaError.
func Parse(lines document.Lines, tableID string) (Table, error) {
	doc, err := document.Parse(lines)
	if err != nil {
		return Table{}, err
	}
	span, ok := doc.TableByID(tableID)
	if !ok {
		return Table{}, fmt.Errorf("qtable: no table %q in document", tableID)
	}
	return parseSpan(lines, span)
}

func parseSpan(lines document.Lines, span document.Span) (Table, error) {
	rows := lines[span.Start+1 : span.End]
	if len(rows) < 2 {
		return Table{}, document.TableSchemaError{TableID: span.ID, Detail: "missing header or separator row"}
	}
	header := trimCells(document.SplitPipeRow(rows[0]))
	if !document.IsSeparatorRow(rows[1]) {
		return Table{}, document.TableSchemaError{TableID: span.ID, Detail: "missing separator row after header"}
	}
	table := Table{ID: span.ID, Span: span, Header: header}
	for i, row := range rows[2:] {
		cells := trimCells(document.SplitPipeRow(row))
		if len(cells) != len(header) {
			return Table{}, document.TableSchemaError{
				TableID: span.ID,
				Detail:  fmt.Sprintf("row %d has %d columns, header has %d", i+1, len(cells), len(header)),
			}
		}
		q, err := rowToQuestion(header, cells)
		if err != nil {
			return Table{}, document.TableSchemaError{TableID: span.ID, Detail: err.Error()}
		}
		table.Rows = append(table.Rows, q)
	}
	return table, nil
}

func rowToQuestion(header, cells []string) (Question, error) {
	var q Question
	for i, name := range header {
		switch strings.ToLower(name) {
		case "id":
			q.ID = cells[i]
		case "question":
			q.Text = cells[i]
		case "date":
			q.Date = cells[i]
		case "section":
			q.SectionTarget = cells[i]
		case "answer":
			q.Answer = cells[i]
		case "status":
			status, err := ParseStatus(cells[i])
			if err != nil {
				return Question{}, err
			}
			q.Status = status
		default:
			return Question{}, fmt.Errorf("unrecognized column %q", name)
		}
	}
	return q, nil
}

// Serialize renders header, a regenerated separator, and all rows as lines.
// The table marker line is not included; it belongs to the document skeleton.
func Serialize(header []string, rows []Question) document.Lines {
	out := document.Lines{renderRow(header), separatorFor(header)}
	for _, q := range rows {
		cells := make([]string, len(header))
		for i, name := range header {
			switch strings.ToLower(name) {
			case "id":
				cells[i] = q.ID
			case "question":
				cells[i] = sanitizeCell(q.Text)
			case "date":
				cells[i] = q.Date
			case "section":
				cells[i] = q.SectionTarget
			case "answer":
				cells[i] = sanitizeCell(q.Answer)
			case "status":
				cells[i] = string(q.Status)
			}
		}
		out = append(out, renderRow(cells))
	}
	return out
}

// Apply writes the table's rows back into the line sequence, returning the
// new sequence. The marker line stays put; header and separator are rendered
// fresh.
func (t Table) Apply(lines document.Lines) document.Lines {
	body := Serialize(t.Header, t.Rows)
	return lines.Replace(t.Span.Start+1, t.Span.End, body)
}

func renderRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

func separatorFor(header []string) string {
	parts := make([]string, len(header))
	for i := range header {
		parts[i] = "---"
	}
	return "|" + strings.Join(parts, "|") + "|"
}

// sanitizeCell keeps a cell from breaking the row grammar: pipes become
// slashes and embedded newlines collapse to spaces.
func sanitizeCell(text string) string {
	text = strings.ReplaceAll(text, "|", "/")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

var idSeqRe = regexp.MustCompile(`-Q(\d+)$`)

// NextID computes the next question id for a section: <section>-Q<N> with N
// one greater than the highest sequence number already present. Sequence
// numbers are never reused, even after rows change status.
func (t Table) NextID(sectionID string) string {
	max := 0
	for _, q := range t.Rows {
		if !strings.HasPrefix(q.ID, sectionID+"-Q") {
			continue
		}
		m := idSeqRe.FindStringSubmatch(q.ID)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s-Q%d", sectionID, max+1)
}

// NormalizeKey reduces a question description to a comparison key so that
// cosmetic whitespace and case differences count as duplicates.
func NormalizeKey(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	return strings.Join(fields, " ")
}

// Insert adds a new question row unless a row with the same (section,
// normalized description) already exists. It reports whether a row was added.
// New rows are always Open with an empty answer and the supplied date.
func (t *Table) Insert(sectionID, text string, now time.Time) (Question, bool) {
	key := NormalizeKey(text)
	for _, q := range t.Rows {
		if q.SectionTarget != "" && q.SectionTarget != sectionID {
			continue
		}
		if NormalizeKey(q.Text) == key {
			return Question{}, false
		}
	}
	return t.Append(sectionID, text, now), true
}

// Append adds a question row without the duplicate check, for handlers that
// disable dedupe.
func (t *Table) Append(sectionID, text string, now time.Time) Question {
	q := Question{
		ID:            t.NextID(sectionID),
		Text:          text,
		Date:          now.Format("2006-01-02"),
		Answer:        "",
		SectionTarget: sectionID,
		Status:        StatusOpen,
	}
	t.Rows = append(t.Rows, q)
	return q
}

// SetStatus transitions a row's status by id.
func (t *Table) SetStatus(questionID string, status Status) error {
	for i := range t.Rows {
		if t.Rows[i].ID == questionID {
			t.Rows[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("qtable: no question %q in table %q", questionID, t.ID)
}

// ForSection filters rows targeting a section. Per-section tables have no
// Section column, so every row matches.
func (t Table) ForSection(sectionID string) []Question {
	var out []Question
	for _, q := range t.Rows {
		if q.SectionTarget == "" || q.SectionTarget == sectionID {
			out = append(out, q)
		}
	}
	return out
}

// Replace swaps the document-level table's rows for a full replacement set.
// Deliberate last-write-wins: no merge, no dedupe against prior rows, so
// conflict resolution stays simple and auditable.
func Replace(lines document.Lines, tableID string, rows []Question) (document.Lines, error) {
	table, err := Parse(lines, tableID)
	if err != nil {
		return nil, err
	}
	table.Rows = rows
	return table.Apply(lines), nil
}
