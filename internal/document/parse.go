package document

import (
	"fmt"
	"strings"
)

// Span is a half-open line range [Start, End) owned by one identifier.
type Span struct {
	ID    string
	Start int
	End   int
}

// Len returns the number of lines inside the span, marker line included.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether the line index falls inside the span.
func (s Span) Contains(line int) bool { return line >= s.Start && line < s.End }

// SubsectionSpan is a nested span inside a section. Start is the subsection
// marker line; End is exclusive.
type SubsectionSpan struct {
	Span
	// Section is the id of the enclosing section.
	Section string
	// TableTyped records the type=table marker attribute, meaning the
	// subsection body is expected to hold a markdown table.
	TableTyped bool
}

// LockMarker is a single-line advisory lock for a section.
type LockMarker struct {
	ID     string
	Locked bool
	Line   int
}

// Doc is the parsed span model of a document. It references line indexes in
// the sequence it was parsed from and becomes stale after any mutation;
// callers re-parse after every accepted edit.
type Doc struct {
	Sections    []Span
	Subsections []SubsectionSpan
	Tables      []Span
	Locks       []LockMarker
	// Order is the workflow-order block: section ids and review_gate:<name>
	// entries in execution order.
	Order   []string
	DocType string
	Version string
}

// Parse scans the line sequence and produces the span model. It is a pure
// function of its input. Malformed marker payloads abort with a ParseError;
// well-formed markers with unknown ids parse fine.
func Parse(lines Lines) (Doc, error) {
	var doc Doc
	inOrder := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == orderOpenMarker {
			if inOrder {
				return Doc{}, &ParseError{Line: i, Text: trimmed, Reason: "nested workflow:order block"}
			}
			inOrder = true
			continue
		}
		if trimmed == orderCloseMarker {
			if !inOrder {
				return Doc{}, &ParseError{Line: i, Text: trimmed, Reason: "workflow:order close without open"}
			}
			inOrder = false
			continue
		}
		if inOrder {
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			doc.Order = append(doc.Order, trimmed)
			continue
		}
		marker, ok, err := ParseMarkerLine(line, i)
		if err != nil {
			return Doc{}, err
		}
		if !ok {
			continue
		}
		switch marker.Kind {
		case MarkerSection:
			doc.Sections = append(doc.Sections, Span{ID: marker.ID, Start: i})
		case MarkerSubsection:
			doc.Subsections = append(doc.Subsections, SubsectionSpan{
				Span:       Span{ID: marker.ID, Start: i},
				TableTyped: marker.TableTyped,
			})
		case MarkerTable:
			doc.Tables = append(doc.Tables, Span{ID: marker.ID, Start: i})
		case MarkerLock:
			doc.Locks = append(doc.Locks, LockMarker{ID: marker.ID, Locked: marker.Locked, Line: i})
		case MarkerDocType:
			doc.DocType = marker.ID
		case MarkerVersion:
			doc.Version = marker.ID
		}
	}
	if inOrder {
		return Doc{}, &ParseError{Line: len(lines) - 1, Text: orderOpenMarker, Reason: "unterminated workflow:order block"}
	}
	doc.closeSections(lines)
	doc.closeSubsections()
	doc.closeTables(lines)
	return doc, nil
}

// closeSections computes each section's End: the next section marker, the
// section's own lock marker, or end of document, whichever comes first.
func (d *Doc) closeSections(lines Lines) {
	for i := range d.Sections {
		end := len(lines)
		if i+1 < len(d.Sections) {
			end = d.Sections[i+1].Start
		}
		for _, lock := range d.Locks {
			if lock.ID == d.Sections[i].ID && lock.Line > d.Sections[i].Start && lock.Line < end {
				end = lock.Line
			}
		}
		d.Sections[i].End = end
	}
}

// closeSubsections assigns each subsection its enclosing section and End: the
// next subsection marker inside the same section, or the section's End. Any
// later subsection start inside the enclosing section's range necessarily
// belongs to the same section, so a plain range check suffices.
func (d *Doc) closeSubsections() {
	for i := range d.Subsections {
		sub := &d.Subsections[i]
		for _, sec := range d.Sections {
			if sec.Contains(sub.Start) {
				sub.Section = sec.ID
				sub.End = sec.End
				break
			}
		}
		if sub.End == 0 {
			// Subsection marker outside any section; close it at its own
			// marker so the validator can flag it without a panic.
			sub.End = sub.Start + 1
			continue
		}
		for j := range d.Subsections {
			next := d.Subsections[j].Start
			if next > sub.Start && next < sub.End {
				sub.End = next
			}
		}
	}
}

// closeTables computes each table's End: the header row plus separator plus
// data rows, terminated by a blank line, another marker, or end of document.
func (d *Doc) closeTables(lines Lines) {
	for i := range d.Tables {
		end := d.Tables[i].Start + 1
		for end < len(lines) {
			trimmed := strings.TrimSpace(lines[end])
			if trimmed == "" || IsMarkerLine(lines[end]) {
				break
			}
			end++
		}
		d.Tables[i].End = end
	}
}

// SectionByID returns the section span for an id.
func (d Doc) SectionByID(id string) (Span, bool) {
	for _, sec := range d.Sections {
		if sec.ID == id {
			return sec, true
		}
	}
	return Span{}, false
}

// TableByID returns the table span for an id.
func (d Doc) TableByID(id string) (Span, bool) {
	for _, tbl := range d.Tables {
		if tbl.ID == id {
			return tbl, true
		}
	}
	return Span{}, false
}

// SubsectionsOf returns the subsections nested in a section, in order.
func (d Doc) SubsectionsOf(sectionID string) []SubsectionSpan {
	var out []SubsectionSpan
	for _, sub := range d.Subsections {
		if sub.Section == sectionID {
			out = append(out, sub)
		}
	}
	return out
}

// SubsectionOf returns one named subsection of a section.
func (d Doc) SubsectionOf(sectionID, subID string) (SubsectionSpan, bool) {
	for _, sub := range d.Subsections {
		if sub.Section == sectionID && sub.ID == subID {
			return sub, true
		}
	}
	return SubsectionSpan{}, false
}

// LockFor returns the lock marker for a section, if any.
func (d Doc) LockFor(sectionID string) (LockMarker, bool) {
	for _, lock := range d.Locks {
		if lock.ID == sectionID {
			return lock, true
		}
	}
	return LockMarker{}, false
}

// Preamble returns the line range of a section's content before its first
// subsection marker (or the whole body if it has none). The range excludes
// the section marker line itself.
func (d Doc) Preamble(sectionID string) (Span, error) {
	sec, ok := d.SectionByID(sectionID)
	if !ok {
		return Span{}, fmt.Errorf("document: no section %q", sectionID)
	}
	end := sec.End
	for _, sub := range d.SubsectionsOf(sectionID) {
		if sub.Start < end {
			end = sub.Start
		}
	}
	return Span{ID: sectionID, Start: sec.Start + 1, End: end}, nil
}

// SectionBody extracts the body text of a section (everything after its
// marker line), used when gathering prior-section context.
func (d Doc) SectionBody(lines Lines, sectionID string) (string, bool) {
	sec, ok := d.SectionByID(sectionID)
	if !ok {
		return "", false
	}
	body := lines[sec.Start+1 : sec.End]
	return strings.TrimSpace(strings.Join(body, "\n")), true
}
