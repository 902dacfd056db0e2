// Package version maintains the document's MAJOR.MINOR version across its
// three embedded locations: the version meta marker, the Version cell of the
// document-control table, and the version-history table. The three must agree
// after every update; updates are monotonic and never duplicate history rows.
package version

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/specloom/internal/document"
)

// Well-known structural ids the version subsystem writes through. The history
// table is located strictly via its subsection marker, never by scanning for
// a nearest placeholder row, so documents with several placeholder-bearing
// tables cannot misroute a version row.
const (
	HistorySubsection = "version_history"
	HistoryTable      = "version_history"
	DocControlTable   = "document_control"
	docControlVersion = "Version"
)

// Version is a parsed MAJOR.MINOR pair.
type Version struct {
	Major int
	Minor int
}

// Parse decodes "MAJOR.MINOR".
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("version: %q is not MAJOR.MINOR", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("version: bad major in %q", s)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("version: bad minor in %q", s)
	}
	if major < 0 || minor < 0 {
		return Version{}, fmt.Errorf("version: negative component in %q", s)
	}
	return Version{Major: major, Minor: minor}, nil
}

// String renders MAJOR.MINOR.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less compares by numeric tuple, not lexically: 0.10 > 0.9.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

// Entry is one version-history row.
type Entry struct {
	Version Version
	Date    string
	Author  string
	Note    string
}

// Update writes a new version into all three locations. It is a no-op (with
// ok=false) when next is not strictly greater than the current document
// version, so replayed milestones never regress or duplicate history. The
// returned sequence is a new value; the input is untouched.
func Update(lines document.Lines, next Version, author, note string, date time.Time) (document.Lines, bool, error) {
	doc, err := document.Parse(lines)
	if err != nil {
		return nil, false, fmt.Errorf("version: %w", err)
	}
	if doc.Version != "" {
		current, err := Parse(doc.Version)
		if err != nil {
			return nil, false, err
		}
		if !current.Less(next) {
			return lines, false, nil
		}
	}

	out, err := updateMetaMarker(lines, next)
	if err != nil {
		return nil, false, err
	}
	out, err = updateDocControl(out, next)
	if err != nil {
		return nil, false, err
	}
	out, err = appendHistoryRow(out, Entry{
		Version: next,
		Date:    date.Format("2006-01-02"),
		Author:  author,
		Note:    note,
	})
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func updateMetaMarker(lines document.Lines, next Version) (document.Lines, error) {
	for i, line := range lines {
		marker, ok, err := document.ParseMarkerLine(line, i)
		if err != nil {
			return nil, err
		}
		if ok && marker.Kind == document.MarkerVersion {
			return lines.Replace(i, i+1, document.Lines{document.VersionMarker(next.String())}), nil
		}
	}
	return nil, fmt.Errorf("version: document has no version meta marker")
}

// updateDocControl rewrites the Version cell of the document-control table.
// Both table dialects are supported: a Version header column, and the key-row
// layout (| Version | <value> |) the starter document uses. A document without
// the table is legal; the marker and history table still carry the version.
func updateDocControl(lines document.Lines, next Version) (document.Lines, error) {
	doc, err := document.Parse(lines)
	if err != nil {
		return nil, err
	}
	tbl, ok := doc.TableByID(DocControlTable)
	if !ok {
		return lines, nil
	}
	if tbl.Len() < 3 {
		return nil, document.TableSchemaError{TableID: DocControlTable, Detail: "missing header or separator row"}
	}
	header := document.SplitPipeRow(lines[tbl.Start+1])
	col := -1
	for i, cell := range header {
		if strings.EqualFold(strings.TrimSpace(cell), docControlVersion) {
			col = i
		}
	}
	out := lines
	keyRowFound := false
	for row := tbl.Start + 3; row < tbl.End; row++ {
		cells := document.SplitPipeRow(out[row])
		trimmed := make([]string, len(cells))
		for i, c := range cells {
			trimmed[i] = strings.TrimSpace(c)
		}
		switch {
		case col >= 0:
			if col >= len(trimmed) {
				continue
			}
			trimmed[col] = next.String()
		case len(trimmed) >= 2 && strings.EqualFold(trimmed[0], docControlVersion):
			trimmed[1] = next.String()
			keyRowFound = true
		default:
			continue
		}
		out = out.Replace(row, row+1, document.Lines{"| " + strings.Join(trimmed, " | ") + " |"})
	}
	if col < 0 && !keyRowFound {
		return nil, document.TableSchemaError{TableID: DocControlTable, Detail: "no Version column or key row"}
	}
	return out, nil
}

// appendHistoryRow locates the history table strictly through the
// version_history subsection marker and appends one row, unless a row for the
// same version already exists.
func appendHistoryRow(lines document.Lines, entry Entry) (document.Lines, error) {
	doc, err := document.Parse(lines)
	if err != nil {
		return nil, err
	}
	tbl, ok := historyTable(doc)
	if !ok {
		return nil, fmt.Errorf("version: no %s table under the %s subsection marker", HistoryTable, HistorySubsection)
	}
	if tbl.Len() < 3 {
		return nil, document.TableSchemaError{TableID: tbl.ID, Detail: "missing header or separator row"}
	}
	for row := tbl.Start + 3; row < tbl.End; row++ {
		cells := document.SplitPipeRow(lines[row])
		if len(cells) > 0 && strings.TrimSpace(cells[0]) == entry.Version.String() {
			return lines, nil
		}
	}
	row := fmt.Sprintf("| %s | %s | %s | %s |", entry.Version, entry.Date, entry.Author, sanitize(entry.Note))
	return lines.Replace(tbl.End, tbl.End, document.Lines{row}), nil
}

// historyTable resolves the history table via the subsection marker. The
// table must physically live inside the subsection span; any same-named
// table elsewhere in the document is ignored.
func historyTable(doc document.Doc) (document.Span, bool) {
	for _, sub := range doc.Subsections {
		if sub.ID != HistorySubsection {
			continue
		}
		for _, tbl := range doc.Tables {
			if tbl.ID == HistoryTable && tbl.Start >= sub.Start && tbl.Start < sub.End {
				return tbl, true
			}
		}
	}
	return document.Span{}, false
}

// History reads the version-history rows for reporting and tests.
func History(lines document.Lines) ([]Entry, error) {
	doc, err := document.Parse(lines)
	if err != nil {
		return nil, err
	}
	tbl, ok := historyTable(doc)
	if !ok {
		return nil, nil
	}
	var out []Entry
	for row := tbl.Start + 3; row < tbl.End; row++ {
		cells := document.SplitPipeRow(lines[row])
		if len(cells) < 4 {
			continue
		}
		v, err := Parse(strings.TrimSpace(cells[0]))
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Version: v,
			Date:    strings.TrimSpace(cells[1]),
			Author:  strings.TrimSpace(cells[2]),
			Note:    strings.TrimSpace(cells[3]),
		})
	}
	return out, nil
}

func sanitize(text string) string {
	text = strings.ReplaceAll(text, "|", "/")
	return strings.ReplaceAll(text, "\n", " ")
}
