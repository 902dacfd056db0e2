package document

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Marker grammar. Every structural marker is an HTML comment on a line of its
// own so markers survive markdown rendering, stay greppable, and cannot be
// confused with prose. Parsing then serializing an unedited document must be
// the identity, so markers are never reformatted once written.
const (
	markerPrefix = "<!-- loom:"
	markerSuffix = " -->"

	// Placeholder is the reserved sentinel marking not-yet-filled content.
	Placeholder = "[PLACEHOLDER]"

	orderOpenMarker  = "<!-- loom:workflow:order -->"
	orderCloseMarker = "<!-- /loom:workflow:order -->"
)

// MarkerKind discriminates the structural marker types.
type MarkerKind string

const (
	MarkerSection    MarkerKind = "section"
	MarkerSubsection MarkerKind = "subsection"
	MarkerTable      MarkerKind = "table"
	MarkerLock       MarkerKind = "section_lock"
	MarkerDocType    MarkerKind = "doc_type"
	MarkerVersion    MarkerKind = "version"
)

// Marker is one parsed structural comment.
type Marker struct {
	Kind MarkerKind
	ID   string
	// Locked is meaningful only for MarkerLock.
	Locked bool
	// TableTyped is meaningful only for MarkerSubsection (type=table attribute).
	TableTyped bool
}

// ParseError reports a line that looks like a structural marker but carries a
// malformed payload. Well-formed markers with unknown identifiers are not
// errors; only broken payloads are.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("document: line %d: %s: %q", e.Line+1, e.Reason, e.Text)
}

var markerRe = regexp.MustCompile(`^<!-- loom:([a-z_]+):(\S+)( [^>]*?)? -->$`)

var identRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// IsMarkerLine reports whether the line is any loom structural comment,
// including the workflow-order delimiters.
func IsMarkerLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == orderOpenMarker || trimmed == orderCloseMarker {
		return true
	}
	return strings.HasPrefix(trimmed, markerPrefix) && strings.HasSuffix(trimmed, markerSuffix)
}

// ParseMarkerLine decodes a single line. The second return is false when the
// line is not a marker at all; a non-nil error means the line is marker-shaped
// but malformed.
func ParseMarkerLine(line string, lineNo int) (Marker, bool, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == orderOpenMarker || trimmed == orderCloseMarker {
		return Marker{}, false, nil
	}
	if !strings.HasPrefix(trimmed, markerPrefix) || !strings.HasSuffix(trimmed, markerSuffix) {
		return Marker{}, false, nil
	}
	m := markerRe.FindStringSubmatch(trimmed)
	if m == nil {
		return Marker{}, false, &ParseError{Line: lineNo, Text: trimmed, Reason: "malformed marker payload"}
	}
	kind, id, attrs := MarkerKind(m[1]), m[2], strings.TrimSpace(m[3])
	switch kind {
	case MarkerSection, MarkerTable, MarkerDocType:
		if attrs != "" {
			return Marker{}, false, &ParseError{Line: lineNo, Text: trimmed, Reason: "unexpected marker attributes"}
		}
		if !identRe.MatchString(id) {
			return Marker{}, false, &ParseError{Line: lineNo, Text: trimmed, Reason: "invalid marker identifier"}
		}
		return Marker{Kind: kind, ID: id}, true, nil
	case MarkerVersion:
		if attrs != "" {
			return Marker{}, false, &ParseError{Line: lineNo, Text: trimmed, Reason: "unexpected marker attributes"}
		}
		return Marker{Kind: kind, ID: id}, true, nil
	case MarkerSubsection:
		mk := Marker{Kind: kind, ID: id}
		if !identRe.MatchString(id) {
			return Marker{}, false, &ParseError{Line: lineNo, Text: trimmed, Reason: "invalid marker identifier"}
		}
		switch attrs {
		case "":
		case "type=table":
			mk.TableTyped = true
		default:
			return Marker{}, false, &ParseError{Line: lineNo, Text: trimmed, Reason: "unknown subsection attribute"}
		}
		return mk, true, nil
	case MarkerLock:
		if !identRe.MatchString(id) {
			return Marker{}, false, &ParseError{Line: lineNo, Text: trimmed, Reason: "invalid marker identifier"}
		}
		value, found := strings.CutPrefix(attrs, "lock=")
		if !found {
			return Marker{}, false, &ParseError{Line: lineNo, Text: trimmed, Reason: "lock marker missing lock= attribute"}
		}
		locked, err := strconv.ParseBool(value)
		if err != nil {
			return Marker{}, false, &ParseError{Line: lineNo, Text: trimmed, Reason: "lock marker value is not a boolean"}
		}
		return Marker{Kind: kind, ID: id, Locked: locked}, true, nil
	default:
		return Marker{}, false, &ParseError{Line: lineNo, Text: trimmed, Reason: fmt.Sprintf("unknown marker kind %q", m[1])}
	}
}

// Render produces the canonical line for a marker.
func (m Marker) Render() string {
	switch m.Kind {
	case MarkerLock:
		return fmt.Sprintf("%s%s:%s lock=%t%s", markerPrefix, m.Kind, m.ID, m.Locked, markerSuffix)
	case MarkerSubsection:
		if m.TableTyped {
			return fmt.Sprintf("%s%s:%s type=table%s", markerPrefix, m.Kind, m.ID, markerSuffix)
		}
		return fmt.Sprintf("%s%s:%s%s", markerPrefix, m.Kind, m.ID, markerSuffix)
	default:
		return fmt.Sprintf("%s%s:%s%s", markerPrefix, m.Kind, m.ID, markerSuffix)
	}
}

// MarkerKeys returns the identity (kind plus id) of every well-formed marker
// line in the sequence. The version marker is keyed by kind alone, since its
// payload changes on every version bump. Callers use the keys to detect
// marker loss across a whole-document rewrite.
func MarkerKeys(lines Lines) map[string]struct{} {
	keys := make(map[string]struct{})
	for i, line := range lines {
		marker, ok, err := ParseMarkerLine(line, i)
		if err != nil || !ok {
			continue
		}
		if marker.Kind == MarkerVersion {
			keys[string(MarkerVersion)] = struct{}{}
			continue
		}
		keys[string(marker.Kind)+":"+marker.ID] = struct{}{}
	}
	return keys
}

// SectionMarker renders the marker line opening a section span.
func SectionMarker(id string) string {
	return Marker{Kind: MarkerSection, ID: id}.Render()
}

// SubsectionMarker renders a subsection marker line.
func SubsectionMarker(id string, tableTyped bool) string {
	return Marker{Kind: MarkerSubsection, ID: id, TableTyped: tableTyped}.Render()
}

// TableMarker renders a table marker line.
func TableMarker(id string) string {
	return Marker{Kind: MarkerTable, ID: id}.Render()
}

// LockMarkerLine renders a section lock marker line.
func LockMarkerLine(id string, locked bool) string {
	return Marker{Kind: MarkerLock, ID: id, Locked: locked}.Render()
}

// VersionMarker renders the document version meta marker.
func VersionMarker(version string) string {
	return Marker{Kind: MarkerVersion, ID: version}.Render()
}

// DocTypeMarker renders the document type meta marker.
func DocTypeMarker(docType string) string {
	return Marker{Kind: MarkerDocType, ID: docType}.Render()
}

// OrderOpen and OrderClose delimit the workflow-order block.
func OrderOpen() string  { return orderOpenMarker }
func OrderClose() string { return orderCloseMarker }

// ReviewGatePrefix marks a workflow-order entry that is a review gate rather
// than a document section.
const ReviewGatePrefix = "review_gate:"

// IsReviewGate reports whether a workflow-order entry names a review gate.
func IsReviewGate(entry string) bool {
	return strings.HasPrefix(entry, ReviewGatePrefix)
}

// ReviewGateName strips the review-gate prefix from a workflow-order entry.
func ReviewGateName(entry string) string {
	return strings.TrimPrefix(entry, ReviewGatePrefix)
}
