// Package edit is the editing engine: it rewrites one span of a document at a
// time while leaving every line outside the span byte-identical. Externally
// supplied text is sanitized before insertion so a model response can never
// smuggle a structural marker into the skeleton.
package edit

import (
	"fmt"
	"strings"

	"github.com/kingrea/specloom/internal/document"
)

// SanitizePolicy decides what happens when replacement text contains
// marker-like lines.
type SanitizePolicy int

const (
	// PolicyStrip silently drops marker-like lines. Used for text the engine
	// composed itself, where a stray marker is an artifact, not an attack.
	PolicyStrip SanitizePolicy = iota
	// PolicyReject fails the edit. Used for externally supplied patches that
	// are applied verbatim, where an embedded marker means the input is bad.
	PolicyReject
)

// MarkerInBodyError reports replacement text that tried to carry a
// structural marker under PolicyReject.
type MarkerInBodyError struct {
	Line string
}

func (e MarkerInBodyError) Error() string {
	return fmt.Sprintf("edit: replacement text contains structural marker: %q", e.Line)
}

// Sanitize applies the policy to replacement text. Under PolicyStrip the
// second return lists the lines that were removed.
func Sanitize(text string, policy SanitizePolicy) (string, []string, error) {
	var kept, stripped []string
	for _, line := range strings.Split(text, "\n") {
		if document.IsMarkerLine(line) {
			if policy == PolicyReject {
				return "", nil, MarkerInBodyError{Line: strings.TrimSpace(line)}
			}
			stripped = append(stripped, line)
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n"), stripped, nil
}

// ReplaceSpanBody replaces the interior of a marker-delimited span: the
// marker line at span.Start survives, lines (span.Start, span.End) become the
// sanitized body. Bounds are checked before any mutation; a violation returns
// InvalidSpanError and the input untouched.
func ReplaceSpanBody(lines document.Lines, span document.Span, body string, policy SanitizePolicy) (document.Lines, error) {
	if err := checkSpan(lines, span); err != nil {
		return nil, err
	}
	clean, _, err := Sanitize(body, policy)
	if err != nil {
		return nil, err
	}
	return lines.Replace(span.Start+1, span.End, bodyLines(clean)), nil
}

// ReplaceRange replaces a raw interior range (no marker line to preserve),
// used for section preambles.
func ReplaceRange(lines document.Lines, span document.Span, body string, policy SanitizePolicy) (document.Lines, error) {
	if err := checkRange(lines, span); err != nil {
		return nil, err
	}
	clean, _, err := Sanitize(body, policy)
	if err != nil {
		return nil, err
	}
	return lines.Replace(span.Start, span.End, bodyLines(clean)), nil
}

// ReplacePreamble rewrites a section's preamble with new body text while
// keeping any heading lines named in preserveHeaders at the top, in their
// original order.
func ReplacePreamble(lines document.Lines, doc document.Doc, sectionID, body string, preserveHeaders []string, policy SanitizePolicy) (document.Lines, error) {
	pre, err := doc.Preamble(sectionID)
	if err != nil {
		return nil, err
	}
	kept := preservedHeaders(lines[pre.Start:pre.End], preserveHeaders)
	clean, _, err := Sanitize(body, policy)
	if err != nil {
		return nil, err
	}
	repl := append(document.Lines{}, kept...)
	repl = append(repl, bodyLines(clean)...)
	if err := checkRange(lines, pre); err != nil {
		return nil, err
	}
	return lines.Replace(pre.Start, pre.End, repl), nil
}

func preservedHeaders(old document.Lines, preserve []string) document.Lines {
	if len(preserve) == 0 {
		return nil
	}
	want := map[string]struct{}{}
	for _, h := range preserve {
		want[strings.TrimSpace(h)] = struct{}{}
	}
	var kept document.Lines
	for _, line := range old {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		if _, ok := want[trimmed]; ok {
			kept = append(kept, line)
		}
	}
	return kept
}

// bodyLines converts replacement text into lines, trimming outer blank lines
// and guaranteeing a trailing blank line so the next marker stays visually
// separated.
func bodyLines(body string) document.Lines {
	trimmed := strings.Trim(body, "\n")
	if strings.TrimSpace(trimmed) == "" {
		return document.Lines{""}
	}
	out := document.SplitLines(trimmed)
	return append(out, "")
}

func checkSpan(lines document.Lines, span document.Span) error {
	if span.Start < 0 || span.End > len(lines) || span.Start >= span.End {
		return document.InvalidSpanError{
			Detail: fmt.Sprintf("%s spans [%d,%d) in document of %d lines", span.ID, span.Start, span.End, len(lines)),
		}
	}
	return nil
}

// checkRange allows an empty range (an empty preamble is a legal edit target).
func checkRange(lines document.Lines, span document.Span) error {
	if span.Start < 0 || span.End > len(lines) || span.Start > span.End {
		return document.InvalidSpanError{
			Detail: fmt.Sprintf("%s range [%d,%d) in document of %d lines", span.ID, span.Start, span.End, len(lines)),
		}
	}
	return nil
}
