package document

import "strings"

// Lines is the exclusive in-memory representation of a document: an ordered
// sequence of text lines without trailing newlines. Transformations return a
// fresh value rather than mutating in place, so callers can roll back a
// rejected edit by keeping the old reference.
type Lines []string

// SplitLines converts raw file content into a line sequence. CRLF endings are
// normalized and a single trailing newline does not produce an empty final line.
func SplitLines(content string) Lines {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.TrimSuffix(normalized, "\n")
	if normalized == "" {
		return Lines{}
	}
	return Lines(strings.Split(normalized, "\n"))
}

// Join renders the sequence back into file content with a trailing newline.
func (l Lines) Join() string {
	if len(l) == 0 {
		return ""
	}
	return strings.Join(l, "\n") + "\n"
}

// Clone returns a copy that shares no backing storage with the receiver.
func (l Lines) Clone() Lines {
	if len(l) == 0 {
		return Lines{}
	}
	clone := make(Lines, len(l))
	copy(clone, l)
	return clone
}

// Replace returns a new sequence with lines [start, end) replaced by repl.
// The receiver is untouched.
func (l Lines) Replace(start, end int, repl Lines) Lines {
	out := make(Lines, 0, len(l)-(end-start)+len(repl))
	out = append(out, l[:start]...)
	out = append(out, repl...)
	out = append(out, l[end:]...)
	return out
}

// Equal reports whether two sequences hold identical lines.
func (l Lines) Equal(other Lines) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}
