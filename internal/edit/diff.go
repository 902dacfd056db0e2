package edit

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/kingrea/specloom/internal/document"
)

// ChangeStats counts the line-level delta between two document states.
type ChangeStats struct {
	Added   int
	Removed int
}

// String renders the stats the way the CLI report shows them.
func (s ChangeStats) String() string {
	return fmt.Sprintf("+%d -%d lines", s.Added, s.Removed)
}

// DiffStats computes a line diff between two document states.
func DiffStats(before, after document.Lines) ChangeStats {
	var stats ChangeStats
	for _, d := range lineDiffs(before, after) {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stats.Added += n
		case diffmatchpatch.DiffDelete:
			stats.Removed += n
		}
	}
	return stats
}

// DiffPreview returns up to maxLines changed lines rendered with +/- prefixes
// for step summaries. Context lines are omitted; this is a receipt, not a
// patch.
func DiffPreview(before, after document.Lines, maxLines int) []string {
	var out []string
	for _, d := range lineDiffs(before, after) {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		default:
			continue
		}
		for _, line := range splitDiffChunk(d.Text) {
			if len(out) >= maxLines {
				return out
			}
			out = append(out, prefix+line)
		}
	}
	return out
}

func lineDiffs(before, after document.Lines) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	b, a, lineArray := dmp.DiffLinesToChars(before.Join(), after.Join())
	diffs := dmp.DiffMain(b, a, false)
	return dmp.DiffCharsToLines(diffs, lineArray)
}

func splitDiffChunk(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func countLines(text string) int {
	return len(splitDiffChunk(text))
}
