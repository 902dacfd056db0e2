package edit

import (
	"strings"

	"github.com/kingrea/specloom/internal/document"
)

// Table routing: model output for a section with table-typed subsections
// usually mixes pipe rows and prose. detectTableBlocks finds the runs of pipe
// rows, and RouteTableContent matches each run to a table-typed subsection by
// column count. Anything unmatched falls back to prose; the heuristic never
// errors, it only routes less.

// tableBlock is one contiguous run of pipe rows found in raw text.
type tableBlock struct {
	rows    []string
	columns int
}

// detectTableBlocks splits raw text into pipe-row runs and the remaining
// prose. A run's column count is taken from its first row; rows with a
// different count stay in the run (the table model tolerates them until
// validation). Separator rows are dropped since serialization regenerates
// them.
func detectTableBlocks(raw string) ([]tableBlock, string) {
	var blocks []tableBlock
	var prose []string
	var current *tableBlock
	for _, line := range strings.Split(raw, "\n") {
		if document.IsPipeRow(line) {
			if document.IsSeparatorRow(line) {
				continue
			}
			if current == nil {
				blocks = append(blocks, tableBlock{})
				current = &blocks[len(blocks)-1]
				current.columns = len(document.SplitPipeRow(line))
			}
			current.rows = append(current.rows, strings.TrimSpace(line))
			continue
		}
		current = nil
		prose = append(prose, line)
	}
	return blocks, strings.Trim(strings.Join(prose, "\n"), "\n")
}

// RouteTableContent splits raw model output for a section into table rows and
// prose. Each detected run of pipe rows is routed into the first table-typed
// subsection whose table header has a matching column count and has not been
// fed yet; the run's own header row (if it echoes the table header) is
// dropped. Everything else is returned as leftover prose for the caller to
// place in the preamble. Subsections without a match are left untouched.
func RouteTableContent(lines document.Lines, doc document.Doc, sectionID, raw string) (document.Lines, string, error) {
	blocks, prose := detectTableBlocks(raw)
	if len(blocks) == 0 {
		return lines, prose, nil
	}
	type target struct {
		sub   document.SubsectionSpan
		table document.Span
		cols  int
		used  bool
	}
	var targets []target
	for _, sub := range doc.SubsectionsOf(sectionID) {
		if !sub.TableTyped {
			continue
		}
		tbl, ok := tableInside(doc, sub)
		if !ok || tbl.Len() < 2 {
			continue
		}
		header := lines[tbl.Start+1]
		targets = append(targets, target{sub: sub, table: tbl, cols: len(document.SplitPipeRow(header))})
	}
	// Match blocks to targets in document order first, then apply the edits
	// back-to-front so earlier spans keep their line numbers.
	assigned := make([]int, len(targets))
	for i := range assigned {
		assigned[i] = -1
	}
	var unrouted []string
	for b, block := range blocks {
		routed := false
		for i := range targets {
			if targets[i].used || targets[i].cols != block.columns {
				continue
			}
			targets[i].used = true
			assigned[i] = b
			routed = true
			break
		}
		if !routed {
			unrouted = append(unrouted, block.rows...)
		}
	}
	out := lines
	for i := len(targets) - 1; i >= 0; i-- {
		if assigned[i] < 0 {
			continue
		}
		tgt := targets[i]
		block := blocks[assigned[i]]
		header := strings.TrimSpace(out[tgt.table.Start+1])
		rows := document.Lines{}
		for _, row := range block.rows {
			if normalizedRow(row) == normalizedRow(header) {
				continue
			}
			rows = append(rows, row)
		}
		repl := append(document.Lines{header, separatorRow(tgt.cols)}, rows...)
		var err error
		out, err = applyTableRows(out, tgt.table, repl)
		if err != nil {
			return nil, "", err
		}
	}
	if len(unrouted) > 0 {
		if prose != "" {
			prose += "\n\n"
		}
		prose += strings.Join(unrouted, "\n")
	}
	return out, prose, nil
}

func applyTableRows(lines document.Lines, tbl document.Span, repl document.Lines) (document.Lines, error) {
	if tbl.Start+1 > tbl.End || tbl.End > len(lines) {
		return nil, document.InvalidSpanError{Detail: "table span out of bounds during routing"}
	}
	return lines.Replace(tbl.Start+1, tbl.End, repl), nil
}

func tableInside(doc document.Doc, sub document.SubsectionSpan) (document.Span, bool) {
	for _, tbl := range doc.Tables {
		if tbl.Start >= sub.Start && tbl.Start < sub.End {
			return tbl, true
		}
	}
	return document.Span{}, false
}

func separatorRow(cols int) string {
	parts := make([]string, cols)
	for i := range parts {
		parts[i] = "---"
	}
	return "|" + strings.Join(parts, "|") + "|"
}

func normalizedRow(row string) string {
	cells := document.SplitPipeRow(row)
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ToLower(strings.TrimSpace(c))
	}
	return strings.Join(out, "|")
}

// FillSubsectionTable routes pipe rows from raw into the table inside one
// table-typed subsection only. Rows that do not match the table's column
// count, and any prose, come back as leftover for the caller to place
// elsewhere.
func FillSubsectionTable(lines document.Lines, doc document.Doc, sub document.SubsectionSpan, raw string) (document.Lines, string, error) {
	blocks, prose := detectTableBlocks(raw)
	tbl, ok := tableInside(doc, sub)
	if !ok || tbl.Len() < 2 {
		return lines, raw, nil
	}
	header := strings.TrimSpace(lines[tbl.Start+1])
	cols := len(document.SplitPipeRow(header))
	out := lines
	var leftover []string
	routed := false
	for _, block := range blocks {
		if routed || block.columns != cols {
			leftover = append(leftover, block.rows...)
			continue
		}
		rows := document.Lines{}
		for _, row := range block.rows {
			if normalizedRow(row) == normalizedRow(header) {
				continue
			}
			rows = append(rows, row)
		}
		repl := append(document.Lines{header, separatorRow(cols)}, rows...)
		var err error
		out, err = applyTableRows(out, tbl, repl)
		if err != nil {
			return nil, "", err
		}
		routed = true
	}
	if len(leftover) > 0 {
		if prose != "" {
			prose += "\n\n"
		}
		prose += strings.Join(leftover, "\n")
	}
	return out, prose, nil
}

// SplitSubsectionBlocks cuts draft output in subsections format into blocks
// keyed by normalized heading, for handlers whose output format is
// "subsections". Text before the first heading is returned as the preamble
// remainder. Headings match subsection ids after lowercasing and replacing
// spaces with underscores, so "### Success Metrics" feeds success_metrics.
func SplitSubsectionBlocks(raw string) (map[string]string, string) {
	blocks := map[string]string{}
	var preamble []string
	var currentKey string
	var current []string
	flush := func() {
		if currentKey == "" {
			return
		}
		blocks[currentKey] = strings.Trim(strings.Join(current, "\n"), "\n")
	}
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			flush()
			currentKey = headingKey(trimmed)
			current = nil
			continue
		}
		if currentKey == "" {
			preamble = append(preamble, line)
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks, strings.Trim(strings.Join(preamble, "\n"), "\n")
}

func headingKey(heading string) string {
	text := strings.TrimLeft(heading, "#")
	text = strings.ToLower(strings.TrimSpace(text))
	return strings.ReplaceAll(text, " ", "_")
}
