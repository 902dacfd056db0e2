package document

import "fmt"

// RepairReport records what a structural repair pass did and what it could
// not touch. Unrepairable findings map to the CLI's exit code 2.
type RepairReport struct {
	Repaired     []string
	Unrepairable []string
}

// Clean reports whether the document needed no repair at all.
func (r RepairReport) Clean() bool {
	return len(r.Repaired) == 0 && len(r.Unrepairable) == 0
}

// Repair applies the unambiguous structural fixes: regenerating a missing
// table separator row and dropping a lock marker whose section no longer
// exists. Everything else (duplicate markers, bad spans, malformed rows) is
// reported as unrepairable because any automatic fix would guess at intent.
func Repair(lines Lines) (Lines, RepairReport) {
	var report RepairReport
	out := lines
	for _, serr := range Validate(lines) {
		switch e := serr.(type) {
		case OrphanedLockError:
			out = out.Replace(e.Line, e.Line+1, nil)
			report.Repaired = append(report.Repaired, fmt.Sprintf("removed orphaned lock marker %q", e.LockID))
			// Line numbers shift after a removal; restart from the updated
			// sequence rather than applying stale indexes.
			rest, more := Repair(out)
			report.Repaired = append(report.Repaired, more.Repaired...)
			report.Unrepairable = append(report.Unrepairable, more.Unrepairable...)
			return rest, report
		case TableSchemaError:
			if e.Detail == "missing separator row after header" {
				if fixed, ok := insertSeparator(out, e.TableID); ok {
					report.Repaired = append(report.Repaired, fmt.Sprintf("regenerated separator row for table %q", e.TableID))
					rest, more := Repair(fixed)
					report.Repaired = append(report.Repaired, more.Repaired...)
					report.Unrepairable = append(report.Unrepairable, more.Unrepairable...)
					return rest, report
				}
			}
			report.Unrepairable = append(report.Unrepairable, serr.Error())
		default:
			report.Unrepairable = append(report.Unrepairable, serr.Error())
		}
	}
	return out, report
}

func insertSeparator(lines Lines, tableID string) (Lines, bool) {
	doc, err := Parse(lines)
	if err != nil {
		return lines, false
	}
	tbl, ok := doc.TableByID(tableID)
	if !ok || tbl.Len() < 2 {
		return lines, false
	}
	header := lines[tbl.Start+1]
	if !isPipeRow(header) {
		return lines, false
	}
	sep := "|"
	for range splitPipeRow(header) {
		sep += "---|"
	}
	return lines.Replace(tbl.Start+2, tbl.Start+2, Lines{sep}), true
}
