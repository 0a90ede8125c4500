package imports

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// headerScanLimit bounds how deep into the sheet candidate header
	// rows are searched.
	headerScanLimit = 30

	// minHeaderMatches is the hard floor: a candidate matching fewer
	// distinct fields than this is not a header, full stop.
	minHeaderMatches = 5

	// maxHeaderSpan is the deepest stacked/merged header supported.
	maxHeaderSpan = 3

	// maxAcademicYearSpan rejects nonsense labels like "1999-2024".
	maxAcademicYearSpan = 10

	// subHeaderRatio: share of non-empty cells that must look like
	// header tokens for a row below the primary header to count as a
	// sub-header row.
	subHeaderRatio = 0.4
)

var (
	yearRangeRe = regexp.MustCompile(`(\d{4})\s*(?:[-/\x{2013}\x{2014}]|to)\s*(\d{2,4})`)
	bareYearRe  = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	firstSemRe  = regexp.MustCompile(`(?i)\b(?:first|1st)\b|\bsem(?:ester)?\s*1\b`)
	secondSemRe = regexp.MustCompile(`(?i)\b(?:second|2nd)\b|\bsem(?:ester)?\s*2\b`)
)

// fillForward propagates each non-empty label rightward across blank
// cells, emulating merged header cells: ["A","","","B"] → ["A","A","A","B"].
func fillForward(row []string, width int) []string {
	out := make([]string, width)
	last := ""
	for i := 0; i < width; i++ {
		v := ""
		if i < len(row) {
			v = strings.TrimSpace(row[i])
		}
		if v != "" {
			last = v
		}
		out[i] = last
	}
	return out
}

// combineRows builds a synthetic header row from up to span stacked
// rows starting at start, each column taking the first non-empty value
// scanning bottom-up (leaf → mid → top).
func combineRows(matrix [][]string, start, span int) []string {
	end := start + span
	if end > len(matrix) {
		end = len(matrix)
	}
	width := 0
	for r := start; r < end; r++ {
		if len(matrix[r]) > width {
			width = len(matrix[r])
		}
	}
	out := make([]string, width)
	for c := 0; c < width; c++ {
		for r := end - 1; r >= start; r-- {
			if c < len(matrix[r]) {
				if v := strings.TrimSpace(matrix[r][c]); v != "" {
					out[c] = v
					break
				}
			}
		}
	}
	return out
}

// scoreHeaderCandidate counts how many distinct canonical fields the
// row's cells resolve to. A cell matches at most one field; student
// aliases are tried before disbursement aliases.
func scoreHeaderCandidate(row []string) int {
	seen := map[FieldID]bool{}
	for _, cell := range row {
		token := normalizeToken(cell)
		if token == "" {
			continue
		}
		if f, ok := matchStudentField(token); ok {
			seen[f] = true
			continue
		}
		if f, ok := matchDisbursementField(token); ok {
			seen[f] = true
		}
	}
	return len(seen)
}

// parseAcademicYear normalizes the textual shapes an academic-year
// label can take ("2024-2025", "2024/2025", "2024-25", bare "2024")
// into canonical "YYYY-YYYY". Rejects spans over maxAcademicYearSpan
// years and ranges whose end does not exceed the start.
func parseAcademicYear(label string) (string, bool) {
	if m := yearRangeRe.FindStringSubmatch(label); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		if end < 100 {
			// "2024-25" → same century, rolling over when needed
			end = (start/100)*100 + end
			if end <= start {
				end += 100
			}
		}
		if end <= start || end-start > maxAcademicYearSpan {
			return "", false
		}
		return fmt.Sprintf("%d-%d", start, end), true
	}
	if m := bareYearRe.FindString(label); m != "" {
		start, _ := strconv.Atoi(m)
		return fmt.Sprintf("%d-%d", start, start+1), true
	}
	return "", false
}

// AcademicYearID derives the opaque block token from a canonical label.
func AcademicYearID(label string) string {
	return "ay" + normalizeToken(label)
}

// deriveContext extracts academic-year and semester context from a
// free-text header label. Either part may be absent. The heuristics
// live here, and only here, so they can grow without touching the
// inference pipeline.
func deriveContext(label string) (year string, semester string, ok bool) {
	l := strings.TrimSpace(label)
	if l == "" {
		return "", "", false
	}
	// A label that is itself a plain field alias never carries context;
	// otherwise "Reference No 2" style headers would misread as years.
	if isHeaderToken(normalizeToken(l)) {
		return "", "", false
	}
	// A full calendar date is data, not an academic-year label.
	if isCalendarDate(l) {
		return "", "", false
	}
	if y, found := parseAcademicYear(l); found {
		year = y
	}
	if firstSemRe.MatchString(l) {
		semester = SemesterFirst
	} else if secondSemRe.MatchString(l) {
		semester = SemesterSecond
	}
	return year, semester, year != "" || semester != ""
}

// headerSignalCells counts cells that read like header vocabulary or
// period context. Merged title banners occupy a single cell, so a row
// needs at least two signal cells to anchor a stacked header block.
func headerSignalCells(row []string) int {
	n := 0
	for _, cell := range row {
		v := strings.TrimSpace(cell)
		if v == "" {
			continue
		}
		if isHeaderToken(normalizeToken(v)) {
			n++
			continue
		}
		if _, _, ok := deriveContext(v); ok {
			n++
		}
	}
	return n
}

// headerTokenRatio returns the share of non-empty cells that look like
// header vocabulary (field aliases, academic-year labels or semester
// names).
func headerTokenRatio(row []string) (ratio float64, nonEmpty int) {
	matches := 0
	for _, cell := range row {
		v := strings.TrimSpace(cell)
		if v == "" {
			continue
		}
		nonEmpty++
		if isHeaderToken(normalizeToken(v)) {
			matches++
			continue
		}
		if _, _, ok := deriveContext(v); ok {
			matches++
		}
	}
	if nonEmpty == 0 {
		return 0, 0
	}
	return float64(matches) / float64(nonEmpty), nonEmpty
}

// InferHeader scans the top of the raw cell matrix, picks the best
// scoring single or stacked header candidate and resolves every column
// to a field reference. Fails hard when no candidate reaches the
// minimum match count or when the identity columns are missing.
func InferHeader(matrix [][]string) (*HeaderBlock, error) {
	if len(matrix) == 0 {
		return nil, ErrEmptyFile
	}
	limit := len(matrix)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}

	bestScore := 0
	bestStart := -1
	bestCombined := false
	for i := 0; i < limit; i++ {
		if s := scoreHeaderCandidate(matrix[i]); s > bestScore {
			bestScore, bestStart, bestCombined = s, i, false
		}
		if i+1 < len(matrix) && headerSignalCells(matrix[i]) >= 2 {
			if s := scoreHeaderCandidate(combineRows(matrix, i, maxHeaderSpan)); s > bestScore {
				bestScore, bestStart, bestCombined = s, i, true
			}
		}
	}
	if bestScore < minHeaderMatches {
		return nil, ErrHeaderNotRecognized
	}

	span := 1
	if bestCombined {
		span = maxHeaderSpan
		if bestStart+span > len(matrix) {
			span = len(matrix) - bestStart
		}
	} else {
		// Sub-header detection: rows just below the primary header that
		// still read like header vocabulary extend the span.
		for k := 1; k < maxHeaderSpan && bestStart+k < len(matrix); k++ {
			ratio, nonEmpty := headerTokenRatio(matrix[bestStart+k])
			if nonEmpty == 0 || ratio < subHeaderRatio {
				break
			}
			span++
		}
	}

	block := &HeaderBlock{StartRow: bestStart, RowSpan: span}
	width := 0
	for r := bestStart; r < bestStart+span; r++ {
		if len(matrix[r]) > width {
			width = len(matrix[r])
		}
	}

	// Parent rows get fill-forward treatment for merged cells; the leaf
	// row keeps its blanks.
	rows := make([][]string, span)
	for k := 0; k < span; k++ {
		if k < span-1 {
			rows[k] = fillForward(matrix[bestStart+k], width)
		} else {
			rows[k] = padRow(matrix[bestStart+k], width)
		}
	}

	for col := 0; col < width; col++ {
		effective := ""
		for k := span - 1; k >= 0; k-- {
			if v := strings.TrimSpace(rows[k][col]); v != "" {
				effective = v
				break
			}
		}
		if effective == "" {
			continue
		}

		// Context accumulates top-down: an academic-year group label in
		// a parent row combines with a semester label closer to the
		// leaf.
		year, sem := "", ""
		for k := 0; k < span; k++ {
			y, s, ok := deriveContext(rows[k][col])
			if !ok {
				continue
			}
			if y != "" {
				year = y
			}
			if s != "" {
				sem = s
			}
		}

		token := normalizeToken(effective)
		if year != "" {
			if f, ok := matchDisbursementField(token); ok {
				ref := FieldRef{Field: f, AcademicYear: year}
				if f != FieldYearLevel {
					ref.Semester = sem
				}
				block.Columns = append(block.Columns, ColumnRef{Col: col, Ref: ref})
				continue
			}
			// A bare academic-year column with no sub-label carries the
			// released amount for that period.
			if y, found := parseAcademicYear(effective); found && y == year {
				block.Columns = append(block.Columns, ColumnRef{
					Col: col,
					Ref: FieldRef{Field: DisbAmount, AcademicYear: year, Semester: sem},
				})
			}
			continue
		}
		if f, ok := matchStudentField(token); ok {
			block.Columns = append(block.Columns, ColumnRef{Col: col, Ref: FieldRef{Field: f}})
		}
	}

	if !block.HasField(FieldSurname) || !block.HasField(FieldFirstName) {
		return nil, ErrMissingIdentityColumns
	}
	return block, nil
}

func padRow(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}
