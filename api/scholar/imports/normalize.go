package imports

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// headerFragmentRatio: a data row whose non-empty cells are at least
// this much header vocabulary is a stray header fragment, not data.
const headerFragmentRatio = 0.4

// formulaErrors are the spreadsheet error placeholders that leak into
// exported cells.
var formulaErrors = map[string]bool{
	"#NULL!": true, "#DIV/0!": true, "#VALUE!": true, "#REF!": true,
	"#NAME?": true, "#NUM!": true, "#N/A": true, "#GETTING_DATA": true,
}

var dateLayouts = []string{
	"2006-01-02", "01/02/2006", "1/2/2006", "02/01/2006",
	"January 2, 2006", "Jan 2, 2006", "2-Jan-2006", "02-Jan-06",
	"2006/01/02", "01-02-2006",
}

// isCalendarDate reports whether a cell parses as a full calendar date
// in any accepted layout.
func isCalendarDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// normalizeCell trims, removes non-breaking spaces and collapses
// internal whitespace.
func normalizeCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// allEmptyRow returns true when every cell is empty or whitespace.
func allEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// cleanAmount strips currency symbols and thousands separators so
// "₱ 20,000.00" parses as a number.
func cleanAmount(s string) string {
	s = normalizeCell(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "₱")
	s = strings.TrimPrefix(s, "PHP")
	s = strings.TrimPrefix(s, "Php")
	return strings.TrimSpace(s)
}

// normalizeAmount canonicalizes an amount cell to a plain decimal
// string. Unparseable values pass through untouched so validation can
// surface them instead of silently dropping data.
func normalizeAmount(s string) string {
	cleaned := cleanAmount(s)
	if cleaned == "" {
		return ""
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return cleaned
	}
	return d.String()
}

// parseExcelSerialDate converts an Excel serial date (possibly with a
// fractional day) into a time.Time. Excel counts from 1899-12-30 and
// includes the nonexistent 1900-02-29.
func parseExcelSerialDate(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return time.Time{}, false
	}
	if f < 1 || f > 2958465 { // past 9999-12-31 is not a date serial
		return time.Time{}, false
	}
	days := int(f)
	frac := f - float64(days)
	// serials below 60 predate the phantom 1900-02-29 and shift one day
	if days < 60 {
		days++
	}
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	d := base.AddDate(0, 0, days)
	d = d.Add(time.Duration(frac * float64(24*time.Hour)))
	return d, true
}

// normalizeDate coerces a date-like cell to ISO form. Excel serials
// decode to calendar dates rather than leaking the raw number.
func normalizeDate(s string) string {
	v := normalizeCell(s)
	if v == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if t, ok := parseExcelSerialDate(v); ok {
		return t.Format("2006-01-02")
	}
	return v
}

// isFormulaError reports whether a cell holds a spreadsheet error code
// instead of a value.
func isFormulaError(s string) bool {
	return formulaErrors[strings.ToUpper(strings.TrimSpace(s))]
}

// NormalizeRows converts the raw rows after the header block into fully
// keyed import records. Stray header fragments and blank rows are
// dropped; the returned skipped count covers both.
func NormalizeRows(matrix [][]string, header *HeaderBlock) (records []*ImportRecord, skipped int) {
	for rowIdx := header.DataStart(); rowIdx < len(matrix); rowIdx++ {
		row := matrix[rowIdx]
		if allEmptyRow(row) {
			skipped++
			continue
		}
		if ratio, nonEmpty := headerTokenRatio(row); nonEmpty > 0 && ratio >= headerFragmentRatio {
			skipped++
			continue
		}
		records = append(records, normalizeRow(row, rowIdx, header))
	}
	return records, skipped
}

func normalizeRow(row []string, rowIdx int, header *HeaderBlock) *ImportRecord {
	rec := &ImportRecord{
		RowIndex:      rowIdx,
		Fields:        make(map[FieldID]string, len(studentFieldOrder)),
		Disbursements: make(map[PeriodKey]*DisbursementRecord),
	}
	// Every declared static field defaults to empty so downstream code
	// can key on it without existence checks.
	for _, c := range header.Columns {
		if c.Ref.Static() {
			rec.Fields[c.Ref.Field] = ""
		}
	}

	yearLevels := map[string]string{}
	for _, c := range header.Columns {
		raw := ""
		if c.Col < len(row) {
			raw = row[c.Col]
		}
		val := coerceValue(c.Ref.Field, raw)
		if c.Ref.Static() {
			rec.Fields[c.Ref.Field] = val
			continue
		}
		if c.Ref.Field == FieldYearLevel {
			if val != "" {
				yearLevels[c.Ref.AcademicYear] = val
			}
			continue
		}
		if val == "" {
			continue
		}
		key := PeriodKey{AcademicYear: c.Ref.AcademicYear, Semester: c.Ref.Semester}
		d := rec.Disbursements[key]
		if d == nil {
			d = &DisbursementRecord{Fields: make(map[FieldID]string, len(disbFieldOrder))}
			rec.Disbursements[key] = d
		}
		d.Fields[c.Ref.Field] = val
	}

	// Year level binds to the whole academic year.
	for key, d := range rec.Disbursements {
		if lvl, ok := yearLevels[key.AcademicYear]; ok {
			d.YearLevel = lvl
		}
	}

	applyProgramFallback(rec)
	return rec
}

func coerceValue(f FieldID, raw string) string {
	switch {
	case amountFields[f]:
		return normalizeAmount(raw)
	case dateFields[f]:
		return normalizeDate(raw)
	default:
		return normalizeCell(raw)
	}
}

// applyProgramFallback derives the scholarship program from award-number
// prefix rules when the program cell is empty or a formula error. Best
// effort only; a present valid value is never overwritten.
func applyProgramFallback(rec *ImportRecord) {
	program, declared := rec.Fields[FieldScholarshipProgram]
	if !declared {
		return
	}
	if program != "" && !isFormulaError(program) {
		return
	}
	award := rec.Fields[FieldAwardNumber]
	if award == "" {
		return
	}
	if derived := deriveProgramFromAward(award); derived != "" {
		rec.Fields[FieldScholarshipProgram] = derived
	}
}
