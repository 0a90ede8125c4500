package imports

import (
	"errors"
	"reflect"
	"testing"
)

func TestFillForward(t *testing.T) {
	tests := []struct {
		name  string
		row   []string
		width int
		want  []string
	}{
		{"merged cells", []string{"A", "", "", "B"}, 4, []string{"A", "A", "A", "B"}},
		{"leading blanks stay empty", []string{"", "", "X"}, 4, []string{"", "", "X", "X"}},
		{"short row padded", []string{"A"}, 3, []string{"A", "A", "A"}},
		{"all empty", []string{"", ""}, 2, []string{"", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fillForward(tt.row, tt.width)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("fillForward(%v) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

func TestParseAcademicYear(t *testing.T) {
	tests := []struct {
		label string
		want  string
		ok    bool
	}{
		{"2024-2025", "2024-2025", true},
		{"AY 2024/2025", "2024-2025", true},
		{"2024-25", "2024-2025", true},
		{"A.Y. 2023 to 2024", "2023-2024", true},
		{"2099-00", "2099-2100", true},
		{"2024", "2024-2025", true},
		{"SY 2022-2023 Summer", "2022-2023", true},
		{"1999-2024", "", false},
		{"2025-2024", "", false},
		{"2024-2024", "", false},
		{"Reference No 2", "", false},
		{"Amount", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := parseAcademicYear(tt.label)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseAcademicYear(%q) = (%q, %v), want (%q, %v)", tt.label, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDeriveContext(t *testing.T) {
	tests := []struct {
		label    string
		year     string
		semester string
		ok       bool
	}{
		{"AY 2023-2024", "2023-2024", "", true},
		{"First Semester", "", SemesterFirst, true},
		{"2nd Sem", "", SemesterSecond, true},
		{"AY 2023-2024 1st Sem", "2023-2024", SemesterFirst, true},
		{"Status", "", "", false},   // plain alias carries no context
		{"Surname", "", "", false},
		{"", "", "", false},
		{"Scholar Profile", "", "", false},
		{"01/15/2004", "", "", false}, // calendar dates are data, not year labels
		{"2024-01-15", "", "", false},
	}
	for _, tt := range tests {
		year, sem, ok := deriveContext(tt.label)
		if year != tt.year || sem != tt.semester || ok != tt.ok {
			t.Errorf("deriveContext(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.label, year, sem, ok, tt.year, tt.semester, tt.ok)
		}
	}
}

func flatHeaderMatrix() [][]string {
	return [][]string{
		{"Republic of the Philippines"},
		{"Masterlist of Scholars"},
		{"SURNAME", "FIRST NAME", "MIDDLE NAME", "SEX", "STATUS", "AWARD NO.", "REMARKS"},
		{"Dela Cruz", "Juan", "Santos", "M", "Active", "TES-2023-001", ""},
		{"Reyes", "Maria", "", "F", "Active", "TDP-2023-002", "transferred"},
	}
}

func TestInferHeaderSingleRow(t *testing.T) {
	header, err := InferHeader(flatHeaderMatrix())
	if err != nil {
		t.Fatalf("InferHeader: %v", err)
	}
	if header.StartRow != 2 || header.RowSpan != 1 {
		t.Fatalf("got start=%d span=%d, want start=2 span=1", header.StartRow, header.RowSpan)
	}
	if header.DataStart() != 3 {
		t.Errorf("DataStart() = %d, want 3", header.DataStart())
	}
	wantFields := map[int]FieldID{
		0: FieldSurname, 1: FieldFirstName, 2: FieldMiddleName,
		3: FieldSex, 4: FieldStatus, 5: FieldAwardNumber, 6: FieldRemarks,
	}
	for _, c := range header.Columns {
		want, ok := wantFields[c.Col]
		if !ok {
			t.Errorf("unexpected column %d resolved to %s", c.Col, c.Ref.Field)
			continue
		}
		if c.Ref.Field != want || !c.Ref.Static() {
			t.Errorf("column %d resolved to %+v, want static %s", c.Col, c.Ref, want)
		}
	}
	if len(header.Columns) != len(wantFields) {
		t.Errorf("resolved %d columns, want %d", len(header.Columns), len(wantFields))
	}
}

func TestInferHeaderDeterministic(t *testing.T) {
	m := flatHeaderMatrix()
	first, err := InferHeader(m)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := InferHeader(m)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two passes over the same matrix disagree:\n%+v\n%+v", first, second)
	}
}

func stackedHeaderMatrix() [][]string {
	return [][]string{
		{"SURNAME", "FIRST NAME", "MIDDLE NAME", "SEX", "STATUS", "AY 2023-2024", "", "AY 2024-2025", ""},
		{"", "", "", "", "", "Amount", "Date Released", "Amount", "Date Released"},
		{"Dela Cruz", "Juan", "Santos", "M", "Active", "10,000.00", "2024-01-15", "10,000.00", "2024-09-02"},
	}
}

func TestInferHeaderStackedAcademicYears(t *testing.T) {
	header, err := InferHeader(stackedHeaderMatrix())
	if err != nil {
		t.Fatalf("InferHeader: %v", err)
	}
	if header.StartRow != 0 || header.RowSpan != 2 {
		t.Fatalf("got start=%d span=%d, want start=0 span=2", header.StartRow, header.RowSpan)
	}
	years := header.AcademicYears()
	if !reflect.DeepEqual(years, []string{"2023-2024", "2024-2025"}) {
		t.Fatalf("AcademicYears() = %v", years)
	}

	byCol := map[int]FieldRef{}
	for _, c := range header.Columns {
		byCol[c.Col] = c.Ref
	}
	if ref := byCol[5]; ref.Field != DisbAmount || ref.AcademicYear != "2023-2024" {
		t.Errorf("col 5 = %+v, want amount for 2023-2024", ref)
	}
	if ref := byCol[6]; ref.Field != DisbDateReleased || ref.AcademicYear != "2023-2024" {
		t.Errorf("col 6 = %+v, want date_released for 2023-2024", ref)
	}
	if ref := byCol[7]; ref.Field != DisbAmount || ref.AcademicYear != "2024-2025" {
		t.Errorf("col 7 = %+v, want amount for 2024-2025", ref)
	}
	if ref := byCol[0]; ref.Field != FieldSurname || !ref.Static() {
		t.Errorf("col 0 = %+v, want static surname", ref)
	}
}

func TestInferHeaderSemesterContext(t *testing.T) {
	matrix := [][]string{
		{"SURNAME", "FIRST NAME", "MIDDLE NAME", "SEX", "STATUS", "AY 2023-2024", "", "", ""},
		{"", "", "", "", "", "First Semester", "", "Second Semester", ""},
		{"", "", "", "", "", "Amount", "Status", "Amount", "Year Level"},
		{"Dela Cruz", "Juan", "Santos", "M", "Active", "10,000", "Released", "10,000", "2"},
	}
	header, err := InferHeader(matrix)
	if err != nil {
		t.Fatalf("InferHeader: %v", err)
	}
	if header.RowSpan != 3 {
		t.Fatalf("RowSpan = %d, want 3", header.RowSpan)
	}
	byCol := map[int]FieldRef{}
	for _, c := range header.Columns {
		byCol[c.Col] = c.Ref
	}
	if ref := byCol[5]; ref.Field != DisbAmount || ref.AcademicYear != "2023-2024" || ref.Semester != SemesterFirst {
		t.Errorf("col 5 = %+v, want first-semester amount", ref)
	}
	if ref := byCol[6]; ref.Field != DisbStatus || ref.Semester != SemesterFirst {
		t.Errorf("col 6 = %+v, want first-semester disbursement status", ref)
	}
	if ref := byCol[7]; ref.Field != DisbAmount || ref.Semester != SemesterSecond {
		t.Errorf("col 7 = %+v, want second-semester amount", ref)
	}
	// year level binds to the academic year, never a semester
	if ref := byCol[8]; ref.Field != FieldYearLevel || ref.AcademicYear != "2023-2024" || ref.Semester != "" {
		t.Errorf("col 8 = %+v, want year_level with bare year context", ref)
	}
}

func TestInferHeaderDateColumns(t *testing.T) {
	// Date-heavy data rows must not read as academic-year labels: a
	// cell like "01/15/2004" is data even though it contains a year.
	matrix := [][]string{
		{"SURNAME", "FIRST NAME", "STATUS", "BIRTHDATE", "DATE RELEASED"},
		{"Cruz", "Ana", "Active", "01/15/2004", "09/02/2024"},
		{"Reyes", "Maria", "Active", "03/22/2003", "09/02/2024"},
	}
	header, err := InferHeader(matrix)
	if err != nil {
		t.Fatalf("InferHeader: %v", err)
	}
	if header.StartRow != 0 || header.RowSpan != 1 {
		t.Fatalf("got start=%d span=%d, want start=0 span=1", header.StartRow, header.RowSpan)
	}
	records, skipped := NormalizeRows(matrix, header)
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if got := records[0].Fields[FieldBirthDate]; got == "" {
		t.Error("birthdate cell should survive normalization")
	}
}

func TestInferHeaderFailures(t *testing.T) {
	t.Run("empty matrix", func(t *testing.T) {
		if _, err := InferHeader(nil); !errors.Is(err, ErrEmptyFile) {
			t.Errorf("got %v, want ErrEmptyFile", err)
		}
	})
	t.Run("too few field matches", func(t *testing.T) {
		matrix := [][]string{
			{"SURNAME", "FIRST NAME", "SEX", "Column D", "Column E"},
			{"Dela Cruz", "Juan", "M", "x", "y"},
		}
		if _, err := InferHeader(matrix); !errors.Is(err, ErrHeaderNotRecognized) {
			t.Errorf("got %v, want ErrHeaderNotRecognized", err)
		}
	})
	t.Run("missing identity columns", func(t *testing.T) {
		matrix := [][]string{
			{"FIRST NAME", "SEX", "STATUS", "REMARKS", "ADDRESS", "LRN"},
			{"Juan", "M", "Active", "", "Manila", "123456789012"},
		}
		if _, err := InferHeader(matrix); !errors.Is(err, ErrMissingIdentityColumns) {
			t.Errorf("got %v, want ErrMissingIdentityColumns", err)
		}
	})
}
