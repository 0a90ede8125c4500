package imports

import "testing"

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Learner Reference No.", "learnerreferenceno"},
		{"FIRST NAME", "firstname"},
		{"Date  of   Birth", "dateofbirth"},
		{"A.Y. 2024-2025", "ay20242025"},
		{"  ", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := normalizeToken(tt.in); got != tt.want {
			t.Errorf("normalizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchStudentField(t *testing.T) {
	tests := []struct {
		token string
		want  FieldID
		ok    bool
	}{
		{"surname", FieldSurname, true},
		{"apelyido", FieldSurname, true},
		{"givenname", FieldFirstName, true},
		{"lrn", FieldLRN, true},
		{"nameofhei", FieldInstitution, true},
		{"spasawardno", FieldAwardNumber, true},
		{"scholarshipstatus", FieldStatus, true},
		{"amount", "", false}, // disbursement vocabulary
		{"yearlevel", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := matchStudentField(tt.token)
		if got != tt.want || ok != tt.ok {
			t.Errorf("matchStudentField(%q) = (%q, %v), want (%q, %v)", tt.token, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMatchDisbursementField(t *testing.T) {
	tests := []struct {
		token string
		want  FieldID
		ok    bool
	}{
		{"amount", DisbAmount, true},
		{"amountreleased", DisbAmount, true},
		{"datereleased", DisbDateReleased, true},
		{"checkno", DisbReferenceNo, true},
		{"yearlevel", FieldYearLevel, true},
		{"curriculumyearlevel", FieldYearLevel, true},
		{"surname", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := matchDisbursementField(tt.token)
		if got != tt.want || ok != tt.ok {
			t.Errorf("matchDisbursementField(%q) = (%q, %v), want (%q, %v)", tt.token, got, ok, tt.want, tt.ok)
		}
	}
}

// "status" resolves differently with and without academic-year context.
func TestStatusTokenAmbiguity(t *testing.T) {
	if f, ok := matchStudentField("status"); !ok || f != FieldStatus {
		t.Errorf("bare status = %q", f)
	}
	if f, ok := matchDisbursementField("status"); !ok || f != DisbStatus {
		t.Errorf("status in year block = %q", f)
	}
}

func TestIsHeaderToken(t *testing.T) {
	for _, token := range []string{"surname", "amount", "yearlevel", "remarks"} {
		if !isHeaderToken(token) {
			t.Errorf("isHeaderToken(%q) = false", token)
		}
	}
	for _, token := range []string{"", "delacruz", "tes2023001"} {
		if isHeaderToken(token) {
			t.Errorf("isHeaderToken(%q) = true", token)
		}
	}
}

func TestDeriveProgramFromAward(t *testing.T) {
	tests := []struct {
		award string
		want  string
	}{
		{"TES-2023-00123", "Tertiary Education Subsidy"},
		{"tdp-2024-5", "Tulong Dunong Program"},
		{"CMSP-FM-001", "CHED Merit Scholarship Program - Full Merit"}, // longest prefix beats CMSP
		{"CMSP-HM-001", "CHED Merit Scholarship Program - Half Merit"},
		{"CMSP-2023-01", "CHED Merit Scholarship Program"},
		{"CSP-009", "CHED Scholarship Program"},
		{"UNKNOWN-1", ""},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := deriveProgramFromAward(tt.award); got != tt.want {
			t.Errorf("deriveProgramFromAward(%q) = %q, want %q", tt.award, got, tt.want)
		}
	}
}

func TestSortPrefixRules(t *testing.T) {
	rules := []ProgramPrefixRule{
		{Prefix: "CMSP", Program: "base"},
		{Prefix: "CMSP-FM", Program: "full"},
		{Prefix: "C", Program: "one"},
	}
	sorted := sortPrefixRules(rules)
	if sorted[0].Prefix != "CMSP-FM" || sorted[2].Prefix != "C" {
		t.Errorf("longest prefix must come first: %+v", sorted)
	}
	// input slice untouched
	if rules[0].Prefix != "CMSP" {
		t.Error("sortPrefixRules must not mutate its input")
	}
}
