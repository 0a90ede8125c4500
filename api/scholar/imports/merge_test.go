package imports

import (
	"errors"
	"testing"
)

func persisted(id string, fields map[FieldID]string, disbs map[PeriodKey]*DisbursementRecord) *PersistedRecipient {
	f := map[FieldID]string{
		FieldSurname:   "Dela Cruz",
		FieldFirstName: "Juan",
		FieldStatus:    "Active",
	}
	for k, v := range fields {
		f[k] = v
	}
	if disbs == nil {
		disbs = map[PeriodKey]*DisbursementRecord{}
	}
	return &PersistedRecipient{RecipientID: id, Fields: f, Disbursements: disbs}
}

func TestResolveRecordFills(t *testing.T) {
	existing := persisted("r-1", map[FieldID]string{FieldEmailAddress: ""}, nil)
	rec := testRecord(3, map[FieldID]string{FieldEmailAddress: "juan@example.com"}, nil)

	res := ResolveRecord(existing, rec)
	if res.Classification != ClassAutoMerge {
		t.Fatalf("classification = %s, want auto_merge", res.Classification)
	}
	if len(res.Conflicts) != 0 {
		t.Errorf("empty existing value must never conflict, got %+v", res.Conflicts)
	}
	found := false
	for _, f := range res.Fills {
		if f.Field == FieldEmailAddress && f.Value == "juan@example.com" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing email fill, fills = %+v", res.Fills)
	}
}

func TestResolveRecordConflicts(t *testing.T) {
	existing := persisted("r-1", map[FieldID]string{FieldDegreeProgram: "BSN"}, nil)
	rec := testRecord(3, map[FieldID]string{FieldDegreeProgram: "BS Nursing"}, nil)

	res := ResolveRecord(existing, rec)
	if res.Classification != ClassConflict {
		t.Fatalf("classification = %s, want conflict", res.Classification)
	}
	d := res.FindDiff(FieldDegreeProgram, "", "")
	if d == nil {
		t.Fatal("expected a degree_program diff")
	}
	if d.Existing != "BSN" || d.Import != "BS Nursing" {
		t.Errorf("diff sides wrong: %+v", d)
	}
	if d.Resolved() {
		t.Error("fresh diff must be unresolved")
	}
	if got := res.OpenConflicts(); len(got) != 1 {
		t.Errorf("OpenConflicts() = %d, want 1", len(got))
	}
	d.Choice = ChoiceImport
	if got := res.OpenConflicts(); len(got) != 0 {
		t.Errorf("choice recorded but still %d open conflicts", len(got))
	}
	if d.ChosenValue() != "BS Nursing" {
		t.Errorf("ChosenValue() = %q", d.ChosenValue())
	}
}

func TestResolveRecordCaseInsensitiveEquality(t *testing.T) {
	existing := persisted("r-1", map[FieldID]string{FieldInstitution: "University of the Philippines"}, nil)
	rec := testRecord(3, map[FieldID]string{FieldInstitution: "UNIVERSITY OF THE PHILIPPINES"}, nil)

	res := ResolveRecord(existing, rec)
	if len(res.Conflicts) != 0 {
		t.Errorf("case-only difference is not a conflict: %+v", res.Conflicts)
	}
	if res.Classification != ClassAutoMerge {
		t.Errorf("classification = %s, want auto_merge", res.Classification)
	}
}

func TestResolveRecordDisbursements(t *testing.T) {
	ay1 := PeriodKey{AcademicYear: "2023-2024", Semester: SemesterFirst}
	ay2 := PeriodKey{AcademicYear: "2024-2025", Semester: SemesterFirst}

	existing := persisted("r-1", nil, map[PeriodKey]*DisbursementRecord{
		ay1: {Fields: map[FieldID]string{DisbAmount: "10000", DisbStatus: "", DisbReferenceNo: "REF-1"}},
	})
	rec := testRecord(3, nil, map[PeriodKey]*DisbursementRecord{
		ay1: {Fields: map[FieldID]string{DisbAmount: "20000", DisbStatus: "Released"}},
		ay2: {Fields: map[FieldID]string{DisbAmount: "10000", DisbStatus: "Pending"}},
	})

	res := ResolveRecord(existing, rec)
	if res.Classification != ClassConflict {
		t.Fatalf("classification = %s, want conflict", res.Classification)
	}

	// shared period: amount differs, status fills in
	d := res.FindDiff(DisbAmount, ay1.AcademicYear, ay1.Semester)
	if d == nil || d.Existing != "10000" || d.Import != "20000" {
		t.Errorf("amount diff wrong: %+v", d)
	}
	statusFilled := false
	for _, f := range res.Fills {
		if f.Field == DisbStatus && f.AcademicYear == ay1.AcademicYear {
			statusFilled = true
			if f.Value != "Released" {
				t.Errorf("status fill value = %q", f.Value)
			}
		}
		if f.Field == DisbReferenceNo {
			t.Error("import has no reference_no, nothing to fill")
		}
	}
	if !statusFilled {
		t.Errorf("missing status fill, fills = %+v", res.Fills)
	}

	// period only in the import becomes a new disbursement
	if len(res.NewDisbursements) != 1 || res.NewDisbursements[0] != ay2 {
		t.Errorf("NewDisbursements = %v, want [%v]", res.NewDisbursements, ay2)
	}
}

func TestBestCandidate(t *testing.T) {
	fuzzy := MatchCandidate{MatchType: MatchFuzzyName, RecipientID: "r-3"}
	exact := MatchCandidate{MatchType: MatchExactName, RecipientID: "r-2"}
	award := MatchCandidate{MatchType: MatchAwardNumber, RecipientID: "r-1"}

	if _, ok := BestCandidate(nil); ok {
		t.Error("no candidates should report not found")
	}
	if best, _ := BestCandidate([]MatchCandidate{fuzzy, exact, award}); best.RecipientID != "r-1" {
		t.Errorf("award match should win, got %s", best.RecipientID)
	}
	if best, _ := BestCandidate([]MatchCandidate{fuzzy, exact}); best.RecipientID != "r-2" {
		t.Errorf("exact name should beat fuzzy, got %s", best.RecipientID)
	}
	two := []MatchCandidate{
		{MatchType: MatchExactName, RecipientID: "first"},
		{MatchType: MatchExactName, RecipientID: "second"},
	}
	if best, _ := BestCandidate(two); best.RecipientID != "first" {
		t.Errorf("ties keep store order, got %s", best.RecipientID)
	}
}

func TestBuildMergeDecision(t *testing.T) {
	records := []*ImportRecord{
		testRecord(3, nil, nil),
		testRecord(4, map[FieldID]string{FieldSurname: "Reyes"}, nil),
	}

	t.Run("blocking tags refuse commit", func(t *testing.T) {
		tags := TagSet{}
		tags.add(3, TagMissingStatus, "")
		if _, err := BuildMergeDecision(records, tags, nil); !errors.Is(err, ErrCommitBlocked) {
			t.Errorf("got %v, want ErrCommitBlocked", err)
		}
	})

	t.Run("open conflicts refuse commit", func(t *testing.T) {
		res := map[int]*RowResolution{
			3: {RowIndex: 3, Conflicts: []*FieldDiff{{Field: FieldStatus, Existing: "Active", Import: "Graduated"}}},
		}
		if _, err := BuildMergeDecision(records, TagSet{}, res); !errors.Is(err, ErrUnresolvedConflicts) {
			t.Errorf("got %v, want ErrUnresolvedConflicts", err)
		}
	})

	t.Run("matched rows need a merge plan", func(t *testing.T) {
		tags := TagSet{}
		tags.add(3, TagExternalMatch, "")
		if _, err := BuildMergeDecision(records, tags, nil); !errors.Is(err, ErrResolveRequired) {
			t.Errorf("got %v, want ErrResolveRequired", err)
		}
		res := map[int]*RowResolution{
			3: {RowIndex: 3, RecipientID: "r-1", Classification: ClassAutoMerge},
		}
		dec, err := BuildMergeDecision(records, tags, res)
		if err != nil {
			t.Fatalf("resolved match should pass: %v", err)
		}
		if len(dec.Updates) != 1 || dec.Updates[0].RecipientID != "r-1" {
			t.Errorf("matched row must commit as an update, got %+v", dec.Updates)
		}
		if len(dec.Inserts) != 1 || dec.Inserts[0].RowIndex != 4 {
			t.Errorf("inserts = %+v", dec.Inserts)
		}
	})

	t.Run("splits inserts and updates", func(t *testing.T) {
		res := map[int]*RowResolution{
			3: {RowIndex: 3, RecipientID: "r-1", Classification: ClassAutoMerge},
		}
		dec, err := BuildMergeDecision(records, TagSet{}, res)
		if err != nil {
			t.Fatalf("BuildMergeDecision: %v", err)
		}
		if len(dec.Updates) != 1 || dec.Updates[0].RecipientID != "r-1" {
			t.Errorf("updates = %+v", dec.Updates)
		}
		if len(dec.Inserts) != 1 || dec.Inserts[0].RowIndex != 4 {
			t.Errorf("inserts = %+v", dec.Inserts)
		}
		if dec.Records[3] == nil || dec.Records[4] == nil {
			t.Error("Records index must cover every row")
		}
	})

	t.Run("resolved conflicts pass", func(t *testing.T) {
		res := map[int]*RowResolution{
			3: {RowIndex: 3, RecipientID: "r-1", Conflicts: []*FieldDiff{
				{Field: FieldStatus, Existing: "Active", Import: "Graduated", Choice: ChoiceExisting},
			}},
		}
		if _, err := BuildMergeDecision(records, TagSet{}, res); err != nil {
			t.Errorf("all diffs chosen, got %v", err)
		}
	})
}
