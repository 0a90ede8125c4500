package imports

import (
	"sort"
	"strings"
)

// ResolveRecord computes the field-level merge plan between a persisted
// recipient and an import row. Three buckets per field: fills (existing
// empty, import not; auto-applied), conflicts (both non-empty and
// different; need an explicit choice) and pass-through (existing wins,
// nothing to do). The same split runs per matched disbursement period;
// periods present only in the import become new disbursements.
func ResolveRecord(existing *PersistedRecipient, rec *ImportRecord) *RowResolution {
	res := &RowResolution{
		RowIndex:    rec.RowIndex,
		RecipientID: existing.RecipientID,
	}

	for _, f := range studentFieldOrder {
		ev := strings.TrimSpace(existing.Fields[f])
		iv := strings.TrimSpace(rec.Fields[f])
		switch {
		case ev == "" && iv != "":
			res.Fills = append(res.Fills, FieldFill{Field: f, Value: iv})
		case ev != "" && iv != "" && !strings.EqualFold(ev, iv):
			res.Conflicts = append(res.Conflicts, &FieldDiff{Field: f, Existing: ev, Import: iv})
		}
	}

	for _, key := range sortedPeriods(rec.Disbursements) {
		imp := rec.Disbursements[key]
		ex, matched := existing.Disbursements[key]
		if !matched {
			res.NewDisbursements = append(res.NewDisbursements, key)
			continue
		}
		for _, f := range disbFieldOrder {
			ev := strings.TrimSpace(ex.Fields[f])
			iv := strings.TrimSpace(imp.Fields[f])
			switch {
			case ev == "" && iv != "":
				res.Fills = append(res.Fills, FieldFill{
					Field: f, AcademicYear: key.AcademicYear, Semester: key.Semester, Value: iv,
				})
			case ev != "" && iv != "" && !strings.EqualFold(ev, iv):
				res.Conflicts = append(res.Conflicts, &FieldDiff{
					Field: f, AcademicYear: key.AcademicYear, Semester: key.Semester,
					Existing: ev, Import: iv,
				})
			}
		}
	}

	if len(res.Conflicts) == 0 {
		res.Classification = ClassAutoMerge
	} else {
		res.Classification = ClassConflict
	}
	return res
}

// BestCandidate picks the strongest match for a row: award-number
// matches beat exact-name matches beat fuzzy ones; ties keep store
// order.
func BestCandidate(candidates []MatchCandidate) (MatchCandidate, bool) {
	if len(candidates) == 0 {
		return MatchCandidate{}, false
	}
	rank := func(t string) int {
		switch t {
		case MatchAwardNumber:
			return 0
		case MatchExactName:
			return 1
		default:
			return 2
		}
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if rank(c.MatchType) < rank(best.MatchType) {
			best = c
		}
	}
	return best, true
}

// FindDiff locates the open diff addressed by a resolution-choice
// request. Student-level diffs have empty year/semester.
func (r *RowResolution) FindDiff(field FieldID, academicYear, semester string) *FieldDiff {
	for _, d := range r.Conflicts {
		if d.Field == field && d.AcademicYear == academicYear && d.Semester == semester {
			return d
		}
	}
	return nil
}

// ChosenValue returns the value a resolved diff settles on.
func (d *FieldDiff) ChosenValue() string {
	if d.Choice == ChoiceImport {
		return d.Import
	}
	return d.Existing
}

func sortedPeriods(m map[PeriodKey]*DisbursementRecord) []PeriodKey {
	out := make([]PeriodKey, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AcademicYear != out[j].AcademicYear {
			return out[i].AcademicYear < out[j].AcademicYear
		}
		return out[i].Semester < out[j].Semester
	})
	return out
}

// BuildMergeDecision assembles the final commit plan. It is the single
// gate in front of the store: blocking tags, matched rows without a
// merge plan, or unresolved diffs all refuse the commit outright. A
// matched row must never land in Inserts; without its resolution it
// would be committed as a duplicate of the persisted record.
func BuildMergeDecision(records []*ImportRecord, tags TagSet, resolutions map[int]*RowResolution) (*MergeDecision, error) {
	if tags.HasBlocking() {
		return nil, ErrCommitBlocked
	}
	for _, rec := range records {
		if tags.Has(rec.RowIndex, TagExternalMatch) {
			if _, ok := resolutions[rec.RowIndex]; !ok {
				return nil, ErrResolveRequired
			}
		}
	}
	for _, res := range resolutions {
		if len(res.OpenConflicts()) > 0 {
			return nil, ErrUnresolvedConflicts
		}
	}

	dec := &MergeDecision{Records: make(map[int]*ImportRecord, len(records))}
	for _, rec := range records {
		dec.Records[rec.RowIndex] = rec
		if res, matched := resolutions[rec.RowIndex]; matched {
			dec.Updates = append(dec.Updates, res)
		} else {
			dec.Inserts = append(dec.Inserts, rec)
		}
	}
	return dec, nil
}
