package imports

import (
	"fmt"
	"sort"
	"strings"
)

// ReconcileBatch classifies every record of one upload against the rest
// of the batch. Pure: same records in, same tags out, regardless of
// input order (only the reported indices follow the input).
func ReconcileBatch(records []*ImportRecord) TagSet {
	tags := make(TagSet, len(records))

	// Missing required status is a per-row hard blocker.
	for _, rec := range records {
		if strings.TrimSpace(rec.Fields[FieldStatus]) == "" {
			tags.add(rec.RowIndex, TagMissingStatus, "scholarship status is required")
		}
	}

	// Group by derived identity; rows with no identity never group.
	groups := map[string][]*ImportRecord{}
	var keys []string
	for _, rec := range records {
		key := rec.IdentityKey()
		if key == "" {
			continue
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], rec)
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		reconcileGroup(group, tags)
	}
	return tags
}

// reconcileGroup applies the within-group rules: differing student data
// forks are never auto-resolved, identical students with overlapping
// disbursement periods either duplicate exactly or conflict, and
// disjoint periods pass untouched.
func reconcileGroup(group []*ImportRecord, tags TagSet) {
	fingerprints := make([]string, len(group))
	for i, rec := range group {
		fingerprints[i] = rec.Fingerprint()
	}

	forked := false
	for i := 1; i < len(group); i++ {
		if fingerprints[i] != fingerprints[0] {
			forked = true
			break
		}
	}
	if forked {
		for i, rec := range group {
			var details []string
			for j, other := range group {
				if i == j || fingerprints[i] == fingerprints[j] {
					continue
				}
				diff := differingFields(rec, other)
				details = append(details, fmt.Sprintf("row %d differs in %s", other.RowIndex, strings.Join(diff, ", ")))
			}
			tags.add(rec.RowIndex, TagBatchConflict, strings.Join(details, "; "))
		}
		return
	}

	// Identical student data: compare disbursements pairwise.
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			compareDisbursements(group[i], group[j], tags)
		}
	}
}

// differingFields lists the student fields where two records disagree,
// in canonical order.
func differingFields(a, b *ImportRecord) []string {
	var out []string
	for _, f := range studentFieldOrder {
		if !strings.EqualFold(strings.TrimSpace(a.Fields[f]), strings.TrimSpace(b.Fields[f])) {
			out = append(out, string(f))
		}
	}
	return out
}

func compareDisbursements(a, b *ImportRecord, tags TagSet) {
	shared := sharedPeriods(a, b)

	var conflicting []string
	identical := true
	for _, key := range shared {
		if !a.Disbursements[key].Equal(b.Disbursements[key]) {
			identical = false
			conflicting = append(conflicting, key.String())
		}
	}

	if len(conflicting) > 0 {
		detail := fmt.Sprintf("rows %d and %d both declare %s with different data",
			a.RowIndex, b.RowIndex, strings.Join(conflicting, ", "))
		tags.add(a.RowIndex, TagDisbConflict, detail)
		tags.add(b.RowIndex, TagDisbConflict, detail)
		return
	}

	// All shared periods identical. Identical key sets make the rows
	// exact duplicates; a subset or disjoint sets are the legitimate
	// "same student, more semesters" case and stay untagged.
	if identical && len(shared) == len(a.Disbursements) && len(shared) == len(b.Disbursements) {
		detail := fmt.Sprintf("rows %d and %d are identical", a.RowIndex, b.RowIndex)
		tags.add(a.RowIndex, TagExactDuplicate, detail)
		tags.add(b.RowIndex, TagExactDuplicate, detail)
	}
}

// sharedPeriods returns the period keys present in both records, in
// deterministic order.
func sharedPeriods(a, b *ImportRecord) []PeriodKey {
	var out []PeriodKey
	for key := range a.Disbursements {
		if _, ok := b.Disbursements[key]; ok {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AcademicYear != out[j].AcademicYear {
			return out[i].AcademicYear < out[j].AcademicYear
		}
		return out[i].Semester < out[j].Semester
	})
	return out
}
