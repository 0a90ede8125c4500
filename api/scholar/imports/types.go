package imports

import (
	"strings"
)

// FieldID is a canonical field identifier used across all import sources.
// Raw spreadsheet headers are resolved to these via the alias dictionary.
type FieldID string

// Student-level fields.
const (
	FieldSurname            FieldID = "surname"
	FieldFirstName          FieldID = "first_name"
	FieldMiddleName         FieldID = "middle_name"
	FieldExtensionName      FieldID = "extension_name"
	FieldLRN                FieldID = "lrn"
	FieldSex                FieldID = "sex"
	FieldBirthDate          FieldID = "birth_date"
	FieldEmailAddress       FieldID = "email_address"
	FieldContactNumber      FieldID = "contact_number"
	FieldAddress            FieldID = "address"
	FieldInstitution        FieldID = "institution"
	FieldDegreeProgram      FieldID = "degree_program"
	FieldAwardNumber        FieldID = "award_number"
	FieldScholarshipProgram FieldID = "scholarship_program"
	FieldStatus             FieldID = "status"
	FieldRemarks            FieldID = "remarks"
)

// Disbursement-level fields, resolved inside academic-year header blocks.
const (
	DisbAmount       FieldID = "amount"
	DisbStatus       FieldID = "disbursement_status"
	DisbDateReleased FieldID = "date_released"
	DisbReferenceNo  FieldID = "reference_no"

	// FieldYearLevel binds per academic year, not per semester.
	FieldYearLevel FieldID = "year_level"
)

// studentFieldOrder is the canonical ordering used for fingerprints,
// diffs and record serialization. Keep stable: reordering changes
// nothing semantically but churns every fingerprint-based test.
var studentFieldOrder = []FieldID{
	FieldSurname, FieldFirstName, FieldMiddleName, FieldExtensionName,
	FieldLRN, FieldSex, FieldBirthDate, FieldEmailAddress,
	FieldContactNumber, FieldAddress, FieldInstitution,
	FieldDegreeProgram, FieldAwardNumber, FieldScholarshipProgram,
	FieldStatus, FieldRemarks,
}

var disbFieldOrder = []FieldID{
	DisbAmount, DisbStatus, DisbDateReleased, DisbReferenceNo,
}

// Semester labels as stored on PeriodKey.
const (
	SemesterFirst  = "First"
	SemesterSecond = "Second"
)

// FieldRef binds a spreadsheet column to either a static student field
// (AcademicYear empty) or a disbursement field inside an academic-year
// block. Year-level refs carry an AcademicYear but no Semester.
type FieldRef struct {
	Field        FieldID `json:"field"`
	AcademicYear string  `json:"academic_year,omitempty"`
	Semester     string  `json:"semester,omitempty"`
}

// Static reports whether the ref points at a student-level field.
func (r FieldRef) Static() bool { return r.AcademicYear == "" }

// ColumnRef is one resolved column of the header block.
type ColumnRef struct {
	Col int      `json:"col"`
	Ref FieldRef `json:"ref"`
}

// HeaderBlock is the result of header inference: where the header
// starts, how many stacked rows it spans, and the column→field map.
type HeaderBlock struct {
	StartRow int         `json:"start_row"`
	RowSpan  int         `json:"row_span"`
	Columns  []ColumnRef `json:"columns"`
}

// DataStart returns the index of the first data row.
func (h *HeaderBlock) DataStart() int { return h.StartRow + h.RowSpan }

// HasField reports whether any column resolved to the given static field.
func (h *HeaderBlock) HasField(f FieldID) bool {
	for _, c := range h.Columns {
		if c.Ref.Static() && c.Ref.Field == f {
			return true
		}
	}
	return false
}

// AcademicYears returns the distinct academic-year labels referenced by
// the header block, in column order.
func (h *HeaderBlock) AcademicYears() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range h.Columns {
		ay := c.Ref.AcademicYear
		if ay != "" && !seen[ay] {
			seen[ay] = true
			out = append(out, ay)
		}
	}
	return out
}

// PeriodKey identifies one disbursement period.
type PeriodKey struct {
	AcademicYear string `json:"academic_year"`
	Semester     string `json:"semester"`
}

func (k PeriodKey) String() string {
	if k.Semester == "" {
		return k.AcademicYear
	}
	return k.AcademicYear + " " + k.Semester + " Semester"
}

// DisbursementRecord is one normalized disbursement period for a student.
// YearLevel is tagged at academic-year granularity and repeated on every
// period of that year.
type DisbursementRecord struct {
	Fields    map[FieldID]string `json:"fields"`
	YearLevel string             `json:"year_level,omitempty"`
}

// Equal reports byte-identical content (all fields plus year level).
func (d *DisbursementRecord) Equal(o *DisbursementRecord) bool {
	if d.YearLevel != o.YearLevel {
		return false
	}
	for _, f := range disbFieldOrder {
		if d.Fields[f] != o.Fields[f] {
			return false
		}
	}
	return true
}

// ImportRecord is one normalized person-record from the upload.
type ImportRecord struct {
	RowIndex      int                               `json:"row_index"`
	Fields        map[FieldID]string                `json:"fields"`
	Disbursements map[PeriodKey]*DisbursementRecord `json:"-"`
}

// IdentityKey derives the batch-identity key from the name fields. The
// key is empty when surname or first name is missing; such rows never
// group with anything.
func (r *ImportRecord) IdentityKey() string {
	sn := collapseName(r.Fields[FieldSurname])
	fn := collapseName(r.Fields[FieldFirstName])
	if sn == "" || fn == "" {
		return ""
	}
	return sn + "|" + fn + "|" + collapseName(r.Fields[FieldMiddleName])
}

// Fingerprint concatenates all student-level fields, case-insensitively
// normalized, in canonical order. Two rows with the same identity key
// but different fingerprints are a batch conflict.
func (r *ImportRecord) Fingerprint() string {
	parts := make([]string, 0, len(studentFieldOrder))
	for _, f := range studentFieldOrder {
		parts = append(parts, strings.ToLower(strings.TrimSpace(r.Fields[f])))
	}
	return strings.Join(parts, "\x1f")
}

func collapseName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Classification tags. Advisory metadata on a row; several can apply at
// once (a row can be both batch_conflict and external_match).
const (
	TagMissingStatus  = "missing_status"
	TagBatchConflict  = "batch_conflict"
	TagExactDuplicate = "exact_duplicate"
	TagDisbConflict   = "disb_conflict"
	TagExternalMatch  = "external_match"
)

// blockingTags are the tags that gate commit until the batch is edited
// and re-validated.
var blockingTags = []string{TagMissingStatus, TagBatchConflict, TagExactDuplicate, TagDisbConflict}

// RowTag is one classification tag with its human-readable reason.
type RowTag struct {
	Tag    string `json:"tag"`
	Detail string `json:"detail,omitempty"`
}

// TagSet maps row index → tags for the whole batch.
type TagSet map[int][]RowTag

// Has reports whether the row carries the given tag.
func (t TagSet) Has(row int, tag string) bool {
	for _, rt := range t[row] {
		if rt.Tag == tag {
			return true
		}
	}
	return false
}

func (t TagSet) add(row int, tag, detail string) {
	if t.Has(row, tag) {
		return
	}
	t[row] = append(t[row], RowTag{Tag: tag, Detail: detail})
}

// HasBlocking reports whether any row in the set carries a
// commit-blocking tag.
func (t TagSet) HasBlocking() bool {
	for row := range t {
		for _, tag := range blockingTags {
			if t.Has(row, tag) {
				return true
			}
		}
	}
	return false
}

// Resolution choices for a FieldDiff.
const (
	ChoiceExisting = "existing"
	ChoiceImport   = "import"
)

// FieldDiff is an open conflict between a persisted value and an import
// value. Existing is always non-empty: empty-existing cases are fills,
// never diffs. AcademicYear/Semester are set for disbursement-level
// diffs and empty for student-level ones.
type FieldDiff struct {
	Field        FieldID `json:"field"`
	AcademicYear string  `json:"academic_year,omitempty"`
	Semester     string  `json:"semester,omitempty"`
	Existing     string  `json:"existing_value"`
	Import       string  `json:"import_value"`
	Choice       string  `json:"resolution_choice,omitempty"`
}

// Resolved reports whether an explicit user choice has been recorded.
func (d *FieldDiff) Resolved() bool {
	return d.Choice == ChoiceExisting || d.Choice == ChoiceImport
}

// FieldFill is an auto-applied merge: persisted side empty, import side
// not. Never needs user action.
type FieldFill struct {
	Field        FieldID `json:"field"`
	AcademicYear string  `json:"academic_year,omitempty"`
	Semester     string  `json:"semester,omitempty"`
	Value        string  `json:"value"`
}

// Row classifications produced by the merge resolution engine.
const (
	ClassClean     = "clean"
	ClassAutoMerge = "auto_merge"
	ClassConflict  = "conflict"
)

// RowResolution is the merge plan for one externally matched row.
type RowResolution struct {
	RowIndex         int          `json:"row_index"`
	RecipientID      string       `json:"recipient_id"`
	MatchType        string       `json:"match_type,omitempty"`
	Classification   string       `json:"classification"`
	Fills            []FieldFill  `json:"fills,omitempty"`
	Conflicts        []*FieldDiff `json:"conflicts,omitempty"`
	NewDisbursements []PeriodKey  `json:"new_disbursements,omitempty"`
}

// OpenConflicts returns the diffs still lacking a resolution choice.
func (r *RowResolution) OpenConflicts() []*FieldDiff {
	var open []*FieldDiff
	for _, d := range r.Conflicts {
		if !d.Resolved() {
			open = append(open, d)
		}
	}
	return open
}

// MergeDecision is the final resolved plan handed to the store. Built
// once by the committer; never partially constructed.
type MergeDecision struct {
	Inserts []*ImportRecord  `json:"inserts"`
	Updates []*RowResolution `json:"updates"`
	// Records indexed by row for update application (fills and chosen
	// import values are read back from the source record).
	Records map[int]*ImportRecord `json:"-"`
}

// CandidateSignature is the lightweight per-row probe sent to the store
// for duplicate matching.
type CandidateSignature struct {
	Surname     string `json:"surname"`
	FirstName   string `json:"first_name"`
	MiddleName  string `json:"middle_name"`
	AwardNumber string `json:"award_number"`
	Institution string `json:"institution"`
}

// Match types returned by the duplicate query, strongest first.
const (
	MatchAwardNumber = "award_number"
	MatchExactName   = "exact_name"
	MatchFuzzyName   = "fuzzy_name"
)

// MatchCandidate is one persisted record matching an import row.
type MatchCandidate struct {
	MatchType   string `json:"match_type"`
	RecipientID string `json:"recipient_id"`
	Name        string `json:"name"`
	AwardNumber string `json:"award_number"`
	Institution string `json:"institution"`
	Program     string `json:"program"`
}

// PersistedRecipient is the full stored record used by the merge engine.
type PersistedRecipient struct {
	RecipientID   string                            `json:"recipient_id"`
	Fields        map[FieldID]string                `json:"fields"`
	Disbursements map[PeriodKey]*DisbursementRecord `json:"-"`
}

// CommitStats is the store's report after a successful commit.
type CommitStats struct {
	Inserted             int `json:"inserted"`
	Updated              int `json:"updated"`
	DisbursementsCreated int `json:"disbursements_created"`
}
