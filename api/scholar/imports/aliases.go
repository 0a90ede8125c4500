package imports

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AliasEntry maps one canonical field to its normalized header-name
// variants. Entries are matched in slice order and a cell matches at
// most one field, so inference stays deterministic.
type AliasEntry struct {
	Field    FieldID
	Variants []string
}

// studentAliases covers the static student-level columns.
var studentAliases = []AliasEntry{
	{FieldSurname, []string{"surname", "lastname", "familyname", "apelyido"}},
	{FieldFirstName, []string{"firstname", "givenname", "pangalan"}},
	{FieldMiddleName, []string{"middlename", "middleinitial", "mname"}},
	{FieldExtensionName, []string{"extensionname", "extname", "nameextension", "suffix"}},
	{FieldLRN, []string{"lrn", "learnerreferencenumber", "learnerreferenceno", "learnerrefno"}},
	{FieldSex, []string{"sex", "gender"}},
	{FieldBirthDate, []string{"birthdate", "dateofbirth", "birthday", "dob"}},
	{FieldEmailAddress, []string{"emailaddress", "email", "emailadd"}},
	{FieldContactNumber, []string{"contactnumber", "contactno", "mobilenumber", "mobileno", "cellphonenumber", "phonenumber"}},
	{FieldAddress, []string{"address", "homeaddress", "permanentaddress", "completeaddress"}},
	{FieldInstitution, []string{"institution", "hei", "heiname", "school", "schoolname", "university", "college", "nameofhei"}},
	{FieldDegreeProgram, []string{"degreeprogram", "course", "degree", "courseprogram", "programofstudy"}},
	{FieldAwardNumber, []string{"awardnumber", "awardno", "spasawardno", "seqawardno", "grantnumber", "grantno"}},
	{FieldScholarshipProgram, []string{"scholarshipprogram", "scholarship", "typeofscholarship", "grantprogram", "programname"}},
	{FieldStatus, []string{"status", "scholarshipstatus", "scholarstatus"}},
	{FieldRemarks, []string{"remarks", "remark", "notes", "comments"}},
}

// disbursementAliases resolve leaf labels inside an academic-year block.
// "status" deliberately appears in both sets: with year context it is
// the disbursement status, without it the scholarship status.
var disbursementAliases = []AliasEntry{
	{DisbAmount, []string{"amount", "disbursedamount", "amountreleased", "totalamount", "disbursement", "amt"}},
	{DisbStatus, []string{"status", "disbursementstatus", "releasestatus"}},
	{DisbDateReleased, []string{"datereleased", "dateofrelease", "releasedate", "daterelease"}},
	{DisbReferenceNo, []string{"referenceno", "referencenumber", "refno", "checkno", "chequeno", "adano"}},
}

// yearLevelAliases get a dedicated set because the column binds per
// academic year, not per semester.
var yearLevelAliases = []string{"yearlevel", "curriculumyearlevel", "yrlevel", "curryearlevel", "level"}

// amountFields and dateFields drive type coercion in the normalizer.
var amountFields = map[FieldID]bool{DisbAmount: true}
var dateFields = map[FieldID]bool{FieldBirthDate: true, DisbDateReleased: true}

// normalizeToken lower-cases and strips everything but letters and
// digits, so "Learner Reference No." and "learnerreferenceno" collide.
func normalizeToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// matchStudentField resolves a normalized token to a student field.
// First matching entry wins.
func matchStudentField(token string) (FieldID, bool) {
	if token == "" {
		return "", false
	}
	for _, e := range studentAliases {
		for _, v := range e.Variants {
			if token == v {
				return e.Field, true
			}
		}
	}
	return "", false
}

// matchDisbursementField resolves a normalized token inside an
// academic-year block.
func matchDisbursementField(token string) (FieldID, bool) {
	if token == "" {
		return "", false
	}
	for _, v := range yearLevelAliases {
		if token == v {
			return FieldYearLevel, true
		}
	}
	for _, e := range disbursementAliases {
		for _, v := range e.Variants {
			if token == v {
				return e.Field, true
			}
		}
	}
	return "", false
}

// isHeaderToken reports whether a normalized token matches any known
// alias at all. Used to discard stray header rows inside the data
// region.
func isHeaderToken(token string) bool {
	if _, ok := matchStudentField(token); ok {
		return true
	}
	if _, ok := matchDisbursementField(token); ok {
		return true
	}
	return false
}

// ProgramPrefixRule maps an award-number prefix to a scholarship
// program name. The longest matching prefix wins.
type ProgramPrefixRule struct {
	Prefix  string `yaml:"prefix"`
	Program string `yaml:"program"`
}

// defaultProgramPrefixes is the built-in mapping, used when no
// program_prefixes.yaml is provided. Business mapping, not logic:
// override it from configuration.
var defaultProgramPrefixes = []ProgramPrefixRule{
	{Prefix: "TES", Program: "Tertiary Education Subsidy"},
	{Prefix: "TDP", Program: "Tulong Dunong Program"},
	{Prefix: "CMSP-FM", Program: "CHED Merit Scholarship Program - Full Merit"},
	{Prefix: "CMSP-HM", Program: "CHED Merit Scholarship Program - Half Merit"},
	{Prefix: "CMSP", Program: "CHED Merit Scholarship Program"},
	{Prefix: "CSP", Program: "CHED Scholarship Program"},
}

type programPrefixFile struct {
	Prefixes []ProgramPrefixRule `yaml:"prefixes"`
}

var programPrefixes = sortPrefixRules(defaultProgramPrefixes)

// LoadProgramPrefixes replaces the built-in award-prefix mapping from a
// YAML file. Missing file keeps the defaults.
func LoadProgramPrefixes(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var f programPrefixFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	if len(f.Prefixes) > 0 {
		programPrefixes = sortPrefixRules(f.Prefixes)
	}
	return nil
}

// sortPrefixRules orders rules longest-prefix-first so "CMSP-FM" is
// tried before "CMSP".
func sortPrefixRules(rules []ProgramPrefixRule) []ProgramPrefixRule {
	out := make([]ProgramPrefixRule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Prefix) > len(out[j].Prefix)
	})
	return out
}

// deriveProgramFromAward maps an award number to a program name via the
// prefix rules. Returns "" when no rule applies.
func deriveProgramFromAward(awardNumber string) string {
	award := strings.ToUpper(strings.TrimSpace(awardNumber))
	if award == "" {
		return ""
	}
	for _, rule := range programPrefixes {
		if strings.HasPrefix(award, strings.ToUpper(rule.Prefix)) {
			return rule.Program
		}
	}
	return ""
}
