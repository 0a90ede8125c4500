package constants

// ============================================================================
// UPLOAD & PARSE ERRORS
// ============================================================================

const (
	ErrInvalidUpload     = "Could not read the uploaded form. Please try again"
	ErrNoFileUploaded    = "No file found in the request. Attach the spreadsheet under the 'file' field"
	ErrUnsupportedFormat = "Unsupported file format. Upload an .xlsx, .xls or .csv file"
	ErrHeaderNotFound    = "Could not locate a recognizable header row in the file"
	ErrNoIdentityColumns = "The file must contain surname and first name columns"
	ErrNoDataRows        = "The file contains no data rows after the header"
)

// ============================================================================
// SESSION & WORKFLOW ERRORS
// ============================================================================

const (
	ErrSessionExpired        = "Import session not found or expired. Upload the file again"
	ErrNotYetValidated       = "Run validation before this step"
	ErrStaleValidation       = "The batch changed after validation. Validate again before committing"
	ErrBlockedRows           = "The batch has unresolved blocking rows. Fix or delete them and re-validate"
	ErrOpenConflicts         = "Some field conflicts still need a resolution choice"
	ErrMatchesNeedResolution = "Matched rows have no merge plan yet. Run resolve before committing"
	ErrCommitInProgress      = "A commit for this session is already running"
	ErrCommitPartial         = "The commit stopped partway. Review the reported chunk before retrying"
	ErrInvalidChoice         = "choice must be 'existing' or 'import'"
	ErrDiffNotFound          = "No open conflict matches the given row, field and period"
	ErrRowIndexesMissing     = "row_indexes is required and must not be empty"
)

// ============================================================================
// RECIPIENT & DISBURSEMENT ERRORS
// ============================================================================

const (
	ErrRecipientNotFound    = "Recipient not found in the system"
	ErrDisbursementNotFound = "No disbursement recorded for that academic period"
	ErrMissingStatusValue   = "Scholarship status is required for every row"
)
