package imports

import (
	"errors"
	"fmt"
)

// Sentinel errors used for mapping to user-friendly messages.
var (
	ErrHeaderNotRecognized    = errors.New("no recognizable header row found in file")
	ErrUnsupportedFileType    = errors.New("unsupported file type (use .xlsx, .xls or .csv)")
	ErrMissingIdentityColumns = errors.New("file has no surname or first name column")
	ErrEmptyFile              = errors.New("file contains no data rows")
	ErrSessionNotFound        = errors.New("import session not found or expired")
	ErrValidationStale        = errors.New("batch was edited after validation; re-validate before commit")
	ErrCommitBlocked          = errors.New("batch has unresolved blocking rows")
	ErrUnresolvedConflicts    = errors.New("one or more field conflicts have no resolution choice")
	ErrResolveRequired        = errors.New("externally matched rows have no merge resolution")
	ErrCommitInFlight         = errors.New("a commit is already in progress for this session")
	ErrNotValidated           = errors.New("batch has not been validated yet")
)

// PartialCommitError reports exactly which chunk failed so a commit can
// be resumed instead of silently treated as success. Entity is
// "recipients" or "disbursements"; Chunk is zero-based.
type PartialCommitError struct {
	Entity    string
	Chunk     int
	Committed int
	Err       error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("commit failed at %s chunk %d (%d already committed): %v",
		e.Entity, e.Chunk, e.Committed, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }
