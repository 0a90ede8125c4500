package imports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"ScholarSaas/api/constants"
	"ScholarSaas/api/utils"

	"github.com/lib/pq"
)

const maxUploadBytes = 32 << 20

func respondWithError(w http.ResponseWriter, status int, errMsg string) {
	log.Println("[ERROR]", errMsg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errMsg,
	})
}

func respondWithPayload(w http.ResponseWriter, payload map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	payload["success"] = true
	json.NewEncoder(w).Encode(payload)
}

// statusForError maps engine sentinels to HTTP codes. Anything
// unrecognized is a plain 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrHeaderNotRecognized),
		errors.Is(err, ErrMissingIdentityColumns),
		errors.Is(err, ErrUnsupportedFileType),
		errors.Is(err, ErrEmptyFile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotValidated),
		errors.Is(err, ErrValidationStale),
		errors.Is(err, ErrCommitBlocked),
		errors.Is(err, ErrResolveRequired),
		errors.Is(err, ErrUnresolvedConflicts),
		errors.Is(err, ErrCommitInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// userMessage translates engine sentinels into the user-facing wording
// from the constants package; unknown errors pass through as-is.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return constants.ErrSessionExpired
	case errors.Is(err, ErrHeaderNotRecognized):
		return constants.ErrHeaderNotFound
	case errors.Is(err, ErrMissingIdentityColumns):
		return constants.ErrNoIdentityColumns
	case errors.Is(err, ErrUnsupportedFileType):
		return constants.ErrUnsupportedFormat
	case errors.Is(err, ErrEmptyFile):
		return constants.ErrNoDataRows
	case errors.Is(err, ErrNotValidated):
		return constants.ErrNotYetValidated
	case errors.Is(err, ErrValidationStale):
		return constants.ErrStaleValidation
	case errors.Is(err, ErrCommitBlocked):
		return constants.ErrBlockedRows
	case errors.Is(err, ErrResolveRequired):
		return constants.ErrMatchesNeedResolution
	case errors.Is(err, ErrUnresolvedConflicts):
		return constants.ErrOpenConflicts
	case errors.Is(err, ErrCommitInFlight):
		return constants.ErrCommitInProgress
	default:
		return err.Error()
	}
}

func pqUserFriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err.Error()
	}
	switch pqErr.Code {
	case "23505":
		return "A record with the same unique value already exists."
	case "23503":
		return "Some referenced data was not found (please refresh and try again)."
	case "23514":
		return "Some fields have invalid values. Please check and try again."
	default:
		return "Database error while processing the request. Please try again."
	}
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func decodeSessionRequest(w http.ResponseWriter, r *http.Request, req *sessionRequest, mgr *SessionManager) (*ImportSession, bool) {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
		return nil, false
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondWithError(w, http.StatusBadRequest, constants.ErrMissingUserID)
		return nil, false
	}
	sess, ok := mgr.Get(req.SessionID)
	if !ok {
		respondWithError(w, http.StatusNotFound, constants.ErrSessionExpired)
		return nil, false
	}
	return sess, true
}

// tagsPayload flattens a TagSet for the response body.
func tagsPayload(tags TagSet) []map[string]interface{} {
	var out []map[string]interface{}
	for row, rowTags := range tags {
		out = append(out, map[string]interface{}{
			"row_index": row,
			"tags":      rowTags,
		})
	}
	return out
}

// UploadImportFile receives the spreadsheet, infers its header,
// normalizes the rows and opens an import session. The original file is
// archived to S3 when a bucket is configured.
func UploadImportFile(mgr *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidUpload)
			return
		}
		userID := strings.TrimSpace(r.FormValue("user_id"))
		if userID == "" {
			respondWithError(w, http.StatusBadRequest, constants.ErrMissingUserID)
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrNoFileUploaded)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "failed to read uploaded file")
			return
		}

		matrix, fileHash, err := ParseUpload(data, hdr.Filename)
		if err != nil {
			respondWithError(w, statusForError(err), userMessage(err))
			return
		}
		header, err := InferHeader(matrix)
		if err != nil {
			respondWithError(w, statusForError(err), userMessage(err))
			return
		}
		records, skipped := NormalizeRows(matrix, header)
		if len(records) == 0 {
			respondWithError(w, http.StatusUnprocessableEntity, constants.ErrNoDataRows)
			return
		}
		tags := ReconcileBatch(records)

		sess := mgr.Create(hdr.Filename, fileHash, matrix, header, records, skipped, tags)
		archiveOriginal(hdr.Filename, fileHash, data)

		log.Printf("[INFO] upload %s by %s: %d rows, %d skipped, session %s",
			hdr.Filename, userID, len(records), skipped, sess.ID)

		respondWithPayload(w, map[string]interface{}{
			"session_id":     sess.ID,
			"file_name":      hdr.Filename,
			"file_hash":      fileHash,
			"header_row":     header.StartRow,
			"header_span":    header.RowSpan,
			"academic_years": header.AcademicYears(),
			"row_count":      len(records),
			"skipped_rows":   skipped,
			"row_tags":       tagsPayload(tags),
		})
	}
}

// ValidateImport re-runs batch reconciliation and probes the store for
// external duplicates. Supersedes any validation already in flight for
// the session.
func ValidateImport(mgr *SessionManager, store RecipientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		sess, ok := decodeSessionRequest(w, r, &req, mgr)
		if !ok {
			return
		}
		ctx, done, err := sess.BeginOperation(r.Context(), "validate")
		if err != nil {
			respondWithError(w, statusForError(err), userMessage(err))
			return
		}
		defer done()

		records, _, _ := sess.Snapshot()
		tags := ReconcileBatch(records)

		sigs := make([]CandidateSignature, len(records))
		for i, rec := range records {
			sigs[i] = CandidateSignature{
				Surname:     rec.Fields[FieldSurname],
				FirstName:   rec.Fields[FieldFirstName],
				MiddleName:  rec.Fields[FieldMiddleName],
				AwardNumber: rec.Fields[FieldAwardNumber],
				Institution: rec.Fields[FieldInstitution],
			}
		}
		found, err := store.FindDuplicates(ctx, sigs)
		if err != nil {
			if ctx.Err() != nil {
				respondWithError(w, http.StatusConflict, "validation superseded by a newer request")
				return
			}
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		matches := make(map[int][]MatchCandidate, len(found))
		for i, candidates := range found {
			matches[records[i].RowIndex] = candidates
		}
		sess.SetValidation(tags, matches)

		log.Printf("[INFO] validate session %s: %d rows, %d tagged, %d matched",
			sess.ID, len(records), len(tags), len(matches))

		respondWithPayload(w, map[string]interface{}{
			"session_id": sess.ID,
			"row_count":  len(records),
			"row_tags":   tagsPayload(tags),
			"matches":    matches,
			"blocking":   tags.HasBlocking(),
		})
	}
}

// ResolveImport computes the merge plan for every externally matched
// row. Needs a fresh validation.
func ResolveImport(mgr *SessionManager, store RecipientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		sess, ok := decodeSessionRequest(w, r, &req, mgr)
		if !ok {
			return
		}
		if !sess.Validated() {
			respondWithError(w, http.StatusConflict, constants.ErrNotYetValidated)
			return
		}
		ctx, done, err := sess.BeginOperation(r.Context(), "resolve")
		if err != nil {
			respondWithError(w, statusForError(err), userMessage(err))
			return
		}
		defer done()

		records, _, _ := sess.Snapshot()
		matches := sess.Matches()
		byRow := make(map[int]*ImportRecord, len(records))
		for _, rec := range records {
			byRow[rec.RowIndex] = rec
		}

		resolutions := make(map[int]*RowResolution)
		for rowIndex, candidates := range matches {
			rec := byRow[rowIndex]
			if rec == nil {
				continue
			}
			best, found := BestCandidate(candidates)
			if !found {
				continue
			}
			existing, err := store.FetchRecipient(ctx, best.RecipientID)
			if err != nil {
				if ctx.Err() != nil {
					respondWithError(w, http.StatusConflict, "resolve superseded by a newer request")
					return
				}
				respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
			res := ResolveRecord(existing, rec)
			res.MatchType = best.MatchType
			resolutions[rowIndex] = res
		}
		sess.SetResolutions(resolutions)

		// Bucket in row order: unmatched rows are clean inserts, matched
		// rows split by classification.
		cleanRows := []int{}
		autoMerge := []*RowResolution{}
		conflicts := []*RowResolution{}
		for _, rec := range records {
			res, matched := resolutions[rec.RowIndex]
			if !matched {
				cleanRows = append(cleanRows, rec.RowIndex)
				continue
			}
			if res.Classification == ClassConflict {
				conflicts = append(conflicts, res)
			} else {
				autoMerge = append(autoMerge, res)
			}
		}

		log.Printf("[INFO] resolve session %s: %d clean, %d auto-merge, %d conflict",
			sess.ID, len(cleanRows), len(autoMerge), len(conflicts))

		respondWithPayload(w, map[string]interface{}{
			"session_id": sess.ID,
			"summary": map[string]int{
				"total":        len(records),
				ClassClean:     len(cleanRows),
				ClassAutoMerge: len(autoMerge),
				ClassConflict:  len(conflicts),
			},
			"clean":      cleanRows,
			"auto_merge": autoMerge,
			"conflicts":  conflicts,
		})
	}
}

type choiceRequest struct {
	sessionRequest
	RowIndex     int     `json:"row_index"`
	Field        FieldID `json:"field"`
	AcademicYear string  `json:"academic_year"`
	Semester     string  `json:"semester"`
	Choice       string  `json:"choice"`
}

// RecordResolutionChoice stores the user's pick for one open conflict.
func RecordResolutionChoice(mgr *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req choiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if strings.TrimSpace(req.UserID) == "" {
			respondWithError(w, http.StatusBadRequest, constants.ErrMissingUserID)
			return
		}
		if req.Choice != ChoiceExisting && req.Choice != ChoiceImport {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidChoice)
			return
		}
		sess, ok := mgr.Get(req.SessionID)
		if !ok {
			respondWithError(w, http.StatusNotFound, constants.ErrSessionExpired)
			return
		}
		if !sess.RecordChoice(req.RowIndex, req.Field, req.AcademicYear, req.Semester, req.Choice) {
			respondWithError(w, http.StatusNotFound, constants.ErrDiffNotFound)
			return
		}
		respondWithPayload(w, map[string]interface{}{
			"row_index": req.RowIndex,
			"field":     req.Field,
			"choice":    req.Choice,
		})
	}
}

type deleteRowsRequest struct {
	sessionRequest
	RowIndexes []int `json:"row_indexes"`
}

// DeleteImportRows drops rows from the working batch. The session turns
// dirty and must be re-validated before commit.
func DeleteImportRows(mgr *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deleteRowsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if strings.TrimSpace(req.UserID) == "" {
			respondWithError(w, http.StatusBadRequest, constants.ErrMissingUserID)
			return
		}
		if len(req.RowIndexes) == 0 {
			respondWithError(w, http.StatusBadRequest, constants.ErrRowIndexesMissing)
			return
		}
		sess, ok := mgr.Get(req.SessionID)
		if !ok {
			respondWithError(w, http.StatusNotFound, constants.ErrSessionExpired)
			return
		}
		removed := sess.DeleteRows(req.RowIndexes)
		log.Printf("[INFO] session %s: %d rows deleted by %s", sess.ID, removed, req.UserID)
		respondWithPayload(w, map[string]interface{}{
			"removed":           removed,
			"needs_revalidation": removed > 0,
		})
	}
}

// CommitImportBatch runs the gated commit: validated, unedited, no
// blocking tags, no open conflicts. The session is torn down on success.
func CommitImportBatch(mgr *SessionManager, store RecipientStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		sess, ok := decodeSessionRequest(w, r, &req, mgr)
		if !ok {
			return
		}
		if err := sess.CommitReady(); err != nil {
			respondWithError(w, statusForError(err), userMessage(err))
			return
		}
		ctx, done, err := sess.BeginOperation(r.Context(), "commit")
		if err != nil {
			respondWithError(w, statusForError(err), userMessage(err))
			return
		}
		defer done()

		records, tags, _ := sess.Snapshot()
		dec, err := BuildMergeDecision(records, tags, sess.Resolutions())
		if err != nil {
			respondWithError(w, statusForError(err), userMessage(err))
			return
		}

		// The commit itself detaches from the request context: once
		// chunks start landing, a dropped connection must not abort
		// halfway through in an unreportable way.
		commitCtx := context.WithoutCancel(ctx)
		stats, err := store.CommitImport(commitCtx, dec, req.UserID, sess.FileName, sess.FileHash)
		if err != nil {
			var partial *PartialCommitError
			if errors.As(err, &partial) {
				log.Printf("[ERROR] commit session %s partial: %v", sess.ID, partial)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success":   false,
					"error":     constants.ErrCommitPartial,
					"entity":    partial.Entity,
					"chunk":     partial.Chunk,
					"committed": partial.Committed,
					"detail":    pqUserFriendlyMessage(partial.Err),
				})
				return
			}
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}

		mgr.Delete(sess.ID)
		log.Printf("[INFO] commit session %s by %s: %d inserted, %d updated, %d disbursements",
			sess.ID, req.UserID, stats.Inserted, stats.Updated, stats.DisbursementsCreated)
		respondWithPayload(w, map[string]interface{}{
			"inserted":              stats.Inserted,
			"updated":               stats.Updated,
			"disbursements_created": stats.DisbursementsCreated,
		})
	}
}

// ListImportBatches returns the commit audit trail, newest first, with
// standard page/limit query params.
func ListImportBatches(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pagination, err := utils.ExtractPagination(r)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		total, err := utils.CountTotal(db, `SELECT COUNT(*) FROM scholar.import_batches`)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		pagination.SetPaginationStats(total)

		rows, err := db.QueryContext(r.Context(), `
			SELECT batch_id, file_name, file_hash, requested_by, status,
			       COALESCE(inserted, 0), COALESCE(updated, 0), COALESCE(disbursements_created, 0),
			       COALESCE(error_message, ''), created_at
			FROM scholar.import_batches
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`, pagination.Limit, pagination.Offset)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		defer rows.Close()

		var batches []map[string]interface{}
		for rows.Next() {
			var batchID, fileName, fileHash, requestedBy, status, errorMessage string
			var inserted, updated, disbs int
			var createdAt sql.NullTime
			if err := rows.Scan(&batchID, &fileName, &fileHash, &requestedBy, &status,
				&inserted, &updated, &disbs, &errorMessage, &createdAt); err != nil {
				respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
				return
			}
			b := map[string]interface{}{
				"batch_id":              batchID,
				"file_name":             fileName,
				"file_hash":             fileHash,
				"requested_by":          requestedBy,
				"status":                status,
				"inserted":              inserted,
				"updated":               updated,
				"disbursements_created": disbs,
			}
			if errorMessage != "" {
				b["error_message"] = errorMessage
			}
			if createdAt.Valid {
				b["created_at"] = createdAt.Time.Format("2006-01-02 15:04:05")
			}
			batches = append(batches, b)
		}
		if err := rows.Err(); err != nil {
			respondWithError(w, http.StatusInternalServerError, pqUserFriendlyMessage(err))
			return
		}
		respondWithPayload(w, map[string]interface{}{
			"rows":       batches,
			"pagination": pagination,
		})
	}
}
