package imports

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ScholarSaas/internal/config"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecipientStore is the engine's only window onto persisted records:
// a duplicate lookup, a single-record fetch for merge resolution, and
// the final commit. Handlers never embed SQL.
type RecipientStore interface {
	FindDuplicates(ctx context.Context, sigs []CandidateSignature) (map[int][]MatchCandidate, error)
	FetchRecipient(ctx context.Context, recipientID string) (*PersistedRecipient, error)
	CommitImport(ctx context.Context, dec *MergeDecision, requestedBy, fileName, fileHash string) (*CommitStats, error)
}

// disbColumns maps disbursement field ids to their table columns.
var disbColumns = map[FieldID]string{
	DisbAmount:       "amount",
	DisbStatus:       "status",
	DisbDateReleased: "date_released",
	DisbReferenceNo:  "reference_no",
}

// PgRecipientStore implements RecipientStore against Postgres.
type PgRecipientStore struct {
	pool *pgxpool.Pool
}

func NewPgRecipientStore(pool *pgxpool.Pool) *PgRecipientStore {
	return &PgRecipientStore{pool: pool}
}

const duplicateQuery = `
	SELECT recipient_id, surname, first_name, COALESCE(middle_name,''),
	       COALESCE(award_number,''), COALESCE(institution,''), COALESCE(scholarship_program,''),
	       CASE
	           WHEN $4 <> '' AND award_number = $4 THEN 'award_number'
	           WHEN lower(surname) = $1 AND lower(first_name) = $2
	                AND lower(COALESCE(middle_name,'')) = $3 THEN 'exact_name'
	           ELSE 'fuzzy_name'
	       END AS match_type
	FROM scholar.recipients
	WHERE ($4 <> '' AND award_number = $4)
	   OR (lower(surname) = $1 AND lower(first_name) = $2)
	ORDER BY recipient_id`

// FindDuplicates probes the store with one query per signature using a
// single pgx batch. Only indices with at least one candidate appear in
// the result.
func (s *PgRecipientStore) FindDuplicates(ctx context.Context, sigs []CandidateSignature) (map[int][]MatchCandidate, error) {
	out := make(map[int][]MatchCandidate)
	if len(sigs) == 0 {
		return out, nil
	}

	batch := &pgx.Batch{}
	for _, sig := range sigs {
		batch.Queue(duplicateQuery,
			strings.ToLower(strings.TrimSpace(sig.Surname)),
			strings.ToLower(strings.TrimSpace(sig.FirstName)),
			strings.ToLower(strings.TrimSpace(sig.MiddleName)),
			strings.TrimSpace(sig.AwardNumber))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range sigs {
		rows, err := br.Query()
		if err != nil {
			return nil, fmt.Errorf("duplicate query for row %d: %w", i, err)
		}
		for rows.Next() {
			var c MatchCandidate
			var surname, firstName, middleName string
			if err := rows.Scan(&c.RecipientID, &surname, &firstName, &middleName,
				&c.AwardNumber, &c.Institution, &c.Program, &c.MatchType); err != nil {
				rows.Close()
				return nil, err
			}
			c.Name = strings.TrimSpace(surname + ", " + firstName + " " + middleName)
			out[i] = append(out[i], c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FetchRecipient loads the full persisted record including all of its
// disbursement periods.
func (s *PgRecipientStore) FetchRecipient(ctx context.Context, recipientID string) (*PersistedRecipient, error) {
	rec := &PersistedRecipient{
		RecipientID:   recipientID,
		Fields:        make(map[FieldID]string, len(studentFieldOrder)),
		Disbursements: make(map[PeriodKey]*DisbursementRecord),
	}

	cols := make([]string, len(studentFieldOrder))
	dest := make([]interface{}, len(studentFieldOrder))
	vals := make([]string, len(studentFieldOrder))
	for i, f := range studentFieldOrder {
		cols[i] = fmt.Sprintf("COALESCE(%s,'')", string(f))
		dest[i] = &vals[i]
	}
	q := fmt.Sprintf("SELECT %s FROM scholar.recipients WHERE recipient_id = $1", strings.Join(cols, ", "))
	if err := s.pool.QueryRow(ctx, q, recipientID).Scan(dest...); err != nil {
		return nil, fmt.Errorf("fetch recipient %s: %w", recipientID, err)
	}
	for i, f := range studentFieldOrder {
		rec.Fields[f] = vals[i]
	}

	rows, err := s.pool.Query(ctx, `
		SELECT academic_year, COALESCE(semester,''), COALESCE(year_level,''),
		       COALESCE(amount::text,''), COALESCE(status,''),
		       COALESCE(date_released::text,''), COALESCE(reference_no,'')
		FROM scholar.disbursements WHERE recipient_id = $1`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("fetch disbursements for %s: %w", recipientID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key PeriodKey
		d := &DisbursementRecord{Fields: make(map[FieldID]string, len(disbFieldOrder))}
		var amount, status, released, refNo string
		if err := rows.Scan(&key.AcademicYear, &key.Semester, &d.YearLevel,
			&amount, &status, &released, &refNo); err != nil {
			return nil, err
		}
		d.Fields[DisbAmount] = amount
		d.Fields[DisbStatus] = status
		d.Fields[DisbDateReleased] = released
		d.Fields[DisbReferenceNo] = refNo
		rec.Disbursements[key] = d
	}
	return rec, rows.Err()
}

// CommitImport applies the merge decision: recipient inserts first, in
// bounded sequential chunks, then disbursement inserts referencing only
// already-committed recipients, then the update set. A failed chunk
// surfaces as PartialCommitError with enough detail to resume.
func (s *PgRecipientStore) CommitImport(ctx context.Context, dec *MergeDecision, requestedBy, fileName, fileHash string) (*CommitStats, error) {
	stats := &CommitStats{}
	batchID := uuid.New()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO scholar.import_batches (batch_id, file_name, file_hash, requested_by, status)
		VALUES ($1, $2, $3, $4, 'processing')`,
		batchID, fileName, fileHash, requestedBy)
	if err != nil {
		return nil, fmt.Errorf("create import batch: %w", err)
	}

	newIDs, err := s.insertRecipients(ctx, dec.Inserts, stats)
	if err != nil {
		s.markBatchFailed(ctx, batchID, err)
		return stats, err
	}

	if err := s.insertDisbursements(ctx, dec.Inserts, newIDs, stats); err != nil {
		s.markBatchFailed(ctx, batchID, err)
		return stats, err
	}

	if err := s.applyUpdates(ctx, dec, stats); err != nil {
		s.markBatchFailed(ctx, batchID, err)
		return stats, err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE scholar.import_batches
		SET status = 'completed', inserted = $1, updated = $2, disbursements_created = $3
		WHERE batch_id = $4`,
		stats.Inserted, stats.Updated, stats.DisbursementsCreated, batchID)
	if err != nil {
		return stats, fmt.Errorf("finalize import batch: %w", err)
	}
	return stats, nil
}

func (s *PgRecipientStore) markBatchFailed(ctx context.Context, batchID uuid.UUID, cause error) {
	// Best effort; the commit error is already on its way up.
	_, _ = s.pool.Exec(ctx, `
		UPDATE scholar.import_batches SET status = 'failed', error_message = $1 WHERE batch_id = $2`,
		cause.Error(), batchID)
}

func (s *PgRecipientStore) insertRecipients(ctx context.Context, inserts []*ImportRecord, stats *CommitStats) (map[int]string, error) {
	newIDs := make(map[int]string, len(inserts))
	cols := make([]string, len(studentFieldOrder))
	params := make([]string, len(studentFieldOrder))
	for i, f := range studentFieldOrder {
		cols[i] = string(f)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO scholar.recipients (%s) VALUES (%s) RETURNING recipient_id",
		strings.Join(cols, ", "), strings.Join(params, ", "))

	for chunkIdx, chunk := range chunkRecords(inserts, config.RecipientChunkSize) {
		batch := &pgx.Batch{}
		for _, rec := range chunk {
			args := make([]interface{}, len(studentFieldOrder))
			for i, f := range studentFieldOrder {
				args[i] = nullable(rec.Fields[f])
			}
			batch.Queue(insertSQL, args...)
		}
		br := s.pool.SendBatch(ctx, batch)
		for _, rec := range chunk {
			var id string
			if err := br.QueryRow().Scan(&id); err != nil {
				br.Close()
				return newIDs, &PartialCommitError{
					Entity: "recipients", Chunk: chunkIdx, Committed: stats.Inserted,
					Err: fmt.Errorf("row %d: %w", rec.RowIndex, err),
				}
			}
			newIDs[rec.RowIndex] = id
			stats.Inserted++
		}
		if err := br.Close(); err != nil {
			return newIDs, &PartialCommitError{Entity: "recipients", Chunk: chunkIdx, Committed: stats.Inserted, Err: err}
		}
	}
	return newIDs, nil
}

type disbInsert struct {
	recipientID string
	key         PeriodKey
	record      *DisbursementRecord
}

func (s *PgRecipientStore) insertDisbursements(ctx context.Context, inserts []*ImportRecord, newIDs map[int]string, stats *CommitStats) error {
	var pending []disbInsert
	for _, rec := range inserts {
		id, ok := newIDs[rec.RowIndex]
		if !ok {
			continue
		}
		for _, key := range sortedPeriods(rec.Disbursements) {
			pending = append(pending, disbInsert{recipientID: id, key: key, record: rec.Disbursements[key]})
		}
	}
	return s.flushDisbursements(ctx, pending, stats)
}

func (s *PgRecipientStore) flushDisbursements(ctx context.Context, pending []disbInsert, stats *CommitStats) error {
	const insertSQL = `
		INSERT INTO scholar.disbursements
		(recipient_id, academic_year, semester, year_level, amount, status, date_released, reference_no)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for chunkIdx, chunk := range chunkDisbursements(pending, config.DisbursementChunkSize) {
		batch := &pgx.Batch{}
		for _, d := range chunk {
			batch.Queue(insertSQL,
				d.recipientID, d.key.AcademicYear, nullable(d.key.Semester), nullable(d.record.YearLevel),
				nullable(d.record.Fields[DisbAmount]), nullable(d.record.Fields[DisbStatus]),
				nullable(d.record.Fields[DisbDateReleased]), nullable(d.record.Fields[DisbReferenceNo]))
		}
		br := s.pool.SendBatch(ctx, batch)
		for range chunk {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return &PartialCommitError{
					Entity: "disbursements", Chunk: chunkIdx,
					Committed: stats.DisbursementsCreated, Err: err,
				}
			}
			stats.DisbursementsCreated++
		}
		if err := br.Close(); err != nil {
			return &PartialCommitError{Entity: "disbursements", Chunk: chunkIdx, Committed: stats.DisbursementsCreated, Err: err}
		}
	}
	return nil
}

// applyUpdates runs the fill and override updates for matched rows and
// inserts their new disbursement periods.
func (s *PgRecipientStore) applyUpdates(ctx context.Context, dec *MergeDecision, stats *CommitStats) error {
	var newDisbs []disbInsert

	for _, res := range dec.Updates {
		rec := dec.Records[res.RowIndex]
		if rec == nil {
			continue
		}

		studentSet := map[FieldID]string{}
		disbSet := map[PeriodKey]map[FieldID]string{}
		for _, fill := range res.Fills {
			if fill.AcademicYear == "" {
				studentSet[fill.Field] = fill.Value
				continue
			}
			key := PeriodKey{AcademicYear: fill.AcademicYear, Semester: fill.Semester}
			if disbSet[key] == nil {
				disbSet[key] = map[FieldID]string{}
			}
			disbSet[key][fill.Field] = fill.Value
		}
		for _, d := range res.Conflicts {
			if d.Choice != ChoiceImport {
				continue // keeping the persisted value needs no write
			}
			if d.AcademicYear == "" {
				studentSet[d.Field] = d.Import
				continue
			}
			key := PeriodKey{AcademicYear: d.AcademicYear, Semester: d.Semester}
			if disbSet[key] == nil {
				disbSet[key] = map[FieldID]string{}
			}
			disbSet[key][d.Field] = d.Import
		}

		if err := s.updateRecipient(ctx, res.RecipientID, studentSet); err != nil {
			return &PartialCommitError{Entity: "recipients", Chunk: -1, Committed: stats.Updated,
				Err: fmt.Errorf("update row %d: %w", res.RowIndex, err)}
		}
		for key, set := range disbSet {
			if err := s.updateDisbursement(ctx, res.RecipientID, key, set); err != nil {
				return &PartialCommitError{Entity: "disbursements", Chunk: -1, Committed: stats.DisbursementsCreated,
					Err: fmt.Errorf("update row %d period %s: %w", res.RowIndex, key, err)}
			}
		}
		stats.Updated++

		for _, key := range res.NewDisbursements {
			if d, ok := rec.Disbursements[key]; ok {
				newDisbs = append(newDisbs, disbInsert{recipientID: res.RecipientID, key: key, record: d})
			}
		}
	}

	return s.flushDisbursements(ctx, newDisbs, stats)
}

func (s *PgRecipientStore) updateRecipient(ctx context.Context, recipientID string, set map[FieldID]string) error {
	if len(set) == 0 {
		return nil
	}
	fields := make([]FieldID, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	assigns := make([]string, len(fields))
	args := make([]interface{}, 0, len(fields)+1)
	for i, f := range fields {
		assigns[i] = fmt.Sprintf("%s = $%d", string(f), i+1)
		args = append(args, set[f])
	}
	args = append(args, recipientID)
	q := fmt.Sprintf("UPDATE scholar.recipients SET %s WHERE recipient_id = $%d",
		strings.Join(assigns, ", "), len(fields)+1)
	_, err := s.pool.Exec(ctx, q, args...)
	return err
}

func (s *PgRecipientStore) updateDisbursement(ctx context.Context, recipientID string, key PeriodKey, set map[FieldID]string) error {
	if len(set) == 0 {
		return nil
	}
	fields := make([]FieldID, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	assigns := make([]string, len(fields))
	args := make([]interface{}, 0, len(fields)+3)
	for i, f := range fields {
		col, ok := disbColumns[f]
		if !ok {
			col = string(f)
		}
		assigns[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, set[f])
	}
	args = append(args, recipientID, key.AcademicYear, key.Semester)
	n := len(fields)
	q := fmt.Sprintf(`UPDATE scholar.disbursements SET %s
		WHERE recipient_id = $%d AND academic_year = $%d AND COALESCE(semester,'') = $%d`,
		strings.Join(assigns, ", "), n+1, n+2, n+3)
	_, err := s.pool.Exec(ctx, q, args...)
	return err
}

// nullable maps empty strings to NULL so the tables keep their
// NULL-means-unknown convention.
func nullable(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func chunkRecords(records []*ImportRecord, size int) [][]*ImportRecord {
	var out [][]*ImportRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

func chunkDisbursements(items []disbInsert, size int) [][]disbInsert {
	var out [][]disbInsert
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
