package imports

import (
	"context"
	"sync"
	"time"

	"ScholarSaas/internal/config"

	"github.com/google/uuid"
)

// defaultSessions is the process-wide registry shared by the HTTP
// handlers and the housekeeping cron.
var defaultSessions = NewSessionManager(config.SessionTTL)

// Sessions returns the shared session registry.
func Sessions() *SessionManager {
	return defaultSessions
}

// ImportSession holds the in-memory state of one upload between the
// parse, validate, resolve and commit steps. All mutation goes through
// the methods below; handlers never touch fields directly.
type ImportSession struct {
	ID        string
	FileName  string
	FileHash  string
	CreatedAt time.Time
	ExpiresAt time.Time

	mu          sync.Mutex
	matrix      [][]string
	header      *HeaderBlock
	records     []*ImportRecord
	skippedRows int
	tags        TagSet
	matches     map[int][]MatchCandidate
	resolutions map[int]*RowResolution
	dirty       bool
	validated   bool

	// Single active-operation slot. A new validate supersedes whatever
	// is in flight; a second concurrent commit is refused. opSeq ties a
	// release back to the claim it belongs to.
	opName   string
	opCancel context.CancelFunc
	opSeq    uint64
}

// SessionManager is the uuid-keyed registry of live upload sessions.
type SessionManager struct {
	sessions map[string]*ImportSession
	mu       sync.Mutex
	ttl      time.Duration
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*ImportSession),
		ttl:      ttl,
	}
}

// Create registers a fresh session holding the parsed upload.
func (m *SessionManager) Create(fileName, fileHash string, matrix [][]string, header *HeaderBlock, records []*ImportRecord, skipped int, tags TagSet) *ImportSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &ImportSession{
		ID:          uuid.New().String(),
		FileName:    fileName,
		FileHash:    fileHash,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(m.ttl),
		matrix:      matrix,
		header:      header,
		records:     records,
		skippedRows: skipped,
		tags:        tags,
		matches:     make(map[int][]MatchCandidate),
		resolutions: make(map[int]*RowResolution),
	}
	m.sessions[s.ID] = s
	return s
}

func (m *SessionManager) Get(id string) (*ImportSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, false
	}
	return s, true
}

func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// PurgeExpired drops sessions past their TTL and returns how many went.
func (m *SessionManager) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	now := time.Now()
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, id)
			purged++
		}
	}
	return purged
}

// BeginOperation claims the session's active-operation slot and returns
// a release func bound to this claim. A new operation cancels whatever
// was in flight, except that a commit never displaces a running commit:
// conflicting commits for one upload must not race. A release fires
// only while its own claim still holds the slot, so a superseded
// operation's deferred cleanup cannot cancel its successor.
func (s *ImportSession) BeginOperation(parent context.Context, name string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opCancel != nil {
		if name == "commit" && s.opName == "commit" {
			return nil, nil, ErrCommitInFlight
		}
		s.opCancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.opSeq++
	seq := s.opSeq
	s.opName = name
	s.opCancel = cancel

	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.opSeq != seq {
			return
		}
		cancel()
		s.opCancel = nil
		s.opName = ""
	}
	return ctx, release, nil
}

// Snapshot returns the current records, tags and header for read-only
// use by handlers.
func (s *ImportSession) Snapshot() (records []*ImportRecord, tags TagSet, header *HeaderBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records, s.tags, s.header
}

// SkippedRows reports how many raw rows the normalizer discarded.
func (s *ImportSession) SkippedRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skippedRows
}

// SetValidation stores the outcome of a validate pass and clears the
// dirty flag: the tags and matches now describe the current batch.
// Merge plans computed against the previous validation are discarded;
// matched rows need a fresh resolve pass before commit.
func (s *ImportSession) SetValidation(tags TagSet, matches map[int][]MatchCandidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = tags
	s.matches = matches
	for _, rec := range s.records {
		if len(matches[rec.RowIndex]) > 0 {
			s.tags.add(rec.RowIndex, TagExternalMatch, "")
		}
	}
	s.resolutions = make(map[int]*RowResolution)
	s.dirty = false
	s.validated = true
}

// Matches returns the duplicate candidates recorded by the last
// validation.
func (s *ImportSession) Matches() map[int][]MatchCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches
}

// SetResolutions stores the merge plans computed by a resolve pass.
func (s *ImportSession) SetResolutions(res map[int]*RowResolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions = res
}

// Resolutions returns the current merge plans.
func (s *ImportSession) Resolutions() map[int]*RowResolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolutions
}

// RecordChoice applies a user resolution choice to one open diff.
func (s *ImportSession) RecordChoice(rowIndex int, field FieldID, academicYear, semester, choice string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.resolutions[rowIndex]
	if !ok {
		return false
	}
	d := res.FindDiff(field, academicYear, semester)
	if d == nil {
		return false
	}
	d.Choice = choice
	return true
}

// DeleteRows removes records from the batch and marks validation state
// stale. The caller must re-validate before committing.
func (s *ImportSession) DeleteRows(rowIndexes []int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[int]bool, len(rowIndexes))
	for _, idx := range rowIndexes {
		drop[idx] = true
	}
	kept := s.records[:0]
	removed := 0
	for _, rec := range s.records {
		if drop[rec.RowIndex] {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	if removed > 0 {
		s.dirty = true
	}
	return removed
}

// CommitReady reports whether the batch may be committed: validated,
// unedited since, no blocking tags, every externally matched row
// resolved into a merge plan, and no open conflicts.
func (s *ImportSession) CommitReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validated {
		return ErrNotValidated
	}
	if s.dirty {
		return ErrValidationStale
	}
	if s.tags.HasBlocking() {
		return ErrCommitBlocked
	}
	for _, rec := range s.records {
		if s.tags.Has(rec.RowIndex, TagExternalMatch) {
			if _, ok := s.resolutions[rec.RowIndex]; !ok {
				return ErrResolveRequired
			}
		}
	}
	for _, res := range s.resolutions {
		if len(res.OpenConflicts()) > 0 {
			return ErrUnresolvedConflicts
		}
	}
	return nil
}

// Validated reports whether a validate pass has run on the current
// batch contents.
func (s *ImportSession) Validated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validated && !s.dirty
}

// Dirty reports whether the batch changed since the last validation.
func (s *ImportSession) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}
