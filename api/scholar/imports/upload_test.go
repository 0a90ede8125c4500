package imports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ScholarSaas/api/constants"
)

// stubStore serves canned duplicates and recipients so the handler
// pipeline can run without Postgres.
type stubStore struct {
	matches    map[int][]MatchCandidate
	recipients map[string]*PersistedRecipient
	stats      *CommitStats
	committed  *MergeDecision
}

func (s *stubStore) FindDuplicates(_ context.Context, _ []CandidateSignature) (map[int][]MatchCandidate, error) {
	return s.matches, nil
}

func (s *stubStore) FetchRecipient(_ context.Context, recipientID string) (*PersistedRecipient, error) {
	rec, ok := s.recipients[recipientID]
	if !ok {
		return nil, fmt.Errorf("no recipient %s", recipientID)
	}
	return rec, nil
}

func (s *stubStore) CommitImport(_ context.Context, dec *MergeDecision, _, _, _ string) (*CommitStats, error) {
	s.committed = dec
	return s.stats, nil
}

func postJSON(t *testing.T, h http.HandlerFunc, body map[string]interface{}) (int, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	h(w, req)
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w.Code, out
}

// workflowFixture wires a three-row session against a stub store: row 3
// is a clean insert, row 4 matches r-1 with a degree-program conflict,
// row 5 matches r-2 and merges cleanly.
func workflowFixture() (*SessionManager, *ImportSession, *stubStore) {
	mgr := NewSessionManager(time.Hour)
	records := []*ImportRecord{
		testRecord(3, map[FieldID]string{FieldSurname: "Santos"}, nil),
		testRecord(4, map[FieldID]string{FieldSurname: "Reyes", FieldDegreeProgram: "BS Nursing"}, nil),
		testRecord(5, map[FieldID]string{FieldSurname: "Lopez"}, nil),
	}
	sess := mgr.Create("masterlist.xlsx", "abc123", nil, &HeaderBlock{}, records, 0, TagSet{})
	store := &stubStore{
		matches: map[int][]MatchCandidate{
			1: {{MatchType: MatchExactName, RecipientID: "r-1"}},
			2: {{MatchType: MatchExactName, RecipientID: "r-2"}},
		},
		recipients: map[string]*PersistedRecipient{
			"r-1": persisted("r-1", map[FieldID]string{FieldSurname: "Reyes", FieldDegreeProgram: "BSN"}, nil),
			"r-2": persisted("r-2", map[FieldID]string{FieldSurname: "Lopez"}, nil),
		},
		stats: &CommitStats{Inserted: 1, Updated: 2},
	}
	return mgr, sess, store
}

func TestResolveResponseBuckets(t *testing.T) {
	mgr, sess, store := workflowFixture()
	body := map[string]interface{}{"session_id": sess.ID, "user_id": "u-1"}

	code, _ := postJSON(t, ValidateImport(mgr, store), body)
	if code != http.StatusOK {
		t.Fatalf("validate status = %d", code)
	}
	code, resp := postJSON(t, ResolveImport(mgr, store), body)
	if code != http.StatusOK {
		t.Fatalf("resolve status = %d, body %v", code, resp)
	}

	summary, ok := resp["summary"].(map[string]interface{})
	if !ok {
		t.Fatalf("resolve response has no summary: %v", resp)
	}
	want := map[string]float64{"total": 3, ClassClean: 1, ClassAutoMerge: 1, ClassConflict: 1}
	for k, v := range want {
		if got, _ := summary[k].(float64); got != v {
			t.Errorf("summary[%q] = %v, want %v", k, summary[k], v)
		}
	}
	clean, _ := resp["clean"].([]interface{})
	if len(clean) != 1 || clean[0].(float64) != 3 {
		t.Errorf("clean bucket = %v, want [3]", resp["clean"])
	}
	if auto, _ := resp["auto_merge"].([]interface{}); len(auto) != 1 {
		t.Errorf("auto_merge bucket = %v, want one entry", resp["auto_merge"])
	}
	if conf, _ := resp["conflicts"].([]interface{}); len(conf) != 1 {
		t.Errorf("conflicts bucket = %v, want one entry", resp["conflicts"])
	}
}

func TestCommitWorkflowGates(t *testing.T) {
	mgr, sess, store := workflowFixture()
	body := map[string]interface{}{"session_id": sess.ID, "user_id": "u-1"}

	if code, _ := postJSON(t, ValidateImport(mgr, store), body); code != http.StatusOK {
		t.Fatalf("validate status = %d", code)
	}

	// Matched rows exist but resolve never ran: the commit must refuse
	// instead of inserting duplicates of r-1 and r-2.
	code, resp := postJSON(t, CommitImportBatch(mgr, store), body)
	if code != http.StatusConflict {
		t.Fatalf("commit before resolve: status = %d, want 409", code)
	}
	if resp["error"] != constants.ErrMatchesNeedResolution {
		t.Errorf("error = %v, want %q", resp["error"], constants.ErrMatchesNeedResolution)
	}
	if store.committed != nil {
		t.Fatal("store must not see a commit before resolve")
	}

	if code, _ := postJSON(t, ResolveImport(mgr, store), body); code != http.StatusOK {
		t.Fatalf("resolve status = %d", code)
	}

	// Row 4 still carries the open degree-program diff.
	code, resp = postJSON(t, CommitImportBatch(mgr, store), body)
	if code != http.StatusConflict {
		t.Fatalf("commit with open conflict: status = %d, want 409", code)
	}
	if resp["error"] != constants.ErrOpenConflicts {
		t.Errorf("error = %v, want %q", resp["error"], constants.ErrOpenConflicts)
	}

	choice := map[string]interface{}{
		"session_id": sess.ID, "user_id": "u-1",
		"row_index": 4, "field": string(FieldDegreeProgram), "choice": ChoiceImport,
	}
	if code, _ := postJSON(t, RecordResolutionChoice(mgr), choice); code != http.StatusOK {
		t.Fatalf("choice status = %d", code)
	}

	code, resp = postJSON(t, CommitImportBatch(mgr, store), body)
	if code != http.StatusOK {
		t.Fatalf("commit status = %d, body %v", code, resp)
	}
	if got, _ := resp["inserted"].(float64); got != 1 {
		t.Errorf("inserted = %v, want 1", resp["inserted"])
	}
	if got, _ := resp["updated"].(float64); got != 2 {
		t.Errorf("updated = %v, want 2", resp["updated"])
	}

	if store.committed == nil {
		t.Fatal("store never saw the merge decision")
	}
	if len(store.committed.Inserts) != 1 || store.committed.Inserts[0].RowIndex != 3 {
		t.Errorf("inserts = %+v, want only row 3", store.committed.Inserts)
	}
	if len(store.committed.Updates) != 2 {
		t.Errorf("updates = %+v, want rows 4 and 5", store.committed.Updates)
	}
	if _, ok := mgr.Get(sess.ID); ok {
		t.Error("committed session should be torn down")
	}
}
