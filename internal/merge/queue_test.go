package merge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgeops/sprintmux/internal/errors"
)

func TestOpenStoreEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	s, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
	if got := s.Stats(); got != (Stats{}) {
		t.Errorf("Stats() = %+v, want zero", got)
	}
}

func TestSaveReload(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}

	passed := false
	s.Add(&Request{
		ID:               "sprint_merge_1700000000_a_auth-spr",
		SprintName:       "Auth_Sprint",
		CoderID:          "A",
		BranchName:       "sprint/a/auth-sprint",
		RepoPath:         "/repos/Coder-A",
		State:            StateRepairing,
		TestsPassing:     &passed,
		ValidationOutput: "2 failing",
		ConflictFiles:    []string{"app.txt", "auth.go"},
		RepairAttempts:   2,
		CreatedAt:        time.Now(),
	})
	s.Add(&Request{
		ID:         "sprint_merge_1700000100_b_payment-",
		SprintName: "Payment_Sprint",
		CoderID:    "B",
		State:      StateMerged,
		CreatedAt:  time.Now(),
	})
	s.BumpStats(func(st *Stats) {
		st.SuccessfulMerges = 1
		st.ConflictsResolved = 1
	})

	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore() reload error = %v", err)
	}

	reqs := reloaded.List()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	// Insertion order survives the round trip.
	if reqs[0].ID != "sprint_merge_1700000000_a_auth-spr" {
		t.Errorf("first request = %q", reqs[0].ID)
	}
	got := reqs[0]
	if got.State != StateRepairing || got.RepairAttempts != 2 {
		t.Errorf("state/attempts = %q/%d, want repairing/2", got.State, got.RepairAttempts)
	}
	if got.TestsPassing == nil || *got.TestsPassing {
		t.Errorf("TestsPassing = %v, want false", got.TestsPassing)
	}
	if len(got.ConflictFiles) != 2 || got.ConflictFiles[0] != "app.txt" {
		t.Errorf("ConflictFiles = %v", got.ConflictFiles)
	}

	stats := reloaded.Stats()
	if stats.TotalSprints != 2 || stats.SuccessfulMerges != 1 || stats.ConflictsResolved != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestQueueDocumentShape(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	s.Add(&Request{ID: "r1", SprintName: "S", State: StatePending, CreatedAt: time.Now()})
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "merge-queue.json"))
	if err != nil {
		t.Fatalf("reading document: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document is not valid JSON: %v", err)
	}

	var version string
	if err := json.Unmarshal(doc["version"], &version); err != nil || version != "1.0" {
		t.Errorf("version = %q (%v), want 1.0", version, err)
	}
	for _, key := range []string{"created_at", "updated_at", "queue", "stats"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("document missing %q key", key)
		}
	}
}

func TestOpenStoreCorrupted(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "merge-queue.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := OpenStore(dir)
	if !errors.Is(err, errors.ErrQueueCorrupted) {
		t.Errorf("OpenStore() error = %v, want ErrQueueCorrupted", err)
	}
}

func TestActiveForSprint(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}

	s.Add(&Request{ID: "r1", SprintName: "S1", State: StateFailed})
	s.Add(&Request{ID: "r2", SprintName: "S1", State: StatePending})
	s.Add(&Request{ID: "r3", SprintName: "S2", State: StateMerged})
	s.Add(&Request{ID: "r4", SprintName: "S3", State: StateHumanReview})

	if req, ok := s.ActiveForSprint("S1"); !ok || req.ID != "r2" {
		t.Errorf("S1 active = %v/%v, want r2", req.ID, ok)
	}
	if _, ok := s.ActiveForSprint("S2"); ok {
		t.Error("merged request reported active")
	}
	// Human review still occupies the sprint.
	if req, ok := s.ActiveForSprint("S3"); !ok || req.ID != "r4" {
		t.Errorf("S3 active = %v/%v, want r4", req.ID, ok)
	}
	if _, ok := s.ActiveForSprint("unknown"); ok {
		t.Error("unknown sprint reported active")
	}
}

func TestStateClassification(t *testing.T) {
	terminal := []State{StateMerged, StateFailed}
	active := []State{StatePending, StateValidating, StateClean, StateConflicted,
		StateRepairing, StateHumanReview, StateMerging}

	for _, s := range terminal {
		if !s.IsTerminal() || s.IsActive() {
			t.Errorf("%q should be terminal and inactive", s)
		}
	}
	for _, s := range active {
		if s.IsTerminal() || !s.IsActive() {
			t.Errorf("%q should be active and non-terminal", s)
		}
	}
}

func TestRequestIDFormat(t *testing.T) {
	got := requestID("A", "Auth_Sprint Long Name", time.Unix(1700000000, 0))
	want := "sprint_merge_1700000000_a_auth-spr"
	if got != want {
		t.Errorf("requestID = %q, want %q", got, want)
	}

	short := requestID("qa1", "Fix", time.Unix(1700000000, 0))
	if short != "sprint_merge_1700000000_qa1_fix" {
		t.Errorf("requestID = %q", short)
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want Action
		ok   bool
	}{
		{"approve", ActionApprove, true},
		{" Reject ", ActionReject, true},
		{"RESET", ActionReset, true},
		{"merge", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseAction(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseAction(%q) = %q/%v, want %q/%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
