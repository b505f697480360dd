package merge

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/forgeops/sprintmux/internal/branch"
	"github.com/forgeops/sprintmux/internal/errors"
	"github.com/forgeops/sprintmux/internal/event"
	"github.com/forgeops/sprintmux/internal/logging"
)

// fakeBranches scripts the branch layer for lifecycle tests.
type fakeBranches struct {
	testResult branch.TestResult
	testErr    error

	mergeResult branch.MergeResult
	mergeErr    error
	mergeCalls  int

	stats      branch.ChangeStats
	resetCalls []string
}

func (f *fakeBranches) ValidateTests(context.Context, string) (branch.TestResult, error) {
	return f.testResult, f.testErr
}

func (f *fakeBranches) MergeBranch(context.Context, string) (branch.MergeResult, error) {
	f.mergeCalls++
	return f.mergeResult, f.mergeErr
}

func (f *fakeBranches) ResetToTrunk(_ context.Context, branchName string) error {
	f.resetCalls = append(f.resetCalls, branchName)
	return nil
}

func (f *fakeBranches) ChangeStats(context.Context, string) (branch.ChangeStats, error) {
	return f.stats, nil
}

// fakeSprints records repair tasks and merged sprints.
type fakeSprints struct {
	repairSprints []string
	repairDetails []string
	merged        []string
}

func (f *fakeSprints) CreateRepairTask(sprintName, details string) error {
	f.repairSprints = append(f.repairSprints, sprintName)
	f.repairDetails = append(f.repairDetails, details)
	return nil
}

func (f *fakeSprints) MarkMerged(sprintName string) error {
	f.merged = append(f.merged, sprintName)
	return nil
}

func passingTests() branch.TestResult {
	return branch.TestResult{Passed: true, Command: "npm test", Output: "ok"}
}

func newTestCoordinator(t *testing.T, fb *fakeBranches, fs *fakeSprints, maxRepair int) (*Coordinator, *event.Bus) {
	t.Helper()

	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	bus := event.NewBus()
	return NewCoordinator(store, fb, fs, bus, logging.NopLogger(), maxRepair), bus
}

// submit enqueues and processes a request synchronously.
func submit(t *testing.T, c *Coordinator) Request {
	t.Helper()

	req, err := c.enqueue("Auth_Sprint", "A", "sprint/a/auth-sprint", "/repos/Coder-A")
	if err != nil {
		t.Fatalf("enqueue() error = %v", err)
	}
	c.process(context.Background(), req.ID)
	return mustGet(t, c, req.ID)
}

func mustGet(t *testing.T, c *Coordinator, id string) Request {
	t.Helper()

	req, ok := c.Request(id)
	if !ok {
		t.Fatalf("request %s vanished", id)
	}
	return req
}

func TestCleanMerge(t *testing.T) {
	fb := &fakeBranches{
		testResult:  passingTests(),
		mergeResult: branch.MergeResult{Merged: true},
		stats:       branch.ChangeStats{CommitCount: 2, FilesChanged: 3, LinesAdded: 10, LinesRemoved: 1},
	}
	fs := &fakeSprints{}
	c, _ := newTestCoordinator(t, fb, fs, 3)

	req := submit(t, c)

	if req.State != StateMerged {
		t.Errorf("state = %q, want merged", req.State)
	}
	if req.MergedAt == nil {
		t.Error("MergedAt not set")
	}
	if req.TestsPassing == nil || !*req.TestsPassing {
		t.Errorf("TestsPassing = %v, want true", req.TestsPassing)
	}
	if req.CommitCount != 2 || req.FilesChanged != 3 {
		t.Errorf("change stats = %d/%d, want 2/3", req.CommitCount, req.FilesChanged)
	}

	stats := c.Stats()
	if stats.TotalSprints != 1 || stats.SuccessfulMerges != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ConflictsResolved != 0 {
		t.Errorf("ConflictsResolved = %d, want 0 for a first-try merge", stats.ConflictsResolved)
	}
	if len(fs.merged) != 1 || fs.merged[0] != "Auth_Sprint" {
		t.Errorf("merged sprints = %v", fs.merged)
	}
	if len(fs.repairSprints) != 0 {
		t.Errorf("unexpected repair tasks: %v", fs.repairDetails)
	}
}

func TestTestFailureCreatesRepairTask(t *testing.T) {
	fb := &fakeBranches{
		testResult: branch.TestResult{Passed: false, Command: "npm test", Output: "2 tests failed"},
	}
	fs := &fakeSprints{}
	c, _ := newTestCoordinator(t, fb, fs, 3)

	req := submit(t, c)

	if req.State != StateFailed {
		t.Errorf("state = %q, want failed", req.State)
	}
	if fb.mergeCalls != 0 {
		t.Errorf("merge attempted %d times on failing tests", fb.mergeCalls)
	}
	if len(fs.repairSprints) != 1 {
		t.Fatalf("repair tasks = %d, want 1", len(fs.repairSprints))
	}
	if !strings.Contains(fs.repairDetails[0], "Tests failed (npm test):") ||
		!strings.Contains(fs.repairDetails[0], "2 tests failed") {
		t.Errorf("repair details = %q", fs.repairDetails[0])
	}
	if c.Stats().FailedMerges != 1 {
		t.Errorf("FailedMerges = %d, want 1", c.Stats().FailedMerges)
	}
	if len(fs.merged) != 0 {
		t.Errorf("sprint marked merged: %v", fs.merged)
	}
}

func TestValidationErrorFailsRequest(t *testing.T) {
	fb := &fakeBranches{testErr: errors.New("clone unreachable")}
	fs := &fakeSprints{}
	c, _ := newTestCoordinator(t, fb, fs, 3)

	req := submit(t, c)

	if req.State != StateFailed {
		t.Errorf("state = %q, want failed", req.State)
	}
	if !strings.Contains(req.ConflictDetails, "validation error: ") {
		t.Errorf("ConflictDetails = %q", req.ConflictDetails)
	}
}

func TestBoundedRepairEscalatesToHumanReview(t *testing.T) {
	fb := &fakeBranches{
		testResult:  passingTests(),
		mergeResult: branch.MergeResult{Merged: false, Conflicts: []string{"app.txt"}, Output: "CONFLICT"},
	}
	fs := &fakeSprints{}
	c, bus := newTestCoordinator(t, fb, fs, 3)

	var reviewEvents []event.HumanReviewRequestedEvent
	bus.Subscribe("merge.human_review_requested", func(e event.Event) {
		if ev, ok := e.(event.HumanReviewRequestedEvent); ok {
			reviewEvents = append(reviewEvents, ev)
		}
	})

	req := submit(t, c)

	// First three conflicts each produce a repair cycle.
	for attempt := 1; attempt <= 3; attempt++ {
		if req.State != StateRepairing {
			t.Fatalf("attempt %d: state = %q, want repairing", attempt, req.State)
		}
		if req.RepairAttempts != attempt {
			t.Fatalf("attempt %d: RepairAttempts = %d", attempt, req.RepairAttempts)
		}
		if len(fs.repairSprints) != attempt {
			t.Fatalf("attempt %d: repair tasks = %d", attempt, len(fs.repairSprints))
		}
		wantDetail := fmt.Sprintf("attempt %d of 3", attempt)
		if !strings.Contains(fs.repairDetails[attempt-1], wantDetail) {
			t.Errorf("repair details = %q, want %q mentioned", fs.repairDetails[attempt-1], wantDetail)
		}

		// The coder repairs and the request resumes its lifecycle.
		c.process(context.Background(), req.ID)
		req = mustGet(t, c, req.ID)
	}

	// The fourth conflict exhausts the budget.
	if req.State != StateHumanReview {
		t.Errorf("state = %q, want human_review", req.State)
	}
	if req.RepairAttempts != 4 {
		t.Errorf("RepairAttempts = %d, want 4", req.RepairAttempts)
	}
	if len(fs.repairSprints) != 3 {
		t.Errorf("repair tasks = %d, want exactly 3", len(fs.repairSprints))
	}
	if len(reviewEvents) != 1 || reviewEvents[0].RequestID != req.ID {
		t.Errorf("review events = %+v", reviewEvents)
	}
	if got := len(reviewEvents[0].ConflictFiles); got != 1 {
		t.Errorf("event conflict files = %d, want 1", got)
	}
}

func driveToHumanReview(t *testing.T, c *Coordinator) Request {
	t.Helper()

	req := submit(t, c)
	for req.State == StateRepairing {
		c.process(context.Background(), req.ID)
		req = mustGet(t, c, req.ID)
	}
	if req.State != StateHumanReview {
		t.Fatalf("state = %q, want human_review", req.State)
	}
	return req
}

func TestResolveApprove(t *testing.T) {
	fb := &fakeBranches{
		testResult:  passingTests(),
		mergeResult: branch.MergeResult{Merged: false, Conflicts: []string{"app.txt"}},
	}
	fs := &fakeSprints{}
	c, _ := newTestCoordinator(t, fb, fs, 3)

	req := driveToHumanReview(t, c)

	// A human fixed the branch by hand; the retry merges cleanly.
	fb.mergeResult = branch.MergeResult{Merged: true}
	if err := c.Resolve(context.Background(), req.ID, ActionApprove, "fixed manually"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	req = mustGet(t, c, req.ID)
	if req.State != StateMerged {
		t.Errorf("state = %q, want merged", req.State)
	}

	stats := c.Stats()
	if stats.HumanInterventions != 1 {
		t.Errorf("HumanInterventions = %d, want 1", stats.HumanInterventions)
	}
	if stats.SuccessfulMerges != 1 || stats.ConflictsResolved != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(fs.merged) != 1 {
		t.Errorf("merged sprints = %v", fs.merged)
	}
}

func TestResolveReject(t *testing.T) {
	fb := &fakeBranches{
		testResult:  passingTests(),
		mergeResult: branch.MergeResult{Merged: false, Conflicts: []string{"app.txt"}},
	}
	fs := &fakeSprints{}
	c, _ := newTestCoordinator(t, fb, fs, 3)

	req := driveToHumanReview(t, c)
	repairsBefore := len(fs.repairSprints)

	if err := c.Resolve(context.Background(), req.ID, ActionReject, "wrong approach"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	req = mustGet(t, c, req.ID)
	if req.State != StateFailed {
		t.Errorf("state = %q, want failed", req.State)
	}
	if len(fs.repairSprints) != repairsBefore+1 {
		t.Fatalf("no repair task created for rejection")
	}
	last := fs.repairDetails[len(fs.repairDetails)-1]
	if !strings.Contains(last, "Merge rejected by human review: wrong approach") {
		t.Errorf("repair details = %q", last)
	}
	if c.Stats().HumanInterventions != 1 {
		t.Errorf("HumanInterventions = %d, want 1", c.Stats().HumanInterventions)
	}
}

func TestResolveReset(t *testing.T) {
	fb := &fakeBranches{
		testResult:  passingTests(),
		mergeResult: branch.MergeResult{Merged: false, Conflicts: []string{"app.txt"}},
	}
	fs := &fakeSprints{}
	c, _ := newTestCoordinator(t, fb, fs, 3)

	req := driveToHumanReview(t, c)

	if err := c.Resolve(context.Background(), req.ID, ActionReset, "start over"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(fb.resetCalls) != 1 || fb.resetCalls[0] != "sprint/a/auth-sprint" {
		t.Errorf("reset calls = %v", fb.resetCalls)
	}
	req = mustGet(t, c, req.ID)
	if req.State != StateFailed {
		t.Errorf("state = %q, want failed", req.State)
	}
	last := fs.repairDetails[len(fs.repairDetails)-1]
	if !strings.Contains(last, "Branch reset to trunk: start over") {
		t.Errorf("repair details = %q", last)
	}
}

func TestResolveRequiresHumanReview(t *testing.T) {
	fb := &fakeBranches{testResult: passingTests(), mergeResult: branch.MergeResult{Merged: true}}
	c, _ := newTestCoordinator(t, fb, &fakeSprints{}, 3)

	req := submit(t, c) // lands in merged

	err := c.Resolve(context.Background(), req.ID, ActionApprove, "")
	if !errors.Is(err, errors.ErrRequestTerminal) {
		t.Errorf("Resolve() error = %v, want ErrRequestTerminal", err)
	}
}

func TestResolveUnknownRequest(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeBranches{}, &fakeSprints{}, 3)

	err := c.Resolve(context.Background(), "ghost", ActionApprove, "")
	if !errors.IsNotFound(err) {
		t.Errorf("Resolve() error = %v, want not-found", err)
	}
}

func TestRetryClearsRepairState(t *testing.T) {
	fb := &fakeBranches{
		testResult:  passingTests(),
		mergeResult: branch.MergeResult{Merged: false, Conflicts: []string{"app.txt"}},
	}
	fs := &fakeSprints{}
	c, _ := newTestCoordinator(t, fb, fs, 3)

	req := driveToHumanReview(t, c)

	fb.mergeResult = branch.MergeResult{Merged: true}
	if err := c.Retry(context.Background(), req.ID); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}

	req = mustGet(t, c, req.ID)
	if req.State != StateMerged {
		t.Errorf("state = %q, want merged", req.State)
	}
	if req.RepairAttempts != 0 {
		t.Errorf("RepairAttempts = %d, want 0 after retry", req.RepairAttempts)
	}

	// A merged request cannot be retried again.
	err := c.Retry(context.Background(), req.ID)
	if !errors.Is(err, errors.ErrRequestTerminal) {
		t.Errorf("Retry() on merged request error = %v, want ErrRequestTerminal", err)
	}
}

func TestReprocessOnlyResumesRepairing(t *testing.T) {
	fb := &fakeBranches{testResult: passingTests(), mergeResult: branch.MergeResult{Merged: true}}
	c, _ := newTestCoordinator(t, fb, &fakeSprints{}, 3)

	req := submit(t, c) // merged

	if err := c.Reprocess(context.Background(), req.ID); err != nil {
		t.Errorf("Reprocess() error = %v, want nil no-op", err)
	}
	if got := mustGet(t, c, req.ID); got.State != StateMerged {
		t.Errorf("state = %q, want merged (untouched)", got.State)
	}

	err := c.Reprocess(context.Background(), "ghost")
	if !errors.IsNotFound(err) {
		t.Errorf("Reprocess() error = %v, want not-found", err)
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeBranches{}, &fakeSprints{}, 3)

	first, err := c.enqueue("Auth_Sprint", "A", "sprint/a/auth-sprint", "/repo")
	if err != nil {
		t.Fatalf("enqueue() error = %v", err)
	}
	second, err := c.enqueue("Auth_Sprint", "A", "sprint/a/auth-sprint", "/repo")
	if err != nil {
		t.Fatalf("enqueue() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("duplicate submission created a second request: %q vs %q", first.ID, second.ID)
	}
	if got := c.Stats().TotalSprints; got != 1 {
		t.Errorf("TotalSprints = %d, want 1", got)
	}
	if got := len(c.Requests()); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}
