// Package merge coordinates getting finished sprint branches into trunk:
// validation, merging, bounded conflict repair, and human escalation. Queue
// state is durable as a versioned JSON document.
package merge

import (
	"fmt"
	"strings"
	"time"
)

// State is a merge request's position in its lifecycle.
type State string

const (
	// StatePending means the request is queued and untouched.
	StatePending State = "pending"
	// StateValidating means the branch's tests are running.
	StateValidating State = "validating"
	// StateClean means validation passed and no conflicts are known.
	StateClean State = "clean"
	// StateConflicted means a merge attempt hit conflicts.
	StateConflicted State = "conflicted"
	// StateRepairing means a repair task has been pushed back to the coder.
	StateRepairing State = "repairing"
	// StateHumanReview means repair attempts ran out; a human must act.
	StateHumanReview State = "human_review"
	// StateMerging means the merge commit is being created and pushed.
	StateMerging State = "merging"
	// StateMerged means the branch landed on trunk.
	StateMerged State = "merged"
	// StateFailed means validation or merging failed without conflicts
	// to repair, or a human rejected the request.
	StateFailed State = "failed"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	return s == StateMerged || s == StateFailed
}

// IsActive reports whether the request still occupies its sprint: a sprint
// with an active request is not resubmitted by the promotion loop. A
// request awaiting human review is active.
func (s State) IsActive() bool {
	return !s.IsTerminal()
}

// Action is a human resolution action on a request under review.
type Action string

const (
	// ActionApprove retries the merge as-is, trusting a manual fix-up.
	ActionApprove Action = "approve"
	// ActionReject fails the request and sends it back to the coder.
	ActionReject Action = "reject"
	// ActionReset discards the branch's commits, resetting it to trunk.
	ActionReset Action = "reset"
)

// ParseAction validates a user-supplied action string.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionApprove:
		return ActionApprove, true
	case ActionReject:
		return ActionReject, true
	case ActionReset:
		return ActionReset, true
	default:
		return "", false
	}
}

// Request is one sprint branch moving through the merge lifecycle.
type Request struct {
	ID         string `json:"id"`
	SprintName string `json:"sprint_name"`
	CoderID    string `json:"coder_id"`
	BranchName string `json:"branch_name"`
	RepoPath   string `json:"repo_path"`
	State      State  `json:"state"`

	TestsPassing     *bool    `json:"tests_passing,omitempty"`
	ValidationOutput string   `json:"validation_output,omitempty"`
	ConflictFiles    []string `json:"conflict_files,omitempty"`
	ConflictDetails  string   `json:"conflict_details,omitempty"`
	RepairAttempts   int      `json:"repair_attempts"`

	CommitCount  int `json:"commit_count"`
	FilesChanged int `json:"files_changed"`
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	MergedAt    *time.Time `json:"merged_at,omitempty"`
}

// Stats aggregates queue history across restarts.
type Stats struct {
	TotalSprints       int `json:"total_sprints"`
	SuccessfulMerges   int `json:"successful_merges"`
	FailedMerges       int `json:"failed_merges"`
	ConflictsResolved  int `json:"conflicts_resolved"`
	HumanInterventions int `json:"human_interventions"`
}

// requestID builds a stable, readable request identifier:
//
//	sprint_merge_<unix-timestamp>_<coder>_<sprint-fragment>
func requestID(coderID, sprintName string, now time.Time) string {
	frag := strings.ToLower(sprintName)
	frag = strings.ReplaceAll(frag, " ", "-")
	frag = strings.ReplaceAll(frag, "_", "-")
	if len(frag) > 8 {
		frag = frag[:8]
	}
	return fmt.Sprintf("sprint_merge_%d_%s_%s", now.Unix(), strings.ToLower(coderID), frag)
}

func copyRequest(r *Request) Request {
	out := *r
	out.ConflictFiles = append([]string(nil), r.ConflictFiles...)
	if r.TestsPassing != nil {
		v := *r.TestsPassing
		out.TestsPassing = &v
	}
	if r.ValidatedAt != nil {
		t := *r.ValidatedAt
		out.ValidatedAt = &t
	}
	if r.MergedAt != nil {
		t := *r.MergedAt
		out.MergedAt = &t
	}
	return out
}
