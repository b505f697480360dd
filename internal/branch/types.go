// Package branch manages the per-coder git clones: sprint branch creation,
// test validation, dry-run and real merges, and cleanup. All git work runs
// through a CommandExecutor so the logic is testable.
package branch

import "time"

// BranchStatus represents the lifecycle state of a sprint branch.
type BranchStatus string

const (
	StatusActive        BranchStatus = "active"
	StatusReadyForMerge BranchStatus = "ready_for_merge"
	StatusMerging       BranchStatus = "merging"
	StatusMerged        BranchStatus = "merged"
	StatusConflict      BranchStatus = "conflict"
	StatusFailed        BranchStatus = "failed"
)

// Info describes a tracked sprint branch.
type Info struct {
	Name         string
	CoderID      string
	SprintName   string
	RepoPath     string
	Status       BranchStatus
	CommitCount  int
	FilesChanged int
	TestsPassing *bool // nil until validation has run
	Conflicts    []string
	Uncommitted  bool
	CreatedAt    time.Time
	LastActivity time.Time
}

// TestResult is the outcome of running a branch's test suite. A failing
// suite is an expected outcome, not an error.
type TestResult struct {
	Passed  bool
	Command string // The command that ran, empty when no suite was detected
	Output  string
}

// DryRunResult reports whether a branch would merge cleanly into trunk.
// Producing it never mutates the repository.
type DryRunResult struct {
	CanMerge  bool
	Conflicts []string // Conflicting file paths when CanMerge is false
}

// MergeResult is the outcome of a real merge attempt. A conflicted merge is
// an expected outcome, not an error; the repository is left clean either way.
type MergeResult struct {
	Merged    bool
	Conflicts []string
	Output    string
}

// ChangeStats summarizes a branch's divergence from trunk.
type ChangeStats struct {
	CommitCount  int
	FilesChanged int
	LinesAdded   int
	LinesRemoved int
}

// RepoStatus is a diagnostic snapshot of one coder's clone.
type RepoStatus struct {
	CoderID        string
	RepoPath       string
	CurrentBranch  string
	Dirty          bool
	RecentCommits  []string
	SprintBranches []string
}
