// Package sprint tracks development sprints and the coders working on them.
// It watches status documents on disk, keeps an in-memory registry of sprint
// and coder state, and hands queued sprints to free coders.
package sprint

import "time"

// Status represents the lifecycle state of a sprint, as recorded in its
// status document. The vocabulary is closed; anything else parses as
// StatusBuilding.
type Status string

const (
	// StatusReview means the sprint is awaiting human review before work starts.
	StatusReview Status = "Review"
	// StatusBuilding means the sprint is approved and eligible for assignment.
	StatusBuilding Status = "Building"
	// StatusAssigned means a coder is actively working the sprint.
	StatusAssigned Status = "Assigned"
	// StatusReadyForMerge means the coder finished and the branch awaits merging.
	StatusReadyForMerge Status = "Ready for Merge"
	// StatusMerged means the sprint's branch has been merged to trunk.
	StatusMerged Status = "Merged"
)

// DocText returns the status text written to a status document.
// Assigned statuses include the coder, e.g. "Assigned to Coder-A".
func (s Status) DocText(coderID string) string {
	if s == StatusAssigned && coderID != "" {
		return "Assigned to " + coderName(coderID)
	}
	return string(s)
}

// TaskStatus represents the state of an individual sprint task.
type TaskStatus string

const (
	TaskPending       TaskStatus = "pending"
	TaskInProgress    TaskStatus = "in_progress"
	TaskReadyForMerge TaskStatus = "ready_for_merge"
	TaskCommitted     TaskStatus = "committed"
	// TaskRepairConflict marks a repair task injected by the engine after a
	// failed validation or merge conflict.
	TaskRepairConflict TaskStatus = "repair-merge-conflict"
)

// Task is a single work item inside a sprint.
type Task struct {
	Name    string
	Status  TaskStatus
	Details string // Extra context, set for repair tasks
}

// RepairTaskName is the fixed name of engine-injected repair tasks.
const RepairTaskName = "Repair Merge Conflict"

// Sprint is the engine's view of one sprint folder.
type Sprint struct {
	Name          string // Folder name, the sprint's identity
	Path          string // Absolute path to the sprint folder
	Status        Status
	AssignedCoder string // Coder ID, empty when unassigned
	BranchName    string
	Tasks         []Task
	LastUpdated   time.Time
}

// CoderState represents a coder's availability.
type CoderState string

const (
	CoderFree      CoderState = "free"
	CoderWorking   CoderState = "working"
	CoderRepairing CoderState = "repairing"
)

// Coder is one member of the fixed worker pool.
type Coder struct {
	ID             string // Short identifier, e.g. "A"
	State          CoderState
	AssignedSprint string // Sprint name, empty when free
	BranchName     string
	LastActivity   time.Time
}

// coderName returns the conventional display name for a coder ID.
func coderName(id string) string {
	return "Coder-" + id
}
