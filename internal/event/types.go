// Package event defines event types for decoupling sprintmux components.
// These events let the CLI and coordinator observe the sprint monitor and
// merge coordinator without requiring direct dependencies.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "sprint.assigned", "merge.completed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Sprint Lifecycle Events
// -----------------------------------------------------------------------------

// SprintStatusChangedEvent is emitted when a sprint's status document moves
// the sprint to a different status.
type SprintStatusChangedEvent struct {
	baseEvent
	SprintName string // Sprint folder name
	OldStatus  string // Previous status (empty for newly discovered sprints)
	NewStatus  string // New status
}

// NewSprintStatusChangedEvent creates a SprintStatusChangedEvent.
func NewSprintStatusChangedEvent(sprintName, oldStatus, newStatus string) SprintStatusChangedEvent {
	return SprintStatusChangedEvent{
		baseEvent:  newBaseEvent("sprint.status_changed"),
		SprintName: sprintName,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
	}
}

// SprintAssignedEvent is emitted when a sprint is assigned to a coder.
type SprintAssignedEvent struct {
	baseEvent
	SprintName string // Sprint that was assigned
	CoderID    string // Coder that received the sprint
	Branch     string // Branch name recorded for the assignment
}

// NewSprintAssignedEvent creates a SprintAssignedEvent.
func NewSprintAssignedEvent(sprintName, coderID, branch string) SprintAssignedEvent {
	return SprintAssignedEvent{
		baseEvent:  newBaseEvent("sprint.assigned"),
		SprintName: sprintName,
		CoderID:    coderID,
		Branch:     branch,
	}
}

// CoderFreedEvent is emitted when a coder finishes a sprint and becomes
// available for the next assignment.
type CoderFreedEvent struct {
	baseEvent
	CoderID    string // Coder that became free
	SprintName string // Sprint the coder was working on
}

// NewCoderFreedEvent creates a CoderFreedEvent.
func NewCoderFreedEvent(coderID, sprintName string) CoderFreedEvent {
	return CoderFreedEvent{
		baseEvent:  newBaseEvent("coder.freed"),
		CoderID:    coderID,
		SprintName: sprintName,
	}
}

// RepairTaskCreatedEvent is emitted when a repair task is pushed back to a
// coder, either for failing tests or for merge conflicts.
type RepairTaskCreatedEvent struct {
	baseEvent
	SprintName string // Sprint receiving the repair task
	CoderID    string // Coder responsible for the repair
	Reason     string // Short description of what needs repair
}

// NewRepairTaskCreatedEvent creates a RepairTaskCreatedEvent.
func NewRepairTaskCreatedEvent(sprintName, coderID, reason string) RepairTaskCreatedEvent {
	return RepairTaskCreatedEvent{
		baseEvent:  newBaseEvent("sprint.repair_task_created"),
		SprintName: sprintName,
		CoderID:    coderID,
		Reason:     reason,
	}
}

// -----------------------------------------------------------------------------
// Merge Lifecycle Events
// -----------------------------------------------------------------------------

// MergeStateChangedEvent is emitted when a merge request transitions state.
type MergeStateChangedEvent struct {
	baseEvent
	RequestID  string // Merge request ID
	SprintName string // Sprint the request belongs to
	OldState   string // Previous state
	NewState   string // New state
}

// NewMergeStateChangedEvent creates a MergeStateChangedEvent.
func NewMergeStateChangedEvent(requestID, sprintName, oldState, newState string) MergeStateChangedEvent {
	return MergeStateChangedEvent{
		baseEvent:  newBaseEvent("merge.state_changed"),
		RequestID:  requestID,
		SprintName: sprintName,
		OldState:   oldState,
		NewState:   newState,
	}
}

// MergeCompletedEvent is emitted when a merge request reaches a terminal
// state (merged or failed).
type MergeCompletedEvent struct {
	baseEvent
	RequestID  string // Merge request ID
	SprintName string // Sprint the request belongs to
	Success    bool   // True if the branch was merged to trunk
	Reason     string // Additional context (failure reason if not successful)
}

// NewMergeCompletedEvent creates a MergeCompletedEvent.
func NewMergeCompletedEvent(requestID, sprintName string, success bool, reason string) MergeCompletedEvent {
	return MergeCompletedEvent{
		baseEvent:  newBaseEvent("merge.completed"),
		RequestID:  requestID,
		SprintName: sprintName,
		Success:    success,
		Reason:     reason,
	}
}

// HumanReviewRequestedEvent is emitted when a merge request exhausts its
// repair attempts and is parked for human resolution.
type HumanReviewRequestedEvent struct {
	baseEvent
	RequestID      string   // Merge request ID
	SprintName     string   // Sprint the request belongs to
	ConflictFiles  []string // Files still in conflict
	RepairAttempts int      // How many repair cycles were consumed
}

// NewHumanReviewRequestedEvent creates a HumanReviewRequestedEvent.
func NewHumanReviewRequestedEvent(requestID, sprintName string, conflictFiles []string, repairAttempts int) HumanReviewRequestedEvent {
	return HumanReviewRequestedEvent{
		baseEvent:      newBaseEvent("merge.human_review_requested"),
		RequestID:      requestID,
		SprintName:     sprintName,
		ConflictFiles:  conflictFiles,
		RepairAttempts: repairAttempts,
	}
}
