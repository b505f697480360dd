package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forgeops/sprintmux/internal/branch"
	"github.com/forgeops/sprintmux/internal/errors"
	"github.com/forgeops/sprintmux/internal/event"
	"github.com/forgeops/sprintmux/internal/logging"
)

// BranchService is the slice of the branch manager the coordinator needs.
type BranchService interface {
	ValidateTests(ctx context.Context, branchName string) (branch.TestResult, error)
	MergeBranch(ctx context.Context, branchName string) (branch.MergeResult, error)
	ResetToTrunk(ctx context.Context, branchName string) error
	ChangeStats(ctx context.Context, branchName string) (branch.ChangeStats, error)
}

// SprintService is the slice of the sprint monitor the coordinator needs.
type SprintService interface {
	CreateRepairTask(sprintName, details string) error
	MarkMerged(sprintName string) error
}

// Coordinator drives merge requests through their lifecycle: validate,
// merge, bounded conflict repair, and human escalation. Each request is
// processed on its own goroutine; requests touch the branch and sprint
// layers only through their public APIs.
type Coordinator struct {
	store             *Store
	branches          BranchService
	sprints           SprintService
	bus               *event.Bus
	log               *logging.Logger
	maxRepairAttempts int
}

// NewCoordinator creates a merge Coordinator.
func NewCoordinator(store *Store, branches BranchService, sprints SprintService, bus *event.Bus, log *logging.Logger, maxRepairAttempts int) *Coordinator {
	return &Coordinator{
		store:             store,
		branches:          branches,
		sprints:           sprints,
		bus:               bus,
		log:               log.WithComponent("merge"),
		maxRepairAttempts: maxRepairAttempts,
	}
}

// Submit enqueues a merge request for a finished sprint branch and starts
// processing it in the background. Submitting a sprint that already has an
// active request returns the existing request unchanged.
func (c *Coordinator) Submit(ctx context.Context, sprintName, coderID, branchName, repoPath string) (Request, error) {
	req, err := c.enqueue(sprintName, coderID, branchName, repoPath)
	if err != nil {
		return Request{}, err
	}
	if req.State == StatePending {
		go c.process(ctx, req.ID)
	}
	return req, nil
}

// enqueue records the request without processing it.
func (c *Coordinator) enqueue(sprintName, coderID, branchName, repoPath string) (Request, error) {
	if existing, ok := c.store.ActiveForSprint(sprintName); ok {
		c.log.Debug("sprint already has an active merge request",
			"sprint", sprintName, "request", existing.ID, "state", string(existing.State))
		return existing, nil
	}

	now := time.Now()
	req := &Request{
		ID:         requestID(coderID, sprintName, now),
		SprintName: sprintName,
		CoderID:    coderID,
		BranchName: branchName,
		RepoPath:   repoPath,
		State:      StatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	c.store.Add(req)
	c.persist()

	c.log.Info("merge request queued",
		"request", req.ID, "sprint", sprintName, "coder", coderID, "branch", branchName)
	return copyRequest(req), nil
}

// process drives one request from Pending to a settled state.
func (c *Coordinator) process(ctx context.Context, id string) {
	req, ok := c.store.Get(id)
	if !ok {
		return
	}
	log := c.log.With("request", id).WithSprint(req.SprintName)

	c.transition(id, StateValidating)

	result, err := c.branches.ValidateTests(ctx, req.BranchName)
	if err != nil {
		log.Error("validation errored", "error", err)
		c.fail(id, "validation error: "+err.Error())
		return
	}

	now := time.Now()
	c.store.Update(id, func(r *Request) {
		passed := result.Passed
		r.TestsPassing = &passed
		r.ValidationOutput = result.Output
		r.ValidatedAt = &now
	})

	if !result.Passed {
		log.Warn("tests failed, returning sprint for repair")
		c.fail(id, "")
		details := "Tests failed"
		if result.Command != "" {
			details += " (" + result.Command + ")"
		}
		details += ":\n" + result.Output
		if err := c.sprints.CreateRepairTask(req.SprintName, details); err != nil {
			log.Error("failed to create repair task", "error", err)
		}
		return
	}

	if stats, err := c.branches.ChangeStats(ctx, req.BranchName); err == nil {
		c.store.Update(id, func(r *Request) {
			r.CommitCount = stats.CommitCount
			r.FilesChanged = stats.FilesChanged
			r.LinesAdded = stats.LinesAdded
			r.LinesRemoved = stats.LinesRemoved
		})
	} else {
		log.Warn("failed to gather change stats", "error", err)
	}

	c.transition(id, StateClean)
	c.attemptMerge(ctx, id)
}

// attemptMerge performs the real merge for a validated request.
func (c *Coordinator) attemptMerge(ctx context.Context, id string) {
	req, ok := c.store.Get(id)
	if !ok {
		return
	}
	log := c.log.With("request", id).WithSprint(req.SprintName)

	c.transition(id, StateMerging)

	result, err := c.branches.MergeBranch(ctx, req.BranchName)
	if err != nil {
		log.Error("merge errored", "error", err)
		c.fail(id, "merge error: "+err.Error())
		return
	}

	if result.Merged {
		now := time.Now()
		hadConflicts := req.RepairAttempts > 0
		c.store.Update(id, func(r *Request) {
			r.State = StateMerged
			r.MergedAt = &now
			r.ConflictFiles = nil
			r.ConflictDetails = ""
		})
		c.store.BumpStats(func(s *Stats) {
			s.SuccessfulMerges++
			if hadConflicts {
				s.ConflictsResolved++
			}
		})
		c.persist()

		c.bus.Publish(event.NewMergeStateChangedEvent(id, req.SprintName, string(StateMerging), string(StateMerged)))
		c.bus.Publish(event.NewMergeCompletedEvent(id, req.SprintName, true, ""))
		log.Info("merge request completed", "branch", req.BranchName)

		if err := c.sprints.MarkMerged(req.SprintName); err != nil {
			log.Error("failed to mark sprint merged", "error", err)
		}
		return
	}

	c.handleConflict(id, result.Conflicts, result.Output)
}

// handleConflict advances the bounded repair cycle. The attempt counter
// only ever increases; exhausting it is the one path to human review.
func (c *Coordinator) handleConflict(id string, conflicts []string, details string) {
	req, ok := c.store.Get(id)
	if !ok {
		return
	}
	log := c.log.With("request", id).WithSprint(req.SprintName)

	var attempts int
	c.store.Update(id, func(r *Request) {
		r.State = StateConflicted
		r.ConflictFiles = conflicts
		r.ConflictDetails = details
		r.RepairAttempts++
		attempts = r.RepairAttempts
	})
	c.bus.Publish(event.NewMergeStateChangedEvent(id, req.SprintName, string(req.State), string(StateConflicted)))

	if attempts > c.maxRepairAttempts {
		c.transition(id, StateHumanReview)
		c.persist()
		c.bus.Publish(event.NewHumanReviewRequestedEvent(id, req.SprintName, conflicts, attempts))
		log.Warn("repair attempts exhausted, awaiting human review",
			"attempts", attempts, "conflicts", len(conflicts))
		return
	}

	c.transition(id, StateRepairing)
	c.persist()

	log.Info("merge conflict, creating repair task",
		"attempt", attempts, "conflicts", len(conflicts))

	taskDetails := fmt.Sprintf("Merge conflict with trunk (attempt %d of %d)\nConflicting files:\n  %s",
		attempts, c.maxRepairAttempts, strings.Join(conflicts, "\n  "))
	if err := c.sprints.CreateRepairTask(req.SprintName, taskDetails); err != nil {
		log.Error("failed to create repair task", "error", err)
	}
}

// Resolve applies a human action to a request awaiting review. Every call
// counts as a human intervention.
func (c *Coordinator) Resolve(ctx context.Context, id string, action Action, reason string) error {
	req, ok := c.store.Get(id)
	if !ok {
		return errors.NewNotFoundError("merge request", id)
	}
	if req.State != StateHumanReview {
		return errors.NewMergeError("request is not awaiting human review", errors.ErrRequestTerminal).
			WithRequestID(id)
	}

	c.store.BumpStats(func(s *Stats) { s.HumanInterventions++ })
	log := c.log.With("request", id).WithSprint(req.SprintName)

	switch action {
	case ActionApprove:
		log.Info("human approved merge retry", "reason", reason)
		c.attemptMerge(ctx, id)
		return nil

	case ActionReject:
		log.Info("human rejected merge", "reason", reason)
		c.fail(id, "")
		details := "Merge rejected by human review"
		if reason != "" {
			details += ": " + reason
		}
		if err := c.sprints.CreateRepairTask(req.SprintName, details); err != nil {
			log.Error("failed to create repair task", "error", err)
		}
		return nil

	case ActionReset:
		log.Info("human requested branch reset", "reason", reason)
		if err := c.branches.ResetToTrunk(ctx, req.BranchName); err != nil {
			return err
		}
		c.fail(id, "")
		details := "Branch reset to trunk"
		if reason != "" {
			details += ": " + reason
		}
		if err := c.sprints.CreateRepairTask(req.SprintName, details); err != nil {
			log.Error("failed to create repair task", "error", err)
		}
		return nil

	default:
		return errors.NewMergeError("unrecognized action", errors.ErrUnknownAction).
			WithRequestID(id)
	}
}

// Reprocess resumes a request whose coder finished a repair cycle: the
// request re-enters the lifecycle at Pending with its repair counter
// intact. Requests in any other state are left alone.
func (c *Coordinator) Reprocess(ctx context.Context, id string) error {
	req, ok := c.store.Get(id)
	if !ok {
		return errors.NewNotFoundError("merge request", id)
	}
	if req.State != StateRepairing {
		return nil
	}

	c.store.Update(id, func(r *Request) { r.State = StatePending })
	c.persist()

	c.log.Info("repaired request resuming", "request", id, "sprint", req.SprintName)
	go c.process(ctx, id)
	return nil
}

// Retry reprocesses a settled or stuck request from scratch: the repair
// counter and conflict records are cleared and the request re-enters the
// lifecycle at Pending.
func (c *Coordinator) Retry(ctx context.Context, id string) error {
	req, ok := c.store.Get(id)
	if !ok {
		return errors.NewNotFoundError("merge request", id)
	}
	if req.State == StateMerged {
		return errors.NewMergeError("request already merged", errors.ErrRequestTerminal).
			WithRequestID(id)
	}

	c.store.Update(id, func(r *Request) {
		r.State = StatePending
		r.RepairAttempts = 0
		r.ConflictFiles = nil
		r.ConflictDetails = ""
		r.TestsPassing = nil
		r.ValidationOutput = ""
	})
	c.persist()

	c.log.Info("merge request retrying", "request", id, "sprint", req.SprintName)
	c.process(ctx, id)
	return nil
}

// fail moves a request to Failed. failReason, when set, is recorded in the
// conflict details for diagnostics.
func (c *Coordinator) fail(id, failReason string) {
	req, ok := c.store.Get(id)
	if !ok {
		return
	}
	c.store.Update(id, func(r *Request) {
		r.State = StateFailed
		if failReason != "" {
			r.ConflictDetails = failReason
		}
	})
	c.store.BumpStats(func(s *Stats) { s.FailedMerges++ })
	c.persist()

	c.bus.Publish(event.NewMergeStateChangedEvent(id, req.SprintName, string(req.State), string(StateFailed)))
	c.bus.Publish(event.NewMergeCompletedEvent(id, req.SprintName, false, failReason))
}

// transition moves a request to a new state, persists, and announces it.
func (c *Coordinator) transition(id string, to State) {
	req, ok := c.store.Get(id)
	if !ok {
		return
	}
	c.store.Update(id, func(r *Request) { r.State = to })
	c.persist()
	c.bus.Publish(event.NewMergeStateChangedEvent(id, req.SprintName, string(req.State), string(to)))
}

// persist saves the queue document, logging rather than propagating
// failures: in-memory state is authoritative while the engine runs.
func (c *Coordinator) persist() {
	if err := c.store.Save(); err != nil {
		c.log.Error("failed to persist merge queue", "error", err)
	}
}

// Request returns a copy of the request with the given ID.
func (c *Coordinator) Request(id string) (Request, bool) {
	return c.store.Get(id)
}

// Requests returns copies of all requests in insertion order.
func (c *Coordinator) Requests() []Request {
	return c.store.List()
}

// PendingReview returns requests awaiting human resolution.
func (c *Coordinator) PendingReview() []Request {
	return c.store.ByState(StateHumanReview)
}

// ActiveForSprint returns the non-terminal request for a sprint, if any.
func (c *Coordinator) ActiveForSprint(sprintName string) (Request, bool) {
	return c.store.ActiveForSprint(sprintName)
}

// Stats returns aggregate queue statistics.
func (c *Coordinator) Stats() Stats {
	return c.store.Stats()
}

// StatesSummary returns a count of requests per state.
func (c *Coordinator) StatesSummary() map[State]int {
	return c.store.StatesSummary()
}
