// Package coordinator wires the sprint monitor, branch manager, and merge
// coordinator together and runs the background loop that promotes finished
// sprints into the merge queue.
package coordinator

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/forgeops/sprintmux/internal/branch"
	"github.com/forgeops/sprintmux/internal/config"
	"github.com/forgeops/sprintmux/internal/errors"
	"github.com/forgeops/sprintmux/internal/event"
	"github.com/forgeops/sprintmux/internal/logging"
	"github.com/forgeops/sprintmux/internal/merge"
	"github.com/forgeops/sprintmux/internal/sprint"
)

// Coordinator is the engine facade: it owns the component wiring and is
// the only API the CLI talks to.
type Coordinator struct {
	cfg      *config.Config
	reg      *sprint.Registry
	monitor  *sprint.Monitor
	branches *branch.Manager
	merges   *merge.Coordinator
	bus      *event.Bus
	log      *logging.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

// SystemStatus is an aggregate snapshot across all three registries.
type SystemStatus struct {
	Sprints    []sprint.Sprint
	Coders     []sprint.Coder
	Queue      []string
	Requests   []merge.Request
	MergeStats merge.Stats
}

// New builds a Coordinator from configuration. The merge queue document is
// loaded from the state directory so requests survive restarts.
func New(cfg *config.Config, log *logging.Logger) (*Coordinator, error) {
	bus := event.NewBus()
	reg := sprint.NewRegistry(cfg.Coders.IDs)

	repos := make(map[string]string, len(cfg.Coders.IDs))
	for _, id := range cfg.Coders.IDs {
		repos[id] = cfg.RepoPath(id)
	}
	branches := branch.NewManager(repos, cfg.Branch.Trunk, cfg.Branch.Prefix, log)

	monitor, err := sprint.NewMonitor(cfg.Paths.SprintRoot, reg, branches.BranchName, bus, log)
	if err != nil {
		return nil, err
	}

	store, err := merge.OpenStore(cfg.Paths.ResolveStateDir())
	if err != nil {
		return nil, err
	}
	merges := merge.NewCoordinator(store, branches, monitor, bus, log, cfg.Merge.MaxRepairAttempts)

	c := &Coordinator{
		cfg:      cfg,
		reg:      reg,
		monitor:  monitor,
		branches: branches,
		merges:   merges,
		bus:      bus,
		log:      log.WithComponent("coordinator"),
		stopCh:   make(chan struct{}),
	}

	// Every assignment gets its sprint branch created in the coder's clone.
	bus.Subscribe("sprint.assigned", c.onSprintAssigned)

	return c, nil
}

// Bus exposes the event bus for additional subscribers (CLI display).
func (c *Coordinator) Bus() *event.Bus {
	return c.bus
}

// onSprintAssigned creates the deterministic sprint branch for a fresh
// assignment. Failure is logged, not fatal: the coder can create the
// branch by hand and the name is already recorded in the status document.
func (c *Coordinator) onSprintAssigned(e event.Event) {
	assigned, ok := e.(event.SprintAssignedEvent)
	if !ok {
		return
	}
	if _, err := c.branches.CreateBranch(context.Background(), assigned.CoderID, assigned.SprintName); err != nil {
		c.log.Warn("failed to create sprint branch",
			"sprint", assigned.SprintName, "coder", assigned.CoderID, "error", err)
	}
}

// Start scans the sprint root, begins watching status documents, and
// launches the promotion loop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	if err := c.monitor.Scan(); err != nil {
		return err
	}
	c.monitor.TryAssignQueued()
	if err := c.monitor.Start(); err != nil {
		return err
	}

	go c.promoteLoop(ctx)
	c.log.Info("coordinator started",
		"sprint_root", c.cfg.Paths.SprintRoot,
		"coders", len(c.cfg.Coders.IDs),
		"promote_interval", c.cfg.Coordinator.PromoteInterval().String())
	return nil
}

// Stop shuts down the watcher and the promotion loop.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	close(c.stopCh)
	c.monitor.Stop()
	c.log.Info("coordinator stopped")
}

// promoteLoop periodically sweeps Ready-for-Merge sprints into the merge
// queue. A failed sweep backs off before the loop resumes.
func (c *Coordinator) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Coordinator.PromoteInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.promoteOnce(ctx); err != nil {
				c.log.Error("promotion sweep failed", "error", err)
				select {
				case <-c.stopCh:
					return
				case <-ctx.Done():
					return
				case <-time.After(c.cfg.Coordinator.ErrorBackoff()):
				}
			}
		}
	}
}

// promoteOnce is a single promotion sweep. A sprint is submitted at most
// once: the existence of an active merge request for its name is the sole
// de-duplication guard.
func (c *Coordinator) promoteOnce(ctx context.Context) error {
	var errs []error

	for _, s := range c.reg.SprintsByStatus(sprint.StatusReadyForMerge) {
		if s.AssignedCoder == "" {
			c.log.Warn("ready sprint has no recorded coder, skipping", "sprint", s.Name)
			continue
		}
		if req, active := c.merges.ActiveForSprint(s.Name); active {
			// A sprint back at Ready for Merge after a repair cycle resumes
			// its existing request rather than opening a second one.
			if req.State == merge.StateRepairing {
				if err := c.merges.Reprocess(ctx, req.ID); err != nil {
					errs = append(errs, err)
				}
			}
			continue
		}

		repoPath := c.cfg.RepoPath(s.AssignedCoder)
		if _, err := os.Stat(repoPath); err != nil {
			c.log.Warn("coder clone missing, skipping promotion",
				"sprint", s.Name, "coder", s.AssignedCoder, "repo", repoPath)
			continue
		}

		branchName := s.BranchName
		if branchName == "" {
			branchName = c.branches.BranchName(s.AssignedCoder, s.Name)
		}

		if _, err := c.merges.Submit(ctx, s.Name, s.AssignedCoder, branchName, repoPath); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Read API
// -----------------------------------------------------------------------------

// Scan synchronously ingests all status documents without starting the
// watcher or assigning. Used by one-shot CLI commands.
func (c *Coordinator) Scan() error {
	return c.monitor.Scan()
}

// SprintStatus returns the tracked state of one sprint.
func (c *Coordinator) SprintStatus(name string) (sprint.Sprint, bool) {
	return c.reg.Sprint(name)
}

// Sprints returns all tracked sprints.
func (c *Coordinator) Sprints() []sprint.Sprint {
	return c.reg.Sprints()
}

// Coders returns the coder pool in assignment preference order.
func (c *Coordinator) Coders() []sprint.Coder {
	return c.reg.Coders()
}

// CoderRepoStatus returns a diagnostic snapshot of a coder's clone.
func (c *Coordinator) CoderRepoStatus(ctx context.Context, coderID string) (branch.RepoStatus, error) {
	return c.branches.CoderRepoStatus(ctx, coderID)
}

// MergeRequests returns all merge requests in insertion order.
func (c *Coordinator) MergeRequests() []merge.Request {
	return c.merges.Requests()
}

// MergeRequest returns one merge request by ID.
func (c *Coordinator) MergeRequest(id string) (merge.Request, bool) {
	return c.merges.Request(id)
}

// PendingReview returns merge requests awaiting human resolution.
func (c *Coordinator) PendingReview() []merge.Request {
	return c.merges.PendingReview()
}

// MergeStats returns aggregate merge queue statistics.
func (c *Coordinator) MergeStats() merge.Stats {
	return c.merges.Stats()
}

// Status returns an aggregate snapshot across all registries.
func (c *Coordinator) Status() SystemStatus {
	return SystemStatus{
		Sprints:    c.reg.Sprints(),
		Coders:     c.reg.Coders(),
		Queue:      c.reg.Queue(),
		Requests:   c.merges.Requests(),
		MergeStats: c.merges.Stats(),
	}
}

// -----------------------------------------------------------------------------
// Write API
// -----------------------------------------------------------------------------

// AssignSprint manually assigns a sprint to a specific free coder,
// bypassing the queue. The sprint branch is created as part of the
// assignment.
func (c *Coordinator) AssignSprint(sprintName, coderID string) error {
	return c.monitor.ForceAssign(sprintName, coderID)
}

// ResolveMerge applies a human action to a merge request under review.
func (c *Coordinator) ResolveMerge(ctx context.Context, id string, action merge.Action, reason string) error {
	return c.merges.Resolve(ctx, id, action, reason)
}

// RetryMerge reprocesses a merge request from scratch.
func (c *Coordinator) RetryMerge(ctx context.Context, id string) error {
	return c.merges.Retry(ctx, id)
}

// DryRunMerge reports whether a sprint's branch would merge cleanly into
// trunk, without mutating the clone.
func (c *Coordinator) DryRunMerge(ctx context.Context, sprintName string) (branch.DryRunResult, error) {
	s, ok := c.reg.Sprint(sprintName)
	if !ok {
		return branch.DryRunResult{}, errors.NewNotFoundError("sprint", sprintName)
	}
	if s.BranchName == "" {
		return branch.DryRunResult{}, errors.NewSprintError("sprint has no branch", errors.ErrSprintNotAssigned).
			WithSprint(sprintName)
	}
	return c.branches.DryRunMerge(ctx, s.BranchName)
}
