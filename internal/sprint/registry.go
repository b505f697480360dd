package sprint

import (
	"sort"
	"sync"
	"time"

	"github.com/forgeops/sprintmux/internal/errors"
)

// Registry holds all sprint and coder state behind a single mutex, along
// with the FIFO queue of sprints awaiting assignment. It is the only owner
// of this state; other components read it through copy-on-return accessors.
type Registry struct {
	mu         sync.Mutex
	sprints    map[string]*Sprint
	coders     map[string]*Coder
	coderOrder []string // Assignment preference order
	queue      []string // Sprint names awaiting a free coder, FIFO
}

// NewRegistry creates a Registry with the given coder IDs, all free.
// Assignment prefers coders earlier in the list.
func NewRegistry(coderIDs []string) *Registry {
	r := &Registry{
		sprints:    make(map[string]*Sprint),
		coders:     make(map[string]*Coder),
		coderOrder: append([]string(nil), coderIDs...),
	}
	for _, id := range coderIDs {
		r.coders[id] = &Coder{ID: id, State: CoderFree}
	}
	return r
}

// Sprint returns a copy of the named sprint.
func (r *Registry) Sprint(name string) (Sprint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sprints[name]
	if !ok {
		return Sprint{}, false
	}
	return copySprint(s), true
}

// Sprints returns copies of all known sprints, sorted by name.
func (r *Registry) Sprints() []Sprint {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Sprint, 0, len(r.sprints))
	for _, s := range r.sprints {
		out = append(out, copySprint(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SprintsByStatus returns copies of all sprints in the given status,
// sorted by name.
func (r *Registry) SprintsByStatus(status Status) []Sprint {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Sprint
	for _, s := range r.sprints {
		if s.Status == status {
			out = append(out, copySprint(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Coder returns a copy of the coder with the given ID.
func (r *Registry) Coder(id string) (Coder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.coders[id]
	if !ok {
		return Coder{}, false
	}
	return *c, true
}

// Coders returns copies of all coders in assignment preference order.
func (r *Registry) Coders() []Coder {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Coder, 0, len(r.coderOrder))
	for _, id := range r.coderOrder {
		out = append(out, *r.coders[id])
	}
	return out
}

// Queue returns a copy of the assignment queue, front first.
func (r *Registry) Queue() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queue...)
}

// upsert records a sprint's parsed state, preserving assignment fields the
// document does not carry. Returns the previous status ("" for new sprints).
func (r *Registry) upsert(name, path string, status Status, coder, branch string, tasks []Task) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sprints[name]
	if !ok {
		s = &Sprint{Name: name, Path: path}
		r.sprints[name] = s
	}
	prev := s.Status
	if !ok {
		prev = ""
	}

	s.Path = path
	s.Status = status
	s.Tasks = tasks
	s.LastUpdated = time.Now()
	if coder != "" {
		s.AssignedCoder = coder
	}
	if branch != "" {
		s.BranchName = branch
	}
	return prev
}

// enqueue appends a sprint to the assignment queue unless it is already
// queued. Returns true if the sprint was added.
func (r *Registry) enqueue(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, queued := range r.queue {
		if queued == name {
			return false
		}
	}
	r.queue = append(r.queue, name)
	return true
}

// dequeue removes a sprint from the queue wherever it sits.
func (r *Registry) dequeue(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeQueuedLocked(name)
}

func (r *Registry) removeQueuedLocked(name string) {
	for i, queued := range r.queue {
		if queued == name {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}

// reserveNext pops the front queued sprint and assigns it to the first free
// coder, recording the branch name produced by namer. Both the pop and the
// coder reservation happen under one lock so two sprints can never claim
// the same coder.
func (r *Registry) reserveNext(namer func(coderID, sprintName string) string) (sprintName, coderID, branch string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) == 0 {
		return "", "", "", false
	}

	var coder *Coder
	for _, id := range r.coderOrder {
		if r.coders[id].State == CoderFree {
			coder = r.coders[id]
			break
		}
	}
	if coder == nil {
		return "", "", "", false
	}

	sprintName = r.queue[0]
	r.queue = r.queue[1:]

	s, found := r.sprints[sprintName]
	if !found {
		// Sprint folder vanished since it was queued; drop it.
		return "", "", "", false
	}

	branch = namer(coder.ID, sprintName)
	r.assignLocked(s, coder, branch)
	return sprintName, coder.ID, branch, true
}

// reserve assigns a specific sprint to a specific coder. The coder must be
// free and the sprint known.
func (r *Registry) reserve(sprintName, coderID string, namer func(coderID, sprintName string) string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sprints[sprintName]
	if !ok {
		return "", errors.NewNotFoundError("sprint", sprintName)
	}
	coder, ok := r.coders[coderID]
	if !ok {
		return "", errors.NewNotFoundError("coder", coderID)
	}
	if coder.State != CoderFree {
		return "", errors.NewSprintError("cannot assign sprint", errors.ErrCoderBusy).
			WithSprint(sprintName).WithCoder(coderID)
	}

	r.removeQueuedLocked(sprintName)
	branch := namer(coderID, sprintName)
	r.assignLocked(s, coder, branch)
	return branch, nil
}

func (r *Registry) assignLocked(s *Sprint, coder *Coder, branch string) {
	now := time.Now()
	s.Status = StatusAssigned
	s.AssignedCoder = coder.ID
	s.BranchName = branch
	s.LastUpdated = now

	coder.State = CoderWorking
	coder.AssignedSprint = s.Name
	coder.BranchName = branch
	coder.LastActivity = now
}

// free releases a coder, but only while it still holds the given sprint.
// A stale release (the sprint's recorded coder has since moved on to
// another sprint) is a no-op, so a late Merged rewrite of an old document
// can never free a coder mid-work.
func (r *Registry) free(coderID, sprintName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	coder, found := r.coders[coderID]
	if !found || coder.State == CoderFree || coder.AssignedSprint != sprintName {
		return false
	}

	coder.State = CoderFree
	coder.AssignedSprint = ""
	coder.BranchName = ""
	coder.LastActivity = time.Now()
	return true
}

// setStatus updates a sprint's status directly (used for engine-driven
// transitions like Merged).
func (r *Registry) setStatus(name string, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sprints[name]
	if !ok {
		return false
	}
	s.Status = status
	s.LastUpdated = time.Now()
	return true
}

// markRepairing flags the sprint's coder as repairing and prepends the
// repair task to the sprint's task list.
func (r *Registry) markRepairing(name, details string) (coderID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sprints[name]
	if !ok {
		return "", errors.NewNotFoundError("sprint", name)
	}
	if s.AssignedCoder == "" {
		return "", errors.NewSprintError("cannot create repair task", errors.ErrSprintNotAssigned).
			WithSprint(name)
	}

	now := time.Now()
	s.Status = StatusAssigned
	s.Tasks = append([]Task{{
		Name:    RepairTaskName,
		Status:  TaskRepairConflict,
		Details: details,
	}}, s.Tasks...)
	s.LastUpdated = now

	// Flag the coder only while it still holds this sprint; after a
	// release it may already be working something else.
	if coder, found := r.coders[s.AssignedCoder]; found && coder.AssignedSprint == name {
		coder.State = CoderRepairing
		coder.LastActivity = now
	}
	return s.AssignedCoder, nil
}

func copySprint(s *Sprint) Sprint {
	out := *s
	out.Tasks = append([]Task(nil), s.Tasks...)
	return out
}
