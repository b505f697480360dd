package sprint

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/forgeops/sprintmux/internal/errors"
	"github.com/forgeops/sprintmux/internal/event"
	"github.com/forgeops/sprintmux/internal/logging"
)

// BranchNamer produces the branch name for an assignment. Injected so the
// monitor does not depend on the branch package.
type BranchNamer func(coderID, sprintName string) string

// Monitor watches sprint status documents and drives assignment. It owns
// the registry transitions: document edits flow in through the fsnotify
// watcher, engine-driven transitions (assignment, repair, merged) flow out
// as document rewrites.
type Monitor struct {
	root    string
	reg     *Registry
	namer   BranchNamer
	bus     *event.Bus
	log     *logging.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

// NewMonitor creates a Monitor over the given sprint root directory.
func NewMonitor(root string, reg *Registry, namer BranchNamer, bus *event.Bus, log *logging.Logger) (*Monitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewSprintError("failed to create watcher", err)
	}

	return &Monitor{
		root:    root,
		reg:     reg,
		namer:   namer,
		bus:     bus,
		log:     log.WithComponent("monitor"),
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}, nil
}

// Registry returns the registry the monitor maintains.
func (m *Monitor) Registry() *Registry {
	return m.reg
}

// Scan enumerates sprint folders under the root and ingests every status
// document found. Unreadable documents are logged and skipped. Scan does
// not assign; callers follow up with TryAssignQueued when they intend to.
func (m *Monitor) Scan() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return errors.NewSprintError("failed to read sprint root", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.root, entry.Name())
		docPath := filepath.Join(dir, StatusDocName)
		if _, err := os.Stat(docPath); err != nil {
			continue // Not a sprint folder
		}
		m.ingestDoc(entry.Name(), dir, docPath)
	}
	return nil
}

// Start begins watching the sprint root for status document changes.
// Scan should be called first to seed the registry.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if err := m.watcher.Add(m.root); err != nil {
		return errors.NewSprintError("failed to watch sprint root", err)
	}

	// Watch each existing sprint folder; the watch loop picks up folders
	// created later.
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return errors.NewSprintError("failed to read sprint root", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			_ = m.watcher.Add(filepath.Join(m.root, entry.Name()))
		}
	}

	go m.watchLoop()
	m.log.Info("monitor started", "root", m.root)
	return nil
}

// Stop shuts down the watcher. In-flight document handling completes;
// its results are simply no longer acted upon.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	close(m.stopCh)
	_ = m.watcher.Close()
	m.log.Info("monitor stopped")
}

// watchLoop processes filesystem events. Events are debounced because many
// editors emit several events for a single save.
func (m *Monitor) watchLoop() {
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	pendingEvents := make(map[string]fsnotify.Event)
	var pendingMu sync.Mutex

	for {
		select {
		case <-m.stopCh:
			return

		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			pendingMu.Lock()
			pendingEvents[ev.Name] = ev
			pendingMu.Unlock()

			debounceTimer.Reset(50 * time.Millisecond)

		case <-debounceTimer.C:
			pendingMu.Lock()
			events := pendingEvents
			pendingEvents = make(map[string]fsnotify.Event)
			pendingMu.Unlock()

			for _, ev := range events {
				m.handleFileEvent(ev)
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn("watcher error", "error", err)
		}
	}
}

// handleFileEvent reacts to a single debounced filesystem event.
func (m *Monitor) handleFileEvent(ev fsnotify.Event) {
	// A new directory under the root may be a new sprint folder.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if filepath.Dir(ev.Name) == filepath.Clean(m.root) {
				_ = m.watcher.Add(ev.Name)
				docPath := filepath.Join(ev.Name, StatusDocName)
				if _, err := os.Stat(docPath); err == nil {
					m.ingestDoc(filepath.Base(ev.Name), ev.Name, docPath)
					m.TryAssignQueued()
				}
			}
			return
		}
	}

	if filepath.Base(ev.Name) != StatusDocName {
		return
	}

	dir := filepath.Dir(ev.Name)
	if filepath.Dir(dir) != filepath.Clean(m.root) {
		return
	}

	m.ingestDoc(filepath.Base(dir), dir, ev.Name)
	m.TryAssignQueued()
}

// ingestDoc parses one status document and applies the resulting
// transitions to the registry.
func (m *Monitor) ingestDoc(name, dir, docPath string) {
	content, err := os.ReadFile(docPath)
	if err != nil {
		m.log.Warn("skipping unreadable status document", "sprint", name, "error", err)
		return
	}

	doc := ParseStatusDoc(string(content))
	prev := m.reg.upsert(name, dir, doc.Status, doc.AssignedCoder, doc.BranchName, doc.Tasks)

	if prev != doc.Status {
		m.bus.Publish(event.NewSprintStatusChangedEvent(name, string(prev), string(doc.Status)))
		m.log.Info("sprint status changed",
			"sprint", name, "from", string(prev), "to", string(doc.Status))
	}

	s, _ := m.reg.Sprint(name)

	switch doc.Status {
	case StatusBuilding:
		// Eligible for assignment once no coder holds it.
		if s.AssignedCoder == "" && m.reg.enqueue(name) {
			m.log.Info("sprint queued for assignment", "sprint", name)
		}
	case StatusReadyForMerge, StatusMerged:
		m.releaseCoder(s)
	}
}

// releaseCoder frees the sprint's coder, if it still holds this sprint.
// A document that retains a stale coder reference after the coder moved on
// releases nothing.
func (m *Monitor) releaseCoder(s Sprint) {
	if s.AssignedCoder == "" {
		return
	}
	if m.reg.free(s.AssignedCoder, s.Name) {
		m.bus.Publish(event.NewCoderFreedEvent(s.AssignedCoder, s.Name))
		m.log.Info("coder freed", "coder", s.AssignedCoder, "sprint", s.Name)
	}
}

// TryAssignQueued assigns queued sprints to free coders until either runs
// out. Each assignment is written back to the sprint's status document.
func (m *Monitor) TryAssignQueued() {
	for {
		sprintName, coderID, branch, ok := m.reg.reserveNext(m.namer)
		if !ok {
			return
		}
		m.recordAssignment(sprintName, coderID, branch)
	}
}

// ForceAssign assigns a specific sprint to a specific free coder,
// bypassing the queue.
func (m *Monitor) ForceAssign(sprintName, coderID string) error {
	branch, err := m.reg.reserve(sprintName, coderID, m.namer)
	if err != nil {
		return err
	}
	m.recordAssignment(sprintName, coderID, branch)
	return nil
}

// recordAssignment writes the assignment back to the status document and
// announces it. A failed write is logged but the in-memory assignment
// stands; the next successful write re-converges the document.
func (m *Monitor) recordAssignment(sprintName, coderID, branch string) {
	s, ok := m.reg.Sprint(sprintName)
	if !ok {
		return
	}

	docPath := filepath.Join(s.Path, StatusDocName)
	content, err := os.ReadFile(docPath)
	if err != nil {
		m.log.Error("failed to read status document for assignment",
			"sprint", sprintName, "error", err)
	} else {
		updated := UpdateStatusLine(string(content), StatusAssigned, coderID)
		updated = EnsureAssignmentBlock(updated, coderID, branch)
		if err := SaveDoc(docPath, updated); err != nil {
			m.log.Error("failed to write assignment to status document",
				"sprint", sprintName, "error", err)
		}
	}

	m.bus.Publish(event.NewSprintAssignedEvent(sprintName, coderID, branch))
	m.log.Info("sprint assigned", "sprint", sprintName, "coder", coderID, "branch", branch)
}

// CreateRepairTask pushes a repair task back to the sprint's coder: the
// task is prepended to the sprint's task list, the sprint returns to
// Assigned, and the coder is flagged as repairing.
func (m *Monitor) CreateRepairTask(sprintName, details string) error {
	coderID, err := m.reg.markRepairing(sprintName, details)
	if err != nil {
		return err
	}

	s, _ := m.reg.Sprint(sprintName)
	docPath := filepath.Join(s.Path, StatusDocName)
	content, err := os.ReadFile(docPath)
	if err != nil {
		m.log.Error("failed to read status document for repair task",
			"sprint", sprintName, "error", err)
	} else {
		updated := UpdateStatusLine(string(content), StatusAssigned, coderID)
		updated = InsertRepairTask(updated, details)
		if err := SaveDoc(docPath, updated); err != nil {
			m.log.Error("failed to write repair task to status document",
				"sprint", sprintName, "error", err)
		}
	}

	m.bus.Publish(event.NewRepairTaskCreatedEvent(sprintName, coderID, details))
	m.log.Info("repair task created", "sprint", sprintName, "coder", coderID)
	return nil
}

// MarkMerged records a successful merge: the sprint moves to Merged, its
// status document is rewritten, and its coder is freed for the next
// queued sprint.
func (m *Monitor) MarkMerged(sprintName string) error {
	s, ok := m.reg.Sprint(sprintName)
	if !ok {
		return errors.NewNotFoundError("sprint", sprintName)
	}

	m.reg.setStatus(sprintName, StatusMerged)

	docPath := filepath.Join(s.Path, StatusDocName)
	if content, err := os.ReadFile(docPath); err == nil {
		updated := UpdateStatusLine(string(content), StatusMerged, "")
		if err := SaveDoc(docPath, updated); err != nil {
			m.log.Error("failed to write merged status", "sprint", sprintName, "error", err)
		}
	}

	m.releaseCoder(s)
	m.TryAssignQueued()
	return nil
}
