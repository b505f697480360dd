package merge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/forgeops/sprintmux/internal/errors"
)

const (
	queueFileName = "merge-queue.json"
	queueVersion  = "1.0"
)

// persistedQueue is the on-disk representation of the merge queue. The
// document is the external interface to the queue: humans and other tools
// read it directly.
type persistedQueue struct {
	Version   string     `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Queue     []*Request `json:"queue"`
	Stats     Stats      `json:"stats"`
}

// Store is the durable merge queue. All mutations write through to the
// JSON document atomically (temp file + rename) under a cross-process
// file lock, so requests survive restarts and are never silently lost.
type Store struct {
	dir string

	mu        sync.Mutex
	requests  map[string]*Request
	order     []string // Insertion order, preserved across save/load
	stats     Stats
	createdAt time.Time
}

// OpenStore loads the merge queue from dir, creating an empty queue (and
// the directory) when no document exists yet.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	s := &Store{
		dir:       dir,
		requests:  make(map[string]*Request),
		createdAt: time.Now(),
	}

	fl := NewFileLock(dir)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(filepath.Join(dir, queueFileName))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue state: %w", err)
	}

	var state persistedQueue
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.NewMergeError("failed to parse queue document", errors.ErrQueueCorrupted)
	}

	if !state.CreatedAt.IsZero() {
		s.createdAt = state.CreatedAt
	}
	s.stats = state.Stats
	for _, req := range state.Queue {
		s.requests[req.ID] = req
		s.order = append(s.order, req.ID)
	}
	return s, nil
}

// Save writes the queue document. The write is atomic: data goes to a
// temporary file first, then is renamed into place under the file lock.
func (s *Store) Save() error {
	fl := NewFileLock(s.dir)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	s.mu.Lock()
	state := persistedQueue{
		Version:   queueVersion,
		CreatedAt: s.createdAt,
		UpdatedAt: time.Now(),
		Queue:     make([]*Request, 0, len(s.order)),
		Stats:     s.stats,
	}
	for _, id := range s.order {
		state.Queue = append(state.Queue, s.requests[id])
	}
	data, err := json.MarshalIndent(state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal queue state: %w", err)
	}

	target := filepath.Join(s.dir, queueFileName)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Add inserts a new request.
func (s *Store) Add(req *Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	s.order = append(s.order, req.ID)
	s.stats.TotalSprints++
}

// Get returns a copy of the request with the given ID.
func (s *Store) Get(id string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, false
	}
	return copyRequest(req), true
}

// Update applies fn to the request under the store lock and stamps
// UpdatedAt. Returns false when the request does not exist.
func (s *Store) Update(id string, fn func(*Request)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return false
	}
	fn(req)
	req.UpdatedAt = time.Now()
	return true
}

// List returns copies of all requests in insertion order.
func (s *Store) List() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Request, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyRequest(s.requests[id]))
	}
	return out
}

// ByState returns copies of all requests in the given state, in insertion
// order.
func (s *Store) ByState(state State) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Request
	for _, id := range s.order {
		if s.requests[id].State == state {
			out = append(out, copyRequest(s.requests[id]))
		}
	}
	return out
}

// ActiveForSprint returns the non-terminal request for a sprint, if any.
// This is the sole guard against double submission.
func (s *Store) ActiveForSprint(sprintName string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		req := s.requests[id]
		if req.SprintName == sprintName && req.State.IsActive() {
			return copyRequest(req), true
		}
	}
	return Request{}, false
}

// Stats returns a copy of the aggregate statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// BumpStats applies fn to the aggregate statistics under the store lock.
func (s *Store) BumpStats(fn func(*Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stats)
}

// StatesSummary returns a count of requests per state, for status displays.
func (s *Store) StatesSummary() map[State]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[State]int)
	for _, req := range s.requests {
		out[req.State]++
	}
	return out
}
