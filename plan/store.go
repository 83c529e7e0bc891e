package plan

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory authoritative plan set. Durability is a collaborator
// concern; see SnapshotStore for the export/import escape hatch.
type Store struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{plans: make(map[string]*Plan)}
}

// Create registers a new plan, assigning its ID and timestamps.
func (s *Store) Create(p *Plan) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.plans[p.ID]; exists {
		return "", fmt.Errorf("plan %s already exists", p.ID)
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = 50
	}
	for _, t := range p.Tasks {
		initTask(t, now)
	}
	p.RecomputeProgress()
	s.plans[p.ID] = p.Clone()
	return p.ID, nil
}

// Get retrieves a deep copy of a plan by ID. Callers own the copy; changes
// become visible only through Update.
func (s *Store) Get(id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s not found", id)
	}
	return p.Clone(), nil
}

// Update stamps UpdatedAt, recomputes progress, and stores a deep copy of p.
// The caller keeps sole ownership of its working copy.
func (s *Store) Update(p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.ID]; !ok {
		return fmt.Errorf("plan %s not found", p.ID)
	}
	p.UpdatedAt = time.Now().UTC()
	p.RecomputeProgress()
	s.plans[p.ID] = p.Clone()
	return nil
}

// Delete removes a plan by ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return fmt.Errorf("plan %s not found", id)
	}
	delete(s.plans, id)
	return nil
}

// List returns deep copies of all plans.
func (s *Store) List() []*Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Plan, 0, len(s.plans))
	for _, p := range s.plans {
		result = append(result, p.Clone())
	}
	return result
}

// AddTask appends a task to a plan and recomputes progress. The stored plan
// keeps its own copy of t.
func (s *Store) AddTask(planID string, t *Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return "", fmt.Errorf("plan %s not found", planID)
	}
	initTask(t, time.Now().UTC())
	p.Tasks = append(p.Tasks, t.Clone())
	p.RecomputeProgress()
	p.UpdatedAt = time.Now().UTC()
	return t.ID, nil
}

// Export serializes the full plan set as JSON.
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plans := make([]*Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, p)
	}
	data, err := json.Marshal(plans)
	if err != nil {
		return nil, fmt.Errorf("export plans: %w", err)
	}
	return data, nil
}

// Import replaces the plan set with the given JSON export.
func (s *Store) Import(data []byte) error {
	var plans []*Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		return fmt.Errorf("import plans: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[string]*Plan, len(plans))
	for _, p := range plans {
		if p.ID == "" {
			return fmt.Errorf("import plans: plan without id")
		}
		s.plans[p.ID] = p
	}
	return nil
}

func initTask(t *Task, now time.Time) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = 3
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}
