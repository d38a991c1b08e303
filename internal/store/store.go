package store

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// validTransitions is the allowed state-transition table from spec.md
// §4.4, generalized from the teacher's 8-state Task.TransitionTo in
// internal/tasks/types.go down to the four states {TODO, IN_PROGRESS,
// BLOCKED, DONE}.
var validTransitions = map[TaskStatus][]TaskStatus{
	StatusTODO:       {StatusInProgress},
	StatusInProgress: {StatusBlocked, StatusDone, StatusTODO},
	StatusBlocked:    {StatusInProgress, StatusTODO},
	StatusDone:       {},
}

// Store is the single-writer-logical, in-memory authoritative Task Store
// (spec.md §4.2). A single mutex protects every map; readers obtain
// consistent views only through Snapshot.
type Store struct {
	mu sync.Mutex

	tasks       map[string]*Task
	agents      map[string]*Agent
	byStatus    map[TaskStatus]map[string]struct{}
	byLabel     map[string]map[string]struct{}
	depsReverse map[string]map[string]struct{} // id -> set of ids that depend on it
	blockers    map[string]*Blocker
}

// New returns an empty Task Store.
func New() *Store {
	return &Store{
		tasks:       make(map[string]*Task),
		agents:      make(map[string]*Agent),
		byStatus:    make(map[TaskStatus]map[string]struct{}),
		byLabel:     make(map[string]map[string]struct{}),
		depsReverse: make(map[string]map[string]struct{}),
		blockers:    make(map[string]*Blocker),
	}
}

func (s *Store) indexAdd(idx map[string]map[string]struct{}, key, id string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func (s *Store) indexRemove(idx map[string]map[string]struct{}, key, id string) {
	if set, ok := idx[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(idx, key)
		}
	}
}

func (s *Store) statusIndexAdd(status TaskStatus, id string) {
	set, ok := s.byStatus[status]
	if !ok {
		set = make(map[string]struct{})
		s.byStatus[status] = set
	}
	set[id] = struct{}{}
}

func (s *Store) statusIndexRemove(status TaskStatus, id string) {
	if set, ok := s.byStatus[status]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byStatus, status)
		}
	}
}

// UpsertTask inserts a new task or updates an existing one by ID. The
// dependency edges are cycle-checked before the write is committed; a
// would-be cycle is rejected entirely (spec.md §3 DAG invariant).
func (s *Store) UpsertTask(t *Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: task id required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, had := s.tasks[t.ID]

	// Build the prospective dependency graph (current tasks + this one)
	// and cycle-check before mutating any index.
	trial := make(map[string]map[string]struct{}, len(s.tasks)+1)
	for id, task := range s.tasks {
		trial[id] = task.Dependencies
	}
	trial[t.ID] = t.Dependencies
	if hasCycle(trial, t.ID) {
		return ErrCyclicDependency
	}

	now := time.Now()
	cp := t.clone()
	if cp.Status == "" {
		cp.Status = StatusTODO
	}
	if cp.Priority == "" {
		cp.Priority = PriorityMedium
	}
	if cp.Labels == nil {
		cp.Labels = make(map[string]struct{})
	}
	if cp.Dependencies == nil {
		cp.Dependencies = make(map[string]struct{})
	}
	cp.UpdatedAt = now
	if had {
		cp.CreatedAt = existing.CreatedAt
		cp.AssignedTo = existing.AssignedTo
		s.statusIndexRemove(existing.Status, t.ID)
		for label := range existing.Labels {
			s.indexRemove(s.byLabel, label, t.ID)
		}
		for dep := range existing.Dependencies {
			s.indexRemove(s.depsReverse, dep, t.ID)
		}
	} else {
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
	}

	s.tasks[t.ID] = cp
	s.statusIndexAdd(cp.Status, t.ID)
	for label := range cp.Labels {
		s.indexAdd(s.byLabel, label, t.ID)
	}
	for dep := range cp.Dependencies {
		s.indexAdd(s.depsReverse, dep, t.ID)
	}
	return nil
}

// hasCycle runs a DFS from start over the trial dependency graph looking
// for a path back to start.
func hasCycle(deps map[string]map[string]struct{}, start string) bool {
	visited := make(map[string]bool)
	var visit func(id string) bool
	visit = func(id string) bool {
		if id == start && visited[id] {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		for dep := range deps[id] {
			if dep == start {
				return true
			}
			if visit(dep) {
				return true
			}
		}
		return false
	}
	for dep := range deps[start] {
		if dep == start || visit(dep) {
			return true
		}
	}
	return false
}

// UpsertAgent creates a new agent or updates fields on an existing one.
// Existing assignments are retained on re-registration (spec.md §4.10).
func (s *Store) UpsertAgent(a *Agent) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: agent id required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := a.clone()
	if cp.Capacity <= 0 {
		cp.Capacity = 1
	}
	if existing, ok := s.agents[a.ID]; ok {
		cp.CurrentTasks = existing.CurrentTasks
		cp.CompletedCount = existing.CompletedCount
		if cp.LastHeartbeat.IsZero() {
			cp.LastHeartbeat = existing.LastHeartbeat
		}
	} else {
		if cp.CurrentTasks == nil {
			cp.CurrentTasks = make(map[string]struct{})
		}
		if cp.LastHeartbeat.IsZero() {
			cp.LastHeartbeat = time.Now()
		}
	}
	s.agents[a.ID] = cp
	return nil
}

// Heartbeat updates an agent's last-seen timestamp; used by progress
// reports and by request_next_task to mark liveness.
func (s *Store) Heartbeat(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	a.LastHeartbeat = time.Now()
	return nil
}

// CandidateTasks returns clones of every task eligible for assignment:
// status=TODO, unassigned, every dependency DONE (spec.md §3 "available").
func (s *Store) CandidateTasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Task
	for id := range s.byStatus[StatusTODO] {
		t := s.tasks[id]
		if t.AssignedTo != "" {
			continue
		}
		if s.allDepsDoneLocked(t) {
			out = append(out, t.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) allDepsDoneLocked(t *Task) bool {
	for dep := range t.Dependencies {
		d, ok := s.tasks[dep]
		if !ok || d.Status != StatusDone {
			return false
		}
	}
	return true
}

// Assign is the only atomic claiming write in the system: the at-most-once
// guarantee rests entirely on this method running under s.mu (spec.md
// §4.3 step 5).
func (s *Store) Assign(taskID, agentID string, instructions string) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	a, ok := s.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	if len(a.CurrentTasks) >= a.Capacity {
		return nil, ErrAtCapacity
	}
	if t.Status != StatusTODO || t.AssignedTo != "" {
		return nil, ErrAlreadyAssigned
	}
	if !s.allDepsDoneLocked(t) {
		return nil, ErrUnavailable
	}

	s.statusIndexRemove(t.Status, t.ID)
	t.Status = StatusInProgress
	t.AssignedTo = agentID
	t.UpdatedAt = time.Now()
	s.statusIndexAdd(t.Status, t.ID)
	a.CurrentTasks[taskID] = struct{}{}

	return &Assignment{
		TaskID:       taskID,
		AgentID:      agentID,
		AssignedAt:   t.UpdatedAt,
		Instructions: instructions,
	}, nil
}

// SetStatus validates and applies a status transition per the table in
// spec.md §4.4. It is the only way a task's status changes after
// creation; the Lifecycle State Machine calls this then mirrors
// externally and logs the event.
func (s *Store) SetStatus(taskID string, newStatus TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	allowed := validTransitions[t.Status]
	legal := false
	for _, st := range allowed {
		if st == newStatus {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, newStatus)
	}

	s.statusIndexRemove(t.Status, taskID)
	t.Status = newStatus
	t.UpdatedAt = time.Now()
	s.statusIndexAdd(newStatus, taskID)

	if newStatus == StatusTODO || newStatus == StatusDone {
		s.clearAssignmentLocked(t)
	}
	return nil
}

// ReconcileStatus force-sets a task's status to match the external board
// during pull reconciliation (spec.md §4.7). Unlike SetStatus it does not
// consult validTransitions: the board is ground truth here, not an
// agent-driven move, the same trust asymmetry ForceClearAgentTasks uses
// for the stale-agent sweeper. Always clears the assignment, matching
// both reconciliation cases that call it ("external farther along" and
// "conflict, external wins").
func (s *Store) ReconcileStatus(taskID string, newStatus TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if t.Status == newStatus {
		return nil
	}
	s.statusIndexRemove(t.Status, taskID)
	t.Status = newStatus
	t.UpdatedAt = time.Now()
	s.statusIndexAdd(newStatus, taskID)
	s.clearAssignmentLocked(t)
	return nil
}

// ClearAssignment removes a task's assignment without changing its
// status; used by completion (status already moved to DONE by SetStatus)
// and by explicit unassign paths.
func (s *Store) ClearAssignment(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	s.clearAssignmentLocked(t)
	return nil
}

func (s *Store) clearAssignmentLocked(t *Task) {
	if t.AssignedTo == "" {
		return
	}
	if a, ok := s.agents[t.AssignedTo]; ok {
		delete(a.CurrentTasks, t.ID)
	}
	t.AssignedTo = ""
}

// IncrementCompleted bumps an agent's completed_count, used once per
// genuine IN_PROGRESS->DONE transition (completion is idempotent: a
// second report_progress("completed") on an already-DONE task is a
// no-op here because SetStatus rejects DONE->DONE as illegal and the
// caller checks current status first).
func (s *Store) IncrementCompleted(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	a.CompletedCount++
	return nil
}

// GetTask returns a clone of a task by id.
func (s *Store) GetTask(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.clone(), nil
}

// GetAgent returns a clone of an agent by id.
func (s *Store) GetAgent(id string) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.clone(), nil
}

// DependentsOf returns the ids of tasks that list id as a dependency.
func (s *Store) DependentsOf(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.depsReverse[id]
	out := make([]string, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	return out
}

// AddBlocker records a new Blocker against a task.
func (s *Store) AddBlocker(b *Blocker) error {
	if b == nil || b.ID == "" || b.TaskID == "" {
		return fmt.Errorf("%w: blocker id and task id required", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[b.TaskID]; !ok {
		return ErrNotFound
	}
	cp := *b
	cp.Suggestions = append([]string(nil), b.Suggestions...)
	s.blockers[b.ID] = &cp
	return nil
}

// ResolveBlocker marks the most recent unresolved blocker on a task as
// resolved and returns it.
func (s *Store) ResolveBlocker(taskID string) (*Blocker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Blocker
	for _, b := range s.blockers {
		if b.TaskID != taskID || b.ResolvedAt != nil {
			continue
		}
		if latest == nil || b.OpenedAt.After(latest.OpenedAt) {
			latest = b
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	now := time.Now()
	latest.ResolvedAt = &now
	cp := *latest
	return &cp, nil
}

// StaleAgents returns clones of every agent whose last heartbeat is
// older than ttl and who currently holds at least one task.
func (s *Store) StaleAgents(ttl time.Duration) []*Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	var out []*Agent
	for _, a := range s.agents {
		if len(a.CurrentTasks) > 0 && a.LastHeartbeat.Before(cutoff) {
			out = append(out, a.clone())
		}
	}
	return out
}

// ForceClearAgentTasks transitions every task currently held by agentID
// back to TODO and clears the assignment, used by the stale-agent
// sweeper (spec.md §4.3). Returns the ids that were cleared.
func (s *Store) ForceClearAgentTasks(agentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	var cleared []string
	for taskID := range a.CurrentTasks {
		t, ok := s.tasks[taskID]
		if !ok {
			continue
		}
		s.statusIndexRemove(t.Status, taskID)
		t.Status = StatusTODO
		t.AssignedTo = ""
		t.UpdatedAt = time.Now()
		s.statusIndexAdd(t.Status, taskID)
		cleared = append(cleared, taskID)
	}
	a.CurrentTasks = make(map[string]struct{})
	return cleared, nil
}

// Snapshot returns a deep-copied, point-in-time view of every collection
// so readers can iterate without racing concurrent mutation (spec.md §5).
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make(map[string]*Task, len(s.tasks))
	for id, t := range s.tasks {
		tasks[id] = t.clone()
	}
	agents := make(map[string]*Agent, len(s.agents))
	for id, a := range s.agents {
		agents[id] = a.clone()
	}
	byStatus := make(map[TaskStatus]map[string]struct{}, len(s.byStatus))
	for status, set := range s.byStatus {
		byStatus[status] = cloneSet(set)
	}
	depsReverse := make(map[string]map[string]struct{}, len(s.depsReverse))
	for id, set := range s.depsReverse {
		depsReverse[id] = cloneSet(set)
	}
	blockers := make(map[string]*Blocker, len(s.blockers))
	for id, b := range s.blockers {
		cp := *b
		blockers[id] = &cp
	}

	return &Snapshot{
		Tasks:       tasks,
		Agents:      agents,
		ByStatus:    byStatus,
		DepsReverse: depsReverse,
		Blockers:    blockers,
		TakenAt:     time.Now(),
	}
}
