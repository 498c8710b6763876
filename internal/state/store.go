// Package state owns the authoritative AgentState. All mutation flows
// through the Store's operations, which serialize writes and persist the
// state synchronously before returning, so callers only ever observe
// durable state.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
	"github.com/Aladin147/FlowCode-sub002/internal/logger"
)

// ErrTaskNotFound is returned when neither the current task nor the queue
// holds a task with the requested id.
var ErrTaskNotFound = errors.New("task not found")

// DefaultAutosaveInterval is the fallback period for the defensive
// background persistence timer.
const DefaultAutosaveInterval = 30 * time.Second

// Store is the task state store. It is safe for concurrent use; one
// logical mutation happens at a time even though reads may be concurrent.
type Store struct {
	mu    sync.RWMutex
	state *agent.AgentState

	path     string
	interval time.Duration
	log      *logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates a store persisting to path. Initialize must be called before
// use.
func New(path string, prefs agent.UserPreferences, interval time.Duration, log *logger.Logger) *Store {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	if log == nil {
		log = logger.Global()
	}
	return &Store{
		state:    agent.NewAgentState(prefs),
		path:     path,
		interval: interval,
		log:      log.WithPrefix("state"),
		stop:     make(chan struct{}),
	}
}

// Initialize loads persisted state from disk and starts the autosave
// timer. A load failure is non-fatal: it is logged and the store keeps the
// defaults it was constructed with.
func (s *Store) Initialize() error {
	s.mu.Lock()
	loaded, err := loadState(s.path, s.state.UserPreferences)
	if err != nil {
		s.log.Warn("loading state from %s failed, starting from defaults: %v", s.path, err)
	} else if loaded != nil {
		s.state = loaded
		s.log.Info("restored state: %d queued, %d history entries",
			len(loaded.TaskQueue), len(loaded.ExecutionHistory))
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.autosaveLoop()
	return nil
}

// Close stops the autosave timer and flushes once more.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) autosaveLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.persistLocked()
			s.mu.Unlock()
			if err != nil {
				s.log.Error("autosave failed: %v", err)
			}
		}
	}
}

// mutate runs fn under the write lock and persists before returning. A
// persistence failure is returned to the caller; the in-memory mutation is
// kept.
func (s *Store) mutate(fn func(*agent.AgentState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.state); err != nil {
		return err
	}
	return s.persistLocked()
}

// SetCurrentTask replaces the current task. Passing nil clears it.
func (s *Store) SetCurrentTask(task *agent.Task) error {
	return s.mutate(func(st *agent.AgentState) error {
		st.CurrentTask = task.Clone()
		return nil
	})
}

// AddToQueue appends a task to the FIFO queue.
func (s *Store) AddToQueue(task *agent.Task) error {
	if task == nil {
		return fmt.Errorf("add to queue: task is nil")
	}
	return s.mutate(func(st *agent.AgentState) error {
		st.TaskQueue = append(st.TaskQueue, task.Clone())
		return nil
	})
}

// PopNextTask removes and returns the oldest queued task, nil when the
// queue is empty.
func (s *Store) PopNextTask() (*agent.Task, error) {
	var popped *agent.Task
	err := s.mutate(func(st *agent.AgentState) error {
		if len(st.TaskQueue) == 0 {
			return nil
		}
		popped = st.TaskQueue[0]
		st.TaskQueue = append([]*agent.Task(nil), st.TaskQueue[1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return popped.Clone(), nil
}

// findTaskLocked locates a task by id in the current slot or the queue.
func findTaskLocked(st *agent.AgentState, id string) *agent.Task {
	if st.CurrentTask != nil && st.CurrentTask.ID == id {
		return st.CurrentTask
	}
	for _, t := range st.TaskQueue {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// UpdateTaskStatus transitions a task's status and updates session totals
// for terminal outcomes. Transitions out of a terminal state are rejected.
func (s *Store) UpdateTaskStatus(id string, status agent.TaskStatus) error {
	return s.mutate(func(st *agent.AgentState) error {
		task := findTaskLocked(st, id)
		if task == nil {
			return fmt.Errorf("update status of %s: %w", id, ErrTaskNotFound)
		}
		if task.Status == status {
			return nil
		}
		if task.Status.IsTerminal() {
			return fmt.Errorf("update status of %s: terminal status %s cannot change to %s",
				id, task.Status, status)
		}
		task.Status = status
		task.Touch()
		switch status {
		case agent.TaskStatusCompleted:
			st.TotalTasksCompleted++
		case agent.TaskStatusFailed:
			st.TotalTasksFailed++
		}
		return nil
	})
}

// UpdateStepStatus transitions one step of a task and recomputes the
// task's progress from its steps.
func (s *Store) UpdateStepStatus(taskID, stepID string, status agent.StepStatus) error {
	return s.mutate(func(st *agent.AgentState) error {
		task := findTaskLocked(st, taskID)
		if task == nil {
			return fmt.Errorf("update step %s of %s: %w", stepID, taskID, ErrTaskNotFound)
		}
		step := task.StepByID(stepID)
		if step == nil {
			return fmt.Errorf("update step %s of %s: step not found", stepID, taskID)
		}
		step.Status = status
		task.RecomputeProgress()
		task.Touch()
		return nil
	})
}

// ProgressPatch is a partial progress update; nil fields keep their
// current value. PercentComplete is always recomputed from the counters
// rather than accepted from the caller.
type ProgressPatch struct {
	CompletedSteps           *int
	FailedSteps              *int
	SkippedSteps             *int
	EstimatedTimeRemainingMs *int64
}

// UpdateTaskProgress merges a partial progress update into a task.
func (s *Store) UpdateTaskProgress(id string, patch ProgressPatch) error {
	return s.mutate(func(st *agent.AgentState) error {
		task := findTaskLocked(st, id)
		if task == nil {
			return fmt.Errorf("update progress of %s: %w", id, ErrTaskNotFound)
		}
		p := &task.Progress
		if patch.CompletedSteps != nil {
			p.CompletedSteps = *patch.CompletedSteps
		}
		if patch.FailedSteps != nil {
			p.FailedSteps = *patch.FailedSteps
		}
		if patch.SkippedSteps != nil {
			p.SkippedSteps = *patch.SkippedSteps
		}
		if patch.EstimatedTimeRemainingMs != nil {
			p.EstimatedTimeRemainingMs = *patch.EstimatedTimeRemainingMs
		}
		p.TotalSteps = len(task.Steps)
		settled := p.CompletedSteps + p.FailedSteps + p.SkippedSteps
		if p.TotalSteps > 0 {
			p.PercentComplete = float64(settled) / float64(p.TotalSteps) * 100
		} else {
			p.PercentComplete = 0
		}
		task.Touch()
		return nil
	})
}

// RecordExecutionStep appends a history record, evicting the oldest entry
// beyond the bound, and recomputes the running average duration over all
// settled records.
func (s *Store) RecordExecutionStep(rec agent.ExecutionStepRecord) error {
	return s.mutate(func(st *agent.AgentState) error {
		st.ExecutionHistory = append(st.ExecutionHistory, rec)
		if overflow := len(st.ExecutionHistory) - agent.HistoryLimit; overflow > 0 {
			st.ExecutionHistory = append(
				[]agent.ExecutionStepRecord(nil), st.ExecutionHistory[overflow:]...)
		}
		st.AverageTaskDurationMs = averageSettledDuration(st.ExecutionHistory)
		return nil
	})
}

func averageSettledDuration(history []agent.ExecutionStepRecord) float64 {
	var sum int64
	var n int
	for i := range history {
		switch history[i].Status {
		case agent.StepStatusCompleted, agent.StepStatusFailed:
			sum += history[i].DurationMs
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// AddLearningDatum appends a learning entry, evicting the oldest beyond
// the bound. It is a no-op while learning is disabled.
func (s *Store) AddLearningDatum(d agent.LearningDatum) error {
	return s.mutate(func(st *agent.AgentState) error {
		if !st.UserPreferences.LearningEnabled {
			return nil
		}
		st.LearningMemory = append(st.LearningMemory, d)
		if overflow := len(st.LearningMemory) - agent.LearningMemoryLimit; overflow > 0 {
			st.LearningMemory = append(
				[]agent.LearningDatum(nil), st.LearningMemory[overflow:]...)
		}
		return nil
	})
}

// RecordApproval appends an approval decision to the identified task.
func (s *Store) RecordApproval(taskID string, rec agent.ApprovalRecord) error {
	return s.mutate(func(st *agent.AgentState) error {
		task := findTaskLocked(st, taskID)
		if task == nil {
			return fmt.Errorf("record approval for %s: %w", taskID, ErrTaskNotFound)
		}
		task.Approvals = append(task.Approvals, rec)
		task.Touch()
		return nil
	})
}

// UpdatePreferences replaces the config-sourced preference fields. It is
// invoked on every configuration change push and never touches learning
// memory or history.
func (s *Store) UpdatePreferences(prefs agent.UserPreferences) error {
	return s.mutate(func(st *agent.AgentState) error {
		st.UserPreferences = prefs
		return nil
	})
}

// ResetState discards everything except user preferences.
func (s *Store) ResetState() error {
	return s.mutate(func(st *agent.AgentState) error {
		prefs := st.UserPreferences
		*st = *agent.NewAgentState(prefs)
		return nil
	})
}

// ClearHistory drops execution history and the derived running average.
func (s *Store) ClearHistory() error {
	return s.mutate(func(st *agent.AgentState) error {
		st.ExecutionHistory = nil
		st.AverageTaskDurationMs = 0
		return nil
	})
}

// --- read accessors -------------------------------------------------------

// CurrentTask returns a clone of the current task, nil if none.
func (s *Store) CurrentTask() *agent.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CurrentTask.Clone()
}

// Task returns a clone of the task with the given id from the current slot
// or queue.
func (s *Store) Task(id string) (*agent.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task := findTaskLocked(s.state, id)
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	return task.Clone(), nil
}

// Queue returns clones of the queued tasks in FIFO order.
func (s *Store) Queue() []*agent.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*agent.Task, len(s.state.TaskQueue))
	for i, t := range s.state.TaskQueue {
		out[i] = t.Clone()
	}
	return out
}

// History returns a copy of the execution history, oldest first.
func (s *Store) History() []agent.ExecutionStepRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]agent.ExecutionStepRecord(nil), s.state.ExecutionHistory...)
}

// Preferences returns the current user preferences.
func (s *Store) Preferences() agent.UserPreferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.UserPreferences
}

// Statistics summarizes the session for display.
type Statistics struct {
	TotalTasks             int            `json:"total_tasks"`
	CompletedTasks         int            `json:"completed_tasks"`
	FailedTasks            int            `json:"failed_tasks"`
	AverageDurationMs      float64        `json:"average_duration_ms"`
	SuccessRate            float64        `json:"success_rate"`
	MostCommonActions      []string       `json:"most_common_actions,omitempty"`
	RiskDistribution       map[string]int `json:"risk_distribution,omitempty"`
	ComplexityDistribution map[string]int `json:"complexity_distribution,omitempty"`
}

// GetStatistics computes session statistics over the tasks known to the
// store (current slot and queue) and the recorded totals.
func (s *Store) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	stats := Statistics{
		CompletedTasks:         st.TotalTasksCompleted,
		FailedTasks:            st.TotalTasksFailed,
		AverageDurationMs:      st.AverageTaskDurationMs,
		RiskDistribution:       make(map[string]int),
		ComplexityDistribution: make(map[string]int),
	}
	stats.TotalTasks = st.TotalTasksCompleted + st.TotalTasksFailed + len(st.TaskQueue)
	if st.CurrentTask != nil && !st.CurrentTask.Status.IsTerminal() {
		stats.TotalTasks++
	}
	if settled := st.TotalTasksCompleted + st.TotalTasksFailed; settled > 0 {
		stats.SuccessRate = float64(st.TotalTasksCompleted) / float64(settled)
	}

	actionCounts := make(map[string]int)
	tally := func(t *agent.Task) {
		if t == nil {
			return
		}
		stats.RiskDistribution[string(t.RiskLevel)]++
		stats.ComplexityDistribution[string(t.Complexity.Level)]++
		for i := range t.Steps {
			actionCounts[string(t.Steps[i].Action.Type)]++
		}
	}
	tally(st.CurrentTask)
	for _, t := range st.TaskQueue {
		tally(t)
	}

	stats.MostCommonActions = topActions(actionCounts, 5)
	return stats
}

func topActions(counts map[string]int, n int) []string {
	actions := make([]string, 0, len(counts))
	for a := range counts {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool {
		if counts[actions[i]] != counts[actions[j]] {
			return counts[actions[i]] > counts[actions[j]]
		}
		return actions[i] < actions[j]
	})
	if len(actions) > n {
		actions = actions[:n]
	}
	return actions
}
