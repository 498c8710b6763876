package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

// persistLocked writes the whole state document atomically: marshal, write
// to a temp file, rename. Callers hold the write lock.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	s.state.LastSaveTime = time.Now()
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// loadState reads the state document whole. Unknown fields are ignored and
// missing fields are default-filled, so older or newer documents load
// without error. A missing file returns (nil, nil): the caller keeps its
// defaults.
func loadState(path string, fallbackPrefs agent.UserPreferences) (*agent.AgentState, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	st := agent.NewAgentState(fallbackPrefs)
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	// Field-by-field default fill for values older documents may lack.
	if st.SessionStartTime.IsZero() {
		st.SessionStartTime = time.Now()
	}
	def := agent.DefaultPreferences()
	if st.UserPreferences.AutoApprovalLevel == "" {
		st.UserPreferences.AutoApprovalLevel = def.AutoApprovalLevel
	}
	if st.UserPreferences.PreferredComplexityLevel == "" {
		st.UserPreferences.PreferredComplexityLevel = def.PreferredComplexityLevel
	}
	if st.UserPreferences.NotificationLevel == "" {
		st.UserPreferences.NotificationLevel = def.NotificationLevel
	}
	if st.UserPreferences.DefaultApprovalTimeoutMs <= 0 {
		st.UserPreferences.DefaultApprovalTimeoutMs = def.DefaultApprovalTimeoutMs
	}
	if st.UserPreferences.RiskTolerance == "" {
		st.UserPreferences.RiskTolerance = def.RiskTolerance
	}

	// Re-derive bounded collections and the running mean in case the
	// document was produced by a version with different limits.
	if overflow := len(st.ExecutionHistory) - agent.HistoryLimit; overflow > 0 {
		st.ExecutionHistory = st.ExecutionHistory[overflow:]
	}
	if overflow := len(st.LearningMemory) - agent.LearningMemoryLimit; overflow > 0 {
		st.LearningMemory = st.LearningMemory[overflow:]
	}
	st.AverageTaskDurationMs = averageSettledDuration(st.ExecutionHistory)

	for _, t := range st.TaskQueue {
		t.RecomputeProgress()
	}
	if st.CurrentTask != nil {
		st.CurrentTask.RecomputeProgress()
	}

	return st, nil
}
