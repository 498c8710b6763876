package agent

import "time"

// Bounds for the append-only collections held in AgentState.
const (
	HistoryLimit        = 1000
	LearningMemoryLimit = 500
)

// AutoApprovalLevel is the preference threshold below which approval gates
// resolve automatically instead of waiting for a human.
type AutoApprovalLevel string

const (
	AutoApprovalNone   AutoApprovalLevel = "none"
	AutoApprovalLow    AutoApprovalLevel = "low"
	AutoApprovalMedium AutoApprovalLevel = "medium"
	AutoApprovalHigh   AutoApprovalLevel = "high"
)

// Threshold maps the auto-approval level to the highest risk level it
// covers. The ok result is false for AutoApprovalNone.
func (l AutoApprovalLevel) Threshold() (RiskLevel, bool) {
	switch l {
	case AutoApprovalLow:
		return RiskLow, true
	case AutoApprovalMedium:
		return RiskMedium, true
	case AutoApprovalHigh:
		return RiskHigh, true
	}
	return "", false
}

// RiskTolerance expresses how aggressively the user wants the agent to act.
type RiskTolerance string

const (
	RiskToleranceConservative RiskTolerance = "conservative"
	RiskToleranceBalanced     RiskTolerance = "balanced"
	RiskToleranceAggressive   RiskTolerance = "aggressive"
)

// UserPreferences are sourced from external configuration and live-patched
// when that configuration changes.
type UserPreferences struct {
	AutoApprovalLevel        AutoApprovalLevel `json:"auto_approval_level"`
	PreferredComplexityLevel ComplexityLevel   `json:"preferred_complexity_level"`
	NotificationLevel        string            `json:"notification_level"`
	DefaultApprovalTimeoutMs int64             `json:"default_approval_timeout_ms"`
	LearningEnabled          bool              `json:"learning_enabled"`
	AdaptiveBehavior         bool              `json:"adaptive_behavior"`
	RiskTolerance            RiskTolerance     `json:"risk_tolerance"`
}

// DefaultPreferences returns the preference set used when no configuration
// is available.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		AutoApprovalLevel:        AutoApprovalNone,
		PreferredComplexityLevel: ComplexityModerate,
		NotificationLevel:        "normal",
		DefaultApprovalTimeoutMs: 5 * 60 * 1000,
		LearningEnabled:          true,
		AdaptiveBehavior:         true,
		RiskTolerance:            RiskToleranceBalanced,
	}
}

// ExecutionStepRecord is one append-only entry in the execution history.
type ExecutionStepRecord struct {
	TaskID           string     `json:"task_id"`
	StepID           string     `json:"step_id"`
	Timestamp        time.Time  `json:"timestamp"`
	Status           StepStatus `json:"status"`
	DurationMs       int64      `json:"duration_ms"`
	Success          bool       `json:"success"`
	Error            string     `json:"error,omitempty"`
	Output           string     `json:"output,omitempty"`
	UserIntervention string     `json:"user_intervention,omitempty"`
}

// LearningDatum is a recorded pattern retained to inform future planning.
type LearningDatum struct {
	Pattern   string    `json:"pattern"`
	Outcome   string    `json:"outcome"`
	TaskID    string    `json:"task_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentState is the single authoritative session state. It is mutated
// exclusively through the state store's operations.
type AgentState struct {
	CurrentTask           *Task                 `json:"current_task,omitempty"`
	TaskQueue             []*Task               `json:"task_queue,omitempty"`
	ExecutionHistory      []ExecutionStepRecord `json:"execution_history,omitempty"`
	UserPreferences       UserPreferences       `json:"user_preferences"`
	LearningMemory        []LearningDatum       `json:"learning_memory,omitempty"`
	SessionStartTime      time.Time             `json:"session_start_time"`
	TotalTasksCompleted   int                   `json:"total_tasks_completed"`
	TotalTasksFailed      int                   `json:"total_tasks_failed"`
	AverageTaskDurationMs float64               `json:"average_task_duration_ms"`
	LastSaveTime          time.Time             `json:"last_save_time"`
}

// NewAgentState returns a fresh state with the given preferences applied.
func NewAgentState(prefs UserPreferences) *AgentState {
	return &AgentState{
		UserPreferences:  prefs,
		SessionStartTime: time.Now(),
	}
}
