// Package agent defines the core domain types for the agent engine:
// tasks, steps, scoring results, and the session-wide agent state.
package agent

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPlanning        TaskStatus = "planning"
	TaskStatusPendingApproval TaskStatus = "pending_approval"
	TaskStatusQueued          TaskStatus = "queued"
	TaskStatusRunning         TaskStatus = "running"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusFailed          TaskStatus = "failed"
	TaskStatusCancelled       TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is a terminal state. Terminal
// statuses are monotonic: a task never transitions out of one.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// StepStatus represents the lifecycle state of a single step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusReady     StepStatus = "ready"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// RiskLevel buckets the assessed risk of a task or step.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// rank orders risk levels for threshold comparisons.
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return 1
}

// AtMost reports whether r is at or below the given threshold.
func (r RiskLevel) AtMost(threshold RiskLevel) bool {
	return r.rank() <= threshold.rank()
}

// RequiresApproval reports whether this risk level forces an approval gate.
func (r RiskLevel) RequiresApproval() bool {
	return r == RiskHigh || r == RiskCritical
}

// ComplexityLevel buckets the estimated complexity of a goal.
type ComplexityLevel string

const (
	ComplexityTrivial  ComplexityLevel = "trivial"
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
	ComplexityExpert   ComplexityLevel = "expert"
)

// ActionType identifies what kind of work a step performs.
type ActionType string

const (
	ActionCreateFile            ActionType = "create_file"
	ActionEditFile              ActionType = "edit_file"
	ActionDeleteFile            ActionType = "delete_file"
	ActionRunTests              ActionType = "run_tests"
	ActionRefactorCode          ActionType = "refactor_code"
	ActionValidateSecurity      ActionType = "validate_security"
	ActionOptimizePerformance   ActionType = "optimize_performance"
	ActionGenerateDocumentation ActionType = "generate_documentation"
	ActionAnalyzeCode           ActionType = "analyze_code"
	ActionAnalyzeDependencies   ActionType = "analyze_dependencies"
	ActionRunCommand            ActionType = "run_command"
	ActionCommitChanges         ActionType = "commit_changes"
)

// MutatesFiles reports whether the action writes to the workspace. Tasks
// containing such actions get trailing validation steps appended.
func (a ActionType) MutatesFiles() bool {
	return a == ActionCreateFile || a == ActionEditFile
}

// Action describes the concrete work a step carries out.
type Action struct {
	Type             ActionType `json:"type"`
	Description      string     `json:"description"`
	Target           string     `json:"target,omitempty"`
	Payload          string     `json:"payload,omitempty"`
	ValidationRules  []string   `json:"validation_rules,omitempty"`
	RiskLevel        RiskLevel  `json:"risk_level"`
	EstimatedTimeMs  int64      `json:"estimated_time_ms"`
	RequiresApproval bool       `json:"requires_approval"`
}

// Step is the smallest schedulable unit of execution. A step may only run
// once every id in Dependencies is completed or skipped.
type Step struct {
	ID               string     `json:"id"`
	Action           Action     `json:"action"`
	Dependencies     []string   `json:"dependencies,omitempty"`
	Status           StepStatus `json:"status"`
	ApprovalRequired bool       `json:"approval_required"`
	RiskLevel        RiskLevel  `json:"risk_level"`
}

// TaskContext is a frozen snapshot of the workspace taken at plan time.
// It is read-only once embedded into a task.
type TaskContext struct {
	WorkspaceRoot     string   `json:"workspace_root,omitempty"`
	ActiveFiles       []string `json:"active_files,omitempty"`
	Selection         string   `json:"selection,omitempty"`
	DependencyCount   int      `json:"dependency_count"`
	Languages         []string `json:"languages,omitempty"`
	SensitiveFiles    []string `json:"sensitive_files,omitempty"`
	TechnicalDebt     int      `json:"technical_debt"`
	VulnerableDeps    int      `json:"vulnerable_deps"`
	ArchitectureNotes string   `json:"architecture_notes,omitempty"`
	QualitySummary    string   `json:"quality_summary,omitempty"`
}

// ComplexityEstimate is the scorer's verdict on how involved a goal is.
// It is derived at plan time and embedded into the task, never persisted
// on its own.
type ComplexityEstimate struct {
	Level           ComplexityLevel `json:"level"`
	Factors         []string        `json:"factors,omitempty"`
	EstimatedTimeMs int64           `json:"estimated_time_ms"`
	Confidence      float64         `json:"confidence"`
	Recommendations []string        `json:"recommendations,omitempty"`
}

// RiskAssessment is the scorer's verdict on how dangerous a goal is.
// Its level drives the task-wide approval gate.
type RiskAssessment struct {
	Level      RiskLevel `json:"level"`
	Factors    []string  `json:"factors,omitempty"`
	Impact     string    `json:"impact,omitempty"`
	Mitigation []string  `json:"mitigation,omitempty"`
	Confidence float64   `json:"confidence"`
}

// TaskProgress tracks step completion counters for a task.
type TaskProgress struct {
	TotalSteps               int     `json:"total_steps"`
	CompletedSteps           int     `json:"completed_steps"`
	FailedSteps              int     `json:"failed_steps"`
	SkippedSteps             int     `json:"skipped_steps"`
	PercentComplete          float64 `json:"percent_complete"`
	EstimatedTimeRemainingMs int64   `json:"estimated_time_remaining_ms"`
}

// TaskMetadata carries bookkeeping fields for a task.
type TaskMetadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   string    `json:"version"`
	Tags      []string  `json:"tags,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// BumpPatch increments the patch component of the semver-like version
// (x.y.z -> x.y.z+1). Malformed versions reset to "1.0.1".
func (m *TaskMetadata) BumpPatch() {
	parts := strings.Split(m.Version, ".")
	if len(parts) != 3 {
		m.Version = "1.0.1"
		return
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		m.Version = "1.0.1"
		return
	}
	m.Version = fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}

// ApprovalRecord captures one resolved approval decision.
type ApprovalRecord struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"` // task id or step id
	Approved  bool      `json:"approved"`
	Auto      bool      `json:"auto"` // resolved by auto-approval policy
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// InterventionRecord captures a manual intervention during execution.
type InterventionRecord struct {
	ID        string    `json:"id"`
	StepID    string    `json:"step_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is a planned, stateful unit of agentic work.
type Task struct {
	ID                  string               `json:"id"`
	Goal                string               `json:"goal"`
	Description         string               `json:"description"`
	Steps               []Step               `json:"steps"`
	Status              TaskStatus           `json:"status"`
	Priority            Priority             `json:"priority"`
	RiskLevel           RiskLevel            `json:"risk_level"`
	EstimatedDurationMs int64                `json:"estimated_duration_ms"`
	ApprovalRequired    bool                 `json:"approval_required"`
	Complexity          ComplexityEstimate   `json:"complexity"`
	Risk                RiskAssessment       `json:"risk"`
	Context             TaskContext          `json:"context"`
	Metadata            TaskMetadata         `json:"metadata"`
	Progress            TaskProgress         `json:"progress"`
	Approvals           []ApprovalRecord     `json:"approvals,omitempty"`
	Interventions       []InterventionRecord `json:"interventions,omitempty"`
}

// StepByID returns a pointer into Steps for the given id, or nil.
func (t *Task) StepByID(id string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}

// RecomputeProgress rebuilds the progress block from the current step
// statuses. Progress is always derived, never trusted from stale writes.
func (t *Task) RecomputeProgress() {
	p := TaskProgress{TotalSteps: len(t.Steps)}
	var remaining int64
	for i := range t.Steps {
		switch t.Steps[i].Status {
		case StepStatusCompleted:
			p.CompletedSteps++
		case StepStatusFailed:
			p.FailedSteps++
		case StepStatusSkipped:
			p.SkippedSteps++
		default:
			remaining += t.Steps[i].Action.EstimatedTimeMs
		}
	}
	settled := p.CompletedSteps + p.FailedSteps + p.SkippedSteps
	if p.TotalSteps > 0 {
		p.PercentComplete = float64(settled) / float64(p.TotalSteps) * 100
	}
	p.EstimatedTimeRemainingMs = remaining
	t.Progress = p
}

// Touch refreshes the metadata update timestamp.
func (t *Task) Touch() {
	t.Metadata.UpdatedAt = time.Now()
}
