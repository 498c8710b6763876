// Package coordinator drives tasks to completion: it gates on approvals,
// schedules steps along the dependency graph in concurrent waves, and
// writes every transition through the state store before moving on.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
	"github.com/Aladin147/FlowCode-sub002/internal/logger"
	"github.com/Aladin147/FlowCode-sub002/internal/state"
)

// ExecutionResult is the execution collaborator's verdict on one step.
type ExecutionResult struct {
	Success   bool
	Output    string
	Error     string
	Retryable bool
}

// Executor performs the concrete work of a step. Steps may be retried, so
// implementations must be idempotent-safe.
type Executor interface {
	Execute(ctx context.Context, step agent.Step, taskCtx agent.TaskContext) (*ExecutionResult, error)
}

// ApprovalRequest asks the approval collaborator for a go/no-go decision
// on a task or an individual step.
type ApprovalRequest struct {
	ID          string
	TaskID      string
	StepID      string // empty for a task-level gate
	RiskLevel   agent.RiskLevel
	Description string
}

// ApprovalDecision is the collaborator's answer.
type ApprovalDecision struct {
	Approved     bool
	Intervention string
}

// Approver resolves approval requests. It must resolve exactly once per
// request, within the context deadline or via the context's cancellation.
type Approver interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error)

func (f ApproverFunc) RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error) {
	return f(ctx, req)
}

// Config holds coordinator tuning knobs.
type Config struct {
	// MaxConcurrentSteps bounds how many independent steps of one task may
	// run at the same time.
	MaxConcurrentSteps int
	// MaxStepRetries bounds re-attempts of a retryable step failure.
	MaxStepRetries int
	// StepTimeoutFactor multiplies a step's estimated time to obtain its
	// execution deadline.
	StepTimeoutFactor float64
	// PollInterval is how often the queue loop checks for new tasks.
	PollInterval time.Duration
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSteps: 3,
		MaxStepRetries:     2,
		StepTimeoutFactor:  3,
		PollInterval:       time.Second,
	}
}

const minStepTimeout = 30 * time.Second

// Coordinator executes one task at a time from the queue. Within a task,
// independent steps run concurrently up to the configured limit.
type Coordinator struct {
	store    *state.Store
	executor Executor
	approver Approver
	cfg      Config
	log      *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates a coordinator. The approver may be nil; every gate then
// resolves through the auto-approval policy.
func New(store *state.Store, executor Executor, approver Approver, cfg Config, log *logger.Logger) *Coordinator {
	if cfg.MaxConcurrentSteps <= 0 {
		cfg.MaxConcurrentSteps = DefaultConfig().MaxConcurrentSteps
	}
	if cfg.StepTimeoutFactor <= 0 {
		cfg.StepTimeoutFactor = DefaultConfig().StepTimeoutFactor
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if log == nil {
		log = logger.Global()
	}
	return &Coordinator{
		store:    store,
		executor: executor,
		approver: approver,
		cfg:      cfg,
		log:      log.WithPrefix("coordinator"),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Run drains the task queue until ctx is cancelled, executing one task at
// a time in FIFO order. Store reads stay responsive throughout.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			task, err := c.store.PopNextTask()
			if err != nil {
				c.log.Error("popping next task failed: %v", err)
				continue
			}
			if task == nil {
				continue
			}
			if _, err := c.ExecuteTask(ctx, task); err != nil {
				c.log.Error("task %s finished with error: %v", task.ID, err)
			}
		}
	}
}

// Cancel requests cancellation of a running task. In-flight steps finish
// their current unit of work; no new waves start.
func (c *Coordinator) Cancel(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cancel, ok := c.cancels[taskID]
	if ok {
		cancel()
	}
	return ok
}

// ExecuteTask drives a single task through its state machine to a
// terminal status and returns the settled task.
func (c *Coordinator) ExecuteTask(ctx context.Context, task *agent.Task) (*agent.Task, error) {
	if task == nil {
		return nil, fmt.Errorf("execute: task is nil")
	}
	task = task.Clone()

	if err := c.store.SetCurrentTask(task); err != nil {
		return nil, fmt.Errorf("execute %s: staging task: %w", task.ID, err)
	}

	// Fail fast on an inconsistent plan, before any gate or step runs.
	if err := validateStepDAG(task.Steps); err != nil {
		c.log.Error("task %s rejected: %v", task.ID, err)
		c.settle(task, agent.TaskStatusFailed)
		return task, err
	}

	// Task-level approval gate.
	if task.ApprovalRequired {
		c.setTaskStatus(task, agent.TaskStatusPendingApproval)
		approved := c.resolveApproval(ctx, ApprovalRequest{
			ID:          uuid.New().String(),
			TaskID:      task.ID,
			RiskLevel:   task.RiskLevel,
			Description: task.Description,
		})
		if !approved {
			c.log.Info("task %s rejected at the approval gate", task.ID)
			c.settle(task, agent.TaskStatusCancelled)
			return task, nil
		}
	} else {
		c.setTaskStatus(task, agent.TaskStatusQueued)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancels[task.ID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, task.ID)
		c.mu.Unlock()
	}()

	c.setTaskStatus(task, agent.TaskStatusRunning)
	finalStatus := c.executeWaves(runCtx, task)
	c.settle(task, finalStatus)

	c.log.Info("task %s settled: %s (%d/%d steps completed)",
		task.ID, finalStatus, task.Progress.CompletedSteps, task.Progress.TotalSteps)
	return task, nil
}

// setTaskStatus updates the in-memory task and writes the transition
// through the store.
func (c *Coordinator) setTaskStatus(task *agent.Task, status agent.TaskStatus) {
	task.Status = status
	task.Touch()
	if err := c.store.UpdateTaskStatus(task.ID, status); err != nil {
		c.log.Error("persisting status %s for task %s failed: %v", status, task.ID, err)
	}
}

func (c *Coordinator) settle(task *agent.Task, status agent.TaskStatus) {
	task.RecomputeProgress()
	c.setTaskStatus(task, status)
}

// resolveApproval asks the approver within the preference-driven timeout.
// On timeout, collaborator error, or a missing approver, the auto-approval
// policy decides: none rejects, otherwise approve iff the risk is at or
// below the configured threshold. The decision is recorded on the task.
func (c *Coordinator) resolveApproval(ctx context.Context, req ApprovalRequest) bool {
	prefs := c.store.Preferences()
	timeout := time.Duration(prefs.DefaultApprovalTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	subject := req.TaskID
	if req.StepID != "" {
		subject = req.StepID
	}

	rec := agent.ApprovalRecord{
		ID:        req.ID,
		Subject:   subject,
		Timestamp: time.Now(),
	}

	if c.approver != nil {
		approvalCtx, cancel := context.WithTimeout(ctx, timeout)
		decision, err := c.approver.RequestApproval(approvalCtx, req)
		cancel()
		if err == nil {
			rec.Approved = decision.Approved
			rec.Reason = decision.Intervention
			c.recordApproval(req.TaskID, rec)
			return decision.Approved
		}
		c.log.Warn("approval for %s unresolved (%v), applying auto-approval policy", subject, err)
	}

	threshold, ok := prefs.AutoApprovalLevel.Threshold()
	approved := ok && req.RiskLevel.AtMost(threshold)
	rec.Approved = approved
	rec.Auto = true
	if approved {
		rec.Reason = fmt.Sprintf("auto-approved: %s risk within %s threshold",
			req.RiskLevel, prefs.AutoApprovalLevel)
	} else {
		rec.Reason = fmt.Sprintf("auto-rejected: %s risk above %s threshold",
			req.RiskLevel, prefs.AutoApprovalLevel)
	}
	c.recordApproval(req.TaskID, rec)
	return approved
}

func (c *Coordinator) recordApproval(taskID string, rec agent.ApprovalRecord) {
	if err := c.store.RecordApproval(taskID, rec); err != nil {
		c.log.Error("recording approval for %s failed: %v", taskID, err)
	}
}
