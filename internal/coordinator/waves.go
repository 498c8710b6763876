package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
	"github.com/Aladin147/FlowCode-sub002/internal/state"
)

// stepOutcome is what a worker reports back to the scheduling loop.
type stepOutcome struct {
	stepID       string
	status       agent.StepStatus
	durationMs   int64
	output       string
	errMsg       string
	intervention string
}

// executeWaves schedules the task's steps in dependency order. Steps whose
// dependencies are all settled run concurrently up to the worker limit;
// each settled step is written through the store before the loop launches
// anything new. Returns the terminal status the task should settle to.
func (c *Coordinator) executeWaves(ctx context.Context, task *agent.Task) agent.TaskStatus {
	results := make(chan stepOutcome)
	launched := make(map[string]bool, len(task.Steps))
	running := 0
	cancelled := false

	for {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			c.log.Info("task %s cancelled, letting %d in-flight step(s) finish", task.ID, running)
		}

		if !cancelled {
			for i := range task.Steps {
				if running >= c.cfg.MaxConcurrentSteps {
					break
				}
				step := &task.Steps[i]
				if step.Status != agent.StepStatusPending || launched[step.ID] {
					continue
				}
				if !depsSettled(task, step) {
					continue
				}

				step.Status = agent.StepStatusReady
				c.persistStepStatus(task.ID, step.ID, agent.StepStatusReady)
				launched[step.ID] = true
				running++
				go c.runStep(ctx, task.ID, *step, task.Context, results)
			}
		}

		if running == 0 {
			break
		}

		outcome := <-results
		running--
		c.applyOutcome(task, outcome)
	}

	if cancelled {
		if allSettled(task) && task.Progress.FailedSteps == 0 {
			return agent.TaskStatusCompleted
		}
		return agent.TaskStatusCancelled
	}
	if task.Progress.FailedSteps > 0 {
		return agent.TaskStatusFailed
	}
	return agent.TaskStatusCompleted
}

// depsSettled reports whether every dependency of the step is completed or
// skipped.
func depsSettled(task *agent.Task, step *agent.Step) bool {
	for _, dep := range step.Dependencies {
		d := task.StepByID(dep)
		if d == nil {
			return false
		}
		if d.Status != agent.StepStatusCompleted && d.Status != agent.StepStatusSkipped {
			return false
		}
	}
	return true
}

func allSettled(task *agent.Task) bool {
	for i := range task.Steps {
		switch task.Steps[i].Status {
		case agent.StepStatusCompleted, agent.StepStatusFailed, agent.StepStatusSkipped:
		default:
			return false
		}
	}
	return true
}

// applyOutcome records a settled step and, on failure, skips everything
// that transitively depended on it. All writes go through the store before
// the scheduling loop continues.
func (c *Coordinator) applyOutcome(task *agent.Task, outcome stepOutcome) {
	step := task.StepByID(outcome.stepID)
	if step == nil {
		c.log.Error("outcome for unknown step %s of task %s", outcome.stepID, task.ID)
		return
	}

	step.Status = outcome.status
	c.persistStepStatus(task.ID, step.ID, outcome.status)
	c.recordStep(agent.ExecutionStepRecord{
		TaskID:           task.ID,
		StepID:           step.ID,
		Timestamp:        time.Now(),
		Status:           outcome.status,
		DurationMs:       outcome.durationMs,
		Success:          outcome.status == agent.StepStatusCompleted,
		Error:            outcome.errMsg,
		Output:           outcome.output,
		UserIntervention: outcome.intervention,
	})

	if outcome.status == agent.StepStatusFailed {
		for depID := range transitiveDependents(task.Steps, step.ID) {
			dep := task.StepByID(depID)
			if dep == nil || dep.Status != agent.StepStatusPending {
				continue
			}
			dep.Status = agent.StepStatusSkipped
			c.persistStepStatus(task.ID, depID, agent.StepStatusSkipped)
			c.recordStep(agent.ExecutionStepRecord{
				TaskID:    task.ID,
				StepID:    depID,
				Timestamp: time.Now(),
				Status:    agent.StepStatusSkipped,
				Error:     "skipped: dependency " + step.ID + " failed",
			})
		}
	}

	task.RecomputeProgress()
	p := task.Progress
	if err := c.store.UpdateTaskProgress(task.ID, state.ProgressPatch{
		CompletedSteps:           &p.CompletedSteps,
		FailedSteps:              &p.FailedSteps,
		SkippedSteps:             &p.SkippedSteps,
		EstimatedTimeRemainingMs: &p.EstimatedTimeRemainingMs,
	}); err != nil {
		c.log.Error("persisting progress of task %s failed: %v", task.ID, err)
	}
}

func (c *Coordinator) persistStepStatus(taskID, stepID string, status agent.StepStatus) {
	if err := c.store.UpdateStepStatus(taskID, stepID, status); err != nil {
		c.log.Error("persisting step %s status %s failed: %v", stepID, status, err)
	}
}

func (c *Coordinator) recordStep(rec agent.ExecutionStepRecord) {
	if err := c.store.RecordExecutionStep(rec); err != nil {
		c.log.Error("recording step %s of task %s failed: %v", rec.StepID, rec.TaskID, err)
	}
}

// runStep executes a single step in a worker goroutine: optional approval
// gate, bounded execution with retry-and-backoff for retryable failures,
// and exactly one outcome sent back to the scheduler.
func (c *Coordinator) runStep(ctx context.Context, taskID string, step agent.Step, taskCtx agent.TaskContext, results chan<- stepOutcome) {
	start := time.Now()
	outcome := stepOutcome{stepID: step.ID}

	defer func() {
		outcome.durationMs = time.Since(start).Milliseconds()
		results <- outcome
	}()

	if step.ApprovalRequired {
		approved := c.resolveApproval(ctx, ApprovalRequest{
			ID:          uuid.New().String(),
			TaskID:      taskID,
			StepID:      step.ID,
			RiskLevel:   step.RiskLevel,
			Description: step.Action.Description,
		})
		if !approved {
			outcome.status = agent.StepStatusFailed
			outcome.errMsg = "step approval rejected"
			return
		}
	}

	if c.executor == nil {
		outcome.status = agent.StepStatusFailed
		outcome.errMsg = "no executor configured"
		return
	}

	c.persistStepStatus(taskID, step.ID, agent.StepStatusRunning)

	timeout := time.Duration(float64(step.Action.EstimatedTimeMs)*c.cfg.StepTimeoutFactor) * time.Millisecond
	if timeout < minStepTimeout {
		timeout = minStepTimeout
	}

	bo := backoff.NewExponentialBackOff()
	attempts := 0
	for {
		success, errMsg, output, retryable := c.executeOnce(ctx, step, taskCtx, timeout)
		if success {
			outcome.status = agent.StepStatusCompleted
			outcome.output = output
			return
		}
		if !retryable || attempts >= c.cfg.MaxStepRetries {
			outcome.status = agent.StepStatusFailed
			outcome.errMsg = errMsg
			outcome.output = output
			return
		}

		attempts++
		wait := bo.NextBackOff()
		c.log.Warn("step %s of task %s failed (%s), retry %d/%d in %s",
			step.ID, taskID, errMsg, attempts, c.cfg.MaxStepRetries, wait)
		select {
		case <-ctx.Done():
			outcome.status = agent.StepStatusFailed
			outcome.errMsg = "cancelled during retry backoff: " + errMsg
			return
		case <-time.After(wait):
		}
	}
}

// executeOnce runs one bounded attempt against the execution collaborator.
func (c *Coordinator) executeOnce(ctx context.Context, step agent.Step, taskCtx agent.TaskContext, timeout time.Duration) (success bool, errMsg, output string, retryable bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := c.executor.Execute(attemptCtx, step, taskCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return false, "step timed out after " + timeout.String(), "", false
		}
		return false, err.Error(), "", false
	}
	if res == nil {
		return false, "executor returned no result", "", false
	}
	if res.Success {
		return true, "", res.Output, false
	}
	errMsg = res.Error
	if errMsg == "" {
		errMsg = "step reported failure"
	}
	return false, errMsg, res.Output, res.Retryable
}
