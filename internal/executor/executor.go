// Package executor provides execution collaborators for the coordinator.
// The simulated executor is the default backend: it performs no real work
// but honors step timing estimates and a scriptable outcome table, which is
// enough to exercise planning, scheduling and persistence end to end.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
	"github.com/Aladin147/FlowCode-sub002/internal/coordinator"
	"github.com/Aladin147/FlowCode-sub002/internal/logger"
)

// Outcome scripts the simulated result for one step or action type.
type Outcome struct {
	Fail      bool
	Retryable bool
	// FailTimes fails the first N attempts and succeeds afterwards.
	// Combined with Retryable it exercises the retry path.
	FailTimes int
	Error     string
}

// Simulated executes steps by sleeping a fraction of the step's estimated
// time. Outcomes default to success and can be overridden per step id or
// per action type. Execution is idempotent: re-running a step yields the
// same scripted result unless FailTimes is in play.
type Simulated struct {
	// Latency scales the simulated duration relative to the step's
	// estimate. Zero means no sleep at all, which keeps tests fast.
	Latency float64

	log *logger.Logger

	mu       sync.Mutex
	byStep   map[string]*Outcome
	byAction map[agent.ActionType]*Outcome
	attempts map[string]int
}

// NewSimulated returns a simulated executor with no scripted failures.
func NewSimulated(log *logger.Logger) *Simulated {
	if log == nil {
		log = logger.Global()
	}
	return &Simulated{
		log:      log.WithPrefix("executor"),
		byStep:   make(map[string]*Outcome),
		byAction: make(map[agent.ActionType]*Outcome),
		attempts: make(map[string]int),
	}
}

// ScriptStep overrides the outcome for one step id.
func (s *Simulated) ScriptStep(stepID string, out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byStep[stepID] = &out
}

// ScriptAction overrides the outcome for every step of an action type.
func (s *Simulated) ScriptAction(action agent.ActionType, out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAction[action] = &out
}

// Execute implements coordinator.Executor.
func (s *Simulated) Execute(ctx context.Context, step agent.Step, taskCtx agent.TaskContext) (*coordinator.ExecutionResult, error) {
	if d := s.simulatedDelay(step); d > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.attempts[step.ID]++
	attempt := s.attempts[step.ID]
	out := s.byStep[step.ID]
	if out == nil {
		out = s.byAction[step.Action.Type]
	}
	s.mu.Unlock()

	if out != nil {
		if out.FailTimes > 0 {
			if attempt <= out.FailTimes {
				s.log.Debug("step %s scripted failure, attempt %d/%d", step.ID, attempt, out.FailTimes)
				return &coordinator.ExecutionResult{
					Error:     scriptedError(out, step),
					Retryable: out.Retryable,
				}, nil
			}
		} else if out.Fail {
			return &coordinator.ExecutionResult{
				Error:     scriptedError(out, step),
				Retryable: out.Retryable,
			}, nil
		}
	}

	return &coordinator.ExecutionResult{
		Success: true,
		Output:  fmt.Sprintf("%s: %s", step.Action.Type, step.Action.Description),
	}, nil
}

// Attempts reports how many times a step has been executed.
func (s *Simulated) Attempts(stepID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[stepID]
}

func (s *Simulated) simulatedDelay(step agent.Step) time.Duration {
	if s.Latency <= 0 {
		return 0
	}
	return time.Duration(float64(step.Action.EstimatedTimeMs)*s.Latency) * time.Millisecond
}

func scriptedError(out *Outcome, step agent.Step) string {
	if out.Error != "" {
		return out.Error
	}
	return fmt.Sprintf("simulated failure of %s", step.ID)
}

// Func adapts a plain function to the coordinator's execution interface.
type Func func(ctx context.Context, step agent.Step, taskCtx agent.TaskContext) (*coordinator.ExecutionResult, error)

func (f Func) Execute(ctx context.Context, step agent.Step, taskCtx agent.TaskContext) (*coordinator.ExecutionResult, error) {
	return f(ctx, step, taskCtx)
}
