// Package planner turns free-text goals into supervised, executable tasks
// and adapts existing plans from user feedback.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
	"github.com/Aladin147/FlowCode-sub002/internal/goal"
	"github.com/Aladin147/FlowCode-sub002/internal/logger"
)

// ErrEmptyGoal is returned when a goal contains no text to plan from.
var ErrEmptyGoal = errors.New("goal is empty")

// ContextProvider supplies the frozen workspace snapshot embedded into a
// task at plan time. Implementations must return a read-only snapshot, not
// a live handle.
type ContextProvider interface {
	Snapshot(ctx context.Context) (agent.TaskContext, error)
}

// StaticContext is a ContextProvider returning a fixed snapshot. Used by
// the CLI and in tests.
type StaticContext struct {
	Context agent.TaskContext
}

func (s StaticContext) Snapshot(context.Context) (agent.TaskContext, error) {
	return s.Context, nil
}

// Planner orchestrates the analyzer, the scorers, and context gathering to
// produce tasks.
type Planner struct {
	analyzer goal.Analyzer
	contexts ContextProvider
	log      *logger.Logger

	counter atomic.Int64
}

// New creates a planner. A nil analyzer defaults to the rule analyzer; a
// nil provider defaults to an empty static snapshot.
func New(analyzer goal.Analyzer, contexts ContextProvider, log *logger.Logger) *Planner {
	if analyzer == nil {
		analyzer = goal.RuleAnalyzer{}
	}
	if contexts == nil {
		contexts = StaticContext{}
	}
	if log == nil {
		log = logger.Global()
	}
	return &Planner{
		analyzer: analyzer,
		contexts: contexts,
		log:      log.WithPrefix("planner"),
	}
}

// DecomposeGoal produces a fully assembled task for the given goal.
func (p *Planner) DecomposeGoal(ctx context.Context, goalText string) (*agent.Task, error) {
	if strings.TrimSpace(goalText) == "" {
		return nil, ErrEmptyGoal
	}

	analysis := p.analyzer.Analyze(ctx, goalText)

	taskCtx, err := p.contexts.Snapshot(ctx)
	if err != nil {
		// A missing context snapshot degrades the estimate, it does not
		// block planning.
		p.log.Warn("context snapshot failed, planning without context: %v", err)
		taskCtx = agent.TaskContext{}
	}

	complexity := goal.EstimateComplexity(goalText, analysis, taskCtx)
	risk := goal.AssessRisks(analysis, taskCtx)

	steps := generateSteps(analysis)
	now := time.Now()

	task := &agent.Task{
		ID:               p.nextTaskID(now),
		Goal:             goalText,
		Description:      describeTask(analysis, complexity),
		Steps:            steps,
		Status:           agent.TaskStatusPlanning,
		Priority:         priorityFor(complexity.Level),
		RiskLevel:        risk.Level,
		ApprovalRequired: risk.Level.RequiresApproval(),
		Complexity:       complexity,
		Risk:             risk,
		Context:          taskCtx,
		Metadata: agent.TaskMetadata{
			CreatedAt: now,
			UpdatedAt: now,
			Version:   "1.0.0",
			Source:    "planner",
		},
	}
	task.EstimatedDurationMs = totalEstimatedMs(steps)
	task.RecomputeProgress()

	p.log.Info("decomposed goal into task %s: %d steps, complexity=%s risk=%s",
		task.ID, len(task.Steps), complexity.Level, risk.Level)
	return task, nil
}

// EstimateComplexity is the standalone scoring entry point. It re-runs
// analysis and context gathering internally; the planner's own AnalyzeGoal
// uses localComplexityHeuristic instead, so the two never recurse into each
// other.
func (p *Planner) EstimateComplexity(ctx context.Context, goalText string) agent.ComplexityEstimate {
	if strings.TrimSpace(goalText) == "" {
		p.log.Warn("estimating complexity for empty goal, using fallback")
		return goal.FallbackComplexity()
	}
	analysis := p.analyzer.Analyze(ctx, goalText)
	taskCtx, err := p.contexts.Snapshot(ctx)
	if err != nil {
		p.log.Warn("context snapshot failed, estimating without context: %v", err)
		taskCtx = agent.TaskContext{}
	}
	return goal.EstimateComplexity(goalText, analysis, taskCtx)
}

// AnalyzeGoal classifies a goal and attaches a cheap local complexity
// estimate. It deliberately does not call EstimateComplexity.
func (p *Planner) AnalyzeGoal(ctx context.Context, goalText string) (goal.Analysis, agent.ComplexityEstimate) {
	analysis := p.analyzer.Analyze(ctx, goalText)
	return analysis, localComplexityHeuristic(goalText, analysis)
}

// localComplexityHeuristic scores an analysis without a workspace snapshot.
// Same scope/action/risk heuristics as the full estimate, empty context.
func localComplexityHeuristic(goalText string, analysis goal.Analysis) agent.ComplexityEstimate {
	return goal.EstimateComplexity(goalText, analysis, agent.TaskContext{})
}

func (p *Planner) nextTaskID(now time.Time) string {
	return fmt.Sprintf("task-%d-%d", p.counter.Add(1), now.UnixMilli())
}

func describeTask(analysis goal.Analysis, complexity agent.ComplexityEstimate) string {
	actions := make([]string, len(analysis.RequiredActions))
	for i, a := range analysis.RequiredActions {
		actions[i] = string(a)
	}
	return fmt.Sprintf("%s-scope %s work: %s",
		analysis.Scope, complexity.Level, strings.Join(actions, ", "))
}

func priorityFor(level agent.ComplexityLevel) agent.Priority {
	if level == agent.ComplexityExpert {
		return agent.PriorityHigh
	}
	return agent.PriorityMedium
}

func totalEstimatedMs(steps []agent.Step) int64 {
	var total int64
	for i := range steps {
		total += steps[i].Action.EstimatedTimeMs
	}
	return total
}
