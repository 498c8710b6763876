package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

func planTask(t *testing.T, goal string) *agent.Task {
	t.Helper()
	p := New(nil, nil, testLogger())
	task, err := p.DecomposeGoal(context.Background(), goal)
	require.NoError(t, err)
	return task
}

func TestAdaptPlanUnrecognizedFeedback(t *testing.T) {
	p := New(nil, nil, testLogger())
	task := planTask(t, "Create a helper file")
	before := task.Clone()

	_, err := p.AdaptPlan(task, "sounds great, carry on")
	require.Error(t, err)
	assert.Equal(t, before, task, "failed adaptation must leave the task untouched")
}

func TestAdaptPlanNilTask(t *testing.T) {
	p := New(nil, nil, testLogger())
	_, err := p.AdaptPlan(nil, "too risky")
	assert.Error(t, err)
}

func TestAdaptPlanReduceRisk(t *testing.T) {
	p := New(nil, nil, testLogger())
	task := planTask(t, "Remove the legacy loader")
	require.False(t, task.ApprovalRequired)

	adapted, err := p.AdaptPlan(task, "this feels too risky")
	require.NoError(t, err)

	assert.True(t, adapted.ApprovalRequired)
	for _, s := range adapted.Steps {
		if s.RiskLevel == agent.RiskHigh || s.RiskLevel == agent.RiskCritical {
			assert.True(t, s.ApprovalRequired, "high-risk step %s must be gated", s.ID)
		}
	}
	assert.False(t, task.ApprovalRequired, "input task must not be mutated")
	assert.Equal(t, "1.0.1", adapted.Metadata.Version)
}

func TestAdaptPlanBreakDown(t *testing.T) {
	p := New(nil, nil, testLogger())
	task := planTask(t, "Refactor the payment module")

	// Largest pending step is the refactor itself.
	largest := ""
	var max int64 = -1
	for _, s := range task.Steps {
		if s.Action.EstimatedTimeMs > max {
			max = s.Action.EstimatedTimeMs
			largest = s.ID
		}
	}

	adapted, err := p.AdaptPlan(task, "please break down the big steps")
	require.NoError(t, err)

	assert.Len(t, adapted.Steps, len(task.Steps)+2, "one step becomes three")
	assert.Nil(t, adapted.StepByID(largest), "split step id must disappear")

	first := adapted.StepByID(largest + "-1")
	second := adapted.StepByID(largest + "-2")
	third := adapted.StepByID(largest + "-3")
	require.NotNil(t, first)
	require.NotNil(t, second)
	require.NotNil(t, third)
	assert.Equal(t, []string{first.ID}, second.Dependencies)
	assert.Equal(t, []string{second.ID}, third.Dependencies)

	// Dependents of the original step now wait for the verify phase.
	for _, s := range adapted.Steps {
		for _, dep := range s.Dependencies {
			assert.NotEqual(t, largest, dep, "stale dependency on the split step")
		}
	}
	assert.Equal(t, adapted.Progress.TotalSteps, len(adapted.Steps))
}

func TestAdaptPlanBreakDownSkipsStartedSteps(t *testing.T) {
	p := New(nil, nil, testLogger())
	task := planTask(t, "Refactor the payment module")
	for i := range task.Steps {
		task.Steps[i].Status = agent.StepStatusCompleted
	}

	adapted, err := p.AdaptPlan(task, "make the steps smaller")
	require.NoError(t, err)
	assert.Len(t, adapted.Steps, len(task.Steps), "settled steps are never split")
}

func TestAdaptPlanAddSteps(t *testing.T) {
	p := New(nil, nil, testLogger())
	task := planTask(t, "Edit the config loader")

	adapted, err := p.AdaptPlan(task, "also include a review of error handling")
	require.NoError(t, err)
	require.Len(t, adapted.Steps, len(task.Steps)+1)

	review := adapted.Steps[len(adapted.Steps)-1]
	assert.Equal(t, agent.ActionAnalyzeCode, review.Action.Type)
	assert.NotEmpty(t, review.Dependencies, "review depends on the previous leaves")
	for _, dep := range review.Dependencies {
		assert.NotNil(t, adapted.StepByID(dep))
	}
}

func TestAdaptPlanCombinedFeedback(t *testing.T) {
	p := New(nil, nil, testLogger())
	task := planTask(t, "Delete the old importer")

	adapted, err := p.AdaptPlan(task, "too risky, break down the work and add a review")
	require.NoError(t, err)

	assert.True(t, adapted.ApprovalRequired)
	assert.Greater(t, len(adapted.Steps), len(task.Steps))
	assert.Equal(t, "1.0.1", adapted.Metadata.Version, "one adaptation call bumps once")
}
