package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

func stepsOf(deps map[string][]string, order ...string) []agent.Step {
	steps := make([]agent.Step, len(order))
	for i, id := range order {
		steps[i] = agent.Step{ID: id, Dependencies: deps[id], Status: agent.StepStatusPending}
	}
	return steps
}

func TestValidateStepDAG(t *testing.T) {
	tests := []struct {
		name  string
		steps []agent.Step
		ok    bool
	}{
		{"empty", nil, true},
		{"single", stepsOf(nil, "a"), true},
		{
			"chain",
			stepsOf(map[string][]string{"b": {"a"}, "c": {"b"}}, "a", "b", "c"),
			true,
		},
		{
			"diamond",
			stepsOf(map[string][]string{"b": {"a"}, "c": {"a"}, "d": {"b", "c"}}, "a", "b", "c", "d"),
			true,
		},
		{
			"self loop",
			stepsOf(map[string][]string{"a": {"a"}}, "a"),
			false,
		},
		{
			"two cycle",
			stepsOf(map[string][]string{"a": {"b"}, "b": {"a"}}, "a", "b"),
			false,
		},
		{
			"cycle behind valid prefix",
			stepsOf(map[string][]string{"b": {"a"}, "c": {"d"}, "d": {"c"}}, "a", "b", "c", "d"),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStepDAG(tt.steps)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateStepDAGUnknownDependency(t *testing.T) {
	err := validateStepDAG(stepsOf(map[string][]string{"a": {"ghost"}}, "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidateStepDAGCyclePath(t *testing.T) {
	err := validateStepDAG(stepsOf(map[string][]string{"a": {"b"}, "b": {"a"}}, "a", "b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular step dependency")
	assert.Contains(t, err.Error(), "->")
}

func TestTransitiveDependents(t *testing.T) {
	steps := stepsOf(map[string][]string{
		"b": {"a"},
		"c": {"b"},
		"d": {"a"},
		"e": nil,
	}, "a", "b", "c", "d", "e")

	got := transitiveDependents(steps, "a")
	assert.Equal(t, map[string]bool{"b": true, "c": true, "d": true}, got)

	assert.Empty(t, transitiveDependents(steps, "e"))
	assert.Equal(t, map[string]bool{"c": true}, transitiveDependents(steps, "b"))
}
