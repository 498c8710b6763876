package planner

import (
	"fmt"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
	"github.com/Aladin147/FlowCode-sub002/internal/goal"
)

// actionProfile holds the per-action attributes a generated step carries.
// These are derived independently of the task-level assessment: a task can
// be high risk overall while most of its steps are individually low risk.
type actionProfile struct {
	description string
	risk        agent.RiskLevel
	timeMs      int64
	validation  []string
}

var actionProfiles = map[agent.ActionType]actionProfile{
	agent.ActionCreateFile: {
		description: "Create the requested file(s)",
		risk:        agent.RiskLow,
		timeMs:      30 * 1000,
		validation:  []string{"file exists", "syntax valid"},
	},
	agent.ActionEditFile: {
		description: "Apply the requested edits",
		risk:        agent.RiskMedium,
		timeMs:      60 * 1000,
		validation:  []string{"syntax valid", "no unresolved references"},
	},
	agent.ActionDeleteFile: {
		description: "Delete the requested file(s)",
		risk:        agent.RiskHigh,
		timeMs:      15 * 1000,
		validation:  []string{"no dangling imports"},
	},
	agent.ActionRunTests: {
		description: "Run the test suite",
		risk:        agent.RiskLow,
		timeMs:      2 * 60 * 1000,
	},
	agent.ActionRefactorCode: {
		description: "Refactor the targeted code",
		risk:        agent.RiskMedium,
		timeMs:      5 * 60 * 1000,
		validation:  []string{"behavior preserved", "tests pass"},
	},
	agent.ActionValidateSecurity: {
		description: "Validate security constraints",
		risk:        agent.RiskLow,
		timeMs:      60 * 1000,
	},
	agent.ActionOptimizePerformance: {
		description: "Apply performance optimizations",
		risk:        agent.RiskMedium,
		timeMs:      3 * 60 * 1000,
		validation:  []string{"benchmarks not regressed"},
	},
	agent.ActionGenerateDocumentation: {
		description: "Generate documentation",
		risk:        agent.RiskLow,
		timeMs:      2 * 60 * 1000,
	},
	agent.ActionAnalyzeCode: {
		description: "Analyze the relevant code",
		risk:        agent.RiskLow,
		timeMs:      60 * 1000,
	},
	agent.ActionRunCommand: {
		description: "Run the requested command",
		risk:        agent.RiskHigh,
		timeMs:      30 * 1000,
	},
	agent.ActionCommitChanges: {
		description: "Commit the accumulated changes",
		risk:        agent.RiskMedium,
		timeMs:      10 * 1000,
	},
}

// generateSteps produces one step per required action in discovery order.
// When any step mutates files, two validation steps are appended — a
// security check and a quality gate — each depending on every file-mutating
// step id (not on each other).
func generateSteps(analysis goal.Analysis) []agent.Step {
	var steps []agent.Step
	var mutatingIDs []string

	for i, action := range analysis.RequiredActions {
		profile, ok := actionProfiles[action]
		if !ok {
			profile = actionProfile{
				description: fmt.Sprintf("Perform %s", action),
				risk:        agent.RiskMedium,
				timeMs:      60 * 1000,
			}
		}
		step := newStep(fmt.Sprintf("step-%d", i+1), action, profile, nil)
		if action.MutatesFiles() {
			mutatingIDs = append(mutatingIDs, step.ID)
		}
		steps = append(steps, step)
	}

	if len(mutatingIDs) > 0 {
		security := actionProfiles[agent.ActionValidateSecurity]
		security.description = "Security validation of applied changes"
		steps = append(steps, newStep(
			fmt.Sprintf("step-%d", len(steps)+1),
			agent.ActionValidateSecurity, security, mutatingIDs))

		quality := actionProfiles[agent.ActionRunTests]
		quality.description = "Quality gate: run tests over applied changes"
		steps = append(steps, newStep(
			fmt.Sprintf("step-%d", len(steps)+1),
			agent.ActionRunTests, quality, mutatingIDs))
	}

	return steps
}

func newStep(id string, action agent.ActionType, profile actionProfile, deps []string) agent.Step {
	return agent.Step{
		ID: id,
		Action: agent.Action{
			Type:             action,
			Description:      profile.description,
			ValidationRules:  profile.validation,
			RiskLevel:        profile.risk,
			EstimatedTimeMs:  profile.timeMs,
			RequiresApproval: profile.risk.RequiresApproval(),
		},
		Dependencies:     append([]string(nil), deps...),
		Status:           agent.StepStatusPending,
		ApprovalRequired: profile.risk.RequiresApproval(),
		RiskLevel:        profile.risk,
	}
}
