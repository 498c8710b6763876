package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

// adaptation identifies one plan edit derived from feedback.
type adaptation string

const (
	adaptReduceRisk adaptation = "reduce_risk"
	adaptBreakDown  adaptation = "break_down_steps"
	adaptAddSteps   adaptation = "add_steps"
)

// feedbackRules map feedback phrases to adaptations; all matching rules
// apply.
var feedbackRules = []struct {
	triggers []string
	adapt    adaptation
}{
	{[]string{"too risky"}, adaptReduceRisk},
	{[]string{"break down", "smaller"}, adaptBreakDown},
	{[]string{"add", "include"}, adaptAddSteps},
}

// AdaptPlan applies feedback to a task and returns the adapted copy. The
// input task is never mutated; on error the caller's task is untouched and
// remains valid. Step ids already referenced by recorded history are never
// changed: only steps that have not started are restructured.
func (p *Planner) AdaptPlan(task *agent.Task, feedback string) (*agent.Task, error) {
	if task == nil {
		return nil, fmt.Errorf("adapt plan: task is nil")
	}

	lower := strings.ToLower(feedback)
	var applied []adaptation
	for _, rule := range feedbackRules {
		for _, trigger := range rule.triggers {
			if strings.Contains(lower, trigger) {
				applied = append(applied, rule.adapt)
				break
			}
		}
	}
	if len(applied) == 0 {
		return nil, fmt.Errorf("adapt plan: no recognized adaptation in feedback %q", feedback)
	}

	adapted := task.Clone()
	for _, a := range applied {
		switch a {
		case adaptReduceRisk:
			reduceRisk(adapted)
		case adaptBreakDown:
			breakDownLargestStep(adapted)
		case adaptAddSteps:
			appendReviewStep(adapted)
		}
	}

	adapted.Metadata.BumpPatch()
	adapted.Metadata.UpdatedAt = time.Now()
	adapted.RecomputeProgress()

	p.log.Info("adapted task %s (%v), version %s", adapted.ID, applied, adapted.Metadata.Version)
	return adapted, nil
}

// reduceRisk tightens approval gates: the whole task needs approval, and so
// does every step that is individually high risk or worse.
func reduceRisk(task *agent.Task) {
	task.ApprovalRequired = true
	for i := range task.Steps {
		if task.Steps[i].RiskLevel.RequiresApproval() || task.Steps[i].RiskLevel == agent.RiskHigh {
			task.Steps[i].ApprovalRequired = true
			task.Steps[i].Action.RequiresApproval = true
		}
	}
}

// breakDownLargestStep splits the pending step with the largest time
// estimate into prepare/apply/verify sub-steps. The first sub-step inherits
// the parent's dependencies, the rest chain, and any step that depended on
// the parent is re-pointed at the final sub-step. Steps that have already
// started (and therefore may appear in execution history) are never split.
func breakDownLargestStep(task *agent.Task) {
	target := -1
	var largest int64 = -1
	for i := range task.Steps {
		s := &task.Steps[i]
		if s.Status != agent.StepStatusPending {
			continue
		}
		if s.Action.EstimatedTimeMs > largest {
			largest = s.Action.EstimatedTimeMs
			target = i
		}
	}
	if target < 0 {
		return
	}

	parent := task.Steps[target]
	phases := []struct {
		suffix string
		desc   string
	}{
		{"1", "Prepare: " + parent.Action.Description},
		{"2", "Apply: " + parent.Action.Description},
		{"3", "Verify: " + parent.Action.Description},
	}

	subs := make([]agent.Step, len(phases))
	perPhase := parent.Action.EstimatedTimeMs / int64(len(phases))
	if perPhase == 0 {
		perPhase = parent.Action.EstimatedTimeMs
	}
	for i, phase := range phases {
		sub := parent
		sub.ID = fmt.Sprintf("%s-%s", parent.ID, phase.suffix)
		sub.Action.Description = phase.desc
		sub.Action.EstimatedTimeMs = perPhase
		sub.Dependencies = nil
		if i == 0 {
			sub.Dependencies = append([]string(nil), parent.Dependencies...)
		} else {
			sub.Dependencies = []string{subs[i-1].ID}
		}
		subs[i] = sub
	}

	lastID := subs[len(subs)-1].ID
	for i := range task.Steps {
		for j, dep := range task.Steps[i].Dependencies {
			if dep == parent.ID {
				task.Steps[i].Dependencies[j] = lastID
			}
		}
	}

	replaced := make([]agent.Step, 0, len(task.Steps)+len(subs)-1)
	replaced = append(replaced, task.Steps[:target]...)
	replaced = append(replaced, subs...)
	replaced = append(replaced, task.Steps[target+1:]...)
	task.Steps = replaced
	task.EstimatedDurationMs = totalEstimatedMs(task.Steps)
}

// appendReviewStep inserts a trailing review step depending on every
// current leaf step, so new work is checked after everything else settles.
func appendReviewStep(task *agent.Task) {
	depended := make(map[string]bool)
	for i := range task.Steps {
		for _, dep := range task.Steps[i].Dependencies {
			depended[dep] = true
		}
	}
	var leaves []string
	for i := range task.Steps {
		if !depended[task.Steps[i].ID] {
			leaves = append(leaves, task.Steps[i].ID)
		}
	}

	profile := actionProfiles[agent.ActionAnalyzeCode]
	profile.description = "Review the expanded plan's results"
	step := newStep(fmt.Sprintf("step-%d", len(task.Steps)+1), agent.ActionAnalyzeCode, profile, leaves)

	// Generated ids are positional; avoid collisions with split sub-steps.
	for task.StepByID(step.ID) != nil {
		step.ID += "r"
	}

	task.Steps = append(task.Steps, step)
	task.EstimatedDurationMs = totalEstimatedMs(task.Steps)
}
