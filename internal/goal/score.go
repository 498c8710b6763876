package goal

import (
	"fmt"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

// Scope weights for complexity scoring.
var scopeWeights = map[Scope]int{
	ScopeFile:         1,
	ScopeModule:       3,
	ScopeProject:      5,
	ScopeArchitecture: 8,
}

// complexityBucket maps an accumulated score to a level and time estimate.
type complexityBucket struct {
	maxScore int
	level    agent.ComplexityLevel
	timeMs   int64
}

var complexityBuckets = []complexityBucket{
	{2, agent.ComplexityTrivial, 30 * 1000},
	{5, agent.ComplexitySimple, 2 * 60 * 1000},
	{8, agent.ComplexityModerate, 10 * 60 * 1000},
	{12, agent.ComplexityComplex, 30 * 60 * 1000},
}

const expertTimeMs = 60 * 60 * 1000

// EstimateComplexity scores a goal analysis against the project context.
// The score only ever accumulates, so adding signal never lowers the level.
func EstimateComplexity(goalText string, analysis Analysis, ctx agent.TaskContext) agent.ComplexityEstimate {
	score := scopeWeights[analysis.Scope]
	factors := []string{fmt.Sprintf("Scope: %s", analysis.Scope)}

	if containsAction(analysis.RequiredActions,
		agent.ActionRefactorCode, agent.ActionAnalyzeDependencies, agent.ActionOptimizePerformance) {
		score += 3
		factors = append(factors, "Structural change required")
	}
	if ctx.DependencyCount > 10 {
		score += 2
		factors = append(factors, fmt.Sprintf("Large dependency surface (%d)", ctx.DependencyCount))
	}
	if len(ctx.Languages) > 2 {
		score += 2
		factors = append(factors, fmt.Sprintf("Spans %d languages", len(ctx.Languages)))
	}
	if n := len(analysis.Risks); n > 0 {
		score += n
		factors = append(factors, analysis.Risks...)
	}

	level := agent.ComplexityExpert
	timeMs := int64(expertTimeMs)
	for _, b := range complexityBuckets {
		if score <= b.maxScore {
			level, timeMs = b.level, b.timeMs
			break
		}
	}

	est := agent.ComplexityEstimate{
		Level:           level,
		Factors:         factors,
		EstimatedTimeMs: timeMs,
		Confidence:      clamp(1-float64(score)*0.05, 0.3, 0.9),
	}
	est.Recommendations = complexityRecommendations(level, analysis)
	return est
}

func complexityRecommendations(level agent.ComplexityLevel, analysis Analysis) []string {
	var recs []string
	switch level {
	case agent.ComplexityComplex, agent.ComplexityExpert:
		recs = append(recs, "Break the work into reviewable increments")
	}
	if containsAction(analysis.RequiredActions, agent.ActionRefactorCode) {
		recs = append(recs, "Run the full test suite after each refactoring step")
	}
	if analysis.Scope == ScopeArchitecture {
		recs = append(recs, "Review the resulting plan before execution")
	}
	return recs
}

// AssessRisks scores a goal analysis for risk against the project context.
// The resulting level drives the task-wide approval gate.
func AssessRisks(analysis Analysis, ctx agent.TaskContext) agent.RiskAssessment {
	score := 0
	var factors []string

	if containsAction(analysis.RequiredActions,
		agent.ActionDeleteFile, agent.ActionRunCommand, agent.ActionCommitChanges) {
		score += 3
		factors = append(factors, "Destructive or externally visible action")
	}
	if analysis.Scope == ScopeArchitecture {
		score += 4
		factors = append(factors, "Architecture-wide blast radius")
	}
	if len(ctx.SensitiveFiles) > 0 {
		score += 2
		factors = append(factors, fmt.Sprintf("Sensitive files in scope (%d)", len(ctx.SensitiveFiles)))
	}
	if ctx.TechnicalDebt > 5 {
		score += 2
		factors = append(factors, fmt.Sprintf("High technical debt (%d items)", ctx.TechnicalDebt))
	}
	if ctx.VulnerableDeps > 0 {
		score += 2
		factors = append(factors, fmt.Sprintf("Known vulnerable dependencies (%d)", ctx.VulnerableDeps))
	}

	level := agent.RiskCritical
	switch {
	case score <= 2:
		level = agent.RiskLow
	case score <= 5:
		level = agent.RiskMedium
	case score <= 8:
		level = agent.RiskHigh
	}

	return agent.RiskAssessment{
		Level:      level,
		Factors:    factors,
		Impact:     riskImpact(level),
		Mitigation: riskMitigation(level, factors),
		Confidence: clamp(1-float64(score)*0.03, 0.6, 0.95),
	}
}

func riskImpact(level agent.RiskLevel) string {
	switch level {
	case agent.RiskLow:
		return "Localized, easily reversible changes"
	case agent.RiskMedium:
		return "Multi-file changes, reversible with effort"
	case agent.RiskHigh:
		return "Broad changes that may be hard to roll back"
	default:
		return "Potentially irreversible, system-wide impact"
	}
}

func riskMitigation(level agent.RiskLevel, factors []string) []string {
	var out []string
	if level.RequiresApproval() {
		out = append(out, "Require human approval before execution")
	}
	if len(factors) > 0 {
		out = append(out, "Execute step by step with validation between steps")
	}
	out = append(out, "Keep a restorable snapshot of affected files")
	return out
}

// FallbackComplexity is the estimate used when no analysis signal is
// available. Callers are expected to log the degradation.
func FallbackComplexity() agent.ComplexityEstimate {
	return agent.ComplexityEstimate{
		Level:           agent.ComplexityModerate,
		Factors:         []string{"Fallback estimate: no classification signal"},
		EstimatedTimeMs: 10 * 60 * 1000,
		Confidence:      0.3,
	}
}

// FallbackRisk is the assessment used when no analysis signal is available.
func FallbackRisk() agent.RiskAssessment {
	return agent.RiskAssessment{
		Level:      agent.RiskMedium,
		Factors:    []string{"Fallback assessment: no classification signal"},
		Impact:     riskImpact(agent.RiskMedium),
		Mitigation: []string{"Execute step by step with validation between steps"},
		Confidence: 0.6,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
