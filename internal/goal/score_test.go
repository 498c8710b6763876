package goal

import (
	"testing"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

func TestEstimateComplexityBuckets(t *testing.T) {
	tests := []struct {
		name   string
		a      Analysis
		ctx    agent.TaskContext
		level  agent.ComplexityLevel
		timeMs int64
	}{
		{
			name:   "file scope alone is trivial",
			a:      Analysis{Scope: ScopeFile, RequiredActions: []agent.ActionType{agent.ActionCreateFile}},
			level:  agent.ComplexityTrivial,
			timeMs: 30 * 1000,
		},
		{
			name:   "module scope is simple",
			a:      Analysis{Scope: ScopeModule, RequiredActions: []agent.ActionType{agent.ActionEditFile}},
			level:  agent.ComplexitySimple,
			timeMs: 2 * 60 * 1000,
		},
		{
			name:   "architecture scope is moderate",
			a:      Analysis{Scope: ScopeArchitecture, RequiredActions: []agent.ActionType{agent.ActionEditFile}},
			level:  agent.ComplexityModerate,
			timeMs: 10 * 60 * 1000,
		},
		{
			name:   "architecture refactor is complex",
			a:      Analysis{Scope: ScopeArchitecture, RequiredActions: []agent.ActionType{agent.ActionRefactorCode}},
			level:  agent.ComplexityComplex,
			timeMs: 30 * 60 * 1000,
		},
		{
			name: "everything at once is expert",
			a: Analysis{
				Scope:           ScopeArchitecture,
				RequiredActions: []agent.ActionType{agent.ActionRefactorCode},
				Risks:           []string{"a", "b"},
			},
			ctx:    agent.TaskContext{DependencyCount: 11, Languages: []string{"go", "ts", "py"}},
			level:  agent.ComplexityExpert,
			timeMs: 60 * 60 * 1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := EstimateComplexity("goal", tt.a, tt.ctx)
			if est.Level != tt.level {
				t.Errorf("level = %s, want %s", est.Level, tt.level)
			}
			if est.EstimatedTimeMs != tt.timeMs {
				t.Errorf("time = %d, want %d", est.EstimatedTimeMs, tt.timeMs)
			}
		})
	}
}

func TestEstimateComplexityContextThresholds(t *testing.T) {
	a := Analysis{Scope: ScopeFile, RequiredActions: []agent.ActionType{agent.ActionEditFile}}

	// Exactly 10 dependencies and 2 languages stay under the thresholds.
	at := EstimateComplexity("g", a, agent.TaskContext{DependencyCount: 10, Languages: []string{"go", "ts"}})
	over := EstimateComplexity("g", a, agent.TaskContext{DependencyCount: 11, Languages: []string{"go", "ts", "py"}})
	if at.Level != agent.ComplexityTrivial {
		t.Errorf("at-threshold level = %s, want trivial", at.Level)
	}
	if over.Level != agent.ComplexitySimple {
		t.Errorf("over-threshold level = %s, want simple", over.Level)
	}
}

func TestComplexityConfidenceDecreasesWithScore(t *testing.T) {
	low := EstimateComplexity("g", Analysis{Scope: ScopeFile}, agent.TaskContext{})
	high := EstimateComplexity("g", Analysis{
		Scope:           ScopeArchitecture,
		RequiredActions: []agent.ActionType{agent.ActionRefactorCode},
		Risks:           []string{"x", "y", "z"},
	}, agent.TaskContext{DependencyCount: 20})

	if low.Confidence <= high.Confidence {
		t.Errorf("confidence should shrink with score: low=%f high=%f", low.Confidence, high.Confidence)
	}
	for _, c := range []float64{low.Confidence, high.Confidence} {
		if c < 0.3 || c > 0.9 {
			t.Errorf("confidence %f outside [0.3, 0.9]", c)
		}
	}
}

func TestAssessRisksLevels(t *testing.T) {
	tests := []struct {
		name  string
		a     Analysis
		ctx   agent.TaskContext
		level agent.RiskLevel
	}{
		{
			name:  "no signal is low",
			a:     Analysis{Scope: ScopeFile, RequiredActions: []agent.ActionType{agent.ActionCreateFile}},
			level: agent.RiskLow,
		},
		{
			name:  "destructive action is medium",
			a:     Analysis{Scope: ScopeFile, RequiredActions: []agent.ActionType{agent.ActionDeleteFile}},
			level: agent.RiskMedium,
		},
		{
			name:  "destructive plus architecture is high",
			a:     Analysis{Scope: ScopeArchitecture, RequiredActions: []agent.ActionType{agent.ActionDeleteFile}},
			level: agent.RiskHigh,
		},
		{
			name: "everything at once is critical",
			a:    Analysis{Scope: ScopeArchitecture, RequiredActions: []agent.ActionType{agent.ActionDeleteFile}},
			ctx: agent.TaskContext{
				SensitiveFiles: []string{".env"},
				TechnicalDebt:  6,
				VulnerableDeps: 1,
			},
			level: agent.RiskCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risk := AssessRisks(tt.a, tt.ctx)
			if risk.Level != tt.level {
				t.Errorf("level = %s, want %s", risk.Level, tt.level)
			}
		})
	}
}

func TestRiskApprovalBoundary(t *testing.T) {
	medium := AssessRisks(Analysis{RequiredActions: []agent.ActionType{agent.ActionDeleteFile}}, agent.TaskContext{})
	high := AssessRisks(Analysis{Scope: ScopeArchitecture, RequiredActions: []agent.ActionType{agent.ActionDeleteFile}}, agent.TaskContext{})

	if medium.Level.RequiresApproval() {
		t.Errorf("%s should not require approval", medium.Level)
	}
	if !high.Level.RequiresApproval() {
		t.Errorf("%s should require approval", high.Level)
	}
}

func TestRiskConfidenceBounds(t *testing.T) {
	r := AssessRisks(Analysis{
		Scope:           ScopeArchitecture,
		RequiredActions: []agent.ActionType{agent.ActionDeleteFile},
	}, agent.TaskContext{
		SensitiveFiles: []string{"a", "b"},
		TechnicalDebt:  10,
		VulnerableDeps: 3,
	})
	if r.Confidence < 0.6 || r.Confidence > 0.95 {
		t.Errorf("confidence %f outside [0.6, 0.95]", r.Confidence)
	}
}

func TestFallbacks(t *testing.T) {
	c := FallbackComplexity()
	if c.Level != agent.ComplexityModerate || c.Confidence != 0.3 {
		t.Errorf("fallback complexity = %s/%f, want moderate/0.3", c.Level, c.Confidence)
	}
	r := FallbackRisk()
	if r.Level != agent.RiskMedium || r.Confidence != 0.6 {
		t.Errorf("fallback risk = %s/%f, want medium/0.6", r.Level, r.Confidence)
	}
}
