// Package goal classifies free-text goals and scores their complexity and
// risk. Everything in this package is deterministic and pure: classification
// never fails, and absence of signal degrades to a fallback estimate.
package goal

import (
	"strings"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

// Scope is the blast radius a goal is classified into.
type Scope string

const (
	ScopeFile         Scope = "file"
	ScopeModule       Scope = "module"
	ScopeProject      Scope = "project"
	ScopeArchitecture Scope = "architecture"
)

// Analysis is the analyzer's verdict on a raw goal string.
type Analysis struct {
	Intent          string             `json:"intent"`
	Scope           Scope              `json:"scope"`
	RequiredActions []agent.ActionType `json:"required_actions"`
	Dependencies    []string           `json:"dependencies,omitempty"`
	Risks           []string           `json:"risks,omitempty"`
}

// scopeRule maps trigger substrings to a scope. Rules are checked in
// priority order; the first match wins.
type scopeRule struct {
	triggers []string
	scope    Scope
}

var scopeRules = []scopeRule{
	{[]string{"architecture", "restructure", "refactor entire"}, ScopeArchitecture},
	{[]string{"module", "package", "component"}, ScopeModule},
	{[]string{"project", "app", "application"}, ScopeProject},
}

// actionRule maps trigger substrings to a required action. Rules are
// independent and non-exclusive: every matching rule contributes.
type actionRule struct {
	triggers []string
	action   agent.ActionType
	risk     string // optional risk factor recorded alongside the match
}

var actionRules = []actionRule{
	{[]string{"create", "add", "new"}, agent.ActionCreateFile, ""},
	{[]string{"edit", "modify", "update", "change"}, agent.ActionEditFile, ""},
	{[]string{"delete", "remove"}, agent.ActionDeleteFile, "File deletion requested"},
	{[]string{"test", "spec"}, agent.ActionRunTests, ""},
	{[]string{"refactor"}, agent.ActionRefactorCode, ""},
	{[]string{"security", "audit"}, agent.ActionValidateSecurity, ""},
	{[]string{"optimize", "performance"}, agent.ActionOptimizePerformance, ""},
	{[]string{"document"}, agent.ActionGenerateDocumentation, ""},
}

// riskRule flags keywords that raise the stakes without implying an action.
type riskRule struct {
	triggers []string
	factor   string
}

var riskRules = []riskRule{
	{[]string{"production", "deploy"}, "Production-affecting change requested"},
	{[]string{"migration", "migrate"}, "Data migration requested"},
}

// Analyze classifies a goal into scope, required actions and risk factors.
// It never fails; a goal with no recognizable signal yields the default
// scope (file) and a single analyze_code action.
func Analyze(text string) Analysis {
	lower := strings.ToLower(text)

	a := Analysis{
		Intent: strings.TrimSpace(text),
		Scope:  ScopeFile,
	}

	for _, rule := range scopeRules {
		if containsAny(lower, rule.triggers) {
			a.Scope = rule.scope
			break
		}
	}

	for _, rule := range actionRules {
		if containsAny(lower, rule.triggers) {
			a.RequiredActions = append(a.RequiredActions, rule.action)
			if rule.risk != "" {
				a.Risks = append(a.Risks, rule.risk)
			}
		}
	}
	if len(a.RequiredActions) == 0 {
		a.RequiredActions = []agent.ActionType{agent.ActionAnalyzeCode}
	}

	for _, rule := range riskRules {
		if containsAny(lower, rule.triggers) {
			a.Risks = append(a.Risks, rule.factor)
		}
	}

	return a
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsAction(actions []agent.ActionType, wanted ...agent.ActionType) bool {
	for _, a := range actions {
		for _, w := range wanted {
			if a == w {
				return true
			}
		}
	}
	return false
}
