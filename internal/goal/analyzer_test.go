package goal

import (
	"testing"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

func TestAnalyzeScopeClassification(t *testing.T) {
	tests := []struct {
		goal  string
		scope Scope
	}{
		{"Create a new utility file", ScopeFile},
		{"Update the auth module", ScopeModule},
		{"Clean up the payments package", ScopeModule},
		{"Modernize the whole project", ScopeProject},
		{"Ship the app to users", ScopeProject},
		{"Refactor the entire application architecture", ScopeArchitecture},
		{"Restructure the service boundaries", ScopeArchitecture},
		{"fix typo", ScopeFile},
	}

	for _, tt := range tests {
		a := Analyze(tt.goal)
		if a.Scope != tt.scope {
			t.Errorf("Analyze(%q).Scope = %s, want %s", tt.goal, a.Scope, tt.scope)
		}
	}
}

func TestAnalyzeScopePriorityOrder(t *testing.T) {
	// "architecture" outranks "module" even when both keywords appear.
	a := Analyze("Rework the module architecture")
	if a.Scope != ScopeArchitecture {
		t.Errorf("expected architecture scope, got %s", a.Scope)
	}
}

func TestAnalyzeRequiredActions(t *testing.T) {
	a := Analyze("Create a new parser and add tests")
	if !containsAction(a.RequiredActions, agent.ActionCreateFile) {
		t.Error("expected create_file in required actions")
	}
	if !containsAction(a.RequiredActions, agent.ActionRunTests) {
		t.Error("expected run_tests in required actions")
	}

	// Multiple matching rules all contribute, in rule order.
	a = Analyze("Edit the config and delete the legacy loader")
	want := []agent.ActionType{agent.ActionEditFile, agent.ActionDeleteFile}
	if len(a.RequiredActions) != len(want) {
		t.Fatalf("got %d actions, want %d: %v", len(a.RequiredActions), len(want), a.RequiredActions)
	}
	for i, action := range want {
		if a.RequiredActions[i] != action {
			t.Errorf("action[%d] = %s, want %s", i, a.RequiredActions[i], action)
		}
	}
}

func TestAnalyzeDefaultsToAnalyzeCode(t *testing.T) {
	a := Analyze("look at this")
	if len(a.RequiredActions) != 1 || a.RequiredActions[0] != agent.ActionAnalyzeCode {
		t.Errorf("expected single analyze_code action, got %v", a.RequiredActions)
	}
	if a.Scope != ScopeFile {
		t.Errorf("expected file scope for unclassifiable goal, got %s", a.Scope)
	}
}

func TestAnalyzeRiskFactors(t *testing.T) {
	a := Analyze("Remove the old schema and migrate production data")
	found := map[string]bool{}
	for _, r := range a.Risks {
		found[r] = true
	}
	for _, want := range []string{
		"File deletion requested",
		"Production-affecting change requested",
		"Data migration requested",
	} {
		if !found[want] {
			t.Errorf("missing risk factor %q in %v", want, a.Risks)
		}
	}
}

func TestAnalyzeIsCaseInsensitive(t *testing.T) {
	a := Analyze("DELETE the TEMP files")
	if !containsAction(a.RequiredActions, agent.ActionDeleteFile) {
		t.Errorf("expected delete_file, got %v", a.RequiredActions)
	}
}
