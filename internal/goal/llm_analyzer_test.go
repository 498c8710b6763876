package goal

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
	"github.com/Aladin147/FlowCode-sub002/internal/logger"
)

type fakeClient struct {
	reply string
	err   error
}

func (f fakeClient) Complete(context.Context, string) (string, error) { return f.reply, f.err }
func (f fakeClient) ModelName() string                                { return "fake" }

func TestLLMAnalyzerUsesModelReply(t *testing.T) {
	a := NewLLMAnalyzer(fakeClient{
		reply: "```json\n{\"scope\":\"module\",\"required_actions\":[\"refactor_code\"],\"risks\":[\"touches auth\"]}\n```",
	}, logger.NewWriter(logger.LevelError, io.Discard))

	got := a.Analyze(context.Background(), "rework the auth module")
	if got.Scope != ScopeModule {
		t.Errorf("scope = %s, want module", got.Scope)
	}
	if len(got.RequiredActions) != 1 || got.RequiredActions[0] != agent.ActionRefactorCode {
		t.Errorf("actions = %v, want [refactor_code]", got.RequiredActions)
	}
	if len(got.Risks) != 1 || got.Risks[0] != "touches auth" {
		t.Errorf("risks = %v", got.Risks)
	}
}

func TestLLMAnalyzerDegradesToRules(t *testing.T) {
	log := logger.NewWriter(logger.LevelError, io.Discard)
	tests := []struct {
		name   string
		client fakeClient
	}{
		{"transport error", fakeClient{err: errors.New("boom")}},
		{"malformed json", fakeClient{reply: "not json at all"}},
		{"unknown scope", fakeClient{reply: `{"scope":"galaxy","required_actions":[]}`}},
		{"unknown action", fakeClient{reply: `{"scope":"file","required_actions":["launch_rocket"]}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewLLMAnalyzer(tt.client, log)
			got := a.Analyze(context.Background(), "Create a new utility file")
			// Rule fallback classifies this as file-scope create_file.
			if got.Scope != ScopeFile {
				t.Errorf("scope = %s, want file", got.Scope)
			}
			if !containsAction(got.RequiredActions, agent.ActionCreateFile) {
				t.Errorf("actions = %v, want create_file", got.RequiredActions)
			}
		})
	}
}

func TestParseClassifierReplyDefaultsActions(t *testing.T) {
	a, err := parseClassifierReply(`{"scope":"project","required_actions":[]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.RequiredActions) != 1 || a.RequiredActions[0] != agent.ActionAnalyzeCode {
		t.Errorf("actions = %v, want [analyze_code]", a.RequiredActions)
	}
}
