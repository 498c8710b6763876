package goal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
	"github.com/Aladin147/FlowCode-sub002/internal/llm"
	"github.com/Aladin147/FlowCode-sub002/internal/logger"
)

// Analyzer is the classification seam. The deterministic rule analyzer is
// the default; an LLM-backed analyzer may be substituted without changing
// downstream contracts.
type Analyzer interface {
	Analyze(ctx context.Context, goalText string) Analysis
}

// RuleAnalyzer adapts the pure Analyze function to the Analyzer seam.
type RuleAnalyzer struct{}

func (RuleAnalyzer) Analyze(_ context.Context, goalText string) Analysis {
	return Analyze(goalText)
}

// LLMAnalyzer asks a completion model to classify the goal. Any transport
// error, malformed reply, or out-of-vocabulary value degrades to the rule
// analyzer; classification never fails.
type LLMAnalyzer struct {
	client llm.Client
	log    *logger.Logger
}

// NewLLMAnalyzer wraps a completion client in the Analyzer seam.
func NewLLMAnalyzer(client llm.Client, log *logger.Logger) *LLMAnalyzer {
	if log == nil {
		log = logger.Global()
	}
	return &LLMAnalyzer{client: client, log: log.WithPrefix("classifier")}
}

const classifierPrompt = `Classify the following development goal. Reply with a single JSON object and nothing else:
{"scope": one of ["file","module","project","architecture"],
 "required_actions": subset of ["create_file","edit_file","delete_file","run_tests","refactor_code","validate_security","optimize_performance","generate_documentation","analyze_code"],
 "risks": short human-readable risk factors, may be empty}

Goal: %s`

type classifierReply struct {
	Scope           string   `json:"scope"`
	RequiredActions []string `json:"required_actions"`
	Risks           []string `json:"risks"`
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, goalText string) Analysis {
	reply, err := a.client.Complete(ctx, fmt.Sprintf(classifierPrompt, goalText))
	if err != nil {
		a.log.Warn("llm classification failed, using rule analyzer: %v", err)
		return Analyze(goalText)
	}

	parsed, err := parseClassifierReply(reply)
	if err != nil {
		a.log.Warn("llm classification unusable (%v), using rule analyzer", err)
		return Analyze(goalText)
	}

	parsed.Intent = strings.TrimSpace(goalText)
	a.log.Debug("llm classified goal: scope=%s actions=%d", parsed.Scope, len(parsed.RequiredActions))
	return parsed
}

func parseClassifierReply(reply string) (Analysis, error) {
	// Models wrap JSON in fences more often than not.
	trimmed := strings.TrimSpace(reply)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}

	var raw classifierReply
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return Analysis{}, fmt.Errorf("parse reply: %w", err)
	}

	scope := Scope(raw.Scope)
	switch scope {
	case ScopeFile, ScopeModule, ScopeProject, ScopeArchitecture:
	default:
		return Analysis{}, fmt.Errorf("unknown scope %q", raw.Scope)
	}

	known := map[agent.ActionType]bool{
		agent.ActionCreateFile: true, agent.ActionEditFile: true,
		agent.ActionDeleteFile: true, agent.ActionRunTests: true,
		agent.ActionRefactorCode: true, agent.ActionValidateSecurity: true,
		agent.ActionOptimizePerformance: true, agent.ActionGenerateDocumentation: true,
		agent.ActionAnalyzeCode: true,
	}
	var actions []agent.ActionType
	for _, s := range raw.RequiredActions {
		at := agent.ActionType(s)
		if !known[at] {
			return Analysis{}, fmt.Errorf("unknown action %q", s)
		}
		actions = append(actions, at)
	}
	if len(actions) == 0 {
		actions = []agent.ActionType{agent.ActionAnalyzeCode}
	}

	return Analysis{
		Scope:           scope,
		RequiredActions: actions,
		Risks:           raw.Risks,
	}, nil
}
