package agent

// Clone returns a deep copy of the task. Stores hand out clones so callers
// can never mutate authoritative state behind the store's back.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Steps = cloneSteps(t.Steps)
	cp.Complexity.Factors = cloneStrings(t.Complexity.Factors)
	cp.Complexity.Recommendations = cloneStrings(t.Complexity.Recommendations)
	cp.Risk.Factors = cloneStrings(t.Risk.Factors)
	cp.Risk.Mitigation = cloneStrings(t.Risk.Mitigation)
	cp.Context.ActiveFiles = cloneStrings(t.Context.ActiveFiles)
	cp.Context.Languages = cloneStrings(t.Context.Languages)
	cp.Context.SensitiveFiles = cloneStrings(t.Context.SensitiveFiles)
	cp.Metadata.Tags = cloneStrings(t.Metadata.Tags)
	if t.Approvals != nil {
		cp.Approvals = append([]ApprovalRecord(nil), t.Approvals...)
	}
	if t.Interventions != nil {
		cp.Interventions = append([]InterventionRecord(nil), t.Interventions...)
	}
	return &cp
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s
		out[i].Dependencies = cloneStrings(s.Dependencies)
		out[i].Action.ValidationRules = cloneStrings(s.Action.ValidationRules)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
