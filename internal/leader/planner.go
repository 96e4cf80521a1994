package leader

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/expert"
	"github.com/rahul/quorum/internal/prompts"
)

// plan drafts the initial plan, or when steps have already run, asks only
// for the additional steps and appends them.
func (e *Engine) plan(ctx context.Context, s *State, reg *expert.Registry) (Patch, error) {
	data := promptData{
		Objective: s.InitialObjective,
		Plan:      s.Plan.Steps,
		Experts:   reg.List(),
		Results:   results(s),
	}

	replanning := len(s.Progress) > 0
	name := prompts.Planner
	if replanning {
		name = prompts.Replanner
	}
	prompt, err := e.prompts.Render(name, data)
	if err != nil {
		return Patch{}, err
	}

	var out planOutput
	raw, err := extract(ctx, e.model, prompt, structuredCall{
		Function:    fnSubmitPlan,
		Description: "Submit the ordered list of plan steps.",
		Schema:      planSchema,
	}, &out)
	e.logger.LogLLM(s.ChatID, s.RunID, string(NodePlanning), prompt, raw, nil)
	if err != nil {
		return Patch{}, err
	}

	var plan Plan
	var summary, trace string
	if replanning {
		plan.Steps = append(append([]string(nil), s.Plan.Steps...), out.Steps...)
		summary = "Plan revised. Added steps:\n" + numbered(out.Steps, len(s.Plan.Steps))
		trace = fmt.Sprintf("Replanned: %d step(s) appended to the %d existing.", len(out.Steps), len(s.Plan.Steps))
	} else {
		plan.Steps = out.Steps
		summary = "Plan:\n" + numbered(out.Steps, 0)
		trace = fmt.Sprintf("Planned %d step(s).", len(out.Steps))
	}
	e.logger.LogPlan(s.ChatID, s.RunID, plan.Steps, replanning)

	return Patch{
		Messages: []chat.Message{chat.Thought(string(NodePlanning), summary)},
		Plan:     &plan,
		Traces:   []string{trace},
	}, nil
}

func numbered(steps []string, offset int) string {
	var b strings.Builder
	for i, s := range steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", offset+i+1, s)
	}
	return b.String()
}
