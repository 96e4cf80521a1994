package leader

import (
	"context"
	"fmt"

	"github.com/rahul/quorum/internal/expert"
	"github.com/rahul/quorum/internal/prompts"
)

// validate decides whether the results answer the objective. At the step
// ceiling it responds without consulting the model.
func (e *Engine) validate(ctx context.Context, s *State, reg *expert.Registry) (Patch, error) {
	if len(s.Progress) >= e.opts.MaxSteps {
		d := DecisionRespond
		return Patch{
			PlanDecision: &d,
			Traces:       []string{fmt.Sprintf("Step limit of %d reached; responding with the results so far.", e.opts.MaxSteps)},
		}, nil
	}

	prompt, err := e.prompts.Render(prompts.Validator, promptData{
		Objective: s.InitialObjective,
		Plan:      s.Plan.Steps,
		Experts:   reg.List(),
		Results:   results(s),
	})
	if err != nil {
		return Patch{}, err
	}

	var out decisionOutput
	raw, err := extract(ctx, e.model, prompt, structuredCall{
		Function:    fnDecide,
		Description: "Decide whether to respond now or plan more steps.",
		Schema:      decisionSchema,
	}, &out)
	e.logger.LogLLM(s.ChatID, s.RunID, string(NodeValidate), prompt, raw, nil)
	if err != nil {
		return Patch{}, err
	}

	d := out.Decision
	return Patch{
		PlanDecision: &d,
		Traces:       []string{fmt.Sprintf("Validation decided: %s.", d)},
	}, nil
}
