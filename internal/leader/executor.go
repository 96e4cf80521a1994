package leader

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/expert"
	"github.com/rahul/quorum/internal/prompts"
)

// execute routes the next unexecuted step to the expert the model selects,
// invokes it with the results of all earlier steps, and records the output.
func (e *Engine) execute(ctx context.Context, s *State, reg *expert.Registry) (Patch, error) {
	step, number, ok := s.NextStep()
	if !ok {
		return Patch{}, errors.New("no unexecuted step left in the plan")
	}
	if reg == nil || reg.Len() == 0 {
		return Patch{}, &ConfigError{Node: NodeExecute, Err: ErrEmptyRegistry}
	}

	data := promptData{
		Objective:  s.InitialObjective,
		Plan:       s.Plan.Steps,
		Step:       step,
		StepNumber: number,
		Experts:    reg.List(),
		Results:    results(s),
	}

	selection, err := e.prompts.Render(prompts.ExecutorSelect, data)
	if err != nil {
		return Patch{}, err
	}
	var decision expertOutput
	raw, err := extract(ctx, e.model, selection, structuredCall{
		Function:    fnSelectExpert,
		Description: "Select the expert that executes the target step.",
		Schema:      expertSchema(reg.Names()),
	}, &decision)
	e.logger.LogLLM(s.ChatID, s.RunID, string(NodeExecute), selection, raw, nil)
	if err != nil {
		return Patch{}, err
	}

	chosen, ok := reg.Lookup(decision.Expert)
	if !ok {
		return Patch{}, fmt.Errorf("step %d: %w", number, &expert.UnknownExpertError{Name: decision.Expert, Known: reg.Names()})
	}

	task, err := e.prompts.Render(prompts.ExecutorTask, data)
	if err != nil {
		return Patch{}, err
	}
	inputs := make([]chat.Message, 0, len(s.Progress)+1)
	for _, p := range s.Progress {
		inputs = append(inputs, chat.AI(p.LastResult()))
	}
	inputs = append(inputs, chat.Human(task))

	e.logger.LogStep(s.ChatID, s.RunID, number, chosen.Name(), step)
	returned, err := chosen.Invoke(expert.WithChatID(ctx, s.ChatID), inputs)
	if err != nil {
		return Patch{}, fmt.Errorf("step %d (%s): %w", number, chosen.Name(), err)
	}

	tagged := make([]chat.Message, len(returned))
	for i, m := range returned {
		// provenance only; flags the expert set survive
		m.Metadata.Node = string(NodeExecute)
		m.Metadata.ExpertName = chosen.Name()
		m.Metadata.ExpertDescription = chosen.Description()
		m.Metadata.StepNumber = number
		m.Metadata.StepText = step
		tagged[i] = m
	}

	name := chosen.Name()
	return Patch{
		Messages:       tagged,
		Progress:       []ProgressEntry{{Step: step, Results: tagged}},
		ExpertDecision: &name,
		Traces:         []string{fmt.Sprintf("Step %d assigned to %s and executed.", number, name)},
	}, nil
}
