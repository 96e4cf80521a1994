package leader

import (
	"context"
	"errors"
	"strings"

	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/prompts"
	"github.com/tmc/langchaingo/llms"
)

// respond synthesizes the final answer from the last result of every step.
func (e *Engine) respond(ctx context.Context, s *State) (Patch, error) {
	conclusions := make([]string, 0, len(s.Progress))
	for _, p := range s.Progress {
		conclusions = append(conclusions, p.LastResult())
	}

	prompt, err := e.prompts.Render(prompts.Responder, promptData{
		Objective:   s.InitialObjective,
		Plan:        s.Plan.Steps,
		Conclusions: strings.Join(conclusions, "\n\n"),
	})
	if err != nil {
		return Patch{}, err
	}

	resp, err := e.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return Patch{}, err
	}
	if len(resp.Choices) == 0 {
		return Patch{}, errors.New("responder: model returned no choices")
	}
	content := resp.Choices[0].Content
	e.logger.LogLLM(s.ChatID, s.RunID, string(NodeRespond), prompt, content, nil)

	answer := chat.AI(content)
	answer.Metadata.Node = string(NodeRespond)
	return Patch{
		Messages: []chat.Message{answer},
		Traces:   []string{"Final answer composed."},
	}, nil
}
