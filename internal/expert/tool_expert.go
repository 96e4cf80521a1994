package expert

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/governance"
	"github.com/rahul/quorum/internal/observability"
	"github.com/rahul/quorum/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

const (
	defaultMaxIterations = 10
	exhaustedReply       = "I reached the maximum number of reasoning steps for this task before finishing."
)

// ToolExpert is an expert compiled from a system prompt and a tool set. It
// runs a ReAct loop: the model either calls tools, whose results are fed
// back, or replies with text, which ends the loop.
type ToolExpert struct {
	name          string
	description   string
	categories    []string
	prompt        string
	model         llms.Model
	tools         *tools.Registry
	policy        governance.PolicyEngine
	logger        *observability.Logger
	maxIterations int
}

type ToolExpertConfig struct {
	Name          string
	Description   string
	Categories    []string
	Prompt        string
	Model         llms.Model
	Tools         *tools.Registry
	Policy        governance.PolicyEngine
	Logger        *observability.Logger
	MaxIterations int
}

func NewToolExpert(cfg ToolExpertConfig) (*ToolExpert, error) {
	if cfg.Name == "" {
		return nil, errors.New("expert name is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("expert %s: model is required", cfg.Name)
	}
	if cfg.Tools == nil {
		cfg.Tools = tools.NewRegistry()
	}
	if cfg.Policy == nil {
		cfg.Policy = governance.NewDefaultPolicyEngine()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNop()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	return &ToolExpert{
		name:          cfg.Name,
		description:   cfg.Description,
		categories:    cfg.Categories,
		prompt:        cfg.Prompt,
		model:         cfg.Model,
		tools:         cfg.Tools,
		policy:        cfg.Policy,
		logger:        cfg.Logger,
		maxIterations: cfg.MaxIterations,
	}, nil
}

func (x *ToolExpert) Name() string         { return x.name }
func (x *ToolExpert) Description() string  { return x.description }
func (x *ToolExpert) Categories() []string { return x.categories }

// Invoke runs the loop over messages and returns the expert's final reply.
// Tool failures and policy denials are reported back to the model as tool
// output; only model errors abort the invocation.
func (x *ToolExpert) Invoke(ctx context.Context, messages []chat.Message) ([]chat.Message, error) {
	chatID := ChatIDFrom(ctx)
	observability.SetStatus(chatID, observability.RoleExpert, x.name)

	var convo []llms.MessageContent
	if x.prompt != "" {
		convo = append(convo, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(x.prompt)},
		})
	}
	convo = append(convo, chat.ToLLM(messages)...)

	var opts []llms.CallOption
	if x.tools.Len() > 0 {
		opts = append(opts, llms.WithTools(x.tools.LLMTools()))
	}

	for i := 0; i < x.maxIterations; i++ {
		resp, err := x.model.GenerateContent(ctx, convo, opts...)
		if err != nil {
			return nil, fmt.Errorf("expert %s: %w", x.name, err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("expert %s: model returned no choices", x.name)
		}
		choice := resp.Choices[0]
		x.logger.LogLLM(chatID, "", x.name, len(convo), choice.Content, choice.ToolCalls)

		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextPart(choice.Content))
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		convo = append(convo, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: assistantParts})

		if len(choice.ToolCalls) == 0 {
			return []chat.Message{chat.AI(choice.Content)}, nil
		}

		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			result := x.callTool(ctx, chatID, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
			convo = append(convo, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       tc.FunctionCall.Name,
						Content:    result,
					},
				},
			})
		}
	}

	return []chat.Message{chat.AI(exhaustedReply)}, nil
}

func (x *ToolExpert) callTool(ctx context.Context, chatID, name, args string) string {
	tool := x.tools.Get(name)
	if tool == nil {
		return fmt.Sprintf("Error: Tool %s not found", name)
	}

	decision, err := x.policy.Evaluate(ctx, governance.Request{
		Expert:    x.name,
		Tool:      name,
		Arguments: args,
		ChatID:    chatID,
	})
	if err != nil {
		return fmt.Sprintf("Error: policy check failed: %v", err)
	}
	x.logger.LogPolicyCheck(chatID, x.name, name, string(decision.Effect), decision.Reason)
	if decision.Effect == governance.EffectDeny {
		return fmt.Sprintf("Error: %s", decision.Reason)
	}

	x.logger.LogToolCall(chatID, x.name, name, args)
	res, err := tool.Execute(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return res
}
