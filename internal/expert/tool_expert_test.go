package expert

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/governance"
	"github.com/rahul/quorum/internal/llmtest"
	"github.com/rahul/quorum/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type recordingTool struct {
	calls []string
	err   error
}

func (r *recordingTool) Name() string               { return "lookup" }
func (r *recordingTool) Description() string        { return "looks things up" }
func (r *recordingTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (r *recordingTool) Execute(ctx context.Context, input string) (string, error) {
	r.calls = append(r.calls, input)
	if r.err != nil {
		return "", r.err
	}
	return "42 kWh", nil
}

func toolMessages(call llmtest.Call) []string {
	var out []string
	for _, m := range call.Messages {
		if m.Role != llms.ChatMessageTypeTool {
			continue
		}
		for _, p := range m.Parts {
			if r, ok := p.(llms.ToolCallResponse); ok {
				out = append(out, r.Content)
			}
		}
	}
	return out
}

func TestToolExpertRunsToolLoop(t *testing.T) {
	tool := &recordingTool{}
	model := llmtest.New(
		llmtest.Reply{ToolCalls: []llms.ToolCall{llmtest.ToolCall("c1", "lookup", map[string]string{"q": "energy"})}},
		llmtest.Reply{Text: "Energy use was 42 kWh."},
	)
	x, err := NewToolExpert(ToolExpertConfig{
		Name:   "MonitoringExpert",
		Prompt: "You read meters.",
		Model:  model,
		Tools:  tools.NewRegistry(tool),
	})
	require.NoError(t, err)

	out, err := x.Invoke(context.Background(), []chat.Message{chat.Human("How much energy?")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Energy use was 42 kWh.", out[0].Content)
	assert.Equal(t, llms.ChatMessageTypeAI, out[0].Role)

	require.Len(t, tool.calls, 1)
	calls := model.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, calls[0].Messages[0].Role)
	assert.Len(t, calls[0].Options.Tools, 1)
	assert.Equal(t, []string{"42 kWh"}, toolMessages(calls[1]))
}

func TestToolExpertReportsToolFailureToModel(t *testing.T) {
	tool := &recordingTool{err: errors.New("meter offline")}
	model := llmtest.New(
		llmtest.Reply{ToolCalls: []llms.ToolCall{llmtest.ToolCall("c1", "lookup", map[string]string{})}},
		llmtest.Reply{Text: "The meter is offline."},
	)
	x, err := NewToolExpert(ToolExpertConfig{Name: "MonitoringExpert", Model: model, Tools: tools.NewRegistry(tool)})
	require.NoError(t, err)

	out, err := x.Invoke(context.Background(), []chat.Message{chat.Human("read the meter")})
	require.NoError(t, err)
	assert.Equal(t, "The meter is offline.", out[0].Content)
	assert.Equal(t, []string{"Error: meter offline"}, toolMessages(model.Calls()[1]))
}

func TestToolExpertHonoursPolicy(t *testing.T) {
	tool := &recordingTool{}
	policy := governance.NewDefaultPolicyEngine()
	policy.DenyTool("lookup")
	model := llmtest.New(
		llmtest.Reply{ToolCalls: []llms.ToolCall{llmtest.ToolCall("c1", "lookup", map[string]string{})}},
		llmtest.Reply{Text: "I am not allowed to do that."},
	)
	x, err := NewToolExpert(ToolExpertConfig{Name: "MonitoringExpert", Model: model, Tools: tools.NewRegistry(tool), Policy: policy})
	require.NoError(t, err)

	_, err = x.Invoke(context.Background(), []chat.Message{chat.Human("read the meter")})
	require.NoError(t, err)
	assert.Empty(t, tool.calls)
	got := toolMessages(model.Calls()[1])
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], "Error: Tool 'lookup' is restricted"))
}

func TestToolExpertStopsAtIterationLimit(t *testing.T) {
	model := &llmtest.Model{Respond: func(llmtest.Call) llmtest.Reply {
		return llmtest.Reply{ToolCalls: []llms.ToolCall{llmtest.ToolCall("c", "lookup", map[string]string{})}}
	}}
	x, err := NewToolExpert(ToolExpertConfig{Name: "Loop", Model: model, Tools: tools.NewRegistry(&recordingTool{}), MaxIterations: 3})
	require.NoError(t, err)

	out, err := x.Invoke(context.Background(), []chat.Message{chat.Human("go")})
	require.NoError(t, err)
	assert.Equal(t, exhaustedReply, out[0].Content)
	assert.Len(t, model.Calls(), 3)
}

func TestToolExpertPropagatesModelError(t *testing.T) {
	model := llmtest.New(llmtest.Reply{Err: errors.New("timeout")})
	x, err := NewToolExpert(ToolExpertConfig{Name: "A", Model: model})
	require.NoError(t, err)

	_, err = x.Invoke(context.Background(), []chat.Message{chat.Human("go")})
	assert.ErrorContains(t, err, "timeout")
}

func TestNewToolExpertValidates(t *testing.T) {
	_, err := NewToolExpert(ToolExpertConfig{Model: llmtest.New()})
	assert.Error(t, err)
	_, err = NewToolExpert(ToolExpertConfig{Name: "A"})
	assert.Error(t, err)
}
