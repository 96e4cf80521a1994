package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestLastHuman(t *testing.T) {
	log := []Message{
		Human("first"),
		AI("answer"),
		Human("second"),
		Thought("planning", "plan"),
	}

	got, ok := LastHuman(log)
	require.True(t, ok)
	assert.Equal(t, "second", got.Content)

	_, ok = LastHuman([]Message{AI("only ai")})
	assert.False(t, ok)
}

func TestToLLMFlattensToolMessages(t *testing.T) {
	out := ToLLM([]Message{
		Human("hi"),
		{Role: llms.ChatMessageTypeTool, Content: "tool output"},
	})

	require.Len(t, out, 2)
	assert.Equal(t, llms.ChatMessageTypeHuman, out[0].Role)
	assert.Equal(t, llms.ChatMessageTypeGeneric, out[1].Role)
	assert.Equal(t, "tool output", FromLLM(out[1]).Content)
}

func TestMetadataWireKeys(t *testing.T) {
	m := AI("result")
	m.Metadata = Metadata{ExpertName: "GeneralistExpert", ExpertDescription: "general", StepNumber: 2, StepText: "do it"}

	data, err := json.Marshal(m.Metadata)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, false, raw["is_thought"])
	assert.Equal(t, "GeneralistExpert", raw["expert_name"])
	assert.Equal(t, "general", raw["expert_description"])
	assert.Equal(t, float64(2), raw["step_number"])
	assert.Equal(t, "do it", raw["step_text"])
}

func TestCloneDoesNotAlias(t *testing.T) {
	src := []Message{Human("a")}
	dst := Clone(src)
	dst[0].Content = "b"
	assert.Equal(t, "a", src[0].Content)
	assert.Nil(t, Clone(nil))
}
