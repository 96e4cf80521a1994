package chat

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Metadata carries the provenance of a message appended during orchestration.
type Metadata struct {
	IsThought         bool   `json:"is_thought"`
	Node              string `json:"node,omitempty"`
	ExpertName        string `json:"expert_name,omitempty"`
	ExpertDescription string `json:"expert_description,omitempty"`
	StepNumber        int    `json:"step_number,omitempty"`
	StepText          string `json:"step_text,omitempty"`
}

// Message is one entry of a conversation log.
type Message struct {
	Role     llms.ChatMessageType `json:"role"`
	Content  string               `json:"content"`
	Metadata Metadata             `json:"metadata"`
}

func Human(content string) Message {
	return Message{Role: llms.ChatMessageTypeHuman, Content: content}
}

func AI(content string) Message {
	return Message{Role: llms.ChatMessageTypeAI, Content: content}
}

func System(content string) Message {
	return Message{Role: llms.ChatMessageTypeSystem, Content: content}
}

// Thought is an assistant message kept for audit but not rendered as a chat bubble.
func Thought(node, content string) Message {
	return Message{
		Role:     llms.ChatMessageTypeAI,
		Content:  content,
		Metadata: Metadata{IsThought: true, Node: node},
	}
}

// ToLLM converts a log into the langchaingo wire shape. Tool transcripts are
// flattened to text since they are replayed without their originating calls.
func ToLLM(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == llms.ChatMessageTypeTool || role == "" {
			role = llms.ChatMessageTypeGeneric
		}
		out = append(out, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}
	return out
}

// FromLLM extracts the text parts of a langchaingo message.
func FromLLM(mc llms.MessageContent) Message {
	var b strings.Builder
	for _, p := range mc.Parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return Message{Role: mc.Role, Content: b.String()}
}

// LastHuman returns the most recent human-authored message.
func LastHuman(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llms.ChatMessageTypeHuman {
			return messages[i], true
		}
	}
	return Message{}, false
}

// Last returns the final message of a non-empty list.
func Last(messages []Message) (Message, bool) {
	if len(messages) == 0 {
		return Message{}, false
	}
	return messages[len(messages)-1], true
}

// Clone copies a message list so later appends never alias the source.
func Clone(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
