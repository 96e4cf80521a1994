// Package llmtest provides a scripted llms.Model for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Reply is one scripted model turn.
type Reply struct {
	Text      string
	ToolCalls []llms.ToolCall
	Err       error
}

// Call records one GenerateContent invocation.
type Call struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

// Text returns every text part of the call's messages joined with newlines.
func (c Call) Text() string {
	var out string
	for _, m := range c.Messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				out += t.Text + "\n"
			}
		}
	}
	return out
}

// ErrExhausted is returned when the model is called more often than scripted.
var ErrExhausted = errors.New("llmtest: script exhausted")

// Model replays scripted replies in order. Responder functions may be set
// instead to compute replies from the call.
type Model struct {
	mu      sync.Mutex
	replies []Reply
	Respond func(call Call) Reply
	calls   []Call
}

func New(replies ...Reply) *Model {
	return &Model{replies: replies}
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	call := Call{Messages: messages, Options: opts}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	var r Reply
	switch {
	case m.Respond != nil:
		m.mu.Unlock()
		r = m.Respond(call)
	case len(m.replies) == 0:
		m.mu.Unlock()
		return nil, ErrExhausted
	default:
		r = m.replies[0]
		m.replies = m.replies[1:]
		m.mu.Unlock()
	}

	if r.Err != nil {
		return nil, r.Err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: r.Text, ToolCalls: r.ToolCalls}},
	}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns the recorded invocations.
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Model) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}

// ToolCall builds a function call whose arguments are v marshalled to JSON.
func ToolCall(id, name string, v any) llms.ToolCall {
	args, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("llmtest: marshal tool args: %v", err))
	}
	return llms.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: string(args)},
	}
}

// Structured scripts a forced structured-output call.
func Structured(function string, v any) Reply {
	return Reply{ToolCalls: []llms.ToolCall{ToolCall("call_"+function, function, v)}}
}
