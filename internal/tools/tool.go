package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
)

// Tool is a single capability an expert's reasoning loop may call.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Registry manages the set of available tools.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

func (r *Registry) Len() int {
	return len(r.tools)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Subset returns a registry holding only the named tools.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	sub := NewRegistry()
	for _, n := range names {
		t := r.Get(n)
		if t == nil {
			return nil, fmt.Errorf("unknown tool %q", n)
		}
		sub.Register(t)
	}
	return sub, nil
}

// With returns a copy of the registry that also holds extra. Tools in extra
// replace same-named ones.
func (r *Registry) With(extra ...Tool) *Registry {
	out := NewRegistry()
	for _, t := range r.tools {
		out.Register(t)
	}
	for _, t := range extra {
		out.Register(t)
	}
	return out
}

// LLMTools renders the registry as langchaingo function definitions.
func (r *Registry) LLMTools() []llms.Tool {
	var out []llms.Tool
	for _, n := range r.Names() {
		t := r.tools[n]
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

func decodeArgs(input string, v any) error {
	if err := json.Unmarshal([]byte(input), v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

func truncate(s string, limit int, marker string) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + marker
}
