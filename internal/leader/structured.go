package leader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tmc/langchaingo/llms"
)

// Function names the model is forced to call for each decision.
const (
	fnSubmitPlan   = "submit_plan"
	fnSelectExpert = "select_expert"
	fnDecide       = "decide"
)

type planOutput struct {
	Steps []string `json:"steps" jsonschema:"minItems=1,description=Ordered steps. The last step must yield the answer."`
}

func (p *planOutput) validate() error {
	var steps []string
	for _, s := range p.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return errors.New("plan must contain at least one step")
	}
	p.Steps = steps
	return nil
}

type expertOutput struct {
	Expert string `json:"expert" jsonschema:"description=Name of the expert that will execute the step"`
}

func (e *expertOutput) validate() error {
	e.Expert = strings.TrimSpace(e.Expert)
	if e.Expert == "" {
		return errors.New("expert name is empty")
	}
	return nil
}

type decisionOutput struct {
	Decision PlanDecision `json:"decision" jsonschema:"enum=respond,enum=planning"`
}

func (d *decisionOutput) validate() error {
	switch PlanDecision(strings.ToLower(strings.TrimSpace(string(d.Decision)))) {
	case DecisionRespond:
		d.Decision = DecisionRespond
	case DecisionPlanning:
		d.Decision = DecisionPlanning
	default:
		return fmt.Errorf("decision %q is not one of respond, planning", d.Decision)
	}
	return nil
}

type schemaTarget interface {
	validate() error
}

// structuredCall declares one schema-constrained model call.
type structuredCall struct {
	Function    string
	Description string
	Schema      *jsonschema.Schema
}

func reflectSchema(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(v)
	s.Version = ""
	s.ID = ""
	return s
}

var (
	planSchema     = reflectSchema(&planOutput{})
	decisionSchema = reflectSchema(&decisionOutput{})
)

// expertSchema builds the selection schema with the expert property closed
// over the names registered right now.
func expertSchema(names []string) *jsonschema.Schema {
	s := reflectSchema(&expertOutput{})
	if prop, ok := s.Properties.Get("expert"); ok {
		prop.Enum = make([]any, 0, len(names))
		for _, n := range names {
			prop.Enum = append(prop.Enum, n)
		}
	}
	return s
}

// extract forces the model to answer through call's function and decodes the
// arguments into out. A plain-text reply is accepted when it embeds a JSON
// object. Anything that does not decode or validate is an error.
func extract(ctx context.Context, model llms.Model, prompt string, call structuredCall, out schemaTarget) (string, error) {
	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	tool := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        call.Function,
			Description: call.Description,
			Parameters:  call.Schema,
		},
	}

	resp, err := model.GenerateContent(ctx, messages,
		llms.WithTools([]llms.Tool{tool}),
		llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: call.Function},
		}),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &StructuredOutputError{Function: call.Function, Err: errors.New("model returned no choices")}
	}

	choice := resp.Choices[0]
	raw, ok := "", false
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == call.Function {
			raw, ok = tc.FunctionCall.Arguments, true
			break
		}
	}
	if !ok {
		raw, ok = jsonObject(choice.Content)
	}
	if !ok {
		return choice.Content, &StructuredOutputError{Function: call.Function, Raw: choice.Content, Err: errors.New("reply carries no structured output")}
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return raw, &StructuredOutputError{Function: call.Function, Raw: raw, Err: err}
	}
	if err := out.validate(); err != nil {
		return raw, &StructuredOutputError{Function: call.Function, Raw: raw, Err: err}
	}
	return raw, nil
}

// jsonObject returns the outermost {...} span of s, tolerating code fences
// and prose around it.
func jsonObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

