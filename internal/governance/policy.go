package governance

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes a tool call an expert is about to make.
type Request struct {
	Expert    string
	Tool      string
	Arguments string
	ChatID    string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates expert tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies tools globally, arguments by pattern, and
// restricts experts to an explicit tool allow list when one is set.
type DefaultPolicyEngine struct {
	mu          sync.RWMutex
	deniedTools map[string]bool
	deniedRegex []*regexp.Regexp
	allowed     map[string]map[string]bool
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		deniedTools: make(map[string]bool),
		allowed:     make(map[string]map[string]bool),
	}
}

// NewStrictPolicyEngine returns an engine preloaded with the destructive
// command patterns blocked for every deployment.
func NewStrictPolicyEngine() *DefaultPolicyEngine {
	e := NewDefaultPolicyEngine()
	for _, p := range []string{`rm\s+-rf`, `mkfs`, `shutdown`, `reboot`, `:\(\)\s*\{`} {
		_ = e.DenyArguments(p)
	}
	return e
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedTools[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedRegex = append(e.deniedRegex, re)
	return nil
}

// AllowTools limits expert to the named tools.
func (e *DefaultPolicyEngine) AllowTools(expert string, tools ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set := make(map[string]bool, len(tools))
	for _, t := range tools {
		set[t] = true
	}
	e.allowed[expert] = set
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.deniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is restricted by system policy", req.Tool),
		}, nil
	}

	if set, ok := e.allowed[req.Expert]; ok && !set[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is not granted to expert '%s'", req.Tool, req.Expert),
		}, nil
	}

	for _, re := range e.deniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
