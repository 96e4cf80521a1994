// Package leader implements the orchestration engine that plans an
// objective, routes each step to an expert, validates the accumulated
// results, and synthesizes the final answer.
package leader

import (
	"github.com/rahul/quorum/internal/expert"
	"github.com/rahul/quorum/internal/observability"
	"github.com/rahul/quorum/internal/prompts"
	"github.com/tmc/langchaingo/llms"
)

const (
	DefaultMaxSteps       = 5
	DefaultRecursionLimit = 40
)

// Options bounds a run. Zero values select the defaults.
type Options struct {
	// MaxSteps caps executed steps per run; reaching it forces a response.
	MaxSteps int
	// RecursionLimit caps node visits per run; exceeding it aborts the run.
	RecursionLimit int
}

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.RecursionLimit <= 0 {
		o.RecursionLimit = DefaultRecursionLimit
	}
	return o
}

type Engine struct {
	model   llms.Model
	prompts *prompts.Manager
	logger  *observability.Logger
	opts    Options
}

func NewEngine(model llms.Model, pm *prompts.Manager, logger *observability.Logger, opts Options) *Engine {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Engine{model: model, prompts: pm, logger: logger, opts: opts.withDefaults()}
}

func (e *Engine) Options() Options {
	return e.opts
}

type stepResult struct {
	Number int
	Step   string
	Output string
}

// promptData is the single shape every template renders from.
type promptData struct {
	Objective   string
	Plan        []string
	Step        string
	StepNumber  int
	Experts     []expert.Info
	Results     []stepResult
	Conclusions string
}

func results(s *State) []stepResult {
	out := make([]stepResult, 0, len(s.Progress))
	for i, p := range s.Progress {
		out = append(out, stepResult{Number: i + 1, Step: p.Step, Output: p.LastResult()})
	}
	return out
}
