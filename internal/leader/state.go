package leader

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rahul/quorum/internal/chat"
)

// Plan is an ordered, append-only list of step descriptions. Position is
// execution order.
type Plan struct {
	Steps []string `json:"steps"`
}

// HasPrefix reports whether p starts with every step of old, in order.
func (p Plan) HasPrefix(old Plan) bool {
	if len(old.Steps) > len(p.Steps) {
		return false
	}
	for i, s := range old.Steps {
		if p.Steps[i] != s {
			return false
		}
	}
	return true
}

// ProgressEntry records the messages an expert produced for one step.
type ProgressEntry struct {
	Step    string         `json:"step"`
	Results []chat.Message `json:"results"`
}

// LastResult returns the content of the final result message.
func (p ProgressEntry) LastResult() string {
	if m, ok := chat.Last(p.Results); ok {
		return m.Content
	}
	return "(no output)"
}

// PlanDecision is the validator's verdict.
type PlanDecision string

const (
	DecisionPlanning PlanDecision = "planning"
	DecisionRespond  PlanDecision = "respond"
)

// State is the record threaded through one orchestration run. Nodes never
// mutate it; they return a Patch that Apply folds into a new State.
type State struct {
	ChatID           string          `json:"chat_id"`
	RunID            string          `json:"run_id"`
	Messages         []chat.Message  `json:"messages"`
	InitialObjective string          `json:"initial_objective"`
	Objective        string          `json:"objective"`
	Plan             Plan            `json:"plan"`
	Progress         []ProgressEntry `json:"progress"`
	PlanDecision     PlanDecision    `json:"plan_decision,omitempty"`
	ExpertDecision   string          `json:"expert_decision,omitempty"`
	Traces           []string        `json:"traces"`
}

// Fresh reports whether the state carries no plan or progress.
func (s *State) Fresh() bool {
	return len(s.Plan.Steps) == 0 && len(s.Progress) == 0
}

// NextStep returns the first unexecuted step and its 1-based number.
func (s *State) NextStep() (string, int, bool) {
	idx := len(s.Progress)
	if idx >= len(s.Plan.Steps) {
		return "", 0, false
	}
	return s.Plan.Steps[idx], idx + 1, true
}

func (s *State) clone() *State {
	c := *s
	c.Messages = chat.Clone(s.Messages)
	c.Plan = Plan{Steps: append([]string(nil), s.Plan.Steps...)}
	c.Progress = append([]ProgressEntry(nil), s.Progress...)
	c.Traces = append([]string(nil), s.Traces...)
	return &c
}

// Enter prepares the state for a new run over messages. The latest human
// message becomes the objective; when it differs from the objective the
// prior run was launched for, plan and progress are discarded. Otherwise the
// prior run is continued with its plan and progress intact.
func Enter(prior *State, chatID string, messages []chat.Message) (*State, error) {
	candidate, ok := chat.LastHuman(messages)
	if !ok {
		return nil, ErrNoObjective
	}

	var s *State
	if prior != nil {
		s = prior.clone()
	} else {
		s = &State{}
	}
	s.ChatID = chatID
	s.RunID = uuid.NewString()
	s.Messages = chat.Clone(messages)
	s.Objective = candidate.Content

	if s.InitialObjective == "" || s.InitialObjective != candidate.Content {
		s.InitialObjective = candidate.Content
		s.Plan = Plan{}
		s.Progress = nil
		s.PlanDecision = ""
		s.ExpertDecision = ""
		s.Traces = nil
	}
	return s, nil
}

// Patch is the delta one node contributes. Slices are appended; pointer
// fields replace when set.
type Patch struct {
	Messages       []chat.Message
	Plan           *Plan
	Progress       []ProgressEntry
	PlanDecision   *PlanDecision
	ExpertDecision *string
	Traces         []string
}

var errPlanRewrite = errors.New("plan revision must keep existing steps")

// Apply returns a new state with p folded in. It rejects patches that would
// drop or reorder executed plan steps, or record progress past the plan.
func (s *State) Apply(p Patch) (*State, error) {
	next := s.clone()
	next.Messages = append(next.Messages, p.Messages...)
	next.Traces = append(next.Traces, p.Traces...)

	if p.Plan != nil {
		if len(s.Progress) > 0 && !p.Plan.HasPrefix(s.Plan) {
			return nil, errPlanRewrite
		}
		next.Plan = Plan{Steps: append([]string(nil), p.Plan.Steps...)}
	}
	next.Progress = append(next.Progress, p.Progress...)
	if len(next.Progress) > len(next.Plan.Steps) {
		return nil, fmt.Errorf("progress (%d) exceeds plan length (%d)", len(next.Progress), len(next.Plan.Steps))
	}

	if p.PlanDecision != nil {
		next.PlanDecision = *p.PlanDecision
	}
	if p.ExpertDecision != nil {
		next.ExpertDecision = *p.ExpertDecision
	}
	return next, nil
}
