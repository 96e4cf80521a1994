package leader

import (
	"context"
	"fmt"

	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/expert"
	"github.com/rahul/quorum/internal/observability"
)

// Node identifies a state of the orchestration graph.
type Node string

const (
	NodePlanning  Node = "planning"
	NodeSupervise Node = "supervise"
	NodeExecute   Node = "execute"
	NodeValidate  Node = "validate"
	NodeRespond   Node = "respond"
	NodeEnd       Node = "end"
)

// Run drives one orchestration over messages, which must end in a human
// turn. prior is the state persisted for this conversation, or nil.
//
// Nodes run strictly in sequence: planning, then supervise, which routes to
// execute (and back) or to validate, which routes back to planning or on to
// respond. A node that has started always completes; cancellation of ctx is
// observed between nodes. The returned state is the last consistent state
// reached, also on error.
func (e *Engine) Run(ctx context.Context, chatID string, messages []chat.Message, reg *expert.Registry, prior *State) (*State, error) {
	s, err := Enter(prior, chatID, messages)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = expert.NewRegistry()
	}

	observability.SetStatus(chatID, observability.RoleLeader, string(NodePlanning))
	defer observability.SetStatus(chatID, observability.RoleIdle, "")
	e.logger.Log(observability.Event{
		Type:   observability.EventTypeRun,
		ChatID: chatID,
		RunID:  s.RunID,
		Data:   map[string]any{"objective": s.InitialObjective, "continued": !s.Fresh()},
	})

	// in-flight nodes finish even if the caller goes away
	nodeCtx := context.WithoutCancel(ctx)

	node := NodePlanning
	for visits := 0; node != NodeEnd; visits++ {
		if err := ctx.Err(); err != nil {
			return s, fmt.Errorf("run abandoned before %s: %w", node, err)
		}
		if visits >= e.opts.RecursionLimit {
			return s, &RecursionLimitError{Limit: e.opts.RecursionLimit, Node: node}
		}
		observability.SetStatus(chatID, observability.RoleLeader, string(node))

		var (
			patch Patch
			next  Node
		)
		switch node {
		case NodePlanning:
			patch, err = e.plan(nodeCtx, s, reg)
			next = NodeSupervise
		case NodeSupervise:
			route := ShouldExecuteOrValidate(s, e.opts.MaxSteps)
			e.logger.LogDecision(chatID, s.RunID, string(NodeSupervise), string(route))
			next = NodeValidate
			if route == RouteExecute {
				next = NodeExecute
			}
		case NodeExecute:
			patch, err = e.execute(nodeCtx, s, reg)
			next = NodeSupervise
		case NodeValidate:
			patch, err = e.validate(nodeCtx, s, reg)
		case NodeRespond:
			patch, err = e.respond(nodeCtx, s)
			next = NodeEnd
		default:
			return s, fmt.Errorf("unknown node %q", node)
		}
		if err != nil {
			return s, fmt.Errorf("%s: %w", node, err)
		}

		applied, applyErr := s.Apply(patch)
		if applyErr != nil {
			return s, fmt.Errorf("%s: %w", node, applyErr)
		}
		s = applied
		for _, line := range patch.Traces {
			e.logger.LogTrace(chatID, s.RunID, line)
		}

		if node == NodeValidate {
			e.logger.LogDecision(chatID, s.RunID, string(NodeValidate), string(s.PlanDecision))
			next = NodePlanning
			if s.PlanDecision == DecisionRespond {
				next = NodeRespond
			}
		}
		node = next
	}
	return s, nil
}

// Answer returns the content of the final message of a completed run.
func (s *State) Answer() string {
	if m, ok := chat.Last(s.Messages); ok && m.Metadata.Node == string(NodeRespond) {
		return m.Content
	}
	return ""
}

// Appended returns the messages a run added after the first n input messages.
func (s *State) Appended(n int) []chat.Message {
	if n >= len(s.Messages) {
		return nil
	}
	return chat.Clone(s.Messages[n:])
}
