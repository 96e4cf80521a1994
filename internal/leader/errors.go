package leader

import (
	"errors"
	"fmt"
)

var (
	// ErrNoObjective is returned when the message log holds no human turn.
	ErrNoObjective = errors.New("conversation has no human message")
	// ErrEmptyRegistry is returned when a step must run but no expert is registered.
	ErrEmptyRegistry = errors.New("expert registry is empty")
)

// ConfigError is a fatal deployment problem surfaced by a node.
type ConfigError struct {
	Node Node
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %v", e.Node, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StructuredOutputError means a model reply did not fit the declared schema.
type StructuredOutputError struct {
	Function string
	Raw      string
	Err      error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("structured output %s: %v", e.Function, e.Err)
}

func (e *StructuredOutputError) Unwrap() error { return e.Err }

// RecursionLimitError aborts a run that visited more nodes than allowed.
type RecursionLimitError struct {
	Limit int
	Node  Node
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("recursion limit of %d node visits reached before %s", e.Limit, e.Node)
}
