// Package expert holds the per-conversation directory of specialized agents
// the leader delegates plan steps to.
package expert

import (
	"context"
	"fmt"
	"sync"

	"github.com/rahul/quorum/internal/chat"
)

// Expert is a capability provider that runs its own reasoning loop to
// completion for one delegated step.
type Expert interface {
	Name() string
	Description() string
	Categories() []string
	Invoke(ctx context.Context, messages []chat.Message) ([]chat.Message, error)
}

// Info is the prompt-facing summary of a registered expert.
type Info struct {
	Name        string
	Description string
	Categories  []string
}

// UnknownExpertError is returned when a name does not resolve to a
// registered expert.
type UnknownExpertError struct {
	Name  string
	Known []string
}

func (e *UnknownExpertError) Error() string {
	return fmt.Sprintf("unknown expert %q (registered: %v)", e.Name, e.Known)
}

// Registry maps expert names to experts, preserving registration order.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	experts map[string]Expert
	order   []string
	closers []func()
}

func NewRegistry(experts ...Expert) *Registry {
	r := &Registry{experts: make(map[string]Expert)}
	for _, e := range experts {
		r.Register(e)
	}
	return r
}

// Register adds e. Registering a name again replaces the expert in place.
func (r *Registry) Register(e Expert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.experts[e.Name()]; !ok {
		r.order = append(r.order, e.Name())
	}
	r.experts[e.Name()] = e
}

func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.experts[name]; !ok {
		return
	}
	delete(r.experts, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Lookup(name string) (Expert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.experts[name]
	return e, ok
}

func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, n := range r.order {
		e := r.experts[n]
		out = append(out, Info{
			Name:        e.Name(),
			Description: e.Description(),
			Categories:  append([]string(nil), e.Categories()...),
		})
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Invoke runs the named expert on messages.
func (r *Registry) Invoke(ctx context.Context, name string, messages []chat.Message) ([]chat.Message, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return nil, &UnknownExpertError{Name: name, Known: r.Names()}
	}
	return e.Invoke(ctx, messages)
}

// OnClose registers fn to run when the registry is released.
func (r *Registry) OnClose(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, fn)
}

// Close releases resources owned by this registry's experts. Calling it
// again is a no-op.
func (r *Registry) Close() {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()
	for _, fn := range closers {
		fn()
	}
}

type ctxKey struct{}

// WithChatID tags ctx with the conversation an invocation belongs to.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, chatID)
}

func ChatIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
