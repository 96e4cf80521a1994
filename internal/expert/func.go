package expert

import (
	"context"

	"github.com/rahul/quorum/internal/chat"
)

// Func adapts a plain function into an Expert.
type Func struct {
	ExpertName        string
	ExpertDescription string
	ExpertCategories  []string
	Fn                func(ctx context.Context, messages []chat.Message) ([]chat.Message, error)
}

func (f *Func) Name() string         { return f.ExpertName }
func (f *Func) Description() string  { return f.ExpertDescription }
func (f *Func) Categories() []string { return f.ExpertCategories }

func (f *Func) Invoke(ctx context.Context, messages []chat.Message) ([]chat.Message, error) {
	return f.Fn(ctx, messages)
}
