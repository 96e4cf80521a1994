package expert

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/quorum/internal/governance"
	"github.com/rahul/quorum/internal/observability"
	"github.com/rahul/quorum/internal/tools"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/errgroup"
)

// ErrNoExperts means a registry was requested but the catalog enables nothing.
var ErrNoExperts = errors.New("no experts enabled")

// Assembler builds a fresh registry for each conversation from a catalog.
type Assembler struct {
	Catalog *Catalog
	Model   llms.Model
	// Tools are stateless and shared by every registry.
	Tools *tools.Registry
	// SessionTools creates the stateful tools owned by one registry. They are
	// closed with it.
	SessionTools func() []tools.Tool
	Policy       governance.PolicyEngine
	Logger       *observability.Logger
}

type closer interface {
	Close()
}

// Assemble instantiates every enabled expert. Experts are compiled
// concurrently and registered in catalog order. The caller must Close the
// returned registry.
func (a *Assembler) Assemble(ctx context.Context) (*Registry, error) {
	specs := a.Catalog.Enabled()
	if len(specs) == 0 {
		return nil, ErrNoExperts
	}

	toolset := a.Tools
	if toolset == nil {
		toolset = tools.NewRegistry()
	}
	var session []tools.Tool
	if a.SessionTools != nil {
		session = a.SessionTools()
		toolset = toolset.With(session...)
	}
	release := func() {
		for _, t := range session {
			if c, ok := t.(closer); ok {
				c.Close()
			}
		}
	}

	built := make([]Expert, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, spec := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			x, err := a.build(spec, toolset)
			if err != nil {
				return err
			}
			built[i] = x
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		release()
		return nil, err
	}

	reg := NewRegistry(built...)
	reg.OnClose(release)
	return reg, nil
}

func (a *Assembler) build(spec Spec, available *tools.Registry) (Expert, error) {
	toolset := tools.NewRegistry()
	if len(spec.Tools) > 0 {
		sub, err := available.Subset(spec.Tools...)
		if err != nil {
			return nil, fmt.Errorf("expert %s: %w", spec.Name, err)
		}
		toolset = sub
	}

	return NewToolExpert(ToolExpertConfig{
		Name:          spec.Name,
		Description:   spec.Description,
		Categories:    spec.Categories,
		Prompt:        spec.Prompt,
		Model:         a.Model,
		Tools:         toolset,
		Policy:        a.Policy,
		Logger:        a.Logger,
		MaxIterations: spec.MaxIterations,
	})
}
