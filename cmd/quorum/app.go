package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/quorum/internal/assistant"
	"github.com/rahul/quorum/internal/expert"
	"github.com/rahul/quorum/internal/governance"
	"github.com/rahul/quorum/internal/leader"
	"github.com/rahul/quorum/internal/observability"
	"github.com/rahul/quorum/internal/prompts"
	"github.com/rahul/quorum/internal/store"
	"github.com/rahul/quorum/internal/tools"
	"github.com/rahul/quorum/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// app holds the long-lived components every command shares.
type app struct {
	prompts *prompts.Manager
	history *store.HistoryStore
	service *assistant.Service
}

func newModel(name string, p config.ProviderConfig) (llms.Model, error) {
	switch name {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(p.APIKey),
			anthropic.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(p.BaseURL))
		}
		return anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(p.Model)}
		if p.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(p.BaseURL))
		}
		return ollama.New(opts...)
	case "":
		return nil, errors.New("no enabled provider found in config")
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
}

func loadCatalog(c config.ExpertsConfig) (*expert.Catalog, error) {
	catalog, err := expert.LoadCatalog(c.Catalog)
	if err != nil {
		return nil, err
	}
	if err := catalog.SetEnabled(c.Enabled); err != nil {
		return nil, err
	}
	return catalog, nil
}

// newToolRegistry builds the stateless tools every assembled expert shares.
func newToolRegistry(cfg *config.Config, logger *observability.Logger) *tools.Registry {
	registry := tools.NewRegistry()

	if search, err := tools.NewSearchTool(cfg.Tools.SearchMaxResults); err != nil {
		logger.Warn("search tool unavailable", zap.Error(err))
	} else {
		registry.Register(search)
	}
	registry.Register(tools.NewScraperTool())
	registry.Register(tools.NewFilesystemTool(cfg.App.Workspace))

	shell := tools.NewShellTool(cfg.App.Workspace)
	if cfg.Tools.ShellTimeout > 0 {
		shell.Timeout = cfg.Tools.ShellTimeout
	}
	registry.Register(shell)
	return registry
}

// sessionTools opens a fresh browser per assembled registry so concurrent
// chats never drive the same page.
func sessionTools(cfg *config.Config) func() []tools.Tool {
	return func() []tools.Tool {
		return []tools.Tool{tools.NewBrowserTool(cfg.Tools.BrowserHeadless)}
	}
}

func newApp(cfg *config.Config, logger *observability.Logger) (*app, error) {
	model, err := newModel(cfg.GetDefaultProvider())
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(cfg.Experts)
	if err != nil {
		return nil, err
	}
	if len(catalog.Enabled()) == 0 {
		return nil, expert.ErrNoExperts
	}

	pm, err := prompts.NewManager(cfg.Prompts.Dir)
	if err != nil {
		return nil, err
	}
	history, err := store.NewHistoryStore(cfg.Memory.Path)
	if err != nil {
		return nil, err
	}

	policy := governance.NewStrictPolicyEngine()
	catalog.Grant(policy)
	assembler := &expert.Assembler{
		Catalog:      catalog,
		Model:        model,
		Tools:        newToolRegistry(cfg, logger),
		SessionTools: sessionTools(cfg),
		Policy:       policy,
		Logger:       logger,
	}

	engine := leader.NewEngine(model, pm, logger, leader.Options{
		MaxSteps:       cfg.Leader.MaxSteps,
		RecursionLimit: cfg.Leader.RecursionLimit,
	})

	return &app{
		prompts: pm,
		history: history,
		service: assistant.NewService(engine, history, assembler, logger, cfg.Memory.HistoryLimit),
	}, nil
}

// watchPrompts reloads edited templates in the background until ctx is done.
func (a *app) watchPrompts(ctx context.Context, enabled bool, logger *observability.Logger) {
	if !enabled {
		return
	}
	go func() {
		if err := a.prompts.Watch(ctx, logger.Zap()); err != nil {
			logger.Warn("prompt watcher stopped", zap.Error(err))
		}
	}()
}

func (a *app) Close() {
	if err := a.history.Close(); err != nil {
		logger.Warn("closing history", zap.Error(err))
	}
}
