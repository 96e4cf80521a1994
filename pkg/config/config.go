// Package config loads quorum settings from a config file and QUORUM_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig                 `mapstructure:"app"`
	Gateways  map[string]GatewayConfig  `mapstructure:"gateways"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Memory    MemoryConfig              `mapstructure:"memory"`
	Leader    LeaderConfig              `mapstructure:"leader"`
	Experts   ExpertsConfig             `mapstructure:"experts"`
	Prompts   PromptsConfig             `mapstructure:"prompts"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Tools     ToolsConfig               `mapstructure:"tools"`
}

type AppConfig struct {
	Name      string `mapstructure:"name"`
	Workspace string `mapstructure:"workspace"`
	// Provider names the provider to use; empty picks the first enabled one.
	Provider string `mapstructure:"provider"`
}

type GatewayConfig struct {
	Token   string `mapstructure:"token"`
	Enabled bool   `mapstructure:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	Enabled bool   `mapstructure:"enabled"`
}

type MemoryConfig struct {
	Type         string `mapstructure:"type"`
	Path         string `mapstructure:"path"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

// LeaderConfig bounds each orchestration run.
type LeaderConfig struct {
	MaxSteps       int `mapstructure:"max_steps"`
	RecursionLimit int `mapstructure:"recursion_limit"`
}

type ExpertsConfig struct {
	// Catalog is a YAML catalog path; empty uses the built-in catalog.
	Catalog string `mapstructure:"catalog"`
	// Enabled overrides the catalog's enabled flags when non-empty.
	Enabled []string `mapstructure:"enabled"`
}

type PromptsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type ToolsConfig struct {
	SearchMaxResults int           `mapstructure:"search_max_results"`
	BrowserHeadless  bool          `mapstructure:"browser_headless"`
	ShellTimeout     time.Duration `mapstructure:"shell_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "quorum")
	v.SetDefault("app.workspace", "./workspace")
	v.SetDefault("app.provider", "")
	v.SetDefault("memory.type", "sqlite")
	v.SetDefault("memory.path", "quorum.db")
	v.SetDefault("memory.history_limit", 50)
	v.SetDefault("leader.max_steps", 5)
	v.SetDefault("leader.recursion_limit", 40)
	v.SetDefault("experts.catalog", "")
	v.SetDefault("experts.enabled", []string{})
	v.SetDefault("prompts.dir", "")
	v.SetDefault("prompts.watch", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
	v.SetDefault("tools.search_max_results", 5)
	v.SetDefault("tools.browser_headless", true)
	v.SetDefault("tools.shell_timeout", 30*time.Second)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QUORUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional provider and bot variables.
	v.BindEnv("providers.openai.api_key", "QUORUM_PROVIDERS_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("providers.anthropic.api_key", "QUORUM_PROVIDERS_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("gateways.telegram.token", "QUORUM_GATEWAYS_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("gateways.discord.token", "QUORUM_GATEWAYS_DISCORD_TOKEN", "DISCORD_BOT_TOKEN")
	return v
}

// Load reads config.{json,yaml} from the working directory or
// $HOME/.config/quorum. A missing file leaves defaults and environment.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quorum")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return decode(v)
}

// LoadFromPath reads the config file at path.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Leader.MaxSteps < 1 {
		return fmt.Errorf("leader.max_steps must be at least 1, got %d", c.Leader.MaxSteps)
	}
	if c.Leader.RecursionLimit < 1 {
		return fmt.Errorf("leader.recursion_limit must be at least 1, got %d", c.Leader.RecursionLimit)
	}
	if c.App.Provider != "" {
		if _, ok := c.Providers[c.App.Provider]; !ok {
			return fmt.Errorf("app.provider %q has no providers entry", c.App.Provider)
		}
	}
	return nil
}

// GetDefaultProvider returns the configured provider, or the first enabled
// one by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	if c.App.Provider != "" {
		return c.App.Provider, c.Providers[c.App.Provider]
	}
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
