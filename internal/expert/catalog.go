package expert

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/rahul/quorum/internal/governance"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Spec describes one expert the assembler can build.
type Spec struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Categories    []string `yaml:"categories"`
	Prompt        string   `yaml:"prompt"`
	Tools         []string `yaml:"tools"`
	Enabled       bool     `yaml:"enabled"`
	MaxIterations int      `yaml:"max_iterations"`
}

type Catalog struct {
	Experts []Spec `yaml:"experts"`
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse expert catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalog reads a catalog file, or the built-in catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read expert catalog: %w", err)
	}
	return ParseCatalog(data)
}

func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool)
	for i, s := range c.Experts {
		if s.Name == "" {
			return fmt.Errorf("expert catalog entry %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("expert %q is declared twice", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Enabled returns the enabled entries in declaration order.
func (c *Catalog) Enabled() []Spec {
	var out []Spec
	for _, s := range c.Experts {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// SetEnabled overrides the enabled flag from a name list; an empty list
// leaves the catalog unchanged.
func (c *Catalog) SetEnabled(names []string) error {
	if len(names) == 0 {
		return nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	for i := range c.Experts {
		c.Experts[i].Enabled = want[c.Experts[i].Name]
		delete(want, c.Experts[i].Name)
	}
	for n := range want {
		return fmt.Errorf("enabled expert %q is not in the catalog", n)
	}
	return nil
}

// Grant limits every catalog expert to the tools it declares. It is meant
// to run once at startup, before any registry is assembled.
func (c *Catalog) Grant(policy *governance.DefaultPolicyEngine) {
	for _, s := range c.Experts {
		policy.AllowTools(s.Name, s.Tools...)
	}
}
