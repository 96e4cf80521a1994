package expert

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/governance"
	"github.com/rahul/quorum/internal/llmtest"
	"github.com/rahul/quorum/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	var names []string
	for _, s := range c.Enabled() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"GeneralistExpert", "ResearchExpert", "WorkspaceExpert"}, names)
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
experts:
  - name: MonitoringExpert
    description: Reads energy meters
    categories: [sensors]
    enabled: true
  - name: RadioExpert
    description: Radio lookups
`), 0644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Experts, 2)
	assert.Equal(t, []string{"sensors"}, c.Experts[0].Categories)
	assert.Len(t, c.Enabled(), 1)
}

func TestParseCatalogRejectsDuplicates(t *testing.T) {
	_, err := ParseCatalog([]byte("experts:\n  - name: A\n  - name: A\n"))
	assert.ErrorContains(t, err, "declared twice")

	_, err = ParseCatalog([]byte("experts:\n  - description: nameless\n"))
	assert.ErrorContains(t, err, "has no name")
}

func TestSetEnabled(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	require.NoError(t, c.SetEnabled([]string{"BrowserExpert"}))
	enabled := c.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "BrowserExpert", enabled[0].Name)

	assert.Error(t, c.SetEnabled([]string{"Nobody"}))
}

func TestAssemblerBuildsRegistryInCatalogOrder(t *testing.T) {
	c, err := ParseCatalog([]byte(`
experts:
  - name: GeneralistExpert
    description: general
    enabled: true
  - name: WorkspaceExpert
    description: files
    enabled: true
    tools: [filesystem]
`))
	require.NoError(t, err)

	policy := governance.NewDefaultPolicyEngine()
	a := &Assembler{
		Catalog: c,
		Model:   llmtest.New(),
		Tools:   tools.NewRegistry(tools.NewFilesystemTool(t.TempDir()), tools.NewShellTool("")),
		Policy:  policy,
	}
	reg, err := a.Assemble(context.Background())
	require.NoError(t, err)
	defer reg.Close()
	assert.Equal(t, []string{"GeneralistExpert", "WorkspaceExpert"}, reg.Names())

	// assembling leaves the shared policy alone
	res, err := policy.Evaluate(context.Background(), governance.Request{Expert: "WorkspaceExpert", Tool: "shell"})
	require.NoError(t, err)
	assert.Equal(t, governance.EffectAllow, res.Effect)
}

func TestCatalogGrant(t *testing.T) {
	c, err := ParseCatalog([]byte(`
experts:
  - name: GeneralistExpert
  - name: WorkspaceExpert
    tools: [filesystem]
`))
	require.NoError(t, err)
	policy := governance.NewDefaultPolicyEngine()
	c.Grant(policy)

	tests := []struct {
		expert, tool string
		want         governance.Effect
	}{
		{"WorkspaceExpert", "filesystem", governance.EffectAllow},
		{"WorkspaceExpert", "shell", governance.EffectDeny},
		{"GeneralistExpert", "filesystem", governance.EffectDeny},
	}
	for _, tt := range tests {
		res, err := policy.Evaluate(context.Background(), governance.Request{Expert: tt.expert, Tool: tt.tool})
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Effect, "%s/%s", tt.expert, tt.tool)
	}
}

// pageTool stands in for a stateful browser session.
type pageTool struct {
	mu     sync.Mutex
	calls  int
	closed bool
}

func (p *pageTool) Name() string               { return "browser" }
func (p *pageTool) Description() string        { return "browses" }
func (p *pageTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (p *pageTool) Execute(ctx context.Context, input string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return "page text", nil
}

func (p *pageTool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func TestAssemblerGivesEachRegistryItsOwnSessionTools(t *testing.T) {
	c, err := ParseCatalog([]byte(`
experts:
  - name: BrowserExpert
    enabled: true
    tools: [browser]
`))
	require.NoError(t, err)

	// call the browser once, then answer
	model := &llmtest.Model{Respond: func(call llmtest.Call) llmtest.Reply {
		for _, m := range call.Messages {
			if m.Role == llms.ChatMessageTypeTool {
				return llmtest.Reply{Text: "done"}
			}
		}
		return llmtest.Reply{ToolCalls: []llms.ToolCall{llmtest.ToolCall("c1", "browser", map[string]string{"action": "text"})}}
	}}

	var mu sync.Mutex
	var created []*pageTool
	a := &Assembler{
		Catalog: c,
		Model:   model,
		SessionTools: func() []tools.Tool {
			mu.Lock()
			defer mu.Unlock()
			p := &pageTool{}
			created = append(created, p)
			return []tools.Tool{p}
		},
	}

	regA, err := a.Assemble(context.Background())
	require.NoError(t, err)
	regB, err := a.Assemble(context.Background())
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotSame(t, created[0], created[1])

	_, err = regA.Invoke(context.Background(), "BrowserExpert", []chat.Message{chat.Human("read the page")})
	require.NoError(t, err)
	assert.Equal(t, 1, created[0].calls)
	assert.Equal(t, 0, created[1].calls)

	regA.Close()
	assert.True(t, created[0].closed)
	assert.False(t, created[1].closed)

	regB.Close()
	regB.Close()
	assert.True(t, created[1].closed)
}

func TestAssemblerReleasesSessionToolsOnFailure(t *testing.T) {
	c, err := ParseCatalog([]byte("experts:\n  - name: A\n    enabled: true\n    tools: [teleport]\n"))
	require.NoError(t, err)
	p := &pageTool{}
	a := &Assembler{Catalog: c, Model: llmtest.New(), SessionTools: func() []tools.Tool { return []tools.Tool{p} }}

	_, err = a.Assemble(context.Background())
	require.Error(t, err)
	assert.True(t, p.closed)
}

func TestAssemblerErrors(t *testing.T) {
	c, err := ParseCatalog([]byte("experts:\n  - name: A\n    enabled: false\n"))
	require.NoError(t, err)
	_, err = (&Assembler{Catalog: c, Model: llmtest.New()}).Assemble(context.Background())
	assert.ErrorIs(t, err, ErrNoExperts)

	c, err = ParseCatalog([]byte("experts:\n  - name: A\n    enabled: true\n    tools: [teleport]\n"))
	require.NoError(t, err)
	_, err = (&Assembler{Catalog: c, Model: llmtest.New(), Tools: tools.NewRegistry()}).Assemble(context.Background())
	assert.ErrorContains(t, err, `unknown tool "teleport"`)
}
