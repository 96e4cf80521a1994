package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/leader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func newStore(t *testing.T) *HistoryStore {
	t.Helper()
	h, err := NewHistoryStore(filepath.Join(t.TempDir(), "quorum.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryRoundTripKeepsMetadata(t *testing.T) {
	h := newStore(t)
	ctx := context.Background()

	step := chat.AI("consumption was 42 kWh")
	step.Metadata = chat.Metadata{Node: "execute", ExpertName: "MonitoringExpert", StepNumber: 1, StepText: "fetch consumption"}
	require.NoError(t, h.AddMessages(ctx, "c1",
		chat.Human("how much energy?"),
		chat.Thought("planning", "Plan:\n1. fetch consumption"),
		step,
	))
	require.NoError(t, h.AddMessages(ctx, "c2", chat.Human("other chat")))

	got, err := h.GetHistory(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, llms.ChatMessageTypeHuman, got[0].Role)
	assert.True(t, got[1].Metadata.IsThought)
	assert.Equal(t, step, got[2])
}

func TestHistoryLimitKeepsMostRecent(t *testing.T) {
	h := newStore(t)
	ctx := context.Background()
	for _, c := range []string{"one", "two", "three"} {
		require.NoError(t, h.AddMessages(ctx, "c1", chat.Human(c)))
	}

	got, err := h.GetHistory(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Content)
	assert.Equal(t, "three", got[1].Content)
}

func TestStateRoundTrip(t *testing.T) {
	h := newStore(t)
	ctx := context.Background()

	none, err := h.LoadState(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, none)

	st := &leader.State{
		ChatID:           "c1",
		RunID:            "r1",
		Messages:         []chat.Message{chat.Human("q")},
		InitialObjective: "q",
		Objective:        "q",
		Plan:             leader.Plan{Steps: []string{"a", "b"}},
		Progress:         []leader.ProgressEntry{{Step: "a", Results: []chat.Message{chat.AI("done")}}},
		PlanDecision:     leader.DecisionPlanning,
		ExpertDecision:   "GeneralistExpert",
		Traces:           []string{"Planned 2 step(s)."},
	}
	require.NoError(t, h.SaveState(ctx, st))

	st.RunID = "r2"
	st.PlanDecision = leader.DecisionRespond
	require.NoError(t, h.SaveState(ctx, st))

	got, err := h.LoadState(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r2", got.RunID)
	assert.Equal(t, leader.DecisionRespond, got.PlanDecision)
	assert.Equal(t, st.Plan, got.Plan)
	assert.Equal(t, "done", got.Progress[0].LastResult())
	assert.Empty(t, got.Messages)
}

func TestSaveStateRequiresChatID(t *testing.T) {
	h := newStore(t)
	assert.Error(t, h.SaveState(context.Background(), &leader.State{}))
}

func TestClear(t *testing.T) {
	h := newStore(t)
	ctx := context.Background()
	require.NoError(t, h.AddMessages(ctx, "c1", chat.Human("q")))
	require.NoError(t, h.SaveState(ctx, &leader.State{ChatID: "c1", RunID: "r1"}))

	require.NoError(t, h.Clear(ctx, "c1"))

	got, err := h.GetHistory(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	st, err := h.LoadState(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, st)
}
