package assistant

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/expert"
	"github.com/rahul/quorum/internal/leader"
	"github.com/rahul/quorum/internal/llmtest"
	"github.com/rahul/quorum/internal/observability"
	"github.com/rahul/quorum/internal/prompts"
	"github.com/rahul/quorum/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// oneStepModel plans one step, always picks GeneralistExpert and responds
// with the last conclusion. It keeps no state so chats can share it.
func oneStepModel(decision string) *llmtest.Model {
	return &llmtest.Model{Respond: func(c llmtest.Call) llmtest.Reply {
		if len(c.Options.Tools) == 0 {
			return llmtest.Reply{Text: "answer"}
		}
		switch fn := c.Options.Tools[0].Function.Name; fn {
		case "submit_plan":
			return llmtest.Structured(fn, map[string]any{"steps": []string{"do it"}})
		case "select_expert":
			return llmtest.Structured(fn, map[string]string{"expert": "GeneralistExpert"})
		default:
			return llmtest.Structured(fn, map[string]string{"decision": decision})
		}
	}}
}

func newService(t *testing.T, model *llmtest.Model, opts leader.Options, fn func(ctx context.Context, messages []chat.Message) ([]chat.Message, error)) (*Service, *store.HistoryStore) {
	t.Helper()
	pm, err := prompts.NewManager("")
	require.NoError(t, err)
	history, err := store.NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	engine := leader.NewEngine(model, pm, observability.NewNop(), opts)
	experts := AssembleFunc(func(ctx context.Context) (*expert.Registry, error) {
		return expert.NewRegistry(&expert.Func{ExpertName: "GeneralistExpert", ExpertDescription: "general questions", Fn: fn}), nil
	})
	return NewService(engine, history, experts, nil, 0), history
}

func echo(ctx context.Context, messages []chat.Message) ([]chat.Message, error) {
	return []chat.Message{chat.AI("done")}, nil
}

func TestThinkPersistsRun(t *testing.T) {
	svc, history := newService(t, oneStepModel("respond"), leader.Options{}, echo)
	ctx := context.Background()

	answer, err := svc.Think(ctx, "c1", "  Hello  ")
	require.NoError(t, err)
	assert.Equal(t, "answer", answer)

	log, err := history.GetHistory(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, log, 4)
	assert.Equal(t, "Hello", log[0].Content)
	assert.True(t, log[1].Metadata.IsThought)
	assert.Equal(t, "GeneralistExpert", log[2].Metadata.ExpertName)
	assert.Equal(t, "respond", log[3].Metadata.Node)

	st, err := history.LoadState(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "Hello", st.InitialObjective)
	assert.Len(t, st.Progress, 1)
}

func TestThinkNewObjectiveStartsFresh(t *testing.T) {
	svc, history := newService(t, oneStepModel("respond"), leader.Options{}, echo)
	ctx := context.Background()

	_, err := svc.Think(ctx, "c1", "first question")
	require.NoError(t, err)
	_, err = svc.Think(ctx, "c1", "second question")
	require.NoError(t, err)

	st, err := history.LoadState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "second question", st.InitialObjective)
	assert.Len(t, st.Plan.Steps, 1)

	log, err := history.GetHistory(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Len(t, log, 8)
}

func TestThinkRejectsBlankInput(t *testing.T) {
	svc, _ := newService(t, oneStepModel("respond"), leader.Options{}, echo)
	_, err := svc.Think(context.Background(), "c1", "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestThinkPersistsFailedRun(t *testing.T) {
	boom := errors.New("tool crashed")
	svc, history := newService(t, oneStepModel("respond"), leader.Options{}, func(ctx context.Context, messages []chat.Message) ([]chat.Message, error) {
		return nil, boom
	})
	ctx := context.Background()

	_, err := svc.Think(ctx, "c1", "Hello")
	require.ErrorIs(t, err, boom)

	log, err := history.GetHistory(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "Hello", log[0].Content)

	st, err := history.LoadState(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Len(t, st.Plan.Steps, 1)
	assert.Empty(t, st.Progress)
}

func TestThinkBusyChat(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	svc, _ := newService(t, oneStepModel("respond"), leader.Options{}, func(ctx context.Context, messages []chat.Message) ([]chat.Message, error) {
		if expert.ChatIDFrom(ctx) == "slow" {
			// only the first run on the slow chat blocks
			first.Do(func() {
				close(started)
				<-release
			})
		}
		return []chat.Message{chat.AI("done")}, nil
	})
	ctx := context.Background()

	var g errgroup.Group
	g.Go(func() error {
		_, err := svc.Think(ctx, "slow", "take your time")
		return err
	})

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow run never reached its expert")
	}

	_, err := svc.Think(ctx, "slow", "are you there?")
	assert.ErrorIs(t, err, ErrBusy)

	// other chats are not held up
	answer, err := svc.Think(ctx, "fast", "quick one")
	require.NoError(t, err)
	assert.Equal(t, "answer", answer)

	close(release)
	require.NoError(t, g.Wait())

	_, err = svc.Think(ctx, "slow", "again")
	assert.NoError(t, err)
}

func TestThinkConcurrentChats(t *testing.T) {
	svc, history := newService(t, oneStepModel("respond"), leader.Options{}, echo)
	ctx := context.Background()

	chats := []string{"a", "b", "c", "d", "e"}
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range chats {
		g.Go(func() error {
			_, err := svc.Think(gctx, id, "hello from "+id)
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range chats {
		st, err := history.LoadState(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, st)
		assert.Equal(t, "hello from "+id, st.InitialObjective)
	}
}

func TestThinkResumesAfterStepCeiling(t *testing.T) {
	svc, history := newService(t, oneStepModel("planning"), leader.Options{MaxSteps: 2}, echo)
	ctx := context.Background()

	_, err := svc.Think(ctx, "c1", "dig")
	require.NoError(t, err)
	first, err := history.LoadState(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, first.Progress, 2)

	_, err = svc.Think(ctx, "c1", "dig")
	require.NoError(t, err)
	second, err := history.LoadState(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, second.Progress, 2)
	assert.True(t, second.Plan.HasPrefix(first.Plan))
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestThinkClosesTurnRegistry(t *testing.T) {
	pm, err := prompts.NewManager("")
	require.NoError(t, err)
	history, err := store.NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	var closed int
	experts := AssembleFunc(func(ctx context.Context) (*expert.Registry, error) {
		reg := expert.NewRegistry(&expert.Func{ExpertName: "GeneralistExpert", ExpertDescription: "general questions", Fn: echo})
		reg.OnClose(func() { closed++ })
		return reg, nil
	})
	engine := leader.NewEngine(oneStepModel("respond"), pm, observability.NewNop(), leader.Options{})
	svc := NewService(engine, history, experts, nil, 0)

	_, err = svc.Think(context.Background(), "c1", "first")
	require.NoError(t, err)
	_, err = svc.Think(context.Background(), "c1", "second")
	require.NoError(t, err)
	assert.Equal(t, 2, closed)
}
