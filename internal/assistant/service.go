// Package assistant turns one inbound chat message into one orchestrated
// answer, persisting the conversation around each run.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rahul/quorum/internal/chat"
	"github.com/rahul/quorum/internal/expert"
	"github.com/rahul/quorum/internal/leader"
	"github.com/rahul/quorum/internal/observability"
	"go.uber.org/zap"
)

// Brain defines the core intelligence interface the gateways talk to.
type Brain interface {
	Think(ctx context.Context, chatID string, input string) (string, error)
}

var (
	// ErrBusy is returned when the chat already has a run in flight.
	ErrBusy = errors.New("a request for this chat is still running")
	// ErrEmptyInput is returned for blank messages.
	ErrEmptyInput = errors.New("message is empty")
)

// HistoryStore persists the conversation log and the leader state.
type HistoryStore interface {
	AddMessages(ctx context.Context, chatID string, messages ...chat.Message) error
	GetHistory(ctx context.Context, chatID string, limit int) ([]chat.Message, error)
	SaveState(ctx context.Context, st *leader.State) error
	LoadState(ctx context.Context, chatID string) (*leader.State, error)
}

// RegistryBuilder yields the expert registry for one conversation turn.
type RegistryBuilder interface {
	Assemble(ctx context.Context) (*expert.Registry, error)
}

// AssembleFunc adapts a function into a RegistryBuilder.
type AssembleFunc func(ctx context.Context) (*expert.Registry, error)

func (f AssembleFunc) Assemble(ctx context.Context) (*expert.Registry, error) { return f(ctx) }

type Service struct {
	engine       *leader.Engine
	history      HistoryStore
	experts      RegistryBuilder
	logger       *observability.Logger
	historyLimit int

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewService wires a Service. historyLimit bounds the messages loaded per
// turn; zero loads the whole log.
func NewService(engine *leader.Engine, history HistoryStore, experts RegistryBuilder, logger *observability.Logger, historyLimit int) *Service {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Service{
		engine:       engine,
		history:      history,
		experts:      experts,
		logger:       logger,
		historyLimit: historyLimit,
		busy:         make(map[string]struct{}),
	}
}

// Think runs one orchestration for input and returns the final answer.
// Runs for different chats proceed concurrently; a second message for a chat
// whose run is still in flight is rejected with ErrBusy.
func (s *Service) Think(ctx context.Context, chatID string, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}
	if !s.acquire(chatID) {
		return "", ErrBusy
	}
	defer s.release(chatID)

	history, err := s.history.GetHistory(ctx, chatID, s.historyLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	prior, err := s.history.LoadState(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("load state: %w", err)
	}
	reg, err := s.experts.Assemble(ctx)
	if err != nil {
		return "", fmt.Errorf("assemble experts: %w", err)
	}
	defer reg.Close()

	messages := append(history, chat.Human(input))
	st, runErr := s.engine.Run(ctx, chatID, messages, reg, prior)
	if st != nil {
		// whatever the run reached is kept, also when the caller went away
		if err := s.persist(context.WithoutCancel(ctx), st, len(history)); err != nil {
			s.logger.Error("persist run", zap.String("chat_id", chatID), zap.Error(err))
			if runErr == nil {
				runErr = err
			}
		}
	}
	if runErr != nil {
		s.logger.Error("run failed", zap.String("chat_id", chatID), zap.Error(runErr))
		return "", runErr
	}

	answer := st.Answer()
	if answer == "" {
		return "", errors.New("run finished without an answer")
	}
	return answer, nil
}

func (s *Service) persist(ctx context.Context, st *leader.State, known int) error {
	if err := s.history.AddMessages(ctx, st.ChatID, st.Appended(known)...); err != nil {
		return err
	}
	return s.history.SaveState(ctx, st)
}

func (s *Service) acquire(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.busy[chatID]; ok {
		return false
	}
	s.busy[chatID] = struct{}{}
	return true
}

func (s *Service) release(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, chatID)
}
