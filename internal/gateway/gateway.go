// Package gateway connects chat platforms to the assistant.
package gateway

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/rahul/quorum/internal/assistant"
	"github.com/rahul/quorum/internal/observability"
	"go.uber.org/zap"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start listens for messages until ctx is done or the platform fails.
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

const (
	failureReply = "I'm having trouble thinking right now..."
	busyReply    = "I'm still working on your previous message. Give me a moment."
)

// answer asks brain for a reply and maps failures to a user-facing text.
// Error details only reach the log.
func answer(ctx context.Context, brain assistant.Brain, logger *observability.Logger, chatID, text string) string {
	response, err := brain.Think(ctx, chatID, text)
	switch {
	case err == nil:
		return response
	case errors.Is(err, assistant.ErrBusy):
		return busyReply
	case errors.Is(err, assistant.ErrEmptyInput):
		return ""
	default:
		logger.Error("think failed", zap.String("chat_id", chatID), zap.Error(err))
		return failureReply
	}
}

// split cuts text into chunks of at most limit bytes, preferring line breaks.
// Chunks always end on a rune boundary.
func split(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if text[i-1] == '\n' {
				cut = i
				break
			}
		}
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			_, cut = utf8.DecodeRuneInString(text)
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
