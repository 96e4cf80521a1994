package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rahul/quorum/internal/assistant"
	"github.com/rahul/quorum/internal/observability"
	"go.uber.org/zap"
)

const discordLimit = 2000

// DiscordGateway answers direct messages and mentions. Each channel is one
// conversation.
type DiscordGateway struct {
	Session *discordgo.Session
	Brain   assistant.Brain
	logger  *observability.Logger

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func NewDiscordGateway(token string, brain assistant.Brain, logger *observability.Logger) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNop()
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return &DiscordGateway{Session: session, Brain: brain, logger: logger}, nil
}

func (dg *DiscordGateway) Start(ctx context.Context) error {
	remove := dg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		text, ok := addressed(s, m)
		if !ok {
			return
		}
		dg.logger.Info("discord message", zap.String("user", m.Author.Username), zap.String("channel", m.ChannelID))

		accepted := dg.spawn(func() {
			response := answer(ctx, dg.Brain, dg.logger, m.ChannelID, text)
			if response == "" {
				return
			}
			if err := dg.Send(m.ChannelID, response); err != nil {
				dg.logger.Error("discord send", zap.String("channel", m.ChannelID), zap.Error(err))
			}
		})
		if !accepted {
			dg.logger.Info("discord shutting down, message dropped", zap.String("channel", m.ChannelID))
		}
	})
	defer remove()

	if err := dg.Session.Open(); err != nil {
		return err
	}
	dg.logger.Info("discord connected")

	<-ctx.Done()
	remove()
	dg.drain()
	return dg.Session.Close()
}

// spawn runs fn on its own goroutine unless the gateway is draining.
func (dg *DiscordGateway) spawn(fn func()) bool {
	dg.mu.Lock()
	defer dg.mu.Unlock()
	if dg.closing {
		return false
	}
	dg.wg.Add(1)
	go func() {
		defer dg.wg.Done()
		fn()
	}()
	return true
}

// drain refuses new work and waits for in-flight replies.
func (dg *DiscordGateway) drain() {
	dg.mu.Lock()
	dg.closing = true
	dg.mu.Unlock()
	dg.wg.Wait()
}

// addressed returns the message text when the bot is meant to answer it:
// direct messages always, guild messages only when the bot is mentioned.
func addressed(s *discordgo.Session, m *discordgo.MessageCreate) (string, bool) {
	if m.Author == nil || m.Author.Bot || s.State == nil || s.State.User == nil {
		return "", false
	}
	self := s.State.User.ID
	if m.Author.ID == self {
		return "", false
	}
	if m.GuildID == "" {
		return m.Content, true
	}
	for _, u := range m.Mentions {
		if u.ID == self {
			text := strings.NewReplacer("<@"+self+">", "", "<@!"+self+">", "").Replace(m.Content)
			return strings.TrimSpace(text), true
		}
	}
	return "", false
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	for _, chunk := range split(text, discordLimit) {
		if _, err := dg.Session.ChannelMessageSend(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
