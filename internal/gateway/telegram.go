package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/quorum/internal/assistant"
	"github.com/rahul/quorum/internal/observability"
	"go.uber.org/zap"
)

const telegramLimit = 4096

type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Brain  assistant.Brain
	logger *observability.Logger
	wg     sync.WaitGroup
}

func NewTelegramGateway(token string, brain assistant.Brain, logger *observability.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNop()
	}

	logger.Info("telegram authorized", zap.String("account", bot.Self.UserName))

	return &TelegramGateway{
		Bot:    bot,
		Brain:  brain,
		logger: logger,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)
	defer tg.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			tg.Bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			msg := update.Message
			tg.logger.Info("telegram message", zap.String("user", msg.From.UserName), zap.Int64("chat_id", msg.Chat.ID))

			tg.wg.Add(1)
			go func() {
				defer tg.wg.Done()
				chatID := strconv.FormatInt(msg.Chat.ID, 10)
				response := answer(ctx, tg.Brain, tg.logger, chatID, msg.Text)
				if response == "" {
					return
				}
				if err := tg.Send(chatID, response); err != nil {
					tg.logger.Error("telegram send", zap.String("chat_id", chatID), zap.Error(err))
				}
			}()
		}
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, chunk := range split(text, telegramLimit) {
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(id, chunk)); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
