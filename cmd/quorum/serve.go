package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/quorum/internal/gateway"
	"github.com/rahul/quorum/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enabled chat gateways",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		var messengers []gateway.Messenger
		if tg, ok := cfg.GetTelegramConfig(); ok {
			m, err := gateway.NewTelegramGateway(tg.Token, a.service, logger)
			if err != nil {
				return err
			}
			messengers = append(messengers, m)
		}
		if dc, ok := cfg.GetDiscordConfig(); ok {
			m, err := gateway.NewDiscordGateway(dc.Token, a.service, logger)
			if err != nil {
				return err
			}
			messengers = append(messengers, m)
		}
		if len(messengers) == 0 {
			return errors.New("no gateway is enabled; configure telegram or discord, or use the chat command")
		}

		a.watchPrompts(ctx, cfg.Prompts.Watch, logger)

		g, gctx := errgroup.WithContext(ctx)
		for _, m := range messengers {
			g.Go(func() error { return m.Start(gctx) })
		}
		g.Go(func() error {
			heartbeat(gctx, 30*time.Second)
			return nil
		})

		logger.Info("quorum serving", zap.Int("gateways", len(messengers)))
		err = g.Wait()
		logger.Info("quorum stopped")
		return err
	},
}

// heartbeat logs the chats with a run in flight.
func heartbeat(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active := observability.Snapshot()
			if len(active) == 0 {
				continue
			}
			for _, s := range active {
				logger.Info("active chat",
					zap.String("chat_id", s.ChatID),
					zap.String("role", string(s.Role)),
					zap.String("task", s.Task),
					zap.Duration("idle", time.Since(s.UpdatedAt)))
			}
		}
	}
}
