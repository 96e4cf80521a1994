package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/rahul/quorum/internal/gateway"
	"github.com/spf13/cobra"
)

var chatID string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		answer, err := a.service.Think(ctx, chatID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the leader in the terminal (/quit to leave)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		a.watchPrompts(ctx, cfg.Prompts.Watch, logger)

		console := gateway.NewConsoleGateway(os.Stdin, cmd.OutOrStdout(), chatID, a.service, logger)
		return console.Start(ctx)
	},
}

func init() {
	for _, c := range []*cobra.Command{askCmd, chatCmd} {
		c.Flags().StringVar(&chatID, "chat", "cli", "conversation id; reuse it to continue a conversation")
	}
}
