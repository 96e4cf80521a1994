package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rahul/quorum/internal/assistant"
	"github.com/rahul/quorum/internal/observability"
	"golang.org/x/term"
)

// ConsoleGateway is a local chat on stdin/stdout. On a terminal it uses line
// editing with history; otherwise it reads plain lines.
type ConsoleGateway struct {
	Brain  assistant.Brain
	ChatID string
	in     io.Reader
	out    io.Writer
	logger *observability.Logger

	mu sync.Mutex
	w  io.Writer
}

func NewConsoleGateway(in io.Reader, out io.Writer, chatID string, brain assistant.Brain, logger *observability.Logger) *ConsoleGateway {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &ConsoleGateway{Brain: brain, ChatID: chatID, in: in, out: out, w: out, logger: logger}
}

func (c *ConsoleGateway) Start(ctx context.Context) error {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return c.interactive(ctx, f)
	}

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if quit := c.handle(ctx, scanner.Text()); quit {
			return nil
		}
	}
	return scanner.Err()
}

func (c *ConsoleGateway) interactive(ctx context.Context, f *os.File) error {
	state, err := term.MakeRaw(int(f.Fd()))
	if err != nil {
		return err
	}
	defer term.Restore(int(f.Fd()), state)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{f, c.out}, "> ")
	c.mu.Lock()
	c.w = t
	c.mu.Unlock()

	for {
		line, err := t.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if quit := c.handle(ctx, line); quit {
			return nil
		}
	}
}

func (c *ConsoleGateway) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	}
	if response := answer(ctx, c.Brain, c.logger, c.ChatID, line); response != "" {
		c.Send(c.ChatID, response)
	}
	return false
}

func (c *ConsoleGateway) Send(chatID string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, text)
	return err
}

func (c *ConsoleGateway) Stop() error { return nil }
