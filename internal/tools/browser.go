package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserTool drives one shared headless Chrome session. The session stays
// open across calls until the expert asks to close it or Close is called.
type BrowserTool struct {
	Headless bool
	Timeout  time.Duration

	mu            sync.Mutex
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowserTool(headless bool) *BrowserTool {
	return &BrowserTool{Headless: headless, Timeout: 60 * time.Second}
}

func (b *BrowserTool) Name() string {
	return "browser"
}

func (b *BrowserTool) Description() string {
	return "Control a browser to interact with websites. Actions: 'navigate', 'text', 'html', 'click', 'type', 'wait', 'close'."
}

func (b *BrowserTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"navigate", "text", "html", "click", "type", "wait", "close"},
				"description": "The action to perform.",
			},
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to navigate to (required for 'navigate')",
			},
			"selector": map[string]any{
				"type":        "string",
				"description": "CSS selector for the target element (required for 'click', 'type', 'wait'; defaults to body for 'text')",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "The text to type (required for 'type')",
			},
		},
		"required": []string{"action"},
	}
}

func (b *BrowserTool) session() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return b.browserCtx, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}
	b.browserCtx, b.allocCancel, b.browserCancel = browserCtx, allocCancel, browserCancel
	return browserCtx, nil
}

func (b *BrowserTool) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.browserCancel = nil
	b.allocCancel = nil
}

// Close shuts the browser down.
func (b *BrowserTool) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
}

func (b *BrowserTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action   string `json:"action"`
		URL      string `json:"url"`
		Selector string `json:"selector"`
		Text     string `json:"text"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}

	if msg := validateBrowserArgs(args.Action, args.URL, args.Selector, args.Text); msg != "" {
		return msg, nil
	}
	if args.Action == "close" {
		b.Close()
		return "Successfully closed the browser.", nil
	}

	browserCtx, err := b.session()
	if err != nil {
		return "", fmt.Errorf("failed to initialize browser: %w", err)
	}

	actionCtx, cancel := context.WithTimeout(browserCtx, b.Timeout)
	defer cancel()
	// stop the action when the caller goes away, without tearing down the shared session
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var result string
	switch args.Action {
	case "navigate":
		err = chromedp.Run(actionCtx, chromedp.Navigate(args.URL))
		result = fmt.Sprintf("Successfully navigated to %s", args.URL)
	case "text":
		sel := args.Selector
		if sel == "" {
			sel = "body"
		}
		err = chromedp.Run(actionCtx, chromedp.Text(sel, &result, chromedp.ByQuery))
		result = truncate(result, maxScrapedChars, "\n... (truncated)")
	case "html":
		err = chromedp.Run(actionCtx, chromedp.OuterHTML("html", &result, chromedp.ByQuery))
		result = truncate(result, maxScrapedChars, "\n... (truncated)")
	case "click":
		err = chromedp.Run(actionCtx, chromedp.Click(args.Selector, chromedp.ByQuery))
		result = fmt.Sprintf("Clicked %s", args.Selector)
	case "type":
		err = chromedp.Run(actionCtx, chromedp.SendKeys(args.Selector, args.Text, chromedp.ByQuery))
		result = fmt.Sprintf("Typed text in %s", args.Selector)
	case "wait":
		err = chromedp.Run(actionCtx, chromedp.WaitVisible(args.Selector, chromedp.ByQuery))
		result = fmt.Sprintf("Finished waiting for %s", args.Selector)
	}

	if err != nil {
		return fmt.Sprintf("Browser action failed: %v", err), nil
	}
	return result, nil
}

// validateBrowserArgs returns a message for the model when required
// arguments are missing, or "" when the call may proceed.
func validateBrowserArgs(action, url, selector, text string) string {
	switch action {
	case "navigate":
		if url == "" {
			return "Error: url is required for 'navigate'"
		}
	case "click", "wait":
		if selector == "" {
			return fmt.Sprintf("Error: selector is required for '%s'", action)
		}
	case "type":
		if selector == "" || text == "" {
			return "Error: selector and text required for 'type'"
		}
	case "text", "html", "close":
	default:
		return fmt.Sprintf("Invalid action %q", action)
	}
	return ""
}
