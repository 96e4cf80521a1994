package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeDecision    EventType = "decision"
	EventTypeTrace       EventType = "trace"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeLLM         EventType = "llm"
	EventTypeRun         EventType = "run"
)

// Event represents a structured log entry.
type Event struct {
	Type   EventType
	ChatID string
	RunID  string
	Data   map[string]any
}

// Logger emits structured events through zap.
type Logger struct {
	z *zap.Logger
}

// NewLogger builds a production zap logger. level is one of debug, info, warn, error;
// json=false switches to the console encoder.
func NewLogger(level string, json bool) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	if !json {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &Logger{z: z}, nil
}

// Wrap adapts an existing zap logger.
func Wrap(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func (l *Logger) Zap() *zap.Logger {
	return l.z
}

func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Log emits a structured event at info level, llm payloads at debug.
func (l *Logger) Log(evt Event) {
	fields := make([]zap.Field, 0, len(evt.Data)+3)
	fields = append(fields, zap.String("type", string(evt.Type)))
	if evt.ChatID != "" {
		fields = append(fields, zap.String("chat_id", evt.ChatID))
	}
	if evt.RunID != "" {
		fields = append(fields, zap.String("run_id", evt.RunID))
	}
	for k, v := range evt.Data {
		fields = append(fields, zap.Any(k, v))
	}

	if evt.Type == EventTypeLLM {
		l.z.Debug("llm exchange", fields...)
		return
	}
	l.z.Info(string(evt.Type), fields...)
}

// Helper methods for common events

func (l *Logger) LogPlan(chatID, runID string, steps []string, replanned bool) {
	l.Log(Event{
		Type:   EventTypePlan,
		ChatID: chatID,
		RunID:  runID,
		Data:   map[string]any{"steps": steps, "replanned": replanned},
	})
}

func (l *Logger) LogStep(chatID, runID string, number int, expert, step string) {
	l.Log(Event{
		Type:   EventTypeStep,
		ChatID: chatID,
		RunID:  runID,
		Data:   map[string]any{"step_number": number, "expert": expert, "step": step},
	})
}

func (l *Logger) LogDecision(chatID, runID, node, decision string) {
	l.Log(Event{
		Type:   EventTypeDecision,
		ChatID: chatID,
		RunID:  runID,
		Data:   map[string]any{"node": node, "decision": decision},
	})
}

func (l *Logger) LogTrace(chatID, runID, line string) {
	l.Log(Event{
		Type:   EventTypeTrace,
		ChatID: chatID,
		RunID:  runID,
		Data:   map[string]any{"trace": line},
	})
}

func (l *Logger) LogToolCall(chatID, expert, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		ChatID: chatID,
		Data:   map[string]any{"expert": expert, "tool": tool, "args": args},
	})
}

func (l *Logger) LogPolicyCheck(chatID, expert, tool, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		ChatID: chatID,
		Data:   map[string]any{"expert": expert, "tool": tool, "effect": effect, "reason": reason},
	})
}

func (l *Logger) LogLLM(chatID, runID, node string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		RunID:  runID,
		Data: map[string]any{
			"node":       node,
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.z.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.z.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.z.Error(msg, fields...)
}
