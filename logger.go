package recipeagent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// TurnLogger records one structured entry per handled turn.
type TurnLogger interface {
	LogTurn(turn TurnLog) error
}

// NewTurnLogFilePath returns a file path based on a cleaned up model id so
// logs produced with different models are easy to tell apart.
func NewTurnLogFilePath(model string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.NewReplacer(":", "_", "/", "_").Replace(strings.ToLower(model)),
	)
}

// TurnLog represents a single handled turn.
type TurnLog struct {
	SessionID        string        `json:"session_id"`
	Timestamp        time.Time     `json:"timestamp"`
	Input            string        `json:"input,omitempty"`
	HasImage         bool          `json:"has_image"`
	Refused          bool          `json:"refused,omitempty"`
	IngredientSource string        `json:"ingredient_source,omitempty"`
	Ingredients      []string      `json:"ingredients,omitempty"`
	Preferences      Preferences   `json:"preferences"`
	ToolCalls        []ToolCallLog `json:"tool_calls,omitempty"`
	Output           string        `json:"output,omitempty"`
	LatencyMs        int64         `json:"latency_ms"`
	Error            string        `json:"error,omitempty"`
}

// ToolCallLog represents one external call made during a turn.
type ToolCallLog struct {
	Name       string         `json:"name"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// FileTurnLogger accumulates turns and writes them on Flush.
type FileTurnLogger struct {
	mu     sync.Mutex
	turns  []TurnLog
	writer io.Writer
}

func NewFileTurnLogger(writer io.Writer) *FileTurnLogger {
	return &FileTurnLogger{
		turns:  make([]TurnLog, 0),
		writer: writer,
	}
}

// LogTurn buffers the turn (does not flush immediately)
func (l *FileTurnLogger) LogTurn(turn TurnLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turn)
	return nil
}

// Flush writes all buffered turns to the writer.
func (l *FileTurnLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"conversation_log": map[string]any{
			"timestamp": time.Now(),
			"turns":     l.turns,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal turn log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write turn log: %w", err)
	}

	l.turns = l.turns[:0]
	return nil
}

// NoOpTurnLogger discards all entries.
type NoOpTurnLogger struct{}

func NewNoOpTurnLogger() *NoOpTurnLogger {
	return &NoOpTurnLogger{}
}

func (nop *NoOpTurnLogger) LogTurn(turn TurnLog) error {
	return nil
}

// StdoutTurnLogger writes each turn as a JSON line (for Lambda/CloudWatch).
type StdoutTurnLogger struct {
	mu  sync.Mutex
	out io.Writer
}

func NewStdoutTurnLogger() *StdoutTurnLogger {
	return &StdoutTurnLogger{out: os.Stdout}
}

func (l *StdoutTurnLogger) LogTurn(turn TurnLog) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = fmt.Fprintln(l.out, string(data))
	return err
}
