package ndjson

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// TurnUsage is one "turn.completed" telemetry record emitted by the agent
// CLI into a worker's telemetry JSONL stream (spec.md §4.11 "tokens").
type TurnUsage struct {
	Type  string `json:"type"`
	Usage struct {
		InputTokens       int `json:"input_tokens"`
		CachedInputTokens int `json:"cached_input_tokens"`
		OutputTokens      int `json:"output_tokens"`
	} `json:"usage"`
}

// TokenUsage is the aggregate token/turn count for one worker's run.
type TokenUsage struct {
	Turns             int `json:"turns"`
	InputTokens       int `json:"input_tokens"`
	CachedInputTokens int `json:"cached_input_tokens"`
	OutputTokens      int `json:"output_tokens"`
}

// Add folds one turn's usage into the running aggregate.
func (t *TokenUsage) Add(u TurnUsage) {
	t.Turns++
	t.InputTokens += u.Usage.InputTokens
	t.CachedInputTokens += u.Usage.CachedInputTokens
	t.OutputTokens += u.Usage.OutputTokens
}

// AggregateTelemetry reads a worker's telemetry JSONL file and sums every
// "turn.completed" record's token usage. A missing file yields a zero
// TokenUsage, not an error — telemetry capture is best-effort (spec.md
// §4.11).
func AggregateTelemetry(path string) (TokenUsage, error) {
	var usage TokenUsage

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return usage, nil
		}
		return usage, fmt.Errorf("ndjson: open telemetry %s: %w", path, err)
	}
	defer f.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decoder := NewDecoder(f, logger)

	for {
		var record TurnUsage
		err := decoder.Decode(&record)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// a malformed telemetry line doesn't invalidate the whole run;
			// skip it and keep summing what parses.
			continue
		}
		if record.Type == "turn.completed" {
			usage.Add(record)
		}
	}

	return usage, nil
}
