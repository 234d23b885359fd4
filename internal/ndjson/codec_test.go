package ndjson

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	encoder := NewEncoder(&buf, testLogger())
	decoder := NewDecoder(&buf, testLogger())

	require.NoError(t, encoder.Encode(sample{Name: "w1", Count: 3}))

	var decoded sample
	require.NoError(t, decoder.Decode(&decoded))
	assert.Equal(t, "w1", decoded.Name)
	assert.Equal(t, 3, decoded.Count)
}

func TestDecodeSkipsEmptyLines(t *testing.T) {
	input := strings.NewReader("\n\n{\"name\":\"w2\",\"count\":7}\n")
	decoder := NewDecoder(input, testLogger())

	var decoded sample
	require.NoError(t, decoder.Decode(&decoded))
	assert.Equal(t, "w2", decoded.Name)
}

func TestDecodeEOFOnEmptyStream(t *testing.T) {
	decoder := NewDecoder(strings.NewReader(""), testLogger())
	var decoded sample
	assert.ErrorIs(t, decoder.Decode(&decoded), io.EOF)
}

func TestEncodeRejectsOversizedRecord(t *testing.T) {
	var buf bytes.Buffer
	encoder := NewEncoder(&buf, testLogger())

	big := sample{Name: strings.Repeat("x", MaxMessageSize+10)}
	err := encoder.Encode(big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestMultipleRecordsDecodeInOrder(t *testing.T) {
	var buf bytes.Buffer
	encoder := NewEncoder(&buf, testLogger())
	for i := 1; i <= 3; i++ {
		require.NoError(t, encoder.Encode(sample{Name: "w", Count: i}))
	}

	decoder := NewDecoder(&buf, testLogger())
	for i := 1; i <= 3; i++ {
		var decoded sample
		require.NoError(t, decoder.Decode(&decoded))
		assert.Equal(t, i, decoded.Count)
	}
	var extra sample
	assert.ErrorIs(t, decoder.Decode(&extra), io.EOF)
}

func TestAggregateTelemetrySumsTurnCompletedRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.jsonl")
	body := `{"type":"turn.started"}
{"type":"turn.completed","usage":{"input_tokens":100,"cached_input_tokens":20,"output_tokens":50}}
{"type":"turn.completed","usage":{"input_tokens":80,"cached_input_tokens":0,"output_tokens":30}}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	usage, err := AggregateTelemetry(path)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Turns)
	assert.Equal(t, 180, usage.InputTokens)
	assert.Equal(t, 20, usage.CachedInputTokens)
	assert.Equal(t, 80, usage.OutputTokens)
}

func TestAggregateTelemetryMissingFileReturnsZero(t *testing.T) {
	usage, err := AggregateTelemetry(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, TokenUsage{}, usage)
}

func TestAggregateTelemetrySkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.jsonl")
	body := "not json at all\n{\"type\":\"turn.completed\",\"usage\":{\"input_tokens\":5,\"output_tokens\":5}}\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	usage, err := AggregateTelemetry(path)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Turns)
	assert.Equal(t, 5, usage.InputTokens)
}
