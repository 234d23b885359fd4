// Package ndjson provides line-delimited JSON encoding/decoding, used to
// read each worker's telemetry stream (spec.md §4.11 "tokens").
package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// MaxMessageSize is the maximum NDJSON line size (256 KiB).
const MaxMessageSize = 256 * 1024

// Encoder writes NDJSON records to an output stream.
type Encoder struct {
	writer *bufio.Writer
	logger *slog.Logger
}

// NewEncoder creates a new NDJSON encoder.
func NewEncoder(w io.Writer, logger *slog.Logger) *Encoder {
	return &Encoder{
		writer: bufio.NewWriter(w),
		logger: logger,
	}
}

// Encode writes v as a single JSON line.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ndjson: marshal record: %w", err)
	}

	if len(data) > MaxMessageSize {
		e.logger.Error("record exceeds size limit", "size", len(data), "limit", MaxMessageSize)
		return fmt.Errorf("ndjson: record size %d exceeds limit %d", len(data), MaxMessageSize)
	}

	if _, err := e.writer.Write(data); err != nil {
		return fmt.Errorf("ndjson: write record: %w", err)
	}
	if err := e.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("ndjson: write newline: %w", err)
	}
	return e.writer.Flush()
}

// Decoder reads NDJSON records from an input stream, one per line.
type Decoder struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	lineNum int
}

// NewDecoder creates a new NDJSON decoder.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, MaxMessageSize)
	scanner.Buffer(buf, MaxMessageSize)

	return &Decoder{scanner: scanner, logger: logger, lineNum: 0}
}

// Decode reads the next non-empty line into v. Returns io.EOF at end of stream.
func (d *Decoder) Decode(v any) error {
	for d.scanner.Scan() {
		d.lineNum++
		data := d.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("ndjson: unmarshal line %d: %w", d.lineNum, err)
		}
		return nil
	}
	if err := d.scanner.Err(); err != nil {
		return fmt.Errorf("ndjson: scanner error at line %d: %w", d.lineNum, err)
	}
	return io.EOF
}
