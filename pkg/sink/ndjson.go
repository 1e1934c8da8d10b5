package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/feature-harvester/pkg/harvest"
)

// NDJSONSink writes one JSON object per line.
type NDJSONSink struct {
	buf *bufio.Writer
	enc *json.Encoder
}

// NewNDJSONSink creates a sink writing to w. Output is buffered until Close.
func NewNDJSONSink(w io.Writer) *NDJSONSink {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &NDJSONSink{buf: buf, enc: enc}
}

// Write implements Sink.
func (s *NDJSONSink) Write(_ context.Context, rec harvest.Record) error {
	if err := s.enc.Encode(rec); err != nil {
		harvestSinkWritesTotal.WithLabelValues("ndjson", "error").Inc()
		return fmt.Errorf("encode record: %w", err)
	}
	harvestSinkWritesTotal.WithLabelValues("ndjson", "ok").Inc()
	return nil
}

// Close flushes buffered output. The underlying writer is left open.
func (s *NDJSONSink) Close(context.Context) error {
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
