// Package consumer feeds documents into a shard Builder, either from Kafka
// ingest events or from a JSON-lines stream.
package consumer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/kafka"
)

// maxLineSize bounds one JSON-lines document.
const maxLineSize = 16 << 20

// IngestEvent is one document to index. Text is used when the indexer has no
// fields configured.
type IngestEvent struct {
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

func (e IngestEvent) Document() index.Document {
	return index.Document{Text: e.Text, Fields: e.Fields, Meta: e.Meta}
}

// HandleMessage returns a Kafka MessageHandler that adds every ingest event
// to b. Undecodable events are logged and skipped so they are committed.
func HandleMessage(b *indexer.Builder) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if err := b.Add(event.Document()); err != nil {
			return fmt.Errorf("indexing event %s: %w", string(key), err)
		}
		logger.Debug("document indexed", "key", string(key))
		return nil
	}
}

// ReadJSONLines adds one document per non-empty line of r to b and returns
// the number added. It stops at the first malformed line.
func ReadJSONLines(ctx context.Context, r io.Reader, b *indexer.Builder) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	added, line := 0, 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return added, err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var event IngestEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return added, fmt.Errorf("line %d: %w", line, err)
		}
		if err := b.Add(event.Document()); err != nil {
			return added, fmt.Errorf("line %d: %w", line, err)
		}
		added++
	}
	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("reading documents: %w", err)
	}
	return added, nil
}
