// Package indexer builds independent shard segments from documents. Each
// flush produces one complete, immutable shard that can later be merged with
// others at query time.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/config"
)

// Builder accumulates documents in memory and writes a new shard segment
// every MaxDocsPerShard documents.
type Builder struct {
	mu       sync.Mutex
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	cfg      config.IndexerConfig
	logger   *slog.Logger
	shards   []string
	total    int
	onFlush  FlushHook
}

// FlushHook is called after a shard segment has been written and verified.
// An error fails the flush that triggered it, but the segment stays on disk.
type FlushHook func(path string, docs int) error

// Options converts the indexer configuration into MemoryIndex options.
func Options(cfg config.IndexerConfig) index.Options {
	return index.Options{
		Blocks:          cfg.Blocks,
		Fields:          cfg.Fields,
		MetaKeys:        cfg.MetaKeys,
		ReverseMetaKeys: cfg.ReverseMetaKeys,
		Pipeline: tokenizer.Options{
			StopWords: cfg.Pipeline.StopWords,
			Stem:      cfg.Pipeline.Stem,
			MinLength: cfg.Pipeline.MinLength,
		},
	}
}

func NewBuilder(cfg config.IndexerConfig) (*Builder, error) {
	if cfg.MaxDocsPerShard <= 0 {
		return nil, fmt.Errorf("max docs per shard must be positive, got %d", cfg.MaxDocsPerShard)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	return &Builder{
		memIndex: index.NewMemoryIndex(Options(cfg)),
		writer:   segment.NewWriter(cfg.DataDir),
		cfg:      cfg,
		logger:   slog.Default().With("component", "indexer"),
	}, nil
}

// OnFlush installs hook, replacing any previous one.
func (b *Builder) OnFlush(hook FlushHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFlush = hook
}

// Add indexes one document into the current shard, flushing it once full.
func (b *Builder) Add(doc index.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	docID, err := b.memIndex.AddDocument(doc)
	if err != nil {
		return fmt.Errorf("indexing document: %w", err)
	}
	b.total++
	b.logger.Debug("document indexed in memory",
		"local_doc_id", docID,
		"mem_size", b.memIndex.Size(),
	)
	if b.memIndex.DocCount() >= b.cfg.MaxDocsPerShard {
		b.logger.Info("shard reached document limit, flushing to disk",
			"docs", b.memIndex.DocCount(),
			"threshold", b.cfg.MaxDocsPerShard,
		)
		if _, err := b.flush(); err != nil {
			return fmt.Errorf("flushing shard: %w", err)
		}
	}
	return nil
}

// Flush writes the pending documents as a new shard and returns its path,
// or "" when nothing is pending.
func (b *Builder) Flush() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flush()
}

func (b *Builder) flush() (string, error) {
	if b.memIndex.DocCount() == 0 {
		return "", nil
	}
	path, err := b.writer.Write(b.memIndex.Snapshot())
	if err != nil {
		return "", fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("verifying new segment: %w", err)
	}
	terms, docs := reader.Terms(), reader.DocCount()
	if err := reader.Close(); err != nil {
		return "", fmt.Errorf("closing verified segment: %w", err)
	}
	b.memIndex.Reset()
	b.shards = append(b.shards, path)
	b.logger.Info("shard flushed",
		"segment", filepath.Base(path),
		"terms", terms,
		"docs", docs,
		"shards_written", len(b.shards),
	)
	if b.onFlush != nil {
		if err := b.onFlush(path, int(docs)); err != nil {
			return path, fmt.Errorf("announcing shard %s: %w", filepath.Base(path), err)
		}
	}
	return path, nil
}

// Shards lists the segments written by this builder in write order.
func (b *Builder) Shards() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.shards...)
}

func (b *Builder) TotalDocs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Run indexes documents from docs until it is closed or ctx is cancelled,
// then flushes what is pending.
func (b *Builder) Run(ctx context.Context, docs <-chan index.Document) error {
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("builder stopping, performing final flush")
			if _, err := b.Flush(); err != nil {
				return err
			}
			return ctx.Err()
		case doc, ok := <-docs:
			if !ok {
				_, err := b.Flush()
				return err
			}
			if err := b.Add(doc); err != nil {
				return err
			}
		}
	}
}

// ListSegments returns the segment files in dir, sorted by name, which is
// also the order they were written in.
func ListSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			segFiles = append(segFiles, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(segFiles)
	return segFiles, nil
}
