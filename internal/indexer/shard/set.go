// Package shard opens ordered sets of shard segments. The order of the paths
// is the order the shards are merged in, so it fixes the global document id
// ranges.
package shard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

// maxParallelOpens bounds the number of segments opened concurrently.
const maxParallelOpens = 8

// Set owns the segment readers of one shard list.
type Set struct {
	mu      sync.Mutex
	paths   []string
	readers []*segment.Reader
	closed  bool
	logger  *slog.Logger
}

// Open opens every segment in paths in parallel. The first failure cancels
// the remaining opens, closes the readers already opened and is returned.
func Open(ctx context.Context, paths []string) (*Set, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no shard paths", apperrors.ErrInvalidInput)
	}
	readers := make([]*segment.Reader, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelOpens)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return apperrors.ShardUnavailable(path, err)
			}
			r, err := segment.OpenReader(path)
			if err != nil {
				return err
			}
			readers[i] = r
			return nil
		})
	}
	err := g.Wait()

	s := &Set{
		paths:   append([]string(nil), paths...),
		readers: readers,
		logger:  slog.Default().With("component", "shard-set"),
	}
	if err != nil {
		s.Close()
		return nil, err
	}
	var docs uint32
	for _, r := range readers {
		docs += r.DocCount()
	}
	s.logger.Info("shard set opened", "shards", len(readers), "documents", docs)
	return s, nil
}

// Indexes returns the shards as index.Index values in path order.
func (s *Set) Indexes() []index.Index {
	out := make([]index.Index, len(s.readers))
	for i, r := range s.readers {
		out[i] = r
	}
	return out
}

func (s *Set) Paths() []string {
	return append([]string(nil), s.paths...)
}

func (s *Set) Len() int {
	return len(s.readers)
}

// Close closes every reader. Closing twice is a no-op.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for i, r := range s.readers {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			s.logger.Error("close failed", "path", s.paths[i], "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
