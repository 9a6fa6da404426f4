// Package reload keeps the merged index the searcher queries. A reload opens
// the new shard list and builds a fresh merged index beside the current one,
// then swaps it in atomically; the previous shards are closed after a grace
// period so in-flight queries can finish.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/multiindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/metrics"
)

// PathSource lists the shard segments to merge, in merge order.
type PathSource interface {
	ShardPaths(ctx context.Context) ([]string, error)
}

// StaticPaths is a fixed shard list.
type StaticPaths []string

func (p StaticPaths) ShardPaths(context.Context) ([]string, error) {
	return append([]string(nil), p...), nil
}

type generation struct {
	id    uint64
	index *multiindex.MultiIndex
	set   *shard.Set
}

type Holder struct {
	source  PathSource
	opts    multiindex.Options
	grace   time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	current atomic.Pointer[generation]
	// reloadMu serialises reloads so generation ids follow swap order.
	reloadMu sync.Mutex

	mu       sync.Mutex
	retiring map[*generation]*time.Timer
	closed   bool
}

// New returns an empty Holder. Call Reload before serving queries. m may be
// nil.
func New(source PathSource, opts multiindex.Options, grace time.Duration, m *metrics.Metrics) *Holder {
	return &Holder{
		source:   source,
		opts:     opts,
		grace:    grace,
		metrics:  m,
		logger:   slog.Default().With("component", "merge-reloader"),
		retiring: make(map[*generation]*time.Timer),
	}
}

// Current returns the active merged index and its generation. It satisfies
// executor.Source.
func (h *Holder) Current() (index.Index, uint64) {
	g := h.current.Load()
	if g == nil {
		return nil, 0
	}
	return g.index, g.id
}

// Index returns the active merged index, or nil before the first reload.
func (h *Holder) Index() *multiindex.MultiIndex {
	if g := h.current.Load(); g != nil {
		return g.index
	}
	return nil
}

func (h *Holder) Generation() uint64 {
	if g := h.current.Load(); g != nil {
		return g.id
	}
	return 0
}

func (h *Holder) Ready() bool {
	return h.current.Load() != nil
}

// Reload rebuilds the merged index from the shard list of the PathSource.
func (h *Holder) Reload(ctx context.Context) error {
	paths, err := h.source.ShardPaths(ctx)
	if err != nil {
		h.count("failed")
		return fmt.Errorf("listing shards: %w", err)
	}
	return h.ReloadPaths(ctx, paths)
}

// ReloadPaths rebuilds the merged index over paths. On failure the current
// index stays active.
func (h *Holder) ReloadPaths(ctx context.Context, paths []string) error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return apperrors.New(apperrors.ErrShardUnavailable, http.StatusServiceUnavailable, "merged index holder is closed")
	}

	start := time.Now()
	set, err := shard.Open(ctx, paths)
	if err != nil {
		h.count("failed")
		return fmt.Errorf("opening shards: %w", err)
	}
	var options []multiindex.Option
	if h.metrics != nil {
		options = append(options, multiindex.WithMetrics(h.metrics))
	}
	mi, err := multiindex.New(set.Indexes(), h.opts, options...)
	if err != nil {
		set.Close()
		h.count("failed")
		return fmt.Errorf("merging shards: %w", err)
	}

	next := &generation{index: mi, set: set, id: h.Generation() + 1}
	prev := h.current.Swap(next)
	h.count("success")
	h.logger.Info("merged index swapped",
		"generation", next.id,
		"shards", set.Len(),
		"documents", mi.CollectionStatistics().NumDocuments,
		"duration", time.Since(start),
	)
	if prev != nil {
		h.retire(prev)
	}
	return nil
}

func (h *Holder) retire(g *generation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retiring[g] = time.AfterFunc(h.grace, func() {
		if err := g.set.Close(); err != nil {
			h.logger.Error("closing retired shards failed", "generation", g.id, "error", err)
		} else {
			h.logger.Info("retired shards closed", "generation", g.id)
		}
		h.mu.Lock()
		delete(h.retiring, g)
		h.mu.Unlock()
	})
}

// Retiring reports how many replaced generations are still open.
func (h *Holder) Retiring() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.retiring)
}

// HandleMessage reloads on a shards-changed event. It is a
// kafka.MessageHandler.
func (h *Holder) HandleMessage(ctx context.Context, key, value []byte) error {
	event, err := kafka.DecodeJSON[catalog.ShardsChanged](value)
	if err != nil {
		return err
	}
	h.logger.Info("shards changed", "reason", event.Reason, "paths", len(event.Paths))
	if len(event.Paths) > 0 {
		return h.ReloadPaths(ctx, event.Paths)
	}
	return h.Reload(ctx)
}

// Close closes the active shards and every retiring generation immediately.
func (h *Holder) Close() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.mu.Lock()
	h.closed = true
	pending := make([]*generation, 0, len(h.retiring))
	for g, timer := range h.retiring {
		timer.Stop()
		pending = append(pending, g)
		delete(h.retiring, g)
	}
	h.mu.Unlock()

	var firstErr error
	if g := h.current.Swap(nil); g != nil {
		pending = append(pending, g)
	}
	for _, g := range pending {
		if err := g.set.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Holder) count(status string) {
	if h.metrics != nil {
		h.metrics.MergeReloadsTotal.WithLabelValues(status).Inc()
	}
}
