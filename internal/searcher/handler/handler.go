// Package handler serves the search HTTP API over the merged index.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
}

type Handler struct {
	executor     SearchExecutor
	source       executor.Source
	tokenizer    *tokenizer.Tokenizer
	cache        *cache.QueryCache
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// Config carries the collaborators of a Handler. Cache and Metrics may be
// nil.
type Config struct {
	Executor     SearchExecutor
	Source       executor.Source
	Tokenizer    *tokenizer.Tokenizer
	Cache        *cache.QueryCache
	Metrics      *metrics.Metrics
	DefaultLimit int
	MaxResults   int
}

func New(cfg Config) *Handler {
	return &Handler{
		executor:     cfg.Executor,
		source:       cfg.Source,
		tokenizer:    cfg.Tokenizer,
		cache:        cfg.Cache,
		metrics:      cfg.Metrics,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/terms/{term}", h.Term)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/documents", h.LookupDocument)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.maxResults)
	}

	plan := parser.Parse(query, h.tokenizer)
	if plan.Empty() {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:     query,
			Results:   []ranker.ScoredDoc{},
			TermStats: map[string]int{},
		})
		return
	}
	if !h.ready() {
		h.writeError(w, http.StatusServiceUnavailable, "index is not loaded")
		return
	}

	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(ctx, log)
	}()

	var result *executor.SearchResult
	var err error
	cacheStatus := "disabled"
	if h.cache != nil {
		_, generation := h.source.Current()
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, generation, plan, limit, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, plan, limit)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.executor.Execute(ctx, plan, limit)
	}
	if err != nil {
		h.observe("error", cacheStatus, start)
		log.Error("search execution failed", "query", query, "error", err)
		h.writeErr(w, err)
		return
	}

	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.observe(resultType, cacheStatus, start)
	span.SetAttr("cache", cacheStatus)
	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"generation", result.Generation,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

type termResponse struct {
	index.LexiconEntry
	Postings []index.Posting `json:"postings,omitempty"`
}

// Term reports the merged statistics of one term. With postings=N the first
// N merged postings are included.
func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.current(w)
	if !ok {
		return
	}
	tokens := h.tokenizer.Tokenize(r.PathValue("term"))
	if len(tokens) != 1 {
		h.writeError(w, http.StatusBadRequest, "path must name exactly one indexable term")
		return
	}
	entry, found := idx.Lexicon().LookupTerm(tokens[0].Term)
	if !found {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("term %q not found", tokens[0].Term))
		return
	}
	resp := termResponse{LexiconEntry: entry}
	if n := r.URL.Query().Get("postings"); n != "" {
		limit, err := strconv.Atoi(n)
		if err != nil || limit < 1 {
			h.writeError(w, http.StatusBadRequest, "postings must be a positive integer")
			return
		}
		it, err := idx.InvertedIndex().Postings(entry)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		for len(resp.Postings) < limit && it.Next() {
			resp.Postings = append(resp.Postings, it.At())
		}
		if err := it.Err(); err != nil {
			h.writeErr(w, err)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type documentResponse struct {
	index.DocumentEntry
	Metadata map[string]string `json:"metadata"`
	Terms    map[string]int    `json:"terms,omitempty"`
}

// Document reports a document by global id. With terms=true and a direct
// index, its term frequencies are included.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.current(w)
	if !ok {
		return
	}
	docID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document id must be an integer")
		return
	}
	h.writeDocument(w, r, idx, docID)
}

// LookupDocument resolves ?key=&value= through a reverse metadata key.
func (h *Handler) LookupDocument(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.current(w)
	if !ok {
		return
	}
	key, value := r.URL.Query().Get("key"), r.URL.Query().Get("value")
	if key == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'key' is required")
		return
	}
	docID, err := idx.MetaIndex().DocID(key, value)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeDocument(w, r, idx, docID)
}

func (h *Handler) writeDocument(w http.ResponseWriter, r *http.Request, idx index.Index, docID int) {
	entry, err := idx.DocumentIndex().DocumentEntry(docID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	items, err := idx.MetaIndex().Items(docID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	resp := documentResponse{DocumentEntry: entry, Metadata: items}
	if r.URL.Query().Get("terms") == "true" {
		direct := idx.DirectIndex()
		if direct == nil {
			h.writeErr(w, apperrors.Incompatible("the shard set has no direct index"))
			return
		}
		it, err := direct.DocumentPostings(entry)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		postings, err := index.Drain(it)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		resp.Terms = make(map[string]int, len(postings))
		for _, p := range postings {
			if term, ok := idx.Lexicon().LookupID(p.ID); ok {
				resp.Terms[term.Term] = p.Frequency
			}
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type shardLister interface {
	ShardNames() []string
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	idx, generation := h.source.Current()
	if idx == nil {
		h.writeError(w, http.StatusServiceUnavailable, "index is not loaded")
		return
	}
	resp := map[string]any{
		"generation":   generation,
		"statistics":   idx.CollectionStatistics(),
		"capabilities": idx.Capabilities(),
		"has_direct":   idx.DirectIndex() != nil,
		"meta_keys":    idx.MetaIndex().Keys(),
	}
	if sl, ok := idx.(shardLister); ok {
		resp["shards"] = sl.ShardNames()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.Breaker().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ready() bool {
	idx, _ := h.source.Current()
	return idx != nil
}

func (h *Handler) current(w http.ResponseWriter) (index.Index, bool) {
	idx, _ := h.source.Current()
	if idx == nil {
		h.writeError(w, http.StatusServiceUnavailable, "index is not loaded")
		return nil, false
	}
	return idx, true
}

func (h *Handler) observe(resultType, cacheStatus string, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		message = "internal error"
	}
	h.writeError(w, status, message)
}
