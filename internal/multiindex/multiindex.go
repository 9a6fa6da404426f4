// Package multiindex presents several immutable index shards as one
// read-only index. Shards are referenced, never copied; the merged view must
// not outlive them.
package multiindex

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/metrics"
)

// Options selects the optional posting data the merged index exposes.
type Options struct {
	BlocksEnabled bool
	FieldsEnabled bool
	// StrictCapabilities fails construction when blocks are requested but a
	// shard has no positions, instead of dropping positions everywhere.
	StrictCapabilities bool
}

type Option func(*MultiIndex)

func WithLogger(logger *slog.Logger) Option {
	return func(mi *MultiIndex) {
		mi.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(mi *MultiIndex) {
		mi.metrics = m
	}
}

// MultiIndex is the merged view. All read methods are safe for concurrent
// use; the lexicon's term id cache is the only state written after New.
type MultiIndex struct {
	shards       []*shardHandle
	mapper       *DocIDMapper
	lexicon      *Lexicon
	docs         documentIndex
	meta         *metaIndex
	stats        index.CollectionStatistics
	capabilities index.Capabilities
	kind         index.PostingKind
	hasDirect    bool
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// New merges shards in the given order, which fixes the global document id
// ranges. Any shard that cannot be opened fails the whole construction.
func New(shards []index.Index, opts Options, options ...Option) (*MultiIndex, error) {
	mi := &MultiIndex{
		logger: slog.Default().With("component", "multiindex"),
	}
	for _, o := range options {
		o(mi)
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("%w: at least one shard is required", apperrors.ErrInvalidInput)
	}

	counts := make([]int, len(shards))
	for i, idx := range shards {
		h, err := newShardHandle(i, idx)
		if err != nil {
			return nil, err
		}
		mi.shards = append(mi.shards, h)
		counts[i] = h.numDocuments()
	}

	caps, err := mi.negotiate(opts)
	if err != nil {
		return nil, err
	}
	mi.capabilities = caps
	mi.kind = caps.Kind()

	mi.mapper, err = NewDocIDMapper(counts)
	if err != nil {
		return nil, err
	}
	mi.meta, err = newMetaIndex(mi.shards, mi.mapper)
	if err != nil {
		return nil, err
	}
	mi.docs = documentIndex{shards: mi.shards, mapper: mi.mapper}

	mi.hasDirect = true
	for _, h := range mi.shards {
		if h.direct == nil {
			mi.hasDirect = false
			mi.logger.Info("direct index disabled, shard has no forward postings", "shard", h.name)
			break
		}
	}

	fields := len(caps.Fields)
	mi.lexicon = newLexicon(mi.shards, fields, mi.logger, mi.metrics)
	mi.stats = aggregateStatistics(mi.shards, mi.lexicon.NumTerms(), fields)

	if mi.metrics != nil {
		mi.metrics.ActiveShards.Set(float64(len(mi.shards)))
		mi.metrics.ShardDocCount.Reset()
		for _, h := range mi.shards {
			mi.metrics.ShardDocCount.WithLabelValues(strconv.Itoa(h.position)).Set(float64(h.numDocuments()))
		}
	}

	mi.logger.Info("merged index ready",
		"shards", len(mi.shards),
		"documents", mi.stats.NumDocuments,
		"tokens", mi.stats.NumTokens,
		"unique_terms", mi.stats.NumUniqueTerms,
		"posting_kind", mi.kind.String(),
		"direct", mi.hasDirect,
	)
	return mi, nil
}

// negotiate picks the capability level served uniformly by every shard.
func (mi *MultiIndex) negotiate(opts Options) (index.Capabilities, error) {
	var caps index.Capabilities

	if opts.BlocksEnabled {
		var missing []string
		for _, h := range mi.shards {
			if !h.caps.Blocks {
				missing = append(missing, h.name)
			}
		}
		switch {
		case len(missing) == 0:
			caps.Blocks = true
		case opts.StrictCapabilities:
			return caps, apperrors.Incompatible("blocks requested but %v record no positions", missing)
		default:
			mi.logger.Warn("blocks requested but not recorded by every shard, positions dropped",
				"shards_without_blocks", missing,
			)
		}
	}

	if opts.FieldsEnabled {
		want := mi.shards[0].caps.Fields
		for _, h := range mi.shards {
			if !h.caps.HasFields() {
				return caps, apperrors.Incompatible("fields requested but %s records no field postings", h.name)
			}
			if !slices.Equal(h.caps.Fields, want) {
				return caps, apperrors.Incompatible("%s fields %v differ from %s fields %v",
					h.name, h.caps.Fields, mi.shards[0].name, want)
			}
		}
		caps.Fields = slices.Clone(want)
	}
	return caps, nil
}

func (mi *MultiIndex) Lexicon() index.Lexicon {
	return mi.lexicon
}

// MergedLexicon exposes the concrete lexicon, including Assigned.
func (mi *MultiIndex) MergedLexicon() *Lexicon {
	return mi.lexicon
}

func (mi *MultiIndex) InvertedIndex() index.PostingIndex {
	return invertedIndex{mi: mi}
}

// DirectIndex returns nil unless every shard carries forward postings.
func (mi *MultiIndex) DirectIndex() index.DirectIndex {
	if !mi.hasDirect {
		return nil
	}
	return directIndex{mi: mi}
}

func (mi *MultiIndex) DocumentIndex() index.DocumentIndex {
	return mi.docs
}

func (mi *MultiIndex) MetaIndex() index.MetaIndex {
	return mi.meta
}

func (mi *MultiIndex) CollectionStatistics() index.CollectionStatistics {
	stats := mi.stats
	stats.FieldTokens = slices.Clone(stats.FieldTokens)
	return stats
}

func (mi *MultiIndex) Capabilities() index.Capabilities {
	caps := mi.capabilities
	caps.Fields = slices.Clone(caps.Fields)
	return caps
}

// Kind is the posting kind every iterator of this index produces.
func (mi *MultiIndex) Kind() index.PostingKind {
	return mi.kind
}

// PostingsForTerm resolves term and returns its merged postings. The boolean
// is false when no shard holds the term.
func (mi *MultiIndex) PostingsForTerm(term string) (index.PostingIterator, index.LexiconEntry, bool) {
	rec, ok := mi.lexicon.resolve(term)
	if !ok {
		return nil, index.LexiconEntry{}, false
	}
	return mi.newPostings(rec), cloneEntry(rec.entry), true
}

func (mi *MultiIndex) Mapper() *DocIDMapper {
	return mi.mapper
}

func (mi *MultiIndex) NumShards() int {
	return len(mi.shards)
}

// ShardNames lists the shards in merge order.
func (mi *MultiIndex) ShardNames() []string {
	names := make([]string, len(mi.shards))
	for i, h := range mi.shards {
		names[i] = h.name
	}
	return names
}
