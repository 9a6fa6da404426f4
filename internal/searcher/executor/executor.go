// Package executor evaluates query plans against a merged index. Candidate
// sets are combined as roaring bitmaps over global document ids and the
// survivors are ranked with BM25 on collection-wide statistics.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/tracing"
)

type SearchResult struct {
	Query      string             `json:"query"`
	TotalHits  int                `json:"total_hits"`
	Results    []ranker.ScoredDoc `json:"results"`
	TermStats  map[string]int     `json:"term_stats"`
	Generation uint64             `json:"generation"`
}

// Source yields the index queries run against. The index may be replaced
// between queries; one query always sees a single index.
type Source interface {
	Current() (index.Index, uint64)
}

type staticSource struct {
	idx index.Index
}

func (s staticSource) Current() (index.Index, uint64) {
	return s.idx, 0
}

// Static is a Source that always returns idx.
func Static(idx index.Index) Source {
	return staticSource{idx: idx}
}

type Executor struct {
	source Source
	params ranker.Params
	logger *slog.Logger
}

func New(source Source, params ranker.Params) *Executor {
	return &Executor{
		source: source,
		params: params,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// query holds the postings fetched for one execution, so a term shared by
// several clauses is read once.
type query struct {
	ctx     context.Context
	idx     index.Index
	fetched map[string]*ranker.TermPostings
}

func (q *query) fetch(term string) (*ranker.TermPostings, error) {
	if tp, ok := q.fetched[term]; ok {
		return tp, nil
	}
	if err := q.ctx.Err(); err != nil {
		return nil, err
	}
	tp := &ranker.TermPostings{Term: term}
	if entry, ok := q.idx.Lexicon().LookupTerm(term); ok {
		it, err := q.idx.InvertedIndex().Postings(entry)
		if err != nil {
			return nil, fmt.Errorf("postings of %q: %w", term, err)
		}
		postings, err := index.Drain(it)
		if err != nil {
			return nil, fmt.Errorf("reading postings of %q: %w", term, err)
		}
		tp.DocumentFrequency = entry.DocumentFrequency
		tp.Postings = postings
	}
	q.fetched[term] = tp
	return tp, nil
}

func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	idx, generation := e.source.Current()
	if plan.Empty() {
		return &SearchResult{
			Query:      plan.RawQuery,
			Results:    []ranker.ScoredDoc{},
			TermStats:  map[string]int{},
			Generation: generation,
		}, nil
	}
	if len(plan.Phrases) > 0 && !idx.Capabilities().Blocks {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"phrase queries need positional postings")
	}

	_, fetchSpan := tracing.StartChildSpan(ctx, "postings")
	q := &query{ctx: ctx, idx: idx, fetched: make(map[string]*ranker.TermPostings)}
	var sets []*roaring.Bitmap
	var scored []string
	termStats := make(map[string]int)

	for _, term := range plan.Terms {
		tp, err := q.fetch(term)
		if err != nil {
			return nil, err
		}
		sets = append(sets, docSet(tp.Postings))
		scored = appendUnique(scored, term)
		if tp.DocumentFrequency > 0 {
			termStats[term] = tp.DocumentFrequency
		}
	}
	for _, phrase := range plan.Phrases {
		lists := make([]*ranker.TermPostings, len(phrase))
		for i, term := range phrase {
			tp, err := q.fetch(term)
			if err != nil {
				return nil, err
			}
			lists[i] = tp
			scored = appendUnique(scored, term)
		}
		sets = append(sets, matchPhrase(lists))
	}

	var candidates *roaring.Bitmap
	switch plan.Type {
	case parser.QueryOR:
		candidates = roaring.FastOr(sets...)
	default:
		candidates = roaring.FastAnd(sets...)
	}
	for _, term := range plan.ExcludeTerms {
		tp, err := q.fetch(term)
		if err != nil {
			return nil, err
		}
		candidates.AndNot(docSet(tp.Postings))
	}
	fetchSpan.SetAttr("terms", len(q.fetched))
	fetchSpan.SetAttr("candidates", candidates.GetCardinality())
	fetchSpan.End()

	_, scoreSpan := tracing.StartChildSpan(ctx, "score")

	terms := make([]ranker.TermPostings, 0, len(scored))
	for _, term := range scored {
		terms = append(terms, *q.fetched[term])
	}
	docs := idx.DocumentIndex()
	scores := ranker.Score(terms, idx.CollectionStatistics(), e.params,
		func(docID int) bool { return candidates.Contains(uint32(docID)) },
		func(docID int) int {
			length, err := docs.DocumentLength(docID)
			if err != nil {
				return 0
			}
			return length
		},
	)
	ranked := merger.TopK(scores, limit)
	scoreSpan.SetAttr("scored", len(scores))
	scoreSpan.End()

	meta := idx.MetaIndex()
	for i := range ranked {
		items, err := meta.Items(ranked[i].DocID)
		if err != nil {
			return nil, fmt.Errorf("metadata of document %d: %w", ranked[i].DocID, err)
		}
		ranked[i].Metadata = items
	}

	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"phrases", len(plan.Phrases),
		"candidates", candidates.GetCardinality(),
		"results", len(ranked),
		"generation", generation,
	)
	return &SearchResult{
		Query:      plan.RawQuery,
		TotalHits:  int(candidates.GetCardinality()),
		Results:    ranked,
		TermStats:  termStats,
		Generation: generation,
	}, nil
}

func docSet(postings []index.Posting) *roaring.Bitmap {
	bm := roaring.New()
	for _, p := range postings {
		bm.Add(uint32(p.ID))
	}
	return bm
}

// matchPhrase returns the documents where the terms of lists occur at
// consecutive positions.
func matchPhrase(lists []*ranker.TermPostings) *roaring.Bitmap {
	result := roaring.New()
	if len(lists) == 0 {
		return result
	}
	positions := make([]map[int][]int, len(lists))
	for i, tp := range lists[1:] {
		byDoc := make(map[int][]int, len(tp.Postings))
		for _, p := range tp.Postings {
			byDoc[p.ID] = p.Positions
		}
		positions[i+1] = byDoc
	}
	for _, p := range lists[0].Postings {
		for _, start := range p.Positions {
			if phraseAt(positions, p.ID, start) {
				result.Add(uint32(p.ID))
				break
			}
		}
	}
	return result
}

func phraseAt(positions []map[int][]int, docID, start int) bool {
	for offset := 1; offset < len(positions); offset++ {
		if _, found := slices.BinarySearch(positions[offset][docID], start+offset); !found {
			return false
		}
	}
	return true
}

func appendUnique(terms []string, term string) []string {
	if slices.Contains(terms, term) {
		return terms
	}
	return append(terms, term)
}
