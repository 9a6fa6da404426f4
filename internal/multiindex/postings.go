package multiindex

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

// mergedPostings walks the shards holding a term in shard order, opening each
// shard iterator only when the previous one is exhausted. Document ids are
// translated to the global space, so the sequence is ascending overall.
type mergedPostings struct {
	kind    index.PostingKind
	shards  []*shardHandle
	mapper  *DocIDMapper
	parts   []localTerm
	next    int
	shard   int
	cur     index.PostingIterator
	at      index.Posting
	err     error
	emitted prometheus.Counter
}

func (it *mergedPostings) Next() bool {
	for it.err == nil {
		if it.cur == nil {
			if it.next >= len(it.parts) {
				return false
			}
			part := it.parts[it.next]
			it.next++
			h := it.shards[part.shard]
			cur, err := h.inverted.Postings(part.entry)
			if err != nil {
				it.err = fmt.Errorf("opening postings of %q in %s: %w", part.entry.Term, h.name, err)
				return false
			}
			it.cur, it.shard = cur, part.shard
		}
		if it.cur.Next() {
			p := it.cur.At()
			global, err := it.mapper.LocalToGlobal(it.shard, p.ID)
			if err != nil {
				it.err = fmt.Errorf("posting in %s: %w", it.shards[it.shard].name, err)
				return false
			}
			p.ID = global
			it.at = it.kind.Shape(p)
			if it.emitted != nil {
				it.emitted.Inc()
			}
			return true
		}
		if err := it.cur.Err(); err != nil {
			it.err = fmt.Errorf("reading postings in %s: %w", it.shards[it.shard].name, err)
			return false
		}
		it.cur = nil
	}
	return false
}

func (it *mergedPostings) At() index.Posting       { return it.at }
func (it *mergedPostings) Kind() index.PostingKind { return it.kind }
func (it *mergedPostings) Err() error              { return it.err }

type invertedIndex struct {
	mi *MultiIndex
}

// Postings accepts entries returned by the merged lexicon. Entries carrying
// only a term id are resolved through the id cache.
func (x invertedIndex) Postings(entry index.LexiconEntry) (index.PostingIterator, error) {
	mi := x.mi
	var rec *termRecord
	if entry.Term == "" {
		mi.lexicon.mu.RLock()
		if entry.TermID >= 0 && entry.TermID < len(mi.lexicon.records) {
			rec = mi.lexicon.records[entry.TermID]
		}
		n := len(mi.lexicon.records)
		mi.lexicon.mu.RUnlock()
		if rec == nil {
			return nil, apperrors.OutOfRange("term id", entry.TermID, n)
		}
	} else {
		var ok bool
		if rec, ok = mi.lexicon.resolve(entry.Term); !ok {
			return index.NewSlicePostings(nil, mi.kind), nil
		}
	}
	return mi.newPostings(rec), nil
}

func (mi *MultiIndex) newPostings(rec *termRecord) *mergedPostings {
	it := &mergedPostings{
		kind:   mi.kind,
		shards: mi.shards,
		mapper: mi.mapper,
		parts:  rec.parts,
	}
	if mi.metrics != nil {
		it.emitted = mi.metrics.PostingsIterated
	}
	return it
}

type directIndex struct {
	mi *MultiIndex
}

// DocumentPostings returns the forward postings of a global document with
// shard term ids rewritten to global term ids, ascending by global id.
func (x directIndex) DocumentPostings(doc index.DocumentEntry) (index.PostingIterator, error) {
	mi := x.mi
	shard, local, err := mi.mapper.GlobalToLocal(doc.DocID)
	if err != nil {
		return nil, err
	}
	h := mi.shards[shard]
	localDoc, err := h.docs.DocumentEntry(local)
	if err != nil {
		return nil, fmt.Errorf("document %d in %s: %w", doc.DocID, h.name, err)
	}
	it, err := h.direct.DocumentPostings(localDoc)
	if err != nil {
		return nil, fmt.Errorf("direct postings of document %d in %s: %w", doc.DocID, h.name, err)
	}
	postings, err := index.Drain(it)
	if err != nil {
		return nil, fmt.Errorf("direct postings of document %d in %s: %w", doc.DocID, h.name, err)
	}
	for i := range postings {
		entry, ok := h.lexicon.LookupID(postings[i].ID)
		if !ok {
			return nil, fmt.Errorf("%w: %s direct posting references unknown term id %d",
				apperrors.ErrInternal, h.name, postings[i].ID)
		}
		rec, ok := mi.lexicon.resolve(entry.Term)
		if !ok {
			return nil, fmt.Errorf("%w: term %q of %s missing from merged lexicon",
				apperrors.ErrInternal, entry.Term, h.name)
		}
		postings[i].ID = rec.entry.TermID
	}
	sort.Slice(postings, func(i, j int) bool {
		return postings[i].ID < postings[j].ID
	})
	return index.NewSlicePostings(postings, mi.kind), nil
}
