package multiindex

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/metrics"
)

// localTerm locates a term inside one shard.
type localTerm struct {
	shard int
	entry index.LexiconEntry
}

// termRecord is the cached resolution of one term: its aggregate entry,
// carrying the global term id, and the shards that contain it in shard order.
type termRecord struct {
	entry index.LexiconEntry
	parts []localTerm
}

// Lexicon folds the shard lexicons into one vocabulary. Global term ids are
// assigned in order of first resolution and stay stable for the lifetime of
// the Lexicon.
type Lexicon struct {
	shards  []*shardHandle
	fields  int
	logger  *slog.Logger
	metrics *metrics.Metrics

	group   singleflight.Group
	mu      sync.RWMutex
	byTerm  map[string]*termRecord
	records []*termRecord

	vocabulary []string
}

func newLexicon(shards []*shardHandle, fields int, logger *slog.Logger, m *metrics.Metrics) *Lexicon {
	l := &Lexicon{
		shards:  shards,
		fields:  fields,
		logger:  logger,
		metrics: m,
		byTerm:  make(map[string]*termRecord),
	}
	seen := make(map[string]struct{})
	for _, h := range shards {
		for _, term := range h.lexicon.Terms() {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			l.vocabulary = append(l.vocabulary, term)
		}
	}
	sort.Strings(l.vocabulary)
	return l
}

// LookupTerm returns the aggregate entry of term. Terms absent from every
// shard report false and are not cached.
func (l *Lexicon) LookupTerm(term string) (index.LexiconEntry, bool) {
	rec, ok := l.resolve(term)
	if !ok {
		return index.LexiconEntry{}, false
	}
	return cloneEntry(rec.entry), true
}

// LookupID returns the entry previously assigned termID by this Lexicon.
func (l *Lexicon) LookupID(termID int) (index.LexiconEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if termID < 0 || termID >= len(l.records) {
		return index.LexiconEntry{}, false
	}
	return cloneEntry(l.records[termID].entry), true
}

// NumTerms is the size of the union of the shard vocabularies.
func (l *Lexicon) NumTerms() int {
	return len(l.vocabulary)
}

// Terms returns the union of the shard vocabularies in lexicographic order.
func (l *Lexicon) Terms() []string {
	return slices.Clone(l.vocabulary)
}

// Assigned reports how many global term ids have been handed out so far.
func (l *Lexicon) Assigned() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *Lexicon) resolve(term string) (*termRecord, bool) {
	l.mu.RLock()
	rec, ok := l.byTerm[term]
	l.mu.RUnlock()
	if ok {
		l.count("hit")
		return rec, true
	}

	v, _, _ := l.group.Do(term, func() (any, error) {
		l.mu.RLock()
		rec, ok := l.byTerm[term]
		l.mu.RUnlock()
		if ok {
			return rec, nil
		}

		folded := l.fold(term)
		if folded == nil {
			return (*termRecord)(nil), nil
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if rec, ok := l.byTerm[term]; ok {
			return rec, nil
		}
		folded.entry.TermID = len(l.records)
		l.records = append(l.records, folded)
		l.byTerm[term] = folded
		if l.metrics != nil {
			l.metrics.TermsAssignedTotal.Inc()
		}
		l.logger.Debug("global term id assigned",
			"term", term,
			"term_id", folded.entry.TermID,
			"shards", len(folded.parts),
		)
		return folded, nil
	})

	rec = v.(*termRecord)
	if rec == nil {
		l.count("absent")
		return nil, false
	}
	l.count("resolved")
	return rec, true
}

// fold queries every shard lexicon for term in shard order and aggregates
// the per-shard statistics. It returns nil when no shard holds the term.
func (l *Lexicon) fold(term string) *termRecord {
	var rec *termRecord
	for _, h := range l.shards {
		local, ok := h.lexicon.LookupTerm(term)
		if !ok {
			continue
		}
		if rec == nil {
			rec = &termRecord{entry: index.LexiconEntry{Term: term}}
			if l.fields > 0 {
				rec.entry.FieldFrequencies = make([]int, l.fields)
			}
		}
		rec.parts = append(rec.parts, localTerm{shard: h.position, entry: local})
		rec.entry.DocumentFrequency += local.DocumentFrequency
		rec.entry.Frequency += local.Frequency
		rec.entry.MaxFrequencyInDocuments = max(rec.entry.MaxFrequencyInDocuments, local.MaxFrequencyInDocuments)
		for i := 0; i < l.fields && i < len(local.FieldFrequencies); i++ {
			rec.entry.FieldFrequencies[i] += local.FieldFrequencies[i]
		}
	}
	return rec
}

func (l *Lexicon) count(result string) {
	if l.metrics != nil {
		l.metrics.LexiconLookupsTotal.WithLabelValues(result).Inc()
	}
}

func cloneEntry(e index.LexiconEntry) index.LexiconEntry {
	if e.FieldFrequencies != nil {
		e.FieldFrequencies = append([]int(nil), e.FieldFrequencies...)
	}
	return e
}
