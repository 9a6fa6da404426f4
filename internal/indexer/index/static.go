package index

import (
	"fmt"
	"slices"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

// LexiconTable is an immutable Lexicon over a dense term-id space.
type LexiconTable struct {
	entries []LexiconEntry
	byTerm  map[string]int
	terms   []string
}

func NewLexiconTable(entries []LexiconEntry) *LexiconTable {
	t := &LexiconTable{
		entries: entries,
		byTerm:  make(map[string]int, len(entries)),
		terms:   make([]string, 0, len(entries)),
	}
	for i, entry := range entries {
		t.byTerm[entry.Term] = i
		t.terms = append(t.terms, entry.Term)
	}
	sort.Strings(t.terms)
	return t
}

func (t *LexiconTable) LookupTerm(term string) (LexiconEntry, bool) {
	i, ok := t.byTerm[term]
	if !ok {
		return LexiconEntry{}, false
	}
	return t.entries[i], true
}

func (t *LexiconTable) LookupID(termID int) (LexiconEntry, bool) {
	if termID < 0 || termID >= len(t.entries) {
		return LexiconEntry{}, false
	}
	return t.entries[termID], true
}

func (t *LexiconTable) NumTerms() int {
	return len(t.entries)
}

// Terms returns the vocabulary in lexicographic order.
func (t *LexiconTable) Terms() []string {
	return slices.Clone(t.terms)
}

// PostingTable serves in-memory posting lists addressed by term id
// (inverted) or document id (direct).
type PostingTable struct {
	lists [][]Posting
	kind  PostingKind
}

func NewPostingTable(lists [][]Posting, kind PostingKind) *PostingTable {
	return &PostingTable{lists: lists, kind: kind}
}

func (t *PostingTable) Postings(entry LexiconEntry) (PostingIterator, error) {
	if entry.TermID < 0 || entry.TermID >= len(t.lists) {
		return nil, apperrors.OutOfRange("term id", entry.TermID, len(t.lists))
	}
	return NewSlicePostings(t.lists[entry.TermID], t.kind), nil
}

func (t *PostingTable) DocumentPostings(doc DocumentEntry) (PostingIterator, error) {
	if doc.DocID < 0 || doc.DocID >= len(t.lists) {
		return nil, apperrors.OutOfRange("document id", doc.DocID, len(t.lists))
	}
	return NewSlicePostings(t.lists[doc.DocID], t.kind), nil
}

type DocumentTable struct {
	docs []DocumentEntry
}

func NewDocumentTable(docs []DocumentEntry) *DocumentTable {
	return &DocumentTable{docs: docs}
}

func (t *DocumentTable) DocumentEntry(docID int) (DocumentEntry, error) {
	if docID < 0 || docID >= len(t.docs) {
		return DocumentEntry{}, apperrors.OutOfRange("document id", docID, len(t.docs))
	}
	return t.docs[docID], nil
}

func (t *DocumentTable) DocumentLength(docID int) (int, error) {
	doc, err := t.DocumentEntry(docID)
	if err != nil {
		return 0, err
	}
	return doc.Length, nil
}

func (t *DocumentTable) NumDocuments() int {
	return len(t.docs)
}

// MetaTable is an immutable MetaIndex. Values are stored per document in
// key order; reverse keys map a value back to the first document holding it.
type MetaTable struct {
	keys    []string
	keyIdx  map[string]int
	values  [][]string
	reverse map[string]map[string]int
}

func NewMetaTable(keys, reverseKeys []string, values [][]string) *MetaTable {
	t := &MetaTable{
		keys:    keys,
		keyIdx:  make(map[string]int, len(keys)),
		values:  values,
		reverse: make(map[string]map[string]int, len(reverseKeys)),
	}
	for i, key := range keys {
		t.keyIdx[key] = i
	}
	for _, key := range reverseKeys {
		ki, ok := t.keyIdx[key]
		if !ok {
			continue
		}
		lookup := make(map[string]int, len(values))
		for docID := len(values) - 1; docID >= 0; docID-- {
			lookup[values[docID][ki]] = docID
		}
		t.reverse[key] = lookup
	}
	return t
}

func (t *MetaTable) Keys() []string {
	return t.keys
}

func (t *MetaTable) Item(key string, docID int) (string, error) {
	ki, ok := t.keyIdx[key]
	if !ok {
		return "", apperrors.UnknownKey(key)
	}
	if docID < 0 || docID >= len(t.values) {
		return "", apperrors.OutOfRange("document id", docID, len(t.values))
	}
	return t.values[docID][ki], nil
}

func (t *MetaTable) Items(docID int) (map[string]string, error) {
	if docID < 0 || docID >= len(t.values) {
		return nil, apperrors.OutOfRange("document id", docID, len(t.values))
	}
	items := make(map[string]string, len(t.keys))
	for i, key := range t.keys {
		items[key] = t.values[docID][i]
	}
	return items, nil
}

func (t *MetaTable) DocID(key, value string) (int, error) {
	lookup, ok := t.reverse[key]
	if !ok {
		return 0, apperrors.UnknownKey(key)
	}
	docID, ok := lookup[value]
	if !ok {
		return 0, fmt.Errorf("%s=%q: %w", key, value, apperrors.ErrDocumentNotFound)
	}
	return docID, nil
}

// ReverseKeys returns the keys that support DocID lookups.
func (t *MetaTable) ReverseKeys() []string {
	keys := make([]string, 0, len(t.reverse))
	for _, key := range t.keys {
		if _, ok := t.reverse[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Static is an immutable in-memory Index.
type Static struct {
	lexicon      *LexiconTable
	inverted     *PostingTable
	direct       *PostingTable
	docs         *DocumentTable
	meta         *MetaTable
	stats        CollectionStatistics
	capabilities Capabilities
}

// FromSnapshot serves snap as an Index. snap must not be modified afterwards.
func FromSnapshot(snap *Snapshot) (*Static, error) {
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	kind := snap.Capabilities.Kind()
	s := &Static{
		lexicon:      NewLexiconTable(snap.Lexicon),
		inverted:     NewPostingTable(snap.Postings, kind),
		docs:         NewDocumentTable(snap.Documents),
		meta:         NewMetaTable(snap.MetaKeys, snap.ReverseMetaKeys, snap.Meta),
		stats:        snap.Statistics,
		capabilities: snap.Capabilities,
	}
	if snap.Direct != nil {
		s.direct = NewPostingTable(snap.Direct, kind)
	}
	return s, nil
}

func (s *Static) Lexicon() Lexicon             { return s.lexicon }
func (s *Static) InvertedIndex() PostingIndex  { return s.inverted }
func (s *Static) DocumentIndex() DocumentIndex { return s.docs }
func (s *Static) MetaIndex() MetaIndex         { return s.meta }

func (s *Static) DirectIndex() DirectIndex {
	if s.direct == nil {
		return nil
	}
	return s.direct
}

func (s *Static) CollectionStatistics() CollectionStatistics {
	return s.stats
}

func (s *Static) Capabilities() Capabilities {
	return s.capabilities
}
