package index

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

// Options controls what a MemoryIndex records.
type Options struct {
	Blocks          bool
	Fields          []string
	MetaKeys        []string
	ReverseMetaKeys []string
	Pipeline        tokenizer.Options
}

// Document is the unit handed to MemoryIndex.AddDocument. Text is indexed
// when no fields are configured, otherwise Fields are indexed in the order of
// Options.Fields.
type Document struct {
	Text   string
	Fields map[string]string
	Meta   map[string]string
}

// Snapshot is the complete, self-contained content of one shard.
type Snapshot struct {
	Capabilities    Capabilities         `json:"capabilities"`
	MetaKeys        []string             `json:"meta_keys"`
	ReverseMetaKeys []string             `json:"reverse_meta_keys,omitempty"`
	Lexicon         []LexiconEntry       `json:"lexicon"`
	Postings        [][]Posting          `json:"-"`
	Direct          [][]Posting          `json:"-"`
	Documents       []DocumentEntry      `json:"documents"`
	Meta            [][]string           `json:"meta"`
	Statistics      CollectionStatistics `json:"statistics"`
}

// MemoryIndex builds one shard in memory. Documents receive dense local ids
// in insertion order and terms receive ids in first-seen order, so every
// posting list is ascending by document id.
type MemoryIndex struct {
	mu          sync.RWMutex
	opts        Options
	tokenizer   *tokenizer.Tokenizer
	metaIdx     map[string]int
	termIDs     map[string]int
	lexicon     []LexiconEntry
	postings    [][]Posting
	direct      [][]Posting
	docs        []DocumentEntry
	meta        [][]string
	numTokens   int64
	numPointers int64
	fieldTokens []int64
	size        int64
}

func NewMemoryIndex(opts Options) *MemoryIndex {
	m := &MemoryIndex{
		opts:      opts,
		tokenizer: tokenizer.New(opts.Pipeline),
		metaIdx:   make(map[string]int, len(opts.MetaKeys)),
	}
	for i, key := range opts.MetaKeys {
		m.metaIdx[key] = i
	}
	m.reset()
	return m
}

type termAccumulator struct {
	freq      int
	positions []int
	fields    []int
}

// AddDocument tokenizes doc and appends it to the shard, returning its local
// document id.
func (m *MemoryIndex) AddDocument(doc Document) (int, error) {
	values := make([]string, len(m.opts.MetaKeys))
	for key, value := range doc.Meta {
		i, ok := m.metaIdx[key]
		if !ok {
			return 0, apperrors.UnknownKey(key)
		}
		values[i] = value
	}

	texts := []string{doc.Text}
	if len(m.opts.Fields) > 0 {
		texts = make([]string, len(m.opts.Fields))
		for i, field := range m.opts.Fields {
			texts[i] = doc.Fields[field]
		}
	}

	termData := make(map[string]*termAccumulator)
	order := make([]string, 0)
	var fieldLengths []int
	if len(m.opts.Fields) > 0 {
		fieldLengths = make([]int, len(m.opts.Fields))
	}
	pos := 0
	for fi, text := range texts {
		tokens := m.tokenizer.TokenizeFrom(text, pos)
		pos += len(tokens)
		if len(m.opts.Fields) > 0 {
			fieldLengths[fi] = len(tokens)
		}
		for _, token := range tokens {
			acc, exists := termData[token.Term]
			if !exists {
				acc = &termAccumulator{}
				if len(m.opts.Fields) > 0 {
					acc.fields = make([]int, len(m.opts.Fields))
				}
				termData[token.Term] = acc
				order = append(order, token.Term)
			}
			acc.freq++
			if m.opts.Blocks {
				acc.positions = append(acc.positions, token.Position)
			}
			if acc.fields != nil {
				acc.fields[fi]++
			}
		}
	}
	docLength := pos

	m.mu.Lock()
	defer m.mu.Unlock()

	docID := len(m.docs)
	direct := make([]Posting, 0, len(order))
	for _, term := range order {
		acc := termData[term]
		termID, exists := m.termIDs[term]
		if !exists {
			termID = len(m.lexicon)
			m.termIDs[term] = termID
			entry := LexiconEntry{Term: term, TermID: termID}
			if len(m.opts.Fields) > 0 {
				entry.FieldFrequencies = make([]int, len(m.opts.Fields))
			}
			m.lexicon = append(m.lexicon, entry)
			m.postings = append(m.postings, nil)
			m.size += int64(len(term) + 64)
		}
		entry := &m.lexicon[termID]
		entry.DocumentFrequency++
		entry.Frequency += acc.freq
		if acc.freq > entry.MaxFrequencyInDocuments {
			entry.MaxFrequencyInDocuments = acc.freq
		}
		for i, f := range acc.fields {
			entry.FieldFrequencies[i] += f
		}
		m.postings[termID] = append(m.postings[termID], Posting{
			ID:               docID,
			Frequency:        acc.freq,
			DocLength:        docLength,
			Positions:        acc.positions,
			FieldFrequencies: acc.fields,
		})
		direct = append(direct, Posting{
			ID:               termID,
			Frequency:        acc.freq,
			Positions:        acc.positions,
			FieldFrequencies: acc.fields,
		})
		m.size += int64(len(acc.positions)*8 + 32)
	}
	sort.Slice(direct, func(i, j int) bool {
		return direct[i].ID < direct[j].ID
	})
	m.direct = append(m.direct, direct)
	m.docs = append(m.docs, DocumentEntry{
		DocID:        docID,
		Length:       docLength,
		UniqueTerms:  len(order),
		FieldLengths: fieldLengths,
	})
	m.meta = append(m.meta, values)
	m.numTokens += int64(docLength)
	m.numPointers += int64(len(order))
	for i, l := range fieldLengths {
		m.fieldTokens[i] += int64(l)
	}
	return docID, nil
}

// Snapshot copies the current content of the shard.
func (m *MemoryIndex) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lexicon := make([]LexiconEntry, len(m.lexicon))
	for i, entry := range m.lexicon {
		entry.FieldFrequencies = slices.Clone(entry.FieldFrequencies)
		lexicon[i] = entry
	}
	postings := make([][]Posting, len(m.postings))
	for i, list := range m.postings {
		postings[i] = slices.Clip(list)
	}
	direct := make([][]Posting, len(m.direct))
	copy(direct, m.direct)
	var fieldTokens []int64
	if len(m.opts.Fields) > 0 {
		fieldTokens = slices.Clone(m.fieldTokens)
	}
	return &Snapshot{
		Capabilities: Capabilities{
			Blocks: m.opts.Blocks,
			Fields: slices.Clone(m.opts.Fields),
		},
		MetaKeys:        slices.Clone(m.opts.MetaKeys),
		ReverseMetaKeys: slices.Clone(m.opts.ReverseMetaKeys),
		Lexicon:         lexicon,
		Postings:        postings,
		Direct:          direct,
		Documents:       slices.Clone(m.docs),
		Meta:            slices.Clone(m.meta),
		Statistics: CollectionStatistics{
			NumDocuments:          len(m.docs),
			NumTokens:             m.numTokens,
			NumUniqueTerms:        len(m.lexicon),
			NumPointers:           m.numPointers,
			AverageDocumentLength: AverageLength(m.numTokens, len(m.docs)),
			FieldTokens:           fieldTokens,
		},
	}
}

// Validate checks the internal consistency of a snapshot before it is served
// or persisted.
func (s *Snapshot) Validate() error {
	if len(s.Postings) != len(s.Lexicon) {
		return fmt.Errorf("%d posting lists for %d lexicon entries", len(s.Postings), len(s.Lexicon))
	}
	if len(s.Direct) != 0 && len(s.Direct) != len(s.Documents) {
		return fmt.Errorf("%d direct posting lists for %d documents", len(s.Direct), len(s.Documents))
	}
	if len(s.Meta) != len(s.Documents) {
		return fmt.Errorf("%d metadata rows for %d documents", len(s.Meta), len(s.Documents))
	}
	for i, entry := range s.Lexicon {
		if entry.TermID != i {
			return fmt.Errorf("lexicon entry %q has term id %d at position %d", entry.Term, entry.TermID, i)
		}
	}
	for i, doc := range s.Documents {
		if doc.DocID != i {
			return fmt.Errorf("document entry %d has id %d", i, doc.DocID)
		}
	}
	return nil
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *MemoryIndex) reset() {
	m.termIDs = make(map[string]int)
	m.lexicon = nil
	m.postings = nil
	m.direct = nil
	m.docs = nil
	m.meta = nil
	m.numTokens = 0
	m.numPointers = 0
	m.fieldTokens = make([]int64, len(m.opts.Fields))
	m.size = 0
}
