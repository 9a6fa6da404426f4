package index

// PostingIterator walks a posting list forward once. At is only valid after
// Next returned true.
type PostingIterator interface {
	Next() bool
	At() Posting
	Kind() PostingKind
	Err() error
}

// Lexicon maps terms and term ids to their statistics. Lookups of absent
// terms report false rather than an error.
type Lexicon interface {
	LookupTerm(term string) (LexiconEntry, bool)
	LookupID(termID int) (LexiconEntry, bool)
	NumTerms() int
	Terms() []string
}

// PostingIndex serves the inverted postings of a lexicon entry.
type PostingIndex interface {
	Postings(entry LexiconEntry) (PostingIterator, error)
}

// DirectIndex serves the forward postings (term ids) of a document.
type DirectIndex interface {
	DocumentPostings(doc DocumentEntry) (PostingIterator, error)
}

type DocumentIndex interface {
	DocumentEntry(docID int) (DocumentEntry, error)
	DocumentLength(docID int) (int, error)
	NumDocuments() int
}

// MetaIndex stores per-document metadata values under a fixed key schema.
type MetaIndex interface {
	Keys() []string
	Item(key string, docID int) (string, error)
	Items(docID int) (map[string]string, error)
	DocID(key, value string) (int, error)
	ReverseKeys() []string
}

// Index is a complete read-only index. DirectIndex may return nil when the
// index carries no forward postings.
type Index interface {
	Lexicon() Lexicon
	InvertedIndex() PostingIndex
	DirectIndex() DirectIndex
	DocumentIndex() DocumentIndex
	MetaIndex() MetaIndex
	CollectionStatistics() CollectionStatistics
	Capabilities() Capabilities
}

// Drain collects the remaining postings of it.
func Drain(it PostingIterator) ([]Posting, error) {
	var out []Posting
	for it.Next() {
		out = append(out, it.At())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// IDs collects the ids of the remaining postings of it.
func IDs(it PostingIterator) ([]int, error) {
	var ids []int
	for it.Next() {
		ids = append(ids, it.At().ID)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
