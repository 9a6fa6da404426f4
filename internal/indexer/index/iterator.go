package index

// SlicePostings is a PostingIterator over an in-memory posting list.
type SlicePostings struct {
	postings []Posting
	kind     PostingKind
	pos      int
}

// NewSlicePostings iterates postings, shaping each to kind. The slice is not
// copied and must not be modified while iterating.
func NewSlicePostings(postings []Posting, kind PostingKind) *SlicePostings {
	return &SlicePostings{
		postings: postings,
		kind:     kind,
		pos:      -1,
	}
}

func (it *SlicePostings) Next() bool {
	if it.pos < len(it.postings) {
		it.pos++
	}
	return it.pos < len(it.postings)
}

func (it *SlicePostings) At() Posting {
	return it.kind.Shape(it.postings[it.pos])
}

func (it *SlicePostings) Kind() PostingKind {
	return it.kind
}

func (it *SlicePostings) Err() error {
	return nil
}

// Size returns the total length of the underlying list.
func (it *SlicePostings) Size() int {
	return len(it.postings)
}

type errPostings struct {
	kind PostingKind
	err  error
}

// ErrPostings returns an exhausted iterator that reports err.
func ErrPostings(kind PostingKind, err error) PostingIterator {
	return errPostings{kind: kind, err: err}
}

func (e errPostings) Next() bool        { return false }
func (e errPostings) At() Posting       { return Posting{} }
func (e errPostings) Kind() PostingKind { return e.kind }
func (e errPostings) Err() error        { return e.err }
