package index

// Posting is one entry of a posting list. For inverted postings ID is a
// document id; for direct postings it is a term id.
type Posting struct {
	ID               int   `json:"id"`
	Frequency        int   `json:"f"`
	DocLength        int   `json:"l,omitempty"`
	Positions        []int `json:"p,omitempty"`
	FieldFrequencies []int `json:"ff,omitempty"`
}

// PostingKind is the closed set of posting shapes an index can serve.
type PostingKind uint8

const (
	BasicPosting PostingKind = iota
	BlockPosting
	FieldPosting
	BlockFieldPosting
)

// KindOf returns the posting kind carrying the requested optional data.
func KindOf(blocks, fields bool) PostingKind {
	switch {
	case blocks && fields:
		return BlockFieldPosting
	case blocks:
		return BlockPosting
	case fields:
		return FieldPosting
	default:
		return BasicPosting
	}
}

func (k PostingKind) HasPositions() bool {
	return k == BlockPosting || k == BlockFieldPosting
}

func (k PostingKind) HasFields() bool {
	return k == FieldPosting || k == BlockFieldPosting
}

func (k PostingKind) String() string {
	switch k {
	case BlockPosting:
		return "block"
	case FieldPosting:
		return "field"
	case BlockFieldPosting:
		return "block+field"
	default:
		return "basic"
	}
}

// Shape strips the optional data that kind k does not carry.
func (k PostingKind) Shape(p Posting) Posting {
	if !k.HasPositions() {
		p.Positions = nil
	}
	if !k.HasFields() {
		p.FieldFrequencies = nil
	}
	return p
}

// Capabilities describes the optional posting data an index recorded.
type Capabilities struct {
	Blocks bool     `json:"blocks"`
	Fields []string `json:"fields,omitempty"`
}

func (c Capabilities) HasFields() bool {
	return len(c.Fields) > 0
}

func (c Capabilities) Kind() PostingKind {
	return KindOf(c.Blocks, c.HasFields())
}

// LexiconEntry holds the statistics of one term.
type LexiconEntry struct {
	Term                    string `json:"t"`
	TermID                  int    `json:"id"`
	DocumentFrequency       int    `json:"df"`
	Frequency               int    `json:"tf"`
	MaxFrequencyInDocuments int    `json:"max"`
	FieldFrequencies        []int  `json:"ff,omitempty"`
}

// DocumentEntry holds the per-document statistics of the document index.
type DocumentEntry struct {
	DocID        int   `json:"id"`
	Length       int   `json:"len"`
	UniqueTerms  int   `json:"uniq"`
	FieldLengths []int `json:"fl,omitempty"`
}

// CollectionStatistics are the index-wide counts used by ranking.
type CollectionStatistics struct {
	NumDocuments          int     `json:"num_documents"`
	NumTokens             int64   `json:"num_tokens"`
	NumUniqueTerms        int     `json:"num_unique_terms"`
	NumPointers           int64   `json:"num_pointers"`
	AverageDocumentLength float64 `json:"average_document_length"`
	FieldTokens           []int64 `json:"field_tokens,omitempty"`
}

// AverageLength returns tokens/documents, or 0 for an empty collection.
func AverageLength(tokens int64, docs int) float64 {
	if docs == 0 {
		return 0
	}
	return float64(tokens) / float64(docs)
}
