package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

// errClosed is returned by reads after Close.
var errClosed = errors.New("segment reader closed")

// Reader serves one segment file as a read-only index.Index. The manifest is
// loaded at open time; posting lists are read on demand. Close may run
// concurrently with reads; reads after Close fail with ErrShardUnavailable.
type Reader struct {
	mu       sync.RWMutex
	file     *os.File
	filePath string
	header   SegmentHeader
	manifest Manifest
	kind     index.PostingKind
	lexicon  *index.LexiconTable
	docs     *index.DocumentTable
	meta     *index.MetaTable
}

// OpenReader opens and validates a segment. Every failure wraps
// ErrShardUnavailable.
func OpenReader(path string) (*Reader, error) {
	r, err := openReader(path)
	if err != nil {
		return nil, apperrors.ShardUnavailable(path, err)
	}
	return r, nil
}

func openReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.filePath = path
	return r, nil
}

func load(f *os.File) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	size := info.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("segment file too short: %d bytes", size)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:          magic,
		Version:        binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:      binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:       binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt:      int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		ManifestOffset: int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		ManifestSize:   int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		InvertedOffset: int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		InvertedSize:   int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		DirectOffset:   int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}
	if err := header.validate(size); err != nil {
		return nil, err
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.ManifestOffset+header.ManifestSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	manifestBytes := make([]byte, header.ManifestSize)
	if _, err := f.ReadAt(manifestBytes, header.ManifestOffset); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if sum := crc32.ChecksumIEEE(manifestBytes); sum != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("manifest checksum mismatch: %08x", sum)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := manifest.validate(header); err != nil {
		return nil, err
	}
	return &Reader{
		file:     f,
		header:   header,
		manifest: manifest,
		kind:     manifest.Capabilities.Kind(),
		lexicon:  index.NewLexiconTable(manifest.Lexicon),
		docs:     index.NewDocumentTable(manifest.Documents),
		meta:     index.NewMetaTable(manifest.MetaKeys, manifest.ReverseMetaKeys, manifest.Meta),
	}, nil
}

// validate checks the section layout against the file size before anything
// is allocated from it: header, inverted, direct, manifest and footer must
// follow each other in that order and end exactly at the end of the file.
func (h SegmentHeader) validate(size int64) error {
	switch {
	case h.InvertedOffset != int64(HeaderSize):
		return fmt.Errorf("inverted section at %d, want %d", h.InvertedOffset, HeaderSize)
	case h.InvertedSize < 0 || h.InvertedSize > size-h.InvertedOffset:
		return fmt.Errorf("inverted section size %d out of bounds", h.InvertedSize)
	case h.DirectOffset != h.InvertedOffset+h.InvertedSize:
		return fmt.Errorf("direct section at %d, want %d", h.DirectOffset, h.InvertedOffset+h.InvertedSize)
	case h.ManifestOffset < h.DirectOffset || h.ManifestOffset > size:
		return fmt.Errorf("manifest offset %d out of bounds", h.ManifestOffset)
	case h.ManifestSize <= 0 || h.ManifestSize > size-h.ManifestOffset-int64(FooterSize):
		return fmt.Errorf("manifest size %d out of bounds", h.ManifestSize)
	case h.ManifestOffset+h.ManifestSize+int64(FooterSize) != size:
		return fmt.Errorf("segment is %d bytes, layout ends at %d", size, h.ManifestOffset+h.ManifestSize+int64(FooterSize))
	}
	return nil
}

func (m *Manifest) validate(header SegmentHeader) error {
	switch {
	case len(m.Lexicon) != int(header.TermCount):
		return fmt.Errorf("manifest holds %d terms, header %d", len(m.Lexicon), header.TermCount)
	case len(m.Documents) != int(header.DocCount):
		return fmt.Errorf("manifest holds %d documents, header %d", len(m.Documents), header.DocCount)
	case len(m.Inverted) != len(m.Lexicon):
		return fmt.Errorf("%d inverted spans for %d terms", len(m.Inverted), len(m.Lexicon))
	case m.HasDirect && len(m.Direct) != len(m.Documents):
		return fmt.Errorf("%d direct spans for %d documents", len(m.Direct), len(m.Documents))
	case len(m.Meta) != len(m.Documents):
		return fmt.Errorf("%d metadata rows for %d documents", len(m.Meta), len(m.Documents))
	}
	if err := checkSpans("inverted", m.Inverted, header.InvertedSize); err != nil {
		return err
	}
	return checkSpans("direct", m.Direct, header.ManifestOffset-header.DirectOffset)
}

func checkSpans(section string, spans []Span, limit int64) error {
	for i, span := range spans {
		if span.Offset < 0 || span.Len < 0 || span.Offset > limit-int64(span.Len) {
			return fmt.Errorf("%s span %d [%d+%d] outside section of %d bytes", section, i, span.Offset, span.Len, limit)
		}
	}
	return nil
}

func (r *Reader) readList(base int64, span Span) ([]index.Posting, error) {
	if span.Len < 0 {
		return nil, fmt.Errorf("negative posting list length %d", span.Len)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.file == nil {
		return nil, apperrors.ShardUnavailable(r.filePath, errClosed)
	}
	data := make([]byte, span.Len)
	if _, err := r.file.ReadAt(data, base+span.Offset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings []index.Posting
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// Postings reads the inverted list of entry.TermID.
func (r *Reader) Postings(entry index.LexiconEntry) (index.PostingIterator, error) {
	if entry.TermID < 0 || entry.TermID >= len(r.manifest.Inverted) {
		return nil, apperrors.OutOfRange("term id", entry.TermID, len(r.manifest.Inverted))
	}
	postings, err := r.readList(r.header.InvertedOffset, r.manifest.Inverted[entry.TermID])
	if err != nil {
		return nil, fmt.Errorf("term %q in %s: %w", entry.Term, r.filePath, err)
	}
	return index.NewSlicePostings(postings, r.kind), nil
}

type directReader struct {
	r *Reader
}

func (d directReader) DocumentPostings(doc index.DocumentEntry) (index.PostingIterator, error) {
	spans := d.r.manifest.Direct
	if doc.DocID < 0 || doc.DocID >= len(spans) {
		return nil, apperrors.OutOfRange("document id", doc.DocID, len(spans))
	}
	postings, err := d.r.readList(d.r.header.DirectOffset, spans[doc.DocID])
	if err != nil {
		return nil, fmt.Errorf("document %d in %s: %w", doc.DocID, d.r.filePath, err)
	}
	return index.NewSlicePostings(postings, d.r.kind), nil
}

func (r *Reader) Lexicon() index.Lexicon             { return r.lexicon }
func (r *Reader) InvertedIndex() index.PostingIndex  { return r }
func (r *Reader) DocumentIndex() index.DocumentIndex { return r.docs }
func (r *Reader) MetaIndex() index.MetaIndex         { return r.meta }

func (r *Reader) DirectIndex() index.DirectIndex {
	if !r.manifest.HasDirect {
		return nil
	}
	return directReader{r: r}
}

func (r *Reader) CollectionStatistics() index.CollectionStatistics {
	return r.manifest.Statistics
}

func (r *Reader) Capabilities() index.Capabilities {
	return r.manifest.Capabilities
}

// Name is the segment path, used to label the shard in logs and errors.
func (r *Reader) Name() string {
	return r.filePath
}

func (r *Reader) Terms() int {
	return len(r.manifest.Lexicon)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

// Close waits for in-flight reads and releases the file.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return errors.New("segment reader already closed")
	}
	err := r.file.Close()
	r.file = nil
	return err
}
