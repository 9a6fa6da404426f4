package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx shard segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
// The inverted section starts right after the header, the direct section
// follows it, and the manifest follows the direct section.
type SegmentHeader struct {
	Magic          uint32
	Version        uint32
	TermCount      uint32
	DocCount       uint32
	CreatedAt      int64
	ManifestOffset int64
	ManifestSize   int64
	InvertedOffset int64
	InvertedSize   int64
	DirectOffset   int64
}

// Span locates one encoded posting list relative to its section.
type Span struct {
	Offset int64 `json:"o"`
	Len    int   `json:"l"`
}

// Manifest is the JSON trailer describing everything except the postings.
type Manifest struct {
	Capabilities    index.Capabilities         `json:"capabilities"`
	MetaKeys        []string                   `json:"meta_keys"`
	ReverseMetaKeys []string                   `json:"reverse_meta_keys,omitempty"`
	Lexicon         []index.LexiconEntry       `json:"lexicon"`
	Inverted        []Span                     `json:"inverted"`
	Direct          []Span                     `json:"direct,omitempty"`
	HasDirect       bool                       `json:"has_direct"`
	Documents       []index.DocumentEntry      `json:"documents"`
	Meta            [][]string                 `json:"meta"`
	Statistics      index.CollectionStatistics `json:"statistics"`
}

// Writer serialises shard snapshots into new .spdx segment files.
type Writer struct {
	dataDir string
	seq     atomic.Uint64
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file holding snap and returns its
// path. It writes to a .tmp file first and renames on success.
func (w *Writer) Write(snap *index.Snapshot) (string, error) {
	if len(snap.Documents) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	if err := snap.Validate(); err != nil {
		return "", fmt.Errorf("invalid snapshot: %w", err)
	}
	segmentName := fmt.Sprintf("shard_%d_%04d%s", time.Now().UnixNano(), w.seq.Add(1), Extension)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(snap.Lexicon)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(snap.Documents)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(time.Now().Unix()))
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	offset := int64(HeaderSize)
	invertedStart := offset
	inverted, err := writeLists(f, snap.Postings, &offset)
	if err != nil {
		return "", fmt.Errorf("writing inverted postings: %w", err)
	}
	directStart := offset
	direct, err := writeLists(f, snap.Direct, &offset)
	if err != nil {
		return "", fmt.Errorf("writing direct postings: %w", err)
	}

	manifest := Manifest{
		Capabilities:    snap.Capabilities,
		MetaKeys:        snap.MetaKeys,
		ReverseMetaKeys: snap.ReverseMetaKeys,
		Lexicon:         snap.Lexicon,
		Inverted:        inverted,
		Direct:          direct,
		HasDirect:       snap.Direct != nil,
		Documents:       snap.Documents,
		Meta:            snap.Meta,
		Statistics:      snap.Statistics,
	}
	manifestData, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}
	manifestStart := offset
	if _, err := f.Write(manifestData); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	manifestSize := int64(len(manifestData))

	checksum := crc32.ChecksumIEEE(manifestData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum)
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(snap.Documents)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(manifestStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(manifestSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(manifestStart-directStart))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(manifestStart))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(manifestSize))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(invertedStart))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(directStart-invertedStart))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(directStart))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	committed = true
	return finalPath, nil
}

func writeLists(f *os.File, lists [][]index.Posting, offset *int64) ([]Span, error) {
	if lists == nil {
		return nil, nil
	}
	start := *offset
	spans := make([]Span, 0, len(lists))
	for i, list := range lists {
		data, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("marshaling list %d: %w", i, err)
		}
		if _, err := f.Write(data); err != nil {
			return nil, fmt.Errorf("writing list %d: %w", i, err)
		}
		spans = append(spans, Span{Offset: *offset - start, Len: len(data)})
		*offset += int64(len(data))
	}
	return spans, nil
}
