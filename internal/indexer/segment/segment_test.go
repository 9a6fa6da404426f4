package segment

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

func snapshot(t *testing.T, opts index.Options, texts ...string) *index.Snapshot {
	t.Helper()
	mi := index.NewMemoryIndex(opts)
	for i, text := range texts {
		_, err := mi.AddDocument(index.Document{
			Text: text,
			Meta: map[string]string{"filename": string(rune('A' + i))},
		})
		require.NoError(t, err)
	}
	return mi.Snapshot()
}

func options() index.Options {
	return index.Options{Blocks: true, MetaKeys: []string{"filename"}, ReverseMetaKeys: []string{"filename"}}
}

func writeSegment(t *testing.T, snap *index.Snapshot) string {
	t.Helper()
	path, err := NewWriter(t.TempDir()).Write(snap)
	require.NoError(t, err)
	return path
}

func TestWriteAndRead(t *testing.T) {
	snap := snapshot(t, options(), "one two three", "three four three")
	static, err := index.FromSnapshot(snap)
	require.NoError(t, err)

	path := writeSegment(t, snap)
	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, path, r.Name())
	assert.Equal(t, 4, r.Terms())
	assert.Equal(t, uint32(2), r.DocCount())
	assert.Equal(t, static.Capabilities(), r.Capabilities())
	if diff := cmp.Diff(static.CollectionStatistics(), r.CollectionStatistics()); diff != "" {
		t.Errorf("statistics mismatch (-memory +segment):\n%s", diff)
	}

	for _, term := range static.Lexicon().Terms() {
		want, _ := static.Lexicon().LookupTerm(term)
		got, ok := r.Lexicon().LookupTerm(term)
		require.True(t, ok, term)
		assert.Equal(t, want, got)

		wit, err := static.InvertedIndex().Postings(want)
		require.NoError(t, err)
		git, err := r.InvertedIndex().Postings(got)
		require.NoError(t, err)
		wantPostings, err := index.Drain(wit)
		require.NoError(t, err)
		gotPostings, err := index.Drain(git)
		require.NoError(t, err)
		if diff := cmp.Diff(wantPostings, gotPostings); diff != "" {
			t.Errorf("postings of %q mismatch (-memory +segment):\n%s", term, diff)
		}
	}

	require.NotNil(t, r.DirectIndex())
	for docID := 0; docID < 2; docID++ {
		doc, err := r.DocumentIndex().DocumentEntry(docID)
		require.NoError(t, err)
		wantDoc, _ := static.DocumentIndex().DocumentEntry(docID)
		assert.Equal(t, wantDoc, doc)

		wit, _ := static.DirectIndex().DocumentPostings(wantDoc)
		git, err := r.DirectIndex().DocumentPostings(doc)
		require.NoError(t, err)
		wantPostings, _ := index.Drain(wit)
		gotPostings, err := index.Drain(git)
		require.NoError(t, err)
		assert.Equal(t, wantPostings, gotPostings)
	}

	v, err := r.MetaIndex().Item("filename", 1)
	require.NoError(t, err)
	assert.Equal(t, "B", v)
	docID, err := r.MetaIndex().DocID("filename", "A")
	require.NoError(t, err)
	assert.Equal(t, 0, docID)
}

func TestPostingsOutOfRange(t *testing.T) {
	r, err := OpenReader(writeSegment(t, snapshot(t, options(), "one")))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.InvertedIndex().Postings(index.LexiconEntry{TermID: 5})
	assert.ErrorIs(t, err, apperrors.ErrOutOfRange)
	_, err = r.DirectIndex().DocumentPostings(index.DocumentEntry{DocID: 1})
	assert.ErrorIs(t, err, apperrors.ErrOutOfRange)
}

func TestWriteEmptySnapshot(t *testing.T) {
	_, err := NewWriter(t.TempDir()).Write(snapshot(t, options()))
	assert.Error(t, err)
}

func TestOpenFailures(t *testing.T) {
	_, err := OpenReader(t.TempDir() + "/missing.spdx")
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)

	path := writeSegment(t, snapshot(t, options(), "one two"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	badMagic := append([]byte(nil), data...)
	badMagic[0] ^= 0xff
	require.NoError(t, os.WriteFile(path, badMagic, 0o644))
	_, err = OpenReader(path)
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)

	// Flip a byte inside the manifest, just before the footer.
	corrupt := append([]byte(nil), data...)
	corrupt[len(corrupt)-FooterSize-2] ^= 0xff
	require.NoError(t, os.WriteFile(path, corrupt, 0o644))
	_, err = OpenReader(path)
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)
	assert.ErrorContains(t, err, "checksum")

	require.NoError(t, os.WriteFile(path, data[:HeaderSize/2], 0o644))
	_, err = OpenReader(path)
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)

	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0o644))
	_, err = OpenReader(path)
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)
}

func TestOpenCorruptHeader(t *testing.T) {
	path := writeSegment(t, snapshot(t, options(), "one two", "two three"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name  string
		field int
		value uint64
	}{
		{"huge manifest size", 32, 0xFFFFFFFFFFFFFFF0},
		{"negative manifest size", 32, math.MaxUint64},
		{"zero manifest size", 32, 0},
		{"manifest offset inside header", 24, 8},
		{"manifest offset past end", 24, uint64(len(data)) + 100},
		{"negative inverted size", 48, math.MaxUint64},
		{"inverted section past end", 48, uint64(len(data))},
		{"direct offset moved", 56, uint64(HeaderSize)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt := append([]byte(nil), data...)
			binary.LittleEndian.PutUint64(corrupt[tt.field:tt.field+8], tt.value)
			p := filepath.Join(t.TempDir(), "corrupt"+Extension)
			require.NoError(t, os.WriteFile(p, corrupt, 0o644))

			var r *Reader
			require.NotPanics(t, func() { r, err = OpenReader(p) })
			assert.Nil(t, r)
			assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)
		})
	}
}

func TestCloseWhileReading(t *testing.T) {
	r, err := OpenReader(writeSegment(t, snapshot(t, options(), "one two", "two three")))
	require.NoError(t, err)
	entry, ok := r.Lexicon().LookupTerm("two")
	require.True(t, ok)
	doc, err := r.DocumentIndex().DocumentEntry(0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				var (
					it  index.PostingIterator
					err error
				)
				if i%2 == 0 {
					it, err = r.Postings(entry)
				} else {
					it, err = r.DirectIndex().DocumentPostings(doc)
				}
				if err == nil {
					_, err = index.Drain(it)
				}
				if err != nil {
					errs[i] = err
					return
				}
			}
		}(i)
	}
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.Close())
	wg.Wait()
	for _, err := range errs {
		assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)
	}
}

func TestWriteFailureLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	snap := snapshot(t, options(), "one two")
	snap.Statistics.AverageDocumentLength = math.NaN()

	_, err := NewWriter(dir).Write(snap)
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCloseTwice(t *testing.T) {
	r, err := OpenReader(writeSegment(t, snapshot(t, options(), "one")))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Error(t, r.Close())
}
