package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/config"
)

func testConfig(t *testing.T, maxDocs int) config.IndexerConfig {
	return config.IndexerConfig{
		DataDir:         t.TempDir(),
		MaxDocsPerShard: maxDocs,
		MetaKeys:        []string{"filename"},
		ReverseMetaKeys: []string{"filename"},
	}
}

func doc(name, text string) index.Document {
	return index.Document{Text: text, Meta: map[string]string{"filename": name}}
}

func TestBuilderFlushesEveryShard(t *testing.T) {
	cfg := testConfig(t, 2)
	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	for i, text := range []string{"one two", "two three", "three four", "four five", "five"} {
		require.NoError(t, b.Add(doc(string(rune('A'+i)), text)))
	}
	assert.Len(t, b.Shards(), 2)

	path, err := b.Flush()
	require.NoError(t, err)
	assert.NotEmpty(t, path)
	assert.Len(t, b.Shards(), 3)
	assert.Equal(t, 5, b.TotalDocs())

	path, err = b.Flush()
	require.NoError(t, err)
	assert.Empty(t, path)

	listed, err := ListSegments(cfg.DataDir)
	require.NoError(t, err)
	assert.Equal(t, b.Shards(), listed)

	var counts []uint32
	for _, p := range listed {
		r, err := segment.OpenReader(p)
		require.NoError(t, err)
		counts = append(counts, r.DocCount())
		require.NoError(t, r.Close())
	}
	assert.Equal(t, []uint32{2, 2, 1}, counts)
}

func TestBuilderRejectsUnknownMeta(t *testing.T) {
	b, err := NewBuilder(testConfig(t, 10))
	require.NoError(t, err)
	err = b.Add(index.Document{Text: "x", Meta: map[string]string{"url": "u"}})
	assert.Error(t, err)
	assert.Equal(t, 0, b.TotalDocs())
}

func TestBuilderRun(t *testing.T) {
	b, err := NewBuilder(testConfig(t, 10))
	require.NoError(t, err)
	docs := make(chan index.Document, 3)
	docs <- doc("A", "one")
	docs <- doc("B", "two")
	close(docs)

	require.NoError(t, b.Run(context.Background(), docs))
	assert.Len(t, b.Shards(), 1)
}

func TestNewBuilderValidates(t *testing.T) {
	_, err := NewBuilder(testConfig(t, 0))
	assert.Error(t, err)
}

func TestListSegmentsMissingDir(t *testing.T) {
	paths, err := ListSegments(t.TempDir() + "/absent")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestFlushHook(t *testing.T) {
	b, err := NewBuilder(testConfig(t, 2))
	require.NoError(t, err)
	type flushed struct {
		path string
		docs int
	}
	var got []flushed
	b.OnFlush(func(path string, docs int) error {
		got = append(got, flushed{path, docs})
		return nil
	})

	require.NoError(t, b.Add(doc("A", "one")))
	require.NoError(t, b.Add(doc("B", "two")))
	require.NoError(t, b.Add(doc("C", "three")))
	path, err := b.Flush()
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].docs)
	assert.Equal(t, flushed{path, 1}, got[1])
	assert.Equal(t, b.Shards(), []string{got[0].path, got[1].path})
}

func TestFlushHookError(t *testing.T) {
	b, err := NewBuilder(testConfig(t, 10))
	require.NoError(t, err)
	b.OnFlush(func(string, int) error { return assert.AnError })
	require.NoError(t, b.Add(doc("A", "one")))

	path, err := b.Flush()
	assert.ErrorIs(t, err, assert.AnError)
	assert.FileExists(t, path)
	assert.Len(t, b.Shards(), 1)
}
