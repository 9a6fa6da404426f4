package reload

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/multiindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/metrics"
)

func writeShard(t *testing.T, dir string, texts ...string) string {
	t.Helper()
	mi := index.NewMemoryIndex(index.Options{MetaKeys: []string{"filename"}, ReverseMetaKeys: []string{"filename"}})
	for _, text := range texts {
		_, err := mi.AddDocument(index.Document{Text: text, Meta: map[string]string{"filename": text}})
		require.NoError(t, err)
	}
	path, err := segment.NewWriter(dir).Write(mi.Snapshot())
	require.NoError(t, err)
	return path
}

func numDocs(t *testing.T, h *Holder) int {
	t.Helper()
	idx, _ := h.Current()
	require.NotNil(t, idx)
	return idx.CollectionStatistics().NumDocuments
}

func TestReloadSwapsGenerations(t *testing.T) {
	dir := t.TempDir()
	a := writeShard(t, dir, "alpha beta")
	b := writeShard(t, dir, "beta gamma", "gamma delta")

	m := metrics.New(prometheus.NewRegistry())
	h := New(StaticPaths{a}, multiindex.Options{}, time.Hour, m)
	defer h.Close()

	idx, gen := h.Current()
	assert.Nil(t, idx)
	assert.Zero(t, gen)
	assert.False(t, h.Ready())

	require.NoError(t, h.Reload(context.Background()))
	assert.True(t, h.Ready())
	assert.Equal(t, uint64(1), h.Generation())
	assert.Equal(t, 1, numDocs(t, h))

	require.NoError(t, h.ReloadPaths(context.Background(), []string{a, b}))
	assert.Equal(t, uint64(2), h.Generation())
	assert.Equal(t, 3, numDocs(t, h))
	assert.Equal(t, 1, h.Retiring())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MergeReloadsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveShards))
}

func TestFailedReloadKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	a := writeShard(t, dir, "alpha")
	m := metrics.New(prometheus.NewRegistry())
	h := New(StaticPaths{a}, multiindex.Options{}, time.Hour, m)
	defer h.Close()
	require.NoError(t, h.Reload(context.Background()))

	err := h.ReloadPaths(context.Background(), []string{a, dir + "/missing.spdx"})
	assert.ErrorIs(t, err, apperrors.ErrShardUnavailable)
	assert.Equal(t, uint64(1), h.Generation())
	assert.Equal(t, 1, numDocs(t, h))
	assert.Zero(t, h.Retiring())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergeReloadsTotal.WithLabelValues("failed")))

	err = h.ReloadPaths(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

type failingSource struct{}

func (failingSource) ShardPaths(context.Context) ([]string, error) {
	return nil, errors.New("catalog unreachable")
}

func TestReloadSourceFailure(t *testing.T) {
	h := New(failingSource{}, multiindex.Options{}, time.Hour, nil)
	assert.ErrorContains(t, h.Reload(context.Background()), "catalog unreachable")
	assert.False(t, h.Ready())
}

func TestRetiredShardsCloseAfterGrace(t *testing.T) {
	dir := t.TempDir()
	a := writeShard(t, dir, "alpha")
	b := writeShard(t, dir, "beta")
	h := New(StaticPaths{a}, multiindex.Options{}, 10*time.Millisecond, nil)
	defer h.Close()
	require.NoError(t, h.Reload(context.Background()))
	old, _ := h.Current()

	require.NoError(t, h.ReloadPaths(context.Background(), []string{b}))
	assert.Eventually(t, func() bool { return h.Retiring() == 0 }, time.Second, 5*time.Millisecond)

	entry, ok := old.Lexicon().LookupTerm("alpha")
	require.True(t, ok)
	it, err := old.InvertedIndex().Postings(entry)
	require.NoError(t, err)
	_, err = index.Drain(it)
	assert.Error(t, err, "retired shards must be closed")
}

func TestHandleMessage(t *testing.T) {
	dir := t.TempDir()
	a := writeShard(t, dir, "alpha")
	b := writeShard(t, dir, "beta", "gamma")
	h := New(StaticPaths{a}, multiindex.Options{}, time.Hour, nil)
	defer h.Close()
	ctx := context.Background()

	value, err := json.Marshal(catalog.ShardsChanged{Paths: []string{b, a}, Reason: "flush"})
	require.NoError(t, err)
	require.NoError(t, h.HandleMessage(ctx, nil, value))
	assert.Equal(t, 3, numDocs(t, h))
	assert.Equal(t, []string{b, a}, h.Index().ShardNames())

	value, err = json.Marshal(catalog.ShardsChanged{Reason: "catalog"})
	require.NoError(t, err)
	require.NoError(t, h.HandleMessage(ctx, nil, value))
	assert.Equal(t, 1, numDocs(t, h))
	assert.Equal(t, uint64(2), h.Generation())

	assert.Error(t, h.HandleMessage(ctx, nil, []byte("{")))
}

func TestCloseRejectsReload(t *testing.T) {
	dir := t.TempDir()
	a := writeShard(t, dir, "alpha")
	h := New(StaticPaths{a}, multiindex.Options{}, time.Hour, nil)
	require.NoError(t, h.Reload(context.Background()))
	require.NoError(t, h.ReloadPaths(context.Background(), []string{a}))

	require.NoError(t, h.Close())
	assert.False(t, h.Ready())
	assert.Zero(t, h.Retiring())
	assert.ErrorIs(t, h.Reload(context.Background()), apperrors.ErrShardUnavailable)
}
