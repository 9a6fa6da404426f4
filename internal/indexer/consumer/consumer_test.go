package consumer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

func builder(t *testing.T) *indexer.Builder {
	t.Helper()
	b, err := indexer.NewBuilder(config.IndexerConfig{
		DataDir:         t.TempDir(),
		MaxDocsPerShard: 2,
		MetaKeys:        []string{"filename"},
		ReverseMetaKeys: []string{"filename"},
	})
	require.NoError(t, err)
	return b
}

func TestReadJSONLines(t *testing.T) {
	b := builder(t)
	input := `{"text":"one two","meta":{"filename":"A"}}

{"text":"two three","meta":{"filename":"B"}}
{"text":"three"}
`
	n, err := ReadJSONLines(context.Background(), strings.NewReader(input), b)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, b.TotalDocs())
	assert.Len(t, b.Shards(), 1)
}

func TestReadJSONLinesErrors(t *testing.T) {
	n, err := ReadJSONLines(context.Background(), strings.NewReader("{\"text\":\"one\"}\nnot json\n"), builder(t))
	assert.Equal(t, 1, n)
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadJSONLines(context.Background(), strings.NewReader(`{"text":"one","meta":{"url":"x"}}`), builder(t))
	assert.ErrorIs(t, err, apperrors.ErrUnknownKey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReadJSONLines(ctx, strings.NewReader(`{"text":"one"}`), builder(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleMessage(t *testing.T) {
	b := builder(t)
	handle := HandleMessage(b)

	value, err := json.Marshal(IngestEvent{Text: "one two", Meta: map[string]string{"filename": "A"}})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), []byte("A"), value))
	assert.Equal(t, 1, b.TotalDocs())

	assert.NoError(t, handle(context.Background(), []byte("bad"), []byte("{")), "poison events are skipped")
	assert.Equal(t, 1, b.TotalDocs())

	value, err = json.Marshal(IngestEvent{Text: "x", Meta: map[string]string{"url": "x"}})
	require.NoError(t, err)
	assert.Error(t, handle(context.Background(), []byte("C"), value))
}
