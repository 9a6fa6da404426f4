package multiindex

import (
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

// Named is implemented by shards that can identify themselves in logs,
// such as segment readers reporting their file path.
type Named interface {
	Name() string
}

// shardHandle is a non-owning, read-only view of one shard's structures,
// captured once at construction.
type shardHandle struct {
	position int
	name     string
	lexicon  index.Lexicon
	inverted index.PostingIndex
	direct   index.DirectIndex
	docs     index.DocumentIndex
	meta     index.MetaIndex
	stats    index.CollectionStatistics
	caps     index.Capabilities
}

func newShardHandle(position int, idx index.Index) (*shardHandle, error) {
	name := fmt.Sprintf("shard-%d", position)
	if idx == nil {
		return nil, apperrors.ShardUnavailable(name, errors.New("no index"))
	}
	if n, ok := idx.(Named); ok && n.Name() != "" {
		name = n.Name()
	}
	h := &shardHandle{
		position: position,
		name:     name,
		lexicon:  idx.Lexicon(),
		inverted: idx.InvertedIndex(),
		direct:   idx.DirectIndex(),
		docs:     idx.DocumentIndex(),
		meta:     idx.MetaIndex(),
		stats:    idx.CollectionStatistics(),
		caps:     idx.Capabilities(),
	}
	switch {
	case h.lexicon == nil:
		return nil, apperrors.ShardUnavailable(name, errors.New("missing lexicon"))
	case h.inverted == nil:
		return nil, apperrors.ShardUnavailable(name, errors.New("missing inverted index"))
	case h.docs == nil:
		return nil, apperrors.ShardUnavailable(name, errors.New("missing document index"))
	case h.meta == nil:
		return nil, apperrors.ShardUnavailable(name, errors.New("missing meta index"))
	}
	if n := h.docs.NumDocuments(); n != h.stats.NumDocuments {
		return nil, apperrors.ShardUnavailable(name,
			fmt.Errorf("document index holds %d documents, statistics report %d", n, h.stats.NumDocuments))
	}
	return h, nil
}

func (h *shardHandle) numDocuments() int {
	return h.stats.NumDocuments
}
