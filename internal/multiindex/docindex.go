package multiindex

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

type documentIndex struct {
	shards []*shardHandle
	mapper *DocIDMapper
}

// DocumentEntry returns the owning shard's entry with its id rewritten to
// the global space.
func (d documentIndex) DocumentEntry(docID int) (index.DocumentEntry, error) {
	shard, local, err := d.mapper.GlobalToLocal(docID)
	if err != nil {
		return index.DocumentEntry{}, err
	}
	entry, err := d.shards[shard].docs.DocumentEntry(local)
	if err != nil {
		return index.DocumentEntry{}, fmt.Errorf("document %d in %s: %w", docID, d.shards[shard].name, err)
	}
	entry.DocID = docID
	return entry, nil
}

func (d documentIndex) DocumentLength(docID int) (int, error) {
	shard, local, err := d.mapper.GlobalToLocal(docID)
	if err != nil {
		return 0, err
	}
	return d.shards[shard].docs.DocumentLength(local)
}

func (d documentIndex) NumDocuments() int {
	return d.mapper.Total()
}

// metaIndex routes metadata lookups to the owning shard. All shards share
// one key schema, checked at construction.
type metaIndex struct {
	shards      []*shardHandle
	mapper      *DocIDMapper
	keys        []string
	reverseKeys []string
}

func newMetaIndex(shards []*shardHandle, mapper *DocIDMapper) (*metaIndex, error) {
	first := shards[0]
	m := &metaIndex{
		shards:      shards,
		mapper:      mapper,
		keys:        slices.Clone(first.meta.Keys()),
		reverseKeys: slices.Clone(first.meta.ReverseKeys()),
	}
	for _, h := range shards[1:] {
		if !slices.Equal(h.meta.Keys(), m.keys) {
			return nil, apperrors.Incompatible("%s metadata keys %v differ from %s keys %v",
				h.name, h.meta.Keys(), first.name, m.keys)
		}
		if !slices.Equal(h.meta.ReverseKeys(), m.reverseKeys) {
			return nil, apperrors.Incompatible("%s reverse metadata keys %v differ from %s keys %v",
				h.name, h.meta.ReverseKeys(), first.name, m.reverseKeys)
		}
	}
	return m, nil
}

func (m *metaIndex) Keys() []string {
	return m.keys
}

func (m *metaIndex) ReverseKeys() []string {
	return m.reverseKeys
}

func (m *metaIndex) Item(key string, docID int) (string, error) {
	if !slices.Contains(m.keys, key) {
		return "", apperrors.UnknownKey(key)
	}
	shard, local, err := m.mapper.GlobalToLocal(docID)
	if err != nil {
		return "", err
	}
	return m.shards[shard].meta.Item(key, local)
}

func (m *metaIndex) Items(docID int) (map[string]string, error) {
	shard, local, err := m.mapper.GlobalToLocal(docID)
	if err != nil {
		return nil, err
	}
	return m.shards[shard].meta.Items(local)
}

// DocID returns the global id of the first document, in shard order, whose
// value for key equals value.
func (m *metaIndex) DocID(key, value string) (int, error) {
	if !slices.Contains(m.reverseKeys, key) {
		return 0, apperrors.UnknownKey(key)
	}
	for i, h := range m.shards {
		local, err := h.meta.DocID(key, value)
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("reverse lookup in %s: %w", h.name, err)
		}
		return m.mapper.LocalToGlobal(i, local)
	}
	return 0, fmt.Errorf("%s=%q: %w", key, value, apperrors.ErrDocumentNotFound)
}
