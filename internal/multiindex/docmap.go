package multiindex

import (
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/errors"
)

// DocIDMapper assigns every shard a contiguous range of global document ids
// in shard order. Shard k owns [starts[k], starts[k]+counts[k]).
type DocIDMapper struct {
	starts []int
	counts []int
	total  int
}

// NewDocIDMapper prefix-sums the per-shard document counts.
func NewDocIDMapper(counts []int) (*DocIDMapper, error) {
	m := &DocIDMapper{
		starts: make([]int, len(counts)),
		counts: make([]int, len(counts)),
	}
	for i, n := range counts {
		if n < 0 {
			return nil, fmt.Errorf("%w: shard %d has negative document count %d", apperrors.ErrInvalidInput, i, n)
		}
		m.starts[i] = m.total
		m.counts[i] = n
		m.total += n
	}
	return m, nil
}

// GlobalToLocal returns the shard owning globalID and the id local to it.
func (m *DocIDMapper) GlobalToLocal(globalID int) (shard, localID int, err error) {
	if globalID < 0 || globalID >= m.total {
		return 0, 0, apperrors.OutOfRange("document id", globalID, m.total)
	}
	// Last shard whose range starts at or before globalID; empty shards share
	// their start with the next shard and are skipped by taking the last one.
	shard = sort.Search(len(m.starts), func(i int) bool {
		return m.starts[i] > globalID
	}) - 1
	return shard, globalID - m.starts[shard], nil
}

// LocalToGlobal translates a shard-local document id.
func (m *DocIDMapper) LocalToGlobal(shard, localID int) (int, error) {
	if shard < 0 || shard >= len(m.starts) {
		return 0, apperrors.OutOfRange("shard", shard, len(m.starts))
	}
	if localID < 0 || localID >= m.counts[shard] {
		return 0, apperrors.OutOfRange(fmt.Sprintf("shard %d local document id", shard), localID, m.counts[shard])
	}
	return m.starts[shard] + localID, nil
}

// Range returns the half-open global id range owned by shard.
func (m *DocIDMapper) Range(shard int) (start, end int) {
	return m.starts[shard], m.starts[shard] + m.counts[shard]
}

func (m *DocIDMapper) Total() int {
	return m.total
}

func (m *DocIDMapper) NumShards() int {
	return len(m.starts)
}
