package multiindex

import (
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
)

// aggregateStatistics folds the shard statistics. Unique terms is the size
// of the vocabulary union and the average length is recomputed from totals.
func aggregateStatistics(shards []*shardHandle, uniqueTerms, fields int) index.CollectionStatistics {
	var stats index.CollectionStatistics
	if fields > 0 {
		stats.FieldTokens = make([]int64, fields)
	}
	for _, h := range shards {
		stats.NumDocuments += h.stats.NumDocuments
		stats.NumTokens += h.stats.NumTokens
		stats.NumPointers += h.stats.NumPointers
		for i := 0; i < fields && i < len(h.stats.FieldTokens); i++ {
			stats.FieldTokens[i] += h.stats.FieldTokens[i]
		}
	}
	stats.NumUniqueTerms = uniqueTerms
	stats.AverageDocumentLength = index.AverageLength(stats.NumTokens, stats.NumDocuments)
	return stats
}
