package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
)

func TestScorePrefersRareTermsAndShortDocs(t *testing.T) {
	stats := index.CollectionStatistics{NumDocuments: 4, AverageDocumentLength: 4}
	terms := []TermPostings{
		{Term: "common", DocumentFrequency: 3, Postings: []index.Posting{
			{ID: 0, Frequency: 1, DocLength: 2},
			{ID: 1, Frequency: 1, DocLength: 8},
			{ID: 2, Frequency: 1, DocLength: 4},
		}},
		{Term: "rare", DocumentFrequency: 1, Postings: []index.Posting{
			{ID: 3, Frequency: 1, DocLength: 4},
		}},
	}
	scores := Score(terms, stats, DefaultParams(), nil, nil)
	assert.Len(t, scores, 4)
	assert.Greater(t, scores[0], scores[2])
	assert.Greater(t, scores[2], scores[1])
	assert.Greater(t, scores[3], scores[2])
}

func TestScoreKeepAndLengthFallback(t *testing.T) {
	stats := index.CollectionStatistics{NumDocuments: 2, AverageDocumentLength: 3}
	terms := []TermPostings{{Term: "x", DocumentFrequency: 1, Postings: []index.Posting{
		{ID: 0, Frequency: 1},
		{ID: 1, Frequency: 1, DocLength: 3},
	}}}
	lookups := 0
	scores := Score(terms, stats, DefaultParams(),
		func(docID int) bool { return docID == 0 },
		func(docID int) int { lookups++; return 3 },
	)
	assert.Equal(t, 1, lookups)
	assert.Len(t, scores, 1)
	assert.Positive(t, scores[0])
}

func TestScoreEmptyCollection(t *testing.T) {
	scores := Score([]TermPostings{{Term: "x", Postings: []index.Posting{{ID: 0, Frequency: 1}}}},
		index.CollectionStatistics{}, DefaultParams(), nil, nil)
	assert.Equal(t, 0.0, scores[0])
}
