// Package ranker scores documents with BM25 using collection-wide statistics,
// so scores over a merged index match those of one index holding every
// document.
package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
)

// Params are the BM25 free parameters.
type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: 1.2, B: 0.75}
}

type ScoredDoc struct {
	DocID    int               `json:"doc_id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TermPostings are the postings of one query term together with its
// collection document frequency.
type TermPostings struct {
	Term              string
	DocumentFrequency int
	Postings          []index.Posting
}

// Score accumulates BM25 scores of the postings accepted by keep.
// docLength is consulted only for postings that do not carry a length.
func Score(
	terms []TermPostings,
	stats index.CollectionStatistics,
	params Params,
	keep func(docID int) bool,
	docLength func(docID int) int,
) map[int]float64 {
	scores := make(map[int]float64)
	for _, tp := range terms {
		idf := computeIDF(int64(stats.NumDocuments), int64(tp.DocumentFrequency))
		for _, posting := range tp.Postings {
			if keep != nil && !keep(posting.ID) {
				continue
			}
			length := posting.DocLength
			if length == 0 && docLength != nil {
				length = docLength(posting.ID)
			}
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(length),
				stats.AverageDocumentLength,
				params,
			)
			scores[posting.ID] += idf * tfNorm
		}
	}
	for docID, score := range scores {
		scores[docID] = math.Round(score*10000) / 10000
	}
	return scores
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64, p Params) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + p.K1*(1-p.B+p.B*lengthRatio)
	return (termFreq * (p.K1 + 1)) / denominator
}
