// Package benchmark contains Go benchmarks for shard building, shard
// segments, the merged index and the search pipeline, measuring throughput
// and allocation behaviour.
package benchmark

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/multiindex"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/config"
)

var benchTerms = []string{"distributed", "search", "analytics", "platform", "indexing", "query", "engine", "ranking"}

func benchOptions() index.Options {
	return index.Options{
		Blocks:          true,
		MetaKeys:        []string{"filename"},
		ReverseMetaKeys: []string{"filename"},
		Pipeline:        tokenizer.DefaultOptions(),
	}
}

func benchDocument(i int) index.Document {
	n := len(benchTerms)
	return index.Document{
		Text: fmt.Sprintf("document about %s and %s covers %s %s in production systems",
			benchTerms[i%n], benchTerms[(i+1)%n], benchTerms[(i+2)%n], benchTerms[(i+3)%n]),
		Meta: map[string]string{"filename": fmt.Sprintf("doc-%d", i)},
	}
}

// buildShards splits docs documents into shards static shards in order.
func buildShards(b *testing.B, shards, docs int) []index.Index {
	b.Helper()
	out := make([]index.Index, 0, shards)
	per := docs / shards
	for s := 0; s < shards; s++ {
		mi := index.NewMemoryIndex(benchOptions())
		for d := s * per; d < (s+1)*per; d++ {
			if _, err := mi.AddDocument(benchDocument(d)); err != nil {
				b.Fatal(err)
			}
		}
		st, err := index.FromSnapshot(mi.Snapshot())
		if err != nil {
			b.Fatal(err)
		}
		out = append(out, st)
	}
	return out
}

// BenchmarkMemoryIndexAdd measures per-document insert throughput into the
// in-memory shard builder.
func BenchmarkMemoryIndexAdd(b *testing.B) {
	mi := index.NewMemoryIndex(benchOptions())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := mi.AddDocument(benchDocument(i)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMemoryIndexSnapshot measures the cost of snapshotting a shard
// before it is written.
func BenchmarkMemoryIndexSnapshot(b *testing.B) {
	mi := index.NewMemoryIndex(benchOptions())
	for i := 0; i < 5000; i++ {
		mi.AddDocument(benchDocument(i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mi.Snapshot()
	}
}

func BenchmarkSegmentWriteOpen(b *testing.B) {
	mi := index.NewMemoryIndex(benchOptions())
	for i := 0; i < 2000; i++ {
		mi.AddDocument(benchDocument(i))
	}
	snap := mi.Snapshot()
	w := segment.NewWriter(b.TempDir())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path, err := w.Write(snap)
		if err != nil {
			b.Fatal(err)
		}
		r, err := segment.OpenReader(path)
		if err != nil {
			b.Fatal(err)
		}
		r.Close()
	}
}

// BenchmarkBuilderAdd measures indexing throughput including shard flushes.
func BenchmarkBuilderAdd(b *testing.B) {
	builder, err := indexer.NewBuilder(config.IndexerConfig{
		DataDir:         b.TempDir(),
		MaxDocsPerShard: 5000,
		Blocks:          true,
		MetaKeys:        []string{"filename"},
		ReverseMetaKeys: []string{"filename"},
	})
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := builder.Add(benchDocument(i)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMultiIndexNew measures merge-layer construction for growing shard
// counts over the same 8 000 documents.
func BenchmarkMultiIndexNew(b *testing.B) {
	for _, shards := range []int{1, 4, 16} {
		b.Run(fmt.Sprintf("shards_%d", shards), func(b *testing.B) {
			built := buildShards(b, shards, 8000)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := multiindex.New(built, multiindex.Options{BlocksEnabled: true}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkMergedLexiconLookup compares the first resolution of a term with
// the cached lookup that follows.
func BenchmarkMergedLexiconLookup(b *testing.B) {
	built := buildShards(b, 8, 8000)
	b.Run("first", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			b.StopTimer()
			mi, err := multiindex.New(built, multiindex.Options{})
			if err != nil {
				b.Fatal(err)
			}
			b.StartTimer()
			mi.Lexicon().LookupTerm("search")
		}
	})
	b.Run("cached", func(b *testing.B) {
		mi, err := multiindex.New(built, multiindex.Options{})
		if err != nil {
			b.Fatal(err)
		}
		mi.Lexicon().LookupTerm("search")
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			mi.Lexicon().LookupTerm("search")
		}
	})
}

// BenchmarkMergedPostings measures draining a merged posting list.
func BenchmarkMergedPostings(b *testing.B) {
	for _, shards := range []int{1, 8} {
		b.Run(fmt.Sprintf("shards_%d", shards), func(b *testing.B) {
			mi, err := multiindex.New(buildShards(b, shards, 8000), multiindex.Options{BlocksEnabled: true})
			if err != nil {
				b.Fatal(err)
			}
			entry, ok := mi.Lexicon().LookupTerm("search")
			if !ok {
				b.Fatal("term not indexed")
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				it, err := mi.InvertedIndex().Postings(entry)
				if err != nil {
					b.Fatal(err)
				}
				if _, err := index.Drain(it); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
