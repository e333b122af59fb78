package index

import (
	"fmt"
	"testing"
)

func benchPostings(terms, docsPerTerm int) map[string][]Posting {
	postings := make(map[string][]Posting, terms)
	for t := 0; t < terms; t++ {
		list := make([]Posting, docsPerTerm)
		for d := range list {
			list[d] = Posting{Doc: int64((d*7 + t) % (docsPerTerm * 2)), Score: float64(d%13) / 13}
		}
		postings[fmt.Sprintf("term%d", t)] = list
	}
	return postings
}

func BenchmarkRank(b *testing.B) {
	for _, tc := range []struct{ terms, docs int }{{1, 1000}, {3, 10000}, {8, 50000}} {
		postings := benchPostings(tc.terms, tc.docs)
		b.Run(fmt.Sprintf("terms_%d_docs_%d", tc.terms, tc.docs), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Rank(postings, 10)
			}
		})
	}
}

func BenchmarkSearchMemoryIndexParallel(b *testing.B) {
	var terms []TermPostings
	for term, list := range benchPostings(16, 5000) {
		terms = append(terms, TermPostings{Term: term, Postings: list})
	}
	idx := NewMemoryIndex(terms)
	query := []string{"term1", "term5", "term9"}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := Search(idx, query, 10); err != nil {
				b.Fatal(err)
			}
		}
	})
}
