package index

import (
	"container/heap"
	"fmt"
)

// ScoredDoc is one query result.
type ScoredDoc struct {
	Doc   int64   `json:"doc"`
	Score float64 `json:"score"`
}

// PostingSource looks up the postings of a term. Unknown terms yield no
// postings and no error.
type PostingSource interface {
	Lookup(term string) ([]Posting, error)
}

// Search ranks the documents matching any of terms. Duplicate query terms
// count once.
func Search(src PostingSource, terms []string, limit int) ([]ScoredDoc, error) {
	postingsPerTerm := make(map[string][]Posting, len(terms))
	for _, term := range terms {
		if _, seen := postingsPerTerm[term]; seen {
			continue
		}
		postings, err := src.Lookup(term)
		if err != nil {
			return nil, fmt.Errorf("looking up %q: %w", term, err)
		}
		postingsPerTerm[term] = postings
	}
	return Rank(postingsPerTerm, limit), nil
}

// Rank sums each document's TF-IDF scores over the query terms and returns
// the limit best, highest score first with ties broken by lower document
// id. A non-positive limit defaults to 10.
func Rank(postingsPerTerm map[string][]Posting, limit int) []ScoredDoc {
	if limit <= 0 {
		limit = 10
	}
	scores := make(map[int64]float64)
	for _, postings := range postingsPerTerm {
		for _, p := range postings {
			scores[p.Doc] += p.Score
		}
	}

	h := &scoredDocHeap{}
	for doc, score := range scores {
		heap.Push(h, ScoredDoc{Doc: doc, Score: score})
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap on rank, so the worst kept result is on top.
type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Doc > h[j].Doc
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MemoryIndex serves postings from memory.
type MemoryIndex map[string][]Posting

// NewMemoryIndex builds an in-memory index from grouped postings.
func NewMemoryIndex(terms []TermPostings) MemoryIndex {
	idx := make(MemoryIndex, len(terms))
	for _, tp := range terms {
		idx[tp.Term] = tp.Postings
	}
	return idx
}

func (m MemoryIndex) Lookup(term string) ([]Posting, error) {
	return m[term], nil
}
