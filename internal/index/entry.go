// Package index reads the final TF-IDF output back into memory, packs it
// into queryable segments and answers ranked term queries against them.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/idf"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/mapreduce"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

// Entry is the score of one term in one document.
type Entry struct {
	Doc   int64   `json:"doc"`
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// Posting is a document and its score for a term known from context.
type Posting struct {
	Doc   int64   `json:"d"`
	Score float64 `json:"s"`
}

// TermPostings lists every scored document of one term, ascending by
// document.
type TermPostings struct {
	Term     string
	Postings []Posting
}

// ReadEntries loads a committed TF-IDF output directory written in enc.
func ReadEntries(dir string, enc idf.Encoding) ([]Entry, error) {
	if !mapreduce.Committed(dir) {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "%s is not a committed index", dir)
	}
	parts, err := filepath.Glob(filepath.Join(dir, "part-r-*"))
	if err != nil {
		return nil, fmt.Errorf("listing index parts: %w", err)
	}
	sort.Strings(parts)

	var entries []Entry
	for _, part := range parts {
		if err := readPart(part, enc, func(e Entry) { entries = append(entries, e) }); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func readPart(path string, enc idf.Encoding, add func(Entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	s := record.NewScanner(f)
	for s.Next() {
		entries, err := ParseRecord(s.Message(), enc)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		for _, e := range entries {
			add(e)
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// ParseRecord decodes one output record into its entries.
func ParseRecord(msg shuffle.Message, enc idf.Encoding) ([]Entry, error) {
	if msg.IsControl() {
		return nil, nil
	}
	if enc == idf.SparseRow {
		fields := strings.Fields(msg.Value)
		entries := make([]Entry, 0, len(fields))
		for _, field := range fields {
			docText, scoreText, ok := strings.Cut(field, ":")
			if !ok {
				return nil, apperrors.Newf(apperrors.ErrParse, "malformed row entry %q for term %q", field, msg.Key)
			}
			e, err := newEntry(docText, msg.Key, scoreText)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
		return entries, nil
	}
	docText, term, ok := strings.Cut(msg.Key, idf.DocTermSeparator)
	if !ok || term == "" {
		return nil, apperrors.Newf(apperrors.ErrParse, "malformed doc#term key %q", msg.Key)
	}
	e, err := newEntry(docText, term, msg.Value)
	if err != nil {
		return nil, err
	}
	return []Entry{e}, nil
}

func newEntry(docText, term, scoreText string) (Entry, error) {
	doc, err := strconv.ParseInt(docText, 10, 64)
	if err != nil || doc < 0 {
		return Entry{}, apperrors.Newf(apperrors.ErrParse, "malformed document id %q", docText)
	}
	score, err := strconv.ParseFloat(scoreText, 64)
	if err != nil {
		return Entry{}, apperrors.Newf(apperrors.ErrParse, "malformed score %q", scoreText)
	}
	return Entry{Doc: doc, Term: term, Score: score}, nil
}

// GroupByTerm collects entries into per-term posting lists, sorted by term
// and then by document.
func GroupByTerm(entries []Entry) []TermPostings {
	byTerm := make(map[string][]Posting)
	for _, e := range entries {
		byTerm[e.Term] = append(byTerm[e.Term], Posting{Doc: e.Doc, Score: e.Score})
	}
	terms := make([]TermPostings, 0, len(byTerm))
	for term, postings := range byTerm {
		sort.Slice(postings, func(i, j int) bool { return postings[i].Doc < postings[j].Doc })
		terms = append(terms, TermPostings{Term: term, Postings: postings})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Term < terms[j].Term })
	return terms
}
