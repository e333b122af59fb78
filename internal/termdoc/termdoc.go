// Package termdoc holds the composite (term, document) key shared by the
// term-frequency and TF-IDF stages, together with its text encodings.
package termdoc

import (
	"cmp"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

const keySeparator = ":"

// Key identifies one term inside one document. Ordering is by term, then
// numerically by document.
type Key struct {
	Term string
	Doc  int64
}

// NewKey returns the key for term in doc.
func NewKey(term string, doc int64) Key {
	return Key{Term: term, Doc: doc}
}

// String renders the key as "term:doc".
func (k Key) String() string {
	return k.Term + keySeparator + strconv.FormatInt(k.Doc, 10)
}

// Compare orders keys by term, then by document.
func Compare(a, b Key) int {
	if c := strings.Compare(a.Term, b.Term); c != 0 {
		return c
	}
	return cmp.Compare(a.Doc, b.Doc)
}

// Parse decodes "term:doc". The document is taken after the last separator
// so terms may themselves contain it.
func Parse(s string) (Key, error) {
	idx := strings.LastIndex(s, keySeparator)
	if idx <= 0 || idx == len(s)-1 {
		return Key{}, apperrors.Newf(apperrors.ErrParse, "malformed term-document key %q", s)
	}
	doc, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil || doc < 0 {
		return Key{}, apperrors.Newf(apperrors.ErrParse, "malformed document id in key %q", s)
	}
	return Key{Term: s[:idx], Doc: doc}, nil
}

// CompareText orders encoded keys as Compare orders decoded ones. Keys that
// fail to parse sort after valid ones, byte-wise among themselves; the
// stage that owns them reports the parse error.
func CompareText(a, b string) int {
	ka, errA := Parse(a)
	kb, errB := Parse(b)
	switch {
	case errA == nil && errB == nil:
		return Compare(ka, kb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Freq is a Key with the number of times the term occurs in the document.
// Producers emit keys only; frequencies are attached by aggregation.
type Freq struct {
	Key
	Frequency int64
}

// NewFreq attaches a frequency to key.
func NewFreq(key Key, frequency int64) Freq {
	return Freq{Key: key, Frequency: frequency}
}

// Posting renders the (doc, frequency) half of a Freq as "doc:frequency",
// the value the TF-IDF stage groups by term.
func (f Freq) Posting() string {
	return strconv.FormatInt(f.Doc, 10) + keySeparator + strconv.FormatInt(f.Frequency, 10)
}

// ParsePosting decodes a posting for term.
func ParsePosting(term, s string) (Freq, error) {
	docText, freqText, ok := strings.Cut(s, keySeparator)
	if !ok {
		return Freq{}, apperrors.Newf(apperrors.ErrParse, "malformed posting %q for term %q", s, term)
	}
	doc, err := strconv.ParseInt(docText, 10, 64)
	if err != nil || doc < 0 {
		return Freq{}, apperrors.Newf(apperrors.ErrParse, "malformed document id in posting %q", s)
	}
	freq, err := ParseCount(freqText)
	if err != nil {
		return Freq{}, err
	}
	return NewFreq(NewKey(term, doc), freq), nil
}

// ParseCount decodes a non-negative occurrence count.
func ParseCount(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, apperrors.Newf(apperrors.ErrParse, "malformed count %q", s)
	}
	return n, nil
}
