// Package tokenizer turns document text into the ordered sequence of
// normalised terms that the term-frequency stage counts. It strips markup,
// lower-cases input, splits on non-alphanumeric boundaries, removes
// stop-words, numeric tokens and single characters, and stems what is left.
package tokenizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
)

// Tokenizer is the capability the pipeline consumes. Implementations must
// be deterministic and safe for concurrent use.
type Tokenizer interface {
	Tokenize(text string) []string
}

var (
	markupPattern      = regexp.MustCompile(`<(.*?)>`)
	punctuationPattern = regexp.MustCompile(`[.,!?:;_'"]`)
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Analyzer is the default Tokenizer.
type Analyzer struct {
	minLen    int
	stopWords map[string]struct{}
	stem      func(string) string
}

// NewAnalyzer builds an Analyzer from configuration. Extra stop-words are
// added to the built-in English list.
func NewAnalyzer(cfg config.TokenizerConfig) *Analyzer {
	words := make(map[string]struct{}, len(stopWords)+len(cfg.Stopwords))
	for w := range stopWords {
		words[w] = struct{}{}
	}
	for _, w := range cfg.Stopwords {
		words[strings.ToLower(w)] = struct{}{}
	}
	minLen := cfg.MinTokenLength
	if minLen < 1 {
		minLen = 2
	}
	a := &Analyzer{minLen: minLen, stopWords: words}
	switch cfg.Stemmer {
	case config.StemmerNone:
		a.stem = func(w string) string { return w }
	case config.StemmerSuffix:
		a.stem = suffixStem
	default:
		a.stem = snowballStem
	}
	return a
}

// Tokenize implements Tokenizer.
func (a *Analyzer) Tokenize(text string) []string {
	text = markupPattern.ReplaceAllString(text, " ")
	text = punctuationPattern.ReplaceAllString(text, " ")
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words)/2)
	for _, word := range words {
		if utf8.RuneCountInString(word) < a.minLen {
			continue
		}
		if _, isStop := a.stopWords[word]; isStop {
			continue
		}
		if containsDigit(word) {
			continue
		}
		stemmed := a.stem(word)
		if utf8.RuneCountInString(stemmed) < a.minLen {
			continue
		}
		terms = append(terms, stemmed)
	}
	return terms
}

// Whitespace splits on white space and lower-cases, nothing more.
type Whitespace struct{}

func (Whitespace) Tokenize(text string) []string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

func containsDigit(word string) bool {
	for _, r := range word {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func snowballStem(word string) string {
	return english.Stem(word, false)
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// suffixStem is a light, dependency-free suffix stripper: the first rule
// whose suffix matches and leaves at least minLen characters wins.
func suffixStem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
