package tokenizer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
)

const markupText = "<h2>The Cats</h2> are running, 42 dogs jumped! x1 a b"

func TestAnalyzerStemmers(t *testing.T) {
	tests := []struct {
		stemmer string
		want    []string
	}{
		{config.StemmerSnowball, []string{"cat", "run", "dog", "jump"}},
		{config.StemmerSuffix, []string{"cat", "runn", "dog", "jump"}},
		{config.StemmerNone, []string{"cats", "running", "dogs", "jumped"}},
	}
	for _, tt := range tests {
		t.Run(tt.stemmer, func(t *testing.T) {
			a := NewAnalyzer(config.TokenizerConfig{Stemmer: tt.stemmer, MinTokenLength: 2})
			require.Equal(t, tt.want, a.Tokenize(markupText))
		})
	}
}

func TestAnalyzerExtraStopwords(t *testing.T) {
	a := NewAnalyzer(config.TokenizerConfig{
		Stemmer:        config.StemmerNone,
		MinTokenLength: 2,
		Stopwords:      []string{"CATS"},
	})
	require.Equal(t, []string{"running", "dogs", "jumped"}, a.Tokenize(markupText))
}

func TestAnalyzerDropsNumericAndShortTokens(t *testing.T) {
	a := NewAnalyzer(config.TokenizerConfig{Stemmer: config.StemmerNone, MinTokenLength: 2})
	require.Empty(t, a.Tokenize("1 22 b2 x 3d 1999"))
	require.Equal(t, []string{"ok"}, a.Tokenize("ok"))
}

func TestAnalyzerPreservesOrderAndRepeats(t *testing.T) {
	a := NewAnalyzer(config.TokenizerConfig{Stemmer: config.StemmerNone, MinTokenLength: 2})
	require.Equal(t, []string{"cat", "dog", "cat"}, a.Tokenize("cat dog cat"))
}

func TestWhitespace(t *testing.T) {
	require.Equal(t, []string{"cat", "dog", "cat"}, Whitespace{}.Tokenize("  Cat dog\tCAT\n"))
	require.Empty(t, Whitespace{}.Tokenize(""))
}

func TestSuffixStem(t *testing.T) {
	tests := map[string]string{
		"indexing": "index",
		"jumped":   "jump",
		"cats":     "cat",
		"is":       "is",
	}
	for in, want := range tests {
		require.Equal(t, want, suffixStem(in), in)
	}
}

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"long": strings.Repeat(`Information retrieval systems form the backbone of modern search
        infrastructure. These systems combine tokenization, stemming, and stop word
        removal to normalize text into searchable terms. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	a := NewAnalyzer(config.Default().Tokenizer)
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = a.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	a := NewAnalyzer(config.Default().Tokenizer)
	baseWord := "distributed search analytics platform indexing "
	for _, size := range []int{10, 100, 1000, 5000} {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = a.Tokenize(text)
			}
		})
	}
}
