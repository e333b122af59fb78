package idf

import (
	"math"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
)

// Scoring selects the TF-IDF formula.
type Scoring string

const (
	// Linear is tf * ln(N/df).
	Linear Scoring = config.ScoringLinear
	// Damped is ln(tf+1) * ln(N/df).
	Damped Scoring = config.ScoringDamped
)

// Score computes the TF-IDF weight of a term occurring tf times in one
// document, given its document frequency df in a corpus of n documents.
// df == n yields 0.
func Score(tf, df, n int64, mode Scoring) float64 {
	idf := math.Log(float64(n) / float64(df))
	if mode == Damped {
		return math.Log(float64(tf)+1) * idf
	}
	return float64(tf) * idf
}

// FormatScore renders a score with the shortest exact representation.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// Filter is the corpus-level document-frequency policy. Disabled filters
// keep every term.
type Filter struct {
	Enabled         bool
	MinDocFreq      int64
	MaxDocFreqRatio float64
}

// FilterFromConfig converts the configured policy.
func FilterFromConfig(cfg config.DocFreqFilterConfig) Filter {
	return Filter{
		Enabled:         cfg.Enabled,
		MinDocFreq:      int64(cfg.MinDocFreq),
		MaxDocFreqRatio: cfg.MaxDocFreqRatio,
	}
}

// Keep reports whether a term with document frequency df survives in a
// corpus of n documents.
func (f Filter) Keep(df, n int64) bool {
	if !f.Enabled {
		return true
	}
	if df < f.MinDocFreq {
		return false
	}
	return float64(df) <= f.MaxDocFreqRatio*float64(n)
}
