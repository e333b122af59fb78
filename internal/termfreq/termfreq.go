// Package termfreq counts how often every term occurs in every numbered
// document. Map tasks emit one occurrence per token keyed by (term, doc);
// reducers sum them. The corpus size broadcast by the numbering stage is
// carried through to this stage's output for the TF-IDF stage.
package termfreq

import (
	"context"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/mapreduce"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/numbering"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/termdoc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

const occurrence = "1"

// Mapper tokenizes documents into (term:doc, 1) events.
type Mapper struct {
	tok tokenizer.Tokenizer
}

func NewMapper(tok tokenizer.Tokenizer) *Mapper {
	return &Mapper{tok: tok}
}

func (m *Mapper) Map(_ context.Context, rec shuffle.Message, out mapreduce.Emitter) error {
	if rec.IsControl() {
		if rec.Key != numbering.TagCorpusSize {
			return apperrors.Newf(apperrors.ErrParse, "unexpected control record %q", rec.Key)
		}
		if _, err := numbering.ParseCorpusSize(rec.Value); err != nil {
			return err
		}
		return out.Emit(shuffle.Control(numbering.TotalSink, numbering.TagCorpusSize, rec.Value))
	}
	doc, err := strconv.ParseInt(rec.Key, 10, 64)
	if err != nil || doc < 0 {
		return apperrors.Newf(apperrors.ErrParse, "malformed document id %q", rec.Key)
	}
	for _, term := range m.tok.Tokenize(rec.Value) {
		if err := out.Emit(shuffle.Data(termdoc.NewKey(term, doc).String(), occurrence)); err != nil {
			return err
		}
	}
	return nil
}

// Combiner pre-sums occurrence counts on the map side.
type Combiner struct{}

func (Combiner) Reduce(_ context.Context, g mapreduce.Group, out mapreduce.Emitter) error {
	sum, err := sumCounts(g.Values)
	if err != nil {
		return err
	}
	return out.Emit(shuffle.Data(g.Key, strconv.FormatInt(sum, 10)))
}

// Reducer emits the final frequency of each (term, doc) pair.
type Reducer struct {
	hapaxFilter bool
	corpusSize  int64
	sawSize     bool
}

// NewReducer creates a reducer. With hapaxFilter set, pairs that occur
// only once are dropped.
func NewReducer(hapaxFilter bool) *Reducer {
	return &Reducer{hapaxFilter: hapaxFilter}
}

func (r *Reducer) Reduce(_ context.Context, g mapreduce.Group, out mapreduce.Emitter) error {
	if g.Kind == shuffle.KindControl {
		return r.control(g, out)
	}
	key, err := termdoc.Parse(g.Key)
	if err != nil {
		return err
	}
	sum, err := sumCounts(g.Values)
	if err != nil {
		return err
	}
	freq := termdoc.NewFreq(key, sum)
	if r.hapaxFilter && freq.Frequency <= 1 {
		return nil
	}
	return out.Emit(shuffle.Data(freq.Key.String(), strconv.FormatInt(freq.Frequency, 10)))
}

func (r *Reducer) control(g mapreduce.Group, out mapreduce.Emitter) error {
	if g.Key != numbering.TagCorpusSize {
		return apperrors.Newf(apperrors.ErrParse, "unexpected control tag %q", g.Key)
	}
	for _, v := range g.Values {
		n, err := numbering.ParseCorpusSize(v)
		if err != nil {
			return err
		}
		if r.sawSize && n != r.corpusSize {
			return apperrors.Newf(apperrors.ErrParse, "conflicting corpus sizes %d and %d", r.corpusSize, n)
		}
		r.corpusSize, r.sawSize = n, true
	}
	return out.Emit(shuffle.Control(shuffle.Broadcast, numbering.TagCorpusSize, strconv.FormatInt(r.corpusSize, 10)))
}

func sumCounts(values []string) (int64, error) {
	var sum int64
	for _, v := range values {
		n, err := termdoc.ParseCount(v)
		if err != nil {
			return 0, err
		}
		sum += n
	}
	return sum, nil
}

// Options configures the term-frequency stage.
type Options struct {
	NumReducers int
	Combiner    bool
	HapaxFilter bool
	Tokenizer   tokenizer.Tokenizer
	Router      shuffle.Router
}

// NewStage builds the term-frequency stage. It reads the numbering output
// and writes "term:doc<TAB>frequency" records.
func NewStage(name string, inputs []string, output string, opts Options) mapreduce.Stage {
	router := opts.Router
	if router == nil {
		router = shuffle.NewHashRouter()
	}
	tok := opts.Tokenizer
	if tok == nil {
		tok = tokenizer.Whitespace{}
	}
	stage := mapreduce.Stage{
		Name:        name,
		Inputs:      inputs,
		Output:      output,
		Format:      mapreduce.KeyValueInput,
		NumReducers: opts.NumReducers,
		Router:      router,
		Compare:     termdoc.CompareText,
		NewMapper: func(mapreduce.TaskInfo) (mapreduce.Mapper, error) {
			return NewMapper(tok), nil
		},
		NewReducer: func(mapreduce.TaskInfo) (mapreduce.Reducer, error) {
			return NewReducer(opts.HapaxFilter), nil
		},
	}
	if opts.Combiner {
		stage.NewCombiner = func(mapreduce.TaskInfo) (mapreduce.Reducer, error) {
			return Combiner{}, nil
		}
	}
	return stage
}
