// Package idf is the final stage of the pipeline. It regroups term
// frequencies by term, derives each term's document frequency and scores
// every (term, document) pair against the corpus size broadcast to all
// partitions ahead of the data.
package idf

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/mapreduce"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/numbering"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/termdoc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

// Encoding selects the layout of the final index.
type Encoding string

const (
	// PerDocTerm writes one "doc#term<TAB>score" record per pair.
	PerDocTerm Encoding = config.EncodingPerDocTerm
	// SparseRow writes one "term<TAB>doc:score doc:score ..." row per term,
	// documents ascending.
	SparseRow Encoding = config.EncodingSparseRow
)

// DocTermSeparator joins document and term in PerDocTerm keys.
const DocTermSeparator = "#"

// DocTermKey renders a PerDocTerm key.
func DocTermKey(doc int64, term string) string {
	return strconv.FormatInt(doc, 10) + DocTermSeparator + term
}

// Mapper regroups term frequencies by term and fans the corpus size out to
// every partition.
type Mapper struct {
	numPartitions int
}

func NewMapper(info mapreduce.TaskInfo) *Mapper {
	return &Mapper{numPartitions: info.NumReducers}
}

func (m *Mapper) Map(_ context.Context, rec shuffle.Message, out mapreduce.Emitter) error {
	if rec.IsControl() {
		if rec.Key != numbering.TagCorpusSize {
			return apperrors.Newf(apperrors.ErrParse, "unexpected control record %q", rec.Key)
		}
		if _, err := numbering.ParseCorpusSize(rec.Value); err != nil {
			return err
		}
		for p := 0; p < m.numPartitions; p++ {
			if err := out.Emit(shuffle.Control(p, numbering.TagCorpusSize, rec.Value)); err != nil {
				return err
			}
		}
		return nil
	}
	key, err := termdoc.Parse(rec.Key)
	if err != nil {
		return err
	}
	n, err := termdoc.ParseCount(rec.Value)
	if err != nil {
		return err
	}
	return out.Emit(shuffle.Data(key.Term, termdoc.NewFreq(key, n).Posting()))
}

// Options configures scoring and output of the TF-IDF stage.
type Options struct {
	NumReducers int
	Scoring     Scoring
	Filter      Filter
	Encoding    Encoding
	Router      shuffle.Router
}

// Reducer scores one term group at a time.
type Reducer struct {
	partition  int
	opts       Options
	corpusSize int64
	sawSize    bool
}

func NewReducer(info mapreduce.TaskInfo, opts Options) *Reducer {
	return &Reducer{partition: info.Index, opts: opts}
}

// CorpusSize returns the corpus size the reducer observed.
func (r *Reducer) CorpusSize() (int64, bool) {
	return r.corpusSize, r.sawSize
}

func (r *Reducer) Reduce(_ context.Context, g mapreduce.Group, out mapreduce.Emitter) error {
	if g.Kind == shuffle.KindControl {
		return r.control(g)
	}
	if !r.sawSize {
		return apperrors.Newf(apperrors.ErrOrderingViolation,
			"partition %d reached term %q before the corpus size", r.partition, g.Key)
	}

	freqs := make(map[int64]int64, len(g.Values))
	for _, v := range g.Values {
		p, err := termdoc.ParsePosting(g.Key, v)
		if err != nil {
			return err
		}
		freqs[p.Doc] += p.Frequency
	}
	df := int64(len(freqs))
	if df > r.corpusSize {
		return apperrors.Newf(apperrors.ErrParse,
			"term %q occurs in %d documents of a %d document corpus", g.Key, df, r.corpusSize)
	}
	if !r.opts.Filter.Keep(df, r.corpusSize) {
		return nil
	}

	docs := make([]int64, 0, len(freqs))
	for doc := range freqs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })

	if r.opts.Encoding == SparseRow {
		var row strings.Builder
		for i, doc := range docs {
			if i > 0 {
				row.WriteByte(' ')
			}
			row.WriteString(strconv.FormatInt(doc, 10))
			row.WriteByte(':')
			row.WriteString(FormatScore(Score(freqs[doc], df, r.corpusSize, r.opts.Scoring)))
		}
		return out.Emit(shuffle.Data(g.Key, row.String()))
	}
	for _, doc := range docs {
		score := Score(freqs[doc], df, r.corpusSize, r.opts.Scoring)
		if err := out.Emit(shuffle.Data(DocTermKey(doc, g.Key), FormatScore(score))); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reducer) control(g mapreduce.Group) error {
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
	return nil
}

// NewStage builds the TF-IDF stage over the term-frequency output.
func NewStage(name string, inputs []string, output string, opts Options) mapreduce.Stage {
	if opts.Router == nil {
		opts.Router = shuffle.NewHashRouter()
	}
	if opts.Encoding == "" {
		opts.Encoding = PerDocTerm
	}
	if opts.Scoring == "" {
		opts.Scoring = Linear
	}
	return mapreduce.Stage{
		Name:        name,
		Inputs:      inputs,
		Output:      output,
		Format:      mapreduce.KeyValueInput,
		NumReducers: opts.NumReducers,
		Router:      opts.Router,
		NewMapper: func(info mapreduce.TaskInfo) (mapreduce.Mapper, error) {
			return NewMapper(info), nil
		},
		NewReducer: func(info mapreduce.TaskInfo) (mapreduce.Reducer, error) {
			return NewReducer(info, opts), nil
		},
	}
}
