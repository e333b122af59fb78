// Package wordcount is the engine's smoke-test job. It counts words, sends
// each one to the reducer that owns its length band and writes every part
// file in reverse lexicographic order. The reducer doubles as the combiner.
package wordcount

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/mapreduce"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

// LengthSpan is the word length covered by all but the last reducer
// together. The last reducer takes every longer word.
const LengthSpan = 30

// LengthPartition assigns word to a reducer by its length in runes. With
// three reducers the bands are 1-15, 16-30 and 31 upwards.
func LengthPartition(word string, numPartitions int) int {
	if numPartitions <= 1 {
		return 0
	}
	band := max(LengthSpan/(numPartitions-1), 1)
	p := (utf8.RuneCountInString(word) - 1) / band
	return min(max(p, 0), numPartitions-1)
}

// LengthRouter routes data by LengthPartition. Control messages keep their
// explicit targets.
type LengthRouter struct {
	control shuffle.HashRouter
}

func (r LengthRouter) Route(msg shuffle.Message, numPartitions int) (int, error) {
	if msg.Kind != shuffle.KindData {
		return r.control.Route(msg, numPartitions)
	}
	if numPartitions < 1 {
		return 0, apperrors.Newf(apperrors.ErrRouting, "numPartitions must be >= 1, got %d", numPartitions)
	}
	return LengthPartition(msg.Key, numPartitions), nil
}

// Reverse orders words from z to a.
func Reverse(a, b string) int {
	return strings.Compare(b, a)
}

// Map emits (word, 1) for every word of a line. Words are split on spaces
// and tabs; a tab could not be stored in an output key.
func Map(_ context.Context, rec shuffle.Message, out mapreduce.Emitter) error {
	for _, word := range strings.FieldsFunc(rec.Value, isSeparator) {
		if err := out.Emit(shuffle.Data(word, "1")); err != nil {
			return err
		}
	}
	return nil
}

func isSeparator(r rune) bool { return r == ' ' || r == '\t' }

// Sum adds up the counts of one word. The values are ones on the map side
// and partial sums once a combiner has run.
func Sum(_ context.Context, g mapreduce.Group, out mapreduce.Emitter) error {
	var total int64
	for _, v := range g.Values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return apperrors.Newf(apperrors.ErrParse, "count %q for word %q", v, g.Key)
		}
		total += n
	}
	return out.Emit(shuffle.Data(g.Key, strconv.FormatInt(total, 10)))
}

// NewStage builds the job over text inputs.
func NewStage(inputs []string, output string, numReducers int, combine bool) mapreduce.Stage {
	stage := mapreduce.Stage{
		Name:        "wordcount",
		Inputs:      inputs,
		Output:      output,
		Format:      mapreduce.TextInput,
		NumReducers: numReducers,
		Router:      LengthRouter{},
		Compare:     Reverse,
		NewMapper: func(mapreduce.TaskInfo) (mapreduce.Mapper, error) {
			return mapreduce.MapperFunc(Map), nil
		},
		NewReducer: func(mapreduce.TaskInfo) (mapreduce.Reducer, error) {
			return mapreduce.ReducerFunc(Sum), nil
		},
	}
	if combine {
		stage.NewCombiner = stage.NewReducer
	}
	return stage
}
