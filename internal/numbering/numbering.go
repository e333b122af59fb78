// Package numbering assigns every input line a globally unique, contiguous
// document id without a coordinator.
//
// Each map task counts how many records it routes to every partition. When
// its split is exhausted it converts those counts into prefix sums and sends
// partition i the number of records it routed to partitions 0..i-1. A
// reducer adds up the prefix sums it receives into its base and numbers its
// own records from there, so partition i owns the id range that follows
// partitions 0..i-1. Partition 0 also collects every task's total and
// broadcasts the corpus size to the next stage.
package numbering

import (
	"context"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/mapreduce"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

// Control message tags.
const (
	TagOffset     = "offset"
	TagTotal      = "total"
	TagCorpusSize = "corpus-size"
)

// TotalSink is the partition that aggregates the per-task totals.
const TotalSink = 0

// Tally counts the records one map task routed to each partition.
type Tally []int64

// NewTally returns a zeroed tally for numPartitions partitions.
func NewTally(numPartitions int) Tally {
	return make(Tally, numPartitions)
}

// Add records one message routed to partition.
func (t Tally) Add(partition int) {
	t[partition]++
}

// Total returns the number of records tallied.
func (t Tally) Total() int64 {
	var sum int64
	for _, n := range t {
		sum += n
	}
	return sum
}

// Finalize converts the tally into the control messages the task must emit:
// one offset per partition, in partition order, carrying the count routed
// to all lower partitions, followed by the task total for the sink.
func (t Tally) Finalize() []shuffle.Message {
	msgs := make([]shuffle.Message, 0, len(t)+1)
	var prefix int64
	for i, n := range t {
		msgs = append(msgs, shuffle.Control(i, TagOffset, strconv.FormatInt(prefix, 10)))
		prefix += n
	}
	return append(msgs, shuffle.Control(TotalSink, TagTotal, strconv.FormatInt(prefix, 10)))
}

// Mapper forwards input lines and tallies their destinations.
type Mapper struct {
	router     shuffle.Router
	skipHeader bool
	tally      Tally
}

// NewMapper creates the mapper for one map task.
func NewMapper(info mapreduce.TaskInfo, skipHeader bool) *Mapper {
	return &Mapper{
		router:     info.Router,
		skipHeader: skipHeader,
		tally:      NewTally(info.NumReducers),
	}
}

func (m *Mapper) Map(_ context.Context, rec shuffle.Message, out mapreduce.Emitter) error {
	offset, err := lineOffset(rec.Key)
	if err != nil {
		return err
	}
	if m.skipHeader && offset == 0 {
		return nil
	}
	msg := shuffle.Data(rec.Key, rec.Value)
	p, err := m.router.Route(msg, len(m.tally))
	if err != nil {
		return err
	}
	m.tally.Add(p)
	return out.Emit(msg)
}

// Finish emits the tally's control messages.
func (m *Mapper) Finish(_ context.Context, out mapreduce.Emitter) error {
	for _, msg := range m.tally.Finalize() {
		if err := out.Emit(msg); err != nil {
			return err
		}
	}
	return nil
}

// lineOffset extracts the byte offset from a "split:offset" record key.
func lineOffset(key string) (int64, error) {
	_, offsetText, ok := strings.Cut(key, ":")
	if !ok {
		return 0, apperrors.Newf(apperrors.ErrParse, "malformed line key %q", key)
	}
	offset, err := strconv.ParseInt(offsetText, 10, 64)
	if err != nil || offset < 0 {
		return 0, apperrors.Newf(apperrors.ErrParse, "malformed line offset in key %q", key)
	}
	return offset, nil
}

// Reducer numbers the records of one partition.
type Reducer struct {
	partition  int
	base       int64
	offsets    int
	next       int64
	numbering  bool
	corpusSize int64
}

// NewReducer creates the reducer for one reduce task.
func NewReducer(info mapreduce.TaskInfo) *Reducer {
	return &Reducer{partition: info.Index}
}

func (r *Reducer) Reduce(_ context.Context, g mapreduce.Group, out mapreduce.Emitter) error {
	if g.Kind == shuffle.KindControl {
		return r.control(g)
	}
	if !r.numbering {
		if r.offsets == 0 {
			return apperrors.Newf(apperrors.ErrOrderingViolation,
				"partition %d received record %q before any offset", r.partition, g.Key)
		}
		r.numbering = true
		r.next = r.base
	}
	for _, line := range g.Values {
		if err := out.Emit(shuffle.Data(strconv.FormatInt(r.next, 10), line)); err != nil {
			return err
		}
		r.next++
	}
	return nil
}

func (r *Reducer) control(g mapreduce.Group) error {
	if r.numbering {
		return apperrors.Newf(apperrors.ErrOrderingViolation,
			"partition %d received %q control after numbering started", r.partition, g.Key)
	}
	sum, err := sumValues(g)
	if err != nil {
		return err
	}
	switch g.Key {
	case TagOffset:
		r.base += sum
		r.offsets += len(g.Values)
	case TagTotal:
		if r.partition != TotalSink {
			return apperrors.Newf(apperrors.ErrRouting, "total delivered to partition %d", r.partition)
		}
		r.corpusSize += sum
	default:
		return apperrors.Newf(apperrors.ErrParse, "unknown control tag %q", g.Key)
	}
	return nil
}

// Finish broadcasts the corpus size from the sink partition.
func (r *Reducer) Finish(_ context.Context, out mapreduce.Emitter) error {
	if r.partition != TotalSink {
		return nil
	}
	return out.Emit(shuffle.Control(shuffle.Broadcast, TagCorpusSize, strconv.FormatInt(r.corpusSize, 10)))
}

func sumValues(g mapreduce.Group) (int64, error) {
	var sum int64
	for _, v := range g.Values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return 0, apperrors.Newf(apperrors.ErrParse, "malformed %s payload %q", g.Key, v)
		}
		sum += n
	}
	return sum, nil
}

// Options configures the numbering stage.
type Options struct {
	NumReducers int
	SkipHeader  bool
	Router      shuffle.Router
}

// NewStage builds the numbering stage. Its output records are
// "id<TAB>line" plus the broadcast corpus size.
func NewStage(name string, inputs []string, output string, opts Options) mapreduce.Stage {
	router := opts.Router
	if router == nil {
		router = shuffle.NewHashRouter()
	}
	return mapreduce.Stage{
		Name:        name,
		Inputs:      inputs,
		Output:      output,
		Format:      mapreduce.TextInput,
		NumReducers: opts.NumReducers,
		Router:      router,
		NewMapper: func(info mapreduce.TaskInfo) (mapreduce.Mapper, error) {
			return NewMapper(info, opts.SkipHeader), nil
		},
		NewReducer: func(info mapreduce.TaskInfo) (mapreduce.Reducer, error) {
			return NewReducer(info), nil
		},
	}
}

// ParseCorpusSize decodes a corpus-size payload.
func ParseCorpusSize(payload string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || n < 0 {
		return 0, apperrors.Newf(apperrors.ErrParse, "malformed corpus size %q", payload)
	}
	return n, nil
}
