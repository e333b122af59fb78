// Package mapreduce is a local, single-process execution engine for
// partitioned batch stages. It provides the guarantees the pipeline relies
// on from a distributed engine: every message is routed by the stage's
// Router, all values of one key reach exactly one reduce task, keys are
// visited in ascending order with control messages first, and a stage's
// reduce phase never starts before all of its map tasks have finished.
//
// Map tasks spill their partitioned output to a work directory; reduce
// tasks merge, sort and group those spills and write one part file each.
// Stage output is committed atomically: a failed stage leaves no output
// directory behind.
package mapreduce

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

// Emitter receives the messages produced by a task.
type Emitter interface {
	Emit(msg shuffle.Message) error
}

// Mapper transforms one input record into zero or more messages.
type Mapper interface {
	Map(ctx context.Context, rec shuffle.Message, out Emitter) error
}

// Reducer consumes one key group. Groups arrive in ascending order, all
// control groups first.
type Reducer interface {
	Reduce(ctx context.Context, group Group, out Emitter) error
}

// Finisher is implemented by mappers and reducers that emit once their
// whole input has been consumed.
type Finisher interface {
	Finish(ctx context.Context, out Emitter) error
}

// Group is every value delivered for one key, in arrival order.
type Group struct {
	Kind   shuffle.Kind
	Key    string
	Values []string
}

// Phase identifies the half of a stage a task belongs to.
type Phase string

const (
	PhaseMap    Phase = "map"
	PhaseReduce Phase = "reduce"
)

// TaskInfo describes the task a mapper or reducer instance is created for.
// Every task attempt gets a fresh instance, so instances never share state.
type TaskInfo struct {
	Stage       string
	Phase       Phase
	Index       int
	NumReducers int
	Router      shuffle.Router
}

// Name returns the task name used in logs and errors, e.g. "map-3".
func (t TaskInfo) Name() string {
	return fmt.Sprintf("%s-%d", t.Phase, t.Index)
}

// InputFormat selects how input files are turned into records.
type InputFormat int

const (
	// TextInput yields one data record per line, keyed "split:offset" with
	// zero-padded fields so keys sort in file order.
	TextInput InputFormat = iota
	// KeyValueInput parses key<TAB>value records written by a prior stage.
	KeyValueInput
)

// Stage is one map/shuffle/reduce step.
type Stage struct {
	Name        string
	Inputs      []string
	Output      string
	Format      InputFormat
	NumReducers int
	Router      shuffle.Router
	Compare     shuffle.KeyCompare
	NewMapper   func(TaskInfo) (Mapper, error)
	NewCombiner func(TaskInfo) (Reducer, error)
	NewReducer  func(TaskInfo) (Reducer, error)
}

func (s Stage) validate() error {
	switch {
	case s.Name == "":
		return apperrors.New(apperrors.ErrInvalidConfig, "stage without name")
	case s.Output == "":
		return apperrors.Newf(apperrors.ErrInvalidConfig, "stage %s has no output", s.Name)
	case s.NumReducers < 1:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "stage %s needs at least one reducer, got %d", s.Name, s.NumReducers)
	case s.Router == nil:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "stage %s has no router", s.Name)
	case s.NewMapper == nil || s.NewReducer == nil:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "stage %s needs a mapper and a reducer", s.Name)
	}
	return nil
}

// EmitFunc adapts a function to Emitter.
type EmitFunc func(msg shuffle.Message) error

func (f EmitFunc) Emit(msg shuffle.Message) error {
	return f(msg)
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(ctx context.Context, rec shuffle.Message, out Emitter) error

func (f MapperFunc) Map(ctx context.Context, rec shuffle.Message, out Emitter) error {
	return f(ctx, rec, out)
}

// ReducerFunc adapts a function to Reducer.
type ReducerFunc func(ctx context.Context, group Group, out Emitter) error

func (f ReducerFunc) Reduce(ctx context.Context, group Group, out Emitter) error {
	return f(ctx, group, out)
}
