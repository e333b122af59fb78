package mapreduce

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/internal/shuffle"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type wordMapper struct{}

func (wordMapper) Map(_ context.Context, rec shuffle.Message, out Emitter) error {
	for _, w := range strings.Fields(rec.Value) {
		if err := out.Emit(shuffle.Data(w, "1")); err != nil {
			return err
		}
	}
	return nil
}

type sumReducer struct{}

func (sumReducer) Reduce(_ context.Context, g Group, out Emitter) error {
	total := 0
	for _, v := range g.Values {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Newf(apperrors.ErrParse, "count %q", v)
		}
		total += n
	}
	return out.Emit(shuffle.Data(g.Key, strconv.Itoa(total)))
}

func writeInputs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func readOutput(t *testing.T, dir string) []shuffle.Message {
	t.Helper()
	parts, err := filepath.Glob(filepath.Join(dir, "part-r-*"))
	require.NoError(t, err)
	sort.Strings(parts)
	var msgs []shuffle.Message
	for _, p := range parts {
		f, err := os.Open(p)
		require.NoError(t, err)
		s := record.NewScanner(f)
		for s.Next() {
			msgs = append(msgs, s.Message())
		}
		require.NoError(t, s.Err())
		f.Close()
	}
	return msgs
}

func wordCountStage(input, output string, reducers int) Stage {
	return Stage{
		Name:        "wordcount",
		Inputs:      []string{input},
		Output:      output,
		NumReducers: reducers,
		Router:      shuffle.NewHashRouter(),
		NewMapper:   func(TaskInfo) (Mapper, error) { return wordMapper{}, nil },
		NewReducer:  func(TaskInfo) (Reducer, error) { return sumReducer{}, nil },
	}
}

func testEngine(t *testing.T) *Engine {
	return New(Options{
		WorkDir:           t.TempDir(),
		MapParallelism:    3,
		ReduceParallelism: 2,
		CompressSpills:    true,
		TaskRetries:       2,
		RetryDelay:        time.Millisecond,
	})
}

func counts(msgs []shuffle.Message) map[string]string {
	out := make(map[string]string, len(msgs))
	for _, m := range msgs {
		out[m.Key] = m.Value
	}
	return out
}

func TestRunStageWordCount(t *testing.T) {
	input := writeInputs(t, map[string]string{
		"a.txt":    "cat dog cat\nbird\n",
		"b.txt":    "dog dog\r\nfish",
		"_SUCCESS": "",
		".hidden":  "ignored words",
	})
	output := filepath.Join(t.TempDir(), "out")

	for _, reducers := range []int{1, 3} {
		res, err := testEngine(t).RunStage(context.Background(), wordCountStage(input, output, reducers))
		require.NoError(t, err)
		require.Equal(t, 2, res.MapTasks)
		require.Equal(t, reducers, res.ReduceTasks)
		require.EqualValues(t, 4, res.RecordsWritten)
		require.True(t, Committed(output))

		require.Equal(t, map[string]string{"cat": "2", "dog": "3", "bird": "1", "fish": "1"}, counts(readOutput(t, output)))
		parts, _ := filepath.Glob(filepath.Join(output, "part-r-*"))
		require.Len(t, parts, reducers)
	}
}

func TestRunStageCombinerHasNoSemanticEffect(t *testing.T) {
	input := writeInputs(t, map[string]string{"a.txt": "x y x x z y\n", "b.txt": "x z\n"})
	plain := filepath.Join(t.TempDir(), "plain")
	combined := filepath.Join(t.TempDir(), "combined")

	_, err := testEngine(t).RunStage(context.Background(), wordCountStage(input, plain, 2))
	require.NoError(t, err)

	stage := wordCountStage(input, combined, 2)
	stage.NewCombiner = func(TaskInfo) (Reducer, error) { return sumReducer{}, nil }
	_, err = testEngine(t).RunStage(context.Background(), stage)
	require.NoError(t, err)

	require.Equal(t, counts(readOutput(t, plain)), counts(readOutput(t, combined)))
}

// controlFirstReducer fails unless every control group precedes the data.
type controlFirstReducer struct {
	seenData bool
	controls int
}

func (r *controlFirstReducer) Reduce(_ context.Context, g Group, out Emitter) error {
	if g.Kind == shuffle.KindControl {
		if r.seenData {
			return apperrors.New(apperrors.ErrOrderingViolation, "control after data")
		}
		r.controls += len(g.Values)
		return nil
	}
	r.seenData = true
	return out.Emit(shuffle.Data(g.Key, strconv.Itoa(r.controls)))
}

type announcingMapper struct {
	wordMapper
	partitions int
}

func (m announcingMapper) Finish(_ context.Context, out Emitter) error {
	for p := 0; p < m.partitions; p++ {
		if err := out.Emit(shuffle.Control(p, "hello", "1")); err != nil {
			return err
		}
	}
	return nil
}

func TestRunStageDeliversControlBeforeData(t *testing.T) {
	input := writeInputs(t, map[string]string{
		"a.txt": "alpha beta gamma\n",
		"b.txt": "delta epsilon\n",
		"c.txt": "zeta\n",
	})
	output := filepath.Join(t.TempDir(), "out")
	stage := wordCountStage(input, output, 2)
	stage.NewMapper = func(info TaskInfo) (Mapper, error) {
		return announcingMapper{partitions: info.NumReducers}, nil
	}
	stage.NewReducer = func(TaskInfo) (Reducer, error) { return &controlFirstReducer{}, nil }

	_, err := testEngine(t).RunStage(context.Background(), stage)
	require.NoError(t, err)
	for word, seen := range counts(readOutput(t, output)) {
		// three map tasks each announce once per partition
		require.Equal(t, "3", seen, word)
	}
}

func TestRunStageRoutingErrorIsFatal(t *testing.T) {
	input := writeInputs(t, map[string]string{"a.txt": "alpha\n"})
	output := filepath.Join(t.TempDir(), "out")
	var attempts atomic.Int32
	stage := wordCountStage(input, output, 2)
	stage.NewMapper = func(TaskInfo) (Mapper, error) {
		attempts.Add(1)
		return announcingMapper{partitions: 5}, nil
	}

	_, err := testEngine(t).RunStage(context.Background(), stage)
	require.ErrorIs(t, err, apperrors.ErrRouting)
	require.EqualValues(t, 1, attempts.Load())
	require.NoDirExists(t, output)

	var pErr *apperrors.PipelineError
	require.ErrorAs(t, err, &pErr)
	require.Equal(t, "wordcount", pErr.Stage)
	require.Equal(t, "map-0", pErr.Task)
}

func TestRunStageOversizedDocumentIsFatal(t *testing.T) {
	long := strings.Repeat("a", record.MaxLineBytes+1)
	input := writeInputs(t, map[string]string{"a.txt": "short\n" + long + "\n"})
	output := filepath.Join(t.TempDir(), "out")
	var attempts atomic.Int32
	stage := wordCountStage(input, output, 1)
	stage.NewMapper = func(TaskInfo) (Mapper, error) {
		attempts.Add(1)
		return wordMapper{}, nil
	}

	_, err := testEngine(t).RunStage(context.Background(), stage)
	require.ErrorIs(t, err, apperrors.ErrParse)
	require.EqualValues(t, 1, attempts.Load())
	require.NoDirExists(t, output)
}

func TestRunStageRetriesTransientFailures(t *testing.T) {
	input := writeInputs(t, map[string]string{"a.txt": "one two\n", "b.txt": "two\n"})
	output := filepath.Join(t.TempDir(), "out")
	var reduceAttempts atomic.Int32
	stage := wordCountStage(input, output, 1)
	stage.NewReducer = func(TaskInfo) (Reducer, error) {
		if reduceAttempts.Add(1) == 1 {
			return nil, errors.New("disk hiccup")
		}
		return sumReducer{}, nil
	}

	eng := testEngine(t)
	_, err := eng.RunStage(context.Background(), stage)
	require.NoError(t, err)
	require.EqualValues(t, 2, reduceAttempts.Load())
	require.Equal(t, map[string]string{"one": "1", "two": "2"}, counts(readOutput(t, output)))
}

func TestRunStageFailureLeavesNoOutput(t *testing.T) {
	input := writeInputs(t, map[string]string{"a.txt": "alpha beta\n"})
	parent := t.TempDir()
	output := filepath.Join(parent, "out")
	require.NoError(t, os.MkdirAll(output, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(output, "stale"), []byte("old"), 0o644))

	stage := wordCountStage(input, output, 2)
	stage.NewReducer = func(TaskInfo) (Reducer, error) {
		return ReducerFunc(func(context.Context, Group, Emitter) error {
			return apperrors.New(apperrors.ErrParse, "bad value")
		}), nil
	}
	_, err := testEngine(t).RunStage(context.Background(), stage)
	require.ErrorIs(t, err, apperrors.ErrParse)
	require.False(t, Committed(output))

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp-", "temporary output left behind")
	}
}

func TestRunStageInvalid(t *testing.T) {
	stage := wordCountStage(t.TempDir(), filepath.Join(t.TempDir(), "out"), 0)
	_, err := testEngine(t).RunStage(context.Background(), stage)
	require.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	stage = wordCountStage(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "out"), 1)
	_, err = testEngine(t).RunStage(context.Background(), stage)
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRunStageTextKeysFollowFileOrder(t *testing.T) {
	input := writeInputs(t, map[string]string{"a.txt": "first\nsecond\n", "b.txt": "third\n"})
	output := filepath.Join(t.TempDir(), "out")
	stage := Stage{
		Name:        "identity",
		Inputs:      []string{input},
		Output:      output,
		NumReducers: 1,
		Router:      shuffle.NewHashRouter(),
		NewMapper: func(TaskInfo) (Mapper, error) {
			return MapperFunc(func(_ context.Context, rec shuffle.Message, out Emitter) error {
				return out.Emit(rec)
			}), nil
		},
		NewReducer: func(TaskInfo) (Reducer, error) {
			return ReducerFunc(func(_ context.Context, g Group, out Emitter) error {
				for _, v := range g.Values {
					if err := out.Emit(shuffle.Data(g.Key, v)); err != nil {
						return err
					}
				}
				return nil
			}), nil
		},
	}
	_, err := testEngine(t).RunStage(context.Background(), stage)
	require.NoError(t, err)

	msgs := readOutput(t, output)
	require.Len(t, msgs, 3)
	require.Equal(t, TextKey(0, 0), msgs[0].Key)
	require.Equal(t, "first", msgs[0].Value)
	require.Equal(t, TextKey(0, 6), msgs[1].Key)
	require.Equal(t, TextKey(1, 0), msgs[2].Key)
	require.Equal(t, "third", msgs[2].Value)
}

func TestJobSkipsDependentsOfFailedStage(t *testing.T) {
	input := writeInputs(t, map[string]string{"a.txt": "alpha\n"})
	root := t.TempDir()

	failing := wordCountStage(input, filepath.Join(root, "first"), 1)
	failing.Name = "first"
	failing.NewReducer = func(TaskInfo) (Reducer, error) {
		return ReducerFunc(func(context.Context, Group, Emitter) error {
			return apperrors.New(apperrors.ErrParse, "broken")
		}), nil
	}
	dependent := wordCountStage(filepath.Join(root, "first"), filepath.Join(root, "second"), 1)
	dependent.Name = "second"
	independent := wordCountStage(input, filepath.Join(root, "third"), 1)
	independent.Name = "third"

	job := NewJob(testEngine(t))
	require.NoError(t, job.AddStage(failing))
	require.NoError(t, job.AddStage(dependent, "first"))
	require.NoError(t, job.AddStage(independent))

	res, err := job.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, apperrors.ErrParse)
	require.ErrorIs(t, err, apperrors.ErrStageDependency)
	require.Equal(t, StatusFailed, res.Statuses["first"])
	require.Equal(t, StatusSkipped, res.Statuses["second"])
	require.Equal(t, StatusSucceeded, res.Statuses["third"])
	require.NoDirExists(t, filepath.Join(root, "second"))
	require.True(t, Committed(filepath.Join(root, "third")))
}

func TestJobAddStageValidation(t *testing.T) {
	job := NewJob(testEngine(t))
	stage := wordCountStage(t.TempDir(), t.TempDir(), 1)
	require.ErrorIs(t, job.AddStage(stage, "nope"), apperrors.ErrInvalidConfig)
	require.NoError(t, job.AddStage(stage))
	require.ErrorIs(t, job.AddStage(stage), apperrors.ErrInvalidConfig)
}

func TestJobRunsChainedStages(t *testing.T) {
	input := writeInputs(t, map[string]string{"a.txt": "b a b\n", "b.txt": "c a\n"})
	root := t.TempDir()
	first := wordCountStage(input, filepath.Join(root, "counts"), 2)
	first.Name = "counts"

	// the second stage reads key/value records and inverts them
	second := Stage{
		Name:        "invert",
		Inputs:      []string{filepath.Join(root, "counts")},
		Output:      filepath.Join(root, "inverted"),
		Format:      KeyValueInput,
		NumReducers: 1,
		Router:      shuffle.NewHashRouter(),
		NewMapper: func(TaskInfo) (Mapper, error) {
			return MapperFunc(func(_ context.Context, rec shuffle.Message, out Emitter) error {
				return out.Emit(shuffle.Data(rec.Value, rec.Key))
			}), nil
		},
		NewReducer: func(TaskInfo) (Reducer, error) {
			return ReducerFunc(func(_ context.Context, g Group, out Emitter) error {
				sort.Strings(g.Values)
				return out.Emit(shuffle.Data(g.Key, strings.Join(g.Values, ",")))
			}), nil
		},
	}

	job := NewJob(testEngine(t))
	require.NoError(t, job.AddStage(first))
	require.NoError(t, job.AddStage(second, "counts"))
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Stages, 2)
	require.Equal(t, map[string]string{"1": "c", "2": "a,b"}, counts(readOutput(t, filepath.Join(root, "inverted"))))
}
